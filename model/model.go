// Package model implements the win-probability classifier used by the
// prediction server. It is plain logistic regression fit by gradient
// descent; no external ML dependency, no database access.
package model

import (
	"fmt"
	"math"
)

const (
	trainIters   = 400
	learningRate = 0.15
	holdoutFrac  = 0.2
	minSamples   = 20
)

// FeatureNames is the fixed feature layout. Index 0 is the intercept
// and doubles as the home-ice term since every row is built from the
// home team's perspective.
var FeatureNames = []string{
	"intercept",
	"gfPerGameDiff",
	"gaPerGameDiff",
	"winPctDiff",
	"pointPctDiff",
}

// Label quality values attached to every trained model and rider on
// every prediction served from it.
const (
	LabelQualityOK         = "ok"
	LabelQualityDegenerate = "degenerate"
	LabelQualitySynthetic  = "synthetic"
	LabelQualityNone       = "none"
)

// Sample is one completed game flattened into a feature row.
type Sample struct {
	X []float64
	// HomeWin is the label: true when the home side won.
	HomeWin bool
}

// Classifier holds trained weights plus the metadata the server
// persists alongside them.
type Classifier struct {
	Weights      []float64 `json:"weights"`
	Samples      int       `json:"samples"`
	Accuracy     float64   `json:"accuracy"`
	LabelQuality string    `json:"labelQuality"`
}

// Features builds a row from home/away season aggregates. Missing
// upstream numbers arrive as zeros and simply contribute nothing to
// the differentials.
func Features(homeGF, homeGA, homeWinPct, homePointPct, awayGF, awayGA, awayWinPct, awayPointPct float64) []float64 {
	return []float64{
		1.0,
		homeGF - awayGF,
		homeGA - awayGA,
		homeWinPct - awayWinPct,
		homePointPct - awayPointPct,
	}
}

// Train fits a logistic regression on the samples and evaluates it on
// a holdout slice taken from the end of the set. synthetic marks data
// that came from a generated source rather than real games.
func Train(samples []Sample, synthetic bool) (*Classifier, error) {
	if len(samples) < minSamples {
		return nil, fmt.Errorf("not enough training samples: %d", len(samples))
	}
	for _, s := range samples {
		if len(s.X) != len(FeatureNames) {
			return nil, fmt.Errorf("sample has %d features, want %d", len(s.X), len(FeatureNames))
		}
	}

	quality := labelQuality(samples, synthetic)

	cut := len(samples) - int(float64(len(samples))*holdoutFrac)
	if cut < 1 {
		cut = 1
	}
	train, holdout := samples[:cut], samples[cut:]

	w := make([]float64, len(FeatureNames))
	for iter := 0; iter < trainIters; iter++ {
		for _, s := range train {
			p := sigmoid(dot(w, s.X))
			// gradient of the log-loss: (p - y) * x
			err := p - label(s)
			for k := range w {
				w[k] -= learningRate * err * s.X[k] / float64(len(train))
			}
		}
	}

	correct := 0
	for _, s := range holdout {
		if (sigmoid(dot(w, s.X)) >= 0.5) == s.HomeWin {
			correct++
		}
	}
	acc := 0.0
	if len(holdout) > 0 {
		acc = float64(correct) / float64(len(holdout))
	}

	return &Classifier{
		Weights:      w,
		Samples:      len(samples),
		Accuracy:     acc,
		LabelQuality: quality,
	}, nil
}

// Predict returns the home-win probability for a feature row.
func (c *Classifier) Predict(x []float64) (float64, error) {
	if len(x) != len(c.Weights) {
		return 0, fmt.Errorf("row has %d features, want %d", len(x), len(c.Weights))
	}
	return sigmoid(dot(c.Weights, x)), nil
}

// FallbackProb is the longer-name heuristic from the earliest drafts
// of this app. It exists so the server can answer before any model has
// been trained; callers must mark the result LabelQualityNone.
func FallbackProb(home, away string) float64 {
	if len(home) > len(away) {
		return 0.55
	}
	return 0.45
}

// ProbToMoneyline converts a win probability to rounded money-line
// odds. Favorites round to the nearest 10, long dogs to 25s.
func ProbToMoneyline(p float64) int {
	if p <= 0 || p >= 1 {
		return 0
	}
	if p >= 0.5 {
		raw := -p / (1 - p) * 100
		return int(math.Round(raw/10)) * 10
	}
	raw := (1 - p) / p * 100
	if raw < 200 {
		return int(math.Ceil(raw/10)) * 10
	}
	return int(math.Ceil(raw/25)) * 25
}

func labelQuality(samples []Sample, synthetic bool) string {
	if synthetic {
		return LabelQualitySynthetic
	}
	wins := 0
	for _, s := range samples {
		if s.HomeWin {
			wins++
		}
	}
	if wins == 0 || wins == len(samples) {
		return LabelQualityDegenerate
	}
	return LabelQualityOK
}

func label(s Sample) float64 {
	if s.HomeWin {
		return 1.0
	}
	return 0.0
}

func sigmoid(z float64) float64 {
	if z > 20 {
		return 1.0
	}
	if z < -20 {
		return 0.0
	}
	return 1.0 / (1.0 + math.Exp(-z))
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
