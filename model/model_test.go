package model

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// separableSamples builds a set where the team with the better
// goals-for differential wins, which a logistic fit should recover.
func separableSamples(n int) []Sample {
	rng := rand.New(rand.NewSource(42))
	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		gfDiff := rng.Float64()*2 - 1
		samples = append(samples, Sample{
			X:       Features(3.0+gfDiff, 2.8, 0.55, 0.6, 3.0, 2.8, 0.55, 0.6),
			HomeWin: gfDiff > 0,
		})
	}
	return samples
}

func TestTrain(t *testing.T) {
	clf, err := Train(separableSamples(200), false)
	assert.NoError(t, err)
	assert.Equal(t, LabelQualityOK, clf.LabelQuality)
	assert.Equal(t, 200, clf.Samples)
	assert.Len(t, clf.Weights, len(FeatureNames))

	// Separable data should be learned well past coin-flip accuracy.
	assert.Greater(t, clf.Accuracy, 0.8)

	// A clearly stronger home side should be favored.
	p, err := clf.Predict(Features(3.8, 2.5, 0.7, 0.72, 2.4, 3.3, 0.4, 0.42))
	assert.NoError(t, err)
	assert.Greater(t, p, 0.5)

	// And the mirror matchup disfavored.
	p, err = clf.Predict(Features(2.4, 3.3, 0.4, 0.42, 3.8, 2.5, 0.7, 0.72))
	assert.NoError(t, err)
	assert.Less(t, p, 0.5)
}

func TestTrainNotEnoughSamples(t *testing.T) {
	_, err := Train(separableSamples(5), false)
	assert.Error(t, err)
}

func TestTrainDegenerateLabels(t *testing.T) {
	samples := separableSamples(100)
	for i := range samples {
		samples[i].HomeWin = true
	}
	clf, err := Train(samples, false)
	assert.NoError(t, err)
	assert.Equal(t, LabelQualityDegenerate, clf.LabelQuality)
}

func TestTrainSyntheticFlag(t *testing.T) {
	clf, err := Train(separableSamples(100), true)
	assert.NoError(t, err)
	assert.Equal(t, LabelQualitySynthetic, clf.LabelQuality)
}

func TestPredictWrongWidth(t *testing.T) {
	clf, err := Train(separableSamples(100), false)
	assert.NoError(t, err)
	_, err = clf.Predict([]float64{1.0})
	assert.Error(t, err)
}

func TestFallbackProb(t *testing.T) {
	assert.Equal(t, 0.55, FallbackProb("Boston Bruins", "Toronto"))
	assert.Equal(t, 0.45, FallbackProb("NYR", "WSH"))
}

func TestProbToMoneyline(t *testing.T) {
	assert.Equal(t, -100, ProbToMoneyline(0.5))
	assert.Equal(t, -150, ProbToMoneyline(0.6))
	assert.Equal(t, 150, ProbToMoneyline(0.4))
	assert.Equal(t, 0, ProbToMoneyline(0))
	assert.Equal(t, 0, ProbToMoneyline(1))

	// Long dogs round up to 25s.
	assert.Equal(t, 400, ProbToMoneyline(0.2))
}
