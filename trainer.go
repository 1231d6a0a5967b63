package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pucksight/pucksight-server/model"
)

// refreshData fetches the season from the configured source and
// replaces what is stored. Replace-not-merge keeps the store an exact
// mirror of the last good fetch, same as the scrape updaters this grew
// out of.
func (s *Server) refreshData(ctx context.Context, season string) error {
	games, err := s.source.Schedule(ctx, season)
	if err != nil {
		return fmt.Errorf("schedule fetch failed: %w", err)
	}
	stats, err := s.source.Standings(ctx, season)
	if err != nil {
		return fmt.Errorf("standings fetch failed: %w", err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("season = ?", season).Delete(&Game{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&games).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("season = ?", season).Delete(&TeamStats{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&stats).Error; err != nil {
			return err
		}
		for _, st := range stats {
			team := Team{Abbrev: st.Abbrev, Name: teamNameFor(st.Abbrev)}
			if err := tx.Create(&team).Error; err != nil && !isUniqueConstraintError(err) {
				return err
			}
		}
		return nil
	})
}

// trainModel builds the training set from stored final games joined
// with the season aggregates and persists the fitted classifier.
func (s *Server) trainModel(season string) (*ModelSnapshot, error) {
	var games []Game
	if err := s.db.Where("season = ? AND final = ?", season, true).Find(&games).Error; err != nil {
		return nil, err
	}

	statsBySeason, err := s.statsMap(season)
	if err != nil {
		return nil, err
	}

	var samples []model.Sample
	for _, g := range games {
		home, hok := statsBySeason[g.HomeAbbrev]
		away, aok := statsBySeason[g.AwayAbbrev]
		if !hok || !aok {
			// Missing aggregates zero out the row rather than
			// dropping the game silently.
			home, away = TeamStats{}, TeamStats{}
		}
		samples = append(samples, model.Sample{
			X: model.Features(
				home.GoalsForPG, home.GoalsAgainstPG, home.WinPct, home.PointPct,
				away.GoalsForPG, away.GoalsAgainstPG, away.WinPct, away.PointPct,
			),
			HomeWin: g.HomeScore > g.AwayScore,
		})
	}

	clf, err := model.Train(samples, s.source.Synthetic())
	if err != nil {
		return nil, err
	}

	weights, err := json.Marshal(clf)
	if err != nil {
		return nil, err
	}

	snapshot := &ModelSnapshot{
		Season:       season,
		Source:       s.source.Name(),
		Weights:      datatypes.JSON(weights),
		Samples:      clf.Samples,
		Accuracy:     clf.Accuracy,
		LabelQuality: clf.LabelQuality,
		TrainedAt:    time.Now().UTC(),
	}
	if err := s.db.Create(snapshot).Error; err != nil {
		return nil, err
	}
	return snapshot, nil
}

// latestClassifier loads the newest persisted model. Returns
// gorm.ErrRecordNotFound when nothing has been trained yet.
func (s *Server) latestClassifier() (*ModelSnapshot, *model.Classifier, error) {
	var snapshot ModelSnapshot
	if err := s.db.Order("trained_at DESC").First(&snapshot).Error; err != nil {
		return nil, nil, err
	}
	var clf model.Classifier
	if err := json.Unmarshal(snapshot.Weights, &clf); err != nil {
		return nil, nil, fmt.Errorf("corrupt model snapshot %d: %w", snapshot.ID, err)
	}
	return &snapshot, &clf, nil
}

// predictMatchup runs the current model on a home/away pair. With no
// trained model it falls back to the longer-name heuristic the first
// drafts shipped, flagged accordingly.
func (s *Server) predictMatchup(home, away string) (*PredictResponse, error) {
	resp := &PredictResponse{Matchup: fmt.Sprintf("%s vs %s", home, away)}

	snapshot, clf, err := s.latestClassifier()
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		resp.HomeWinProb = model.FallbackProb(home, away)
		resp.LabelQuality = model.LabelQualityNone
	case err != nil:
		return nil, err
	default:
		stats, err := s.statsMap(snapshot.Season)
		if err != nil {
			return nil, err
		}
		h, a := stats[home], stats[away]
		prob, err := clf.Predict(model.Features(
			h.GoalsForPG, h.GoalsAgainstPG, h.WinPct, h.PointPct,
			a.GoalsForPG, a.GoalsAgainstPG, a.WinPct, a.PointPct,
		))
		if err != nil {
			return nil, err
		}
		resp.HomeWinProb = prob
		resp.LabelQuality = snapshot.LabelQuality
		resp.ModelTrainedAt = snapshot.TrainedAt
	}

	resp.Predicted = "Away Win"
	if resp.HomeWinProb >= 0.5 {
		resp.Predicted = "Home Win"
	}
	resp.MoneyLine = model.ProbToMoneyline(resp.HomeWinProb)
	return resp, nil
}

func (s *Server) statsMap(season string) (map[string]TeamStats, error) {
	var stats []TeamStats
	if err := s.db.Where("season = ?", season).Find(&stats).Error; err != nil {
		return nil, err
	}
	m := make(map[string]TeamStats, len(stats))
	for _, st := range stats {
		m[st.Abbrev] = st
	}
	return m, nil
}

// appendPredictionLog keeps the prediction_log.json convention: one
// JSON array, newest record appended at the end. The read-append-write
// must hold logMu or concurrent predictions drop records.
func (s *Server) appendPredictionLog(rec logRecord) error {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	path := filepath.Join(s.dataDir, "prediction_log.json")

	var records []logRecord
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &records); err != nil {
			// A corrupt log should not block predictions; start over.
			records = nil
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	records = append(records, rec)
	return s.writePredictionLog(path, records)
}

// rewritePredictionLog rebuilds the file from the Prediction table so
// outcome annotations show up in the record's actual field. Oldest
// first, matching append order.
func (s *Server) rewritePredictionLog() error {
	var predictions []Prediction
	if err := s.db.Order("timestamp ASC").Find(&predictions).Error; err != nil {
		return err
	}

	records := make([]logRecord, 0, len(predictions))
	for _, p := range predictions {
		records = append(records, logRecord{
			Matchup:   fmt.Sprintf("%s vs %s", p.HomeAbbrev, p.AwayAbbrev),
			Predicted: p.Predicted,
			Actual:    p.Actual,
			Timestamp: p.Timestamp,
		})
	}

	s.logMu.Lock()
	defer s.logMu.Unlock()
	return s.writePredictionLog(filepath.Join(s.dataDir, "prediction_log.json"), records)
}

func (s *Server) writePredictionLog(path string, records []logRecord) error {
	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func teamNameFor(abbrev string) string {
	for name, ab := range teamAbbrevs {
		if ab == abbrev && name != "Montréal Canadiens" {
			return name
		}
	}
	return abbrev
}
