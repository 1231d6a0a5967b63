package main

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Credentials struct {
	Username string `json:"username" gorm:"index"`
	Password string `json:"password"`
}

type PWChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type DBCredentials struct {
	gorm.Model
	Username     string
	PasswordHash string
}

// Team is the canonical team record. Abbrev is the identity the rest
// of the system keys on; each data source maps its own naming drift
// into it.
type Team struct {
	gorm.Model
	Abbrev string `json:"abbrev" gorm:"uniqueIndex"`
	Name   string `json:"name"`
}

// Game is one scheduled or completed matchup.
type Game struct {
	gorm.Model
	GamePk     int64          `json:"gamePk" gorm:"uniqueIndex"`
	Season     string         `json:"season" gorm:"index"`
	Date       datatypes.Date `json:"date"`
	HomeAbbrev string         `json:"homeAbbrev" gorm:"index"`
	AwayAbbrev string         `json:"awayAbbrev" gorm:"index"`
	HomeScore  int            `json:"homeScore"`
	AwayScore  int            `json:"awayScore"`
	Final      bool           `json:"final"`
}

// TeamStats holds one team's season-level aggregates: the goals per
// game and win percentage numbers the model uses as features.
type TeamStats struct {
	gorm.Model
	Season         string  `json:"season" gorm:"index:idx_team_season,unique"`
	Abbrev         string  `json:"abbrev" gorm:"index:idx_team_season,unique"`
	GamesPlayed    int     `json:"gamesPlayed"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	GoalsForPG     float64 `json:"goalsForPerGame"`
	GoalsAgainstPG float64 `json:"goalsAgainstPerGame"`
	WinPct         float64 `json:"winPct"`
	PointPct       float64 `json:"pointPct"`
}

// ModelSnapshot is a trained classifier persisted with its metadata.
// Weights is the JSON-serialized model.Classifier.
type ModelSnapshot struct {
	gorm.Model
	Season       string         `json:"season"`
	Source       string         `json:"source"`
	Weights      datatypes.JSON `json:"weights" gorm:"type:json"`
	Samples      int            `json:"samples"`
	Accuracy     float64        `json:"accuracy"`
	LabelQuality string         `json:"labelQuality"`
	TrainedAt    time.Time      `json:"trainedAt"`
}

// Prediction is one row of the append-only prediction log. Actual is
// empty until someone annotates the real outcome.
type Prediction struct {
	gorm.Model
	HomeAbbrev   string    `json:"homeAbbrev"`
	AwayAbbrev   string    `json:"awayAbbrev"`
	Predicted    string    `json:"predicted"`
	HomeWinProb  float64   `json:"homeWinProb"`
	MoneyLine    int       `json:"moneyLine"`
	LabelQuality string    `json:"labelQuality"`
	Actual       string    `json:"actual"`
	Timestamp    time.Time `json:"timestamp"`
}

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	HomeTeam string `json:"homeTeam"`
	AwayTeam string `json:"awayTeam"`
}

// PredictResponse mirrors what the old dashboards rendered: the
// two-class outcome plus the numbers behind it.
type PredictResponse struct {
	Matchup        string    `json:"matchup"`
	Predicted      string    `json:"predicted"`
	HomeWinProb    float64   `json:"homeWinProb"`
	MoneyLine      int       `json:"moneyLine"`
	LabelQuality   string    `json:"labelQuality"`
	ModelTrainedAt time.Time `json:"modelTrainedAt"`
}

// OutcomeRequest annotates a logged prediction with what actually
// happened.
type OutcomeRequest struct {
	Actual string `json:"actual"`
}

// logRecord is the prediction_log.json on-disk shape kept for
// compatibility with the old dashboards.
type logRecord struct {
	Matchup   string    `json:"matchup"`
	Predicted string    `json:"predicted"`
	Actual    string    `json:"actual"`
	Timestamp time.Time `json:"timestamp"`
}
