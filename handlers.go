package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/pucksight/pucksight-server/model"
)

func (s *Server) POSTLoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	// Check if rate limit has been exceeded
	key := loginRateLimitKey(r, creds.Username)
	ctx, err := s.loginRateLimiter.Peek(r.Context(), key)
	if err != nil {
		http.Error(w, "Rate limiter error", http.StatusInternalServerError)
		return
	}
	if ctx.Reached {
		http.Error(w, "Too many failed login attempts", http.StatusTooManyRequests)
		return
	}

	dbCreds := &DBCredentials{}
	result := s.db.First(dbCreds, "username = ?", creds.Username)
	if result.Error != nil {
		s.loginRateLimiter.Increment(r.Context(), key, 2)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	err = bcrypt.CompareHashAndPassword([]byte(dbCreds.PasswordHash), []byte(creds.Password))
	if err != nil {
		s.loginRateLimiter.Increment(r.Context(), key, 2)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	expiration := time.Now().Add(60 * time.Minute)
	claims := &Claims{
		Username: creds.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(jwtKey)
	if err != nil {
		http.Error(w, "Could not generate token", http.StatusInternalServerError)
		return
	}

	// Set HTTP-only JWT cookie
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    tokenStr,
		HttpOnly: true,
		Secure:   !s.devMode,
		SameSite: http.SameSiteNoneMode,
		Path:     "/",
	})
	w.WriteHeader(http.StatusOK)
}

func loginRateLimitKey(r *http.Request, username string) string {
	ip := r.RemoteAddr
	return fmt.Sprintf("%s:%s", ip, username)
}

func (s *Server) POSTLogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   !s.devMode,
		SameSite: http.SameSiteNoneMode,
		Expires:  time.Unix(0, 0), // Expire immediately
		MaxAge:   -1,              // Force deletion
	})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) POSTAuthMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(userContextKey).(*Claims)
	if !ok || claims == nil {
		http.Error(w, "User info not found in context", http.StatusInternalServerError)
		return
	}

	dbCreds := &DBCredentials{}
	result := s.db.First(dbCreds, "username = ?", claims.Username)
	if result.Error != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"authenticated": true,
		"username":      claims.Username,
	})
}

func (s *Server) POSTChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(userContextKey).(*Claims)
	if !ok || claims == nil {
		http.Error(w, "User info not found in context", http.StatusInternalServerError)
		return
	}

	var pwChangeReq PWChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&pwChangeReq); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	dbCreds := &DBCredentials{}
	result := s.db.First(dbCreds, "username = ?", claims.Username)
	if result.Error != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	err := bcrypt.CompareHashAndPassword([]byte(dbCreds.PasswordHash), []byte(pwChangeReq.CurrentPassword))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pwChangeReq.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Could not check password", http.StatusInternalServerError)
		return
	}
	dbCreds.PasswordHash = string(hash)
	if err := s.db.Save(dbCreds).Error; err != nil {
		http.Error(w, "Could not save password", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) GETTeams(w http.ResponseWriter, r *http.Request) {
	var teams []Team
	if err := s.db.Order("abbrev ASC").Find(&teams).Error; err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(teams)
}

func (s *Server) GETSchedule(w http.ResponseWriter, r *http.Request) {
	season := r.URL.Query().Get("season")
	if season == "" {
		season = s.season
	}
	if !validateSeason(season) {
		http.Error(w, "Malformed season", http.StatusBadRequest)
		return
	}

	q := s.db.Where("season = ?", season)
	if date := r.URL.Query().Get("date"); date != "" {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			http.Error(w, "Malformed date", http.StatusBadRequest)
			return
		}
		q = q.Where("date = ?", dateOf(day))
	}

	games := []Game{}
	if err := q.Order("date ASC").Find(&games).Error; err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(games)
}

func (s *Server) GETStandings(w http.ResponseWriter, r *http.Request) {
	season := r.URL.Query().Get("season")
	if season == "" {
		season = s.season
	}
	if !validateSeason(season) {
		http.Error(w, "Malformed season", http.StatusBadRequest)
		return
	}

	stats := []TeamStats{}
	if err := s.db.Where("season = ?", season).Find(&stats).Error; err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].PointPct != stats[j].PointPct {
			return stats[i].PointPct > stats[j].PointPct
		}
		return stats[i].Abbrev < stats[j].Abbrev
	})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (s *Server) POSTPredict(w http.ResponseWriter, r *http.Request) {
	ctx, err := s.predictRateLimiter.Get(r.Context(), r.RemoteAddr)
	if err != nil {
		http.Error(w, "Rate limiter error", http.StatusInternalServerError)
		return
	}
	if ctx.Reached {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	home := abbrevFor("", strings.TrimSpace(req.HomeTeam))
	away := abbrevFor("", strings.TrimSpace(req.AwayTeam))
	if home == "" || away == "" || home == away {
		http.Error(w, "Home and away teams must be set and distinct", http.StatusBadRequest)
		return
	}

	resp, err := s.predictMatchup(home, away)
	if err != nil {
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	prediction := Prediction{
		HomeAbbrev:   home,
		AwayAbbrev:   away,
		Predicted:    resp.Predicted,
		HomeWinProb:  resp.HomeWinProb,
		MoneyLine:    resp.MoneyLine,
		LabelQuality: resp.LabelQuality,
		Timestamp:    now,
	}
	if err := s.db.Create(&prediction).Error; err != nil {
		http.Error(w, "Could not save prediction", http.StatusInternalServerError)
		return
	}
	if err := s.appendPredictionLog(logRecord{
		Matchup:   resp.Matchup,
		Predicted: resp.Predicted,
		Timestamp: now,
	}); err != nil {
		// The DB row is the source of truth; a log write failure is
		// not worth failing the request over.
		log.Printf("prediction log write failed: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) GETPredictions(w http.ResponseWriter, r *http.Request) {
	predictions := []Prediction{}
	if err := s.db.Order("timestamp DESC").Find(&predictions).Error; err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(predictions)
}

func (s *Server) PUTPredictionOutcome(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "predictionID"))
	if err != nil {
		http.Error(w, "Malformed prediction ID", http.StatusBadRequest)
		return
	}

	var req OutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if req.Actual != "Home Win" && req.Actual != "Away Win" {
		http.Error(w, "Actual must be Home Win or Away Win", http.StatusBadRequest)
		return
	}

	var prediction Prediction
	if err := s.db.First(&prediction, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Prediction not found", http.StatusNotFound)
		} else {
			http.Error(w, "Database error", http.StatusInternalServerError)
		}
		return
	}

	prediction.Actual = req.Actual
	if err := s.db.Save(&prediction).Error; err != nil {
		http.Error(w, "Could not update prediction", http.StatusInternalServerError)
		return
	}
	if err := s.rewritePredictionLog(); err != nil {
		// Same policy as predict: the DB row holds the outcome either way.
		log.Printf("prediction log rewrite failed: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prediction)
}

func (s *Server) POSTRefresh(w http.ResponseWriter, r *http.Request) {
	season := r.URL.Query().Get("season")
	if season == "" {
		season = s.season
	}
	if !validateSeason(season) {
		http.Error(w, "Malformed season", http.StatusBadRequest)
		return
	}

	if err := s.refreshData(r.Context(), season); err != nil {
		http.Error(w, fmt.Sprintf("Error refreshing data: %s", err.Error()), http.StatusBadGateway)
		return
	}

	snapshot, err := s.trainModel(season)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error training model: %s", err.Error()), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}

func (s *Server) GETModel(w http.ResponseWriter, r *http.Request) {
	snapshot, _, err := s.latestClassifier()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			json.NewEncoder(w).Encode(map[string]any{
				"trained":      false,
				"labelQuality": model.LabelQualityNone,
			})
			return
		}
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}
