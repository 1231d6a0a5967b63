package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func serveFixture(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fixture, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		content, err := os.ReadFile(filepath.Join("testdata", fixture))
		assert.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		w.Write(content)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNHLStatsSource_Schedule(t *testing.T) {
	server := serveFixture(t, map[string]string{
		"/schedule": "schedule.json",
	})

	source := newNHLStatsSource(server.URL)
	games, err := source.Schedule(context.Background(), "20232024")
	assert.NoError(t, err)
	assert.Len(t, games, 3)

	assert.Equal(t, int64(2023020001), games[0].GamePk)
	assert.Equal(t, "BOS", games[0].HomeAbbrev)
	assert.Equal(t, "CHI", games[0].AwayAbbrev)
	assert.Equal(t, 3, games[0].HomeScore)
	assert.Equal(t, 2, games[0].AwayScore)
	assert.True(t, games[0].Final)

	// Second game carries no abbreviations; names map through.
	assert.Equal(t, "TOR", games[1].HomeAbbrev)
	assert.Equal(t, "MTL", games[1].AwayAbbrev)

	// Upcoming game has no scores and is not final.
	assert.False(t, games[2].Final)
	assert.Equal(t, 0, games[2].HomeScore)
}

func TestNHLStatsSource_Standings(t *testing.T) {
	server := serveFixture(t, map[string]string{
		"/standings": "standings.json",
	})

	source := newNHLStatsSource(server.URL)
	stats, err := source.Standings(context.Background(), "20232024")
	assert.NoError(t, err)
	assert.Len(t, stats, 3)

	assert.Equal(t, "BOS", stats[0].Abbrev)
	assert.Equal(t, 82, stats[0].GamesPlayed)
	assert.Equal(t, 50, stats[0].Wins)
	assert.InDelta(t, 267.0/82.0, stats[0].GoalsForPG, 1e-9)
	assert.InDelta(t, 224.0/82.0, stats[0].GoalsAgainstPG, 1e-9)
	assert.InDelta(t, 50.0/82.0, stats[0].WinPct, 1e-9)
	assert.InDelta(t, 0.665, stats[0].PointPct, 1e-9)

	// Third record has no abbreviation on the wire.
	assert.Equal(t, "CHI", stats[2].Abbrev)
}

func TestRapidAPISource(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-RapidAPI-Key")
		var fixture string
		switch r.URL.Path {
		case "/Games/20232024":
			fixture = "rapid-games.json"
		case "/Standings/20232024":
			fixture = "rapid-standings.json"
		default:
			http.NotFound(w, r)
			return
		}
		content, err := os.ReadFile(filepath.Join("testdata", fixture))
		assert.NoError(t, err)
		w.Write(content)
	}))
	defer server.Close()

	source := newRapidAPISource(server.URL, "test-key")

	games, err := source.Schedule(context.Background(), "20232024")
	assert.NoError(t, err)
	assert.Equal(t, "test-key", gotKey)
	assert.Len(t, games, 3)
	assert.Equal(t, "BOS", games[0].HomeAbbrev)
	assert.True(t, games[0].Final)
	assert.False(t, games[2].Final)

	stats, err := source.Standings(context.Background(), "20232024")
	assert.NoError(t, err)
	assert.Len(t, stats, 2)
	assert.Equal(t, "TOR", stats[1].Abbrev)
	assert.InDelta(t, 0.628, stats[1].PointPct, 1e-9)
}

func TestFetchJSONRetriesOnce(t *testing.T) {
	oldDelay := retryDelay
	retryDelay = 10 * time.Millisecond
	defer func() { retryDelay = oldDelay }()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
			return
		}
		content, err := os.ReadFile(filepath.Join("testdata", "schedule.json"))
		assert.NoError(t, err)
		w.Write(content)
	}))
	defer server.Close()

	source := newNHLStatsSource(server.URL)
	games, err := source.Schedule(context.Background(), "20232024")
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Len(t, games, 3)
}

func TestFetchJSONGivesUpAfterRetry(t *testing.T) {
	oldDelay := retryDelay
	retryDelay = 10 * time.Millisecond
	defer func() { retryDelay = oldDelay }()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	source := newNHLStatsSource(server.URL)
	_, err := source.Schedule(context.Background(), "20232024")
	assert.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestSyntheticSource(t *testing.T) {
	source := newSyntheticSource(7)
	assert.True(t, source.Synthetic())

	games, err := source.Schedule(context.Background(), "20232024")
	assert.NoError(t, err)
	assert.NotEmpty(t, games)
	for _, g := range games {
		assert.True(t, g.Final)
		assert.NotEqual(t, g.HomeAbbrev, g.AwayAbbrev)
	}

	stats, err := source.Standings(context.Background(), "20232024")
	assert.NoError(t, err)
	assert.Len(t, stats, len(allTeamAbbrevs()))

	// Seeded: two sources with the same seed generate the same season.
	again, err := newSyntheticSource(7).Schedule(context.Background(), "20232024")
	assert.NoError(t, err)
	assert.Equal(t, games, again)
}

func TestSyntheticSourceNanoSeed(t *testing.T) {
	// Wall-clock seeds must not overflow into negative game keys.
	source := newSyntheticSource(time.Now().UnixNano())
	games, err := source.Schedule(context.Background(), "20232024")
	assert.NoError(t, err)
	for _, g := range games {
		assert.Greater(t, g.GamePk, int64(0))
	}
}
