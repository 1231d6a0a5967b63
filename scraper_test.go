package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveHTML(t *testing.T, fixture string) *httptest.Server {
	t.Helper()
	path := filepath.Join("testdata", fixture)
	htmlContent, err := os.ReadFile(path)
	assert.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(htmlContent)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestScrapeSource_Schedule(t *testing.T) {
	server := serveHTML(t, "schedule.html")

	source := newScrapeSource(server.URL, server.URL)
	games, err := source.Schedule(context.Background(), "20232024")
	assert.NoError(t, err)
	assert.Len(t, games, 3)

	assert.Equal(t, "BOS", games[0].HomeAbbrev)
	assert.Equal(t, "CHI", games[0].AwayAbbrev)
	assert.Equal(t, 3, games[0].HomeScore)
	assert.Equal(t, 2, games[0].AwayScore)
	assert.True(t, games[0].Final)

	assert.Equal(t, "TOR", games[1].HomeAbbrev)
	assert.Equal(t, "MTL", games[1].AwayAbbrev)
	assert.Equal(t, 1, games[1].HomeScore)
	assert.Equal(t, 4, games[1].AwayScore)

	// Unplayed game renders a dash for the score.
	assert.False(t, games[2].Final)
	assert.Equal(t, "NYR", games[2].HomeAbbrev)
	assert.Equal(t, "WSH", games[2].AwayAbbrev)
}

func TestScrapeSource_Standings(t *testing.T) {
	server := serveHTML(t, "standings.html")

	source := newScrapeSource(server.URL, server.URL)
	stats, err := source.Standings(context.Background(), "20232024")
	assert.NoError(t, err)
	assert.Len(t, stats, 3)

	assert.Equal(t, "BOS", stats[0].Abbrev)
	assert.Equal(t, 82, stats[0].GamesPlayed)
	assert.Equal(t, 50, stats[0].Wins)
	assert.Equal(t, 25, stats[0].Losses)
	assert.InDelta(t, 267.0/82.0, stats[0].GoalsForPG, 1e-9)
	assert.InDelta(t, 224.0/82.0, stats[0].GoalsAgainstPG, 1e-9)
	assert.InDelta(t, 0.665, stats[0].PointPct, 1e-9)

	assert.Equal(t, "CHI", stats[2].Abbrev)
	assert.InDelta(t, 0.317, stats[2].PointPct, 1e-9)
}

func TestScrapeSource_EmptyPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>maintenance</p></body></html>"))
	}))
	defer server.Close()

	source := newScrapeSource(server.URL, server.URL)
	_, err := source.Schedule(context.Background(), "20232024")
	assert.Error(t, err)
	_, err = source.Standings(context.Background(), "20232024")
	assert.Error(t, err)
}

func TestParseScore(t *testing.T) {
	away, home, ok := parseScore("2 - 3")
	assert.True(t, ok)
	assert.Equal(t, 2, away)
	assert.Equal(t, 3, home)

	_, _, ok = parseScore("")
	assert.False(t, ok)
	_, _, ok = parseScore("TBD")
	assert.False(t, ok)
}
