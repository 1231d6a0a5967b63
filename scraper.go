package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly"
)

// cellText returns the trimmed text of the i'th cell in a row.
func cellText(tds *goquery.Selection, i int) string {
	return strings.TrimSpace(tds.Eq(i).Text())
}

// scrapeSource pulls schedule and standings off public HTML pages.
// This was the data source in the drafts where both APIs were down or
// cost money; it is kept for the same reason.
type scrapeSource struct {
	scheduleURL  string
	standingsURL string
}

func newScrapeSource(scheduleURL, standingsURL string) *scrapeSource {
	return &scrapeSource{scheduleURL: scheduleURL, standingsURL: standingsURL}
}

func (s *scrapeSource) Name() string    { return "scrape" }
func (s *scrapeSource) Synthetic() bool { return false }

func newCollector() *colly.Collector {
	c := colly.NewCollector(
		// Make it look like Chrome
		colly.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) " +
			"Chrome/115.0.0.0 Safari/537.36"),
	)
	c.Async = true

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Cache-Control", "no-cache")
	})
	return c
}

func (s *scrapeSource) Schedule(ctx context.Context, season string) ([]Game, error) {
	c := newCollector()

	games := make([]Game, 0, 82)
	pk := int64(1)
	c.OnHTML("table.schedule tbody > tr", func(e *colly.HTMLElement) {
		tds := e.DOM.ChildrenFiltered("td")
		if tds.Length() < 4 {
			// Header or spacer row
			return
		}

		dateText := cellText(tds, 0)
		away := cellText(tds, 1)
		home := cellText(tds, 2)
		score := cellText(tds, 3)

		day, err := time.Parse("2006-01-02", dateText)
		if err != nil {
			return
		}
		if away == "" || home == "" {
			return
		}

		game := Game{
			GamePk:     pk,
			Season:     season,
			Date:       dateOf(day),
			HomeAbbrev: abbrevFor("", home),
			AwayAbbrev: abbrevFor("", away),
		}
		// Completed games render "away - home", upcoming ones a dash
		// or empty cell.
		if awayScore, homeScore, ok := parseScore(score); ok {
			game.AwayScore = awayScore
			game.HomeScore = homeScore
			game.Final = true
		}
		games = append(games, game)
		pk++
	})

	if err := c.Visit(s.scheduleURL); err != nil {
		return nil, err
	}
	c.Wait()

	if len(games) == 0 {
		return nil, fmt.Errorf("no games parsed from URL: %s", s.scheduleURL)
	}
	return games, nil
}

func (s *scrapeSource) Standings(ctx context.Context, season string) ([]TeamStats, error) {
	c := newCollector()

	stats := make([]TeamStats, 0, 32)
	c.OnHTML("table.standings tbody > tr", func(e *colly.HTMLElement) {
		tds := e.DOM.ChildrenFiltered("td")
		if tds.Length() < 6 {
			return
		}

		team := cellText(tds, 0)
		gp, _ := strconv.Atoi(cellText(tds, 1))
		wins, _ := strconv.Atoi(cellText(tds, 2))
		losses, _ := strconv.Atoi(cellText(tds, 3))
		gf, _ := strconv.Atoi(cellText(tds, 4))
		ga, _ := strconv.Atoi(cellText(tds, 5))

		if team == "" || gp == 0 {
			return
		}

		pointPct := 0.0
		if tds.Length() > 6 {
			pointPct = parseFloatOrZero(tds.Eq(6).Text())
		}

		stats = append(stats, TeamStats{
			Season:         season,
			Abbrev:         abbrevFor("", team),
			GamesPlayed:    gp,
			Wins:           wins,
			Losses:         losses,
			GoalsForPG:     float64(gf) / float64(gp),
			GoalsAgainstPG: float64(ga) / float64(gp),
			WinPct:         float64(wins) / float64(gp),
			PointPct:       pointPct,
		})
	})

	if err := c.Visit(s.standingsURL); err != nil {
		return nil, err
	}
	c.Wait()

	if len(stats) == 0 {
		return nil, fmt.Errorf("no standings parsed from URL: %s", s.standingsURL)
	}
	return stats, nil
}

// parseScore splits "3 - 2" into away and home scores.
func parseScore(s string) (away, home int, ok bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return a, h, true
}
