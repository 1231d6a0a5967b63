package main

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// teamAbbrevs maps full franchise names to the canonical
// abbreviation. Sources that only carry names go through this.
var teamAbbrevs = map[string]string{
	"Anaheim Ducks": "ANA", "Boston Bruins": "BOS", "Buffalo Sabres": "BUF",
	"Calgary Flames": "CGY", "Carolina Hurricanes": "CAR", "Chicago Blackhawks": "CHI",
	"Colorado Avalanche": "COL", "Columbus Blue Jackets": "CBJ", "Dallas Stars": "DAL",
	"Detroit Red Wings": "DET", "Edmonton Oilers": "EDM", "Florida Panthers": "FLA",
	"Los Angeles Kings": "LAK", "Minnesota Wild": "MIN", "Montreal Canadiens": "MTL",
	"Montréal Canadiens": "MTL", "Nashville Predators": "NSH", "New Jersey Devils": "NJD",
	"New York Islanders": "NYI", "New York Rangers": "NYR", "Ottawa Senators": "OTT",
	"Philadelphia Flyers": "PHI", "Pittsburgh Penguins": "PIT", "San Jose Sharks": "SJS",
	"Seattle Kraken": "SEA", "St. Louis Blues": "STL", "Tampa Bay Lightning": "TBL",
	"Toronto Maple Leafs": "TOR", "Utah Hockey Club": "UTA", "Vancouver Canucks": "VAN",
	"Vegas Golden Knights": "VGK", "Washington Capitals": "WSH", "Winnipeg Jets": "WPG",
}

// abbrevFor prefers the wire abbreviation, falls back to the name map,
// and as a last resort sanitizes the raw name so the row is still
// usable.
func abbrevFor(abbrev, name string) string {
	if abbrev != "" {
		return strings.ToUpper(abbrev)
	}
	if ab, ok := teamAbbrevs[name]; ok {
		return ab
	}
	return strings.ToUpper(basicSanitize(name))
}

func allTeamAbbrevs() []string {
	seen := make(map[string]bool, len(teamAbbrevs))
	out := make([]string, 0, len(teamAbbrevs))
	for _, ab := range teamAbbrevs {
		if !seen[ab] {
			seen[ab] = true
			out = append(out, ab)
		}
	}
	sort.Strings(out)
	return out
}

func basicSanitize(input string) string {
	reg := regexp.MustCompile(`[^a-zA-Z0-9 \-]+`)
	safe := reg.ReplaceAllString(input, "")
	return strings.Trim(safe, "-")
}

// validateSeason accepts the NHL eight-digit form, e.g. "20232024".
func validateSeason(season string) bool {
	if len(season) != 8 {
		return false
	}
	start, err1 := strconv.Atoi(season[:4])
	end, err2 := strconv.Atoi(season[4:])
	if err1 != nil || err2 != nil {
		return false
	}
	return end == start+1 && start >= 1917 && start <= 2100
}

// seasonStart returns the nominal opening day (Oct 1) for a season
// string; used only to lay out generated schedules.
func seasonStart(season string) time.Time {
	year := time.Now().Year()
	if len(season) == 8 {
		if y, err := strconv.Atoi(season[:4]); err == nil {
			year = y
		}
	}
	return time.Date(year, time.October, 1, 0, 0, 0, 0, time.UTC)
}

// currentSeason returns the season in progress: the year rolls over in
// July.
func currentSeason(now time.Time) string {
	y := now.Year()
	if now.Month() < time.July {
		y--
	}
	return strconv.Itoa(y) + strconv.Itoa(y+1)
}

func dateOf(t time.Time) datatypes.Date {
	return datatypes.Date(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
}

func parseFloatOrZero(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique index")
}
