package filter

import (
	"strings"
	"time"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
)

// Matchup buckets, by the 30-team defensive rank
const (
	MatchupAll       = "all"
	MatchupFavorable = "favorable" // ranks 21-30
	MatchupNeutral   = "neutral"   // ranks 11-20
	MatchupTough     = "tough"     // ranks 1-10
)

// State is the user-controlled filter configuration for one sheet.
// Zero values mean "off" for every predicate.
type State struct {
	Window         string         `json:"window,omitempty"`
	MinHitRate     *float64       `json:"min_hit_rate,omitempty"`
	OddsFloor      *int           `json:"odds_floor,omitempty"`
	OddsCeiling    *int           `json:"odds_ceiling,omitempty"`
	Markets        []string       `json:"markets,omitempty"`
	Matchup        string         `json:"matchup,omitempty"`
	Grades         []models.Grade `json:"grades,omitempty"`
	HideInjured    bool           `json:"hide_injured,omitempty"`
	HideBackToBack bool           `json:"hide_back_to_back,omitempty"`
	HideNoPrice    bool           `json:"hide_no_price,omitempty"`
	Trends         []string       `json:"trends,omitempty"`
	DateFrom       time.Time      `json:"date_from,omitempty"`
	DateTo         time.Time      `json:"date_to,omitempty"`
}

// Normalize returns a copy with an empty market set replaced by the
// sheet's default markets and an empty matchup set to "all"
func (s State) Normalize(defaultMarkets []string) State {
	if len(s.Markets) == 0 {
		s.Markets = append([]string(nil), defaultMarkets...)
	}
	if s.Matchup == "" {
		s.Matchup = MatchupAll
	}
	return s
}

// predicate is one named filter. active reports whether it is switched on;
// test is only evaluated for active predicates.
type predicate struct {
	name   string
	active func(s State) bool
	test   func(v models.RowView, s State) bool
}

var predicates = []predicate{
	{
		name:   "window",
		active: func(s State) bool { return s.Window != "" },
		test:   func(v models.RowView, s State) bool { return v.Row.Window == s.Window },
	},
	{
		name:   "min_hit_rate",
		active: func(s State) bool { return s.MinHitRate != nil },
		test: func(v models.RowView, s State) bool {
			rate, ok := v.Row.Stats.HitRate()
			return ok && rate >= *s.MinHitRate
		},
	},
	{
		// Rows with no price are governed by hide_no_price only
		name:   "odds_range",
		active: func(s State) bool { return s.OddsFloor != nil || s.OddsCeiling != nil },
		test: func(v models.RowView, s State) bool {
			if v.Price == nil {
				return true
			}
			if s.OddsFloor != nil && *v.Price < *s.OddsFloor {
				return false
			}
			if s.OddsCeiling != nil && *v.Price > *s.OddsCeiling {
				return false
			}
			return true
		},
	},
	{
		name:   "markets",
		active: func(s State) bool { return len(s.Markets) > 0 },
		test:   func(v models.RowView, s State) bool { return contains(s.Markets, v.LoadedMarket()) },
	},
	{
		name:   "matchup",
		active: func(s State) bool { return s.Matchup != "" && s.Matchup != MatchupAll },
		test:   func(v models.RowView, s State) bool { return MatchupBucket(v.Row.MatchupRank) == s.Matchup },
	},
	{
		name:   "grades",
		active: func(s State) bool { return len(s.Grades) > 0 },
		test: func(v models.RowView, s State) bool {
			for _, g := range s.Grades {
				if g == v.Score.Grade {
					return true
				}
			}
			return false
		},
	},
	{
		name:   "injured",
		active: func(s State) bool { return s.HideInjured },
		test:   func(v models.RowView, s State) bool { return !v.Row.IsInjured() },
	},
	{
		name:   "back_to_back",
		active: func(s State) bool { return s.HideBackToBack },
		test:   func(v models.RowView, s State) bool { return !v.Row.BackToBack },
	},
	{
		name:   "no_price",
		active: func(s State) bool { return s.HideNoPrice },
		test:   func(v models.RowView, s State) bool { return v.HasPrice() },
	},
	{
		name:   "trends",
		active: func(s State) bool { return len(s.Trends) > 0 },
		test: func(v models.RowView, s State) bool {
			for _, tag := range v.Row.TrendTags {
				if contains(s.Trends, tag) {
					return true
				}
			}
			return false
		},
	},
	{
		name:   "date_scope",
		active: func(s State) bool { return !s.DateFrom.IsZero() || !s.DateTo.IsZero() },
		test: func(v models.RowView, s State) bool {
			day := truncateDay(v.Row.GameDate)
			if !s.DateFrom.IsZero() && day.Before(truncateDay(s.DateFrom)) {
				return false
			}
			if !s.DateTo.IsZero() && day.After(truncateDay(s.DateTo)) {
				return false
			}
			return true
		},
	},
}

// Passes reports whether a row view satisfies every active predicate
func Passes(v models.RowView, s State) bool {
	for _, p := range predicates {
		if !p.active(s) {
			continue
		}
		if !p.test(v, s) {
			return false
		}
	}
	return true
}

// Explain returns the names of the active predicates a row view fails
func Explain(v models.RowView, s State) []string {
	var failed []string
	for _, p := range predicates {
		if p.active(s) && !p.test(v, s) {
			failed = append(failed, p.name)
		}
	}
	return failed
}

// Apply returns the views that pass, preserving input order.
// The input slice is not modified.
func Apply(views []models.RowView, s State) []models.RowView {
	filtered := make([]models.RowView, 0, len(views))
	for _, v := range views {
		if Passes(v, s) {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// MatchupBucket maps a defensive rank to its bucket; unknown ranks have none
func MatchupBucket(rank int) string {
	switch {
	case rank <= 0 || rank > 30:
		return ""
	case rank > 20:
		return MatchupFavorable
	case rank > 10:
		return MatchupNeutral
	default:
		return MatchupTough
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
