package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StatFamily names a tracked stat family on a row
type StatFamily string

const (
	FamilyPrimary    StatFamily = "primary"
	FamilyMinutes    StatFamily = "minutes"
	FamilyUsage      StatFamily = "usage"
	FamilyShotVolume StatFamily = "shot_volume"
	FamilyRebounds   StatFamily = "rebounds"
	FamilyPlaymaking StatFamily = "playmaking"
)

// Injury statuses as reported by the row source
const (
	InjuryActive       = "active"
	InjuryQuestionable = "questionable"
	InjuryDoubtful     = "doubtful"
	InjuryOut          = "out"
)

// StatTriple is an (overall, conditional) average pair for one stat family.
// Conditional is the average when the row's condition holds (e.g. teammates out).
type StatTriple struct {
	Overall     float64 `json:"overall"`
	Conditional float64 `json:"conditional"`
}

// Boost returns conditional minus overall (signed)
func (t StatTriple) Boost() float64 {
	return t.Conditional - t.Overall
}

// DerivedStats holds the metrics that a recompute replaces wholesale
type DerivedStats struct {
	Hits       int        `json:"hits"`
	Attempts   int        `json:"attempts"`
	Streak     int        `json:"streak"`
	Primary    StatTriple `json:"primary"`
	Minutes    StatTriple `json:"minutes"`
	Usage      StatTriple `json:"usage"`
	ShotVolume StatTriple `json:"shot_volume"`
	Rebounds   StatTriple `json:"rebounds"`
	Playmaking StatTriple `json:"playmaking"`
}

// HitRate returns hits/attempts. ok is false when there are no attempts.
func (d DerivedStats) HitRate() (rate float64, ok bool) {
	if d.Attempts <= 0 {
		return 0, false
	}
	return float64(d.Hits) / float64(d.Attempts), true
}

// Family returns the triple for a stat family
func (d DerivedStats) Family(f StatFamily) StatTriple {
	switch f {
	case FamilyMinutes:
		return d.Minutes
	case FamilyUsage:
		return d.Usage
	case FamilyShotVolume:
		return d.ShotVolume
	case FamilyRebounds:
		return d.Rebounds
	case FamilyPlaymaking:
		return d.Playmaking
	default:
		return d.Primary
	}
}

// Validate checks attempts >= hits >= 0
func (d DerivedStats) Validate() error {
	if d.Hits < 0 {
		return fmt.Errorf("hits must be >= 0, got %d", d.Hits)
	}
	if d.Attempts < d.Hits {
		return fmt.Errorf("attempts (%d) must be >= hits (%d)", d.Attempts, d.Hits)
	}
	if d.Streak < 0 {
		return fmt.Errorf("streak must be >= 0, got %d", d.Streak)
	}
	return nil
}

// StatRow is one scoreable (player, market, line) observation.
// Rows are built fresh per fetch and never mutated afterwards.
type StatRow struct {
	// Identity
	RowID       string    `json:"row_id"` // storage identifier
	SportKey    string    `json:"sport_key"`
	PlayerID    string    `json:"player_id"`
	PlayerName  string    `json:"player_name"`
	TeamAbbr    string    `json:"team_abbr"`
	EventID     string    `json:"event_id"`
	GameDate    time.Time `json:"game_date"`
	Market      string    `json:"market"`
	Line        float64   `json:"line"`
	SelectionID string    `json:"selection_id,omitempty"`
	Window      string    `json:"window,omitempty"`

	Stats DerivedStats `json:"stats"`

	// Context
	MatchupRank     int      `json:"matchup_rank,omitempty"` // 1 = toughest defense, 0 = unknown
	InjuryStatus    string   `json:"injury_status,omitempty"`
	BackToBack      bool     `json:"back_to_back,omitempty"`
	TrendTags       []string `json:"trend_tags,omitempty"`
	BestPrice       *int     `json:"best_price,omitempty"` // American odds
	TeammatesOut    []string `json:"teammates_out,omitempty"`
	TeammateMinutes float64  `json:"teammate_minutes,omitempty"`
}

// Key returns the logical row key used for interaction state
func (r StatRow) Key() RowKey {
	return NewRowKey(r.PlayerID, r.Market, r.EventID)
}

// Validate checks identity fields and stat invariants
func (r StatRow) Validate() error {
	if r.PlayerID == "" {
		return fmt.Errorf("row %q: player_id is required", r.RowID)
	}
	if r.Market == "" {
		return fmt.Errorf("row %q: market is required", r.RowID)
	}
	if r.EventID == "" {
		return fmt.Errorf("row %q: event_id is required", r.RowID)
	}
	if err := r.Stats.Validate(); err != nil {
		return fmt.Errorf("row %q: %w", r.RowID, err)
	}
	return nil
}

// IsInjured reports whether the player is flagged anything other than active
func (r StatRow) IsInjured() bool {
	switch strings.ToLower(r.InjuryStatus) {
	case "", InjuryActive:
		return false
	default:
		return true
	}
}

// RowKey identifies a row across refreshes: playerId|market|gameId
type RowKey string

// NewRowKey builds a row key
func NewRowKey(playerID, market, eventID string) RowKey {
	return RowKey(playerID + "|" + market + "|" + eventID)
}

// GameEntity is the entity sentinel for non-player markets
const GameEntity = "game"

// LogicalID identifies a real-world betting line: event|entity|market|line
type LogicalID string

// NewLogicalID builds a logical identity. An empty entity maps to GameEntity.
func NewLogicalID(eventID, entityID, market string, line float64) LogicalID {
	if entityID == "" {
		entityID = GameEntity
	}
	return LogicalID(fmt.Sprintf("%s|%s|%s|%s",
		eventID, entityID, market, strconv.FormatFloat(line, 'f', -1, 64)))
}
