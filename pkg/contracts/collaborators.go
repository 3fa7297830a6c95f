package contracts

import (
	"context"
	"time"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
)

// Scope selects the rows a sheet shows
type Scope struct {
	SportKey string
	Sheet    string
	Date     time.Time // zero = all dates
	Markets  []string  // empty = all markets
}

// Batch is one load from a RowSource. Skipped counts rows the source
// dropped as malformed before they reached the caller.
type Batch struct {
	Rows    []models.StatRow
	Skipped int
}

// RowSource supplies the current full row set for a scope.
// Every call returns a wholesale replacement set.
type RowSource interface {
	Load(ctx context.Context, scope Scope) (Batch, error)
}

// RecomputeRequest carries the selector values for one recompute call
type RecomputeRequest struct {
	SportKey     string   `json:"sport_key"`
	EntityID     string   `json:"entity_id"`
	EventID      string   `json:"event_id"`
	ConditionSet []string `json:"condition_set"`
	Market       string   `json:"market"`
	Line         float64  `json:"line"`
}

// Recomputer recomputes a row's derived stats for new selector values.
// Implementations must be idempotent per identical input and safe to call
// concurrently for different rows.
type Recomputer interface {
	Recompute(ctx context.Context, req RecomputeRequest) (models.DerivedStats, error)
}

// PriceLookup returns best-available American prices keyed by selection id.
// Selections with no price are absent from the result.
type PriceLookup interface {
	BestPrices(ctx context.Context, sportKey string, selectionIDs []string) (map[string]int, error)
}

// IdentityRecord is one storage identifier with its logical identity parts
type IdentityRecord struct {
	StorageID string  `db:"id"`
	EventID   string  `db:"event_id"`
	EntityID  string  `db:"entity_id"`
	Market    string  `db:"market"`
	Line      float64 `db:"line"`
}

// IdentityStore lists storage identifiers for the duplicate auditor
type IdentityStore interface {
	ListIdentities(ctx context.Context, sportKey, market string) ([]IdentityRecord, error)
}

// RankIndex exposes the user-visible ranked ordering of storage identifiers
type RankIndex interface {
	Ranked(ctx context.Context, sportKey string, limit int64) ([]string, error)
}

// RankPublisher replaces the ranked ordering of storage identifiers
type RankPublisher interface {
	Publish(ctx context.Context, sportKey string, ids []string) error
}
