package recompute

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/metrics"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/rowstate"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
)

// ErrInvalidChange is returned for a change that cannot be staged
var ErrInvalidChange = errors.New("invalid change")

// Result is how a recompute resolved
type Result string

const (
	ResultCommitted  Result = metrics.OutcomeCommitted
	ResultRolledBack Result = metrics.OutcomeRolledBack
	ResultStale      Result = metrics.OutcomeStale
)

// Change is a user edit to a row's selectors. Nil fields are left as they
// are; a non-nil empty ConditionSet is rejected.
type Change struct {
	Market       *string  `json:"market,omitempty"`
	Line         *float64 `json:"line,omitempty"`
	ConditionSet []string `json:"condition_set,omitempty"`
}

// Outcome is the resolution of one staged change
type Outcome struct {
	Key    models.RowKey `json:"key"`
	Seq    uint64        `json:"seq"`
	Result Result        `json:"result"`
	Err    error         `json:"-"`
}

// Pending tracks a staged change until its recompute resolves
type Pending struct {
	Key   models.RowKey
	Seq   uint64
	State rowstate.State // optimistic state right after staging

	done    chan struct{}
	outcome Outcome
}

// Done is closed once the recompute has resolved
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the recompute resolves
func (p *Pending) Wait() Outcome {
	<-p.done
	return p.outcome
}

// Coordinator stages user changes optimistically and reconciles them with
// the recompute service. It is the only writer of per-row recompute state.
type Coordinator struct {
	store      *rowstate.Store
	recomputer contracts.Recomputer
	sportKey   string
	metrics    *metrics.SheetMetrics
	logger     zerolog.Logger

	wg sync.WaitGroup
}

// NewCoordinator creates a coordinator writing into store
func NewCoordinator(store *rowstate.Store, recomputer contracts.Recomputer, sportKey string, m *metrics.SheetMetrics, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:      store,
		recomputer: recomputer,
		sportKey:   sportKey,
		metrics:    m,
		logger:     logger.With().Str("component", "recompute").Logger(),
	}
}

// Change stages the edit immediately and starts the recompute in the
// background. A rejected change makes no recompute call.
func (c *Coordinator) Change(ctx context.Context, key models.RowKey, change Change) (*Pending, error) {
	staged, err := c.store.StageWith(key, func(current rowstate.Selection) (rowstate.Selection, error) {
		return merge(current, change)
	})
	if err != nil {
		return nil, fmt.Errorf("change: %w", err)
	}

	p := &Pending{
		Key:   key,
		Seq:   staged.Seq,
		State: staged,
		done:  make(chan struct{}),
	}

	sel := staged.Selection
	req := contracts.RecomputeRequest{
		SportKey:     c.sportKey,
		EntityID:     staged.EntityID,
		EventID:      staged.EventID,
		ConditionSet: sel.ConditionSet,
		Market:       sel.Market,
		Line:         sel.Line,
	}

	// the request outlives the caller; superseded calls are discarded, not cancelled
	c.wg.Add(1)
	go c.resolve(context.WithoutCancel(ctx), req, p, time.Now())

	return p, nil
}

func (c *Coordinator) resolve(ctx context.Context, req contracts.RecomputeRequest, p *Pending, started time.Time) {
	defer c.wg.Done()
	defer close(p.done)

	stats, err := c.recomputer.Recompute(ctx, req)
	if err == nil {
		if verr := stats.Validate(); verr != nil {
			err = fmt.Errorf("recompute returned invalid stats: %w", verr)
		}
	}

	result := ResultStale
	switch {
	case err != nil:
		if c.store.Rollback(p.Key, p.Seq, err) {
			result = ResultRolledBack
		}
	default:
		if c.store.Commit(p.Key, p.Seq, stats) {
			result = ResultCommitted
		}
	}

	p.outcome = Outcome{Key: p.Key, Seq: p.Seq, Result: result, Err: err}
	c.metrics.ObserveRecompute(string(result), time.Since(started))

	event := c.logger.Debug()
	if result == ResultRolledBack {
		event = c.logger.Warn().Err(err)
	}
	event.
		Str("row", string(p.Key)).
		Uint64("seq", p.Seq).
		Str("result", string(result)).
		Dur("elapsed", time.Since(started)).
		Msg("recompute resolved")
}

// Reset clears a row back to its source defaults. Any pending recompute
// for it resolves as stale.
func (c *Coordinator) Reset(key models.RowKey) error {
	return c.store.Clear(key)
}

// Wait blocks until every in-flight recompute has resolved
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func merge(sel rowstate.Selection, change Change) (rowstate.Selection, error) {
	if change.Market != nil {
		if *change.Market == "" {
			return sel, fmt.Errorf("%w: market cannot be empty", ErrInvalidChange)
		}
		sel.Market = *change.Market
	}
	if change.Line != nil {
		line := *change.Line
		if math.IsNaN(line) || math.IsInf(line, 0) || line < 0 {
			return sel, fmt.Errorf("%w: line must be a non-negative number", ErrInvalidChange)
		}
		sel.Line = line
	}
	if change.ConditionSet != nil {
		if len(change.ConditionSet) == 0 {
			return sel, rowstate.ErrEmptyConditionSet
		}
		sel.ConditionSet = append([]string(nil), change.ConditionSet...)
	}
	return sel, nil
}
