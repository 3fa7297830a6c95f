package rowstate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
)

var (
	// ErrUnknownRow is returned for keys not present in the current row set
	ErrUnknownRow = errors.New("unknown row")
	// ErrEmptyConditionSet is returned when a change would leave no condition selected
	ErrEmptyConditionSet = errors.New("condition set cannot be empty")
)

// Phase is where a row is in the recompute lifecycle
type Phase string

const (
	PhaseDefault       Phase = "default"
	PhaseRecalculating Phase = "recalculating"
	PhaseCommitted     Phase = "committed"
	PhaseRolledBack    Phase = "rolled_back"
)

// Selection is the user-controlled input to a row's derived stats
type Selection struct {
	Market       string   `json:"market"`
	Line         float64  `json:"line"`
	ConditionSet []string `json:"condition_set,omitempty"`
}

func (s Selection) clone() Selection {
	s.ConditionSet = append([]string(nil), s.ConditionSet...)
	return s
}

// State is the interaction state of one row
type State struct {
	Key       models.RowKey       `json:"key"`
	EntityID  string              `json:"entity_id"`
	EventID   string              `json:"event_id"`
	Selection Selection           `json:"selection"`
	Stats     models.DerivedStats `json:"stats"`
	Modified  bool                `json:"modified"`
	Phase     Phase               `json:"phase"`
	Seq       uint64              `json:"seq"`
	LastError string              `json:"last_error,omitempty"`
}

// Apply overlays the state's selection and stats on a source row
func (s State) Apply(row models.StatRow) models.StatRow {
	row.Market = s.Selection.Market
	row.Line = s.Selection.Line
	row.TeammatesOut = append([]string(nil), s.Selection.ConditionSet...)
	row.Stats = s.Stats
	return row
}

func (s State) clone() State {
	s.Selection = s.Selection.clone()
	return s
}

// snapshot is the last committed state, held while a recompute is pending
type snapshot struct {
	selection Selection
	stats     models.DerivedStats
	modified  bool
}

type entry struct {
	state     State
	source    models.StatRow
	committed *snapshot
}

// SyncResult summarizes a reconcile against a refreshed row set
type SyncResult struct {
	Added   int
	Reset   int
	Kept    int
	Dropped int
}

// Store owns the interaction state of every row in a sheet.
// All writes go through Sync, Stage, Commit, Rollback and Clear.
type Store struct {
	mu      sync.RWMutex
	entries map[models.RowKey]*entry
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		entries: make(map[models.RowKey]*entry),
	}
}

func defaultState(row models.StatRow) State {
	return State{
		Key:      row.Key(),
		EntityID: row.PlayerID,
		EventID:  row.EventID,
		Selection: Selection{
			Market:       row.Market,
			Line:         row.Line,
			ConditionSet: append([]string(nil), row.TeammatesOut...),
		},
		Stats: row.Stats,
		Phase: PhaseDefault,
	}
}

// Sync reconciles the store with a refreshed row set. Unmodified rows take
// the new defaults, modified rows keep their state verbatim, and rows missing
// from the set are dropped. When a key repeats, the first row wins.
func (s *Store) Sync(rows []models.StatRow) SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result SyncResult
	seen := make(map[models.RowKey]bool, len(rows))

	for _, row := range rows {
		key := row.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		e, exists := s.entries[key]
		switch {
		case !exists:
			s.entries[key] = &entry{state: defaultState(row), source: row}
			result.Added++
		case e.state.Modified:
			e.source = row
			result.Kept++
		default:
			// keep Seq monotonic so a late resolution stays stale
			seq := e.state.Seq
			e.state = defaultState(row)
			e.state.Seq = seq
			e.source = row
			e.committed = nil
			result.Reset++
		}
	}

	for key := range s.entries {
		if !seen[key] {
			delete(s.entries, key)
			result.Dropped++
		}
	}

	return result
}

// Stage records a new selection optimistically and returns its sequence
// number. The row enters the recalculating phase.
func (s *Store) Stage(key models.RowKey, sel Selection) (uint64, error) {
	st, err := s.StageWith(key, func(Selection) (Selection, error) { return sel, nil })
	return st.Seq, err
}

// StageWith derives the new selection from the current one and stages it
// under a single lock, so concurrent edits to one row each see the other.
// An error from edit leaves the row untouched. It returns the staged state.
func (s *Store) StageWith(key models.RowKey, edit func(current Selection) (Selection, error)) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return State{}, fmt.Errorf("stage %s: %w", key, ErrUnknownRow)
	}
	sel, err := edit(e.state.Selection.clone())
	if err != nil {
		return State{}, fmt.Errorf("stage %s: %w", key, err)
	}
	if len(sel.ConditionSet) == 0 && len(e.state.Selection.ConditionSet) > 0 {
		return State{}, fmt.Errorf("stage %s: %w", key, ErrEmptyConditionSet)
	}

	if e.committed == nil {
		e.committed = &snapshot{
			selection: e.state.Selection.clone(),
			stats:     e.state.Stats,
			modified:  e.state.Modified,
		}
	}

	e.state.Seq++
	e.state.Selection = sel.clone()
	e.state.Modified = true
	e.state.Phase = PhaseRecalculating
	e.state.LastError = ""

	return e.state.clone(), nil
}

// Commit applies recomputed stats if seq is still the latest for the row.
// It returns false for stale or unknown rows.
func (s *Store) Commit(key models.RowKey, seq uint64, stats models.DerivedStats) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.state.Seq != seq || e.state.Phase != PhaseRecalculating {
		return false
	}

	e.state.Stats = stats
	e.state.Phase = PhaseCommitted
	e.committed = nil
	return true
}

// Rollback reverts the row to its last committed state if seq is still the
// latest. It returns false for stale or unknown rows.
func (s *Store) Rollback(key models.RowKey, seq uint64, cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.state.Seq != seq || e.state.Phase != PhaseRecalculating {
		return false
	}

	if e.committed != nil {
		e.state.Selection = e.committed.selection
		e.state.Stats = e.committed.stats
		e.state.Modified = e.committed.modified
	}
	e.state.Phase = PhaseRolledBack
	if cause != nil {
		e.state.LastError = cause.Error()
	}
	e.committed = nil
	return true
}

// Clear resets a row to its source defaults. Any pending recompute for the
// row becomes stale.
func (s *Store) Clear(key models.RowKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return fmt.Errorf("clear %s: %w", key, ErrUnknownRow)
	}

	seq := e.state.Seq + 1
	e.state = defaultState(e.source)
	e.state.Seq = seq
	e.committed = nil
	return nil
}

// Get returns a copy of a row's state
func (s *Store) Get(key models.RowKey) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return State{}, false
	}
	return e.state.clone(), true
}

// Snapshot returns a copy of every row's state
func (s *Store) Snapshot() map[models.RowKey]State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[models.RowKey]State, len(s.entries))
	for key, e := range s.entries {
		out[key] = e.state.clone()
	}
	return out
}

// Len returns the number of tracked rows
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
