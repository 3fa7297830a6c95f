package sheet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/filter"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/metrics"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/ranking"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/recompute"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/rowstate"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/scoring"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
)

// ErrUnknownSheet is returned for sheet names with no session
var ErrUnknownSheet = errors.New("unknown sheet")

// Options configures a Session
type Options struct {
	Name           string
	SportKey       string
	Profile        scoring.Profile
	DefaultMarkets []string // used when the filter names no markets
	LoadMarkets    []string // scope of each refresh; empty loads every market
	KeyStat        func(market string) models.StatFamily

	Source     contracts.RowSource
	Prices     contracts.PriceLookup // optional
	Recomputer contracts.Recomputer
	Publisher  contracts.RankPublisher // optional

	Metrics *metrics.SheetMetrics
	Logger  zerolog.Logger
}

// RefreshResult summarizes one refresh. Skipped counts malformed rows
// dropped by the source or the session; Collapsed counts rows dropped
// because an earlier row in the batch had the same key.
type RefreshResult struct {
	Loaded      int                 `json:"loaded"`
	Skipped     int                 `json:"skipped"`
	Collapsed   int                 `json:"collapsed"`
	Priced      int                 `json:"priced"`
	Sync        rowstate.SyncResult `json:"sync"`
	RefreshedAt time.Time           `json:"refreshed_at"`
}

// HiddenRow is a row the filter removed and the predicates it failed
type HiddenRow struct {
	Key    models.RowKey `json:"key"`
	RowID  string        `json:"row_id"`
	Failed []string      `json:"failed"`
}

// ViewRequest is what the caller wants to see
type ViewRequest struct {
	Filter filter.State
	Sort   ranking.SortKey   // empty uses the remembered sort
	Dir    ranking.Direction // empty uses the remembered direction for Sort
}

// Session is one sheet's working set: the current rows, their interaction
// state, pins and sort memory
type Session struct {
	name           string
	sportKey       string
	profile        scoring.Profile
	defaultMarkets []string
	loadMarkets    []string
	keyStat        func(market string) models.StatFamily

	source    contracts.RowSource
	prices    contracts.PriceLookup
	publisher contracts.RankPublisher

	store *rowstate.Store
	coord *recompute.Coordinator
	pins  *ranking.PinSet
	sort  *ranking.SortState

	metrics *metrics.SheetMetrics
	logger  zerolog.Logger

	mu          sync.RWMutex
	rows        map[models.RowKey]models.StatRow
	order       []models.RowKey
	priceBySel  map[string]int
	refreshedAt time.Time
}

// New creates a session. Rows are empty until the first Refresh.
func New(opts Options) *Session {
	keyStat := opts.KeyStat
	if keyStat == nil {
		keyStat = func(string) models.StatFamily { return models.FamilyPrimary }
	}
	logger := opts.Logger.With().Str("sheet", opts.Name).Logger()
	store := rowstate.NewStore()

	return &Session{
		name:           opts.Name,
		sportKey:       opts.SportKey,
		profile:        opts.Profile,
		defaultMarkets: append([]string(nil), opts.DefaultMarkets...),
		loadMarkets:    append([]string(nil), opts.LoadMarkets...),
		keyStat:        keyStat,
		source:         opts.Source,
		prices:         opts.Prices,
		publisher:      opts.Publisher,
		store:          store,
		coord:          recompute.NewCoordinator(store, opts.Recomputer, opts.SportKey, opts.Metrics, logger),
		pins:           ranking.NewPinSet(),
		sort:           ranking.NewSortState(ranking.SortConfidence),
		metrics:        opts.Metrics,
		logger:         logger,
		rows:           make(map[models.RowKey]models.StatRow),
		priceBySel:     make(map[string]int),
	}
}

// Name returns the sheet name
func (s *Session) Name() string { return s.name }

// Profile returns the scoring profile in use
func (s *Session) Profile() scoring.Profile { return s.profile }

// Refresh replaces the row set from the source. A source failure fails the
// refresh and leaves the previous rows in place; a price lookup failure
// only leaves rows unpriced.
func (s *Session) Refresh(ctx context.Context, date time.Time) (RefreshResult, error) {
	batch, err := s.source.Load(ctx, contracts.Scope{
		SportKey: s.sportKey,
		Sheet:    s.name,
		Date:     date,
		Markets:  s.loadMarkets,
	})
	if err != nil {
		return RefreshResult{}, fmt.Errorf("refresh %s: %w", s.name, err)
	}

	result := RefreshResult{Skipped: batch.Skipped}
	rows := make(map[models.RowKey]models.StatRow, len(batch.Rows))
	order := make([]models.RowKey, 0, len(batch.Rows))
	valid := make([]models.StatRow, 0, len(batch.Rows))
	var selections []string

	for _, row := range batch.Rows {
		if err := row.Validate(); err != nil {
			result.Skipped++
			s.logger.Warn().Err(err).Str("row_id", row.RowID).Msg("skipping malformed row")
			continue
		}
		key := row.Key()
		if kept, dup := rows[key]; dup {
			result.Collapsed++
			s.logger.Warn().
				Str("key", string(key)).
				Str("kept_row_id", kept.RowID).
				Str("row_id", row.RowID).
				Msg("collapsing row with duplicate key")
			continue
		}
		rows[key] = row
		order = append(order, key)
		valid = append(valid, row)
		if row.SelectionID != "" {
			selections = append(selections, row.SelectionID)
		}
	}

	prices := s.lookupPrices(ctx, selections)

	result.Loaded = len(valid)
	result.Priced = len(prices)
	result.Sync = s.store.Sync(valid)
	result.RefreshedAt = time.Now().UTC()

	keep := make(map[models.RowKey]bool, len(order))
	for _, k := range order {
		keep[k] = true
	}
	s.pins.Retain(keep)

	s.mu.Lock()
	s.rows = rows
	s.order = order
	s.priceBySel = prices
	s.refreshedAt = result.RefreshedAt
	s.mu.Unlock()

	s.metrics.ObserveRefresh(s.name, result.Loaded, result.Skipped)
	s.metrics.ObserveCollapsed(s.name, result.Collapsed)
	s.logger.Info().
		Int("loaded", result.Loaded).
		Int("skipped", result.Skipped).
		Int("collapsed", result.Collapsed).
		Int("priced", result.Priced).
		Int("kept_modified", result.Sync.Kept).
		Int("dropped", result.Sync.Dropped).
		Msg("sheet refreshed")

	s.publish(ctx)

	return result, nil
}

func (s *Session) lookupPrices(ctx context.Context, selections []string) map[string]int {
	if s.prices == nil || len(selections) == 0 {
		return map[string]int{}
	}
	prices, err := s.prices.BestPrices(ctx, s.sportKey, selections)
	if err != nil {
		s.logger.Warn().Err(err).Msg("price lookup failed, rows left unpriced")
		return map[string]int{}
	}
	return prices
}

// publish writes the default ranking so the duplicate auditor can compare
// it with storage
func (s *Session) publish(ctx context.Context) {
	if s.publisher == nil {
		return
	}
	views := s.View(ViewRequest{})
	ids := make([]string, len(views))
	for i, v := range views {
		ids[i] = v.Row.RowID
	}
	if err := s.publisher.Publish(ctx, s.sportKey, ids); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish ranking")
	}
}

// View builds the visible, ordered rows for a request
func (s *Session) View(req ViewRequest) []models.RowView {
	views := s.views()

	state := req.Filter.Normalize(s.defaultMarkets)
	visible := filter.Apply(views, state)

	key, dir := s.sort.Current()
	if req.Sort != "" {
		key = req.Sort
		dir = req.Dir
		if dir == "" {
			dir = ranking.DefaultDirection(key)
		}
	}

	ordered := ranking.Order(visible, s.pins, key, dir, state.HideNoPrice)
	s.metrics.SetVisible(s.name, len(ordered))
	return ordered
}

// Hidden lists the rows the request's filter removes, in source order,
// with the predicates each one failed
func (s *Session) Hidden(req ViewRequest) []HiddenRow {
	state := req.Filter.Normalize(s.defaultMarkets)

	var hidden []HiddenRow
	for _, v := range s.views() {
		failed := filter.Explain(v, state)
		if len(failed) == 0 {
			continue
		}
		hidden = append(hidden, HiddenRow{Key: v.Key, RowID: v.Row.RowID, Failed: failed})
	}
	return hidden
}

// views applies interaction state and scores every row, in source order
func (s *Session) views() []models.RowView {
	states := s.store.Snapshot()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.RowView, 0, len(s.order))
	for _, key := range s.order {
		src := s.rows[key]
		row := src
		st, ok := states[key]
		if ok {
			row = st.Apply(src)
		}

		price := s.priceFor(src, row)
		v := models.RowView{
			Key:          key,
			Row:          row,
			SourceMarket: src.Market,
			Score:        scoring.Score(row, price, s.profile),
			Price:        price,
			KeyStat:      s.keyStat(row.Market),
			Phase:        string(rowstate.PhaseDefault),
		}
		if ok {
			v.Modified = st.Modified
			v.Phase = string(st.Phase)
			v.Error = st.LastError
		}
		out = append(out, v)
	}
	return out
}

// priceFor returns the best price for the row's selection. A row switched
// to another market has no known price.
func (s *Session) priceFor(src, row models.StatRow) *int {
	if row.Market != src.Market || row.Line != src.Line {
		return nil
	}
	if p, ok := s.priceBySel[src.SelectionID]; ok && src.SelectionID != "" {
		return &p
	}
	if src.BestPrice != nil {
		p := *src.BestPrice
		return &p
	}
	return nil
}

// Change stages a selector change and recomputes in the background
func (s *Session) Change(ctx context.Context, key models.RowKey, change recompute.Change) (*recompute.Pending, error) {
	return s.coord.Change(ctx, key, change)
}

// Reset clears a row's customization
func (s *Session) Reset(key models.RowKey) error {
	return s.coord.Reset(key)
}

// Pin keeps a row in place while it is being edited
func (s *Session) Pin(key models.RowKey) error {
	if _, ok := s.store.Get(key); !ok {
		return fmt.Errorf("pin %s: %w", key, rowstate.ErrUnknownRow)
	}
	s.pins.Pin(key)
	return nil
}

// Unpin releases a pinned row
func (s *Session) Unpin(key models.RowKey) {
	s.pins.Unpin(key)
}

// Pins returns pinned keys in pin order
func (s *Session) Pins() []models.RowKey {
	return s.pins.Keys()
}

// ToggleSort flips or activates a sort key
func (s *Session) ToggleSort(key ranking.SortKey) (ranking.SortKey, ranking.Direction) {
	return s.sort.Toggle(key)
}

// Row returns the interaction state of one row
func (s *Session) Row(key models.RowKey) (rowstate.State, bool) {
	return s.store.Get(key)
}

// RefreshedAt returns when rows were last loaded
func (s *Session) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}

// Wait blocks until in-flight recomputes resolve
func (s *Session) Wait() {
	s.coord.Wait()
}
