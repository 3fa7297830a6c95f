package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/filter"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/ranking"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/recompute"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/rowstate"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/sheet"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
)

const dateLayout = "2006-01-02"

// Routes registers the sheet endpoints on r
func (h *Handler) Routes(r chi.Router) {
	r.Get("/sheets", h.ListSheets)
	r.Route("/sheets/{sheet}", func(r chi.Router) {
		r.Get("/rows", h.GetRows)
		r.Post("/refresh", h.RefreshSheet)
		r.Post("/sort/{sortKey}", h.ToggleSort)

		r.Get("/rows/{key}", h.GetRow)
		r.Post("/rows/{key}/selection", h.ChangeSelection)
		r.Delete("/rows/{key}/selection", h.ResetSelection)
		r.Put("/rows/{key}/pin", h.PinRow)
		r.Delete("/rows/{key}/pin", h.UnpinRow)
	})
}

// ListSheets returns the served sheet names
func (h *Handler) ListSheets(w http.ResponseWriter, r *http.Request) {
	names := h.sheets.Names()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sheets": names,
		"count":  len(names),
	})
}

// GetRows returns the filtered, ranked rows of a sheet
// Query params: window, min_hit_rate, odds_min, odds_max, markets, matchup,
// grades, hide_injured, hide_back_to_back, hide_no_price, trends,
// date_from, date_to, sort, dir, explain (adds the filtered-out rows and
// the predicates they failed)
func (h *Handler) GetRows(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	state, err := parseFilter(q)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	req := sheet.ViewRequest{Filter: state}
	if v := q.Get("sort"); v != "" {
		if req.Sort, err = ranking.ParseSortKey(v); err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}
	if v := q.Get("dir"); v != "" {
		if req.Dir, err = ranking.ParseDirection(v); err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}

	explain := false
	if v := q.Get("explain"); v != "" {
		if explain, err = strconv.ParseBool(v); err != nil {
			h.respondError(w, http.StatusBadRequest, "explain must be a boolean", nil)
			return
		}
	}

	rows := s.View(req)
	resp := map[string]interface{}{
		"sheet":        s.Name(),
		"profile":      s.Profile().Name,
		"rows":         rows,
		"count":        len(rows),
		"pins":         s.Pins(),
		"refreshed_at": s.RefreshedAt(),
	}
	if explain {
		hidden := s.Hidden(req)
		if hidden == nil {
			hidden = []sheet.HiddenRow{}
		}
		resp["hidden"] = hidden
	}
	respondJSON(w, http.StatusOK, resp)
}

// RefreshSheet reloads a sheet's rows
// Query params: date (YYYY-MM-DD, optional)
func (h *Handler) RefreshSheet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var date time.Time
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", nil)
			return
		}
		date = d
	}

	result, err := s.Refresh(r.Context(), date)
	if err != nil {
		h.respondError(w, http.StatusBadGateway, "failed to refresh sheet", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// ToggleSort flips the active sort column or switches to a new one
func (h *Handler) ToggleSort(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	key, err := ranking.ParseSortKey(chi.URLParam(r, "sortKey"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	active, dir := s.ToggleSort(key)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sort": active,
		"dir":  dir,
	})
}

// GetRow returns one row's interaction state
func (h *Handler) GetRow(w http.ResponseWriter, r *http.Request) {
	s, key, ok := h.sessionRow(w, r)
	if !ok {
		return
	}

	state, found := s.Row(key)
	if !found {
		h.respondError(w, http.StatusNotFound, "row not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, state)
}

// ChangeSelection stages a selector change. The recompute resolves in the
// background; the response carries the optimistic state.
func (h *Handler) ChangeSelection(w http.ResponseWriter, r *http.Request) {
	s, key, ok := h.sessionRow(w, r)
	if !ok {
		return
	}

	var change recompute.Change
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	pending, err := s.Change(r.Context(), key, change)
	if err != nil {
		h.respondRowError(w, "failed to change selection", err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"key":   pending.Key,
		"seq":   pending.Seq,
		"state": pending.State,
	})
}

// ResetSelection restores a row's source defaults
func (h *Handler) ResetSelection(w http.ResponseWriter, r *http.Request) {
	s, key, ok := h.sessionRow(w, r)
	if !ok {
		return
	}

	if err := s.Reset(key); err != nil {
		h.respondRowError(w, "failed to reset row", err)
		return
	}

	state, _ := s.Row(key)
	respondJSON(w, http.StatusOK, state)
}

// PinRow pins a row in place
func (h *Handler) PinRow(w http.ResponseWriter, r *http.Request) {
	s, key, ok := h.sessionRow(w, r)
	if !ok {
		return
	}

	if err := s.Pin(key); err != nil {
		h.respondRowError(w, "failed to pin row", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"pins": s.Pins()})
}

// UnpinRow releases a pinned row
func (h *Handler) UnpinRow(w http.ResponseWriter, r *http.Request) {
	s, key, ok := h.sessionRow(w, r)
	if !ok {
		return
	}

	s.Unpin(key)
	respondJSON(w, http.StatusOK, map[string]interface{}{"pins": s.Pins()})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*sheet.Session, bool) {
	s, err := h.sheets.Get(chi.URLParam(r, "sheet"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "sheet not found", nil)
		return nil, false
	}
	return s, true
}

// sessionRow resolves the sheet and the path-escaped row key
func (h *Handler) sessionRow(w http.ResponseWriter, r *http.Request) (*sheet.Session, models.RowKey, bool) {
	s, ok := h.session(w, r)
	if !ok {
		return nil, "", false
	}

	raw, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || raw == "" {
		h.respondError(w, http.StatusBadRequest, "invalid row key", nil)
		return nil, "", false
	}
	return s, models.RowKey(raw), true
}

func (h *Handler) respondRowError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, rowstate.ErrUnknownRow):
		h.respondError(w, http.StatusNotFound, "row not found", nil)
	case errors.Is(err, recompute.ErrInvalidChange), errors.Is(err, rowstate.ErrEmptyConditionSet):
		h.respondError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		h.respondError(w, http.StatusInternalServerError, message, err)
	}
}

// parseFilter reads filter.State from query parameters. Unset parameters
// leave their predicate off.
func parseFilter(q url.Values) (filter.State, error) {
	state := filter.State{
		Window:  q.Get("window"),
		Matchup: q.Get("matchup"),
		Markets: splitList(q.Get("markets")),
		Trends:  splitList(q.Get("trends")),
	}

	switch state.Matchup {
	case "", filter.MatchupAll, filter.MatchupFavorable, filter.MatchupNeutral, filter.MatchupTough:
	default:
		return state, fmt.Errorf("invalid matchup %q", state.Matchup)
	}

	if v := q.Get("min_hit_rate"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return state, fmt.Errorf("min_hit_rate must be between 0 and 1")
		}
		state.MinHitRate = &f
	}

	for param, dst := range map[string]**int{"odds_min": &state.OddsFloor, "odds_max": &state.OddsCeiling} {
		if v := q.Get(param); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return state, fmt.Errorf("%s must be an integer", param)
			}
			*dst = &n
		}
	}

	for _, g := range splitList(q.Get("grades")) {
		state.Grades = append(state.Grades, models.Grade(strings.ToUpper(g)))
	}

	for param, dst := range map[string]*bool{
		"hide_injured":      &state.HideInjured,
		"hide_back_to_back": &state.HideBackToBack,
		"hide_no_price":     &state.HideNoPrice,
	} {
		if v := q.Get(param); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return state, fmt.Errorf("%s must be a boolean", param)
			}
			*dst = b
		}
	}

	for param, dst := range map[string]*time.Time{"date_from": &state.DateFrom, "date_to": &state.DateTo} {
		if v := q.Get(param); v != "" {
			d, err := time.Parse(dateLayout, v)
			if err != nil {
				return state, fmt.Errorf("%s must be YYYY-MM-DD", param)
			}
			*dst = d
		}
	}

	return state, nil
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
