package ranking

import (
	"sync"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
)

// PinSet is the ordered set of rows being edited. Pinned rows are never
// moved by sorting; they keep the order they were pinned in.
type PinSet struct {
	mu    sync.RWMutex
	order []models.RowKey
	index map[models.RowKey]struct{}
}

// NewPinSet creates an empty pin set
func NewPinSet() *PinSet {
	return &PinSet{index: make(map[models.RowKey]struct{})}
}

// Pin appends key; pinning an already pinned key keeps its position
func (p *PinSet) Pin(key models.RowKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.index[key]; ok {
		return false
	}
	p.index[key] = struct{}{}
	p.order = append(p.order, key)
	return true
}

// Unpin removes key
func (p *PinSet) Unpin(key models.RowKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.index[key]; !ok {
		return false
	}
	delete(p.index, key)
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether key is pinned. A nil set pins nothing.
func (p *PinSet) Contains(key models.RowKey) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.index[key]
	return ok
}

// Keys returns the pinned keys in pin order
func (p *PinSet) Keys() []models.RowKey {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.RowKey(nil), p.order...)
}

// Retain drops pins whose key is not in keep
func (p *PinSet) Retain(keep map[models.RowKey]bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.order[:0]
	for _, k := range p.order {
		if keep[k] {
			kept = append(kept, k)
		} else {
			delete(p.index, k)
		}
	}
	p.order = kept
}

// SortState remembers the active sort key and the last direction used for
// every key
type SortState struct {
	mu         sync.Mutex
	active     SortKey
	directions map[SortKey]Direction
}

// NewSortState starts sorted by key in its default direction
func NewSortState(key SortKey) *SortState {
	return &SortState{
		active:     key,
		directions: make(map[SortKey]Direction),
	}
}

// Current returns the active key and its direction
func (s *SortState) Current() (SortKey, Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.directionLocked(s.active)
}

// Toggle flips the direction when key is already active. Otherwise key
// becomes active with the direction it had last time.
func (s *SortState) Toggle(key SortKey) (SortKey, Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key == s.active {
		s.directions[key] = s.directionLocked(key).Flip()
	}
	s.active = key
	return key, s.directionLocked(key)
}

func (s *SortState) directionLocked(key SortKey) Direction {
	if d, ok := s.directions[key]; ok {
		return d
	}
	return DefaultDirection(key)
}
