package ranking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/oddsmath"
)

// SortKey names a sortable column
type SortKey string

const (
	SortConfidence SortKey = "confidence"
	SortHitRate    SortKey = "hit_rate"
	SortBoost      SortKey = "boost"
	SortSampleSize SortKey = "sample_size"
	SortEdge       SortKey = "edge"
	SortPrice      SortKey = "price"
	SortLine       SortKey = "line"
	SortName       SortKey = "name"
)

// Direction is a sort direction
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Flip returns the opposite direction
func (d Direction) Flip() Direction {
	if d == Asc {
		return Desc
	}
	return Asc
}

// ParseDirection accepts "asc" or "desc" (any case)
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(s)) {
	case Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	}
	return "", fmt.Errorf("invalid sort direction %q", s)
}

// column describes how a sort key compares rows
type column struct {
	lexical bool
	number  func(v models.RowView) float64
	text    func(v models.RowView) string
}

var columns = map[SortKey]column{
	SortConfidence: {number: func(v models.RowView) float64 { return v.Score.Value }},
	SortHitRate: {number: func(v models.RowView) float64 {
		rate, ok := v.Row.Stats.HitRate()
		if !ok {
			return -1
		}
		return rate
	}},
	SortBoost:      {number: func(v models.RowView) float64 { return v.Row.Stats.Family(v.KeyStat).Boost() }},
	SortSampleSize: {number: func(v models.RowView) float64 { return float64(v.Row.Stats.Attempts) }},
	SortEdge:       {number: func(v models.RowView) float64 { return v.Edge() }},
	// decimal odds: a longer price pays more
	SortPrice: {number: func(v models.RowView) float64 {
		if v.Price == nil {
			return 0
		}
		return oddsmath.Payout(*v.Price)
	}},
	SortLine: {number: func(v models.RowView) float64 { return v.Row.Line }},
	SortName: {lexical: true, text: func(v models.RowView) string { return strings.ToLower(v.Row.PlayerName) }},
}

// ParseSortKey validates a sort key
func ParseSortKey(s string) (SortKey, error) {
	key := SortKey(strings.ToLower(s))
	if _, ok := columns[key]; !ok {
		return "", fmt.Errorf("unknown sort key %q", s)
	}
	return key, nil
}

// DefaultDirection is descending for numeric keys and ascending for names
func DefaultDirection(key SortKey) Direction {
	if columns[key].lexical {
		return Asc
	}
	return Desc
}

// Order arranges already-filtered views as Pinned ++ Modified ++ Normal.
// Pinned views keep pin order and ignore the sort key. Within the other
// two buckets, priceless views sink to the bottom unless hideNoPrice is
// set, then the key decides, then the row key breaks ties.
func Order(views []models.RowView, pins *PinSet, key SortKey, dir Direction, hideNoPrice bool) []models.RowView {
	col, ok := columns[key]
	if !ok {
		col = columns[SortConfidence]
		key = SortConfidence
	}
	if dir == "" {
		dir = DefaultDirection(key)
	}

	byKey := make(map[models.RowKey]models.RowView, len(views))
	var modified, normal []models.RowView
	for _, v := range views {
		switch {
		case pins.Contains(v.Key):
			byKey[v.Key] = v
		case v.Modified:
			modified = append(modified, v)
		default:
			normal = append(normal, v)
		}
	}

	less := func(bucket []models.RowView) func(i, j int) bool {
		return func(i, j int) bool {
			a, b := bucket[i], bucket[j]

			if !hideNoPrice && a.HasPrice() != b.HasPrice() {
				return a.HasPrice()
			}

			if c := compare(col, a, b); c != 0 {
				if dir == Desc {
					return c > 0
				}
				return c < 0
			}

			return a.Key < b.Key
		}
	}
	sort.SliceStable(modified, less(modified))
	sort.SliceStable(normal, less(normal))

	ordered := make([]models.RowView, 0, len(views))
	for _, k := range pins.Keys() {
		if v, ok := byKey[k]; ok {
			ordered = append(ordered, v)
		}
	}
	ordered = append(ordered, modified...)
	ordered = append(ordered, normal...)
	return ordered
}

func compare(col column, a, b models.RowView) int {
	if col.lexical {
		return strings.Compare(col.text(a), col.text(b))
	}
	x, y := col.number(a), col.number(b)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}
