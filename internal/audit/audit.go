// Package audit finds storage identifiers that represent the same real-world
// betting line. It only reads; nothing here writes back to a store.
package audit

import (
	"sort"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
)

// Group is a set of storage identifiers sharing one logical identity
type Group struct {
	LogicalID models.LogicalID `json:"logical_id"`
	IDs       []string         `json:"ids"`
}

// Report is the result of an audit
type Report struct {
	Groups           []Group `json:"groups"`
	TotalLogicalRows int     `json:"total_logical_rows"`
	TotalIdentifiers int     `json:"total_identifiers"`
	Wasted           int     `json:"wasted"`
	Efficiency       float64 `json:"efficiency"` // logical / total, 1 when empty
}

// Percent returns efficiency as a percentage rounded to one decimal
func (r Report) Percent() float64 {
	return float64(int64(r.Efficiency*1000+0.5)) / 10
}

// HasDuplicates reports whether any group was found
func (r Report) HasDuplicates() bool {
	return len(r.Groups) > 0
}

// Audit groups records by logical identity and reports every group with
// more than one storage identifier. Groups are ordered largest first, then
// by logical id.
func Audit(records []contracts.IdentityRecord) Report {
	byLogical := make(map[models.LogicalID][]string)
	var order []models.LogicalID

	for _, rec := range records {
		id := models.NewLogicalID(rec.EventID, rec.EntityID, rec.Market, rec.Line)
		if _, ok := byLogical[id]; !ok {
			order = append(order, id)
		}
		byLogical[id] = append(byLogical[id], rec.StorageID)
	}

	report := Report{
		TotalLogicalRows: len(order),
		TotalIdentifiers: len(records),
		Efficiency:       1,
	}
	if report.TotalIdentifiers > 0 {
		report.Efficiency = float64(report.TotalLogicalRows) / float64(report.TotalIdentifiers)
	}
	report.Wasted = report.TotalIdentifiers - report.TotalLogicalRows

	for _, id := range order {
		ids := byLogical[id]
		if len(ids) < 2 {
			continue
		}
		sorted := append([]string(nil), ids...)
		sort.Strings(sorted)
		report.Groups = append(report.Groups, Group{LogicalID: id, IDs: sorted})
	}

	sort.SliceStable(report.Groups, func(i, j int) bool {
		if len(report.Groups[i].IDs) != len(report.Groups[j].IDs) {
			return len(report.Groups[i].IDs) > len(report.Groups[j].IDs)
		}
		return report.Groups[i].LogicalID < report.Groups[j].LogicalID
	})

	return report
}

// Collision is a duplicate group that shows up more than once in a ranked
// index, i.e. the same line is visible twice to users
type Collision struct {
	LogicalID models.LogicalID `json:"logical_id"`
	IDs       []string         `json:"ids"`       // members present in the index
	Positions []int            `json:"positions"` // zero-based rank of each member
}

// CrossCheck returns the duplicate groups with more than one member in ranked
func CrossCheck(report Report, ranked []string) []Collision {
	position := make(map[string]int, len(ranked))
	for i, id := range ranked {
		if _, seen := position[id]; !seen {
			position[id] = i
		}
	}

	var collisions []Collision
	for _, g := range report.Groups {
		var c Collision
		for _, id := range g.IDs {
			if pos, ok := position[id]; ok {
				c.IDs = append(c.IDs, id)
				c.Positions = append(c.Positions, pos)
			}
		}
		if len(c.IDs) > 1 {
			c.LogicalID = g.LogicalID
			collisions = append(collisions, c)
		}
	}
	return collisions
}
