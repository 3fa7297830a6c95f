package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
)

func fixture() []contracts.IdentityRecord {
	return []contracts.IdentityRecord{
		{StorageID: "A", EventID: "E1", EntityID: "", Market: "spreads", Line: -3.5},
		{StorageID: "B", EventID: "E1", EntityID: "game", Market: "spreads", Line: -3.5},
		{StorageID: "C", EventID: "E1", EntityID: "game", Market: "spreads", Line: -4.5},
		{StorageID: "D", EventID: "E1", EntityID: "p-23", Market: "player_points", Line: 24.5},
		{StorageID: "E", EventID: "E2", EntityID: "game", Market: "spreads", Line: -3.5},
	}
}

func TestAudit_ReportsSingleDuplicateGroup(t *testing.T) {
	report := Audit(fixture())

	require.Len(t, report.Groups, 1)
	assert.Equal(t, models.LogicalID("E1|game|spreads|-3.5"), report.Groups[0].LogicalID)
	assert.Equal(t, []string{"A", "B"}, report.Groups[0].IDs)
	assert.Equal(t, 4, report.TotalLogicalRows)
	assert.Equal(t, 5, report.TotalIdentifiers)
	assert.Equal(t, 1, report.Wasted)
	assert.InDelta(t, 0.8, report.Efficiency, 1e-9)
	assert.Equal(t, 80.0, report.Percent())
	assert.True(t, report.HasDuplicates())
}

func TestAudit_Empty(t *testing.T) {
	report := Audit(nil)

	assert.Empty(t, report.Groups)
	assert.Equal(t, 1.0, report.Efficiency)
	assert.Equal(t, 100.0, report.Percent())
	assert.False(t, report.HasDuplicates())
}

func TestAudit_GroupOrdering(t *testing.T) {
	records := []contracts.IdentityRecord{
		{StorageID: "x1", EventID: "E9", Market: "totals", Line: 220.5},
		{StorageID: "x2", EventID: "E9", Market: "totals", Line: 220.5},
		{StorageID: "y3", EventID: "E1", Market: "h2h"},
		{StorageID: "y1", EventID: "E1", Market: "h2h"},
		{StorageID: "y2", EventID: "E1", Market: "h2h"},
		{StorageID: "z1", EventID: "E5", Market: "totals", Line: 210},
		{StorageID: "z2", EventID: "E5", Market: "totals", Line: 210},
	}

	report := Audit(records)

	require.Len(t, report.Groups, 3)
	assert.Equal(t, []string{"y1", "y2", "y3"}, report.Groups[0].IDs)
	assert.Equal(t, models.LogicalID("E5|game|totals|210"), report.Groups[1].LogicalID)
	assert.Equal(t, models.LogicalID("E9|game|totals|220.5"), report.Groups[2].LogicalID)
	assert.Equal(t, 4, report.Wasted)
}

func TestAudit_DoesNotMutateInput(t *testing.T) {
	records := fixture()
	before := append([]contracts.IdentityRecord(nil), records...)

	Audit(records)

	assert.Equal(t, before, records)
}

func TestCrossCheck(t *testing.T) {
	report := Audit(fixture())

	collisions := CrossCheck(report, []string{"C", "B", "D", "A"})
	require.Len(t, collisions, 1)
	assert.Equal(t, []string{"A", "B"}, collisions[0].IDs)
	assert.Equal(t, []int{3, 1}, collisions[0].Positions)

	assert.Empty(t, CrossCheck(report, []string{"A", "C", "D"}), "one member visible is not a collision")
}
