package rowstate_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/rowstate"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
)

func row(playerID string, hits int, teammatesOut ...string) models.StatRow {
	return models.StatRow{
		RowID:        "id-" + playerID,
		PlayerID:     playerID,
		EventID:      "evt-1",
		Market:       "player_points",
		Line:         22.5,
		TeammatesOut: teammatesOut,
		Stats: models.DerivedStats{
			Hits:     hits,
			Attempts: 10,
			Primary:  models.StatTriple{Overall: 21, Conditional: 24},
		},
	}
}

func TestSync_InitializesDefaults(t *testing.T) {
	store := rowstate.NewStore()
	r := row("p1", 6, "t9")

	result := store.Sync([]models.StatRow{r})
	assert.Equal(t, rowstate.SyncResult{Added: 1}, result)

	st, ok := store.Get(r.Key())
	require.True(t, ok)
	assert.Equal(t, rowstate.PhaseDefault, st.Phase)
	assert.False(t, st.Modified)
	assert.Equal(t, "player_points", st.Selection.Market)
	assert.Equal(t, 22.5, st.Selection.Line)
	assert.Equal(t, []string{"t9"}, st.Selection.ConditionSet)
	assert.Equal(t, r.Stats, st.Stats)
	assert.Equal(t, "p1", st.EntityID)
}

func TestSync_ModifiedRowSurvivesRefresh(t *testing.T) {
	store := rowstate.NewStore()
	r := row("p1", 6, "t9")
	store.Sync([]models.StatRow{r})

	seq, err := store.Stage(r.Key(), rowstate.Selection{Market: "player_points", Line: 25.5, ConditionSet: []string{"t9", "t4"}})
	require.NoError(t, err)
	custom := models.DerivedStats{Hits: 3, Attempts: 4, Primary: models.StatTriple{Overall: 21, Conditional: 29}}
	require.True(t, store.Commit(r.Key(), seq, custom))

	refreshed := row("p1", 9, "t1")
	result := store.Sync([]models.StatRow{refreshed})
	assert.Equal(t, 1, result.Kept)

	st, _ := store.Get(r.Key())
	assert.True(t, st.Modified)
	assert.Equal(t, custom, st.Stats)
	assert.Equal(t, 25.5, st.Selection.Line)
	assert.Equal(t, []string{"t9", "t4"}, st.Selection.ConditionSet)

	// reset goes to the refreshed defaults, not the originals
	require.NoError(t, store.Clear(r.Key()))
	st, _ = store.Get(r.Key())
	assert.False(t, st.Modified)
	assert.Equal(t, refreshed.Stats, st.Stats)
	assert.Equal(t, []string{"t1"}, st.Selection.ConditionSet)
}

func TestSync_UnmodifiedRowTakesNewDefaults(t *testing.T) {
	store := rowstate.NewStore()
	store.Sync([]models.StatRow{row("p1", 6)})

	result := store.Sync([]models.StatRow{row("p1", 8)})
	assert.Equal(t, 1, result.Reset)

	st, _ := store.Get(row("p1", 0).Key())
	assert.Equal(t, 8, st.Stats.Hits)
}

func TestSync_DropsMissingRows(t *testing.T) {
	store := rowstate.NewStore()
	store.Sync([]models.StatRow{row("p1", 6), row("p2", 5)})

	_, err := store.Stage(row("p2", 0).Key(), rowstate.Selection{Market: "player_points", Line: 30})
	require.NoError(t, err)

	result := store.Sync([]models.StatRow{row("p1", 6)})
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 1, store.Len())

	_, ok := store.Get(row("p2", 0).Key())
	assert.False(t, ok)
}

func TestSync_FirstDuplicateKeyWins(t *testing.T) {
	store := rowstate.NewStore()
	a := row("p1", 6)
	b := row("p1", 9)
	b.RowID = "id-dupe"

	result := store.Sync([]models.StatRow{a, b})
	assert.Equal(t, 1, result.Added)

	st, _ := store.Get(a.Key())
	assert.Equal(t, 6, st.Stats.Hits)
}

func TestStage_RejectsEmptyConditionSet(t *testing.T) {
	store := rowstate.NewStore()
	r := row("p1", 6, "t9")
	store.Sync([]models.StatRow{r})

	_, err := store.Stage(r.Key(), rowstate.Selection{Market: "player_points", Line: 22.5})
	assert.ErrorIs(t, err, rowstate.ErrEmptyConditionSet)

	st, _ := store.Get(r.Key())
	assert.Equal(t, rowstate.PhaseDefault, st.Phase)
	assert.Zero(t, st.Seq)
}

func TestStageWith_EditsCurrentSelection(t *testing.T) {
	store := rowstate.NewStore()
	r := row("p1", 6, "t9")
	store.Sync([]models.StatRow{r})

	st, err := store.StageWith(r.Key(), func(cur rowstate.Selection) (rowstate.Selection, error) {
		cur.Line = 27.5
		cur.ConditionSet[0] = "t2"
		return cur, nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Seq)
	assert.Equal(t, rowstate.PhaseRecalculating, st.Phase)
	assert.Equal(t, "p1", st.EntityID)

	st, err = store.StageWith(r.Key(), func(cur rowstate.Selection) (rowstate.Selection, error) {
		assert.Equal(t, 27.5, cur.Line, "sees the previous stage")
		cur.Market = "player_rebounds"
		return cur, nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Seq)
	assert.Equal(t, rowstate.Selection{Market: "player_rebounds", Line: 27.5, ConditionSet: []string{"t2"}}, st.Selection)

	// rollback restores the state before the first stage
	require.True(t, store.Rollback(r.Key(), st.Seq, errors.New("boom")))
	got, _ := store.Get(r.Key())
	assert.Equal(t, []string{"t9"}, got.Selection.ConditionSet)
	assert.Equal(t, 22.5, got.Selection.Line)
}

func TestStageWith_EditErrorLeavesRow(t *testing.T) {
	store := rowstate.NewStore()
	r := row("p1", 6)
	store.Sync([]models.StatRow{r})

	bad := errors.New("bad edit")
	_, err := store.StageWith(r.Key(), func(cur rowstate.Selection) (rowstate.Selection, error) {
		return cur, bad
	})
	assert.ErrorIs(t, err, bad)

	st, _ := store.Get(r.Key())
	assert.Zero(t, st.Seq)
	assert.False(t, st.Modified)
	assert.Equal(t, rowstate.PhaseDefault, st.Phase)
}

func TestStage_UnknownRow(t *testing.T) {
	store := rowstate.NewStore()
	_, err := store.Stage("nope", rowstate.Selection{})
	assert.ErrorIs(t, err, rowstate.ErrUnknownRow)
	assert.ErrorIs(t, store.Clear("nope"), rowstate.ErrUnknownRow)
}

func TestCommit_DiscardsStaleSequence(t *testing.T) {
	store := rowstate.NewStore()
	r := row("p1", 6)
	store.Sync([]models.StatRow{r})

	first, err := store.Stage(r.Key(), rowstate.Selection{Market: "player_points", Line: 20.5})
	require.NoError(t, err)
	second, err := store.Stage(r.Key(), rowstate.Selection{Market: "player_points", Line: 26.5})
	require.NoError(t, err)
	assert.Greater(t, second, first)

	secondStats := models.DerivedStats{Hits: 2, Attempts: 10}
	assert.True(t, store.Commit(r.Key(), second, secondStats))
	assert.False(t, store.Commit(r.Key(), first, models.DerivedStats{Hits: 9, Attempts: 10}))
	assert.False(t, store.Rollback(r.Key(), first, errors.New("late failure")))

	st, _ := store.Get(r.Key())
	assert.Equal(t, rowstate.PhaseCommitted, st.Phase)
	assert.Equal(t, secondStats, st.Stats)
	assert.Equal(t, 26.5, st.Selection.Line)
	assert.Empty(t, st.LastError)
}

func TestRollback_RestoresLastCommitted(t *testing.T) {
	store := rowstate.NewStore()
	r := row("p1", 6, "t9")
	store.Sync([]models.StatRow{r})

	seq, _ := store.Stage(r.Key(), rowstate.Selection{Market: "player_points", Line: 24.5, ConditionSet: []string{"t9"}})
	committed := models.DerivedStats{Hits: 4, Attempts: 5}
	require.True(t, store.Commit(r.Key(), seq, committed))

	// two changes in flight, latest fails: revert to the committed state,
	// not to the intermediate optimistic selection
	_, _ = store.Stage(r.Key(), rowstate.Selection{Market: "player_rebounds", Line: 8.5, ConditionSet: []string{"t9"}})
	latest, _ := store.Stage(r.Key(), rowstate.Selection{Market: "player_assists", Line: 5.5, ConditionSet: []string{"t9", "t2"}})

	require.True(t, store.Rollback(r.Key(), latest, errors.New("recompute unavailable")))

	st, _ := store.Get(r.Key())
	assert.Equal(t, rowstate.PhaseRolledBack, st.Phase)
	assert.Equal(t, "player_points", st.Selection.Market)
	assert.Equal(t, 24.5, st.Selection.Line)
	assert.Equal(t, []string{"t9"}, st.Selection.ConditionSet)
	assert.Equal(t, committed, st.Stats)
	assert.True(t, st.Modified)
	assert.Equal(t, "recompute unavailable", st.LastError)
}

func TestRollback_FromDefaultClearsModified(t *testing.T) {
	store := rowstate.NewStore()
	r := row("p1", 6)
	store.Sync([]models.StatRow{r})

	seq, _ := store.Stage(r.Key(), rowstate.Selection{Market: "player_points", Line: 30.5})
	require.True(t, store.Rollback(r.Key(), seq, errors.New("boom")))

	st, _ := store.Get(r.Key())
	assert.False(t, st.Modified)
	assert.Equal(t, 22.5, st.Selection.Line)
	assert.Equal(t, r.Stats, st.Stats)
}

func TestClear_MakesPendingStale(t *testing.T) {
	store := rowstate.NewStore()
	r := row("p1", 6)
	store.Sync([]models.StatRow{r})

	seq, _ := store.Stage(r.Key(), rowstate.Selection{Market: "player_points", Line: 30.5})
	require.NoError(t, store.Clear(r.Key()))

	assert.False(t, store.Commit(r.Key(), seq, models.DerivedStats{Hits: 1, Attempts: 1}))

	st, _ := store.Get(r.Key())
	assert.Equal(t, rowstate.PhaseDefault, st.Phase)
	assert.Equal(t, r.Stats, st.Stats)
}

func TestGet_ReturnsCopy(t *testing.T) {
	store := rowstate.NewStore()
	r := row("p1", 6, "t9")
	store.Sync([]models.StatRow{r})

	st, _ := store.Get(r.Key())
	st.Selection.ConditionSet[0] = "mutated"

	again, _ := store.Get(r.Key())
	assert.Equal(t, []string{"t9"}, again.Selection.ConditionSet)
}

func TestStateApply(t *testing.T) {
	r := row("p1", 6, "t9")
	st := rowstate.State{
		Selection: rowstate.Selection{Market: "player_rebounds", Line: 9.5, ConditionSet: []string{"t2"}},
		Stats:     models.DerivedStats{Hits: 1, Attempts: 2},
	}

	applied := st.Apply(r)

	assert.Equal(t, "player_rebounds", applied.Market)
	assert.Equal(t, 9.5, applied.Line)
	assert.Equal(t, []string{"t2"}, applied.TeammatesOut)
	assert.Equal(t, 1, applied.Stats.Hits)
	assert.Equal(t, "player_points", r.Market, "source row is untouched")
}
