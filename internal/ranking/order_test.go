package ranking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/internal/ranking"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
)

func intPtr(v int) *int { return &v }

func view(id, name string, score float64, price *int, modified bool) models.RowView {
	return models.RowView{
		Key: models.NewRowKey(id, "player_points", "evt-1"),
		Row: models.StatRow{
			RowID:      id,
			PlayerID:   id,
			PlayerName: name,
			Market:     "player_points",
			Line:       score / 4,
			Stats: models.DerivedStats{
				Hits:     int(score / 10),
				Attempts: 10,
				Primary:  models.StatTriple{Overall: score / 5, Conditional: score / 4},
			},
		},
		Score:    models.ConfidenceScore{Value: score},
		Price:    price,
		KeyStat:  models.FamilyPrimary,
		Modified: modified,
	}
}

func keys(views []models.RowView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Row.RowID
	}
	return out
}

func TestOrder_Buckets(t *testing.T) {
	views := []models.RowView{
		view("n1", "Ann", 50, intPtr(-110), false),
		view("m1", "Bo", 40, intPtr(-110), true),
		view("p1", "Cy", 10, intPtr(-110), false),
		view("n2", "Di", 90, intPtr(-110), false),
		view("m2", "Ed", 80, intPtr(-110), true),
	}
	pins := ranking.NewPinSet()
	pins.Pin(views[2].Key)

	ordered := ranking.Order(views, pins, ranking.SortConfidence, ranking.Desc, false)

	assert.Equal(t, []string{"p1", "m2", "m1", "n2", "n1"}, keys(ordered))
}

func TestOrder_PinStabilityAcrossEveryKeyAndDirection(t *testing.T) {
	views := []models.RowView{
		view("a", "Zed", 70, intPtr(120), false),
		view("b", "Amy", 20, nil, true),
		view("c", "Kim", 95, intPtr(-140), false),
		view("d", "Lou", 55, intPtr(-105), false),
		view("e", "Max", 35, intPtr(150), true),
		view("f", "Ned", 60, nil, false),
	}
	pins := ranking.NewPinSet()
	pins.Pin(views[3].Key) // d
	pins.Pin(views[0].Key) // a
	pins.Pin(views[1].Key) // b

	sortKeys := []ranking.SortKey{
		ranking.SortConfidence, ranking.SortHitRate, ranking.SortBoost, ranking.SortSampleSize,
		ranking.SortEdge, ranking.SortPrice, ranking.SortLine, ranking.SortName,
	}
	for _, key := range sortKeys {
		for _, dir := range []ranking.Direction{ranking.Asc, ranking.Desc} {
			for _, hide := range []bool{true, false} {
				ordered := ranking.Order(views, pins, key, dir, hide)
				require.Len(t, ordered, len(views))
				assert.Equal(t, []string{"d", "a", "b"}, keys(ordered[:3]), "%s %s hide=%v", key, dir, hide)
			}
		}
	}
}

func TestOrder_PricelessSinkUnlessHidden(t *testing.T) {
	views := []models.RowView{
		view("a", "A", 90, nil, false),
		view("b", "B", 50, intPtr(-110), false),
		view("c", "C", 70, intPtr(-120), false),
	}

	assert.Equal(t, []string{"c", "b", "a"}, keys(ranking.Order(views, nil, ranking.SortConfidence, ranking.Desc, false)))
	assert.Equal(t, []string{"a", "c", "b"}, keys(ranking.Order(views, nil, ranking.SortConfidence, ranking.Desc, true)))
	assert.Equal(t, []string{"b", "c", "a"}, keys(ranking.Order(views, nil, ranking.SortConfidence, ranking.Asc, false)))
}

func TestOrder_PriceFavorability(t *testing.T) {
	views := []models.RowView{
		view("fav", "A", 50, intPtr(-150), false),
		view("even", "B", 50, intPtr(100), false),
		view("dog", "C", 50, intPtr(180), false),
		view("short", "D", 50, intPtr(-110), false),
	}

	ordered := ranking.Order(views, nil, ranking.SortPrice, ranking.Desc, false)
	assert.Equal(t, []string{"dog", "even", "short", "fav"}, keys(ordered))
}

func TestOrder_PriceInvalidOddsSortWithUnpriced(t *testing.T) {
	views := []models.RowView{
		view("junk", "A", 50, intPtr(50), false),
		view("fav", "B", 50, intPtr(-150), false),
		view("none", "C", 50, nil, false),
	}

	ordered := ranking.Order(views, nil, ranking.SortPrice, ranking.Desc, false)
	assert.Equal(t, "fav", keys(ordered)[0])
	assert.ElementsMatch(t, []string{"junk", "none"}, keys(ordered)[1:])
}

func TestOrder_NameAscendingCaseInsensitive(t *testing.T) {
	views := []models.RowView{
		view("a", "zach", 50, intPtr(-110), false),
		view("b", "Aaron", 50, intPtr(-110), false),
		view("c", "mike", 50, intPtr(-110), false),
	}

	ordered := ranking.Order(views, nil, ranking.SortName, ranking.DefaultDirection(ranking.SortName), false)
	assert.Equal(t, []string{"b", "c", "a"}, keys(ordered))
}

func TestOrder_DeterministicTieBreak(t *testing.T) {
	views := []models.RowView{
		view("c", "C", 50, intPtr(-110), false),
		view("a", "A", 50, intPtr(-110), false),
		view("b", "B", 50, intPtr(-110), false),
	}
	reversed := []models.RowView{views[2], views[1], views[0]}

	first := ranking.Order(views, nil, ranking.SortConfidence, ranking.Desc, false)
	second := ranking.Order(reversed, nil, ranking.SortConfidence, ranking.Desc, false)

	assert.Equal(t, keys(first), keys(second))
	assert.Equal(t, []string{"a", "b", "c"}, keys(first))
}

func TestOrder_FilteredPinIsSkipped(t *testing.T) {
	views := []models.RowView{view("a", "A", 50, intPtr(-110), false)}
	pins := ranking.NewPinSet()
	pins.Pin(models.NewRowKey("gone", "player_points", "evt-1"))

	ordered := ranking.Order(views, pins, ranking.SortConfidence, ranking.Desc, false)
	assert.Equal(t, []string{"a"}, keys(ordered))
}

func TestOrder_UnknownKeyFallsBackToConfidence(t *testing.T) {
	views := []models.RowView{
		view("a", "A", 10, intPtr(-110), false),
		view("b", "B", 60, intPtr(-110), false),
	}

	ordered := ranking.Order(views, nil, ranking.SortKey("vibes"), "", false)
	assert.Equal(t, []string{"b", "a"}, keys(ordered))
}

func TestParse(t *testing.T) {
	key, err := ranking.ParseSortKey("Hit_Rate")
	require.NoError(t, err)
	assert.Equal(t, ranking.SortHitRate, key)

	_, err = ranking.ParseSortKey("vibes")
	assert.Error(t, err)

	dir, err := ranking.ParseDirection("DESC")
	require.NoError(t, err)
	assert.Equal(t, ranking.Desc, dir)

	_, err = ranking.ParseDirection("sideways")
	assert.Error(t, err)
}
