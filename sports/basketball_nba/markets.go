package basketball_nba

import "github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"

// SportKey identifies NBA rows
const SportKey = "basketball_nba"

// Player prop market keys
const (
	MarketPoints   = "player_points"
	MarketRebounds = "player_rebounds"
	MarketAssists  = "player_assists"
	MarketThrees   = "player_threes"
	MarketPRA      = "player_points_rebounds_assists"
	MarketSteals   = "player_steals"
	MarketBlocks   = "player_blocks"
)

// keyStats maps a market to the secondary stat family surfaced next to it
var keyStats = map[string]models.StatFamily{
	MarketPoints:   models.FamilyShotVolume,
	MarketRebounds: models.FamilyRebounds,
	MarketAssists:  models.FamilyPlaymaking,
	MarketThrees:   models.FamilyShotVolume,
	MarketPRA:      models.FamilyUsage,
	MarketSteals:   models.FamilyMinutes,
	MarketBlocks:   models.FamilyMinutes,
}

// KeyStat returns the stat family to surface for a market.
// Unknown markets fall back to the primary stat.
func KeyStat(market string) models.StatFamily {
	if family, ok := keyStats[market]; ok {
		return family
	}
	return models.FamilyPrimary
}

// Markets returns every market with a key stat mapping
func Markets() []string {
	return []string{
		MarketPoints, MarketRebounds, MarketAssists, MarketThrees,
		MarketPRA, MarketSteals, MarketBlocks,
	}
}
