package basketball_nba

import (
	"os"
	"strings"
)

// Sheet names
const (
	SheetHitRates     = "hit-rates"
	SheetInjuryImpact = "injury-impact"
)

// SheetConfig describes one NBA sheet
type SheetConfig struct {
	Name           string
	Profile        string   // scoring profile name
	DefaultMarkets []string // applied when the user's market set is empty
}

// Config holds NBA sheet configuration
type Config struct {
	Sheets []SheetConfig
}

// NewConfig creates the NBA sheet configuration with defaults and environment overrides
func NewConfig() *Config {
	return &Config{
		Sheets: []SheetConfig{
			{
				Name:           SheetHitRates,
				Profile:        "hit_rate",
				DefaultMarkets: getEnvStringSlice("HIT_RATE_DEFAULT_MARKETS", []string{MarketPoints, MarketRebounds, MarketAssists}),
			},
			{
				Name:           SheetInjuryImpact,
				Profile:        "injury_impact",
				DefaultMarkets: getEnvStringSlice("INJURY_DEFAULT_MARKETS", []string{MarketPoints}),
			},
		},
	}
}

// Sheet looks up a sheet by name
func (c *Config) Sheet(name string) (SheetConfig, bool) {
	for _, s := range c.Sheets {
		if s.Name == name {
			return s, true
		}
	}
	return SheetConfig{}, false
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
