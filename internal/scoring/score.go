package scoring

import (
	"math"

	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/models"
	"github.com/XavierBriggs/fortuna/services/sheet-engine/pkg/oddsmath"
)

// MaxScore is the upper bound of a confidence score
const MaxScore = 100.0

// Band limits used by the factor functions
const (
	matchupTeams       = 30
	sampleSizeCap      = 10
	teammateMinutesCap = 35.0
	edgeSpan           = 4.0 // edge (in stat units) that moves the factor from neutral to max
	boostSpan          = 5.0 // boost that earns full stat-boost points
)

// Input is what a factor sees: the effective row and its best price
type Input struct {
	Row   models.StatRow
	Price *int
}

// factorFunc returns a raw contribution on a [0, max] scale; callers clamp
type factorFunc func(in Input, max float64) float64

var factorFuncs = map[FactorKind]factorFunc{
	FactorHitRate:        hitRatePoints,
	FactorEdge:           edgePoints,
	FactorMatchup:        matchupPoints,
	FactorStreak:         streakPoints,
	FactorOddsValue:      oddsValuePoints,
	FactorSampleSize:     sampleSizePoints,
	FactorStatBoost:      statBoostPoints,
	FactorTeammateImpact: teammateImpactPoints,
}

// Score computes a confidence score for a row under a profile.
// It never fails: missing inputs contribute 0 points to their factor.
func Score(row models.StatRow, price *int, profile Profile) models.ConfidenceScore {
	in := Input{Row: row, Price: price}
	factors := make([]models.FactorScore, 0, len(profile.Factors))
	total := 0.0

	for _, spec := range profile.Factors {
		points := 0.0
		if fn, ok := factorFuncs[spec.Kind]; ok {
			points = clamp(fn(in, spec.MaxPoints), 0, spec.MaxPoints)
		}
		total += points
		factors = append(factors, models.FactorScore{
			Name:      spec.Name,
			MaxPoints: spec.MaxPoints,
			Points:    math.Min(round1(points), spec.MaxPoints),
		})
	}

	value := round1(clamp(total, 0, MaxScore))

	return models.ConfidenceScore{
		Profile: profile.Name,
		Value:   value,
		Grade:   profile.Grade(value),
		Factors: factors,
	}
}

func hitRatePoints(in Input, max float64) float64 {
	rate, ok := in.Row.Stats.HitRate()
	if !ok {
		return 0
	}
	return math.Min(rate, 1) * max
}

// edgePoints is signed: zero edge earns half the points
func edgePoints(in Input, max float64) float64 {
	if in.Row.Stats.Primary.Conditional == 0 {
		return 0
	}
	edge := in.Row.Stats.Primary.Conditional - in.Row.Line
	return max/2 + edge*(max/2)/edgeSpan
}

func matchupPoints(in Input, max float64) float64 {
	rank := in.Row.MatchupRank
	switch {
	case rank <= 0 || rank > matchupTeams:
		return 0
	case rank > 2*matchupTeams/3:
		return max
	case rank > matchupTeams/3:
		return max * 0.5
	default:
		return max * 0.15
	}
}

func streakPoints(in Input, max float64) float64 {
	streak := in.Row.Stats.Streak
	switch {
	case streak >= 7:
		return max
	case streak >= 5:
		return max * 0.7
	case streak >= 3:
		return max * 0.4
	case streak >= 1:
		return max * 0.2
	default:
		return 0
	}
}

func oddsValuePoints(in Input, max float64) float64 {
	if in.Price == nil {
		return 0
	}
	implied, err := oddsmath.AmericanToImpliedProbability(*in.Price)
	if err != nil {
		return 0
	}
	switch {
	case implied <= 0.50:
		return max
	case implied <= 0.54:
		return max * 0.7
	case implied <= 0.60:
		return max * 0.4
	default:
		return max * 0.1
	}
}

// sampleSizePoints stops adding confidence past sampleSizeCap games
func sampleSizePoints(in Input, max float64) float64 {
	games := math.Min(float64(in.Row.Stats.Attempts), sampleSizeCap)
	return games / sampleSizeCap * max
}

// statBoostPoints only rewards a positive boost
func statBoostPoints(in Input, max float64) float64 {
	boost := in.Row.Stats.Primary.Boost()
	if boost <= 0 {
		return 0
	}
	return math.Min(boost*(max/boostSpan), max)
}

func teammateImpactPoints(in Input, max float64) float64 {
	minutes := math.Min(in.Row.TeammateMinutes, teammateMinutesCap)
	return minutes / teammateMinutesCap * max
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
