package oddsmath

import (
	"fmt"
)

// AmericanToDecimal converts American odds to decimal odds
// American +150 → Decimal 2.50
// American -150 → Decimal 1.67
func AmericanToDecimal(american int) (float64, error) {
	if american == 0 {
		return 0, fmt.Errorf("invalid American odds: cannot be 0")
	}
	if american > -100 && american < 100 {
		return 0, fmt.Errorf("invalid American odds: %d is inside (-100, +100)", american)
	}

	if american > 0 {
		return (float64(american) / 100.0) + 1.0, nil
	}

	return (100.0 / float64(-american)) + 1.0, nil
}

// DecimalToImpliedProbability converts decimal odds to implied probability
// Decimal 2.00 → 0.50 (50%)
func DecimalToImpliedProbability(decimal float64) (float64, error) {
	if decimal <= 1.0 {
		return 0, fmt.Errorf("invalid decimal odds: must be > 1.0")
	}

	return 1.0 / decimal, nil
}

// AmericanToImpliedProbability converts American odds directly to implied probability
// -115 → 0.5349, +120 → 0.4545
func AmericanToImpliedProbability(american int) (float64, error) {
	decimal, err := AmericanToDecimal(american)
	if err != nil {
		return 0, err
	}

	return DecimalToImpliedProbability(decimal)
}

// Payout returns the decimal odds of a price, or 0 when the price is invalid.
// Higher payout means a more favorable price for the bettor.
func Payout(american int) float64 {
	decimal, err := AmericanToDecimal(american)
	if err != nil {
		return 0
	}
	return decimal
}
