package config

import (
	"os"
	"strconv"
	"strings"
)

// DefaultAmountTolerance is the relative fraction within which two amounts
// are considered equal by the scorer and the partial-tier matcher.
const DefaultAmountTolerance = 0.02

// AmountToleranceFromEnv returns the configured amount tolerance.
//
// Set via env:
// - RECON_AMOUNT_TOLERANCE=0.02
func AmountToleranceFromEnv() float64 {
	v := strings.TrimSpace(os.Getenv("RECON_AMOUNT_TOLERANCE"))
	if v == "" {
		return DefaultAmountTolerance
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return DefaultAmountTolerance
	}
	return f
}
