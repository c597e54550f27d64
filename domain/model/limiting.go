package model

import "math"

// CriticalRatio floors a linear critical-ratio predictor at 1 so the TN divisor
// stays positive.
func CriticalRatio(linear float64) float64 {
	return math.Max(1, linear)
}

// LimitingNutrient applies the law of the minimum: min(TP, TN/criticalRatio).
func LimitingNutrient(tp, tn, criticalRatio float64) float64 {
	return math.Min(tp, tn/criticalRatio)
}

// PhosphorusLimited reports whether TP is the binding minimum.
// Ties count as phosphorus limitation.
func PhosphorusLimited(tp, tn, criticalRatio float64) bool {
	return tp <= tn/criticalRatio
}
