// Package diagnostics computes read-only convergence statistics over
// multi-chain sample sets. Results are advisory; nothing here fails a run.
package diagnostics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RhatWarning is the threshold above which chains are reported as not mixed.
const RhatWarning = 1.1

// GelmanRubin returns the potential scale reduction factor of one parameter:
//
//	sqrt(((n-1)/n·W + B/n) / W)
//
// where W is the mean within-chain variance and B/n the variance of the chain
// means. The statistic is floored at 1: identical chains (B = 0) and chains
// with no within-chain variance report exactly 1. Chains are truncated to the
// shortest length. Fewer than two chains or two draws yield NaN.
func GelmanRubin(chains [][]float64) float64 {
	m := len(chains)
	if m < 2 {
		return math.NaN()
	}
	n := len(chains[0])
	for _, c := range chains[1:] {
		n = min(n, len(c))
	}
	if n < 2 {
		return math.NaN()
	}

	means := make([]float64, m)
	w := 0.0
	for j, c := range chains {
		mean, variance := stat.MeanVariance(c[:n], nil)
		means[j] = mean
		w += variance
	}
	w /= float64(m)
	if w == 0 {
		return 1
	}
	bOverN := stat.Variance(means, nil)

	nf := float64(n)
	vhat := (nf-1)/nf*w + bOverN
	return math.Max(1, math.Sqrt(vhat/w))
}

// Exceeds reports whether an R-hat value signals poor mixing.
func Exceeds(rhat float64) bool {
	return !math.IsNaN(rhat) && rhat > RhatWarning
}
