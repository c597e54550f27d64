// Package summary reduces posterior draws to per-parameter summaries.
package summary

import (
	"math"

	"bnla/internal/diagnostics"
	"bnla/internal/errors"
	"bnla/internal/mcmc"

	"github.com/montanaflynn/stats"
)

// ParameterSummary describes the marginal posterior of one monitored parameter.
type ParameterSummary struct {
	Name   string  `json:"name" db:"name"`
	Mean   float64 `json:"mean" db:"mean"`
	SD     float64 `json:"sd" db:"sd"`
	Lower  float64 `json:"q025" db:"q025"`
	Median float64 `json:"q50" db:"q50"`
	Upper  float64 `json:"q975" db:"q975"`
	Rhat   float64 `json:"rhat" db:"rhat"`
	ESS    float64 `json:"ess" db:"ess"`
}

// ExcludesZero reports whether the 95% credible interval lies entirely on one side of zero.
func (p ParameterSummary) ExcludesZero() bool {
	return p.Lower > 0 || p.Upper < 0
}

// Signal is |mean|/sd, used to rank weak covariates.
func (p ParameterSummary) Signal() float64 {
	if p.SD == 0 {
		return math.Inf(1)
	}
	return math.Abs(p.Mean) / p.SD
}

// Converged reports whether the R-hat is at or below the warning threshold.
func (p ParameterSummary) Converged() bool {
	return !diagnostics.Exceeds(p.Rhat)
}

// Summarize computes a summary for every monitored parameter of set.
func Summarize(set *mcmc.SampleSet) ([]ParameterSummary, error) {
	out := make([]ParameterSummary, 0, len(set.Names))
	for _, name := range set.Names {
		trace, err := set.Trace(name)
		if err != nil {
			return nil, err
		}
		s, err := Parameter(name, trace)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Parameter summarizes the per-chain draws of one parameter.
func Parameter(name string, chains [][]float64) (ParameterSummary, error) {
	var pooled stats.Float64Data
	for _, c := range chains {
		pooled = append(pooled, c...)
	}
	if len(pooled) == 0 {
		return ParameterSummary{}, errors.InvalidInput("no draws for " + name)
	}

	s := ParameterSummary{
		Name: name,
		Rhat: diagnostics.GelmanRubin(chains),
		ESS:  diagnostics.EffectiveSampleSize(chains),
	}
	var err error
	if s.Mean, err = stats.Mean(pooled); err != nil {
		return s, errors.Wrapf(err, "mean of %s", name)
	}
	if len(pooled) > 1 {
		if s.SD, err = stats.StandardDeviationSample(pooled); err != nil {
			return s, errors.Wrapf(err, "sd of %s", name)
		}
	}
	if s.Lower, err = Quantile(pooled, 0.025); err != nil {
		return s, errors.Wrapf(err, "quantiles of %s", name)
	}
	if s.Median, err = stats.Median(pooled); err != nil {
		return s, errors.Wrapf(err, "median of %s", name)
	}
	if s.Upper, err = Quantile(pooled, 0.975); err != nil {
		return s, errors.Wrapf(err, "quantiles of %s", name)
	}
	return s, nil
}

// Quantile returns the q-quantile (0 < q < 1). Tails below the first order
// statistic of a short sample fall back to the minimum or maximum.
func Quantile(data []float64, q float64) (float64, error) {
	p, err := stats.Percentile(data, q*100)
	if err == nil {
		return p, nil
	}
	if len(data) == 0 {
		return math.NaN(), err
	}
	if q < 0.5 {
		return stats.Min(data)
	}
	return stats.Max(data)
}

// ByName indexes summaries by parameter name.
func ByName(ss []ParameterSummary) map[string]ParameterSummary {
	out := make(map[string]ParameterSummary, len(ss))
	for _, s := range ss {
		out[s.Name] = s
	}
	return out
}
