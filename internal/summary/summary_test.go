package summary

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"bnla/internal/mcmc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameterSummary(t *testing.T) {
	chains := [][]float64{
		{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	}
	s, err := Parameter("b0", chains)
	require.NoError(t, err)

	assert.Equal(t, "b0", s.Name)
	assert.InDelta(t, 5.5, s.Mean, 1e-12)
	assert.InDelta(t, 5.5, s.Median, 1e-12)
	assert.Equal(t, 1.0, s.Rhat)
	assert.LessOrEqual(t, s.Lower, s.Median)
	assert.GreaterOrEqual(t, s.Upper, s.Median)
	assert.Equal(t, 1.0, s.Lower)
	assert.Equal(t, 10.0, s.Upper)
	assert.True(t, s.ExcludesZero())
	assert.True(t, s.Converged())
}

func TestParameterSummaryEmpty(t *testing.T) {
	_, err := Parameter("b0", [][]float64{{}, {}})
	assert.Error(t, err)
}

func TestExcludesZeroAndSignal(t *testing.T) {
	assert.False(t, ParameterSummary{Lower: -0.1, Upper: 0.4}.ExcludesZero())
	assert.True(t, ParameterSummary{Lower: -0.5, Upper: -0.1}.ExcludesZero())
	assert.InDelta(t, 2.0, ParameterSummary{Mean: -1, SD: 0.5}.Signal(), 1e-12)
	assert.False(t, ParameterSummary{Rhat: 1.3}.Converged())
}

type flat struct{}

func (flat) Dim() int { return 2 }
func (flat) Names() []string { return []string{"a", "b"} }
func (flat) Initial() []float64 { return []float64{0, 0} }
func (flat) LocalLogDensity(theta []float64, k int) float64 { return -0.5 * theta[k] * theta[k] }

func TestSummarize(t *testing.T) {
	set, err := mcmc.Sample(context.Background(), flat{}, mcmc.Options{Iterations: 3000, Burnin: 1000, Chains: 3, Thin: 1, Seed: 11})
	require.NoError(t, err)

	ss, err := Summarize(set)
	require.NoError(t, err)
	require.Len(t, ss, 2)

	byName := ByName(ss)
	for _, name := range []string{"a", "b"} {
		s := byName[name]
		assert.InDelta(t, 0, s.Mean, 0.15, name)
		assert.InDelta(t, 1, s.SD, 0.15, name)
		assert.InDelta(t, -1.96, s.Lower, 0.3, name)
		assert.InDelta(t, 1.96, s.Upper, 0.3, name)
		assert.Less(t, s.Rhat, 1.05, name)
		assert.Greater(t, s.ESS, 100.0, name)
		assert.False(t, s.ExcludesZero(), name)
	}
}

func TestMarshalJSONWritesNullForNaN(t *testing.T) {
	b, err := json.Marshal(ParameterSummary{Name: "b0", Mean: 1.5, Rhat: math.NaN()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"b0","mean":1.5,"sd":0,"q025":0,"q50":0,"q975":0,"rhat":null,"ess":0}`, string(b))
}
