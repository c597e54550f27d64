package mcmc

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/stat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// normalTarget is a product of independent normals.
type normalTarget struct {
	mu, sd []float64
}

func (n normalTarget) Dim() int { return len(n.mu) }

func (n normalTarget) Names() []string {
	names := make([]string, len(n.mu))
	for i := range names {
		names[i] = string(rune('a' + i))
	}
	return names
}

func (n normalTarget) Initial() []float64 {
	theta := make([]float64, len(n.mu))
	for i := range theta {
		theta[i] = 1
	}
	return theta
}

func (n normalTarget) LocalLogDensity(theta []float64, k int) float64 {
	z := (theta[k] - n.mu[k]) / n.sd[k]
	return -0.5 * z * z
}

func TestSampleRecoversNormalMoments(t *testing.T) {
	target := normalTarget{mu: []float64{3, -2}, sd: []float64{1, 0.5}}
	set, err := Sample(context.Background(), target, Options{
		Iterations: 6000,
		Burnin:     2000,
		Chains:     3,
		Thin:       1,
		Seed:       7,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, set.NumChains())
	assert.Equal(t, 4000, set.NumDraws())
	assert.Equal(t, []string{"a", "b"}, set.Names)

	for k, name := range set.Names {
		pooled, err := set.Pooled(name)
		require.NoError(t, err)
		mean, sd := stat.MeanStdDev(pooled, nil)
		assert.InDelta(t, target.mu[k], mean, 0.1, name)
		assert.InDelta(t, target.sd[k], sd, 0.1, name)
		assert.InDelta(t, target.mu[k], set.PosteriorMean()[k], 0.1, name)
	}
	for _, rate := range set.MeanAcceptance() {
		assert.Greater(t, rate, 0.2)
		assert.Less(t, rate, 0.7)
	}
}

func TestSampleDeterministicForSeed(t *testing.T) {
	target := normalTarget{mu: []float64{0}, sd: []float64{1}}
	opts := Options{Iterations: 500, Burnin: 100, Chains: 2, Thin: 1, Seed: 99}

	a, err := Sample(context.Background(), target, opts)
	require.NoError(t, err)
	b, err := Sample(context.Background(), target, opts)
	require.NoError(t, err)
	assert.Equal(t, a.Draws, b.Draws)
	assert.NotEqual(t, a.Draws[0], a.Draws[1])
}

func TestSampleThinAndMonitors(t *testing.T) {
	target := normalTarget{mu: []float64{0, 1, 2}, sd: []float64{1, 1, 1}}
	set, err := Sample(context.Background(), target, Options{
		Iterations: 100,
		Burnin:     10,
		Chains:     1,
		Thin:       3,
		Seed:       1,
		Monitors:   []int{2},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"c"}, set.Names)
	assert.Equal(t, 30, set.NumDraws())
	assert.Len(t, set.Draws[0][0], 1)
	assert.Len(t, set.PosteriorMean(), 3)

	_, err = set.Trace("a")
	assert.Error(t, err)
}

func TestSampleRejectsOutOfSupport(t *testing.T) {
	// Half-normal on x >= 0: proposals below zero must never be accepted.
	target := boundedTarget{}
	set, err := Sample(context.Background(), target, Options{Iterations: 2000, Burnin: 200, Chains: 2, Thin: 1, Seed: 3})
	require.NoError(t, err)

	pooled, err := set.Pooled("x")
	require.NoError(t, err)
	for _, v := range pooled {
		require.GreaterOrEqual(t, v, 0.0)
	}
}

type boundedTarget struct{}

func (boundedTarget) Dim() int { return 1 }
func (boundedTarget) Names() []string { return []string{"x"} }
func (boundedTarget) Initial() []float64 { return []float64{1} }
func (boundedTarget) LocalLogDensity(theta []float64, _ int) float64 {
	if theta[0] < 0 {
		return math.Inf(-1)
	}
	return -0.5 * theta[0] * theta[0]
}

func TestSampleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Sample(ctx, normalTarget{mu: []float64{0}, sd: []float64{1}}, Options{Iterations: 1000, Burnin: 10, Chains: 3, Thin: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSampleValidatesOptions(t *testing.T) {
	target := normalTarget{mu: []float64{0}, sd: []float64{1}}
	bad := []Options{
		{Iterations: 0, Chains: 1, Thin: 1},
		{Iterations: 10, Burnin: 10, Chains: 1, Thin: 1},
		{Iterations: 10, Chains: 0, Thin: 1},
		{Iterations: 10, Chains: 1, Thin: 0},
		{Iterations: 10, Chains: 1, Thin: 1, Monitors: []int{4}},
	}
	for _, opts := range bad {
		_, err := Sample(context.Background(), target, opts)
		assert.Error(t, err)
	}
}
