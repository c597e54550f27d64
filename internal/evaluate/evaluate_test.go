package evaluate

import (
	"math"
	"testing"

	"bnla/domain/lake"
	"bnla/domain/model"
	"bnla/internal/hierarchical"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerfectFit(t *testing.T) {
	y := []float64{1, 2, 3, 4}

	r2, err := RSquared(y, y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r2)

	rmse, err := RMSE(y, y)
	require.NoError(t, err)
	assert.Equal(t, 0.0, rmse)
}

func TestImperfectFit(t *testing.T) {
	y := []float64{1, 2, 3, 4}
	p := []float64{1.5, 2, 2.5, 4}

	r2, err := RSquared(y, p)
	require.NoError(t, err)
	assert.InDelta(t, 1-0.5/5, r2, 1e-12)
	assert.Less(t, r2, 1.0)

	rmse, err := RMSE(y, p)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(0.5/4), rmse, 1e-12)
	assert.Greater(t, rmse, 0.0)
}

func TestRSquaredCanBeNegative(t *testing.T) {
	r2, err := RSquared([]float64{1, 2, 3}, []float64{3, 2, 1})
	require.NoError(t, err)
	assert.InDelta(t, -3.0, r2, 1e-12)
}

func TestMetricErrors(t *testing.T) {
	_, err := RSquared(nil, nil)
	assert.Error(t, err)
	_, err = RMSE([]float64{1}, []float64{1, 2})
	assert.Error(t, err)

	r2, err := RSquared([]float64{2, 2}, []float64{1, 3})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(r2))
}

func TestPoolMatchesConcatenation(t *testing.T) {
	a := &Evaluation{Observed: []float64{1, 2, 3}, Predicted: []float64{1.1, 1.8, 3.3}, PLimited: 2, HasCriticalRatio: true}
	b := &Evaluation{Observed: []float64{4, 5}, Predicted: []float64{4.4, 4.9}, PLimited: 1, HasCriticalRatio: true}
	require.NoError(t, a.score())
	require.NoError(t, b.score())

	pooled, err := Pool(a, b)
	require.NoError(t, err)

	obs := []float64{1, 2, 3, 4, 5}
	pred := []float64{1.1, 1.8, 3.3, 4.4, 4.9}
	r2, _ := RSquared(obs, pred)
	rmse, _ := RMSE(obs, pred)
	assert.Equal(t, 5, pooled.N)
	assert.InDelta(t, r2, pooled.RSquared, 1e-12)
	assert.InDelta(t, rmse, pooled.RMSE, 1e-12)
	assert.InDelta(t, 3.0/5.0, pooled.PLimitedFraction(), 1e-12)
	assert.Len(t, pooled.Residuals(), 5)

	single, err := Pool(a)
	require.NoError(t, err)
	assert.InDelta(t, a.RSquared, single.RSquared, 1e-12)
	assert.InDelta(t, a.RMSE, single.RMSE, 1e-12)

	_, err = Pool()
	assert.Error(t, err)
}

func TestEvaluateLimitingModel(t *testing.T) {
	obs := []lake.Observation{
		{Row: 0, LakeID: "A", Chl: math.Exp(2 + math.Log(0.05)), TP: 0.05, TN: 1.0},
		{Row: 1, LakeID: "B", Chl: math.Exp(2 + math.Log(0.05)), TP: 0.10, TN: 0.5},
		{Row: 2, LakeID: "C", Chl: math.Exp(2 + math.Log(0.02)), TP: 0.02, TN: 1.0},
	}
	ds := lake.NewDataset(lake.RequiredColumns, obs, "x")
	m, err := hierarchical.Compile(model.Spec{Name: "mav", Nutrient: model.NutrientSpec{Kind: model.NutrientLimiting}}, ds)
	require.NoError(t, err)

	theta := m.Initial()
	b0, _ := m.Index("b0")
	cr0, _ := m.Index("cr0")
	theta[b0] = 2
	theta[cr0] = 10

	e, err := Evaluate(m, theta, m.Train())
	require.NoError(t, err)
	assert.Equal(t, 3, e.N)
	assert.InDelta(t, 1.0, e.RSquared, 1e-9)
	assert.InDelta(t, 0.0, e.RMSE, 1e-9)
	assert.True(t, e.HasCriticalRatio)
	assert.InDelta(t, 2.0/3.0, e.PLimitedFraction(), 1e-12)

	_, err = Evaluate(m, theta[:1], m.Train())
	assert.Error(t, err)
}
