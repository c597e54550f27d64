package lake

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() *Dataset {
	obs := []Observation{
		{Row: 0, LakeID: "L2", Depth: 4, LogEutro: 1, EutroBin: "high", Numeric: map[string]float64{"year": 2007}},
		{Row: 1, LakeID: "L1", Depth: 10, LogEutro: 0.5, EutroBin: "low", Numeric: map[string]float64{"year": 2012}},
		{Row: 2, LakeID: "L2", Depth: 6, LogEutro: 2, EutroBin: "high", Numeric: map[string]float64{"year": 2012}},
	}
	return NewDataset(RequiredColumns, obs, "abc")
}

func TestDatasetLakeIndexFirstAppearance(t *testing.T) {
	d := sampleDataset()

	assert.Equal(t, []string{"L2", "L1"}, d.Lakes())
	i, ok := d.LakeIndex("L1")
	require.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = d.LakeIndex("L9")
	assert.False(t, ok)
}

func TestDatasetLakeMeans(t *testing.T) {
	d := sampleDataset()

	depth := d.LakeMeans("depth")
	assert.InDelta(t, 5.0, depth["L2"], 1e-12)
	assert.InDelta(t, 10.0, depth["L1"], 1e-12)
	assert.InDelta(t, 1.5, d.LakeMeans(ColLogEutro)["L2"], 1e-12)
}

func TestDatasetLakeMeansSkipsMissing(t *testing.T) {
	obs := []Observation{
		{Row: 0, LakeID: "L1", Depth: 4, LogEutro: 1},
		{Row: 1, LakeID: "L1", Depth: math.NaN(), LogEutro: 3},
		{Row: 2, LakeID: "L2", Depth: math.NaN(), LogEutro: 2},
	}
	d := NewDataset(RequiredColumns, obs, "nan")

	depth := d.LakeMeans("depth")
	assert.InDelta(t, 4.0, depth["L1"], 1e-12)
	_, ok := depth["L2"]
	assert.False(t, ok)
	assert.InDelta(t, 2.0, d.LakeMeans(ColLogEutro)["L1"], 1e-12)
}

func TestDatasetFilter(t *testing.T) {
	d := sampleDataset()

	sub := d.Filter("y2012", func(o Observation) bool { return o.Numeric["year"] == 2012 })
	assert.Equal(t, 2, sub.Len())
	assert.Equal(t, []string{"L1", "L2"}, sub.Lakes())
	assert.Equal(t, "abc/y2012", sub.Fingerprint)
	assert.Equal(t, 3, d.Len())
}

func TestDatasetLevels(t *testing.T) {
	d := sampleDataset()

	levels, err := d.BinLevels(ColEutroBin)
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "low"}, levels)
	assert.Equal(t, []float64{2007, 2012}, d.NumericLevels("year"))

	_, err = d.BinLevels(ColChl)
	assert.Error(t, err)
}

func TestObservationEnvAliases(t *testing.T) {
	o := Observation{TP: 0.1, TN: 1.2, AvgTemp: 20, Depth: 5, Numeric: map[string]float64{"year": 2017}}
	env := o.Env()

	assert.Equal(t, 0.1, env[ColTP])
	assert.Equal(t, 20.0, env["temp"])
	assert.Equal(t, 5.0, env["depth"])
	assert.Equal(t, 2017.0, env["year"])
}
