package lake

import (
	"fmt"
	"math"
	"sort"
)

// Dataset is an immutable set of observations with a lake (group) index.
// Lakes are indexed in order of first appearance.
type Dataset struct {
	Header       []string
	Observations []Observation
	Fingerprint  string

	lakes   []string
	lakeIdx map[string]int
}

// NewDataset indexes the observations by lake.
func NewDataset(header []string, obs []Observation, fingerprint string) *Dataset {
	d := &Dataset{
		Header:       header,
		Observations: obs,
		Fingerprint:  fingerprint,
		lakeIdx:      make(map[string]int),
	}
	for _, o := range obs {
		if _, ok := d.lakeIdx[o.LakeID]; !ok {
			d.lakeIdx[o.LakeID] = len(d.lakes)
			d.lakes = append(d.lakes, o.LakeID)
		}
	}
	return d
}

// Len returns the number of observations.
func (d *Dataset) Len() int { return len(d.Observations) }

// NumLakes returns the number of distinct lakes.
func (d *Dataset) NumLakes() int { return len(d.lakes) }

// Lakes returns the lake identifiers in index order.
func (d *Dataset) Lakes() []string {
	out := make([]string, len(d.lakes))
	copy(out, d.lakes)
	return out
}

// LakeIndex returns the group index of a lake.
func (d *Dataset) LakeIndex(id string) (int, bool) {
	i, ok := d.lakeIdx[id]
	return i, ok
}

// Filter returns a new dataset holding the observations for which keep returns true.
// The fingerprint is suffixed so subsets never collide with the full dataset.
func (d *Dataset) Filter(name string, keep func(Observation) bool) *Dataset {
	var obs []Observation
	for _, o := range d.Observations {
		if keep(o) {
			obs = append(obs, o)
		}
	}
	return NewDataset(d.Header, obs, fmt.Sprintf("%s/%s", d.Fingerprint, name))
}

// LakeMeans returns the per-lake mean of a numeric column over the lake's visits.
// Visits where the column is missing are skipped.
func (d *Dataset) LakeMeans(column string) map[string]float64 {
	sums := make(map[string]float64, len(d.lakes))
	counts := make(map[string]int, len(d.lakes))
	for _, o := range d.Observations {
		v, ok := o.Value(column)
		if !ok || math.IsNaN(v) {
			continue
		}
		sums[o.LakeID] += v
		counts[o.LakeID]++
	}
	out := make(map[string]float64, len(sums))
	for id, s := range sums {
		out[id] = s / float64(counts[id])
	}
	return out
}

// BinLevels returns the sorted distinct values of a bin column.
func (d *Dataset) BinLevels(column string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, o := range d.Observations {
		v, ok := o.Bin(column)
		if !ok {
			return nil, fmt.Errorf("%s is not a bin column", column)
		}
		seen[v] = struct{}{}
	}
	levels := make([]string, 0, len(seen))
	for v := range seen {
		levels = append(levels, v)
	}
	sort.Strings(levels)
	return levels, nil
}

// NumericLevels returns the sorted distinct values of a numeric column (e.g. survey year).
func (d *Dataset) NumericLevels(column string) []float64 {
	seen := make(map[float64]struct{})
	for _, o := range d.Observations {
		if v, ok := o.Value(column); ok {
			seen[v] = struct{}{}
		}
	}
	levels := make([]float64, 0, len(seen))
	for v := range seen {
		levels = append(levels, v)
	}
	sort.Float64s(levels)
	return levels
}
