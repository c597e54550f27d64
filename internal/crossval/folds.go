// Package crossval partitions a lake survey into train/held-out folds.
package crossval

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"bnla/domain/lake"
	"bnla/internal/errors"

	"github.com/cespare/xxhash/v2"
)

// Fold is one train/held-out split. Train and Test are disjoint and together
// cover the source dataset.
type Fold struct {
	Name  string
	Train *lake.Dataset
	Test  *lake.Dataset
}

// ByColumn builds one fold per distinct value of a numeric or bin column,
// holding that value out. Values are ordered numerically for numeric columns.
func ByColumn(ds *lake.Dataset, column string) ([]Fold, error) {
	keys := make([]string, len(ds.Observations))
	seen := make(map[string]float64)
	for i, o := range ds.Observations {
		if level, ok := o.Bin(column); ok {
			keys[i] = level
			seen[level] = math.NaN()
			continue
		}
		v, ok := o.Value(column)
		if !ok {
			return nil, errors.InvalidInput(fmt.Sprintf("fold column %q not found", column))
		}
		if math.IsNaN(v) {
			keys[i] = ""
			continue
		}
		keys[i] = strconv.FormatFloat(v, 'g', -1, 64)
		seen[keys[i]] = v
	}

	values := make([]string, 0, len(seen))
	for k := range seen {
		values = append(values, k)
	}
	sort.Slice(values, func(a, b int) bool {
		va, vb := seen[values[a]], seen[values[b]]
		if !math.IsNaN(va) && !math.IsNaN(vb) {
			return va < vb
		}
		return values[a] < values[b]
	})
	if len(values) < 2 {
		return nil, errors.InvalidInput(fmt.Sprintf("fold column %q needs at least two distinct values", column))
	}

	folds := make([]Fold, 0, len(values))
	for _, v := range values {
		name := fmt.Sprintf("%s=%s", column, v)
		folds = append(folds, split(ds, name, func(i int) bool { return keys[i] == v }))
	}
	return folds, nil
}

// ByLake assigns every lake to one of k folds by hashing its ID, so all
// visits of a lake land in the same fold and assignment is stable across runs.
func ByLake(ds *lake.Dataset, k int) ([]Fold, error) {
	if k < 2 {
		return nil, errors.InvalidInput("lake folds need k >= 2")
	}
	if ds.NumLakes() < k {
		return nil, errors.InvalidInput(fmt.Sprintf("%d lakes cannot fill %d folds", ds.NumLakes(), k))
	}
	folds := make([]Fold, 0, k)
	for f := 0; f < k; f++ {
		name := fmt.Sprintf("lake-hash-%d/%d", f+1, k)
		fold := split(ds, name, func(i int) bool {
			return LakeFold(ds.Observations[i].LakeID, k) == f
		})
		if fold.Test.Len() == 0 {
			continue
		}
		folds = append(folds, fold)
	}
	if len(folds) < 2 {
		return nil, errors.InvalidInput(fmt.Sprintf("lake hashing left fewer than two non-empty folds out of %d", k))
	}
	return folds, nil
}

// LakeFold returns the fold of a lake ID under k lake-hash folds.
func LakeFold(lakeID string, k int) int {
	return int(xxhash.Sum64String(lakeID) % uint64(k))
}

func split(ds *lake.Dataset, name string, heldOut func(i int) bool) Fold {
	var train, test []lake.Observation
	for i, o := range ds.Observations {
		if heldOut(i) {
			test = append(test, o)
		} else {
			train = append(train, o)
		}
	}
	return Fold{
		Name:  name,
		Train: lake.NewDataset(ds.Header, train, ds.Fingerprint+"/"+name+"/train"),
		Test:  lake.NewDataset(ds.Header, test, ds.Fingerprint+"/"+name+"/test"),
	}
}
