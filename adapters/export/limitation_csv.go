package export

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"bnla/domain/lake"
	"bnla/internal/errors"
	"bnla/internal/limitation"
)

// LimitationFile is the default output name inside the output directory.
const LimitationFile = "n_p_limitation.csv"

// LimitationColumns are appended to the original columns of every row.
var LimitationColumns = []string{"p_limitation", "mean_critical_ratio", "mean_np_ratio", "depth", "eutro"}

// WriteLimitationCSV writes every observation of ds with its lake's limitation
// summary appended. Lakes without a result get NA.
func WriteLimitationCSV(w io.Writer, ds *lake.Dataset, results []limitation.Result) error {
	byLake := limitation.ByLake(results)
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, ds.Header...), LimitationColumns...)); err != nil {
		return err
	}
	for _, o := range ds.Observations {
		rec := append(make([]string, 0, len(o.Raw)+len(LimitationColumns)), o.Raw...)
		if r, ok := byLake[o.LakeID]; ok {
			rec = append(rec, number(r.Probability), number(r.MeanCriticalRatio), number(r.MeanNPRatio), number(r.Depth), number(r.Eutro))
		} else {
			rec = append(rec, "NA", "NA", "NA", "NA", "NA")
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveLimitationCSV writes the limitation table to dir/n_p_limitation.csv.
func SaveLimitationCSV(dir string, ds *lake.Dataset, results []limitation.Result) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create %s", dir)
	}
	path := filepath.Join(dir, LimitationFile)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "create %s", path)
	}
	if err := WriteLimitationCSV(f, ds, results); err != nil {
		f.Close()
		return "", errors.Wrapf(err, "write %s", path)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrapf(err, "close %s", path)
	}
	return path, nil
}

func number(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
