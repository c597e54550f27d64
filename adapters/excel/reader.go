package excel

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bnla/domain/lake"
	"bnla/internal/errors"
	"bnla/internal/logging"
	"bnla/ports"

	"github.com/cespare/xxhash/v2"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// DataReader reads the prepared lake survey from CSV or Excel files
type DataReader struct {
	logger *zap.Logger
}

var _ ports.DatasetReader = (*DataReader)(nil)

// NewDataReader creates a reader that handles both Excel and CSV files
func NewDataReader(logger *zap.Logger) *DataReader {
	return &DataReader{logger: logging.OrNop(logger)}
}

// Read loads the survey file at path. The file type follows the extension:
// .xlsx and .xlsm read the first sheet, anything else is parsed as CSV.
func (r *DataReader) Read(ctx context.Context, path string) (*lake.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(fmt.Sprintf("data file %s", path))
		}
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	var table *rawTable
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		table, err = readExcel(raw)
	default:
		table, err = readCSV(raw)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	ds, err := table.dataset(fmt.Sprintf("%016x", xxhash.Sum64(raw)))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid survey file %s", path)
	}
	r.logger.Info("dataset loaded",
		zap.String("path", path),
		zap.Int("rows", ds.Len()),
		zap.Int("lakes", ds.NumLakes()),
		zap.String("fingerprint", ds.Fingerprint),
		zap.Duration("elapsed", time.Since(start)),
	)
	return ds, nil
}

func readExcel(raw []byte) (*rawTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open Excel workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.DataInvalid("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sheet %s", sheets[0])
	}
	return newRawTable(rows)
}

func readCSV(raw []byte) (*rawTable, error) {
	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CSV")
	}
	return newRawTable(rows)
}

func newRawTable(rows [][]string) (*rawTable, error) {
	if len(rows) < 2 {
		return nil, errors.DataInvalid("file must have a header row and at least one data row")
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return &rawTable{header: header, rows: rows[1:]}, nil
}

// dataset converts the raw table into observations. Missing numeric cells
// (empty, NA, NaN) become NaN so that model designs can drop them.
func (t *rawTable) dataset(fingerprint string) (*lake.Dataset, error) {
	col := make(map[string]int, len(t.header))
	for i, h := range t.header {
		col[h] = i
	}
	var missing []string
	for _, c := range lake.RequiredColumns {
		if _, ok := col[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, errors.DataInvalid(fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")))
	}

	required := make(map[string]bool, len(lake.RequiredColumns))
	for _, c := range lake.RequiredColumns {
		required[c] = true
	}

	obs := make([]lake.Observation, 0, len(t.rows))
	for i, row := range t.rows {
		if blank(row) {
			continue
		}
		rec := make([]string, len(t.header))
		for j := range rec {
			if j < len(row) {
				rec[j] = strings.TrimSpace(row[j])
			}
		}
		cell := func(c string) string { return rec[col[c]] }

		num := func(c string) (float64, error) {
			v, ok := parseNumber(cell(c))
			if !ok {
				return 0, errors.DataInvalid(fmt.Sprintf("row %d: column %s: %q is not a number", i+2, c, cell(c)))
			}
			return v, nil
		}

		o := lake.Observation{
			Row:      len(obs),
			LakeID:   cell(lake.ColLake),
			SiteID:   cell(lake.ColSiteID),
			EutroBin: cell(lake.ColEutroBin),
			DepthBin: cell(lake.ColDepthBin),
			TempBin:  cell(lake.ColTempBin),
			Numeric:  make(map[string]float64),
			Raw:      rec,
		}
		if o.LakeID == "" {
			return nil, errors.DataInvalid(fmt.Sprintf("row %d: empty %s", i+2, lake.ColLake))
		}
		for _, f := range []struct {
			column string
			dst    *float64
		}{
			{lake.ColChl, &o.Chl},
			{lake.ColTP, &o.TP},
			{lake.ColTN, &o.TN},
			{lake.ColAvgTemp, &o.AvgTemp},
			{lake.ColSiteDepth, &o.Depth},
			{lake.ColLogEutro, &o.LogEutro},
		} {
			v, err := num(f.column)
			if err != nil {
				return nil, err
			}
			*f.dst = v
		}
		for j, h := range t.header {
			if required[h] || h == "" {
				continue
			}
			if v, ok := parseNumber(rec[j]); ok {
				o.Numeric[h] = v
			}
		}
		obs = append(obs, o)
	}
	if len(obs) == 0 {
		return nil, errors.DataInvalid("file has no data rows")
	}
	return lake.NewDataset(t.header, obs, fingerprint), nil
}

// parseNumber parses a numeric cell; missing markers parse as NaN.
func parseNumber(s string) (float64, bool) {
	switch strings.ToLower(s) {
	case "", "na", "nan", "null", "none":
		return math.NaN(), true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
