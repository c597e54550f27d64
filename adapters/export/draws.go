package export

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"bnla/internal/errors"
	"bnla/internal/mcmc"
	"bnla/ports"
)

// DrawsWriter writes monitored posterior draws as (optionally compressed) CSV.
type DrawsWriter struct {
	dir   string
	codec string
}

var _ ports.DrawsWriter = (*DrawsWriter)(nil)

// NewDrawsWriter creates a writer into dir using codec (zstd, lz4 or none).
func NewDrawsWriter(dir, codec string) (*DrawsWriter, error) {
	if err := ValidateCodec(codec); err != nil {
		return nil, err
	}
	return &DrawsWriter{dir: dir, codec: codec}, nil
}

// WriteDraws writes <dir>/<name>_draws.csv[.zst|.lz4] with columns chain,
// draw and one column per monitored parameter.
func (w *DrawsWriter) WriteDraws(ctx context.Context, name string, set *mcmc.SampleSet) (path string, err error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create %s", w.dir)
	}
	path = filepath.Join(w.dir, name+"_draws.csv"+Extension(w.codec))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()

	zw, err := compressWriter(f, w.codec)
	if err != nil {
		return "", err
	}
	if err := writeDraws(ctx, zw, set); err != nil {
		zw.Close()
		return "", errors.Wrapf(err, "write %s", path)
	}
	if err := zw.Close(); err != nil {
		return "", errors.Wrapf(err, "flush %s", path)
	}
	return path, nil
}

func writeDraws(ctx context.Context, w io.Writer, set *mcmc.SampleSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"chain", "draw"}, set.Names...)); err != nil {
		return err
	}
	rec := make([]string, len(set.Names)+2)
	for c, chain := range set.Draws {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec[0] = strconv.Itoa(c + 1)
		for d, draw := range chain {
			rec[1] = strconv.Itoa(d + 1)
			for k, v := range draw {
				rec[k+2] = strconv.FormatFloat(v, 'g', -1, 64)
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadDraws reads a file written by WriteDraws back into header and records.
func ReadDraws(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	r, err := decompressReader(f, CodecFor(path))
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "read %s", path)
	}
	if len(rows) == 0 {
		return nil, nil, errors.DataInvalid(path + " is empty")
	}
	return rows[0], rows[1:], nil
}
