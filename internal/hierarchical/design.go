package hierarchical

import (
	"fmt"
	"math"

	"bnla/domain/lake"
	"bnla/domain/model"
	"bnla/internal/errors"
)

// Design holds the evaluated response and covariates of a dataset under one
// model. Rows whose response or covariates are not finite are dropped.
type Design struct {
	Y    []float64
	TP   []float64
	TN   []float64
	LogX []float64
	// W and Z are indexed [covariate][row].
	W [][]float64
	Z [][]float64
	// Group is the model's lake index per row, -1 for lakes unseen in training.
	Group []int
	Bin   []int
	Lake  []string
	Rows  []int

	Dropped int
}

// Len returns the number of retained rows.
func (d *Design) Len() int { return len(d.Y) }

type rowValues struct {
	y, tp, tn, logX float64
	w, z            []float64
	bin             int
}

// Design evaluates the model's expressions over ds. Lakes unseen at compile
// time get no random intercept; unseen slope bins are an error.
func (m *Model) Design(ds *lake.Dataset) (*Design, error) {
	return m.buildDesign(ds, func(id string) int {
		if g, ok := m.lakeIdx[id]; ok {
			return g
		}
		return -1
	})
}

func (m *Model) buildDesign(ds *lake.Dataset, groupOf func(string) int) (*Design, error) {
	d := &Design{
		W: make([][]float64, len(m.covExprs)),
		Z: make([][]float64, len(m.crExprs)),
	}
	for _, o := range ds.Observations {
		rv, ok, err := m.evalRow(o)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d (lake %s)", o.Row, o.LakeID)
		}
		if !ok {
			d.Dropped++
			continue
		}
		d.Y = append(d.Y, rv.y)
		d.TP = append(d.TP, rv.tp)
		d.TN = append(d.TN, rv.tn)
		d.LogX = append(d.LogX, rv.logX)
		for k := range rv.w {
			d.W[k] = append(d.W[k], rv.w[k])
		}
		for k := range rv.z {
			d.Z[k] = append(d.Z[k], rv.z[k])
		}
		d.Group = append(d.Group, groupOf(o.LakeID))
		d.Bin = append(d.Bin, rv.bin)
		d.Lake = append(d.Lake, o.LakeID)
		d.Rows = append(d.Rows, o.Row)
	}
	return d, nil
}

func (m *Model) evalRow(o lake.Observation) (rowValues, bool, error) {
	env := m.rowEnv(o)
	rv := rowValues{tp: o.TP, tn: o.TN}

	var err error
	if rv.y, err = m.response.Eval(env); err != nil {
		return rv, false, err
	}
	if !finite(rv.y) {
		return rv, false, nil
	}

	switch m.Spec.Nutrient.Kind {
	case model.NutrientTP:
		rv.logX = math.Log(o.TP)
	case model.NutrientTN:
		rv.logX = math.Log(o.TN)
	case model.NutrientExpression:
		x, err := m.nutrient.Eval(env)
		if err != nil {
			return rv, false, err
		}
		rv.logX = math.Log(x)
	case model.NutrientLimiting:
		if !(o.TP > 0) || !(o.TN > 0) || !finite(o.TP) || !finite(o.TN) {
			return rv, false, nil
		}
	}
	if !finite(rv.logX) {
		return rv, false, nil
	}

	if rv.w, err = evalAll(m.covExprs, env); err != nil {
		return rv, false, err
	}
	if rv.z, err = evalAll(m.crExprs, env); err != nil {
		return rv, false, err
	}
	if !allFinite(rv.w) || !allFinite(rv.z) {
		return rv, false, nil
	}

	if m.Spec.SlopeBy != "" {
		level, _ := o.Bin(m.Spec.SlopeBy)
		idx, ok := m.levelIdx[level]
		if !ok {
			return rv, false, errors.ModelInvalid(fmt.Sprintf("%s level %q was not seen when the model was compiled", m.Spec.SlopeBy, level))
		}
		rv.bin = idx
	}
	return rv, true, nil
}

func evalAll(exprs []*compiledCovariate, env map[string]any) ([]float64, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	out := make([]float64, len(exprs))
	for k, c := range exprs {
		v, err := c.expr.Eval(env)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if !finite(x) {
			return false
		}
	}
	return true
}
