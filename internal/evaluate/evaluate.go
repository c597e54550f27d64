package evaluate

import (
	"encoding/json"

	"bnla/internal/errors"
	"bnla/internal/hierarchical"
	"bnla/internal/summary"
)

// Evaluation is the plug-in fit of a model on one design.
type Evaluation struct {
	Observed  []float64
	Predicted []float64

	N        int
	RSquared float64
	RMSE     float64
	// PLimited counts rows where TP is the binding minimum; only meaningful
	// when HasCriticalRatio is set.
	PLimited         int
	HasCriticalRatio bool
	Dropped          int
}

// PLimitedFraction is the share of rows where phosphorus is limiting.
func (e *Evaluation) PLimitedFraction() float64 {
	if e.N == 0 || !e.HasCriticalRatio {
		return 0
	}
	return float64(e.PLimited) / float64(e.N)
}

// Residuals returns observed minus predicted.
func (e *Evaluation) Residuals() []float64 {
	out := make([]float64, len(e.Observed))
	for i := range out {
		out[i] = e.Observed[i] - e.Predicted[i]
	}
	return out
}

// Evaluate plugs point estimates theta (normally posterior means) into the
// model's deterministic part for every row of d.
func Evaluate(m *hierarchical.Model, theta []float64, d *hierarchical.Design) (*Evaluation, error) {
	if len(theta) != m.Dim() {
		return nil, errors.InvalidInput("parameter vector does not match the model")
	}
	e := &Evaluation{
		Observed:         d.Y,
		Predicted:        m.Predict(theta, d),
		Dropped:          d.Dropped,
		HasCriticalRatio: m.HasCriticalRatio(),
	}
	for _, limited := range m.PhosphorusLimited(theta, d) {
		if limited {
			e.PLimited++
		}
	}
	if err := e.score(); err != nil {
		return nil, err
	}
	return e, nil
}

// Pool concatenates the residual sets of several evaluations (e.g. held-out
// folds) and scores the concatenation with the same formulas.
func Pool(evals ...*Evaluation) (*Evaluation, error) {
	if len(evals) == 0 {
		return nil, errors.InvalidInput("nothing to pool")
	}
	out := &Evaluation{HasCriticalRatio: true}
	for _, e := range evals {
		out.Observed = append(out.Observed, e.Observed...)
		out.Predicted = append(out.Predicted, e.Predicted...)
		out.PLimited += e.PLimited
		out.Dropped += e.Dropped
		out.HasCriticalRatio = out.HasCriticalRatio && e.HasCriticalRatio
	}
	if err := out.score(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Evaluation) score() error {
	e.N = len(e.Observed)
	var err error
	if e.RSquared, err = RSquared(e.Observed, e.Predicted); err != nil {
		return err
	}
	if e.RMSE, err = RMSE(e.Observed, e.Predicted); err != nil {
		return err
	}
	return nil
}

// MarshalJSON writes undefined metrics (R² of a constant response) as null.
func (e *Evaluation) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		N                int      `json:"n"`
		RSquared         *float64 `json:"r_squared"`
		RMSE             *float64 `json:"rmse"`
		PLimitedFraction *float64 `json:"p_limited_fraction,omitempty"`
		Dropped          int      `json:"dropped"`
	}{
		N:                e.N,
		RSquared:         summary.Finite(e.RSquared),
		RMSE:             summary.Finite(e.RMSE),
		PLimitedFraction: e.limitedFraction(),
		Dropped:          e.Dropped,
	})
}

func (e *Evaluation) limitedFraction() *float64 {
	if !e.HasCriticalRatio {
		return nil
	}
	return summary.Finite(e.PLimitedFraction())
}
