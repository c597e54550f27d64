// Package selection implements backward elimination of fixed-effect covariates
// on their 95% credible intervals.
package selection

import (
	"context"
	"fmt"
	"math"

	"bnla/domain/model"
	"bnla/internal/errors"
	"bnla/internal/summary"
)

// FitFunc fits one spec and returns its parameter summaries.
type FitFunc func(ctx context.Context, spec model.Spec) ([]summary.ParameterSummary, error)

// Step records one fit of the elimination.
type Step struct {
	Spec       model.Spec                 `json:"spec"`
	Covariates []string                   `json:"covariates"`
	Summaries  []summary.ParameterSummary `json:"summaries"`
	// Dropped is the covariate removed after this fit, empty on the last step.
	Dropped string `json:"dropped,omitempty"`
}

// Outcome is the full elimination path.
type Outcome struct {
	Steps []Step     `json:"steps"`
	Final model.Spec `json:"final"`
}

// Kept returns the covariates of the final model.
func (o *Outcome) Kept() []string {
	if len(o.Steps) == 0 {
		return nil
	}
	return o.Steps[len(o.Steps)-1].Covariates
}

// Backward fits spec, and while any covariate's credible interval includes
// zero, drops the one with the weakest signal (|mean|/sd) and refits. It stops
// when every remaining covariate excludes zero or none remain.
func Backward(ctx context.Context, spec model.Spec, fit FitFunc) (*Outcome, error) {
	out := &Outcome{}
	current := spec
	for step := 0; ; step++ {
		if step > 0 {
			current.Name = fmt.Sprintf("%s_s%d", spec.Name, step)
		}
		ss, err := fit(ctx, current)
		if err != nil {
			return nil, errors.Wrapf(err, "selection step %d", step)
		}
		names := covariateNames(current)
		s := Step{Spec: current, Covariates: names, Summaries: ss}

		weakest, err := Weakest(names, ss)
		if err != nil {
			return nil, err
		}
		if weakest == "" {
			out.Steps = append(out.Steps, s)
			out.Final = current
			return out, nil
		}
		s.Dropped = weakest
		out.Steps = append(out.Steps, s)
		current = current.WithoutCovariate(weakest)
	}
}

// Weakest returns the covariate with the smallest |mean|/sd among those
// whose 95% interval includes zero, or "" when every covariate excludes zero.
func Weakest(covariates []string, ss []summary.ParameterSummary) (string, error) {
	byName := summary.ByName(ss)
	weakest := ""
	best := math.Inf(1)
	for _, c := range covariates {
		s, ok := byName[model.CovariateParam(c)]
		if !ok {
			return "", errors.NotFound(fmt.Sprintf("summary for covariate %s", c))
		}
		if s.ExcludesZero() {
			continue
		}
		if signal := s.Signal(); signal < best || weakest == "" {
			weakest, best = c, signal
		}
	}
	return weakest, nil
}

func covariateNames(spec model.Spec) []string {
	out := make([]string, len(spec.Covariates))
	for i, c := range spec.Covariates {
		out[i] = c.Name
	}
	return out
}
