package app

import (
	"context"
	"sync"

	"bnla/domain/model"
	"bnla/internal/selection"
	"bnla/internal/summary"

	"go.uber.org/zap"
)

// SelectionResult is a backward-elimination path with the fit behind every step.
type SelectionResult struct {
	Outcome *selection.Outcome
	// Fits are the experiment results in step order.
	Fits []*ExperimentResult
}

// SelectBackward runs backward elimination of spec's fixed-effect covariates.
// Each step is a full refit of the reduced spec.
func (s *ExperimentService) SelectBackward(ctx context.Context, spec model.Spec) (*SelectionResult, error) {
	var mu sync.Mutex
	var fits []*ExperimentResult
	fit := func(ctx context.Context, spec model.Spec) ([]summary.ParameterSummary, error) {
		res, err := s.Run(ctx, spec)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		fits = append(fits, res)
		mu.Unlock()
		return res.Summaries, nil
	}

	outcome, err := selection.Backward(ctx, spec, fit)
	if err != nil {
		return nil, err
	}
	for _, step := range outcome.Steps {
		if step.Dropped != "" {
			s.logger.Info("covariate dropped",
				zap.String("experiment", spec.Name),
				zap.String("step", step.Spec.Name),
				zap.String("covariate", step.Dropped),
			)
		}
	}
	s.logger.Info("selection finished", zap.String("experiment", spec.Name), zap.Strings("kept", outcome.Kept()))
	return &SelectionResult{Outcome: outcome, Fits: fits}, nil
}
