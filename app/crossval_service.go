package app

import (
	"context"
	"fmt"

	"bnla/domain/model"
	"bnla/internal/crossval"
	"bnla/internal/errors"
	"bnla/internal/evaluate"
	"bnla/internal/summary"
	"bnla/ports"

	"go.uber.org/zap"
)

// FoldResult is the fit of one training split and its held-out evaluation.
type FoldResult struct {
	Fold    string
	Result  *ExperimentResult
	Train   *evaluate.Evaluation
	HeldOut *evaluate.Evaluation
}

// CrossValidationResult holds every fold plus the pooled held-out evaluation.
type CrossValidationResult struct {
	Spec   model.Spec
	Folds  []FoldResult
	Pooled *evaluate.Evaluation
}

// CrossValidate fits spec on the training rows of every fold and evaluates the
// posterior-mean predictions on the held-out rows. Lakes absent from a
// training split are predicted without a random intercept.
func (s *ExperimentService) CrossValidate(ctx context.Context, spec model.Spec, folds []crossval.Fold) (*CrossValidationResult, error) {
	if len(folds) == 0 {
		return nil, errors.InvalidInput("cross-validation needs at least one fold")
	}
	out := &CrossValidationResult{Spec: spec, Folds: make([]FoldResult, len(folds))}

	err := s.bounded(ctx, len(folds), func(ctx context.Context, i int) error {
		fold := folds[i]
		fspec := spec
		fspec.Name = fmt.Sprintf("%s_fold%d", spec.Name, i+1)

		res, err := s.RunOn(ctx, fspec, fold.Train)
		if err != nil {
			return errors.Wrapf(err, "fold %s", fold.Name)
		}
		d, err := res.Model.Design(fold.Test)
		if err != nil {
			return errors.Wrapf(err, "held-out design for fold %s", fold.Name)
		}
		heldOut, err := evaluate.Evaluate(res.Model, res.PosteriorMean(), d)
		if err != nil {
			return errors.Wrapf(err, "held-out evaluation for fold %s", fold.Name)
		}
		out.Folds[i] = FoldResult{Fold: fold.Name, Result: res, Train: res.Evaluation, HeldOut: heldOut}

		s.logger.Info("fold evaluated",
			zap.String("experiment", spec.Name),
			zap.String("fold", fold.Name),
			zap.Float64("train_r_squared", res.Evaluation.RSquared),
			zap.Float64("held_out_r_squared", heldOut.RSquared),
			zap.Float64("held_out_rmse", heldOut.RMSE),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	heldOut := make([]*evaluate.Evaluation, len(out.Folds))
	for i, f := range out.Folds {
		heldOut[i] = f.HeldOut
	}
	if out.Pooled, err = evaluate.Pool(heldOut...); err != nil {
		return nil, errors.Wrap(err, "pool held-out folds")
	}
	return out, nil
}

// SaveCrossValidation persists every fold as a crossval record carrying its
// held-out metrics.
func (s *ExperimentService) SaveCrossValidation(ctx context.Context, cv *CrossValidationResult) error {
	if s.repo == nil {
		return nil
	}
	for _, f := range cv.Folds {
		rec := f.Result.Record(s.runID, ports.KindCrossVal, s.dataset.Fingerprint+"/"+f.Fold)
		rec.HeldOutRSquared = summary.Finite(f.HeldOut.RSquared)
		rec.HeldOutRMSE = summary.Finite(f.HeldOut.RMSE)
		if err := s.repo.SaveExperiment(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
