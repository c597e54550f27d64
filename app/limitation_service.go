package app

import (
	"context"
	"sort"

	"bnla/domain/model"
	"bnla/internal/errors"
	"bnla/internal/limitation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NPRatioSpec is the intercept-only model of log(tn/tp) with a per-lake random
// intercept whose draws feed the limitation classifier.
func NPRatioSpec(name string) model.Spec {
	return model.Spec{
		Name:            name,
		Response:        "log(tn/tp)",
		Nutrient:        model.NutrientSpec{Kind: model.NutrientNone},
		RandomIntercept: true,
		MonitorGroups:   true,
	}
}

// LimitationRequest names the two fitted experiments to combine.
type LimitationRequest struct {
	// Calibrated is a limiting-nutrient model with a critical ratio.
	Calibrated *ExperimentResult
	// NPRatio is an NPRatioSpec-style model with monitored random intercepts.
	NPRatio *ExperimentResult
	Draws   int
	Seed    uint64
}

// Limitation estimates per-lake probabilities of phosphorus limitation from
// the critical-ratio posterior of the calibrated model and the lake-mean
// log N:P posterior of the ratio model.
func (s *ExperimentService) Limitation(ctx context.Context, req LimitationRequest) ([]limitation.Result, error) {
	if req.Calibrated == nil || req.NPRatio == nil {
		return nil, errors.InvalidInput("limitation needs a calibrated and an N:P ratio result")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cal := req.Calibrated
	critical, err := limitation.CriticalRatioDraws(cal.Model, cal.Samples, cal.Model.Train())
	if err != nil {
		return nil, errors.Wrapf(err, "critical ratio draws from %s", cal.Name)
	}
	logNP, err := limitation.LogNPDraws(req.NPRatio.Model, req.NPRatio.Samples)
	if err != nil {
		return nil, errors.Wrapf(err, "N:P draws from %s", req.NPRatio.Name)
	}
	critical, logNP, excluded := commonLakes(critical, logNP)
	if len(excluded) > 0 {
		s.logger.Warn("lakes missing from one draw source are not classified",
			zap.Strings("lakes", excluded),
			zap.String("calibrated", cal.Name),
			zap.String("np_ratio", req.NPRatio.Name),
		)
	}
	results, err := limitation.Classify(critical, logNP, limitation.Options{Draws: req.Draws, Seed: req.Seed})
	if err != nil {
		return nil, err
	}
	results = limitation.WithLakeAttributes(results, s.dataset)

	limited := 0
	for _, r := range results {
		if r.Probability > 0.5 {
			limited++
		}
	}
	s.logger.Info("limitation classified",
		zap.String("calibrated", cal.Name),
		zap.String("np_ratio", req.NPRatio.Name),
		zap.Int("lakes", len(results)),
		zap.Int("likely_p_limited", limited),
	)
	return results, nil
}

// commonLakes restricts both sources to the lakes they share. The two models
// drop different rows with missing values, so their lake sets can differ.
// Excluded lakes are returned sorted.
func commonLakes(critical, logNP limitation.LakeDraws) (limitation.LakeDraws, limitation.LakeDraws, []string) {
	var excluded []string
	cr := make(limitation.LakeDraws, len(critical))
	np := make(limitation.LakeDraws, len(logNP))
	for id, d := range critical {
		if other, ok := logNP[id]; ok {
			cr[id] = d
			np[id] = other
		} else {
			excluded = append(excluded, id)
		}
	}
	for id := range logNP {
		if _, ok := critical[id]; !ok {
			excluded = append(excluded, id)
		}
	}
	sort.Strings(excluded)
	return cr, np, excluded
}

// SaveLimitation persists limitation results under the service run ID.
func (s *ExperimentService) SaveLimitation(ctx context.Context, results []limitation.Result) (uuid.UUID, error) {
	if s.repo == nil {
		return s.runID, nil
	}
	return s.runID, s.repo.SaveLimitation(ctx, s.runID, results)
}
