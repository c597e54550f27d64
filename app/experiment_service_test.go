package app

import (
	"context"
	"math"
	"sync"
	"testing"

	"bnla/domain/lake"
	"bnla/domain/model"
	"bnla/internal/config"
	"bnla/internal/crossval"
	"bnla/internal/errors"
	"bnla/internal/limitation"
	"bnla/internal/mcmc"
	"bnla/internal/testkit"
	"bnla/ports"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func survey(t *testing.T) *lake.Dataset {
	t.Helper()
	cfg := testkit.DefaultSurveyConfig()
	cfg.LakeCount = 40
	return testkit.NewSurveyGenerator(cfg).Generate()
}

func quickSampler() config.SamplerConfig {
	return config.SamplerConfig{Iterations: 2000, Burnin: 1000, Chains: 2, Thin: 2, Seed: 42, MaxParallel: 2}
}

func mavSpec(name string) model.Spec {
	return model.Spec{
		Name: name,
		Nutrient: model.NutrientSpec{
			Kind:          model.NutrientLimiting,
			CriticalRatio: []model.Covariate{{Name: "depth", Expr: "log(depth)"}},
		},
		RandomIntercept: true,
		Priors:          map[string]string{"cr0": "uniform(1, 60)"},
	}
}

type memoryRepo struct {
	mu         sync.Mutex
	records    []*ports.ExperimentRecord
	limitation map[uuid.UUID][]limitation.Result
}

func (r *memoryRepo) SaveExperiment(_ context.Context, rec *ports.ExperimentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *memoryRepo) GetExperiment(_ context.Context, id uuid.UUID) (*ports.ExperimentRecord, error) {
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, errors.NotFound(id.String())
}

func (r *memoryRepo) ListExperiments(context.Context, int) ([]*ports.ExperimentRecord, error) {
	return r.records, nil
}

func (r *memoryRepo) SaveLimitation(_ context.Context, runID uuid.UUID, results []limitation.Result) error {
	if r.limitation == nil {
		r.limitation = make(map[uuid.UUID][]limitation.Result)
	}
	r.limitation[runID] = results
	return nil
}

func (r *memoryRepo) ListLimitation(_ context.Context, runID uuid.UUID) ([]limitation.Result, error) {
	return r.limitation[runID], nil
}

type recordingDraws struct{ names []string }

func (w *recordingDraws) WriteDraws(_ context.Context, name string, _ *mcmc.SampleSet) (string, error) {
	w.names = append(w.names, name)
	return "outputs/" + name + ".csv", nil
}

func TestRunFitsLimitingModel(t *testing.T) {
	repo := &memoryRepo{}
	draws := &recordingDraws{}
	svc := NewExperimentService(survey(t), quickSampler(), WithRepository(repo), WithDrawsWriter(draws))

	res, err := svc.Run(context.Background(), mavSpec("mav"))
	require.NoError(t, err)

	assert.Equal(t, "mav", res.Name)
	assert.NotEqual(t, uuid.Nil, res.ID)
	assert.Equal(t, 2, res.Samples.NumChains())
	assert.Equal(t, 500, res.Samples.NumDraws())
	assert.Equal(t, "outputs/mav.csv", res.DrawsPath)
	assert.Equal(t, []string{"mav"}, draws.names)

	// random intercepts are not monitored without monitor_groups
	assert.Equal(t, []string{"b0", "b_nutrient", "cr0", "cr_depth", "sigma", "tau"}, res.Samples.Names)
	assert.Len(t, res.Summaries, 6)
	assert.Len(t, res.PosteriorMean(), res.Model.Dim())

	ev := res.Evaluation
	assert.Equal(t, res.Model.Train().Len(), ev.N)
	assert.Greater(t, ev.RSquared, 0.5)
	assert.LessOrEqual(t, ev.RSquared, 1.0)
	assert.Greater(t, ev.RMSE, 0.0)
	assert.True(t, ev.HasCriticalRatio)
	assert.GreaterOrEqual(t, ev.PLimitedFraction(), 0.0)
	assert.LessOrEqual(t, ev.PLimitedFraction(), 1.0)

	rec, err := svc.Save(context.Background(), res, ports.KindFit)
	require.NoError(t, err)
	require.Len(t, repo.records, 1)
	assert.Equal(t, svc.RunID(), rec.RunID)
	assert.Equal(t, ports.KindFit, rec.Kind)
	require.NotNil(t, rec.RSquared)
	assert.InDelta(t, ev.RSquared, *rec.RSquared, 1e-12)
	assert.NotNil(t, rec.PLimitedFraction)
}

func TestRunRejectsInvalidSpec(t *testing.T) {
	svc := NewExperimentService(survey(t), quickSampler())

	_, err := svc.Run(context.Background(), model.Spec{Name: "bad name", Nutrient: model.NutrientSpec{Kind: model.NutrientTP}})
	assert.True(t, errors.HasCode(err, errors.CodeModelInvalid))

	_, err = svc.Run(context.Background(), model.Spec{
		Name:       "unknown",
		Nutrient:   model.NutrientSpec{Kind: model.NutrientTP},
		Covariates: []model.Covariate{{Name: "x", Expr: "no_such_column * 2"}},
	})
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	svc := NewExperimentService(survey(t), quickSampler())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx, mavSpec("mav"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSamplerOverrides(t *testing.T) {
	svc := NewExperimentService(survey(t), quickSampler())
	spec := model.Spec{
		Name:     "tp",
		Nutrient: model.NutrientSpec{Kind: model.NutrientTP},
		Sampler:  model.SamplerSpec{Iterations: 600, Burnin: 100, Chains: 3, Thin: 1, Seed: 5},
	}
	res, err := svc.Run(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Samples.NumChains())
	assert.Equal(t, 500, res.Samples.NumDraws())
	assert.False(t, res.Evaluation.HasCriticalRatio)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(&ExperimentResult{Name: "a"}))
	require.NoError(t, reg.Add(&ExperimentResult{Name: "b"}))
	assert.Error(t, reg.Add(&ExperimentResult{Name: "a"}))

	assert.Equal(t, []string{"a", "b"}, reg.Names())
	assert.Equal(t, 2, reg.Len())
	got, err := reg.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)
	_, err = reg.Get("c")
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestRunAll(t *testing.T) {
	svc := NewExperimentService(survey(t), quickSampler())
	specs := []model.Spec{
		{Name: "tp", Nutrient: model.NutrientSpec{Kind: model.NutrientTP}},
		{Name: "tn", Nutrient: model.NutrientSpec{Kind: model.NutrientTN}},
		{Name: "tp_temp", Nutrient: model.NutrientSpec{Kind: model.NutrientTP}, Covariates: []model.Covariate{{Name: "temp", Expr: "avg_temp"}}},
	}
	reg, err := svc.RunAll(context.Background(), specs)
	require.NoError(t, err)
	assert.Equal(t, []string{"tp", "tn", "tp_temp"}, reg.Names())

	tp, err := reg.Get("tp")
	require.NoError(t, err)
	tn, err := reg.Get("tn")
	require.NoError(t, err)
	assert.NotEqual(t, tp.ID, tn.ID)
	assert.NotSame(t, tp.Samples, tn.Samples)

	_, err = svc.RunAll(context.Background(), append(specs, specs[0]))
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}

func TestCrossValidateByYear(t *testing.T) {
	repo := &memoryRepo{}
	ds := survey(t)
	svc := NewExperimentService(ds, quickSampler(), WithRepository(repo))
	folds, err := crossval.ByColumn(ds, "year")
	require.NoError(t, err)

	cv, err := svc.CrossValidate(context.Background(), model.Spec{
		Name:            "tp_ri",
		Nutrient:        model.NutrientSpec{Kind: model.NutrientTP},
		RandomIntercept: true,
	}, folds)
	require.NoError(t, err)
	require.Len(t, cv.Folds, len(folds))

	total := 0
	for i, f := range cv.Folds {
		assert.Equal(t, folds[i].Name, f.Fold)
		assert.Equal(t, folds[i].Test.Len(), f.HeldOut.N)
		assert.LessOrEqual(t, f.Train.RSquared, 1.0)
		total += f.HeldOut.N
	}
	assert.Equal(t, total, cv.Pooled.N)
	assert.LessOrEqual(t, cv.Pooled.RSquared, 1.0)
	assert.Greater(t, cv.Pooled.RMSE, 0.0)

	require.NoError(t, svc.SaveCrossValidation(context.Background(), cv))
	require.Len(t, repo.records, len(folds))
	for _, rec := range repo.records {
		assert.Equal(t, ports.KindCrossVal, rec.Kind)
		assert.NotNil(t, rec.HeldOutRMSE)
	}
}

func TestSelectBackward(t *testing.T) {
	svc := NewExperimentService(survey(t), quickSampler())
	spec := model.Spec{
		Name:     "tp_cov",
		Nutrient: model.NutrientSpec{Kind: model.NutrientTP},
		Covariates: []model.Covariate{
			{Name: "temp", Expr: "avg_temp"},
			{Name: "depth", Expr: "log(depth)"},
		},
	}
	res, err := svc.SelectBackward(context.Background(), spec)
	require.NoError(t, err)

	steps := res.Outcome.Steps
	require.NotEmpty(t, steps)
	assert.Len(t, res.Fits, len(steps))
	assert.Equal(t, "tp_cov", steps[0].Spec.Name)
	assert.Empty(t, steps[len(steps)-1].Dropped)
	for _, s := range steps[:len(steps)-1] {
		assert.NotEmpty(t, s.Dropped)
	}
	assert.Len(t, res.Outcome.Kept(), 2-(len(steps)-1))
}

func TestLimitationEndToEnd(t *testing.T) {
	repo := &memoryRepo{}
	ds := survey(t)
	svc := NewExperimentService(ds, quickSampler(), WithRepository(repo))

	reg, err := svc.RunAll(context.Background(), []model.Spec{mavSpec("mav"), NPRatioSpec("np")})
	require.NoError(t, err)
	cal, _ := reg.Get("mav")
	np, _ := reg.Get("np")

	results, err := svc.Limitation(context.Background(), LimitationRequest{Calibrated: cal, NPRatio: np, Draws: 500, Seed: 9})
	require.NoError(t, err)
	require.Len(t, results, ds.NumLakes())
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Probability, 0.0)
		assert.LessOrEqual(t, r.Probability, 1.0)
		assert.GreaterOrEqual(t, r.MeanCriticalRatio, 1.0)
		assert.Greater(t, r.MeanNPRatio, 0.0)
		assert.Greater(t, r.Depth, 0.0)
	}

	runID, err := svc.SaveLimitation(context.Background(), results)
	require.NoError(t, err)
	assert.Len(t, repo.limitation[runID], len(results))

	_, err = svc.Limitation(context.Background(), LimitationRequest{Calibrated: np, NPRatio: np})
	assert.True(t, errors.HasCode(err, errors.CodeModelInvalid))
}

func TestLimitationSkipsLakesMissingFromOneSource(t *testing.T) {
	full := survey(t)
	missing := full.Lakes()[0]
	obs := make([]lake.Observation, len(full.Observations))
	copy(obs, full.Observations)
	for i := range obs {
		if obs[i].LakeID == missing {
			obs[i].Chl = math.NaN()
		}
	}
	ds := lake.NewDataset(full.Header, obs, full.Fingerprint)

	core, logs := observer.New(zap.WarnLevel)
	svc := NewExperimentService(ds, quickSampler(), WithLogger(zap.New(core)))
	reg, err := svc.RunAll(context.Background(), []model.Spec{mavSpec("mav"), NPRatioSpec("np")})
	require.NoError(t, err)
	cal, _ := reg.Get("mav")
	np, _ := reg.Get("np")

	results, err := svc.Limitation(context.Background(), LimitationRequest{Calibrated: cal, NPRatio: np, Draws: 200, Seed: 3})
	require.NoError(t, err)
	assert.Len(t, results, ds.NumLakes()-1)
	_, ok := limitation.ByLake(results)[missing]
	assert.False(t, ok)

	warnings := logs.FilterMessageSnippet("not classified").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, []interface{}{missing}, warnings[0].ContextMap()["lakes"])
}
