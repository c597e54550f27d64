package app

import (
	"context"
	"math"
	"time"

	"bnla/domain/lake"
	"bnla/domain/model"
	"bnla/internal/config"
	"bnla/internal/diagnostics"
	"bnla/internal/errors"
	"bnla/internal/evaluate"
	"bnla/internal/hierarchical"
	"bnla/internal/logging"
	"bnla/internal/mcmc"
	"bnla/internal/summary"
	"bnla/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExperimentService fits named model specs against one immutable dataset.
type ExperimentService struct {
	dataset *lake.Dataset
	sampler config.SamplerConfig
	logger  *zap.Logger
	repo    ports.ExperimentRepository
	draws   ports.DrawsWriter
	runID   uuid.UUID
}

// ExperimentResult is everything one fit produced. Results are never shared
// between experiments.
type ExperimentResult struct {
	ID         uuid.UUID
	Name       string
	Spec       model.Spec
	Model      *hierarchical.Model
	Samples    *mcmc.SampleSet
	Summaries  []summary.ParameterSummary
	Evaluation *evaluate.Evaluation
	Dropped    int
	StartedAt  time.Time
	Duration   time.Duration
	DrawsPath  string
}

// PosteriorMean returns the posterior mean of every model parameter.
func (r *ExperimentResult) PosteriorMean() []float64 { return r.Samples.PosteriorMean() }

// MaxRhat returns the largest finite R-hat across monitored parameters, NaN if none.
func (r *ExperimentResult) MaxRhat() float64 {
	worst := math.NaN()
	for _, s := range r.Summaries {
		if s.Rhat > worst || (math.IsNaN(worst) && !math.IsNaN(s.Rhat)) {
			worst = s.Rhat
		}
	}
	return worst
}

// Unconverged lists the monitored parameters whose R-hat exceeds the warning threshold.
func (r *ExperimentResult) Unconverged() []string {
	var out []string
	for _, s := range r.Summaries {
		if diagnostics.Exceeds(s.Rhat) {
			out = append(out, s.Name)
		}
	}
	return out
}

// Record converts the result into its persisted form.
func (r *ExperimentResult) Record(runID uuid.UUID, kind, fingerprint string) *ports.ExperimentRecord {
	rec := &ports.ExperimentRecord{
		ID:                 r.ID,
		RunID:              runID,
		Name:               r.Name,
		Kind:               kind,
		Spec:               r.Spec,
		DatasetFingerprint: fingerprint,
		Dropped:            r.Dropped,
		MaxRhat:            summary.Finite(r.MaxRhat()),
		DurationMs:         r.Duration.Milliseconds(),
		CreatedAt:          r.StartedAt.UTC(),
		Summaries:          r.Summaries,
	}
	if e := r.Evaluation; e != nil {
		rec.N = e.N
		rec.RSquared = summary.Finite(e.RSquared)
		rec.RMSE = summary.Finite(e.RMSE)
		if e.HasCriticalRatio {
			rec.PLimitedFraction = summary.Finite(e.PLimitedFraction())
		}
	}
	return rec
}

// Option configures an ExperimentService.
type Option func(*ExperimentService)

// WithRepository persists every result saved through Save.
func WithRepository(repo ports.ExperimentRepository) Option {
	return func(s *ExperimentService) { s.repo = repo }
}

// WithDrawsWriter exports the monitored draws of every fit.
func WithDrawsWriter(w ports.DrawsWriter) Option {
	return func(s *ExperimentService) { s.draws = w }
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *ExperimentService) { s.logger = l }
}

// NewExperimentService creates an experiment service over ds with the
// configured sampler defaults.
func NewExperimentService(ds *lake.Dataset, sampler config.SamplerConfig, opts ...Option) *ExperimentService {
	s := &ExperimentService{
		dataset: ds,
		sampler: sampler,
		runID:   uuid.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)
	return s
}

// Dataset returns the dataset experiments are fitted on.
func (s *ExperimentService) Dataset() *lake.Dataset { return s.dataset }

// RunID identifies every record saved by this service instance.
func (s *ExperimentService) RunID() uuid.UUID { return s.runID }

// Run fits spec on the service dataset: compile, sample, summarize, then
// evaluate the plug-in posterior-mean predictions on the training rows.
func (s *ExperimentService) Run(ctx context.Context, spec model.Spec) (*ExperimentResult, error) {
	return s.RunOn(ctx, spec, s.dataset)
}

// RunOn fits spec on ds (e.g. the training rows of a fold).
func (s *ExperimentService) RunOn(ctx context.Context, spec model.Spec, ds *lake.Dataset) (*ExperimentResult, error) {
	started := time.Now()
	log := s.logger.With(zap.String("experiment", spec.Name))

	m, err := hierarchical.Compile(spec, ds)
	if err != nil {
		return nil, err
	}
	opts := s.samplerOptions(spec, m)
	opts.Logger = log
	log.Info("sampling",
		zap.Int("rows", m.Train().Len()),
		zap.Int("dropped", m.Train().Dropped),
		zap.Int("parameters", m.Dim()),
		zap.Int("iterations", opts.Iterations),
		zap.Int("chains", opts.Chains),
	)

	set, err := mcmc.Sample(ctx, m, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "sample %s", spec.Name)
	}
	ss, err := summary.Summarize(set)
	if err != nil {
		return nil, errors.Wrapf(err, "summarize %s", spec.Name)
	}
	ev, err := evaluate.Evaluate(m, set.PosteriorMean(), m.Train())
	if err != nil {
		return nil, errors.Wrapf(err, "evaluate %s", spec.Name)
	}

	res := &ExperimentResult{
		ID:         uuid.New(),
		Name:       spec.Name,
		Spec:       spec,
		Model:      m,
		Samples:    set,
		Summaries:  ss,
		Evaluation: ev,
		Dropped:    m.Train().Dropped,
		StartedAt:  started,
		Duration:   time.Since(started),
	}
	if s.draws != nil {
		if res.DrawsPath, err = s.draws.WriteDraws(ctx, spec.Name, set); err != nil {
			return nil, errors.Wrapf(err, "export draws of %s", spec.Name)
		}
	}

	log.Info("fitted",
		zap.Float64("r_squared", ev.RSquared),
		zap.Float64("rmse", ev.RMSE),
		zap.Float64("max_rhat", res.MaxRhat()),
		zap.Duration("duration", res.Duration),
	)
	if bad := res.Unconverged(); len(bad) > 0 {
		log.Warn("chains have not converged", zap.Strings("parameters", bad), zap.Float64("threshold", diagnostics.RhatWarning))
	}
	return res, nil
}

// Save persists a result under the service run ID. It is a no-op without a repository.
func (s *ExperimentService) Save(ctx context.Context, res *ExperimentResult, kind string) (*ports.ExperimentRecord, error) {
	rec := res.Record(s.runID, kind, s.dataset.Fingerprint)
	if s.repo == nil {
		return rec, nil
	}
	if err := s.repo.SaveExperiment(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// samplerOptions merges the per-experiment overrides into the configured
// defaults and picks the monitored parameters.
func (s *ExperimentService) samplerOptions(spec model.Spec, m *hierarchical.Model) mcmc.Options {
	cfg, o := s.sampler, spec.Sampler
	if o.Iterations > 0 {
		cfg.Iterations = o.Iterations
	}
	if o.Burnin > 0 {
		cfg.Burnin = o.Burnin
	}
	if o.Chains > 0 {
		cfg.Chains = o.Chains
	}
	if o.Thin > 0 {
		cfg.Thin = o.Thin
	}
	if o.Seed != 0 {
		cfg.Seed = o.Seed
	}

	monitors := make([]int, 0, m.Dim())
	for k, p := range m.Params() {
		if !p.IsGroupEffect() || spec.MonitorGroups {
			monitors = append(monitors, k)
		}
	}
	return mcmc.Options{
		Iterations: cfg.Iterations,
		Burnin:     cfg.Burnin,
		Chains:     cfg.Chains,
		Thin:       cfg.Thin,
		Seed:       uint64(cfg.Seed),
		Monitors:   monitors,
	}
}
