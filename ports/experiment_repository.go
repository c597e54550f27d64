package ports

import (
	"context"
	"time"

	"bnla/domain/model"
	"bnla/internal/limitation"
	"bnla/internal/summary"

	"github.com/google/uuid"
)

// Experiment record kinds.
const (
	KindFit        = "fit"
	KindCrossVal   = "crossval"
	KindSelection  = "selection"
	KindLimitation = "limitation"
)

// ExperimentRecord is the persisted outcome of one fitted experiment.
type ExperimentRecord struct {
	ID                 uuid.UUID  `json:"id" db:"id"`
	RunID              uuid.UUID  `json:"run_id" db:"run_id"`
	Name               string     `json:"name" db:"name"`
	Kind               string     `json:"kind" db:"kind"`
	Spec               model.Spec `json:"spec" db:"-"`
	DatasetFingerprint string     `json:"dataset_fingerprint" db:"dataset_fingerprint"`
	N                  int        `json:"n" db:"n"`
	Dropped            int        `json:"dropped" db:"dropped"`
	RSquared           *float64   `json:"r_squared" db:"r_squared"`
	RMSE               *float64   `json:"rmse" db:"rmse"`
	// HeldOutRSquared and HeldOutRMSE are set for cross-validation folds.
	HeldOutRSquared    *float64   `json:"held_out_r_squared,omitempty" db:"held_out_r_squared"`
	HeldOutRMSE        *float64   `json:"held_out_rmse,omitempty" db:"held_out_rmse"`
	PLimitedFraction   *float64   `json:"p_limited_fraction,omitempty" db:"p_limited_fraction"`
	MaxRhat            *float64   `json:"max_rhat" db:"max_rhat"`
	DurationMs         int64      `json:"duration_ms" db:"duration_ms"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`

	Summaries []summary.ParameterSummary `json:"summaries" db:"-"`
}

// ExperimentRepository persists experiment records and limitation results.
type ExperimentRepository interface {
	// SaveExperiment stores a record with its parameter summaries.
	SaveExperiment(ctx context.Context, rec *ExperimentRecord) error

	// GetExperiment loads one record with its summaries.
	GetExperiment(ctx context.Context, id uuid.UUID) (*ExperimentRecord, error)

	// ListExperiments returns the most recent records, newest first, without summaries.
	ListExperiments(ctx context.Context, limit int) ([]*ExperimentRecord, error)

	// SaveLimitation stores the per-lake limitation results of a run.
	SaveLimitation(ctx context.Context, runID uuid.UUID, results []limitation.Result) error

	// ListLimitation returns the limitation results of a run ordered by lake.
	ListLimitation(ctx context.Context, runID uuid.UUID) ([]limitation.Result, error)
}
