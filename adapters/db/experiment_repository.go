package db

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"math"
	"time"

	"bnla/internal/errors"
	"bnla/internal/limitation"
	"bnla/internal/summary"
	"bnla/ports"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// DefaultListLimit caps ListExperiments when no positive limit is given.
const DefaultListLimit = 100

// experimentRepository implements ports.ExperimentRepository
type experimentRepository struct {
	db *sqlx.DB
}

// NewExperimentRepository creates a repository over a migrated database
func NewExperimentRepository(db *sqlx.DB) ports.ExperimentRepository {
	return &experimentRepository{db: db}
}

type experimentRow struct {
	ID                 uuid.UUID `db:"id"`
	RunID              uuid.UUID `db:"run_id"`
	Name               string    `db:"name"`
	Kind               string    `db:"kind"`
	Spec               string    `db:"spec"`
	DatasetFingerprint string    `db:"dataset_fingerprint"`
	N                  int       `db:"n"`
	Dropped            int       `db:"dropped"`
	RSquared           *float64  `db:"r_squared"`
	RMSE               *float64  `db:"rmse"`
	HeldOutRSquared    *float64  `db:"held_out_r_squared"`
	HeldOutRMSE        *float64  `db:"held_out_rmse"`
	PLimitedFraction   *float64  `db:"p_limited_fraction"`
	MaxRhat            *float64  `db:"max_rhat"`
	DurationMs         int64     `db:"duration_ms"`
	CreatedAt          time.Time `db:"created_at"`
}

type summaryRow struct {
	ExperimentID uuid.UUID       `db:"experiment_id"`
	Position     int             `db:"position"`
	Name         string          `db:"name"`
	Mean         sql.NullFloat64 `db:"mean"`
	SD           sql.NullFloat64 `db:"sd"`
	Lower        sql.NullFloat64 `db:"q025"`
	Median       sql.NullFloat64 `db:"q50"`
	Upper        sql.NullFloat64 `db:"q975"`
	Rhat         sql.NullFloat64 `db:"rhat"`
	ESS          sql.NullFloat64 `db:"ess"`
}

type limitationRow struct {
	RunID             uuid.UUID       `db:"run_id"`
	LakeID            string          `db:"lake_id"`
	Probability       float64         `db:"p_limitation"`
	MeanCriticalRatio sql.NullFloat64 `db:"mean_critical_ratio"`
	MeanNPRatio       sql.NullFloat64 `db:"mean_np_ratio"`
	Depth             sql.NullFloat64 `db:"depth"`
	Eutro             sql.NullFloat64 `db:"eutro"`
	CreatedAt         time.Time       `db:"created_at"`
}

const experimentColumns = `id, run_id, name, kind, spec, dataset_fingerprint, n, dropped,
	r_squared, rmse, held_out_r_squared, held_out_rmse, p_limited_fraction, max_rhat,
	duration_ms, created_at`

// SaveExperiment inserts the record and its summaries in one transaction
func (r *experimentRepository) SaveExperiment(ctx context.Context, rec *ports.ExperimentRecord) error {
	spec, err := json.Marshal(rec.Spec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal spec")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	row := experimentRow{
		ID:                 rec.ID,
		RunID:              rec.RunID,
		Name:               rec.Name,
		Kind:               rec.Kind,
		Spec:               string(spec),
		DatasetFingerprint: rec.DatasetFingerprint,
		N:                  rec.N,
		Dropped:            rec.Dropped,
		RSquared:           rec.RSquared,
		RMSE:               rec.RMSE,
		HeldOutRSquared:    rec.HeldOutRSquared,
		HeldOutRMSE:        rec.HeldOutRMSE,
		PLimitedFraction:   rec.PLimitedFraction,
		MaxRhat:            rec.MaxRhat,
		DurationMs:         rec.DurationMs,
		CreatedAt:          rec.CreatedAt.UTC(),
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `INSERT INTO experiments (`+experimentColumns+`) VALUES (
		:id, :run_id, :name, :kind, :spec, :dataset_fingerprint, :n, :dropped,
		:r_squared, :rmse, :held_out_r_squared, :held_out_rmse, :p_limited_fraction, :max_rhat,
		:duration_ms, :created_at)`, row)
	if err != nil {
		return errors.DatabaseError("failed to insert experiment "+rec.Name, err)
	}

	for i, s := range rec.Summaries {
		_, err = tx.NamedExecContext(ctx, `INSERT INTO parameter_summaries
			(experiment_id, position, name, mean, sd, q025, q50, q975, rhat, ess) VALUES
			(:experiment_id, :position, :name, :mean, :sd, :q025, :q50, :q975, :rhat, :ess)`,
			summaryRow{
				ExperimentID: rec.ID,
				Position:     i,
				Name:         s.Name,
				Mean:         nullFloat(s.Mean),
				SD:           nullFloat(s.SD),
				Lower:        nullFloat(s.Lower),
				Median:       nullFloat(s.Median),
				Upper:        nullFloat(s.Upper),
				Rhat:         nullFloat(s.Rhat),
				ESS:          nullFloat(s.ESS),
			})
		if err != nil {
			return errors.DatabaseError("failed to insert summary "+s.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit experiment", err)
	}
	return nil
}

// GetExperiment loads one record with its summaries in parameter order
func (r *experimentRepository) GetExperiment(ctx context.Context, id uuid.UUID) (*ports.ExperimentRecord, error) {
	var row experimentRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`), id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("experiment " + id.String())
		}
		return nil, errors.DatabaseError("failed to get experiment", err)
	}
	rec, err := row.record()
	if err != nil {
		return nil, err
	}

	var rows []summaryRow
	err = r.db.SelectContext(ctx, &rows, r.db.Rebind(`SELECT
		experiment_id, position, name, mean, sd, q025, q50, q975, rhat, ess
		FROM parameter_summaries WHERE experiment_id = ? ORDER BY position`), id)
	if err != nil {
		return nil, errors.DatabaseError("failed to get parameter summaries", err)
	}
	rec.Summaries = make([]summary.ParameterSummary, len(rows))
	for i, s := range rows {
		rec.Summaries[i] = summary.ParameterSummary{
			Name:   s.Name,
			Mean:   floatOrNaN(s.Mean),
			SD:     floatOrNaN(s.SD),
			Lower:  floatOrNaN(s.Lower),
			Median: floatOrNaN(s.Median),
			Upper:  floatOrNaN(s.Upper),
			Rhat:   floatOrNaN(s.Rhat),
			ESS:    floatOrNaN(s.ESS),
		}
	}
	return rec, nil
}

// ListExperiments returns the newest records first, without summaries
func (r *experimentRepository) ListExperiments(ctx context.Context, limit int) ([]*ports.ExperimentRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var rows []experimentRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`SELECT `+experimentColumns+`
		FROM experiments ORDER BY created_at DESC, name LIMIT ?`), limit)
	if err != nil {
		return nil, errors.DatabaseError("failed to list experiments", err)
	}
	out := make([]*ports.ExperimentRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveLimitation replaces the limitation results stored for runID
func (r *experimentRepository) SaveLimitation(ctx context.Context, runID uuid.UUID, results []limitation.Result) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM limitation_results WHERE run_id = ?"), runID); err != nil {
		return errors.DatabaseError("failed to clear limitation results", err)
	}
	now := time.Now().UTC()
	for _, res := range results {
		_, err := tx.NamedExecContext(ctx, `INSERT INTO limitation_results
			(run_id, lake_id, p_limitation, mean_critical_ratio, mean_np_ratio, depth, eutro, created_at) VALUES
			(:run_id, :lake_id, :p_limitation, :mean_critical_ratio, :mean_np_ratio, :depth, :eutro, :created_at)`,
			limitationRow{
				RunID:             runID,
				LakeID:            res.LakeID,
				Probability:       res.Probability,
				MeanCriticalRatio: nullFloat(res.MeanCriticalRatio),
				MeanNPRatio:       nullFloat(res.MeanNPRatio),
				Depth:             nullFloat(res.Depth),
				Eutro:             nullFloat(res.Eutro),
				CreatedAt:         now,
			})
		if err != nil {
			return errors.DatabaseError("failed to insert limitation result for lake "+res.LakeID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit limitation results", err)
	}
	return nil
}

// ListLimitation returns the results of runID ordered by lake
func (r *experimentRepository) ListLimitation(ctx context.Context, runID uuid.UUID) ([]limitation.Result, error) {
	var rows []limitationRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`SELECT
		run_id, lake_id, p_limitation, mean_critical_ratio, mean_np_ratio, depth, eutro, created_at
		FROM limitation_results WHERE run_id = ? ORDER BY lake_id`), runID)
	if err != nil {
		return nil, errors.DatabaseError("failed to list limitation results", err)
	}
	out := make([]limitation.Result, len(rows))
	for i, row := range rows {
		out[i] = limitation.Result{
			LakeID:            row.LakeID,
			Probability:       row.Probability,
			MeanCriticalRatio: floatOrNaN(row.MeanCriticalRatio),
			MeanNPRatio:       floatOrNaN(row.MeanNPRatio),
			Depth:             floatOrNaN(row.Depth),
			Eutro:             floatOrNaN(row.Eutro),
		}
	}
	return out, nil
}

func (row experimentRow) record() (*ports.ExperimentRecord, error) {
	rec := &ports.ExperimentRecord{
		ID:                 row.ID,
		RunID:              row.RunID,
		Name:               row.Name,
		Kind:               row.Kind,
		DatasetFingerprint: row.DatasetFingerprint,
		N:                  row.N,
		Dropped:            row.Dropped,
		RSquared:           row.RSquared,
		RMSE:               row.RMSE,
		HeldOutRSquared:    row.HeldOutRSquared,
		HeldOutRMSE:        row.HeldOutRMSE,
		PLimitedFraction:   row.PLimitedFraction,
		MaxRhat:            row.MaxRhat,
		DurationMs:         row.DurationMs,
		CreatedAt:          row.CreatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(row.Spec), &rec.Spec); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal spec of experiment %s", row.Name)
	}
	return rec, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(n sql.NullFloat64) float64 {
	if !n.Valid {
		return math.NaN()
	}
	return n.Float64
}
