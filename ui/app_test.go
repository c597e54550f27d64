package ui

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bnla/adapters/db"
	"bnla/domain/model"
	"bnla/internal/config"
	"bnla/internal/limitation"
	"bnla/internal/summary"
	"bnla/ports"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	app   *App
	rec   *ports.ExperimentRecord
	runID uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenMigrated(ctx, config.DatabaseConfig{Driver: "sqlite3", URL: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	repo := db.NewExperimentRepository(conn)

	r2 := 0.64
	rec := &ports.ExperimentRecord{
		ID:        uuid.New(),
		RunID:     uuid.New(),
		Name:      "mav",
		Kind:      ports.KindFit,
		Spec:      model.Spec{Name: "mav", Nutrient: model.NutrientSpec{Kind: model.NutrientLimiting}},
		N:         90,
		RSquared:  &r2,
		CreatedAt: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		Summaries: []summary.ParameterSummary{
			{Name: "cr0", Mean: 16, SD: 2, Lower: 12, Median: 16, Upper: 20, Rhat: math.NaN(), ESS: 300},
		},
	}
	require.NoError(t, repo.SaveExperiment(ctx, rec))
	require.NoError(t, repo.SaveLimitation(ctx, rec.RunID, []limitation.Result{
		{LakeID: "L1", Probability: 0.9, MeanCriticalRatio: 15, MeanNPRatio: 33, Depth: 4, Eutro: math.NaN()},
	}))
	return fixture{app: NewApp(Config{}, repo, nil), rec: rec, runID: rec.RunID}
}

func (f fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.app.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	w := newFixture(t).get(t, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestListExperiments(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/api/experiments?limit=10")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count       int              `json:"count"`
		Experiments []map[string]any `json:"experiments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "mav", body.Experiments[0]["name"])
	assert.Equal(t, 0.64, body.Experiments[0]["r_squared"])
	assert.Nil(t, body.Experiments[0]["rmse"])

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/experiments?limit=zero").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/experiments?limit=5000").Code)
}

func TestGetExperiment(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/api/experiments/"+f.rec.ID.String())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body struct {
		ID        uuid.UUID        `json:"id"`
		Spec      model.Spec       `json:"spec"`
		Summaries []map[string]any `json:"summaries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, f.rec.ID, body.ID)
	assert.Equal(t, model.NutrientLimiting, body.Spec.Nutrient.Kind)
	require.Len(t, body.Summaries, 1)
	assert.Nil(t, body.Summaries[0]["rhat"])

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/experiments/"+uuid.NewString()).Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/experiments/not-a-uuid").Code)
}

func TestListLimitation(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/api/runs/"+f.runID.String()+"/limitation")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"run_id":"`+f.runID.String()+`","lakes":[
		{"lake_id":"L1","p_limitation":0.9,"mean_critical_ratio":15,"mean_np_ratio":33,"depth":4,"eutro":null}]}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/runs/"+uuid.NewString()+"/limitation").Code)
}

func TestReport(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/?run="+f.runID.String())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "<td>mav</td>")
	assert.Contains(t, w.Body.String(), "<td>L1</td>")

	md := f.get(t, "/report.md")
	require.Equal(t, http.StatusOK, md.Code)
	assert.Contains(t, md.Body.String(), "### mav")
	assert.NotContains(t, md.Body.String(), "Nutrient limitation")
}
