package ui

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"bnla/internal/errors"
	"bnla/internal/report"
	"bnla/ports"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxListLimit caps the limit query parameter
const MaxListLimit = 1000

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	records, err := a.repo.ListExperiments(r.Context(), limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if records == nil {
		records = []*ports.ExperimentRecord{}
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"experiments": records, "count": len(records)})
}

func (a *App) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	rec, err := a.repo.GetExperiment(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, rec)
}

func (a *App) handleListLimitation(w http.ResponseWriter, r *http.Request) {
	runID, err := parseID(chi.URLParam(r, "runID"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	results, err := a.repo.ListLimitation(r.Context(), runID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if len(results) == 0 {
		a.writeError(w, errors.NotFound("limitation results of run "+runID.String()))
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "lakes": results})
}

func (a *App) handleReport(w http.ResponseWriter, r *http.Request) {
	md, err := a.reportMarkdown(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(report.HTML(md, ""))
}

func (a *App) handleReportMarkdown(w http.ResponseWriter, r *http.Request) {
	md, err := a.reportMarkdown(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(md)
}

// reportMarkdown renders the newest experiments with their summaries and,
// when the run query parameter is set, that run's limitation results
func (a *App) reportMarkdown(r *http.Request) ([]byte, error) {
	ctx := r.Context()
	records, err := a.loadRecords(ctx, a.config.ReportLimit)
	if err != nil {
		return nil, err
	}
	opts := report.Options{GeneratedAt: time.Now()}
	if run := r.URL.Query().Get("run"); run != "" {
		runID, err := parseID(run)
		if err != nil {
			return nil, err
		}
		if opts.Limitation, err = a.repo.ListLimitation(ctx, runID); err != nil {
			return nil, err
		}
	}
	return report.Markdown(records, opts), nil
}

func (a *App) loadRecords(ctx context.Context, limit int) ([]*ports.ExperimentRecord, error) {
	list, err := a.repo.ListExperiments(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*ports.ExperimentRecord, len(list))
	for i, rec := range list {
		if out[i], err = a.repo.GetExperiment(ctx, rec.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (a *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (a *App) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeInvalidInput:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", zap.Error(err))
	}
	a.writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.InvalidInput("invalid id " + strconv.Quote(s))
	}
	return id, nil
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > MaxListLimit {
		return 0, errors.InvalidInput("limit must be an integer in [1, " + strconv.Itoa(MaxListLimit) + "]")
	}
	return n, nil
}
