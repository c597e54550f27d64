package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"bnla/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("BNLA_ITERATIONS", "800")
	t.Setenv("BNLA_BURNIN", "400")
	t.Setenv("BNLA_CHAINS", "2")
	t.Setenv("BNLA_LIMITATION_DRAWS", "200")
	t.Setenv("BNLA_OUTPUT_DIR", filepath.Join(dir, "outputs"))
	t.Setenv("BNLA_EXPERIMENTS_FILE", filepath.Join("..", "..", "experiments", "bnla.yaml"))
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("DATABASE_URL", filepath.Join(dir, "bnla.db"))
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func TestEndToEnd(t *testing.T) {
	dir := setupEnv(t)
	noEnv := filepath.Join(dir, "absent.env")
	survey := filepath.Join(dir, "survey.csv")

	out, err := execute(t, "simulate", "--lakes", "30", "--out", survey)
	require.NoError(t, err)
	assert.Contains(t, out, "of 30 lakes")

	out, err = execute(t, "run", "tp", "--env-file", noEnv, "--data", survey, "--save", "--save-draws")
	require.NoError(t, err, out)
	assert.Contains(t, out, "b_nutrient")
	assert.Contains(t, out, "saved 1 experiments")
	draws, err := filepath.Glob(filepath.Join(dir, "outputs", "draws", "tp_draws.csv*"))
	require.NoError(t, err)
	assert.Len(t, draws, 1)

	out, err = execute(t, "limitation", "--env-file", noEnv, "--data", survey, "--calibrated", "mav", "--save")
	require.NoError(t, err, out)
	assert.Contains(t, out, "saved limitation results")
	_, err = os.Stat(filepath.Join(dir, "outputs", "n_p_limitation.csv"))
	assert.NoError(t, err)

	out, err = execute(t, "migrate", "status", "--env-file", noEnv)
	require.NoError(t, err)
	assert.Contains(t, out, "2/2 migrations applied")

	report := filepath.Join(dir, "outputs", "report.html")
	_, err = execute(t, "report", "--env-file", noEnv, "--out", report)
	require.NoError(t, err)
	page, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(page), "<td>tp</td>")
	assert.Contains(t, string(page), "<td>mav</td>")
}

func TestCommandErrors(t *testing.T) {
	dir := setupEnv(t)
	noEnv := filepath.Join(dir, "absent.env")

	_, err := execute(t, "crossval", "tp", "--env-file", noEnv, "--by", "year", "--k", "3")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))

	_, err = execute(t, "run", "no_such_experiment", "--env-file", noEnv, "--data", filepath.Join(dir, "missing.csv"))
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))

	_, err = execute(t, "migrate", "sideways", "--env-file", noEnv)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))

	t.Setenv("BNLA_CHAINS", "0")
	_, err = execute(t, "run", "--env-file", noEnv)
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}
