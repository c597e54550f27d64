package config

import (
	"os"
	"path/filepath"
	"testing"

	"bnla/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "bnla_final.csv", cfg.Data.File)
	assert.Equal(t, 3, cfg.Sampler.Chains)
	assert.Equal(t, 3000, cfg.Limitation.Draws)
	assert.Equal(t, "zstd", cfg.Output.DrawsCodec)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("BNLA_ITERATIONS=400\nBNLA_BURNIN=100\nBNLA_DRAWS_CODEC=LZ4\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("BNLA_ITERATIONS")
		os.Unsetenv("BNLA_BURNIN")
		os.Unsetenv("BNLA_DRAWS_CODEC")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Sampler.Iterations)
	assert.Equal(t, 100, cfg.Sampler.Burnin)
	assert.Equal(t, "lz4", cfg.Output.DrawsCodec)
}

func TestLoadRejectsBurninPastIterations(t *testing.T) {
	t.Setenv("BNLA_ITERATIONS", "100")
	t.Setenv("BNLA_BURNIN", "100")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
