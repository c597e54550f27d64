package expression

import (
	"math"
	"testing"

	"bnla/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(tp, tn float64) map[string]any {
	return map[string]any{"tp": tp, "tn": tn, "depth": 4.0}
}

func TestCompileAndEval(t *testing.T) {
	e, err := Compile("log(tn/tp)", env(0, 0))
	require.NoError(t, err)

	v, err := e.Eval(env(0.05, 1.0))
	require.NoError(t, err)
	assert.InDelta(t, math.Log(20), v, 1e-12)
	assert.Equal(t, "log(tn/tp)", e.String())
}

func TestEvalIntegerLiteralsAndHelpers(t *testing.T) {
	e, err := Compile("pow(depth, 2) + sqrt(4) + log10(100) + exp(0)", env(0, 0))
	require.NoError(t, err)

	v, err := e.Eval(env(1, 1))
	require.NoError(t, err)
	assert.InDelta(t, 16+2+2+1, v, 1e-12)
}

func TestEvalNonFinite(t *testing.T) {
	e, err := Compile("log(tp)", env(0, 0))
	require.NoError(t, err)

	v, err := e.Eval(env(0, 1))
	require.NoError(t, err)
	assert.True(t, math.IsInf(v, -1))
}

func TestCompileUnknownColumn(t *testing.T) {
	_, err := Compile("log(secchi)", env(0, 0))
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = Compile("", env(0, 0))
	assert.Error(t, err)
}
