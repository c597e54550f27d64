// Package expression compiles covariate expressions such as "log(tn/tp)" over
// observation columns using expr-lang/expr.
package expression

import (
	"fmt"
	"math"
	"sort"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"bnla/internal/errors"
)

// Expr is a compiled numeric expression.
type Expr struct {
	source  string
	program *exprvm.Program
}

// Compile compiles source against the variables available in env. Unknown
// variables are a compile error, so a missing column fails before sampling.
func Compile(source string, env map[string]any) (*Expr, error) {
	if source == "" {
		return nil, errors.InvalidInput("expression must not be empty")
	}
	options := []exprlang.Option{
		exprlang.Env(env),
		exprlang.AsFloat64(),
	}
	for _, name := range functionNames() {
		options = append(options, exprlang.Function(name, functions[name]))
	}
	program, err := exprlang.Compile(source, options...)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("compile %q: %w", source, err))
	}
	return &Expr{source: source, program: program}, nil
}

// String returns the expression source.
func (e *Expr) String() string { return e.source }

// Eval evaluates the expression. Non-finite results are returned as is; callers
// decide whether to drop the row.
func (e *Expr) Eval(env map[string]any) (float64, error) {
	out, err := exprlang.Run(e.program, env)
	if err != nil {
		return math.NaN(), fmt.Errorf("evaluate %q: %w", e.source, err)
	}
	v, ok := out.(float64)
	if !ok {
		return math.NaN(), fmt.Errorf("evaluate %q: result %T is not numeric", e.source, out)
	}
	return v, nil
}

var functions = map[string]func(params ...any) (any, error){
	"log":   unary(math.Log),
	"log10": unary(math.Log10),
	"exp":   unary(math.Exp),
	"sqrt":  unary(math.Sqrt),
	"pow": func(params ...any) (any, error) {
		if len(params) != 2 {
			return nil, fmt.Errorf("pow expects 2 arguments, got %d", len(params))
		}
		x, err := toFloat(params[0])
		if err != nil {
			return nil, err
		}
		y, err := toFloat(params[1])
		if err != nil {
			return nil, err
		}
		return math.Pow(x, y), nil
	},
}

func functionNames() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func unary(fn func(float64) float64) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("expected 1 argument, got %d", len(params))
		}
		x, err := toFloat(params[0])
		if err != nil {
			return nil, err
		}
		return fn(x), nil
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("argument %v (%T) is not numeric", v, v)
}
