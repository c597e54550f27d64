package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// Prior is a prior distribution on a single scalar parameter.
type Prior interface {
	LogProb(x float64) float64
	String() string
}

// NormalPrior is a normal prior with the given mean and standard deviation.
type NormalPrior struct {
	Mean float64
	SD   float64
}

func (p NormalPrior) dist() distuv.Normal {
	return distuv.Normal{Mu: p.Mean, Sigma: p.SD}
}

func (p NormalPrior) LogProb(x float64) float64 { return p.dist().LogProb(x) }

func (p NormalPrior) String() string {
	return fmt.Sprintf("normal(%g, %g)", p.Mean, p.SD)
}

// UniformPrior is a flat prior on [Lower, Upper]; values outside have zero density.
type UniformPrior struct {
	Lower float64
	Upper float64
}

func (p UniformPrior) LogProb(x float64) float64 {
	return distuv.Uniform{Min: p.Lower, Max: p.Upper}.LogProb(x)
}

func (p UniformPrior) String() string {
	return fmt.Sprintf("uniform(%g, %g)", p.Lower, p.Upper)
}

// ParsePrior parses "normal(mean, sd)" or "uniform(lower, upper)".
func ParsePrior(s string) (Prior, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("prior %q: expected name(a, b)", s)
	}
	name := strings.ToLower(strings.TrimSpace(s[:open]))
	args := strings.Split(s[open+1:len(s)-1], ",")
	if len(args) != 2 {
		return nil, fmt.Errorf("prior %q: expected two arguments", s)
	}
	var vals [2]float64
	for i, a := range args {
		v, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
		if err != nil {
			return nil, fmt.Errorf("prior %q: %w", s, err)
		}
		vals[i] = v
	}

	switch name {
	case "normal", "dnorm":
		if !(vals[1] > 0) || math.IsInf(vals[1], 0) {
			return nil, fmt.Errorf("prior %q: sd must be positive", s)
		}
		return NormalPrior{Mean: vals[0], SD: vals[1]}, nil
	case "uniform", "dunif":
		if !(vals[0] < vals[1]) {
			return nil, fmt.Errorf("prior %q: lower must be below upper", s)
		}
		return UniformPrior{Lower: vals[0], Upper: vals[1]}, nil
	}
	return nil, fmt.Errorf("prior %q: unknown distribution %q", s, name)
}
