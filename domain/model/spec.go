package model

import (
	"fmt"
	"regexp"

	"bnla/domain/lake"
)

// NutrientKind selects the nutrient predictor on the log-chlorophyll scale.
type NutrientKind string

const (
	NutrientNone       NutrientKind = "none"
	NutrientTP         NutrientKind = "tp"
	NutrientTN         NutrientKind = "tn"
	NutrientLimiting   NutrientKind = "limiting"
	NutrientExpression NutrientKind = "expression"
)

// DefaultResponse is log chlorophyll.
const DefaultResponse = "log(chl)"

// Parameter names shared across model variants.
const (
	ParamIntercept     = "b0"
	ParamNutrientSlope = "b_nutrient"
	ParamCriticalBase  = "cr0"
	ParamSigma         = "sigma"
	ParamTau           = "tau"
)

// Covariate is a named expression over observation columns.
type Covariate struct {
	Name string `yaml:"name" json:"name"`
	Expr string `yaml:"expr" json:"expr"`
}

// NutrientSpec declares the nutrient term.
type NutrientSpec struct {
	Kind       NutrientKind `yaml:"kind" json:"kind"`
	Expression string       `yaml:"expression,omitempty" json:"expression,omitempty"`
	// CriticalRatio lists covariates that shift the critical TN:TP ratio (limiting only).
	CriticalRatio []Covariate `yaml:"critical_ratio,omitempty" json:"critical_ratio,omitempty"`
}

// SamplerSpec overrides the configured sampler defaults for one experiment.
type SamplerSpec struct {
	Iterations int   `yaml:"iterations,omitempty" json:"iterations,omitempty"`
	Burnin     int   `yaml:"burnin,omitempty" json:"burnin,omitempty"`
	Chains     int   `yaml:"chains,omitempty" json:"chains,omitempty"`
	Thin       int   `yaml:"thin,omitempty" json:"thin,omitempty"`
	Seed       int64 `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// Spec is a declarative hierarchical regression model. It holds no data and
// executes no randomness.
type Spec struct {
	Name            string            `yaml:"name" json:"name"`
	Response        string            `yaml:"response,omitempty" json:"response,omitempty"`
	Nutrient        NutrientSpec      `yaml:"nutrient" json:"nutrient"`
	Covariates      []Covariate       `yaml:"covariates,omitempty" json:"covariates,omitempty"`
	SlopeBy         string            `yaml:"slope_by,omitempty" json:"slope_by,omitempty"`
	RandomIntercept bool              `yaml:"random_intercept" json:"random_intercept"`
	Priors          map[string]string `yaml:"priors,omitempty" json:"priors,omitempty"`
	MonitorGroups   bool              `yaml:"monitor_groups,omitempty" json:"monitor_groups,omitempty"`
	Sampler         SamplerSpec       `yaml:"sampler,omitempty" json:"sampler,omitempty"`
}

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ResponseExpr returns the response expression, defaulting to log chlorophyll.
func (s Spec) ResponseExpr() string {
	if s.Response == "" {
		return DefaultResponse
	}
	return s.Response
}

// Validate checks the structure of the experiment definition; expressions are checked when compiled.
func (s Spec) Validate() error {
	if !namePattern.MatchString(s.Name) {
		return fmt.Errorf("experiment name %q must be an identifier", s.Name)
	}
	switch s.Nutrient.Kind {
	case NutrientNone, NutrientTP, NutrientTN, NutrientLimiting:
	case NutrientExpression:
		if s.Nutrient.Expression == "" {
			return fmt.Errorf("%s: nutrient kind expression needs an expression", s.Name)
		}
	case "":
		return fmt.Errorf("%s: nutrient kind is required", s.Name)
	default:
		return fmt.Errorf("%s: unknown nutrient kind %q", s.Name, s.Nutrient.Kind)
	}
	if len(s.Nutrient.CriticalRatio) > 0 && s.Nutrient.Kind != NutrientLimiting {
		return fmt.Errorf("%s: critical_ratio terms need the limiting nutrient kind", s.Name)
	}
	if s.SlopeBy != "" {
		if s.Nutrient.Kind == NutrientNone {
			return fmt.Errorf("%s: slope_by needs a nutrient term", s.Name)
		}
		if !isBinColumn(s.SlopeBy) {
			return fmt.Errorf("%s: slope_by %q is not one of %v", s.Name, s.SlopeBy, lake.BinColumns)
		}
	}

	for _, group := range [][]Covariate{s.Covariates, s.Nutrient.CriticalRatio} {
		seen := make(map[string]bool)
		for _, c := range group {
			if !namePattern.MatchString(c.Name) {
				return fmt.Errorf("%s: covariate name %q must be an identifier", s.Name, c.Name)
			}
			if c.Expr == "" {
				return fmt.Errorf("%s: covariate %q has no expression", s.Name, c.Name)
			}
			if seen[c.Name] {
				return fmt.Errorf("%s: duplicate covariate %q", s.Name, c.Name)
			}
			seen[c.Name] = true
		}
	}
	for name, p := range s.Priors {
		if _, err := ParsePrior(p); err != nil {
			return fmt.Errorf("%s: prior for %s: %w", s.Name, name, err)
		}
	}
	return nil
}

// WithoutCovariate returns a copy of s with one fixed-effect covariate removed.
func (s Spec) WithoutCovariate(name string) Spec {
	out := s
	out.Covariates = nil
	for _, c := range s.Covariates {
		if c.Name != name {
			out.Covariates = append(out.Covariates, c)
		}
	}
	return out
}

// CovariateParam is the coefficient name of a fixed-effect covariate.
func CovariateParam(name string) string { return "b_" + name }

// CriticalParam is the coefficient name of a critical-ratio modifier.
func CriticalParam(name string) string { return "cr_" + name }

// SlopeParam is the nutrient slope name, per bin level when level is non-empty.
func SlopeParam(level string) string {
	if level == "" {
		return ParamNutrientSlope
	}
	return fmt.Sprintf("%s[%s]", ParamNutrientSlope, level)
}

// GroupParam is the random intercept name of a lake.
func GroupParam(lakeID string) string { return fmt.Sprintf("u[%s]", lakeID) }

func isBinColumn(c string) bool {
	for _, b := range lake.BinColumns {
		if b == c {
			return true
		}
	}
	return false
}
