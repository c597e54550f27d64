package report

import (
	"math"
	"strings"
	"testing"
	"time"

	"bnla/domain/model"
	"bnla/internal/limitation"
	"bnla/internal/summary"
	"bnla/ports"

	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func records() []*ports.ExperimentRecord {
	return []*ports.ExperimentRecord{
		{
			Name: "mav",
			Kind: ports.KindFit,
			Spec: model.Spec{
				Name:            "mav",
				Nutrient:        model.NutrientSpec{Kind: model.NutrientLimiting},
				RandomIntercept: true,
				Covariates:      []model.Covariate{{Name: "temp", Expr: "avg_temp"}},
			},
			N:                200,
			Dropped:          4,
			RSquared:         f(0.71234),
			RMSE:             f(0.4),
			PLimitedFraction: f(0.6),
			MaxRhat:          f(1.25),
			Summaries: []summary.ParameterSummary{
				{Name: "b0", Mean: 1, SD: 0.1, Lower: 0.8, Median: 1, Upper: 1.2, Rhat: 1.01, ESS: 812.4},
				{Name: "cr0", Mean: 15, SD: 2, Lower: 11, Median: 15, Upper: 19, Rhat: 1.25, ESS: 40},
			},
		},
		{Name: "tp_fold1", Kind: ports.KindCrossVal, N: 150, HeldOutRMSE: f(0.55)},
	}
}

func TestMarkdown(t *testing.T) {
	md := string(Markdown(records(), Options{
		GeneratedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		Limitation:  []limitation.Result{{LakeID: "L1", Probability: 0.75, MeanCriticalRatio: 14, MeanNPRatio: 30, Depth: math.NaN(), Eutro: 2}},
	}))

	assert.True(t, strings.HasPrefix(md, "# "+DefaultTitle+"\n"))
	assert.Contains(t, md, "Generated 2024-06-01T08:00:00Z.")
	assert.Contains(t, md, "| mav | fit | 200 | 4 | 0.712 | 0.400 | NA | NA | 0.600 | 1.250 |")
	assert.Contains(t, md, "| tp_fold1 | crossval | 150 | 0 | NA | NA | NA | 0.550 | NA | NA |")
	assert.Contains(t, md, "### mav")
	assert.Contains(t, md, "Nutrient term `limiting`, random lake intercept, covariates `temp`.")
	assert.Contains(t, md, "| b0 | 1.000 | 0.100 | 0.800 | 1.000 | 1.200 | 1.010 | 812 |")
	assert.Contains(t, md, "**Not converged** (R-hat > 1.10): cr0")
	assert.NotContains(t, md, "### tp_fold1")
	assert.Contains(t, md, "| L1 | 0.750 | 14.000 | 30.000 | NA | 2.000 |")
}

func TestMarkdownEmpty(t *testing.T) {
	md := string(Markdown(nil, Options{Title: "Nothing"}))
	assert.Contains(t, md, "# Nothing")
	assert.Contains(t, md, "No experiments stored.")
	assert.NotContains(t, md, "Nutrient limitation")
}

func TestHTML(t *testing.T) {
	page := string(HTML(Markdown(records(), Options{}), ""))
	assert.Contains(t, page, "<html")
	assert.Contains(t, page, "<title>"+DefaultTitle+"</title>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "<td>mav</td>")
	assert.Contains(t, page, "<strong>Not converged</strong>")
}
