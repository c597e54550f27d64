// Package limitation estimates, per lake, the probability that phosphorus
// rather than nitrogen limits algal growth.
package limitation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"bnla/domain/lake"
	"bnla/domain/model"
	"bnla/internal/errors"
	"bnla/internal/hierarchical"
	"bnla/internal/mcmc"

	"gonum.org/v1/gonum/stat"
)

// DefaultDraws is the number of paired draws per lake.
const DefaultDraws = 3000

// LakeDraws is a posterior sample of one per-lake quantity. Every lake of a
// source carries the same number of draws, and draw j of every lake comes
// from the same joint posterior draw.
type LakeDraws map[string][]float64

// Result is the limitation summary of one lake.
type Result struct {
	LakeID            string  `json:"lake_id" db:"lake_id"`
	Probability       float64 `json:"p_limitation" db:"p_limitation"`
	MeanCriticalRatio float64 `json:"mean_critical_ratio" db:"mean_critical_ratio"`
	MeanNPRatio       float64 `json:"mean_np_ratio" db:"mean_np_ratio"`
	Depth             float64 `json:"depth" db:"depth"`
	Eutro             float64 `json:"eutro" db:"eutro"`
}

// Options control the resampling step.
type Options struct {
	Draws int
	Seed  uint64
}

// thetaAt expands a monitored draw into a full parameter vector. Unmonitored
// parameters are left at their posterior mean.
func thetaAt(m *hierarchical.Model, set *mcmc.SampleSet, base []float64, draw []float64) []float64 {
	theta := append([]float64(nil), base...)
	for col, name := range set.Names {
		if idx, ok := m.Index(name); ok {
			theta[idx] = draw[col]
		}
	}
	return theta
}

// CriticalRatioDraws evaluates each lake's critical ratio at every pooled draw
// of a limiting-nutrient model. Lakes are described by the mean of their
// critical-ratio covariates over the visits in d.
func CriticalRatioDraws(m *hierarchical.Model, set *mcmc.SampleSet, d *hierarchical.Design) (LakeDraws, error) {
	if !m.HasCriticalRatio() {
		return nil, errors.ModelInvalid(fmt.Sprintf("%s has no critical ratio", m.Spec.Name))
	}
	if _, ok := set.Column(model.ParamCriticalBase); !ok {
		return nil, errors.InvalidInput(fmt.Sprintf("%s: %s was not monitored", m.Spec.Name, model.ParamCriticalBase))
	}
	covs := m.LakeCriticalCovariates(d)
	draws := set.PooledDraws()
	base := set.PosteriorMean()

	out := make(LakeDraws, len(covs))
	for id := range covs {
		out[id] = make([]float64, len(draws))
	}
	for j, draw := range draws {
		theta := thetaAt(m, set, base, draw)
		for id, z := range covs {
			out[id][j] = m.CriticalRatioAt(theta, z)
		}
	}
	return out, nil
}

// LogNPDraws returns b0 + u[lake] at every pooled draw of an intercept model
// fitted to log(tn/tp). The random intercepts must have been monitored.
func LogNPDraws(m *hierarchical.Model, set *mcmc.SampleSet) (LakeDraws, error) {
	lakes := m.Lakes()
	if !m.Spec.RandomIntercept || len(lakes) == 0 {
		return nil, errors.ModelInvalid(fmt.Sprintf("%s has no per-lake random intercept", m.Spec.Name))
	}
	if _, ok := set.Column(model.GroupParam(lakes[0])); !ok {
		return nil, errors.InvalidInput(fmt.Sprintf("%s: random intercepts were not monitored (set monitor_groups)", m.Spec.Name))
	}
	b0, _ := m.Index(model.ParamIntercept)
	draws := set.PooledDraws()
	base := set.PosteriorMean()

	out := make(LakeDraws, len(lakes))
	for _, id := range lakes {
		out[id] = make([]float64, len(draws))
	}
	for j, draw := range draws {
		theta := thetaAt(m, set, base, draw)
		for g, id := range lakes {
			out[id][j] = theta[b0] + m.GroupOffset(theta, g)
		}
	}
	return out, nil
}

// Classify pairs the critical-ratio and log N:P sources by lake ID. Each
// source is resampled with replacement to opts.Draws joint draws,
// independently of the other, and the probability of phosphorus limitation is
// the share of paired draws where the N:P ratio exceeds the critical ratio;
// a draw with equal ratios does not count.
// Results are ordered by lake ID.
func Classify(critical, logNP LakeDraws, opts Options) ([]Result, error) {
	if opts.Draws <= 0 {
		opts.Draws = DefaultDraws
	}
	lakes, err := pairedLakes(critical, logNP)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed+1))
	crIdx := resampleIndex(rng, len(critical[lakes[0]]), opts.Draws)
	npIdx := resampleIndex(rng, len(logNP[lakes[0]]), opts.Draws)

	results := make([]Result, 0, len(lakes))
	crs := make([]float64, opts.Draws)
	nps := make([]float64, opts.Draws)
	for _, id := range lakes {
		limited := 0
		for j := 0; j < opts.Draws; j++ {
			crs[j] = critical[id][crIdx[j]]
			nps[j] = math.Exp(logNP[id][npIdx[j]])
			if nps[j] > crs[j] {
				limited++
			}
		}
		results = append(results, Result{
			LakeID:            id,
			Probability:       float64(limited) / float64(opts.Draws),
			MeanCriticalRatio: stat.Mean(crs, nil),
			MeanNPRatio:       stat.Mean(nps, nil),
			Depth:             math.NaN(),
			Eutro:             math.NaN(),
		})
	}
	return results, nil
}

// WithLakeAttributes fills in each lake's mean depth and eutrophication index.
func WithLakeAttributes(results []Result, ds *lake.Dataset) []Result {
	depth := ds.LakeMeans(lake.ColSiteDepth)
	eutro := ds.LakeMeans(lake.ColLogEutro)
	for i := range results {
		if v, ok := depth[results[i].LakeID]; ok {
			results[i].Depth = v
		}
		if v, ok := eutro[results[i].LakeID]; ok {
			results[i].Eutro = v
		}
	}
	return results
}

// ByLake indexes results by lake ID.
func ByLake(results []Result) map[string]Result {
	out := make(map[string]Result, len(results))
	for _, r := range results {
		out[r.LakeID] = r
	}
	return out
}

func pairedLakes(critical, logNP LakeDraws) ([]string, error) {
	if len(critical) == 0 || len(logNP) == 0 {
		return nil, errors.PairingMismatch("both draw sources must cover at least one lake")
	}
	if len(critical) != len(logNP) {
		return nil, errors.PairingMismatch(fmt.Sprintf("critical ratio covers %d lakes, N:P covers %d", len(critical), len(logNP)))
	}
	lakes := make([]string, 0, len(critical))
	for id := range critical {
		if _, ok := logNP[id]; !ok {
			return nil, errors.PairingMismatch(fmt.Sprintf("lake %s has no N:P draws", id))
		}
		lakes = append(lakes, id)
	}
	sort.Strings(lakes)

	if err := checkRectangular("critical ratio", critical, lakes); err != nil {
		return nil, err
	}
	if err := checkRectangular("N:P", logNP, lakes); err != nil {
		return nil, err
	}
	return lakes, nil
}

func checkRectangular(source string, draws LakeDraws, lakes []string) error {
	n := len(draws[lakes[0]])
	if n == 0 {
		return errors.PairingMismatch(fmt.Sprintf("%s source has no draws", source))
	}
	for _, id := range lakes {
		if len(draws[id]) != n {
			return errors.PairingMismatch(fmt.Sprintf("%s draws for lake %s: %d, expected %d", source, id, len(draws[id]), n))
		}
	}
	return nil
}

func resampleIndex(rng *rand.Rand, n, size int) []int {
	idx := make([]int, size)
	for j := range idx {
		idx[j] = rng.IntN(n)
	}
	return idx
}
