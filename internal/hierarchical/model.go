// Package hierarchical compiles a declarative model spec and a dataset into a
// log-chlorophyll regression with optional per-lake random intercepts and a
// limiting-nutrient (law of the minimum) predictor.
package hierarchical

import (
	"fmt"
	"math"
	"sort"

	"bnla/domain/lake"
	"bnla/domain/model"
	"bnla/internal/errors"
	"bnla/internal/expression"

	"gonum.org/v1/gonum/stat/distuv"
)

type role int

const (
	roleIntercept role = iota
	roleSlope
	roleCovariate
	roleCritical
	roleSigma
	roleTau
	roleGroup
)

// Parameter is one free parameter of a compiled model.
type Parameter struct {
	Name  string
	Prior model.Prior // nil for random intercepts, whose prior is Normal(0, tau)
	Init  float64

	role  role
	level int
}

// IsGroupEffect reports whether the parameter is a per-lake random intercept.
func (p Parameter) IsGroupEffect() bool { return p.role == roleGroup }

type compiledCovariate struct {
	name string
	expr *expression.Expr
}

// Model is a compiled hierarchical regression bound to its training data.
type Model struct {
	Spec model.Spec

	params   []Parameter
	names    []string
	index    map[string]int
	lakes    []string
	lakeIdx  map[string]int
	levels   []string
	levelIdx map[string]int

	columns  []string
	response *expression.Expr
	nutrient *expression.Expr
	covExprs []*compiledCovariate
	crExprs  []*compiledCovariate

	train   *Design
	byGroup [][]int
	byBin   [][]int

	slopeIdx   []int
	covIdx     []int
	crBase     int
	crIdx      []int
	sigmaIdx   int
	tauIdx     int
	groupStart int
}

// Default priors, by role.
var (
	defaultCoefficientPrior model.Prior = model.NormalPrior{Mean: 0, SD: 100}
	defaultCriticalBase     model.Prior = model.UniformPrior{Lower: 1, Upper: 100}
	defaultCriticalPrior    model.Prior = model.NormalPrior{Mean: 0, SD: 10}
	defaultScalePrior       model.Prior = model.UniformPrior{Lower: 0, Upper: 100}
)

// Compile validates spec, compiles its expressions against ds and builds the
// training design. No randomness is executed.
func Compile(spec model.Spec, ds *lake.Dataset) (*Model, error) {
	if err := spec.Validate(); err != nil {
		return nil, errors.WithCode(errors.CodeModelInvalid, err)
	}
	if ds == nil || ds.Len() == 0 {
		return nil, errors.DataInvalid("dataset has no observations")
	}

	m := &Model{
		Spec:       spec,
		index:      make(map[string]int),
		lakeIdx:    make(map[string]int),
		levelIdx:   make(map[string]int),
		crBase:     -1,
		tauIdx:     -1,
		groupStart: -1,
	}
	m.columns = extraColumns(ds)
	if err := m.compileExpressions(m.compileEnv()); err != nil {
		return nil, errors.Wrapf(err, "compile %s", spec.Name)
	}
	if spec.SlopeBy != "" {
		levels, err := ds.BinLevels(spec.SlopeBy)
		if err != nil {
			return nil, errors.WithCode(errors.CodeModelInvalid, err)
		}
		m.levels = levels
		for i, l := range levels {
			m.levelIdx[l] = i
		}
	}

	train, err := m.buildDesign(ds, func(id string) int {
		if g, ok := m.lakeIdx[id]; ok {
			return g
		}
		g := len(m.lakes)
		m.lakeIdx[id] = g
		m.lakes = append(m.lakes, id)
		return g
	})
	if err != nil {
		return nil, errors.Wrapf(err, "build design for %s", spec.Name)
	}
	if train.Len() == 0 {
		return nil, errors.DataInvalid(fmt.Sprintf("%s: every row was dropped as non-finite", spec.Name))
	}
	m.train = train

	if err := m.layoutParameters(); err != nil {
		return nil, err
	}
	m.indexRows()
	return m, nil
}

// extraColumns lists the header columns beyond the required survey columns,
// plus any numeric column of the first row the header does not name.
func extraColumns(ds *lake.Dataset) []string {
	seen := make(map[string]bool, len(lake.RequiredColumns))
	for _, c := range lake.RequiredColumns {
		seen[c] = true
	}
	var out []string
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, h := range ds.Header {
		add(h)
	}
	first := make([]string, 0, len(ds.Observations[0].Numeric))
	for c := range ds.Observations[0].Numeric {
		first = append(first, c)
	}
	sort.Strings(first)
	for _, c := range first {
		add(c)
	}
	return out
}

// compileEnv declares every column as a number, whatever the first row holds.
func (m *Model) compileEnv() map[string]any {
	env := lake.Observation{}.Env()
	for _, c := range m.columns {
		env[c] = float64(0)
	}
	return env
}

// rowEnv is the observation env with absent extra columns set to NaN.
func (m *Model) rowEnv(o lake.Observation) map[string]any {
	env := o.Env()
	for _, c := range m.columns {
		if _, ok := env[c]; !ok {
			env[c] = math.NaN()
		}
	}
	return env
}

func (m *Model) compileExpressions(env map[string]any) error {
	var err error
	if m.response, err = expression.Compile(m.Spec.ResponseExpr(), env); err != nil {
		return err
	}
	if m.Spec.Nutrient.Kind == model.NutrientExpression {
		if m.nutrient, err = expression.Compile(m.Spec.Nutrient.Expression, env); err != nil {
			return err
		}
	}
	for _, c := range m.Spec.Covariates {
		e, err := expression.Compile(c.Expr, env)
		if err != nil {
			return err
		}
		m.covExprs = append(m.covExprs, &compiledCovariate{name: c.Name, expr: e})
	}
	for _, c := range m.Spec.Nutrient.CriticalRatio {
		e, err := expression.Compile(c.Expr, env)
		if err != nil {
			return err
		}
		m.crExprs = append(m.crExprs, &compiledCovariate{name: c.Name, expr: e})
	}
	return nil
}

func (m *Model) layoutParameters() error {
	add := func(name string, r role, level int, def model.Prior, init float64) (int, error) {
		prior := def
		if def != nil {
			p, err := m.priorFor(name, def)
			if err != nil {
				return 0, err
			}
			prior = p
		}
		idx := len(m.params)
		m.params = append(m.params, Parameter{Name: name, Prior: prior, Init: init, role: r, level: level})
		m.names = append(m.names, name)
		m.index[name] = idx
		return idx, nil
	}

	var err error
	if _, err = add(model.ParamIntercept, roleIntercept, 0, defaultCoefficientPrior, 1); err != nil {
		return err
	}
	if m.hasNutrient() {
		if len(m.levels) == 0 {
			idx, err := add(model.SlopeParam(""), roleSlope, 0, defaultCoefficientPrior, 1)
			if err != nil {
				return err
			}
			m.slopeIdx = []int{idx}
		} else {
			for l, level := range m.levels {
				idx, err := add(model.SlopeParam(level), roleSlope, l, defaultCoefficientPrior, 1)
				if err != nil {
					return err
				}
				m.slopeIdx = append(m.slopeIdx, idx)
			}
		}
	}
	for k, c := range m.covExprs {
		idx, err := add(model.CovariateParam(c.name), roleCovariate, k, defaultCoefficientPrior, 1)
		if err != nil {
			return err
		}
		m.covIdx = append(m.covIdx, idx)
	}
	if m.Spec.Nutrient.Kind == model.NutrientLimiting {
		if m.crBase, err = add(model.ParamCriticalBase, roleCritical, -1, defaultCriticalBase, 1); err != nil {
			return err
		}
		for k, c := range m.crExprs {
			idx, err := add(model.CriticalParam(c.name), roleCritical, k, defaultCriticalPrior, 1)
			if err != nil {
				return err
			}
			m.crIdx = append(m.crIdx, idx)
		}
	}
	if m.sigmaIdx, err = add(model.ParamSigma, roleSigma, 0, defaultScalePrior, 1); err != nil {
		return err
	}
	if m.Spec.RandomIntercept {
		if m.tauIdx, err = add(model.ParamTau, roleTau, 0, defaultScalePrior, 1); err != nil {
			return err
		}
		m.groupStart = len(m.params)
		for g, id := range m.lakes {
			if _, err := add(model.GroupParam(id), roleGroup, g, nil, 0); err != nil {
				return err
			}
		}
	}

	for name := range m.Spec.Priors {
		if _, ok := m.index[name]; !ok && name != model.ParamNutrientSlope {
			return errors.ModelInvalid(fmt.Sprintf("%s: prior given for unknown parameter %q", m.Spec.Name, name))
		}
	}
	return nil
}

// priorFor returns the prior override for name, falling back to the shared
// b_nutrient override for per-bin slopes and then to def.
func (m *Model) priorFor(name string, def model.Prior) (model.Prior, error) {
	src, ok := m.Spec.Priors[name]
	if !ok && len(m.levels) > 0 && name != model.ParamNutrientSlope {
		for _, level := range m.levels {
			if name == model.SlopeParam(level) {
				src, ok = m.Spec.Priors[model.ParamNutrientSlope]
				break
			}
		}
	}
	if !ok {
		return def, nil
	}
	p, err := model.ParsePrior(src)
	if err != nil {
		return nil, errors.WithCode(errors.CodeModelInvalid, err)
	}
	return p, nil
}

func (m *Model) indexRows() {
	m.byGroup = make([][]int, len(m.lakes))
	for i, g := range m.train.Group {
		m.byGroup[g] = append(m.byGroup[g], i)
	}
	if len(m.levels) > 0 {
		m.byBin = make([][]int, len(m.levels))
		for i, b := range m.train.Bin {
			m.byBin[b] = append(m.byBin[b], i)
		}
	}
}

func (m *Model) hasNutrient() bool { return m.Spec.Nutrient.Kind != model.NutrientNone }

// Dim returns the number of free parameters.
func (m *Model) Dim() int { return len(m.params) }

// Names returns the parameter names in layout order.
func (m *Model) Names() []string { return m.names }

// Params returns the parameter layout.
func (m *Model) Params() []Parameter { return m.params }

// Index returns the layout position of a parameter.
func (m *Model) Index(name string) (int, bool) {
	i, ok := m.index[name]
	return i, ok
}

// Lakes returns the lake identifiers that own a random intercept, in index order.
func (m *Model) Lakes() []string { return m.lakes }

// Levels returns the slope bin levels, empty when the slope is global.
func (m *Model) Levels() []string { return m.levels }

// Train returns the training design.
func (m *Model) Train() *Design { return m.train }

// CovariateNames returns the fixed-effect covariate names in spec order.
func (m *Model) CovariateNames() []string {
	out := make([]string, len(m.covExprs))
	for i, c := range m.covExprs {
		out[i] = c.name
	}
	return out
}

// Initial returns the starting values: 1 for every parameter except the
// random intercepts, which start at 0.
func (m *Model) Initial() []float64 {
	theta := make([]float64, len(m.params))
	for i, p := range m.params {
		theta[i] = p.Init
	}
	return theta
}

// GroupOffset returns the random intercept of lake g under theta, 0 without random intercepts.
func (m *Model) GroupOffset(theta []float64, g int) float64 {
	if m.groupStart < 0 || g < 0 {
		return 0
	}
	return theta[m.groupStart+g]
}

// Mean returns the linear predictor of row i of d.
func (m *Model) Mean(theta []float64, d *Design, i int) float64 {
	mu := theta[0]
	if m.hasNutrient() {
		mu += theta[m.slopeIdx[d.Bin[i]]] * m.logNutrient(theta, d, i)
	}
	for k, idx := range m.covIdx {
		mu += theta[idx] * d.W[k][i]
	}
	return mu + m.GroupOffset(theta, d.Group[i])
}

// CriticalRatio returns the floored critical TN:TP ratio of row i of d.
// Models without a limiting nutrient have no critical ratio and return NaN.
func (m *Model) CriticalRatio(theta []float64, d *Design, i int) float64 {
	if m.crBase < 0 {
		return math.NaN()
	}
	lin := theta[m.crBase]
	for k, idx := range m.crIdx {
		lin += theta[idx] * d.Z[k][i]
	}
	return model.CriticalRatio(lin)
}

// CriticalRatioAt returns the floored critical ratio for critical-ratio covariates z.
func (m *Model) CriticalRatioAt(theta []float64, z []float64) float64 {
	if m.crBase < 0 {
		return math.NaN()
	}
	lin := theta[m.crBase]
	for k, idx := range m.crIdx {
		lin += theta[idx] * z[k]
	}
	return model.CriticalRatio(lin)
}

// HasCriticalRatio reports whether the model estimates a critical ratio.
func (m *Model) HasCriticalRatio() bool { return m.crBase >= 0 }

func (m *Model) logNutrient(theta []float64, d *Design, i int) float64 {
	if m.Spec.Nutrient.Kind != model.NutrientLimiting {
		return d.LogX[i]
	}
	cr := m.CriticalRatio(theta, d, i)
	return math.Log(model.LimitingNutrient(d.TP[i], d.TN[i], cr))
}

// Predict returns the linear predictor of every row of d.
func (m *Model) Predict(theta []float64, d *Design) []float64 {
	out := make([]float64, d.Len())
	for i := range out {
		out[i] = m.Mean(theta, d, i)
	}
	return out
}

// PhosphorusLimited flags rows where TP, not TN scaled by the critical ratio,
// is the binding minimum. It returns nil for models without a limiting nutrient.
func (m *Model) PhosphorusLimited(theta []float64, d *Design) []bool {
	if m.crBase < 0 {
		return nil
	}
	out := make([]bool, d.Len())
	for i := range out {
		out[i] = model.PhosphorusLimited(d.TP[i], d.TN[i], m.CriticalRatio(theta, d, i))
	}
	return out
}

// LakeCriticalCovariates averages the critical-ratio covariates of each lake's rows in d.
func (m *Model) LakeCriticalCovariates(d *Design) map[string][]float64 {
	sums := make(map[string][]float64)
	counts := make(map[string]int)
	for i, id := range d.Lake {
		s, ok := sums[id]
		if !ok {
			s = make([]float64, len(m.crIdx))
			sums[id] = s
		}
		for k := range m.crIdx {
			s[k] += d.Z[k][i]
		}
		counts[id]++
	}
	for id, s := range sums {
		for k := range s {
			s[k] /= float64(counts[id])
		}
	}
	return sums
}

func normalLogPdf(x, mu, sd float64) float64 {
	if !(sd > 0) {
		return math.Inf(-1)
	}
	return distuv.Normal{Mu: mu, Sigma: sd}.LogProb(x)
}

func (m *Model) logLik(theta []float64, i int) float64 {
	return normalLogPdf(m.train.Y[i], m.Mean(theta, m.train, i), theta[m.sigmaIdx])
}

// LocalLogDensity returns the unnormalized log posterior terms that involve
// parameter k: its prior plus the likelihood of the rows it affects.
func (m *Model) LocalLogDensity(theta []float64, k int) float64 {
	p := m.params[k]
	switch p.role {
	case roleGroup:
		lp := normalLogPdf(theta[k], 0, theta[m.tauIdx])
		for _, i := range m.byGroup[p.level] {
			lp += m.logLik(theta, i)
		}
		return lp
	case roleTau:
		lp := p.Prior.LogProb(theta[k])
		if math.IsInf(lp, -1) {
			return lp
		}
		for g := range m.lakes {
			lp += normalLogPdf(theta[m.groupStart+g], 0, theta[k])
		}
		return lp
	}

	lp := p.Prior.LogProb(theta[k])
	if math.IsInf(lp, -1) {
		return lp
	}
	if p.role == roleSlope && len(m.levels) > 0 {
		for _, i := range m.byBin[p.level] {
			lp += m.logLik(theta, i)
		}
		return lp
	}
	for i := range m.train.Y {
		lp += m.logLik(theta, i)
	}
	return lp
}

// LogPosterior returns the full unnormalized log posterior.
func (m *Model) LogPosterior(theta []float64) float64 {
	lp := 0.0
	for k, p := range m.params {
		if p.role == roleGroup {
			lp += normalLogPdf(theta[k], 0, theta[m.tauIdx])
		} else {
			lp += p.Prior.LogProb(theta[k])
		}
	}
	for i := range m.train.Y {
		lp += m.logLik(theta, i)
	}
	return lp
}
