package mcmc

import (
	"fmt"

	"bnla/internal/errors"
)

// SampleSet holds the post-burn-in draws of every chain.
// Draws are indexed [chain][draw][monitor]; within a chain they are in
// sampling order.
type SampleSet struct {
	// Names are the monitored parameter names, in Draws column order.
	Names []string
	Draws [][][]float64
	// Means are the per-chain posterior means of every parameter (not only the
	// monitored ones), in target layout order.
	Means [][]float64
	// Acceptance is the per-chain post-burn-in acceptance rate of every parameter.
	Acceptance [][]float64
	// ParamNames are all parameter names, in target layout order.
	ParamNames []string

	index map[string]int
}

func newSampleSet(names, paramNames []string, chains int) *SampleSet {
	s := &SampleSet{
		Names:      names,
		ParamNames: paramNames,
		Draws:      make([][][]float64, chains),
		Means:      make([][]float64, chains),
		Acceptance: make([][]float64, chains),
	}
	s.reindex()
	return s
}

func (s *SampleSet) reindex() {
	s.index = make(map[string]int, len(s.Names))
	for i, n := range s.Names {
		s.index[n] = i
	}
}

// NumChains returns the number of chains.
func (s *SampleSet) NumChains() int { return len(s.Draws) }

// NumDraws returns the number of retained draws per chain.
func (s *SampleSet) NumDraws() int {
	if len(s.Draws) == 0 {
		return 0
	}
	return len(s.Draws[0])
}

// Column returns the monitor column of a parameter.
func (s *SampleSet) Column(name string) (int, bool) {
	if s.index == nil {
		s.reindex()
	}
	i, ok := s.index[name]
	return i, ok
}

// Trace returns the per-chain draws of one monitored parameter.
func (s *SampleSet) Trace(name string) ([][]float64, error) {
	col, ok := s.Column(name)
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("monitored parameter %s", name))
	}
	out := make([][]float64, len(s.Draws))
	for c, chain := range s.Draws {
		out[c] = make([]float64, len(chain))
		for d, draw := range chain {
			out[c][d] = draw[col]
		}
	}
	return out, nil
}

// Pooled returns the draws of one monitored parameter with all chains concatenated.
func (s *SampleSet) Pooled(name string) ([]float64, error) {
	trace, err := s.Trace(name)
	if err != nil {
		return nil, err
	}
	var out []float64
	for _, chain := range trace {
		out = append(out, chain...)
	}
	return out, nil
}

// PooledDraws returns every monitored draw vector with all chains concatenated.
func (s *SampleSet) PooledDraws() [][]float64 {
	var out [][]float64
	for _, chain := range s.Draws {
		out = append(out, chain...)
	}
	return out
}

// PosteriorMean returns the posterior mean of every parameter, averaged over chains.
func (s *SampleSet) PosteriorMean() []float64 {
	if len(s.Means) == 0 {
		return nil
	}
	out := make([]float64, len(s.Means[0]))
	for _, m := range s.Means {
		for i, v := range m {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(s.Means))
	}
	return out
}

// MeanAcceptance returns the acceptance rate of every parameter averaged over chains.
func (s *SampleSet) MeanAcceptance() []float64 {
	if len(s.Acceptance) == 0 {
		return nil
	}
	out := make([]float64, len(s.Acceptance[0]))
	for _, a := range s.Acceptance {
		for i, v := range a {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(s.Acceptance))
	}
	return out
}
