// Package mcmc draws posterior samples with component-wise adaptive
// random-walk Metropolis, running independent chains in parallel.
package mcmc

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"bnla/internal/errors"
	"bnla/internal/logging"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Target is a posterior the sampler can update one coordinate at a time.
type Target interface {
	Dim() int
	Names() []string
	Initial() []float64
	// LocalLogDensity returns the unnormalized log posterior terms that involve
	// coordinate k. Differences in it must equal differences in the full log
	// posterior when only coordinate k changes.
	LocalLogDensity(theta []float64, k int) float64
}

const (
	defaultAdaptInterval = 200
	targetAcceptance     = 0.44
)

// Options configures a sampling run.
type Options struct {
	Iterations int
	Burnin     int
	Chains     int
	Thin       int
	Seed       uint64
	// Monitors are the coordinates whose draws are kept; nil keeps all.
	Monitors      []int
	AdaptInterval int
	Logger        *zap.Logger
}

func (o Options) validate(dim int) error {
	if o.Iterations <= 0 {
		return errors.InvalidInput("iterations must be positive")
	}
	if o.Burnin < 0 || o.Burnin >= o.Iterations {
		return errors.InvalidInput("burn-in must be in [0, iterations)")
	}
	if o.Chains < 1 {
		return errors.InvalidInput("at least one chain is required")
	}
	if o.Thin < 1 {
		return errors.InvalidInput("thin must be at least 1")
	}
	for _, k := range o.Monitors {
		if k < 0 || k >= dim {
			return errors.InvalidInput("monitor index out of range")
		}
	}
	return nil
}

// Sample runs opts.Chains independent chains from the target's initial values
// and returns their post-burn-in draws. Proposal scales adapt during burn-in
// only. Cancelling ctx aborts every chain and returns the context error.
func Sample(ctx context.Context, target Target, opts Options) (*SampleSet, error) {
	dim := target.Dim()
	if err := opts.validate(dim); err != nil {
		return nil, err
	}
	if opts.AdaptInterval <= 0 {
		opts.AdaptInterval = defaultAdaptInterval
	}
	monitors := opts.Monitors
	if monitors == nil {
		monitors = make([]int, dim)
		for i := range monitors {
			monitors[i] = i
		}
	}
	names := make([]string, len(monitors))
	for i, k := range monitors {
		names[i] = target.Names()[k]
	}

	logger := logging.OrNop(opts.Logger)
	set := newSampleSet(names, target.Names(), opts.Chains)
	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < opts.Chains; c++ {
		g.Go(func() error {
			start := time.Now()
			ch := &chain{
				target:   target,
				opts:     opts,
				monitors: monitors,
				rng:      rand.New(rand.NewPCG(opts.Seed, uint64(c)+1)),
			}
			if err := ch.run(gctx); err != nil {
				return err
			}
			set.Draws[c] = ch.draws
			set.Means[c] = ch.means
			set.Acceptance[c] = ch.acceptance
			logger.Debug("chain finished",
				zap.Int("chain", c),
				zap.Int("draws", len(ch.draws)),
				zap.Duration("elapsed", time.Since(start)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}

type chain struct {
	target   Target
	opts     Options
	monitors []int
	rng      *rand.Rand

	draws      [][]float64
	means      []float64
	acceptance []float64
}

func (c *chain) run(ctx context.Context) error {
	dim := c.target.Dim()
	theta := c.target.Initial()
	scale := make([]float64, dim)
	for i := range scale {
		scale[i] = 1
	}
	accepted := make([]int, dim)
	timesAdapted := 0

	sums := make([]float64, dim)
	kept := 0
	c.draws = make([][]float64, 0, (c.opts.Iterations-c.opts.Burnin)/c.opts.Thin+1)

	for iter := 0; iter < c.opts.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if iter == c.opts.Burnin {
			clear(accepted)
		}

		for k := 0; k < dim; k++ {
			current := c.target.LocalLogDensity(theta, k)
			old := theta[k]
			theta[k] = old + scale[k]*c.rng.NormFloat64()
			proposed := c.target.LocalLogDensity(theta, k)
			if math.Log(c.rng.Float64()) < proposed-current {
				accepted[k]++
			} else {
				theta[k] = old
			}
		}

		if iter < c.opts.Burnin {
			if (iter+1)%c.opts.AdaptInterval == 0 {
				timesAdapted++
				gamma := 1 / math.Pow(float64(timesAdapted+3), 0.8)
				for k := range scale {
					rate := float64(accepted[k]) / float64(c.opts.AdaptInterval)
					scale[k] *= math.Exp(10 * gamma * (rate - targetAcceptance))
				}
				clear(accepted)
			}
			continue
		}

		kept++
		for k, v := range theta {
			sums[k] += v
		}
		if (iter-c.opts.Burnin)%c.opts.Thin == 0 {
			draw := make([]float64, len(c.monitors))
			for i, k := range c.monitors {
				draw[i] = theta[k]
			}
			c.draws = append(c.draws, draw)
		}
	}

	c.means = make([]float64, dim)
	c.acceptance = make([]float64, dim)
	for k := range sums {
		c.means[k] = sums[k] / float64(kept)
		c.acceptance[k] = float64(accepted[k]) / float64(kept)
	}
	return nil
}
