package app

import (
	"context"
	"fmt"

	"bnla/domain/model"
	"bnla/internal/errors"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// RunAll fits every spec with at most the configured number of experiments in
// flight and returns the results bound by name, in spec order. The first
// failure cancels the remaining fits.
func (s *ExperimentService) RunAll(ctx context.Context, specs []model.Spec) (*Registry, error) {
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if seen[spec.Name] {
			return nil, errors.InvalidInput(fmt.Sprintf("experiment %q is defined twice", spec.Name))
		}
		seen[spec.Name] = true
	}

	results := make([]*ExperimentResult, len(specs))
	err := s.bounded(ctx, len(specs), func(ctx context.Context, i int) error {
		res, err := s.Run(ctx, specs[i])
		if err != nil {
			return err
		}
		results[i] = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	reg := NewRegistry()
	for _, res := range results {
		if err := reg.Add(res); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// bounded runs fn for 0..n-1 with at most MaxParallel calls in flight.
func (s *ExperimentService) bounded(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	limit := int64(s.sampler.MaxParallel)
	if limit < 1 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
