package ports

import (
	"context"

	"bnla/internal/mcmc"
)

// DrawsWriter exports the monitored posterior draws of one experiment.
type DrawsWriter interface {
	// WriteDraws stores the draws under name and returns where they were written.
	WriteDraws(ctx context.Context, name string, set *mcmc.SampleSet) (string, error)
}
