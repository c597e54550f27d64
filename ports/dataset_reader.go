package ports

import (
	"context"

	"bnla/domain/lake"
)

// DatasetReader loads a prepared lake survey file.
type DatasetReader interface {
	// Read parses the file at path and rejects it when a required column is missing.
	Read(ctx context.Context, path string) (*lake.Dataset, error)
}
