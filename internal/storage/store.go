package storage

import (
	"context"

	"vsrscape/internal/model"
)

// Store persists landscape run records.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error)
	// ListRuns returns every run, most recently started first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	DeleteRun(ctx context.Context, runID string) error
	// ConfigurationHistory returns the mean fitness of a configuration key in
	// every run where it had a successful sample, oldest run first.
	ConfigurationHistory(ctx context.Context, key string) ([]float64, error)
}
