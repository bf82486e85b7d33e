package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchProcessor runs a function over a batch of items on separate
// goroutines and waits for all of them. A failing item never cancels its
// siblings.
type BatchProcessor[T any] struct {
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*batchSettings)

type batchSettings struct {
	concurrency int
	logger      *slog.Logger
}

// WithBatchLogger sets the logger.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *batchSettings) {
		b.logger = logger
	}
}

// WithConcurrency caps the goroutines running at once. n <= 0 means one
// goroutine per item, for callers that bound work elsewhere.
func WithConcurrency(n int) BatchOption {
	return func(b *batchSettings) {
		b.concurrency = n
	}
}

// NewBatchProcessor returns a BatchProcessor.
func NewBatchProcessor[T any](opts ...BatchOption) *BatchProcessor[T] {
	s := batchSettings{}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return &BatchProcessor[T]{concurrency: s.concurrency, logger: s.logger}
}

// Process calls fn for every item and returns the per-item errors, indexed
// like items. Items not started because ctx was cancelled report ctx.Err().
func (b *BatchProcessor[T]) Process(ctx context.Context, items []T, fn func(ctx context.Context, item T) error) []error {
	errs := make([]error, len(items))
	if len(items) == 0 {
		return errs
	}

	start := time.Now()
	var g errgroup.Group
	if b.concurrency > 0 {
		g.SetLimit(b.concurrency)
	}

	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	b.logger.Debug("batch complete", "items", len(items), "elapsed", time.Since(start))
	return errs
}
