// Package batch runs a worker over fixed-size chunks of input, one chunk at a
// time, tolerating per-chunk failures.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const DefaultSize = 20

type Options struct {
	Size   int
	Pacing time.Duration
	// Name labels log lines, typically the provider name.
	Name   string
	Logger *slog.Logger
}

type Result[R any] struct {
	Items         []R
	Batches       int
	FailedBatches int
	Errors        []error
	// Err is set when the context ended the run early.
	Err error
}

// Split cuts items into consecutive chunks of at most size elements.
func Split[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultSize
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// Run invokes worker once per chunk in input order and sleeps opts.Pacing
// between chunks. A failing chunk is logged and skipped.
func Run[T, R any](ctx context.Context, items []T, opts Options, worker func(context.Context, []T) ([]R, error)) Result[R] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chunks := Split(items, opts.Size)
	result := Result[R]{Batches: len(chunks)}

	for i, chunk := range chunks {
		if i > 0 && opts.Pacing > 0 {
			if err := sleep(ctx, opts.Pacing); err != nil {
				result.Err = err
				return result
			}
		}
		if err := ctx.Err(); err != nil {
			result.Err = err
			return result
		}

		out, err := runOne(ctx, chunk, worker)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.Err = ctxErr
				return result
			}
			result.FailedBatches++
			result.Errors = append(result.Errors, err)
			logger.Error("batch_failed",
				"name", opts.Name,
				"batch", i+1,
				"batches", len(chunks),
				"items", len(chunk),
				"error", err,
			)
			continue
		}
		result.Items = append(result.Items, out...)
	}
	return result
}

func runOne[T, R any](ctx context.Context, chunk []T, worker func(context.Context, []T) ([]R, error)) (out []R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch worker panic: %v", r)
		}
	}()
	return worker(ctx, chunk)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
