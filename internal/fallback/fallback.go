// Package fallback runs an ordered list of named strategies and returns the
// first result that is not skipped. It backs every "try A, then B, then C"
// decision in the pipeline: PDF text extraction, offset detection,
// embedding, and retrieval.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrSkip is returned by a strategy that does not apply to the input.
// [First] moves on to the next strategy without recording a failure.
var ErrSkip = errors.New("fallback: strategy skipped")

// ErrExhausted is returned by [First] when no strategy produced a result.
var ErrExhausted = errors.New("fallback: all strategies exhausted")

// Strategy is one named attempt in a chain.
type Strategy[T any] struct {
	// Name identifies the strategy in results and logs.
	Name string
	// Run produces a value or returns ErrSkip / a failure.
	Run func(ctx context.Context) (T, error)
}

// Result carries the winning value and the name of the strategy that
// produced it.
type Result[T any] struct {
	Value T
	Name  string
}

// First runs strategies in order and returns the first success. Strategies
// returning [ErrSkip] are passed over silently; other errors are collected
// and reported, wrapped with [ErrExhausted], only when nothing succeeds.
func First[T any](ctx context.Context, strategies ...Strategy[T]) (Result[T], error) {
	var failures []string
	var errs []error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return Result[T]{}, err
		}
		v, err := s.Run(ctx)
		if err == nil {
			return Result[T]{Value: v, Name: s.Name}, nil
		}
		if errors.Is(err, ErrSkip) {
			continue
		}
		failures = append(failures, s.Name)
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}
	if len(errs) == 0 {
		return Result[T]{}, ErrExhausted
	}
	return Result[T]{}, fmt.Errorf("%w (failed: %s): %w", ErrExhausted, strings.Join(failures, ", "), errors.Join(errs...))
}
