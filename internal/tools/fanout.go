package tools

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds how many backend calls a batch tool keeps in
// flight when no limit is configured.
const DefaultConcurrency = 8

// DefaultMaxBatchSize bounds the item count of a single batch call when no
// limit is configured.
const DefaultMaxBatchSize = 1000

// fanoutResult holds one outcome per input item, in input order.
type fanoutResult[T any] struct {
	Values []T
	Errors []error
}

// succeeded returns the values of items that did not fail.
func (r fanoutResult[T]) succeeded() []T {
	out := make([]T, 0, len(r.Values))
	for i, v := range r.Values {
		if r.Errors[i] == nil {
			out = append(out, v)
		}
	}
	return out
}

// failures returns the messages of failed items.
func (r fanoutResult[T]) failures() []string {
	var out []string
	for _, err := range r.Errors {
		if err != nil {
			out = append(out, err.Error())
		}
	}
	return out
}

// fanout runs fn for every index in [0, n) with at most limit calls in
// flight. A failing item never cancels its siblings; every item is joined
// before fanout returns.
func fanout[T any](ctx context.Context, n, limit int, fn func(ctx context.Context, i int) (T, error)) fanoutResult[T] {
	result := fanoutResult[T]{
		Values: make([]T, n),
		Errors: make([]error, n),
	}
	if n <= 0 {
		return result
	}
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					result.Errors[i] = fmt.Errorf("panic: %v", r)
				}
			}()
			if err := ctx.Err(); err != nil {
				result.Errors[i] = err
				return nil
			}
			result.Values[i], result.Errors[i] = fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()

	return result
}

// formatList renders items as "[a, b, c]".
func formatList(items []string) string {
	return "[" + strings.Join(items, ", ") + "]"
}

// withErrors appends the failure section used by every batch outcome.
func withErrors(summary string, failures []string) string {
	if len(failures) == 0 {
		return summary
	}
	return summary + "\nErrors: " + formatList(failures)
}
