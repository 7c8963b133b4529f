// SPDX-License-Identifier: MIT

// Package pool runs ordered work under bounded concurrency while
// preserving the index-to-result mapping.
package pool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map applies fn to every item with at most workers in flight and returns
// results in input order. Execution order is nondeterministic; only the
// result positions are guaranteed. fn errors abort the whole map, so unit
// failures that should degrade rather than abort must be absorbed into the
// result type by fn itself.
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, item T, index int) (R, error)) ([]R, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]R, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			r, err := fn(ctx, item, i)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
