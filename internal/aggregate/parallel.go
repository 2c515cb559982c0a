package aggregate

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/matthewbaird/reportcore/internal/fields"
	"github.com/matthewbaird/reportcore/internal/types"
)

// minChunk is the smallest partition worth a goroutine.
const minChunk = 256

// AggregateParallel produces the same Result as Aggregate by folding contiguous
// chunks concurrently and merging them in input order. workers <= 0 uses GOMAXPROCS.
func AggregateParallel(ctx context.Context, entries []types.Entry, set *fields.Set, dim Dimension, workers int, opts ...Option) (Result, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := (len(entries) + workers - 1) / max(workers, 1)
	if chunk < minChunk {
		chunk = minChunk
	}

	p := newPlan(set, dim, opts)
	if len(entries) <= chunk {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		acc := p.seed()
		acc.fold(p, entries)
		return p.finish(acc), nil
	}

	n := (len(entries) + chunk - 1) / chunk
	parts := make([]*partial, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range n {
		lo := i * chunk
		hi := min(lo+chunk, len(entries))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			part := newPartial()
			part.fold(p, entries[lo:hi])
			parts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	acc := p.seed()
	for _, part := range parts {
		acc.merge(p, part)
	}
	return p.finish(acc), nil
}
