// Package parallel provides the data-parallel loop used by the watermark
// transforms. Work is split into contiguous index ranges, one per worker, and
// For blocks until every range has been processed.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// For calls fn over [0, n) split into at most GOMAXPROCS contiguous ranges
// [start, end). Ranges are disjoint, so fn may write to its own rows or
// columns without locking.
func For(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers := min(runtime.GOMAXPROCS(0), n)
	if workers == 1 {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			fn(start, end)
			return nil
		})
	}
	g.Wait()
}
