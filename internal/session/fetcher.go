package session

import (
	"context"
	"sync/atomic"
)

// Fetcher runs an async fetch on behalf of a short-lived consumer and
// guarantees the result is discarded when the consumer is gone before it
// resolves: either its context was cancelled or a newer fetch superseded
// this one. The in-flight call itself is not aborted at the transport
// level; only the apply step is suppressed.
type Fetcher[T any] struct {
	generation atomic.Uint64
}

// Invalidate discards the results of all in-flight fetches.
func (f *Fetcher[T]) Invalidate() {
	f.generation.Add(1)
}

// Go starts fetch in a goroutine and calls apply with its result, unless the
// fetch was cancelled or invalidated first. apply runs on the fetch
// goroutine; at most once per Go call.
func (f *Fetcher[T]) Go(ctx context.Context, fetch func(context.Context) (T, error), apply func(T, error)) {
	gen := f.generation.Load()

	go func() {
		value, err := fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		if f.generation.Load() != gen {
			return
		}
		apply(value, err)
	}()
}
