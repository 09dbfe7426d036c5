// Package cache memoizes an embedder. Recall embeds the same queries over
// and over and consolidation re-embeds summaries; both are served from an
// in-process ristretto cache.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/becomeliminal/affect-memory/memory"
)

// Embedder wraps another memory.Embedder with a bounded cache. Concurrent
// misses for the same text share a single upstream call.
type Embedder struct {
	next  memory.Embedder
	cache *ristretto.Cache
	group singleflight.Group
}

var _ memory.Embedder = (*Embedder)(nil)

// New wraps next with a cache holding roughly maxEntries vectors.
func New(next memory.Embedder, maxEntries int64) (*Embedder, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Embedder{next: next, cache: c}, nil
}

// Embed returns the cached vector for text, computing it on a miss.
// Errors are never cached. The returned slice is a copy.
//
// The upstream call is shared by every caller waiting on the same text and
// is detached from any one caller's cancellation; a cancelled caller stops
// waiting but the others still get the vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return clone(v.([]float32)), nil
	}

	shared := context.WithoutCancel(ctx)
	ch := e.group.DoChan(text, func() (any, error) {
		vec, err := e.next.Embed(shared, text)
		if err != nil {
			return nil, err
		}
		e.cache.Set(text, clone(vec), 1)
		return vec, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]float32)), nil
	}
}

// Dimensions returns the wrapped embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.next.Dimensions()
}

// Wait blocks until pending cache writes are applied.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close stops the cache's background goroutines.
func (e *Embedder) Close() {
	e.cache.Close()
}

func clone(v []float32) []float32 {
	return append([]float32(nil), v...)
}
