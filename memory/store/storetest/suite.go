// Package storetest is a compliance suite for memory.Store implementations.
package storetest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/affect-memory/memory"
)

// Dims is the vector size the suite uses. makeStore must return an empty
// store of this dimension.
const Dims = 8

// Run exercises a memory.Store implementation.
// makeStore must return a clean, isolated store for each call.
func Run(t *testing.T, makeStore func(t *testing.T) memory.Store) {
	t.Helper()

	t.Run("EmptySearch", func(t *testing.T) {
		s := makeStore(t)
		got, err := s.Search(context.Background(), axis(0), 5)
		require.NoError(t, err)
		assert.Empty(t, got)

		scanned, err := s.Scan(context.Background(), 5, "")
		require.NoError(t, err)
		assert.Empty(t, scanned)
	})

	t.Run("DimensionInvariant", func(t *testing.T) {
		ctx := context.Background()
		s := makeStore(t)
		require.NoError(t, s.Put(ctx, record("ok", axis(0), 1, memory.KindRaw)))

		err := s.Put(ctx, record("short", []float32{1, 0, 0}, 2, memory.KindRaw))
		require.ErrorIs(t, err, memory.ErrDimensionMismatch)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("RejectsPoisonVectors", func(t *testing.T) {
		ctx := context.Background()
		s := makeStore(t)

		nan := axis(1)
		nan[3] = float32(math.NaN())
		require.ErrorIs(t, s.Put(ctx, record("nan", nan, 1, memory.KindRaw)), memory.ErrInvalidVector)
		require.ErrorIs(t, s.Put(ctx, record("zero", make([]float32, Dims), 1, memory.KindRaw)), memory.ErrInvalidVector)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("SearchOrdersByCosine", func(t *testing.T) {
		ctx := context.Background()
		s := makeStore(t)
		near := record("near", mix(0, 1, 0.9), 1, memory.KindRaw)
		far := record("far", mix(0, 1, 0.1), 2, memory.KindRaw)
		require.NoError(t, s.Put(ctx, far))
		require.NoError(t, s.Put(ctx, near))

		got, err := s.Search(ctx, axis(0), 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, near.ID, got[0].ID)
		assert.Equal(t, far.ID, got[1].ID)
		assert.Len(t, got[0].Vector, Dims)
	})

	t.Run("RoundTripsFields", func(t *testing.T) {
		ctx := context.Background()
		s := makeStore(t)
		rec := record("full", axis(2), 1700000000.25, memory.KindEpiphany)
		rec.EmotionVector = []float64{0.1, -0.4, 0.9}
		rec.Emotions = map[string]float64{"joy": 0.7, "fear": 0.1}
		rec.Importance = 0.8
		rec.AccessCount = 3
		require.NoError(t, s.Put(ctx, rec))

		got, err := s.Scan(ctx, 1, "")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, rec.ID, got[0].ID)
		assert.Equal(t, rec.Text, got[0].Text)
		assert.Equal(t, memory.KindEpiphany, got[0].Kind)
		assert.InDelta(t, 0.8, got[0].Importance, 1e-6)
		assert.InDelta(t, rec.Timestamp, got[0].Timestamp, 1e-3)
		assert.Equal(t, int64(3), got[0].AccessCount)
		assert.Equal(t, rec.EmotionVector, got[0].EmotionVector)
		assert.Equal(t, rec.Emotions, got[0].Emotions)
	})

	t.Run("DeleteIgnoresMissing", func(t *testing.T) {
		ctx := context.Background()
		s := makeStore(t)
		a := record("a", axis(0), 1, memory.KindRaw)
		b := record("b", axis(1), 2, memory.KindRaw)
		require.NoError(t, s.Put(ctx, a))
		require.NoError(t, s.Put(ctx, b))

		require.NoError(t, s.Delete(ctx, a.ID, uuid.NewString()))
		require.NoError(t, s.Delete(ctx, a.ID))

		got, err := s.Scan(ctx, 10, "")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, b.ID, got[0].ID)
	})

	t.Run("UpdateAccessCount", func(t *testing.T) {
		ctx := context.Background()
		s := makeStore(t)
		rec := record("hit", axis(0), 1, memory.KindRaw)
		require.NoError(t, s.Put(ctx, rec))

		require.NoError(t, s.UpdateAccessCount(ctx, rec.ID, 4))
		require.NoError(t, s.UpdateAccessCount(ctx, uuid.NewString(), 9))

		got, err := s.Search(ctx, axis(0), 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(4), got[0].AccessCount)
		assert.Equal(t, rec.Text, got[0].Text)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("ScanNewestFirstByKind", func(t *testing.T) {
		ctx := context.Background()
		s := makeStore(t)
		base := float64(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).Unix())
		old := record("old", axis(0), base, memory.KindRaw)
		mid := record("mid", axis(1), base+60, memory.KindSummary)
		recent := record("new", axis(2), base+120, memory.KindRaw)
		for _, r := range []*memory.Record{mid, recent, old} {
			require.NoError(t, s.Put(ctx, r))
		}

		all, err := s.Scan(ctx, 10, "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{recent.ID, mid.ID, old.ID}, ids(all))

		raw, err := s.Scan(ctx, 10, memory.KindRaw)
		require.NoError(t, err)
		assert.Equal(t, []string{recent.ID, old.ID}, ids(raw))

		limited, err := s.Scan(ctx, 1, memory.KindRaw)
		require.NoError(t, err)
		assert.Equal(t, []string{recent.ID}, ids(limited))
	})
}

func record(text string, vec []float32, ts float64, kind memory.Kind) *memory.Record {
	return &memory.Record{
		ID:         uuid.NewString(),
		Text:       "[2025-03-01 00:00:00] " + text,
		Vector:     vec,
		Timestamp:  ts,
		Importance: 0.5,
		Kind:       kind,
	}
}

func axis(i int) []float32 {
	v := make([]float32, Dims)
	v[i] = 1
	return v
}

// mix returns a unit vector between axes i and j with weight w on i.
func mix(i, j int, w float64) []float32 {
	v := make([]float32, Dims)
	v[i] = float32(w)
	v[j] = float32(math.Sqrt(1 - w*w))
	return v
}

func ids(recs []memory.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
