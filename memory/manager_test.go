package memory_test

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/affect-memory/memory"
	"github.com/becomeliminal/affect-memory/memory/embedder/mock"
	"github.com/becomeliminal/affect-memory/memory/store/chromem"
)

func TestManager_StoreStampsAndDefaults(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t, mock.New(testDims))

	rec, err := m.Store(ctx, "  went for a walk  ", memory.StoreMetadata{})
	require.NoError(t, err)

	assert.Equal(t, "[2026-03-14 15:00:00] went for a walk", rec.Text)
	assert.Equal(t, memory.KindRaw, rec.Kind)
	assert.Equal(t, memory.DefaultImportance, rec.Importance)
	assert.Equal(t, float64(testNow.Unix()), rec.Timestamp)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 1, count(t, store))
}

func TestManager_StoreKeepsCallerTimestamp(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, mock.New(testDims))
	when := time.Date(2025, 12, 31, 23, 59, 1, 0, time.UTC)

	rec, err := m.Store(ctx, "new year's eve", memory.StoreMetadata{
		Timestamp:     when,
		Importance:    memory.Importance(0.9),
		Kind:          memory.KindEpiphany,
		EmotionVector: []float64{0.2, 0.8},
		Emotions:      map[string]float64{"joy": 0.9},
	})
	require.NoError(t, err)
	assert.Equal(t, "[2025-12-31 23:59:01] new year's eve", rec.Text)

	got, err := m.Scan(ctx, 1, memory.KindEpiphany)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, []float64{0.2, 0.8}, got[0].EmotionVector)
	assert.Equal(t, map[string]float64{"joy": 0.9}, got[0].Emotions)
}

func TestManager_StoreRejectsMalformedInput(t *testing.T) {
	ctx := context.Background()
	zero := &tableEmbedder{fallback: make([]float32, testDims)}
	short := &tableEmbedder{fallback: []float32{1, 0, 0}}
	nan := &tableEmbedder{fallback: []float32{float32(math.NaN()), 1, 0, 0, 0, 0, 0, 0}}

	tests := []struct {
		name     string
		embedder memory.Embedder
		text     string
		meta     memory.StoreMetadata
		want     error
	}{
		{"empty text", mock.New(testDims), "   ", memory.StoreMetadata{}, memory.ErrEmptyText},
		{"importance above one", mock.New(testDims), "x", memory.StoreMetadata{Importance: memory.Importance(1.5)}, memory.ErrInvalidImportance},
		{"negative importance", mock.New(testDims), "x", memory.StoreMetadata{Importance: memory.Importance(-0.1)}, memory.ErrInvalidImportance},
		{"non-finite emotion vector", mock.New(testDims), "x", memory.StoreMetadata{EmotionVector: []float64{math.Inf(1)}}, memory.ErrInvalidVector},
		{"zero embedding", zero, "x", memory.StoreMetadata{}, memory.ErrInvalidVector},
		{"nan embedding", nan, "x", memory.StoreMetadata{}, memory.ErrInvalidVector},
		{"wrong dimension", short, "x", memory.StoreMetadata{}, memory.ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := chromem.New(chromem.Options{Dimensions: testDims})
			m := memory.NewManager(store, tt.embedder, nil)
			_, err := m.Store(ctx, tt.text, tt.meta)
			require.ErrorIs(t, err, tt.want)
			assert.Zero(t, count(t, store))
		})
	}

	m, _ := newManager(t, mock.New(testDims))
	_, err := m.Store(ctx, "x", memory.StoreMetadata{Kind: "dream"})
	assert.Error(t, err)
}

func TestManager_EmbedderFailureIsUnavailable(t *testing.T) {
	store := chromem.New(chromem.Options{Dimensions: testDims})
	m := memory.NewManager(store, failingEmbedder{}, nil)
	require.True(t, m.Available())

	_, err := m.Store(context.Background(), "hello", memory.StoreMetadata{})
	assert.ErrorIs(t, err, memory.ErrUnavailable)

	hits, err := m.Recall(context.Background(), "hello", memory.RecallOptions{})
	assert.NoError(t, err)
	assert.Empty(t, hits)
}

func TestManager_DegradedMode(t *testing.T) {
	ctx := context.Background()
	cases := map[string]*memory.Manager{
		"no store":      memory.NewManager(nil, mock.New(testDims), nil),
		"dead store":    memory.NewManager(chromem.New(chromem.Options{}), mock.New(testDims), nil),
		"no embedder":   memory.NewManager(chromem.New(chromem.Options{Dimensions: testDims}), nil, nil),
		"dims disagree": memory.NewManager(chromem.New(chromem.Options{Dimensions: testDims}), mock.New(16), nil),
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, m.Available())

			_, err := m.Store(ctx, "hello", memory.StoreMetadata{})
			assert.ErrorIs(t, err, memory.ErrUnavailable)

			hits, err := m.Recall(ctx, "hello", memory.RecallOptions{})
			assert.NoError(t, err)
			assert.Empty(t, hits)

			recs, err := m.Scan(ctx, 10, "")
			assert.NoError(t, err)
			assert.Empty(t, recs)

			assert.NoError(t, m.Delete(ctx, "a", "b"))
			assert.NoError(t, m.Close())
		})
	}
}

func TestManager_DeleteIgnoresUnknownIDs(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t, mock.New(testDims))
	rec, err := m.Store(ctx, "keep me around", memory.StoreMetadata{})
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, "does-not-exist"))
	assert.Equal(t, 1, count(t, store))

	require.NoError(t, m.Delete(ctx, rec.ID))
	require.NoError(t, m.Delete(ctx, rec.ID))
	assert.Zero(t, count(t, store))
}

func TestManager_RecordInteraction(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, mock.New(testDims))

	rec, err := m.RecordInteraction(ctx, "how are you?", "doing well", memory.Affect{
		Vector:   []float64{0.5, 0.5},
		Emotions: map[string]float64{"joy": 0.6},
		Rapport:  0.02,
	})
	require.NoError(t, err)
	assert.Equal(t, "[2026-03-14 15:00:00] User: how are you?\nCompanion: doing well", rec.Text)
	assert.InDelta(t, 0.1, rec.Importance, 1e-6)
	assert.Equal(t, memory.KindRaw, rec.Kind)

	rec, err = m.RecordInteraction(ctx, "hi", "hello", memory.Affect{Rapport: 7})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, rec.Importance, 1e-6)
}

func TestManager_RecordEpiphany(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, mock.New(testDims))

	rec, err := m.RecordEpiphany(ctx, "people repeat themselves when they are anxious", memory.Affect{})
	require.NoError(t, err)
	assert.Equal(t, memory.KindEpiphany, rec.Kind)
	assert.InDelta(t, 0.8, rec.Importance, 1e-6)
	assert.True(t, strings.HasSuffix(rec.Text, "Companion's epiphany: people repeat themselves when they are anxious"))
}
