package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/affect-memory/memory"
)

func TestRecall_EmptyStore(t *testing.T) {
	m, _ := newManager(t, conceptEmbedder{})
	hits, err := m.Recall(context.Background(), "anything at all", memory.RecallOptions{TopK: 3})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRecall_InvestorBeatsEntropy(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, conceptEmbedder{})

	investor, err := m.Store(ctx, "today I'm meeting an investor", memory.StoreMetadata{Timestamp: testNow})
	require.NoError(t, err)
	_, err = m.Store(ctx, "entropy makes everything meaningless", memory.StoreMetadata{Timestamp: testNow.Add(-24 * time.Hour)})
	require.NoError(t, err)

	hits, err := m.Recall(ctx, "what did I do this afternoon", memory.RecallOptions{TopK: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, investor.ID, hits[0].ID)
}

func TestRecall_HigherCosineRanksFirst(t *testing.T) {
	ctx := context.Background()
	e := &tableEmbedder{
		vectors: map[string][]float32{
			"query": axis(0),
			"near":  mix(0, 1, 0.9),
			"far":   mix(0, 1, 0.3),
		},
		fallback: axis(7),
	}
	m, _ := newManager(t, e)

	far, err := m.Store(ctx, "far", memory.StoreMetadata{})
	require.NoError(t, err)
	near, err := m.Store(ctx, "near", memory.StoreMetadata{})
	require.NoError(t, err)

	hits, err := m.Recall(ctx, "query", memory.RecallOptions{TopK: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, near.ID, hits[0].ID)
	assert.Equal(t, far.ID, hits[1].ID)
	assert.InDelta(t, (0.9+1)/2, hits[0].Semantic, 1e-5)
	assert.Equal(t, 1.0, hits[0].Emotion)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestRecall_EmotionAlignment(t *testing.T) {
	ctx := context.Background()
	e := &tableEmbedder{fallback: axis(0)}
	m, _ := newManager(t, e)

	calm, err := m.Store(ctx, "calm evening", memory.StoreMetadata{
		EmotionVector: []float64{1, 0},
		Timestamp:     testNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	angry, err := m.Store(ctx, "angry evening", memory.StoreMetadata{
		EmotionVector: []float64{-1, 0},
		Timestamp:     testNow,
	})
	require.NoError(t, err)

	hits, err := m.Recall(ctx, "evening", memory.RecallOptions{TopK: 2, EmotionVector: []float64{0.9, 0.1}})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, calm.ID, hits[0].ID)
	assert.InDelta(t, 0.7*1+0.3*hits[0].Emotion, hits[0].Score, 1e-6)

	// Without a query emotion both are neutral; the newer one wins the tie.
	hits, err = m.Recall(ctx, "evening", memory.RecallOptions{TopK: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, angry.ID, hits[0].ID)
	assert.Equal(t, hits[0].Score, hits[1].Score)

	// A zero-norm emotion vector never divides by zero.
	hits, err = m.Recall(ctx, "evening", memory.RecallOptions{TopK: 2, EmotionVector: []float64{0, 0}})
	require.NoError(t, err)
	for _, h := range hits {
		assert.InDelta(t, 0.5, h.Emotion, 1e-9)
	}
}

func TestRecall_EmotionWeightOverride(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, &tableEmbedder{fallback: axis(0)})
	_, err := m.Store(ctx, "sad song", memory.StoreMetadata{EmotionVector: []float64{-1, 0}})
	require.NoError(t, err)

	zero := 0.0
	hits, err := m.Recall(ctx, "song", memory.RecallOptions{EmotionVector: []float64{1, 0}, EmotionWeight: &zero})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
}

func TestRecall_SuppressesRepeatedQuestion(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, &tableEmbedder{fallback: axis(0)})

	asked, err := m.Store(ctx, "User: where did I park my car?\nCompanion: I'm not sure.", memory.StoreMetadata{
		Timestamp: testNow,
	})
	require.NoError(t, err)
	answered, err := m.Store(ctx, "User: I left the car on level 3\nCompanion: Noted, level 3.", memory.StoreMetadata{
		Timestamp: testNow.Add(-time.Hour),
	})
	require.NoError(t, err)

	hits, err := m.Recall(ctx, "Where did I park my car", memory.RecallOptions{TopK: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, answered.ID, hits[0].ID)
	assert.Equal(t, asked.ID, hits[1].ID)
	assert.Greater(t, hits[1].Lexical, 0.75)
	assert.InDelta(t, max(0.05, 1-hits[1].Lexical), hits[1].Penalty, 1e-9)
	assert.Equal(t, 1.0, hits[0].Penalty)
}

func TestRecall_IncrementsAccessCountOfReturned(t *testing.T) {
	ctx := context.Background()
	e := &tableEmbedder{
		vectors:  map[string][]float32{"query": axis(0), "best": axis(0), "other": axis(1)},
		fallback: axis(7),
	}
	m, _ := newManager(t, e)
	best, err := m.Store(ctx, "best", memory.StoreMetadata{})
	require.NoError(t, err)
	other, err := m.Store(ctx, "other", memory.StoreMetadata{})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		hits, err := m.Recall(ctx, "query", memory.RecallOptions{TopK: 1})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, int64(i), hits[0].AccessCount)
	}

	all, err := m.Scan(ctx, 10, "")
	require.NoError(t, err)
	counts := map[string]int64{}
	for _, r := range all {
		counts[r.ID] = r.AccessCount
	}
	assert.Equal(t, int64(2), counts[best.ID])
	assert.Equal(t, int64(0), counts[other.ID])
}

func TestRecall_Deterministic(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, &tableEmbedder{fallback: axis(0)})
	for _, text := range []string{"one", "two", "three", "four"} {
		_, err := m.Store(ctx, text, memory.StoreMetadata{Timestamp: testNow})
		require.NoError(t, err)
	}

	first, err := m.Recall(ctx, "q", memory.RecallOptions{TopK: 4})
	require.NoError(t, err)
	second, err := m.Recall(ctx, "q", memory.RecallOptions{TopK: 4})
	require.NoError(t, err)

	require.Len(t, first, 4)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestFormatForPrompt(t *testing.T) {
	hits := []memory.ScoredRecord{
		{Record: memory.Record{Text: "[2026-03-14 10:00:00] later", Timestamp: 2}},
		{Record: memory.Record{Text: "[2026-03-13 10:00:00] earlier", Timestamp: 1}},
	}
	got := memory.FormatForPrompt(hits, 0)
	assert.Equal(t, "- [2026-03-13 10:00:00] earlier\n- [2026-03-14 10:00:00] later\n", got)
	assert.Equal(t, "", memory.FormatForPrompt(nil, 10))
	assert.Equal(t, "- [2026-03...\n- [2026-03...\n", memory.FormatForPrompt(hits, 8))

	ties := []memory.ScoredRecord{
		{Record: memory.Record{Text: "b", Timestamp: 5}},
		{Record: memory.Record{Text: "a", Timestamp: 5}},
		{Record: memory.Record{Text: "c", Timestamp: 4}},
	}
	assert.Equal(t, "- c\n- b\n- a\n", memory.FormatForPrompt(ties, 0), "equal timestamps keep their order")
}
