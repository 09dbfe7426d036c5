package memory_test

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/affect-memory/memory"
	"github.com/becomeliminal/affect-memory/memory/embedder/mock"
	"github.com/becomeliminal/affect-memory/memory/store/chromem"
)

const testDims = 8

// tableEmbedder returns the vector of the first key (in sorted order)
// contained in the text, or the fallback.
type tableEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
}

func (e *tableEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	keys := make([]string, 0, len(e.vectors))
	for k := range e.vectors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(text, k) {
			return append([]float32(nil), e.vectors[k]...), nil
		}
	}
	return append([]float32(nil), e.fallback...), nil
}

func (e *tableEmbedder) Dimensions() int { return testDims }

// conceptEmbedder places words on hand-picked concept axes so that related
// words land together the way a sentence model would place them.
type conceptEmbedder struct{}

var concepts = map[string]int{
	"today": 0, "afternoon": 0, "did": 0, "do": 0, "meeting": 0, "investor": 0,
	"entropy": 1, "meaningless": 1, "everything": 1, "makes": 1,
}

func (conceptEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, testDims)
	for _, tok := range mock.Tokens(text) {
		if axis, ok := concepts[tok]; ok {
			v[axis]++
			continue
		}
		v[testDims-1] += 0.1
	}
	return v, nil
}

func (conceptEmbedder) Dimensions() int { return testDims }

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model not loaded")
}

func (failingEmbedder) Dimensions() int { return testDims }

func axis(i int) []float32 {
	v := make([]float32, testDims)
	v[i] = 1
	return v
}

func mix(i, j int, w float64) []float32 {
	v := make([]float32, testDims)
	v[i] = float32(w)
	v[j] = float32(math.Sqrt(1 - w*w))
	return v
}

var testNow = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func newManager(t *testing.T, e memory.Embedder) (*memory.Manager, memory.Store) {
	t.Helper()
	store := chromem.New(chromem.Options{Dimensions: testDims})
	cfg := memory.DefaultConfig()
	cfg.Location = time.UTC
	cfg.Now = func() time.Time { return testNow }
	m := memory.NewManager(store, e, cfg)
	require.True(t, m.Available())
	return m, store
}

func count(t *testing.T, s memory.Store) int {
	t.Helper()
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	return n
}
