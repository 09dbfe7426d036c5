package memory_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/affect-memory/memory"
)

func TestCosineGuards(t *testing.T) {
	assert.InDelta(t, 1.0, memory.Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, -1.0, memory.Cosine([]float64{1, 0}, []float64{-3, 0}), 1e-9)
	assert.Zero(t, memory.Cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, memory.Cosine([]float32{1, 0, 0}, []float32{1, 0}))
	assert.Zero(t, memory.Cosine([]float64{}, []float64{}))
	assert.Equal(t, 0.5, memory.Rescale(0))
}

func TestCheckVector(t *testing.T) {
	require.NoError(t, memory.CheckVector([]float32{0, 3}, 2))
	assert.ErrorIs(t, memory.CheckVector([]float32{1}, 2), memory.ErrDimensionMismatch)
	assert.ErrorIs(t, memory.CheckVector([]float32{0, 0}, 2), memory.ErrInvalidVector)
	assert.ErrorIs(t, memory.CheckVector([]float32{float32(math.NaN()), 1}, 2), memory.ErrInvalidVector)
	assert.ErrorIs(t, memory.CheckVector([]float32{float32(math.Inf(-1)), 1}, 2), memory.ErrInvalidVector)
}

func TestNormalize(t *testing.T) {
	got := memory.Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, got[0], 1e-9)
	assert.InDelta(t, 0.8, got[1], 1e-9)
	assert.Equal(t, []float64{0, 0}, memory.Normalize([]float32{0, 0}))
}

func TestQuestion(t *testing.T) {
	speakers := []string{"User:", "用户:", "用户："}
	agents := []string{"Companion:", "女娲:"}

	tests := []struct {
		text string
		want string
	}{
		{"[2025-01-01 10:00:00] User: where is my key?\nCompanion: on the desk", "where is my key?"},
		{"用户：今天几号\n女娲: 三月十四", "今天几号"},
		{"User: no reply recorded", "no reply recorded"},
		{"Companion's epiphany: nothing asked here", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, memory.Question(tt.text, speakers, agents), tt.text)
	}
}

func TestQuestion_EarliestMarkerWins(t *testing.T) {
	// "says" starts inside the "User says:" match; the earlier marker wins.
	speakers := []string{"User says:", "says"}
	assert.Equal(t, "hi there", memory.Question("User says: hi there\nCompanion: hello", speakers, []string{"Companion:"}))
}

func TestLexicalRatio(t *testing.T) {
	assert.Equal(t, 1.0, memory.LexicalRatio("Hello There", " hello there "))
	assert.Zero(t, memory.LexicalRatio("", "x"))
	assert.InDelta(t, 2.0*3/8, memory.LexicalRatio("abcd", "abce"), 1e-9)
	assert.Less(t, memory.LexicalRatio("where did I park", "entropy rules all"), 0.5)
}

func TestStamp(t *testing.T) {
	assert.True(t, memory.HasStamp("[2025-01-01 10:00:00] x"))
	assert.False(t, memory.HasStamp("[this bracket closes far too late to be a stamp] x"))
	assert.False(t, memory.HasStamp("plain"))
	assert.Equal(t, "x", memory.StripStamp("[2025-01-01 10:00:00] x"))
	assert.Equal(t, memory.KindRaw, memory.ParseKind("bogus"))
	assert.Equal(t, memory.KindSummary, memory.ParseKind(" Summary "))
}
