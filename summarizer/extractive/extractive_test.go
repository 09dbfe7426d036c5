package extractive_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/affect-memory/summarizer/extractive"
)

func TestSummarize_PicksCentralText(t *testing.T) {
	s := extractive.New()
	got, err := s.Summarize(context.Background(), []string{
		"[2026-01-01 10:00:00] bees",
		"[2026-01-01 10:05:00] the bees made honey in the garden",
		"[2026-01-01 10:09:00] honey from the garden",
	})
	require.NoError(t, err)
	assert.Equal(t, "the bees made honey in the garden", got.Text)
	assert.Empty(t, got.Facts)
}

func TestSummarize_TruncatesAndTies(t *testing.T) {
	s := &extractive.Summarizer{MaxRunes: 4}
	got, err := s.Summarize(context.Background(), []string{"蜜蜂采蜜很忙", "完全不同"})
	require.NoError(t, err)
	assert.Equal(t, "蜜蜂采蜜", got.Text)
}

func TestSummarize_Empty(t *testing.T) {
	_, err := extractive.New().Summarize(context.Background(), []string{"", strings.Repeat(" ", 3)})
	require.Error(t, err)
}

func TestSummarize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := extractive.New().Summarize(ctx, []string{"bees"})
	require.ErrorIs(t, err, context.Canceled)
}
