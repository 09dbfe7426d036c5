package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/affect-memory/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "chromem", cfg.StoreBackend)
	assert.Equal(t, 384, cfg.Dimensions)
	assert.Equal(t, "mock", cfg.EmbedProvider)
	assert.Equal(t, "extractive", cfg.SummarizerProvider)
	assert.Equal(t, 15*time.Minute, cfg.DreamInterval)
	assert.Equal(t, 168*time.Hour, cfg.DreamHalfLife)

	m := cfg.Memory()
	assert.Equal(t, 5, m.TopK)
	assert.InDelta(t, 0.3, m.EmotionWeight, 1e-12)
	assert.Equal(t, "Companion", m.AgentName)

	d := cfg.Dream()
	assert.InDelta(t, 0.3, d.Eps, 1e-12)
	assert.Equal(t, 2, d.MinPts)
	assert.Equal(t, 384, d.Dimensions)

	s := cfg.Scheduler()
	assert.Equal(t, 1000, s.Limit)
	assert.InDelta(t, 0.6, s.MaxSocialHunger, 1e-12)
	assert.InDelta(t, 0.2, s.MinEnergy, 1e-12)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AFFECT_TOP_K", "9")
	t.Setenv("AFFECT_DREAM_INTERVAL", "1h")
	t.Setenv("AFFECT_AGENT_NAME", "Nova")
	t.Setenv("AFFECT_TIMEZONE", "UTC")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Memory().TopK)
	assert.Equal(t, time.Hour, cfg.Scheduler().Interval)
	assert.Equal(t, "Nova", cfg.Memory().AgentName)
	assert.Equal(t, time.UTC, cfg.Memory().Location)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"backend":         {"AFFECT_STORE_BACKEND": "redis"},
		"pgvector no dsn": {"AFFECT_STORE_BACKEND": "pgvector"},
		"embedder":        {"AFFECT_EMBED_PROVIDER": "word2vec"},
		"openai no key":   {"AFFECT_EMBED_PROVIDER": "openai"},
		"summarizer":      {"AFFECT_SUMMARIZER_PROVIDER": "gpt2"},
		"claude no key":   {"AFFECT_SUMMARIZER_PROVIDER": "anthropic"},
		"dimensions":      {"AFFECT_DIMENSIONS": "0"},
		"emotion weight":  {"AFFECT_EMOTION_WEIGHT": "1.5"},
		"bands":           {"AFFECT_DREAM_FORGET_BELOW": "0.9", "AFFECT_DREAM_KEEP_FROM": "0.5"},
		"timezone":        {"AFFECT_TIMEZONE": "Mars/Olympus"},
		"not a number":    {"AFFECT_TOP_K": "many"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			require.Error(t, err)
		})
	}
}
