// Package config loads affectd settings from AFFECT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/becomeliminal/affect-memory/dream"
	"github.com/becomeliminal/affect-memory/memory"
)

// Prefix is prepended to every variable name, e.g. AFFECT_STORE_BACKEND.
const Prefix = "AFFECT"

// Config holds everything affectd needs to assemble the engine.
type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`

	// Storage: chromem (embedded) or pgvector.
	StoreBackend  string `envconfig:"STORE_BACKEND" default:"chromem"`
	StorePath     string `envconfig:"STORE_PATH" default:"data/memories"` // empty keeps chromem in memory
	StoreCompress bool   `envconfig:"STORE_COMPRESS" default:"false"`
	PostgresDSN   string `envconfig:"POSTGRES_DSN" default:""`
	PostgresTable string `envconfig:"POSTGRES_TABLE" default:"affect_memories"`
	Dimensions    int    `envconfig:"DIMENSIONS" default:"384"`

	// Embedding: mock, onnx or openai.
	EmbedProvider     string `envconfig:"EMBED_PROVIDER" default:"mock"`
	EmbedModel        string `envconfig:"EMBED_MODEL" default:""`
	EmbedAPIKey       string `envconfig:"EMBED_API_KEY" default:""`
	EmbedBaseURL      string `envconfig:"EMBED_BASE_URL" default:""`
	EmbedCacheSize    int64  `envconfig:"EMBED_CACHE_SIZE" default:"4096"`
	ONNXModelPath     string `envconfig:"ONNX_MODEL_PATH" default:""`
	ONNXTokenizerPath string `envconfig:"ONNX_TOKENIZER_PATH" default:""`
	ONNXLibraryPath   string `envconfig:"ONNX_LIBRARY_PATH" default:""`

	// Summarizer: extractive, anthropic, openai or none.
	SummarizerProvider  string  `envconfig:"SUMMARIZER_PROVIDER" default:"extractive"`
	SummarizerModel     string  `envconfig:"SUMMARIZER_MODEL" default:""`
	SummarizerAPIKey    string  `envconfig:"SUMMARIZER_API_KEY" default:""`
	SummarizerBaseURL   string  `envconfig:"SUMMARIZER_BASE_URL" default:""`
	SummarizerPerMinute float64 `envconfig:"SUMMARIZER_PER_MINUTE" default:"30"`
	SummarizerBurst     int     `envconfig:"SUMMARIZER_BURST" default:"2"`

	AgentName string `envconfig:"AGENT_NAME" default:"Companion"`
	Timezone  string `envconfig:"TIMEZONE" default:"Local"`

	// Recall ranking.
	TopK               int     `envconfig:"TOP_K" default:"5"`
	CandidateFactor    int     `envconfig:"CANDIDATE_FACTOR" default:"2"`
	EmotionWeight      float64 `envconfig:"EMOTION_WEIGHT" default:"0.3"`
	DuplicateThreshold float64 `envconfig:"DUPLICATE_THRESHOLD" default:"0.75"`
	DuplicateFloor     float64 `envconfig:"DUPLICATE_FLOOR" default:"0.05"`

	// Consolidation.
	DreamEps             float64       `envconfig:"DREAM_EPS" default:"0.3"`
	DreamMinPts          int           `envconfig:"DREAM_MIN_PTS" default:"2"`
	DreamHalfLife        time.Duration `envconfig:"DREAM_HALF_LIFE" default:"168h"`
	DreamForgetBelow     float64       `envconfig:"DREAM_FORGET_BELOW" default:"0.2"`
	DreamKeepFrom        float64       `envconfig:"DREAM_KEEP_FROM" default:"0.8"`
	DreamLimit           int           `envconfig:"DREAM_LIMIT" default:"1000"`
	DreamInterval        time.Duration `envconfig:"DREAM_INTERVAL" default:"15m"`
	DreamTick            time.Duration `envconfig:"DREAM_TICK" default:"30s"`
	DreamTimeout         time.Duration `envconfig:"DREAM_TIMEOUT" default:"10m"`
	DreamMaxSocialHunger float64       `envconfig:"DREAM_MAX_SOCIAL_HUNGER" default:"0.6"`
	DreamMinEnergy       float64       `envconfig:"DREAM_MIN_ENERGY" default:"0.2"`

	// Fact ledger; empty keeps facts in memory only.
	FactsPath string `envconfig:"FACTS_PATH" default:"data/facts.db"`

	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":9090"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.StoreBackend {
	case "chromem":
	case "pgvector":
		check(c.PostgresDSN != "", "POSTGRES_DSN is required for the pgvector backend")
	default:
		check(false, "unsupported STORE_BACKEND: %q", c.StoreBackend)
	}
	switch c.EmbedProvider {
	case "mock":
	case "onnx":
		check(c.ONNXModelPath != "" && c.ONNXTokenizerPath != "", "ONNX_MODEL_PATH and ONNX_TOKENIZER_PATH are required for the onnx embedder")
	case "openai":
		check(c.EmbedAPIKey != "" || c.EmbedBaseURL != "", "EMBED_API_KEY or EMBED_BASE_URL is required for the openai embedder")
	default:
		check(false, "unsupported EMBED_PROVIDER: %q", c.EmbedProvider)
	}
	switch c.SummarizerProvider {
	case "extractive", "none":
	case "anthropic", "openai":
		check(c.SummarizerAPIKey != "" || c.SummarizerBaseURL != "", "SUMMARIZER_API_KEY or SUMMARIZER_BASE_URL is required for the %s summarizer", c.SummarizerProvider)
	default:
		check(false, "unsupported SUMMARIZER_PROVIDER: %q", c.SummarizerProvider)
	}

	check(c.Dimensions > 0, "DIMENSIONS must be positive, got %d", c.Dimensions)
	check(c.TopK > 0, "TOP_K must be positive, got %d", c.TopK)
	check(c.CandidateFactor >= 1, "CANDIDATE_FACTOR must be at least 1, got %d", c.CandidateFactor)
	check(unit(c.EmotionWeight), "EMOTION_WEIGHT must be in [0,1], got %g", c.EmotionWeight)
	check(unit(c.DuplicateThreshold), "DUPLICATE_THRESHOLD must be in [0,1], got %g", c.DuplicateThreshold)
	check(unit(c.DuplicateFloor), "DUPLICATE_FLOOR must be in [0,1], got %g", c.DuplicateFloor)
	check(c.DreamEps > 0, "DREAM_EPS must be positive, got %g", c.DreamEps)
	check(c.DreamMinPts >= 1, "DREAM_MIN_PTS must be at least 1, got %d", c.DreamMinPts)
	check(c.DreamHalfLife > 0, "DREAM_HALF_LIFE must be positive, got %s", c.DreamHalfLife)
	check(c.DreamForgetBelow <= c.DreamKeepFrom, "DREAM_FORGET_BELOW (%g) must not exceed DREAM_KEEP_FROM (%g)", c.DreamForgetBelow, c.DreamKeepFrom)
	check(c.DreamLimit > 0, "DREAM_LIMIT must be positive, got %d", c.DreamLimit)
	check(c.DreamInterval > 0, "DREAM_INTERVAL must be positive, got %s", c.DreamInterval)
	check(c.DreamTick > 0, "DREAM_TICK must be positive, got %s", c.DreamTick)
	check(c.SummarizerPerMinute > 0, "SUMMARIZER_PER_MINUTE must be positive, got %g", c.SummarizerPerMinute)
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func unit(v float64) bool { return v >= 0 && v <= 1 }

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Memory returns the recall settings.
func (c *Config) Memory() *memory.Config {
	m := memory.DefaultConfig()
	m.TopK = c.TopK
	m.CandidateFactor = c.CandidateFactor
	m.EmotionWeight = c.EmotionWeight
	m.DuplicateThreshold = c.DuplicateThreshold
	m.DuplicateFloor = c.DuplicateFloor
	m.AgentName = c.AgentName
	if loc, err := c.Location(); err == nil {
		m.Location = loc
	}
	return m
}

// Dream returns the consolidation settings.
func (c *Config) Dream() *dream.Config {
	d := dream.DefaultConfig()
	d.Eps = c.DreamEps
	d.MinPts = c.DreamMinPts
	d.HalfLife = c.DreamHalfLife
	d.ForgetBelow = c.DreamForgetBelow
	d.KeepFrom = c.DreamKeepFrom
	d.Dimensions = c.Dimensions
	return d
}

// Scheduler returns the dream trigger settings.
func (c *Config) Scheduler() dream.SchedulerConfig {
	return dream.SchedulerConfig{
		Interval:        c.DreamInterval,
		Tick:            c.DreamTick,
		MaxSocialHunger: c.DreamMaxSocialHunger,
		MinEnergy:       c.DreamMinEnergy,
		Limit:           c.DreamLimit,
		Timeout:         c.DreamTimeout,
	}
}
