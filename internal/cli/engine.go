package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/becomeliminal/affect-memory/dream"
	"github.com/becomeliminal/affect-memory/facts"
	"github.com/becomeliminal/affect-memory/internal/config"
	"github.com/becomeliminal/affect-memory/memory"
	"github.com/becomeliminal/affect-memory/memory/embedder/cache"
	"github.com/becomeliminal/affect-memory/memory/embedder/mock"
	embedopenai "github.com/becomeliminal/affect-memory/memory/embedder/openai"
	"github.com/becomeliminal/affect-memory/memory/store/chromem"
	"github.com/becomeliminal/affect-memory/memory/store/pgvector"
	"github.com/becomeliminal/affect-memory/summarizer"
	"github.com/becomeliminal/affect-memory/summarizer/anthropic"
	"github.com/becomeliminal/affect-memory/summarizer/extractive"
	sumopenai "github.com/becomeliminal/affect-memory/summarizer/openai"
)

// engine is the assembled memory engine.
type engine struct {
	config  *config.Config
	memory  *memory.Manager
	facts   *facts.Ledger
	dreamer *dream.Dreamer
	closers []func() error
}

func openEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	e := &engine{config: cfg}

	var store memory.Store
	switch cfg.StoreBackend {
	case "pgvector":
		store = pgvector.New(ctx, pgvector.Options{
			DSN:        cfg.PostgresDSN,
			Table:      cfg.PostgresTable,
			Dimensions: cfg.Dimensions,
		})
	default:
		store = chromem.New(chromem.Options{
			Path:       cfg.StorePath,
			Compress:   cfg.StoreCompress,
			Dimensions: cfg.Dimensions,
		})
	}

	embedder, err := e.newEmbedder()
	if err != nil {
		log.Warn().Err(err).Str("provider", cfg.EmbedProvider).Msg("embedder unavailable, running without memory")
		embedder = nil
	}

	e.memory = memory.NewManager(store, embedder, cfg.Memory())
	e.closers = append(e.closers, e.memory.Close)

	if cfg.FactsPath != "" {
		ledger, err := facts.Open(ctx, cfg.FactsPath)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("open fact ledger: %w", err)
		}
		e.facts = ledger
		e.closers = append(e.closers, ledger.Close)
	} else {
		e.facts = facts.New()
	}

	s, err := newSummarizer(cfg)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.dreamer = dream.New(e.memory, s, e.facts, cfg.Dream())
	return e, nil
}

func (e *engine) newEmbedder() (memory.Embedder, error) {
	cfg := e.config
	var (
		next memory.Embedder
		err  error
	)
	switch cfg.EmbedProvider {
	case "onnx":
		var closeFn func() error
		next, closeFn, err = newONNXEmbedder(cfg)
		if closeFn != nil {
			e.closers = append(e.closers, closeFn)
		}
	case "openai":
		next, err = embedopenai.New(embedopenai.Config{
			APIKey:     cfg.EmbedAPIKey,
			BaseURL:    cfg.EmbedBaseURL,
			Model:      cfg.EmbedModel,
			Dimensions: cfg.Dimensions,
		})
	default:
		next = mock.New(cfg.Dimensions)
	}
	if err != nil {
		return nil, err
	}
	if cfg.EmbedCacheSize <= 0 {
		return next, nil
	}
	cached, err := cache.New(next, cfg.EmbedCacheSize)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func() error { cached.Close(); return nil })
	return cached, nil
}

func newSummarizer(cfg *config.Config) (memory.Summarizer, error) {
	var model memory.Summarizer
	switch cfg.SummarizerProvider {
	case "none":
		return nil, nil
	case "anthropic":
		model = anthropic.New(anthropic.Config{
			APIKey:  cfg.SummarizerAPIKey,
			BaseURL: cfg.SummarizerBaseURL,
			Model:   cfg.SummarizerModel,
		})
	case "openai":
		s, err := sumopenai.New(sumopenai.Config{
			APIKey:  cfg.SummarizerAPIKey,
			BaseURL: cfg.SummarizerBaseURL,
			Model:   cfg.SummarizerModel,
		})
		if err != nil {
			return nil, err
		}
		model = s
	default:
		return extractive.New(), nil
	}
	return summarizer.Limit(model, cfg.SummarizerPerMinute, cfg.SummarizerBurst), nil
}

// Close releases everything in reverse order of acquisition.
func (e *engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
