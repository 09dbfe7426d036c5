package memory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Manager is the memory engine's entry point: it stamps and embeds writes,
// ranks recalls, and exposes scans and deletes to consolidation.
//
// A Manager is safe for concurrent use when its Store and Embedder are.
type Manager struct {
	store     Store
	embedder  Embedder // injected once, shared with nothing else
	config    *Config
	available bool
}

// NewManager creates a Manager. A nil or unavailable store, a nil embedder,
// or an embedder whose dimension differs from the store's puts the Manager
// in degraded mode; see Available.
func NewManager(store Store, embedder Embedder, config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	m := &Manager{
		store:    store,
		embedder: embedder,
		config:   config,
	}

	switch {
	case store == nil || !store.Available():
		log.Warn().Msg("memory store unavailable, running without memory")
	case embedder == nil:
		log.Warn().Msg("embedder unavailable, running without memory")
	case embedder.Dimensions() != store.Dimensions():
		log.Warn().
			Int("embedder_dims", embedder.Dimensions()).
			Int("store_dims", store.Dimensions()).
			Msg("embedder and store dimensions differ, running without memory")
	default:
		m.available = true
	}
	return m
}

// Available reports whether the Manager can read and write memories.
func (m *Manager) Available() bool {
	return m.available
}

// Config returns the Manager's configuration.
func (m *Manager) Config() *Config {
	return m.config
}

// Store stamps, embeds and persists text as a new record.
func (m *Manager) Store(ctx context.Context, text string, meta StoreMetadata) (*Record, error) {
	if !m.available {
		log.Warn().Str("text", truncate(text, 50)).Msg("memory unavailable, dropping write")
		return nil, ErrUnavailable
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	importance := DefaultImportance
	if meta.Importance != nil {
		importance = *meta.Importance
	}
	if math.IsNaN(float64(importance)) || importance < 0 || importance > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImportance, importance)
	}

	kind := meta.Kind
	if kind == "" {
		kind = KindRaw
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("memory: unknown kind %q", kind)
	}

	if len(meta.EmotionVector) > 0 && !Finite(meta.EmotionVector) {
		return nil, fmt.Errorf("%w: emotion vector", ErrInvalidVector)
	}

	ts := meta.Timestamp
	if ts.IsZero() {
		ts = m.config.now()
	}
	if !HasStamp(text) {
		text = Stamp(ts, m.config.Location, text)
	}

	vector, err := m.embedder.Embed(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("embedding failed, dropping write")
		return nil, fmt.Errorf("%w: embed: %v", ErrUnavailable, err)
	}
	if err := CheckVector(vector, m.store.Dimensions()); err != nil {
		log.Debug().Err(err).Str("text", truncate(text, 50)).Msg("rejecting memory with bad vector")
		return nil, err
	}

	rec := &Record{
		ID:            uuid.New().String(),
		Text:          text,
		Vector:        vector,
		EmotionVector: meta.EmotionVector,
		Timestamp:     float64(ts.UnixNano()) / 1e9,
		Importance:    importance,
		Kind:          kind,
		Emotions:      meta.Emotions,
	}
	if err := m.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("put: %w", err)
	}

	log.Debug().Str("id", rec.ID).Str("kind", string(kind)).Msg("memory stored")
	return rec, nil
}

// Scan returns the newest limit records of the given kind ("" for all).
func (m *Manager) Scan(ctx context.Context, limit int, kind Kind) ([]Record, error) {
	if !m.available {
		log.Warn().Msg("memory unavailable, scan returns nothing")
		return nil, nil
	}
	if limit <= 0 {
		return nil, nil
	}
	return m.store.Scan(ctx, limit, kind)
}

// Delete removes records by id. Unknown ids are ignored.
func (m *Manager) Delete(ctx context.Context, ids ...string) error {
	if !m.available {
		log.Warn().Int("ids", len(ids)).Msg("memory unavailable, delete skipped")
		return nil
	}
	if len(ids) == 0 {
		return nil
	}
	return m.store.Delete(ctx, ids...)
}

// Count returns the number of stored records, or 0 when unavailable.
func (m *Manager) Count(ctx context.Context) (int, error) {
	if !m.available {
		return 0, nil
	}
	return m.store.Count(ctx)
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}

// Affect is the emotional context of a write, supplied by the drive
// simulator. The zero value means "no emotional snapshot".
type Affect struct {
	Vector   []float64
	Emotions map[string]float64
	Rapport  float64
}

// RecordInteraction logs one user/agent exchange as a Raw memory. Importance
// follows rapport, clamped to [0.1, 1].
func (m *Manager) RecordInteraction(ctx context.Context, userText, reply string, affect Affect) (*Record, error) {
	importance := float32(math.Min(math.Max(affect.Rapport, 0.1), 1.0))
	text := fmt.Sprintf("%s %s\n%s: %s", m.config.speaker(), userText, m.config.AgentName, reply)
	return m.Store(ctx, text, StoreMetadata{
		EmotionVector: affect.Vector,
		Importance:    &importance,
		Kind:          KindRaw,
		Emotions:      affect.Emotions,
	})
}

// RecordEpiphany logs a reflective thought of the agent.
func (m *Manager) RecordEpiphany(ctx context.Context, thought string, affect Affect) (*Record, error) {
	text := fmt.Sprintf("%s's epiphany: %s", m.config.AgentName, thought)
	return m.Store(ctx, text, StoreMetadata{
		EmotionVector: affect.Vector,
		Importance:    Importance(0.8),
		Kind:          KindEpiphany,
		Emotions:      affect.Emotions,
	})
}

// Config holds Manager configuration.
type Config struct {
	// TopK is the default number of recall results.
	// Default: 5
	TopK int

	// CandidateFactor multiplies TopK to size the nearest-neighbour fetch.
	// Default: 2
	CandidateFactor int

	// EmotionWeight blends emotion alignment into the recall score [0.0-1.0].
	// Default: 0.3
	EmotionWeight float64

	// DuplicateThreshold is the question overlap ratio above which a memory
	// is treated as a repeat of the query.
	// Default: 0.75
	DuplicateThreshold float64

	// DuplicateFloor is the smallest multiplier a repeated question can get.
	// Default: 0.05
	DuplicateFloor float64

	// SpeakerMarkers open the user's part of a logged exchange.
	// The first one is used when writing.
	SpeakerMarkers []string

	// AgentMarkers close it. AgentName + ":" is always included.
	AgentMarkers []string

	// AgentName is the agent's name in logged exchanges.
	// Default: "Companion"
	AgentName string

	// Location renders timestamp prefixes. Default: time.Local.
	Location *time.Location

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TopK:               5,
		CandidateFactor:    2,
		EmotionWeight:      0.3,
		DuplicateThreshold: 0.75,
		DuplicateFloor:     0.05,
		SpeakerMarkers:     []string{"User:", "User：", "用户:", "用户："},
		AgentName:          "Companion",
		Location:           time.Local,
	}
}

func (c *Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Config) speaker() string {
	if len(c.SpeakerMarkers) > 0 {
		return c.SpeakerMarkers[0]
	}
	return "User:"
}

func (c *Config) agentMarkers() []string {
	markers := append([]string(nil), c.AgentMarkers...)
	if c.AgentName != "" {
		markers = append(markers, c.AgentName+":", c.AgentName+"：")
	}
	return markers
}
