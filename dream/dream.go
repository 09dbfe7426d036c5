// Package dream consolidates the memory store while the agent is idle.
//
// A run ("dream") takes the most recent raw memories and:
//
//  1. deletes memories that only record the agent failing,
//  2. deletes memories whose vectors are missing or corrupt,
//  3. clusters the rest by density over their embeddings,
//  4. scores each cluster by importance, emotion, recency and use,
//  5. forgets, compresses or keeps each cluster by score.
//
// Compression replaces a cluster with one summary written by a Summarizer
// and files any facts it extracted into the fact ledger. Every delete and
// insert commits on its own, so an interrupted run leaves a consistent
// store and the next run simply sees fewer records.
package dream

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/becomeliminal/affect-memory/facts"
	"github.com/becomeliminal/affect-memory/memory"
)

// Memories is the part of the memory engine a dream needs.
// *memory.Manager implements it.
type Memories interface {
	Store(ctx context.Context, text string, meta memory.StoreMetadata) (*memory.Record, error)
	Scan(ctx context.Context, limit int, kind memory.Kind) ([]memory.Record, error)
	Delete(ctx context.Context, ids ...string) error
}

// FactWriter receives facts extracted during compression.
// *facts.Ledger implements it.
type FactWriter interface {
	Write(ctx context.Context, key, value string, p facts.Provenance) bool
}

// Config tunes consolidation.
type Config struct {
	// Eps is the DBSCAN neighbourhood radius over unit vectors.
	// Default: 0.3
	Eps float64

	// MinPts is the DBSCAN core-point threshold, the point itself included.
	// Default: 2
	MinPts int

	// HalfLife of the recency decay. Default: 7 days.
	HalfLife time.Duration

	// EmotionBoost scales the strongest emotion into the score. Default: 0.5
	EmotionBoost float64

	// AccessWeight scales ln(1+access_count). Default: 0.2
	AccessWeight float64

	// ForgetBelow and KeepFrom bound the compress band. Defaults: 0.2, 0.8
	ForgetBelow float64
	KeepFrom    float64

	// SummaryImportance is the importance of written summaries. Default: 1.0
	SummaryImportance float32

	// Dimensions, when set, purges vectors of any other length.
	Dimensions int

	// GarbagePhrases replaces DefaultGarbagePhrases when non-nil.
	GarbagePhrases []string

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns the standard consolidation settings.
func DefaultConfig() *Config {
	return &Config{
		Eps:               0.3,
		MinPts:            2,
		HalfLife:          7 * 24 * time.Hour,
		EmotionBoost:      0.5,
		AccessWeight:      0.2,
		ForgetBelow:       0.2,
		KeepFrom:          0.8,
		SummaryImportance: 1.0,
	}
}

func (c *Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Config) phrases() []string {
	if c.GarbagePhrases != nil {
		return c.GarbagePhrases
	}
	return DefaultGarbagePhrases
}

// Summary reports what a run did. Forgotten, Compressed and Kept count
// records; Summaries and Fallbacks count clusters.
type Summary struct {
	RunID            string        `json:"run_id"`
	Scanned          int           `json:"scanned"`
	GarbageCollected int           `json:"garbage_collected"`
	Purged           int           `json:"purged"`
	Clusters         int           `json:"clusters"`
	Forgotten        int           `json:"forgotten_count"`
	Compressed       int           `json:"compressed_count"`
	Kept             int           `json:"kept_count"`
	Summaries        int           `json:"summaries"`
	Fallbacks        int           `json:"fallbacks"`
	FactsWritten     int           `json:"facts_written"`
	FactsRejected    int           `json:"facts_rejected"`
	Duration         time.Duration `json:"duration"`
}

// ErrRunning is returned when a run is requested while another is active.
var ErrRunning = errors.New("dream: a run is already in progress")

// Dreamer runs consolidation passes. It keeps no state between runs and
// executes at most one run at a time.
type Dreamer struct {
	memories   Memories
	summarizer memory.Summarizer // nil: always fall back
	facts      FactWriter        // nil: extracted facts are dropped
	config     *Config

	mu sync.Mutex // held for the duration of a run
}

// New creates a Dreamer. summarizer and ledger may be nil.
func New(memories Memories, summarizer memory.Summarizer, ledger FactWriter, config *Config) *Dreamer {
	if config == nil {
		config = DefaultConfig()
	}
	return &Dreamer{
		memories:   memories,
		summarizer: summarizer,
		facts:      ledger,
		config:     config,
	}
}

// cluster is a group of records sharing a DBSCAN label.
type cluster struct {
	label   int
	records []memory.Record
}

// Run consolidates up to limit of the most recent raw memories.
//
// Cancelling ctx stops the run before the next cluster; the partial Summary
// is returned together with ctx.Err(). A call made while another run is
// active returns ErrRunning without touching the store.
func (d *Dreamer) Run(ctx context.Context, limit int) (sum Summary, err error) {
	if !d.mu.TryLock() {
		return sum, ErrRunning
	}
	defer d.mu.Unlock()

	start := d.config.now()
	sum.RunID = ulid.MustNew(ulid.Timestamp(start), rand.Reader).String()
	logger := log.With().Str("run", sum.RunID).Logger()
	defer func() { sum.Duration = d.config.now().Sub(start) }()

	records, err := d.memories.Scan(ctx, limit, memory.KindRaw)
	if err != nil {
		return sum, fmt.Errorf("scan: %w", err)
	}
	sum.Scanned = len(records)
	if len(records) == 0 {
		logger.Debug().Msg("dream: nothing to consolidate")
		return sum, nil
	}

	var garbage, poison []string
	valid := records[:0:0]
	for _, r := range records {
		switch {
		case isGarbage(r.Text, d.config.phrases()):
			garbage = append(garbage, r.ID)
		case !memory.Usable(r.Vector) || (d.config.Dimensions > 0 && len(r.Vector) != d.config.Dimensions):
			poison = append(poison, r.ID)
		default:
			valid = append(valid, r)
		}
	}

	if len(garbage) > 0 {
		if err := d.memories.Delete(ctx, garbage...); err != nil {
			return sum, fmt.Errorf("delete low-quality memories: %w", err)
		}
		sum.GarbageCollected = len(garbage)
		logger.Info().Int("count", len(garbage)).Msg("dream: removed low-quality memories")
	}
	if len(poison) > 0 {
		if err := d.memories.Delete(ctx, poison...); err != nil {
			return sum, fmt.Errorf("delete corrupt memories: %w", err)
		}
		sum.Purged = len(poison)
		logger.Warn().Int("count", len(poison)).Msg("dream: purged memories with corrupt vectors")
	}

	if len(valid) < 2 {
		logger.Debug().Int("valid", len(valid)).Msg("dream: too few memories to cluster")
		return sum, nil
	}

	clusters, err := d.cluster(valid)
	if err != nil {
		return sum, err
	}
	sum.Clusters = len(clusters)

	now := d.config.now()
	for _, c := range clusters {
		if err := ctx.Err(); err != nil {
			logger.Info().Msg("dream: cancelled")
			return sum, err
		}

		var total float64
		for _, r := range c.records {
			total += d.config.Score(r, now)
		}
		score := total / float64(len(c.records))
		action := d.config.Classify(score, c.label == Noise)

		logger.Debug().Int("label", c.label).Int("size", len(c.records)).
			Float64("score", score).Stringer("action", action).Msg("dream: cluster")

		switch action {
		case Forget:
			if err := d.memories.Delete(ctx, ids(c.records)...); err != nil {
				logger.Warn().Err(err).Int("label", c.label).Msg("dream: forgetting failed")
				continue
			}
			sum.Forgotten += len(c.records)
		case Compress:
			if err := d.compress(ctx, c.records, &sum); err != nil {
				return sum, err
			}
		case Keep:
			sum.Kept += len(c.records)
		}
	}

	logger.Info().
		Int("scanned", sum.Scanned).
		Int("forgotten", sum.Forgotten).
		Int("compressed", sum.Compressed).
		Int("kept", sum.Kept).
		Int("summaries", sum.Summaries).
		Msg("dream: finished")
	return sum, nil
}

// cluster groups records by DBSCAN label. Noise records become one cluster
// each, listed first; real clusters follow in label order.
func (d *Dreamer) cluster(recs []memory.Record) ([]cluster, error) {
	vecs := make([][]float32, len(recs))
	for i, r := range recs {
		vecs[i] = r.Vector
	}
	dist, err := Distances(vecs)
	if err != nil {
		return nil, err
	}
	labels := DBSCAN(dist, d.config.Eps, d.config.MinPts)

	var out []cluster
	grouped := make(map[int][]memory.Record)
	for i, l := range labels {
		if l == Noise {
			out = append(out, cluster{label: Noise, records: []memory.Record{recs[i]}})
			continue
		}
		grouped[l] = append(grouped[l], recs[i])
	}
	keys := make([]int, 0, len(grouped))
	for l := range grouped {
		keys = append(keys, l)
	}
	sort.Ints(keys)
	for _, l := range keys {
		out = append(out, cluster{label: l, records: grouped[l]})
	}
	return out, nil
}

// compress replaces recs with a single summary. Only cancellation is
// returned as an error; any other failure is absorbed by this cluster.
func (d *Dreamer) compress(ctx context.Context, recs []memory.Record, sum *Summary) error {
	texts := make([]string, len(recs))
	for i, r := range recs {
		texts[i] = r.Text
	}

	var (
		summary memory.Summary
		err     error
	)
	if d.summarizer != nil {
		summary, err = d.summarizer.Summarize(ctx, texts)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if d.summarizer == nil || err != nil || strings.TrimSpace(summary.Text) == "" {
		if err != nil {
			log.Warn().Err(err).Int("size", len(recs)).Msg("dream: summarizer failed, keeping longest memory")
		}
		d.keepLongest(ctx, recs, sum)
		return nil
	}

	importance := d.config.SummaryImportance
	rec, err := d.memories.Store(ctx, summary.Text, memory.StoreMetadata{
		Importance: &importance,
		Kind:       memory.KindSummary,
		Emotions:   meanEmotions(recs),
		Timestamp:  d.config.now(),
	})
	if err != nil {
		log.Warn().Err(err).Int("size", len(recs)).Msg("dream: could not store summary, cluster left as is")
		sum.Kept += len(recs)
		return nil
	}
	sum.Summaries++

	if err := d.memories.Delete(ctx, ids(recs)...); err != nil {
		log.Warn().Err(err).Str("summary", rec.ID).Msg("dream: summary stored but originals remain")
	} else {
		sum.Compressed += len(recs)
	}

	if d.facts == nil {
		return nil
	}
	keys := make([]string, 0, len(summary.Facts))
	for k := range summary.Facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if d.facts.Write(ctx, k, summary.Facts[k], facts.ProvenanceDream) {
			sum.FactsWritten++
		} else {
			sum.FactsRejected++
		}
	}
	return nil
}

// keepLongest keeps the member with the longest text, as a raw stand-in for
// the summary that could not be written, and deletes the others.
func (d *Dreamer) keepLongest(ctx context.Context, recs []memory.Record, sum *Summary) {
	best := 0
	for i, r := range recs {
		if n, m := len([]rune(r.Text)), len([]rune(recs[best].Text)); n > m || (n == m && r.Timestamp > recs[best].Timestamp) {
			best = i
		}
	}
	others := make([]string, 0, len(recs)-1)
	for i, r := range recs {
		if i != best {
			others = append(others, r.ID)
		}
	}

	sum.Fallbacks++
	sum.Kept++
	if len(others) == 0 {
		return
	}
	if err := d.memories.Delete(ctx, others...); err != nil {
		log.Warn().Err(err).Msg("dream: fallback delete failed")
		sum.Kept += len(others)
		return
	}
	sum.Compressed += len(others)
}

func ids(recs []memory.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
