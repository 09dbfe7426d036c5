package memory

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
)

// RecallOptions tunes a single recall. Zero values fall back to the
// Manager's Config.
type RecallOptions struct {
	// EmotionVector is the agent's current emotional state, if any.
	EmotionVector []float64

	// TopK is the number of results.
	TopK int

	// EmotionWeight overrides Config.EmotionWeight when non-nil.
	EmotionWeight *float64
}

// Recall ranks stored memories against query.
//
// Each candidate scores (1-w)*semantic + w*emotion, where both similarities
// are cosines rescaled to [0,1] and emotion is 1.0 unless both sides carry an
// emotion vector. Candidates whose logged question nearly repeats the query
// are scaled down by max(floor, 1-ratio). Every returned record has its
// access count incremented.
//
// Recall never fails because a dependency is down: it returns no results.
func (m *Manager) Recall(ctx context.Context, query string, opts RecallOptions) ([]ScoredRecord, error) {
	if !m.available {
		log.Warn().Msg("memory unavailable, recall returns nothing")
		return nil, nil
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = m.config.TopK
	}
	if topK <= 0 {
		topK = 5
	}
	weight := m.config.EmotionWeight
	if opts.EmotionWeight != nil {
		weight = *opts.EmotionWeight
	}
	weight = math.Min(math.Max(weight, 0), 1)

	qv, err := m.embedder.Embed(ctx, query)
	if err != nil {
		log.Warn().Err(err).Msg("embedding failed, recall returns nothing")
		return nil, nil
	}
	if len(qv) != m.store.Dimensions() || !Finite(qv) {
		log.Warn().Int("dims", len(qv)).Msg("query vector does not fit the store, recall returns nothing")
		return nil, nil
	}

	factor := m.config.CandidateFactor
	if factor <= 0 {
		factor = 2
	}
	candidates, err := m.store.Search(ctx, qv, factor*topK)
	if err != nil {
		return nil, err
	}

	useEmotion := len(opts.EmotionVector) > 0
	threshold, floor := m.config.duplicateBand()
	agents := m.config.agentMarkers()

	hits := make([]ScoredRecord, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) == 0 || c.Text == "" {
			continue
		}

		semantic := 0.0
		if Usable(c.Vector) && Usable(qv) {
			semantic = Rescale(Cosine(qv, c.Vector))
		}

		emotion := 1.0
		if useEmotion && len(c.EmotionVector) > 0 {
			emotion = Rescale(Cosine(opts.EmotionVector, c.EmotionVector))
		}

		hit := ScoredRecord{
			Record:   c,
			Semantic: semantic,
			Emotion:  emotion,
			Penalty:  1,
		}
		hit.Score = (1-weight)*semantic + weight*emotion

		if q := Question(c.Text, m.config.SpeakerMarkers, agents); q != "" {
			hit.Lexical = LexicalRatio(q, query)
			if hit.Lexical > threshold {
				hit.Penalty = math.Max(floor, 1-hit.Lexical)
				hit.Score *= hit.Penalty
			}
		}
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Timestamp != hits[j].Timestamp {
			return hits[i].Timestamp > hits[j].Timestamp
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	for i := range hits {
		next := hits[i].AccessCount + 1
		if err := m.store.UpdateAccessCount(ctx, hits[i].ID, next); err != nil {
			log.Debug().Err(err).Str("id", hits[i].ID).Msg("access count update lost")
			continue
		}
		hits[i].AccessCount = next
	}

	log.Debug().Int("hits", len(hits)).Int("candidates", len(candidates)).Str("query", truncate(query, 50)).Msg("recall")
	return hits, nil
}

func (c *Config) duplicateBand() (threshold, floor float64) {
	threshold, floor = c.DuplicateThreshold, c.DuplicateFloor
	if threshold <= 0 {
		threshold = 0.75
	}
	if floor <= 0 {
		floor = 0.05
	}
	return threshold, floor
}
