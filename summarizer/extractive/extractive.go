// Package extractive is a model-free summarizer. It picks the cluster member
// that shares the most words with the others and uses it, trimmed, as the
// summary. It extracts no facts.
package extractive

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/becomeliminal/affect-memory/memory"
)

// DefaultMaxRunes caps the summary length.
const DefaultMaxRunes = 300

// Summarizer is deterministic and safe for concurrent use.
type Summarizer struct {
	MaxRunes int
}

// New returns a Summarizer with the default length cap.
func New() *Summarizer {
	return &Summarizer{MaxRunes: DefaultMaxRunes}
}

// Summarize returns the most central text of texts, without its timestamp
// prefix. Ties go to the earlier text.
func (s *Summarizer) Summarize(ctx context.Context, texts []string) (memory.Summary, error) {
	if err := ctx.Err(); err != nil {
		return memory.Summary{}, err
	}
	bodies := make([]string, 0, len(texts))
	for _, t := range texts {
		if b := strings.TrimSpace(memory.StripStamp(t)); b != "" {
			bodies = append(bodies, b)
		}
	}
	if len(bodies) == 0 {
		return memory.Summary{}, errors.New("extractive: nothing to summarize")
	}

	sets := make([]map[string]struct{}, len(bodies))
	for i, b := range bodies {
		sets[i] = words(b)
	}
	best, bestScore := 0, -1
	for i := range sets {
		score := 0
		for j := range sets {
			if i == j {
				continue
			}
			for w := range sets[i] {
				if _, ok := sets[j][w]; ok {
					score++
				}
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	limit := s.MaxRunes
	if limit <= 0 {
		limit = DefaultMaxRunes
	}
	text := bodies[best]
	if r := []rune(text); len(r) > limit {
		text = string(r[:limit])
	}
	return memory.Summary{Text: text}, nil
}

func words(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[f] = struct{}{}
	}
	return out
}
