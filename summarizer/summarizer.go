// Package summarizer turns clusters of related memories into one summary
// plus the durable facts they mention.
//
// The subpackages provide model-backed implementations (anthropic, openai)
// and a deterministic one (extractive). All of them satisfy
// memory.Summarizer.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/becomeliminal/affect-memory/memory"
)

// MaxTexts caps how many cluster members are shown to a model.
const MaxTexts = 50

// SystemPrompt frames the model as the memory organiser.
const SystemPrompt = "You organise an AI companion's memories while it sleeps."

// Prompt renders the instruction for summarizing texts. Only the first
// MaxTexts entries are included.
func Prompt(texts []string) string {
	if len(texts) > MaxTexts {
		texts = texts[:MaxTexts]
	}
	var b strings.Builder
	b.WriteString("Compress the related conversation snippets below into a single memory.\n")
	b.WriteString(`Reply with JSON of the form {"summary": "...", "facts": {"key": "value"}}. `)
	b.WriteString("The summary is one or two sentences. Facts hold verifiable details such as names, relationships and preferences, ")
	b.WriteString("keyed in snake_case. Leave facts empty when there are none.\n\n")
	for _, t := range texts {
		b.WriteString(t)
		b.WriteByte('\n')
	}
	b.WriteString("\nJSON:")
	return b.String()
}

// ParseSummary decodes a model reply. Code fences are ignored. A reply that
// is not a JSON object, or has an empty summary, is used verbatim as the
// summary with no facts. Non-scalar fact values are dropped.
func ParseSummary(reply string) memory.Summary {
	raw := strings.TrimSpace(stripFence(reply))

	var parsed struct {
		Summary any            `json:"summary"`
		Facts   map[string]any `json:"facts"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return memory.Summary{Text: raw}
	}

	out := memory.Summary{Text: strings.TrimSpace(scalar(parsed.Summary))}
	if out.Text == "" {
		out.Text = raw
	}
	for k, v := range parsed.Facts {
		k = strings.TrimSpace(k)
		s := scalar(v)
		if k == "" || s == "" {
			continue
		}
		if out.Facts == nil {
			out.Facts = make(map[string]string)
		}
		out.Facts[k] = s
	}
	return out
}

func scalar(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64, bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // language tag
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

// Limited is a Summarizer that waits for a token bucket before each call.
type Limited struct {
	next    memory.Summarizer
	limiter *rate.Limiter
}

// Limit wraps next so that it is called at most perMinute times a minute,
// with bursts of up to burst calls.
func Limit(next memory.Summarizer, perMinute float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perMinute/60), burst),
	}
}

// Summarize waits for a token, then delegates. A cancelled wait returns the
// context error.
func (l *Limited) Summarize(ctx context.Context, texts []string) (memory.Summary, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return memory.Summary{}, ctx.Err()
		}
		return memory.Summary{}, fmt.Errorf("rate limit: %w", err)
	}
	return l.next.Summarize(ctx, texts)
}
