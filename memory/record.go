package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind tags where a record came from.
type Kind string

const (
	KindRaw      Kind = "raw"      // logged interaction
	KindSummary  Kind = "summary"  // written by consolidation
	KindEpiphany Kind = "epiphany" // reflective thought
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindRaw, KindSummary, KindEpiphany:
		return true
	}
	return false
}

// ParseKind maps a stored kind string to a Kind. Unknown values map to KindRaw.
func ParseKind(s string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return KindRaw
	}
	return k
}

// StampLayout is the layout of the timestamp prefix on every record's text.
const StampLayout = "2006-01-02 15:04:05"

// Record is a single persisted memory.
type Record struct {
	ID            string             `json:"id"`
	Text          string             `json:"text"`
	Vector        []float32          `json:"vector,omitempty"`
	EmotionVector []float64          `json:"emotion_vector,omitempty"`
	Timestamp     float64            `json:"timestamp"` // unix seconds
	Importance    float32            `json:"importance"`
	Kind          Kind               `json:"kind"`
	Emotions      map[string]float64 `json:"emotions,omitempty"`
	AccessCount   int64              `json:"access_count"`
}

// Time returns the record timestamp as a time.Time.
func (r Record) Time() time.Time {
	sec := int64(r.Timestamp)
	nsec := int64((r.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// AgeDays returns the age of the record at now, in fractional days.
// Records from the future have age 0.
func (r Record) AgeDays(now time.Time) float64 {
	age := float64(now.UnixNano())/1e9 - r.Timestamp
	if age < 0 {
		return 0
	}
	return age / 86400
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	if r.Vector != nil {
		out.Vector = append([]float32(nil), r.Vector...)
	}
	if r.EmotionVector != nil {
		out.EmotionVector = append([]float64(nil), r.EmotionVector...)
	}
	if r.Emotions != nil {
		out.Emotions = make(map[string]float64, len(r.Emotions))
		for k, v := range r.Emotions {
			out.Emotions[k] = v
		}
	}
	return out
}

// StoreMetadata carries the optional fields of a write.
// Zero values mean: no emotion vector, now, importance 0.5, KindRaw, no emotions.
type StoreMetadata struct {
	EmotionVector []float64
	Timestamp     time.Time
	Importance    *float32
	Kind          Kind
	Emotions      map[string]float64
}

// DefaultImportance is used when StoreMetadata.Importance is nil.
const DefaultImportance float32 = 0.5

// Importance returns a pointer to v, for StoreMetadata literals.
func Importance(v float32) *float32 { return &v }

// ScoredRecord is a recall hit with its ranking breakdown.
type ScoredRecord struct {
	Record

	Score    float64 `json:"score"`    // final ranking score
	Semantic float64 `json:"semantic"` // rescaled query/record cosine
	Emotion  float64 `json:"emotion"`  // rescaled emotion cosine, 1.0 when not compared
	Lexical  float64 `json:"lexical"`  // question overlap ratio
	Penalty  float64 `json:"penalty"`  // multiplier applied for a repeated question
}

// Stamp prefixes text with the rendered timestamp of t in loc.
func Stamp(t time.Time, loc *time.Location, text string) string {
	if loc != nil {
		t = t.In(loc)
	}
	return fmt.Sprintf("[%s] %s", t.Format(StampLayout), text)
}

// HasStamp reports whether text starts with a bracketed prefix that closes
// within the first 25 bytes.
func HasStamp(text string) bool {
	_, ok := cutStamp(text)
	return ok
}

// StripStamp removes a leading timestamp prefix, if any.
func StripStamp(text string) string {
	rest, _ := cutStamp(text)
	return rest
}

func cutStamp(text string) (string, bool) {
	if !strings.HasPrefix(text, "[") {
		return text, false
	}
	end := strings.IndexByte(text, ']')
	if end < 0 || end >= 25 {
		return text, false
	}
	return strings.TrimSpace(text[end+1:]), true
}

// FormatForPrompt renders recalled memories one per line, oldest first,
// the way they are injected into the chat model's context.
func FormatForPrompt(hits []ScoredRecord, maxLen int) string {
	if len(hits) == 0 {
		return ""
	}
	ordered := make([]ScoredRecord, len(hits))
	copy(ordered, hits)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	var b strings.Builder
	for _, h := range ordered {
		text := h.Text
		if maxLen > 0 {
			text = truncate(text, maxLen)
		}
		b.WriteString("- ")
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String()
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
