package memory

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Question extracts the user's part of a logged exchange: the text after the
// first speaker marker up to the first agent marker. The timestamp prefix is
// ignored. Text without a speaker marker yields "".
func Question(text string, speakers, agents []string) string {
	body := StripStamp(text)

	at, width := -1, 0
	for _, m := range speakers {
		if m == "" {
			continue
		}
		if i := strings.Index(body, m); i >= 0 && (at < 0 || i < at) {
			at, width = i, len(m)
		}
	}
	if at < 0 {
		return ""
	}
	q := body[at+width:]

	end := len(q)
	for _, m := range agents {
		if m == "" {
			continue
		}
		if i := strings.Index(q, m); i >= 0 && i < end {
			end = i
		}
	}
	return strings.TrimSpace(q[:end])
}

// LexicalRatio returns the longest-matching-block similarity of a and b in
// [0, 1], compared per rune after lower-casing and trimming.
func LexicalRatio(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	m := difflib.NewMatcher(runes(a), runes(b))
	return m.Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
