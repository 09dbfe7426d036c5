// Package onnx embeds text locally with a sentence-transformer model
// (all-MiniLM-L6-v2 by default) through ONNX Runtime. The runtime binding is
// only compiled with the onnx build tag; the tokenizer is always available.
package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Special token ids of the BERT uncased vocabulary.
const (
	padID = 0
	unkID = 100
	clsID = 101
	sepID = 102
)

// Tokenizer is a BERT-style WordPiece tokenizer loaded from a HuggingFace
// tokenizer.json.
type Tokenizer struct {
	vocab map[string]int
}

// LoadTokenizer reads the vocabulary of a tokenizer.json file.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	var doc struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if len(doc.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has no vocabulary", path)
	}
	return NewTokenizer(doc.Model.Vocab), nil
}

// NewTokenizer builds a tokenizer from a vocabulary.
func NewTokenizer(vocab map[string]int) *Tokenizer {
	return &Tokenizer{vocab: vocab}
}

// Encode tokenizes text into a [CLS] ... [SEP] sequence padded to maxLen,
// returning input ids and the attention mask.
func (t *Tokenizer) Encode(text string, maxLen int) (ids, mask []int64) {
	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)

	tokens := t.Tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}

	ids[0], mask[0] = clsID, 1
	for i, tok := range tokens {
		ids[i+1], mask[i+1] = tok, 1
	}
	end := len(tokens) + 1
	ids[end], mask[end] = sepID, 1
	return ids, mask
}

// Tokenize converts text to WordPiece token ids, without special tokens.
func (t *Tokenizer) Tokenize(text string) []int64 {
	var out []int64
	for _, word := range splitWords(strings.ToLower(text)) {
		if id, ok := t.vocab[word]; ok {
			out = append(out, int64(id))
			continue
		}
		out = append(out, t.wordPiece(word)...)
	}
	return out
}

// splitWords splits on whitespace and isolates punctuation and CJK
// characters, which the BERT basic tokenizer treats as words of their own.
func splitWords(text string) []string {
	var (
		words []string
		cur   []rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.Is(unicode.Han, r):
			flush()
			words = append(words, string(r))
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

// wordPiece splits a word into the longest vocabulary prefixes, marking
// continuations with "##". A word with an unmatched piece becomes [UNK].
func (t *Tokenizer) wordPiece(word string) []int64 {
	runes := []rune(word)
	var out []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		matched := -1
		for end > start {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				matched = id
				break
			}
			end--
		}
		if matched < 0 {
			return []int64{unkID}
		}
		out = append(out, int64(matched))
		start = end
	}
	return out
}

// meanPool averages the attended rows of a [seqLen, hidden] output.
func meanPool(hidden []float32, mask []int64, seqLen, dims int) ([]float32, error) {
	if len(hidden) < seqLen*dims {
		return nil, fmt.Errorf("output has %d values, want %d", len(hidden), seqLen*dims)
	}
	out := make([]float32, dims)
	var attended float32
	for i := 0; i < seqLen && i < len(mask); i++ {
		if mask[i] == 0 {
			continue
		}
		attended++
		row := hidden[i*dims : (i+1)*dims]
		for j, v := range row {
			out[j] += v
		}
	}
	if attended == 0 {
		return nil, fmt.Errorf("no attended tokens")
	}
	for j := range out {
		out[j] /= attended
	}
	return out, nil
}
