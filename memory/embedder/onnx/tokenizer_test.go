package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVocab() map[string]int {
	return map[string]int{
		"[PAD]": 0, "[UNK]": 100, "[CLS]": 101, "[SEP]": 102,
		"today": 2000, "meet": 2001, "##ing": 2002, "an": 2003, "investor": 2004,
		"?": 2005, "我": 2006,
	}
}

func TestTokenizeWordPiece(t *testing.T) {
	tok := NewTokenizer(testVocab())
	got := tok.Tokenize("Today meeting an INVESTOR?")
	assert.Equal(t, []int64{2000, 2001, 2002, 2003, 2004, 2005}, got)
}

func TestTokenizeUnknownAndCJK(t *testing.T) {
	tok := NewTokenizer(testVocab())
	got := tok.Tokenize("我 xyz")
	assert.Equal(t, []int64{2006, unkID}, got)
}

func TestEncodeTruncatesAndPads(t *testing.T) {
	tok := NewTokenizer(testVocab())

	ids, mask := tok.Encode("today today today today", 4)
	assert.Equal(t, []int64{clsID, 2000, 2000, sepID}, ids)
	assert.Equal(t, []int64{1, 1, 1, 1}, mask)

	ids, mask = tok.Encode("today", 5)
	assert.Equal(t, []int64{clsID, 2000, sepID, padID, padID}, ids)
	assert.Equal(t, []int64{1, 1, 1, 0, 0}, mask)
}

func TestMeanPoolSkipsPadding(t *testing.T) {
	hidden := []float32{
		1, 2,
		3, 4,
		100, 100,
	}
	got, err := meanPool(hidden, []int64{1, 1, 0}, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3}, got)

	_, err = meanPool(hidden, []int64{0, 0, 0}, 3, 2)
	assert.Error(t, err)
}
