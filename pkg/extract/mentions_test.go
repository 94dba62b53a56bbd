package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictionaryScan(t *testing.T) {
	dict := NewDictionary([]Entry{
		{NodeID: "person:ada", Label: "Ada Lovelace", Aliases: []string{"Ada"}},
		{NodeID: "concept:engine", Label: "Analytical Engine"},
	})
	require.NotNil(t, dict)

	mentions := dict.Scan("ada lovelace designed programs for the analytical engine.")
	require.Len(t, mentions, 2)
	assert.Equal(t, "person:ada", mentions[0].NodeID)
	assert.Equal(t, "concept:engine", mentions[1].NodeID)
}

func TestDictionaryLeftmostLongest(t *testing.T) {
	dict := NewDictionary([]Entry{
		{NodeID: "short", Label: "New York"},
		{NodeID: "long", Label: "New York City"},
	})
	require.NotNil(t, dict)

	mentions := dict.Scan("I moved to New York City last year")
	require.Len(t, mentions, 1)
	assert.Equal(t, "long", mentions[0].NodeID, "longest surface form wins")
}

func TestDictionaryWholeWordsOnly(t *testing.T) {
	dict := NewDictionary([]Entry{{NodeID: "cat", Label: "cat"}})
	require.NotNil(t, dict)

	assert.Empty(t, dict.Scan("concatenate categories"))
	assert.Len(t, dict.Scan("the cat sat"), 1)
}

func TestDictionaryFiltersUnusableSurfaces(t *testing.T) {
	assert.Nil(t, NewDictionary(nil))
	assert.Nil(t, NewDictionary([]Entry{{NodeID: "x", Label: "a"}}), "single characters are dropped")
	assert.Nil(t, NewDictionary([]Entry{{NodeID: "x", Label: "the"}}), "stop words are dropped")

	dict := NewDictionary([]Entry{{NodeID: "x", Label: "the", Aliases: []string{"real name"}}})
	require.NotNil(t, dict)
	assert.Equal(t, 1, dict.Size())
}

func TestDictionaryNilIsSafe(t *testing.T) {
	var dict *Dictionary
	assert.Empty(t, dict.Scan("anything"))
	assert.Equal(t, 0, dict.Size())
}

func TestDictionaryOffsets(t *testing.T) {
	dict := NewDictionary([]Entry{{NodeID: "x", Label: "target"}})
	require.NotNil(t, dict)

	text := "before target after"
	mentions := dict.Scan(text)
	require.Len(t, mentions, 1)
	assert.Equal(t, "target", text[mentions[0].Start:mentions[0].End])
}
