package extract

import (
	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

// Entry registers one entity for mention scanning: the node it
// resolves to plus the surface forms that count as a mention.
type Entry struct {
	NodeID   string
	Label    string
	Aliases  []string
	Priority int
}

// Mention is one detected entity occurrence in text.
type Mention struct {
	NodeID string
	Start  int
	End    int
}

// stopWords are surface forms too generic to treat as mentions even
// when an entity happens to carry them as an alias.
var stopWords = map[string]bool{
	"the": true, "of": true, "and": true, "a": true, "an": true,
	"to": true, "in": true, "on": true, "for": true, "at": true, "by": true,
	"is": true, "it": true, "as": true, "be": true, "was": true,
	"are": true, "with": true, "from": true, "this": true, "that": true,
}

// Dictionary is a compiled Aho-Corasick automaton over every surface
// form of every registered entity. One automaton serves every scan;
// rebuild it when the entity set changes.
type Dictionary struct {
	ac           ahocorasick.AhoCorasick
	patternToID  []string
	patternCount int
}

// NewDictionary compiles entries into a scanner. Case-insensitive,
// whole words only, leftmost-longest so "New York City" wins over
// "New York". Returns nil when no usable surface forms remain; callers
// treat a nil dictionary as mentions-off.
func NewDictionary(entries []Entry) *Dictionary {
	var patterns []string
	var ids []string
	seen := make(map[string]bool)

	for _, e := range entries {
		surfaces := append([]string{e.Label}, e.Aliases...)
		for _, s := range surfaces {
			if len(s) < 2 || stopWords[s] || seen[s] {
				continue
			}
			seen[s] = true
			patterns = append(patterns, s)
			ids = append(ids, e.NodeID)
		}
	}
	if len(patterns) == 0 {
		return nil
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  true,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
	})
	return &Dictionary{
		ac:           builder.Build(patterns),
		patternToID:  ids,
		patternCount: len(patterns),
	}
}

// Size reports how many surface forms the automaton holds.
func (d *Dictionary) Size() int {
	if d == nil {
		return 0
	}
	return d.patternCount
}

// Scan finds every entity mention in text in one automaton pass.
func (d *Dictionary) Scan(text string) []Mention {
	if d == nil || text == "" {
		return nil
	}
	matches := d.ac.FindAll(text)
	out := make([]Mention, 0, len(matches))
	for _, m := range matches {
		out = append(out, Mention{
			NodeID: d.patternToID[m.Pattern()],
			Start:  m.Start(),
			End:    m.End(),
		})
	}
	return out
}
