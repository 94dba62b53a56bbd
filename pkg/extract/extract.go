// Package extract pulls structure out of markdown text: wiki links,
// tags, and dictionary-driven entity mentions.
package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// WikiLink is one [[target]] or [[target|alias]] occurrence.
type WikiLink struct {
	Target string
	Alias  string
	Start  int
	End    int
}

// Result holds everything one scan found. Tags are deduplicated and
// stripped of the leading '#'; wiki links keep every occurrence so
// repeated references can accumulate weight downstream.
type Result struct {
	WikiLinks []WikiLink
	Tags      []string
}

// Scan walks the text once, jumping between trigger characters instead
// of running regexes.
func Scan(text string) Result {
	var res Result
	seenTags := make(map[string]bool)
	n := len(text)
	i := 0

	for i < n {
		next := strings.IndexAny(text[i:], "[#")
		if next == -1 {
			break
		}
		i += next

		switch text[i] {
		case '[':
			if i+1 < n && text[i+1] == '[' {
				if link, end := tryWikiLink(text, i); link != nil {
					res.WikiLinks = append(res.WikiLinks, *link)
					i = end
					continue
				}
			}
			i++
		case '#':
			// &#39; style HTML entities are not tags.
			if i > 0 && text[i-1] == '&' {
				i++
				continue
			}
			if tag, end := tryTag(text, i); tag != "" {
				if !seenTags[tag] {
					seenTags[tag] = true
					res.Tags = append(res.Tags, tag)
				}
				i = end
			} else {
				i++
			}
		}
	}
	return res
}

// tryWikiLink parses [[target]] or [[target|alias]] starting at the
// first '['. Returns nil when the brackets never close or the target is
// empty.
func tryWikiLink(text string, start int) (*WikiLink, int) {
	n := len(text)
	close := strings.Index(text[start+2:], "]]")
	if close == -1 {
		return nil, start
	}
	inner := text[start+2 : start+2+close]
	end := start + 2 + close + 2
	if end > n {
		return nil, start
	}
	if strings.ContainsAny(inner, "[\n") {
		return nil, start
	}

	target, alias := inner, ""
	if pipe := strings.IndexByte(inner, '|'); pipe != -1 {
		target = inner[:pipe]
		alias = strings.TrimSpace(inner[pipe+1:])
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, start
	}
	return &WikiLink{Target: target, Alias: alias, Start: start, End: end}, end
}

// tryTag parses #word starting at the '#'. Tag characters are letters,
// digits, '-', '_', and '/'. Letters are decoded as runes so a
// multi-byte tag like #café is taken whole, never split mid-rune.
func tryTag(text string, start int) (string, int) {
	n := len(text)
	k := start + 1
	for k < n {
		c, size := utf8.DecodeRuneInString(text[k:])
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '-' || c == '_' || c == '/' {
			k += size
			continue
		}
		break
	}
	if k == start+1 {
		return "", start
	}
	tag := text[start+1 : k]
	// Pure digits ("#1 priority") are not tags.
	allDigits := true
	for _, c := range tag {
		if !unicode.IsDigit(c) {
			allDigits = false
			break
		}
	}
	if allDigits {
		return "", start
	}
	return tag, k
}
