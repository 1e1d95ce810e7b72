package search

import (
	"sort"
	"strings"
	"unicode"
)

// Span marks one highlighted region of a snippet, in rune offsets relative
// to the snippet string itself.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

const ellipsis = "..."

// grammar words never highlight
var fts5Operators = map[string]bool{
	"and":  true,
	"or":   true,
	"not":  true,
	"near": true,
}

// Extract produces a fixed-width preview of text centered on the first
// query match, plus the highlight spans inside it. Offsets are rune
// offsets throughout; a multi-byte character is never split. The result
// depends only on the inputs.
func Extract(text, query string, width int) (string, []Span) {
	if width <= 0 {
		width = defaultSnippetWidth
	}
	terms := queryTerms(query)

	runes := []rune(normalizeSpace(text))
	lower := lowerRunes(runes)

	matchStart, matchLen := firstMatch(lower, terms)
	start, end := window(len(runes), matchStart, matchLen, width)

	// don't open mid-word; stop before eating into the match
	if start > 0 && matchStart >= 0 {
		for start < matchStart && !unicode.IsSpace(runes[start]) {
			start++
		}
		for start < matchStart && unicode.IsSpace(runes[start]) {
			start++
		}
	}

	prefix := 0
	if start > 0 {
		prefix = len([]rune(ellipsis))
	}

	var spans []Span
	seg := lower[start:end]
	for _, term := range terms {
		t := []rune(term)
		if len(t) == 0 {
			continue
		}
		for i := 0; i+len(t) <= len(seg); i++ {
			if runesEqual(seg[i:i+len(t)], t) {
				spans = append(spans, Span{Start: prefix + i, End: prefix + i + len(t)})
				i += len(t) - 1
			}
		}
	}
	spans = mergeSpans(spans)

	var b strings.Builder
	if start > 0 {
		b.WriteString(ellipsis)
	}
	b.WriteString(string(runes[start:end]))
	if end < len(runes) {
		b.WriteString(ellipsis)
	}
	return b.String(), spans
}

// queryTerms yields the content-bearing parts of a query: quoted phrases as
// single terms, bare words lowercased, grammar words and wildcards dropped.
func queryTerms(query string) []string {
	var terms []string
	var cur strings.Builder
	inQuote := false

	flush := func(quoted bool) {
		s := strings.TrimSpace(cur.String())
		cur.Reset()
		if s == "" {
			return
		}
		if !quoted {
			if fts5Operators[strings.ToLower(s)] {
				return
			}
			s = strings.TrimSuffix(s, "*")
			if i := strings.LastIndex(s, ":"); i >= 0 {
				s = s[i+1:]
			}
			s = strings.Trim(s, "()")
			if s == "" {
				return
			}
		}
		terms = append(terms, strings.ToLower(s))
	}

	for _, r := range query {
		switch {
		case r == '"':
			if inQuote {
				flush(true)
			} else {
				flush(false)
			}
			inQuote = !inQuote
		case !inQuote && unicode.IsSpace(r):
			flush(false)
		default:
			cur.WriteRune(r)
		}
	}
	flush(inQuote)
	return terms
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// lowerRunes lowercases rune by rune, keeping offsets stable.
func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

// firstMatch returns the earliest term occurrence; on a shared start the
// longer term wins so phrases beat their own words.
func firstMatch(lower []rune, terms []string) (int, int) {
	best, bestLen := -1, 0
	for _, term := range terms {
		t := []rune(term)
		if len(t) == 0 {
			continue
		}
		pos := indexRunes(lower, t)
		if pos < 0 {
			continue
		}
		if best < 0 || pos < best || (pos == best && len(t) > bestLen) {
			best, bestLen = pos, len(t)
		}
	}
	return best, bestLen
}

func indexRunes(haystack, needle []rune) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if runesEqual(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// window picks the rune range to show. A text shorter than the width is
// returned whole; otherwise the window centers on the match, clamped to the
// text, and falls back to the head when nothing matched.
func window(n, matchStart, matchLen, width int) (int, int) {
	if n <= width {
		return 0, n
	}
	if matchStart < 0 {
		return 0, width
	}
	center := matchStart + matchLen/2
	start := center - width/2
	if start < 0 {
		start = 0
	}
	end := start + width
	if end > n {
		end = n
		start = end - width
	}
	return start, end
}

func mergeSpans(spans []Span) []Span {
	if len(spans) < 2 {
		return spans
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End > spans[j].End
	})
	out := spans[:1]
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
