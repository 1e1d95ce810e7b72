package search

import "github.com/sahilm/fuzzy"

// resultSource adapts results for fuzzy matching over summary and project.
type resultSource []Result

func (s resultSource) String(i int) string {
	return s[i].Summary + " " + s[i].ProjectPath
}

func (s resultSource) Len() int { return len(s) }

// FuzzyFilter narrows results to fuzzy matches on summary or project path,
// best match first. It backs the list views, where typing filters the
// recent-session listing instead of running a full-text query.
func FuzzyFilter(results []Result, pattern string) []Result {
	matches := fuzzy.FindFrom(pattern, resultSource(results))
	out := make([]Result, 0, len(matches))
	for _, match := range matches {
		out = append(out, results[match.Index])
	}
	return out
}
