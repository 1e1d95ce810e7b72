package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/rewind-cli/rewind/internal/search"
)

// linesPerItem is the number of terminal lines each result occupies.
const linesPerItem = 2

// listFetchLimit caps how many recent sessions the browser loads; the fuzzy
// filter narrows within this set.
const listFetchLimit = 500

// renderList renders the left panel: search results list with scrolling.
func (m model) renderList(width, height int) string {
	if len(m.results) == 0 {
		empty := lipgloss.NewStyle().
			Foreground(colorDim).
			Width(width).
			Height(height).
			Align(lipgloss.Center, lipgloss.Center).
			Render("No results")
		return empty
	}

	var lines []string
	for i, r := range m.results {
		if i < m.listOffset {
			continue
		}
		if len(lines)+linesPerItem > height {
			break
		}
		rows := formatResultLine(r, width, i == m.cursor)
		lines = append(lines, rows...)
	}

	// Pad remaining lines
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}

	return strings.Join(lines, "\n")
}

// formatResultLine formats a single search result as two lines:
//
//	line 1: [>] source  date  summary
//	line 2:    snippet with highlighted matches (dimmed)
func formatResultLine(r search.Result, width int, selected bool) []string {
	var src string
	switch r.Source {
	case "claude":
		src = styleSourceClaude.Render("claude")
	case "codex":
		src = styleSourceCodex.Render("codex")
	default:
		src = r.Source
	}

	date := r.LastModified.Format("01-02")

	// Truncate summary to fit width: leave room for prefix "  src MM-DD "
	summary := strings.ReplaceAll(r.Summary, "\n", " ")
	summaryMax := width - 2 - 7 - 6 - 2 // prefix + source + date + padding
	if summaryMax < 0 {
		summaryMax = 0
	}
	if runewidth.StringWidth(summary) > summaryMax {
		summary = runewidth.Truncate(summary, summaryMax, "")
	}

	line1 := fmt.Sprintf("%s %s %s", src, date, summary)
	if selected {
		line1 = styleListSelected.Render("> ") + line1
	} else {
		line1 = "  " + line1
	}

	line2 := "    " + snippetLine(r, width-4)

	return []string{line1, line2}
}

// snippetLine renders the snippet with its highlight spans styled, truncated
// to max visible columns. Recent-session entries have no snippet and show the
// project path instead.
func snippetLine(r search.Result, max int) string {
	if max < 0 {
		max = 0
	}

	text := r.Snippet
	if text == "" {
		text = r.ProjectPath
	}
	text = strings.NewReplacer("\n", " ", "\t", " ").Replace(text)

	runes := []rune(text)

	// walk runes, switching style at span boundaries, until the width is
	// spent; styling after truncation would corrupt the escape sequences
	var b strings.Builder
	spans := r.Highlights
	cols := 0
	var plain []rune
	inHit := func(i int) bool {
		for _, s := range spans {
			if i >= s.Start && i < s.End {
				return true
			}
		}
		return false
	}
	flush := func(hit bool) {
		if len(plain) == 0 {
			return
		}
		if hit {
			b.WriteString(styleSnippetHit.Render(string(plain)))
		} else {
			b.WriteString(styleSnippetDim.Render(string(plain)))
		}
		plain = plain[:0]
	}

	hit := false
	for i, rn := range runes {
		w := runewidth.RuneWidth(rn)
		if cols+w > max {
			break
		}
		if h := inHit(i); h != hit {
			flush(hit)
			hit = h
		}
		plain = append(plain, rn)
		cols += w
	}
	flush(hit)
	return b.String()
}

// adjustListScroll keeps the cursor visible within the list viewport.
func (m *model) adjustListScroll(listHeight int) {
	visibleItems := listHeight / linesPerItem
	if visibleItems < 1 {
		visibleItems = 1
	}
	if m.cursor < m.listOffset {
		m.listOffset = m.cursor
	}
	if m.cursor >= m.listOffset+visibleItems {
		m.listOffset = m.cursor - visibleItems + 1
	}
}

