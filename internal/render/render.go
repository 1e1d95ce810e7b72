package render

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"github.com/rewind-cli/rewind/internal/index"
	"github.com/rewind-cli/rewind/internal/parse"
)

const (
	colorReset   = "\033[0m"
	colorUser    = "\033[1;34m" // bold blue
	colorAssist  = "\033[1;32m" // bold green
	colorThink   = "\033[2;35m" // dim magenta for thinking
	colorDim     = "\033[2m"
	colorHit     = "\033[43m"   // yellow background
	colorBoldRed = "\033[1;31m" // bold red for keyword highlights
)

type Options struct {
	HitIdx  int    // message index to center on, -1 for none
	Context int    // messages before/after the hit, negative = whole session
	Width   int    // wrap width (0 = no wrap)
	Query   string // search query for keyword highlighting
}

// fts5Operators are query grammar words that should not be highlighted.
var fts5Operators = map[string]bool{
	"and": true, "or": true, "not": true, "near": true,
}

// highlightKeywords wraps case-insensitive matches of query terms in bold
// red ANSI codes.
func highlightKeywords(text, query string) string {
	var terms []string
	for _, t := range strings.Fields(query) {
		t = strings.Trim(t, `"()*`)
		if t == "" || fts5Operators[strings.ToLower(t)] {
			continue
		}
		terms = append(terms, t)
	}
	for _, term := range terms {
		lower := strings.ToLower(term)
		i := 0
		for i < len(text) {
			idx := strings.Index(strings.ToLower(text[i:]), lower)
			if idx < 0 {
				break
			}
			pos := i + idx
			orig := text[pos : pos+len(term)]
			replacement := colorBoldRed + orig + colorReset
			text = text[:pos] + replacement + text[pos+len(term):]
			i = pos + len(replacement)
		}
	}
	return text
}

// indentLines prepends each line of text with the given prefix.
func indentLines(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// wrapLine breaks a single line into multiple lines that fit within maxWidth
// visible columns, skipping ANSI escape sequences when measuring width.
func wrapLine(line string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{line}
	}

	var result []string
	var cur strings.Builder
	visW := 0

	i := 0
	for i < len(line) {
		// ANSI escape sequence: ESC[ ... m
		if i+1 < len(line) && line[i] == '\033' && line[i+1] == '[' {
			j := i + 2
			for j < len(line) && line[j] != 'm' {
				j++
			}
			if j < len(line) {
				j++ // include 'm'
			}
			cur.WriteString(line[i:j])
			i = j
			continue
		}

		r, size := utf8.DecodeRuneInString(line[i:])
		rw := runewidth.RuneWidth(r)

		if visW+rw > maxWidth {
			result = append(result, cur.String())
			cur.Reset()
			visW = 0
		}

		cur.WriteRune(r)
		visW += rw
		i += size
	}

	if cur.Len() > 0 {
		result = append(result, cur.String())
	}

	if len(result) == 0 {
		return []string{""}
	}
	return result
}

func fmtTS(ts int64) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(ts, 0).Local().Format("2006-01-02 15:04")
}

// Conversation renders a session transcript and returns the content, the
// 0-based output line of the hit message's header (-1 if no hit), and any
// error.
func Conversation(st *index.Store, sessionID string, opts Options) (string, int, error) {
	if opts.Context == 0 {
		opts.Context = 10
	}

	session, err := st.SessionByID(sessionID)
	if err != nil {
		return "", -1, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return "", -1, fmt.Errorf("session not found: %s", sessionID)
	}

	msgs, hitPos, before, after, err := st.MessagesWindow(sessionID, opts.HitIdx, opts.Context)
	if err != nil {
		return "", -1, fmt.Errorf("load messages: %w", err)
	}

	if len(msgs) == 0 {
		return "(empty session)", -1, nil
	}

	var b strings.Builder
	hitLine := -1
	lineCount := 0
	separator := colorDim + "--------------------------------------------------" + colorReset

	writeLine := func(s string) {
		for _, wl := range wrapLine(s, opts.Width) {
			b.WriteString(wl)
			b.WriteString("\n")
			lineCount++
		}
	}

	writeLine(fmt.Sprintf("%s--- %s [%s] %s ---%s", colorDim, sessionID, session.Source, session.ProjectPath, colorReset))

	if before > 0 {
		writeLine(fmt.Sprintf("%s... (%d messages before) ...%s", colorDim, before, colorReset))
	}

	for i, m := range msgs {
		isHit := i == hitPos

		if i > 0 {
			writeLine(separator)
		}

		if isHit {
			hitLine = lineCount
		}

		var roleColor string
		var roleLabel string
		isThinking := m.Kind == parse.KindThinking
		switch m.Role {
		case parse.RoleUser:
			roleColor = colorUser
			roleLabel = "USER"
		case parse.RoleAssistant:
			if isThinking {
				roleColor = colorThink
				roleLabel = "THINK"
			} else {
				roleColor = colorAssist
				roleLabel = "ASST"
			}
		default:
			roleColor = colorDim
			roleLabel = strings.ToUpper(m.Role)
		}

		ts := fmtTS(m.TS)
		if isHit {
			writeLine(fmt.Sprintf("%s>> %s > %s <<%s", colorHit, roleLabel, ts, colorReset))
		} else {
			writeLine(fmt.Sprintf("%s%s >%s %s%s%s", roleColor, roleLabel, colorReset, colorDim, ts, colorReset))
		}

		text := m.Content
		if isThinking {
			text = colorDim + text + colorReset
		}
		text = highlightKeywords(text, opts.Query)
		text = indentLines(text, "  ")

		for _, tl := range strings.Split(text, "\n") {
			writeLine(tl)
		}
		writeLine("") // blank line after message
	}

	if after > 0 {
		writeLine(fmt.Sprintf("%s... (%d messages after) ...%s", colorDim, after, colorReset))
	}

	return b.String(), hitLine, nil
}
