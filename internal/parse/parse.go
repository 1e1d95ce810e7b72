package parse

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxLineSize = 10 * 1024 * 1024 // 10MB
const maxTextSize = 8 * 1024         // 8KB per message in the FTS index

// ErrEmpty reports a file in which no line produced a message.
var ErrEmpty = errors.New("no messages parsed")

// ParseError wraps a per-file parse failure.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// File parses a transcript into the canonical session shape. The source,
// fixed by which root the scanner found the file under, selects the line
// format. Pure function of the file contents; malformed lines are skipped
// and only a file with no usable line at all fails.
func File(path string, source Source, root string) (*Session, error) {
	switch source {
	case SourceClaude:
		return Claude(path, root)
	case SourceCodex:
		return Codex(path, root)
	default:
		return nil, fmt.Errorf("unknown source: %s", source)
	}
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	// ISO8601 without timezone
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

func truncateText(s string) string {
	if len(s) > maxTextSize {
		return s[:maxTextSize]
	}
	return s
}

// finish fills the derived session fields once all messages are collected.
func (s *Session) finish() error {
	if len(s.Messages) == 0 {
		return &ParseError{Path: s.FilePath, Err: ErrEmpty}
	}
	for i := range s.Messages {
		s.Messages[i].Index = i
		ts := s.Messages[i].Timestamp
		if ts.IsZero() {
			continue
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = ts
		}
		s.UpdatedAt = ts
	}
	if s.Summary == "" {
		s.Summary = summarize(s.Messages[0].Content)
	}
	return nil
}

// summarize derives a one-line session title from message text.
func summarize(text string) string {
	runes := []rune(text)
	if len(runes) > 200 {
		runes = runes[:200]
	}
	return strings.ReplaceAll(string(runes), "\n", " ")
}
