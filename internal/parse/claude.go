package parse

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

type claudeRecord struct {
	Type      string          `json:"type"`
	IsMeta    bool            `json:"isMeta"`
	Timestamp string          `json:"timestamp"`
	Cwd       string          `json:"cwd"`
	Message   json.RawMessage `json:"message"`
	Summary   string          `json:"summary"` // for type="summary" records
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type claudeContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Thinking string `json:"thinking"`
}

// Claude parses a Claude Code transcript. One JSON object per line; lines
// that fail to decode are skipped, unknown fields are ignored.
func Claude(filePath, root string) (*Session, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:           sessionID(SourceClaude, filePath, root),
		Source:       SourceClaude,
		FilePath:     filePath,
		LastModified: info.ModTime(),
		Size:         info.Size(),
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 || !utf8.Valid(line) {
			continue
		}

		var rec claudeRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}

		if rec.Type == "summary" && rec.Summary != "" {
			session.Summary = rec.Summary
			continue
		}

		// capture cwd from first record that has it
		if rec.Cwd != "" && session.ProjectPath == "" {
			session.ProjectPath = rec.Cwd
		}

		if rec.IsMeta {
			continue
		}

		role := claudeRole(rec.Type)
		if role == "" {
			continue
		}

		var msg claudeMessage
		if err := json.Unmarshal(rec.Message, &msg); err != nil {
			continue
		}

		content := extractClaudeContent(msg.Content)
		if content.Text == "" && content.Thinking == "" {
			continue
		}

		ts := parseTimestamp(rec.Timestamp)

		// reasoning precedes the visible reply
		if content.Thinking != "" {
			session.Messages = append(session.Messages, Message{
				Timestamp:  ts,
				Role:       role,
				Kind:       KindThinking,
				Content:    truncateText(content.Thinking),
				LineNumber: lineNum,
			})
		}
		if content.Text != "" {
			session.Messages = append(session.Messages, Message{
				Timestamp:  ts,
				Role:       role,
				Kind:       KindText,
				Content:    truncateText(content.Text),
				LineNumber: lineNum,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Path: filePath, Err: err}
	}

	if err := session.finish(); err != nil {
		return nil, err
	}
	return session, nil
}

func claudeRole(recordType string) string {
	switch recordType {
	case "user":
		return RoleUser
	case "assistant":
		return RoleAssistant
	case "system":
		return RoleSystem
	default:
		return ""
	}
}

type extractedContent struct {
	Text     string
	Thinking string
}

func extractClaudeContent(raw json.RawMessage) extractedContent {
	// try plain string first
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return extractedContent{Text: strings.TrimSpace(s)}
	}

	// then an array of content blocks
	var blocks []claudeContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var textParts []string
		var thinkParts []string
		for _, b := range blocks {
			switch b.Type {
			case "thinking":
				// reasoning text has moved between fields across versions
				if b.Thinking != "" {
					thinkParts = append(thinkParts, b.Thinking)
				} else if b.Text != "" {
					thinkParts = append(thinkParts, b.Text)
				}
			case "text":
				if b.Text != "" {
					textParts = append(textParts, b.Text)
				}
			}
		}
		return extractedContent{
			Text:     strings.TrimSpace(strings.Join(textParts, "\n")),
			Thinking: strings.TrimSpace(strings.Join(thinkParts, "\n")),
		}
	}

	return extractedContent{}
}

// sessionID derives the stable session identifier from the file path.
func sessionID(source Source, filePath, root string) string {
	rel, err := filepath.Rel(root, filePath)
	if err != nil {
		rel = filePath
	}
	return string(source) + ":" + strings.TrimSuffix(rel, ".jsonl")
}
