package parse

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"unicode/utf8"
)

// Top-level record in Codex JSONL
type codexRecord struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// session_meta payload
type codexSessionMeta struct {
	Cwd string `json:"cwd"`
	Git *struct {
		Branch        string `json:"branch"`
		RepositoryURL string `json:"repository_url"`
	} `json:"git"`
}

// event_msg payload (flat, not nested)
type codexEventPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"` // for user_message
	Text    string `json:"text"`    // for agent_reasoning
}

// response_item payload
type codexResponsePayload struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Codex parses a Codex CLI rollout transcript.
func Codex(filePath, root string) (*Session, error) {
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
		ID:           sessionID(SourceCodex, filePath, root),
		Source:       SourceCodex,
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

		var rec codexRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}

		ts := parseTimestamp(rec.Timestamp)

		switch rec.Type {
		case "session_meta":
			var meta codexSessionMeta
			if err := json.Unmarshal(rec.Payload, &meta); err == nil {
				session.ProjectPath = meta.Cwd
			}

		case "event_msg":
			var evt codexEventPayload
			if err := json.Unmarshal(rec.Payload, &evt); err != nil {
				continue
			}

			var role, kind, text string
			switch evt.Type {
			case "user_message":
				role = RoleUser
				kind = KindText
				text = strings.TrimSpace(evt.Message)
			case "agent_reasoning":
				role = RoleAssistant
				kind = KindThinking
				text = strings.TrimSpace(evt.Text)
			default:
				continue
			}
			if text == "" {
				continue
			}

			session.Messages = append(session.Messages, Message{
				Timestamp:  ts,
				Role:       role,
				Kind:       kind,
				Content:    truncateText(text),
				LineNumber: lineNum,
			})

		case "response_item":
			var item codexResponsePayload
			if err := json.Unmarshal(rec.Payload, &item); err != nil {
				continue
			}

			// only actual message items (user input or assistant output)
			if item.Type != "message" {
				continue
			}

			role := codexRole(item.Role)

			var parts []string
			for _, c := range item.Content {
				if (c.Type == "input_text" || c.Type == "output_text" || c.Type == "text") && c.Text != "" {
					parts = append(parts, c.Text)
				}
			}
			text := strings.TrimSpace(strings.Join(parts, "\n"))
			if text == "" {
				continue
			}

			session.Messages = append(session.Messages, Message{
				Timestamp:  ts,
				Role:       role,
				Kind:       KindText,
				Content:    truncateText(text),
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

func codexRole(role string) string {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return role
	case "":
		return RoleAssistant
	default:
		return role
	}
}
