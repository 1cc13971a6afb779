// Package conversation maintains the ordered message history for a session
// and persists snapshots to disk.
package conversation

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// Message is one role-tagged entry in the conversation.
type Message struct {
	Role    string `json:"role"` // system, user or assistant
	Content string `json:"content"`
}

// Log is an append-only message list with a rollback operation used when a
// request is cancelled mid-flight. The state machine is the sole writer, so
// no locking is needed on the mutation path.
type Log struct {
	messages     []Message
	systemPrompt string
}

// NewLog creates a log seeded with the system prompt. The system message is
// always the first entry.
func NewLog(systemPrompt string) *Log {
	l := &Log{systemPrompt: systemPrompt}
	l.messages = []Message{{Role: "system", Content: systemPrompt}}
	return l
}

// Append adds a message to the end of the log.
func (l *Log) Append(role, content string) {
	l.messages = append(l.messages, Message{Role: role, Content: content})
}

// RemoveLast removes the most recent message. The seeded system message is
// never removed.
func (l *Log) RemoveLast() {
	if len(l.messages) > 1 {
		l.messages = l.messages[:len(l.messages)-1]
	}
}

// Len returns the number of messages including the system prompt.
func (l *Log) Len() int {
	return len(l.messages)
}

// Last returns the most recent message.
func (l *Log) Last() Message {
	return l.messages[len(l.messages)-1]
}

// Snapshot returns a copy of the log with trailing whitespace trimmed from
// each message, suitable for the chat API and for persistence.
func (l *Log) Snapshot() []Message {
	out := make([]Message, len(l.messages))
	for i, m := range l.messages {
		out[i] = Message{Role: m.Role, Content: strings.TrimRight(m.Content, " \t\r\n")}
	}
	return out
}

// ReplaceLastUser overwrites the content of the most recent user message.
// Used by the vision path to substitute the canonical prompt.
func (l *Log) ReplaceLastUser(content string) {
	for i := len(l.messages) - 1; i > 0; i-- {
		if l.messages[i].Role == "user" {
			l.messages[i].Content = content
			return
		}
	}
}

// DropLastAssistant removes the most recent assistant message if it is the
// final entry.
func (l *Log) DropLastAssistant() {
	if len(l.messages) > 1 && l.messages[len(l.messages)-1].Role == "assistant" {
		l.messages = l.messages[:len(l.messages)-1]
	}
}

// Reset saves a snapshot to dir and reinitializes the log with the system
// prompt.
func (l *Log) Reset(dir string) {
	if err := l.Save(dir); err != nil {
		log.Printf("⚠️  Failed to save conversation before reset: %v", err)
	}
	l.messages = []Message{{Role: "system", Content: l.systemPrompt}}
}

// Save writes a pretty-printed snapshot named
// chat_history_YYYYMMDD_HHMMSS.json into dir. Logs with a single system
// message are skipped.
func (l *Log) Save(dir string) error {
	if len(l.messages) <= 1 {
		return nil
	}

	data, err := json.MarshalIndent(l.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	path := fmt.Sprintf("%s/chat_history_%s.json", dir, time.Now().Format("20060102_150405"))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}
	log.Printf("💾 Conversation saved to %s", path)
	return nil
}
