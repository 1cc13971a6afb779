package conversation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogStartsWithSystemMessage(t *testing.T) {
	l := NewLog("be helpful")
	if l.Len() != 1 {
		t.Fatalf("expected 1 message, got %d", l.Len())
	}
	if first := l.Snapshot()[0]; first.Role != "system" || first.Content != "be helpful" {
		t.Errorf("unexpected first message: %+v", first)
	}
}

func TestLogAppendRollbackRoundTrip(t *testing.T) {
	l := NewLog("sys")
	l.Append("user", "hello")
	l.Append("assistant", "hi")

	before := l.Len()
	l.Append("user", "cancelled request")
	l.RemoveLast()

	if l.Len() != before {
		t.Errorf("append-then-rollback changed length: %d -> %d", before, l.Len())
	}
	if l.Last().Role != "assistant" || l.Last().Content != "hi" {
		t.Errorf("rollback corrupted tail: %+v", l.Last())
	}
}

func TestLogRemoveLastKeepsSystem(t *testing.T) {
	l := NewLog("sys")
	l.RemoveLast()
	l.RemoveLast()
	if l.Len() != 1 {
		t.Errorf("system message removed, %d messages left", l.Len())
	}
}

func TestLogSnapshotTrimsTrailingWhitespace(t *testing.T) {
	l := NewLog("sys")
	l.Append("assistant", "answer text  \n\t")

	snap := l.Snapshot()
	if snap[1].Content != "answer text" {
		t.Errorf("expected trimmed content, got %q", snap[1].Content)
	}
	// The log itself is unmodified
	if l.Last().Content != "answer text  \n\t" {
		t.Error("snapshot mutated the log")
	}
}

func TestLogReplaceLastUser(t *testing.T) {
	l := NewLog("sys")
	l.Append("user", "what is this")
	l.Append("assistant", "a thing")
	l.ReplaceLastUser("describe the image")

	snap := l.Snapshot()
	if snap[1].Content != "describe the image" {
		t.Errorf("expected replaced user content, got %q", snap[1].Content)
	}
	if snap[2].Content != "a thing" {
		t.Error("assistant message modified")
	}
}

func TestLogDropLastAssistant(t *testing.T) {
	l := NewLog("sys")
	l.Append("user", "q")
	l.Append("assistant", "a")
	l.DropLastAssistant()
	if l.Last().Role != "user" {
		t.Errorf("expected user tail, got %+v", l.Last())
	}

	// No-op when the tail is not an assistant message
	l.DropLastAssistant()
	if l.Last().Role != "user" {
		t.Error("dropped a non-assistant tail")
	}
}

func TestLogResetSavesAndClears(t *testing.T) {
	dir := t.TempDir()
	l := NewLog("sys")
	l.Append("user", "q")
	l.Append("assistant", "a")

	l.Reset(dir)

	if l.Len() != 1 {
		t.Errorf("expected only system message after reset, got %d", l.Len())
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "chat_history_*.json"))
	if len(matches) != 1 {
		t.Fatalf("expected 1 saved snapshot, got %d", len(matches))
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if len(msgs) != 3 {
		t.Errorf("expected 3 persisted messages, got %d", len(msgs))
	}
	if !strings.HasPrefix(string(data), "[\n") {
		t.Error("expected pretty-printed snapshot")
	}
}

func TestLogSaveSkipsEmpty(t *testing.T) {
	dir := t.TempDir()
	l := NewLog("sys")
	if err := l.Save(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "chat_history_*.json"))
	if len(matches) != 0 {
		t.Errorf("expected no snapshot for empty log, got %d", len(matches))
	}
}
