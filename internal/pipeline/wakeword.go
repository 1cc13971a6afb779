// Package pipeline drives the interactive voice session: the five-state
// machine wiring capture, VAD, ASR, the LLM worker and TTS together.
package pipeline

import (
	"strings"
	"unicode"
)

// Normalize lowercases text and drops everything except letters, digits
// and single spaces. Idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// WakeTable holds the wake words, goodbye and cancel phrases recognized on
// finalized transcripts. Wake words are the configured prefixes crossed
// with the AI name; all matching is case-insensitive and
// punctuation-stripped.
type WakeTable struct {
	words    []string
	goodbyes []string
	cancels  []string
}

// DefaultWakePrefixes are prepended to the AI name. An empty prefix makes
// the bare name a wake word.
var DefaultWakePrefixes = []string{"", "hey", "hi", "ok", "okay"}

// DefaultGoodbyePhrases end the session.
var DefaultGoodbyePhrases = []string{"goodbye", "good bye", "bye bye", "shut down"}

// DefaultCancelPhrases stop a paused response without a new command.
var DefaultCancelPhrases = []string{"stop", "cancel", "never mind", "nevermind", "be quiet", "shut up"}

// NewWakeTable builds the table for an AI name.
func NewWakeTable(prefixes []string, aiName string) *WakeTable {
	if len(prefixes) == 0 {
		prefixes = DefaultWakePrefixes
	}
	name := Normalize(aiName)

	t := &WakeTable{
		goodbyes: DefaultGoodbyePhrases,
		cancels:  DefaultCancelPhrases,
	}
	seen := make(map[string]bool)
	for _, p := range prefixes {
		word := strings.TrimSpace(Normalize(p) + " " + name)
		if word == "" || seen[word] {
			continue
		}
		seen[word] = true
		t.words = append(t.words, word)
	}
	return t
}

// IsGoodbye reports whether the transcript is a farewell phrase or ends
// with one as a separate word ("friday goodbye").
func (t *WakeTable) IsGoodbye(transcript string) bool {
	norm := Normalize(transcript)
	if norm == "" {
		return false
	}
	for _, phrase := range t.goodbyes {
		if norm == phrase || strings.HasSuffix(norm, " "+phrase) {
			return true
		}
	}
	return false
}

// IsCancel reports whether the transcript asks to stop the current
// response.
func (t *WakeTable) IsCancel(transcript string) bool {
	norm := Normalize(transcript)
	if norm == "" {
		return false
	}
	for _, phrase := range t.cancels {
		if norm == phrase || strings.HasSuffix(norm, " "+phrase) {
			return true
		}
	}
	return false
}

// FindWake scans the transcript for any wake word and returns the command
// tail from the original (un-normalized) text, leading punctuation
// trimmed. The longest wake word wins so "hey friday" is not shadowed by
// "friday".
func (t *WakeTable) FindWake(transcript string) (tail string, found bool) {
	norm, indexMap := normalizeWithMap(transcript)
	if norm == "" {
		return "", false
	}

	bestEnd := -1
	bestLen := 0
	for _, word := range t.words {
		idx := indexOfWord(norm, word)
		if idx < 0 {
			continue
		}
		if len(word) > bestLen {
			bestLen = len(word)
			bestEnd = idx + len(word)
		}
	}
	if bestEnd < 0 {
		return "", false
	}

	// Map the position after the wake word back into the original text
	origIdx := len(transcript)
	if bestEnd < len(indexMap) {
		origIdx = indexMap[bestEnd]
	}
	tail = strings.TrimLeft(transcript[origIdx:], " ,.!?;:-'\"")
	return strings.TrimSpace(tail), true
}

// normalizeWithMap normalizes like Normalize but also returns, for each
// byte of the normalized string, the byte offset of its source character
// in the original text.
func normalizeWithMap(text string) (string, []int) {
	var b strings.Builder
	var indexMap []int
	lastWasSpace := true

	for i, r := range text {
		lower := unicode.ToLower(r)
		switch {
		case unicode.IsLetter(lower) || unicode.IsDigit(lower):
			for range string(lower) {
				indexMap = append(indexMap, i)
			}
			b.WriteRune(lower)
			lastWasSpace = false
		case unicode.IsSpace(r):
			if !lastWasSpace {
				indexMap = append(indexMap, i)
				b.WriteByte(' ')
				lastWasSpace = true
			}
		}
	}

	norm := b.String()
	norm = strings.TrimRight(norm, " ")
	return norm, indexMap[:len(norm)]
}

// indexOfWord finds word in norm at word boundaries.
func indexOfWord(norm, word string) int {
	start := 0
	for {
		idx := strings.Index(norm[start:], word)
		if idx < 0 {
			return -1
		}
		idx += start

		beforeOK := idx == 0 || norm[idx-1] == ' '
		after := idx + len(word)
		afterOK := after == len(norm) || norm[after] == ' '
		if beforeOK && afterOK {
			return idx
		}
		start = idx + 1
	}
}
