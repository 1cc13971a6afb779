package tts

import (
	"regexp"
	"strings"
	"unicode"
)

// Tool tags never reach the speaker. Streaming can split a tag across
// sentence boundaries, so dangling open and close fragments are stripped
// as well as complete spans.
var (
	toolTagRe       = regexp.MustCompile(`(?s)<command>.*?</command>`)
	danglingOpenRe  = regexp.MustCompile(`(?s)<command>.*$`)
	danglingCloseRe = regexp.MustCompile(`(?s)^.*</command>`)
	markupRe        = regexp.MustCompile("[*_`#]+")
)

// SanitizeForSpeech removes tool-tag fragments, markdown markers and emoji
// so only speakable text is synthesized.
func SanitizeForSpeech(text string) string {
	text = toolTagRe.ReplaceAllString(text, "")
	text = danglingOpenRe.ReplaceAllString(text, "")
	text = danglingCloseRe.ReplaceAllString(text, "")
	text = markupRe.ReplaceAllString(text, "")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isEmoji(r) {
			continue
		}
		b.WriteRune(r)
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// isEmoji reports whether the rune sits in one of the common emoji or
// pictograph blocks.
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // emoji, pictographs, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols and dingbats
		return true
	case r == 0xFE0F || r == 0x200D: // variation selector, ZWJ
		return true
	case unicode.Is(unicode.Sk, r) && r > 0x2000:
		return true
	}
	return false
}

// SplitSentences splits text into sentences for streaming synthesis. A
// sentence ends at '.', '!', '?' or a newline.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, c := range text {
		current.WriteRune(c)

		if c == '.' || c == '!' || c == '?' || c == '\n' {
			trimmed := strings.TrimSpace(current.String())
			if trimmed != "" {
				sentences = append(sentences, trimmed)
			}
			current.Reset()
		}
	}

	trimmed := strings.TrimSpace(current.String())
	if trimmed != "" {
		sentences = append(sentences, trimmed)
	}

	return sentences
}
