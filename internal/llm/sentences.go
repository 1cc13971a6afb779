package llm

import "strings"

// SentenceAssembler accumulates streamed token chunks and yields complete
// sentences. A sentence is a run of text terminated by '.', '!', '?' or a
// newline.
type SentenceAssembler struct {
	current strings.Builder
}

// Push appends a chunk and returns any sentences completed by it.
func (a *SentenceAssembler) Push(chunk string) []string {
	var sentences []string
	for _, c := range chunk {
		a.current.WriteRune(c)
		if c == '.' || c == '!' || c == '?' || c == '\n' {
			if s := strings.TrimSpace(a.current.String()); s != "" {
				sentences = append(sentences, s)
			}
			a.current.Reset()
		}
	}
	return sentences
}

// Flush returns any unterminated remainder and resets the assembler.
func (a *SentenceAssembler) Flush() string {
	s := strings.TrimSpace(a.current.String())
	a.current.Reset()
	return s
}
