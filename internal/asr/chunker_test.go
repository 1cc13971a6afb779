package asr

import (
	"testing"
)

const testRate = 16000

// toneFrames returns n seconds of loud audio split into 32ms frames.
func toneFrames(seconds float64) [][]float32 {
	total := int(seconds * testRate)
	var frames [][]float32
	for total > 0 {
		n := 512
		if n > total {
			n = total
		}
		frame := make([]float32, n)
		for i := range frame {
			if i%2 == 0 {
				frame[i] = 0.3
			} else {
				frame[i] = -0.3
			}
		}
		frames = append(frames, frame)
		total -= n
	}
	return frames
}

// silentFrames returns n seconds of silence split into 32ms frames.
func silentFrames(seconds float64) [][]float32 {
	total := int(seconds * testRate)
	var frames [][]float32
	for total > 0 {
		n := 512
		if n > total {
			n = total
		}
		frames = append(frames, make([]float32, n))
		total -= n
	}
	return frames
}

func feedAll(c *Chunker, frames [][]float32) {
	for _, f := range frames {
		c.Feed(f)
	}
}

func TestChunkerCommitsOnPause(t *testing.T) {
	var calls int
	c := NewChunker(DefaultChunkerConfig(testRate), func(samples []float32) string {
		calls++
		return "chunk"
	})

	// Enough speech followed by a pause long enough to close the chunk
	feedAll(c, toneFrames(1.0))
	feedAll(c, silentFrames(0.8))

	if calls != 1 {
		t.Fatalf("expected 1 transcription after pause, got %d", calls)
	}

	text, err := c.Finalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "chunk" {
		t.Errorf("expected 'chunk', got %q", text)
	}
}

func TestChunkerNoCommitWithoutMinSpeech(t *testing.T) {
	var calls int
	c := NewChunker(DefaultChunkerConfig(testRate), func(samples []float32) string {
		calls++
		return "x"
	})

	// A blip shorter than MinDuration followed by a long pause
	feedAll(c, toneFrames(0.2))
	feedAll(c, silentFrames(1.5))

	if calls != 0 {
		t.Errorf("expected no mid-stream transcription, got %d", calls)
	}
}

func TestChunkerForcedBoundary(t *testing.T) {
	var calls int
	cfg := DefaultChunkerConfig(testRate)
	cfg.MaxDuration = 2.0
	c := NewChunker(cfg, func(samples []float32) string {
		calls++
		return "long"
	})

	// Continuous speech past the forced boundary
	feedAll(c, toneFrames(2.5))

	if calls != 1 {
		t.Errorf("expected forced boundary transcription, got %d calls", calls)
	}
}

func TestChunkerFinalizeJoinsChunks(t *testing.T) {
	var calls int
	results := []string{"first", "second"}
	cfg := DefaultChunkerConfig(testRate)
	c := NewChunker(cfg, func(samples []float32) string {
		r := results[calls%len(results)]
		calls++
		return r
	})

	feedAll(c, toneFrames(1.0))
	feedAll(c, silentFrames(0.8)) // commits "first"
	feedAll(c, toneFrames(1.0))   // pending speech

	text, err := c.Finalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "first second" {
		t.Errorf("expected 'first second', got %q", text)
	}
	if calls != 2 {
		t.Errorf("expected 2 transcriptions, got %d", calls)
	}
}

func TestChunkerFinalizeSilenceOnly(t *testing.T) {
	var calls int
	c := NewChunker(DefaultChunkerConfig(testRate), func(samples []float32) string {
		calls++
		return "ghost"
	})

	feedAll(c, silentFrames(1.0))

	text, err := c.Finalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "" {
		t.Errorf("expected empty transcript for silence, got %q", text)
	}
	if calls != 0 {
		t.Errorf("expected no transcriptions for silence, got %d", calls)
	}
}

func TestChunkerReset(t *testing.T) {
	var calls int
	c := NewChunker(DefaultChunkerConfig(testRate), func(samples []float32) string {
		calls++
		return "x"
	})

	feedAll(c, toneFrames(1.0))
	c.Reset()

	text, _ := c.Finalize()
	if text != "" || calls != 0 {
		t.Errorf("expected clean state after reset, got %q with %d calls", text, calls)
	}
}

func TestChunkerKind(t *testing.T) {
	c := NewChunker(DefaultChunkerConfig(testRate), func([]float32) string { return "" })
	if c.Kind() != KindChunking {
		t.Error("expected KindChunking")
	}
	if c.Partial() != "" {
		t.Error("chunking engine must not report partials")
	}
}
