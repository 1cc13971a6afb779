package tts

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/malcolmhoward/dawn-sub004/internal/audio"
)

// fakeSynth records synthesized text and returns a tiny buffer.
type fakeSynth struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSynth) Synthesize(text string) (audio.Buffer, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return audio.Buffer{Samples: make([]float32, 160), SampleRate: 16000}, nil
}

func (f *fakeSynth) synthesized() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// fakePlayer records played buffers with a configurable per-play delay.
type fakePlayer struct {
	mu     sync.Mutex
	played int
	delay  time.Duration
	active bool
}

func (f *fakePlayer) Play(buffer audio.Buffer) error {
	f.mu.Lock()
	f.active = true
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.played++
	f.active = false
	f.mu.Unlock()
	return nil
}

func (f *fakePlayer) Interrupt() {
	f.mu.Lock()
	f.active = false
	f.mu.Unlock()
}

func (f *fakePlayer) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakePlayer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.played
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestGatewaySpeaksSentences(t *testing.T) {
	synth := &fakeSynth{}
	player := &fakePlayer{}
	g := NewGateway(synth, player)
	defer g.Close()

	g.Speak("Hello there. How are you?")

	waitFor(t, "two sentences played", func() bool { return player.count() == 2 })
	waitFor(t, "idle state", func() bool { return g.CurrentState() == StateIdle })

	texts := synth.synthesized()
	if len(texts) != 2 || texts[0] != "Hello there." || texts[1] != "How are you?" {
		t.Errorf("unexpected synthesized texts: %v", texts)
	}
}

func TestGatewayPauseResume(t *testing.T) {
	synth := &fakeSynth{}
	player := &fakePlayer{delay: 30 * time.Millisecond}
	g := NewGateway(synth, player)
	defer g.Close()

	g.Speak("One. Two. Three. Four. Five.")
	waitFor(t, "playback started", func() bool { return player.count() >= 1 })

	g.Pause()
	if !g.Paused() {
		t.Fatal("expected paused state")
	}

	// No further sentences start while paused (the in-flight one may finish)
	countAtPause := player.count()
	time.Sleep(150 * time.Millisecond)
	if c := player.count(); c > countAtPause+1 {
		t.Errorf("sentences kept playing while paused: %d -> %d", countAtPause, c)
	}

	g.Resume()
	waitFor(t, "all sentences played", func() bool { return player.count() == 5 })
}

func TestGatewayDiscardDropsQueue(t *testing.T) {
	synth := &fakeSynth{}
	player := &fakePlayer{delay: 30 * time.Millisecond}
	g := NewGateway(synth, player)
	defer g.Close()

	g.Speak("One. Two. Three. Four. Five. Six. Seven. Eight.")
	waitFor(t, "playback started", func() bool { return player.count() >= 1 })

	g.Discard()
	waitFor(t, "idle after discard", func() bool { return g.CurrentState() == StateIdle })

	// Let any in-flight sentence drain before sampling the count
	time.Sleep(100 * time.Millisecond)
	settled := player.count()
	time.Sleep(100 * time.Millisecond)
	if player.count() != settled {
		t.Error("audio played after discard settled")
	}
	if settled >= 8 {
		t.Errorf("discard dropped nothing: %d sentences played", settled)
	}
}

func TestGatewayDiscardIsTerminalForUtterance(t *testing.T) {
	synth := &fakeSynth{}
	player := &fakePlayer{delay: 20 * time.Millisecond}
	g := NewGateway(synth, player)
	defer g.Close()

	g.Speak("Old one. Old two. Old three. Old four.")
	waitFor(t, "playback started", func() bool { return player.count() >= 1 })
	g.Discard()
	waitFor(t, "idle after discard", func() bool { return g.CurrentState() == StateIdle })

	// A fresh utterance plays normally; nothing from the old one returns
	g.Speak("New one.")
	waitFor(t, "new utterance played", func() bool {
		for _, s := range synth.synthesized() {
			if s == "New one." {
				return true
			}
		}
		return false
	})
	waitFor(t, "idle again", func() bool { return g.CurrentState() == StateIdle })

	for _, s := range synth.synthesized()[len(synth.synthesized())-1:] {
		if strings.HasPrefix(s, "Old") {
			t.Errorf("old utterance resumed after discard: %q", s)
		}
	}
}

func TestGatewayPauseWhenIdleIsNoOp(t *testing.T) {
	g := NewGateway(&fakeSynth{}, &fakePlayer{})
	defer g.Close()

	g.Pause()
	if g.CurrentState() != StateIdle {
		t.Errorf("pause on idle moved state to %v", g.CurrentState())
	}
	g.Resume()
	if g.CurrentState() != StateIdle {
		t.Errorf("resume on idle moved state to %v", g.CurrentState())
	}
}

func TestGatewayResumeWithEmptyQueueGoesIdle(t *testing.T) {
	synth := &fakeSynth{}
	player := &fakePlayer{}
	g := NewGateway(synth, player)
	defer g.Close()

	g.Speak("Only sentence.")
	waitFor(t, "sentence played", func() bool { return player.count() == 1 })

	// Pause after everything drained: Resume must land in idle, not play
	g.mu.Lock()
	g.state = StatePause
	g.mu.Unlock()

	g.Resume()
	if g.CurrentState() != StateIdle {
		t.Errorf("expected idle after resume with empty queue, got %v", g.CurrentState())
	}
}

func TestGatewaySkipsUnspeakableSentences(t *testing.T) {
	synth := &fakeSynth{}
	player := &fakePlayer{}
	g := NewGateway(synth, player)
	defer g.Close()

	g.OnSentence(`<command>{"device":"x","action":"y"}</command>`)
	g.OnSentence("Real sentence.")

	waitFor(t, "real sentence played", func() bool { return player.count() == 1 })

	texts := synth.synthesized()
	if len(texts) != 1 || texts[0] != "Real sentence." {
		t.Errorf("unexpected synthesized texts: %v", texts)
	}
}

func TestSanitizeForSpeech(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Plain text.", "Plain text."},
		{`Done.<command>{"device":"x"}</command>`, "Done."},
		{`Sure thing <command>{"device":"x",`, "Sure thing"},
		{`"value":"y"}</command> and done.`, "and done."},
		{"Nice day \U0001F600 today", "Nice day today"},
		{"Sun ☀️ is out", "Sun is out"},
		{"**bold** and `code`", "bold and code"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeForSpeech(tt.in); got != tt.want {
			t.Errorf("SanitizeForSpeech(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{"Hello there.", "Done \U0001F44D.", `x<command>{"a":1}</command>y`}
	for _, in := range inputs {
		once := SanitizeForSpeech(in)
		if twice := SanitizeForSpeech(once); twice != once {
			t.Errorf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"One. Two! Three?", []string{"One.", "Two!", "Three?"}},
		{"Line one\nline two", []string{"Line one", "line two"}},
		{"No terminator", []string{"No terminator"}},
		{"", nil},
		{"...", []string{".", ".", "."}},
	}
	for _, tt := range tests {
		got := SplitSentences(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("SplitSentences(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
