package vad

import "time"

// GateConfig tunes the speech/silence decision around TTS playback.
type GateConfig struct {
	// SpeechThreshold is the probability above which a frame counts as
	// speech while the assistant is quiet.
	SpeechThreshold float32
	// SpeechThresholdTTS replaces SpeechThreshold while TTS is playing or
	// within Cooldown of playback ending. Higher, to reject residual echo.
	SpeechThresholdTTS float32
	// DebounceFrames is how many consecutive above-threshold frames are
	// required during TTS before speech is declared.
	DebounceFrames int
	// Cooldown extends the raised threshold after playback ends.
	Cooldown time.Duration
	// StartupCooldown suppresses all detections right after playback
	// starts, while any echo canceller converges.
	StartupCooldown time.Duration
	// BargeIn enables detection during playback at all. Disabled, the gate
	// reports silence whenever TTS is active.
	BargeIn bool
}

// DefaultGateConfig returns the tuning used by the standard pipeline.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		SpeechThreshold:    0.5,
		SpeechThresholdTTS: 0.85,
		DebounceFrames:     3,
		Cooldown:           1500 * time.Millisecond,
		StartupCooldown:    400 * time.Millisecond,
		BargeIn:            true,
	}
}

// Gate turns per-frame probabilities into confirmed speech decisions,
// applying raised thresholds, debounce and cooldowns around TTS playback.
// Owned by the state machine; not safe for concurrent use.
type Gate struct {
	detector Detector
	cfg      GateConfig

	consecutive  int
	ttsWasActive bool
	playStarted  time.Time
	playEnded    time.Time
	lastProb     float32

	now func() time.Time // injectable for tests
}

// NewGate wraps a detector with the gating rules.
func NewGate(detector Detector, cfg GateConfig) *Gate {
	if cfg.DebounceFrames <= 0 {
		cfg.DebounceFrames = 3
	}
	return &Gate{
		detector: detector,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Process scores one frame and returns true when speech is confirmed.
// ttsActive reports whether the assistant is currently playing audio.
func (g *Gate) Process(frame []float32, ttsActive bool) bool {
	now := g.now()

	// Track playback edges for the cooldown windows
	if ttsActive && !g.ttsWasActive {
		g.playStarted = now
	} else if !ttsActive && g.ttsWasActive {
		g.playEnded = now
	}
	g.ttsWasActive = ttsActive

	prob := g.detector.Process(frame)
	g.lastProb = prob
	if prob < 0 {
		return false
	}

	if ttsActive {
		if !g.cfg.BargeIn {
			g.consecutive = 0
			return false
		}
		// Let the echo canceller converge before trusting anything
		if now.Sub(g.playStarted) < g.cfg.StartupCooldown {
			g.consecutive = 0
			return false
		}
		if prob < g.cfg.SpeechThresholdTTS {
			g.consecutive = 0
			return false
		}
		g.consecutive++
		return g.consecutive >= g.cfg.DebounceFrames
	}

	threshold := g.cfg.SpeechThreshold
	if !g.playEnded.IsZero() && now.Sub(g.playEnded) < g.cfg.Cooldown {
		threshold = g.cfg.SpeechThresholdTTS
	}

	if prob < threshold {
		g.consecutive = 0
		return false
	}
	g.consecutive++
	return true
}

// LastProb returns the probability of the most recent frame.
func (g *Gate) LastProb() float32 {
	return g.lastProb
}

// Reset clears the gate and its detector at interaction boundaries.
func (g *Gate) Reset() {
	g.consecutive = 0
	g.detector.Reset()
}
