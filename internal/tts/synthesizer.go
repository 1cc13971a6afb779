package tts

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/malcolmhoward/dawn-sub004/internal/audio"
	"github.com/malcolmhoward/dawn-sub004/internal/sherpa"
)

// Synthesizer generates speech with sherpa-onnx Kokoro models.
type Synthesizer struct {
	tts        *sherpa.OfflineTts
	sampleRate int
	speakerID  int
	speed      float32
	verbose    bool
	mu         sync.Mutex
}

// Config holds TTS model configuration.
type Config struct {
	Model      string // model.onnx
	Voices     string // voices.bin
	Tokens     string // tokens.txt
	DataDir    string // espeak-ng-data directory
	Lexicon    string // lexicon.txt (optional)
	Language   string // language code for multi-lingual models
	SpeakerID  int
	Speed      float32
	Provider   string // cpu, cuda, coreml
	NumThreads int
	Verbose    bool
}

// NewSynthesizer loads the Kokoro model.
func NewSynthesizer(cfg *Config) (*Synthesizer, error) {
	ttsConfig := &sherpa.OfflineTtsConfig{}

	ttsConfig.Model.Kokoro.Model = cfg.Model
	ttsConfig.Model.Kokoro.Voices = cfg.Voices
	ttsConfig.Model.Kokoro.Tokens = cfg.Tokens
	ttsConfig.Model.Kokoro.DataDir = cfg.DataDir
	ttsConfig.Model.Kokoro.Lexicon = cfg.Lexicon
	ttsConfig.Model.Kokoro.Lang = cfg.Language
	ttsConfig.Model.Kokoro.LengthScale = 1.0 / cfg.Speed // inverse for speed control
	ttsConfig.Model.NumThreads = cfg.NumThreads
	ttsConfig.Model.Provider = cfg.Provider
	ttsConfig.MaxNumSentences = 1 // Kokoro only supports 1
	ttsConfig.Model.Debug = 0
	if cfg.Verbose {
		ttsConfig.Model.Debug = 1
	}

	tts := sherpa.NewOfflineTts(ttsConfig)
	if tts == nil {
		return nil, fmt.Errorf("failed to create TTS synthesizer")
	}

	return &Synthesizer{
		tts:        tts,
		sampleRate: 24000, // Kokoro output rate
		speakerID:  cfg.SpeakerID,
		speed:      cfg.Speed,
		verbose:    cfg.Verbose,
	}, nil
}

// Synthesize converts one sentence to audio.
func (s *Synthesizer) Synthesize(text string) (audio.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Buffer{}, fmt.Errorf("empty text")
	}

	if s.verbose {
		log.Printf("[TTS] Synthesizing: %q", text)
	}

	generated := s.tts.Generate(text, s.speakerID, s.speed)
	if generated == nil || len(generated.Samples) == 0 {
		return audio.Buffer{}, fmt.Errorf("TTS generation failed")
	}

	return audio.Buffer{
		Samples:    generated.Samples,
		SampleRate: int(generated.SampleRate),
	}, nil
}

// SampleRate returns the model's output rate.
func (s *Synthesizer) SampleRate() int {
	return s.sampleRate
}

// Close releases the model.
func (s *Synthesizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tts != nil {
		sherpa.DeleteOfflineTts(s.tts)
		s.tts = nil
	}
}
