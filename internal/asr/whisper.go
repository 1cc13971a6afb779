package asr

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/malcolmhoward/dawn-sub004/internal/sherpa"
)

// WhisperConfig holds paths and tuning for the offline Whisper recognizer.
type WhisperConfig struct {
	Encoder    string
	Decoder    string
	Tokens     string
	Language   string // "auto" or empty enables detection
	SampleRate int
	Provider   string // cpu, cuda, coreml
	NumThreads int
	Verbose    bool
}

// WhisperTranscriber decodes complete audio chunks with sherpa-onnx
// Whisper. Transcription is slow (100-500ms) relative to VAD, so the
// recognizer is guarded by its own lock and never sits on the hot path.
type WhisperTranscriber struct {
	recognizer *sherpa.OfflineRecognizer
	sampleRate int
	verbose    bool
	mu         sync.Mutex
}

// NewWhisperTranscriber loads the Whisper encoder/decoder pair.
func NewWhisperTranscriber(cfg *WhisperConfig) (*WhisperTranscriber, error) {
	config := &sherpa.OfflineRecognizerConfig{}
	config.ModelConfig.Whisper.Encoder = cfg.Encoder
	config.ModelConfig.Whisper.Decoder = cfg.Decoder
	language := cfg.Language
	if strings.EqualFold(language, "auto") {
		language = ""
	}
	config.ModelConfig.Whisper.Language = language
	config.ModelConfig.Whisper.Task = "transcribe"
	config.ModelConfig.Whisper.TailPaddings = -1
	config.ModelConfig.Tokens = cfg.Tokens
	config.ModelConfig.NumThreads = cfg.NumThreads
	config.ModelConfig.Provider = cfg.Provider
	config.DecodingMethod = "greedy_search"
	config.ModelConfig.Debug = 0
	if cfg.Verbose {
		config.ModelConfig.Debug = 1
	}

	recognizer := sherpa.NewOfflineRecognizer(config)
	if recognizer == nil {
		return nil, fmt.Errorf("failed to create offline recognizer")
	}

	return &WhisperTranscriber{
		recognizer: recognizer,
		sampleRate: cfg.SampleRate,
		verbose:    cfg.Verbose,
	}, nil
}

// Transcribe decodes one chunk of samples to text.
func (w *WhisperTranscriber) Transcribe(samples []float32) string {
	if len(samples) == 0 {
		return ""
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.verbose {
		log.Printf("[ASR] Decoding chunk: %.2fs", float32(len(samples))/float32(w.sampleRate))
	}

	stream := sherpa.NewOfflineStream(w.recognizer)
	if stream == nil {
		log.Println("[ASR] Failed to create offline stream")
		return ""
	}
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(w.sampleRate, samples)
	w.recognizer.Decode(stream)

	return strings.TrimSpace(stream.GetResult().Text)
}

// Close releases the model.
func (w *WhisperTranscriber) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(w.recognizer)
		w.recognizer = nil
	}
}
