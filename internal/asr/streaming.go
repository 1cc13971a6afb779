package asr

import (
	"fmt"
	"strings"
	"sync"

	"github.com/malcolmhoward/dawn-sub004/internal/sherpa"
)

// StreamingConfig holds paths and tuning for the online transducer
// recognizer (Zipformer).
type StreamingConfig struct {
	Encoder    string
	Decoder    string
	Joiner     string
	Tokens     string
	SampleRate int
	Provider   string
	NumThreads int
	Verbose    bool
}

// StreamingEngine decodes incrementally through the sherpa-onnx online
// recognizer, exposing rolling partials between utterances.
type StreamingEngine struct {
	recognizer *sherpa.OnlineRecognizer
	stream     *sherpa.OnlineStream
	sampleRate int
	partial    string
	mu         sync.Mutex
}

// NewStreamingEngine loads the transducer models and opens a stream.
func NewStreamingEngine(cfg *StreamingConfig) (*StreamingEngine, error) {
	config := &sherpa.OnlineRecognizerConfig{}
	config.FeatConfig.SampleRate = cfg.SampleRate
	config.FeatConfig.FeatureDim = 80
	config.ModelConfig.Transducer.Encoder = cfg.Encoder
	config.ModelConfig.Transducer.Decoder = cfg.Decoder
	config.ModelConfig.Transducer.Joiner = cfg.Joiner
	config.ModelConfig.Tokens = cfg.Tokens
	config.ModelConfig.NumThreads = cfg.NumThreads
	config.ModelConfig.Provider = cfg.Provider
	config.DecodingMethod = "greedy_search"
	config.ModelConfig.Debug = 0
	if cfg.Verbose {
		config.ModelConfig.Debug = 1
	}

	recognizer := sherpa.NewOnlineRecognizer(config)
	if recognizer == nil {
		return nil, fmt.Errorf("failed to create online recognizer")
	}

	stream := sherpa.NewOnlineStream(recognizer)
	if stream == nil {
		sherpa.DeleteOnlineRecognizer(recognizer)
		return nil, fmt.Errorf("failed to create online stream")
	}

	return &StreamingEngine{
		recognizer: recognizer,
		stream:     stream,
		sampleRate: cfg.SampleRate,
	}, nil
}

// Feed appends samples and advances the decoder.
func (e *StreamingEngine) Feed(samples []float32) {
	if len(samples) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stream.AcceptWaveform(e.sampleRate, samples)
	for e.recognizer.IsReady(e.stream) {
		e.recognizer.Decode(e.stream)
	}
	e.partial = strings.TrimSpace(e.recognizer.GetResult(e.stream).Text)
}

// Partial returns the current rolling hypothesis.
func (e *StreamingEngine) Partial() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.partial
}

// Finalize flushes the decoder, returns the transcript and resets the
// stream for the next utterance.
func (e *StreamingEngine) Finalize() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stream.InputFinished()
	for e.recognizer.IsReady(e.stream) {
		e.recognizer.Decode(e.stream)
	}
	text := strings.TrimSpace(e.recognizer.GetResult(e.stream).Text)

	e.reset()
	return text, nil
}

// Reset drops partial state without producing a transcript.
func (e *StreamingEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

func (e *StreamingEngine) reset() {
	e.recognizer.Reset(e.stream)
	e.partial = ""
}

// Kind reports the streaming strategy.
func (e *StreamingEngine) Kind() Kind {
	return KindStreaming
}

// Close releases the stream and recognizer.
func (e *StreamingEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stream != nil {
		sherpa.DeleteOnlineStream(e.stream)
		e.stream = nil
	}
	if e.recognizer != nil {
		sherpa.DeleteOnlineRecognizer(e.recognizer)
		e.recognizer = nil
	}
}
