// Package config provides configuration and CLI argument parsing for the
// assistant daemon.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/joho/godotenv"

	"github.com/malcolmhoward/dawn-sub004/internal/sherpa"
)

// Mode selects how recognized commands are routed.
type Mode string

const (
	// ModeDirectFirst tries the command table first, then the LLM.
	ModeDirectFirst Mode = "direct-first"
	// ModeDirectOnly never calls the LLM.
	ModeDirectOnly Mode = "direct-only"
	// ModeLLMOnly skips the command table.
	ModeLLMOnly Mode = "llm-only"
)

// ASREngine selects the recognition strategy.
type ASREngine string

const (
	// ASRWhisper is the offline chunking engine.
	ASRWhisper ASREngine = "whisper"
	// ASRStreaming is the online transducer engine with partials.
	ASRStreaming ASREngine = "streaming"
)

// Config holds all configuration for the assistant.
// Populated from CLI flags, a JSON config file, environment variables and
// defaults, in that precedence order.
type Config struct {
	// Devices
	CaptureDevice  string
	PlaybackDevice string

	// Model paths
	ModelDir string
	VADModel string

	// Whisper STT model paths
	WhisperEncoder string
	WhisperDecoder string
	WhisperTokens  string

	// Streaming STT model paths (Zipformer transducer)
	StreamEncoder string
	StreamDecoder string
	StreamJoiner  string
	StreamTokens  string

	// TTS model paths (Kokoro)
	TTSModel    string
	TTSVoices   string
	TTSTokens   string
	TTSData     string
	TTSLexicon  string
	TTSLanguage string

	// Engines
	ASREngine   ASREngine
	STTLanguage string

	// LLM settings
	OllamaURL    string
	OllamaModel  string
	VisionModel  string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	LLMTimeout   time.Duration

	// Assistant settings
	AIName       string
	WakePrefixes []string
	Mode         Mode
	NoBargeIn    bool

	// VAD thresholds
	VadThreshold    float32
	VadThresholdTTS float32

	// End-of-speech silence in seconds
	EndOfSpeech  float32
	MaxRecording float32

	// Command table path
	CommandsFile string

	// WebSocket bridge address; empty disables the bridge
	WSAddr string

	// Output directory for conversation and metrics snapshots
	OutputDir string

	// Debug recording of captured audio
	DebugRecord string

	// TTS voice
	TTSVoice     string
	TTSSpeakerID int
	TTSSpeed     float32

	// Hardware acceleration provider (cpu, cuda, coreml); auto-detected
	// when empty. STT/TTS variants override per engine.
	Provider    string
	STTProvider string
	TTSProvider string

	// Thread counts (0 = auto-detect from CPU cores)
	NumThreads int
	VADThreads int
	STTThreads int
	TTSThreads int

	// Audio buffer size in milliseconds (0 = 100ms, Bluetooth-friendly)
	AudioBufferMs uint32

	SampleRate int
	Verbose    bool
}

// fileConfig is the subset loadable from the --config JSON file.
type fileConfig struct {
	AIName       string   `json:"ai_name"`
	WakePrefixes []string `json:"wake_prefixes"`
	Mode         string   `json:"mode"`
	CommandsFile string   `json:"commands_file"`
	WSAddr       string   `json:"ws_addr"`
	OutputDir    string   `json:"output_dir"`
	SystemPrompt string   `json:"system_prompt"`
	OllamaURL    string   `json:"ollama_url"`
	OllamaModel  string   `json:"ollama_model"`
	VisionModel  string   `json:"vision_model"`
	TTSVoice     string   `json:"tts_voice"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultModelDir := filepath.Join(homeDir, ".dawn", "models")

	return &Config{
		ModelDir:   defaultModelDir,
		SampleRate: 16000,

		VadThreshold:    0.5,
		VadThresholdTTS: 0.85,
		EndOfSpeech:     1.0,
		MaxRecording:    30.0,

		ASREngine: ASRWhisper,

		OllamaURL:    "http://localhost:11434",
		OllamaModel:  "gemma3:1b",
		SystemPrompt: "You are a helpful voice assistant. Keep responses brief and concise, maximum 2-3 short sentences. Be conversational and natural for speech output. Your responses will be read aloud, so never use markdown, asterisks, code blocks, bullet points or any formatting. Use only plain text with normal punctuation. To control a device, emit <command>{\"device\":\"NAME\",\"action\":\"ACTION\",\"value\":\"VALUE\"}</command> and nothing else about it.",
		Temperature:  0.7,
		MaxTokens:    150,
		LLMTimeout:   30 * time.Second,

		AIName: "friday",
		Mode:   ModeDirectFirst,

		TTSVoice:     "af_bella",
		TTSSpeakerID: 2,
		TTSSpeed:     0.93,

		STTLanguage: "en",
		OutputDir:   ".",

		Provider:    "",
		STTProvider: "",
		TTSProvider: "",

		NumThreads: 0,
		VADThreads: 0,
		STTThreads: 0,
		TTSThreads: 0,

		AudioBufferMs: 0,
	}
}

// ParseFlags parses the environment, CLI flags and the optional config
// file.
func ParseFlags() (*Config, error) {
	// .env is optional; real environment wins over file entries
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		cfg.OllamaURL = url
	}
	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		cfg.OllamaModel = model
	}

	listVoices := flag.Bool("list-voices", false, "List all available TTS voices and exit")
	configPath := flag.String("config", "", "Path to JSON config file")

	// Device selection
	flag.StringVar(&cfg.CaptureDevice, "capture", cfg.CaptureDevice, "Capture device name (default: system default)")
	flag.StringVar(&cfg.PlaybackDevice, "playback", cfg.PlaybackDevice, "Playback device name (default: system default)")

	// Pipeline mode (mutually exclusive shortcuts)
	commandsOnly := flag.Bool("commands-only", false, "Only run direct commands, never the LLM")
	llmCommands := flag.Bool("llm-commands", false, "Try direct commands first, then the LLM (default)")
	llmOnly := flag.Bool("llm-only", false, "Send everything to the LLM, skip the command table")
	flag.BoolVar(&cfg.NoBargeIn, "no-bargein", cfg.NoBargeIn, "Disable speech detection while the assistant is talking")

	// Models
	flag.StringVar(&cfg.ModelDir, "model-dir", cfg.ModelDir, "Directory containing model files (VAD, ASR, TTS)")
	asrEngine := flag.String("asr-engine", string(cfg.ASREngine), "ASR engine: 'whisper' (chunked) or 'streaming' (partials)")

	// Audio settings
	flag.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "Audio sample rate for speech recognition")
	vadThreshold := float64(cfg.VadThreshold)
	flag.Float64Var(&vadThreshold, "vad-threshold", vadThreshold, "Voice activity detection threshold (0.0-1.0)")
	vadThresholdTTS := float64(cfg.VadThresholdTTS)
	flag.Float64Var(&vadThresholdTTS, "vad-threshold-tts", vadThresholdTTS, "Raised VAD threshold while the assistant is talking")
	endOfSpeech := float64(cfg.EndOfSpeech)
	flag.Float64Var(&endOfSpeech, "end-of-speech", endOfSpeech, "Silence in seconds that ends an utterance")
	audioBufferMs := flag.Uint("audio-buffer-ms", uint(cfg.AudioBufferMs), "Audio buffer size in ms (0=auto 100ms for Bluetooth, 20ms for wired)")
	flag.StringVar(&cfg.DebugRecord, "debug-record", cfg.DebugRecord, "Write captured audio to this WAV file on exit")

	// LLM settings
	flag.StringVar(&cfg.OllamaURL, "ollama-url", cfg.OllamaURL, "Ollama API URL")
	flag.StringVar(&cfg.OllamaModel, "ollama-model", cfg.OllamaModel, "Ollama model name")
	flag.StringVar(&cfg.VisionModel, "vision-model", cfg.VisionModel, "Ollama model for vision requests (default: ollama-model)")
	flag.StringVar(&cfg.SystemPrompt, "system-prompt", cfg.SystemPrompt, "System prompt for the LLM")
	temperature := float64(cfg.Temperature)
	flag.Float64Var(&temperature, "temperature", temperature, "LLM temperature (0.0-2.0)")

	// Assistant settings
	flag.StringVar(&cfg.AIName, "ai-name", cfg.AIName, "Assistant name used to build wake words")
	flag.StringVar(&cfg.CommandsFile, "commands", cfg.CommandsFile, "Path to the command table JSON file")
	flag.StringVar(&cfg.WSAddr, "ws-addr", cfg.WSAddr, "WebSocket bridge listen address (empty disables)")
	flag.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for conversation and metrics snapshots")

	// TTS settings
	ttsSpeed := float64(cfg.TTSSpeed)
	flag.Float64Var(&ttsSpeed, "tts-speed", ttsSpeed, "Text-to-speech speed multiplier")
	flag.StringVar(&cfg.TTSVoice, "tts-voice", cfg.TTSVoice, "TTS voice name for Kokoro (e.g. 'bf_emma')")
	flag.IntVar(&cfg.TTSSpeakerID, "tts-speaker-id", cfg.TTSSpeakerID, "TTS speaker ID for the Kokoro model")

	// STT settings
	flag.StringVar(&cfg.STTLanguage, "stt-language", cfg.STTLanguage, "STT language code ('en', 'es', 'auto')")

	// Hardware acceleration
	flag.StringVar(&cfg.Provider, "provider", cfg.Provider, "Hardware acceleration provider (cpu, cuda, coreml); auto-detected if empty")
	flag.StringVar(&cfg.STTProvider, "stt-provider", cfg.STTProvider, "Provider override for STT")
	flag.StringVar(&cfg.TTSProvider, "tts-provider", cfg.TTSProvider, "Provider override for TTS")

	// Thread counts
	flag.IntVar(&cfg.NumThreads, "num-threads", cfg.NumThreads, "Threads for all models (0 = auto)")
	flag.IntVar(&cfg.VADThreads, "vad-threads", cfg.VADThreads, "VAD threads (0 = 1 thread)")
	flag.IntVar(&cfg.STTThreads, "stt-threads", cfg.STTThreads, "STT threads (0 = use num-threads)")
	flag.IntVar(&cfg.TTSThreads, "tts-threads", cfg.TTSThreads, "TTS threads (0 = use num-threads)")

	flag.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Enable verbose logging")

	flag.Parse()

	if *listVoices {
		PrintVoices()
		os.Exit(0)
	}

	if *configPath != "" {
		if err := cfg.loadFile(*configPath); err != nil {
			return nil, err
		}
		// Parse again so explicitly given flags overwrite file values
		_ = flag.CommandLine.Parse(os.Args[1:])
	}

	cfg.TTSSpeed = float32(ttsSpeed)
	cfg.VadThreshold = float32(vadThreshold)
	cfg.VadThresholdTTS = float32(vadThresholdTTS)
	cfg.EndOfSpeech = float32(endOfSpeech)
	cfg.AudioBufferMs = uint32(*audioBufferMs)
	cfg.Temperature = float32(temperature)

	// Mode shortcuts are mutually exclusive
	modeFlags := 0
	for _, set := range []bool{*commandsOnly, *llmCommands, *llmOnly} {
		if set {
			modeFlags++
		}
	}
	if modeFlags > 1 {
		return nil, fmt.Errorf("at most one of --commands-only, --llm-commands, --llm-only may be given")
	}
	switch {
	case *commandsOnly:
		cfg.Mode = ModeDirectOnly
	case *llmOnly:
		cfg.Mode = ModeLLMOnly
	case *llmCommands:
		cfg.Mode = ModeDirectFirst
	}

	switch ASREngine(*asrEngine) {
	case ASRWhisper, ASRStreaming:
		cfg.ASREngine = ASREngine(*asrEngine)
	default:
		return nil, fmt.Errorf("invalid ASR engine: %s (must be 'whisper' or 'streaming')", *asrEngine)
	}

	// Auto-detect providers
	if cfg.Provider == "" {
		cfg.Provider = detectProvider()
	}
	if cfg.STTProvider == "" {
		cfg.STTProvider = cfg.Provider
	}
	if cfg.TTSProvider == "" {
		cfg.TTSProvider = cfg.Provider
	}

	cfg.normalizeThreadCounts()
	cfg.setModelPaths()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile merges the JSON config file into cfg. Values present in the
// file override defaults and environment values; ParseFlags parses the
// command line again afterwards so explicit flags keep precedence.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.AIName != "" {
		c.AIName = fc.AIName
	}
	if len(fc.WakePrefixes) > 0 {
		c.WakePrefixes = fc.WakePrefixes
	}
	if fc.Mode != "" {
		switch Mode(fc.Mode) {
		case ModeDirectFirst, ModeDirectOnly, ModeLLMOnly:
			c.Mode = Mode(fc.Mode)
		default:
			return fmt.Errorf("config file: invalid mode %q", fc.Mode)
		}
	}
	if fc.CommandsFile != "" {
		c.CommandsFile = fc.CommandsFile
	}
	if fc.WSAddr != "" {
		c.WSAddr = fc.WSAddr
	}
	if fc.OutputDir != "" {
		c.OutputDir = fc.OutputDir
	}
	if fc.SystemPrompt != "" {
		c.SystemPrompt = fc.SystemPrompt
	}
	if fc.OllamaURL != "" {
		c.OllamaURL = fc.OllamaURL
	}
	if fc.OllamaModel != "" {
		c.OllamaModel = fc.OllamaModel
	}
	if fc.VisionModel != "" {
		c.VisionModel = fc.VisionModel
	}
	if fc.TTSVoice != "" {
		c.TTSVoice = fc.TTSVoice
	}
	return nil
}

// setModelPaths derives model file locations from ModelDir.
func (c *Config) setModelPaths() {
	c.VADModel = filepath.Join(c.ModelDir, "silero_vad.onnx")

	c.WhisperEncoder = filepath.Join(c.ModelDir, "whisper", "whisper-small-encoder.int8.onnx")
	c.WhisperDecoder = filepath.Join(c.ModelDir, "whisper", "whisper-small-decoder.int8.onnx")
	c.WhisperTokens = filepath.Join(c.ModelDir, "whisper", "whisper-small-tokens.txt")

	streamDir := filepath.Join(c.ModelDir, "zipformer")
	c.StreamEncoder = filepath.Join(streamDir, "encoder.onnx")
	c.StreamDecoder = filepath.Join(streamDir, "decoder.onnx")
	c.StreamJoiner = filepath.Join(streamDir, "joiner.onnx")
	c.StreamTokens = filepath.Join(streamDir, "tokens.txt")

	ttsDir := filepath.Join(c.ModelDir, "tts", "kokoro-multi-lang-v1_0")
	c.TTSModel = filepath.Join(ttsDir, "model.onnx")
	c.TTSVoices = filepath.Join(ttsDir, "voices.bin")
	c.TTSTokens = filepath.Join(ttsDir, "tokens.txt")
	c.TTSData = filepath.Join(ttsDir, "espeak-ng-data")
	c.TTSLexicon = getLexiconForVoice(ttsDir, c.TTSVoice)
	c.TTSLanguage = getLanguageForVoice(c.TTSVoice)
}

// normalizeThreadCounts auto-detects thread counts from CPU cores. Edge
// devices (e.g. 6-core Jetson Orin Nano) get cores/3 to avoid
// oversubscription; VAD is lightweight and always gets one thread.
func (c *Config) normalizeThreadCounts() {
	cpuCores := runtime.NumCPU()

	if c.NumThreads == 0 {
		c.NumThreads = max(1, cpuCores/3)
	}
	if c.VADThreads == 0 {
		c.VADThreads = 1
	}
	if c.STTThreads == 0 {
		c.STTThreads = c.NumThreads
	}
	if c.TTSThreads == 0 {
		c.TTSThreads = c.NumThreads
	}

	if c.Verbose {
		fmt.Printf("[config] CPU cores: %d, threads: VAD=%d STT=%d TTS=%d\n",
			cpuCores, c.VADThreads, c.STTThreads, c.TTSThreads)
	}
}

func (c *Config) validate() error {
	required := []string{
		c.VADModel,
		c.TTSModel,
		c.TTSVoices,
		c.TTSTokens,
	}
	switch c.ASREngine {
	case ASRWhisper:
		required = append(required, c.WhisperEncoder, c.WhisperDecoder, c.WhisperTokens)
	case ASRStreaming:
		required = append(required, c.StreamEncoder, c.StreamDecoder, c.StreamJoiner, c.StreamTokens)
	}

	for _, path := range required {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("required file not found: %s\nRun scripts/setup.sh to download models", path)
		}
	}

	if c.CommandsFile != "" {
		if _, err := os.Stat(c.CommandsFile); err != nil {
			return fmt.Errorf("command table not found: %s", c.CommandsFile)
		}
	}

	if c.AIName == "" {
		return fmt.Errorf("ai-name must not be empty")
	}

	return nil
}

// detectProvider picks the best hardware acceleration for this platform.
func detectProvider() string {
	switch runtime.GOOS {
	case "darwin":
		return "coreml"
	case "linux":
		if sherpa.HasNvidiaGPU() {
			return "cuda"
		}
		return "cpu"
	default:
		return "cpu"
	}
}

// getLexiconForVoice returns the lexicon file path for a voice. Kokoro
// v1.0+ multi-lingual models ship lexicon-us-en.txt, lexicon-gb-en.txt and
// lexicon-zh.txt; other languages use the espeak-ng lang parameter
// instead.
func getLexiconForVoice(ttsDir, voiceName string) string {
	voice := GetVoice(voiceName)
	if voice == nil {
		return filepath.Join(ttsDir, "lexicon-us-en.txt")
	}

	switch voice.EspeakCode {
	case "en-us":
		return filepath.Join(ttsDir, "lexicon-us-en.txt")
	case "en-gb":
		return filepath.Join(ttsDir, "lexicon-gb-en.txt")
	case "cmn":
		return filepath.Join(ttsDir, "lexicon-us-en.txt") + "," + filepath.Join(ttsDir, "lexicon-zh.txt")
	default:
		return ""
	}
}

// getLanguageForVoice returns the espeak-ng language code for voices
// without lexicon support.
func getLanguageForVoice(voiceName string) string {
	voice := GetVoice(voiceName)
	if voice == nil {
		return ""
	}
	if voice.EspeakCode == "en-us" || voice.EspeakCode == "en-gb" || voice.EspeakCode == "cmn" {
		return ""
	}
	return voice.EspeakCode
}
