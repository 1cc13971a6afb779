// Dawn - a voice assistant daemon built on sherpa-onnx
//
// The pipeline captures microphone audio, detects speech boundaries,
// transcribes them, routes recognized text to a command table or an LLM,
// and speaks responses:
// - Voice Activity Detection (Silero-VAD)
// - Speech-to-Text (Whisper or streaming Zipformer)
// - LLM Integration (Ollama) with barge-in cancellation
// - Text-to-Speech (Kokoro)
package main

import (
	"bufio"
	"context"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/malcolmhoward/dawn-sub004/internal/asr"
	"github.com/malcolmhoward/dawn-sub004/internal/audio"
	"github.com/malcolmhoward/dawn-sub004/internal/commands"
	"github.com/malcolmhoward/dawn-sub004/internal/config"
	"github.com/malcolmhoward/dawn-sub004/internal/input"
	"github.com/malcolmhoward/dawn-sub004/internal/llm"
	"github.com/malcolmhoward/dawn-sub004/internal/metrics"
	"github.com/malcolmhoward/dawn-sub004/internal/pipeline"
	"github.com/malcolmhoward/dawn-sub004/internal/remote"
	"github.com/malcolmhoward/dawn-sub004/internal/tts"
	"github.com/malcolmhoward/dawn-sub004/internal/vad"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	log.Println("🎤 Dawn starting...")
	log.Printf("⚡ Mode: %s, ASR: %s, STT acceleration: %s, TTS acceleration: %s",
		cfg.Mode, cfg.ASREngine, cfg.STTProvider, cfg.TTSProvider)

	// Process-wide flags: the quit flag drives shutdown, the cancel flag
	// reaches into the in-flight LLM call from the signal handler and the
	// wake-word logic.
	var quit atomic.Bool
	var cancelLLM atomic.Bool

	collector := metrics.NewCollector()

	// LLM client
	llmClient, err := llm.NewClient(&llm.Config{
		Host:        cfg.OllamaURL,
		Model:       cfg.OllamaModel,
		VisionModel: cfg.VisionModel,
		Verbose:     cfg.Verbose,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.LLMTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := llmClient.HealthCheck(ctx); err != nil {
		cancel()
		log.Fatalf("Ollama connection failed: %v", err)
	}
	cancel()
	log.Printf("✅ Ollama connected (model: %s)", cfg.OllamaModel)

	// VAD
	log.Println("🧠 Loading models...")
	detector, err := vad.NewSileroDetector(cfg.VADModel, cfg.VadThreshold, cfg.SampleRate, cfg.VADThreads)
	if err != nil {
		log.Fatalf("Failed to create VAD: %v", err)
	}
	defer detector.Close()

	gateCfg := vad.DefaultGateConfig()
	gateCfg.SpeechThreshold = cfg.VadThreshold
	gateCfg.SpeechThresholdTTS = cfg.VadThresholdTTS
	gateCfg.BargeIn = !cfg.NoBargeIn
	gate := vad.NewGate(detector, gateCfg)

	// ASR engine
	var engine asr.Engine
	switch cfg.ASREngine {
	case config.ASRStreaming:
		streaming, err := asr.NewStreamingEngine(&asr.StreamingConfig{
			Encoder:    cfg.StreamEncoder,
			Decoder:    cfg.StreamDecoder,
			Joiner:     cfg.StreamJoiner,
			Tokens:     cfg.StreamTokens,
			SampleRate: cfg.SampleRate,
			Provider:   cfg.STTProvider,
			NumThreads: cfg.STTThreads,
			Verbose:    cfg.Verbose,
		})
		if err != nil {
			log.Fatalf("Failed to create streaming recognizer: %v", err)
		}
		defer streaming.Close()
		engine = streaming
	default:
		whisper, err := asr.NewWhisperTranscriber(&asr.WhisperConfig{
			Encoder:    cfg.WhisperEncoder,
			Decoder:    cfg.WhisperDecoder,
			Tokens:     cfg.WhisperTokens,
			Language:   cfg.STTLanguage,
			SampleRate: cfg.SampleRate,
			Provider:   cfg.STTProvider,
			NumThreads: cfg.STTThreads,
			Verbose:    cfg.Verbose,
		})
		if err != nil {
			log.Fatalf("Failed to create recognizer: %v", err)
		}
		defer whisper.Close()
		engine = asr.NewChunker(asr.DefaultChunkerConfig(cfg.SampleRate), whisper.Transcribe)
	}
	log.Println("✅ Speech recognition ready")

	// TTS
	synthesizer, err := tts.NewSynthesizer(&tts.Config{
		Model:      cfg.TTSModel,
		Voices:     cfg.TTSVoices,
		Tokens:     cfg.TTSTokens,
		DataDir:    cfg.TTSData,
		Lexicon:    cfg.TTSLexicon,
		Language:   cfg.TTSLanguage,
		SpeakerID:  cfg.TTSSpeakerID,
		Speed:      cfg.TTSSpeed,
		Provider:   cfg.TTSProvider,
		NumThreads: cfg.TTSThreads,
		Verbose:    cfg.Verbose,
	})
	if err != nil {
		log.Fatalf("Failed to create TTS synthesizer: %v", err)
	}
	defer synthesizer.Close()

	player, err := audio.NewPlayer(cfg.PlaybackDevice, synthesizer.SampleRate(), cfg.AudioBufferMs)
	if err != nil {
		log.Fatalf("Failed to create audio player: %v", err)
	}
	defer player.Close()

	gateway := tts.NewGateway(synthesizer, player)
	log.Println("✅ Text-to-speech ready")

	// Capture into the shared ring buffer
	ring := audio.NewRing()
	var recorder *audio.WavRecorder
	if cfg.DebugRecord != "" {
		recorder = audio.NewWavRecorder(cfg.DebugRecord, cfg.SampleRate)
	}

	var capRecorder audio.Recorder
	if recorder != nil {
		capRecorder = recorder
	}
	capturer, err := audio.NewCapturer(cfg.CaptureDevice, cfg.SampleRate, ring, capRecorder)
	if err != nil {
		log.Fatalf("Failed to create audio capturer: %v", err)
	}
	defer capturer.Close()

	// Command table and dispatcher
	var table *commands.Table
	if cfg.CommandsFile != "" {
		table, err = commands.LoadTable(cfg.CommandsFile)
		if err != nil {
			log.Fatalf("Failed to load command table: %v", err)
		}
		log.Printf("✅ Command table loaded (%d devices)", len(table.Devices))
	}
	dispatcher := commands.NewDispatcher(table)

	// Session
	session := pipeline.NewSession(cfg.SystemPrompt, cfg.OutputDir, collector)

	dispatcher.Register("music", commands.MusicCallback(player))
	dispatcher.Register("timer", commands.TimerCallback(gateway.Speak))
	dispatcher.Register("conversation", commands.ConversationCallback(
		func() { session.Log.Reset(cfg.OutputDir) },
		func() error { return session.Log.Save(cfg.OutputDir) },
	))

	// Input queue fed by the terminal and the WebSocket bridge
	queue := input.NewQueue()
	go stdinReader(queue, &quit)

	worker := llm.NewWorker(llmClient, &cancelLLM)

	machineCfg := pipeline.DefaultConfig()
	machineCfg.AIName = cfg.AIName
	machineCfg.WakePrefixes = cfg.WakePrefixes
	machineCfg.EndOfSpeech = time.Duration(cfg.EndOfSpeech * float32(time.Second))
	machineCfg.MaxRecording = time.Duration(cfg.MaxRecording * float32(time.Second))
	machineCfg.NoBargeIn = cfg.NoBargeIn
	switch cfg.Mode {
	case config.ModeDirectOnly:
		machineCfg.Mode = pipeline.ModeDirectOnly
	case config.ModeLLMOnly:
		machineCfg.Mode = pipeline.ModeLLMOnly
	default:
		machineCfg.Mode = pipeline.ModeDirectFirst
	}

	machine := pipeline.NewMachine(
		machineCfg,
		session,
		ring,
		gate,
		engine,
		queue,
		worker,
		llmClient,
		dispatcher,
		gateway,
		player,
		&cancelLLM,
		&quit,
	)

	// Optional WebSocket bridge
	var bridge *remote.Bridge
	if cfg.WSAddr != "" {
		bridge = remote.NewBridge(machine)
		if err := bridge.Start(cfg.WSAddr); err != nil {
			log.Fatalf("Failed to start WebSocket bridge: %v", err)
		}
		machine.SetNotifier(func(kind, text string) {
			go bridge.Broadcast(remote.Event{Type: kind, Data: text})
		})
	}

	// SIGINT sets the quit flag and cancels any in-flight LLM call, which
	// can otherwise hold its thread for tens of seconds
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\n🛑 Shutting down...")
		cancelLLM.Store(true)
		quit.Store(true)

		<-sigChan
		log.Println("⚠️ Forced exit")
		os.Exit(1)
	}()

	if err := capturer.Start(); err != nil {
		log.Fatalf("Failed to start audio capture: %v", err)
	}
	log.Printf("🎙️ Listening for wake word: %q", cfg.AIName)

	// The state machine is the process's primary control thread
	machine.Run()

	// Shutdown order: stop accepting input, wait for the LLM to abort or
	// finish, stop capture, close TTS, persist state.
	if bridge != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
		bridge.Shutdown(shutdownCtx)
		cancelShutdown()
	}
	queue.Clear()

	if !worker.Join(llmClient.Timeout() + 5*time.Second) {
		log.Println("⚠️ LLM worker did not finish in time")
	}

	capturer.Stop()
	gateway.Close()

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			log.Printf("⚠️ %v", err)
		}
	}

	if err := session.Log.Save(cfg.OutputDir); err != nil {
		log.Printf("⚠️ Failed to save conversation: %v", err)
	}
	if err := collector.Save(cfg.OutputDir); err != nil {
		log.Printf("⚠️ Failed to save metrics: %v", err)
	}

	log.Println("✅ Shutdown complete")
}

// stdinReader forwards terminal lines into the input queue so the
// assistant can be driven without a microphone.
func stdinReader(queue *input.Queue, quit *atomic.Bool) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if quit.Load() {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		queue.Push("tui", line)
	}
}

func init() {
	log.SetFlags(log.Ltime)
	log.SetOutput(os.Stdout)
}
