package pipeline

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/malcolmhoward/dawn-sub004/internal/asr"
	"github.com/malcolmhoward/dawn-sub004/internal/audio"
	"github.com/malcolmhoward/dawn-sub004/internal/commands"
	"github.com/malcolmhoward/dawn-sub004/internal/input"
	"github.com/malcolmhoward/dawn-sub004/internal/llm"
	"github.com/malcolmhoward/dawn-sub004/internal/vad"
)

// Mode selects how recognized commands are routed.
type Mode int

const (
	// ModeDirectFirst tries the command table, then falls back to the LLM.
	ModeDirectFirst Mode = iota
	// ModeDirectOnly never calls the LLM.
	ModeDirectOnly
	// ModeLLMOnly skips the command table entirely.
	ModeLLMOnly
)

// String returns the mode name for logs.
func (m Mode) String() string {
	switch m {
	case ModeDirectFirst:
		return "direct-first"
	case ModeDirectOnly:
		return "direct-only"
	case ModeLLMOnly:
		return "llm-only"
	default:
		return "unknown"
	}
}

// MachineState is the driver's current state.
type MachineState int

const (
	// StateSilence pulls frames and waits for speech or injected input.
	StateSilence MachineState = iota
	// StateWakewordListen records until end of speech, then runs wake-word
	// logic on the transcript.
	StateWakewordListen
	// StateCommandRecording records a command after a bare wake word.
	StateCommandRecording
	// StateProcessCommand routes the command text.
	StateProcessCommand
	// StateVisionReady handles a pending camera frame.
	StateVisionReady
)

// String returns the state name for logs.
func (s MachineState) String() string {
	switch s {
	case StateSilence:
		return "silence"
	case StateWakewordListen:
		return "wakeword-listen"
	case StateCommandRecording:
		return "command-recording"
	case StateProcessCommand:
		return "process-command"
	case StateVisionReady:
		return "vision-ready"
	default:
		return "unknown"
	}
}

// Pipeline timing constants.
const (
	// frameBytes is one VAD frame of S16LE audio.
	frameBytes = vad.FrameSize * audio.BytesPerSample
	// ringWait bounds each blocking pull from the capture ring.
	ringWait = 2 * time.Second
	// commandSilenceTimeout is the secondary end-of-speech bound in
	// command recording: 24 silent 50ms iterations.
	commandSilenceTimeout = 1200 * time.Millisecond
	// partialNoChangeTimeout ends listening when a streaming partial has
	// stopped changing. Additive to the silence rule, streaming engine
	// only.
	partialNoChangeTimeout = 800 * time.Millisecond
	// duckRestoreSilence is how long the room must stay quiet before
	// ducked output volume is restored.
	duckRestoreSilence = 2 * time.Second
	// duckLevel is the fraction of the pre-duck volume while the user
	// speaks over playback.
	duckLevel = 0.3
)

// Spoken responses.
const (
	ackPhrase      = "Hello sir."
	farewellPhrase = "Goodbye sir."
	failurePhrase  = "I'm sorry but I'm currently unavailable."
)

// blankPlaceholders are ASR artifacts treated as empty commands.
var blankPlaceholders = map[string]bool{
	"[blank_audio]": true,
	"[silence]":     true,
	"[noise]":       true,
	"[inaudible]":   true,
	"(silence)":     true,
}

// TTSControl is the slice of the TTS gateway the machine drives.
type TTSControl interface {
	Speak(text string)
	OnSentence(sentence string)
	Pause()
	Resume()
	Discard()
	Paused() bool
	Active() bool
}

// LLMClient is the synchronous surface used for vision and tool
// follow-ups. The background path goes through the worker.
type LLMClient interface {
	Stream(ctx context.Context, req llm.Request, onSentence func(string)) (string, error)
	Complete(ctx context.Context, req llm.Request) (string, error)
	Timeout() time.Duration
}

// Ducker is the output volume control used for ducking.
type Ducker interface {
	SetVolume(v float32)
	Volume() float32
	Active() bool
}

// Config tunes the state machine.
type Config struct {
	Mode         Mode
	AIName       string
	WakePrefixes []string
	EndOfSpeech  time.Duration // silence that finalizes an utterance
	MaxRecording time.Duration // hard cap per utterance
	VisionPrompt string        // canonical prompt for camera frames
	NoBargeIn    bool
}

// DefaultConfig returns the standard machine tuning.
func DefaultConfig() Config {
	return Config{
		Mode:         ModeDirectFirst,
		AIName:       "friday",
		EndOfSpeech:  time.Second,
		MaxRecording: 30 * time.Second,
		VisionPrompt: "Describe what you see in this image, briefly.",
	}
}

// Machine is the five-state pipeline driver. It owns the session, pulls
// frames from the capture ring on its own goroutine, and is the sole
// writer of the conversation log.
type Machine struct {
	cfg     Config
	session *Session

	ring       *audio.Ring
	preroll    audio.Preroll
	gate       *vad.Gate
	engine     asr.Engine
	queue      *input.Queue
	worker     *llm.Worker
	client     LLMClient
	dispatcher *commands.Dispatcher
	tts        TTSControl
	duck       Ducker // optional
	wake       *WakeTable

	cancelLLM *atomic.Bool
	quit      *atomic.Bool

	state       MachineState
	silenceNext MachineState
	command     string
	jobPending  bool
	jobRollback int // messages to remove if the in-flight job is cancelled

	// Ducking state
	ducked      bool
	savedVolume float32
	quietSince  time.Time

	// notify, when set, receives transcript and response events for
	// remote observers. Must not block.
	notify func(kind, text string)
}

// SetNotifier installs an observer for transcript/response events.
func (m *Machine) SetNotifier(fn func(kind, text string)) {
	m.notify = fn
}

func (m *Machine) emit(kind, text string) {
	if m.notify != nil {
		m.notify(kind, text)
	}
}

// NewMachine wires the pipeline together.
func NewMachine(
	cfg Config,
	session *Session,
	ring *audio.Ring,
	gate *vad.Gate,
	engine asr.Engine,
	queue *input.Queue,
	worker *llm.Worker,
	client LLMClient,
	dispatcher *commands.Dispatcher,
	ttsControl TTSControl,
	duck Ducker,
	cancelLLM, quit *atomic.Bool,
) *Machine {
	return &Machine{
		cfg:         cfg,
		session:     session,
		ring:        ring,
		gate:        gate,
		engine:      engine,
		queue:       queue,
		worker:      worker,
		client:      client,
		dispatcher:  dispatcher,
		tts:         ttsControl,
		duck:        duck,
		wake:        NewWakeTable(cfg.WakePrefixes, cfg.AIName),
		cancelLLM:   cancelLLM,
		quit:        quit,
		state:       StateSilence,
		silenceNext: StateWakewordListen,
	}
}

// Run drives the machine until the quit flag is set. It is the process's
// primary control loop.
func (m *Machine) Run() {
	log.Printf("🎙️ Pipeline running (mode: %s, wake name: %q)", m.cfg.Mode, m.cfg.AIName)

	for !m.quit.Load() {
		m.pollCompletion()

		switch m.state {
		case StateSilence:
			m.runSilence()
		case StateWakewordListen:
			m.runListen(false)
		case StateCommandRecording:
			m.runListen(true)
		case StateProcessCommand:
			m.runProcessCommand()
		case StateVisionReady:
			m.runVision()
		}
	}

	// A response may still be in flight; its fate is decided by shutdown
	log.Println("🛑 Pipeline stopped")
}

// setState logs transitions.
func (m *Machine) setState(next MachineState) {
	if m.state != next {
		log.Printf("[pipeline] %s -> %s", m.state, next)
	}
	m.state = next
}

// readFrame pulls one VAD frame from the ring, blocking up to ringWait.
func (m *Machine) readFrame() []byte {
	if m.ring.WaitFor(frameBytes, ringWait) < frameBytes {
		return nil
	}
	frame := make([]byte, frameBytes)
	if m.ring.Read(frame) < frameBytes {
		return nil
	}
	return frame
}

// runSilence is the idle state: watch for vision frames, injected text and
// speech onsets.
func (m *Machine) runSilence() {
	// Vision waits until the worker is free; the synchronous call must not
	// overlap a background completion
	if m.session.VisionPending() && !m.worker.Processing() {
		m.setState(StateVisionReady)
		return
	}

	if item, ok := m.queue.Pop(); ok {
		log.Printf("⌨️  Injected command from %s: %q", item.Source, item.Text)
		m.command = item.Text
		m.silenceNext = StateWakewordListen
		m.setState(StateProcessCommand)
		return
	}

	frame := m.readFrame()
	if frame == nil {
		return
	}
	m.preroll.Append(frame)

	samples := audio.SamplesToFloat32(frame)
	speech := m.gate.Process(samples, m.tts.Active())

	m.updateDucking(speech)

	if !speech {
		return
	}

	// Replay the preroll (which already includes this frame) so the
	// utterance onset reaches the recognizer intact.
	m.engine.Feed(audio.SamplesToFloat32(m.preroll.Flush()))
	m.gate.Reset()

	m.setState(m.silenceNext)
	m.silenceNext = StateWakewordListen
}

// updateDucking lowers output volume while the user talks over playback
// and restores it after sustained quiet.
func (m *Machine) updateDucking(speech bool) {
	if m.duck == nil {
		return
	}

	if speech && !m.ducked && m.duck.Active() {
		m.savedVolume = m.duck.Volume()
		m.duck.SetVolume(m.savedVolume * duckLevel)
		m.ducked = true
		m.quietSince = time.Time{}
		log.Println("🔉 Output ducked")
		return
	}

	if m.ducked {
		if speech {
			m.quietSince = time.Time{}
			return
		}
		if m.quietSince.IsZero() {
			m.quietSince = time.Now()
			return
		}
		if time.Since(m.quietSince) >= duckRestoreSilence {
			m.duck.SetVolume(m.savedVolume)
			m.ducked = false
			log.Println("🔊 Output volume restored")
		}
	}
}

// runListen records one utterance in either wake-word or command mode and
// dispatches the finalized transcript.
func (m *Machine) runListen(commandMode bool) {
	if !commandMode {
		m.tts.Pause()
	}
	// Command recording is entered from the wake-word logic, which has
	// already discarded the interrupted response before acknowledging.

	var (
		silence      time.Duration
		speech       time.Duration
		recorded     time.Duration
		lastPartial  string
		partialSince time.Time
	)

	frameDur := time.Duration(vad.FrameSize) * time.Second / 16000

	for !m.quit.Load() {
		m.pollCompletion()

		frame := m.readFrame()
		if frame == nil {
			// Ring underrun counts as silence so a dead microphone cannot
			// trap the state machine here
			silence += ringWait
			if silence >= m.cfg.EndOfSpeech {
				break
			}
			continue
		}

		samples := audio.SamplesToFloat32(frame)
		m.engine.Feed(samples)

		recorded += frameDur
		if m.gate.Process(samples, m.tts.Active()) {
			speech += frameDur
			silence = 0
		} else {
			silence += frameDur
		}

		// Streaming engines expose partials; a hypothesis that stopped
		// changing is additional evidence the utterance is over.
		if m.engine.Kind() == asr.KindStreaming {
			if partial := m.engine.Partial(); partial != "" {
				if partial != lastPartial {
					lastPartial = partial
					partialSince = time.Now()
				} else if time.Since(partialSince) >= partialNoChangeTimeout && silence > 0 {
					break
				}
			}
		}

		if silence >= m.cfg.EndOfSpeech {
			break
		}
		if commandMode && speech == 0 && silence >= commandSilenceTimeout {
			break
		}
		if recorded >= m.cfg.MaxRecording {
			log.Println("⚠️  Max recording duration reached")
			break
		}
	}

	asrStart := time.Now()
	transcript, err := m.engine.Finalize()
	if err != nil {
		log.Printf("❌ ASR error: %v", err)
		transcript = ""
	}
	m.session.Metrics.ObserveStage("asr_finalize", time.Since(asrStart))
	m.session.asrFinalizedAt = time.Now()
	m.gate.Reset()

	if transcript != "" {
		log.Printf("🗣️ Heard: %q", transcript)
		m.emit("transcript", transcript)
	}

	if commandMode {
		m.command = transcript
		m.setState(StateProcessCommand)
		return
	}

	m.applyWakeLogic(transcript)
}

// applyWakeLogic routes a finalized wake-word-listen transcript.
func (m *Machine) applyWakeLogic(transcript string) {
	switch {
	case m.wake.IsGoodbye(transcript):
		m.tts.Discard()
		m.tts.Speak(farewellPhrase)
		m.quit.Store(true)
		log.Println("👋 Goodbye")
		return

	case m.tts.Paused() && m.wake.IsCancel(transcript):
		m.tts.Discard()
		m.setState(StateSilence)
		m.silenceNext = StateWakewordListen
		return
	}

	tail, found := m.wake.FindWake(transcript)
	if !found {
		// Not addressed to us: let a paused response continue
		m.tts.Resume()
		m.setState(StateSilence)
		return
	}

	m.session.Metrics.CountWakeWord()

	// A wake word during an in-flight request is an interruption
	if m.worker.Processing() {
		m.cancelLLM.Store(true)
	}

	// The user addressed us: whatever response was paused or streaming is
	// dead
	m.tts.Discard()

	if tail == "" {
		m.tts.Speak(ackPhrase)
		m.setState(StateCommandRecording)
		return
	}

	m.command = tail
	m.setState(StateProcessCommand)
}

// isBlankCommand filters empty transcripts and ASR placeholders.
func isBlankCommand(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	return blankPlaceholders[strings.ToLower(trimmed)]
}

// runProcessCommand routes the pending command text.
func (m *Machine) runProcessCommand() {
	cmd := m.command
	m.command = ""
	m.setState(StateSilence)

	if isBlankCommand(cmd) {
		return
	}

	// Direct command table, unless the mode is LLM-only
	if m.cfg.Mode != ModeLLMOnly {
		if result, ok := m.dispatcher.HandleText(cmd); ok {
			m.session.Metrics.CountDirectCommand()
			m.handleCommandResult(result)
			return
		}
		if m.cfg.Mode == ModeDirectOnly {
			log.Printf("🤷 No direct command matches %q", cmd)
			return
		}
	}

	m.startLLMJob(cmd, nil)
}

// handleCommandResult acts on a dispatcher outcome.
func (m *Machine) handleCommandResult(result commands.Result) {
	switch result.Outcome {
	case commands.OutcomeSilent:
	case commands.OutcomeSpoken:
		m.tts.Speak(result.Text)
	case commands.OutcomeFeedLLM:
		if m.cfg.Mode == ModeDirectOnly {
			// No LLM available: speak the raw result instead
			m.tts.Speak(result.Text)
			return
		}
		m.session.Log.Append("system", result.Text)
		m.startLLMJobRollback("", nil, 1)
	}
}

// startLLMJob appends the user message (when text is non-empty) and hands
// the request to the background worker. A job already in flight wins: the
// new command is dropped and its message rolled back.
func (m *Machine) startLLMJob(text string, images [][]byte) {
	rollback := 0
	if text != "" {
		rollback = 1
	}
	m.startLLMJobRollback(text, images, rollback)
}

// startLLMJobRollback is startLLMJob with an explicit count of log
// messages to remove should the job be cancelled or dropped (the user
// message, or the system message of a fed-back tool result).
func (m *Machine) startLLMJobRollback(text string, images [][]byte, rollback int) {
	if text != "" {
		m.session.Log.Append("user", text)
	}

	if m.worker.Processing() {
		m.rollbackMessages(rollback)
		log.Println("⚠️  Request dropped: a response is already being generated")
		return
	}

	job := llm.Job{
		Text:     text,
		Images:   images,
		Messages: m.session.Log.Snapshot(),
	}

	firstSentence := true
	start := time.Now()
	onSentence := func(sentence string) {
		if firstSentence {
			firstSentence = false
			m.session.Metrics.ObserveStage("llm_first_sentence", time.Since(start))
		}
		m.tts.OnSentence(sentence)
	}

	if err := m.worker.Start(job, onSentence); err != nil {
		// Lost the race with another start; same drop rule applies
		m.rollbackMessages(rollback)
		log.Printf("⚠️  Request dropped: %v", err)
		return
	}
	m.jobPending = true
	m.jobRollback = rollback
}

func (m *Machine) rollbackMessages(n int) {
	for i := 0; i < n; i++ {
		m.session.Log.RemoveLast()
	}
}

// pollCompletion runs every iteration in every state, collecting the
// worker result on the processing flag's 1 -> 0 transition.
func (m *Machine) pollCompletion() {
	if !m.jobPending || m.worker.Processing() {
		return
	}
	m.jobPending = false

	result := m.worker.Collect()
	m.session.Metrics.ObserveStage("llm", result.Elapsed)
	if !m.session.asrFinalizedAt.IsZero() {
		m.session.Metrics.ObserveStage("pipeline", time.Since(m.session.asrFinalizedAt))
	}

	switch {
	case result.Cancelled:
		// Roll back the messages the job was started with; the
		// conversation must look untouched
		m.rollbackMessages(m.jobRollback)
		m.cancelLLM.Store(false)
		m.session.Metrics.CountCancellation()

	case result.OK:
		m.dispatcher.ProcessToolTagsChained(result.Text, m.toolFollowUp)
		m.session.Log.Append("assistant", strings.TrimRight(result.Text, " \t\r\n"))
		m.session.Metrics.CountTurn()
		log.Printf("🤖 Assistant: %s", commands.StripToolTags(result.Text))
		m.emit("response", commands.StripToolTags(result.Text))

	default:
		m.session.Metrics.CountFailure()
		m.tts.Speak(failurePhrase)
	}
}

// toolFollowUp feeds a tool result back to the LLM synchronously.
func (m *Machine) toolFollowUp(systemMsg string) (string, error) {
	m.session.Log.Append("system", systemMsg)

	ctx, cancel := context.WithTimeout(context.Background(), m.client.Timeout())
	defer cancel()

	reply, err := m.client.Stream(ctx, llm.Request{Messages: m.session.Log.Snapshot()}, m.tts.OnSentence)
	if err != nil {
		return "", err
	}
	m.session.Log.Append("assistant", strings.TrimRight(reply, " \t\r\n"))
	return reply, nil
}

// runVision handles a pending camera frame with a synchronous LLM call.
func (m *Machine) runVision() {
	m.setState(StateSilence)

	image, ok := m.session.TakeVision()
	if !ok {
		return
	}

	// Rewrite the tail of the log so the vision prompt cannot re-trigger
	// itself through the previous exchange
	m.session.Log.DropLastAssistant()
	if m.session.Log.Last().Role == "user" {
		m.session.Log.ReplaceLastUser(m.cfg.VisionPrompt)
	} else {
		m.session.Log.Append("user", m.cfg.VisionPrompt)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.client.Timeout())
	defer cancel()

	start := time.Now()
	reply, err := m.client.Stream(ctx, llm.Request{
		Messages: m.session.Log.Snapshot(),
		Images:   [][]byte{image},
	}, m.tts.OnSentence)
	m.session.Metrics.ObserveStage("vision", time.Since(start))

	if err != nil {
		log.Printf("❌ Vision request failed: %v", err)
		m.tts.Speak(failurePhrase)
		return
	}

	m.session.Log.Append("assistant", strings.TrimRight(reply, " \t\r\n"))
	m.session.Metrics.CountTurn()
}

// PushText implements the remote bridge sink.
func (m *Machine) PushText(source, text string) {
	m.queue.Push(source, text)
}

// PushVision implements the remote bridge sink.
func (m *Machine) PushVision(image []byte) {
	m.session.PushVision(image)
}
