package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/malcolmhoward/dawn-sub004/internal/conversation"
	"github.com/malcolmhoward/dawn-sub004/internal/metrics"
)

// Session carries the per-conversation state threaded through the machine:
// the message log, pipeline timing and the vision frame slot. Exactly one
// session exists per process.
type Session struct {
	ID      string
	Log     *conversation.Log
	Metrics *metrics.Collector

	// OutputDir receives conversation and metrics snapshots.
	OutputDir string

	// asrFinalizedAt anchors the ASR-to-LLM pipeline latency measurement.
	asrFinalizedAt time.Time

	visionMu    sync.Mutex
	visionImage []byte
}

// NewSession creates a session seeded with the system prompt.
func NewSession(systemPrompt, outputDir string, collector *metrics.Collector) *Session {
	if outputDir == "" {
		outputDir = "."
	}
	return &Session{
		ID:        uuid.NewString(),
		Log:       conversation.NewLog(systemPrompt),
		Metrics:   collector,
		OutputDir: outputDir,
	}
}

// PushVision stores an incoming frame for the vision state. The newest
// frame wins.
func (s *Session) PushVision(image []byte) {
	s.visionMu.Lock()
	s.visionImage = image
	s.visionMu.Unlock()
}

// TakeVision returns and clears the pending frame, if any.
func (s *Session) TakeVision() ([]byte, bool) {
	s.visionMu.Lock()
	defer s.visionMu.Unlock()
	if s.visionImage == nil {
		return nil, false
	}
	img := s.visionImage
	s.visionImage = nil
	return img, true
}

// VisionPending reports whether a frame is waiting.
func (s *Session) VisionPending() bool {
	s.visionMu.Lock()
	defer s.visionMu.Unlock()
	return s.visionImage != nil
}
