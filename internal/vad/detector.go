// Package vad provides voice activity detection with echo-robust gating.
package vad

import (
	"fmt"
	"math"

	"github.com/malcolmhoward/dawn-sub004/internal/sherpa"
)

// FrameSize is the number of samples per VAD analysis frame: 32ms at 16kHz.
const FrameSize = 512

// ProbUnavailable is returned when a frame cannot be scored (short frame,
// closed detector). Negative so it never crosses any threshold.
const ProbUnavailable = float32(-1.0)

// Detector scores fixed-size PCM frames with a speech probability.
type Detector interface {
	// Process scores exactly FrameSize samples, returning a probability in
	// [0, 1] or a negative sentinel when unavailable.
	Process(frame []float32) float32
	// Reset clears accumulated state at interaction boundaries.
	Reset()
}

// SileroDetector wraps the sherpa-onnx Silero VAD. The model emits a
// binary speech decision per window; this maps to 1.0/0.0 probabilities,
// which the gate thresholds the same way as graded scores.
type SileroDetector struct {
	vad *sherpa.VoiceActivityDetector
}

// NewSileroDetector loads the Silero model from modelPath.
func NewSileroDetector(modelPath string, threshold float32, sampleRate, numThreads int) (*SileroDetector, error) {
	config := &sherpa.VadModelConfig{}
	config.SileroVad.Model = modelPath
	config.SileroVad.Threshold = threshold
	config.SileroVad.MinSilenceDuration = 0.1
	config.SileroVad.MinSpeechDuration = 0.1
	config.SileroVad.MaxSpeechDuration = 30.0
	config.SileroVad.WindowSize = FrameSize
	config.SampleRate = sampleRate
	config.NumThreads = numThreads

	vad := sherpa.NewVoiceActivityDetector(config, 60.0)
	if vad == nil {
		return nil, fmt.Errorf("failed to create VAD from %s", modelPath)
	}
	return &SileroDetector{vad: vad}, nil
}

// Process feeds one frame and returns the model's speech decision.
func (d *SileroDetector) Process(frame []float32) float32 {
	if d.vad == nil || len(frame) < FrameSize {
		return ProbUnavailable
	}
	d.vad.AcceptWaveform(frame[:FrameSize])

	// Drain completed segments; the pipeline's own buffers carry the audio.
	for !d.vad.IsEmpty() {
		d.vad.Pop()
	}

	if d.vad.IsSpeech() {
		return 1.0
	}
	return 0.0
}

// Reset clears the model's internal window.
func (d *SileroDetector) Reset() {
	if d.vad != nil {
		d.vad.Clear()
	}
}

// Close releases the model.
func (d *SileroDetector) Close() {
	if d.vad != nil {
		sherpa.DeleteVoiceActivityDetector(d.vad)
		d.vad = nil
	}
}

// EnergyDetector scores frames by RMS energy mapped through a soft curve.
// It needs no model file and is used by the tests; the daemon always
// loads the Silero model.
type EnergyDetector struct {
	// Knee is the RMS level mapped to probability 0.5. Typical speech on a
	// close microphone sits well above 0.02.
	Knee float64
}

// NewEnergyDetector creates an RMS detector with the default knee.
func NewEnergyDetector() *EnergyDetector {
	return &EnergyDetector{Knee: 0.02}
}

// Process maps frame RMS into [0, 1].
func (d *EnergyDetector) Process(frame []float32) float32 {
	if len(frame) < FrameSize {
		return ProbUnavailable
	}

	var sum float64
	for _, s := range frame[:FrameSize] {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / FrameSize)

	// Logistic curve centered on the knee; steepness chosen so silence
	// (~0.001 RMS) scores near zero and speech (>0.05) near one.
	p := 1.0 / (1.0 + math.Exp(-(rms-d.Knee)/(d.Knee/4)))
	return float32(p)
}

// Reset is a no-op; the detector is stateless per frame.
func (d *EnergyDetector) Reset() {}
