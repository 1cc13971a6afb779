package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// WavHeader builds a complete RIFF/WAVE file from S16LE mono PCM.
func WavHeader(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))           // chunk size
	binary.Write(buf, binary.LittleEndian, uint16(1))            // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1))            // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))   // sample rate
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// WavRecorder accumulates captured PCM for debug inspection and writes a
// WAV file on Close. Implements the capture Recorder interface.
type WavRecorder struct {
	mu         sync.Mutex
	pcm        []byte
	path       string
	sampleRate int
}

// NewWavRecorder creates a recorder that will write to path.
func NewWavRecorder(path string, sampleRate int) *WavRecorder {
	return &WavRecorder{path: path, sampleRate: sampleRate}
}

// WriteSamples appends captured S16LE bytes.
func (w *WavRecorder) WriteSamples(data []byte) {
	w.mu.Lock()
	w.pcm = append(w.pcm, data...)
	w.mu.Unlock()
}

// Close writes the accumulated audio to disk.
func (w *WavRecorder) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pcm) == 0 {
		return nil
	}
	if err := os.WriteFile(w.path, WavHeader(w.pcm, w.sampleRate), 0o644); err != nil {
		return fmt.Errorf("write debug recording: %w", err)
	}
	return nil
}
