package audio

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// playbackRingSize is the number of samples the playback ring can hold:
// ~11 seconds at 48kHz, enough to buffer long synthesized sentences.
const playbackRingSize = 524288

// Buffer holds audio samples with their sample rate.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// playbackRing is a lock-free SPSC ring between Play and the device callback.
type playbackRing struct {
	samples [playbackRingSize]float32
	head    atomic.Uint64
	tail    atomic.Uint64
}

func (rb *playbackRing) push(samples []float32) int {
	head := rb.head.Load()
	tail := rb.tail.Load()

	available := playbackRingSize - int(head-tail)
	toWrite := len(samples)
	if toWrite > available {
		toWrite = available
	}

	for i := 0; i < toWrite; i++ {
		rb.samples[(head+uint64(i))%playbackRingSize] = samples[i]
	}

	rb.head.Add(uint64(toWrite))
	return toWrite
}

func (rb *playbackRing) pop() (float32, bool) {
	head := rb.head.Load()
	tail := rb.tail.Load()

	if head == tail {
		return 0.0, false
	}

	sample := rb.samples[tail%playbackRingSize]
	rb.tail.Add(1)
	return sample, true
}

func (rb *playbackRing) isEmpty() bool {
	return rb.head.Load() == rb.tail.Load()
}

func (rb *playbackRing) clear() {
	rb.tail.Store(rb.head.Load())
}

// Player owns a persistent playback device fed through a lock-free ring.
// The device runs continuously and outputs silence when the ring is empty,
// which avoids device open/close latency between sentences. Volume is
// applied per-sample in the callback so the pipeline can duck output while
// the user is speaking.
type Player struct {
	ctx              *malgo.AllocatedContext
	device           *malgo.Device
	deviceName       string
	sampleRate       uint32
	deviceSampleRate uint32
	bufferMs         uint32
	interrupt        atomic.Bool
	playing          atomic.Bool
	volumeBits       atomic.Uint32 // float32 bits, applied in the callback
	ring             *playbackRing
	mu               sync.Mutex // serializes Play callers
	completeChan     chan struct{}
}

// NewPlayer creates a playback device. bufferMs tunes the period size:
// 20ms for wired outputs, 100ms for Bluetooth (0 selects 100ms).
func NewPlayer(deviceName string, sampleRate int, bufferMs uint32) (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	if bufferMs == 0 {
		bufferMs = 100
	}

	deviceSampleRate := nativePlaybackRate()
	log.Printf("🔊 Playback device: %d Hz (source: %d Hz), buffer %d ms", deviceSampleRate, sampleRate, bufferMs)

	p := &Player{
		ctx:              ctx,
		deviceName:       deviceName,
		sampleRate:       uint32(sampleRate),
		deviceSampleRate: deviceSampleRate,
		bufferMs:         bufferMs,
		ring:             &playbackRing{},
		completeChan:     make(chan struct{}, 1),
	}
	p.SetVolume(1.0)

	if err := p.initDevice(); err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, err
	}

	return p, nil
}

func (p *Player) initDevice() error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = p.deviceSampleRate
	deviceConfig.PeriodSizeInMilliseconds = p.bufferMs

	onSendFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		interrupted := p.interrupt.Load()
		volume := math.Float32frombits(p.volumeBits.Load())

		for i := 0; i < int(framecount); i++ {
			var sample float32
			if !interrupted {
				if s, ok := p.ring.pop(); ok {
					sample = s * volume
				}
			}
			binary.LittleEndian.PutUint32(pOutputSample[i*4:], math.Float32bits(sample))
		}

		if p.ring.isEmpty() || interrupted {
			p.playing.Store(false)
			select {
			case p.completeChan <- struct{}{}:
			default:
			}
		}
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSendFrames})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	p.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

// nativePlaybackRate queries the device's preferred rate, falling back to
// 48000 Hz.
func nativePlaybackRate() uint32 {
	defaultConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	if defaultConfig.SampleRate > 0 {
		return defaultConfig.SampleRate
	}
	return 48000
}

// Play queues the buffer and blocks until it drains or is interrupted.
func (p *Player) Play(buffer Buffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	playbackSamples := buffer.Samples
	if buffer.SampleRate != int(p.deviceSampleRate) {
		playbackSamples = ResampleLinear(buffer.Samples, buffer.SampleRate, int(p.deviceSampleRate))
	}

	p.interrupt.Store(false)

	written := p.ring.push(playbackSamples)
	if written < len(playbackSamples) {
		log.Printf("⚠️  Playback buffer overflow, dropped %d samples", len(playbackSamples)-written)
	}

	p.playing.Store(true)

	// Generous ceiling: the buffer duration plus two seconds.
	deadline := time.After(time.Duration(len(playbackSamples)/int(p.deviceSampleRate)+2) * time.Second)

	for p.playing.Load() {
		if p.interrupt.Load() {
			p.ring.clear()
			p.playing.Store(false)
			return nil
		}

		select {
		case <-p.completeChan:
		case <-time.After(50 * time.Millisecond):
			// Periodic interrupt check
		case <-deadline:
			log.Println("⚠️  Playback timeout exceeded")
			p.ring.clear()
			p.playing.Store(false)
			return nil
		}
	}

	return nil
}

// Interrupt stops the current playback and empties the ring.
func (p *Player) Interrupt() {
	p.interrupt.Store(true)
	p.ring.clear()
	p.playing.Store(false)
	select {
	case p.completeChan <- struct{}{}:
	default:
	}
}

// Active reports whether samples are currently being played.
func (p *Player) Active() bool {
	return p.playing.Load()
}

// SetVolume sets the output gain in [0, 1]. Takes effect on the next
// callback period.
func (p *Player) SetVolume(v float32) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	p.volumeBits.Store(math.Float32bits(v))
}

// Volume returns the current output gain.
func (p *Player) Volume() float32 {
	return math.Float32frombits(p.volumeBits.Load())
}

// Close releases all resources.
func (p *Player) Close() {
	p.Interrupt()
	if p.device != nil {
		p.device.Stop()
		p.device.Uninit()
		p.device = nil
	}
	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}
