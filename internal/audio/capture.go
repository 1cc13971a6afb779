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

// Capture chunk ring configuration.
const (
	// chunkRingSize is the number of callback chunks buffered between the
	// audio thread and the capture worker goroutine. At 32ms per chunk this
	// is ~4 seconds.
	chunkRingSize = 128

	// maxSamplesPerChunk bounds per-chunk allocation in the callback path.
	maxSamplesPerChunk = 2048
)

// captureChunk is one audio callback's worth of samples.
type captureChunk struct {
	samples []float32
	len     int
}

// chunkRing is a lock-free single-producer single-consumer ring of capture
// chunks. The malgo callback is the producer; the capture worker goroutine
// is the consumer.
type chunkRing struct {
	chunks    [chunkRingSize]captureChunk
	head      atomic.Uint64
	tail      atomic.Uint64
	dropCount atomic.Uint64
}

func newChunkRing() *chunkRing {
	cr := &chunkRing{}
	for i := range cr.chunks {
		cr.chunks[i].samples = make([]float32, maxSamplesPerChunk)
	}
	return cr
}

// push copies samples into the next slot. Returns false when the ring is
// full and the chunk is dropped.
func (cr *chunkRing) push(samples []float32) bool {
	head := cr.head.Load()
	tail := cr.tail.Load()

	if head-tail >= chunkRingSize {
		count := cr.dropCount.Add(1)
		if count%100 == 0 {
			log.Printf("⚠️  Capture ring full, dropped %d chunks", count)
		}
		return false
	}

	slot := &cr.chunks[head%chunkRingSize]
	n := copy(slot.samples, samples)
	slot.len = n

	cr.head.Add(1)
	return true
}

// pop returns the oldest chunk, or nil when empty. The slot is reused after
// the next push wraps around; callers must copy.
func (cr *chunkRing) pop() []float32 {
	head := cr.head.Load()
	tail := cr.tail.Load()

	if head == tail {
		return nil
	}

	slot := &cr.chunks[tail%chunkRingSize]
	samples := slot.samples[:slot.len]

	cr.tail.Add(1)
	return samples
}

// Recorder receives a copy of every captured frame, already converted to
// the pipeline format. Used for debug WAV capture.
type Recorder interface {
	WriteSamples(data []byte)
}

// Capturer is the dedicated capture worker. It owns the microphone device,
// resamples to the pipeline rate when the hardware rate differs, and
// writes S16LE bytes into the shared ring buffer that the state machine
// reads.
type Capturer struct {
	ctx              *malgo.AllocatedContext
	device           *malgo.Device
	deviceName       string
	sampleRate       uint32
	deviceSampleRate uint32
	out              *Ring
	recorder         Recorder
	running          atomic.Bool // pause/resume gate
	alive            atomic.Bool // false once the backend is lost
	ring             *chunkRing
	stopChan         chan struct{}
	stopOnce         sync.Once
	wg               sync.WaitGroup
	resampler        *PolyphaseResampler
}

// NewCapturer creates a capture worker writing into out. deviceName is
// informational; malgo selects the system default capture device.
func NewCapturer(deviceName string, sampleRate int, out *Ring, recorder Recorder) (*Capturer, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	c := &Capturer{
		ctx:        ctx,
		deviceName: deviceName,
		sampleRate: uint32(sampleRate),
		out:        out,
		recorder:   recorder,
		ring:       newChunkRing(),
		stopChan:   make(chan struct{}),
	}
	c.alive.Store(true)

	return c, nil
}

// Start opens the capture device and launches the worker goroutine.
func (c *Capturer) Start() error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = c.sampleRate
	deviceConfig.PeriodSizeInMilliseconds = 32 // one VAD frame per period

	// The device may run at its own native rate; query it first.
	tempDevice, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{})
	if err != nil {
		return fmt.Errorf("failed to query capture device: %w", err)
	}
	c.deviceSampleRate = tempDevice.SampleRate()
	tempDevice.Uninit()

	if c.deviceSampleRate != c.sampleRate {
		if c.deviceSampleRate > c.sampleRate {
			c.resampler = NewPolyphaseResampler(int(c.deviceSampleRate), int(c.sampleRate))
			log.Printf("🔄 Capture resampling: %d Hz -> %d Hz (polyphase anti-aliasing)", c.deviceSampleRate, c.sampleRate)
		} else {
			log.Printf("🔄 Capture resampling: %d Hz -> %d Hz (linear interpolation)", c.deviceSampleRate, c.sampleRate)
		}
	}

	// Audio callback: runs on the audio thread, must never block.
	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		if !c.running.Load() {
			return
		}
		pooled := bytesToFloat32(pInputSamples)
		if len(pooled) > 0 {
			c.ring.push(pooled)
		}
		returnFloat32Buffer(pooled)
	}

	callbacks := malgo.DeviceCallbacks{
		Data: onRecvFrames,
		Stop: func() {
			// Device disappeared (unplugged, backend restart). The pipeline
			// keeps draining whatever the ring still holds.
			if c.alive.CompareAndSwap(true, false) {
				log.Println("⚠️  Capture backend lost")
			}
		},
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	c.device = device
	c.running.Store(true)

	c.wg.Add(1)
	go c.processLoop()

	if err := device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	return nil
}

// processLoop drains the chunk ring, resamples, and feeds the byte ring.
func (c *Capturer) processLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		default:
			samples := c.ring.pop()
			if samples == nil || !c.running.Load() {
				// Brief sleep keeps latency low without busy-spinning.
				select {
				case <-c.stopChan:
					return
				case <-time.After(100 * time.Microsecond):
				}
				continue
			}

			samplesCopy := make([]float32, len(samples))
			copy(samplesCopy, samples)

			if c.resampler != nil {
				samplesCopy = c.resampler.Resample(samplesCopy)
			} else if c.deviceSampleRate != c.sampleRate {
				samplesCopy = ResampleLinear(samplesCopy, int(c.deviceSampleRate), int(c.sampleRate))
			}

			data := Float32ToSamples(samplesCopy)
			if n := c.out.Write(data); n < len(data) {
				log.Printf("⚠️  Capture ring backpressure, dropped %d bytes", len(data)-n)
			}
			if c.recorder != nil {
				c.recorder.WriteSamples(data)
			}
		}
	}
}

// Running reports whether the backend is alive and capture is not paused.
func (c *Capturer) Running() bool {
	return c.alive.Load() && c.running.Load()
}

// Pause temporarily halts capture without releasing the device.
func (c *Capturer) Pause() {
	c.running.Store(false)
}

// Resume restarts capture after Pause.
func (c *Capturer) Resume() {
	c.running.Store(true)
}

// Stop halts capture and joins the worker goroutine.
func (c *Capturer) Stop() {
	c.running.Store(false)
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.wg.Wait()

	if c.device != nil {
		c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
}

// Close releases all audio resources.
func (c *Capturer) Close() {
	c.Stop()
	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
}

// float32Pool reduces allocations in the audio callback hot path.
var float32Pool = sync.Pool{
	New: func() interface{} {
		// 32ms at 48kHz is 1536 samples; leave headroom.
		buf := make([]float32, 2048)
		return &buf
	},
}

// bytesToFloat32 converts raw F32LE bytes to float32 samples using a pooled
// buffer. The returned slice is only valid until returnFloat32Buffer.
func bytesToFloat32(data []byte) []float32 {
	numSamples := len(data) / 4
	pBuf := float32Pool.Get().(*[]float32)

	if cap(*pBuf) < numSamples {
		*pBuf = make([]float32, numSamples)
	}
	samples := (*pBuf)[:numSamples]

	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}

// returnFloat32Buffer returns a pooled buffer after its samples are consumed.
func returnFloat32Buffer(samples []float32) {
	if samples == nil {
		return
	}
	buf := samples[:cap(samples)]
	float32Pool.Put(&buf)
}
