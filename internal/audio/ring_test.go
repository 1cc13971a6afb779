package audio

import (
	"bytes"
	"testing"
	"time"
)

func TestRingWriteRead(t *testing.T) {
	r := NewRing()

	data := []byte{1, 2, 3, 4, 5}
	if n := r.Write(data); n != len(data) {
		t.Fatalf("expected %d bytes written, got %d", len(data), n)
	}
	if r.Available() != len(data) {
		t.Fatalf("expected %d available, got %d", len(data), r.Available())
	}

	dst := make([]byte, 3)
	if n := r.Read(dst); n != 3 {
		t.Fatalf("expected 3 bytes read, got %d", n)
	}
	if !bytes.Equal(dst, []byte{1, 2, 3}) {
		t.Errorf("expected [1 2 3], got %v", dst)
	}

	// Partial read drains the rest
	dst = make([]byte, 10)
	if n := r.Read(dst); n != 2 {
		t.Fatalf("expected 2 bytes read, got %d", n)
	}
	if !bytes.Equal(dst[:2], []byte{4, 5}) {
		t.Errorf("expected [4 5], got %v", dst[:2])
	}
	if r.Available() != 0 {
		t.Errorf("expected empty ring, got %d available", r.Available())
	}
}

func TestRingNeverOverwrites(t *testing.T) {
	r := NewRing()

	big := make([]byte, RingSize)
	for i := range big {
		big[i] = byte(i)
	}
	if n := r.Write(big); n != RingSize {
		t.Fatalf("expected full write of %d, got %d", RingSize, n)
	}

	// Ring is full: further writes are rejected, not overwritten
	if n := r.Write([]byte{0xFF}); n != 0 {
		t.Fatalf("expected 0 bytes accepted on full ring, got %d", n)
	}

	dst := make([]byte, 4)
	r.Read(dst)
	if !bytes.Equal(dst, []byte{0, 1, 2, 3}) {
		t.Errorf("oldest bytes corrupted: %v", dst)
	}
}

func TestRingPartialWrite(t *testing.T) {
	r := NewRing()

	fill := make([]byte, RingSize-2)
	r.Write(fill)

	// Only 2 bytes of space remain
	if n := r.Write([]byte{9, 8, 7}); n != 2 {
		t.Fatalf("expected partial write of 2, got %d", n)
	}
}

func TestRingWrap(t *testing.T) {
	r := NewRing()
	chunk := make([]byte, 1000)

	// Push far more than capacity through the ring to force wrapping
	var written, read int
	dst := make([]byte, 1000)
	for i := 0; i < 3*RingSize/1000; i++ {
		for j := range chunk {
			chunk[j] = byte(written + j)
		}
		n := r.Write(chunk)
		if n != len(chunk) {
			t.Fatalf("iteration %d: short write %d", i, n)
		}
		written += n

		n = r.Read(dst)
		for j := 0; j < n; j++ {
			if dst[j] != byte(read+j) {
				t.Fatalf("byte %d: expected %d, got %d", read+j, byte(read+j), dst[j])
			}
		}
		read += n
	}
	if written != read {
		t.Errorf("wrote %d but read %d", written, read)
	}
}

func TestRingWaitFor(t *testing.T) {
	r := NewRing()

	t.Run("TimesOutEmpty", func(t *testing.T) {
		start := time.Now()
		n := r.WaitFor(10, 50*time.Millisecond)
		if n != 0 {
			t.Errorf("expected 0 available, got %d", n)
		}
		if time.Since(start) < 40*time.Millisecond {
			t.Error("returned before timeout")
		}
	})

	t.Run("ReturnsImmediatelyWhenSatisfied", func(t *testing.T) {
		r.Write(make([]byte, 20))
		start := time.Now()
		n := r.WaitFor(10, time.Second)
		if n < 10 {
			t.Errorf("expected >= 10 available, got %d", n)
		}
		if time.Since(start) > 100*time.Millisecond {
			t.Error("blocked despite data being available")
		}
		r.Clear()
	})

	t.Run("WakesOnWrite", func(t *testing.T) {
		go func() {
			time.Sleep(30 * time.Millisecond)
			r.Write(make([]byte, 64))
		}()
		start := time.Now()
		n := r.WaitFor(64, time.Second)
		if n < 64 {
			t.Errorf("expected >= 64 available, got %d", n)
		}
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Errorf("took %v, expected prompt wake-up", elapsed)
		}
		r.Clear()
	})
}

func TestRingConcurrentSPSC(t *testing.T) {
	r := NewRing()
	const total = 4 * RingSize

	done := make(chan struct{})
	go func() {
		defer close(done)
		var written int
		chunk := make([]byte, 512)
		for written < total {
			for j := range chunk {
				chunk[j] = byte(written + j)
			}
			n := r.Write(chunk[:min(len(chunk), total-written)])
			written += n
			if n == 0 {
				time.Sleep(time.Microsecond)
			}
		}
	}()

	var read int
	dst := make([]byte, 768)
	for read < total {
		n := r.Read(dst)
		for j := 0; j < n; j++ {
			if dst[j] != byte(read+j) {
				t.Fatalf("byte %d: expected %d, got %d", read+j, byte(read+j), dst[j])
			}
		}
		read += n
		if n == 0 {
			time.Sleep(time.Microsecond)
		}
	}
	<-done
}
