package audio

import (
	"bytes"
	"testing"
)

func TestPrerollFlushChronological(t *testing.T) {
	var p Preroll

	p.Append([]byte{1, 2, 3})
	p.Append([]byte{4, 5})

	if p.Valid() != 5 {
		t.Fatalf("expected 5 valid bytes, got %d", p.Valid())
	}

	out := p.Flush()
	if !bytes.Equal(out, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("expected [1 2 3 4 5], got %v", out)
	}
	if p.Valid() != 0 {
		t.Errorf("expected empty after flush, got %d", p.Valid())
	}
}

func TestPrerollWrapKeepsNewest(t *testing.T) {
	var p Preroll

	// Fill past capacity; only the newest PrerollSize bytes survive
	first := make([]byte, PrerollSize)
	for i := range first {
		first[i] = 0xAA
	}
	p.Append(first)

	second := make([]byte, 100)
	for i := range second {
		second[i] = byte(i)
	}
	p.Append(second)

	out := p.Flush()
	if len(out) != PrerollSize {
		t.Fatalf("expected %d bytes, got %d", PrerollSize, len(out))
	}

	// Tail must be the newest 100 bytes in order
	tail := out[len(out)-100:]
	for i, b := range tail {
		if b != byte(i) {
			t.Fatalf("tail byte %d: expected %d, got %d", i, byte(i), b)
		}
	}
	// Everything before the tail is from the first write
	for i, b := range out[:len(out)-100] {
		if b != 0xAA {
			t.Fatalf("prefix byte %d: expected 0xAA, got %d", i, b)
		}
	}
}

func TestPrerollReset(t *testing.T) {
	var p Preroll
	p.Append([]byte{1, 2, 3})
	p.Reset()
	if p.Valid() != 0 {
		t.Errorf("expected 0 after reset, got %d", p.Valid())
	}
	if out := p.Flush(); len(out) != 0 {
		t.Errorf("expected empty flush after reset, got %v", out)
	}
}

func TestPCMRoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 0.999, -0.999}
	data := Float32ToSamples(samples)
	back := SamplesToFloat32(data)

	if len(back) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(back))
	}
	for i := range samples {
		diff := samples[i] - back[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 1.0/32768.0*2 {
			t.Errorf("sample %d: expected ~%f, got %f", i, samples[i], back[i])
		}
	}
}

func TestPCMClamps(t *testing.T) {
	data := Float32ToSamples([]float32{2.0, -2.0})
	back := SamplesToFloat32(data)
	if back[0] < 0.99 || back[1] > -0.99 {
		t.Errorf("expected clamped full-scale samples, got %v", back)
	}
}
