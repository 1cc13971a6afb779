package audio

import "encoding/binary"

// BytesPerSample is the width of one S16LE sample.
const BytesPerSample = 2

// SamplesToFloat32 converts S16LE bytes to normalized float32 samples in
// [-1, 1]. A trailing odd byte is ignored; the ring buffer does not respect
// sample boundaries, the consumer aligns.
func SamplesToFloat32(data []byte) []float32 {
	n := len(data) / BytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToSamples converts normalized float32 samples to S16LE bytes,
// clamping out-of-range values.
func Float32ToSamples(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, f := range samples {
		if f > 1.0 {
			f = 1.0
		} else if f < -1.0 {
			f = -1.0
		}
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(int16(f*32767.0)))
	}
	return out
}
