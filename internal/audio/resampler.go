package audio

// Resampler converts between sample rates with linear interpolation.
// Sufficient quality for voice; the polyphase variant handles downsampling
// where aliasing matters.
type Resampler struct {
	ratio      float64 // toRate / fromRate
	lastSample float32 // carries continuity across chunks
}

// NewResampler creates a streaming linear resampler.
func NewResampler(fromRate, toRate int) *Resampler {
	return &Resampler{ratio: float64(toRate) / float64(fromRate)}
}

// Resample converts one chunk, interpolating between adjacent samples.
func (r *Resampler) Resample(input []float32) []float32 {
	if r.ratio == 1.0 || len(input) == 0 {
		return input
	}

	inputLen := len(input)
	outputLen := int(float64(inputLen) * r.ratio)
	output := make([]float32, outputLen)

	for i := 0; i < outputLen; i++ {
		srcPos := float64(i) / r.ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		sample1 := r.lastSample
		if srcIdx < inputLen {
			sample1 = input[srcIdx]
		}

		sample2 := sample1
		if srcIdx+1 < inputLen {
			sample2 = input[srcIdx+1]
		} else if srcIdx < inputLen {
			sample2 = input[inputLen-1]
		}

		output[i] = sample1 + (sample2-sample1)*frac
	}

	r.lastSample = input[inputLen-1]

	return output
}

// ResampleLinear is a one-shot convenience wrapper. For streaming audio,
// reuse a Resampler instance so chunk boundaries stay continuous.
func ResampleLinear(input []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate {
		return input
	}
	r := NewResampler(fromRate, toRate)
	return r.Resample(input)
}
