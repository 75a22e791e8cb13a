package engine

// Sample is one frame of output from a signal. A signal is either mono,
// carrying a single scalar, or multichannel, carrying one value per channel.
// The zero value is mono silence.
type Sample struct {
	scalar float64
	ch     []float64 // nil means mono
}

// Mono wraps a scalar sample.
func Mono(v float64) Sample {
	return Sample{scalar: v}
}

// Multi wraps a per-channel slice. The slice is referenced, not copied;
// callers reuse their own buffer across frames. An empty slice is mono silence.
func Multi(ch []float64) Sample {
	if len(ch) == 0 {
		return Sample{}
	}
	return Sample{ch: ch}
}

// IsMono reports whether the sample is a single scalar.
func (s Sample) IsMono() bool {
	return s.ch == nil
}

// Width returns the channel count, 1 for mono.
func (s Sample) Width() int {
	if s.ch == nil {
		return 1
	}
	return len(s.ch)
}

// At returns channel i. A mono sample broadcasts its scalar to every channel;
// a multichannel sample reads as zero past its own width.
func (s Sample) At(i int) float64 {
	if s.ch == nil {
		return s.scalar
	}
	if i >= len(s.ch) {
		return 0
	}
	return s.ch[i]
}
