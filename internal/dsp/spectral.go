package dsp

import (
	"math"

	gofft "github.com/mjibson/go-dsp/fft"
)

// SpectralEngine computes a Hann-windowed FFT magnitude spectrum from a mono
// buffer. All scratch is sized at Configure time and reused; ProcessInto
// performs no allocation and is safe on the real-time thread.
type SpectralEngine struct {
	enabled bool

	fftSize        int
	downsampleBins int

	window    []float64 // Hann coefficients, length N
	real      []float64 // windowed input / in-place transform, length N
	imag      []float64 // length N
	magnitude []float64 // length N/2
}

// NewSpectralEngine returns a disabled engine; Configure sizes it.
func NewSpectralEngine() *SpectralEngine {
	return &SpectralEngine{}
}

// Configure sizes the transform. fftSize is rounded up to the next power of
// two; downsampleBins <= 0 disables downsampling. A no-op when both
// parameters already match, so repeated sessions with unchanged options keep
// their scratch.
func (se *SpectralEngine) Configure(fftSize, downsampleBins int) {
	n := nextPowerOfTwo(fftSize)
	if n == se.fftSize && downsampleBins == se.downsampleBins {
		return
	}

	se.fftSize = n
	se.downsampleBins = downsampleBins

	se.window = make([]float64, n)
	se.real = make([]float64, n)
	se.imag = make([]float64, n)
	se.magnitude = make([]float64, n/2)

	for i := 0; i < n; i++ {
		se.window[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(n)))
	}
}

// SetEnabled gates processing; a disabled engine writes nothing.
func (se *SpectralEngine) SetEnabled(enabled bool) {
	se.enabled = enabled
}

// Enabled reports whether the engine processes buffers.
func (se *SpectralEngine) Enabled() bool {
	return se.enabled
}

// FFTSize returns the configured (power of two) transform size.
func (se *SpectralEngine) FFTSize() int {
	return se.fftSize
}

// Reset zeroes all scratch without resizing.
func (se *SpectralEngine) Reset() {
	zero(se.real)
	zero(se.imag)
	zero(se.magnitude)
}

// ProcessInto computes the magnitude spectrum of min(frames, N) samples and
// writes up to len(out) values into out, returning how many were written.
// With downsampling active the result is the block-averaged spectrum, else
// the raw N/2 magnitudes. Returns 0 when disabled or unconfigured.
func (se *SpectralEngine) ProcessInto(samples []float32, frames int, out []float64) int {
	if !se.enabled || se.fftSize == 0 || len(out) == 0 {
		return 0
	}

	n := se.fftSize
	if frames > len(samples) {
		frames = len(samples)
	}
	copyCount := frames
	if copyCount > n {
		copyCount = n
	}
	for i := 0; i < copyCount; i++ {
		se.real[i] = float64(samples[i]) * se.window[i]
	}
	for i := copyCount; i < n; i++ {
		se.real[i] = 0
	}
	zero(se.imag)

	forwardInPlace(se.real, se.imag)

	// Single-sided spectrum, normalized so a full-scale sinusoid lands
	// near magnitude 1.
	scale := 2.0 / float64(n)
	half := n / 2
	for i := 0; i < half; i++ {
		se.magnitude[i] = math.Sqrt(se.real[i]*se.real[i]+se.imag[i]*se.imag[i]) * scale
	}

	if se.downsampleBins > 0 && se.downsampleBins < half {
		return downsample(se.magnitude[:half], out, se.downsampleBins)
	}

	count := half
	if count > len(out) {
		count = len(out)
	}
	copy(out[:count], se.magnitude[:count])
	return count
}

// Magnitudes is the offline variant: same computation, freshly allocated
// result, real-input transform from go-dsp. Not for the audio callback.
func (se *SpectralEngine) Magnitudes(samples []float32, frames int) []float64 {
	if !se.enabled || se.fftSize == 0 {
		return nil
	}

	n := se.fftSize
	if frames > len(samples) {
		frames = len(samples)
	}
	input := make([]float64, n)
	for i := 0; i < frames && i < n; i++ {
		input[i] = float64(samples[i]) * se.window[i]
	}

	spectrum := gofft.FFTReal(input)

	half := n / 2
	scale := 2.0 / float64(n)
	mags := make([]float64, half)
	for i := 0; i < half; i++ {
		re, im := real(spectrum[i]), imag(spectrum[i])
		mags[i] = math.Sqrt(re*re+im*im) * scale
	}

	if se.downsampleBins > 0 && se.downsampleBins < half {
		out := make([]float64, se.downsampleBins)
		downsample(mags, out, se.downsampleBins)
		return out
	}
	return mags
}

// downsample block-averages src into up to targetCount contiguous windows
// written to dst, returning how many were written. Window boundaries floor;
// an empty window takes the single nearest source bin.
func downsample(src []float64, dst []float64, targetCount int) int {
	count := targetCount
	if count > len(dst) {
		count = len(dst)
	}
	srcCount := len(src)
	for t := 0; t < count; t++ {
		start := t * srcCount / targetCount
		end := (t + 1) * srcCount / targetCount
		if end <= start {
			end = start + 1
		}
		if end > srcCount {
			end = srcCount
		}
		sum := 0.0
		for i := start; i < end; i++ {
			sum += src[i]
		}
		dst[t] = sum / float64(end-start)
	}
	return count
}

// forwardInPlace runs an in-place radix-2 Cooley-Tukey transform over the
// split real/imag buffers. Lengths must be equal powers of two.
func forwardInPlace(re, im []float64) {
	n := len(re)

	// Bit-reversal permutation.
	j := 0
	for i := 0; i < n; i++ {
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
		m := n >> 1
		for m >= 1 && j >= m {
			j -= m
			m >>= 1
		}
		j += m
	}

	for stage := 2; stage <= n; stage <<= 1 {
		theta := -2.0 * math.Pi / float64(stage)
		wRe := math.Cos(theta)
		wIm := math.Sin(theta)

		for k := 0; k < n; k += stage {
			tRe, tIm := 1.0, 0.0
			half := stage / 2
			for j := 0; j < half; j++ {
				i1 := k + j
				i2 := i1 + half

				xRe := tRe*re[i2] - tIm*im[i2]
				xIm := tRe*im[i2] + tIm*re[i2]

				re[i2] = re[i1] - xRe
				im[i2] = im[i1] - xIm
				re[i1] += xRe
				im[i1] += xIm

				oldRe := tRe
				tRe = oldRe*wRe - tIm*wIm
				tIm = oldRe*wIm + tIm*wRe
			}
		}
	}
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}
