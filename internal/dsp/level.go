// Package dsp holds the measurement primitives fed from the real-time
// capture path: level metering and spectral analysis. Nothing in the
// process paths allocates.
package dsp

import (
	"math"
	"time"
)

// LevelData is one RMS/peak measurement. Values are linear sample
// magnitudes, not dB; clamping to a display range happens at emission.
type LevelData struct {
	RMS       float64
	Peak      float64
	Timestamp time.Time
}

// LevelProcessor computes RMS and peak from a raw mono buffer, optionally
// blending successive results with an exponential moving average.
type LevelProcessor struct {
	smoothing bool
	factor    float64

	smoothRMS  float64
	smoothPeak float64
}

// NewLevelProcessor returns a processor with smoothing disabled.
func NewLevelProcessor() *LevelProcessor {
	return &LevelProcessor{}
}

// Configure enables or disables smoothing. The factor is clamped to [0,1];
// 0 freezes the smoothed value, 1 tracks the raw value exactly.
func (lp *LevelProcessor) Configure(smoothing bool, factor float64) {
	if factor < 0 {
		factor = 0
	} else if factor > 1 {
		factor = 1
	}
	lp.smoothing = smoothing
	lp.factor = factor
}

// Reset zeroes the smoothed state.
func (lp *LevelProcessor) Reset() {
	lp.smoothRMS = 0
	lp.smoothPeak = 0
}

// Process measures count samples in one pass. Safe on the real-time thread.
func (lp *LevelProcessor) Process(samples []float32, count int) LevelData {
	now := time.Now()
	if count <= 0 || len(samples) == 0 {
		return LevelData{Timestamp: now}
	}
	if count > len(samples) {
		count = len(samples)
	}

	var sumSquares, maxAbs float64
	for i := 0; i < count; i++ {
		s := float64(samples[i])
		sumSquares += s * s
		if a := math.Abs(s); a > maxAbs {
			maxAbs = a
		}
	}

	rms := math.Sqrt(sumSquares / float64(count))
	peak := maxAbs

	rms, peak = lp.blend(rms, peak)
	return LevelData{RMS: rms, Peak: peak, Timestamp: now}
}

// ApplySmoothing runs a synthetic raw RMS/peak pair through the same
// smoothing logic Process uses, updating internal state. Test hook.
func (lp *LevelProcessor) ApplySmoothing(rms, peak float64) (float64, float64) {
	return lp.blend(rms, peak)
}

func (lp *LevelProcessor) blend(rms, peak float64) (float64, float64) {
	if lp.smoothing {
		lp.smoothRMS += (rms - lp.smoothRMS) * lp.factor
		lp.smoothPeak += (peak - lp.smoothPeak) * lp.factor
	} else {
		// Raw values still become the state, so re-enabling smoothing
		// later starts from the last measurement, not from zero.
		lp.smoothRMS = rms
		lp.smoothPeak = peak
	}
	return lp.smoothRMS, lp.smoothPeak
}

// State exposes the internal smoothing state. Test hook.
func (lp *LevelProcessor) State() (smoothing bool, factor, rms, peak float64) {
	return lp.smoothing, lp.factor, lp.smoothRMS, lp.smoothPeak
}

// SetState injects internal smoothing state. Test hook.
func (lp *LevelProcessor) SetState(smoothing bool, factor, rms, peak float64) {
	lp.smoothing = smoothing
	lp.factor = factor
	lp.smoothRMS = rms
	lp.smoothPeak = peak
}
