package analyzer

import "time"

// Payload is the consumer-facing emission. All level and frequency values
// are clamped to [0,1] at this boundary; internal measurements are not.
type Payload struct {
	TimestampMs   int64     `json:"timestampMs"`
	RMS           float64   `json:"rms"`
	Peak          float64   `json:"peak"`
	Volume        float64   `json:"volume"`
	SampleRate    int       `json:"sampleRate"`
	FFTSize       int       `json:"fftSize"`
	FrequencyData []float64 `json:"frequencyData"`
	TimeData      []float64 `json:"timeData,omitempty"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// buildPayload formats one emission for delivery. Runs on the emission
// goroutine only.
func buildPayload(em emission, sampleRate, fftSize int, includeTimeData bool) Payload {
	freq := make([]float64, em.count)
	for i := 0; i < em.count; i++ {
		freq[i] = clamp01(em.buf[i])
	}

	p := Payload{
		TimestampMs:   time.Now().UnixMilli(),
		RMS:           clamp01(em.rms),
		Peak:          clamp01(em.peak),
		Volume:        clamp01(em.rms),
		SampleRate:    sampleRate,
		FFTSize:       fftSize,
		FrequencyData: freq,
	}
	if includeTimeData {
		// Placeholder kept for payload-shape compatibility; time-domain
		// capture is not part of the emission path.
		p.TimeData = []float64{}
	}
	return p
}
