// Package capture owns the hardware capture session: configuration
// negotiation, the lifecycle state machine, and the lock-free real-time
// dispatch path.
package capture

import "fmt"

// CaptureConfig is the (sample rate, channel count, buffer size) triple
// requested of the hardware. It is a value type; Key gives the stable
// identity used for de-duplication.
type CaptureConfig struct {
	SampleRate int
	Channels   int
	BufferSize int
}

// Key returns a stable ordering/dedup key for the config.
func (c CaptureConfig) Key() string {
	return fmt.Sprintf("%d/%d/%d", c.SampleRate, c.Channels, c.BufferSize)
}

func (c CaptureConfig) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %d frames", c.SampleRate, c.Channels, c.BufferSize)
}

// Handler is the real-time buffer handler installed on a hardware session.
// It receives one non-interleaved slice per channel and must not allocate,
// lock, log or block.
type Handler func(channels [][]float32, frames int)

// FrameFunc receives captured frames from the Core. For mono sessions the
// slice holds frames samples; for stereo it holds 2*frames interleaved
// samples. Invoked on the real-time thread: same constraints as Handler.
type FrameFunc func(samples []float32, frames int)

// Limits describes what the underlying input device can do, queried at
// negotiation time.
type Limits struct {
	MaxChannels      int
	NativeSampleRate float64
}

// Session is one open hardware capture session.
type Session interface {
	// InstallHandler atomically installs the real-time buffer handler.
	// Safe to call while the session is running.
	InstallHandler(h Handler)
	// RemoveHandler atomically clears the handler.
	RemoveHandler()
	Start() error
	Stop() error
	Close() error
}

// Host is the hardware capture primitive. The production implementation
// lives in internal/hardware; tests substitute their own.
type Host interface {
	// Open opens a session for the exact config or fails.
	Open(cfg CaptureConfig) (Session, error)
	// Limits reports the default input device's capabilities.
	Limits() (Limits, error)
}
