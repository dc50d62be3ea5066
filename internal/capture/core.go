package capture

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/cpeters/audioscope/internal/audioerr"
)

// Core owns one hardware capture session and its Stopped/Running state
// machine. Start/Stop/UpdateCallback run on the control thread; the
// real-time trampoline reads only the two atomics.
type Core struct {
	host Host
	log  zerolog.Logger

	mu      sync.Mutex // serializes lifecycle transitions
	session Session
	config  CaptureConfig

	running  atomic.Bool
	callback atomic.Pointer[FrameFunc]

	// interleave holds 2*bufferSize samples for stereo sessions. Grown
	// under mu, read only by the real-time trampoline while running.
	interleave []float32
}

// NewCore creates a stopped capture core backed by the given host.
func NewCore(host Host, log zerolog.Logger) *Core {
	return &Core{host: host, log: log}
}

// IsRunning reports the capture state as seen by the real-time thread.
func (c *Core) IsRunning() bool {
	return c.running.Load()
}

// Config returns the negotiated config of the current or last session.
func (c *Core) Config() CaptureConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Start negotiates a hardware session for cfg and begins capture, invoking
// fn per captured buffer on the real-time thread. Fails with AlreadyRunning
// when a session is active.
func (c *Core) Start(cfg CaptureConfig, fn FrameFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		return audioerr.New(audioerr.KindAlreadyRunning, "capture already running")
	}

	session, negotiated, err := Negotiate(c.host, cfg, c.log)
	if err != nil {
		return err
	}

	c.config = negotiated
	if negotiated.Channels == 2 {
		if need := negotiated.BufferSize * 2; cap(c.interleave) < need {
			c.interleave = make([]float32, need)
		} else {
			c.interleave = c.interleave[:negotiated.BufferSize*2]
		}
	}

	c.callback.Store(&fn)
	session.InstallHandler(c.onHardwareBuffer)

	if err := session.Start(); err != nil {
		session.RemoveHandler()
		session.Close()
		c.callback.Store(nil)
		return classifyStartError(err)
	}

	c.session = session
	c.running.Store(true)
	c.log.Info().Str("config", negotiated.String()).Msg("capture started")
	return nil
}

// Stop ends the session. A no-op when already stopped. The running flag is
// flipped before any teardown so the real-time thread observes the stop
// before resources go away.
func (c *Core) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Load() {
		return nil
	}

	c.running.Store(false)
	c.session.RemoveHandler()

	var err error
	if stopErr := c.session.Stop(); stopErr != nil {
		err = audioerr.Wrap(audioerr.KindPlatform, "stop capture session", stopErr)
	}
	c.session.Close()
	c.session = nil
	c.callback.Store(nil)
	c.interleave = nil

	c.log.Info().Msg("capture stopped")
	return err
}

// UpdateCallback swaps the frame callback with a single atomic store. The
// real-time thread observes either the old or the new callback, never a
// partial one. Callable regardless of state; passing nil silences capture.
func (c *Core) UpdateCallback(fn FrameFunc) {
	if fn == nil {
		c.callback.Store(nil)
		return
	}
	c.callback.Store(&fn)
}

// onHardwareBuffer is the real-time trampoline. No allocation, no locks, no
// logging; every abnormal condition is a silent no-op.
func (c *Core) onHardwareBuffer(channels [][]float32, frames int) {
	if !c.running.Load() {
		return
	}
	fnp := c.callback.Load()
	if fnp == nil {
		return
	}
	fn := *fnp

	if len(channels) == 0 || frames <= 0 {
		return
	}

	switch len(channels) {
	case 1:
		if len(channels[0]) < frames {
			return
		}
		fn(channels[0][:frames], frames)
	case 2:
		left, right := channels[0], channels[1]
		if len(left) < frames || len(right) < frames || len(c.interleave) < frames*2 {
			return
		}
		dst := c.interleave
		for i := 0; i < frames; i++ {
			dst[2*i] = left[i]
			dst[2*i+1] = right[i]
		}
		fn(dst[:frames*2], frames)
	default:
		if len(channels[0]) < frames {
			return
		}
		fn(channels[0][:frames], frames)
	}
}

// classifyStartError maps a hardware start failure onto an error kind. The
// portaudio binding exposes no stable error values, so categories are
// derived from the message.
func classifyStartError(err error) error {
	if kind := audioerr.KindOf(err); kind != audioerr.KindUnknown {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "interrupt"), strings.Contains(msg, "unavailable"):
		return audioerr.Wrap(audioerr.KindHardwareUnavailable, "start capture session", err)
	case strings.Contains(msg, "sample rate"), strings.Contains(msg, "channel"), strings.Contains(msg, "format"):
		return audioerr.Wrap(audioerr.KindFormatNotSupported, "start capture session", err)
	default:
		return audioerr.Wrap(audioerr.KindPlatform, "start capture session", err)
	}
}
