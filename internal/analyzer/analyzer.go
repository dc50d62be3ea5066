// Package analyzer orchestrates one capture core, one spectral engine and
// one level processor into a rate-limited stream of measurements delivered
// to a consumer callback off the real-time thread.
package analyzer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cpeters/audioscope/internal/audioerr"
	"github.com/cpeters/audioscope/internal/capture"
	"github.com/cpeters/audioscope/internal/dsp"
)

// Options fixes one analysis session. Changing any field requires
// stop + restart.
type Options struct {
	SampleRate      int
	Channels        int
	BufferSize      int
	FFTSize         int
	DownsampleBins  int
	RefreshRateHz   int
	IncludeTimeData bool
}

// SpectralProcessor is the spectral capability the analyzer drives. The
// production implementation is dsp.SpectralEngine.
type SpectralProcessor interface {
	Configure(fftSize, downsampleBins int)
	SetEnabled(enabled bool)
	FFTSize() int
	ProcessInto(samples []float32, frames int, out []float64) int
	Reset()
}

// LevelMeter is the level-metering capability the analyzer drives. The
// production implementation is dsp.LevelProcessor.
type LevelMeter interface {
	Configure(smoothing bool, factor float64)
	Process(samples []float32, count int) dsp.LevelData
	Reset()
}

// DataFunc receives emission payloads on a background goroutine. It may
// allocate and block; a slow consumer only costs dropped emissions, never
// stalled capture.
type DataFunc func(Payload)

// emission is the value handed from the real-time path to the emission
// goroutine. buf points at ping-pong buffer idx, which stays reserved until
// the emission goroutine has copied it into a payload.
type emission struct {
	idx   int
	buf   []float64
	count int
	rms   float64
	peak  float64
}

const (
	minBufferSize  = 256
	minScratchBins = 512
	minRefreshHz   = 1
	maxRefreshHz   = 120
	emitSlack      = 2 // ping-pong depth
)

// Analyzer is the consumer-facing entry point. Start/Stop serialize on an
// internal lock; the frame path runs on the real-time thread and touches
// only preallocated state.
type Analyzer struct {
	core     *capture.Core
	spectral SpectralProcessor
	level    LevelMeter
	log      zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	opts    Options

	// Real-time scratch, grown (never shrunk) across sessions.
	monoMix     []float32
	freqScratch []float64
	emitBufs    [2][]float64
	emitBusy    [2]atomic.Bool // buffer reserved by an in-flight emission

	emitIndex       int
	refreshInterval time.Duration
	lastEmit        time.Time

	emitCh chan emission
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a stopped analyzer capturing from host.
func New(host capture.Host, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		core:     capture.NewCore(host, log),
		spectral: dsp.NewSpectralEngine(),
		level:    dsp.NewLevelProcessor(),
		log:      log,
		now:      time.Now,
	}
}

// ConfigureSmoothing sets level smoothing for subsequent sessions.
func (a *Analyzer) ConfigureSmoothing(enabled bool, factor float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.level.Configure(enabled, factor)
}

// Options returns the options of the current or last session.
func (a *Analyzer) Options() Options {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opts
}

// IsRunning reports whether an analysis session is active.
func (a *Analyzer) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Start begins an analysis session, invoking onData per emission until Stop.
// Fails with AlreadyRunning when a session is active; negotiation and
// hardware failures propagate and leave the analyzer stopped.
func (a *Analyzer) Start(opts Options, onData DataFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return audioerr.New(audioerr.KindAlreadyRunning, "analyzer already running")
	}
	if onData == nil {
		return audioerr.New(audioerr.KindInvalidConfig, "data callback required")
	}

	bufferSize := opts.BufferSize
	if bufferSize < minBufferSize {
		bufferSize = minBufferSize
	}

	a.spectral.Configure(opts.FFTSize, opts.DownsampleBins)
	a.spectral.SetEnabled(true)
	a.level.Reset()

	maxFrames := bufferSize
	if n := a.spectral.FFTSize(); n > maxFrames {
		maxFrames = n
	}
	bins := minScratchBins
	if opts.DownsampleBins > bins {
		bins = opts.DownsampleBins
	}
	a.monoMix = growF32(a.monoMix, maxFrames)
	a.freqScratch = growF64(a.freqScratch, bins)
	a.emitBufs[0] = growF64(a.emitBufs[0], bins)
	a.emitBufs[1] = growF64(a.emitBufs[1], bins)

	refresh := opts.RefreshRateHz
	if refresh < minRefreshHz {
		refresh = minRefreshHz
	} else if refresh > maxRefreshHz {
		refresh = maxRefreshHz
	}
	a.refreshInterval = time.Duration(int64(time.Second) / int64(refresh))
	a.lastEmit = time.Time{}
	a.emitIndex = 0
	a.emitBusy[0].Store(false)
	a.emitBusy[1].Store(false)
	a.opts = opts

	a.emitCh = make(chan emission, emitSlack)
	a.done = make(chan struct{})

	cfg := capture.CaptureConfig{
		SampleRate: opts.SampleRate,
		Channels:   opts.Channels,
		BufferSize: bufferSize,
	}
	if err := a.core.Start(cfg, a.onFrames); err != nil {
		a.spectral.SetEnabled(false)
		return err
	}

	a.wg.Add(1)
	go a.emitLoop(a.emitCh, a.done, onData, a.core.Config().SampleRate, a.spectral.FFTSize(), opts.IncludeTimeData)

	a.running = true
	a.log.Info().
		Int("fft_size", a.spectral.FFTSize()).
		Int("bins", opts.DownsampleBins).
		Int("refresh_hz", refresh).
		Str("config", a.core.Config().String()).
		Msg("analysis started")
	return nil
}

// Stop ends the session. A no-op when not running. The capture core's stop
// error is logged and swallowed: stop is best-effort.
func (a *Analyzer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}

	if err := a.core.Stop(); err != nil {
		a.log.Warn().Err(err).Msg("capture stop failed")
	}

	close(a.done)
	a.wg.Wait()
	// emitCh stays assigned so a straggling hardware callback finds a valid
	// (abandoned) channel; Start replaces both per session.

	a.spectral.Reset()
	a.spectral.SetEnabled(false)
	a.running = false
	a.log.Info().Msg("analysis stopped")
}

// onFrames is the real-time processing routine. samples holds frames mono
// samples or 2*frames interleaved stereo samples, distinguished by length.
// No allocation, no locks, no logging.
func (a *Analyzer) onFrames(samples []float32, frames int) {
	if a.monoMix == nil || a.freqScratch == nil || frames <= 0 {
		return
	}

	mono := samples
	if len(samples) >= frames*2 {
		if len(a.monoMix) < frames {
			return
		}
		for i := 0; i < frames; i++ {
			a.monoMix[i] = (samples[2*i] + samples[2*i+1]) * 0.5
		}
		mono = a.monoMix[:frames]
	}

	level := a.level.Process(mono, frames)

	written := a.spectral.ProcessInto(mono, frames, a.freqScratch)
	if written == 0 {
		// No spectrum, no emission; the level result rides along and is
		// dropped with it.
		return
	}

	now := a.now()
	if !a.lastEmit.IsZero() && now.Sub(a.lastEmit) < a.refreshInterval {
		return
	}
	a.lastEmit = now

	// Only a buffer no in-flight emission holds may be written. With a slow
	// consumer both snapshots can still be reserved; then this result is
	// dropped before any copy.
	idx := a.emitIndex
	if a.emitBusy[idx].Load() {
		idx ^= 1
		if a.emitBusy[idx].Load() {
			return
		}
	}
	a.emitBusy[idx].Store(true)
	buf := a.emitBufs[idx]
	copy(buf[:written], a.freqScratch[:written])
	a.emitIndex = idx ^ 1

	select {
	case a.emitCh <- emission{idx: idx, buf: buf, count: written, rms: level.RMS, peak: level.Peak}:
	default:
		// Consumer slower than the ping-pong slack: drop, never queue.
		a.emitBusy[idx].Store(false)
	}
}

// emitLoop formats payloads and delivers them to the consumer. Runs off the
// real-time thread; allocation here is fine.
func (a *Analyzer) emitLoop(ch <-chan emission, done <-chan struct{}, onData DataFunc, sampleRate, fftSize int, includeTimeData bool) {
	defer a.wg.Done()
	for {
		select {
		case <-done:
			return
		case em := <-ch:
			p := buildPayload(em, sampleRate, fftSize, includeTimeData)
			a.emitBusy[em.idx].Store(false) // payload copied, buffer reusable
			onData(p)
		}
	}
}

func growF32(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}

func growF64(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}
