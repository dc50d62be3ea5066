package capture

import (
	"github.com/rs/zerolog"

	"github.com/cpeters/audioscope/internal/audioerr"
)

// Preference lists tried during fallback, best first.
var (
	preferredBufferSizes = []int{1024, 512, 256, 2048, 4096}
	preferredSampleRates = []int{48000, 44100, 22050, 16000, 8000}
)

// knownGoodRates is the set accepted by IsLikelySupported.
var knownGoodRates = map[int]bool{
	8000:  true,
	11025: true,
	16000: true,
	22050: true,
	32000: true,
	44100: true,
	48000: true,
	96000: true,
}

// IsLikelySupported reports whether a config is worth probing at all. Pure
// predicate: no hardware is touched.
func IsLikelySupported(cfg CaptureConfig) bool {
	if !knownGoodRates[cfg.SampleRate] {
		return false
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return false
	}
	if cfg.BufferSize < 64 || cfg.BufferSize > 8192 {
		return false
	}
	return isPowerOfTwo(cfg.BufferSize)
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// formatCompatible rejects candidates the device cannot plausibly serve:
// more channels than it exposes, or a sample rate further than 2x from its
// native rate in either direction.
func formatCompatible(cfg CaptureConfig, lim Limits) bool {
	if lim.MaxChannels > 0 && cfg.Channels > lim.MaxChannels {
		return false
	}
	if lim.NativeSampleRate > 0 {
		ratio := float64(cfg.SampleRate) / lim.NativeSampleRate
		if ratio > 2.0 || ratio < 0.5 {
			return false
		}
	}
	return true
}

// fallbackConfigs builds the ordered candidate list tried after the exact
// request fails. Precedence: alternate buffer sizes at the requested
// rate/channels, then alternate sample rates at the requested buffer size,
// then mono variants of those rates when the request was stereo. The result
// is de-duplicated preserving first occurrence and never contains the
// original request.
func fallbackConfigs(requested CaptureConfig) []CaptureConfig {
	candidates := make([]CaptureConfig, 0, len(preferredBufferSizes)+2*len(preferredSampleRates))

	for _, size := range preferredBufferSizes {
		if size == requested.BufferSize {
			continue
		}
		candidates = append(candidates, CaptureConfig{
			SampleRate: requested.SampleRate,
			Channels:   requested.Channels,
			BufferSize: size,
		})
	}

	for _, rate := range preferredSampleRates {
		if rate == requested.SampleRate {
			continue
		}
		candidates = append(candidates, CaptureConfig{
			SampleRate: rate,
			Channels:   requested.Channels,
			BufferSize: requested.BufferSize,
		})
	}

	if requested.Channels == 2 {
		for _, rate := range preferredSampleRates {
			candidates = append(candidates, CaptureConfig{
				SampleRate: rate,
				Channels:   1,
				BufferSize: requested.BufferSize,
			})
		}
	}

	seen := map[string]bool{requested.Key(): true}
	deduped := candidates[:0]
	for _, c := range candidates {
		if seen[c.Key()] {
			continue
		}
		seen[c.Key()] = true
		deduped = append(deduped, c)
	}
	return deduped
}

// Negotiate opens a session for the requested config, degrading through the
// fallback list when the hardware refuses it. The returned session is open
// (not started); the returned config is the one the hardware accepted.
func Negotiate(host Host, requested CaptureConfig, log zerolog.Logger) (Session, CaptureConfig, error) {
	if requested.BufferSize <= 0 {
		return nil, CaptureConfig{}, audioerr.Newf(audioerr.KindInvalidConfig,
			"buffer size must be positive, got %d", requested.BufferSize)
	}

	lim, limErr := host.Limits()
	if limErr != nil {
		// Limits are advisory; without them every candidate is probed.
		lim = Limits{}
		log.Debug().Err(limErr).Msg("device limits unavailable, probing all candidates")
	}

	session, firstErr := tryOpen(host, requested, lim)
	if firstErr == nil {
		return session, requested, nil
	}
	log.Debug().Str("config", requested.String()).Err(firstErr).Msg("requested capture config rejected, trying fallbacks")

	for _, candidate := range fallbackConfigs(requested) {
		s, err := tryOpen(host, candidate, lim)
		if err != nil {
			continue
		}
		log.Info().Str("requested", requested.String()).Str("negotiated", candidate.String()).Msg("capture config fell back")
		return s, candidate, nil
	}

	return nil, CaptureConfig{}, audioerr.Wrap(audioerr.KindHardwareUnavailable,
		"no capture configuration accepted by hardware (original failure: "+firstErr.Error()+")", firstErr)
}

func tryOpen(host Host, cfg CaptureConfig, lim Limits) (Session, error) {
	if !IsLikelySupported(cfg) {
		return nil, audioerr.Newf(audioerr.KindInvalidConfig, "config %s outside supported envelope", cfg)
	}
	if !formatCompatible(cfg, lim) {
		return nil, audioerr.Newf(audioerr.KindFormatNotSupported, "config %s incompatible with device", cfg)
	}
	return host.Open(cfg)
}
