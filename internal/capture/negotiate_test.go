package capture

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cpeters/audioscope/internal/audioerr"
)

// probeHost accepts exactly the configs in accept and records every probe.
type probeHost struct {
	accept map[string]bool
	limits Limits
	probes []CaptureConfig
}

func newProbeHost(accept ...CaptureConfig) *probeHost {
	h := &probeHost{
		accept: make(map[string]bool),
		limits: Limits{MaxChannels: 2, NativeSampleRate: 48000},
	}
	for _, c := range accept {
		h.accept[c.Key()] = true
	}
	return h
}

func (h *probeHost) Open(cfg CaptureConfig) (Session, error) {
	h.probes = append(h.probes, cfg)
	if h.accept[cfg.Key()] {
		return &nullSession{}, nil
	}
	return nil, errors.New("device rejected config")
}

func (h *probeHost) Limits() (Limits, error) {
	return h.limits, nil
}

type nullSession struct {
	started bool
}

func (s *nullSession) InstallHandler(Handler) {}
func (s *nullSession) RemoveHandler()         {}
func (s *nullSession) Start() error           { s.started = true; return nil }
func (s *nullSession) Stop() error            { s.started = false; return nil }
func (s *nullSession) Close() error           { return nil }

func TestNegotiateExactConfigSingleProbe(t *testing.T) {
	want := CaptureConfig{SampleRate: 48000, Channels: 1, BufferSize: 1024}
	host := newProbeHost(want)

	session, got, err := Negotiate(host, want, zerolog.Nop())
	if err != nil {
		t.Fatalf("negotiate failed: %v", err)
	}
	if session == nil {
		t.Fatal("expected an open session")
	}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if len(host.probes) != 1 {
		t.Fatalf("exact success must probe exactly once, probed %d times", len(host.probes))
	}
}

func TestNegotiateFallsBackToSmallerBuffer(t *testing.T) {
	requested := CaptureConfig{SampleRate: 48000, Channels: 1, BufferSize: 4096}
	accepted := CaptureConfig{SampleRate: 48000, Channels: 1, BufferSize: 512}
	host := newProbeHost(accepted)

	_, got, err := Negotiate(host, requested, zerolog.Nop())
	if err != nil {
		t.Fatalf("negotiate failed: %v", err)
	}
	if got != accepted {
		t.Fatalf("expected fallback to %v, got %v", accepted, got)
	}
	// Buffer-size fallbacks precede sample-rate fallbacks: 1024 is tried
	// before 512, nothing at another sample rate before either.
	if host.probes[1].BufferSize != 1024 || host.probes[2].BufferSize != 512 {
		t.Fatalf("unexpected probe order: %v", host.probes)
	}
}

func TestNegotiateStereoFallsBackToMono(t *testing.T) {
	requested := CaptureConfig{SampleRate: 44100, Channels: 2, BufferSize: 1024}
	accepted := CaptureConfig{SampleRate: 48000, Channels: 1, BufferSize: 1024}
	host := newProbeHost(accepted)

	_, got, err := Negotiate(host, requested, zerolog.Nop())
	if err != nil {
		t.Fatalf("negotiate failed: %v", err)
	}
	if got != accepted {
		t.Fatalf("expected mono fallback %v, got %v", accepted, got)
	}
}

func TestNegotiateExhaustedAggregatesError(t *testing.T) {
	host := newProbeHost() // rejects everything
	requested := CaptureConfig{SampleRate: 48000, Channels: 1, BufferSize: 1024}

	_, _, err := Negotiate(host, requested, zerolog.Nop())
	if err == nil {
		t.Fatal("expected an error when every candidate fails")
	}
	if audioerr.KindOf(err) != audioerr.KindHardwareUnavailable {
		t.Fatalf("expected hardware_unavailable, got %v", audioerr.KindOf(err))
	}
	var ae *audioerr.Error
	if !errors.As(err, &ae) {
		t.Fatal("expected an *audioerr.Error")
	}
	if ae.Cause == nil {
		t.Fatal("aggregated error must reference the original failure")
	}
}

func TestNegotiateRejectsNonPositiveBuffer(t *testing.T) {
	host := newProbeHost()
	_, _, err := Negotiate(host, CaptureConfig{SampleRate: 48000, Channels: 1, BufferSize: 0}, zerolog.Nop())
	if audioerr.KindOf(err) != audioerr.KindInvalidConfig {
		t.Fatalf("expected invalid_config, got %v", err)
	}
	if len(host.probes) != 0 {
		t.Fatal("invalid request must not touch hardware")
	}
}

func TestFallbackConfigsNoDuplicates(t *testing.T) {
	cases := []CaptureConfig{
		{SampleRate: 48000, Channels: 1, BufferSize: 1024},
		{SampleRate: 44100, Channels: 2, BufferSize: 512},
		{SampleRate: 8000, Channels: 2, BufferSize: 4096},
		{SampleRate: 22050, Channels: 1, BufferSize: 256},
	}
	for _, requested := range cases {
		seen := map[string]bool{}
		for _, c := range fallbackConfigs(requested) {
			if c == requested {
				t.Fatalf("fallback list for %v contains the original request", requested)
			}
			if seen[c.Key()] {
				t.Fatalf("duplicate fallback %v for request %v", c, requested)
			}
			seen[c.Key()] = true
		}
	}
}

func TestIsLikelySupported(t *testing.T) {
	cases := []struct {
		cfg  CaptureConfig
		want bool
	}{
		{CaptureConfig{48000, 1, 1024}, true},
		{CaptureConfig{48000, 2, 1024}, true},
		{CaptureConfig{48000, 1, 1000}, false}, // not a power of two
		{CaptureConfig{48000, 1, 32}, false},   // below minimum
		{CaptureConfig{48000, 1, 16384}, false},
		{CaptureConfig{48000, 3, 1024}, false},
		{CaptureConfig{48000, 0, 1024}, false},
		{CaptureConfig{12345, 1, 1024}, false},
		{CaptureConfig{44100, 2, 64}, true},
		{CaptureConfig{8000, 1, 8192}, true},
	}
	for _, tc := range cases {
		if got := IsLikelySupported(tc.cfg); got != tc.want {
			t.Errorf("IsLikelySupported(%v) = %v, want %v", tc.cfg, got, tc.want)
		}
		// Pure function: repeated calls agree.
		if got := IsLikelySupported(tc.cfg); got != tc.want {
			t.Errorf("IsLikelySupported(%v) not stable", tc.cfg)
		}
	}
}

func TestFormatCompatible(t *testing.T) {
	lim := Limits{MaxChannels: 1, NativeSampleRate: 48000}

	if formatCompatible(CaptureConfig{SampleRate: 48000, Channels: 2, BufferSize: 1024}, lim) {
		t.Error("should reject more channels than the device exposes")
	}
	if formatCompatible(CaptureConfig{SampleRate: 8000, Channels: 1, BufferSize: 1024}, lim) {
		t.Error("should reject rates below half the native rate")
	}
	if formatCompatible(CaptureConfig{SampleRate: 96001, Channels: 1, BufferSize: 1024}, lim) {
		t.Error("should reject rates above twice the native rate")
	}
	if !formatCompatible(CaptureConfig{SampleRate: 44100, Channels: 1, BufferSize: 1024}, lim) {
		t.Error("should accept a rate within the 0.5x..2x window")
	}
	// Unknown limits disable the check.
	if !formatCompatible(CaptureConfig{SampleRate: 8000, Channels: 2, BufferSize: 1024}, Limits{}) {
		t.Error("zero limits must not reject anything")
	}
}
