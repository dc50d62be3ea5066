// Package hardware implements the capture.Host interface on top of
// PortAudio.
package hardware

import (
	"fmt"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/cpeters/audioscope/internal/audioerr"
	"github.com/cpeters/audioscope/internal/capture"
)

// Host opens PortAudio input sessions on the default (or a named) device.
type Host struct {
	deviceName string
	log        zerolog.Logger
}

// NewHost initializes PortAudio and returns a host bound to the named input
// device, or the default input device when name is empty. Close releases the
// library.
func NewHost(deviceName string, log zerolog.Logger) (*Host, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, audioerr.Wrap(audioerr.KindPlatform, "initialize PortAudio", err)
	}
	return &Host{deviceName: deviceName, log: log}, nil
}

// Close terminates PortAudio. No sessions may be open.
func (h *Host) Close() error {
	return portaudio.Terminate()
}

// Device describes an input device for listing/selection.
type Device struct {
	Name    string
	Default bool
}

// ListDevices enumerates input-capable devices.
func (h *Host) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, audioerr.Wrap(audioerr.KindPlatform, "enumerate devices", err)
	}
	defaultDevice, _ := portaudio.DefaultInputDevice()

	result := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{Name: d.Name, Default: d == defaultDevice})
		}
	}
	return result, nil
}

func (h *Host) inputDevice() (*portaudio.DeviceInfo, error) {
	if h.deviceName == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, audioerr.Wrap(audioerr.KindHardwareUnavailable, "no default input device", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, audioerr.Wrap(audioerr.KindPlatform, "enumerate devices", err)
	}
	for _, d := range devices {
		if d.Name == h.deviceName && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, audioerr.Newf(audioerr.KindHardwareUnavailable, "input device not found: %s", h.deviceName)
}

// Limits reports the selected device's native capabilities.
func (h *Host) Limits() (capture.Limits, error) {
	device, err := h.inputDevice()
	if err != nil {
		return capture.Limits{}, err
	}
	return capture.Limits{
		MaxChannels:      device.MaxInputChannels,
		NativeSampleRate: device.DefaultSampleRate,
	}, nil
}

// Open opens a non-interleaved float32 input stream for the exact config.
// The stream is created immediately so an unsupported format fails here, at
// probe time, rather than at Start.
func (h *Host) Open(cfg capture.CaptureConfig) (capture.Session, error) {
	device, err := h.inputDevice()
	if err != nil {
		return nil, err
	}

	s := &session{}
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: cfg.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.BufferSize,
	}, s.callback)
	if err != nil {
		return nil, audioerr.Wrap(audioerr.KindFormatNotSupported,
			fmt.Sprintf("open stream for %s", cfg), err)
	}

	s.stream = stream
	h.log.Debug().Str("device", device.Name).Str("config", cfg.String()).Msg("opened capture stream")
	return s, nil
}

// session adapts one portaudio.Stream to capture.Session. The handler is an
// atomic pointer read by the PortAudio callback thread.
type session struct {
	stream  *portaudio.Stream
	handler atomic.Pointer[capture.Handler]
}

func (s *session) InstallHandler(h capture.Handler) {
	s.handler.Store(&h)
}

func (s *session) RemoveHandler() {
	s.handler.Store(nil)
}

func (s *session) Start() error {
	return s.stream.Start()
}

func (s *session) Stop() error {
	return s.stream.Stop()
}

func (s *session) Close() error {
	return s.stream.Close()
}

// callback runs on the PortAudio real-time thread. With a [][]float32
// parameter PortAudio delivers non-interleaved per-channel slices.
func (s *session) callback(in [][]float32) {
	hp := s.handler.Load()
	if hp == nil {
		return
	}
	frames := 0
	if len(in) > 0 {
		frames = len(in[0])
	}
	(*hp)(in, frames)
}
