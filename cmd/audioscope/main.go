package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cpeters/audioscope/internal/analyzer"
	"github.com/cpeters/audioscope/internal/config"
	"github.com/cpeters/audioscope/internal/hardware"
	"github.com/cpeters/audioscope/internal/logging"
	"github.com/cpeters/audioscope/internal/permissions"
	"github.com/cpeters/audioscope/internal/server"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logging.New("")
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logging.New(cfg.LogLevel)
	log.Info().Str("version", Version).Str("commit", Commit).Msg("audioscope starting")

	// macOS requires explicit microphone approval before capture works
	if err := permissions.EnsureMicrophone(); err != nil {
		log.Fatal().Err(err).Msg("Microphone permission not granted")
	}

	host, err := hardware.NewHost(cfg.Audio.DeviceName, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer host.Close()

	if devices, err := host.ListDevices(); err == nil {
		for _, d := range devices {
			log.Debug().Str("device", d.Name).Bool("default", d.Default).Msg("input device")
		}
	}

	broadcaster := server.NewBroadcaster(log)
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: broadcaster}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("viewer endpoint listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("viewer endpoint failed")
		}
	}()

	a := analyzer.New(host, log)
	a.ConfigureSmoothing(cfg.Analysis.Smoothing, cfg.Analysis.SmoothingFactor)

	var lastLog time.Time
	onData := func(p analyzer.Payload) {
		broadcaster.Broadcast(p)
		if time.Since(lastLog) >= time.Second {
			lastLog = time.Now()
			log.Debug().Float64("rms", p.RMS).Float64("peak", p.Peak).Int("bins", len(p.FrequencyData)).Msg("level")
		}
	}

	opts := analyzer.Options{
		SampleRate:      cfg.Analysis.SampleRate,
		Channels:        cfg.Analysis.Channels,
		BufferSize:      cfg.Analysis.BufferSize,
		FFTSize:         cfg.Analysis.FFTSize,
		DownsampleBins:  cfg.Analysis.DownsampleBins,
		RefreshRateHz:   cfg.Analysis.RefreshRateHz,
		IncludeTimeData: cfg.Analysis.IncludeTimeData,
	}
	if err := a.Start(opts, onData); err != nil {
		log.Fatal().Err(err).Msg("Failed to start analysis")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down...")
	a.Stop()
	broadcaster.Close()
	httpServer.Close()
}
