// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	wiegand "github.com/ZaparooProject/go-wiegand"
	"github.com/ZaparooProject/go-wiegand/detection"
	_ "github.com/ZaparooProject/go-wiegand/detection/gpio"
	_ "github.com/ZaparooProject/go-wiegand/detection/uart"
	"github.com/ZaparooProject/go-wiegand/feedback/metrics"
	"github.com/ZaparooProject/go-wiegand/internal/config"
	"github.com/ZaparooProject/go-wiegand/internal/observability"
	testutil "github.com/ZaparooProject/go-wiegand/internal/testing"
	"github.com/ZaparooProject/go-wiegand/polling"
	"github.com/ZaparooProject/go-wiegand/sensor"
	gpiosource "github.com/ZaparooProject/go-wiegand/transport/gpio"
	uartsource "github.com/ZaparooProject/go-wiegand/transport/uart"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// simBitGap is the pulse period of the simulated reader, close to what
// cheap 26-bit readers emit.
const simBitGap = time.Millisecond

var defaultSimCards = []uint64{0x2A1F40, 0x010203}

type options struct {
	cfg  *config.Config
	list bool
}

// overrides are flag values that replace config file settings when set.
type overrides struct {
	source  string
	d0      string
	d1      string
	port    string
	beeper  string
	sensor  string
	mqtt    string
	metrics string
}

func (o overrides) apply(cfg *config.Config) {
	if o.source != "" {
		cfg.Source.Type = strings.ToLower(o.source)
	}
	if o.d0 != "" {
		cfg.Source.D0 = o.d0
	}
	if o.d1 != "" {
		cfg.Source.D1 = o.d1
	}
	if o.port != "" {
		cfg.Source.Port = o.port
	}
	if o.beeper != "" {
		cfg.Beeper.Pin = o.beeper
	}
	if o.sensor != "" {
		cfg.Sensor.Pin = o.sensor
	}
	if o.mqtt != "" {
		cfg.MQTT.URL = o.mqtt
	}
	if o.metrics != "" {
		cfg.Metrics.Addr = o.metrics
	}
}

// Package-level flag variables
var (
	flagConfigPath string
	flagOverrides  overrides
	flagDebug      bool
	flagList       bool
)

func init() {
	flag.StringVar(&flagConfigPath, "config", "", "YAML config file")
	flag.StringVar(&flagOverrides.source, "source", "", "Edge source: gpio, uart or sim")
	flag.StringVar(&flagOverrides.d0, "d0", "", "GPIO pin wired to DATA0")
	flag.StringVar(&flagOverrides.d1, "d1", "", "GPIO pin wired to DATA1")
	flag.StringVar(&flagOverrides.port, "port", "", "Serial port of a UART Wiegand bridge")
	flag.StringVar(&flagOverrides.beeper, "beeper", "", "GPIO pin driving an active-low beeper")
	flag.StringVar(&flagOverrides.sensor, "sensor", "", "GPIO pin wired to a door contact")
	flag.StringVar(&flagOverrides.mqtt, "mqtt", "", "MQTT broker URL, e.g. mqtt://broker:1883/site")
	flag.StringVar(&flagOverrides.metrics, "metrics", "", "Address for the Prometheus /metrics endpoint")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagList, "list", false, "List candidate edge sources and exit")
}

func parseConfig(path string, o overrides, debug bool) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	o.apply(cfg)
	if debug {
		cfg.Logging.Level = zerolog.LevelDebugValue
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newSource opens the configured edge source. The returned ReopenFunc is nil
// for sources that cannot be reopened.
func newSource(cfg *config.SourceConfig) (wiegand.EdgeSource, polling.ReopenFunc, error) {
	var reopen polling.ReopenFunc
	switch strings.ToLower(cfg.Type) {
	case config.SourceGPIO:
		reopen = func() (wiegand.EdgeSource, error) {
			src, err := gpiosource.New(cfg.D0, cfg.D1)
			if err != nil {
				return nil, fmt.Errorf("failed to create GPIO source on %s/%s: %w", cfg.D0, cfg.D1, err)
			}
			return src, nil
		}
	case config.SourceUART:
		reopen = func() (wiegand.EdgeSource, error) {
			src, err := uartsource.New(cfg.Port)
			if err != nil {
				return nil, fmt.Errorf("failed to create UART source for %s: %w", cfg.Port, err)
			}
			return src, nil
		}
	case config.SourceSim:
		return wiegand.NewMockSource(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}

	src, err := reopen()
	if err != nil {
		return nil, nil, err
	}
	return src, reopen, nil
}

// replaySim plays cards into h as real pulse trains, one every interval,
// until ctx is done.
func replaySim(ctx context.Context, h testutil.EdgeHandler, cards []uint64, interval time.Duration,
	logger zerolog.Logger,
) {
	if len(cards) == 0 {
		cards = defaultSimCards
	}
	reader := testutil.NewVirtualReader(simBitGap, testutil.DefaultJitterConfig())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		card := cards[i%len(cards)]
		bits, err := wiegand.Encode26(card)
		if err != nil {
			logger.Error().Err(err).Uint64("card", card).Msg("cannot encode simulated card")
			return
		}
		if err := reader.Send(ctx, h, bits); err != nil {
			return
		}
		logger.Debug().Uint64("card", card).Msg("simulated card presented")

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runList(ctx context.Context, out io.Writer) error {
	opts := detection.DefaultOptions()
	devices, err := detection.DetectAll(ctx, &opts)
	if errors.Is(err, detection.ErrNoDevicesFound) {
		_, _ = fmt.Fprintln(out, "No edge sources found.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}
	for _, device := range devices {
		_, _ = fmt.Fprintf(out, "%-5s %-20s %-8s %s\n",
			device.Transport, device.Path, device.Confidence, device.Name)
	}
	return nil
}

func run(ctx context.Context, opts *options, stdout io.Writer, logger zerolog.Logger) error {
	if opts.list {
		return runList(ctx, stdout)
	}
	cfg := opts.cfg

	source, reopen, err := newSource(&cfg.Source)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	sinks, err := buildSinks(ctx, cfg, stdout, reg, logger)
	if err != nil {
		_ = source.Close()
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close feedback sinks")
		}
	}()

	sessionConfig := polling.DefaultConfig()
	sessionConfig.IdleThreshold = cfg.Capture.IdleThreshold
	sessionConfig.PollInterval = cfg.Capture.PollInterval
	session := polling.NewSession(source, sessionConfig, sinks.sinks...)
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close session")
		}
	}()

	if reopen != nil {
		session.SetRecoverer(polling.NewDefaultRecoverer(
			reopen, sessionConfig.Recovery.Backoff, sessionConfig.Recovery.MaxAttempts))
	}
	session.SetOnSinkError(func(sink wiegand.Sink, err error) {
		logger.Warn().Err(err).Str("sink", fmt.Sprintf("%T", sink)).Msg("feedback sink failed")
	})
	session.SetOnFrame(func(res wiegand.DecodeResult) {
		logger.Debug().Int("bit_count", res.Frame.BitCount).Bool("ok", res.OK()).Msg("frame")
	})

	if sinks.metrics != nil {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if err := sinks.metrics.WatchCapture(session.Capture()); err != nil {
			return fmt.Errorf("failed to register capture metrics: %w", err)
		}
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg, logger); err != nil {
				logger.Error().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}

	if cfg.Sensor.Enabled() {
		pin, err := sensor.Open(cfg.Sensor.Pin)
		if err != nil {
			return fmt.Errorf("failed to set up door sensor: %w", err)
		}
		var pub sensorPublisher
		if sinks.mqtt != nil {
			pub = sinks.mqtt
		}
		go watchSensor(ctx, pin, cfg.Sensor.Settle, pub, logger)
	}

	if strings.EqualFold(cfg.Source.Type, config.SourceSim) {
		go replaySim(ctx, session.Capture(), cfg.Source.Cards, cfg.Source.Interval, logger)
	}

	logger.Info().
		Str("source", string(source.Type())).
		Dur("idle_threshold", sessionConfig.IdleThreshold).
		Msg("reading Wiegand frames, press Ctrl+C to stop")

	err = session.Start(ctx)
	stats := session.Stats()
	logger.Info().
		Uint64("ok", stats.FramesOK).
		Uint64("wrong_count", stats.FramesWrongCount).
		Uint64("parity", stats.FramesParity).
		Uint64("dropped_edges", stats.DroppedEdges).
		Msg("session finished")
	if err != nil {
		return fmt.Errorf("session failed: %w", err)
	}
	return nil
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := parseConfig(flagConfigPath, flagOverrides, flagDebug)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if flagDebug {
		wiegand.SetDebugEnabled(true)
	}
	level, _ := cfg.Logging.ZerologLevel()
	logger := observability.InitLogger("wiegand-reader", level)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("shutting down gracefully")
		cancel()
	}()

	opts := &options{cfg: cfg, list: flagList}
	if err := run(ctx, opts, os.Stdout, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return 0
		}
		logger.Error().Err(err).Msg("reader stopped")
		return 1
	}
	return 0
}
