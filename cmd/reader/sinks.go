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
	"fmt"
	"io"
	"time"

	wiegand "github.com/ZaparooProject/go-wiegand"
	"github.com/ZaparooProject/go-wiegand/feedback"
	"github.com/ZaparooProject/go-wiegand/feedback/beeper"
	"github.com/ZaparooProject/go-wiegand/feedback/metrics"
	"github.com/ZaparooProject/go-wiegand/feedback/mqtt"
	"github.com/ZaparooProject/go-wiegand/internal/config"
	"github.com/ZaparooProject/go-wiegand/sensor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
)

const mqttPublishTimeout = 5 * time.Second

// sinkSet holds the feedback sinks in dispatch order and closes them in
// reverse.
type sinkSet struct {
	metrics *metrics.Sink
	mqtt    *mqtt.Sink
	sinks   []wiegand.Sink
	closers []func() error
}

func (s *sinkSet) add(sink wiegand.Sink, closer func() error) {
	s.sinks = append(s.sinks, sink)
	if closer != nil {
		s.closers = append(s.closers, closer)
	}
}

// Close closes every sink and joins the errors.
func (s *sinkSet) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// buildSinks wires stdout records first so they are written before any slow
// feedback runs. Beeper and MQTT go through an async queue.
func buildSinks(
	ctx context.Context, cfg *config.Config, stdout io.Writer, reg prometheus.Registerer, logger zerolog.Logger,
) (*sinkSet, error) {
	set := &sinkSet{}
	set.add(wiegand.NewRecordWriter(stdout), nil)

	if cfg.Metrics.Addr != "" {
		set.metrics = metrics.New(reg)
		set.add(set.metrics, nil)
	}

	if cfg.Beeper.Enabled() {
		b, err := beeper.New(beeper.Config{
			BeepPin:      cfg.Beeper.Pin,
			LEDPin:       cfg.Beeper.LEDPin,
			Duration:     cfg.Beeper.Duration,
			ErrorPattern: cfg.Beeper.ErrorPattern,
		})
		if err != nil {
			_ = set.Close()
			return nil, fmt.Errorf("failed to set up beeper: %w", err)
		}
		if err := b.Hello(ctx); err != nil {
			logger.Warn().Err(err).Msg("beeper self-test failed")
		}
		addAsync(set, b, 0, logger)
	}

	if cfg.MQTT.Enabled() {
		m, err := mqtt.New(mqtt.Config{
			URL:            cfg.MQTT.URL,
			ClientID:       cfg.MQTT.ClientID,
			Topic:          cfg.MQTT.Topic,
			SensorTopic:    cfg.MQTT.SensorTopic,
			QoS:            cfg.MQTT.QoS,
			PublishTimeout: mqttPublishTimeout,
		}, logger)
		if err != nil {
			_ = set.Close()
			return nil, fmt.Errorf("failed to set up MQTT: %w", err)
		}
		logger.Info().Str("topic", m.Topic()).Msg("publishing badges")
		set.mqtt = m
		addAsync(set, m, mqttPublishTimeout, logger)
		set.closers = append(set.closers, connectInBackground(ctx, m, logger))
	}

	return set, nil
}

type closingSink interface {
	wiegand.Sink
	Name() string
	Close() error
}

func addAsync(set *sinkSet, inner closingSink, timeout time.Duration, logger zerolog.Logger) {
	async := feedback.NewAsync(inner, feedback.DefaultQueueSize, timeout,
		logger.With().Str("sink", inner.Name()).Logger())
	set.add(async, func() error {
		_ = async.Close()
		return inner.Close()
	})
}

// connectInBackground runs the broker connect loop beside capture. The
// returned closer stops the loop; it is registered after the sink so it runs
// before the sink disconnects.
func connectInBackground(ctx context.Context, m *mqtt.Sink, logger zerolog.Logger) func() error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.KeepConnecting(ctx); err != nil {
			logger.Debug().Err(err).Msg("mqtt connect loop stopped")
		}
	}()
	return func() error {
		cancel()
		<-done
		return nil
	}
}

type sensorPublisher interface {
	PublishSensor(ctx context.Context, open bool, at time.Time) error
}

// watchSensor logs every settled door state and publishes it when pub is
// set. It returns when ctx is done.
func watchSensor(
	ctx context.Context, pin gpio.PinIn, settle time.Duration, pub sensorPublisher, logger zerolog.Logger,
) {
	logger = logger.With().Str("component", "sensor").Str("pin", pin.Name()).Logger()
	for open := range sensor.Listen(ctx, pin, sensor.Config{Settle: settle}) {
		logger.Info().Bool("open", open).Msg("door state changed")
		if pub == nil {
			continue
		}
		if err := pub.PublishSensor(ctx, open, time.Now()); err != nil {
			logger.Warn().Err(err).Msg("failed to publish door state")
		}
	}
}
