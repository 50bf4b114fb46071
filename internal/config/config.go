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

// Package config loads the reader daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Source types accepted in source.type.
const (
	SourceGPIO = "gpio"
	SourceUART = "uart"
	SourceSim  = "sim"
)

// Config represents the complete daemon configuration.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Capture CaptureConfig `yaml:"capture"`
	Beeper  BeeperConfig  `yaml:"beeper"`
	Sensor  SensorConfig  `yaml:"sensor"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// SourceConfig selects where edges come from.
type SourceConfig struct {
	Type string `yaml:"type"`
	// D0 and D1 are periph.io pin names for the gpio source.
	D0 string `yaml:"d0"`
	D1 string `yaml:"d1"`
	// Port is the serial device for the uart source.
	Port string `yaml:"port"`
	// Cards are replayed by the sim source, one per Interval.
	Cards    []uint64      `yaml:"cards"`
	Interval time.Duration `yaml:"interval"`
}

// CaptureConfig contains frame timing parameters.
type CaptureConfig struct {
	IdleThreshold time.Duration `yaml:"idle_threshold"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// BeeperConfig drives the audible feedback pins. Empty Pin disables it.
type BeeperConfig struct {
	Pin          string        `yaml:"pin"`
	LEDPin       string        `yaml:"led_pin"`
	Duration     time.Duration `yaml:"duration"`
	ErrorPattern bool          `yaml:"error_pattern"`
}

// Enabled reports whether a beeper pin is configured.
func (b *BeeperConfig) Enabled() bool {
	return b.Pin != ""
}

// SensorConfig watches a door contact. Empty Pin disables it.
type SensorConfig struct {
	Pin    string        `yaml:"pin"`
	Settle time.Duration `yaml:"settle"`
}

// Enabled reports whether a sensor pin is configured.
func (s *SensorConfig) Enabled() bool {
	return s.Pin != ""
}

// MQTTConfig configures the badge publisher. Empty URL disables it.
type MQTTConfig struct {
	URL         string `yaml:"url"`
	Topic       string `yaml:"topic"`
	SensorTopic string `yaml:"sensor_topic"`
	ClientID    string `yaml:"client_id"`
	QoS         byte   `yaml:"qos"`
}

// Enabled reports whether a broker is configured.
func (m *MQTTConfig) Enabled() bool {
	return m.URL != ""
}

// MetricsConfig exposes Prometheus metrics. Empty Addr disables the endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Type:     SourceGPIO,
			D0:       "GPIO17",
			D1:       "GPIO18",
			Interval: 2 * time.Second,
		},
		Capture: CaptureConfig{
			IdleThreshold: 3 * time.Millisecond,
			PollInterval:  5 * time.Millisecond,
		},
		Beeper: BeeperConfig{
			Duration: 200 * time.Millisecond,
		},
		Sensor: SensorConfig{
			Settle: 300 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			Topic:       "wiegand/badge",
			SensorTopic: "wiegand/sensor",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads and parses the configuration file. Missing keys keep the
// values from Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source config: %w", err)
	}
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}
	if err := c.Beeper.Validate(); err != nil {
		return fmt.Errorf("beeper config: %w", err)
	}
	if err := c.Sensor.Validate(); err != nil {
		return fmt.Errorf("sensor config: %w", err)
	}
	if err := c.checkSensorPin(); err != nil {
		return fmt.Errorf("sensor config: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates the source section.
func (s *SourceConfig) Validate() error {
	switch strings.ToLower(s.Type) {
	case SourceGPIO:
		if s.D0 == "" || s.D1 == "" {
			return errors.New("gpio source needs both d0 and d1")
		}
		if strings.EqualFold(s.D0, s.D1) {
			return fmt.Errorf("d0 and d1 must be different pins, both are %s", s.D0)
		}
	case SourceUART:
		if s.Port == "" {
			return errors.New("uart source needs a port")
		}
	case SourceSim:
		if s.Interval <= 0 {
			return fmt.Errorf("interval must be positive, got %s", s.Interval)
		}
		for _, card := range s.Cards {
			if card >= 1<<24 {
				return fmt.Errorf("card %d does not fit in 24 bits", card)
			}
		}
	default:
		return fmt.Errorf("unknown source type %q", s.Type)
	}
	return nil
}

// Validate validates capture timing.
func (c *CaptureConfig) Validate() error {
	if c.IdleThreshold <= 0 {
		return fmt.Errorf("idle_threshold must be positive, got %s", c.IdleThreshold)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	return nil
}

// Validate validates the beeper section.
func (b *BeeperConfig) Validate() error {
	if !b.Enabled() {
		return nil
	}
	if b.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", b.Duration)
	}
	if b.LEDPin != "" && strings.EqualFold(b.LEDPin, b.Pin) {
		return errors.New("led_pin must differ from pin")
	}
	return nil
}

// Validate validates the sensor section.
func (s *SensorConfig) Validate() error {
	if !s.Enabled() {
		return nil
	}
	if s.Settle <= 0 {
		return fmt.Errorf("settle must be positive, got %s", s.Settle)
	}
	return nil
}

func (c *Config) checkSensorPin() error {
	if !c.Sensor.Enabled() {
		return nil
	}
	taken := []string{c.Beeper.Pin, c.Beeper.LEDPin}
	if strings.EqualFold(c.Source.Type, SourceGPIO) {
		taken = append(taken, c.Source.D0, c.Source.D1)
	}
	for _, pin := range taken {
		if pin != "" && strings.EqualFold(pin, c.Sensor.Pin) {
			return fmt.Errorf("pin %s is already in use", c.Sensor.Pin)
		}
	}
	return nil
}

// Validate validates the MQTT section.
func (m *MQTTConfig) Validate() error {
	if !m.Enabled() {
		return nil
	}
	if m.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", m.QoS)
	}
	if m.Topic == "" {
		return errors.New("topic cannot be empty")
	}
	if m.SensorTopic == "" {
		return errors.New("sensor_topic cannot be empty")
	}
	return nil
}

// Validate validates the logging section.
func (l *LoggingConfig) Validate() error {
	if _, err := l.ZerologLevel(); err != nil {
		return err
	}
	return nil
}

// ZerologLevel parses Level. An empty level means info.
func (l *LoggingConfig) ZerologLevel() (zerolog.Level, error) {
	if l.Level == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(l.Level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid level %q: %w", l.Level, err)
	}
	return level, nil
}
