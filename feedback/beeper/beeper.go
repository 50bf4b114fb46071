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

// Package beeper drives a badge reader's beeper and LED inputs. Both are
// active-low: pulling the pin low sounds the beeper or lights the LED.
package beeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	wiegand "github.com/ZaparooProject/go-wiegand"
	"github.com/ZaparooProject/go-wiegand/feedback"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const (
	// DefaultBeepDuration is how long the beeper sounds for each frame.
	DefaultBeepDuration = 200 * time.Millisecond

	errorBeeps     = 3
	helloToggles   = 5
	helloToggleGap = 20 * time.Millisecond
)

// Config selects the pins and the feedback pattern.
type Config struct {
	BeepPin  string
	LEDPin   string
	Duration time.Duration
	// ErrorPattern sounds three short beeps for rejected frames instead of
	// one long beep.
	ErrorPattern bool
}

// Sink pulses the beeper (and LED, if present) once per decoded frame.
type Sink struct {
	beep     gpio.PinIO
	led      gpio.PinIO
	duration time.Duration
	errBeeps bool
	mu       sync.Mutex
	closed   bool
}

// New resolves the configured pins through periph.io.
func New(cfg Config) (*Sink, error) {
	if cfg.BeepPin == "" {
		return nil, fmt.Errorf("%w: beeper pin not set", wiegand.ErrInvalidPin)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	beep := gpioreg.ByName(cfg.BeepPin)
	if beep == nil {
		return nil, fmt.Errorf("%w: no GPIO pin named %q for beeper", wiegand.ErrInvalidPin, cfg.BeepPin)
	}
	var led gpio.PinIO
	if cfg.LEDPin != "" {
		if led = gpioreg.ByName(cfg.LEDPin); led == nil {
			return nil, fmt.Errorf("%w: no GPIO pin named %q for LED", wiegand.ErrInvalidPin, cfg.LEDPin)
		}
	}
	return NewWithPins(beep, led, cfg)
}

// NewWithPins drives already resolved pins. led may be nil. Both pins are
// driven high (off) before returning.
func NewWithPins(beep, led gpio.PinIO, cfg Config) (*Sink, error) {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultBeepDuration
	}
	s := &Sink{
		beep:     beep,
		led:      led,
		duration: cfg.Duration,
		errBeeps: cfg.ErrorPattern,
	}
	if err := s.set(gpio.High); err != nil {
		return nil, fmt.Errorf("failed to drive feedback pins: %w", err)
	}
	return s, nil
}

// Name identifies the sink in logs.
func (*Sink) Name() string {
	return "beeper"
}

func (s *Sink) pins() []gpio.PinIO {
	if s.led == nil {
		return []gpio.PinIO{s.beep}
	}
	return []gpio.PinIO{s.beep, s.led}
}

func (s *Sink) set(level gpio.Level) error {
	for _, pin := range s.pins() {
		if err := pin.Out(level); err != nil {
			return fmt.Errorf("%s: %w", pin.Name(), err)
		}
	}
	return nil
}

// pulse holds the pins low for d. The pins are released even when ctx ends
// early.
func (s *Sink) pulse(ctx context.Context, d time.Duration) error {
	if err := s.set(gpio.Low); err != nil {
		return err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	var waitErr error
	select {
	case <-timer.C:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}
	if err := s.set(gpio.High); err != nil {
		return err
	}
	return waitErr
}

// Consume beeps once per frame. With ErrorPattern set, rejected frames get
// three short beeps.
func (s *Sink) Consume(ctx context.Context, res wiegand.DecodeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return feedback.ErrClosed
	}

	if res.OK() || !s.errBeeps {
		return s.pulse(ctx, s.duration)
	}

	short := s.duration / 4
	for i := range errorBeeps {
		if err := s.pulse(ctx, short); err != nil {
			return err
		}
		if i < errorBeeps-1 {
			if err := sleepCtx(ctx, short); err != nil {
				return err
			}
		}
	}
	return nil
}

// Hello blinks the beeper and LED a few times to show the reader is alive,
// then leaves both off.
func (s *Sink) Hello(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return feedback.ErrClosed
	}

	level := gpio.High
	for range helloToggles {
		level = !level
		if err := s.set(level); err != nil {
			return err
		}
		if err := sleepCtx(ctx, helloToggleGap); err != nil {
			_ = s.set(gpio.High)
			return err
		}
	}
	return s.set(gpio.High)
}

// Close turns both outputs off and releases the pins.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.set(gpio.High)
	for _, pin := range s.pins() {
		if haltErr := pin.Halt(); haltErr != nil {
			wiegand.Debugf("beeper: halt %s: %v", pin.Name(), haltErr)
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
