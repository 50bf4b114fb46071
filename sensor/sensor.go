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
// Package sensor watches a door contact on a GPIO input. The pin is pulled
// up, so an open contact reads high.
package sensor

import (
	"context"
	"fmt"
	"time"

	wiegand "github.com/ZaparooProject/go-wiegand"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const (
	// DefaultSettle is how long the level must stay put after a change
	// before it is reported.
	DefaultSettle = 300 * time.Millisecond
	// DefaultPollInterval is the gap between reads of a steady pin.
	DefaultPollInterval = 10 * time.Millisecond
)

// Config tunes the debounce.
type Config struct {
	Settle       time.Duration
	PollInterval time.Duration
}

// Open resolves name through periph.io and configures it as a pulled-up
// input.
func Open(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: sensor pin not set", wiegand.ErrInvalidPin)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: no GPIO pin named %q for sensor", wiegand.ErrInvalidPin, name)
	}
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("failed to configure sensor pin %s: %w", name, err)
	}
	return pin, nil
}

// Listen polls pin and sends true each time it settles high and false each
// time it settles low. Any change restarts the settle wait, so bounces
// shorter than Settle are never reported. A pin that starts low is not
// reported until it changes. The channel is closed when ctx is done.
func Listen(ctx context.Context, pin gpio.PinIn, cfg Config) <-chan bool {
	settle := cfg.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	states := make(chan bool)
	go func() {
		defer close(states)

		var state, sent bool
		for {
			last := state
			state = pin.Read() == gpio.High

			wait := poll
			if state != last {
				wait = settle
			} else if state != sent {
				select {
				case states <- state:
					sent = state
				case <-ctx.Done():
					return
				}
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
	return states
}
