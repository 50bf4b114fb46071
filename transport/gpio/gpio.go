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

// Package gpio provides an edge source that watches the Wiegand D0 and D1
// lines on two host GPIO pins through periph.io.
package gpio

import (
	"context"
	"fmt"
	"sync"

	wiegand "github.com/ZaparooProject/go-wiegand"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Source implements wiegand.EdgeSource over two GPIO input pins. Both lines
// idle high and pulse low for each bit, so the pins are pulled up and armed
// for falling edges.
type Source struct {
	d0      gpio.PinIO
	d1      gpio.PinIO
	done    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.Mutex
	started bool
	closed  bool
}

// New opens the named pins (for example "GPIO17" and "GPIO27") after
// initializing the periph host drivers.
func New(d0Name, d1Name string) (*Source, error) {
	if d0Name == "" || d1Name == "" || d0Name == d1Name {
		return nil, fmt.Errorf("%w: D0 %q and D1 %q must be two distinct pins",
			wiegand.ErrInvalidPin, d0Name, d1Name)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	d0 := gpioreg.ByName(d0Name)
	if d0 == nil {
		return nil, fmt.Errorf("%w: no GPIO pin named %q for D0", wiegand.ErrInvalidPin, d0Name)
	}
	d1 := gpioreg.ByName(d1Name)
	if d1 == nil {
		return nil, fmt.Errorf("%w: no GPIO pin named %q for D1", wiegand.ErrInvalidPin, d1Name)
	}
	return NewWithPins(d0, d1), nil
}

// NewWithPins wraps already resolved pins.
func NewWithPins(d0, d1 gpio.PinIO) *Source {
	return &Source{
		d0:   d0,
		d1:   d1,
		done: make(chan struct{}),
	}
}

// Lines returns the D0 and D1 pin names.
func (s *Source) Lines() (d0, d1 string) {
	return s.d0.Name(), s.d1.Name()
}

func (s *Source) name() string {
	return s.d0.Name() + "/" + s.d1.Name()
}

// Start arms both pins and spawns one watcher goroutine per line.
func (s *Source) Start(ctx context.Context, h wiegand.EdgeHandler) error {
	if h == nil {
		return wiegand.NewSourceError("start", s.name(), wiegand.ErrNoHandler)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return wiegand.ErrSourceClosed
	}
	if s.started {
		return wiegand.ErrSourceStarted
	}

	for _, pin := range []gpio.PinIO{s.d0, s.d1} {
		if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
			s.haltPins()
			return wiegand.NewSourceError("arm", pin.Name(), err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	s.wg.Add(2)
	go s.watch(runCtx, s.d0, h.Data0)
	go s.watch(runCtx, s.d1, h.Data1)
	go func() {
		<-runCtx.Done()
		s.shutdown()
	}()

	wiegand.Debugf("gpio: armed D0=%s D1=%s", s.d0.Name(), s.d1.Name())
	return nil
}

// watch forwards edges on pin to edge until ctx is done. WaitForEdge is
// bounded so cancellation is noticed within EdgeWaitTimeout.
func (s *Source) watch(ctx context.Context, pin gpio.PinIO, edge func()) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if pin.WaitForEdge(wiegand.EdgeWaitTimeout) {
			edge()
		}
	}
}

// shutdown waits for the watchers, releases the pins and closes Done.
func (s *Source) shutdown() {
	s.wg.Wait()
	s.once.Do(func() {
		s.haltPins()
		close(s.done)
	})
}

func (s *Source) haltPins() {
	for _, pin := range []gpio.PinIO{s.d0, s.d1} {
		if err := pin.Halt(); err != nil {
			wiegand.Debugf("gpio: halt %s: %v", pin.Name(), err)
		}
	}
}

// Done implements wiegand.EdgeSource.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Err implements wiegand.EdgeSource. GPIO watchers have no failure path of
// their own, so a stopped source always reports a clean shutdown.
func (*Source) Err() error {
	return nil
}

// Close disarms both lines and waits for the watchers to exit.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	started := s.started
	cancel := s.cancel
	s.mu.Unlock()

	if started {
		cancel()
	} else {
		s.once.Do(func() { close(s.done) })
	}
	<-s.done
	return nil
}

// Type implements wiegand.EdgeSource.
func (*Source) Type() wiegand.SourceType {
	return wiegand.SourceGPIO
}
