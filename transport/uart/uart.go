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

// Package uart provides an edge source for a microcontroller bridge that
// watches the Wiegand lines and forwards each pulse over a serial port as
// an ASCII '0' (D0) or '1' (D1). Any other byte is ignored, so bridges may
// send newlines or banners between frames.
package uart

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	wiegand "github.com/ZaparooProject/go-wiegand"
	"go.bug.st/serial"
)

// DefaultBaudRate is the bridge firmware's serial speed.
const DefaultBaudRate = 115200

// Port is the part of serial.Port the source needs.
type Port interface {
	Read(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Source implements wiegand.EdgeSource over a serial bridge.
type Source struct {
	port      Port
	err       error
	done      chan struct{}
	cancel    context.CancelFunc
	portName  string
	closeOnce sync.Once
	doneOnce  sync.Once
	mu        sync.Mutex
	started   bool
	closed    bool
}

// readTimeout bounds each Read so cancellation is noticed promptly. Windows
// drivers need the longer value.
func readTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 2 * wiegand.EdgeWaitTimeout
	}
	return wiegand.EdgeWaitTimeout
}

// New opens portName at DefaultBaudRate, 8N1.
func New(portName string) (*Source, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, wiegand.NewSourceError("open", portName, err)
	}
	return NewWithPort(portName, port), nil
}

// NewWithPort wraps an already open port.
func NewWithPort(portName string, port Port) *Source {
	return &Source{
		port:     port,
		portName: portName,
		done:     make(chan struct{}),
	}
}

// PortName returns the serial device path.
func (s *Source) PortName() string {
	return s.portName
}

// Start sets the read timeout and begins forwarding pulses to h.
func (s *Source) Start(ctx context.Context, h wiegand.EdgeHandler) error {
	if h == nil {
		return wiegand.NewSourceError("start", s.portName, wiegand.ErrNoHandler)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return wiegand.ErrSourceClosed
	}
	if s.started {
		return wiegand.ErrSourceStarted
	}
	if err := s.port.SetReadTimeout(readTimeout()); err != nil {
		return wiegand.NewSourceError("configure", s.portName, fmt.Errorf("set read timeout: %w", err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	go s.readLoop(runCtx, h)
	go func() {
		<-runCtx.Done()
		s.closePort()
	}()

	wiegand.Debugf("uart: forwarding pulses from %s", s.portName)
	return nil
}

func (s *Source) readLoop(ctx context.Context, h wiegand.EdgeHandler) {
	defer s.finish()

	buf := make([]byte, 64)
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := s.port.Read(buf)
		for _, b := range buf[:n] {
			switch b {
			case '0':
				h.Data0()
			case '1':
				h.Data1()
			}
		}
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				return
			}
			s.mu.Lock()
			s.err = wiegand.NewSourceError("read", s.portName, err)
			s.mu.Unlock()
			wiegand.Debugf("uart: %s read failed: %v", s.portName, err)
			return
		}
	}
}

func (s *Source) finish() {
	s.closePort()
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Source) closePort() {
	s.closeOnce.Do(func() {
		if err := s.port.Close(); err != nil {
			wiegand.Debugf("uart: close %s: %v", s.portName, err)
		}
	})
}

func (s *Source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done implements wiegand.EdgeSource.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Err implements wiegand.EdgeSource.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the read loop and closes the port.
func (s *Source) Close() error {
	s.mu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	started := s.started
	cancel := s.cancel
	s.mu.Unlock()

	if alreadyClosed {
		<-s.done
		return nil
	}
	if started {
		cancel()
	} else {
		s.finish()
	}
	<-s.done
	return nil
}

// Type implements wiegand.EdgeSource.
func (*Source) Type() wiegand.SourceType {
	return wiegand.SourceUART
}
