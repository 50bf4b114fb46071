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

package wiegand

import (
	"context"
	"sync"
)

// EdgeSource delivers falling edges from the two Wiegand data lines.
type EdgeSource interface {
	// Start arms both lines and returns. Edges are delivered to h from
	// source-owned goroutines until ctx is done or Close is called.
	Start(ctx context.Context, h EdgeHandler) error

	// Done is closed when the source stops delivering edges.
	Done() <-chan struct{}

	// Err returns why the source stopped, or nil while it is running or
	// after a clean Close.
	Err() error

	// Close disarms the lines and releases the underlying device.
	Close() error

	// Type returns the source type
	Type() SourceType
}

// SourceType identifies an edge source implementation.
type SourceType string

const (
	// SourceGPIO represents two GPIO lines with falling-edge interrupts.
	SourceGPIO SourceType = "gpio"
	// SourceUART represents a serial bridge that forwards pulses as '0'/'1' bytes.
	SourceUART SourceType = "uart"
	// SourceMock represents a mock source for testing
	SourceMock SourceType = "mock"
)

// StartWithRetry starts src, retrying transient failures with the given
// backoff configuration.
func StartWithRetry(ctx context.Context, src EdgeSource, h EdgeHandler, config *RetryConfig) error {
	return RetryWithConfig(ctx, config, func() error {
		return src.Start(ctx, h)
	})
}

// MockSource is an EdgeSource driven by test code.
type MockSource struct {
	handler  EdgeHandler
	done     chan struct{}
	err      error
	startErr error
	mu       sync.Mutex
	started  bool
	closed   bool
	starts   int
}

// NewMockSource creates a mock source that is ready to start.
func NewMockSource() *MockSource {
	return &MockSource{
		done: make(chan struct{}),
	}
}

// SetStartError makes the next Start calls fail with err. Pass nil to clear.
func (m *MockSource) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// Start implements EdgeSource.
func (m *MockSource) Start(ctx context.Context, h EdgeHandler) error {
	if h == nil {
		return NewSourceError("start", "mock", ErrNoHandler)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.starts++
	if m.closed {
		return ErrSourceClosed
	}
	if m.started {
		return ErrSourceStarted
	}
	if m.startErr != nil {
		return m.startErr
	}
	m.handler = h
	m.started = true

	go func() {
		select {
		case <-ctx.Done():
			_ = m.Close()
		case <-m.done:
		}
	}()
	return nil
}

// StartCalls returns how many times Start was called.
func (m *MockSource) StartCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Pulse delivers one edge per bit to the handler: D1 for true, D0 for false.
// It is a no-op before Start or after Close.
func (m *MockSource) Pulse(bits ...bool) {
	m.mu.Lock()
	h := m.handler
	active := m.started && !m.closed
	m.mu.Unlock()

	if !active {
		return
	}
	for _, b := range bits {
		if b {
			h.Data1()
		} else {
			h.Data0()
		}
	}
}

// Fail stops the source with err, as if the device had gone away.
func (m *MockSource) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.err = err
	m.closed = true
	close(m.done)
}

// Done implements EdgeSource.
func (m *MockSource) Done() <-chan struct{} {
	return m.done
}

// Err implements EdgeSource.
func (m *MockSource) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Close implements EdgeSource.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// Type implements EdgeSource.
func (*MockSource) Type() SourceType {
	return SourceMock
}
