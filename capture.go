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
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-wiegand/internal/syncutil"
)

const (
	// MaxBits is the capacity of the capture buffer. Edges beyond it are dropped.
	MaxBits = 32

	// DefaultIdleThreshold is the bus silence after which the current bits are
	// treated as a complete frame. Inter-bit gaps on real readers are around
	// 1-2ms, so 3ms separates them from frame boundaries.
	DefaultIdleThreshold = 3 * time.Millisecond

	// idleFastPath declares the line idle regardless of the configured threshold.
	idleFastPath = time.Second
)

// EdgeHandler receives falling edges from the two Wiegand data lines.
// Implementations must be safe for concurrent use and must not block.
type EdgeHandler interface {
	// Data0 is called on a falling edge of the D0 line (a 0 bit).
	Data0()
	// Data1 is called on a falling edge of the D1 line (a 1 bit).
	Data1()
}

// CaptureOption configures a Capture.
type CaptureOption func(*Capture)

// WithClock sets the clock used to stamp edges. Tests use it to drive idle
// detection deterministically.
func WithClock(clock Clock) CaptureOption {
	return func(c *Capture) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithIdleThreshold sets the bus silence that ends a frame.
func WithIdleThreshold(d time.Duration) CaptureOption {
	return func(c *Capture) {
		if d > 0 {
			c.idleThreshold = d
		}
	}
}

// Capture accumulates bits from edge callbacks until the bus goes idle.
//
// Data0 and Data1 may be called from any number of goroutines concurrently
// with PendingBitCount and Extract. The critical section is a fixed-size
// array write and a timestamp store, so edge callers never wait on more than
// a copy of MaxBits values.
type Capture struct {
	clock         Clock
	dropped       atomic.Uint64
	mu            syncutil.Mutex
	idleThreshold time.Duration
	lastEdge      time.Duration
	count         int
	bits          [MaxBits]bool
}

// NewCapture creates an empty capture buffer.
func NewCapture(opts ...CaptureOption) *Capture {
	c := &Capture{
		clock:         SystemClock,
		idleThreshold: DefaultIdleThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Data0 latches a 0 bit.
func (c *Capture) Data0() {
	c.latch(false)
}

// Data1 latches a 1 bit.
func (c *Capture) Data1() {
	c.latch(true)
}

// latch appends a bit if there is room and always advances the last edge
// time, so a full buffer still reflects bus activity.
func (c *Capture) latch(bit bool) {
	c.mu.Lock()
	if c.count < MaxBits {
		c.bits[c.count] = bit
		c.count++
	} else {
		c.dropped.Add(1)
	}
	c.lastEdge = c.clock.Now()
	c.mu.Unlock()
}

// IdleThreshold returns the configured frame boundary silence.
func (c *Capture) IdleThreshold() time.Duration {
	return c.idleThreshold
}

// PendingBitCount returns the number of captured bits once the bus has been
// idle for longer than the idle threshold, and 0 while edges are still
// arriving or nothing was captured.
func (c *Capture) PendingBitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked(c.clock.Now())
}

func (c *Capture) pendingLocked(now time.Duration) int {
	elapsed := now - c.lastEdge
	if elapsed >= idleFastPath || elapsed > c.idleThreshold {
		return c.count
	}
	return 0
}

// Extract copies a completed frame into dst and clears the capture state in
// the same critical section, so every edge lands either in the returned frame
// or in the next one. It returns the original bit count, which exceeds
// len(dst) when dst was too small; only len(dst) bits are copied in that case.
// Extract returns 0 and leaves the state untouched if no frame is complete.
func (c *Capture) Extract(dst []bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := c.pendingLocked(c.clock.Now())
	if count == 0 {
		return 0
	}
	copy(dst, c.bits[:count])
	c.resetLocked()
	return count
}

// ExtractFrame is Extract into a freshly allocated Frame stamped with the
// current wall-clock time.
func (c *Capture) ExtractFrame() (Frame, bool) {
	var buf [MaxBits]bool
	count := c.Extract(buf[:])
	if count == 0 {
		return Frame{}, false
	}

	bits := make([]bool, min(count, MaxBits))
	copy(bits, buf[:])
	return Frame{
		Timestamp: time.Now(),
		BitCount:  count,
		Bits:      bits,
	}, true
}

// Reset discards any partially captured frame.
func (c *Capture) Reset() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
}

func (c *Capture) resetLocked() {
	c.bits = [MaxBits]bool{}
	c.count = 0
}

// DroppedEdges returns the number of edges discarded because the buffer was
// full. The counter is never reset.
func (c *Capture) DroppedEdges() uint64 {
	return c.dropped.Load()
}
