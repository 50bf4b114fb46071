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

// Package testing provides test utilities for Wiegand capture: a virtual
// reader that replays frames as edges on two line goroutines, and a
// manually advanced clock.
package testing

import (
	"context"
	"sync"
	"time"
)

// DefaultBitGap is the nominal spacing between pulses. Commercial readers
// use roughly 1-2ms; tests that run on a real clock use less so scheduler
// latency cannot push a gap past the idle threshold.
const DefaultBitGap = 100 * time.Microsecond

// EdgeHandler mirrors wiegand.EdgeHandler.
type EdgeHandler interface {
	Data0()
	Data1()
}

// FrameLogEntry records a frame the virtual reader played.
type FrameLogEntry struct {
	SentAt time.Time
	Bits   []bool
}

// VirtualReader plays bit sequences into an EdgeHandler the way a reader
// pulses its D0 and D1 lines: one edge at a time, each from the goroutine
// that owns that line.
type VirtualReader struct {
	jitter *jitterSource
	log    []FrameLogEntry
	bitGap time.Duration
	mu     sync.Mutex
}

// NewVirtualReader creates a reader with the given pulse spacing and jitter.
// A zero bitGap delivers edges back to back.
func NewVirtualReader(bitGap time.Duration, config JitterConfig) *VirtualReader {
	return &VirtualReader{
		jitter: newJitterSource(config),
		bitGap: bitGap,
	}
}

// Send plays bits as sequential edges and returns after the last one. Frames
// from concurrent Send calls never interleave.
func (v *VirtualReader) Send(ctx context.Context, h EdgeHandler, bits []bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	d0, d1, stop := startLines(h)
	defer stop()

	for i, b := range bits {
		line := d0
		if b {
			line = d1
		}
		done := make(chan struct{})
		line <- done
		<-done

		if i == len(bits)-1 {
			break
		}
		if err := sleepCtx(ctx, v.jitter.gapAfter(i, v.bitGap)); err != nil {
			return err
		}
	}

	bitsCopy := make([]bool, len(bits))
	copy(bitsCopy, bits)
	v.log = append(v.log, FrameLogEntry{SentAt: time.Now(), Bits: bitsCopy})
	return nil
}

// Burst fires zeros D0 edges and ones D1 edges from the two line goroutines
// at the same time, with no ordering between the lines. It models electrical
// noise or a misbehaving reader and is useful for overflow and race tests.
func (*VirtualReader) Burst(h EdgeHandler, zeros, ones int) {
	var wg sync.WaitGroup
	fire := func(n int, edge func()) {
		defer wg.Done()
		for range n {
			edge()
		}
	}
	wg.Add(2)
	go fire(zeros, h.Data0)
	go fire(ones, h.Data1)
	wg.Wait()
}

// FramesSent returns how many frames Send completed.
func (v *VirtualReader) FramesSent() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.log)
}

// Log returns a copy of the frames sent so far.
func (v *VirtualReader) Log() []FrameLogEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]FrameLogEntry, len(v.log))
	copy(out, v.log)
	return out
}

// startLines starts one goroutine per data line. Each receives a done
// channel, fires its edge, and closes done.
func startLines(h EdgeHandler) (d0, d1 chan chan struct{}, stop func()) {
	d0 = make(chan chan struct{})
	d1 = make(chan chan struct{})

	var wg sync.WaitGroup
	run := func(ch chan chan struct{}, edge func()) {
		defer wg.Done()
		for done := range ch {
			edge()
			close(done)
		}
	}
	wg.Add(2)
	go run(d0, h.Data0)
	go run(d1, h.Data1)

	return d0, d1, func() {
		close(d0)
		close(d1)
		wg.Wait()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
