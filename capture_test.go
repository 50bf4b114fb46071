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
	"testing"
	"time"

	testutil "github.com/ZaparooProject/go-wiegand/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeCapture(opts ...CaptureOption) (*Capture, *testutil.FakeClock) {
	clock := testutil.NewFakeClock(time.Hour)
	return NewCapture(append([]CaptureOption{WithClock(clock)}, opts...)...), clock
}

func pulse(h EdgeHandler, bits []bool) {
	for _, b := range bits {
		if b {
			h.Data1()
		} else {
			h.Data0()
		}
	}
}

func TestNewCapture_Defaults(t *testing.T) {
	t.Parallel()

	c := NewCapture(WithIdleThreshold(0), WithClock(nil))
	assert.Equal(t, DefaultIdleThreshold, c.IdleThreshold())
	assert.Zero(t, c.PendingBitCount())
	assert.Zero(t, c.DroppedEdges())
}

func TestCapture_IdleThresholdIsStrict(t *testing.T) {
	t.Parallel()

	c, clock := newFakeCapture()
	bits, err := Encode26(0x123456)
	require.NoError(t, err)
	pulse(c, bits)

	assert.Zero(t, c.PendingBitCount(), "still inside the frame")

	clock.Advance(DefaultIdleThreshold)
	assert.Zero(t, c.PendingBitCount(), "exactly at the threshold is not idle")

	clock.Advance(time.Microsecond)
	assert.Equal(t, 26, c.PendingBitCount())
}

func TestCapture_FastPathIgnoresLongThreshold(t *testing.T) {
	t.Parallel()

	c, clock := newFakeCapture(WithIdleThreshold(5 * time.Second))
	c.Data1()

	clock.Advance(999 * time.Millisecond)
	assert.Zero(t, c.PendingBitCount())

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, c.PendingBitCount())
}

func TestCapture_EdgeResetsIdleTimer(t *testing.T) {
	t.Parallel()

	c, clock := newFakeCapture()
	c.Data0()
	clock.Advance(2 * time.Millisecond)
	c.Data1()
	clock.Advance(2 * time.Millisecond)

	// 4ms since the first edge, 2ms since the last.
	assert.Zero(t, c.PendingBitCount())
}

func TestCapture_ExtractTwice(t *testing.T) {
	t.Parallel()

	c, clock := newFakeCapture()
	bits, err := Encode26(0x00ABCD)
	require.NoError(t, err)
	pulse(c, bits)
	clock.Advance(10 * time.Millisecond)

	dst := make([]bool, MaxBits)
	require.Equal(t, 26, c.Extract(dst))
	assert.Equal(t, bits, dst[:26])

	assert.Zero(t, c.Extract(dst), "buffer was reset by the first extract")
	assert.Zero(t, c.PendingBitCount())
}

func TestCapture_ExtractBeforeIdle(t *testing.T) {
	t.Parallel()

	c, clock := newFakeCapture()
	c.Data1()
	c.Data0()

	dst := make([]bool, MaxBits)
	assert.Zero(t, c.Extract(dst))

	clock.Advance(time.Second)
	assert.Equal(t, 2, c.Extract(dst))
	assert.Equal(t, []bool{true, false}, dst[:2])
}

func TestCapture_ExtractSmallBuffer(t *testing.T) {
	t.Parallel()

	c, clock := newFakeCapture()
	pulse(c, []bool{true, true, false, true})
	clock.Advance(time.Second)

	dst := make([]bool, 2)
	assert.Equal(t, 4, c.Extract(dst), "original count is reported")
	assert.Equal(t, []bool{true, true}, dst)
	assert.Zero(t, c.PendingBitCount())
}

func TestCapture_Overflow(t *testing.T) {
	t.Parallel()

	c, clock := newFakeCapture()
	for i := range 40 {
		if i%2 == 0 {
			c.Data0()
		} else {
			c.Data1()
		}
	}
	clock.Advance(10 * time.Millisecond)

	assert.Equal(t, MaxBits, c.PendingBitCount())
	assert.Equal(t, uint64(8), c.DroppedEdges())

	frame, ok := c.ExtractFrame()
	require.True(t, ok)
	assert.Equal(t, MaxBits, frame.BitCount)
	assert.Len(t, frame.Bits, MaxBits)
	assert.False(t, frame.Truncated())
	assert.Equal(t, "01010101010101010101010101010101", frame.BitString())

	res := DecodeFrame(frame)
	require.ErrorIs(t, res.Err, ErrWrongBitCount)

	// The dropped counter survives the extract.
	assert.Equal(t, uint64(8), c.DroppedEdges())
}

func TestCapture_OverflowStillTracksActivity(t *testing.T) {
	t.Parallel()

	c, clock := newFakeCapture()
	for range MaxBits {
		c.Data1()
	}
	clock.Advance(2 * time.Millisecond)
	c.Data0()
	clock.Advance(2 * time.Millisecond)

	// The dropped edge still counts as bus activity.
	assert.Zero(t, c.PendingBitCount())
}

func TestCapture_Reset(t *testing.T) {
	t.Parallel()

	c, clock := newFakeCapture()
	pulse(c, []bool{true, false, true})
	c.Reset()
	clock.Advance(time.Second)

	assert.Zero(t, c.PendingBitCount())
	_, ok := c.ExtractFrame()
	assert.False(t, ok)
}

func TestCapture_ConcurrentBurst(t *testing.T) {
	t.Parallel()

	c, clock := newFakeCapture()
	reader := testutil.NewVirtualReader(testutil.DefaultBitGap, testutil.JitterConfig{})
	reader.Burst(c, 10, 16)
	clock.Advance(10 * time.Millisecond)

	frame, ok := c.ExtractFrame()
	require.True(t, ok)
	assert.Equal(t, 26, frame.BitCount)

	ones := 0
	for _, b := range frame.Bits {
		if b {
			ones++
		}
	}
	assert.Equal(t, 16, ones)
}

func TestCapture_ConcurrentBurstOverflow(t *testing.T) {
	t.Parallel()

	c, clock := newFakeCapture()
	reader := testutil.NewVirtualReader(testutil.DefaultBitGap, testutil.JitterConfig{})
	reader.Burst(c, 100, 100)
	clock.Advance(10 * time.Millisecond)

	assert.Equal(t, MaxBits, c.PendingBitCount())
	assert.Equal(t, uint64(200-MaxBits), c.DroppedEdges())
}

func TestCapture_ProducerConsumer(t *testing.T) {
	t.Parallel()

	const idle = 20 * time.Millisecond
	c := NewCapture(WithIdleThreshold(idle))
	reader := testutil.NewVirtualReader(testutil.DefaultBitGap, testutil.JitterConfig{})

	values := []uint64{0x000001, 0x123456, 0xFFFFFF, 0x2A1F40}
	results := make(chan DecodeResult, len(values))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if frame, ok := c.ExtractFrame(); ok {
					results <- DecodeFrame(frame)
				}
			}
		}
	}()

	for _, v := range values {
		bits, err := Encode26(v)
		require.NoError(t, err)
		require.NoError(t, reader.Send(ctx, c, bits))
		time.Sleep(2 * idle)
	}

	for _, want := range values {
		select {
		case res := <-results:
			require.NoError(t, res.Err)
			assert.Equal(t, want, res.Value)
		case <-time.After(time.Second):
			t.Fatalf("frame %#x was not extracted", want)
		}
	}
	assert.Equal(t, len(values), reader.FramesSent())
}
