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

package polling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	wiegand "github.com/ZaparooProject/go-wiegand"
	testutil "github.com/ZaparooProject/go-wiegand/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig keeps the idle threshold well above scheduler noise so that
// back-to-back Pulse calls always land in one frame.
func testConfig() *Config {
	return &Config{
		PollInterval:  time.Millisecond,
		IdleThreshold: 20 * time.Millisecond,
		SourceRetry:   &wiegand.RetryConfig{MaxAttempts: 1},
		Recovery:      RecoveryConfig{Enabled: true, MaxAttempts: 1, Backoff: time.Millisecond},
	}
}

// collectSink records every result it is given.
type collectSink struct {
	results []wiegand.DecodeResult
	mu      sync.Mutex
}

func (c *collectSink) Consume(_ context.Context, res wiegand.DecodeResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, res)
	return nil
}

func (c *collectSink) snapshot() []wiegand.DecodeResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wiegand.DecodeResult, len(c.results))
	copy(out, c.results)
	return out
}

func mustEncode(t *testing.T, value uint64) []bool {
	t.Helper()
	bits, err := wiegand.Encode26(value)
	require.NoError(t, err)
	return bits
}

func startSession(t *testing.T, s *Session) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()
	t.Cleanup(cancel)
	return cancel, errCh
}

func TestNewSession(t *testing.T) {
	t.Parallel()

	t.Run("WithDefaultConfig", func(t *testing.T) {
		t.Parallel()
		session := NewSession(wiegand.NewMockSource(), nil)
		require.NotNil(t, session)
		assert.Equal(t, wiegand.DefaultPollInterval, session.config.PollInterval)
		assert.Equal(t, wiegand.DefaultIdleThreshold, session.Capture().IdleThreshold())
	})

	t.Run("WithCustomConfig", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		session := NewSession(wiegand.NewMockSource(), cfg)
		assert.Equal(t, time.Millisecond, session.config.PollInterval)
		assert.Equal(t, 20*time.Millisecond, session.Capture().IdleThreshold())
	})

	t.Run("ZeroValuesFallBackToDefaults", func(t *testing.T) {
		t.Parallel()
		session := NewSession(wiegand.NewMockSource(), &Config{})
		assert.Equal(t, wiegand.DefaultPollInterval, session.config.PollInterval)
		assert.NotNil(t, session.config.SourceRetry)
	})
}

func TestSession_PollOnce(t *testing.T) {
	t.Parallel()

	clock := testutil.NewFakeClock(time.Second)
	capture := wiegand.NewCapture(wiegand.WithClock(clock))
	sink := &collectSink{}
	session := NewSessionWithCapture(wiegand.NewMockSource(), capture, testConfig(), sink)

	for _, bit := range mustEncode(t, 0x0A1B2C) {
		clock.Advance(time.Millisecond)
		if bit {
			capture.Data1()
		} else {
			capture.Data0()
		}
	}

	_, handled := session.PollOnce(context.Background())
	assert.False(t, handled, "frame must not be extracted while edges are recent")

	clock.Advance(4 * time.Millisecond)
	res, handled := session.PollOnce(context.Background())
	require.True(t, handled)
	require.True(t, res.OK())
	assert.Equal(t, uint64(0x0A1B2C), res.Value)

	_, handled = session.PollOnce(context.Background())
	assert.False(t, handled, "buffer must be empty after extraction")

	got := sink.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, res.Value, got[0].Value)

	stats := session.Stats()
	assert.Equal(t, uint64(1), stats.FramesOK)
	assert.Equal(t, uint64(1), stats.Frames())
}

func TestSession_StartDeliversFrames(t *testing.T) {
	t.Parallel()

	src := wiegand.NewMockSource()
	sink := &collectSink{}
	session := NewSession(src, testConfig(), sink)

	var frames []wiegand.DecodeResult
	var mu sync.Mutex
	session.SetOnFrame(func(res wiegand.DecodeResult) {
		mu.Lock()
		frames = append(frames, res)
		mu.Unlock()
	})

	cancel, errCh := startSession(t, session)
	require.Eventually(t, func() bool { return src.StartCalls() == 1 }, time.Second, time.Millisecond)

	src.Pulse(mustEncode(t, 1234)...)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, time.Millisecond)

	src.Pulse(true, false, true)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, time.Millisecond)

	got := sink.snapshot()
	assert.True(t, got[0].OK())
	assert.Equal(t, uint64(1234), got[0].Value)
	require.Error(t, got[1].Err)
	require.ErrorIs(t, got[1].Err, wiegand.ErrWrongBitCount)
	assert.Equal(t, 3, got[1].Frame.BitCount)

	mu.Lock()
	assert.Len(t, frames, 2)
	mu.Unlock()

	stats := session.Stats()
	assert.Equal(t, uint64(1), stats.FramesOK)
	assert.Equal(t, uint64(1), stats.FramesWrongCount)

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("session did not stop after cancel")
	}
}

func TestSession_ParityFailureIsReported(t *testing.T) {
	t.Parallel()

	src := wiegand.NewMockSource()
	sink := &collectSink{}
	session := NewSession(src, testConfig(), sink)
	_, _ = startSession(t, session)
	require.Eventually(t, func() bool { return src.StartCalls() == 1 }, time.Second, time.Millisecond)

	bits := mustEncode(t, 0x00FF00)
	bits[0] = !bits[0]
	src.Pulse(bits...)

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, time.Millisecond)
	res := sink.snapshot()[0]
	require.ErrorIs(t, res.Err, wiegand.ErrParityMismatch)
	assert.Equal(t, uint64(1), session.Stats().FramesParity)
}

func TestSession_StartTwice(t *testing.T) {
	t.Parallel()

	src := wiegand.NewMockSource()
	session := NewSession(src, testConfig())
	_, _ = startSession(t, session)
	require.Eventually(t, func() bool { return src.StartCalls() == 1 }, time.Second, time.Millisecond)

	err := session.Start(context.Background())
	require.ErrorIs(t, err, ErrSessionRunning)
}

func TestSession_StartAfterClose(t *testing.T) {
	t.Parallel()

	session := NewSession(wiegand.NewMockSource(), testConfig())
	require.NoError(t, session.Close())
	require.NoError(t, session.Close())

	err := session.Start(context.Background())
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_StartError(t *testing.T) {
	t.Parallel()

	src := wiegand.NewMockSource()
	src.SetStartError(wiegand.ErrInvalidPin)
	session := NewSession(src, testConfig())

	err := session.Start(context.Background())
	require.ErrorIs(t, err, wiegand.ErrInvalidPin)
	assert.False(t, session.running.Load())
}

func TestSession_CloseStopsStart(t *testing.T) {
	t.Parallel()

	src := wiegand.NewMockSource()
	session := NewSession(src, testConfig())
	_, errCh := startSession(t, session)
	require.Eventually(t, func() bool { return src.StartCalls() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, session.Close())
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("session did not stop after Close")
	}
}

func TestSession_FinalFrameDrainedOnClose(t *testing.T) {
	t.Parallel()

	src := wiegand.NewMockSource()
	sink := &collectSink{}
	session := NewSession(src, testConfig(), sink)
	_, errCh := startSession(t, session)
	require.Eventually(t, func() bool { return src.StartCalls() == 1 }, time.Second, time.Millisecond)

	src.Pulse(mustEncode(t, 42)...)
	require.NoError(t, session.Close())

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("session did not stop")
	}
	got := sink.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, uint64(42), got[0].Value)
}

func TestSession_SourceFailureWithoutRecoverer(t *testing.T) {
	t.Parallel()

	src := wiegand.NewMockSource()
	session := NewSession(src, testConfig())
	_, errCh := startSession(t, session)
	require.Eventually(t, func() bool { return src.StartCalls() == 1 }, time.Second, time.Millisecond)

	gone := errors.New("line released")
	src.Fail(gone)

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, gone)
	case <-time.After(time.Second):
		t.Fatal("session did not report source failure")
	}
}

func TestSession_SinkErrors(t *testing.T) {
	t.Parallel()

	clock := testutil.NewFakeClock(time.Second)
	capture := wiegand.NewCapture(wiegand.WithClock(clock))
	good := &collectSink{}
	failing := wiegand.SinkFunc(func(context.Context, wiegand.DecodeResult) error {
		return errors.New("broker down")
	})
	session := NewSessionWithCapture(wiegand.NewMockSource(), capture, testConfig(), failing)
	session.AddSink(good)

	var reported []error
	session.SetOnSinkError(func(_ wiegand.Sink, err error) {
		reported = append(reported, err)
	})

	capture.Data1()
	clock.Advance(time.Second)
	_, handled := session.PollOnce(context.Background())
	require.True(t, handled)

	assert.Len(t, good.snapshot(), 1, "a failing sink must not block the others")
	require.Len(t, reported, 1)
	assert.EqualError(t, reported[0], "broker down")
	assert.Equal(t, uint64(1), session.Stats().SinkErrors)
}

func TestSession_DroppedEdgesInStats(t *testing.T) {
	t.Parallel()

	clock := testutil.NewFakeClock(time.Second)
	capture := wiegand.NewCapture(wiegand.WithClock(clock))
	session := NewSessionWithCapture(wiegand.NewMockSource(), capture, testConfig())

	for range wiegand.MaxBits + 5 {
		capture.Data0()
	}
	clock.Advance(time.Second)

	res, handled := session.PollOnce(context.Background())
	require.True(t, handled)
	assert.Equal(t, wiegand.MaxBits+5, res.Frame.BitCount)
	assert.Len(t, res.Frame.Bits, wiegand.MaxBits)
	require.ErrorIs(t, res.Err, wiegand.ErrWrongBitCount)
	assert.Equal(t, uint64(5), session.Stats().DroppedEdges)
}

func TestListen(t *testing.T) {
	t.Parallel()

	src := wiegand.NewMockSource()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := Listen(ctx, src, testConfig())
	require.NoError(t, err)

	src.Pulse(mustEncode(t, 777)...)
	select {
	case res := <-results:
		require.True(t, res.OK())
		assert.Equal(t, uint64(777), res.Value)
	case <-time.After(time.Second):
		t.Fatal("no result delivered")
	}

	cancel()
	select {
	case _, ok := <-results:
		assert.False(t, ok, "channel must close after cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestListen_ParityFailureKeepsValueZero(t *testing.T) {
	t.Parallel()

	src := wiegand.NewMockSource()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := Listen(ctx, src, testConfig())
	require.NoError(t, err)

	bits := mustEncode(t, 0x2A1F40)
	bits[0] = !bits[0]
	src.Pulse(bits...)

	select {
	case res := <-results:
		require.ErrorIs(t, res.Err, wiegand.ErrParityMismatch)
		assert.Equal(t, uint64(0), res.Value)
		assert.Equal(t, 26, res.Frame.BitCount)
		assert.Equal(t, wiegand.FormatBits(bits), res.Frame.BitString())
	case <-time.After(time.Second):
		t.Fatal("no result delivered")
	}
}

func TestListen_StartError(t *testing.T) {
	t.Parallel()

	src := wiegand.NewMockSource()
	src.SetStartError(wiegand.ErrInvalidPin)

	results, err := Listen(context.Background(), src, testConfig())
	require.ErrorIs(t, err, wiegand.ErrInvalidPin)
	assert.Nil(t, results)
}
