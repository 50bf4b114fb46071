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

// Package polling runs the consumer side of a Wiegand reader: it arms an edge
// source, polls the capture buffer for completed frames and fans the decode
// results out to sinks.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	wiegand "github.com/ZaparooProject/go-wiegand"
	"github.com/ZaparooProject/go-wiegand/internal/syncutil"
)

// Session owns a capture buffer, arms an edge source into it, and polls for
// completed frames. Each frame is decoded and handed to the sinks in order.
type Session struct {
	capture    *wiegand.Capture
	source     wiegand.EdgeSource
	recoverer  SourceRecoverer
	config     *Config
	onFrame    func(wiegand.DecodeResult)
	onSinkErr  func(wiegand.Sink, error)
	sinks      []wiegand.Sink
	stats      Stats
	stateMutex syncutil.RWMutex
	running    atomic.Bool
	closed     atomic.Bool
}

// NewSession creates a session reading from source. A nil config uses
// DefaultConfig.
func NewSession(source wiegand.EdgeSource, config *Config, sinks ...wiegand.Sink) *Session {
	config = config.withDefaults()
	return &Session{
		capture: wiegand.NewCapture(wiegand.WithIdleThreshold(config.IdleThreshold)),
		source:  source,
		config:  config,
		sinks:   sinks,
	}
}

// NewSessionWithCapture is NewSession with a caller-supplied capture buffer,
// used to inject a clock.
func NewSessionWithCapture(
	source wiegand.EdgeSource, capture *wiegand.Capture, config *Config, sinks ...wiegand.Sink,
) *Session {
	s := NewSession(source, config, sinks...)
	s.capture = capture
	return s
}

// Capture returns the capture buffer the source feeds.
func (s *Session) Capture() *wiegand.Capture {
	return s.capture
}

// Source returns the current edge source. It changes after a recovery.
func (s *Session) Source() wiegand.EdgeSource {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.source
}

// AddSink appends a sink. Sinks added while running see subsequent frames.
func (s *Session) AddSink(sink wiegand.Sink) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.sinks = append(s.sinks, sink)
}

// SetOnFrame sets a callback invoked for every decode result before sinks.
func (s *Session) SetOnFrame(callback func(wiegand.DecodeResult)) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.onFrame = callback
}

// SetOnSinkError sets a callback invoked when a sink returns an error.
func (s *Session) SetOnSinkError(callback func(wiegand.Sink, error)) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.onSinkErr = callback
}

// SetRecoverer enables restarting the source after it fails.
func (s *Session) SetRecoverer(r SourceRecoverer) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.recoverer = r
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	st := s.stats
	st.DroppedEdges = s.capture.DroppedEdges()
	return st
}

// Start arms the source and polls until ctx is done, the session is closed,
// or the source stops for good. A cancelled context returns ctx.Err().
func (s *Session) Start(ctx context.Context) error {
	if err := s.arm(ctx); err != nil {
		return err
	}
	defer s.running.Store(false)
	return s.runPollingLoop(ctx)
}

// arm starts the source and marks the session running.
func (s *Session) arm(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrSessionRunning
	}

	src := s.Source()
	if err := wiegand.StartWithRetry(ctx, src, s.capture, s.config.SourceRetry); err != nil {
		s.running.Store(false)
		return fmt.Errorf("failed to start %s edge source: %w", src.Type(), err)
	}
	wiegand.Debugf("session: %s source armed, idle threshold %v, poll interval %v",
		src.Type(), s.capture.IdleThreshold(), s.config.PollInterval)
	return nil
}

// Close stops the source. A running Start returns shortly after.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.Source().Close(); err != nil {
		return fmt.Errorf("failed to close edge source: %w", err)
	}
	return nil
}

// runPollingLoop polls the capture buffer, sleeping PollInterval between
// empty polls, and watches the source for termination.
func (s *Session) runPollingLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	defer func() { _ = s.Source().Close() }()

	for {
		s.PollOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.Source().Done():
			if err := s.handleSourceStopped(ctx); err != nil {
				return err
			}
			if s.closed.Load() {
				return nil
			}
		case <-ticker.C:
		}
	}
}

// handleSourceStopped drains the last frame and either recovers the source
// or reports why the session must end.
func (s *Session) handleSourceStopped(ctx context.Context) error {
	s.drainFinalFrame(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	srcErr := s.Source().Err()
	if srcErr == nil || s.closed.Load() {
		s.closed.Store(true)
		return nil
	}

	s.stateMutex.RLock()
	recoverer := s.recoverer
	s.stateMutex.RUnlock()

	if recoverer == nil || !s.config.Recovery.Enabled {
		return fmt.Errorf("edge source stopped: %w", srcErr)
	}

	wiegand.Debugf("session: source stopped (%v), attempting recovery", srcErr)
	newSrc, err := recoverer.Recover(ctx, s.capture)
	if err != nil {
		return fmt.Errorf("edge source stopped: %w", errors.Join(srcErr, err))
	}

	s.stateMutex.Lock()
	s.source = newSrc
	s.stats.Recoveries++
	s.stateMutex.Unlock()
	return nil
}

// drainFinalFrame waits out the idle threshold once so bits captured just
// before the source stopped still produce a frame.
func (s *Session) drainFinalFrame(ctx context.Context) {
	timer := time.NewTimer(s.capture.IdleThreshold() + time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		s.PollOnce(ctx)
	case <-ctx.Done():
	}
}

// PollOnce extracts and dispatches one frame if the bus has gone idle. It
// reports whether a frame was handled.
func (s *Session) PollOnce(ctx context.Context) (wiegand.DecodeResult, bool) {
	if s.capture.PendingBitCount() == 0 {
		return wiegand.DecodeResult{}, false
	}

	frame, ok := s.capture.ExtractFrame()
	if !ok {
		return wiegand.DecodeResult{}, false
	}

	res := wiegand.DecodeFrame(frame)
	if frame.Truncated() {
		wiegand.Debugf("session: frame of %d bits truncated to %d", frame.BitCount, len(frame.Bits))
	}

	s.stateMutex.Lock()
	s.stats.record(res)
	onFrame := s.onFrame
	onSinkErr := s.onSinkErr
	sinks := make([]wiegand.Sink, len(s.sinks))
	copy(sinks, s.sinks)
	s.stateMutex.Unlock()

	if dropped := s.capture.DroppedEdges(); dropped > 0 {
		wiegand.Debugf("session: %d edges dropped on full buffer so far", dropped)
	}
	wiegand.Debugf("session: %s", wiegand.FormatRecord(res))

	if onFrame != nil {
		onFrame(res)
	}
	s.dispatch(ctx, sinks, onSinkErr, res)
	return res, true
}

// dispatch hands res to every sink. Sink failures are counted and reported
// but never interrupt capture.
func (s *Session) dispatch(
	ctx context.Context, sinks []wiegand.Sink, onSinkErr func(wiegand.Sink, error), res wiegand.DecodeResult,
) {
	for _, sink := range sinks {
		if err := s.consume(ctx, sink, res); err != nil {
			s.stateMutex.Lock()
			s.stats.SinkErrors++
			s.stateMutex.Unlock()

			wiegand.Debugf("session: sink %T failed: %v", sink, err)
			if onSinkErr != nil {
				onSinkErr(sink, err)
			}
		}
	}
}

func (s *Session) consume(ctx context.Context, sink wiegand.Sink, res wiegand.DecodeResult) error {
	if s.config.SinkTimeout <= 0 {
		return sink.Consume(ctx, res) //nolint:wrapcheck // reported per sink by dispatch
	}
	sinkCtx, cancel := context.WithTimeout(ctx, s.config.SinkTimeout)
	defer cancel()
	return sink.Consume(sinkCtx, res) //nolint:wrapcheck // reported per sink by dispatch
}

// Listen starts a session on source and returns a channel carrying every
// decode result. The channel is closed when ctx is done or the source stops.
// Start errors are returned directly. Rejected frames are delivered too,
// with Value left at 0; the raw bits stay in Frame for callers that want
// them.
func Listen(ctx context.Context, source wiegand.EdgeSource, config *Config) (<-chan wiegand.DecodeResult, error) {
	results := make(chan wiegand.DecodeResult)
	session := NewSession(source, config, wiegand.SinkFunc(
		func(sinkCtx context.Context, res wiegand.DecodeResult) error {
			select {
			case results <- res:
				return nil
			case <-sinkCtx.Done():
				return sinkCtx.Err()
			}
		}))
	// Channel consumers apply their own back pressure.
	session.config.SinkTimeout = 0

	if err := session.arm(ctx); err != nil {
		return nil, err
	}

	go func() {
		defer close(results)
		defer session.running.Store(false)
		if err := session.runPollingLoop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			wiegand.Debugf("listen: session ended: %v", err)
		}
	}()
	return results, nil
}
