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

// Package feedback holds the sinks that react to decoded frames: a beeper,
// an MQTT publisher and Prometheus metrics. Async decouples slow sinks from
// the poll loop.
package feedback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	wiegand "github.com/ZaparooProject/go-wiegand"
	"github.com/ZaparooProject/go-wiegand/internal/syncutil"
	"github.com/rs/zerolog"
)

var (
	// ErrQueueFull is returned by Async.Consume when the queue has no room.
	ErrQueueFull = errors.New("feedback queue full")
	// ErrClosed is returned by sinks used after Close.
	ErrClosed = errors.New("feedback sink closed")
)

// DefaultQueueSize is the number of results Async buffers.
const DefaultQueueSize = 16

// AsyncMetrics tracks queued delivery.
type AsyncMetrics struct {
	Delivered int64
	Dropped   int64
	Failed    int64
}

// Async delivers results to an inner sink from its own goroutine, so a
// beeper pulse or a broker round trip never delays frame extraction.
type Async struct {
	inner     wiegand.Sink
	queue     chan wiegand.DecodeResult
	stopChan  chan struct{}
	logger    zerolog.Logger
	timeout   time.Duration
	wg        sync.WaitGroup
	// mu orders enqueues against Close: nothing is sent once closed is set.
	mu        syncutil.RWMutex
	closed    bool
	delivered atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewAsync starts a worker for inner. queueSize <= 0 uses DefaultQueueSize.
// timeout bounds each inner call; zero means no bound.
func NewAsync(inner wiegand.Sink, queueSize int, timeout time.Duration, logger zerolog.Logger) *Async {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	a := &Async{
		inner:    inner,
		queue:    make(chan wiegand.DecodeResult, queueSize),
		stopChan: make(chan struct{}),
		logger:   logger,
		timeout:  timeout,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Consume enqueues res without blocking. A nil return means the worker
// will deliver res, even if Close follows immediately.
func (a *Async) Consume(_ context.Context, res wiegand.DecodeResult) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}

	select {
	case a.queue <- res:
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer a.wg.Done()
	for {
		select {
		case res := <-a.queue:
			a.deliver(res)
		case <-a.stopChan:
			// Flush what was accepted before Close.
			for {
				select {
				case res := <-a.queue:
					a.deliver(res)
				default:
					return
				}
			}
		}
	}
}

func (a *Async) deliver(res wiegand.DecodeResult) {
	ctx := context.Background()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	if err := a.inner.Consume(ctx, res); err != nil {
		a.failed.Add(1)
		a.logger.Warn().Err(err).Str("sink", sinkName(a.inner)).Msg("feedback delivery failed")
		return
	}
	a.delivered.Add(1)
}

// Metrics returns delivery counters.
func (a *Async) Metrics() AsyncMetrics {
	return AsyncMetrics{
		Delivered: a.delivered.Load(),
		Dropped:   a.dropped.Load(),
		Failed:    a.failed.Load(),
	}
}

// Close stops accepting results, drains the queue and waits for the worker.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.stopChan)
	}
	a.mu.Unlock()
	a.wg.Wait()
	return nil
}

func sinkName(s wiegand.Sink) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "sink"
}
