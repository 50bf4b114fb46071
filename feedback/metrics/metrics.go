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

// Package metrics exports decode outcomes as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	wiegand "github.com/ZaparooProject/go-wiegand"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Result label values.
const (
	ResultOK            = "ok"
	ResultWrongBitCount = "wrong_bit_count"
	ResultParity        = "parity"
	ResultOther         = "error"

	shutdownTimeout = 5 * time.Second
)

// Sink counts frames by outcome.
type Sink struct {
	Frames        *prometheus.CounterVec
	BitCount      prometheus.Histogram
	LastFrameTime prometheus.Gauge
	registerer    prometheus.Registerer
}

// New registers the frame metrics with reg.
func New(reg prometheus.Registerer) *Sink {
	factory := promauto.With(reg)
	return &Sink{
		Frames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wiegand_frames_total",
			Help: "Frames extracted from the bus, by decode result",
		}, []string{"result"}),
		BitCount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wiegand_frame_bits",
			Help:    "Number of edges captured per frame",
			Buckets: prometheus.LinearBuckets(4, 4, 8), // 4 to 32 bits
		}),
		LastFrameTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wiegand_last_frame_timestamp_seconds",
			Help: "Unix time of the most recent frame",
		}),
		registerer: reg,
	}
}

// Name identifies the sink in logs.
func (*Sink) Name() string {
	return "metrics"
}

// Consume records one frame.
func (s *Sink) Consume(_ context.Context, res wiegand.DecodeResult) error {
	s.Frames.WithLabelValues(resultLabel(res)).Inc()
	s.BitCount.Observe(float64(res.Frame.BitCount))
	if !res.Frame.Timestamp.IsZero() {
		s.LastFrameTime.Set(float64(res.Frame.Timestamp.Unix()))
	}
	return nil
}

// WatchCapture exports the capture buffer's dropped edge counter.
func (s *Sink) WatchCapture(c *wiegand.Capture) error {
	collector := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "wiegand_dropped_edges_total",
		Help: "Edges discarded because the capture buffer was full",
	}, func() float64 {
		return float64(c.DroppedEdges())
	})
	if err := s.registerer.Register(collector); err != nil {
		return fmt.Errorf("failed to register dropped edge metric: %w", err)
	}
	return nil
}

func resultLabel(res wiegand.DecodeResult) string {
	switch {
	case res.OK():
		return ResultOK
	case errors.Is(res.Err, wiegand.ErrWrongBitCount):
		return ResultWrongBitCount
	case errors.Is(res.Err, wiegand.ErrParityMismatch):
		return ResultParity
	default:
		return ResultOther
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return nil
	}
}
