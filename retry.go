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
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// RetryConfig shapes the backoff used when arming edge sources and
// connecting network sinks.
type RetryConfig struct {
	// RetryIf decides whether an error is worth another attempt.
	// Defaults to IsRetryable.
	RetryIf func(error) bool
	// MaxAttempts caps the number of calls. Zero or less means one call and
	// no retry.
	MaxAttempts int
	// InitialBackoff is the pause after the first failure.
	InitialBackoff time.Duration
	// MaxBackoff caps the pause between attempts.
	MaxBackoff time.Duration
	// BackoffMultiplier grows the pause after each failure.
	BackoffMultiplier float64
	// Jitter adds up to this fraction of the pause at random, so several
	// readers restarting together do not hit a broker in lockstep.
	Jitter float64
	// RetryTimeout bounds all attempts together. Zero means no bound.
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns the backoff used when opening edge sources.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       SourceOpenRetries,
		InitialBackoff:    SourceOpenInitialBackoff,
		MaxBackoff:        SourceOpenMaxBackoff,
		BackoffMultiplier: SourceOpenBackoffMultiplier,
		Jitter:            SourceOpenJitter,
		RetryTimeout:      SourceOpenRetryTimeout,
	}
}

// RetryableFunc is one attempt of a retried operation.
type RetryableFunc func() error

// RetryWithConfig calls fn until it succeeds, returns an error RetryIf
// rejects, or the attempts or timeout run out. The last attempt's error is
// returned. A nil config uses DefaultRetryConfig.
func RetryWithConfig(ctx context.Context, config *RetryConfig, fn RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 0 {
		return fn()
	}

	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}

	retryIf := config.RetryIf
	if retryIf == nil {
		retryIf = IsRetryable
	}

	var lastErr error
	backoff := config.InitialBackoff
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry context cancelled: %w", ctx.Err())
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !retryIf(err) {
			return err
		}
		lastErr = err
		Debugf("attempt %d/%d failed: %v", attempt, config.MaxAttempts, err)

		if attempt == config.MaxAttempts {
			break
		}
		if !pause(ctx, calculateJitteredSleep(backoff, config.Jitter)) {
			return lastErr
		}
		backoff = calculateNextBackoff(backoff, config)
	}
	return lastErr
}

// pause sleeps for d and reports false if ctx ended first.
func pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func calculateNextBackoff(backoff time.Duration, config *RetryConfig) time.Duration {
	return min(time.Duration(float64(backoff)*config.BackoffMultiplier), config.MaxBackoff)
}

// calculateJitteredSleep adds a random share of up to jitterFactor of
// baseSleep.
func calculateJitteredSleep(baseSleep time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return baseSleep
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return baseSleep
	}
	frac := float64(binary.LittleEndian.Uint64(buf[:])) / float64(1<<64)
	return baseSleep + time.Duration(frac*jitterFactor*float64(baseSleep))
}
