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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2.0,
		RetryTimeout:      time.Second,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	t.Parallel()

	config := DefaultRetryConfig()
	assert.Equal(t, SourceOpenRetries, config.MaxAttempts)
	assert.Greater(t, config.MaxBackoff, config.InitialBackoff)
	assert.Greater(t, config.BackoffMultiplier, 1.0)
	assert.GreaterOrEqual(t, config.Jitter, 0.0)
	assert.LessOrEqual(t, config.Jitter, 1.0)
	assert.Nil(t, config.RetryIf)
}

func TestRetryConstants(t *testing.T) {
	t.Parallel()

	assert.Less(t, DefaultIdleThreshold, 10*time.Millisecond)
	assert.Greater(t, DefaultIdleThreshold, 2*time.Millisecond, "must exceed a reader's inter-bit gap")
	assert.LessOrEqual(t, DefaultPollInterval, 10*time.Millisecond)
	assert.Greater(t, SourceOpenRetryTimeout, SourceOpenMaxBackoff)
	assert.Equal(t, 32, MaxBits)
}

func TestCalculateNextBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		config  *RetryConfig
		name    string
		current time.Duration
		want    time.Duration
	}{
		{
			name:    "doubles",
			current: 100 * time.Millisecond,
			config:  &RetryConfig{BackoffMultiplier: 2.0, MaxBackoff: time.Second},
			want:    200 * time.Millisecond,
		},
		{
			name:    "capped",
			current: 800 * time.Millisecond,
			config:  &RetryConfig{BackoffMultiplier: 2.0, MaxBackoff: time.Second},
			want:    time.Second,
		},
		{
			name:    "fractional",
			current: 200 * time.Millisecond,
			config:  &RetryConfig{BackoffMultiplier: 1.5, MaxBackoff: time.Second},
			want:    300 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, calculateNextBackoff(tt.current, tt.config))
		})
	}
}

func TestCalculateJitteredSleep(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	assert.Equal(t, base, calculateJitteredSleep(base, 0))
	for range 20 {
		sleep := calculateJitteredSleep(base, 0.5)
		assert.GreaterOrEqual(t, sleep, base)
		assert.LessOrEqual(t, sleep, base+base/2)
	}
}

func TestRetryWithConfig_SucceedsAfterTransientErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return ErrSourceNotReady
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithConfig_StopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), fastRetry(5), func() error {
		calls++
		return ErrInvalidPin
	})
	require.ErrorIs(t, err, ErrInvalidPin)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfig_ReturnsLastError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), fastRetry(2), func() error {
		calls++
		return ErrSourceNotReady
	})
	require.ErrorIs(t, err, ErrSourceNotReady)
	assert.Equal(t, 2, calls)
}

func TestRetryWithConfig_RetryIf(t *testing.T) {
	t.Parallel()

	config := fastRetry(3)
	config.RetryIf = func(error) bool { return true }

	calls := 0
	errBroker := errors.New("broker unavailable")
	err := RetryWithConfig(context.Background(), config, func() error {
		calls++
		return errBroker
	})
	require.ErrorIs(t, err, errBroker)
	assert.Equal(t, 3, calls)
}

func TestRetryWithConfig_NoAttemptsCallsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), &RetryConfig{}, func() error {
		calls++
		return ErrSourceNotReady
	})
	require.ErrorIs(t, err, ErrSourceNotReady)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfig_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := RetryWithConfig(ctx, fastRetry(3), func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
