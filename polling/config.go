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
	"time"

	wiegand "github.com/ZaparooProject/go-wiegand"
)

// RecoveryConfig configures restarting an edge source that stopped with a
// transient error, such as a USB serial bridge that was briefly unplugged.
type RecoveryConfig struct {
	// Enabled turns source recovery on
	Enabled bool

	// MaxAttempts is the number of reopen attempts before the session
	// returns the source error. Default: 5
	MaxAttempts int

	// Backoff is the delay between reopen attempts
	Backoff time.Duration
}

// DefaultRecoveryConfig returns sensible defaults for source recovery
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Enabled:     true,
		MaxAttempts: 5,
		Backoff:     time.Second,
	}
}

// Config holds polling configuration options
type Config struct {
	// SourceRetry controls retries when first arming the edge source.
	SourceRetry *wiegand.RetryConfig
	// PollInterval is how long the loop sleeps when no frame is pending.
	PollInterval time.Duration
	// IdleThreshold is the bus silence that ends a frame.
	IdleThreshold time.Duration
	// SinkTimeout bounds each sink call. Zero means no timeout.
	SinkTimeout time.Duration
	// Recovery configures restarting a source that stopped unexpectedly.
	Recovery RecoveryConfig
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:  wiegand.DefaultPollInterval,
		IdleThreshold: wiegand.DefaultIdleThreshold,
		SinkTimeout:   2 * time.Second,
		SourceRetry:   wiegand.DefaultRetryConfig(),
		Recovery:      DefaultRecoveryConfig(),
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.PollInterval <= 0 {
		out.PollInterval = def.PollInterval
	}
	if out.IdleThreshold <= 0 {
		out.IdleThreshold = def.IdleThreshold
	}
	if out.SourceRetry == nil {
		out.SourceRetry = def.SourceRetry
	}
	if out.Recovery.Enabled {
		if out.Recovery.MaxAttempts <= 0 {
			out.Recovery.MaxAttempts = def.Recovery.MaxAttempts
		}
		if out.Recovery.Backoff <= 0 {
			out.Recovery.Backoff = def.Recovery.Backoff
		}
	}
	return &out
}
