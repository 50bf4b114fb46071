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

package testing

import (
	"math/rand/v2"
	"time"
)

// JitterConfig shapes the timing of simulated Wiegand pulses. Real readers
// do not hold a perfectly steady bit period, and some emit a stray pulse
// when a card is presented at an angle.
type JitterConfig struct {
	// MaxGapJitter is added to each inter-bit gap, uniformly in [0, MaxGapJitter].
	MaxGapJitter time.Duration
	// StallAfterBits inserts an extra StallDuration pause after that many
	// bits. A stall longer than the idle threshold splits the frame in two.
	StallAfterBits int
	StallDuration  time.Duration
	// Seed makes the jitter reproducible. Zero picks a random seed.
	Seed uint64
}

// DefaultJitterConfig returns jitter typical of a cheap 26-bit reader.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxGapJitter: 200 * time.Microsecond,
	}
}

// jitterSource turns a JitterConfig into per-bit delays.
type jitterSource struct {
	rng    *rand.Rand
	config JitterConfig
}

func newJitterSource(config JitterConfig) *jitterSource {
	var rng *rand.Rand
	if config.Seed != 0 {
		rng = rand.New(rand.NewPCG(config.Seed, config.Seed^0xDEADBEEF)) //nolint:gosec // Test code, not crypto
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // Test code, not crypto
	}
	return &jitterSource{rng: rng, config: config}
}

// gapAfter returns the pause to insert after bit index i (zero-based).
func (j *jitterSource) gapAfter(i int, base time.Duration) time.Duration {
	gap := base
	if j.config.MaxGapJitter > 0 {
		gap += time.Duration(j.rng.Int64N(int64(j.config.MaxGapJitter) + 1))
	}
	if j.config.StallAfterBits > 0 && i+1 == j.config.StallAfterBits {
		gap += j.config.StallDuration
	}
	return gap
}
