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

import "time"

// Clock supplies monotonic timestamps used to stamp edges and measure bus
// idle time. Values are only meaningful relative to each other.
type Clock interface {
	Now() time.Duration
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Duration

// Now implements Clock.
func (f ClockFunc) Now() time.Duration {
	return f()
}

var processStart = time.Now()

// SystemClock reads the host monotonic clock. On Linux this is CLOCK_MONOTONIC,
// the same timebase the kernel uses for GPIO line event timestamps.
var SystemClock Clock = ClockFunc(monotonicNow)
