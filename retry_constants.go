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

const (
	// SourceOpenRetries is the number of attempts to arm an edge source.
	// GPIO character devices can briefly report EBUSY after a previous
	// owner released the lines.
	SourceOpenRetries = 3
	// SourceOpenInitialBackoff is the initial delay between open attempts.
	SourceOpenInitialBackoff = 100 * time.Millisecond
	// SourceOpenMaxBackoff is the maximum delay between open attempts.
	SourceOpenMaxBackoff = time.Second
	// SourceOpenBackoffMultiplier is the exponential backoff multiplier.
	SourceOpenBackoffMultiplier = 2.0
	// SourceOpenJitter is the random jitter factor (0.0-1.0).
	SourceOpenJitter = 0.1
	// SourceOpenRetryTimeout is the overall timeout for all open attempts.
	SourceOpenRetryTimeout = 10 * time.Second
)

const (
	// DefaultPollInterval is how long the consumer sleeps when no frame is
	// pending. Frame boundaries are detected on the millisecond scale, so a
	// few milliseconds keeps latency low without spinning.
	DefaultPollInterval = 5 * time.Millisecond

	// EdgeWaitTimeout bounds each blocking wait for an edge so source
	// goroutines notice cancellation.
	EdgeWaitTimeout = 100 * time.Millisecond
)
