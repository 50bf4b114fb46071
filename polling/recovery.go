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
	"fmt"
	"time"

	wiegand "github.com/ZaparooProject/go-wiegand"
	"github.com/ZaparooProject/go-wiegand/internal/syncutil"
)

// SourceRecoverer brings an edge source back after it stopped with an error.
type SourceRecoverer interface {
	// Recover returns a new, started source delivering edges to h.
	Recover(ctx context.Context, h wiegand.EdgeHandler) (wiegand.EdgeSource, error)
}

// ReopenFunc opens a fresh edge source, for example by reopening the same
// serial port path.
type ReopenFunc func() (wiegand.EdgeSource, error)

// DefaultRecoverer reopens the source with a fixed backoff between attempts.
type DefaultRecoverer struct {
	reopenFunc  ReopenFunc
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewDefaultRecoverer creates a recoverer that calls reopenFunc up to
// maxAttempts times, waiting backoff before each attempt.
func NewDefaultRecoverer(reopenFunc ReopenFunc, backoff time.Duration, maxAttempts int) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{
		reopenFunc:  reopenFunc,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// Recover implements SourceRecoverer.
func (r *DefaultRecoverer) Recover(ctx context.Context, h wiegand.EdgeHandler) (wiegand.EdgeSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for attempt := range r.maxAttempts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.backoff):
		}

		src, err := r.reopenFunc()
		if err != nil {
			wiegand.Debugf("recovery attempt %d: reopen failed: %v", attempt+1, err)
			lastErr = err
			continue
		}
		if err := src.Start(ctx, h); err != nil {
			wiegand.Debugf("recovery attempt %d: start failed: %v", attempt+1, err)
			_ = src.Close()
			lastErr = err
			continue
		}
		return src, nil
	}

	return nil, fmt.Errorf("source recovery failed after %d attempts: %w", r.maxAttempts, lastErr)
}
