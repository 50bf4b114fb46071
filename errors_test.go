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
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("frame: %w", &DecodeError{BitCount: 10, Err: ErrWrongBitCount})
	require.ErrorIs(t, err, ErrWrongBitCount)
	assert.Equal(t, "frame: decode 10-bit frame: wrong bit count", err.Error())
	assert.Equal(t, "wrong bit count", Reason(err))

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 10, de.BitCount)
}

func TestReason(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Reason(nil))
	assert.Equal(t, "parity", Reason(&DecodeError{BitCount: 26, Err: ErrParityMismatch}))
	assert.Equal(t, "boom", Reason(errors.New("boom")))
}

func TestSourceError(t *testing.T) {
	t.Parallel()

	withSource := NewSourceError("open", "GPIO17", ErrSourceNotReady)
	assert.Equal(t, "open GPIO17: edge source not ready", withSource.Error())
	require.ErrorIs(t, withSource, ErrSourceNotReady)
	assert.Equal(t, ErrorTypeTransient, withSource.Type)
	assert.True(t, withSource.Retryable)

	bare := NewSourceError("read", "", io.EOF)
	assert.Equal(t, "read: EOF", bare.Error())
	assert.Equal(t, ErrorTypePermanent, bare.Type)
	assert.False(t, bare.Retryable)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "not ready", err: ErrSourceNotReady, want: true},
		{name: "wrapped not ready", err: fmt.Errorf("arm: %w", ErrSourceNotReady), want: true},
		{name: "transient source error", err: NewSourceError("open", "d0", errors.New("busy")), want: true},
		{name: "invalid pin", err: NewSourceError("open", "d0", ErrInvalidPin), want: false},
		{name: "no handler", err: NewSourceError("start", "mock", ErrNoHandler), want: false},
		{name: "device gone", err: NewSourceError("read", "ttyUSB0", syscall.ENODEV), want: false},
		{name: "plain error", err: errors.New("other"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "closed", err: ErrSourceClosed, want: true},
		{name: "eof", err: fmt.Errorf("read: %w", io.EOF), want: true},
		{name: "closed pipe", err: io.ErrClosedPipe, want: true},
		{name: "eio", err: syscall.EIO, want: true},
		{name: "enxio wrapped", err: fmt.Errorf("poll: %w", syscall.ENXIO), want: true},
		{name: "permanent source error", err: NewSourceError("read", "x", syscall.ENODEV), want: true},
		{name: "transient source error", err: NewSourceError("read", "x", errors.New("timeout")), want: false},
		{name: "eagain", err: syscall.EAGAIN, want: false},
		{name: "parity", err: ErrParityMismatch, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}
