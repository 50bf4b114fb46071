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
	"runtime"
	"syscall"
)

// Decode outcomes. Both are reported per frame and never stop capture.
var (
	// ErrWrongBitCount means the frame length is not one the decoder supports.
	ErrWrongBitCount = errors.New("wrong bit count")
	// ErrParityMismatch means a 26-bit frame failed its parity check.
	ErrParityMismatch = errors.New("parity")
)

// Edge source errors
var (
	ErrSourceClosed   = errors.New("edge source is closed")
	ErrSourceStarted  = errors.New("edge source already started")
	ErrSourceNotReady = errors.New("edge source not ready")
	ErrInvalidPin     = errors.New("invalid pin")
	ErrNoHandler      = errors.New("edge handler is nil")
)

// Data errors
var (
	ErrInvalidBits     = errors.New("invalid bit string")
	ErrValueOutOfRange = errors.New("value does not fit in 24 payload bits")
)

// ErrorType represents the category of an edge source error
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates the source is gone and capture should stop
	ErrorTypePermanent
)

// DecodeError carries the bit count of a rejected frame.
type DecodeError struct {
	Err      error
	BitCount int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %d-bit frame: %v", e.BitCount, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Reason returns the short reason used in outcome records: "wrong bit count"
// or "parity". Other errors are rendered with their message.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWrongBitCount):
		return ErrWrongBitCount.Error()
	case errors.Is(err, ErrParityMismatch):
		return ErrParityMismatch.Error()
	default:
		return err.Error()
	}
}

// SourceError wraps edge source failures with the operation and line that
// produced them.
type SourceError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Source    string    // Pin name or port path
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *SourceError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Source, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError builds a SourceError, classifying err as permanent when it
// indicates the device has gone away.
func NewSourceError(op, source string, err error) *SourceError {
	errType := ErrorTypeTransient
	if IsFatal(err) {
		errType = ErrorTypePermanent
	}
	return &SourceError{
		Err:       err,
		Op:        op,
		Source:    source,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient && !isConfigError(err),
	}
}

// isConfigError reports errors that no amount of retrying will fix.
func isConfigError(err error) bool {
	return errors.Is(err, ErrInvalidPin) || errors.Is(err, ErrNoHandler)
}

// IsRetryable returns true if opening or reading a source may succeed when
// attempted again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var se *SourceError
	if errors.As(err, &se) {
		return se.Retryable
	}

	return errors.Is(err, ErrSourceNotReady)
}

// IsFatal returns true if the error indicates the edge source is gone and
// the session should stop.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var se *SourceError
	if errors.As(err, &se) {
		return se.Type == ErrorTypePermanent
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrSourceClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// Windows error codes for device disconnection detection.
const (
	errAccessDenied syscall.Errno = 5   // ERROR_ACCESS_DENIED
	errGenFailure   syscall.Errno = 31  // ERROR_GEN_FAILURE
	errNoSuchDevice syscall.Errno = 433 // ERROR_NO_SUCH_DEVICE
)

// isDeviceGoneError checks for OS-level errors raised when a USB serial
// bridge is unplugged or a GPIO chip disappears during I/O.
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	//nolint:exhaustive // Only checking specific device-gone errors
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}

	if runtime.GOOS == "windows" {
		//nolint:exhaustive // Only checking specific device-gone errors
		switch errno {
		case errAccessDenied, errGenFailure, errNoSuchDevice:
			return true
		}
	}
	return false
}
