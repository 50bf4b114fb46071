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
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Record outcome fields
const (
	RecordOK    = "OK"
	RecordError = "ERROR"
)

// FormatRecord renders a result as one comma-separated outcome line without
// the trailing newline:
//
//	<unix seconds>,<bit count>,<bits>,OK,<value>
//	<unix seconds>,<bit count>,<bits>,ERROR,<reason>
func FormatRecord(res DecodeResult) string {
	ts := res.Frame.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(ts.Unix(), 10))
	sb.WriteByte(',')
	sb.WriteString(strconv.Itoa(res.Frame.BitCount))
	sb.WriteByte(',')
	sb.WriteString(res.Frame.BitString())
	sb.WriteByte(',')
	if res.OK() {
		sb.WriteString(RecordOK)
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatUint(res.Value, 10))
	} else {
		sb.WriteString(RecordError)
		sb.WriteByte(',')
		sb.WriteString(Reason(res.Err))
	}
	return sb.String()
}

// ParseRecord parses a line produced by FormatRecord. It is the inverse used
// by consumers of the record stream.
func ParseRecord(line string) (DecodeResult, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), ",")
	if len(fields) != 5 {
		return DecodeResult{}, fmt.Errorf("record has %d fields, want 5", len(fields))
	}

	secs, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("record timestamp: %w", err)
	}
	count, err := strconv.Atoi(fields[1])
	if err != nil {
		return DecodeResult{}, fmt.Errorf("record bit count: %w", err)
	}
	bits, err := ParseBits(fields[2])
	if err != nil {
		return DecodeResult{}, fmt.Errorf("record bits: %w", err)
	}

	res := DecodeResult{
		Frame: Frame{Timestamp: time.Unix(secs, 0), BitCount: count, Bits: bits},
	}
	switch fields[3] {
	case RecordOK:
		res.Value, err = strconv.ParseUint(fields[4], 10, 64)
		if err != nil {
			return DecodeResult{}, fmt.Errorf("record value: %w", err)
		}
	case RecordError:
		switch fields[4] {
		case ErrWrongBitCount.Error():
			res.Err = &DecodeError{BitCount: count, Err: ErrWrongBitCount}
		case ErrParityMismatch.Error():
			res.Err = &DecodeError{BitCount: count, Err: ErrParityMismatch}
		default:
			return DecodeResult{}, fmt.Errorf("unknown record reason %q", fields[4])
		}
	default:
		return DecodeResult{}, fmt.Errorf("unknown record outcome %q", fields[3])
	}
	return res, nil
}

// RecordWriter is a Sink that writes one outcome line per frame and flushes
// it before returning.
type RecordWriter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewRecordWriter returns a RecordWriter on w. If w has a Flush method (for
// example *bufio.Writer) it is flushed after every record.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{w: w}
}

// Consume implements Sink.
func (r *RecordWriter) Consume(_ context.Context, res DecodeResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := io.WriteString(r.w, FormatRecord(res)+"\n"); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if f, ok := r.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush record: %w", err)
		}
	}
	return nil
}
