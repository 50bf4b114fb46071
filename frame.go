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
	"fmt"
	"strings"
	"time"
)

// Frame is one burst of bits bounded by bus silence.
type Frame struct {
	// Timestamp is the wall-clock time the frame was extracted.
	Timestamp time.Time
	// Bits holds the captured bits in arrival order.
	Bits []bool
	// BitCount is the number of bits the capture reported. It is larger than
	// len(Bits) when the extractor's buffer was too small.
	BitCount int
}

// Truncated reports whether fewer bits were copied than were counted.
func (f Frame) Truncated() bool {
	return f.BitCount > len(f.Bits)
}

// BitString renders the bits as a string of '0' and '1'.
func (f Frame) BitString() string {
	return FormatBits(f.Bits)
}

// FormatBits renders bits as a string of '0' and '1'.
func FormatBits(bits []bool) string {
	var sb strings.Builder
	sb.Grow(len(bits))
	for _, b := range bits {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// ParseBits parses a string of '0' and '1'. Commas, underscores and
// whitespace are accepted as visual separators and skipped.
func ParseBits(s string) ([]bool, error) {
	bits := make([]bool, 0, len(s))
	for i, r := range s {
		switch r {
		case '0':
			bits = append(bits, false)
		case '1':
			bits = append(bits, true)
		case ',', '_', ' ', '\t', '\n', '\r':
		default:
			return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrInvalidBits, r, i)
		}
	}
	return bits, nil
}
