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

import "fmt"

const (
	// Wiegand26Bits is the only frame length the decoder accepts.
	Wiegand26Bits = 26

	// payloadBits is the number of credential bits between the parity bits.
	payloadBits = Wiegand26Bits - 2
	halfFrame   = Wiegand26Bits / 2

	// MaxValue26 is the largest value a 26-bit frame can carry.
	MaxValue26 = 1<<payloadBits - 1
)

// DecodeResult is the outcome of decoding one frame.
type DecodeResult struct {
	// Err is nil on success, otherwise a *DecodeError wrapping
	// ErrWrongBitCount or ErrParityMismatch.
	Err   error
	Frame Frame
	Value uint64
}

// OK reports whether the frame decoded successfully.
func (r DecodeResult) OK() bool {
	return r.Err == nil
}

// Decode validates and unpacks count captured bits. bits must hold at least
// count values for the frame to be accepted.
func Decode(bits []bool, count int) DecodeResult {
	return DecodeFrame(Frame{
		BitCount: count,
		Bits:     bits[:max(0, min(count, len(bits)))],
	})
}

// DecodeFrame validates a standard 26-bit frame: bit 0 gives the first 13
// bits even parity, bit 25 gives the last 13 bits odd parity, and bits 1..24
// are the value, most significant first. Frames of any other length are
// rejected without looking at parity.
func DecodeFrame(f Frame) DecodeResult {
	res := DecodeResult{Frame: f}

	if f.BitCount != Wiegand26Bits || len(f.Bits) < Wiegand26Bits {
		res.Err = &DecodeError{BitCount: f.BitCount, Err: ErrWrongBitCount}
		return res
	}

	even := xorBits(f.Bits[:halfFrame])
	odd := xorBits(f.Bits[halfFrame:Wiegand26Bits])
	if even || !odd {
		res.Err = &DecodeError{BitCount: f.BitCount, Err: ErrParityMismatch}
		return res
	}

	res.Value = packPayload(f.Bits)
	return res
}

func xorBits(bits []bool) bool {
	var x bool
	for _, b := range bits {
		x = x != b
	}
	return x
}

// packPayload walks the payload from the last bit to the first, so the
// first payload bit ends up most significant.
func packPayload(bits []bool) uint64 {
	var val uint64
	mask := uint64(1)
	for j := payloadBits; j > 0; j-- {
		if bits[j] {
			val |= mask
		}
		mask <<= 1
	}
	return val
}

// Encode26 builds a valid 26-bit frame carrying value, including both
// parity bits.
func Encode26(value uint64) ([]bool, error) {
	if value > MaxValue26 {
		return nil, fmt.Errorf("%w: %d", ErrValueOutOfRange, value)
	}

	bits := make([]bool, Wiegand26Bits)
	for j := 1; j <= payloadBits; j++ {
		bits[j] = value>>(payloadBits-j)&1 == 1
	}
	bits[0] = xorBits(bits[1:halfFrame])
	bits[Wiegand26Bits-1] = !xorBits(bits[halfFrame : Wiegand26Bits-1])
	return bits, nil
}

// FacilityCode returns the 8-bit facility code of a 26-bit (H10301) value.
func FacilityCode(value uint64) uint8 {
	return uint8(value >> 16 & 0xFF)
}

// CardNumber returns the 16-bit card number of a 26-bit (H10301) value.
func CardNumber(value uint64) uint16 {
	return uint16(value & 0xFFFF)
}
