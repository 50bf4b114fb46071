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
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBits(t *testing.T) {
	t.Parallel()

	bits, err := ParseBits("10_1 1,0\n")
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, true, false}, bits)
	assert.Equal(t, "10110", FormatBits(bits))

	_, err = ParseBits("10x1")
	require.ErrorIs(t, err, ErrInvalidBits)
	assert.Contains(t, err.Error(), "offset 2")
}

func TestFrame_Truncated(t *testing.T) {
	t.Parallel()

	assert.False(t, Frame{Bits: make([]bool, 26), BitCount: 26}.Truncated())
	assert.True(t, Frame{Bits: make([]bool, 2), BitCount: 4}.Truncated())
	assert.Empty(t, Frame{}.BitString())
}

func TestFormatRecord(t *testing.T) {
	t.Parallel()

	ts := time.Unix(1700000000, 0)
	bits, err := Encode26(0x2A1F40)
	require.NoError(t, err)

	ok := DecodeFrame(Frame{Timestamp: ts, Bits: bits, BitCount: 26})
	assert.Equal(t, "1700000000,26,"+FormatBits(bits)+",OK,2760512", FormatRecord(ok))

	short := DecodeFrame(Frame{Timestamp: ts, Bits: []bool{true, false}, BitCount: 2})
	assert.Equal(t, "1700000000,2,10,ERROR,wrong bit count", FormatRecord(short))

	bits[3] = !bits[3]
	bad := DecodeFrame(Frame{Timestamp: ts, Bits: bits, BitCount: 26})
	assert.True(t, strings.HasSuffix(FormatRecord(bad), ",ERROR,parity"))
}

func TestFormatRecord_ZeroTimestampUsesNow(t *testing.T) {
	t.Parallel()

	before := time.Now().Unix()
	res, err := ParseRecord(FormatRecord(Decode([]bool{true}, 1)))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Frame.Timestamp.Unix(), before)
}

func TestParseRecord(t *testing.T) {
	t.Parallel()

	res, err := ParseRecord("1700000000,26,00010101000011111010000000,OK,2760512\n")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, uint64(2760512), res.Value)
	assert.Equal(t, 26, res.Frame.BitCount)
	assert.Len(t, res.Frame.Bits, 26)

	res, err = ParseRecord("1700000000,10,0000000000,ERROR,wrong bit count")
	require.NoError(t, err)
	require.ErrorIs(t, res.Err, ErrWrongBitCount)

	res, err = ParseRecord("1700000000,26,00010101000011111010000001,ERROR,parity")
	require.NoError(t, err)
	require.ErrorIs(t, res.Err, ErrParityMismatch)
}

func TestParseRecord_Errors(t *testing.T) {
	t.Parallel()

	for _, line := range []string{
		"",
		"1,2,3",
		"abc,26,0,OK,1",
		"1,x,0,OK,1",
		"1,1,2,OK,1",
		"1,1,1,OK,-1",
		"1,1,1,ERROR,bored",
		"1,1,1,MAYBE,1",
	} {
		_, err := ParseRecord(line)
		require.Error(t, err, "line %q", line)
	}
}

type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() error {
	f.flushes++
	return nil
}

func TestRecordWriter(t *testing.T) {
	t.Parallel()

	out := &flushRecorder{}
	w := NewRecordWriter(out)
	bits, err := Encode26(42)
	require.NoError(t, err)

	require.NoError(t, w.Consume(context.Background(), Decode(bits, 26)))
	require.NoError(t, w.Consume(context.Background(), Decode(bits[:3], 3)))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], ",OK,42"))
	assert.True(t, strings.HasSuffix(lines[1], ",ERROR,wrong bit count"))
	assert.Equal(t, 2, out.flushes)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestRecordWriter_Errors(t *testing.T) {
	t.Parallel()

	err := NewRecordWriter(failingWriter{}).Consume(context.Background(), Decode(nil, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write record")

	// A buffered writer too small for the record surfaces the flush error.
	bw := bufio.NewWriterSize(failingWriter{}, 16)
	err = NewRecordWriter(bw).Consume(context.Background(), Decode(nil, 0))
	require.Error(t, err)
}

func TestSinkFunc(t *testing.T) {
	t.Parallel()

	var got DecodeResult
	var s Sink = SinkFunc(func(_ context.Context, res DecodeResult) error {
		got = res
		return nil
	})
	require.NoError(t, s.Consume(context.Background(), DecodeResult{Value: 7}))
	assert.Equal(t, uint64(7), got.Value)
}
