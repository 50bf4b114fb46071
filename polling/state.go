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
	"errors"
	"time"

	wiegand "github.com/ZaparooProject/go-wiegand"
)

// ErrSessionRunning is returned when Start is called on a running session.
var ErrSessionRunning = errors.New("session already running")

// ErrSessionClosed is returned when Start is called after Close.
var ErrSessionClosed = errors.New("session is closed")

// Stats counts what a session has seen since it was created.
type Stats struct {
	LastFrameAt      time.Time
	FramesOK         uint64
	FramesWrongCount uint64
	FramesParity     uint64
	DroppedEdges     uint64
	SinkErrors       uint64
	Recoveries       uint64
}

// Frames returns the total number of frames decoded or rejected.
func (s Stats) Frames() uint64 {
	return s.FramesOK + s.FramesWrongCount + s.FramesParity
}

// record updates the counters for one decode result.
func (s *Stats) record(res wiegand.DecodeResult) {
	s.LastFrameAt = res.Frame.Timestamp
	switch {
	case res.OK():
		s.FramesOK++
	case errors.Is(res.Err, wiegand.ErrWrongBitCount):
		s.FramesWrongCount++
	case errors.Is(res.Err, wiegand.ErrParityMismatch):
		s.FramesParity++
	}
}
