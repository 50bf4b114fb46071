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

/*
Package wiegand decodes the Wiegand protocol used by access-control badge
readers.

A reader signals bits on two open-collector lines, D0 and D1, by pulling one
of them low for a few tens of microseconds per bit. A frame ends when the bus
stays quiet for longer than the idle threshold. This package captures the
edges, finds the frame boundary and validates the standard 26-bit format.

Features:
  - Edge capture safe for concurrent interrupt callbacks (Capture)
  - Idle-timeout frame detection with atomic extract-and-reset
  - 26-bit parity validation and value unpacking (Decode)
  - Edge sources for host GPIO pins and serial pulse bridges
  - Outcome records for logging and downstream tools

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-wiegand/polling"
	    "github.com/ZaparooProject/go-wiegand/transport/gpio"
	)

	source, err := gpio.New("GPIO17", "GPIO18")
	if err != nil {
	    return err
	}

	results, err := polling.Listen(ctx, source, polling.DefaultConfig())
	if err != nil {
	    return err
	}
	for res := range results {
	    if res.OK() {
	        fmt.Printf("facility %d card %d\n",
	            wiegand.FacilityCode(res.Value), wiegand.CardNumber(res.Value))
	    }
	}

Capture can also be driven directly from any interrupt mechanism:

	capture := wiegand.NewCapture()
	// call capture.Data0() and capture.Data1() from the edge callbacks
	if frame, ok := capture.ExtractFrame(); ok {
	    res := wiegand.DecodeFrame(frame)
	    fmt.Println(wiegand.FormatRecord(res))
	}

Debug output is enabled with the WIEGAND_DEBUG environment variable or
SetDebugEnabled, and can be mirrored to a file with InitSessionLog.
*/
package wiegand
