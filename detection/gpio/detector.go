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

// Package gpio lists host GPIO pins that could carry the Wiegand D0 and D1
// lines.
package gpio

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ZaparooProject/go-wiegand/detection"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/pin"
	"periph.io/x/host/v3"
)

// Test seams.
var (
	initFn    = func() error { _, err := host.Init(); return err }
	allPinsFn = gpioreg.All
)

type detector struct{}

// New creates a GPIO detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns "gpio".
func (*detector) Transport() string {
	return "gpio"
}

// Detect lists free GPIO pins. Pins muxed to a bus function such as
// UART0_TX or I2C1_SDA are skipped. Pins whose reset pull is up rank higher
// since the data lines idle high. In Safe mode each pin is read with the
// pull-up enabled and a pin that reads high gains confidence.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if err := initFn(); err != nil {
		return nil, fmt.Errorf("%w: periph host: %v", detection.ErrUnsupportedPlatform, err)
	}

	var devices []detection.DeviceInfo
	for _, p := range allPinsFn() {
		if ctx.Err() != nil {
			break
		}
		if p.Number() < 0 {
			continue
		}
		fn := function(p)
		if strings.Contains(fn, "_") {
			continue
		}

		device := detection.DeviceInfo{
			Transport:  "gpio",
			Path:       p.Name(),
			Name:       p.String(),
			Confidence: detection.Low,
			Metadata: map[string]string{
				"number": strconv.Itoa(p.Number()),
			},
		}
		if fn != "" {
			device.Metadata["function"] = fn
		}
		if p.DefaultPull() == gpio.PullUp {
			device.Confidence = detection.Medium
		}
		if opts.Mode == detection.Safe && idlesHigh(p) && device.Confidence < detection.High {
			device.Confidence++
		}
		devices = append(devices, device)
	}

	devices = detection.Filter(devices, opts)
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func function(p gpio.PinIO) string {
	if pf, ok := p.(pin.PinFunc); ok {
		return string(pf.Func())
	}
	return p.Function()
}

// idlesHigh arms the pull-up without edge detection and reads the level.
func idlesHigh(p gpio.PinIO) bool {
	defer func() { _ = p.Halt() }()
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return false
	}
	return p.Read() == gpio.High
}
