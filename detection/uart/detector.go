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

// Package uart detects serial ports that may carry a Wiegand pulse bridge.
package uart

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-wiegand/detection"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// knownBridges are USB-serial chips commonly used by the microcontroller
// boards that run bridge firmware.
var knownBridges = map[string]string{
	"2E8A:000A": "Raspberry Pi Pico",
	"2341:0043": "Arduino Uno",
	"2341:8036": "Arduino Leonardo",
	"1A86:7523": "CH340",
	"10C4:EA60": "CP210x",
	"0403:6001": "FT232",
	"303A:1001": "ESP32-S3",
}

// Test seams.
var (
	listPortsFn = enumerator.GetDetailedPortsList
	probeFn     = probePort
)

type detector struct{}

// New creates a UART detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns "uart".
func (*detector) Transport() string {
	return "uart"
}

// Detect lists serial ports. In Safe mode each port is opened once and
// ports that cannot be opened are dropped.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := listPortsFn()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		if ctx.Err() != nil {
			break
		}
		if port == nil || port.Name == "" {
			continue
		}
		if device, ok := d.processPort(ctx, port, opts); ok {
			devices = append(devices, device)
		}
	}

	devices = detection.Filter(devices, opts)
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func (*detector) processPort(
	ctx context.Context, port *enumerator.PortDetails, opts *detection.Options,
) (detection.DeviceInfo, bool) {
	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Name,
		Name:       port.Product,
		Confidence: detection.Low,
		Metadata:   make(map[string]string),
	}

	if port.IsUSB && port.VID != "" && port.PID != "" {
		vidpid := strings.ToUpper(port.VID + ":" + port.PID)
		device.Metadata["vidpid"] = vidpid
		if board, ok := knownBridges[vidpid]; ok {
			device.Metadata["board"] = board
			device.Confidence = detection.Medium
		}
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	if device.Name == "" {
		device.Name = port.Name
	}

	if opts.Mode != detection.Safe {
		return device, true
	}
	if !probeFn(ctx, port.Name) {
		return detection.DeviceInfo{}, false
	}
	if device.Confidence < detection.High {
		device.Confidence++
	}
	return device, true
}

// probePort opens and closes the port once. No bytes are written, so a
// device that is not a bridge is left untouched.
func probePort(ctx context.Context, path string) bool {
	if ctx.Err() != nil {
		return false
	}
	port, err := serial.Open(path, &serial.Mode{BaudRate: 115200})
	if err != nil {
		return false
	}
	_ = port.Close()
	return true
}
