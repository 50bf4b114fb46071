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

// Package detection finds candidate Wiegand edge sources on the host: GPIO
// pins that can carry D0/D1 and serial ports that may be a pulse bridge.
// Detectors register themselves from their package init, so importing
// detection/gpio or detection/uart is enough to enable them.
package detection

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Mode controls how much a detector touches the hardware.
type Mode int

const (
	// Passive only enumerates what the OS reports.
	Passive Mode = iota
	// Safe also opens each candidate briefly to confirm it is usable.
	Safe
)

// Confidence ranks how likely a candidate is to be a working edge source.
type Confidence int

const (
	// Low means the candidate exists but nothing suggests a reader is wired.
	Low Confidence = iota
	// Medium means the candidate matches a known bridge or was opened.
	Medium
	// High means the candidate is a known bridge and was opened.
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// DeviceInfo describes one candidate edge source.
type DeviceInfo struct {
	// Metadata holds extra detail, e.g. "vidpid" for USB bridges or
	// "number" for GPIO pins.
	Metadata map[string]string
	// Transport is "gpio" or "uart".
	Transport string
	// Path is what the CLI flag takes: a pin name or a port path.
	Path       string
	Name       string
	Confidence Confidence
}

// String returns a single line suitable for -list output.
func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, d.Path, d.Confidence)
}

// Options configures detection.
type Options struct {
	// Blocklist holds USB VID:PID pairs to skip, e.g. "1234:5678".
	Blocklist []string
	// IgnorePaths holds device paths to skip, e.g. "/dev/ttyAMA0".
	IgnorePaths []string
	// Transports restricts detection; empty means all registered.
	Transports  []string
	CacheTTL    time.Duration
	Timeout     time.Duration
	Mode        Mode
	EnableCache bool
}

// DefaultOptions returns passive detection with a short cache.
func DefaultOptions() Options {
	return Options{
		Mode:        Passive,
		Timeout:     5 * time.Second,
		EnableCache: true,
		CacheTTL:    30 * time.Second,
	}
}

// Detector finds candidates for one transport.
type Detector interface {
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	Transport() string
}

var (
	// ErrNoDevicesFound means no detector reported a candidate.
	ErrNoDevicesFound = errors.New("no edge sources found")
	// ErrDetectionTimeout means the context ended before every detector
	// finished.
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrUnsupportedPlatform means the detector cannot run on this OS.
	ErrUnsupportedPlatform = errors.New("platform not supported")
	// ErrNoDetectors means no registered detector matched Options.Transports.
	ErrNoDetectors = errors.New("no detectors available for specified transports")
)

var registry []Detector

// RegisterDetector adds d to the registry.
func RegisterDetector(d Detector) {
	registry = append(registry, d)
}

func detectorsFor(transports []string) []Detector {
	if len(transports) == 0 {
		return registry
	}
	var out []Detector
	for _, d := range registry {
		for _, t := range transports {
			if d.Transport() == t {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

type detectionResult struct {
	err     error
	devices []DeviceInfo
}

// DetectAll runs every matching detector in parallel. Devices are returned
// if at least one detector found some, even when others failed.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	return detectWith(ctx, detectorsFor(opts.Transports), opts)
}

func detectWith(ctx context.Context, detectors []Detector, opts *Options) ([]DeviceInfo, error) {
	if len(detectors) == 0 {
		return nil, ErrNoDetectors
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	results := make(chan detectionResult, len(detectors))
	for _, d := range detectors {
		go func(d Detector) {
			results <- runDetector(ctx, d, opts)
		}(d)
	}

	var devices []DeviceInfo
	var errs []error
	for range detectors {
		select {
		case res := <-results:
			if res.err != nil {
				errs = append(errs, res.err)
				continue
			}
			devices = append(devices, res.devices...)
		case <-ctx.Done():
			return nil, ErrDetectionTimeout
		}
	}

	if len(devices) > 0 {
		return devices, nil
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNoDevicesFound
}

func runDetector(ctx context.Context, d Detector, opts *Options) detectionResult {
	if opts.EnableCache {
		if cached, ok := results.get(d.Transport(), opts.CacheTTL); ok {
			// Cached entries were filtered with the options of the call
			// that stored them.
			return detectionResult{devices: Filter(cached, opts)}
		}
	}

	devices, err := d.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		return detectionResult{err: fmt.Errorf("%s detection: %w", d.Transport(), err)}
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			results.set(d.Transport(), devices)
		} else {
			results.clear(d.Transport())
		}
	}
	return detectionResult{devices: devices}
}

// Filter drops devices matched by IgnorePaths or Blocklist.
func Filter(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}
	var out []DeviceInfo
	for _, d := range devices {
		if IsPathIgnored(d.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := d.Metadata["vidpid"]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// IsBlocked reports whether vidpid is listed, ignoring case and spaces.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	for _, b := range blocklist {
		if vidpid == strings.ToUpper(strings.TrimSpace(b)) {
			return true
		}
	}
	return false
}

// IsPathIgnored reports whether path matches an ignore entry after cleaning
// both, case-insensitively so that COM3 and com3 match.
func IsPathIgnored(path string, ignorePaths []string) bool {
	if path == "" {
		return false
	}
	want := strings.ToLower(filepath.Clean(path))
	for _, p := range ignorePaths {
		if p == "" {
			continue
		}
		if strings.ToLower(filepath.Clean(p)) == want {
			return true
		}
	}
	return false
}

// ClearCache drops every cached detection result.
func ClearCache() {
	results.clearAll()
}
