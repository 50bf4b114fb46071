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

import "context"

// Sink consumes decode results. Sinks are called once per frame, in order,
// from the polling goroutine. An error from a sink is reported but never
// stops capture.
type Sink interface {
	Consume(ctx context.Context, res DecodeResult) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, res DecodeResult) error

// Consume implements Sink.
func (f SinkFunc) Consume(ctx context.Context, res DecodeResult) error {
	return f(ctx, res)
}
