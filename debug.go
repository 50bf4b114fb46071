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
	"io"
	"os"
	"strings"
	"time"
)

// debugEnabled controls whether debug lines are echoed to the console.
// Edge callbacks never log; only the polling side and sources do.
var debugEnabled = false

// debugOutput receives console debug lines. Stdout is reserved for the
// outcome record stream, so debug output goes to stderr.
var debugOutput io.Writer = os.Stderr

func init() {
	if os.Getenv("WIEGAND_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled = true
	}
}

// Debugf logs a formatted debug line.
// The line always goes to the session log (if open) with a timestamp and is
// echoed to stderr only when debug mode is enabled.
func Debugf(format string, args ...any) {
	emitDebug(fmt.Sprintf(format, args...))
}

// Debugln logs its operands separated by spaces, like fmt.Println.
func Debugln(args ...any) {
	emitDebug(strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}

func emitDebug(message string) {
	if sessionLogWriter != nil {
		timestamp := time.Now().Format("15:04:05.000")
		_, _ = fmt.Fprintf(sessionLogWriter, "%s DEBUG: %s\n", timestamp, message)
	}
	if debugEnabled {
		_, _ = fmt.Fprintf(debugOutput, "DEBUG: %s\n", message)
	}
}

// SetDebugEnabled turns console debug output on or off.
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}
