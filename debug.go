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


package tropic

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ZaparooProject/go-tropic/internal/frame"
)

// frameDumpLimit bounds how much of a plaintext frame is hex dumped
const frameDumpLimit = 16

// logState guards the console flag and session log sink. Handles on
// different buses log concurrently.
var logState struct {
	sink    io.Writer
	console io.Writer
	mu      sync.Mutex
	enabled bool
}

func init() {
	logState.console = os.Stdout
	logState.enabled = envEnabled(os.Getenv("TROPIC_DEBUG"))
}

// envEnabled treats any non-empty value other than a false boolean as on.
func envEnabled(v string) bool {
	if v == "" {
		return false
	}
	on, err := strconv.ParseBool(v)
	return err != nil || on
}

// Debugf logs a message. It always reaches the session log, if one is open,
// and reaches the console only while debug output is enabled. Callers must
// never pass key material or decrypted payloads.
func Debugf(format string, args ...any) {
	emit(fmt.Sprintf(format, args...))
}

// Debugln logs its operands formatted as by fmt.Sprint, see Debugf.
func Debugln(args ...any) {
	emit(fmt.Sprint(args...))
}

// SetDebugEnabled toggles console debug output
func SetDebugEnabled(enabled bool) {
	logState.mu.Lock()
	logState.enabled = enabled
	logState.mu.Unlock()
}

func debugEnabled() bool {
	logState.mu.Lock()
	defer logState.mu.Unlock()
	return logState.enabled
}

func emit(message string) {
	logState.mu.Lock()
	defer logState.mu.Unlock()

	if logState.sink != nil {
		stamp := time.Now().Format("15:04:05.000")
		_, _ = fmt.Fprintf(logState.sink, "%s DEBUG: %s\n", stamp, message)
	}
	if logState.enabled && logState.console != nil {
		_, _ = fmt.Fprintf(logState.console, "DEBUG: %s\n", message)
	}
}

// debugFrame logs one L2 frame. Frames carrying an encrypted command or
// result are logged by length only; everything else on L2 is public and
// gets a short hex dump.
func debugFrame(command, dir string, id byte, data []byte) {
	if id == frame.ReqEncryptedCmd || len(data) == 0 {
		Debugf("L2 %s: %s id=0x%02X len=%d", command, dir, id, len(data))
		return
	}
	shown := data[:min(len(data), frameDumpLimit)]
	suffix := ""
	if len(data) > frameDumpLimit {
		suffix = " ..."
	}
	Debugf("L2 %s: %s id=0x%02X len=%d [% X%s]", command, dir, id, len(data), shown, suffix)
}
