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
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const modulePath = "github.com/ZaparooProject/go-tropic"

// sessionLog is the open log file, if any. Its writer is installed as
// logState.sink.
var sessionLog struct {
	file *os.File
	path string
}

// InitSessionLog opens a timestamped log file in dir, or the working
// directory when dir is empty, and routes all debug output to it regardless
// of SetDebugEnabled. It returns the file's path.
func InitSessionLog(dir string) (string, error) {
	name := fmt.Sprintf("tropic_%s.log", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // name is generated
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}
	writeSessionHeader(f)

	logState.mu.Lock()
	prev := sessionLog.file
	sessionLog.file = f
	sessionLog.path = path
	logState.sink = f
	logState.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return path, nil
}

// CloseSessionLog writes the footer and closes the session log. Closing
// without an open log is a no-op.
func CloseSessionLog() error {
	logState.mu.Lock()
	defer logState.mu.Unlock()

	f := sessionLog.file
	if f == nil {
		return nil
	}
	_, _ = fmt.Fprintf(f, "\n%s === session ended ===\n", time.Now().Format("15:04:05.000"))

	sessionLog.file = nil
	sessionLog.path = ""
	logState.sink = nil
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// SessionLogPath returns the open session log's path, or "".
func SessionLogPath() string {
	logState.mu.Lock()
	defer logState.mu.Unlock()
	return sessionLog.path
}

func writeSessionHeader(w io.Writer) {
	_, _ = fmt.Fprint(w, "=== go-tropic session log ===\n")
	_, _ = fmt.Fprintf(w, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "Library: %s\n", libraryVersion())
	_, _ = fmt.Fprintf(w, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(w, "Platform: %s/%s %s\n", runtime.GOOS, runtime.GOARCH, runtime.Version())
	_, _ = fmt.Fprintf(w, "Command: %s\n", strings.Join(os.Args, " "))
	_, _ = fmt.Fprint(w, "==============================\n\n")
}

// libraryVersion reports this module's version from the binary's build
// info, "(devel)" when built from a checkout.
func libraryVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	version := ""
	if info.Main.Path == modulePath {
		version = info.Main.Version
	}
	for _, dep := range info.Deps {
		if dep.Path == modulePath {
			version = dep.Version
		}
	}
	if version == "" {
		return "(devel)"
	}
	return version
}
