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

package testing

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func readLine(t *testing.T, r io.Reader) string {
	t.Helper()
	var line []byte
	buf := make([]byte, 64)
	for range 10000 {
		n, err := r.Read(buf)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		line = append(line, buf[:n]...)
		if bytes.HasSuffix(line, []byte("\r\n")) {
			return string(line)
		}
	}
	t.Fatalf("no complete line, got %q", line)
	return ""
}

func TestVirtualDongle_Poll(t *testing.T) {
	t.Parallel()

	d := NewVirtualDongle(newTestChip(t))
	if _, err := d.Write([]byte("AA000000x\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := readLine(t, d); got != "01FF0000\r\n" {
		t.Errorf("reply = %q, want ready with no response", got)
	}
	if d.Pending() != 0 {
		t.Errorf("Pending = %d after reading the reply", d.Pending())
	}
}

func TestVirtualDongle_SplitWrites(t *testing.T) {
	t.Parallel()

	d := NewVirtualDongle(newTestChip(t))
	for _, part := range []string{"AA", "0000", "00x", "\n"} {
		if _, err := d.Write([]byte(part)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if got := readLine(t, d); !strings.HasPrefix(got, "01FF") {
		t.Errorf("reply = %q", got)
	}
}

func TestVirtualDongle_Errors(t *testing.T) {
	t.Parallel()

	chip := newTestChip(t)
	d := NewVirtualDongle(chip)
	if _, err := d.Write([]byte("ZZx\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := readLine(t, d); got != "ERR\r\n" {
		t.Errorf("bad hex reply = %q, want ERR", got)
	}

	chip.SetAlarm(true)
	if _, err := d.Write([]byte("AA00x\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := readLine(t, d); got != "0200\r\n" {
		t.Errorf("alarm reply = %q", got)
	}

	if _, err := d.Write([]byte("AA")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	d.Reset()
	if _, err := d.Write([]byte("AA00x\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := readLine(t, d); got != "0200\r\n" {
		t.Errorf("reply after Reset = %q", got)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := d.Write([]byte("AA00x\n")); err == nil {
		t.Error("Write after Close succeeded")
	}
}

func TestFragmentedConn_DeliversEverything(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config JitterConfig
	}{
		{name: "passthrough", config: JitterConfig{Seed: 3}},
		{name: "single bytes", config: DefaultJitterConfig()},
		{name: "usb boundaries", config: JitterConfig{Seed: 5, USBBoundaryStress: true, FragmentReads: true, FragmentMinBytes: 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := NewVirtualDongle(newTestChip(t))
			conn := NewFragmentedConn(d, tt.config)

			poll := "AA" + strings.Repeat("00", 256) + "x\n"
			if _, err := conn.Write([]byte(poll)); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			got := readLine(t, conn)
			want := "01FF" + strings.Repeat("00", 255) + "\r\n"
			if got != want {
				t.Errorf("reassembled reply differs: got %d bytes, want %d", len(got), len(want))
			}
		})
	}
}

func TestFragmentedConn_RespectsUSBBoundary(t *testing.T) {
	t.Parallel()

	d := NewVirtualDongle(newTestChip(t))
	conn := NewFragmentedConn(d, JitterConfig{Seed: 1, USBBoundaryStress: true})
	if _, err := conn.Write([]byte("AA" + strings.Repeat("00", 100) + "x\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 64 {
		t.Errorf("first read = %d bytes, want one 64 byte USB packet", n)
	}
}
