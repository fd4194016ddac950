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

import "github.com/ZaparooProject/go-tropic/internal/frame"

// Raw rx images for scripting a mock bus. Each is what a GET_RESPONSE
// transfer clocks in.

// BuildResponseFrame encodes a ready response with the given status and data
func BuildResponseFrame(status byte, data []byte) []byte {
	buf := make([]byte, frame.MaxResponseSize)
	enc, err := (&frame.Response{ChipStatus: frame.ChipStatusReady, Status: status, Data: data}).Encode(buf)
	if err != nil {
		panic(err)
	}
	return enc
}

// BuildOKResponse encodes a REQ_OK response carrying data
func BuildOKResponse(data []byte) []byte {
	return BuildResponseFrame(frame.StatusRequestOK, data)
}

// BuildBusyFrame is a chip that has not finished processing
func BuildBusyFrame() []byte {
	return []byte{0x00}
}

// BuildNoResponseFrame is a ready chip with nothing queued yet
func BuildNoResponseFrame() []byte {
	return []byte{frame.ChipStatusReady, frame.StatusNoResponse}
}

// BuildAlarmFrame is a chip in alarm mode
func BuildAlarmFrame() []byte {
	return []byte{frame.ChipStatusReady | frame.ChipStatusAlarm}
}

// BuildStartupFrame is a chip still in its startup (bootloader) mode
func BuildStartupFrame() []byte {
	return []byte{frame.ChipStatusStartup}
}

// BuildBadLengthFrame declares a LEN beyond the frame limit
func BuildBadLengthFrame() []byte {
	return []byte{frame.ChipStatusReady, frame.StatusRequestOK, frame.MaxDataLength + 1}
}

// BuildCorruptFrame is a REQ_OK response whose CRC does not match
func BuildCorruptFrame(data []byte) []byte {
	enc := BuildOKResponse(data)
	enc[len(enc)-1] ^= 0xFF
	return enc
}
