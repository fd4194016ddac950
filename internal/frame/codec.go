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

package frame

import (
	"errors"
	"fmt"
)

// Codec errors. Every decode failure is one of these; there is no partial
// success.
var (
	ErrDataTooLong    = errors.New("frame: data exceeds maximum length")
	ErrFrameTooShort  = errors.New("frame: buffer shorter than header")
	ErrLengthMismatch = errors.New("frame: declared length does not match received bytes")
	ErrCRCMismatch    = errors.New("frame: CRC mismatch")
	ErrBufferTooSmall = errors.New("frame: destination buffer too small")
)

// Request is a host-to-chip L2 frame.
type Request struct {
	Data []byte
	ID   byte
}

// Response is a chip-to-host L2 frame as clocked in after GET_RESPONSE.
type Response struct {
	Data       []byte
	ChipStatus byte
	Status     byte
}

// EncodedLen returns the number of bytes Encode will write.
func (r *Request) EncodedLen() int {
	return RequestHeaderSize + len(r.Data) + CRCSize
}

// Encode writes ID | LEN | DATA | CRC16 into dst and returns the frame slice.
func (r *Request) Encode(dst []byte) ([]byte, error) {
	if len(r.Data) > MaxDataLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLong, len(r.Data))
	}
	n := r.EncodedLen()
	if len(dst) < n {
		return nil, ErrBufferTooSmall
	}

	dst[0] = r.ID
	dst[1] = byte(len(r.Data))
	copy(dst[RequestHeaderSize:], r.Data)
	body := RequestHeaderSize + len(r.Data)
	crc := CalculateCRC16(dst[:body])
	dst[body] = byte(crc >> 8)
	dst[body+1] = byte(crc)
	return dst[:n], nil
}

// DecodeRequest parses a request frame. The chip simulator uses it; the host
// only ever encodes requests.
func DecodeRequest(buf []byte) (Request, error) {
	if len(buf) < RequestHeaderSize+CRCSize {
		return Request{}, ErrFrameTooShort
	}
	dataLen := int(buf[1])
	if dataLen > MaxDataLength {
		return Request{}, fmt.Errorf("%w: %d bytes", ErrDataTooLong, dataLen)
	}
	total := RequestHeaderSize + dataLen + CRCSize
	if len(buf) < total {
		return Request{}, ErrLengthMismatch
	}
	if !CheckCRC16(buf[:total]) {
		return Request{}, ErrCRCMismatch
	}
	return Request{
		ID:   buf[0],
		Data: buf[RequestHeaderSize : RequestHeaderSize+dataLen],
	}, nil
}

// ResponseLen returns the total frame length declared by a response header,
// or an error when the header is short or declares more than MaxDataLength.
func ResponseLen(buf []byte) (int, error) {
	if len(buf) < ResponseHeaderSize {
		return 0, ErrFrameTooShort
	}
	dataLen := int(buf[2])
	if dataLen > MaxDataLength {
		return 0, fmt.Errorf("%w: %d bytes", ErrDataTooLong, dataLen)
	}
	return ResponseHeaderSize + dataLen + CRCSize, nil
}

// DecodeResponse validates and parses a response frame. buf must start with
// the CHIP_STATUS byte. The returned Data aliases buf.
func DecodeResponse(buf []byte) (Response, error) {
	total, err := ResponseLen(buf)
	if err != nil {
		return Response{}, err
	}
	if len(buf) < total {
		return Response{}, ErrLengthMismatch
	}
	// CRC covers STATUS | LEN | DATA
	if !CheckCRC16(buf[1:total]) {
		return Response{}, ErrCRCMismatch
	}
	return Response{
		ChipStatus: buf[0],
		Status:     buf[1],
		Data:       buf[ResponseHeaderSize : total-CRCSize],
	}, nil
}

// Encode writes CHIP_STATUS | STATUS | LEN | DATA | CRC16 into dst.
func (r *Response) Encode(dst []byte) ([]byte, error) {
	if len(r.Data) > MaxDataLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLong, len(r.Data))
	}
	n := ResponseHeaderSize + len(r.Data) + CRCSize
	if len(dst) < n {
		return nil, ErrBufferTooSmall
	}

	dst[0] = r.ChipStatus
	dst[1] = r.Status
	dst[2] = byte(len(r.Data))
	copy(dst[ResponseHeaderSize:], r.Data)
	body := ResponseHeaderSize + len(r.Data)
	crc := CalculateCRC16(dst[1:body])
	dst[body] = byte(crc >> 8)
	dst[body+1] = byte(crc)
	return dst[:n], nil
}

// IsControlRequest reports whether id is a plaintext control frame. Only
// ENCRYPTED_CMD carries ciphertext.
func IsControlRequest(id byte) bool {
	return id != ReqEncryptedCmd
}

// Chunks splits an L3 packet into consecutive ENCRYPTED_CMD payloads.
func Chunks(packet []byte) [][]byte {
	if len(packet) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(packet)+MaxDataLength-1)/MaxDataLength)
	for len(packet) > 0 {
		n := min(len(packet), MaxDataLength)
		chunks = append(chunks, packet[:n])
		packet = packet[n:]
	}
	return chunks
}
