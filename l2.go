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
	"context"
	"fmt"
	"slices"

	"github.com/ZaparooProject/go-tropic/internal/frame"
)

// transceive runs one plaintext control transaction and returns a copy of
// the response data.
func (h *Handle) transceive(ctx context.Context, command string, id byte, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := h.link.begin()
	defer done()

	resp, err := h.exchange(ctx, command, id, data, frame.StatusRequestOK, frame.StatusResultOK)
	if err != nil {
		return nil, err
	}
	return slices.Clone(resp.Data), nil
}

// exchange writes one request frame and reads its response. The returned
// Data aliases the handle's L2 receive buffer.
func (h *Handle) exchange(
	ctx context.Context, command string, id byte, data []byte, accept ...byte,
) (frame.Response, error) {
	req := frame.Request{ID: id, Data: data}
	enc, err := req.Encode(h.l2Tx[:])
	if err != nil {
		return frame.Response{}, fmt.Errorf("%w: %s: %w", ErrFail, command, err)
	}

	debugFrame(command, "TX", id, data)
	if err := h.link.write(enc); err != nil {
		return frame.Response{}, err
	}
	resp, err := h.link.read(ctx, h.l2Rx[:])
	if err != nil {
		return frame.Response{}, err
	}
	debugFrame(command, "RX", id, resp.Data)
	if resp.Status >= frame.StatusRespDisabled {
		Debugf("L2 %s: status 0x%02X", command, resp.Status)
	}

	if err := h.checkStatus(command, resp.Status, accept...); err != nil {
		return frame.Response{}, err
	}
	return resp, nil
}

// checkStatus maps a response status outside accept to its error. Statuses
// that mean the chip lost our session drop the local one as well.
func (h *Handle) checkStatus(command string, status byte, accept ...byte) error {
	if slices.Contains(accept, status) {
		return nil
	}
	err := l2StatusError(command, status)
	if invalidatesSession(err) {
		h.endSession()
	}
	return err
}

// sendEncrypted splits an L3 packet into ENCRYPTED_CMD frames. The chip acks
// every chunk but the last with REQ_CONT.
func (h *Handle) sendEncrypted(ctx context.Context, command string, packet []byte) error {
	chunks := frame.Chunks(packet)
	for i, chunk := range chunks {
		want := byte(frame.StatusRequestCont)
		if i == len(chunks)-1 {
			want = frame.StatusRequestOK
		}
		resp, err := h.exchange(ctx, command, frame.ReqEncryptedCmd, chunk, want)
		if err != nil {
			return err
		}
		if len(resp.Data) != 0 {
			return fmt.Errorf("%w: %s: unexpected %d byte chunk ack", ErrFail, command, len(resp.Data))
		}
	}
	return nil
}

// receiveEncrypted reassembles RES_CONT* RES_OK frames into dst.
func (h *Handle) receiveEncrypted(ctx context.Context, command string, dst []byte) ([]byte, error) {
	n := 0
	for {
		resp, err := h.link.read(ctx, h.l2Rx[:])
		if err != nil {
			return nil, err
		}
		if err := h.checkStatus(command, resp.Status, frame.StatusResultCont, frame.StatusResultOK); err != nil {
			return nil, err
		}
		if n+len(resp.Data) > len(dst) {
			return nil, fmt.Errorf("%w: %s: encrypted response exceeds %d bytes", ErrFail, command, len(dst))
		}
		n += copy(dst[n:], resp.Data)
		if resp.Status == frame.StatusResultOK {
			return dst[:n], nil
		}
	}
}
