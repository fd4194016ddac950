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

// crc16Poly is the generator polynomial (x^16 + x^15 + x^2 + 1), MSB first.
const crc16Poly = 0x8005

var crc16Table = makeCRC16Table()

func makeCRC16Table() [256]uint16 {
	var table [256]uint16
	for i := range table {
		crc := uint16(i) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}

// CalculateCRC16 computes the frame CRC with a zero initial value and no
// reflection. It is transmitted big-endian after the covered bytes.
func CalculateCRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crc<<8 ^ crc16Table[byte(crc>>8)^b]
	}
	return crc
}

// AppendCRC16 appends the big-endian CRC of data to dst.
func AppendCRC16(dst, data []byte) []byte {
	crc := CalculateCRC16(data)
	return append(dst, byte(crc>>8), byte(crc))
}

// CheckCRC16 reports whether the two trailing bytes of buf hold the CRC of
// everything before them.
func CheckCRC16(buf []byte) bool {
	if len(buf) < CRCSize {
		return false
	}
	n := len(buf) - CRCSize
	crc := CalculateCRC16(buf[:n])
	return buf[n] == byte(crc>>8) && buf[n+1] == byte(crc)
}
