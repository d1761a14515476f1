// Copyright 2022 The Ztp Authors
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

package wire

import "encoding/binary"

// PutUint64 appends the big-endian encoding of v to buf.
func PutUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// PutUint16 appends the big-endian encoding of v to buf.
func PutUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

// PutUint32 appends the big-endian encoding of v to buf.
func PutUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// Uint64 reads a big-endian uint64 from the first 8 bytes of buf.
func Uint64(buf []byte) uint64 { return binary.BigEndian.Uint64(buf) }

// Uint16 reads a big-endian uint16 from the first 2 bytes of buf.
func Uint16(buf []byte) uint16 { return binary.BigEndian.Uint16(buf) }

// Uint32 reads a big-endian uint32 from the first 4 bytes of buf.
func Uint32(buf []byte) uint32 { return binary.BigEndian.Uint32(buf) }

// PutShortString appends the ZMTP short-string encoding of s (a length
// byte followed by the bytes of s) to buf.
func PutShortString(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}

// ShortString reads a short string starting at buf[0] and returns it
// along with the number of bytes consumed.
func ShortString(buf []byte) (s string, n int, ok bool) {
	if len(buf) < 1 {
		return "", 0, false
	}
	l := int(buf[0])
	if len(buf) < 1+l {
		return "", 0, false
	}
	return string(buf[1 : 1+l]), 1 + l, true
}
