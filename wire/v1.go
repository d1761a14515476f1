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

// V1 implements ZMTP revision 1 (and, wired through the same encoder/
// decoder pair, revision 0's post-greeting body): a length-prefixed
// frame, long-form when the frame doesn't fit in one byte. Length always
// counts the trailing flags byte, so an empty frame encodes length 1.
//
// Wire shape: `length(1 or 9 bytes) || flags(1 byte) || body`. A length
// byte of 0xff signals the long form: eight more big-endian length bytes
// follow before the flags byte.

const frameFlagMore byte = 1 << 0

type v1Phase int

const (
	v1PhaseLength v1Phase = iota
	v1PhaseLongLength
	v1PhaseFlags
	v1PhaseBody
)

type v1Decoder struct {
	maxMsgSize int64

	phase   v1Phase
	hdr     [9]byte
	hdrHave int
	hdrWant int

	bodyLen  uint64
	body     []byte
	bodyHave int
	flags    byte

	msg *Msg
}

// NewV1Decoder returns a Decoder for ZMTP v1 long-form framing.
// maxMsgSize <= 0 means unbounded.
func NewV1Decoder(maxMsgSize int64) Decoder {
	return &v1Decoder{maxMsgSize: maxMsgSize, phase: v1PhaseLength, hdrWant: 1}
}

func (d *v1Decoder) Msg() *Msg { return d.msg }

func (d *v1Decoder) Decode(data []byte) (int, Result) {
	consumed := 0
	for consumed < len(data) {
		switch d.phase {
		case v1PhaseLength:
			b := data[consumed]
			consumed++
			d.hdr[0] = b
			if b == 0xff {
				d.phase = v1PhaseLongLength
				d.hdrHave = 0
				d.hdrWant = 8
			} else {
				d.bodyLen = uint64(b)
				d.phase = v1PhaseFlags
			}
		case v1PhaseLongLength:
			n := copy(d.hdr[1+d.hdrHave:1+d.hdrWant], data[consumed:])
			d.hdrHave += n
			consumed += n
			if d.hdrHave < d.hdrWant {
				return consumed, MoreData
			}
			d.bodyLen = Uint64(d.hdr[1:9])
			d.phase = v1PhaseFlags
		case v1PhaseFlags:
			if d.bodyLen == 0 {
				return consumed, DecodeError
			}
			d.flags = data[consumed]
			consumed++
			bodyLen := d.bodyLen - 1
			if d.maxMsgSize > 0 && int64(bodyLen) > d.maxMsgSize {
				return consumed, DecodeError
			}
			d.body = make([]byte, bodyLen)
			d.bodyHave = 0
			d.phase = v1PhaseBody
			if bodyLen == 0 {
				d.finish()
				return consumed, Decoded
			}
		case v1PhaseBody:
			n := copy(d.body[d.bodyHave:], data[consumed:])
			d.bodyHave += n
			consumed += n
			if d.bodyHave < len(d.body) {
				return consumed, MoreData
			}
			d.finish()
			return consumed, Decoded
		}
	}
	return consumed, MoreData
}

func (d *v1Decoder) finish() {
	m := NewMsg(d.body)
	if d.flags&frameFlagMore != 0 {
		m.SetFlags(FlagMore)
	}
	d.msg = m
	d.phase = v1PhaseLength
	d.hdrWant = 1
	d.hdrHave = 0
	d.body = nil
}

type v1Encoder struct {
	msg     *Msg
	hdr     [9]byte
	hdrLen  int
	hdrSent int
	bodySent int
	done    bool
}

// NewV1Encoder returns an Encoder for ZMTP v1 long-form framing.
func NewV1Encoder() Encoder {
	return &v1Encoder{done: true}
}

func (e *v1Encoder) LoadMsg(m *Msg) {
	e.msg = m
	length := uint64(m.Size()) + 1
	if length < 0xff {
		e.hdr[0] = byte(length)
		e.hdrLen = 1
	} else {
		e.hdr[0] = 0xff
		binary.BigEndian.PutUint64(e.hdr[1:9], length)
		e.hdrLen = 9
	}
	var flags byte
	if m.HasMore() {
		flags |= frameFlagMore
	}
	e.hdr[e.hdrLen] = flags
	e.hdrLen++
	e.hdrSent = 0
	e.bodySent = 0
	e.done = false
}

func (e *v1Encoder) Encode(view []byte) int {
	if e.done || e.msg == nil {
		return 0
	}
	total := 0
	if e.hdrSent < e.hdrLen {
		n := copy(view, e.hdr[e.hdrSent:e.hdrLen])
		e.hdrSent += n
		total += n
		view = view[n:]
		if e.hdrSent < e.hdrLen {
			return total
		}
	}
	body := e.msg.Data()
	if e.bodySent < len(body) {
		n := copy(view, body[e.bodySent:])
		e.bodySent += n
		total += n
	}
	if e.bodySent >= len(body) {
		e.done = true
	}
	return total
}

func (e *v1Encoder) Encoded() {
	if e.done {
		e.msg = nil
	}
}
