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

// V2 implements ZMTP revision 2 framing (and, since v3 reuses the same
// body framing after its mechanism handshake, v3's post-handshake
// framing too): a flags byte followed by either a 1-byte length (short
// form, bodies up to 255 bytes) or an 8-byte big-endian length (long
// form, flagged by bit 1 of the flags byte).
//
// Wire shape: `flags(1) || length(1 or 8) || body`.

const (
	v2FlagMore    byte = 1 << 0
	v2FlagLarge   byte = 1 << 1
	v2FlagCommand byte = 1 << 2
)

type v2Phase int

const (
	v2PhaseFlags v2Phase = iota
	v2PhaseShortLength
	v2PhaseLongLength
	v2PhaseBody
)

type v2Decoder struct {
	maxMsgSize int64

	phase   v2Phase
	flags   byte
	lenBuf  [8]byte
	lenHave int
	lenWant int

	bodyLen  uint64
	body     []byte
	bodyHave int

	msg *Msg
}

// NewV2Decoder returns a Decoder for ZMTP v2 (and v3 body) framing.
// maxMsgSize <= 0 means unbounded.
func NewV2Decoder(maxMsgSize int64) Decoder {
	return &v2Decoder{maxMsgSize: maxMsgSize, phase: v2PhaseFlags}
}

func (d *v2Decoder) Msg() *Msg { return d.msg }

func (d *v2Decoder) Decode(data []byte) (int, Result) {
	consumed := 0
	for consumed < len(data) {
		switch d.phase {
		case v2PhaseFlags:
			d.flags = data[consumed]
			consumed++
			if d.flags&v2FlagLarge != 0 {
				d.phase = v2PhaseLongLength
				d.lenWant = 8
			} else {
				d.phase = v2PhaseShortLength
				d.lenWant = 1
			}
			d.lenHave = 0
		case v2PhaseShortLength:
			d.bodyLen = uint64(data[consumed])
			consumed++
			if err := d.enterBody(); err {
				return consumed, DecodeError
			}
			if d.phase == v2PhaseBody && len(d.body) == 0 {
				d.finish()
				return consumed, Decoded
			}
		case v2PhaseLongLength:
			n := copy(d.lenBuf[d.lenHave:d.lenWant], data[consumed:])
			d.lenHave += n
			consumed += n
			if d.lenHave < d.lenWant {
				return consumed, MoreData
			}
			d.bodyLen = binary.BigEndian.Uint64(d.lenBuf[:8])
			if err := d.enterBody(); err {
				return consumed, DecodeError
			}
			if d.phase == v2PhaseBody && len(d.body) == 0 {
				d.finish()
				return consumed, Decoded
			}
		case v2PhaseBody:
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

// enterBody allocates the body buffer and moves to v2PhaseBody, or
// returns err=true if bodyLen exceeds the configured max.
func (d *v2Decoder) enterBody() (err bool) {
	if d.maxMsgSize > 0 && int64(d.bodyLen) > d.maxMsgSize {
		return true
	}
	d.body = make([]byte, d.bodyLen)
	d.bodyHave = 0
	d.phase = v2PhaseBody
	return false
}

func (d *v2Decoder) finish() {
	m := NewMsg(d.body)
	if d.flags&v2FlagMore != 0 {
		m.SetFlags(FlagMore)
	}
	if d.flags&v2FlagCommand != 0 {
		m.SetFlags(FlagCommand)
	}
	d.msg = m
	d.phase = v2PhaseFlags
	d.body = nil
}

type v2Encoder struct {
	msg      *Msg
	hdr      [9]byte
	hdrLen   int
	hdrSent  int
	bodySent int
	done     bool
}

// NewV2Encoder returns an Encoder for ZMTP v2 (and v3 body) framing.
func NewV2Encoder() Encoder {
	return &v2Encoder{done: true}
}

func (e *v2Encoder) LoadMsg(m *Msg) {
	e.msg = m
	var flags byte
	if m.HasMore() {
		flags |= v2FlagMore
	}
	if m.IsCommand() {
		flags |= v2FlagCommand
	}
	size := m.Size()
	if size <= 255 {
		e.hdr[0] = flags
		e.hdr[1] = byte(size)
		e.hdrLen = 2
	} else {
		e.hdr[0] = flags | v2FlagLarge
		binary.BigEndian.PutUint64(e.hdr[1:9], uint64(size))
		e.hdrLen = 9
	}
	e.hdrSent = 0
	e.bodySent = 0
	e.done = false
}

func (e *v2Encoder) Encode(view []byte) int {
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

func (e *v2Encoder) Encoded() {
	if e.done {
		e.msg = nil
	}
}
