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

// Raw implements the raw-socket codec: no framing at all. Every Decode
// call turns whatever bytes the socket handed over into exactly one
// message; Encode emits a loaded message's bytes verbatim, unprefixed.
// The engine is responsible for synthesizing the zero-length connect/
// disconnect messages raw mode uses to signal peer lifecycle to the
// application; the codec itself only moves bytes.

type rawDecoder struct {
	msg *Msg
}

// NewRawDecoder returns a Decoder that treats each Decode call's input as
// one complete, unframed message.
func NewRawDecoder() Decoder {
	return &rawDecoder{}
}

func (d *rawDecoder) Msg() *Msg { return d.msg }

func (d *rawDecoder) Decode(data []byte) (int, Result) {
	if len(data) == 0 {
		return 0, MoreData
	}
	body := make([]byte, len(data))
	copy(body, data)
	d.msg = NewMsg(body)
	return len(data), Decoded
}

type rawEncoder struct {
	msg  *Msg
	sent int
	done bool
}

// NewRawEncoder returns an Encoder that emits a loaded message's bytes
// with no framing.
func NewRawEncoder() Encoder {
	return &rawEncoder{done: true}
}

func (e *rawEncoder) LoadMsg(m *Msg) {
	e.msg = m
	e.sent = 0
	e.done = false
}

func (e *rawEncoder) Encode(view []byte) int {
	if e.done || e.msg == nil {
		return 0
	}
	body := e.msg.Data()
	n := copy(view, body[e.sent:])
	e.sent += n
	if e.sent >= len(body) {
		e.done = true
	}
	return n
}

func (e *rawEncoder) Encoded() {
	if e.done {
		e.msg = nil
	}
}
