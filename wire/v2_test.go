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

import (
	"bytes"
	"testing"
)

var v2TestCases = []struct {
	encoded []byte
	body    []byte
	more    bool
}{
	{
		encoded: []byte{0x00, 0x05, 'h', 'e', 'l', 'l', 'o'},
		body:    []byte("hello"),
	},
	{
		encoded: []byte{0x01, 0x02, 'p', '1'},
		body:    []byte("p1"),
		more:    true,
	},
	{
		encoded: []byte{0x00, 0x00},
		body:    []byte{},
	},
}

func TestV2DecodeWholeFrame(t *testing.T) {
	for i, c := range v2TestCases {
		d := NewV2Decoder(0)
		consumed, result := d.Decode(c.encoded)
		if result != Decoded {
			t.Fatalf("%d: result = %v, want Decoded", i, result)
		}
		if consumed != len(c.encoded) {
			t.Errorf("%d: consumed = %d, want %d", i, consumed, len(c.encoded))
		}
		m := d.Msg()
		if !bytes.Equal(m.Data(), c.body) {
			t.Errorf("%d: body = %#v, want %#v", i, m.Data(), c.body)
		}
		if m.HasMore() != c.more {
			t.Errorf("%d: more = %v, want %v", i, m.HasMore(), c.more)
		}
	}
}

func TestV2DecodeLongForm(t *testing.T) {
	body := make([]byte, 300)
	for i := range body {
		body[i] = byte(i)
	}
	encoded := make([]byte, 0, 9+len(body))
	encoded = append(encoded, v2FlagLarge)
	encoded = PutUint64(encoded, uint64(len(body)))
	encoded = append(encoded, body...)

	d := NewV2Decoder(0)
	consumed, result := d.Decode(encoded)
	if result != Decoded {
		t.Fatalf("result = %v, want Decoded", result)
	}
	if consumed != len(encoded) {
		t.Fatalf("consumed = %d, want %d", consumed, len(encoded))
	}
	if !bytes.Equal(d.Msg().Data(), body) {
		t.Fatal("body mismatch")
	}
}

func TestV2DecodeMaxMsgSize(t *testing.T) {
	d := NewV2Decoder(2)
	encoded := []byte{0x00, 0x05, 'h', 'e', 'l', 'l', 'o'}
	_, result := d.Decode(encoded)
	if result != DecodeError {
		t.Fatalf("result = %v, want DecodeError", result)
	}
}

func TestV2EncodeDecodeCommandFlagRoundTrip(t *testing.T) {
	e := NewV2Encoder()
	m := NewMsg([]byte("PING"))
	m.SetFlags(FlagCommand)
	e.LoadMsg(m)

	var out bytes.Buffer
	buf := make([]byte, 4)
	for {
		n := e.Encode(buf)
		if n == 0 {
			break
		}
		out.Write(buf[:n])
	}
	e.Encoded()

	d := NewV2Decoder(0)
	consumed, result := d.Decode(out.Bytes())
	if result != Decoded {
		t.Fatalf("result = %v, want Decoded", result)
	}
	if consumed != out.Len() {
		t.Fatalf("consumed = %d, want %d", consumed, out.Len())
	}
	if !d.Msg().IsCommand() {
		t.Fatal("IsCommand() = false, want true after a real v2Encoder/v2Decoder round trip")
	}
	if !bytes.Equal(d.Msg().Data(), []byte("PING")) {
		t.Errorf("body = %#v, want %#v", d.Msg().Data(), []byte("PING"))
	}
}

func TestV2EncodeRoundTrip(t *testing.T) {
	for i, c := range v2TestCases {
		e := NewV2Encoder()
		m := NewMsg(c.body)
		if c.more {
			m.SetFlags(FlagMore)
		}
		e.LoadMsg(m)

		var out bytes.Buffer
		buf := make([]byte, 4)
		for {
			n := e.Encode(buf)
			if n == 0 {
				break
			}
			out.Write(buf[:n])
		}
		e.Encoded()

		if !bytes.Equal(out.Bytes(), c.encoded) {
			t.Errorf("%d: encoded = %#v, want %#v", i, out.Bytes(), c.encoded)
		}
	}
}
