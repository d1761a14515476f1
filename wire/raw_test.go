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

func TestRawDecodeIsUnframed(t *testing.T) {
	d := NewRawDecoder()
	input := []byte("arbitrary bytes, no framing")
	consumed, result := d.Decode(input)
	if result != Decoded {
		t.Fatalf("result = %v, want Decoded", result)
	}
	if consumed != len(input) {
		t.Fatalf("consumed = %d, want %d", consumed, len(input))
	}
	if !bytes.Equal(d.Msg().Data(), input) {
		t.Fatalf("body = %#v, want %#v", d.Msg().Data(), input)
	}
}

func TestRawDecodeEmptyIsMoreData(t *testing.T) {
	d := NewRawDecoder()
	_, result := d.Decode(nil)
	if result != MoreData {
		t.Fatalf("result = %v, want MoreData", result)
	}
}

func TestRawEncodeEmitsBodyVerbatim(t *testing.T) {
	e := NewRawEncoder()
	body := []byte("payload")
	e.LoadMsg(NewMsg(body))

	var out bytes.Buffer
	buf := make([]byte, 3)
	for {
		n := e.Encode(buf)
		if n == 0 {
			break
		}
		out.Write(buf[:n])
	}
	e.Encoded()

	if !bytes.Equal(out.Bytes(), body) {
		t.Fatalf("encoded = %#v, want %#v", out.Bytes(), body)
	}
}
