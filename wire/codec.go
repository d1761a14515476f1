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

import "errors"

// Result is the outcome of one Decoder.Decode call.
type Result int

const (
	// MoreData means the decoder consumed everything it could use from
	// the supplied slice but has not yet completed a frame.
	MoreData Result = iota
	// Decoded means one full message is available via Msg().
	Decoded
	// DecodeError means the input violates framing rules (bad length,
	// max-size exceeded, ...); the connection must be torn down with a
	// PROTOCOL error.
	DecodeError
)

// ErrMsgTooLarge is the DecodeError cause when a frame's declared length
// exceeds the decoder's configured maximum.
var ErrMsgTooLarge = errors.New("wire: message exceeds max_msg_size")

// ErrAgain is the shared would-block sentinel: a mechanism handshake
// step with nothing to send yet, a ZAP reply not available synchronously,
// or a session backpressure signal. It is defined once here so the root
// engine and the mechanism packages compare against the same value
// without an import cycle between them.
var ErrAgain = errors.New("wire: resource temporarily unavailable")

// Decoder turns a byte stream into a sequence of Msgs. The caller (the
// engine) supplies successive slices of freshly read socket bytes; a
// decoder retains any partial frame state internally between calls, so a
// frame split across two reads decodes correctly across two Decode calls.
//
// The engine drives it in a loop per §4.2/§4.3: call Decode, and on
// Decoded call Msg then Decode again with the unconsumed remainder, until
// MoreData (need another socket read) or DecodeError (fatal).
type Decoder interface {
	// Decode consumes a prefix of data, returning how many bytes were
	// consumed. consumed is always <= len(data) and, on MoreData, always
	// equals len(data) (a decoder never leaves bytes on the table
	// without a reason to hold them).
	Decode(data []byte) (consumed int, result Result)
	// Msg returns the most recently completed message. Valid only
	// immediately after a Decode call returned Decoded.
	Msg() *Msg
}

// Encoder turns queued Msgs into wire bytes. LoadMsg queues exactly one
// message; Encode may be called repeatedly against a shrinking view to
// fill an output batch, and returns 0 once the queued message has been
// fully emitted (signaling the caller should LoadMsg the next one).
type Encoder interface {
	// LoadMsg queues m for encoding. The encoder does not take ownership
	// of m's underlying bytes beyond the calls needed to emit it.
	LoadMsg(m *Msg)
	// Encode fills view from the front, returning how many bytes were
	// written. Returns 0 when the currently loaded message has been
	// fully written.
	Encode(view []byte) (n int)
	// Encoded is called once per output batch after the caller has
	// finished pulling bytes via Encode, so the encoder can release any
	// buffers it held only for that batch.
	Encoded()
}
