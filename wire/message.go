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

// Package wire implements the ZMTP codecs (V1, V2, Raw) and the message
// type they produce and consume.
package wire

// Flag is a bitmask of per-message wire flags.
type Flag byte

const (
	// FlagMore indicates more frames follow in the same multipart message.
	FlagMore Flag = 1 << iota
	// FlagCommand marks the frame as a protocol command (PING, PONG,
	// HELLO, ...) rather than application data.
	FlagCommand
	// FlagIdentity marks a v0/v1/v2 identity frame delivered to the
	// session.
	FlagIdentity
	// FlagCredential marks the mechanism-supplied user id frame pushed
	// once after the handshake completes.
	FlagCredential
)

// Msg is the engine's unit of exchange with the session: an opaque byte
// sequence plus flags, and an optional metadata pointer (property name to
// value bytes) attached once the mechanism has finished its handshake.
type Msg struct {
	data     []byte
	flags    Flag
	metadata *Metadata
}

// NewMsg wraps data as a Msg with no flags set.
func NewMsg(data []byte) *Msg {
	return &Msg{data: data}
}

// NewMsgSize allocates a zeroed Msg of the given size, for callers that
// want to fill it in place (decoders).
func NewMsgSize(size int) *Msg {
	return &Msg{data: make([]byte, size)}
}

// Data returns the message payload.
func (m *Msg) Data() []byte { return m.data }

// SetData replaces the message payload in place, keeping flags/metadata.
func (m *Msg) SetData(data []byte) { m.data = data }

// Size returns the payload length in bytes.
func (m *Msg) Size() int { return len(m.data) }

// Flags returns the raw flag bitmask.
func (m *Msg) Flags() Flag { return m.flags }

// SetFlags ORs the given flags into the message.
func (m *Msg) SetFlags(f Flag) { m.flags |= f }

// ClearFlags clears the given flags.
func (m *Msg) ClearFlags(f Flag) { m.flags &^= f }

// HasMore reports whether FlagMore is set.
func (m *Msg) HasMore() bool { return m.flags&FlagMore != 0 }

// IsCommand reports whether FlagCommand is set.
func (m *Msg) IsCommand() bool { return m.flags&FlagCommand != 0 }

// Metadata returns the message's attached property set, or nil.
func (m *Msg) Metadata() *Metadata { return m.metadata }

// SetMetadata attaches a property set to the message.
func (m *Msg) SetMetadata(md *Metadata) { m.metadata = md }

// PutShortString writes s as the ZMTP "short string" encoding used by
// command names and CURVE status codes: a single length byte followed by
// the bytes themselves. It is appended to data.
func (m *Msg) PutShortString(s string) {
	m.data = append(m.data, byte(len(s)))
	m.data = append(m.data, s...)
}

// StartsWith reports whether the message body starts with the short
// string s (length byte plus bytes), per Mechanism.compare in the
// original jeromq source.
func (m *Msg) StartsWith(s string) bool {
	if len(m.data) < 1+len(s) {
		return false
	}
	if int(m.data[0]) != len(s) {
		return false
	}
	return string(m.data[1:1+len(s)]) == s
}

// Metadata is the property map ZMTP mechanisms exchange during the
// handshake: ZAP-reported properties (user-id, ...) and ZMTP-reported
// peer properties (Socket-Type, Identity, ...). Values are kept as bytes
// so binary identity properties round-trip without re-encoding.
type Metadata struct {
	props map[string][]byte
}

// NewMetadata returns an empty property set.
func NewMetadata() *Metadata {
	return &Metadata{props: make(map[string][]byte)}
}

// Get returns the value for name and whether it was present.
func (m *Metadata) Get(name string) ([]byte, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.props[name]
	return v, ok
}

// Set stores value under name, overwriting any previous value.
func (m *Metadata) Set(name string, value []byte) {
	m.props[name] = value
}

// Merge copies every property of other into m, overwriting on conflict.
func (m *Metadata) Merge(other *Metadata) {
	if other == nil {
		return
	}
	for k, v := range other.props {
		m.props[k] = v
	}
}

// IsEmpty reports whether the property set has no entries.
func (m *Metadata) IsEmpty() bool {
	return m == nil || len(m.props) == 0
}

// Range calls f for every property, in unspecified order.
func (m *Metadata) Range(f func(name string, value []byte)) {
	if m == nil {
		return
	}
	for k, v := range m.props {
		f(k, v)
	}
}
