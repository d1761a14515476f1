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

package mechanism

import (
	"fmt"

	"github.com/nanozmq/ztp/wire"
)

// Session is the subset of the engine's session contract a mechanism
// needs to run a ZAP exchange. Any type satisfying ztp.Session already
// satisfies this narrower interface structurally.
type Session interface {
	ZapConnect() error
	ReadZapMsg() (*wire.Msg, error)
	WriteZapMsg(msg *wire.Msg) error
	ZapEnabled() bool
}

const zapRequestID = "1"

// SendZapRequest sends the fixed ZAP request preamble (RFC 27): an empty
// address-delimiter frame, version, request id, domain, peer address,
// identity, and mechanism name, followed by any mechanism-specific
// credential frames the caller supplies (CURVE sends the client's
// long-term public key here, PLAIN sends username/password).
func SendZapRequest(session Session, mechanismName, domain, peerAddress string, identity []byte, credentials ...[]byte) error {
	frames := make([][]byte, 0, 7+len(credentials))
	frames = append(frames,
		nil,
		[]byte("1.0"),
		[]byte(zapRequestID),
		[]byte(domain),
		[]byte(peerAddress),
		identity,
		[]byte(mechanismName),
	)
	frames = append(frames, credentials...)

	for i, f := range frames {
		m := wire.NewMsg(f)
		if i < len(frames)-1 {
			m.SetFlags(wire.FlagMore)
		}
		if err := session.WriteZapMsg(m); err != nil {
			return fmt.Errorf("mechanism: zap request: %w", err)
		}
	}
	return nil
}

// ZapReply is the parsed result of a 7-frame ZAP reply.
type ZapReply struct {
	StatusCode string
	UserID     []byte
	Properties *wire.Metadata
}

// ReceiveAndProcessZapReply reads and validates the fixed 7-frame ZAP
// reply: an empty delimiter, version, request id, status code (exactly 3
// bytes), status text, user id, and a metadata property blob.
func ReceiveAndProcessZapReply(session Session) (*ZapReply, error) {
	const numFrames = 7
	frames := make([]*wire.Msg, 0, numFrames)
	for i := 0; i < numFrames; i++ {
		m, err := session.ReadZapMsg()
		if err != nil {
			return nil, fmt.Errorf("mechanism: zap reply: %w", err)
		}
		wantMore := i < numFrames-1
		if m.HasMore() != wantMore {
			return nil, fmt.Errorf("mechanism: zap reply: frame %d more-flag mismatch", i)
		}
		frames = append(frames, m)
	}

	if len(frames[0].Data()) != 0 {
		return nil, fmt.Errorf("mechanism: zap reply: frame 0 not empty")
	}
	if string(frames[1].Data()) != "1.0" {
		return nil, fmt.Errorf("mechanism: zap reply: unsupported version %q", frames[1].Data())
	}
	if string(frames[2].Data()) != zapRequestID {
		return nil, fmt.Errorf("mechanism: zap reply: unexpected request id %q", frames[2].Data())
	}
	if len(frames[3].Data()) != 3 {
		return nil, fmt.Errorf("mechanism: zap reply: status code must be 3 bytes")
	}

	reply := &ZapReply{
		StatusCode: string(frames[3].Data()),
		UserID:     frames[5].Data(),
		Properties: wire.NewMetadata(),
	}
	if err := ParseMetadata(frames[6].Data(), func(name string, value []byte) error {
		reply.Properties.Set(name, append([]byte(nil), value...))
		return nil
	}); err != nil {
		return nil, err
	}
	return reply, nil
}
