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

package ztp

import (
	"bytes"
	"testing"

	"github.com/nanozmq/ztp/mechanism"
)

func baseConfig() *Config {
	return &Config{
		SocketType: "DEALER",
		Mechanism:  MechanismNull,
	}
}

// v3Greeting builds a full 64-byte v3 greeting tail a peer would send:
// signature (10 bytes, byte9's low bit set so we don't fall back to v0),
// major/minor version, the mechanism name field, and 32 bytes of filler.
func v3Greeting(mech string) []byte {
	g := make([]byte, v3GreetingSize)
	g[0] = 0xff
	g[9] = 0x01
	g[greetingSignatureSize] = wireProtocolV3
	g[greetingSignatureSize+1] = 0 // minor version, unchecked
	copy(g[greetingSignatureSize+2:greetingSignatureSize+2+curveNameLen], mech)
	return g
}

func v1v2Greeting(major byte, socketTypeByte byte) []byte {
	g := make([]byte, v1v2GreetingSize)
	g[0] = 0xff
	g[9] = 0x01
	g[greetingSignatureSize] = major
	g[greetingSignatureSize+1] = socketTypeByte
	return g
}

func TestHandshakeDetectsV0(t *testing.T) {
	cfg := baseConfig()
	cfg.Identity = []byte("AB")
	e, transport, _, session, events := newTestEngine(cfg)
	e.Plug(struct{}{})

	// A v0 peer never sends the 10-byte signature: the very first byte it
	// writes is already real v1 framing. Its own (empty) identity frame
	// is length=1, flags=0.
	transport.feed([]byte{0x01, 0x00})
	e.Readable()

	if len(events.handshakenRevisions) != 1 || events.handshakenRevisions[0] != revisionV0 {
		t.Fatalf("handshakenRevisions = %v, want [%d]", events.handshakenRevisions, revisionV0)
	}
	if e.greeting {
		t.Fatalf("engine still in greeting phase after v0 commit")
	}

	// The version-probe read only pulled the length byte out of the
	// peer's 2-byte frame (handshake() reads exactly greetWant bytes);
	// the flags byte is still sitting in the transport, so a second
	// Readable is what actually completes the decode.
	e.Readable()

	e.Writable()
	want := []byte{0xff, 0, 0, 0, 0, 0, 0, 0, 3, 0x7f, 'A', 'B'}
	if !bytes.Equal(transport.fromEngine, want) {
		t.Fatalf("fromEngine = %x, want %x", transport.fromEngine, want)
	}

	if len(session.inbox) != 1 {
		t.Fatalf("session.inbox = %d messages, want 1", len(session.inbox))
	}
	if session.inbox[0].Flags()&FlagIdentity == 0 {
		t.Fatalf("peer identity frame missing FlagIdentity")
	}
}

func TestHandshakeDetectsV1(t *testing.T) {
	cfg := baseConfig()
	e, transport, _, _, events := newTestEngine(cfg)
	e.Plug(struct{}{})

	transport.feed(v1v2Greeting(wireProtocolV1, 0x07))
	e.Readable()

	if len(events.handshakenRevisions) != 1 || events.handshakenRevisions[0] != revisionV1 {
		t.Fatalf("handshakenRevisions = %v, want [%d]", events.handshakenRevisions, revisionV1)
	}

	e.Writable()
	e.Writable()

	wantTail := []byte{wireProtocolV3, socketTypeCode("DEALER"), 0x01, 0x00}
	if !bytes.HasSuffix(transport.fromEngine, wantTail) {
		t.Fatalf("fromEngine tail = %x, want suffix %x", transport.fromEngine, wantTail)
	}
}

func TestHandshakeDetectsV2(t *testing.T) {
	cfg := baseConfig()
	e, transport, _, _, events := newTestEngine(cfg)
	e.Plug(struct{}{})

	transport.feed(v1v2Greeting(wireProtocolV2, 0x07))
	e.Readable()

	if len(events.handshakenRevisions) != 1 || events.handshakenRevisions[0] != revisionV2 {
		t.Fatalf("handshakenRevisions = %v, want [%d]", events.handshakenRevisions, revisionV2)
	}
}

func TestHandshakeDetectsV3AndConstructsMechanism(t *testing.T) {
	cfg := baseConfig()
	e, transport, _, _, events := newTestEngine(cfg)
	e.Plug(struct{}{})

	transport.feed(v3Greeting("NULL"))
	e.Readable()

	// v3 defers EventHandshaken to mechanismReady; committing the
	// revision alone must not fire it yet.
	if len(events.handshakenRevisions) != 0 {
		t.Fatalf("handshakenRevisions = %v, want none before mechanism ready", events.handshakenRevisions)
	}
	if e.greeting {
		t.Fatalf("engine still in greeting phase after v3 commit")
	}
	if e.revision != revisionV3 {
		t.Fatalf("revision = %d, want %d", e.revision, revisionV3)
	}
	if e.mech == nil {
		t.Fatalf("mechanism not constructed")
	}
	if e.mech.Status() != mechanism.StatusHandshaking {
		t.Fatalf("mechanism status = %v, want Handshaking", e.mech.Status())
	}
}

func TestHandshakeV3MechanismMismatchFails(t *testing.T) {
	cfg := baseConfig()
	cfg.Mechanism = MechanismPlain
	e, transport, _, session, _ := newTestEngine(cfg)
	e.Plug(struct{}{})

	transport.feed(v3Greeting("NULL"))
	e.Readable()

	if !session.errored {
		t.Fatalf("expected engine failure on mechanism name mismatch")
	}
	if session.errKind != ErrProtocol {
		t.Fatalf("errKind = %v, want ErrProtocol", session.errKind)
	}
}

func TestHandshakeV0RejectedWhenZapEnabled(t *testing.T) {
	cfg := baseConfig()
	e, transport, _, session, _ := newTestEngine(cfg)
	session.zapEnabled = true
	e.Plug(struct{}{})

	transport.feed([]byte{0x01, 0x00})
	e.Readable()

	if !session.errored || session.errKind != ErrProtocol {
		t.Fatalf("expected ZAP-vs-v0 protocol error, got errored=%v kind=%v", session.errored, session.errKind)
	}
}

func TestFixedFieldRoundTrip(t *testing.T) {
	field := fixedField("NULL", curveNameLen)
	if len(field) != curveNameLen {
		t.Fatalf("fixedField length = %d, want %d", len(field), curveNameLen)
	}
	if got := trimFixedField(field); got != "NULL" {
		t.Fatalf("trimFixedField = %q, want %q", got, "NULL")
	}
}

func TestSocketTypeCode(t *testing.T) {
	cases := map[string]byte{
		"PAIR": 0, "ROUTER": 6, "STREAM": 11,
	}
	for name, want := range cases {
		if got := socketTypeCode(name); got != want {
			t.Errorf("socketTypeCode(%q) = %d, want %d", name, got, want)
		}
	}
}
