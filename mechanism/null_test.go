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
	"testing"

	"github.com/nanozmq/ztp/wire"
)

func TestNullHandshakeWithoutZap(t *testing.T) {
	session := &fakeSession{zapEnabled: false}
	n := NewNull(session, "REQ", []byte("id-1"), true, "", "")

	ready, err := n.NextHandshakeCommand()
	if err != nil {
		t.Fatalf("NextHandshakeCommand: %v", err)
	}
	if !ready.StartsWith("READY") {
		t.Fatal("expected READY command")
	}
	if n.Status() != StatusHandshaking {
		t.Fatalf("status after sending READY = %v, want handshaking (peer hasn't replied)", n.Status())
	}

	peerReady := commandMsg("READY", AddProperty(nil, PropertySocketType, []byte("REP")))
	if err := n.ProcessHandshakeCommand(peerReady); err != nil {
		t.Fatalf("ProcessHandshakeCommand: %v", err)
	}
	if n.Status() != StatusReady {
		t.Fatalf("status = %v, want ready", n.Status())
	}
}

func TestNullHandshakeWithZapAccepted(t *testing.T) {
	session := &fakeSession{zapEnabled: true}
	queueZapReply(session, "200", []byte("alice"), nil)
	n := NewNull(session, "REQ", nil, false, "global", "tcp://peer:1")

	if _, err := n.NextHandshakeCommand(); err != nil {
		t.Fatalf("NextHandshakeCommand: %v", err)
	}
	got, _ := n.ZapProperties().Get(PropertyUserID)
	if string(got) != "alice" {
		t.Fatalf("user id = %q, want alice", got)
	}
	if len(session.written) != 7 {
		t.Fatalf("wrote %d zap request frames, want 7", len(session.written))
	}
}

func TestNullHandshakeWithZapDenied(t *testing.T) {
	session := &fakeSession{zapEnabled: true}
	queueZapReply(session, "400", nil, nil)
	n := NewNull(session, "REQ", nil, false, "global", "tcp://peer:1")

	msg, err := n.NextHandshakeCommand()
	if err != nil {
		t.Fatalf("NextHandshakeCommand: %v", err)
	}
	if !msg.StartsWith("ERROR") {
		t.Fatal("expected ERROR command after zap denial")
	}
	if n.Status() != StatusError {
		t.Fatalf("status = %v, want error", n.Status())
	}
}

func TestNullDecodeRejectsError(t *testing.T) {
	n := NewNull(&fakeSession{}, "REQ", nil, false, "", "")
	err := n.ProcessHandshakeCommand(commandMsg("ERROR", wire.PutShortString(nil, "300")))
	if err == nil {
		t.Fatal("expected error processing peer ERROR command")
	}
}

func TestNullEncodeDecodeIsPassthrough(t *testing.T) {
	n := NewNull(&fakeSession{}, "REQ", nil, false, "", "")
	msg := wire.NewMsg([]byte("payload"))
	enc, err := n.Encode(msg)
	if err != nil || enc != msg {
		t.Fatalf("Encode should pass through unchanged, got %v, %v", enc, err)
	}
	dec, err := n.Decode(msg)
	if err != nil || dec != msg {
		t.Fatalf("Decode should pass through unchanged, got %v, %v", dec, err)
	}
}
