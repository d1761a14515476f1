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
	"fmt"

	"github.com/nanozmq/ztp/mechanism"
)

// fakeTransport is a synchronous, in-memory Transport: toEngine is bytes
// a test "peer" has queued for the engine to Read, fromEngine accumulates
// everything the engine Writes.
type fakeTransport struct {
	toEngine   []byte
	fromEngine []byte
}

func (t *fakeTransport) Read(p []byte) (int, error) {
	if len(t.toEngine) == 0 {
		return 0, ErrWouldBlock
	}
	n := copy(p, t.toEngine)
	t.toEngine = t.toEngine[n:]
	return n, nil
}

func (t *fakeTransport) Write(p []byte) (int, error) {
	t.fromEngine = append(t.fromEngine, p...)
	return len(p), nil
}

func (t *fakeTransport) feed(b []byte) { t.toEngine = append(t.toEngine, b...) }

// fakeReactor records every call the engine makes against it; it never
// drives callbacks itself, tests call Readable/Writable/TimerFired
// directly.
type fakeReactor struct {
	added, removed   bool
	pollIn, pollOut  bool
	timers           map[TimerID]int64
}

func newFakeReactor() *fakeReactor {
	return &fakeReactor{timers: make(map[TimerID]int64)}
}

func (r *fakeReactor) AddFD(h Handle)      { r.added = true }
func (r *fakeReactor) RemoveFD(h Handle)   { r.removed = true }
func (r *fakeReactor) SetPollIn(h Handle)  { r.pollIn = true }
func (r *fakeReactor) ResetPollIn(h Handle) { r.pollIn = false }
func (r *fakeReactor) SetPollOut(h Handle) { r.pollOut = true }
func (r *fakeReactor) ResetPollOut(h Handle) { r.pollOut = false }

func (r *fakeReactor) AddTimer(h Handle, intervalMS int64, id TimerID) {
	r.timers[id] = intervalMS
}

func (r *fakeReactor) CancelTimer(h Handle, id TimerID) {
	delete(r.timers, id)
}

// fakeEngineSession is a synchronous Session: outbox feeds PullMsg,
// inbox collects whatever PushMsg accepted, blockPushes forces the next
// N PushMsg calls to report backpressure.
type fakeEngineSession struct {
	outbox []*Msg
	inbox  []*Msg

	blockPushes int
	rejectNext  bool

	zapEnabled bool
	zapReplies []*Msg
	zapWritten []*Msg

	flushes int

	errored    bool
	handshaken bool
	errKind    ErrorKind

	handledErrorCodes []string
	rejectErrorReason bool
}

// HandleErrorReason implements the optional ErrorReasonHandler capability
// so phase.go's processHandshakeCommand can be exercised end to end.
func (s *fakeEngineSession) HandleErrorReason(code string) error {
	if s.rejectErrorReason {
		return fmt.Errorf("fakeEngineSession: rejected error reason %s", code)
	}
	s.handledErrorCodes = append(s.handledErrorCodes, code)
	return nil
}

func (s *fakeEngineSession) PullMsg() (*Msg, bool) {
	if len(s.outbox) == 0 {
		return nil, false
	}
	m := s.outbox[0]
	s.outbox = s.outbox[1:]
	return m, true
}

func (s *fakeEngineSession) PushMsg(msg *Msg) (bool, error) {
	if s.rejectNext {
		s.rejectNext = false
		return false, fmt.Errorf("fakeEngineSession: rejected")
	}
	if s.blockPushes > 0 {
		s.blockPushes--
		return false, nil
	}
	s.inbox = append(s.inbox, msg)
	return true, nil
}

func (s *fakeEngineSession) Flush() { s.flushes++ }

func (s *fakeEngineSession) ZapConnect() error {
	if len(s.zapReplies) == 0 {
		return errAgain
	}
	return nil
}

func (s *fakeEngineSession) ReadZapMsg() (*Msg, error) {
	if len(s.zapReplies) == 0 {
		return nil, fmt.Errorf("fakeEngineSession: no queued zap reply")
	}
	m := s.zapReplies[0]
	s.zapReplies = s.zapReplies[1:]
	return m, nil
}

func (s *fakeEngineSession) WriteZapMsg(msg *Msg) error {
	s.zapWritten = append(s.zapWritten, msg)
	return nil
}

func (s *fakeEngineSession) ZapEnabled() bool { return s.zapEnabled }

func (s *fakeEngineSession) EngineError(handshaken bool, kind ErrorKind) {
	s.errored = true
	s.handshaken = handshaken
	s.errKind = kind
}

// fakeEvents records every SocketEvents call.
type fakeEvents struct {
	handshakenRevisions []int
	disconnected        int
	protocolFailedCodes []int
}

func (e *fakeEvents) EventHandshaken(endpoint string, revision int) {
	e.handshakenRevisions = append(e.handshakenRevisions, revision)
}

func (e *fakeEvents) EventDisconnected(endpoint string) { e.disconnected++ }

func (e *fakeEvents) EventHandshakeFailedProtocol(endpoint string, code int) {
	e.protocolFailedCodes = append(e.protocolFailedCodes, code)
}

// fakePassthroughMechanism is a minimal mechanism.Mechanism stand-in for
// heartbeat.go/pipeline.go unit tests that don't need a real handshake:
// it reports Ready immediately and encodes/decodes unchanged.
type fakePassthroughMechanism struct {
	status    mechanism.Status
	peerID    []byte
	zapProps  *Metadata
	zmtpProps *Metadata

	nextCommand    *Msg
	nextCommandErr error
	processErr     error
	encodeErr      error
	decodeErr      error
}

func newFakePassthroughMechanism() *fakePassthroughMechanism {
	return &fakePassthroughMechanism{status: mechanism.StatusReady}
}

func (m *fakePassthroughMechanism) Status() mechanism.Status { return m.status }

func (m *fakePassthroughMechanism) NextHandshakeCommand() (*Msg, error) {
	if m.nextCommandErr != nil {
		return nil, m.nextCommandErr
	}
	if m.nextCommand != nil {
		return m.nextCommand, nil
	}
	return nil, mechanism.ErrAgain
}

func (m *fakePassthroughMechanism) ProcessHandshakeCommand(msg *Msg) error { return m.processErr }

func (m *fakePassthroughMechanism) ZapMsgAvailable() error { return nil }

func (m *fakePassthroughMechanism) Encode(msg *Msg) (*Msg, error) {
	if m.encodeErr != nil {
		return nil, m.encodeErr
	}
	return msg, nil
}

func (m *fakePassthroughMechanism) Decode(msg *Msg) (*Msg, error) {
	if m.decodeErr != nil {
		return nil, m.decodeErr
	}
	return msg, nil
}

func (m *fakePassthroughMechanism) PeerIdentity() []byte { return m.peerID }

func (m *fakePassthroughMechanism) ZapProperties() *Metadata { return m.zapProps }

func (m *fakePassthroughMechanism) ZmtpProperties() *Metadata { return m.zmtpProps }

// newTestEngine wires a fresh Engine against fresh fakes, ready for Plug.
func newTestEngine(cfg *Config) (*Engine, *fakeTransport, *fakeReactor, *fakeEngineSession, *fakeEvents) {
	transport := &fakeTransport{}
	reactor := newFakeReactor()
	session := &fakeEngineSession{}
	events := &fakeEvents{}
	e := NewEngine(transport, reactor, session, events, cfg, nil)
	return e, transport, reactor, session, events
}
