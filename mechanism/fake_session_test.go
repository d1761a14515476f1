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

// fakeSession is a synchronous, in-memory stand-in for the engine's ZAP
// transport, used by null_test.go and plain_test.go.
type fakeSession struct {
	zapEnabled bool
	written    []*wire.Msg
	replies    []*wire.Msg
}

func (f *fakeSession) ZapConnect() error { return nil }

func (f *fakeSession) ReadZapMsg() (*wire.Msg, error) {
	if len(f.replies) == 0 {
		return nil, fmt.Errorf("fakeSession: no queued zap reply")
	}
	m := f.replies[0]
	f.replies = f.replies[1:]
	return m, nil
}

func (f *fakeSession) WriteZapMsg(msg *wire.Msg) error {
	f.written = append(f.written, msg)
	return nil
}

func (f *fakeSession) ZapEnabled() bool { return f.zapEnabled }

// queueZapReply enqueues a well-formed 7-frame ZAP reply.
func queueZapReply(f *fakeSession, statusCode string, userID []byte, metadata []byte) {
	frames := [][]byte{nil, []byte("1.0"), []byte(zapRequestID), []byte(statusCode), []byte("status text"), userID, metadata}
	for i, data := range frames {
		m := wire.NewMsg(data)
		if i < len(frames)-1 {
			m.SetFlags(wire.FlagMore)
		}
		f.replies = append(f.replies, m)
	}
}
