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
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// newConnLogger returns a logrus.FieldLogger with this engine's
// correlation id attached, as the "conn" field, to every line it emits;
// phase and revision are added per call site through withPhase. base is
// injected by the caller (never a package-level global)
// so multiple engines in one process log independently and tests can
// hand in a logger backed by a buffer. A nil base falls back to a
// standalone logrus.Logger at its default level.
func newConnLogger(base logrus.FieldLogger, connID uuid.UUID) logrus.FieldLogger {
	if base == nil {
		base = logrus.New()
	}
	return base.WithFields(logrus.Fields{
		"conn": connID.String(),
	})
}

// withPhase narrows a connection logger down to the engine's current
// protocol phase and negotiated revision, for call sites that log
// mid-transition.
func withPhase(log logrus.FieldLogger, phase string, revision int) logrus.FieldLogger {
	return log.WithFields(logrus.Fields{
		"phase":    phase,
		"revision": revision,
	})
}
