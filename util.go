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
	"math/rand"
	"time"
)

// Backoff is a simple way to calculate the backoff to use e.g. when a
// session-level reconnect policy (out of scope for the engine itself,
// see §1's Non-goals) wants to space out redial attempts.
//
// The backoff time is a random multiple of Step in [0, 2^count * Step),
// capped at Max, where count is the number of attempts. Every call to
// Backoff() or Wait() counts as an attempt.
type Backoff struct {
	// Max is the maximum time to return from Backoff.
	Max time.Duration

	// Step is the factor used when calculating the backoff duration.
	Step time.Duration

	count uint
}

func (b *Backoff) defaultDuration(a, d time.Duration) time.Duration {
	if a == 0 {
		return d
	}
	return a
}

// Backoff returns the backoff calculated for this attempt.
func (b *Backoff) Backoff() time.Duration {
	max := b.defaultDuration(b.Max, 60*time.Second)
	step := b.defaultDuration(b.Step, 42*time.Millisecond)

	if b.count < 63 {
		b.count++
	}

	random := time.Duration(rand.Int() % (1 << b.count))
	backoff := step * random
	if max > 0 && backoff > max {
		backoff = max
	}
	return backoff
}

// Wait is a shorthand for time.Sleep() on the returned duration from
// Backoff().
func (b *Backoff) Wait() {
	time.Sleep(b.Backoff())
}
