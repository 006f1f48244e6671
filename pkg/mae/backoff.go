/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package mae

import "time"

// ReconnectPolicy controls how the client retries a lost connection:
// exponential delay growth from BaseDelay, clamped at MaxDelay, giving up
// after MaxAttempts consecutive failures.
type ReconnectPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// NextDelay returns the wait before retry number attempt. Attempts are
// counted from zero, so the first retry waits BaseDelay and each later one
// doubles it until MaxDelay.
func (p ReconnectPolicy) NextDelay(attempt int) time.Duration {
	delay := p.BaseDelay

	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			break
		}
	}

	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	return delay
}

// ShouldRetry reports whether another attempt is allowed after attempt
// consecutive failures.
func (p ReconnectPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}
