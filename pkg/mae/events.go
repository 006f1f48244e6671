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

// EventKind identifies one kind of session occurrence.
type EventKind int

const (
	// EventConnected fires after a successful dial, TLS handshake included.
	EventConnected EventKind = iota
	// EventDisconnected fires when an established connection is lost and,
	// with reconnection disabled, after the failure that ends the session.
	EventDisconnected
	// EventHandshake fires for each keepalive frame from the peer.
	EventHandshake
	// EventSyncStart marks the beginning of an active-alarm replay.
	EventSyncStart
	// EventSyncEnd marks the end of an active-alarm replay.
	EventSyncEnd
	// EventAlarmReceived carries one decoded alarm.
	EventAlarmReceived
	// EventError reports a non-fatal session error; the session continues
	// or reconnects according to policy.
	EventError
	// EventMaxAttemptsReached fires exactly once when reconnection gives up.
	EventMaxAttemptsReached
)

// String returns the kind name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventHandshake:
		return "handshake"
	case EventSyncStart:
		return "sync_start"
	case EventSyncEnd:
		return "sync_end"
	case EventAlarmReceived:
		return "alarm_received"
	case EventError:
		return "error"
	case EventMaxAttemptsReached:
		return "max_attempts_reached"
	default:
		return "unknown"
	}
}

// Event is one session occurrence. Events are delivered in the order the
// bytes producing them arrived on the wire.
//
// Timestamp is set for EventHandshake, Fields for EventAlarmReceived and
// Err for EventError; the other fields are zero.
type Event struct {
	Kind      EventKind
	Timestamp string
	Fields    *AlarmFields
	Err       error
}
