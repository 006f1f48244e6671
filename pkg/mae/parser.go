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

import (
	"fmt"
	"strings"
)

// ResyncCommand asks the element manager to replay every active alarm. It is
// the only outbound payload and goes out unframed.
const ResyncCommand = "get all alarms"

// Control keywords the element manager places at the head of non-alarm
// frames. Matching is case-insensitive.
const (
	handshakeKeyword = "handshake"
	syncBeginKeyword = "sync start"
	syncEndKeyword   = "sync end"
)

// MessageKind classifies a decoded frame.
type MessageKind int

const (
	// MessageHandshake is the periodic keepalive carrying a peer timestamp.
	MessageHandshake MessageKind = iota
	// MessageSyncStart opens an active-alarm replay window.
	MessageSyncStart
	// MessageSyncEnd closes an active-alarm replay window.
	MessageSyncEnd
	// MessageAlarm carries one alarm as KEY = VALUE lines.
	MessageAlarm
)

// String returns the kind name used in logs.
func (k MessageKind) String() string {
	switch k {
	case MessageHandshake:
		return "handshake"
	case MessageSyncStart:
		return "sync_start"
	case MessageSyncEnd:
		return "sync_end"
	case MessageAlarm:
		return "alarm"
	default:
		return "unknown"
	}
}

// Message is one decoded frame. Timestamp is set only for handshakes and
// Fields only for alarms.
type Message struct {
	Kind      MessageKind
	Timestamp string
	Fields    *AlarmFields
}

// ParseMessage classifies a reassembled frame and decodes its payload.
//
// Frames that contain no parseable content at all return (nil, nil) and
// should be dropped quietly; the element manager pads its stream with blank
// frames on some firmware versions. An alarm frame missing either natural
// key field returns ErrMissingAlarmKeys.
func ParseMessage(frame RawFrame) (*Message, error) {
	text := strings.TrimSpace(string(frame))
	lower := strings.ToLower(text)

	switch {
	case strings.HasPrefix(lower, handshakeKeyword):
		return &Message{Kind: MessageHandshake, Timestamp: handshakeTimestamp(text)}, nil
	case strings.HasPrefix(lower, syncBeginKeyword):
		return &Message{Kind: MessageSyncStart}, nil
	case strings.HasPrefix(lower, syncEndKeyword):
		return &Message{Kind: MessageSyncEnd}, nil
	}

	fields := parseAlarmFields(text)
	if fields.Len() == 0 {
		return nil, nil
	}

	var missing []string

	if _, ok := fields.SerialNumber(); !ok {
		missing = append(missing, FieldSerialNumber)
	}

	if _, ok := fields.AlarmID(); !ok {
		missing = append(missing, FieldAlarmID)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingAlarmKeys, strings.Join(missing, ", "))
	}

	return &Message{Kind: MessageAlarm, Fields: fields}, nil
}

// handshakeTimestamp extracts the peer timestamp from a handshake line,
// which arrives as "handshake = <timestamp>". The timestamp is kept verbatim
// because element manager firmwares disagree on its format.
func handshakeTimestamp(text string) string {
	idx := strings.Index(text, "=")
	if idx < 0 {
		return ""
	}

	return strings.TrimSpace(text[idx+1:])
}

// parseAlarmFields decodes KEY = VALUE lines, preserving arrival order and
// key spelling. Lines without a separator are skipped.
func parseAlarmFields(text string) *AlarmFields {
	fields := NewAlarmFields()

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}

		key := strings.TrimSpace(line[:idx])
		if key == "" {
			continue
		}

		fields.Set(key, strings.TrimSpace(line[idx+1:]))
	}

	return fields
}
