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

package models

import (
	"strings"
	"time"
)

// AlarmKey is the natural key for vendor alarms: one physical fault keeps one
// record no matter how many times the element manager re-announces it.
type AlarmKey struct {
	SerialNumber string `json:"serial_number"`
	AlarmID      string `json:"alarm_id"`
}

func (k AlarmKey) String() string {
	return k.SerialNumber + "/" + k.AlarmID
}

// AlarmStatus is the normalized downstream status derived from the raw vendor
// state text.
type AlarmStatus string

const (
	AlarmStatusActive       AlarmStatus = "active"
	AlarmStatusAcknowledged AlarmStatus = "acknowledged"
	AlarmStatusCleared      AlarmStatus = "cleared"
)

// AlarmStatusFromState maps a vendor state string to a downstream status.
// Vendors phrase these inconsistently ("Cleared", "clear alarm", "ACKED"), so
// matching is substring-based and case-insensitive; anything unrecognized
// counts as active.
func AlarmStatusFromState(state string) AlarmStatus {
	s := strings.ToLower(state)

	switch {
	case strings.Contains(s, "clear"):
		return AlarmStatusCleared
	case strings.Contains(s, "ack"):
		return AlarmStatusAcknowledged
	default:
		return AlarmStatusActive
	}
}

// AlarmRecord is the local mirror of one vendor alarm, keyed by
// (SerialNumber, AlarmID). Fields carries every vendor key verbatim; State
// and Location are lifted out because they are the only values that
// legitimately change after creation. Records are never deleted here;
// retention belongs to the downstream platform.
type AlarmRecord struct {
	SerialNumber string            `json:"serial_number"`
	AlarmID      string            `json:"alarm_id"`
	State        string            `json:"state,omitempty"`
	Location     string            `json:"location,omitempty"`
	Status       AlarmStatus       `json:"status"`
	Fields       map[string]string `json:"fields,omitempty"`
	Source       string            `json:"source,omitempty"`
	ReceivedAt   time.Time         `json:"received_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (r *AlarmRecord) Key() AlarmKey {
	return AlarmKey{SerialNumber: r.SerialNumber, AlarmID: r.AlarmID}
}

// Clone returns a deep copy, Fields map included, so holders of the copy
// never observe later in-place updates.
func (r *AlarmRecord) Clone() *AlarmRecord {
	if r == nil {
		return nil
	}

	out := *r

	if r.Fields != nil {
		out.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}

	return &out
}

// AlarmChangeKind distinguishes a first sighting from a later status change.
type AlarmChangeKind string

const (
	AlarmChangeCreated       AlarmChangeKind = "created"
	AlarmChangeStatusChanged AlarmChangeKind = "status_changed"
)

// AlarmChange is the unit handed to the downstream notifier. A created change
// carries the full record; a status change carries the same record after the
// in-place update, so consumers always see current state.
type AlarmChange struct {
	Kind   AlarmChangeKind `json:"kind"`
	Record *AlarmRecord    `json:"record"`
}
