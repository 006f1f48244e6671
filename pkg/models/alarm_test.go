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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlarmStatusFromState(t *testing.T) {
	tests := []struct {
		name     string
		state    string
		expected AlarmStatus
	}{
		{"empty state", "", AlarmStatusActive},
		{"raised", "Raised", AlarmStatusActive},
		{"cleared", "Cleared", AlarmStatusCleared},
		{"clear alarm phrasing", "clear alarm", AlarmStatusCleared},
		{"uppercase cleared", "CLEARED", AlarmStatusCleared},
		{"acknowledged", "Acknowledged", AlarmStatusAcknowledged},
		{"acked shorthand", "ACKED", AlarmStatusAcknowledged},
		{"unknown vendor text", "fault(major)", AlarmStatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AlarmStatusFromState(tt.state))
		})
	}
}

func TestAlarmRecordKey(t *testing.T) {
	rec := &AlarmRecord{SerialNumber: "1042", AlarmID: "7"}

	key := rec.Key()

	assert.Equal(t, AlarmKey{SerialNumber: "1042", AlarmID: "7"}, key)
	assert.Equal(t, "1042/7", key.String())
}
