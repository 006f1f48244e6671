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

import "strings"

// Field keys the ingestion layer relies on. The element manager emits them
// with this exact spelling; lookups stay case-insensitive regardless.
const (
	FieldSerialNumber = "Sn"
	FieldAlarmID      = "AlarmID"
)

// AlarmFields holds the key/value pairs of one alarm frame in the order the
// element manager sent them. Keys keep their original spelling; lookups are
// case-insensitive.
type AlarmFields struct {
	keys   []string
	values map[string]string
}

// NewAlarmFields returns an empty field set.
func NewAlarmFields() *AlarmFields {
	return &AlarmFields{values: make(map[string]string)}
}

// Set records a field. A repeated key overwrites the value but keeps the
// key's original position and spelling.
func (f *AlarmFields) Set(key, value string) {
	norm := strings.ToLower(key)

	if _, ok := f.values[norm]; !ok {
		f.keys = append(f.keys, key)
	}

	f.values[norm] = value
}

// Get returns the value for key, or the empty string when absent.
func (f *AlarmFields) Get(key string) string {
	return f.values[strings.ToLower(key)]
}

// Lookup returns the value for key and whether it was present.
func (f *AlarmFields) Lookup(key string) (string, bool) {
	v, ok := f.values[strings.ToLower(key)]
	return v, ok
}

// Keys returns the field names in arrival order.
func (f *AlarmFields) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)

	return out
}

// Len returns the number of distinct fields.
func (f *AlarmFields) Len() int {
	return len(f.keys)
}

// Map returns a plain map copy of the fields keyed by their original
// spelling. Arrival order is lost; use Keys for ordered iteration.
func (f *AlarmFields) Map() map[string]string {
	out := make(map[string]string, len(f.keys))

	for _, k := range f.keys {
		out[k] = f.values[strings.ToLower(k)]
	}

	return out
}

// SerialNumber returns the device serial field, if present.
func (f *AlarmFields) SerialNumber() (string, bool) {
	return f.Lookup(FieldSerialNumber)
}

// AlarmID returns the alarm identifier field, if present.
func (f *AlarmFields) AlarmID() (string, bool) {
	return f.Lookup(FieldAlarmID)
}
