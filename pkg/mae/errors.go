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

import "errors"

var (
	// ErrHostRequired indicates the endpoint host is missing from the configuration.
	ErrHostRequired = errors.New("mae: host is required")
	// ErrInvalidPort indicates the endpoint port is outside the valid range.
	ErrInvalidPort = errors.New("mae: port must be between 1 and 65535")
	// ErrMutualTLSIncomplete indicates only one half of the client certificate pair was configured.
	ErrMutualTLSIncomplete = errors.New("mae: mutual TLS requires both tls.cert_file and tls.key_file")
	// ErrBufferOverflow indicates the framer discarded buffered bytes that exceeded the safety ceiling.
	ErrBufferOverflow = errors.New("mae: frame buffer exceeded safety ceiling")
	// ErrMissingAlarmKeys indicates an alarm frame lacked the required identifying keys.
	ErrMissingAlarmKeys = errors.New("mae: alarm frame missing required keys")
	// ErrIdleTimeout indicates no bytes arrived within the configured idle window.
	ErrIdleTimeout = errors.New("mae: idle timeout exceeded")
	// ErrNotConnected indicates an operation that requires a live connection.
	ErrNotConnected = errors.New("mae: not connected")
	// ErrAlreadyStarted indicates Start was called on a client whose session is still running.
	ErrAlreadyStarted = errors.New("mae: client already started")

	// errNoCACertsParsed indicates the configured CA file contained no usable certificates.
	errNoCACertsParsed = errors.New("mae: no CA certificates parsed from ca_file")
)
