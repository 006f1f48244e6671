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

package bridge

import "errors"

var (
	// ErrNoEndpoints is returned when the config names no element managers.
	ErrNoEndpoints = errors.New("bridge: at least one endpoint is required")

	// ErrInvalidEndpoint wraps the validation failure of a named endpoint.
	ErrInvalidEndpoint = errors.New("bridge: invalid endpoint")

	// ErrAlreadyStarted is returned by Start while the bridge is running.
	ErrAlreadyStarted = errors.New("bridge: already started")
)
