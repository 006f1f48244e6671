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

package grpc

import "errors"

var (
	errSecurityConfigRequired     = errors.New("security config required")
	errFailedToLoadKeyPair        = errors.New("failed to load TLS key pair")
	errFailedToReadCACert         = errors.New("failed to read CA certificate")
	errFailedToAppendCACert       = errors.New("failed to append CA certificate")
	errFailedToReadClientCACert   = errors.New("failed to read client CA certificate")
	errFailedToAppendClientCACert = errors.New("failed to append client CA certificate")
	errFailedToCreateMTLSProvider = errors.New("failed to create mTLS provider")
	errFailedWorkloadAPIClient    = errors.New("failed to create workload API client")
	errFailedToCreateX509Source   = errors.New("failed to create X.509 source")
	errInvalidTrustDomain         = errors.New("invalid trust domain")
	errInvalidServerSPIFFEID      = errors.New("invalid server SPIFFE ID")
	errUnknownSecurityMode        = errors.New("unknown security mode")
	errMissingCerts               = errors.New("missing certificates")
)
