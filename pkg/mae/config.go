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
	"net"
	"strconv"
	"time"

	"github.com/carverauto/maestream/pkg/models"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultIdleTimeout    = 90 * time.Second
	defaultBaseDelay      = 1 * time.Second
	defaultMaxDelay       = 30 * time.Second
	defaultMaxAttempts    = 10
	defaultMaxBufferBytes = 32 * 1024
)

// TLSSettings configures transport security for the element manager connection.
type TLSSettings struct {
	Enabled  bool   `json:"enabled"`
	CAFile   string `json:"ca_file,omitempty"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
	// InsecureSkipVerify disables certificate verification. Test and staging use only.
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty"`
	ServerName         string `json:"server_name,omitempty"`
}

// Config describes one element manager endpoint and the session behavior
// against it. Immutable once the client is constructed.
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	TLS TLSSettings `json:"tls"`

	ConnectTimeout models.Duration `json:"connect_timeout,omitempty"`
	IdleTimeout    models.Duration `json:"idle_timeout,omitempty"`

	ReconnectBaseDelay   models.Duration `json:"reconnect_base_delay,omitempty"`
	ReconnectMaxDelay    models.Duration `json:"reconnect_max_delay,omitempty"`
	MaxReconnectAttempts int             `json:"max_reconnect_attempts,omitempty"`

	// SyncOnConnect requests a full active-alarm replay shortly after each
	// successful connection.
	SyncOnConnect bool `json:"sync_on_connect,omitempty"`

	// DisableReconnect turns off automatic reconnection. A single failure
	// then leaves the client disconnected.
	DisableReconnect bool `json:"disable_reconnect,omitempty"`

	// MaxBufferBytes bounds the framer's reassembly buffer against a peer
	// that never terminates a frame.
	MaxBufferBytes int `json:"max_buffer_bytes,omitempty"`
}

// Validate checks the endpoint definition and applies defaults. Configuration
// problems surface here, before any socket is opened.
func (c *Config) Validate() error {
	if c.Host == "" {
		return ErrHostRequired
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Port)
	}

	hasCert := c.TLS.CertFile != ""
	hasKey := c.TLS.KeyFile != ""

	if hasCert != hasKey {
		return ErrMutualTLSIncomplete
	}

	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = models.Duration(defaultConnectTimeout)
	}

	if c.IdleTimeout <= 0 {
		c.IdleTimeout = models.Duration(defaultIdleTimeout)
	}

	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = models.Duration(defaultBaseDelay)
	}

	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = models.Duration(defaultMaxDelay)
	}

	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxAttempts
	}

	if c.MaxBufferBytes <= 0 {
		c.MaxBufferBytes = defaultMaxBufferBytes
	}

	return nil
}

// Addr returns the host:port endpoint string.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Policy returns the reconnect policy derived from this configuration.
func (c *Config) Policy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:   time.Duration(c.ReconnectBaseDelay),
		MaxDelay:    time.Duration(c.ReconnectMaxDelay),
		MaxAttempts: c.MaxReconnectAttempts,
	}
}
