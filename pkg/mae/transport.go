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
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/carverauto/maestream/pkg/logger"
)

// Transport is one live connection to the element manager. It enforces the
// idle timeout on reads and a write deadline on outbound commands, and is
// safe to Close from any goroutine while a Read is in flight.
type Transport struct {
	conn         net.Conn
	idleTimeout  time.Duration
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Dial opens a connection to the configured endpoint, completing the TLS
// handshake when transport security is enabled. The context bounds the whole
// dial, including the handshake.
func Dial(ctx context.Context, cfg *Config, log logger.Logger) (*Transport, error) {
	dialer := &net.Dialer{Timeout: time.Duration(cfg.ConnectTimeout)}

	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Addr(), err)
	}

	if cfg.TLS.Enabled {
		tlsCfg, err := buildTLSConfig(&cfg.TLS, cfg.Host)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}

		tlsConn := tls.Client(conn, tlsCfg)

		hsCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ConnectTimeout))
		defer cancel()

		if err := tlsConn.HandshakeContext(hsCtx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("tls handshake with %s: %w", cfg.Addr(), err)
		}

		log.Debug().
			Str("server_name", tlsCfg.ServerName).
			Uint16("tls_version", tlsConn.ConnectionState().Version).
			Msg("TLS session established")

		conn = tlsConn
	}

	return &Transport{
		conn:         conn,
		idleTimeout:  time.Duration(cfg.IdleTimeout),
		writeTimeout: time.Duration(cfg.ConnectTimeout),
	}, nil
}

// Read fills p with the next chunk from the peer. When the peer stays silent
// past the idle timeout the error wraps ErrIdleTimeout, which the session
// treats as a dead connection; healthy element managers handshake well
// inside the window.
func (t *Transport) Read(p []byte) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.idleTimeout)); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}

	n, err := t.conn.Read(p)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return n, fmt.Errorf("%w: no bytes in %s", ErrIdleTimeout, t.idleTimeout)
		}

		return n, err
	}

	return n, nil
}

// Write sends p to the peer under the write deadline.
func (t *Transport) Write(p []byte) (int, error) {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return 0, fmt.Errorf("set write deadline: %w", err)
	}

	return t.conn.Write(p)
}

// Close shuts the connection down. Safe to call more than once; later calls
// return the first result.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})

	return t.closeErr
}

// RemoteAddr returns the peer address for logging.
func (t *Transport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// buildTLSConfig translates TLSSettings into a tls.Config. The element
// manager fleet still includes appliances that cannot negotiate TLS 1.3, so
// the floor stays at 1.2.
func buildTLSConfig(settings *TLSSettings, host string) (*tls.Config, error) {
	serverName := settings.ServerName
	if serverName == "" {
		serverName = host
	}

	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         serverName,
		InsecureSkipVerify: settings.InsecureSkipVerify, //nolint:gosec // explicit operator opt-in
	}

	if settings.CAFile != "" {
		caCert, err := os.ReadFile(settings.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file %s: %w", settings.CAFile, err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("%w: %s", errNoCACertsParsed, settings.CAFile)
		}

		tlsCfg.RootCAs = pool
	}

	if settings.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(settings.CertFile, settings.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client key pair: %w", err)
		}

		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	return tlsCfg, nil
}
