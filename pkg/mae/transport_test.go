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
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/maestream/pkg/grpc"
	"github.com/carverauto/maestream/pkg/logger"
	"github.com/carverauto/maestream/pkg/models"
)

func transportConfig(t *testing.T, addr string) *Config {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := &Config{Host: host, Port: port}
	require.NoError(t, cfg.Validate())

	return cfg
}

func readExactly(t *testing.T, tr *Transport, n int) []byte {
	t.Helper()

	out := make([]byte, 0, n)
	buf := make([]byte, 256)

	for len(out) < n {
		rn, err := tr.Read(buf)
		require.NoError(t, err)

		out = append(out, buf[:rn]...)
	}

	return out
}

func TestDialAndReadPlainTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() { _ = ln.Close() }()

	payload := "<+++>handshake = 2024-01-01T00:00:00<--->"

	go func() {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			return
		}

		defer func() { _ = conn.Close() }()

		_, _ = conn.Write([]byte(payload))
	}()

	cfg := transportConfig(t, ln.Addr().String())

	tr, err := Dial(context.Background(), cfg, logger.NewTestLogger())
	require.NoError(t, err)

	defer func() { _ = tr.Close() }()

	assert.NotEmpty(t, tr.RemoteAddr())

	got := readExactly(t, tr, len(payload))
	assert.Equal(t, payload, string(got))
}

func TestDialConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := transportConfig(t, addr)
	cfg.ConnectTimeout = models.Duration(2 * time.Second)

	_, err = Dial(context.Background(), cfg, logger.NewTestLogger())
	require.Error(t, err)
}

func TestReadIdleTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() { _ = ln.Close() }()

	accepted := make(chan net.Conn, 1)

	go func() {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			return
		}

		accepted <- conn
	}()

	cfg := transportConfig(t, ln.Addr().String())
	cfg.IdleTimeout = models.Duration(50 * time.Millisecond)

	tr, err := Dial(context.Background(), cfg, logger.NewTestLogger())
	require.NoError(t, err)

	defer func() { _ = tr.Close() }()

	_, err = tr.Read(make([]byte, 16))
	require.ErrorIs(t, err, ErrIdleTimeout)

	if conn := <-accepted; conn != nil {
		_ = conn.Close()
	}
}

func TestWriteRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() { _ = ln.Close() }()

	command := ResyncCommand

	go func() {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			return
		}

		defer func() { _ = conn.Close() }()

		buf := make([]byte, len(command))
		for read := 0; read < len(command); {
			n, readErr := conn.Read(buf[read:])
			if readErr != nil {
				return
			}

			read += n
		}

		_, _ = conn.Write(buf)
	}()

	cfg := transportConfig(t, ln.Addr().String())

	tr, err := Dial(context.Background(), cfg, logger.NewTestLogger())
	require.NoError(t, err)

	defer func() { _ = tr.Close() }()

	n, err := tr.Write([]byte(command))
	require.NoError(t, err)
	assert.Equal(t, len(command), n)

	echo := readExactly(t, tr, len(command))
	assert.Equal(t, command, string(echo))
}

func TestTransportCloseIdempotent(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() { _ = ln.Close() }()

	go func() {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			return
		}

		_ = conn
	}()

	cfg := transportConfig(t, ln.Addr().String())

	tr, err := Dial(context.Background(), cfg, logger.NewTestLogger())
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, err = tr.Read(make([]byte, 8))
	require.Error(t, err)
}

func TestDialTLS(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, grpc.GenerateTestCertificates(dir))

	serverCert, err := tls.LoadX509KeyPair(
		filepath.Join(dir, "server.pem"),
		filepath.Join(dir, "server-key.pem"),
	)
	require.NoError(t, err)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		MinVersion:   tls.VersionTLS12,
	})
	require.NoError(t, err)

	defer func() { _ = ln.Close() }()

	payload := "<+++>sync start<--->"

	go func() {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			return
		}

		defer func() { _ = conn.Close() }()

		_, _ = conn.Write([]byte(payload))
	}()

	cfg := transportConfig(t, ln.Addr().String())
	cfg.TLS = TLSSettings{Enabled: true, CAFile: filepath.Join(dir, "root.pem")}

	tr, err := Dial(context.Background(), cfg, logger.NewTestLogger())
	require.NoError(t, err)

	defer func() { _ = tr.Close() }()

	got := readExactly(t, tr, len(payload))
	assert.Equal(t, payload, string(got))
}

func TestDialTLSRejectsUntrustedServer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, grpc.GenerateTestCertificates(dir))

	serverCert, err := tls.LoadX509KeyPair(
		filepath.Join(dir, "server.pem"),
		filepath.Join(dir, "server-key.pem"),
	)
	require.NoError(t, err)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		MinVersion:   tls.VersionTLS12,
	})
	require.NoError(t, err)

	defer func() { _ = ln.Close() }()

	go func() {
		for {
			conn, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}

			_ = conn.Close()
		}
	}()

	// No CA configured, so the self-signed chain must fail verification.
	cfg := transportConfig(t, ln.Addr().String())
	cfg.TLS = TLSSettings{Enabled: true}

	_, err = Dial(context.Background(), cfg, logger.NewTestLogger())
	require.Error(t, err)
}

func TestBuildTLSConfig(t *testing.T) {
	tlsCfg, err := buildTLSConfig(&TLSSettings{}, "ems.example.net")
	require.NoError(t, err)
	assert.Equal(t, "ems.example.net", tlsCfg.ServerName)
	assert.Equal(t, uint16(tls.VersionTLS12), tlsCfg.MinVersion)
	assert.False(t, tlsCfg.InsecureSkipVerify)

	tlsCfg, err = buildTLSConfig(&TLSSettings{ServerName: "alias.example.net"}, "ems.example.net")
	require.NoError(t, err)
	assert.Equal(t, "alias.example.net", tlsCfg.ServerName)

	_, err = buildTLSConfig(&TLSSettings{CAFile: filepath.Join(t.TempDir(), "missing.pem")}, "h")
	require.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))

	_, err = buildTLSConfig(&TLSSettings{CAFile: garbage}, "h")
	require.ErrorIs(t, err, errNoCACertsParsed)
}
