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

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/carverauto/maestream/pkg/logger"
	"github.com/carverauto/maestream/pkg/models"
)

const (
	SecurityModeNone   models.SecurityMode = "none"
	SecurityModeSpiffe models.SecurityMode = "spiffe"
	SecurityModeMTLS   models.SecurityMode = "mtls"
)

// NoSecurityProvider implements SecurityProvider with no security (development only).
type NoSecurityProvider struct {
	logger logger.Logger
}

func (*NoSecurityProvider) GetClientCredentials(context.Context) (grpc.DialOption, error) {
	return grpc.WithTransportCredentials(insecure.NewCredentials()), nil
}

func (*NoSecurityProvider) GetServerCredentials(context.Context) (grpc.ServerOption, error) {
	return grpc.Creds(insecure.NewCredentials()), nil
}

func (*NoSecurityProvider) Close() error {
	return nil
}

// MTLSProvider implements SecurityProvider with mutual TLS. The bridge uses a
// single certificate pair for both the serving side (health endpoint) and any
// outbound gRPC dials, so both credential sets are built from the same material.
type MTLSProvider struct {
	config      *models.SecurityConfig
	clientCreds credentials.TransportCredentials
	serverCreds credentials.TransportCredentials
	closeOnce   sync.Once
	logger      logger.Logger
}

// NewMTLSProvider creates a new MTLSProvider with the given configuration.
func NewMTLSProvider(config *models.SecurityConfig, log logger.Logger) (*MTLSProvider, error) {
	if config == nil {
		return nil, errSecurityConfigRequired
	}

	if config.TLS.CertFile == "" || config.TLS.KeyFile == "" || config.TLS.CAFile == "" {
		log.Error().Msg("mTLS mode requires tls.cert_file, tls.key_file, and tls.ca_file to be set in the security config")

		return nil, fmt.Errorf("%w: missing required TLS file paths in config", errSecurityConfigRequired)
	}

	if err := NewCertificateManager(config).ValidateCertificates(); err != nil {
		return nil, err
	}

	provider := &MTLSProvider{config: config, logger: log}

	if err := provider.loadCredentials(); err != nil {
		return nil, err
	}

	log.Info().
		Str("role", string(config.Role)).
		Str("cert_dir", config.CertDir).
		Msg("Initialized mTLS provider")

	return provider, nil
}

// loadCredentials builds client and server transport credentials from the
// configured certificate pair and CA material.
func (p *MTLSProvider) loadCredentials() error {
	certPath := resolveCertPath(p.config.TLS.CertFile, p.config.CertDir)
	keyPath := resolveCertPath(p.config.TLS.KeyFile, p.config.CertDir)
	caPath := resolveCertPath(p.config.TLS.CAFile, p.config.CertDir)

	p.logger.Info().
		Str("cert_path", certPath).
		Str("key_path", keyPath).
		Str("ca_path", caPath).
		Msg("Loading TLS key pair")

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadKeyPair, err)
	}

	caPool, err := loadCAPool(caPath)
	if err != nil {
		return err
	}

	p.clientCreds = credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		ServerName:   p.config.ServerName,
		MinVersion:   tls.VersionTLS13,
	})

	clientCAPool, err := p.loadClientCAPool(caPool)
	if err != nil {
		return err
	}

	p.serverCreds = credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    clientCAPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	})

	return nil
}

// loadClientCAPool returns the pool used to verify inbound client certificates.
// Falls back to the root CA pool when client_ca_file is not set.
func (p *MTLSProvider) loadClientCAPool(fallback *x509.CertPool) (*x509.CertPool, error) {
	if p.config.TLS.ClientCAFile == "" || p.config.TLS.ClientCAFile == p.config.TLS.CAFile {
		return fallback, nil
	}

	clientCAPath := resolveCertPath(p.config.TLS.ClientCAFile, p.config.CertDir)

	p.logger.Info().Str("client_ca_path", clientCAPath).Msg("Loading client CA certificate")

	pem, err := os.ReadFile(clientCAPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToReadClientCACert, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: %s", errFailedToAppendClientCACert, clientCAPath)
	}

	return pool, nil
}

func (p *MTLSProvider) GetClientCredentials(_ context.Context) (grpc.DialOption, error) {
	return grpc.WithTransportCredentials(p.clientCreds), nil
}

func (p *MTLSProvider) GetServerCredentials(_ context.Context) (grpc.ServerOption, error) {
	return grpc.Creds(p.serverCreds), nil
}

func (p *MTLSProvider) Close() error {
	p.closeOnce.Do(func() {
		// No resources to cleanup in current implementation
	})

	return nil
}

// resolveCertPath joins a relative certificate path with the configured cert directory.
func resolveCertPath(path, certDir string) string {
	if path == "" || filepath.IsAbs(path) || certDir == "" {
		return path
	}

	return filepath.Join(certDir, path)
}

// loadCAPool reads and parses a PEM CA bundle into a certificate pool.
func loadCAPool(caPath string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToReadCACert, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: %s", errFailedToAppendCACert, caPath)
	}

	return pool, nil
}

// SpiffeProvider implements SecurityProvider using the SPIFFE workload API.
type SpiffeProvider struct {
	config         *models.SecurityConfig
	client         *workloadapi.Client
	source         *workloadapi.X509Source
	trustDomain    spiffeid.TrustDomain
	serverID       spiffeid.ID
	hasTrustDomain bool
	hasServerID    bool
	closeOnce      sync.Once
	logger         logger.Logger
}

func NewSpiffeProvider(ctx context.Context, config *models.SecurityConfig, log logger.Logger) (*SpiffeProvider, error) {
	if config.WorkloadSocket == "" {
		config.WorkloadSocket = "unix:/run/spire/sockets/agent.sock"
	}

	client, err := workloadapi.New(
		ctx,
		workloadapi.WithAddr(config.WorkloadSocket),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedWorkloadAPIClient, err)
	}

	source, err := workloadapi.NewX509Source(
		ctx,
		workloadapi.WithClient(client),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", errFailedToCreateX509Source, err)
	}

	p := &SpiffeProvider{
		config: config,
		client: client,
		source: source,
		logger: log,
	}

	if err := p.parseTrustDomain(config.TrustDomain); err != nil {
		_ = source.Close()
		_ = client.Close()

		return nil, err
	}

	if err := p.parseServerID(config.ServerSPIFFEID); err != nil {
		_ = source.Close()
		_ = client.Close()

		return nil, err
	}

	return p, nil
}

// parseTrustDomain accepts either a bare trust domain ("example.org") or a
// full SPIFFE ID whose trust domain is extracted.
func (p *SpiffeProvider) parseTrustDomain(raw string) error {
	td := strings.TrimSpace(raw)
	if td == "" {
		return nil
	}

	if strings.Contains(td, "://") {
		id, err := spiffeid.FromString(td)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidTrustDomain, err)
		}

		p.trustDomain = id.TrustDomain()
		p.hasTrustDomain = true

		return nil
	}

	parsed, err := spiffeid.TrustDomainFromString(td)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidTrustDomain, err)
	}

	p.trustDomain = parsed
	p.hasTrustDomain = true

	return nil
}

// parseServerID parses the expected server SPIFFE ID, prefixing the trust
// domain when the value is a bare path.
func (p *SpiffeProvider) parseServerID(raw string) error {
	idStr := strings.TrimSpace(raw)
	if idStr == "" {
		return nil
	}

	if !strings.Contains(idStr, "://") {
		if !p.hasTrustDomain {
			return fmt.Errorf("%w: %q has no scheme and no trust_domain is configured", errInvalidServerSPIFFEID, idStr)
		}

		idStr = fmt.Sprintf("spiffe://%s/%s", p.trustDomain.String(), strings.TrimPrefix(idStr, "/"))

		p.logger.Debug().
			Str("server_spiffe_id", idStr).
			Msg("Normalized SPIFFE server identity to include scheme and trust domain")
	}

	parsed, err := spiffeid.FromString(idStr)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidServerSPIFFEID, err)
	}

	p.serverID = parsed
	p.hasServerID = true

	return nil
}

func (p *SpiffeProvider) GetClientCredentials(_ context.Context) (grpc.DialOption, error) {
	authorizer := tlsconfig.AuthorizeAny()

	if p.hasServerID {
		authorizer = tlsconfig.AuthorizeID(p.serverID)
	} else if p.hasTrustDomain {
		authorizer = tlsconfig.AuthorizeMemberOf(p.trustDomain)
		p.logger.Warn().Msg("SPIFFE client credentials using trust domain membership authorizer; set server_spiffe_id for stricter verification")
	} else {
		p.logger.Warn().Msg("SPIFFE client credentials have no server_spiffe_id or trust_domain; allowing any SPIFFE endpoint")
	}

	tlsConfig := tlsconfig.MTLSClientConfig(p.source, p.source, authorizer)

	return grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)), nil
}

func (p *SpiffeProvider) GetServerCredentials(_ context.Context) (grpc.ServerOption, error) {
	authorizer := tlsconfig.AuthorizeAny()

	if p.hasTrustDomain {
		authorizer = tlsconfig.AuthorizeMemberOf(p.trustDomain)
	}

	tlsConfig := tlsconfig.MTLSServerConfig(p.source, p.source, authorizer)

	return grpc.Creds(credentials.NewTLS(tlsConfig)), nil
}

func (p *SpiffeProvider) Close() error {
	var err error

	p.closeOnce.Do(func() {
		if p.source != nil {
			if e := p.source.Close(); e != nil {
				p.logger.Error().Err(e).Msg("Failed to close X.509 source")

				err = e
			}
		}

		if p.client != nil {
			if e := p.client.Close(); e != nil {
				p.logger.Error().Err(e).Msg("Failed to close workload client")

				err = e
			}
		}
	})

	return err
}

// NewSecurityProvider creates the appropriate security provider based on mode.
func NewSecurityProvider(ctx context.Context, config *models.SecurityConfig, log logger.Logger) (SecurityProvider, error) {
	if config == nil || config.Mode == "" {
		log.Warn().Msg("SECURITY WARNING: No security config provided, using no security")

		return &NoSecurityProvider{logger: log}, nil
	}

	mode := models.SecurityMode(strings.ToLower(string(config.Mode)))

	switch mode {
	case SecurityModeNone:
		log.Info().Msg("Using no security (explicitly configured)")

		return &NoSecurityProvider{logger: log}, nil
	case SecurityModeMTLS:
		log.Info().Str("cert_dir", config.CertDir).Msg("Initializing mTLS security provider")

		provider, err := NewMTLSProvider(config, log)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errFailedToCreateMTLSProvider, err)
		}

		return provider, nil
	case SecurityModeSpiffe:
		log.Info().Str("workload_socket", config.WorkloadSocket).Msg("Initializing SPIFFE security provider")

		return NewSpiffeProvider(ctx, config, log)
	default:
		log.Error().Str("mode", string(config.Mode)).Msg("Unknown security mode")

		return nil, fmt.Errorf("%w: %s", errUnknownSecurityMode, config.Mode)
	}
}
