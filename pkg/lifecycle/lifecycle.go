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

// Package lifecycle manages service startup, the shared gRPC health endpoint,
// telemetry providers, and coordinated shutdown on SIGINT/SIGTERM.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	grpcstats "google.golang.org/grpc/stats"

	grpcpkg "github.com/carverauto/maestream/pkg/grpc"
	"github.com/carverauto/maestream/pkg/logger"
	"github.com/carverauto/maestream/pkg/models"
)

const defaultShutdownTimeout = 10 * time.Second

// Service is implemented by long-running components managed by RunServer.
// Start must not block; it launches the service's goroutines and returns.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// GRPCServiceRegistrar registers a gRPC service implementation on the shared server.
type GRPCServiceRegistrar func(*grpc.Server) error

// ServerOptions configures RunServer.
type ServerOptions struct {
	ListenAddr           string
	ServiceName          string
	Service              Service
	RegisterGRPCServices []GRPCServiceRegistrar
	EnableHealthCheck    bool
	Security             *models.SecurityConfig
	// LoggerConfig drives the lifecycle-scoped logger and, when its OTel
	// section is enabled, the trace and metric exporters.
	LoggerConfig *logger.Config
}

// RunServer runs the service and its gRPC endpoint until the context is
// canceled or a SIGINT/SIGTERM arrives, then shuts both down.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := CreateComponentLogger(ctx, "lifecycle", opts.LoggerConfig)
	if err != nil {
		return fmt.Errorf("failed to create lifecycle logger: %w", err)
	}

	ctx, telemetryShutdown, err := setupTelemetry(ctx, opts, log)
	if err != nil {
		return err
	}
	defer telemetryShutdown()

	provider, err := grpcpkg.NewSecurityProvider(ctx, opts.Security, log)
	if err != nil {
		return fmt.Errorf("failed to create security provider: %w", err)
	}

	defer func() {
		if closeErr := provider.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close security provider")
		}
	}()

	creds, err := provider.GetServerCredentials(ctx)
	if err != nil {
		return fmt.Errorf("failed to get server credentials: %w", err)
	}

	srv := grpcpkg.NewServer(opts.ListenAddr, log,
		grpcpkg.WithServerOptions(creds),
		// Health probes arrive continuously; keep them out of traces.
		grpcpkg.WithTelemetryFilter(func(info *grpcstats.RPCTagInfo) bool {
			return !strings.HasPrefix(info.FullMethodName, "/grpc.health.v1.Health/")
		}),
	)

	for _, register := range opts.RegisterGRPCServices {
		if register == nil {
			continue
		}

		if err := register(srv.GetGRPCServer()); err != nil {
			return fmt.Errorf("failed to register gRPC service: %w", err)
		}
	}

	if opts.EnableHealthCheck {
		if err := srv.RegisterHealthServer(); err != nil {
			log.Warn().Err(err).Msg("Health server registration skipped")
		}

		srv.GetHealthCheck().SetServingStatus(opts.ServiceName, healthpb.HealthCheckResponse_SERVING)
	}

	if err := opts.Service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s: %w", opts.ServiceName, err)
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Start()
	}()

	log.Info().
		Str("service", opts.ServiceName).
		Str("listen_addr", opts.ListenAddr).
		Msg("Service started")

	var runErr error

	select {
	case <-ctx.Done():
		log.Info().Str("service", opts.ServiceName).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("gRPC server failed: %w", err)

			log.Error().Err(err).Msg("gRPC server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := opts.Service.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Str("service", opts.ServiceName).Msg("Service stop reported error")

		if runErr == nil {
			runErr = err
		}
	}

	srv.Stop(shutdownCtx)

	log.Info().Str("service", opts.ServiceName).Msg("Service stopped")

	return runErr
}

// setupTelemetry initializes trace and metric providers when the OTel section
// of the logger config is enabled. The returned context carries the root span.
func setupTelemetry(ctx context.Context, opts *ServerOptions, log logger.Logger) (context.Context, func(), error) {
	noop := func() {}

	cfg := opts.LoggerConfig
	if cfg == nil || !cfg.OTel.Enabled || cfg.OTel.Endpoint == "" {
		return ctx, noop, nil
	}

	otelCfg := cfg.OTel

	tp, tracedCtx, rootSpan, err := logger.InitializeTracing(ctx, logger.TracingConfig{
		ServiceName: opts.ServiceName,
		Debug:       cfg.Debug,
		Logger:      log,
		OTel:        &otelCfg,
	})
	if err != nil {
		return ctx, noop, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	mp, err := logger.InitializeMetrics(ctx, logger.MetricsConfig{
		ServiceName: opts.ServiceName,
		OTel:        &otelCfg,
	})
	if err != nil && !errors.Is(err, logger.ErrOTelMetricsDisabled) {
		rootSpan.End()

		_ = tp.Shutdown(context.Background())

		return ctx, noop, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		rootSpan.End()

		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("Failed to shut down tracer provider")
		}

		if mp != nil {
			if shutdownErr := mp.Shutdown(shutdownCtx); shutdownErr != nil {
				log.Error().Err(shutdownErr).Msg("Failed to shut down meter provider")
			}
		}
	}

	return tracedCtx, shutdown, nil
}
