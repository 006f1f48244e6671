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

// Package bridge runs one alarm-stream client and one ingestion service per
// configured element manager and fans their alarm changes into a shared
// notifier, NATS JetStream when configured.
package bridge

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/maestream/pkg/ingest"
	"github.com/carverauto/maestream/pkg/logger"
	"github.com/carverauto/maestream/pkg/mae"
	"github.com/carverauto/maestream/pkg/models"
	"github.com/carverauto/maestream/pkg/natsutil"
)

const (
	defaultListenAddr     = ":50060"
	defaultServiceName    = "maestream"
	defaultStatusInterval = 60 * time.Second
)

// Config is the bridge daemon configuration.
type Config struct {
	ListenAddr     string                 `json:"listen_addr"`
	ServiceName    string                 `json:"service_name"`
	Endpoints      map[string]*mae.Config `json:"endpoints"`
	NATS           *models.NATSConfig     `json:"nats,omitempty"`
	Events         models.EventsConfig    `json:"events"`
	StatusInterval models.Duration        `json:"status_interval,omitempty"`
	Security       *models.SecurityConfig `json:"security,omitempty"`
	Logging        *logger.Config         `json:"logging,omitempty"`
}

// Validate implements config.Validator and fills in defaults.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}

	if len(c.Endpoints) == 0 {
		return ErrNoEndpoints
	}

	for name, endpointCfg := range c.Endpoints {
		if endpointCfg == nil {
			return fmt.Errorf("%w %q: missing configuration", ErrInvalidEndpoint, name)
		}

		if err := endpointCfg.Validate(); err != nil {
			return fmt.Errorf("%w %q: %w", ErrInvalidEndpoint, name, err)
		}
	}

	if c.NATS != nil {
		if err := c.NATS.Validate(); err != nil {
			return err
		}
	}

	if err := c.Events.Validate(); err != nil {
		return err
	}

	if c.StatusInterval <= 0 {
		c.StatusInterval = models.Duration(defaultStatusInterval)
	}

	return nil
}

// endpoint glues one client to its ingestion service and alarm mirror.
type endpoint struct {
	name    string
	client  *mae.Client
	store   *ingest.MemoryStore
	service *ingest.Service
}

// EndpointStatus is one endpoint's slice of the bridge status snapshot.
type EndpointStatus struct {
	Endpoint string       `json:"endpoint"`
	State    string       `json:"state"`
	Alarms   int          `json:"alarms"`
	Ingest   ingest.Stats `json:"ingest"`
}

// Server is the lifecycle.Service implementation for the bridge.
type Server struct {
	config *Config
	logger logger.Logger

	// notifier receives every alarm change from every endpoint. Left nil,
	// Start builds one from the NATS section of the config; tests inject
	// their own before Start.
	notifier ingest.Notifier
	natsConn *nats.Conn

	mu        sync.Mutex
	started   bool
	cancel    context.CancelFunc
	endpoints map[string]*endpoint
	wg        sync.WaitGroup
}

// NewServer builds a bridge from a validated config. Validation runs again
// here so hand-assembled configs pick up the defaults too.
func NewServer(cfg *Config, log logger.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Server{
		config: cfg,
		logger: log,
	}, nil
}

// Start connects the notifier and launches every endpoint's client and
// ingestion service. It does not block.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	if s.notifier == nil {
		notifier, nc, err := s.buildNotifier(ctx)
		if err != nil {
			return err
		}

		s.notifier = notifier
		s.natsConn = nc
	}

	// Endpoint sessions outlive the Start context; Stop tears them down.
	runCtx, cancel := context.WithCancel(context.Background())

	endpoints := make(map[string]*endpoint, len(s.config.Endpoints))

	for name, endpointCfg := range s.config.Endpoints {
		ep, err := s.startEndpoint(runCtx, name, endpointCfg)
		if err != nil {
			for _, started := range endpoints {
				started.client.Stop()
			}

			cancel()
			s.wg.Wait()

			return fmt.Errorf("start endpoint %q: %w", name, err)
		}

		endpoints[name] = ep
	}

	if interval := time.Duration(s.config.StatusInterval); interval > 0 {
		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			s.statusLoop(runCtx, interval)
		}()
	}

	s.cancel = cancel
	s.endpoints = endpoints
	s.started = true

	s.logger.Info().Int("endpoints", len(endpoints)).Msg("Bridge started")

	return nil
}

func (s *Server) startEndpoint(ctx context.Context, name string, cfg *mae.Config) (*endpoint, error) {
	client, err := mae.NewClient(cfg, s.logger)
	if err != nil {
		return nil, err
	}

	store := ingest.NewMemoryStore()

	service, err := ingest.NewService(name, store, s.notifier, s.logger)
	if err != nil {
		return nil, err
	}

	if err := client.Start(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		service.Run(ctx, client.Events())
	}()

	return &endpoint{
		name:    name,
		client:  client,
		store:   store,
		service: service,
	}, nil
}

// Stop drains the endpoints and shuts the notifier down. Clients stop first
// so ingestion can finish the events already in flight before its context
// goes away.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()

	if !s.started {
		s.mu.Unlock()
		return nil
	}

	s.started = false
	endpoints := s.endpoints
	s.endpoints = nil
	cancel := s.cancel
	s.cancel = nil
	nc := s.natsConn
	s.natsConn = nil

	if nc != nil {
		// The notifier was built from config; a restart rebuilds it.
		s.notifier = nil
	}

	s.mu.Unlock()

	for name, ep := range endpoints {
		ep.client.Stop()
		s.logger.Debug().Str("endpoint", name).Msg("Client stopped")
	}

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	var stopErr error

	select {
	case <-done:
	case <-ctx.Done():
		stopErr = fmt.Errorf("bridge shutdown incomplete: %w", ctx.Err())
	}

	if nc != nil {
		nc.Close()
	}

	s.logger.Info().Msg("Bridge stopped")

	return stopErr
}

// Status reports every endpoint's session state, alarm mirror size and
// ingestion counters, sorted by endpoint name.
func (s *Server) Status() []EndpointStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]EndpointStatus, 0, len(s.endpoints))

	for name, ep := range s.endpoints {
		statuses = append(statuses, EndpointStatus{
			Endpoint: name,
			State:    ep.client.State().String(),
			Alarms:   ep.store.Len(),
			Ingest:   ep.service.Stats(),
		})
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Endpoint < statuses[j].Endpoint
	})

	return statuses
}

func (s *Server) statusLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, st := range s.Status() {
				s.logger.Info().
					Str("endpoint", st.Endpoint).
					Str("state", st.State).
					Int("alarms", st.Alarms).
					Uint64("created", st.Ingest.Created).
					Uint64("updated", st.Ingest.Updated).
					Uint64("dropped", st.Ingest.Dropped).
					Msg("Endpoint status")
			}
		}
	}
}

// buildNotifier picks the downstream for alarm changes. NATS when the events
// section is enabled and a NATS config exists, the log otherwise.
func (s *Server) buildNotifier(ctx context.Context) (ingest.Notifier, *nats.Conn, error) {
	if s.config.NATS == nil || !s.config.Events.Enabled {
		s.logger.Info().Msg("Event publishing disabled, logging alarm changes instead")
		return newLogNotifier(s.logger), nil, nil
	}

	nc, err := natsutil.ConnectWithSecurity(s.config.NATS.URL, s.config.NATS.Security, s.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	publisher, err := natsutil.CreateAlarmPublisher(
		ctx, nc, s.config.NATS.Domain, s.config.Events.StreamName, s.config.Events.Subjects, "", s.logger)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	return publisher, nc, nil
}
