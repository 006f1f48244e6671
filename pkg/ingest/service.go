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

// Package ingest turns the raw alarm stream of one element manager endpoint
// into deduplicated alarm records and forwards creations and status changes
// to a downstream notifier.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/carverauto/maestream/pkg/logger"
	"github.com/carverauto/maestream/pkg/mae"
	"github.com/carverauto/maestream/pkg/models"
)

const (
	defaultSource   = "mae"
	notifyQueueSize = 1024
	drainTimeout    = 5 * time.Second
)

// Stats is a point-in-time snapshot of one endpoint's ingestion counters.
type Stats struct {
	Created        uint64    `json:"created"`
	Updated        uint64    `json:"updated"`
	Resighted      uint64    `json:"resighted"`
	Dropped        uint64    `json:"dropped"`
	NotifyFailures uint64    `json:"notify_failures"`
	SyncActive     bool      `json:"sync_active"`
	SyncReplayed   uint64    `json:"sync_replayed"`
	LastHandshake  time.Time `json:"last_handshake,omitempty"`
	LastAlarmAt    time.Time `json:"last_alarm_at,omitempty"`
}

// Service consumes one client's event stream, upserts alarms into the store
// by natural key, and pushes created/status-changed notifications through an
// internal queue so a slow downstream never stalls event consumption.
type Service struct {
	source   string
	store    AlarmStore
	notifier Notifier
	logger   logger.Logger

	queue chan models.AlarmChange

	mu    sync.Mutex
	stats Stats

	wg sync.WaitGroup
}

// NewService builds an ingestion service for one endpoint. source names the
// endpoint in records and logs. A nil store gets an in-memory one; the
// notifier is mandatory.
func NewService(source string, store AlarmStore, notifier Notifier, log logger.Logger) (*Service, error) {
	if notifier == nil {
		return nil, ErrNotifierRequired
	}

	if store == nil {
		store = NewMemoryStore()
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	if source == "" {
		source = defaultSource
	}

	return &Service{
		source:   source,
		store:    store,
		notifier: notifier,
		logger:   log,
		queue:    make(chan models.AlarmChange, notifyQueueSize),
	}, nil
}

// Run consumes events until ctx ends. It blocks, so callers start it in a
// goroutine, one per endpoint. Queued notifications get a bounded drain on
// the way out.
func (s *Service) Run(ctx context.Context, events <-chan mae.Event) {
	s.wg.Add(1)

	go s.notifyWorker(ctx)

	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s.handleEvent(ev)
		}
	}
}

// Stats returns a snapshot of the ingestion counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats
}

func (s *Service) handleEvent(ev mae.Event) {
	switch ev.Kind {
	case mae.EventConnected:
		s.logger.Info().Str("source", s.source).Msg("Alarm stream connected")
	case mae.EventDisconnected:
		s.logger.Warn().Str("source", s.source).Msg("Alarm stream disconnected")
	case mae.EventHandshake:
		s.mu.Lock()
		s.stats.LastHandshake = time.Now().UTC()
		s.mu.Unlock()

		s.logger.Trace().Str("peer_time", ev.Timestamp).Str("source", s.source).Msg("Keepalive")
	case mae.EventSyncStart:
		s.mu.Lock()
		s.stats.SyncActive = true
		s.stats.SyncReplayed = 0
		s.mu.Unlock()

		s.logger.Info().Str("source", s.source).Msg("Active alarm replay started")
	case mae.EventSyncEnd:
		s.mu.Lock()
		s.stats.SyncActive = false
		replayed := s.stats.SyncReplayed
		s.mu.Unlock()

		s.logger.Info().Uint64("alarms", replayed).Str("source", s.source).Msg("Active alarm replay finished")
	case mae.EventAlarmReceived:
		s.ingest(ev.Fields)
	case mae.EventError:
		s.logger.Warn().Err(ev.Err).Str("source", s.source).Msg("Alarm stream error")
	case mae.EventMaxAttemptsReached:
		s.logger.Error().Str("source", s.source).Msg("Alarm stream gave up reconnecting")
	}
}

// ingest upserts one alarm by natural key. First sighting creates the record
// and notifies downstream; a re-announcement updates state and location in
// place and notifies only when the mapped status moved, so one physical
// fault never raises two downstream tickets.
func (s *Service) ingest(fields *mae.AlarmFields) {
	if fields == nil {
		return
	}

	sn, _ := fields.SerialNumber()
	id, _ := fields.AlarmID()

	if sn == "" || id == "" {
		s.mu.Lock()
		s.stats.Dropped++
		s.mu.Unlock()

		s.logger.Warn().Str("source", s.source).Msg("Alarm without natural key dropped")

		return
	}

	now := time.Now().UTC()
	key := models.AlarmKey{SerialNumber: sn, AlarmID: id}

	s.mu.Lock()
	s.stats.LastAlarmAt = now
	if s.stats.SyncActive {
		s.stats.SyncReplayed++
	}
	inSync := s.stats.SyncActive
	s.mu.Unlock()

	existing, found := s.store.Get(key)
	if !found {
		record := &models.AlarmRecord{
			SerialNumber: sn,
			AlarmID:      id,
			State:        fields.Get("State"),
			Location:     fields.Get("Location"),
			Fields:       fields.Map(),
			Source:       s.source,
			ReceivedAt:   now,
			UpdatedAt:    now,
		}
		record.Status = models.AlarmStatusFromState(record.State)

		s.store.Put(record)

		s.mu.Lock()
		s.stats.Created++
		s.mu.Unlock()

		if inSync {
			s.logger.Trace().Str("key", key.String()).Msg("Alarm created during replay")
		} else {
			s.logger.Debug().
				Str("key", key.String()).
				Str("status", string(record.Status)).
				Msg("Alarm created")
		}

		s.enqueue(models.AlarmChange{Kind: models.AlarmChangeCreated, Record: record})

		return
	}

	prevStatus := existing.Status

	if v, ok := fields.Lookup("State"); ok {
		existing.State = v
	}

	if v, ok := fields.Lookup("Location"); ok {
		existing.Location = v
	}

	existing.Status = models.AlarmStatusFromState(existing.State)
	existing.UpdatedAt = now

	s.store.Put(existing)

	if existing.Status == prevStatus {
		s.mu.Lock()
		s.stats.Resighted++
		s.mu.Unlock()

		return
	}

	s.mu.Lock()
	s.stats.Updated++
	s.mu.Unlock()

	s.logger.Debug().
		Str("key", key.String()).
		Str("from", string(prevStatus)).
		Str("to", string(existing.Status)).
		Msg("Alarm status changed")

	s.enqueue(models.AlarmChange{Kind: models.AlarmChangeStatusChanged, Record: existing})
}

// enqueue hands a change to the notify worker without blocking the event
// loop. A full queue drops the change and counts it.
func (s *Service) enqueue(change models.AlarmChange) {
	select {
	case s.queue <- change:
	default:
		s.mu.Lock()
		s.stats.Dropped++
		s.mu.Unlock()

		s.logger.Warn().
			Str("key", change.Record.Key().String()).
			Str("kind", string(change.Kind)).
			Msg("Notification queue full, change dropped")
	}
}

func (s *Service) notifyWorker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			s.drainQueue()
			return
		case change := <-s.queue:
			s.deliver(ctx, change)
		}
	}
}

// drainQueue gives already-queued changes one bounded chance to go out
// during shutdown.
func (s *Service) drainQueue() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case change := <-s.queue:
			s.deliver(ctx, change)
		default:
			return
		}
	}
}

func (s *Service) deliver(ctx context.Context, change models.AlarmChange) {
	if err := s.notifier.Notify(ctx, change); err != nil {
		s.mu.Lock()
		s.stats.NotifyFailures++
		s.mu.Unlock()

		s.logger.Error().
			Err(err).
			Str("key", change.Record.Key().String()).
			Str("kind", string(change.Kind)).
			Msg("Downstream notification failed")
	}
}
