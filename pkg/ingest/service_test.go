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

package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/maestream/pkg/logger"
	"github.com/carverauto/maestream/pkg/mae"
	"github.com/carverauto/maestream/pkg/models"
)

var errDownstream = errors.New("downstream unavailable")

type captureNotifier struct {
	mu      sync.Mutex
	changes []models.AlarmChange
	ch      chan models.AlarmChange
	err     error
	delay   time.Duration
}

func (n *captureNotifier) Notify(_ context.Context, change models.AlarmChange) error {
	if n.delay > 0 {
		time.Sleep(n.delay)
	}

	n.mu.Lock()
	n.changes = append(n.changes, change)
	n.mu.Unlock()

	if n.ch != nil {
		n.ch <- change
	}

	return n.err
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.changes)
}

func alarmEvent(kv ...string) mae.Event {
	fields := mae.NewAlarmFields()

	for i := 0; i+1 < len(kv); i += 2 {
		fields.Set(kv[i], kv[i+1])
	}

	return mae.Event{Kind: mae.EventAlarmReceived, Fields: fields}
}

func nextChange(t *testing.T, ch chan models.AlarmChange) models.AlarmChange {
	t.Helper()

	select {
	case change := <-ch:
		return change
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
		return models.AlarmChange{}
	}
}

func startService(t *testing.T, notifier Notifier, store AlarmStore) (*Service, chan mae.Event, context.CancelFunc, chan struct{}) {
	t.Helper()

	svc, err := NewService("lab-ems", store, notifier, logger.NewTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan mae.Event, 16)
	done := make(chan struct{})

	go func() {
		svc.Run(ctx, events)
		close(done)
	}()

	return svc, events, cancel, done
}

func TestNewServiceRequiresNotifier(t *testing.T) {
	_, err := NewService("lab", NewMemoryStore(), nil, logger.NewTestLogger())
	require.ErrorIs(t, err, ErrNotifierRequired)
}

func TestServiceCreateThenStatusChange(t *testing.T) {
	notifier := &captureNotifier{ch: make(chan models.AlarmChange, 8)}
	store := NewMemoryStore()

	svc, events, cancel, done := startService(t, notifier, store)
	defer func() { cancel(); <-done }()

	events <- alarmEvent("Sn", "1042", "AlarmID", "7", "State", "active", "Location", "shelf 2")

	first := nextChange(t, notifier.ch)
	require.Equal(t, models.AlarmChangeCreated, first.Kind)
	assert.Equal(t, "1042", first.Record.SerialNumber)
	assert.Equal(t, "7", first.Record.AlarmID)
	assert.Equal(t, models.AlarmStatusActive, first.Record.Status)
	assert.Equal(t, "lab-ems", first.Record.Source)

	// Same fault re-announced with a different state: the record updates
	// in place and downstream sees a status change, not a second create.
	events <- alarmEvent("Sn", "1042", "AlarmID", "7", "State", "cleared")

	second := nextChange(t, notifier.ch)
	require.Equal(t, models.AlarmChangeStatusChanged, second.Kind)
	assert.Equal(t, models.AlarmStatusCleared, second.Record.Status)
	assert.Equal(t, "cleared", second.Record.State)
	assert.Equal(t, "shelf 2", second.Record.Location)

	assert.Equal(t, 1, store.Len())

	stats := svc.Stats()
	assert.Equal(t, uint64(1), stats.Created)
	assert.Equal(t, uint64(1), stats.Updated)
}

func TestServiceResightWithoutStatusChangeStaysQuiet(t *testing.T) {
	notifier := &captureNotifier{ch: make(chan models.AlarmChange, 8)}
	store := NewMemoryStore()

	svc, events, cancel, done := startService(t, notifier, store)
	defer func() { cancel(); <-done }()

	events <- alarmEvent("Sn", "1", "AlarmID", "2", "State", "active")
	require.Equal(t, models.AlarmChangeCreated, nextChange(t, notifier.ch).Kind)

	// Re-announcement with an equivalent state maps to the same status.
	events <- alarmEvent("Sn", "1", "AlarmID", "2", "State", "raised")

	// A different alarm afterwards proves the resight produced nothing:
	// the next notification is this create, not a status change.
	events <- alarmEvent("Sn", "1", "AlarmID", "3", "State", "active")

	next := nextChange(t, notifier.ch)
	require.Equal(t, models.AlarmChangeCreated, next.Kind)
	assert.Equal(t, "3", next.Record.AlarmID)

	assert.Equal(t, 2, notifier.count())

	stats := svc.Stats()
	assert.Equal(t, uint64(2), stats.Created)
	assert.Equal(t, uint64(0), stats.Updated)
	assert.Equal(t, uint64(1), stats.Resighted)

	// The resight still refreshed the stored state text.
	rec, ok := store.Get(models.AlarmKey{SerialNumber: "1", AlarmID: "2"})
	require.True(t, ok)
	assert.Equal(t, "raised", rec.State)
}

func TestServiceDropsAlarmWithoutNaturalKey(t *testing.T) {
	notifier := &captureNotifier{ch: make(chan models.AlarmChange, 8)}
	store := NewMemoryStore()

	svc, events, cancel, done := startService(t, notifier, store)
	defer func() { cancel(); <-done }()

	broken := mae.NewAlarmFields()
	broken.Set("Severity", "critical")
	events <- mae.Event{Kind: mae.EventAlarmReceived, Fields: broken}

	events <- alarmEvent("Sn", "5", "AlarmID", "6", "State", "active")
	require.Equal(t, models.AlarmChangeCreated, nextChange(t, notifier.ch).Kind)

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, uint64(1), svc.Stats().Dropped)
}

func TestServiceSyncWindowCounting(t *testing.T) {
	notifier := &captureNotifier{ch: make(chan models.AlarmChange, 8)}

	svc, events, cancel, done := startService(t, notifier, NewMemoryStore())
	defer func() { cancel(); <-done }()

	events <- mae.Event{Kind: mae.EventSyncStart}
	events <- alarmEvent("Sn", "1", "AlarmID", "1", "State", "active")
	events <- alarmEvent("Sn", "1", "AlarmID", "2", "State", "active")
	events <- alarmEvent("Sn", "2", "AlarmID", "1", "State", "active")
	events <- mae.Event{Kind: mae.EventSyncEnd}

	for i := 0; i < 3; i++ {
		require.Equal(t, models.AlarmChangeCreated, nextChange(t, notifier.ch).Kind)
	}

	require.Eventually(t, func() bool {
		stats := svc.Stats()
		return !stats.SyncActive && stats.SyncReplayed == 3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServiceCountsNotifyFailures(t *testing.T) {
	notifier := &captureNotifier{ch: make(chan models.AlarmChange, 8), err: errDownstream}

	svc, events, cancel, done := startService(t, notifier, NewMemoryStore())
	defer func() { cancel(); <-done }()

	events <- alarmEvent("Sn", "1", "AlarmID", "1", "State", "active")
	nextChange(t, notifier.ch)

	require.Eventually(t, func() bool {
		return svc.Stats().NotifyFailures == 1
	}, 5*time.Second, 10*time.Millisecond)

	// The record still landed in the store; only the hand-off failed.
	assert.Equal(t, uint64(1), svc.Stats().Created)
}

func TestServiceTracksHandshakes(t *testing.T) {
	notifier := &captureNotifier{}

	svc, events, cancel, done := startService(t, notifier, NewMemoryStore())
	defer func() { cancel(); <-done }()

	events <- mae.Event{Kind: mae.EventHandshake, Timestamp: "2024-01-01T00:00:00"}

	require.Eventually(t, func() bool {
		return !svc.Stats().LastHandshake.IsZero()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServiceDrainsQueueOnShutdown(t *testing.T) {
	notifier := &captureNotifier{delay: 5 * time.Millisecond}
	store := NewMemoryStore()

	_, events, cancel, done := startService(t, notifier, store)

	events <- alarmEvent("Sn", "1", "AlarmID", "1", "State", "active")
	events <- alarmEvent("Sn", "1", "AlarmID", "2", "State", "active")
	events <- alarmEvent("Sn", "1", "AlarmID", "3", "State", "active")

	require.Eventually(t, func() bool {
		return store.Len() == 3
	}, 5*time.Second, 5*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}

	assert.Equal(t, 3, notifier.count())
}
