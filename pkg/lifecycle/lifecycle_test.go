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

package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	started  atomic.Bool
	stopped  atomic.Bool
	startErr error
}

func (f *fakeService) Start(_ context.Context) error {
	f.started.Store(true)
	return f.startErr
}

func (f *fakeService) Stop(_ context.Context) error {
	f.stopped.Store(true)
	return nil
}

func TestRunServerStartsAndStopsService(t *testing.T) {
	svc := &fakeService{}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err := RunServer(ctx, &ServerOptions{
		ListenAddr:        "127.0.0.1:0",
		ServiceName:       "test-service",
		Service:           svc,
		EnableHealthCheck: true,
	})
	require.NoError(t, err)

	assert.True(t, svc.started.Load(), "service should have been started")
	assert.True(t, svc.stopped.Load(), "service should have been stopped")
}

func TestRunServerPropagatesStartFailure(t *testing.T) {
	startErr := errors.New("refusing to start")
	svc := &fakeService{startErr: startErr}

	err := RunServer(context.Background(), &ServerOptions{
		ListenAddr:  "127.0.0.1:0",
		ServiceName: "test-service",
		Service:     svc,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, startErr)
	assert.False(t, svc.stopped.Load(), "stop should not run when start fails")
}

func TestCreateComponentLoggerDefaults(t *testing.T) {
	log, err := CreateComponentLogger(context.Background(), "test", nil)
	require.NoError(t, err)
	require.NotNil(t, log)

	// The returned logger must be usable without panicking.
	log.Info().Msg("component logger smoke test")
}
