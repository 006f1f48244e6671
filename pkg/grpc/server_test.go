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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/carverauto/maestream/pkg/logger"
)

func TestRecoveryInterceptorCatchesPanic(t *testing.T) {
	interceptor := RecoveryInterceptor(logger.NewTestLogger())

	handler := func(_ context.Context, _ interface{}) (interface{}, error) {
		panic("boom")
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Explode"}

	resp, err := interceptor(context.Background(), nil, info, handler)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, errInternalError)
}

func TestLoggingInterceptorInjectsLogger(t *testing.T) {
	interceptor := LoggingInterceptor(logger.NewTestLogger())

	var sawLogger bool

	handler := func(ctx context.Context, _ interface{}) (interface{}, error) {
		sawLogger = FromContext(ctx) != nil
		return "ok", nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Echo"}

	resp, err := interceptor(context.Background(), nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.True(t, sawLogger, "handler context should carry a logger")
}

func TestRegisterHealthServerOnce(t *testing.T) {
	srv := NewServer("127.0.0.1:0", logger.NewTestLogger())

	require.NoError(t, srv.RegisterHealthServer())
	assert.ErrorIs(t, srv.RegisterHealthServer(), errHealthServerRegistered)
}

func TestServerStopWithoutStart(t *testing.T) {
	srv := NewServer("127.0.0.1:0", logger.NewTestLogger())

	// GracefulStop on a server that never served should return promptly.
	srv.Stop(context.Background())
}

func TestGetLoggerFallsBack(t *testing.T) {
	fallback := logger.NewTestLogger()

	got := GetLogger(context.Background(), fallback)
	assert.Equal(t, fallback, got)
}
