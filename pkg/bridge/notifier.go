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

package bridge

import (
	"context"

	"github.com/carverauto/maestream/pkg/logger"
	"github.com/carverauto/maestream/pkg/models"
)

// logNotifier stands in for the NATS publisher when event publishing is
// disabled. Alarm changes land in the service log and go nowhere else.
type logNotifier struct {
	logger logger.Logger
}

func newLogNotifier(log logger.Logger) *logNotifier {
	return &logNotifier{logger: log}
}

func (n *logNotifier) Notify(_ context.Context, change models.AlarmChange) error {
	n.logger.Info().
		Str("kind", string(change.Kind)).
		Str("key", change.Record.Key().String()).
		Str("status", string(change.Record.Status)).
		Str("source", change.Record.Source).
		Msg("Alarm change")

	return nil
}
