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

//go:generate mockgen -destination=mock_ingest.go -package=ingest github.com/carverauto/maestream/pkg/ingest Notifier,AlarmStore

package ingest

import (
	"context"

	"github.com/carverauto/maestream/pkg/models"
)

// Notifier is the single hand-off point to the rest of the platform. The
// ingestion service calls it once per created record and once per forwarded
// status change, never for a plain re-announcement.
type Notifier interface {
	Notify(ctx context.Context, change models.AlarmChange) error
}

// AlarmStore mirrors the element manager's active alarms locally so repeated
// announcements of one fault dedupe to one record. Implementations return
// defensive copies from Get and List; mutations become visible only through
// Put. Records are never deleted here, retention belongs downstream.
type AlarmStore interface {
	Get(key models.AlarmKey) (*models.AlarmRecord, bool)
	Put(record *models.AlarmRecord)
	List() []*models.AlarmRecord
	Len() int
}
