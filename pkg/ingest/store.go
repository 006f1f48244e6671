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
	"sort"
	"sync"

	"github.com/carverauto/maestream/pkg/models"
)

// MemoryStore is the in-process AlarmStore. Copies go in and copies come
// out, so concurrent readers never race the ingestion writer.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[models.AlarmKey]*models.AlarmRecord
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[models.AlarmKey]*models.AlarmRecord)}
}

// Get returns a copy of the record for key, if present.
func (s *MemoryStore) Get(key models.AlarmKey) (*models.AlarmRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, false
	}

	return rec.Clone(), true
}

// Put stores a copy of record under its natural key, replacing any previous
// version.
func (s *MemoryStore) Put(record *models.AlarmRecord) {
	clone := record.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.Key()] = clone
}

// List returns copies of every record, ordered by natural key for stable
// logs and tests.
func (s *MemoryStore) List() []*models.AlarmRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.AlarmRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})

	return out
}

// Len returns the number of records held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}
