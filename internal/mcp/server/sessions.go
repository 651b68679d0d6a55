// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/cohortbridge/cohortbridge/internal/drafts"
	"github.com/cohortbridge/cohortbridge/pkg/cohort"
	"github.com/cohortbridge/cohortbridge/pkg/errors"
)

// sessionStore holds in-progress cohort definitions keyed by session id.
// Mutations replace the stored definition wholesale (last write wins), and
// are written through to the draft store when one is configured so sessions
// survive a restart.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*cohort.CohortDefinition
	drafts   *drafts.Store
}

func newSessionStore(store *drafts.Store) *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*cohort.CohortDefinition),
		drafts:   store,
	}
}

// Create registers a definition under a fresh session id.
func (st *sessionStore) Create(ctx context.Context, def *cohort.CohortDefinition) (string, error) {
	id := uuid.NewString()
	return id, st.put(ctx, id, def)
}

// Get returns the definition for a session. Falls back to the draft store
// for sessions created before a restart.
func (st *sessionStore) Get(ctx context.Context, sessionID string) (*cohort.CohortDefinition, error) {
	st.mu.RLock()
	def, ok := st.sessions[sessionID]
	st.mu.RUnlock()
	if ok {
		return def, nil
	}

	if st.drafts != nil {
		draft, err := st.drafts.Load(ctx, sessionID)
		if err == nil {
			st.mu.Lock()
			st.sessions[sessionID] = draft.Definition
			st.mu.Unlock()
			return draft.Definition, nil
		}
		if !errors.IsNotFound(err) {
			return nil, err
		}
	}

	return nil, &errors.NotFoundError{Resource: "session", ID: sessionID}
}

// Put stores the definition for an existing session.
func (st *sessionStore) Put(ctx context.Context, sessionID string, def *cohort.CohortDefinition) error {
	return st.put(ctx, sessionID, def)
}

func (st *sessionStore) put(ctx context.Context, sessionID string, def *cohort.CohortDefinition) error {
	st.mu.Lock()
	st.sessions[sessionID] = def
	st.mu.Unlock()

	if st.drafts != nil {
		if err := st.drafts.Save(ctx, sessionID, def); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a session and its draft.
func (st *sessionStore) Delete(ctx context.Context, sessionID string) error {
	st.mu.Lock()
	delete(st.sessions, sessionID)
	st.mu.Unlock()

	if st.drafts != nil {
		return st.drafts.Delete(ctx, sessionID)
	}
	return nil
}

// Len reports the number of in-memory sessions.
func (st *sessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
