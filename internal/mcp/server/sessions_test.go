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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortbridge/cohortbridge/internal/drafts"
	"github.com/cohortbridge/cohortbridge/pkg/cohort"
	"github.com/cohortbridge/cohortbridge/pkg/errors"
)

func TestSessionStore_InMemory(t *testing.T) {
	store := newSessionStore(nil)
	ctx := t.Context()

	def, err := cohort.Start("Diabetes Cohort")
	require.NoError(t, err)

	id, err := store.Create(ctx, def)
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Diabetes Cohort", got.Name)
	assert.Equal(t, 1, store.Len())

	_, err = store.Get(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, store.Delete(ctx, id))
	assert.Equal(t, 0, store.Len())
}

func TestSessionStore_WriteThroughSurvivesRestart(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "drafts.db")

	draftStore, err := drafts.Open(path)
	require.NoError(t, err)

	store := newSessionStore(draftStore)
	def, err := cohort.Start("Diabetes Cohort")
	require.NoError(t, err)
	id, err := store.Create(ctx, def)
	require.NoError(t, err)
	require.NoError(t, draftStore.Close())

	// A fresh store backed by the same database recovers the session.
	reopened, err := drafts.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	restarted := newSessionStore(reopened)
	got, err := restarted.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Diabetes Cohort", got.Name)
}

func TestSessionStore_LastWriteWins(t *testing.T) {
	store := newSessionStore(nil)
	ctx := t.Context()

	first, err := cohort.Start("First")
	require.NoError(t, err)
	id, err := store.Create(ctx, first)
	require.NoError(t, err)

	second, err := cohort.Start("Second")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, id, second))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Second", got.Name)
}
