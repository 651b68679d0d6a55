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

// Package drafts persists in-progress cohort definitions to a local SQLite
// database so that a session can be resumed after a server restart.
package drafts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cohortbridge/cohortbridge/pkg/cohort"
	"github.com/cohortbridge/cohortbridge/pkg/errors"
)

// Draft is one stored cohort definition keyed by session.
type Draft struct {
	SessionID  string
	Definition *cohort.CohortDefinition
	UpdatedAt  time.Time
}

// Store is a SQLite-backed draft store.
//
// Features:
//   - WAL mode for better concurrency
//   - Definitions stored as JSON, one row per session
type Store struct {
	db *sql.DB
}

// Open creates or opens the draft database at path. The parent directory is
// created if missing, and migrations are run automatically.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, &errors.ConfigError{Key: "drafts.path", Reason: "must be set"}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create drafts directory: %w", err)
	}

	// WAL mode for better concurrency
	connStr := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open drafts database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to drafts database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS drafts (
			session_id TEXT PRIMARY KEY,
			definition_json TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_drafts_updated_at
			ON drafts(updated_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Save upserts the draft for a session.
func (s *Store) Save(ctx context.Context, sessionID string, def *cohort.CohortDefinition) error {
	if sessionID == "" {
		return &errors.InvalidInputError{Field: "session_id", Message: "session id must not be empty"}
	}
	if def == nil {
		return &errors.InvalidInputError{Field: "definition", Message: "definition must not be nil"}
	}

	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to encode definition: %w", err)
	}

	query := `INSERT INTO drafts (session_id, definition_json, updated_at)
	          VALUES (?, ?, ?)
	          ON CONFLICT(session_id) DO UPDATE SET
	              definition_json = excluded.definition_json,
	              updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query, sessionID, string(payload), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}

	return nil
}

// Load retrieves the draft for a session. Returns NotFoundError if the
// session has no stored draft.
func (s *Store) Load(ctx context.Context, sessionID string) (*Draft, error) {
	query := `SELECT definition_json, updated_at FROM drafts WHERE session_id = ?`

	var payload, updatedAt string
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&payload, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &errors.NotFoundError{Resource: "draft", ID: sessionID}
		}
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}

	var def cohort.CohortDefinition
	if err := json.Unmarshal([]byte(payload), &def); err != nil {
		return nil, fmt.Errorf("failed to decode draft: %w", err)
	}

	draft := &Draft{SessionID: sessionID, Definition: &def}
	draft.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return draft, nil
}

// List returns all drafts sorted by most recently updated.
func (s *Store) List(ctx context.Context) ([]*Draft, error) {
	query := `SELECT session_id, definition_json, updated_at
	          FROM drafts ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var result []*Draft
	for rows.Next() {
		var sessionID, payload, updatedAt string
		if err := rows.Scan(&sessionID, &payload, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}

		var def cohort.CohortDefinition
		if err := json.Unmarshal([]byte(payload), &def); err != nil {
			return nil, fmt.Errorf("failed to decode draft %s: %w", sessionID, err)
		}

		draft := &Draft{SessionID: sessionID, Definition: &def}
		draft.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		result = append(result, draft)
	}

	return result, rows.Err()
}

// Delete removes the draft for a session. Deleting a missing draft is not
// an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
