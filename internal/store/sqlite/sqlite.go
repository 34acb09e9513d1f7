// Package sqlite implements the durable object store on an embedded SQLite
// database for single-node deployments. SQLite has no cross-process change
// feed, so notifications fan out to in-process subscribers only.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"openboard/internal/board"
	"openboard/internal/store"
)

// Store is a SQLite-backed object store.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	subs    map[int]subscription
	nextSub int
}

type subscription struct {
	boardID string
	fn      store.ChangeHandler
}

// Open prepares a SQLite database at the given path and ensures the schema
// exists.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite: database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, subs: make(map[int]subscription)}, nil
}

func initSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS board_objects (
			id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL,
			z_index INTEGER NOT NULL DEFAULT 0,
			data TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_board_objects_board ON board_objects(board_id, z_index);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close releases database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListObjects implements store.Store.
func (s *Store) ListObjects(ctx context.Context, boardID string) ([]board.Object, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM board_objects WHERE board_id = ? ORDER BY z_index`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var objects []board.Object
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		var obj board.Object
		if err := json.Unmarshal([]byte(data), &obj); err != nil {
			return nil, fmt.Errorf("decode object: %w", err)
		}
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}

// UpsertObject implements store.Store.
func (s *Store) UpsertObject(ctx context.Context, boardID string, obj board.Object) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode object: %w", err)
	}

	var existing int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM board_objects WHERE id = ?`, obj.ID).Scan(&existing)
	if err != nil {
		return fmt.Errorf("check object: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO board_objects (id, board_id, z_index, data, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE
		 SET board_id = excluded.board_id,
		     z_index = excluded.z_index,
		     data = excluded.data,
		     updated_at = CURRENT_TIMESTAMP`,
		obj.ID, boardID, obj.ZIndex, string(data))
	if err != nil {
		return fmt.Errorf("upsert object: %w", err)
	}

	eventType := store.EventInsert
	if existing > 0 {
		eventType = store.EventUpdate
	}
	s.emit(store.ChangeEvent{Type: eventType, BoardID: boardID, Object: obj.Clone()})
	return nil
}

// DeleteObject implements store.Store.
func (s *Store) DeleteObject(ctx context.Context, id string) error {
	var boardID string
	err := s.db.QueryRowContext(ctx,
		`SELECT board_id FROM board_objects WHERE id = ?`, id).Scan(&boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup object: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM board_objects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	s.emit(store.ChangeEvent{Type: store.EventDelete, BoardID: boardID, Object: board.Object{ID: id}})
	return nil
}

// Subscribe implements store.Store.
func (s *Store) Subscribe(ctx context.Context, boardID string, fn store.ChangeHandler) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = subscription{boardID: boardID, fn: fn}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}, nil
}

func (s *Store) emit(ev store.ChangeEvent) {
	s.mu.Lock()
	handlers := make([]store.ChangeHandler, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.boardID == ev.BoardID {
			handlers = append(handlers, sub.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
