// Package postgres implements the durable object store on PostgreSQL with a
// LISTEN/NOTIFY change feed.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"openboard/internal/board"
	"openboard/internal/store"
)

const notifyChannel = "board_objects_changes"

// notification is the compact LISTEN payload. The row itself is refetched on
// receipt: NOTIFY payloads have a hard size limit and drawing strokes can
// exceed it.
type notification struct {
	Type    store.EventType `json:"type"`
	BoardID string          `json:"boardId"`
	ID      string          `json:"id"`
}

// Store is a PostgreSQL-backed object store.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu      sync.Mutex
	subs    map[int]subscription
	nextSub int

	listening bool
	stop      context.CancelFunc
}

type subscription struct {
	boardID string
	fn      store.ChangeHandler
}

// Open connects a pool and ensures the schema exists.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres: dsn is empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{
		pool:   pool,
		logger: logger,
		subs:   make(map[int]subscription),
	}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS board_objects (
			id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL,
			z_index BIGINT NOT NULL DEFAULT 0,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_board_objects_board ON board_objects(board_id, z_index);`,
	}
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close releases the pool and stops the listener.
func (s *Store) Close() {
	s.mu.Lock()
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	s.mu.Unlock()
	s.pool.Close()
}

// ListObjects implements store.Store.
func (s *Store) ListObjects(ctx context.Context, boardID string) ([]board.Object, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM board_objects WHERE board_id = $1 ORDER BY z_index`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var objects []board.Object
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		var obj board.Object
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("decode object: %w", err)
		}
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}

// UpsertObject implements store.Store. The change notification is issued in
// the same transaction as the write, so every committed write produces
// exactly one NOTIFY.
func (s *Store) UpsertObject(ctx context.Context, boardID string, obj board.Object) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode object: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	var inserted bool
	err = tx.QueryRow(ctx,
		`INSERT INTO board_objects (id, board_id, z_index, data, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (id) DO UPDATE
		 SET board_id = EXCLUDED.board_id,
		     z_index = EXCLUDED.z_index,
		     data = EXCLUDED.data,
		     updated_at = now()
		 RETURNING (xmax = 0)`,
		obj.ID, boardID, obj.ZIndex, data).Scan(&inserted)
	if err != nil {
		return fmt.Errorf("upsert object: %w", err)
	}

	eventType := store.EventUpdate
	if inserted {
		eventType = store.EventInsert
	}
	if err := s.notify(ctx, tx, notification{Type: eventType, BoardID: boardID, ID: obj.ID}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteObject implements store.Store.
func (s *Store) DeleteObject(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	var boardID string
	err = tx.QueryRow(ctx,
		`DELETE FROM board_objects WHERE id = $1 RETURNING board_id`, id).Scan(&boardID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}

	if err := s.notify(ctx, tx, notification{Type: store.EventDelete, BoardID: boardID, ID: id}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) notify(ctx context.Context, tx pgx.Tx, n notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// Subscribe implements store.Store. The first subscriber starts a dedicated
// listener connection; later subscribers share it.
func (s *Store) Subscribe(ctx context.Context, boardID string, fn store.ChangeHandler) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.listening {
		listenCtx, cancel := context.WithCancel(context.Background())
		if err := s.startListener(listenCtx); err != nil {
			cancel()
			return nil, err
		}
		s.stop = cancel
		s.listening = true
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = subscription{boardID: boardID, fn: fn}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}, nil
}

func (s *Store) startListener(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener conn: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		defer conn.Release()
		for {
			msg, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil && s.logger != nil {
					s.logger.Error("notification wait failed", slog.String("error", err.Error()))
				}
				return
			}
			s.dispatch(ctx, msg.Payload)
		}
	}()
	return nil
}

func (s *Store) dispatch(ctx context.Context, payload string) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		if s.logger != nil {
			s.logger.Error("decode notification", slog.String("error", err.Error()))
		}
		return
	}

	ev := store.ChangeEvent{Type: n.Type, BoardID: n.BoardID, Object: board.Object{ID: n.ID}}
	if n.Type != store.EventDelete {
		obj, err := s.fetch(ctx, n.ID)
		if err != nil {
			// Row already superseded or gone; the next notification or
			// reload converges the reader.
			if s.logger != nil {
				s.logger.Warn("fetch notified row", slog.String("id", n.ID), slog.String("error", err.Error()))
			}
			return
		}
		ev.Object = obj
	}

	s.mu.Lock()
	handlers := make([]store.ChangeHandler, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.boardID == n.BoardID {
			handlers = append(handlers, sub.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

func (s *Store) fetch(ctx context.Context, id string) (board.Object, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM board_objects WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return board.Object{}, store.ErrNotFound
	}
	if err != nil {
		return board.Object{}, fmt.Errorf("fetch object: %w", err)
	}
	var obj board.Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return board.Object{}, fmt.Errorf("decode object: %w", err)
	}
	return obj, nil
}
