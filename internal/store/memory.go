package store

import (
	"context"
	"sync"

	"openboard/internal/board"
)

// Memory is an in-process Store used by tests and as the default for
// single-binary runs without a database. Change notifications fan out
// synchronously to every subscriber on the board, including the writer's
// own, which makes it a faithful stand-in for a store that echoes writes
// back.
type Memory struct {
	mu      sync.Mutex
	boards  map[string]map[string]board.Object
	byID    map[string]string // object id -> board id
	subs    map[string]map[int]ChangeHandler
	nextSub int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		boards: make(map[string]map[string]board.Object),
		byID:   make(map[string]string),
		subs:   make(map[string]map[int]ChangeHandler),
	}
}

// ListObjects implements Store.
func (m *Memory) ListObjects(ctx context.Context, boardID string) ([]board.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	objects := make([]board.Object, 0, len(m.boards[boardID]))
	for _, o := range m.boards[boardID] {
		objects = append(objects, o.Clone())
	}
	return objects, nil
}

// UpsertObject implements Store.
func (m *Memory) UpsertObject(ctx context.Context, boardID string, obj board.Object) error {
	m.mu.Lock()
	objects, ok := m.boards[boardID]
	if !ok {
		objects = make(map[string]board.Object)
		m.boards[boardID] = objects
	}
	_, existed := objects[obj.ID]
	objects[obj.ID] = obj.Clone()
	m.byID[obj.ID] = boardID
	handlers := m.handlers(boardID)
	m.mu.Unlock()

	eventType := EventInsert
	if existed {
		eventType = EventUpdate
	}
	emit(handlers, ChangeEvent{Type: eventType, BoardID: boardID, Object: obj.Clone()})
	return nil
}

// DeleteObject implements Store.
func (m *Memory) DeleteObject(ctx context.Context, id string) error {
	m.mu.Lock()
	boardID, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.boards[boardID], id)
	delete(m.byID, id)
	handlers := m.handlers(boardID)
	m.mu.Unlock()

	emit(handlers, ChangeEvent{Type: EventDelete, BoardID: boardID, Object: board.Object{ID: id}})
	return nil
}

// Subscribe implements Store.
func (m *Memory) Subscribe(ctx context.Context, boardID string, fn ChangeHandler) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[boardID] == nil {
		m.subs[boardID] = make(map[int]ChangeHandler)
	}
	id := m.nextSub
	m.nextSub++
	m.subs[boardID][id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[boardID], id)
	}, nil
}

// Inject delivers an arbitrary event to the board's subscribers without
// touching rows. Tests use this to simulate out-of-order or duplicated
// notifications.
func (m *Memory) Inject(ev ChangeEvent) {
	m.mu.Lock()
	handlers := m.handlers(ev.BoardID)
	m.mu.Unlock()
	emit(handlers, ev)
}

func (m *Memory) handlers(boardID string) []ChangeHandler {
	handlers := make([]ChangeHandler, 0, len(m.subs[boardID]))
	for _, fn := range m.subs[boardID] {
		handlers = append(handlers, fn)
	}
	return handlers
}

func emit(handlers []ChangeHandler, ev ChangeEvent) {
	for _, fn := range handlers {
		fn(ev)
	}
}
