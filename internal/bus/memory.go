package bus

import (
	"context"
	"sync"
)

// Memory is an in-process Bus for tests and single-binary runs. Delivery is
// synchronous and in publish order.
type Memory struct {
	mu      sync.Mutex
	subs    map[string]map[int]Handler
	nextSub int
}

// NewMemory returns an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[int]Handler)}
}

// Publish implements Bus.
func (m *Memory) Publish(ctx context.Context, boardID string, msg Message) error {
	m.mu.Lock()
	handlers := make([]Handler, 0, len(m.subs[boardID]))
	for _, fn := range m.subs[boardID] {
		handlers = append(handlers, fn)
	}
	m.mu.Unlock()

	for _, fn := range handlers {
		fn(msg)
	}
	return nil
}

// Subscribe implements Bus.
func (m *Memory) Subscribe(ctx context.Context, boardID string, fn Handler) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[boardID] == nil {
		m.subs[boardID] = make(map[int]Handler)
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
