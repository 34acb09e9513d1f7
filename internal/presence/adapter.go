// Package presence broadcasts and receives the non-persisted collaboration
// signals: cursors, selections, drag previews, live text edits, and
// advisory sticky-edit locks.
package presence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"openboard/internal/board"
	"openboard/internal/bus"
)

// ErrLocked is returned when another session holds the edit lock for a
// sticky.
var ErrLocked = errors.New("presence: object is locked by another session")

// DefaultSignalInterval is the minimum spacing of high-frequency signals
// (cursor, drag preview, text preview), roughly 30 per second.
const DefaultSignalInterval = 33 * time.Millisecond

// Option configures an Adapter.
type Option func(*Adapter)

// WithSignalInterval overrides the high-frequency signal spacing.
func WithSignalInterval(d time.Duration) Option {
	return func(a *Adapter) { a.interval = d }
}

// Adapter owns the ephemeral maps for one session on one board. External
// callers only ever see snapshots.
type Adapter struct {
	boardID  string
	self     board.Participant
	bus      bus.Bus
	logger   *slog.Logger
	interval time.Duration

	mu           sync.Mutex
	connected    bool
	cancel       func()
	ctx          context.Context
	participants map[string]board.Participant
	cursors      map[string]board.Cursor
	selections   map[string][]string
	editing      map[string]board.EditLock
	drags        map[string]board.DragPreview
	textPreviews map[string]string

	cursorSampler *sampler
	dragSampler   *sampler
	textSampler   *sampler
}

// NewAdapter returns an Adapter for the given session identity.
func NewAdapter(boardID string, self board.Participant, b bus.Bus, logger *slog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		boardID:      boardID,
		self:         self,
		bus:          b,
		logger:       logger,
		interval:     DefaultSignalInterval,
		participants: make(map[string]board.Participant),
		cursors:      make(map[string]board.Cursor),
		selections:   make(map[string][]string),
		editing:      make(map[string]board.EditLock),
		drags:        make(map[string]board.DragPreview),
		textPreviews: make(map[string]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.cursorSampler = newSampler(a.interval, a.publish)
	a.dragSampler = newSampler(a.interval, a.publish)
	a.textSampler = newSampler(a.interval, a.publish)
	return a
}

// Join subscribes to the board channel and announces this session.
func (a *Adapter) Join(ctx context.Context) error {
	cancel, err := a.bus.Subscribe(ctx, a.boardID, a.handle)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.cancel = cancel
	a.ctx = ctx
	a.connected = true
	a.mu.Unlock()

	a.publish(bus.Message{Kind: bus.KindJoin})
	return nil
}

// Leave announces departure, releases the subscription and clears the
// connected flag. Any lock held by this session is released first.
func (a *Adapter) Leave() {
	a.mu.Lock()
	held := make([]string, 0, 1)
	for objectID, lock := range a.editing {
		if lock.SessionID == a.self.SessionID {
			held = append(held, objectID)
		}
	}
	a.mu.Unlock()

	for _, objectID := range held {
		a.EmitStickyUnlock(objectID)
	}
	a.publish(bus.Message{Kind: bus.KindLeave})

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.connected = false
	a.mu.Unlock()
}

// Connected reports whether the channel subscription is active.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// EmitCursor broadcasts the pointer position, rate-limited.
func (a *Adapter) EmitCursor(x, y float64) {
	a.cursorSampler.offer(bus.Message{Kind: bus.KindCursor, X: x, Y: y})
}

// EmitSelection broadcasts the current selection id list.
func (a *Adapter) EmitSelection(ids []string) {
	dup := make([]string, len(ids))
	copy(dup, ids)
	a.publish(bus.Message{Kind: bus.KindSelection, IDs: dup})
}

// EmitObjectDrag broadcasts a drag preview position, rate-limited.
func (a *Adapter) EmitObjectDrag(objectID string, x, y float64) {
	a.dragSampler.offer(bus.Message{Kind: bus.KindDrag, ObjectID: objectID, X: x, Y: y})
}

// EmitObjectDragEnd broadcasts the end of a drag immediately and drops any
// parked preview so a stale flush cannot resurrect it.
func (a *Adapter) EmitObjectDragEnd(objectID string) {
	a.dragSampler.drop()
	a.publish(bus.Message{Kind: bus.KindDragEnd, ObjectID: objectID})
}

// EmitTextPreview broadcasts live text-edit content, rate-limited.
func (a *Adapter) EmitTextPreview(objectID, text string) {
	a.textSampler.offer(bus.Message{Kind: bus.KindTextPreview, ObjectID: objectID, Text: text})
}

// EmitStickyLock asserts the advisory edit lock. It refuses locally with
// ErrLocked when another session already holds it; the lock is cooperative
// and never enforced by the store.
func (a *Adapter) EmitStickyLock(objectID string) error {
	a.mu.Lock()
	if lock, ok := a.editing[objectID]; ok && lock.SessionID != a.self.SessionID {
		a.mu.Unlock()
		return ErrLocked
	}
	a.editing[objectID] = board.EditLock{SessionID: a.self.SessionID, Name: a.self.Name}
	a.mu.Unlock()

	a.publish(bus.Message{Kind: bus.KindLock, ObjectID: objectID})
	return nil
}

// EmitStickyUnlock releases this session's edit lock. Called on blur,
// escape, and teardown; releasing an unheld lock is a no-op.
func (a *Adapter) EmitStickyUnlock(objectID string) {
	a.mu.Lock()
	lock, ok := a.editing[objectID]
	if ok && lock.SessionID == a.self.SessionID {
		delete(a.editing, objectID)
		delete(a.textPreviews, objectID)
	}
	a.mu.Unlock()
	if !ok || lock.SessionID != a.self.SessionID {
		return
	}
	a.publish(bus.Message{Kind: bus.KindUnlock, ObjectID: objectID})
}

// CanEdit reports whether opening the sticky editor is allowed locally.
func (a *Adapter) CanEdit(objectID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.editing[objectID]
	return !ok || lock.SessionID == a.self.SessionID
}

// Participants returns a snapshot of the connected collaborators.
func (a *Adapter) Participants() map[string]board.Participant {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]board.Participant, len(a.participants))
	for id, p := range a.participants {
		out[id] = p
	}
	return out
}

// Cursors returns a snapshot of remote cursor positions keyed by session id.
func (a *Adapter) Cursors() map[string]board.Cursor {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]board.Cursor, len(a.cursors))
	for id, c := range a.cursors {
		out[id] = c
	}
	return out
}

// RemoteSelections returns a snapshot of remote selections keyed by session
// id, used only to render other users' highlight outlines.
func (a *Adapter) RemoteSelections() map[string][]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string][]string, len(a.selections))
	for id, ids := range a.selections {
		dup := make([]string, len(ids))
		copy(dup, ids)
		out[id] = dup
	}
	return out
}

// RemoteEditing returns a snapshot of the lock map keyed by object id.
func (a *Adapter) RemoteEditing() map[string]board.EditLock {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]board.EditLock, len(a.editing))
	for id, l := range a.editing {
		out[id] = l
	}
	return out
}

// DragPreviews returns a snapshot of remote in-progress drags keyed by
// object id.
func (a *Adapter) DragPreviews() map[string]board.DragPreview {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]board.DragPreview, len(a.drags))
	for id, d := range a.drags {
		out[id] = d
	}
	return out
}

// TextPreviews returns a snapshot of live remote text edits keyed by object
// id.
func (a *Adapter) TextPreviews() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]string, len(a.textPreviews))
	for id, t := range a.textPreviews {
		out[id] = t
	}
	return out
}

func (a *Adapter) publish(m bus.Message) {
	m.SessionID = a.self.SessionID
	m.Name = a.self.Name

	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := a.bus.Publish(ctx, a.boardID, m); err != nil && a.logger != nil {
		a.logger.Error("publish presence signal",
			slog.String("kind", string(m.Kind)), slog.String("error", err.Error()))
	}
}

// handle folds one broadcast message into the ephemeral maps. Own messages
// are skipped; the bus delivers them back but local state is already ahead.
func (a *Adapter) handle(m bus.Message) {
	if m.SessionID == a.self.SessionID {
		return
	}

	a.mu.Lock()
	_, known := a.participants[m.SessionID]

	switch m.Kind {
	case bus.KindJoin:
		a.participants[m.SessionID] = board.Participant{SessionID: m.SessionID, Name: m.Name}
	case bus.KindLeave:
		delete(a.participants, m.SessionID)
		delete(a.cursors, m.SessionID)
		delete(a.selections, m.SessionID)
		for objectID, lock := range a.editing {
			if lock.SessionID == m.SessionID {
				delete(a.editing, objectID)
				delete(a.textPreviews, objectID)
			}
		}
		for objectID, drag := range a.drags {
			if drag.SessionID == m.SessionID {
				delete(a.drags, objectID)
			}
		}
	case bus.KindCursor:
		a.cursors[m.SessionID] = board.Cursor{X: m.X, Y: m.Y, Name: m.Name}
	case bus.KindSelection:
		ids := make([]string, len(m.IDs))
		copy(ids, m.IDs)
		a.selections[m.SessionID] = ids
	case bus.KindLock:
		a.editing[m.ObjectID] = board.EditLock{SessionID: m.SessionID, Name: m.Name}
	case bus.KindUnlock:
		if lock, ok := a.editing[m.ObjectID]; ok && lock.SessionID == m.SessionID {
			delete(a.editing, m.ObjectID)
			delete(a.textPreviews, m.ObjectID)
		}
	case bus.KindDrag:
		a.drags[m.ObjectID] = board.DragPreview{SessionID: m.SessionID, X: m.X, Y: m.Y}
	case bus.KindDragEnd:
		delete(a.drags, m.ObjectID)
	case bus.KindTextPreview:
		a.textPreviews[m.ObjectID] = m.Text
	}
	a.mu.Unlock()

	// A join from a session we had not seen is answered with our own
	// announcement, so a late joiner converges on the full roster without a
	// directory service.
	if m.Kind == bus.KindJoin && !known {
		a.publish(bus.Message{Kind: bus.KindJoin})
	}
}
