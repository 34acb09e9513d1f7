// Package session is the per-user facade over one board: it owns the
// reconciler, the presence adapter, the connector resolver and the viewport
// culler, and exposes the operations a client surface calls.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"openboard/internal/board"
	"openboard/internal/bus"
	"openboard/internal/connector"
	"openboard/internal/cull"
	"openboard/internal/layout"
	"openboard/internal/presence"
	"openboard/internal/reconcile"
	"openboard/internal/store"
)

// Option configures a Session.
type Option func(*Session)

// WithReconcilerOptions forwards options to the session's reconciler.
func WithReconcilerOptions(opts ...reconcile.Option) Option {
	return func(s *Session) { s.recOpts = append(s.recOpts, opts...) }
}

// WithPresenceOptions forwards options to the session's presence adapter.
func WithPresenceOptions(opts ...presence.Option) Option {
	return func(s *Session) { s.presOpts = append(s.presOpts, opts...) }
}

// Session binds one user to one board.
type Session struct {
	id      string
	boardID string
	store   store.Store
	logger  *slog.Logger

	recOpts  []reconcile.Option
	presOpts []presence.Option

	rec      *reconcile.Reconciler
	presence *presence.Adapter
	engine   *layout.Engine

	mu          sync.Mutex
	resolver    *connector.Resolver
	culler      *cull.Controller
	unsubscribe func()
	started     bool
}

// New returns an unstarted Session. The session id is freshly generated and
// doubles as the presence identity.
func New(boardID, displayName string, st store.Store, b bus.Bus, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		id:      uuid.NewString(),
		boardID: boardID,
		store:   st,
		logger:  logger.With(slog.String("board", boardID)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rec = reconcile.New(boardID, st, s.logger, s.recOpts...)
	s.presence = presence.NewAdapter(boardID,
		board.Participant{SessionID: s.id, Name: displayName}, b, s.logger, s.presOpts...)
	s.engine = layout.NewEngine(s.logger)
	s.resolver = connector.NewResolver()
	s.culler = cull.NewController()
	return s
}

// ID returns the generated session id.
func (s *Session) ID() string { return s.id }

// BoardID returns the board this session is bound to.
func (s *Session) BoardID() string { return s.boardID }

// Start loads the board, wires store notifications into the reconciler and
// announces the session on the presence channel.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session %s already started", s.id)
	}
	s.mu.Unlock()

	if err := s.rec.Load(ctx); err != nil {
		return fmt.Errorf("load board %s: %w", s.boardID, err)
	}

	unsubscribe, err := s.store.Subscribe(ctx, s.boardID, s.applyRemote)
	if err != nil {
		return fmt.Errorf("subscribe board %s: %w", s.boardID, err)
	}

	if err := s.presence.Join(ctx); err != nil {
		unsubscribe()
		return fmt.Errorf("join board %s: %w", s.boardID, err)
	}

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.started = true
	s.mu.Unlock()

	s.logger.Info("session started", slog.String("session", s.id))
	return nil
}

// Close leaves the presence channel, releases the store subscription and
// waits for issued durable writes to settle.
func (s *Session) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	started := s.started
	s.started = false
	s.mu.Unlock()

	if !started {
		return
	}
	s.presence.Leave()
	if unsubscribe != nil {
		unsubscribe()
	}
	s.rec.Wait()
	s.logger.Info("session closed", slog.String("session", s.id))
}

func (s *Session) applyRemote(ev store.ChangeEvent) {
	s.rec.ApplyRemote(ev)

	s.mu.Lock()
	if ev.Type == store.EventDelete {
		s.resolver.Drop(ev.Object.ID)
	}
	s.culler.Invalidate()
	s.mu.Unlock()
}

// CreateObject assigns an id if the object has none, applies it locally and
// issues the durable write. The stored object is returned with its id set.
func (s *Session) CreateObject(ctx context.Context, obj board.Object) board.Object {
	if obj.ID == "" {
		obj.ID = uuid.NewString()
	}
	if obj.ZIndex == 0 {
		obj.ZIndex = s.nextZIndex()
	}
	s.rec.Create(ctx, obj)
	s.invalidateView()
	return obj
}

// UpdateObject replaces the object wholesale.
func (s *Session) UpdateObject(ctx context.Context, obj board.Object) {
	s.rec.Update(ctx, obj)
	s.invalidateView()
}

// DeleteObject removes the object locally and durably.
func (s *Session) DeleteObject(ctx context.Context, id string) {
	s.rec.Remove(ctx, id)
	s.mu.Lock()
	s.resolver.Drop(id)
	s.culler.Invalidate()
	s.mu.Unlock()
}

// Objects returns the full local object set in paint order.
func (s *Session) Objects() []board.Object {
	return s.rec.Objects()
}

// Object returns one object by id.
func (s *Session) Object(id string) (board.Object, bool) {
	return s.rec.Get(id)
}

// VisibleObjects returns the objects worth rendering for the viewport, in
// paint order, recomputed only when the viewport drifted far enough.
func (s *Session) VisibleObjects(vp cull.Viewport) []board.Object {
	objects := s.rec.Objects()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.culler.Visible(objects, vp, s.rec.Get)
}

// ConnectorPaths recomputes every connector's endpoints and routed path from
// the current object positions.
func (s *Session) ConnectorPaths() map[string]connector.Endpoints {
	objects := s.rec.Objects()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolver.ResolveAll(objects, s.rec.Get)
}

// DragObject broadcasts a drag preview for the object and recomputes only
// the connectors touching it, with the object's position overridden by the
// in-progress drag. Everything else is served from the resolver cache.
func (s *Session) DragObject(id string, x, y float64) map[string]connector.Endpoints {
	s.presence.EmitObjectDrag(id, x, y)

	lookup := func(lookupID string) (board.Object, bool) {
		o, ok := s.rec.Get(lookupID)
		if ok && lookupID == id {
			o.X, o.Y = x, y
		}
		return o, ok
	}

	objects := s.rec.Objects()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolver.ResolveForDrag(id, objects, lookup)
}

// EndDrag broadcasts the drag end and commits the final position as a
// durable update.
func (s *Session) EndDrag(ctx context.Context, id string, x, y float64) {
	s.presence.EmitObjectDragEnd(id)
	obj, ok := s.rec.Get(id)
	if !ok {
		return
	}
	obj.X, obj.Y = x, y
	s.UpdateObject(ctx, obj)
}

// GenerateDiagram detects the archetype from the prompt, lays the nodes out
// and materializes them as rectangles plus curved connectors on the board.
// Template archetypes (swot, kanban) are refused with ErrTemplateArchetype
// so the caller can expand its fixed template instead.
func (s *Session) GenerateDiagram(ctx context.Context, prompt string, nodes []layout.Node, edges []layout.Edge, center board.Point) ([]board.Object, error) {
	req := layout.Request{
		Nodes:     nodes,
		Edges:     edges,
		Archetype: layout.Detect(prompt),
		Center:    center,
	}
	result, err := s.engine.Layout(ctx, req)
	if err != nil {
		return nil, err
	}

	labels := make(map[string]string, len(nodes))
	for _, n := range nodes {
		labels[n.ID] = n.Label
	}

	created := make([]board.Object, 0, len(result.Nodes)+len(result.Anchors))
	objectIDs := make(map[string]string, len(result.Nodes))
	for _, p := range result.Nodes {
		obj := s.CreateObject(ctx, board.Object{
			Type:   board.TypeRectangle,
			X:      p.X,
			Y:      p.Y,
			Width:  p.Width,
			Height: p.Height,
			Text:   labels[p.ID],
		})
		objectIDs[p.ID] = obj.ID
		created = append(created, obj)
	}
	for _, a := range result.Anchors {
		obj := s.CreateObject(ctx, board.Object{
			Type:          board.TypeConnector,
			StartObjectID: objectIDs[a.From],
			EndObjectID:   objectIDs[a.To],
			Style:         board.StyleCurved,
			ArrowEnd:      true,
		})
		created = append(created, obj)
	}
	return created, nil
}

// EmitCursor broadcasts the pointer position.
func (s *Session) EmitCursor(x, y float64) { s.presence.EmitCursor(x, y) }

// EmitSelection broadcasts the selected object ids.
func (s *Session) EmitSelection(ids []string) { s.presence.EmitSelection(ids) }

// EmitTextPreview broadcasts live text-edit content for a locked sticky.
func (s *Session) EmitTextPreview(objectID, text string) {
	s.presence.EmitTextPreview(objectID, text)
}

// BeginStickyEdit asserts the advisory edit lock for the sticky.
func (s *Session) BeginStickyEdit(objectID string) error {
	return s.presence.EmitStickyLock(objectID)
}

// EndStickyEdit releases this session's edit lock.
func (s *Session) EndStickyEdit(objectID string) {
	s.presence.EmitStickyUnlock(objectID)
}

// CanEdit reports whether opening the sticky editor is allowed.
func (s *Session) CanEdit(objectID string) bool { return s.presence.CanEdit(objectID) }

// Connected reports whether the presence channel is live.
func (s *Session) Connected() bool { return s.presence.Connected() }

// Participants returns the connected collaborators.
func (s *Session) Participants() map[string]board.Participant { return s.presence.Participants() }

// Cursors returns remote cursor positions keyed by session id.
func (s *Session) Cursors() map[string]board.Cursor { return s.presence.Cursors() }

// RemoteSelections returns remote selections keyed by session id.
func (s *Session) RemoteSelections() map[string][]string { return s.presence.RemoteSelections() }

// RemoteEditing returns the advisory lock map keyed by object id.
func (s *Session) RemoteEditing() map[string]board.EditLock { return s.presence.RemoteEditing() }

// DragPreviews returns remote in-progress drags keyed by object id.
func (s *Session) DragPreviews() map[string]board.DragPreview { return s.presence.DragPreviews() }

// TextPreviews returns live remote text edits keyed by object id.
func (s *Session) TextPreviews() map[string]string { return s.presence.TextPreviews() }

// Wait blocks until every issued durable write has completed.
func (s *Session) Wait() { s.rec.Wait() }

func (s *Session) invalidateView() {
	s.mu.Lock()
	s.culler.Invalidate()
	s.mu.Unlock()
}

func (s *Session) nextZIndex() int64 {
	var max int64
	for _, o := range s.rec.Objects() {
		if o.ZIndex > max {
			max = o.ZIndex
		}
	}
	return max + 1
}
