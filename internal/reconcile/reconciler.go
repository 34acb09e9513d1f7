// Package reconcile keeps a session's local object state convergent with a
// durable store that echoes writes back asynchronously and out of order.
//
// Mutations apply locally first, so the UI never waits on the store. The
// in-flight set remembers which objects have an unconfirmed local write;
// when the store echoes that write back, the echo is swallowed instead of
// overwriting the (possibly newer) local state. Everything else is
// last-write-wins at whole-object granularity.
package reconcile

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"openboard/internal/board"
	"openboard/internal/store"
)

// DefaultEchoTimeout bounds how long an object stays marked in-flight when
// the store's echo never arrives. After it elapses the next remote update is
// treated as genuine.
const DefaultEchoTimeout = 10 * time.Second

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithEchoTimeout overrides the in-flight expiry.
func WithEchoTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.echoTimeout = d }
}

// Reconciler owns a board's local object map and mediates between local
// optimistic mutations and remote change notifications.
type Reconciler struct {
	boardID     string
	store       store.Store
	logger      *slog.Logger
	echoTimeout time.Duration

	mu       sync.Mutex
	objects  map[string]board.Object
	inflight map[string]int // object id -> mark generation
	gen      int

	writes sync.WaitGroup
}

// New returns a Reconciler for one board.
func New(boardID string, st store.Store, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		boardID:     boardID,
		store:       st,
		logger:      logger,
		echoTimeout: DefaultEchoTimeout,
		objects:     make(map[string]board.Object),
		inflight:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replaces local state with the store's current rows. Called once
// before subscribing.
func (r *Reconciler) Load(ctx context.Context) error {
	objects, err := r.store.ListObjects(ctx, r.boardID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.objects = make(map[string]board.Object, len(objects))
	for _, o := range objects {
		r.objects[o.ID] = o
	}
	r.mu.Unlock()
	return nil
}

// Create inserts the object locally, marks it in-flight and issues the
// durable write without blocking. A failed write rolls the insert back; a
// successful one leaves the optimistic state in place until the echo (or
// the echo timeout) clears the mark.
func (r *Reconciler) Create(ctx context.Context, obj board.Object) {
	r.mu.Lock()
	r.objects[obj.ID] = obj.Clone()
	r.markInflight(obj.ID)
	r.mu.Unlock()

	r.writes.Add(1)
	go func() {
		defer r.writes.Done()
		if err := r.store.UpsertObject(ctx, r.boardID, obj); err != nil {
			r.logger.Error("create failed, rolling back",
				slog.String("object", obj.ID), slog.String("error", err.Error()))
			r.mu.Lock()
			delete(r.objects, obj.ID)
			delete(r.inflight, obj.ID)
			r.mu.Unlock()
		}
	}()
}

// Update replaces the object locally, marks it in-flight and issues the
// durable write. Failures are logged without rollback: reverting could
// discard a newer local edit made after the failed one, and the store is
// eventually convergent anyway.
func (r *Reconciler) Update(ctx context.Context, obj board.Object) {
	r.mu.Lock()
	r.objects[obj.ID] = obj.Clone()
	r.markInflight(obj.ID)
	r.mu.Unlock()

	r.writes.Add(1)
	go func() {
		defer r.writes.Done()
		if err := r.store.UpsertObject(ctx, r.boardID, obj); err != nil {
			r.logger.Error("update failed",
				slog.String("object", obj.ID), slog.String("error", err.Error()))
			r.mu.Lock()
			delete(r.inflight, obj.ID)
			r.mu.Unlock()
		}
	}()
}

// Remove deletes locally and issues the durable delete. Failures are logged
// only.
func (r *Reconciler) Remove(ctx context.Context, id string) {
	r.mu.Lock()
	delete(r.objects, id)
	delete(r.inflight, id)
	r.mu.Unlock()

	r.writes.Add(1)
	go func() {
		defer r.writes.Done()
		if err := r.store.DeleteObject(ctx, id); err != nil {
			r.logger.Error("delete failed",
				slog.String("object", id), slog.String("error", err.Error()))
		}
	}()
}

// ApplyRemote folds one store notification into local state. Wire this to
// store.Subscribe.
//
// Insert/update notifications for an in-flight object are self-echoes of a
// prior local write: the mark is cleared and the payload discarded, even
// when it differs from local state. The optimistic value wins until the
// next explicit write. Otherwise the object is inserted if unknown or
// replaced wholesale. Deletes apply unconditionally.
func (r *Reconciler) ApplyRemote(ev store.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case store.EventDelete:
		delete(r.objects, ev.Object.ID)
		delete(r.inflight, ev.Object.ID)
	default:
		if _, ok := r.inflight[ev.Object.ID]; ok {
			delete(r.inflight, ev.Object.ID)
			return
		}
		r.objects[ev.Object.ID] = ev.Object.Clone()
	}
}

// Objects returns a snapshot of local state in paint order.
func (r *Reconciler) Objects() []board.Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	objects := make([]board.Object, 0, len(r.objects))
	for _, o := range r.objects {
		objects = append(objects, o.Clone())
	}
	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].ZIndex < objects[j].ZIndex
	})
	return objects
}

// Get returns a copy of one object.
func (r *Reconciler) Get(id string) (board.Object, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.objects[id]
	if !ok {
		return board.Object{}, false
	}
	return o.Clone(), true
}

// InFlight reports whether the object has an unconfirmed local write.
func (r *Reconciler) InFlight(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[id]
	return ok
}

// Wait blocks until all issued durable writes have completed. Used by tests
// and shutdown, never by the interactive path.
func (r *Reconciler) Wait() {
	r.writes.Wait()
}

// markInflight records a new mark generation and arms its expiry. The
// generation guards against an older timer clearing a mark set by a newer
// write. Callers hold r.mu.
func (r *Reconciler) markInflight(id string) {
	r.gen++
	gen := r.gen
	r.inflight[id] = gen

	time.AfterFunc(r.echoTimeout, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if current, ok := r.inflight[id]; ok && current == gen {
			delete(r.inflight, id)
		}
	})
}
