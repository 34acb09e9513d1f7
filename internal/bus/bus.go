// Package bus defines the low-latency broadcast channel carrying ephemeral
// signals between sessions: cursors, selections, drag previews, text-edit
// previews, locks, and presence join/leave.
package bus

import "context"

// Kind tags a broadcast message.
type Kind string

const (
	KindJoin        Kind = "join"
	KindLeave       Kind = "leave"
	KindCursor      Kind = "cursor"
	KindSelection   Kind = "selection"
	KindLock        Kind = "lock"
	KindUnlock      Kind = "unlock"
	KindDrag        Kind = "drag"
	KindDragEnd     Kind = "dragend"
	KindTextPreview Kind = "text"
)

// Message is one ephemeral signal. Nothing here is persisted; a missed
// message is simply stale presence, repaired by the next signal.
type Message struct {
	Kind      Kind   `json:"kind"`
	SessionID string `json:"sessionId"`
	Name      string `json:"name,omitempty"`

	ObjectID string   `json:"objectId,omitempty"`
	X        float64  `json:"x,omitempty"`
	Y        float64  `json:"y,omitempty"`
	IDs      []string `json:"ids,omitempty"`
	Text     string   `json:"text,omitempty"`
}

// Handler receives broadcast messages for a subscribed board.
type Handler func(Message)

// Bus is a reliable, ordered-per-topic publish/subscribe channel scoped by
// board id.
type Bus interface {
	Publish(ctx context.Context, boardID string, m Message) error

	// Subscribe registers a handler and returns a cancel function. Handlers
	// also receive the subscriber's own published messages; adapters filter
	// by session id.
	Subscribe(ctx context.Context, boardID string, fn Handler) (func(), error)
}
