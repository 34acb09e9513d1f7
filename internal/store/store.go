// Package store defines the durable object store consumed by the
// reconciler: a row per board object with change notifications.
package store

import (
	"context"
	"errors"

	"openboard/internal/board"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: object not found")

// EventType tags a change notification.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// ChangeEvent reports one row change. Delivery is at-least-once and per-row
// ordering is not guaranteed across rows; the reconciler's in-flight
// suppression and last-write-wins policy absorb both properties. Delete
// events carry only the object id.
type ChangeEvent struct {
	Type    EventType    `json:"type"`
	BoardID string       `json:"boardId"`
	Object  board.Object `json:"object"`
}

// ChangeHandler receives change notifications for a subscribed board.
type ChangeHandler func(ChangeEvent)

// Store is the durable collaborator behind the reconciler.
type Store interface {
	// ListObjects returns every object on the board.
	ListObjects(ctx context.Context, boardID string) ([]board.Object, error)

	// UpsertObject writes the full object, replacing any prior state.
	UpsertObject(ctx context.Context, boardID string, obj board.Object) error

	// DeleteObject removes the object row. Deleting an absent row is not an
	// error.
	DeleteObject(ctx context.Context, id string) error

	// Subscribe registers a change handler for the board and returns a
	// cancel function releasing the subscription.
	Subscribe(ctx context.Context, boardID string, fn ChangeHandler) (func(), error)
}
