package board

// Cursor is the last known pointer position of a session. Absence from the
// cursor map means the session has no known position.
type Cursor struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Name string  `json:"name"`
}

// Participant identifies a connected collaborator.
type Participant struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

// EditLock marks a sticky as being text-edited by a session. Locks are
// advisory: the store never enforces them, a well-behaved client refuses to
// open a locked editor locally.
type EditLock struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

// DragPreview is the live position of an object another session is dragging.
type DragPreview struct {
	SessionID string  `json:"sessionId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}
