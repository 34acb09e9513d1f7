package board

// ObjectType discriminates the board object union.
type ObjectType string

const (
	TypeSticky    ObjectType = "sticky"
	TypeRectangle ObjectType = "rectangle"
	TypeCircle    ObjectType = "circle"
	TypeLine      ObjectType = "line"
	TypeTextbox   ObjectType = "textbox"
	TypeConnector ObjectType = "connector"
	TypeDrawing   ObjectType = "drawing"
)

// PenType selects stroke rendering for drawings.
type PenType string

const (
	PenPen         PenType = "pen"
	PenMarker      PenType = "marker"
	PenHighlighter PenType = "highlighter"
)

// ConnectorStyle selects the routing of a connector path.
type ConnectorStyle string

const (
	StyleStraight   ConnectorStyle = "straight"
	StyleCurved     ConnectorStyle = "curved"
	StyleOrthogonal ConnectorStyle = "orthogonal"
)

// Point is a coordinate in board space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Object is one shape, note, stroke or connector on the canvas.
//
// It is a closed union discriminated by Type. The id is immutable once
// created; every other field is replaced as a whole on update. There are no
// field-level patches, so concurrent editors can only race on entire
// objects, never on individual fields.
type Object struct {
	ID   string     `json:"id"`
	Type ObjectType `json:"type"`

	// Positioned variants: sticky, rectangle, circle, line, textbox.
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	Width    float64 `json:"width,omitempty"`
	Height   float64 `json:"height,omitempty"`
	Rotation float64 `json:"rotation,omitempty"`

	Color  string `json:"color,omitempty"`
	ZIndex int64  `json:"zIndex,omitempty"`

	// Sticky and textbox text content.
	Text string `json:"text,omitempty"`

	// Drawing stroke.
	Points      []Point `json:"points,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	PenType     PenType `json:"penType,omitempty"`

	// Connector endpoints. Empty object ids mean a free-floating endpoint
	// anchored at the literal point.
	StartObjectID string         `json:"startObjectId,omitempty"`
	EndObjectID   string         `json:"endObjectId,omitempty"`
	StartPoint    Point          `json:"startPoint,omitempty"`
	EndPoint      Point          `json:"endPoint,omitempty"`
	Style         ConnectorStyle `json:"style,omitempty"`
	ArrowEnd      bool           `json:"arrowEnd,omitempty"`
}

// Positioned reports whether the object carries its own x/y/width/height box.
// Connectors derive their extent from referenced shapes and drawings from
// their point list.
func (o Object) Positioned() bool {
	switch o.Type {
	case TypeSticky, TypeRectangle, TypeCircle, TypeLine, TypeTextbox:
		return true
	case TypeConnector, TypeDrawing:
		return false
	default:
		return false
	}
}

// Clone returns a deep copy. Reconciler snapshots hand copies to callers so
// shared state is never mutated from outside.
func (o Object) Clone() Object {
	dup := o
	if o.Points != nil {
		dup.Points = make([]Point, len(o.Points))
		copy(dup.Points, o.Points)
	}
	return dup
}
