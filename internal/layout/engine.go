// Package layout arranges AI-generated diagram nodes without overlaps.
package layout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"openboard/internal/board"
	"openboard/internal/geometry"
)

// ErrTemplateArchetype signals that the requested archetype (swot, kanban)
// is expanded from a fixed template by the caller, not positioned here.
var ErrTemplateArchetype = errors.New("layout: archetype is template-expanded, not positioned")

const fallbackGap = 40.0

// Node is an unplaced diagram node with its intrinsic size. A zero size is
// auto-estimated from the label.
type Node struct {
	ID     string
	Label  string
	Width  float64
	Height float64
}

// Edge is a directed connection between node ids.
type Edge struct {
	From string
	To   string
}

// Request describes one layout computation.
type Request struct {
	Nodes     []Node
	Edges     []Edge
	Archetype Archetype
	Center    board.Point
}

// PlacedNode is a positioned node rectangle.
type PlacedNode struct {
	ID     string
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// EdgeAnchor carries the per-edge anchor sides derived from the placement.
type EdgeAnchor struct {
	From     string
	To       string
	FromSide geometry.Side
	ToSide   geometry.Side
}

// Result is a complete, non-overlapping placement centered on the requested
// point.
type Result struct {
	Nodes   []PlacedNode
	Anchors []EdgeAnchor
}

// Engine is stateless between calls; it only carries a logger for reporting
// recovered layout failures.
type Engine struct {
	logger *slog.Logger
}

// NewEngine returns an Engine logging through the given logger.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Layout places the request's nodes. Flowchart and generic requests flow top
// to bottom, mindmaps left to right. Any failure in the layered computation
// falls back to a deterministic vertical stack so the caller always receives
// a complete placement.
func (e *Engine) Layout(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	switch req.Archetype {
	case ArchetypeSwot, ArchetypeKanban:
		return Result{}, fmt.Errorf("%w: %s", ErrTemplateArchetype, req.Archetype)
	}
	if len(req.Nodes) == 0 {
		return Result{}, nil
	}

	nodes := e.sizedNodes(req.Nodes)

	positions := e.tryLayered(nodes, req.Edges, req.Archetype)
	if positions == nil {
		positions = fallbackStack(nodes)
	}

	placed := make([]PlacedNode, len(nodes))
	for i, n := range nodes {
		p := positions[n.ID]
		placed[i] = PlacedNode{ID: n.ID, X: p.X, Y: p.Y, Width: n.Width, Height: n.Height}
	}
	centerOn(placed, req.Center)

	return Result{Nodes: placed, Anchors: deriveAnchors(placed, req.Edges)}, nil
}

func (e *Engine) sizedNodes(in []Node) []Node {
	nodes := make([]Node, len(in))
	copy(nodes, in)
	for i := range nodes {
		if nodes[i].Width <= 0 || nodes[i].Height <= 0 {
			nodes[i].Width, nodes[i].Height = AutoSize(nodes[i].Label, DefaultSizeBounds)
		}
	}
	return nodes
}

// tryLayered runs the layered placement, converting a panic into a nil
// result so the engine can fall back instead of surfacing an error to the
// user.
func (e *Engine) tryLayered(nodes []Node, edges []Edge, archetype Archetype) (positions map[string]board.Point) {
	defer func() {
		if r := recover(); r != nil {
			if e.logger != nil {
				e.logger.Error("layered layout failed", slog.Any("panic", r))
			}
			positions = nil
		}
	}()

	dir := flowDown
	if archetype == ArchetypeMindmap {
		dir = flowRight
	}
	return layered(nodes, edges, dir)
}

// fallbackStack centers each node horizontally on x = 0 and stacks downward
// with a fixed gap.
func fallbackStack(nodes []Node) map[string]board.Point {
	positions := make(map[string]board.Point, len(nodes))
	y := 0.0
	for _, n := range nodes {
		positions[n.ID] = board.Point{X: -n.Width / 2, Y: y}
		y += n.Height + fallbackGap
	}
	return positions
}

// centerOn translates the placement so the bounding box center of all nodes
// coincides with the target point.
func centerOn(placed []PlacedNode, target board.Point) {
	if len(placed) == 0 {
		return
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range placed {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X+p.Width)
		maxY = math.Max(maxY, p.Y+p.Height)
	}
	dx := target.X - (minX+maxX)/2
	dy := target.Y - (minY+maxY)/2
	for i := range placed {
		placed[i].X += dx
		placed[i].Y += dy
	}
}

func deriveAnchors(placed []PlacedNode, edges []Edge) []EdgeAnchor {
	byID := make(map[string]PlacedNode, len(placed))
	for _, p := range placed {
		byID[p.ID] = p
	}

	anchors := make([]EdgeAnchor, 0, len(edges))
	for _, e := range edges {
		from, okF := byID[e.From]
		to, okT := byID[e.To]
		if !okF || !okT {
			continue
		}
		fromSide, toSide := geometry.BestAnchorPair(asRect(from), asRect(to))
		anchors = append(anchors, EdgeAnchor{From: e.From, To: e.To, FromSide: fromSide, ToSide: toSide})
	}
	return anchors
}

func asRect(p PlacedNode) board.Object {
	return board.Object{Type: board.TypeRectangle, X: p.X, Y: p.Y, Width: p.Width, Height: p.Height}
}
