// Package connector recomputes live connector endpoints from the current
// positions of the shapes they reference.
package connector

import (
	"openboard/internal/board"
	"openboard/internal/geometry"
)

// Endpoints is a resolved start/end pair plus the routed path for the
// connector's style.
type Endpoints struct {
	Start board.Point
	End   board.Point
	Path  []board.Point
}

// Lookup resolves an object id to its live state. A false return means the
// referenced object is absent and the connector falls back to its literal
// stored point.
type Lookup func(id string) (board.Object, bool)

// Resolve computes both endpoints of a single connector.
//
// When both sides reference live objects, each endpoint chases the other
// object's center along its own perimeter. When only one side resolves, that
// side anchors toward the other side's literal point. When neither resolves,
// the stored literal points are used unchanged.
func Resolve(c board.Object, lookup Lookup) Endpoints {
	startObj, hasStart := lookupRef(c.StartObjectID, lookup)
	endObj, hasEnd := lookupRef(c.EndObjectID, lookup)

	var start, end board.Point
	switch {
	case hasStart && hasEnd:
		start = geometry.BestPerimeterPoint(startObj, geometry.Center(endObj))
		end = geometry.BestPerimeterPoint(endObj, geometry.Center(startObj))
	case hasStart:
		start = geometry.BestPerimeterPoint(startObj, c.EndPoint)
		end = c.EndPoint
	case hasEnd:
		start = c.StartPoint
		end = geometry.BestPerimeterPoint(endObj, c.StartPoint)
	default:
		start = c.StartPoint
		end = c.EndPoint
	}

	return Endpoints{
		Start: start,
		End:   end,
		Path:  geometry.PathPoints(c.Style, start, end),
	}
}

func lookupRef(id string, lookup Lookup) (board.Object, bool) {
	if id == "" {
		return board.Object{}, false
	}
	return lookup(id)
}

// Resolver caches per-connector endpoints so an active drag only pays for
// the connectors touching the dragged object.
type Resolver struct {
	cache map[string]Endpoints
}

// NewResolver returns a Resolver with an empty cache.
func NewResolver() *Resolver {
	return &Resolver{cache: make(map[string]Endpoints)}
}

// ResolveAll recomputes every connector in the slice and replaces the cache.
// Call this outside of drags, typically once per reconciliation or frame.
func (r *Resolver) ResolveAll(connectors []board.Object, lookup Lookup) map[string]Endpoints {
	next := make(map[string]Endpoints, len(connectors))
	for _, c := range connectors {
		if c.Type != board.TypeConnector {
			continue
		}
		next[c.ID] = Resolve(c, lookup)
	}
	r.cache = next
	return r.snapshot()
}

// ResolveForDrag recomputes only the connectors whose start or end references
// draggedID. Every other connector keeps its last-computed endpoints, so a
// drag costs O(edges touching the dragged node) rather than O(all
// connectors).
func (r *Resolver) ResolveForDrag(draggedID string, connectors []board.Object, lookup Lookup) map[string]Endpoints {
	for _, c := range connectors {
		if c.Type != board.TypeConnector {
			continue
		}
		if c.StartObjectID != draggedID && c.EndObjectID != draggedID {
			continue
		}
		r.cache[c.ID] = Resolve(c, lookup)
	}
	return r.snapshot()
}

// Drop evicts a deleted connector from the cache.
func (r *Resolver) Drop(id string) {
	delete(r.cache, id)
}

func (r *Resolver) snapshot() map[string]Endpoints {
	out := make(map[string]Endpoints, len(r.cache))
	for id, ep := range r.cache {
		out[id] = ep
	}
	return out
}
