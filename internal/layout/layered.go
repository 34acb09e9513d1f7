package layout

import "openboard/internal/board"

// direction selects the main flow axis of a layered layout.
type direction int

const (
	flowDown direction = iota
	flowRight
)

const (
	nodeGap  = 40.0
	layerGap = 80.0

	// barycenterSweeps bounds the crossing-minimization passes.
	barycenterSweeps = 4
)

// layered assigns positions with a layered graph drawing: longest-path layer
// assignment (back edges from cycles are ignored), barycenter ordering
// within layers to reduce crossings, then sequential placement with
// per-layer extents. Returns top-left positions keyed by node id.
func layered(nodes []Node, edges []Edge, dir direction) map[string]board.Point {
	n := len(nodes)
	index := make(map[string]int, n)
	for i, node := range nodes {
		index[node.ID] = i
	}

	adj := make([][]int, n)
	for _, e := range edges {
		from, okF := index[e.From]
		to, okT := index[e.To]
		if !okF || !okT || from == to {
			continue
		}
		adj[from] = append(adj[from], to)
	}

	layers := assignLayers(n, adj)

	maxLayer := 0
	for _, l := range layers {
		if l > maxLayer {
			maxLayer = l
		}
	}
	rows := make([][]int, maxLayer+1)
	for i, l := range layers {
		rows[l] = append(rows[l], i)
	}

	orderRows(rows, adj, layers)

	if dir == flowRight {
		return placeColumns(nodes, rows)
	}
	return placeRows(nodes, rows)
}

// assignLayers computes longest-path layers over the DAG obtained by
// dropping back edges found during DFS.
func assignLayers(n int, adj [][]int) []int {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make([]int, n)
	order := make([]int, 0, n)
	forward := make([][]int, n)

	var visit func(v int)
	visit = func(v int) {
		state[v] = inStack
		for _, w := range adj[v] {
			if state[w] == inStack {
				continue // back edge, closes a cycle
			}
			forward[v] = append(forward[v], w)
			if state[w] == unvisited {
				visit(w)
			}
		}
		state[v] = done
		order = append(order, v)
	}
	for v := 0; v < n; v++ {
		if state[v] == unvisited {
			visit(v)
		}
	}

	layers := make([]int, n)
	// Reverse post-order is a topological order of the acyclic remainder.
	for i := len(order) - 1; i >= 0; i-- {
		v := order[i]
		for _, w := range forward[v] {
			if layers[v]+1 > layers[w] {
				layers[w] = layers[v] + 1
			}
		}
	}
	return layers
}

// orderRows runs alternating barycenter sweeps: each node is ordered by the
// mean position of its neighbors in the adjacent layer.
func orderRows(rows [][]int, adj [][]int, layers []int) {
	n := len(layers)
	preds := make([][]int, n)
	for v := range adj {
		for _, w := range adj[v] {
			if layers[w] == layers[v]+1 {
				preds[w] = append(preds[w], v)
			}
		}
	}

	pos := make([]int, n)
	refreshPos := func() {
		for _, row := range rows {
			for i, v := range row {
				pos[v] = i
			}
		}
	}
	refreshPos()

	barycenter := func(v int, neighbors []int) float64 {
		if len(neighbors) == 0 {
			return float64(pos[v])
		}
		sum := 0.0
		for _, u := range neighbors {
			sum += float64(pos[u])
		}
		return sum / float64(len(neighbors))
	}

	for sweep := 0; sweep < barycenterSweeps; sweep++ {
		// Downward: order by predecessors in the layer above.
		for i := 1; i < len(rows); i++ {
			sortRowBy(rows[i], func(v int) float64 { return barycenter(v, preds[v]) })
			refreshPos()
		}
		// Upward: order by successors in the layer below.
		for i := len(rows) - 2; i >= 0; i-- {
			sortRowBy(rows[i], func(v int) float64 {
				succ := make([]int, 0, len(adj[v]))
				for _, w := range adj[v] {
					if layers[w] == layers[v]+1 {
						succ = append(succ, w)
					}
				}
				return barycenter(v, succ)
			})
			refreshPos()
		}
	}
}

func sortRowBy(row []int, key func(int) float64) {
	// Insertion sort keeps equal keys stable across sweeps.
	for i := 1; i < len(row); i++ {
		v := row[i]
		k := key(v)
		j := i - 1
		for j >= 0 && key(row[j]) > k {
			row[j+1] = row[j]
			j--
		}
		row[j+1] = v
	}
}

// placeRows lays layers out top to bottom, each row centered on x = 0.
func placeRows(nodes []Node, rows [][]int) map[string]board.Point {
	positions := make(map[string]board.Point, len(nodes))
	y := 0.0
	for _, row := range rows {
		rowWidth := 0.0
		rowHeight := 0.0
		for _, v := range row {
			rowWidth += nodes[v].Width
			if nodes[v].Height > rowHeight {
				rowHeight = nodes[v].Height
			}
		}
		rowWidth += nodeGap * float64(len(row)-1)

		x := -rowWidth / 2
		for _, v := range row {
			positions[nodes[v].ID] = board.Point{X: x, Y: y}
			x += nodes[v].Width + nodeGap
		}
		y += rowHeight + layerGap
	}
	return positions
}

// placeColumns lays layers out left to right, each column centered on y = 0.
func placeColumns(nodes []Node, rows [][]int) map[string]board.Point {
	positions := make(map[string]board.Point, len(nodes))
	x := 0.0
	for _, row := range rows {
		colHeight := 0.0
		colWidth := 0.0
		for _, v := range row {
			colHeight += nodes[v].Height
			if nodes[v].Width > colWidth {
				colWidth = nodes[v].Width
			}
		}
		colHeight += nodeGap * float64(len(row)-1)

		y := -colHeight / 2
		for _, v := range row {
			positions[nodes[v].ID] = board.Point{X: x, Y: y}
			y += nodes[v].Height + nodeGap
		}
		x += colWidth + layerGap
	}
	return positions
}
