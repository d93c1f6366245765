package vector

import (
	"container/heap"
	"math/rand"
	"sort"
)

const maxGraphLevel = 16

// hnswGraph is the approximate tier: a hierarchical navigable small
// world graph over record positions. Nodes are indexed by position and
// the graph never removes them; deletions are handled by rebuilding
// the whole graph from surviving vectors.
//
// The graph does not own vector data. It reads vectors through the
// vectorAt accessor so the exact tier remains the single copy.
type hnswGraph struct {
	m              int
	efConstruction int
	maxLevel       int
	entry          uint32
	nodes          []*graphNode
	vectorAt       func(pos uint32) []float32
	rng            *rand.Rand
}

// graphNode participates in layers 0 through level inclusive.
// edges[0] holds up to 2*M neighbors, upper layers up to M.
type graphNode struct {
	level int
	edges [][]uint32
}

func newHNSWGraph(m, efConstruction int, vectorAt func(pos uint32) []float32, seed int64) *hnswGraph {
	return &hnswGraph{
		m:              m,
		efConstruction: efConstruction,
		vectorAt:       vectorAt,
		rng:            rand.New(rand.NewSource(seed)),
	}
}

func (g *hnswGraph) size() int { return len(g.nodes) }

// randomLevel draws a level from a geometric distribution with
// success probability 1/M, capped to keep the hierarchy shallow.
func (g *hnswGraph) randomLevel() int {
	p := 1.0 / float64(g.m)
	level := 0
	for level < maxGraphLevel && g.rng.Float64() < p {
		level++
	}
	return level
}

// add appends the next position to the graph. Positions must arrive
// in order: pos is always len(g.nodes) at call time.
func (g *hnswGraph) add(pos uint32) {
	level := g.randomLevel()
	node := &graphNode{level: level, edges: make([][]uint32, level+1)}

	if len(g.nodes) == 0 {
		g.nodes = append(g.nodes, node)
		g.entry = pos
		g.maxLevel = level
		return
	}
	g.nodes = append(g.nodes, node)

	query := g.vectorAt(pos)
	curr := g.entry
	currDist := l2sq(query, g.vectorAt(curr))

	// Greedy descent through layers above the node's level.
	for lc := g.maxLevel; lc > level; lc-- {
		for changed := true; changed; {
			changed = false
			cn := g.nodes[curr]
			if lc >= len(cn.edges) {
				continue
			}
			for _, nb := range cn.edges[lc] {
				if d := l2sq(query, g.vectorAt(nb)); d < currDist {
					currDist = d
					curr = nb
					changed = true
				}
			}
		}
	}

	// Connect at each layer from the node's level down.
	for lc := min(level, g.maxLevel); lc >= 0; lc-- {
		cands := g.searchLayer(query, curr, g.efConstruction, lc)
		limit := g.m
		if lc == 0 {
			limit *= 2
		}
		for _, nb := range selectNearest(cands, limit) {
			node.edges[lc] = append(node.edges[lc], nb)
			peer := g.nodes[nb]
			if lc <= peer.level {
				peer.edges[lc] = append(peer.edges[lc], pos)
				if len(peer.edges[lc]) > limit {
					g.prune(nb, lc, limit)
				}
			}
		}
		if len(cands) > 0 {
			curr = cands[0].pos
		}
	}

	if level > g.maxLevel {
		g.maxLevel = level
		g.entry = pos
	}
}

// search returns up to k positions nearest to query, nearest first.
// ef bounds the beam width at layer 0 and is clamped up to k.
func (g *hnswGraph) search(query []float32, k, ef int) []uint32 {
	if len(g.nodes) == 0 || k <= 0 {
		return nil
	}
	if ef < k {
		ef = k
	}

	curr := g.entry
	currDist := l2sq(query, g.vectorAt(curr))
	for lc := g.maxLevel; lc > 0; lc-- {
		for changed := true; changed; {
			changed = false
			cn := g.nodes[curr]
			if lc >= len(cn.edges) {
				continue
			}
			for _, nb := range cn.edges[lc] {
				if d := l2sq(query, g.vectorAt(nb)); d < currDist {
					currDist = d
					curr = nb
					changed = true
				}
			}
		}
	}

	cands := g.searchLayer(query, curr, ef, 0)
	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]uint32, len(cands))
	for i, c := range cands {
		out[i] = c.pos
	}
	return out
}

// searchLayer runs a beam search at one layer. Returns up to ef
// candidates ordered nearest first.
func (g *hnswGraph) searchLayer(query []float32, entry uint32, ef int, layer int) []candidate {
	visited := make(map[uint32]struct{}, ef*4)
	visited[entry] = struct{}{}

	frontier := minCandidateHeap{}
	best := maxCandidateHeap{}
	d := l2sq(query, g.vectorAt(entry))
	heap.Push(&frontier, candidate{pos: entry, dist: d})
	heap.Push(&best, candidate{pos: entry, dist: d})

	for frontier.Len() > 0 {
		cur := heap.Pop(&frontier).(candidate)
		if best.Len() >= ef && cur.dist > best[0].dist {
			break
		}
		node := g.nodes[cur.pos]
		if layer >= len(node.edges) {
			continue
		}
		for _, nb := range node.edges[layer] {
			if _, seen := visited[nb]; seen {
				continue
			}
			visited[nb] = struct{}{}
			nd := l2sq(query, g.vectorAt(nb))
			if best.Len() < ef || nd < best[0].dist {
				heap.Push(&frontier, candidate{pos: nb, dist: nd})
				heap.Push(&best, candidate{pos: nb, dist: nd})
				if best.Len() > ef {
					heap.Pop(&best)
				}
			}
		}
	}

	out := make([]candidate, best.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&best).(candidate)
	}
	return out
}

// selectNearest keeps the limit nearest candidates.
func selectNearest(cands []candidate, limit int) []uint32 {
	if len(cands) > limit {
		sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
		cands = cands[:limit]
	}
	out := make([]uint32, len(cands))
	for i, c := range cands {
		out[i] = c.pos
	}
	return out
}

// prune trims a node's edge list at one layer back to the limit,
// keeping the nearest neighbors.
func (g *hnswGraph) prune(pos uint32, layer, limit int) {
	node := g.nodes[pos]
	base := g.vectorAt(pos)
	cands := make([]candidate, 0, len(node.edges[layer]))
	for _, nb := range node.edges[layer] {
		cands = append(cands, candidate{pos: nb, dist: l2sq(base, g.vectorAt(nb))})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if len(cands) > limit {
		cands = cands[:limit]
	}
	node.edges[layer] = make([]uint32, len(cands))
	for i, c := range cands {
		node.edges[layer][i] = c.pos
	}
}
