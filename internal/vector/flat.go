package vector

import (
	"container/heap"
	"sort"
)

// candidate pairs a record position with its distance to the query.
type candidate struct {
	pos  uint32
	dist float32
}

// maxCandidateHeap keeps the k nearest seen so far; the root is the
// worst of them and is evicted when something closer arrives.
type maxCandidateHeap []candidate

func (h maxCandidateHeap) Len() int            { return len(h) }
func (h maxCandidateHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxCandidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxCandidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxCandidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// minCandidateHeap orders candidates nearest first; used as the
// expansion frontier during graph traversal.
type minCandidateHeap []candidate

func (h minCandidateHeap) Len() int            { return len(h) }
func (h minCandidateHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minCandidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minCandidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minCandidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// flatSearch scans every vector exhaustively and returns the k nearest
// positions, ordered nearest first. It is the exact tier and also the
// rerank stage over a candidate window.
func flatSearch(vecs [][]float32, query []float32, k int) []candidate {
	if k <= 0 || len(vecs) == 0 {
		return nil
	}
	if k > len(vecs) {
		k = len(vecs)
	}
	h := make(maxCandidateHeap, 0, k)
	heap.Init(&h)
	for i, v := range vecs {
		d := l2sq(query, v)
		if len(h) < k {
			heap.Push(&h, candidate{pos: uint32(i), dist: d})
		} else if d < h[0].dist {
			h[0] = candidate{pos: uint32(i), dist: d}
			heap.Fix(&h, 0)
		}
	}
	out := []candidate(h)
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	return out
}
