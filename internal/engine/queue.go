package engine

import (
	"sort"

	"github.com/nodeflowio/nodeflow/internal/graph"
)

// readyQueue is the scheduler's work list: node indices ordered by
// ascending topological index, ties broken by node id, with duplicate
// suppression so pushing an already-pending node is a no-op.
type readyQueue struct {
	g       *graph.Graph
	items   []int
	pending []bool
}

func newReadyQueue(g *graph.Graph) *readyQueue {
	return &readyQueue{g: g, pending: make([]bool, len(g.Nodes))}
}

func (q *readyQueue) push(nodeIdx int) {
	if q.pending[nodeIdx] {
		return
	}
	q.pending[nodeIdx] = true

	topo := q.g.TopoIndexOfNode[nodeIdx]
	id := q.g.Nodes[nodeIdx].ID
	pos := sort.Search(len(q.items), func(i int) bool {
		oi := q.items[i]
		ot := q.g.TopoIndexOfNode[oi]
		if ot != topo {
			return ot > topo
		}
		return q.g.Nodes[oi].ID >= id
	})
	q.items = append(q.items, 0)
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = nodeIdx
}

func (q *readyQueue) popFront() (int, bool) {
	if len(q.items) == 0 {
		return 0, false
	}
	n := q.items[0]
	q.items = q.items[1:]
	q.pending[n] = false
	return n, true
}

func (q *readyQueue) len() int { return len(q.items) }

// fillAllInTopoOrder resets the queue and enqueues every node in
// topological order, used for the cold-start full sweep on the first
// Evaluate call after Load.
func (q *readyQueue) fillAllInTopoOrder() {
	q.items = q.items[:0]
	for i := range q.pending {
		q.pending[i] = false
	}
	for _, nodeIdx := range q.g.TopoOrder {
		q.push(nodeIdx)
	}
}
