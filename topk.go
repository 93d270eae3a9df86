package ember

import "container/heap"

// ═══════════════════════════════════════════════════════════════════════════════
// BOUNDED TOP-K QUEUE
// ═══════════════════════════════════════════════════════════════════════════════
// During a search we see candidates in record-id order, not score order, so
// we need a structure that keeps the K best scores seen so far and can tell
// us, cheaply, the worst score it is currently holding.
//
// That structure is a MIN-heap bounded at K elements:
//
//	          [12.0]            ← Top(): the K-th best score so far
//	         /      \              (the admission threshold)
//	     [30.0]    [45.5]
//	     /    \
//	 [90.0]  [60.0]
//
// WHY A MIN-HEAP FOR THE LARGEST ELEMENTS?
// ----------------------------------------
// The root is the smallest of the kept set. A new candidate only matters if
// it beats that root - one O(1) comparison. Admission replaces the root and
// sifts down: O(log K). Candidates that cannot make the top K are rejected
// without touching the heap at all.
//
// The root doubles as the pruning threshold: once the queue is full, any
// posting-list region that cannot produce a score above Top() can be
// skipped entirely (see search.go).
// ═══════════════════════════════════════════════════════════════════════════════

// ScoredCandidate is one search result: a record id and its dot-product
// score against the query.
type ScoredCandidate struct {
	Score float32
	ID    RecordID
}

// scoreLess is the total order used everywhere scores are compared.
//
// Floats are only partially ordered: NaN compares false against everything,
// which would silently corrupt a heap. Ingest already rejects NaN weights,
// but the comparator still defines a consistent slot for NaN - below all
// other values - so heap order survives anything.
func scoreLess(a, b float32) bool {
	aNaN, bNaN := a != a, b != b
	if aNaN || bNaN {
		return aNaN && !bNaN
	}
	return a < b
}

// candidateHeap implements heap.Interface as a min-heap on Score.
type candidateHeap []ScoredCandidate

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return scoreLess(h[i].Score, h[j].Score) }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) {
	*h = append(*h, x.(ScoredCandidate))
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopKQueue keeps the K highest-scoring candidates pushed into it.
type TopKQueue struct {
	heap     candidateHeap
	capacity int
}

// NewTopKQueue creates an empty queue bounded at k elements.
// A zero or negative k is a programmer bug: a search that keeps nothing is
// meaningless, and the pruning threshold would be undefined.
func NewTopKQueue(k int) *TopKQueue {
	if k <= 0 {
		panic("top-k queue capacity must be positive")
	}
	return &TopKQueue{
		heap:     make(candidateHeap, 0, k+1),
		capacity: k,
	}
}

// Push offers a candidate to the queue.
//
// THREE OUTCOMES:
// ---------------
// 1. Queue not full yet    → candidate kept, (zero, false) returned
// 2. Candidate beats Top() → candidate kept, old minimum evicted and
//    returned with true
// 3. Otherwise             → candidate rejected and returned with true
//
// Ties with the current minimum are not broken: either element may be the
// one kept.
func (q *TopKQueue) Push(c ScoredCandidate) (ScoredCandidate, bool) {
	if len(q.heap) < q.capacity {
		heap.Push(&q.heap, c)
		return ScoredCandidate{}, false
	}
	if scoreLess(q.heap[0].Score, c.Score) {
		evicted := q.heap[0]
		q.heap[0] = c
		heap.Fix(&q.heap, 0)
		return evicted, true
	}
	return c, true
}

// Top returns the current minimum of the kept set - the score a new
// candidate must beat to be admitted. Second return is false while the
// queue is empty.
func (q *TopKQueue) Top() (ScoredCandidate, bool) {
	if len(q.heap) == 0 {
		return ScoredCandidate{}, false
	}
	return q.heap[0], true
}

// Len returns the number of candidates currently kept.
func (q *TopKQueue) Len() int {
	return len(q.heap)
}

// Full reports whether the queue holds K candidates.
func (q *TopKQueue) Full() bool {
	return len(q.heap) == q.capacity
}

// IntoSortedDescending consumes the queue and returns its candidates
// ordered by score descending. The order among equal scores is
// unspecified. The queue is empty afterwards.
func (q *TopKQueue) IntoSortedDescending() []ScoredCandidate {
	out := make([]ScoredCandidate, len(q.heap))
	// Popping a min-heap yields ascending scores; fill the slice back to
	// front to get descending order without a second sort.
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&q.heap).(ScoredCandidate)
	}
	return out
}
