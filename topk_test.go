package ember

import (
	"math"
	"testing"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TOP-K QUEUE TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestTopKQueue_ZeroCapacityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewTopKQueue(0) did not panic")
		}
	}()
	NewTopKQueue(0)
}

func TestTopKQueue_FillsToCapacity(t *testing.T) {
	q := NewTopKQueue(3)

	for i, score := range []float32{5.0, 1.0, 3.0} {
		if _, rejected := q.Push(ScoredCandidate{Score: score, ID: RecordID(i)}); rejected {
			t.Errorf("Push(%v) rejected while queue below capacity", score)
		}
	}

	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}
	top, ok := q.Top()
	if !ok || top.Score != 1.0 {
		t.Errorf("Top() = (%v, %v), want score 1.0", top, ok)
	}
}

func TestTopKQueue_EvictsMinimum(t *testing.T) {
	q := NewTopKQueue(2)
	q.Push(ScoredCandidate{Score: 10.0, ID: 1})
	q.Push(ScoredCandidate{Score: 20.0, ID: 2})

	// 15 beats the current minimum (10): 10 is evicted.
	out, evicted := q.Push(ScoredCandidate{Score: 15.0, ID: 3})
	if !evicted || out.Score != 10.0 {
		t.Errorf("Push(15) returned (%v, %v), want evicted score 10", out, evicted)
	}

	// 5 does not beat the new minimum (15): 5 itself bounces.
	out, evicted = q.Push(ScoredCandidate{Score: 5.0, ID: 4})
	if !evicted || out.Score != 5.0 {
		t.Errorf("Push(5) returned (%v, %v), want rejected score 5", out, evicted)
	}

	top, _ := q.Top()
	if top.Score != 15.0 {
		t.Errorf("Top() score = %v, want 15", top.Score)
	}
}

func TestTopKQueue_IntoSortedDescending(t *testing.T) {
	q := NewTopKQueue(4)
	for i, score := range []float32{3.0, 9.0, 1.0, 7.0, 5.0, 8.0} {
		q.Push(ScoredCandidate{Score: score, ID: RecordID(i)})
	}

	got := q.IntoSortedDescending()
	want := []float32{9.0, 8.0, 7.0, 5.0}
	if len(got) != len(want) {
		t.Fatalf("result length = %d, want %d", len(got), len(want))
	}
	for i, c := range got {
		if c.Score != want[i] {
			t.Errorf("result[%d].Score = %v, want %v", i, c.Score, want[i])
		}
	}

	if q.Len() != 0 {
		t.Errorf("queue not consumed: Len() = %d", q.Len())
	}
}

func TestTopKQueue_FewerThanK(t *testing.T) {
	q := NewTopKQueue(10)
	q.Push(ScoredCandidate{Score: 2.0, ID: 1})
	q.Push(ScoredCandidate{Score: 4.0, ID: 2})

	got := q.IntoSortedDescending()
	if len(got) != 2 {
		t.Fatalf("result length = %d, want 2", len(got))
	}
	if got[0].Score != 4.0 || got[1].Score != 2.0 {
		t.Errorf("results = %v, want descending [4, 2]", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// FLOAT ORDERING TESTS
// ═══════════════════════════════════════════════════════════════════════════════
// Ingest rejects NaN, but the comparator must still define a total order:
// NaN sits below everything, including negative infinity.

func TestScoreLess_TotalOrder(t *testing.T) {
	nan := float32(math.NaN())
	negInf := float32(math.Inf(-1))

	if !scoreLess(nan, negInf) {
		t.Error("scoreLess(NaN, -Inf) = false, want true")
	}
	if scoreLess(negInf, nan) {
		t.Error("scoreLess(-Inf, NaN) = true, want false")
	}
	if scoreLess(nan, nan) {
		t.Error("scoreLess(NaN, NaN) = true, want false")
	}
	if !scoreLess(1.0, 2.0) {
		t.Error("scoreLess(1, 2) = false, want true")
	}
	if scoreLess(2.0, 2.0) {
		t.Error("scoreLess(2, 2) = true, want false")
	}
}
