package ember

import (
	"testing"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MUTABLE INDEX TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestMutableIndex_Add(t *testing.T) {
	m := NewMutableIndex()
	m.Add(0, mustVector(t, []DimID{1, 7}, []float32{0.5, 1.0}))
	m.Add(1, mustVector(t, []DimID{1}, []float32{2.0}))
	m.Add(2, mustVector(t, []DimID{7, 9}, []float32{0.3, 4.0}))

	if m.DimCount() != 3 {
		t.Errorf("DimCount() = %d, want 3", m.DimCount())
	}

	for _, tc := range []struct {
		dim DimID
		ids []uint32
	}{
		{1, []uint32{0, 1}},
		{7, []uint32{0, 2}},
		{9, []uint32{2}},
	} {
		posting := m.Posting(tc.dim)
		if posting == nil {
			t.Fatalf("Posting(%d) = nil", tc.dim)
		}
		got := posting.ToArray()
		if len(got) != len(tc.ids) {
			t.Fatalf("Posting(%d) = %v, want %v", tc.dim, got, tc.ids)
		}
		for i := range got {
			if got[i] != tc.ids[i] {
				t.Errorf("Posting(%d) = %v, want %v", tc.dim, got, tc.ids)
				break
			}
		}
	}

	if m.Posting(42) != nil {
		t.Error("Posting(42) for untouched dimension is not nil")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// RAM INDEX BUILDER TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestRAMIndexBuilder_DensePadding(t *testing.T) {
	index := NewRAMIndexBuilder().
		Add(2, PostingListFromRecords([]PostingRecord{{ID: 1, Weight: 1.0}})).
		Add(5, PostingListFromRecords([]PostingRecord{{ID: 2, Weight: 2.0}})).
		Build()

	// Table padded to max dim + 1.
	if index.PostingCount() != 6 {
		t.Fatalf("PostingCount() = %d, want 6", index.PostingCount())
	}

	// Untouched dimensions inside the table are empty placeholders.
	for _, dim := range []DimID{0, 1, 3, 4} {
		it := index.Posting(dim)
		if it == nil {
			t.Fatalf("Posting(%d) = nil inside the table", dim)
		}
		if it.RemainingLen() != 0 {
			t.Errorf("placeholder dimension %d has %d elements", dim, it.RemainingLen())
		}
	}

	// Outside the table: absent.
	if index.Posting(6) != nil {
		t.Error("Posting(6) outside the table is not nil")
	}

	if it := index.Posting(2); it != nil {
		if e, ok := it.Peek(); !ok || e.ID != 1 {
			t.Errorf("Posting(2) head = (%v, %v), want id 1", e, ok)
		}
	}
}

func TestRAMIndexBuilder_Empty(t *testing.T) {
	index := NewRAMIndexBuilder().Build()
	if index.PostingCount() != 0 {
		t.Errorf("PostingCount() = %d, want 0", index.PostingCount())
	}
	if index.Posting(0) != nil {
		t.Error("Posting(0) on empty index is not nil")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// MUTABLE → RAM CONVERSION TESTS
// ═══════════════════════════════════════════════════════════════════════════════

// Build completeness, both directions: every stored (record, dim, weight)
// appears exactly once in the index, and every index element points back
// at a stored weight.
func TestBuildRAMIndex_Completeness(t *testing.T) {
	storage := NewStorage()
	vectors := map[RecordID]SparseVector{
		0: mustVector(t, []DimID{1, 3}, []float32{0.5, 1.5}),
		1: mustVector(t, []DimID{1}, []float32{2.0}),
		2: mustVector(t, []DimID{3, 4}, []float32{0.1, 9.0}),
	}
	for id, v := range vectors {
		storage.Add(id, v)
	}

	index := BuildRAMIndex(storage.MutableIndex(), storage)

	// Forward: every stored triple is present exactly once.
	for id, v := range vectors {
		for i, dim := range v.Indices {
			it := index.Posting(dim)
			if it == nil {
				t.Fatalf("dimension %d missing from index", dim)
			}
			matches := 0
			for {
				e, ok := it.Advance()
				if !ok {
					break
				}
				if e.ID == id {
					matches++
					if e.Weight != v.Weights[i] {
						t.Errorf("dim %d record %d weight = %v, want %v",
							dim, id, e.Weight, v.Weights[i])
					}
				}
			}
			if matches != 1 {
				t.Errorf("dim %d record %d appears %d times, want 1", dim, id, matches)
			}
		}
	}

	// Backward: every index element corresponds to a stored weight.
	for dim := 0; dim < index.PostingCount(); dim++ {
		it := index.Posting(DimID(dim))
		for {
			e, ok := it.Advance()
			if !ok {
				break
			}
			weight, found := vectors[e.ID].WeightAt(DimID(dim))
			if !found || weight != e.Weight {
				t.Errorf("index element (dim %d, record %d, weight %v) not backed by storage",
					dim, e.ID, e.Weight)
			}
		}
	}
}

// brokenSource returns vectors that do not contain the dimensions the
// mutable index claims they do.
type brokenSource struct{}

func (brokenSource) Vector(id RecordID) SparseVector {
	return SparseVector{}
}

func TestBuildRAMIndex_InconsistentSourcePanics(t *testing.T) {
	m := NewMutableIndex()
	m.Add(0, SparseVector{Indices: []DimID{5}, Weights: []float32{1.0}})

	defer func() {
		if recover() == nil {
			t.Fatal("BuildRAMIndex with inconsistent source did not panic")
		}
	}()
	BuildRAMIndex(m, brokenSource{})
}
