// Inverted indexes over sparse vectors.
//
// ═══════════════════════════════════════════════════════════════════════════════
// WHAT IS AN INVERTED INDEX HERE?
// ═══════════════════════════════════════════════════════════════════════════════
// Exactly the classic search-engine structure, with dimensions in place of
// terms. Given these vectors:
//
//	Record 0: {dim 1: 0.5, dim 7: 1.0}
//	Record 1: {dim 1: 2.0}
//	Record 2: {dim 7: 0.3, dim 9: 4.0}
//
// the inverted index is:
//
//	dim 1 → [(0, 0.5), (1, 2.0)]
//	dim 7 → [(0, 1.0), (2, 0.3)]
//	dim 9 → [(2, 4.0)]
//
// A query only has to walk the posting lists of ITS dimensions instead of
// scanning the whole corpus.
//
// TWO STAGES, TWO STRUCTURES:
// ---------------------------
// MutableIndex  - build time. dim → bitmap of record ids, grows with every
//                 Add. Holds no weights, so it cannot score; it drives the
//                 conversion below and doubles as a correctness oracle.
// RAMIndex      - query time. dim → frozen PostingList with weights and
//                 pruning metadata, built once from the mutable index plus
//                 the vector store. Never mutated again.
//
// (A third realization, the mmap-backed MmapIndex, lives in
// serialization.go and shares the lookup surface defined here.)
// ═══════════════════════════════════════════════════════════════════════════════

package ember

import (
	"fmt"
	"log/slog"

	"github.com/RoaringBitmap/roaring"
)

// InvertedIndex is a dimension-keyed lookup returning a posting-list
// cursor. Implemented by RAMIndex and MmapIndex.
type InvertedIndex interface {
	// Posting returns a fresh iterator over the dimension's posting list,
	// or nil when the dimension is outside the index's table. Dimensions
	// inside the table with no records yield an empty (immediately
	// exhausted) iterator.
	Posting(dim DimID) *PostingIterator
}

// ═══════════════════════════════════════════════════════════════════════════════
// MUTABLE INDEX (build-time staging)
// ═══════════════════════════════════════════════════════════════════════════════

// MutableIndex maps each dimension to the set of record ids whose vectors
// touch it. Record ids per dimension are kept in a roaring bitmap: ids are
// dense small integers, membership is the only build-time question, and
// bitmap union is the dedup step of the mutable-index query path for free.
type MutableIndex struct {
	postings map[DimID]*roaring.Bitmap
}

func NewMutableIndex() *MutableIndex {
	return &MutableIndex{
		postings: make(map[DimID]*roaring.Bitmap),
	}
}

// Add records that every populated dimension of the vector is touched by
// this record id.
func (m *MutableIndex) Add(id RecordID, vector SparseVector) {
	for _, dim := range vector.Indices {
		bitmap := m.postings[dim]
		if bitmap == nil {
			bitmap = roaring.NewBitmap()
			m.postings[dim] = bitmap
		}
		bitmap.Add(uint32(id))
	}
}

// Posting returns the record-id set for a dimension, or nil when no record
// touches it. Callers must not mutate the returned bitmap.
func (m *MutableIndex) Posting(dim DimID) *roaring.Bitmap {
	return m.postings[dim]
}

// DimCount returns how many dimensions have at least one record.
func (m *MutableIndex) DimCount() int {
	return len(m.postings)
}

// ═══════════════════════════════════════════════════════════════════════════════
// RAM INVERTED INDEX (query-time, frozen)
// ═══════════════════════════════════════════════════════════════════════════════

// RAMIndex is a dense vector of posting lists indexed directly by
// dimension id. Absent dimensions hold empty placeholder lists, so lookup
// is a single slice access - the memory cost of the padding is acceptable
// for a vocabulary of tens of thousands of dimensions.
type RAMIndex struct {
	postings []PostingList
}

// Posting implements InvertedIndex.
func (x *RAMIndex) Posting(dim DimID) *PostingIterator {
	if int(dim) >= len(x.postings) {
		return nil
	}
	return NewPostingIterator(x.postings[dim])
}

// PostingCount returns the size of the dimension table (max dim id + 1),
// placeholders included.
func (x *RAMIndex) PostingCount() int {
	return len(x.postings)
}

// postingListAt exposes the raw list for serialization and tests.
func (x *RAMIndex) postingListAt(dim DimID) PostingList {
	return x.postings[dim]
}

// RAMIndexBuilder collects finished posting lists per dimension and
// freezes them into a RAMIndex. Consume-once: Build hands its storage to
// the index.
type RAMIndexBuilder struct {
	postings map[DimID]PostingList
}

func NewRAMIndexBuilder() *RAMIndexBuilder {
	return &RAMIndexBuilder{
		postings: make(map[DimID]PostingList),
	}
}

// Add sets the posting list for a dimension, replacing any previous one.
func (b *RAMIndexBuilder) Add(dim DimID, posting PostingList) *RAMIndexBuilder {
	b.postings[dim] = posting
	return b
}

// Build lays the collected posting lists out densely: the slice index IS
// the dimension id, and dimensions nobody added get the empty placeholder.
// Final size is max dim id + 1 (zero for an empty builder).
func (b *RAMIndexBuilder) Build() *RAMIndex {
	var maxDim DimID
	for dim := range b.postings {
		if dim > maxDim {
			maxDim = dim
		}
	}

	var postings []PostingList
	if len(b.postings) > 0 {
		postings = make([]PostingList, maxDim+1)
		for dim, posting := range b.postings {
			postings[dim] = posting
		}
	}
	b.postings = nil

	return &RAMIndex{postings: postings}
}

// VectorSource resolves a record id to its stored vector. Implemented by
// Storage; the index conversion below needs nothing else from it.
type VectorSource interface {
	Vector(id RecordID) SparseVector
}

// BuildRAMIndex converts the mutable staging index into the frozen
// queryable one.
//
// The mutable index knows WHICH records touch each dimension but not with
// what weight - recording weights twice at add time would double the write
// path for data the store already holds. So the conversion walks each
// dimension's record ids, loads the vector, and recovers the weight from
// it:
//
//	for each dimension d:
//	    for each record id in mutable posting of d:
//	        weight = store.Vector(id) at dimension d
//	        posting builder ← (id, weight)
//
// A record id listed under a dimension its vector does not actually
// populate means the two structures were updated inconsistently - a
// programmer bug, reported by panic.
func BuildRAMIndex(mutable *MutableIndex, source VectorSource) *RAMIndex {
	builder := NewRAMIndexBuilder()

	for dim, ids := range mutable.postings {
		posting := NewPostingBuilder()
		it := ids.Iterator()
		for it.HasNext() {
			id := RecordID(it.Next())
			weight, ok := source.Vector(id).WeightAt(dim)
			if !ok {
				panic(fmt.Sprintf(
					"record %d is indexed under dimension %d but its vector does not contain it",
					id, dim))
			}
			posting.Add(id, weight)
		}
		builder.Add(dim, posting.Build())
	}

	index := builder.Build()
	slog.Info("built inverted index",
		slog.Int("dimensions", mutable.DimCount()),
		slog.Int("postingCount", index.PostingCount()))
	return index
}
