package ember

import (
	"fmt"
	"sort"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSTING LISTS
// ═══════════════════════════════════════════════════════════════════════════════
// A posting list answers, for one dimension, "which records touch this
// dimension and with what weight?" - ordered by record id:
//
//	dimension 17 → [(rec 1, 0.5), (rec 4, 2.0), (rec 9, 0.1)]
//
// Each element additionally carries MaxNextWeight: the largest weight among
// the elements AFTER it in the list (negative infinity for the last one).
//
//	id:             1     4     9
//	weight:        0.5   2.0   0.1
//	maxNext:       2.0   0.1   -∞
//
// WHY PRECOMPUTE MAX-NEXT-WEIGHT?
// -------------------------------
// During a search, the iterator sits at some element of this list. The best
// score contribution the REST of the list can ever make is
//
//	max(current.Weight, current.MaxNextWeight) * queryWeight
//
// If that upper bound cannot reach the current top-k admission threshold,
// whole stretches of the list are skipped without being scored. The suffix
// maximum is one number per element, computed once at build time, and it is
// the entire basis of the pruning step in search.go.
// ═══════════════════════════════════════════════════════════════════════════════

// PostingElement is one entry of a posting list.
type PostingElement struct {
	ID            RecordID
	Weight        float32
	MaxNextWeight float32
}

// PostingList is a sequence of posting elements sorted strictly ascending
// by record id. Build one with PostingBuilder; never mutate one after.
type PostingList struct {
	Elements []PostingElement
}

// PostingRecord is an unordered (record id, weight) input pair for the
// builder.
type PostingRecord struct {
	ID     RecordID
	Weight float32
}

// PostingListFromRecords builds a posting list from unordered
// (record id, weight) pairs. Convenience for tests and small indexes.
func PostingListFromRecords(records []PostingRecord) PostingList {
	b := NewPostingBuilder()
	for _, r := range records {
		b.Add(r.ID, r.Weight)
	}
	return b.Build()
}

// Len returns the number of elements.
func (p PostingList) Len() int { return len(p.Elements) }

// At returns the element at offset i.
func (p PostingList) At(i int) PostingElement { return p.Elements[i] }

// postingData is the read surface an iterator walks: a random-access,
// id-sorted element sequence. PostingList implements it over a slice;
// the mmap index implements it directly over a mapped byte range, so
// query-time traversal never copies the file contents.
type postingData interface {
	Len() int
	At(i int) PostingElement
}

// ═══════════════════════════════════════════════════════════════════════════════
// POSTING BUILDER
// ═══════════════════════════════════════════════════════════════════════════════

// PostingBuilder accumulates unordered (id, weight) pairs and freezes them
// into a PostingList. The mutable-staging → frozen-artifact split is
// deliberate: nothing that queries a PostingList can ever observe it
// half-built.
type PostingBuilder struct {
	elements []PostingElement
}

func NewPostingBuilder() *PostingBuilder {
	return &PostingBuilder{}
}

// Add records one (record id, weight) pair. Any order, but each record id
// at most once.
func (b *PostingBuilder) Add(id RecordID, weight float32) {
	b.elements = append(b.elements, PostingElement{
		ID:            id,
		Weight:        weight,
		MaxNextWeight: float32NegInf,
	})
}

// Build sorts the accumulated elements by id and fills in the
// max-next-weight suffix. The builder must not be reused afterwards.
//
// THE SUFFIX PASS:
// ----------------
// Walk right to left carrying the running maximum of weights seen so far;
// each element records the maximum BEFORE its own weight joins it:
//
//	weights:        0.5   2.0   0.1
//	                            maxNext = -∞,  running = 0.1
//	                maxNext = 0.1, running = 2.0
//	maxNext = 2.0, running = 2.0
//
// A duplicate record id within one list is a programmer bug (one record
// contributes one weight per dimension) and panics.
func (b *PostingBuilder) Build() PostingList {
	sort.SliceStable(b.elements, func(i, j int) bool {
		return b.elements[i].ID < b.elements[j].ID
	})

	for i := 1; i < len(b.elements); i++ {
		if b.elements[i].ID == b.elements[i-1].ID {
			panic(fmt.Sprintf("duplicate record id %d in posting list", b.elements[i].ID))
		}
	}

	maxNextWeight := float32NegInf
	for i := len(b.elements) - 1; i >= 0; i-- {
		b.elements[i].MaxNextWeight = maxNextWeight
		if b.elements[i].Weight > maxNextWeight {
			maxNextWeight = b.elements[i].Weight
		}
	}

	return PostingList{Elements: b.elements}
}

// ═══════════════════════════════════════════════════════════════════════════════
// POSTING ITERATOR
// ═══════════════════════════════════════════════════════════════════════════════
// A cursor over one posting list. The search context holds one iterator per
// query dimension and walks them in lockstep by record id. The operations
// mirror a merge cursor:
//
//	Peek         look at the current element without moving
//	Advance      return the current element, then move one forward
//	SkipTo(id)   jump forward to id (binary search in the remainder)
//	SkipToEnd    exhaust the cursor
//	RemainingLen how many elements are left
//
// The iterator borrows its data; it never copies or mutates it. Copying the
// iterator value forks the cursor, which is occasionally useful in tests.
// ═══════════════════════════════════════════════════════════════════════════════

// PostingIterator is a cursor over an id-sorted posting sequence.
type PostingIterator struct {
	data   postingData
	cursor int
}

// NewPostingIterator starts a cursor at the first element of data.
func NewPostingIterator(data postingData) *PostingIterator {
	return &PostingIterator{data: data}
}

// Peek returns the element under the cursor, or false when the cursor is
// past the end.
func (it *PostingIterator) Peek() (PostingElement, bool) {
	if it.cursor >= it.data.Len() {
		return PostingElement{}, false
	}
	return it.data.At(it.cursor), true
}

// Advance returns the element under the cursor and moves one forward.
// Returns false when already exhausted.
func (it *PostingIterator) Advance() (PostingElement, bool) {
	if it.cursor >= it.data.Len() {
		return PostingElement{}, false
	}
	element := it.data.At(it.cursor)
	it.cursor++
	return element, true
}

// RemainingLen returns how many elements the cursor has not yet consumed.
func (it *PostingIterator) RemainingLen() int {
	return it.data.Len() - it.cursor
}

// SkipTo jumps the cursor forward to the element with the given record id.
//
// TWO OUTCOMES:
// -------------
// Found:     cursor lands ON the element, which is returned with true.
// Not found: cursor lands on the first element with a LARGER id (possibly
//            the end) and false is returned.
//
// Either way the cursor never moves backwards. Binary search over the
// remainder, so a skip across a long stretch costs O(log n), which is what
// makes pruning cheaper than scoring.
func (it *PostingIterator) SkipTo(id RecordID) (PostingElement, bool) {
	n := it.data.Len()
	if it.cursor >= n {
		return PostingElement{}, false
	}

	// First offset in the remainder whose id is >= the target.
	offset := sort.Search(n-it.cursor, func(i int) bool {
		return it.data.At(it.cursor+i).ID >= id
	})
	it.cursor += offset

	if it.cursor < n {
		if element := it.data.At(it.cursor); element.ID == id {
			return element, true
		}
	}
	return PostingElement{}, false
}

// SkipToEnd exhausts the cursor.
func (it *PostingIterator) SkipToEnd() {
	it.cursor = it.data.Len()
}
