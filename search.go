package ember

import (
	"math"
	"sort"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SEARCH: Term-at-a-Time Merged Traversal
// ═══════════════════════════════════════════════════════════════════════════════
// A query is itself a sparse vector. For each of its dimensions we open a
// cursor on that dimension's posting list, then walk all cursors together
// in record-id order - a k-way merge where every "merge step" produces one
// fully scored candidate:
//
//	query dims:   d1         d2         d3
//	cursors:      1,2,3,9    1,3        2,3,9
//	                ▲          ▲          ▲
//
//	step 1: min id = 1 → score = w(d1,1)*q1 + w(d2,1)*q2      (advance d1, d2)
//	step 2: min id = 2 → score = w(d1,2)*q1 + w(d3,2)*q3      (advance d1, d3)
//	step 3: min id = 3 → all three contribute                  ...
//
// Each candidate goes into the bounded top-k queue. Because candidates
// come out in ascending record-id order and each record is visited exactly
// once, the dot product of query and record is assembled exactly - this
// path returns the same scores as a full scan, it just never touches
// records that share no dimension with the query.
//
// PRUNING:
// --------
// Once the queue is full, its minimum is a threshold every future result
// must beat. The longest cursor dominates the cost of the merge, and its
// precomputed max-next-weight bounds what it could ever add to a score.
// When that bound falls below the threshold, record ids that ONLY the
// longest list would contribute can be skipped wholesale (see
// pruneLongest). On corpora with one hot dimension this is the difference
// between walking 30 000 elements and walking a few hundred.
// ═══════════════════════════════════════════════════════════════════════════════

// indexedPostingIterator pairs a posting cursor with the offset of its
// dimension inside the query, so scoring can find the query weight without
// a map lookup.
type indexedPostingIterator struct {
	iterator          *PostingIterator
	queryWeightOffset int
}

// SearchContext executes one top-k query against an inverted index. It
// owns its cursors and result queue; build a fresh one per query. Contexts
// on the same index are independent, so concurrent queries only need their
// own contexts.
type SearchContext struct {
	iterators []indexedPostingIterator
	query     SparseVector
	results   *TopKQueue

	// pruningDisabled turns pruneLongest into a no-op. Only the
	// pruning-safety tests flip it; the results must not change.
	pruningDisabled bool
}

// NewSearchContext prepares a query for execution. k must be positive.
//
// Query dimensions with no posting list in the index (outside the table,
// or an empty placeholder) are dropped here; a query whose dimensions all
// vanish this way yields an empty result.
func NewSearchContext(query SparseVector, k int, index InvertedIndex) *SearchContext {
	var iterators []indexedPostingIterator
	for offset, dim := range query.Indices {
		it := index.Posting(dim)
		if it == nil || it.RemainingLen() == 0 {
			continue
		}
		iterators = append(iterators, indexedPostingIterator{
			iterator:          it,
			queryWeightOffset: offset,
		})
	}

	// Longest posting list first. Sorted once: the merge loop never
	// re-sorts, so once pruning has shortened the head it may no longer be
	// the longest list, and later pruning steps keep working on it.
	sort.SliceStable(iterators, func(i, j int) bool {
		return iterators[i].iterator.RemainingLen() > iterators[j].iterator.RemainingLen()
	})

	return &SearchContext{
		iterators: iterators,
		query:     query,
		results:   NewTopKQueue(k),
	}
}

// advance produces the next scored candidate in ascending record-id
// order, or false when every cursor is exhausted.
//
// TWO PASSES:
// -----------
// Pass 1 peeks every cursor for the minimum record id still unscored.
// Pass 2 takes the element from every cursor sitting on that id,
// accumulating weight × query-weight, and moves those cursors forward.
// Cursors parked on later ids are left alone - they will contribute when
// the merge reaches them.
func (s *SearchContext) advance() (ScoredCandidate, bool) {
	minID := RecordID(math.MaxUint32)
	found := false
	for i := range s.iterators {
		if element, ok := s.iterators[i].iterator.Peek(); ok {
			found = true
			if element.ID < minID {
				minID = element.ID
			}
		}
	}
	if !found {
		return ScoredCandidate{}, false
	}

	var score float32
	for i := range s.iterators {
		element, ok := s.iterators[i].iterator.Peek()
		if !ok || element.ID != minID {
			continue
		}
		s.iterators[i].iterator.Advance()
		score += element.Weight * s.query.Weights[s.iterators[i].queryWeightOffset]
	}

	return ScoredCandidate{Score: score, ID: minID}, true
}

// Search runs the merge to exhaustion and returns up to k candidates
// ordered by score descending.
func (s *SearchContext) Search() []ScoredCandidate {
	for {
		candidate, ok := s.advance()
		if !ok {
			break
		}
		s.results.Push(candidate)

		// A full queue gives us an admission threshold; try to prune after
		// every candidate from here on, since the threshold only rises.
		if s.results.Full() && !s.pruningDisabled {
			if top, ok := s.results.Top(); ok {
				s.pruneLongest(top.Score)
			}
		}
	}
	return s.results.IntoSortedDescending()
}

// pruneLongest skips the stretch of the longest posting list that cannot
// produce a result above minScore.
//
// THE BOUND:
// ----------
// Let e be the element the head cursor sits on. No element at or after the
// cursor weighs more than max(e.Weight, e.MaxNextWeight), so the head
// list's score contribution is bounded by
//
//	max(e.Weight, e.MaxNextWeight) * queryWeight
//
// If that bound reaches minScore, nothing can be skipped - the list alone
// might still produce an admissible candidate anywhere in its remainder.
//
// THE SKIP:
// ---------
// Otherwise the head list cannot lift any candidate over the threshold by
// itself. At record ids no OTHER cursor will produce, the head is the sole
// contributor and the score stays below threshold - so the head may jump
// directly to the earliest id any other cursor still holds. Elements at or
// after that id remain: they may combine with other lists into an
// admissible score. With no other live cursor there is nothing left to
// combine with and the head is exhausted outright.
//
// The skip target is the minimum peek id across ALL other cursors, not
// just the second-longest one: a shorter list parked on an earlier id
// still needs the head's contribution at that id.
func (s *SearchContext) pruneLongest(minScore float32) {
	if len(s.iterators) == 0 {
		return
	}
	head := &s.iterators[0]
	element, ok := head.iterator.Peek()
	if !ok {
		return
	}

	maxWeight := element.Weight
	if element.MaxNextWeight > maxWeight {
		maxWeight = element.MaxNextWeight
	}
	contribution := maxWeight * s.query.Weights[head.queryWeightOffset]
	if !scoreLess(contribution, minScore) {
		return
	}

	skipTarget := RecordID(math.MaxUint32)
	foundTarget := false
	for i := 1; i < len(s.iterators); i++ {
		if next, ok := s.iterators[i].iterator.Peek(); ok && next.ID < skipTarget {
			skipTarget = next.ID
			foundTarget = true
		}
	}
	if !foundTarget {
		head.iterator.SkipToEnd()
		return
	}
	head.iterator.SkipTo(skipTarget)
}
