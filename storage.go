package ember

import (
	"fmt"
	"log/slog"

	"github.com/RoaringBitmap/roaring"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STORAGE: The Façade Over Store, Indexes, and Query Paths
// ═══════════════════════════════════════════════════════════════════════════════
// Storage glues the pieces together:
//
//	Storage
//	├── vectors     []*SparseVector   record id → vector (dense, may have holes)
//	├── mutable     *MutableIndex     dim → record-id bitmap, grows with Add
//	└── inverted    *RAMIndex         frozen posting lists, nil until built
//
// LIFECYCLE:
// ----------
//
//	Add, Add, Add, ...  →  BuildInvertedIndex()  →  queries
//
// The build is one-shot: it freezes the corpus, and further Adds are a
// programming error. Before the build, the full-scan and mutable-index
// query paths already work; after it, the inverted-index path joins them.
//
// THREE QUERY PATHS, ONE ANSWER:
// ------------------------------
// QueryFullScan      scores every stored vector. Slow, trivially correct -
//                    the oracle the others are tested against.
// QueryMutableIndex  unions the record-id bitmaps of the query's
//                    dimensions, then scores only those candidates.
// QueryInvertedIndex merged posting-list traversal with pruning
//                    (search.go). The production path.
//
// All three return the same scores up to floating-point tolerance; only
// the order among exactly tied scores may differ.
// ═══════════════════════════════════════════════════════════════════════════════

// Storage owns the sparse vectors and their indexes.
type Storage struct {
	vectors  []*SparseVector
	mutable  *MutableIndex
	inverted *RAMIndex
}

func NewStorage() *Storage {
	return &Storage{
		mutable: NewMutableIndex(),
	}
}

// Add stores a vector under the given record id and indexes its
// dimensions. Ids need not arrive in order or contiguously; the slice
// grows to fit. Reusing a record id, or adding after BuildInvertedIndex,
// is a programmer bug and panics.
func (s *Storage) Add(id RecordID, vector SparseVector) {
	if s.inverted != nil {
		panic("storage is frozen: add after BuildInvertedIndex")
	}
	if int(id) >= len(s.vectors) {
		grown := make([]*SparseVector, int(id)+1)
		copy(grown, s.vectors)
		s.vectors = grown
	}
	if s.vectors[id] != nil {
		panic(fmt.Sprintf("duplicate record id %d", id))
	}

	s.mutable.Add(id, vector)
	s.vectors[id] = &vector
	slog.Debug("stored vector", slog.Int("recordID", int(id)), slog.Int("dims", vector.Len()))
}

// Vector returns the vector stored under id. Asking for an id that was
// never stored is a programmer bug and panics.
func (s *Storage) Vector(id RecordID) SparseVector {
	if int(id) >= len(s.vectors) || s.vectors[id] == nil {
		panic(fmt.Sprintf("no vector stored for record id %d", id))
	}
	return *s.vectors[id]
}

// VectorCount returns the number of stored vectors.
func (s *Storage) VectorCount() int {
	count := 0
	for _, v := range s.vectors {
		if v != nil {
			count++
		}
	}
	return count
}

// MutableIndex exposes the build-time index (tests and stats read it).
func (s *Storage) MutableIndex() *MutableIndex {
	return s.mutable
}

// InvertedIndex returns the frozen index, or nil before the build.
func (s *Storage) InvertedIndex() *RAMIndex {
	return s.inverted
}

// BuildInvertedIndex freezes the corpus into the queryable inverted
// index. One-shot: calling it twice is a programmer bug.
func (s *Storage) BuildInvertedIndex() *RAMIndex {
	if s.inverted != nil {
		panic("inverted index already built")
	}
	s.inverted = BuildRAMIndex(s.mutable, s)
	return s.inverted
}

// ═══════════════════════════════════════════════════════════════════════════════
// QUERY PATHS
// ═══════════════════════════════════════════════════════════════════════════════

// QueryFullScan scores every stored vector against the query and returns
// the top k by score descending. O(corpus); the correctness oracle.
func (s *Storage) QueryFullScan(k int, query SparseVector) []ScoredCandidate {
	results := NewTopKQueue(k)
	for id, vector := range s.vectors {
		if vector == nil {
			continue
		}
		results.Push(ScoredCandidate{
			Score: query.Dot(*vector),
			ID:    RecordID(id),
		})
	}
	return results.IntoSortedDescending()
}

// QueryMutableIndex answers through the build-time index: the union of
// the query dimensions' record-id bitmaps is exactly the set of vectors
// with a non-zero dot product candidate, and the union deduplicates ids
// that share several query dimensions. Each candidate is then scored
// against its stored vector.
func (s *Storage) QueryMutableIndex(k int, query SparseVector) []ScoredCandidate {
	candidates := roaring.NewBitmap()
	for _, dim := range query.Indices {
		if posting := s.mutable.Posting(dim); posting != nil {
			candidates.Or(posting)
		}
	}

	results := NewTopKQueue(k)
	it := candidates.Iterator()
	for it.HasNext() {
		id := RecordID(it.Next())
		results.Push(ScoredCandidate{
			Score: query.Dot(s.Vector(id)),
			ID:    id,
		})
	}
	return results.IntoSortedDescending()
}

// QueryInvertedIndex answers through the frozen index with the merged
// posting-list traversal. BuildInvertedIndex must have run; querying
// before it is a programmer bug.
func (s *Storage) QueryInvertedIndex(k int, query SparseVector) []ScoredCandidate {
	if s.inverted == nil {
		panic("inverted index not built: call BuildInvertedIndex first")
	}
	return NewSearchContext(query, k, s.inverted).Search()
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATISTICS
// ═══════════════════════════════════════════════════════════════════════════════
// Shape summaries for the demo binary and for eyeballing a freshly loaded
// corpus. Zero vectors yield zero-valued stats.

// DataStats summarizes the stored vectors.
type DataStats struct {
	VectorCount int
	MinDim      DimID
	MaxDim      DimID
	MinWeight   float32
	MaxWeight   float32
	MinLen      int
	MaxLen      int
	AvgLen      float64
}

// IndexStats summarizes the mutable index's posting lists.
type IndexStats struct {
	DimCount int

	// Hottest and coldest dimensions by posting-list length.
	MaxPostingDim DimID
	MaxPostingLen int
	MinPostingDim DimID
	MinPostingLen int
}

// DataStats walks the stored vectors once and summarizes their shape.
func (s *Storage) DataStats() DataStats {
	var stats DataStats
	totalLen := 0
	firstVector := true
	firstDim := true

	for _, vector := range s.vectors {
		if vector == nil {
			continue
		}
		length := vector.Len()
		if firstVector {
			stats.MinLen, stats.MaxLen = length, length
			firstVector = false
		}
		if length < stats.MinLen {
			stats.MinLen = length
		}
		if length > stats.MaxLen {
			stats.MaxLen = length
		}
		totalLen += length

		for i, dim := range vector.Indices {
			weight := vector.Weights[i]
			if firstDim {
				stats.MinDim, stats.MaxDim = dim, dim
				stats.MinWeight, stats.MaxWeight = weight, weight
				firstDim = false
			}
			if dim < stats.MinDim {
				stats.MinDim = dim
			}
			if dim > stats.MaxDim {
				stats.MaxDim = dim
			}
			if weight < stats.MinWeight {
				stats.MinWeight = weight
			}
			if weight > stats.MaxWeight {
				stats.MaxWeight = weight
			}
		}
		stats.VectorCount++
	}

	if stats.VectorCount > 0 {
		stats.AvgLen = float64(totalLen) / float64(stats.VectorCount)
	}
	return stats
}

// IndexStats reports the extremes of the mutable index's posting lists.
func (s *Storage) IndexStats() IndexStats {
	stats := IndexStats{DimCount: s.mutable.DimCount()}
	first := true

	for dim, ids := range s.mutable.postings {
		size := int(ids.GetCardinality())
		if first || size > stats.MaxPostingLen {
			stats.MaxPostingDim, stats.MaxPostingLen = dim, size
		}
		if first || size < stats.MinPostingLen {
			stats.MinPostingDim, stats.MinPostingLen = dim, size
		}
		first = false
	}
	return stats
}
