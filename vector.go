// Package ember implements top-k similarity search over sparse vectors.
//
// ═══════════════════════════════════════════════════════════════════════════════
// WHAT IS A SPARSE VECTOR?
// ═══════════════════════════════════════════════════════════════════════════════
// A sparse vector lives in a space with tens of thousands of dimensions, but
// only a handful of them (order 10-200) carry a non-zero weight. Instead of
// storing every dimension, we store two parallel lists:
//
//	Indices: [3, 17, 4802]      ← which dimensions are populated
//	Weights: [0.5, 1.2, 0.07]   ← the weight at each of those dimensions
//
// This is the natural shape for learned sparse representations (expanded
// lexical embeddings from a language model): each dimension is a vocabulary
// position, each weight is how strongly the record activates it.
//
// Similarity between two sparse vectors is their dot product - the sum of
// weight products over the dimensions they share:
//
//	a = {3: 0.5, 17: 1.2}
//	b = {17: 2.0, 99: 0.3}
//	a · b = 1.2 * 2.0 = 2.4   (only dimension 17 is shared)
//
// ═══════════════════════════════════════════════════════════════════════════════
package ember

import (
	"errors"
	"math"
)

// Sentinel weights. Negative infinity plays the same role the skip-list
// style sentinels play in ordered structures: it compares below every real
// weight, so "no element after this one" needs no special case.
var (
	float32Inf    = float32(math.Inf(1))
	float32NegInf = float32(math.Inf(-1))
)

// DimID names one dimension of the sparse space.
type DimID uint32

// RecordID identifies one corpus vector.
type RecordID uint32

var (
	ErrLengthMismatch  = errors.New("indices and weights have different lengths")
	ErrIndicesNotAsc   = errors.New("indices are not strictly ascending")
	ErrNonFiniteWeight = errors.New("weight is not a finite number")
)

// SparseVector is a pair of equal-length sequences: strictly ascending
// dimension ids and the weight at each of them. Constructed at ingest,
// immutable afterwards.
type SparseVector struct {
	Indices []DimID
	Weights []float32
}

// NewSparseVector validates the (indices, weights) pair and wraps it.
//
// VALIDATION RULES:
// -----------------
// 1. len(indices) == len(weights)
// 2. indices strictly ascending (sorted, no duplicates)
// 3. every weight finite (no NaN, no ±Inf)
//
// Rule 3 is what lets the rest of the engine treat scores as ordinary
// ordered floats: a NaN weight admitted here would poison every dot
// product it touches.
func NewSparseVector(indices []DimID, weights []float32) (SparseVector, error) {
	if len(indices) != len(weights) {
		return SparseVector{}, ErrLengthMismatch
	}
	for i := 1; i < len(indices); i++ {
		if indices[i-1] >= indices[i] {
			return SparseVector{}, ErrIndicesNotAsc
		}
	}
	for _, w := range weights {
		if !isFinite(w) {
			return SparseVector{}, ErrNonFiniteWeight
		}
	}
	return SparseVector{Indices: indices, Weights: weights}, nil
}

// Len returns the number of populated dimensions.
func (v SparseVector) Len() int {
	return len(v.Indices)
}

// Dot computes the dot product of two sparse vectors.
//
// THE MERGE WALK:
// ---------------
// Both index lists are ascending, so we can walk them like a merge sort:
//
//	i → a.Indices: [1,  2,      5]
//	j → b.Indices: [1,      3,  5]
//
//	a[i] <  b[j]: only a touches this dimension, advance i
//	a[i] >  b[j]: only b touches this dimension, advance j
//	a[i] == b[j]: shared dimension, accumulate the product, advance both
//
// Stops when either cursor exhausts. O(|a|+|b|), no allocation.
func (v SparseVector) Dot(other SparseVector) float32 {
	var result float32
	i, j := 0, 0
	for i < len(v.Indices) && j < len(other.Indices) {
		switch {
		case v.Indices[i] < other.Indices[j]:
			i++
		case v.Indices[i] > other.Indices[j]:
			j++
		default:
			result += v.Weights[i] * other.Weights[j]
			i++
			j++
		}
	}
	return result
}

// WeightAt returns the weight at the given dimension, or false when the
// vector does not populate it. Binary search over the ascending indices.
func (v SparseVector) WeightAt(dim DimID) (float32, bool) {
	lo, hi := 0, len(v.Indices)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case v.Indices[mid] < dim:
			lo = mid + 1
		case v.Indices[mid] > dim:
			hi = mid
		default:
			return v.Weights[mid], true
		}
	}
	return 0, false
}

// isFinite reports whether w is an ordinary number (not NaN, not ±Inf).
// Written against float32 directly so no float64 round trip is involved.
func isFinite(w float32) bool {
	return w == w && w < float32Inf && w > -float32Inf
}
