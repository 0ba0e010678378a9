package utils

import (
	"cmp"
	"math"
	"slices"
)

// CosineSimilarity of two equal-length vectors, accumulated in float64.
// Mismatched, empty and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var ab, aa, bb float64
	for i, x := range a {
		y := float64(b[i])
		ab += float64(x) * y
		aa += float64(x) * float64(x)
		bb += y * y
	}
	if aa == 0 || bb == 0 {
		return 0
	}
	return ab / math.Sqrt(aa*bb)
}

// ScoredItem pairs a value with its rank score.
type ScoredItem[T any] struct {
	Item  T
	Score float64
}

// TopKByScore returns a copy of items sorted by descending score, ties kept
// in input order, cut to k. k <= 0 keeps everything.
func TopKByScore[T any](items []ScoredItem[T], k int) []ScoredItem[T] {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(x, y ScoredItem[T]) int {
		return cmp.Compare(y.Score, x.Score)
	})
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}
