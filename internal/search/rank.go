package search

import (
	"fmt"
	"math"
	"sort"

	"github.com/nickcecere/docqa/internal/store"
)

// ErrDimensionMismatch is returned when a candidate vector's length differs
// from the query's.
var ErrDimensionMismatch = store.ErrDimensionMismatch

// Scored pairs an item with its similarity to the query.
type Scored[T any] struct {
	Item  T
	Score float64
}

// CosineSimilarity returns the cosine of the angle between a and b. Vectors
// of different length, or with zero magnitude, score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank scores items against query and returns at most topK of them, best
// first. Equal scores keep their input order. A non-positive topK returns
// every item.
func Rank[T any](query []float32, items []T, vector func(T) []float32, topK int) ([]Scored[T], error) {
	scored := make([]Scored[T], 0, len(items))
	for i, item := range items {
		v := vector(item)
		if len(v) != len(query) {
			return nil, fmt.Errorf("%w: candidate %d has %d dimensions, query has %d", ErrDimensionMismatch, i, len(v), len(query))
		}
		scored = append(scored, Scored[T]{Item: item, Score: CosineSimilarity(query, v)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}
