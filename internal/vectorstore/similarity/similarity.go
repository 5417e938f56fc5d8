// Package similarity holds the exact cosine ranking shared by the in-process
// and on-disk stores.
package similarity

import (
	"math"
	"sort"
)

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector. Vectors of different length are compared over the shorter prefix.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK returns the indexes of the k highest scores, best first. Equal scores
// keep their original order.
func TopK(scores []float64, k int) []int {
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(i, j int) bool { return scores[idxs[i]] > scores[idxs[j]] })
	if k < 0 {
		k = 0
	}
	if k < len(idxs) {
		idxs = idxs[:k]
	}
	return idxs
}
