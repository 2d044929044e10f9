package store

import "math"

// CosineDistance returns 1 - cosine similarity of two templates: 0 for
// identical direction, 2 for opposite. Mismatched lengths, empty input and
// zero vectors all map to the maximum distance 2 so callers never rank them
// as similar.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 2.0
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Rounding can push the ratio just past +/-1.
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}
