package faceauth

import "math"

// MaxDistance is the L2 distance that maps to similarity 0. Descriptors are expected to be
// unit-normalized; for other inputs the scale is meaningless. This is the only
// normalization used anywhere in the code base.
const MaxDistance = math.Sqrt2

// Distance returns the Euclidean distance between a and b, or +Inf if either is not
// DescriptorSize long.
func Distance(a, b Descriptor) float64 {
	if len(a) != DescriptorSize || len(b) != DescriptorSize {
		return math.Inf(1)
	}
	var sum float64
	for i := range DescriptorSize {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// ComputeSimilarity maps the distance between a and b to [0, 1]:
//
//	similarity = clamp(1 - distance/MaxDistance, 0, 1)
//
// Inputs that are not DescriptorSize long score 0.
func ComputeSimilarity(a, b Descriptor) float64 {
	distance := Distance(a, b)
	if math.IsInf(distance, 1) {
		return 0
	}

	similarity := 1 - distance/MaxDistance
	if math.IsNaN(similarity) {
		return 0
	}
	return min(1, max(0, similarity))
}
