package landmark

import "math"

// Similarity scoring constants, calibrated for wrist-centered
// camera-normalized coordinates.
const (
	// MaxDistance is the weighted mean distance mapped to similarity 0.
	MaxDistance = 0.15
	// depth from a single camera is noisy, so the 2D projection dominates
	// the blended per-point distance.
	blend2D = 0.8
	blend3D = 0.2
	// sigmoidGain controls how hard the sharpening transform spreads
	// mid-range scores apart.
	sigmoidGain = 10.0
)

// jointWeights gives each landmark its influence on the similarity score.
// Fingertips carry the most shape information, followed by the wrist and
// the finger-base knuckles; intermediate joints are weighted by how close
// they sit to a fingertip.
var jointWeights = [NumLandmarks]float64{
	Wrist:     1.5,
	ThumbCMC:  1.0,
	ThumbMCP:  1.1,
	ThumbIP:   1.3,
	ThumbTip:  2.0,
	IndexMCP:  1.5,
	IndexPIP:  1.1,
	IndexDIP:  1.3,
	IndexTip:  2.0,
	MiddleMCP: 1.5,
	MiddlePIP: 1.1,
	MiddleDIP: 1.3,
	MiddleTip: 2.0,
	RingMCP:   1.5,
	RingPIP:   1.1,
	RingDIP:   1.3,
	RingTip:   2.0,
	PinkyMCP:  1.5,
	PinkyPIP:  1.1,
	PinkyDIP:  1.3,
	PinkyTip:  2.0,
}

// Similarity computes the weighted similarity between two normalized poses,
// in [0,1] with 1.0 meaning identical. Both inputs must already be in the
// Normalizer's canonical frame.
//
// Per point, the 2D and 3D Euclidean distances are blended (depth
// de-emphasized), weighted by joint importance and averaged. The averaged
// distance maps linearly to a raw similarity against MaxDistance, then a
// logistic transform spreads mid-range scores apart so the fusion
// thresholds stay meaningful.
func Similarity(a, b Set) float64 {
	var weightedSum, weightTotal float64

	for i := 0; i < NumLandmarks; i++ {
		combined := blend2D*distance2D(a[i], b[i]) + blend3D*distance3D(a[i], b[i])
		weightedSum += jointWeights[i] * combined
		weightTotal += jointWeights[i]
	}

	meanDistance := weightedSum / weightTotal

	raw := 1.0 - meanDistance/MaxDistance
	if raw < 0 {
		raw = 0
	}

	enhanced := 1.0 / (1.0 + math.Exp(-sigmoidGain*(raw-0.5)))
	return clamp01(enhanced)
}

// SimilaritySlices is the boundary-tolerant variant used where landmark
// counts cannot be guaranteed by the type system (for example records read
// back from persistence). A malformed input scores 0.0 rather than failing.
func SimilaritySlices(a, b []Point) float64 {
	setA, err := FromSlice(a)
	if err != nil {
		return 0.0
	}
	setB, err := FromSlice(b)
	if err != nil {
		return 0.0
	}
	return Similarity(setA, setB)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
