// Package landmark provides the hand landmark types and pose math for the
// Soletra fingerspelling recognition engine.
package landmark

import (
	"errors"
	"fmt"
	"math"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// FeatureDim is the length of a flattened landmark feature vector
// (21 points x 3 coordinates).
const FeatureDim = NumLandmarks * 3

// ErrLandmarkCount is returned when an input does not contain exactly 21 points.
var ErrLandmarkCount = errors.New("landmarks must contain exactly 21 points")

// Point represents a 3D point in camera-normalized coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Set is one hand pose: exactly 21 ordered landmark points.
// The fixed-size array makes the 21-point invariant a property of the type;
// anything arriving from the outside goes through FromSlice first.
type Set [NumLandmarks]Point

// FromSlice validates that points has exactly 21 entries and converts it
// into a Set. Any other length is a hard validation failure.
func FromSlice(points []Point) (Set, error) {
	var s Set
	if len(points) != NumLandmarks {
		return s, fmt.Errorf("%w: got %d", ErrLandmarkCount, len(points))
	}
	copy(s[:], points)
	return s, nil
}

// Slice returns the points as a freshly allocated slice.
func (s Set) Slice() []Point {
	out := make([]Point, NumLandmarks)
	copy(out, s[:])
	return out
}

// Flatten returns the 63-value feature vector (x0,y0,z0,x1,...) used by the
// per-letter classifiers.
func (s Set) Flatten() []float64 {
	features := make([]float64, 0, FeatureDim)
	for i := 0; i < NumLandmarks; i++ {
		features = append(features, s[i].X, s[i].Y, s[i].Z)
	}
	return features
}

// distance3D calculates the Euclidean distance between two 3D points.
func distance3D(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// distance2D calculates the Euclidean distance between two points ignoring depth.
func distance2D(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// scaleEpsilon is the minimum middle-fingertip distance required before the
// Normalizer divides by it. Below this the hand is degenerate and scaling
// would blow up the coordinates.
const scaleEpsilon = 0.01

// Normalizer translates (and optionally rescales) a Set into the canonical
// comparison frame. The similarity scorer and the classifier feature
// extractor must share one Normalizer: comparing poses normalized
// differently is meaningless.
type Normalizer struct {
	// ScaleInvariant additionally rescales the pose by the wrist to
	// middle-fingertip distance, making the frame independent of how far
	// the hand is from the camera.
	ScaleInvariant bool
}

// Apply returns the pose in the canonical frame: the wrist at the origin,
// and, when ScaleInvariant is set, the middle fingertip at unit distance.
// Apply is idempotent.
func (n Normalizer) Apply(s Set) Set {
	var out Set

	wrist := s[Wrist]
	for i := 0; i < NumLandmarks; i++ {
		out[i] = Point{
			X: s[i].X - wrist.X,
			Y: s[i].Y - wrist.Y,
			Z: s[i].Z - wrist.Z,
		}
	}

	if !n.ScaleInvariant {
		return out
	}

	scale := distance3D(Point{}, out[MiddleTip])
	if scale <= scaleEpsilon {
		return out
	}

	for i := 0; i < NumLandmarks; i++ {
		out[i].X /= scale
		out[i].Y /= scale
		out[i].Z /= scale
	}

	return out
}
