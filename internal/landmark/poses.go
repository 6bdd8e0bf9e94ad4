package landmark

// Preset hand poses in camera-normalized coordinates. They approximate the
// fingerspelled letters A (closed fist, thumb alongside), B (open palm,
// fingers together) and D (index extended, others curled) and are used by
// tests and demo tooling that need distinguishable reference gestures
// without a camera.

// FistPose returns a closed fist with the thumb resting against the side.
func FistPose() Set {
	var s Set

	s[Wrist] = Point{X: 0.50, Y: 0.80, Z: 0.0}

	// Thumb alongside the curled fingers
	s[ThumbCMC] = Point{X: 0.55, Y: 0.76, Z: 0.01}
	s[ThumbMCP] = Point{X: 0.58, Y: 0.72, Z: 0.01}
	s[ThumbIP] = Point{X: 0.59, Y: 0.68, Z: 0.0}
	s[ThumbTip] = Point{X: 0.59, Y: 0.64, Z: 0.0}

	// Index curled into the palm
	s[IndexMCP] = Point{X: 0.55, Y: 0.68, Z: -0.02}
	s[IndexPIP] = Point{X: 0.55, Y: 0.64, Z: -0.05}
	s[IndexDIP] = Point{X: 0.53, Y: 0.67, Z: -0.05}
	s[IndexTip] = Point{X: 0.52, Y: 0.70, Z: -0.03}

	// Middle curled
	s[MiddleMCP] = Point{X: 0.50, Y: 0.67, Z: -0.02}
	s[MiddlePIP] = Point{X: 0.50, Y: 0.63, Z: -0.05}
	s[MiddleDIP] = Point{X: 0.48, Y: 0.66, Z: -0.05}
	s[MiddleTip] = Point{X: 0.47, Y: 0.70, Z: -0.03}

	// Ring curled
	s[RingMCP] = Point{X: 0.45, Y: 0.68, Z: -0.02}
	s[RingPIP] = Point{X: 0.45, Y: 0.64, Z: -0.05}
	s[RingDIP] = Point{X: 0.43, Y: 0.67, Z: -0.05}
	s[RingTip] = Point{X: 0.42, Y: 0.70, Z: -0.03}

	// Pinky curled
	s[PinkyMCP] = Point{X: 0.40, Y: 0.70, Z: -0.02}
	s[PinkyPIP] = Point{X: 0.40, Y: 0.67, Z: -0.04}
	s[PinkyDIP] = Point{X: 0.38, Y: 0.69, Z: -0.04}
	s[PinkyTip] = Point{X: 0.37, Y: 0.72, Z: -0.03}

	return s
}

// OpenPalmPose returns an open palm with all fingers extended upward.
func OpenPalmPose() Set {
	var s Set

	s[Wrist] = Point{X: 0.50, Y: 0.80, Z: 0.0}

	s[ThumbCMC] = Point{X: 0.56, Y: 0.75, Z: 0.02}
	s[ThumbMCP] = Point{X: 0.62, Y: 0.70, Z: 0.03}
	s[ThumbIP] = Point{X: 0.67, Y: 0.65, Z: 0.03}
	s[ThumbTip] = Point{X: 0.72, Y: 0.61, Z: 0.03}

	s[IndexMCP] = Point{X: 0.55, Y: 0.66, Z: 0.0}
	s[IndexPIP] = Point{X: 0.56, Y: 0.54, Z: 0.0}
	s[IndexDIP] = Point{X: 0.57, Y: 0.44, Z: 0.0}
	s[IndexTip] = Point{X: 0.57, Y: 0.35, Z: 0.0}

	s[MiddleMCP] = Point{X: 0.50, Y: 0.64, Z: 0.0}
	s[MiddlePIP] = Point{X: 0.50, Y: 0.51, Z: 0.0}
	s[MiddleDIP] = Point{X: 0.50, Y: 0.39, Z: 0.0}
	s[MiddleTip] = Point{X: 0.50, Y: 0.28, Z: 0.0}

	s[RingMCP] = Point{X: 0.45, Y: 0.66, Z: 0.0}
	s[RingPIP] = Point{X: 0.44, Y: 0.54, Z: 0.0}
	s[RingDIP] = Point{X: 0.43, Y: 0.44, Z: 0.0}
	s[RingTip] = Point{X: 0.43, Y: 0.35, Z: 0.0}

	s[PinkyMCP] = Point{X: 0.40, Y: 0.69, Z: 0.0}
	s[PinkyPIP] = Point{X: 0.38, Y: 0.60, Z: 0.0}
	s[PinkyDIP] = Point{X: 0.36, Y: 0.51, Z: 0.0}
	s[PinkyTip] = Point{X: 0.35, Y: 0.44, Z: 0.0}

	return s
}

// PointPose returns a pose with only the index finger extended.
func PointPose() Set {
	s := FistPose()

	s[IndexMCP] = Point{X: 0.55, Y: 0.66, Z: 0.0}
	s[IndexPIP] = Point{X: 0.56, Y: 0.54, Z: 0.0}
	s[IndexDIP] = Point{X: 0.57, Y: 0.44, Z: 0.0}
	s[IndexTip] = Point{X: 0.57, Y: 0.35, Z: 0.0}

	return s
}

// Translate shifts every point of the pose by the given vector. Useful for
// producing the same pose at a different camera position.
func Translate(s Set, v Point) Set {
	var out Set
	for i := 0; i < NumLandmarks; i++ {
		out[i] = Point{X: s[i].X + v.X, Y: s[i].Y + v.Y, Z: s[i].Z + v.Z}
	}
	return out
}
