package landmark

import (
	"math"
	"testing"
)

func TestSimilarity_IdenticalPoses(t *testing.T) {
	norm := Normalizer{}
	pose := norm.Apply(OpenPalmPose())

	got := Similarity(pose, pose)
	if math.Abs(got-1.0) > 0.01 {
		t.Errorf("Similarity(L, L) = %f, want ~1.0", got)
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	norm := Normalizer{}
	a := norm.Apply(OpenPalmPose())
	b := norm.Apply(FistPose())

	ab := Similarity(a, b)
	ba := Similarity(b, a)
	if ab != ba {
		t.Errorf("Similarity not symmetric: %f vs %f", ab, ba)
	}
}

func TestSimilarity_TranslationInvariantAfterNormalize(t *testing.T) {
	norm := Normalizer{}
	pose := FistPose()
	shifted := Translate(pose, Point{X: -0.1, Y: 0.25, Z: 0.02})

	got := Similarity(norm.Apply(pose), norm.Apply(shifted))
	if math.Abs(got-1.0) > 0.01 {
		t.Errorf("Similarity across translation = %f, want ~1.0", got)
	}
}

func TestSimilarity_DistinctPosesScoreLow(t *testing.T) {
	norm := Normalizer{}
	fist := norm.Apply(FistPose())
	palm := norm.Apply(OpenPalmPose())

	got := Similarity(fist, palm)
	if got > 0.4 {
		t.Errorf("Similarity(fist, palm) = %f, want <= 0.4", got)
	}
}

func TestSimilarity_SharpensMidRange(t *testing.T) {
	norm := Normalizer{}
	fist := norm.Apply(FistPose())
	point := norm.Apply(PointPose())
	palm := norm.Apply(OpenPalmPose())

	closeScore := Similarity(fist, point)
	farScore := Similarity(fist, palm)
	if closeScore <= farScore {
		t.Errorf("expected fist~point (%f) to outscore fist~palm (%f)", closeScore, farScore)
	}
}

func TestSimilaritySlices_MalformedInput(t *testing.T) {
	valid := OpenPalmPose().Slice()

	tests := []struct {
		name string
		a, b []Point
	}{
		{"first short", valid[:20], valid},
		{"second short", valid, valid[:20]},
		{"both empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SimilaritySlices(tt.a, tt.b); got != 0.0 {
				t.Errorf("SimilaritySlices() = %f, want 0.0", got)
			}
		})
	}
}

func TestSimilaritySlices_ValidInput(t *testing.T) {
	norm := Normalizer{}
	pose := norm.Apply(OpenPalmPose())

	got := SimilaritySlices(pose.Slice(), pose.Slice())
	if math.Abs(got-1.0) > 0.01 {
		t.Errorf("SimilaritySlices() = %f, want ~1.0", got)
	}
}
