// Package recognition fuses the traditional matcher and the classifier bank
// into the per-frame recognition façade of the Soletra engine.
package recognition

import (
	"github.com/lucasvieira/soletra/internal/gesture"
	"github.com/lucasvieira/soletra/internal/ml"
)

// Method tags which path produced the final answer.
type Method string

const (
	// MethodTraditional means the similarity search against reference
	// gestures won.
	MethodTraditional Method = "traditional"
	// MethodML means a per-letter classifier won with high confidence.
	MethodML Method = "ml"
	// MethodMLFallback means the classifier answered only because the
	// traditional match was rejected.
	MethodMLFallback Method = "ml_fallback"
	// MethodNone means nothing was recognized.
	MethodNone Method = "none"
)

// Thresholds are the fusion decision constants. They are empirical tuning
// values, exposed through configuration rather than hard-coded.
type Thresholds struct {
	// TraditionalHigh makes a traditional match authoritative when it also
	// beats the classifier's confidence.
	TraditionalHigh float64
	// MLHigh lets the classifier override a weaker traditional match.
	MLHigh float64
	// TraditionalLow accepts a moderate traditional match when the
	// classifier is not confident.
	TraditionalLow float64
	// MLFloor is the last-resort classifier acceptance level.
	MLFloor float64
}

// DefaultThresholds returns the tuned fusion constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TraditionalHigh: 0.6,
		MLHigh:          0.7,
		TraditionalLow:  0.4,
		MLFloor:         0.3,
	}
}

// Result is the fused outcome for one frame. Letter is empty when
// Method is MethodNone.
type Result struct {
	Letter      string         `json:"letter,omitempty"`
	Confidence  float64        `json:"confidence"`
	Method      Method         `json:"method"`
	Traditional *gesture.Match `json:"traditional,omitempty"`
	ML          *ml.Prediction `json:"ml,omitempty"`
}

// Fuse picks the final answer from the two matchers' outputs. The
// traditional matcher is trusted first because it is keyed to
// administrator-verified reference gestures; the classifier overrides it
// only when very confident and otherwise serves as a fallback for letters
// with poor or missing references. Rules are evaluated in order, first
// match wins.
func Fuse(traditional *gesture.Match, prediction *ml.Prediction, th Thresholds) Result {
	result := Result{
		Method:      MethodNone,
		Traditional: traditional,
		ML:          prediction,
	}

	switch {
	case traditional != nil && traditional.Similarity > th.TraditionalHigh &&
		(prediction == nil || traditional.Similarity >= prediction.Confidence):
		result.Letter = traditional.Letter
		result.Confidence = traditional.Similarity
		result.Method = MethodTraditional

	case prediction != nil && prediction.Confidence > th.MLHigh:
		result.Letter = prediction.Letter
		result.Confidence = prediction.Confidence
		result.Method = MethodML

	case traditional != nil && traditional.Similarity > th.TraditionalLow:
		result.Letter = traditional.Letter
		result.Confidence = traditional.Similarity
		result.Method = MethodTraditional

	case prediction != nil && prediction.Confidence > th.MLFloor:
		result.Letter = prediction.Letter
		result.Confidence = prediction.Confidence
		result.Method = MethodMLFallback
	}

	return result
}
