package ml

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	randomforest "github.com/malaschitz/randomForest"
)

// LetterModel is the active classifier+scaler pair for one letter. A model
// and its scaler are fitted together and always travel together; the bank
// swaps the whole pair atomically.
type LetterModel struct {
	Letter       string
	Forest       *randomforest.Forest
	Scaler       *Scaler
	TrainedAt    time.Time
	Accuracy     float64
	ExampleCount int
}

// Probability returns the positive-class probability the model assigns to a
// raw (unscaled) feature vector.
func (m *LetterModel) Probability(features []float64) float64 {
	votes := m.Forest.Vote(m.Scaler.Transform(features))
	if len(votes) < 2 {
		return 0
	}
	return votes[1]
}

// modelPayload is the gob wire form of a LetterModel. The forest's training
// data is dropped before encoding; prediction only walks the trees.
type modelPayload struct {
	Letter       string
	Forest       randomforest.Forest
	Scaler       Scaler
	TrainedAt    time.Time
	Accuracy     float64
	ExampleCount int
}

// Encode serializes the model to a byte blob for the store.
func (m *LetterModel) Encode() ([]byte, error) {
	payload := modelPayload{
		Letter:       m.Letter,
		Forest:       *m.Forest,
		Scaler:       *m.Scaler,
		TrainedAt:    m.TrainedAt,
		Accuracy:     m.Accuracy,
		ExampleCount: m.ExampleCount,
	}
	payload.Forest.Data = randomforest.ForestData{}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return nil, fmt.Errorf("encode model %s: %w", m.Letter, err)
	}
	return buf.Bytes(), nil
}

// DecodeModel restores a model from its stored byte blob.
func DecodeModel(blob []byte) (*LetterModel, error) {
	var payload modelPayload
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return &LetterModel{
		Letter:       payload.Letter,
		Forest:       &payload.Forest,
		Scaler:       &payload.Scaler,
		TrainedAt:    payload.TrainedAt,
		Accuracy:     payload.Accuracy,
		ExampleCount: payload.ExampleCount,
	}, nil
}
