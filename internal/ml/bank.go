package ml

import (
	"sync/atomic"

	"github.com/lucasvieira/soletra/internal/landmark"
)

// Prediction is the classifier bank's answer: the most probable letter and
// its positive-class probability.
type Prediction struct {
	Letter     string  `json:"letter"`
	Confidence float64 `json:"confidence"`
}

// Bank holds the active set of per-letter models. The set is replaced
// copy-on-write: a reader loads one pointer and sees a consistent set of
// classifier+scaler pairs for the whole call, regardless of concurrent
// training runs.
type Bank struct {
	models atomic.Pointer[map[string]*LetterModel]
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	b := &Bank{}
	empty := make(map[string]*LetterModel)
	b.models.Store(&empty)
	return b
}

// Replace atomically swaps in a newly trained model for its letter.
func (b *Bank) Replace(model *LetterModel) {
	for {
		current := b.models.Load()
		next := make(map[string]*LetterModel, len(*current)+1)
		for k, v := range *current {
			next[k] = v
		}
		next[model.Letter] = model
		if b.models.CompareAndSwap(current, &next) {
			return
		}
	}
}

// Model returns the active model for a letter, or nil.
func (b *Bank) Model(letter string) *LetterModel {
	return (*b.models.Load())[letter]
}

// Len returns the number of letters with an active model.
func (b *Bank) Len() int {
	return len(*b.models.Load())
}

// Predict runs every trained letter's classifier over the normalized input
// pose and returns the letter with the maximum positive-class probability.
// Returns nil when no models are trained. Letters are visited A-Z and a
// later equal probability never displaces an earlier one, keeping ties
// deterministic.
func (b *Bank) Predict(input landmark.Set) *Prediction {
	models := *b.models.Load()
	if len(models) == 0 {
		return nil
	}

	features := input.Flatten()

	best := Prediction{Confidence: -1}
	for letter := 'A'; letter <= 'Z'; letter++ {
		model, ok := models[string(letter)]
		if !ok {
			continue
		}
		if p := model.Probability(features); p > best.Confidence {
			best = Prediction{Letter: model.Letter, Confidence: p}
		}
	}

	if best.Letter == "" {
		return nil
	}
	return &best
}
