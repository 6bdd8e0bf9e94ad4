package ml

import (
	"context"
	"fmt"
	"time"
)

// LetterModelStat is the per-letter training status view.
type LetterModelStat struct {
	Letter       string     `json:"letter"`
	Examples     int        `json:"examples"`
	HasModel     bool       `json:"has_model"`
	Accuracy     *float64   `json:"accuracy,omitempty"`
	LastTraining *time.Time `json:"last_training,omitempty"`
}

// ModelStats reports, per letter with any stored examples, how many
// examples exist, whether an active model is loaded and the latest
// training outcome.
func (t *Trainer) ModelStats(ctx context.Context) ([]LetterModelStat, error) {
	counts, err := t.db.CountExamplesByLetter(ctx)
	if err != nil {
		return nil, fmt.Errorf("count examples: %w", err)
	}
	runs, err := t.db.LatestTrainingRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("load training history: %w", err)
	}

	var stats []LetterModelStat
	for letter := 'A'; letter <= 'Z'; letter++ {
		l := string(letter)
		count, hasExamples := counts[l]
		model := t.bank.Model(l)
		run := runs[l]
		if !hasExamples && model == nil && run == nil {
			continue
		}

		stat := LetterModelStat{
			Letter:   l,
			Examples: count,
			HasModel: model != nil,
		}
		if run != nil {
			accuracy := run.Accuracy
			created := run.CreatedAt
			stat.Accuracy = &accuracy
			stat.LastTraining = &created
		}
		stats = append(stats, stat)
	}

	return stats, nil
}
