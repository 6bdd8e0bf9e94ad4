// Package store provides durable persistence for the Soletra recognition
// engine: reference gestures, training examples, trained models, per-letter
// analytics, training history and user feedback. Two backends implement the
// same contract, SQLite for local use and PostgreSQL for hosted deployments.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/lucasvieira/soletra/internal/landmark"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Example sources.
const (
	SourceGame           = "game"
	SourceRecognition    = "recognition"
	SourceUserCorrection = "user_correction"
)

// Gesture is one administrator-approved reference gesture for a letter.
type Gesture struct {
	Letter    string
	Landmarks []landmark.Point
	Quality   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Example is one immutable training example collected during play,
// recognition or via an explicit user correction.
type Example struct {
	ID         int64
	Letter     string
	Landmarks  []landmark.Point
	UserID     *int64
	Confidence *float64
	Source     string
	CreatedAt  time.Time
}

// Model is a serialized classifier+scaler pair for one letter.
type Model struct {
	Letter       string
	Blob         []byte
	Accuracy     float64
	ExampleCount int
	TrainedAt    time.Time
}

// TrainingRun is one row of the training history log, written on every
// evaluated training attempt whether or not the model was swapped in.
type TrainingRun struct {
	ID           int64
	Letter       string
	ExampleCount int
	Accuracy     float64
	TrainingTime time.Duration
	CreatedAt    time.Time
}

// Feedback is one user-submitted correction of a recognition result.
type Feedback struct {
	ID              string
	UserID          *int64
	PredictedLetter string
	ActualLetter    string
	Confidence      float64
	Landmarks       []landmark.Point
	CreatedAt       time.Time
}

// LetterStat is the per-letter recognition analytics row.
type LetterStat struct {
	Letter           string
	RecognitionCount int64
	LastRecognized   *time.Time
}

// Store is the persistence contract the engine requires. Implementations
// must be safe for concurrent use.
type Store interface {
	// Reference gestures: one record per letter, save is an upsert.
	UpsertGesture(ctx context.Context, g *Gesture) error
	GetGesture(ctx context.Context, letter string) (*Gesture, error)
	ListGestures(ctx context.Context) ([]*Gesture, error)
	DeleteGesture(ctx context.Context, letter string) error

	// Training examples: append-only.
	InsertExample(ctx context.Context, e *Example) (int64, error)
	ExamplesByLetter(ctx context.Context, letter string) ([]*Example, error)
	SampleExamplesExcluding(ctx context.Context, letter string, limit int) ([]*Example, error)
	CountExamplesSince(ctx context.Context, letter string, since time.Time) (int, error)
	CountExamplesByLetter(ctx context.Context) (map[string]int, error)

	// Trained models: replaceable by letter.
	UpsertModel(ctx context.Context, m *Model) error
	ListModels(ctx context.Context) ([]*Model, error)

	// Training history and feedback.
	InsertTrainingRun(ctx context.Context, r *TrainingRun) error
	LatestTrainingRuns(ctx context.Context) (map[string]*TrainingRun, error)
	InsertFeedback(ctx context.Context, f *Feedback) error

	// Per-letter recognition analytics.
	EnsureLetterStat(ctx context.Context, letter string) error
	BumpRecognition(ctx context.Context, letter string, at time.Time) error
	LetterStats(ctx context.Context) ([]*LetterStat, error)

	Close() error
}
