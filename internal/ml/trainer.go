package ml

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	randomforest "github.com/malaschitz/randomForest"

	"github.com/lucasvieira/soletra/internal/landmark"
	"github.com/lucasvieira/soletra/internal/store"
)

// ErrInsufficientData is returned when a letter does not have enough
// training examples for a meaningful model. The previous model, if any,
// stays in place.
var ErrInsufficientData = errors.New("insufficient training data")

// TrainerConfig carries the empirical training constants. The retrain and
// sizing thresholds come from field tuning, not physics; deployments adjust
// them through configuration.
type TrainerConfig struct {
	// MinPositiveExamples is the floor below which training aborts.
	MinPositiveExamples int
	// NegativeRatio sizes the negative sample relative to the positives.
	NegativeRatio int
	// TestFraction of each class is held out for evaluation.
	TestFraction float64
	// Trees in each letter's forest.
	Trees int
	// Seed fixes the train/test shuffle for reproducible splits.
	Seed int64
	// RetrainThreshold and RetrainWindow drive the automatic trigger:
	// a letter is re-enqueued once it accumulates RetrainThreshold
	// examples inside the trailing window.
	RetrainThreshold int
	RetrainWindow    time.Duration
	// QueueSize bounds the pending training queue.
	QueueSize int
}

// DefaultTrainerConfig returns the tuned defaults.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		MinPositiveExamples: 5,
		NegativeRatio:       2,
		TestFraction:        0.2,
		Trees:               100,
		Seed:                42,
		RetrainThreshold:    10,
		RetrainWindow:       7 * 24 * time.Hour,
		QueueSize:           64,
	}
}

// Trainer owns the example store interactions and the background training
// pipeline that keeps the Bank's models fresh. Training runs on a single
// worker goroutine, off the recognition path; callers that submit examples
// never wait on a training run.
type Trainer struct {
	db     store.Store
	bank   *Bank
	norm   landmark.Normalizer
	cfg    TrainerConfig
	logger *slog.Logger

	queue  chan string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTrainer creates a trainer feeding bank from db.
func NewTrainer(db store.Store, bank *Bank, norm landmark.Normalizer, cfg TrainerConfig, logger *slog.Logger) *Trainer {
	if cfg.MinPositiveExamples <= 0 {
		cfg = DefaultTrainerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{
		db:     db,
		bank:   bank,
		norm:   norm,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan string, cfg.QueueSize),
	}
}

// Start launches the background training worker. Stop cancels it; an
// in-flight run observes the cancellation between pipeline steps and leaves
// the previous model in place.
func (t *Trainer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case letter := <-t.queue:
				if _, err := t.TrainLetter(ctx, letter); err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					t.logger.Warn("training failed", "letter", letter, "error", err)
				}
			}
		}
	}()
}

// Stop cancels the worker and waits for it to exit.
func (t *Trainer) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}

// Enqueue requests a background training run for a letter. Never blocks;
// when the queue is full the request is dropped and the next collected
// example re-triggers it.
func (t *Trainer) Enqueue(letter string) {
	select {
	case t.queue <- letter:
	default:
		t.logger.Warn("training queue full, dropping request", "letter", letter)
	}
}

// Collect appends a training example and enqueues a retraining run when the
// letter has accumulated enough recent examples.
func (t *Trainer) Collect(ctx context.Context, e *store.Example) (int64, error) {
	id, err := t.db.InsertExample(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("collect example for %s: %w", e.Letter, err)
	}

	since := time.Now().UTC().Add(-t.cfg.RetrainWindow)
	recent, err := t.db.CountExamplesSince(ctx, e.Letter, since)
	if err != nil {
		t.logger.Warn("retrain check failed", "letter", e.Letter, "error", err)
		return id, nil
	}
	if recent >= t.cfg.RetrainThreshold {
		t.Enqueue(e.Letter)
	}

	return id, nil
}

// AddFeedback records a user correction. When the actual letter differs
// from the prediction, the pose is also collected as a training example for
// the actual letter.
func (t *Trainer) AddFeedback(ctx context.Context, f *store.Feedback) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if err := t.db.InsertFeedback(ctx, f); err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}

	if f.ActualLetter != "" && f.ActualLetter != f.PredictedLetter {
		confidence := f.Confidence
		_, err := t.Collect(ctx, &store.Example{
			Letter:     f.ActualLetter,
			Landmarks:  f.Landmarks,
			UserID:     f.UserID,
			Confidence: &confidence,
			Source:     store.SourceUserCorrection,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// LoadModels restores previously trained models from the store into the
// bank, so models survive restarts.
func (t *Trainer) LoadModels(ctx context.Context) error {
	models, err := t.db.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}

	for _, m := range models {
		model, err := DecodeModel(m.Blob)
		if err != nil {
			t.logger.Warn("skipping undecodable model", "letter", m.Letter, "error", err)
			continue
		}
		t.bank.Replace(model)
	}

	t.logger.Info("models loaded", "count", t.bank.Len())
	return nil
}

// TrainLetter runs the full training pipeline for one letter: gather
// positives, sample negatives at NegativeRatio, split, scale, fit, evaluate,
// log the run, persist and atomically activate the new model. The existing
// model is replaced only on success.
func (t *Trainer) TrainLetter(ctx context.Context, letter string) (*LetterModel, error) {
	started := time.Now()

	positives, err := t.letterFeatures(ctx, letter)
	if err != nil {
		return nil, err
	}
	if len(positives) < t.cfg.MinPositiveExamples {
		return nil, fmt.Errorf("%w: letter %s has %d examples, need %d",
			ErrInsufficientData, letter, len(positives), t.cfg.MinPositiveExamples)
	}

	negExamples, err := t.db.SampleExamplesExcluding(ctx, letter, len(positives)*t.cfg.NegativeRatio)
	if err != nil {
		return nil, fmt.Errorf("sample negatives for %s: %w", letter, err)
	}
	negatives := t.exampleFeatures(negExamples)
	if len(negatives) == 0 {
		return nil, fmt.Errorf("%w: no negative examples available for %s", ErrInsufficientData, letter)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(t.cfg.Seed))
	posTrain, posTest := stratifiedSplit(positives, t.cfg.TestFraction, rng)
	negTrain, negTest := stratifiedSplit(negatives, t.cfg.TestFraction, rng)

	trainX := append(append([][]float64{}, posTrain...), negTrain...)
	trainY := make([]int, 0, len(trainX))
	for range posTrain {
		trainY = append(trainY, 1)
	}
	for range negTrain {
		trainY = append(trainY, 0)
	}

	scaler := FitScaler(trainX)

	forest := &randomforest.Forest{}
	forest.Data = randomforest.ForestData{X: scaler.TransformAll(trainX), Class: trainY}
	forest.Train(t.cfg.Trees)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	correct := 0
	total := 0
	evaluate := func(rows [][]float64, class int) {
		for _, row := range rows {
			votes := forest.Vote(scaler.Transform(row))
			predicted := 0
			if len(votes) > 1 && votes[1] > votes[0] {
				predicted = 1
			}
			if predicted == class {
				correct++
			}
			total++
		}
	}
	evaluate(posTest, 1)
	evaluate(negTest, 0)

	accuracy := 0.0
	if total > 0 {
		accuracy = float64(correct) / float64(total)
	}

	exampleCount := len(positives) + len(negatives)
	elapsed := time.Since(started)

	// The history row is written for every evaluated attempt, even when the
	// swap below fails.
	run := &store.TrainingRun{
		Letter:       letter,
		ExampleCount: exampleCount,
		Accuracy:     accuracy,
		TrainingTime: elapsed,
	}
	if err := t.db.InsertTrainingRun(ctx, run); err != nil {
		t.logger.Warn("recording training run failed", "letter", letter, "error", err)
	}

	model := &LetterModel{
		Letter:       letter,
		Forest:       forest,
		Scaler:       scaler,
		TrainedAt:    time.Now().UTC(),
		Accuracy:     accuracy,
		ExampleCount: exampleCount,
	}

	blob, err := model.Encode()
	if err != nil {
		return nil, err
	}
	if err := t.db.UpsertModel(ctx, &store.Model{
		Letter:       letter,
		Blob:         blob,
		Accuracy:     accuracy,
		ExampleCount: exampleCount,
		TrainedAt:    model.TrainedAt,
	}); err != nil {
		return nil, fmt.Errorf("persist model %s: %w", letter, err)
	}

	t.bank.Replace(model)

	t.logger.Info("model trained",
		"letter", letter,
		"examples", exampleCount,
		"accuracy", accuracy,
		"duration", elapsed)
	return model, nil
}

// TrainAll trains every letter that has at least the retrain threshold of
// stored examples and returns how many models were refreshed.
func (t *Trainer) TrainAll(ctx context.Context) (int, error) {
	counts, err := t.db.CountExamplesByLetter(ctx)
	if err != nil {
		return 0, fmt.Errorf("count examples: %w", err)
	}

	trained := 0
	for letter := 'A'; letter <= 'Z'; letter++ {
		l := string(letter)
		if counts[l] < t.cfg.RetrainThreshold {
			continue
		}
		if _, err := t.TrainLetter(ctx, l); err != nil {
			if errors.Is(err, context.Canceled) {
				return trained, err
			}
			t.logger.Warn("training failed", "letter", l, "error", err)
			continue
		}
		trained++
	}

	return trained, nil
}

// letterFeatures loads a letter's examples as normalized feature vectors.
func (t *Trainer) letterFeatures(ctx context.Context, letter string) ([][]float64, error) {
	examples, err := t.db.ExamplesByLetter(ctx, letter)
	if err != nil {
		return nil, fmt.Errorf("load examples for %s: %w", letter, err)
	}
	return t.exampleFeatures(examples), nil
}

// exampleFeatures converts stored examples into the classifier feature
// space, dropping malformed records.
func (t *Trainer) exampleFeatures(examples []*store.Example) [][]float64 {
	features := make([][]float64, 0, len(examples))
	for _, e := range examples {
		set, err := landmark.FromSlice(e.Landmarks)
		if err != nil {
			continue
		}
		features = append(features, t.norm.Apply(set).Flatten())
	}
	return features
}

// stratifiedSplit shuffles rows and holds out testFraction of them,
// keeping at least one row on each side.
func stratifiedSplit(rows [][]float64, testFraction float64, rng *rand.Rand) (train, test [][]float64) {
	shuffled := make([][]float64, len(rows))
	copy(shuffled, rows)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	testCount := int(float64(len(shuffled)) * testFraction)
	if testCount < 1 {
		testCount = 1
	}
	if testCount >= len(shuffled) {
		testCount = len(shuffled) - 1
	}

	return shuffled[testCount:], shuffled[:testCount]
}
