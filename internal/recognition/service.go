package recognition

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lucasvieira/soletra/internal/gesture"
	"github.com/lucasvieira/soletra/internal/landmark"
	"github.com/lucasvieira/soletra/internal/ml"
	"github.com/lucasvieira/soletra/internal/store"
)

// DefaultCollectMin is the confidence above which a recognized frame is
// worth keeping as a training example.
const DefaultCollectMin = 0.7

// statsTimeout bounds the fire-and-forget analytics update.
const statsTimeout = 2 * time.Second

// Config carries the service's tunables.
type Config struct {
	Thresholds Thresholds
	// CollectMin gates example collection on recognition confidence.
	CollectMin float64
}

// Service is the per-frame recognition façade. It owns no mutable state of
// its own: the cache and the bank carry their own snapshot semantics, so
// concurrent Recognize calls are safe and each call reads an internally
// consistent view as of its start.
type Service struct {
	matcher *gesture.Matcher
	bank    *ml.Bank
	trainer *ml.Trainer
	db      store.Store
	norm    landmark.Normalizer
	cfg     Config
	logger  *slog.Logger
}

// NewService wires the façade. Zero-valued Config fields fall back to the
// tuned defaults.
func NewService(matcher *gesture.Matcher, bank *ml.Bank, trainer *ml.Trainer, db store.Store, norm landmark.Normalizer, cfg Config, logger *slog.Logger) *Service {
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.CollectMin <= 0 {
		cfg.CollectMin = DefaultCollectMin
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		matcher: matcher,
		bank:    bank,
		trainer: trainer,
		db:      db,
		norm:    norm,
		cfg:     cfg,
		logger:  logger,
	}
}

// Recognize processes one frame: validate, normalize, run both matchers
// concurrently, fuse, then update stats and optionally collect the example
// off the request path.
//
// A malformed input (wrong landmark count) is the only error; an empty
// store and an untrained bank yield a MethodNone result, which is a
// legitimate "nothing recognized" outcome rather than a failure.
func (s *Service) Recognize(ctx context.Context, points []landmark.Point, collectForML bool) (Result, error) {
	set, err := landmark.FromSlice(points)
	if err != nil {
		return Result{}, err
	}

	normalized := s.norm.Apply(set)

	var match *gesture.Match
	var prediction *ml.Prediction

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		match = s.matcher.Match(gctx, normalized)
		return nil
	})
	g.Go(func() error {
		prediction = s.bank.Predict(normalized)
		return nil
	})
	// Neither branch returns an error; degradation happens inside them.
	_ = g.Wait()

	result := Fuse(match, prediction, s.cfg.Thresholds)

	if result.Letter != "" {
		s.bumpStats(result.Letter)

		if collectForML && result.Confidence > s.cfg.CollectMin {
			s.collectExample(result, points)
		}
	}

	return result, nil
}

// AddFeedback forwards a user correction to the trainer.
func (s *Service) AddFeedback(ctx context.Context, predicted, actual string, confidence float64, points []landmark.Point) error {
	if err := gesture.ValidateLetter(actual); err != nil {
		return err
	}
	if _, err := landmark.FromSlice(points); err != nil {
		return err
	}

	return s.trainer.AddFeedback(ctx, &store.Feedback{
		PredictedLetter: predicted,
		ActualLetter:    actual,
		Confidence:      confidence,
		Landmarks:       points,
	})
}

// bumpStats updates the per-letter recognition counter without blocking the
// caller; a failed update only logs.
func (s *Service) bumpStats(letter string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
		defer cancel()

		if err := s.db.EnsureLetterStat(ctx, letter); err != nil {
			s.logger.Warn("analytics update failed", "letter", letter, "error", err)
			return
		}
		if err := s.db.BumpRecognition(ctx, letter, time.Now().UTC()); err != nil {
			s.logger.Warn("analytics update failed", "letter", letter, "error", err)
		}
	}()
}

// collectExample enqueues the recognized frame as a training example
// without blocking the response.
func (s *Service) collectExample(result Result, points []landmark.Point) {
	confidence := result.Confidence
	example := &store.Example{
		Letter:     result.Letter,
		Landmarks:  points,
		Confidence: &confidence,
		Source:     store.SourceRecognition,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
		defer cancel()

		if _, err := s.trainer.Collect(ctx, example); err != nil {
			s.logger.Warn("example collection failed", "letter", example.Letter, "error", err)
		}
	}()
}
