package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres is the PostgreSQL-backed Store implementation used for hosted
// deployments. It mirrors the SQLite schema with server-side placeholders.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to the database at dsn and runs migrations.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &Postgres{db: db}
	if err := p.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return p, nil
}

// Close closes the database connection.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS gestures (
			letter VARCHAR(1) PRIMARY KEY,
			landmarks_json TEXT NOT NULL,
			quality INTEGER NOT NULL CHECK(quality BETWEEN 0 AND 100),
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS gesture_examples (
			id BIGSERIAL PRIMARY KEY,
			letter VARCHAR(1) NOT NULL,
			landmarks_json TEXT NOT NULL,
			user_id BIGINT,
			confidence DOUBLE PRECISION,
			source TEXT NOT NULL DEFAULT 'game',
			created_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS letter_models (
			letter VARCHAR(1) PRIMARY KEY,
			blob BYTEA NOT NULL,
			accuracy DOUBLE PRECISION NOT NULL,
			example_count INTEGER NOT NULL,
			trained_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS model_training_history (
			id BIGSERIAL PRIMARY KEY,
			letter VARCHAR(1) NOT NULL,
			examples_count INTEGER NOT NULL,
			accuracy DOUBLE PRECISION NOT NULL,
			training_time DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS user_feedback (
			id TEXT PRIMARY KEY,
			user_id BIGINT,
			predicted_letter VARCHAR(1) NOT NULL,
			actual_letter VARCHAR(1) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			landmarks_json TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS gesture_analytics (
			letter VARCHAR(1) PRIMARY KEY,
			recognition_count BIGINT NOT NULL DEFAULT 0,
			last_recognized TIMESTAMPTZ
		)`,

		`CREATE INDEX IF NOT EXISTS idx_examples_letter ON gesture_examples(letter)`,
		`CREATE INDEX IF NOT EXISTS idx_examples_letter_created ON gesture_examples(letter, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_training_history_letter ON model_training_history(letter)`,
	}

	for _, migration := range migrations {
		if _, err := p.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}

// UpsertGesture inserts or replaces the reference gesture for a letter,
// preserving created_at on replace. The effective timestamps are read back
// into g so callers see what was stored.
func (p *Postgres) UpsertGesture(ctx context.Context, g *Gesture) error {
	landmarks, err := marshalLandmarks(g.Landmarks)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	return p.db.QueryRowContext(ctx,
		`INSERT INTO gestures (letter, landmarks_json, quality, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (letter) DO UPDATE SET
			landmarks_json = EXCLUDED.landmarks_json,
			quality = EXCLUDED.quality,
			updated_at = EXCLUDED.updated_at
		 RETURNING created_at, updated_at`,
		g.Letter, landmarks, g.Quality, now, now,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
}

// GetGesture retrieves the reference gesture for a letter.
func (p *Postgres) GetGesture(ctx context.Context, letter string) (*Gesture, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT letter, landmarks_json, quality, created_at, updated_at
		 FROM gestures WHERE letter = $1`, letter)
	return scanGesture(row)
}

// ListGestures retrieves all reference gestures ordered by letter.
func (p *Postgres) ListGestures(ctx context.Context) ([]*Gesture, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT letter, landmarks_json, quality, created_at, updated_at
		 FROM gestures ORDER BY letter`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gestures []*Gesture
	for rows.Next() {
		g, err := scanGesture(rows)
		if err != nil {
			return nil, err
		}
		gestures = append(gestures, g)
	}
	return gestures, rows.Err()
}

// DeleteGesture removes a letter's reference gesture and its analytics row.
func (p *Postgres) DeleteGesture(ctx context.Context, letter string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM gestures WHERE letter = $1`, letter)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	_, err = p.db.ExecContext(ctx, `DELETE FROM gesture_analytics WHERE letter = $1`, letter)
	return err
}

// InsertExample appends one training example and returns its ID.
func (p *Postgres) InsertExample(ctx context.Context, e *Example) (int64, error) {
	landmarks, err := marshalLandmarks(e.Landmarks)
	if err != nil {
		return 0, err
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var id int64
	err = p.db.QueryRowContext(ctx,
		`INSERT INTO gesture_examples (letter, landmarks_json, user_id, confidence, source, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		e.Letter, landmarks, e.UserID, e.Confidence, e.Source, e.CreatedAt,
	).Scan(&id)
	return id, err
}

// ExamplesByLetter retrieves every example labeled with the given letter.
func (p *Postgres) ExamplesByLetter(ctx context.Context, letter string) ([]*Example, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, letter, landmarks_json, user_id, confidence, source, created_at
		 FROM gesture_examples WHERE letter = $1 ORDER BY id`, letter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExamples(rows)
}

// SampleExamplesExcluding retrieves up to limit random examples labeled with
// any letter other than the given one.
func (p *Postgres) SampleExamplesExcluding(ctx context.Context, letter string, limit int) ([]*Example, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, letter, landmarks_json, user_id, confidence, source, created_at
		 FROM gesture_examples WHERE letter != $1 ORDER BY RANDOM() LIMIT $2`, letter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExamples(rows)
}

// CountExamplesSince counts a letter's examples created after since.
func (p *Postgres) CountExamplesSince(ctx context.Context, letter string, since time.Time) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM gesture_examples WHERE letter = $1 AND created_at > $2`,
		letter, since).Scan(&count)
	return count, err
}

// CountExamplesByLetter returns the number of stored examples per letter.
func (p *Postgres) CountExamplesByLetter(ctx context.Context) (map[string]int, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT letter, COUNT(*) FROM gesture_examples GROUP BY letter`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var letter string
		var count int
		if err := rows.Scan(&letter, &count); err != nil {
			return nil, err
		}
		counts[letter] = count
	}
	return counts, rows.Err()
}

// UpsertModel replaces the serialized model for a letter.
func (p *Postgres) UpsertModel(ctx context.Context, m *Model) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO letter_models (letter, blob, accuracy, example_count, trained_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (letter) DO UPDATE SET
			blob = EXCLUDED.blob,
			accuracy = EXCLUDED.accuracy,
			example_count = EXCLUDED.example_count,
			trained_at = EXCLUDED.trained_at`,
		m.Letter, m.Blob, m.Accuracy, m.ExampleCount, m.TrainedAt,
	)
	return err
}

// ListModels retrieves all serialized models.
func (p *Postgres) ListModels(ctx context.Context) ([]*Model, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT letter, blob, accuracy, example_count, trained_at
		 FROM letter_models ORDER BY letter`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []*Model
	for rows.Next() {
		m := &Model{}
		if err := rows.Scan(&m.Letter, &m.Blob, &m.Accuracy, &m.ExampleCount, &m.TrainedAt); err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

// InsertTrainingRun appends one training history row.
func (p *Postgres) InsertTrainingRun(ctx context.Context, r *TrainingRun) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO model_training_history (letter, examples_count, accuracy, training_time, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.Letter, r.ExampleCount, r.Accuracy, r.TrainingTime.Seconds(), r.CreatedAt,
	)
	return err
}

// LatestTrainingRuns returns the most recent training run per letter.
func (p *Postgres) LatestTrainingRuns(ctx context.Context) (map[string]*TrainingRun, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, letter, examples_count, accuracy, training_time, created_at
		 FROM model_training_history
		 WHERE id IN (SELECT MAX(id) FROM model_training_history GROUP BY letter)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make(map[string]*TrainingRun)
	for rows.Next() {
		r := &TrainingRun{}
		var seconds float64
		if err := rows.Scan(&r.ID, &r.Letter, &r.ExampleCount, &r.Accuracy, &seconds, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.TrainingTime = time.Duration(seconds * float64(time.Second))
		runs[r.Letter] = r
	}
	return runs, rows.Err()
}

// InsertFeedback appends one user feedback row.
func (p *Postgres) InsertFeedback(ctx context.Context, f *Feedback) error {
	landmarks, err := marshalLandmarks(f.Landmarks)
	if err != nil {
		return err
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO user_feedback (id, user_id, predicted_letter, actual_letter, confidence, landmarks_json, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.UserID, f.PredictedLetter, f.ActualLetter, f.Confidence, landmarks, f.CreatedAt,
	)
	return err
}

// EnsureLetterStat creates the analytics row for a letter if missing.
func (p *Postgres) EnsureLetterStat(ctx context.Context, letter string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO gesture_analytics (letter, recognition_count)
		 VALUES ($1, 0)
		 ON CONFLICT (letter) DO NOTHING`, letter)
	return err
}

// BumpRecognition increments a letter's recognition counter.
func (p *Postgres) BumpRecognition(ctx context.Context, letter string, at time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE gesture_analytics
		 SET recognition_count = recognition_count + 1, last_recognized = $1
		 WHERE letter = $2`, at, letter)
	return err
}

// LetterStats retrieves all analytics rows ordered by letter.
func (p *Postgres) LetterStats(ctx context.Context) ([]*LetterStat, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT letter, recognition_count, last_recognized
		 FROM gesture_analytics ORDER BY letter`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*LetterStat
	for rows.Next() {
		st := &LetterStat{}
		var last sql.NullTime
		if err := rows.Scan(&st.Letter, &st.RecognitionCount, &last); err != nil {
			return nil, err
		}
		if last.Valid {
			t := last.Time
			st.LastRecognized = &t
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
