package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is the file-backed Store implementation used for local installs.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the database at path, enables foreign keys
// and runs migrations.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL lets snapshot reloads proceed alongside a writer; the busy
	// timeout makes any remaining contention wait instead of failing
	// with SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &SQLite{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

func (s *SQLite) migrate() error {
	migrations := []string{
		// Reference gestures, one row per letter
		`CREATE TABLE IF NOT EXISTS gestures (
			letter TEXT PRIMARY KEY CHECK(length(letter) = 1),
			landmarks_json TEXT NOT NULL,
			quality INTEGER NOT NULL CHECK(quality BETWEEN 0 AND 100),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		// Training examples, append-only
		`CREATE TABLE IF NOT EXISTS gesture_examples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			letter TEXT NOT NULL,
			landmarks_json TEXT NOT NULL,
			user_id INTEGER,
			confidence REAL,
			source TEXT NOT NULL DEFAULT 'game',
			created_at DATETIME NOT NULL
		)`,

		// Serialized classifier+scaler pair per letter
		`CREATE TABLE IF NOT EXISTS letter_models (
			letter TEXT PRIMARY KEY,
			blob BLOB NOT NULL,
			accuracy REAL NOT NULL,
			example_count INTEGER NOT NULL,
			trained_at DATETIME NOT NULL
		)`,

		// Training history, one row per evaluated attempt
		`CREATE TABLE IF NOT EXISTS model_training_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			letter TEXT NOT NULL,
			examples_count INTEGER NOT NULL,
			accuracy REAL NOT NULL,
			training_time REAL NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// User corrections of recognition results
		`CREATE TABLE IF NOT EXISTS user_feedback (
			id TEXT PRIMARY KEY,
			user_id INTEGER,
			predicted_letter TEXT NOT NULL,
			actual_letter TEXT NOT NULL,
			confidence REAL NOT NULL,
			landmarks_json TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Per-letter recognition analytics
		`CREATE TABLE IF NOT EXISTS gesture_analytics (
			letter TEXT PRIMARY KEY,
			recognition_count INTEGER NOT NULL DEFAULT 0,
			last_recognized DATETIME
		)`,

		`CREATE INDEX IF NOT EXISTS idx_examples_letter ON gesture_examples(letter)`,
		`CREATE INDEX IF NOT EXISTS idx_examples_letter_created ON gesture_examples(letter, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_training_history_letter ON model_training_history(letter)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}

// UpsertGesture inserts or replaces the reference gesture for a letter,
// preserving created_at on replace. The effective timestamps are read back
// into g so callers see what was stored.
func (s *SQLite) UpsertGesture(ctx context.Context, g *Gesture) error {
	landmarks, err := marshalLandmarks(g.Landmarks)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.db.QueryRowContext(ctx,
		`INSERT INTO gestures (letter, landmarks_json, quality, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(letter) DO UPDATE SET
			landmarks_json = excluded.landmarks_json,
			quality = excluded.quality,
			updated_at = excluded.updated_at
		 RETURNING created_at, updated_at`,
		g.Letter, landmarks, g.Quality, now, now,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
}

// GetGesture retrieves the reference gesture for a letter.
func (s *SQLite) GetGesture(ctx context.Context, letter string) (*Gesture, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT letter, landmarks_json, quality, created_at, updated_at
		 FROM gestures WHERE letter = ?`, letter)
	return scanGesture(row)
}

// ListGestures retrieves all reference gestures ordered by letter.
func (s *SQLite) ListGestures(ctx context.Context) ([]*Gesture, error) {
	rows, err := s.db.QueryContext(ctx,
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
func (s *SQLite) DeleteGesture(ctx context.Context, letter string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM gestures WHERE letter = ?`, letter)
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

	_, err = s.db.ExecContext(ctx, `DELETE FROM gesture_analytics WHERE letter = ?`, letter)
	return err
}

// InsertExample appends one training example and returns its ID.
func (s *SQLite) InsertExample(ctx context.Context, e *Example) (int64, error) {
	landmarks, err := marshalLandmarks(e.Landmarks)
	if err != nil {
		return 0, err
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO gesture_examples (letter, landmarks_json, user_id, confidence, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Letter, landmarks, e.UserID, e.Confidence, e.Source, e.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ExamplesByLetter retrieves every example labeled with the given letter.
func (s *SQLite) ExamplesByLetter(ctx context.Context, letter string) ([]*Example, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, letter, landmarks_json, user_id, confidence, source, created_at
		 FROM gesture_examples WHERE letter = ? ORDER BY id`, letter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExamples(rows)
}

// SampleExamplesExcluding retrieves up to limit random examples labeled with
// any letter other than the given one.
func (s *SQLite) SampleExamplesExcluding(ctx context.Context, letter string, limit int) ([]*Example, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, letter, landmarks_json, user_id, confidence, source, created_at
		 FROM gesture_examples WHERE letter != ? ORDER BY RANDOM() LIMIT ?`, letter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExamples(rows)
}

// CountExamplesSince counts a letter's examples created after since.
func (s *SQLite) CountExamplesSince(ctx context.Context, letter string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM gesture_examples WHERE letter = ? AND created_at > ?`,
		letter, since).Scan(&count)
	return count, err
}

// CountExamplesByLetter returns the number of stored examples per letter.
func (s *SQLite) CountExamplesByLetter(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
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
func (s *SQLite) UpsertModel(ctx context.Context, m *Model) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO letter_models (letter, blob, accuracy, example_count, trained_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(letter) DO UPDATE SET
			blob = excluded.blob,
			accuracy = excluded.accuracy,
			example_count = excluded.example_count,
			trained_at = excluded.trained_at`,
		m.Letter, m.Blob, m.Accuracy, m.ExampleCount, m.TrainedAt,
	)
	return err
}

// ListModels retrieves all serialized models.
func (s *SQLite) ListModels(ctx context.Context) ([]*Model, error) {
	rows, err := s.db.QueryContext(ctx,
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
func (s *SQLite) InsertTrainingRun(ctx context.Context, r *TrainingRun) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO model_training_history (letter, examples_count, accuracy, training_time, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.Letter, r.ExampleCount, r.Accuracy, r.TrainingTime.Seconds(), r.CreatedAt,
	)
	return err
}

// LatestTrainingRuns returns the most recent training run per letter.
func (s *SQLite) LatestTrainingRuns(ctx context.Context) (map[string]*TrainingRun, error) {
	rows, err := s.db.QueryContext(ctx,
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
func (s *SQLite) InsertFeedback(ctx context.Context, f *Feedback) error {
	landmarks, err := marshalLandmarks(f.Landmarks)
	if err != nil {
		return err
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_feedback (id, user_id, predicted_letter, actual_letter, confidence, landmarks_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.PredictedLetter, f.ActualLetter, f.Confidence, landmarks, f.CreatedAt,
	)
	return err
}

// EnsureLetterStat creates the analytics row for a letter if missing.
func (s *SQLite) EnsureLetterStat(ctx context.Context, letter string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gesture_analytics (letter, recognition_count)
		 VALUES (?, 0)
		 ON CONFLICT(letter) DO NOTHING`, letter)
	return err
}

// BumpRecognition increments a letter's recognition counter.
func (s *SQLite) BumpRecognition(ctx context.Context, letter string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE gesture_analytics
		 SET recognition_count = recognition_count + 1, last_recognized = ?
		 WHERE letter = ?`, at, letter)
	return err
}

// LetterStats retrieves all analytics rows ordered by letter.
func (s *SQLite) LetterStats(ctx context.Context) ([]*LetterStat, error) {
	rows, err := s.db.QueryContext(ctx,
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGesture(row rowScanner) (*Gesture, error) {
	g := &Gesture{}
	var landmarks string

	err := row.Scan(&g.Letter, &landmarks, &g.Quality, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	g.Landmarks, err = unmarshalLandmarks(landmarks)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func collectExamples(rows *sql.Rows) ([]*Example, error) {
	var examples []*Example
	for rows.Next() {
		e := &Example{}
		var landmarks string
		var userID sql.NullInt64
		var confidence sql.NullFloat64

		if err := rows.Scan(&e.ID, &e.Letter, &landmarks, &userID, &confidence, &e.Source, &e.CreatedAt); err != nil {
			return nil, err
		}

		points, err := unmarshalLandmarks(landmarks)
		if err != nil {
			return nil, err
		}
		e.Landmarks = points

		if userID.Valid {
			id := userID.Int64
			e.UserID = &id
		}
		if confidence.Valid {
			c := confidence.Float64
			e.Confidence = &c
		}

		examples = append(examples, e)
	}
	return examples, rows.Err()
}
