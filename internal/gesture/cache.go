// Package gesture provides the cached reference gesture set and the
// traditional similarity matcher of the Soletra recognition engine.
package gesture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lucasvieira/soletra/internal/landmark"
	"github.com/lucasvieira/soletra/internal/store"
)

// Validation errors surfaced to callers and never retried.
var (
	ErrInvalidLetter  = errors.New("letter must be a single character A-Z")
	ErrInvalidQuality = errors.New("quality must be between 0 and 100")
)

// DefaultTTL is how long a cache snapshot serves reads before the whole set
// is reloaded from persistence.
const DefaultTTL = 5 * time.Minute

// Record is one cached reference gesture. Records are copies; the cache
// never hands out live references into the persistence layer.
type Record struct {
	Letter    string
	Landmarks landmark.Set
	Quality   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// snapshot is an immutable view of the full gesture set. Readers share it;
// writers build a replacement and swap the pointer.
type snapshot struct {
	records  map[string]Record
	loadedAt time.Time
}

// Cache fronts the persisted reference gesture set. Reads are served from an
// atomically swapped snapshot so concurrent recognitions never observe a
// torn write; writes go through persistence first and then repopulate the
// snapshot immediately, so an administrator sees a save reflected without
// waiting for the TTL.
type Cache struct {
	db  store.Store
	ttl time.Duration

	mu   sync.Mutex // serializes snapshot rebuilds
	snap atomic.Pointer[snapshot]
}

// NewCache creates a cache over db. A ttl of zero means DefaultTTL.
func NewCache(db store.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{db: db, ttl: ttl}
}

// ValidateLetter reports whether letter is a single uppercase A-Z character.
func ValidateLetter(letter string) error {
	if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'Z' {
		return fmt.Errorf("%w: %q", ErrInvalidLetter, letter)
	}
	return nil
}

// Save validates and upserts the reference gesture for a letter, then
// repopulates the cache entry with the stored value.
func (c *Cache) Save(ctx context.Context, letter string, points []landmark.Point, quality int) error {
	if err := ValidateLetter(letter); err != nil {
		return err
	}
	set, err := landmark.FromSlice(points)
	if err != nil {
		return err
	}
	if quality < 0 || quality > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidQuality, quality)
	}

	g := &store.Gesture{Letter: letter, Landmarks: set.Slice(), Quality: quality}
	if err := c.db.UpsertGesture(ctx, g); err != nil {
		return fmt.Errorf("save gesture %s: %w", letter, err)
	}
	if err := c.db.EnsureLetterStat(ctx, letter); err != nil {
		return fmt.Errorf("seed analytics for %s: %w", letter, err)
	}

	c.updateSnapshot(func(records map[string]Record) {
		records[letter] = Record{
			Letter:    letter,
			Landmarks: set,
			Quality:   quality,
			CreatedAt: g.CreatedAt,
			UpdatedAt: g.UpdatedAt,
		}
	})
	return nil
}

// Get returns a copy of the cached record for a letter, or
// store.ErrNotFound.
func (c *Cache) Get(ctx context.Context, letter string) (Record, error) {
	if err := ValidateLetter(letter); err != nil {
		return Record{}, err
	}

	snap, err := c.fresh(ctx)
	if err != nil {
		return Record{}, err
	}

	rec, ok := snap.records[letter]
	if !ok {
		return Record{}, store.ErrNotFound
	}
	return rec, nil
}

// All returns the current snapshot's record map. The map is shared and
// read-only: callers must not modify it.
func (c *Cache) All(ctx context.Context) (map[string]Record, error) {
	snap, err := c.fresh(ctx)
	if err != nil {
		return nil, err
	}
	return snap.records, nil
}

// Delete removes a letter's reference gesture from persistence and from the
// cache. Deleting an unknown letter returns store.ErrNotFound.
func (c *Cache) Delete(ctx context.Context, letter string) error {
	if err := ValidateLetter(letter); err != nil {
		return err
	}

	if err := c.db.DeleteGesture(ctx, letter); err != nil {
		return err
	}

	c.updateSnapshot(func(records map[string]Record) {
		delete(records, letter)
	})
	return nil
}

// Invalidate drops the cache independently of the TTL; the next access
// reloads from persistence.
func (c *Cache) Invalidate() {
	c.snap.Store(nil)
}

// fresh returns the current snapshot, reloading the whole set from
// persistence when the snapshot is missing or older than the TTL.
func (c *Cache) fresh(ctx context.Context) (*snapshot, error) {
	if snap := c.snap.Load(); snap != nil && time.Since(snap.loadedAt) < c.ttl {
		return snap, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another writer may have reloaded while we waited.
	if snap := c.snap.Load(); snap != nil && time.Since(snap.loadedAt) < c.ttl {
		return snap, nil
	}

	gestures, err := c.db.ListGestures(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload gesture cache: %w", err)
	}

	records := make(map[string]Record, len(gestures))
	for _, g := range gestures {
		set, err := landmark.FromSlice(g.Landmarks)
		if err != nil {
			// Malformed persisted record: skip rather than poison the cache.
			continue
		}
		records[g.Letter] = Record{
			Letter:    g.Letter,
			Landmarks: set,
			Quality:   g.Quality,
			CreatedAt: g.CreatedAt,
			UpdatedAt: g.UpdatedAt,
		}
	}

	snap := &snapshot{records: records, loadedAt: time.Now()}
	c.snap.Store(snap)
	return snap, nil
}

// updateSnapshot rebuilds the snapshot by cloning the current record map,
// applying mutate, and swapping the result in. If no snapshot is loaded the
// update is skipped; the next read loads fresh state from persistence
// anyway.
func (c *Cache) updateSnapshot(mutate func(records map[string]Record)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.snap.Load()
	if current == nil {
		return
	}

	records := make(map[string]Record, len(current.records)+1)
	for k, v := range current.records {
		records[k] = v
	}
	mutate(records)

	c.snap.Store(&snapshot{records: records, loadedAt: current.loadedAt})
}
