package gesture

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lucasvieira/soletra/internal/landmark"
	"github.com/lucasvieira/soletra/internal/store"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *store.SQLite) {
	t.Helper()

	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "soletra.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewCache(db, ttl), db
}

func TestCache_SaveGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t, 0)
	ctx := context.Background()

	pose := landmark.OpenPalmPose()
	require.NoError(t, c.Save(ctx, "B", pose.Slice(), 80))

	rec, err := c.Get(ctx, "B")
	require.NoError(t, err)
	require.Equal(t, "B", rec.Letter)
	require.Equal(t, 80, rec.Quality)
	require.Equal(t, pose, rec.Landmarks)
}

func TestCache_ResaveKeepsCreatedAt(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, "B", landmark.OpenPalmPose().Slice(), 80))
	first, err := c.Get(ctx, "B")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.Save(ctx, "B", landmark.FistPose().Slice(), 90))

	// The cached entry reflects the stored row: original creation time,
	// fresh update time, without waiting for a TTL reload.
	second, err := c.Get(ctx, "B")
	require.NoError(t, err)
	require.Equal(t, first.CreatedAt.UTC(), second.CreatedAt.UTC())
	require.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestCache_SaveValidation(t *testing.T) {
	c, _ := newTestCache(t, 0)
	ctx := context.Background()
	valid := landmark.FistPose().Slice()

	tests := []struct {
		name    string
		letter  string
		points  []landmark.Point
		quality int
		wantErr error
	}{
		{"lowercase letter", "a", valid, 50, ErrInvalidLetter},
		{"multi char", "AB", valid, 50, ErrInvalidLetter},
		{"digit", "1", valid, 50, ErrInvalidLetter},
		{"empty", "", valid, 50, ErrInvalidLetter},
		{"short landmarks", "A", valid[:20], 50, landmark.ErrLandmarkCount},
		{"nil landmarks", "A", nil, 50, landmark.ErrLandmarkCount},
		{"quality low", "A", valid, -1, ErrInvalidQuality},
		{"quality high", "A", valid, 101, ErrInvalidQuality},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Save(ctx, tt.letter, tt.points, tt.quality)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCache_SaveVisibleImmediately(t *testing.T) {
	// A long TTL would serve the pre-save snapshot unless Save repopulates it.
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	// Warm the cache before the save.
	_, err := c.All(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Save(ctx, "C", landmark.PointPose().Slice(), 75))

	rec, err := c.Get(ctx, "C")
	require.NoError(t, err)
	require.Equal(t, 75, rec.Quality)
}

func TestCache_DeleteUnknown(t *testing.T) {
	c, _ := newTestCache(t, 0)

	err := c.Delete(context.Background(), "Q")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCache_DeleteRemovesEntry(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, "A", landmark.FistPose().Slice(), 60))
	require.NoError(t, c.Delete(ctx, "A"))

	_, err := c.Get(ctx, "A")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCache_InvalidateReloads(t *testing.T) {
	c, db := newTestCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, "A", landmark.FistPose().Slice(), 60))

	// Write behind the cache's back, as a second process would.
	require.NoError(t, db.UpsertGesture(ctx, &store.Gesture{
		Letter:    "B",
		Landmarks: landmark.OpenPalmPose().Slice(),
		Quality:   90,
	}))

	_, err := c.Get(ctx, "B")
	require.ErrorIs(t, err, store.ErrNotFound, "cache must still serve the old snapshot")

	c.Invalidate()

	rec, err := c.Get(ctx, "B")
	require.NoError(t, err)
	require.Equal(t, 90, rec.Quality)
}

func TestCache_TTLExpiryReloads(t *testing.T) {
	c, db := newTestCache(t, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, "A", landmark.FistPose().Slice(), 60))

	require.NoError(t, db.UpsertGesture(ctx, &store.Gesture{
		Letter:    "B",
		Landmarks: landmark.OpenPalmPose().Slice(),
		Quality:   90,
	}))

	time.Sleep(30 * time.Millisecond)

	rec, err := c.Get(ctx, "B")
	require.NoError(t, err)
	require.Equal(t, 90, rec.Quality)
}

func TestCache_SyncInfo(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, "A", landmark.FistPose().Slice(), 95))
	require.NoError(t, c.Save(ctx, "B", landmark.OpenPalmPose().Slice(), 40))

	info, err := c.SyncInfo(ctx)
	require.NoError(t, err)

	require.Equal(t, 2, info.Total)
	require.Equal(t, []string{"A", "B"}, info.LettersPresent)
	require.Len(t, info.LettersMissing, 24)
	require.Equal(t, 1, info.QualityHistogram["75-100"])
	require.Equal(t, 1, info.QualityHistogram["25-49"])
	require.True(t, info.Cache.Loaded)
	require.Equal(t, 2, info.Cache.Entries)
	require.False(t, info.Cache.Stale)
}

func TestCache_ConcurrentReadsAndWrites(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, "A", landmark.FistPose().Slice(), 60))

	errs := make(chan error, 256)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				records, err := c.All(ctx)
				if err != nil {
					errs <- err
					return
				}
				// A snapshot is internally consistent: every record carries
				// its own letter as key.
				for letter, rec := range records {
					if letter != rec.Letter {
						errs <- fmt.Errorf("torn snapshot: key %s holds record %s", letter, rec.Letter)
						return
					}
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		letters := []string{"B", "C", "D", "E"}
		for j := 0; j < 20; j++ {
			letter := letters[j%len(letters)]
			if err := c.Save(ctx, letter, landmark.OpenPalmPose().Slice(), 50+j%50); err != nil {
				errs <- err
				return
			}
		}
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
