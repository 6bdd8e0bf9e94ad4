package gesture

import (
	"context"
	"time"
)

// CacheStatus describes the in-memory side of the gesture set.
type CacheStatus struct {
	Loaded  bool          `json:"loaded"`
	Entries int           `json:"entries"`
	Age     time.Duration `json:"age"`
	Stale   bool          `json:"stale"`
}

// SyncInfo is the read-only diagnostic view of the reference gesture set.
type SyncInfo struct {
	Total            int            `json:"total"`
	LettersPresent   []string       `json:"letters_present"`
	LettersMissing   []string       `json:"letters_missing"`
	QualityHistogram map[string]int `json:"quality_histogram"`
	Cache            CacheStatus    `json:"cache"`
}

// histogram bucket edges, inclusive lower bound.
var qualityBuckets = []struct {
	label string
	lo    int
	hi    int
}{
	{"0-24", 0, 24},
	{"25-49", 25, 49},
	{"50-74", 50, 74},
	{"75-100", 75, 100},
}

// SyncInfo reports which letters have reference gestures, their quality
// distribution and the cache state. It reads through the cache, so the view
// is as fresh as the current snapshot.
func (c *Cache) SyncInfo(ctx context.Context) (*SyncInfo, error) {
	records, err := c.All(ctx)
	if err != nil {
		return nil, err
	}

	info := &SyncInfo{
		Total:            len(records),
		QualityHistogram: make(map[string]int, len(qualityBuckets)),
	}

	for letter := 'A'; letter <= 'Z'; letter++ {
		l := string(letter)
		if rec, ok := records[l]; ok {
			info.LettersPresent = append(info.LettersPresent, l)
			for _, b := range qualityBuckets {
				if rec.Quality >= b.lo && rec.Quality <= b.hi {
					info.QualityHistogram[b.label]++
					break
				}
			}
		} else {
			info.LettersMissing = append(info.LettersMissing, l)
		}
	}

	if snap := c.snap.Load(); snap != nil {
		age := time.Since(snap.loadedAt)
		info.Cache = CacheStatus{
			Loaded:  true,
			Entries: len(snap.records),
			Age:     age,
			Stale:   age >= c.ttl,
		}
	}

	return info, nil
}
