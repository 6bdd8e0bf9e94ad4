package gesture

import (
	"context"
	"log/slog"

	"github.com/lucasvieira/soletra/internal/landmark"
)

// DefaultRejectThreshold is the similarity below which a best match is
// discarded as noise.
const DefaultRejectThreshold = 0.4

// Match is the traditional matcher's answer: the best-scoring letter and
// its similarity.
type Match struct {
	Letter     string  `json:"letter"`
	Similarity float64 `json:"similarity"`
}

// Matcher scans the cached reference gesture set for the letter most
// similar to an input pose.
type Matcher struct {
	cache     *Cache
	norm      landmark.Normalizer
	threshold float64
	logger    *slog.Logger
}

// NewMatcher creates a matcher over cache. A threshold of zero means
// DefaultRejectThreshold.
func NewMatcher(cache *Cache, norm landmark.Normalizer, threshold float64, logger *slog.Logger) *Matcher {
	if threshold <= 0 {
		threshold = DefaultRejectThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{cache: cache, norm: norm, threshold: threshold, logger: logger}
}

// Match returns the best-matching letter for an already-normalized input
// pose, or nil when the store is empty, unreachable, or the best similarity
// does not clear the rejection threshold. A persistence failure degrades to
// "no match" so the recognition path never crashes on a read error.
//
// Iteration is in letter order A-Z and a later equal score never displaces
// an earlier one, so ties resolve deterministically.
func (m *Matcher) Match(ctx context.Context, input landmark.Set) *Match {
	records, err := m.cache.All(ctx)
	if err != nil {
		m.logger.Warn("gesture store unavailable, skipping traditional match", "error", err)
		return nil
	}
	if len(records) == 0 {
		return nil
	}

	best := Match{}
	for letter := 'A'; letter <= 'Z'; letter++ {
		rec, ok := records[string(letter)]
		if !ok {
			continue
		}

		// Apply is idempotent, so re-normalizing stored records leaves
		// already-canonical ones unchanged.
		similarity := landmark.Similarity(input, m.norm.Apply(rec.Landmarks))
		if similarity > best.Similarity {
			best = Match{Letter: rec.Letter, Similarity: similarity}
		}
	}

	if best.Letter == "" || best.Similarity <= m.threshold {
		return nil
	}
	return &best
}
