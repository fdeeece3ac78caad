// Package dedupe rejects promotional text or media that repeats recent posts.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/unclebandit/autoposter/internal/logging"
	"github.com/unclebandit/autoposter/internal/model"
)

const (
	DefaultLookback            = 7 * 24 * time.Hour
	DefaultSimilarityThreshold = 0.7
)

// HistorySource returns variants of POSTED posts created at or after since.
type HistorySource interface {
	ListRecentPostedVariants(ctx context.Context, since time.Time) ([]model.PostedVariant, error)
}

type Guard struct {
	history   HistorySource
	lookback  time.Duration
	threshold float64
	now       func() time.Time
	logger    logging.Logger
}

func NewGuard(history HistorySource, logger logging.Logger) *Guard {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Guard{
		history:   history,
		lookback:  DefaultLookback,
		threshold: DefaultSimilarityThreshold,
		now:       time.Now,
		logger:    logger.WithField("component", "dedupe"),
	}
}

// IsDuplicate reports whether text or mediaRef repeats a post inside the lookback
// window. An empty mediaRef never matches.
func (g *Guard) IsDuplicate(ctx context.Context, text, mediaRef string) (bool, error) {
	recent, err := g.history.ListRecentPostedVariants(ctx, g.now().Add(-g.lookback))
	if err != nil {
		return false, fmt.Errorf("load post history: %w", err)
	}

	fp := Fingerprint(text)
	for _, prior := range recent {
		log := g.logger.WithField("post_id", prior.PostID)

		if mediaRef != "" && prior.MediaRef == mediaRef {
			log.WithField("media_ref", mediaRef).Warn("Media already used in a recent post")
			return true, nil
		}
		if prior.Fingerprint == fp {
			log.Warn("Text fingerprint matches a recent post")
			return true, nil
		}
		if sim := Similarity(text, prior.Text); sim >= g.threshold {
			log.WithField("similarity", fmt.Sprintf("%.2f", sim)).Warn("Text too similar to a recent post")
			return true, nil
		}
	}
	return false, nil
}

// Fingerprint is the hex SHA-256 of the lowercased, trimmed text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])
}

var nonWord = regexp.MustCompile(`\W+`)

func words(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range nonWord.Split(strings.ToLower(text), -1) {
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

// Similarity is the word-level Jaccard index. Two empty texts score 0.
func Similarity(a, b string) float64 {
	setA, setB := words(a), words(b)
	union := len(setA)
	inter := 0
	for w := range setB {
		if _, ok := setA[w]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
