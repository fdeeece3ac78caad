// Package selector picks the catalog item to promote in a window.
package selector

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/unclebandit/autoposter/internal/logging"
	"github.com/unclebandit/autoposter/internal/model"
)

const (
	RecencyHorizonDays  = 10.0
	RecencyWeight       = 2.0
	FatigueWindow       = 48 * time.Hour
	FatiguePenalty      = 50.0
	CTRWeight           = 10.0
	ExploreProbability  = 0.3
	MinExploreCandidate = 5
)

// CandidateSource is the catalog query.
type CandidateSource interface {
	ListEligibleCandidates(ctx context.Context) ([]model.Candidate, error)
}

// RandomSource is the draw used by the explore/exploit branch.
type RandomSource interface {
	Float64() float64
	Intn(n int) int
}

// Scored is a candidate with its computed score.
type Scored struct {
	Candidate model.Candidate
	Score     float64
}

type Selector struct {
	source CandidateSource
	rand   RandomSource
	now    func() time.Time
	logger logging.Logger
}

type Option func(*Selector)

func WithRandom(r RandomSource) Option {
	return func(s *Selector) { s.rand = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Selector) { s.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Selector) { s.logger = l }
}

func New(source CandidateSource, opts ...Option) *Selector {
	s := &Selector{
		source: source,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("component", "selector")
	return s
}

// Select returns nil with a nil error when no candidate is eligible.
func (s *Selector) Select(ctx context.Context) (*model.Candidate, error) {
	candidates, err := s.source.ListEligibleCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list eligible candidates: %w", err)
	}

	ranked := Rank(candidates, s.now())
	if len(ranked) == 0 {
		s.logger.Warn("No eligible candidates found")
		return nil, nil
	}

	picked := s.choose(ranked)
	s.logger.WithFields(logging.Fields{
		"candidate_id": picked.Candidate.ID,
		"score":        picked.Score,
		"eligible":     len(ranked),
	}).Info("Candidate selected")
	c := picked.Candidate
	return &c, nil
}

func (s *Selector) choose(ranked []Scored) Scored {
	explore := s.rand.Float64() < ExploreProbability
	if explore && len(ranked) >= MinExploreCandidate {
		width := len(ranked) / 4
		if width < 1 {
			width = 1
		}
		idx := s.rand.Intn(width)
		s.logger.WithField("quartile", width).Debug("Exploration picked a top-quartile candidate")
		return ranked[idx]
	}
	s.logger.Debug("Exploitation picked the top candidate")
	return ranked[0]
}

// Rank drops ineligible candidates, scores the rest and sorts them by descending
// score. Ties keep catalog order.
func Rank(candidates []model.Candidate, now time.Time) []Scored {
	out := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		if !c.Eligible() {
			continue
		}
		out = append(out, Scored{Candidate: c, Score: Score(c, now)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Score combines recency decay, the fatigue penalty and click-through performance.
func Score(c model.Candidate, now time.Time) float64 {
	ageDays := now.Sub(c.PublishedAt).Hours() / 24
	score := math.Max(0, RecencyHorizonDays-ageDays) * RecencyWeight

	if c.LastPostedAt != nil && now.Sub(*c.LastPostedAt) < FatigueWindow {
		score -= FatiguePenalty
	}

	if c.Stats != nil {
		score += c.Stats.CTR * CTRWeight
	}
	return score
}
