// Package risk maintains the time-decaying aggregate risk score.
//
// Every accepted alert registers a contribution of its base score; the live
// score is the sum of all contributions decayed exponentially by age, capped
// at a configured maximum. Contributions whose decayed value has become
// negligible are pruned to bound memory without materially changing the score.
package risk

import (
	"math"
	"sync"
	"time"

	"hostsentry/core"
	"hostsentry/metrics"
)

// negligible is the decayed value below which a contribution is pruned.
// Pruning at this threshold changes the score by less than floating-point
// noise relative to the cap.
const negligible = 1e-6

type contribution struct {
	baseScore float64
	createdAt time.Time
}

// Scorer computes the aggregate risk score. Add is called from the single
// consumer path; Current may be called concurrently from read paths.
type Scorer struct {
	mu       sync.Mutex
	lambda   float64
	maxScore float64
	contribs []contribution

	now func() time.Time // injectable clock for tests
}

// NewScorer creates a scorer with the given decay constant (per second) and
// score cap. Zero values fall back to the defaults 0.005 and 100.
func NewScorer(lambda, maxScore float64) *Scorer {
	if lambda <= 0 {
		lambda = 0.005
	}
	if maxScore <= 0 {
		maxScore = 100
	}
	return &Scorer{
		lambda:   lambda,
		maxScore: maxScore,
		now:      time.Now,
	}
}

// Add registers a new contribution for an accepted alert.
func (s *Scorer) Add(alert *core.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contribs = append(s.contribs, contribution{
		baseScore: alert.BaseScore,
		createdAt: alert.CreatedAt,
	})
	metrics.RiskScore.Set(s.currentLocked(s.now()))
}

// Current returns the live aggregate score: min(sum b*e^(-lambda*age), cap).
// With no live contributions the score is 0. Between additions the value is
// monotonically non-increasing (pure decay).
func (s *Scorer) Current() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	score := s.currentLocked(s.now())
	metrics.RiskScore.Set(score)
	return score
}

// currentLocked computes the score and prunes negligible contributions.
// Caller holds s.mu.
func (s *Scorer) currentLocked(now time.Time) float64 {
	total := 0.0
	live := s.contribs[:0]
	for _, c := range s.contribs {
		age := now.Sub(c.createdAt).Seconds()
		if age < 0 {
			age = 0
		}
		decayed := c.baseScore * math.Exp(-s.lambda*age)
		if decayed < negligible {
			continue
		}
		total += decayed
		live = append(live, c)
	}
	s.contribs = live
	return math.Min(total, s.maxScore)
}

// ContributionCount returns the number of live (unpruned) contributions.
func (s *Scorer) ContributionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contribs)
}

// SetClock overrides the scorer's clock. Test hook.
func (s *Scorer) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
