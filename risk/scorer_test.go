package risk

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hostsentry/core"
)

func alertWithScore(base float64, createdAt time.Time) *core.Alert {
	return &core.Alert{ID: "a", BaseScore: base, CreatedAt: createdAt}
}

func TestScorerEmptyIsZero(t *testing.T) {
	s := NewScorer(0.005, 100)
	assert.Equal(t, 0.0, s.Current())
	assert.Equal(t, 0, s.ContributionCount())
}

func TestScorerDecay(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s := NewScorer(0.005, 100)

	now := base
	s.SetClock(func() time.Time { return now })

	// HIGH severity with weight 8 gives base score 24.
	s.Add(alertWithScore(24, base))
	assert.InDelta(t, 24.0, s.Current(), 1e-9)

	// After 200s the contribution is 24*e^(-0.005*200) = 24*e^-1.
	now = base.Add(200 * time.Second)
	assert.InDelta(t, 24*math.Exp(-1), s.Current(), 1e-9)

	// Decay alone never increases the score.
	prev := s.Current()
	for i := 1; i <= 10; i++ {
		now = now.Add(time.Minute)
		cur := s.Current()
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestScorerCap(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s := NewScorer(0.005, 100)
	s.SetClock(func() time.Time { return base })

	for i := 0; i < 10; i++ {
		s.Add(alertWithScore(40, base))
	}
	assert.Equal(t, 100.0, s.Current())
	assert.Equal(t, 10, s.ContributionCount(), "cap clamps the score, not the contributions")
}

func TestScorerSumsContributions(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s := NewScorer(0.005, 100)
	s.SetClock(func() time.Time { return base })

	s.Add(alertWithScore(10, base))
	s.Add(alertWithScore(24, base))
	assert.InDelta(t, 34.0, s.Current(), 1e-9)
}

func TestScorerPrunesNegligibleContributions(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s := NewScorer(0.005, 100)

	now := base
	s.SetClock(func() time.Time { return now })

	s.Add(alertWithScore(24, base))
	assert.Equal(t, 1, s.ContributionCount())

	// After an hour the contribution has decayed far below the prune
	// threshold (24*e^-18 ~ 3.7e-7).
	now = base.Add(time.Hour)
	assert.InDelta(t, 0.0, s.Current(), 1e-6)
	assert.Equal(t, 0, s.ContributionCount())
}

func TestScorerDefaults(t *testing.T) {
	s := NewScorer(0, 0)
	assert.Equal(t, 0.005, s.lambda)
	assert.Equal(t, 100.0, s.maxScore)
}
