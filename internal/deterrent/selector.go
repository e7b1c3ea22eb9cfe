// Package deterrent picks the sound to play against a detected pest and
// plays it, preferring the camera speaker and falling back to local audio.
// Selection is epsilon-greedy over the learned effectiveness statistics.
package deterrent

import (
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/tphakala/pestguard-go/internal/logging"
	"github.com/tphakala/pestguard-go/internal/observability/metrics"
	"github.com/tphakala/pestguard-go/internal/settings"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("deterrent")
}

// Selection strategies, reported in logs and metrics.
const (
	StrategyExploit = "exploit"
	StrategyExplore = "explore"
	StrategyRandom  = "random"
)

// statsSource answers the learning queries the selector needs. Satisfied by
// *effectiveness.Tracker.
type statsSource interface {
	BestSoundFor(pest string, hour int) (string, error)
	LeastTestedSound(pest string, candidates []string) (string, error)
}

// Selector chooses a deterrent sound with an epsilon-greedy policy: with
// probability epsilon it exploits the best known sound, otherwise it
// explores the least tested candidate. Stateless between calls.
type Selector struct {
	stats   statsSource
	store   *settings.Store
	metrics *metrics.DeterrentMetrics

	// injectable randomness for tests
	randFloat func() float64
	randIntN  func(n int) int
	now       func() time.Time
}

// NewSelector builds a selector over the effectiveness statistics.
func NewSelector(stats statsSource, store *settings.Store) *Selector {
	return &Selector{
		stats:     stats,
		store:     store,
		randFloat: rand.Float64,
		randIntN:  rand.IntN,
		now:       time.Now,
	}
}

// SetMetrics wires the deterrent metrics collector.
func (s *Selector) SetMetrics(m *metrics.DeterrentMetrics) {
	s.metrics = m
}

// Select picks one sound from the candidates for the pest. Returns the
// chosen sound and the strategy that produced it; empty when there are no
// candidates.
func (s *Selector) Select(pest string, candidates []string) (sound, strategy string) {
	if len(candidates) == 0 {
		return "", ""
	}

	epsilon := s.store.ExplorationRate()
	if s.randFloat() < epsilon {
		best, err := s.stats.BestSoundFor(pest, s.now().In(s.store.Timezone()).Hour())
		if err != nil {
			logger.Warn("Best-sound lookup failed, falling back", "pest", pest, "error", err)
		} else if best != "" && slices.Contains(candidates, best) {
			s.recordSelection(StrategyExploit)
			return best, StrategyExploit
		}
	} else {
		least, err := s.stats.LeastTestedSound(pest, candidates)
		if err != nil {
			logger.Warn("Least-tested lookup failed, falling back", "pest", pest, "error", err)
		} else if least != "" {
			s.recordSelection(StrategyExplore)
			return least, StrategyExplore
		}
	}

	s.recordSelection(StrategyRandom)
	return candidates[s.randIntN(len(candidates))], StrategyRandom
}

func (s *Selector) recordSelection(strategy string) {
	if s.metrics != nil {
		s.metrics.RecordSelection(strategy)
	}
}
