// Package learn tracks per-rule outcomes across runs, decays them over
// time, tunes decision thresholds, and maintains the auto-skiplist fed by
// reverts. State is guarded by one lock and persisted with atomic writes.
package learn

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/store"
)

// Tuning parameters.
const (
	weeklyDecay       = 0.8
	thresholdDelta    = 0.05
	thresholdFloor    = 0.60
	thresholdCeil     = 0.85
	highRevertRate    = 0.25
	highSuccessRate   = 0.80
	minSampleSize     = 5
	skiplistThreshold = 3 // consecutive reverts per (rule, file) before auto-skip
	highRevertFile    = 2 // reverts per (rule, file) before the planner penalty
)

// Outcome is one recorded disposition for a rule.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeReverted  Outcome = "reverted"
	OutcomeSuggested Outcome = "suggested"
	OutcomeSkipped   Outcome = "skipped"
)

// RuleStats aggregates outcomes for one rule.
type RuleStats struct {
	Applied            int            `json:"applied"`
	Reverted           int            `json:"reverted"`
	Suggested          int            `json:"suggested"`
	Skipped            int            `json:"skipped"`
	ConsecutiveReverts map[string]int `json:"consecutive_reverts"` // file -> count
	LastUpdated        int64          `json:"last_updated"`        // epoch seconds
}

// SampleSize is the denominator used for rate significance.
func (s *RuleStats) SampleSize() int { return s.Applied + s.Reverted }

// SuccessRate returns applied/(applied+reverted) and whether the sample is
// large enough to be meaningful.
func (s *RuleStats) SuccessRate() (float64, bool) {
	n := s.SampleSize()
	if n < minSampleSize {
		return 0, false
	}
	return float64(s.Applied) / float64(n), true
}

// RevertRate returns reverted/(applied+reverted); zero on no data.
func (s *RuleStats) RevertRate() float64 {
	n := s.SampleSize()
	if n == 0 {
		return 0
	}
	return float64(s.Reverted) / float64(n)
}

// decay scales the counters by 0.8 per whole week elapsed. Quantizing to
// whole weeks keeps the result deterministic under a fixed clock.
func (s *RuleStats) decay(now int64) {
	if s.LastUpdated == 0 {
		s.LastUpdated = now
		return
	}
	weeks := (now - s.LastUpdated) / (7 * 24 * 3600)
	if weeks <= 0 {
		return
	}
	mult := math.Pow(weeklyDecay, float64(weeks))
	s.Applied = int(float64(s.Applied) * mult)
	s.Reverted = int(float64(s.Reverted) * mult)
	s.Suggested = int(float64(s.Suggested) * mult)
	s.LastUpdated = now
}

// state is the serialized learner file.
type state struct {
	Rules map[string]*RuleStats `json:"rules"`
}

// Learner is the adaptive engine. Safe for concurrent use.
type Learner struct {
	mu    sync.Mutex
	path  string
	state state
	now   func() time.Time
}

// New creates a learner persisting at path.
func New(path string) *Learner {
	return &Learner{
		path:  path,
		state: state{Rules: make(map[string]*RuleStats)},
		now:   time.Now,
	}
}

// SetClock injects the time source; decay and tuning are deterministic
// under a fixed clock.
func (l *Learner) SetClock(now func() time.Time) { l.now = now }

// Load reads persisted state; a missing file starts fresh.
func (l *Learner) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := state{Rules: make(map[string]*RuleStats)}
	if _, err := store.LoadJSON(l.path, &s); err != nil {
		return err
	}
	if s.Rules == nil {
		s.Rules = make(map[string]*RuleStats)
	}
	l.state = s
	return nil
}

// Save persists state with an atomic write.
func (l *Learner) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return store.SaveJSON(l.path, &l.state)
}

// statsFor returns decayed stats for rule, creating them if absent.
// Callers hold the lock.
func (l *Learner) statsFor(rule string) *RuleStats {
	s, ok := l.state.Rules[rule]
	if !ok {
		s = &RuleStats{ConsecutiveReverts: make(map[string]int), LastUpdated: l.now().Unix()}
		l.state.Rules[rule] = s
	}
	if s.ConsecutiveReverts == nil {
		s.ConsecutiveReverts = make(map[string]int)
	}
	s.decay(l.now().Unix())
	return s
}

// RecordOutcome registers one disposition of rule on file. Returns true
// when a revert brings the (rule, file) pair's revert count to or past the
// auto-skiplist threshold; every further revert returns true again.
func (l *Learner) RecordOutcome(rule, file string, outcome Outcome) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.statsFor(rule)
	switch outcome {
	case OutcomeApplied:
		s.Applied++
	case OutcomeReverted:
		s.Reverted++
		// The count is never reset, not even by a successful apply. A
		// content change still lifts the resulting skip, because the
		// skiplist keys on content hash.
		s.ConsecutiveReverts[file]++
		if s.ConsecutiveReverts[file] >= skiplistThreshold {
			return true
		}
	case OutcomeSuggested:
		s.Suggested++
	case OutcomeSkipped:
		s.Skipped++
	}
	return false
}

// Stats returns a copy of the decayed stats for rule, or nil when the rule
// has no history.
func (l *Learner) Stats(rule string) *RuleStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.state.Rules[rule]
	if !ok {
		return nil
	}
	s.decay(l.now().Unix())
	out := *s
	out.ConsecutiveReverts = make(map[string]int, len(s.ConsecutiveReverts))
	for k, v := range s.ConsecutiveReverts {
		out.ConsecutiveReverts[k] = v
	}
	return &out
}

// TunedThreshold adjusts the policy's auto threshold for one rule: raised
// by 0.05 when the revert rate is high, lowered by 0.05 when the success
// rate is high, clamped into [0.60, 0.85]. Rules without enough samples
// keep the base threshold (still clamped).
func (l *Learner) TunedThreshold(rule string, base float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	tuned := base
	if s, ok := l.state.Rules[rule]; ok {
		s.decay(l.now().Unix())
		if s.SampleSize() >= minSampleSize {
			if s.RevertRate() > highRevertRate {
				tuned += thresholdDelta
			} else if rate, _ := s.SuccessRate(); rate > highSuccessRate {
				tuned -= thresholdDelta
			}
		}
	}
	return math.Min(thresholdCeil, math.Max(thresholdFloor, tuned))
}

// HighRevertFile reports whether rule has a high revert rate on file: at
// least two recorded reverts, one short of the auto-skiplist threshold. A
// single revert is noise; the planner only penalizes a pattern.
func (l *Learner) HighRevertFile(rule, file string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.state.Rules[rule]
	if !ok {
		return false
	}
	return s.ConsecutiveReverts[file] >= highRevertFile
}

// SuccessRateAvg averages the significant success rates over ruleIDs,
// returning 0 when no rule qualifies.
func (l *Learner) SuccessRateAvg(ruleIDs []string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	total, n := 0.0, 0
	for _, rule := range ruleIDs {
		s, ok := l.state.Rules[rule]
		if !ok {
			continue
		}
		s.decay(l.now().Unix())
		if rate, significant := s.SuccessRate(); significant {
			total += rate
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// TopRevertedRules lists rules by descending revert rate for reporting.
func (l *Learner) TopRevertedRules(limit int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	type pair struct {
		rule string
		rate float64
	}
	var pairs []pair
	for rule, s := range l.state.Rules {
		if s.SampleSize() == 0 {
			continue
		}
		pairs = append(pairs, pair{rule, s.RevertRate()})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].rate != pairs[j].rate {
			return pairs[i].rate > pairs[j].rate
		}
		return pairs[i].rule < pairs[j].rule
	})
	var out []string
	for i, p := range pairs {
		if limit > 0 && i >= limit {
			break
		}
		out = append(out, p.rule)
	}
	return out
}
