// Package telemetry records per-rule detector wall time as JSONL and
// derives the cost ranking the planner subtracts from action priority.
package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Sample is one timing record.
type Sample struct {
	RuleID    string  `json:"rule_id"`
	Ms        float64 `json:"ms"`
	Timestamp int64   `json:"timestamp"` // epoch seconds
}

// Telemetry appends samples to telemetry.jsonl. Unlike the journal, the
// telemetry stream is advisory: writes are buffered and a lost tail only
// costs ranking accuracy.
type Telemetry struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// New creates a telemetry recorder writing to path.
func New(path string) *Telemetry {
	return &Telemetry{path: path, now: time.Now}
}

// SetClock injects the timestamp source.
func (t *Telemetry) SetClock(now func() time.Time) { t.now = now }

// Record appends one sample.
func (t *Telemetry) Record(ruleID string, elapsed time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open telemetry: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(Sample{
		RuleID:    ruleID,
		Ms:        float64(elapsed.Microseconds()) / 1000.0,
		Timestamp: t.now().Unix(),
	})
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// Load reads every sample; unparseable lines are dropped.
func (t *Telemetry) Load() ([]Sample, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var samples []Sample
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var s Sample
		if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
			continue
		}
		samples = append(samples, s)
	}
	return samples, scanner.Err()
}

// P95ByRule computes the 95th-percentile latency per rule.
func P95ByRule(samples []Sample) map[string]float64 {
	byRule := make(map[string][]float64)
	for _, s := range samples {
		byRule[s.RuleID] = append(byRule[s.RuleID], s.Ms)
	}
	out := make(map[string]float64, len(byRule))
	for rule, times := range byRule {
		sort.Float64s(times)
		idx := int(float64(len(times)) * 0.95)
		if idx >= len(times) {
			idx = len(times) - 1
		}
		out[rule] = times[idx]
	}
	return out
}

// CostRank ranks ruleIDs by ascending p95 latency: rank 0 is the cheapest,
// so subtracting the rank from priority penalizes slow rules most. Rules
// with no samples rank as free. Ties break on rule id so the ranking is a
// pure function of the telemetry snapshot.
func CostRank(samples []Sample, ruleIDs []string) map[string]int {
	p95 := P95ByRule(samples)

	ordered := append([]string(nil), ruleIDs...)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := p95[ordered[i]], p95[ordered[j]]
		if a != b {
			return a < b
		}
		return ordered[i] < ordered[j]
	})

	ranks := make(map[string]int, len(ordered))
	for rank, rule := range ordered {
		ranks[rule] = rank
	}
	return ranks
}
