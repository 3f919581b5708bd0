// Package baseline persists deterministic finding identities and computes
// the NEW / EXISTING / FIXED partition between runs.
package baseline

import (
	"sort"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/store"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// Record is one persisted finding identity.
type Record struct {
	ID       string  `json:"id"` // BaselineID, 16 hex chars
	RuleID   string  `json:"rule_id"`
	File     string  `json:"file"`
	Severity float64 `json:"severity"`
	Message  string  `json:"message"`
}

// Baseline is a sorted set of records.
type Baseline struct {
	Records []Record `json:"records"`
}

// FromFindings captures the current finding set as a baseline.
func FromFindings(findings []types.Finding) *Baseline {
	b := &Baseline{}
	for _, f := range findings {
		b.Records = append(b.Records, Record{
			ID:       f.BaselineID(),
			RuleID:   f.RuleID,
			File:     f.File,
			Severity: f.Severity,
			Message:  f.Message,
		})
	}
	sort.Slice(b.Records, func(i, j int) bool { return b.Records[i].ID < b.Records[j].ID })
	return b
}

// Save writes the baseline atomically with deterministic serialization.
func (b *Baseline) Save(path string) error {
	return store.SaveJSON(path, b)
}

// Load reads a baseline; a missing file yields an empty baseline.
func Load(path string) (*Baseline, error) {
	b := &Baseline{}
	if _, err := store.LoadJSON(path, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Diff is the comparison between a baseline and the current findings.
type Diff struct {
	New      []types.Finding // in current, not in baseline
	Existing []types.Finding // in both
	Fixed    []Record        // in baseline, gone from current

	// Regressions are existing findings whose severity increased over the
	// recorded baseline value.
	Regressions []types.Finding
}

// Compare partitions current findings against the baseline. The NEW and
// FIXED sets are symmetric: swapping arguments swaps the labels.
func (b *Baseline) Compare(current []types.Finding) *Diff {
	recorded := make(map[string]Record, len(b.Records))
	for _, r := range b.Records {
		recorded[r.ID] = r
	}

	d := &Diff{}
	seen := make(map[string]struct{}, len(current))
	for _, f := range current {
		id := f.BaselineID()
		seen[id] = struct{}{}
		prev, known := recorded[id]
		if !known {
			d.New = append(d.New, f)
			continue
		}
		d.Existing = append(d.Existing, f)
		if f.Severity > prev.Severity {
			d.Regressions = append(d.Regressions, f)
		}
	}
	for _, r := range b.Records {
		if _, stillPresent := seen[r.ID]; !stillPresent {
			d.Fixed = append(d.Fixed, r)
		}
	}
	return d
}

// GateResult applies the policy gates to a diff and returns the exit code
// the CLI must surface.
func (d *Diff) GateResult(failOnNew, failOnRegression bool) int {
	if failOnNew && len(d.New) > 0 {
		return types.ExitPolicyViolation
	}
	if failOnRegression && len(d.Regressions) > 0 {
		return types.ExitPolicyViolation
	}
	return types.ExitOK
}
