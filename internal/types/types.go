package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Finding represents one rule-violation instance at a source location.
type Finding struct {
	RuleID      string  `json:"rule_id"`
	File        string  `json:"file"` // normalized relative path, POSIX separators
	StartLine   int     `json:"start_line"`
	EndLine     int     `json:"end_line"`
	Severity    float64 `json:"severity"`   // 0.0 - 1.0
	Complexity  float64 `json:"complexity"` // 0.0 - 1.0, estimated refactor cost
	Message     string  `json:"message"`
	ContextHash string  `json:"context_hash"` // 16 hex chars
	RunID       int     `json:"run_id"`       // dense integer assigned after the deterministic sort
}

// Validate checks that the finding has valid field values
func (f *Finding) Validate() error {
	if f.RuleID == "" {
		return fmt.Errorf("rule_id is required")
	}
	if f.File == "" {
		return fmt.Errorf("file is required")
	}
	if f.StartLine < 1 || f.EndLine < f.StartLine {
		return fmt.Errorf("invalid line range %d-%d", f.StartLine, f.EndLine)
	}
	if f.Severity < 0 || f.Severity > 1 {
		return fmt.Errorf("severity must be in [0,1] (got %g)", f.Severity)
	}
	if f.Complexity < 0 || f.Complexity > 1 {
		return fmt.Errorf("complexity must be in [0,1] (got %g)", f.Complexity)
	}
	return nil
}

// ComputeContextHash derives the 16-hex-char context hash from the finding's
// identity inputs. contentSlice is the raw source text covered by the finding;
// rationale is truncated to its first 100 bytes before hashing.
func ComputeContextHash(ruleID, file, contentSlice, rationale string) string {
	if len(rationale) > 100 {
		rationale = rationale[:100]
	}
	sum := sha256.Sum256([]byte(ruleID + "|" + file + "|" + contentSlice + "|" + rationale))
	return hex.EncodeToString(sum[:])[:16]
}

// StableID returns the cross-run identity used for baselines, learning and
// suppression matching. Identical source and rule inputs produce an identical
// stable id regardless of machine or scheduler choices.
func (f *Finding) StableID() string {
	return fmt.Sprintf("%s:%s:%d:%s", f.RuleID, f.File, f.StartLine, f.ContextHash)
}

// BaselineID returns the 16-hex-char identity recorded in baseline files.
func (f *Finding) BaselineID() string {
	input := fmt.Sprintf("%s|%s|%d|%d|%s", f.RuleID, f.File, f.StartLine, f.EndLine, f.ContextHash)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:16]
}

// EditOp identifies the kind of text change an Edit performs
type EditOp string

const (
	OpReplace EditOp = "replace"
	OpInsert  EditOp = "insert"
	OpDelete  EditOp = "delete"
)

// IsValid returns true if the op is a known edit operation
func (op EditOp) IsValid() bool {
	switch op {
	case OpReplace, OpInsert, OpDelete:
		return true
	}
	return false
}

// Edit is an atomic text change to a contiguous line range of one file.
// Payload is UTF-8; the original newline style of the file is preserved
// when the edit is applied.
type Edit struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Op        EditOp `json:"op"`
	Payload   string `json:"payload"`
}

// Overlaps reports whether two edits refer to the same file and their
// inclusive line intervals intersect.
func (e Edit) Overlaps(other Edit) bool {
	if e.File != other.File {
		return false
	}
	return e.StartLine <= other.EndLine && other.StartLine <= e.EndLine
}

// PlanKind distinguishes singleton plans from recipe packs
type PlanKind string

const (
	KindSingleton PlanKind = "singleton"
	KindPack      PlanKind = "pack"
)

// IsValid returns true if the kind is a known plan kind
func (k PlanKind) IsValid() bool {
	return k == KindSingleton || k == KindPack
}

// EditPlan is one applied unit: a non-overlapping ordered set of edits
// produced for one or more findings.
type EditPlan struct {
	ID            string   `json:"id"`
	Findings      []string `json:"findings"` // finding stable ids, non-empty
	Edits         []Edit   `json:"edits"`
	RuleIDs       []string `json:"rule_ids"` // sorted union of finding rule ids
	EstimatedRisk float64  `json:"estimated_risk"`
	Kind          PlanKind `json:"kind"`

	// Cohesion is only meaningful for packs: the fraction of the recipe's
	// rules present in the grouped findings.
	Cohesion float64 `json:"cohesion,omitempty"`

	// SourceFindings carries the full finding records backing this plan.
	// Not serialized: the stable ids above are the persistent reference.
	SourceFindings []Finding `json:"-"`
}

// Validate checks plan-internal invariants: a non-empty finding list and
// pairwise non-overlapping edits.
func (p *EditPlan) Validate() error {
	if len(p.Findings) == 0 {
		return fmt.Errorf("plan %s has no findings", p.ID)
	}
	if !p.Kind.IsValid() {
		return fmt.Errorf("plan %s has invalid kind %q", p.ID, p.Kind)
	}
	for i := range p.Edits {
		if !p.Edits[i].Op.IsValid() {
			return fmt.Errorf("plan %s edit %d has invalid op %q", p.ID, i, p.Edits[i].Op)
		}
		for j := i + 1; j < len(p.Edits); j++ {
			if p.Edits[i].Overlaps(p.Edits[j]) {
				return fmt.Errorf("plan %s edits %d and %d overlap in %s", p.ID, i, j, p.Edits[i].File)
			}
		}
	}
	return nil
}

// Files returns the sorted set of files this plan touches.
func (p *EditPlan) Files() []string {
	seen := make(map[string]struct{})
	for _, e := range p.Edits {
		seen[e.File] = struct{}{}
	}
	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// SingletonPlanID derives the stable id for a single-finding plan from its
// edits. The id is a function of the edit contents only, so re-running over
// unchanged source reproduces it.
func SingletonPlanID(edits []Edit) string {
	var b strings.Builder
	for _, e := range edits {
		fmt.Fprintf(&b, "%s|%d|%d|%s|%s\n", e.File, e.StartLine, e.EndLine, e.Op, e.Payload)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return "plan-" + hex.EncodeToString(sum[:])[:12]
}

// PackPlanID derives the stable id for a pack plan from its context key and
// the sorted stable ids of its findings. Stable under reordering of the
// finding set.
func PackPlanID(contextKey string, stableIDs []string) string {
	ids := append([]string(nil), stableIDs...)
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(contextKey + "|" + strings.Join(ids, ",")))
	return "pack-" + hex.EncodeToString(sum[:])[:12]
}

// RuleIDUnion returns the sorted set of rule ids across findings.
func RuleIDUnion(findings []Finding) []string {
	seen := make(map[string]struct{})
	for _, f := range findings {
		seen[f.RuleID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Receipt is the per-plan audit record emitted after a successful apply.
type Receipt struct {
	PlanID        string `json:"plan_id"`
	File          string `json:"file"`
	BeforeSHA     string `json:"before_sha"`
	AfterSHA      string `json:"after_sha"`
	ParseValid    bool   `json:"parse_valid"`
	InvariantsMet bool   `json:"invariants_met"`
	PolicyHash    string `json:"policy_hash"`
	Timestamp     string `json:"timestamp"` // ISO-8601 UTC
}

// Decision is the planner's disposition for one plan
type Decision string

const (
	DecisionAuto    Decision = "auto"
	DecisionSuggest Decision = "suggest"
	DecisionSkip    Decision = "skip"
)

// Action is a prioritized plan with its ordering rationale. The rationale
// string carries the numeric contributions and is part of the public
// interface.
type Action struct {
	Plan      EditPlan `json:"plan"`
	Decision  Decision `json:"decision"`
	Priority  float64  `json:"priority"`
	Rationale string   `json:"rationale"`
}

// SortFindings orders findings by the canonical deterministic key and
// assigns dense run ids in that order. The sort makes cross-worker
// interleavings invisible: --jobs 1 and --jobs N produce identical output.
func SortFindings(findings []Finding) {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		if a.EndLine != b.EndLine {
			return a.EndLine < b.EndLine
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.ContextHash < b.ContextHash
	})
	for i := range findings {
		findings[i].RunID = i
	}
}

// DedupeFindings removes findings with duplicate stable ids, keeping the
// first occurrence in sorted order.
func DedupeFindings(findings []Finding) []Finding {
	seen := make(map[string]struct{}, len(findings))
	out := findings[:0]
	for _, f := range findings {
		id := f.StableID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, f)
	}
	return out
}
