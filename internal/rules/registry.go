// Package rules defines the detector plug-in boundary and the built-in
// rule catalog. Detectors are pure: they see only the file path and its
// bytes, and declare their rules in a static manifest.
package rules

import (
	"sort"
	"strings"
	"sync"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/store"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// RuleParseFailure is the info-severity rule id emitted when a detector
// rejects its input.
const RuleParseFailure = "internal.parse"

// RuleInfo is one entry of a detector's static manifest.
type RuleInfo struct {
	ID          string  `json:"id"`
	Category    string  `json:"category"`
	Severity    float64 `json:"severity"`   // default, 0..1
	Complexity  float64 `json:"complexity"` // default refactor-cost estimate, 0..1
	Description string  `json:"description"`
	AutoFix     bool    `json:"autofix"`
}

// Detector analyzes one file and returns findings. Implementations must be
// pure (no I/O beyond the input bytes) and safe for concurrent use.
type Detector interface {
	// Manifest declares the rules this detector can emit.
	Manifest() []RuleInfo

	// Extensions lists the lowercase file extensions this detector reads;
	// empty means it decides per-file by name.
	Extensions() []string

	// Analyze inspects src and returns findings. A returned error wrapping
	// types.ErrParse means the file could not be read as its language; the
	// kernel converts that into an internal.parse finding.
	Analyze(path string, src []byte) ([]types.Finding, error)
}

// Registry holds the registered detectors keyed by rule id.
type Registry struct {
	mu        sync.RWMutex
	detectors []Detector
	ruleInfo  map[string]RuleInfo
	disabled  map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ruleInfo: make(map[string]RuleInfo), disabled: make(map[string]struct{})}
}

// DefaultRegistry returns the registry with every built-in detector.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewPythonDetector())
	r.Register(NewStyleDetector())
	r.Register(NewDeadImportDetector())
	r.Register(NewGoModDetector())
	return r
}

// Register adds a detector and its manifest rules.
func (r *Registry) Register(d Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors = append(r.detectors, d)
	for _, info := range d.Manifest() {
		r.ruleInfo[info.ID] = info
	}
}

// Disable turns a rule off for this run.
func (r *Registry) Disable(ruleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled[ruleID] = struct{}{}
}

// Enabled reports whether a rule is active.
func (r *Registry) Enabled(ruleID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, off := r.disabled[ruleID]
	return !off
}

// Rule returns the manifest entry for a rule id.
func (r *Registry) Rule(ruleID string) (RuleInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.ruleInfo[ruleID]
	return info, ok
}

// Detectors returns the registered detectors in registration order.
func (r *Registry) Detectors() []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Detector(nil), r.detectors...)
}

// EnabledRuleIDs returns the sorted list of active rule ids.
func (r *Registry) EnabledRuleIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.ruleInfo))
	for id := range r.ruleInfo {
		if _, off := r.disabled[id]; off {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RulesetHash fingerprints the enabled rule set plus the engine version.
// Cache entries are invalidated whenever it changes.
func (r *Registry) RulesetHash(engineVersion string) string {
	ids := r.EnabledRuleIDs()
	return store.SHA256Hex([]byte(strings.Join(ids, ",") + "|" + engineVersion))
}

// contentSlice extracts the 1-based inclusive line range from src for
// context hashing.
func contentSlice(src []byte, startLine, endLine int) string {
	lines := strings.Split(string(src), "\n")
	if startLine < 1 {
		startLine = 1
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	if startLine > len(lines) || endLine < startLine {
		return ""
	}
	return strings.Join(lines[startLine-1:endLine], "\n")
}

// newFinding builds a finding with its context hash populated.
func newFinding(info RuleInfo, path string, src []byte, startLine, endLine int, message string) types.Finding {
	return types.Finding{
		RuleID:      info.ID,
		File:        path,
		StartLine:   startLine,
		EndLine:     endLine,
		Severity:    info.Severity,
		Complexity:  info.Complexity,
		Message:     message,
		ContextHash: types.ComputeContextHash(info.ID, path, contentSlice(src, startLine, endLine), message),
	}
}

// ParseFailureFinding is the info finding the kernel emits when a detector
// reports types.ErrParse for a file.
func ParseFailureFinding(path string, src []byte, detail string) types.Finding {
	info := RuleInfo{ID: RuleParseFailure, Severity: 0.1, Complexity: 0.0}
	return newFinding(info, path, src, 1, 1, "file skipped: "+detail)
}
