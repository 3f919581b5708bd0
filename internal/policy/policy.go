// Package policy loads the declarative scoring weights, thresholds, rule
// modes, suppressions and quality gates from policy.toml. The policy is
// read-only after load; its content hash is stamped on every receipt.
package policy

import (
	"fmt"
	"os"
	"path"

	"github.com/pelletier/go-toml/v2"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/store"
)

// Meta describes the policy file itself.
type Meta struct {
	Version     string `toml:"version"`
	Description string `toml:"description"`
}

// Scoring holds the R★ weights and decision thresholds.
type Scoring struct {
	Alpha            float64 `toml:"alpha"`
	Beta             float64 `toml:"beta"`
	Gamma            float64 `toml:"gamma"`
	AutoThreshold    float64 `toml:"auto_threshold"`
	SuggestThreshold float64 `toml:"suggest_threshold"`
}

// Limits holds the finding-count quality gates.
type Limits struct {
	WarnAt         int  `toml:"warn_at"`
	FailAt         int  `toml:"fail_at"`
	FailOnCritical bool `toml:"fail_on_critical"`
}

// Suppressions holds path-based suppression globs: a global list and a
// per-rule list. Both are applied before detection where possible.
type Suppressions struct {
	Paths []string            `toml:"paths"`
	Rules map[string][]string `toml:"rules"`
}

// Packs configures pack synthesis.
type Packs struct {
	Enabled     bool `toml:"enabled"`
	MinFindings int  `toml:"min_findings"`
	PreferPacks bool `toml:"prefer_packs"`
}

// Budget caps the volume of change in one run. Zero means uncapped.
type Budget struct {
	MaxFiles int `toml:"max_files"`
	MaxLines int `toml:"max_lines"`
}

// Policy is the full declarative configuration.
type Policy struct {
	Meta        Meta                `toml:"meta"`
	Scoring     Scoring             `toml:"scoring"`
	Limits      Limits              `toml:"limits"`
	Modes       map[string]string   `toml:"modes"` // rule_id -> "auto-fix" | "detect-only"
	RiskClasses map[string][]string `toml:"risk_classes"`
	Suppress    Suppressions        `toml:"suppressions"`
	Packs       Packs               `toml:"packs"`
	Budget      Budget              `toml:"budget"`

	// Hash is the SHA-256 of the raw policy file bytes, or of the
	// canonical defaults when no file exists.
	Hash string `toml:"-"`
}

// Default returns the built-in policy used when no policy.toml exists.
func Default() *Policy {
	p := &Policy{
		Meta: Meta{Version: "1", Description: "default policy"},
		Scoring: Scoring{
			Alpha:            0.7,
			Beta:             0.3,
			Gamma:            0.2,
			AutoThreshold:    0.70,
			SuggestThreshold: 0.50,
		},
		Limits:      Limits{WarnAt: 50, FailAt: 200},
		Modes:       map[string]string{},
		RiskClasses: map[string][]string{},
		Packs:       Packs{Enabled: true, MinFindings: 2, PreferPacks: true},
	}
	p.Hash = store.SHA256Hex([]byte("default-policy-v1"))
	return p
}

// Load reads policy.toml from path. A missing file returns Default().
func Load(policyPath string) (*Policy, error) {
	raw, err := os.ReadFile(policyPath)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}

	p := Default()
	if err := toml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	p.Hash = store.SHA256Hex(raw)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the scoring constraints the planner depends on.
func (p *Policy) Validate() error {
	s := p.Scoring
	for name, v := range map[string]float64{
		"alpha":             s.Alpha,
		"beta":              s.Beta,
		"gamma":             s.Gamma,
		"auto_threshold":    s.AutoThreshold,
		"suggest_threshold": s.SuggestThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("scoring.%s must be in [0,1] (got %g)", name, v)
		}
	}
	if s.AutoThreshold < s.SuggestThreshold {
		return fmt.Errorf("auto_threshold (%g) must be >= suggest_threshold (%g)",
			s.AutoThreshold, s.SuggestThreshold)
	}
	for rule, mode := range p.Modes {
		if mode != "auto-fix" && mode != "detect-only" {
			return fmt.Errorf("modes.%s: unknown mode %q", rule, mode)
		}
	}
	if p.Packs.MinFindings < 1 {
		return fmt.Errorf("packs.min_findings must be >= 1 (got %d)", p.Packs.MinFindings)
	}
	return nil
}

// criticalSeverity is the floor above which a finding counts as critical
// for the fail_on_critical gate when no "critical" risk class claims it.
const criticalSeverity = 0.9

// GateCounts evaluates the [limits] quality gates against a run's finding
// severities. warn triggers at warn_at; fail triggers at fail_at or, under
// fail_on_critical, on any critical finding.
func (p *Policy) GateCounts(severities []float64, ruleIDs []string) (warn, fail bool) {
	n := len(severities)
	if p.Limits.WarnAt > 0 && n >= p.Limits.WarnAt {
		warn = true
	}
	if p.Limits.FailAt > 0 && n >= p.Limits.FailAt {
		fail = true
	}
	if p.Limits.FailOnCritical {
		critical := make(map[string]struct{})
		for _, r := range p.RiskClasses["critical"] {
			critical[r] = struct{}{}
		}
		for i, sev := range severities {
			if sev >= criticalSeverity {
				fail = true
				break
			}
			if i < len(ruleIDs) {
				if _, ok := critical[ruleIDs[i]]; ok {
					fail = true
					break
				}
			}
		}
	}
	return warn, fail
}

// Mode returns the configured mode for a rule, defaulting to auto-fix.
func (p *Policy) Mode(ruleID string) string {
	if mode, ok := p.Modes[ruleID]; ok {
		return mode
	}
	return "auto-fix"
}

// IsDetectOnly reports whether a rule may never be auto-applied.
func (p *Policy) IsDetectOnly(ruleID string) bool {
	return p.Mode(ruleID) == "detect-only"
}

// RiskClass returns the risk class containing ruleID, or "".
func (p *Policy) RiskClass(ruleID string) string {
	for class, rules := range p.RiskClasses {
		for _, r := range rules {
			if r == ruleID {
				return class
			}
		}
	}
	return ""
}

// IsPathSuppressed reports whether file is excluded for ruleID by the
// policy's path globs. Global path globs suppress every rule; per-rule
// globs suppress only their rule.
func (p *Policy) IsPathSuppressed(file, ruleID string) bool {
	for _, glob := range p.Suppress.Paths {
		if matchPathGlob(glob, file) {
			return true
		}
	}
	for _, glob := range p.Suppress.Rules[ruleID] {
		if matchPathGlob(glob, file) {
			return true
		}
	}
	return false
}

// IsPathFullySuppressed reports whether file is excluded for all rules,
// letting the kernel skip the file before detection.
func (p *Policy) IsPathFullySuppressed(file string) bool {
	for _, glob := range p.Suppress.Paths {
		if matchPathGlob(glob, file) {
			return true
		}
	}
	return false
}

// matchPathGlob matches a slashed relative path against a glob. A "**/"
// prefix or "/**" suffix crosses directories; bare globs use path.Match
// against both the full path and the basename.
func matchPathGlob(glob, file string) bool {
	if ok, _ := path.Match(glob, file); ok {
		return true
	}
	if ok, _ := path.Match(glob, path.Base(file)); ok {
		return true
	}
	// Translate the common ** forms
	if len(glob) > 3 && glob[:3] == "**/" {
		if ok, _ := path.Match(glob[3:], path.Base(file)); ok {
			return true
		}
	}
	if n := len(glob); n > 3 && glob[n-3:] == "/**" {
		prefix := glob[:n-3]
		if file == prefix || (len(file) > len(prefix) && file[:len(prefix)+1] == prefix+"/") {
			return true
		}
	}
	return false
}
