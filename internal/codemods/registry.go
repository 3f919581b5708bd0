// Package codemods defines the transformer plug-in boundary and the
// built-in codemods. A codemod plans edits for one file; returning no
// edits means nothing applies, which is also the idempotence check: a
// codemod applied to its own output plans nothing.
package codemods

import (
	"sync"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// Codemod plans edits for the findings of one rule. Implementations are
// pure over (path, src) and safe for concurrent use.
type Codemod interface {
	// RuleID names the detector rule this codemod fixes.
	RuleID() string

	// Effects declares the structural consequences the guard may accept.
	Effects() types.RuleEffects

	// Plan returns the edits that would fix every instance in src, or nil
	// when nothing applies.
	Plan(path string, src []byte) ([]types.Edit, error)
}

// Registry maps rule ids to codemods.
type Registry struct {
	mu       sync.RWMutex
	codemods map[string]Codemod
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{codemods: make(map[string]Codemod)}
}

// DefaultRegistry returns the registry with every built-in codemod.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewRequestsHardener())
	r.Register(NewDeadImportRemover())
	r.Register(NewPrintToLogging())
	r.Register(NewTrailingWhitespaceFixer())
	r.Register(NewEOFNewlineFixer())
	return r
}

// Register adds a codemod.
func (r *Registry) Register(c Codemod) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codemods[c.RuleID()] = c
}

// For returns the codemod fixing ruleID, or nil.
func (r *Registry) For(ruleID string) Codemod {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.codemods[ruleID]
}

// EffectsFor merges the declared effects across ruleIDs; a pack plan is
// guarded by the union of what its rules may do.
func (r *Registry) EffectsFor(ruleIDs []string) types.RuleEffects {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merged := types.RuleEffects{StructurePreserving: true}
	any := false
	for _, id := range ruleIDs {
		c, ok := r.codemods[id]
		if !ok {
			continue
		}
		if !any {
			merged = c.Effects()
			any = true
			continue
		}
		merged = merged.Merge(c.Effects())
	}
	if !any {
		return types.RuleEffects{}
	}
	return merged
}

// EditsForRange filters edits down to those intersecting the inclusive
// line range, used to carve a singleton plan out of a whole-file plan.
func EditsForRange(edits []types.Edit, startLine, endLine int) []types.Edit {
	var out []types.Edit
	for _, e := range edits {
		if e.StartLine <= endLine && startLine <= e.EndLine {
			out = append(out, e)
		}
	}
	return out
}
