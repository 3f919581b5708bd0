// Package planner turns edit plans into a deterministic, risk-ordered
// action list. Given the same plans, policy, learner snapshot, repomap
// snapshot and clock, the output order and rationales are identical.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/learn"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/policy"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/repomap"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// Config wires the planner's read-only inputs. Learner and Ranker are
// optional; a nil field contributes zero to its term.
type Config struct {
	Policy    *policy.Policy
	Learner   *learn.Learner
	Ranker    *repomap.Ranker
	CostRanks map[string]int // rule id -> cost rank (0 = cheapest)

	// MaxActions caps the ordered list; 0 means unlimited.
	MaxActions int
}

// Planner computes R★, decisions and priorities.
type Planner struct {
	cfg Config
}

// New validates the configuration and returns a planner.
func New(cfg Config) (*Planner, error) {
	if cfg.Policy == nil {
		return nil, fmt.Errorf("policy is required")
	}
	return &Planner{cfg: cfg}, nil
}

// RStar computes the risk/confidence score for a plan. Severity and
// complexity aggregate by maximum across the plan's findings (the
// conservative choice); cohesion only contributes for packs.
func (p *Planner) RStar(plan *types.EditPlan) float64 {
	s := p.cfg.Policy.Scoring

	var maxSev, maxCpx float64
	for _, f := range plan.SourceFindings {
		if f.Severity > maxSev {
			maxSev = f.Severity
		}
		if f.Complexity > maxCpx {
			maxCpx = f.Complexity
		}
	}

	r := s.Alpha*maxSev + s.Beta*maxCpx
	if plan.Kind == types.KindPack {
		r += s.Gamma * plan.Cohesion
	}
	if r > 1 {
		r = 1
	}
	return r
}

// Decide maps a plan's R★ to AUTO / SUGGEST / SKIP. Per-rule learner
// tuning shifts the auto threshold; a plan is judged by the most
// conservative (highest) tuned threshold among its rules. A detect-only
// rule anywhere in the plan caps the decision at SUGGEST.
func (p *Planner) Decide(plan *types.EditPlan, rstar float64) types.Decision {
	s := p.cfg.Policy.Scoring

	autoThreshold := s.AutoThreshold
	if p.cfg.Learner != nil {
		for _, rule := range plan.RuleIDs {
			if tuned := p.cfg.Learner.TunedThreshold(rule, s.AutoThreshold); tuned > autoThreshold {
				autoThreshold = tuned
			}
		}
	}

	detectOnly := false
	for _, rule := range plan.RuleIDs {
		if p.cfg.Policy.IsDetectOnly(rule) {
			detectOnly = true
			break
		}
	}

	switch {
	case rstar >= autoThreshold && !detectOnly:
		return types.DecisionAuto
	case rstar >= s.SuggestThreshold:
		return types.DecisionSuggest
	default:
		return types.DecisionSkip
	}
}

// Plan scores, decides and orders the given plans.
func (p *Planner) Plan(plans []types.EditPlan) []types.Action {
	actions := make([]types.Action, 0, len(plans))
	for i := range plans {
		plan := plans[i]
		rstar := p.RStar(&plan)
		plan.EstimatedRisk = rstar

		priority, rationale := p.prioritize(&plan, rstar)
		actions = append(actions, types.Action{
			Plan:      plan,
			Decision:  p.Decide(&plan, rstar),
			Priority:  priority,
			Rationale: rationale,
		})
	}

	sort.Slice(actions, func(i, j int) bool {
		if actions[i].Priority != actions[j].Priority {
			return actions[i].Priority > actions[j].Priority
		}
		return actions[i].Plan.ID < actions[j].Plan.ID
	})

	if p.cfg.MaxActions > 0 && len(actions) > p.cfg.MaxActions {
		actions = actions[:p.cfg.MaxActions]
	}
	return actions
}

// prioritize computes the ordering score and its public rationale string.
func (p *Planner) prioritize(plan *types.EditPlan, rstar float64) (float64, string) {
	base := 100 * rstar

	// Cohesion bonus: a single-file plan fixing several findings.
	cohesionBonus := 0.0
	if len(plan.Findings) >= 2 && len(plan.Files()) == 1 {
		cohesionBonus = 20.0
	}

	// Cost penalty: mean cost rank of the plan's rules.
	costPenalty := 0.0
	if len(p.cfg.CostRanks) > 0 && len(plan.RuleIDs) > 0 {
		total := 0
		for _, rule := range plan.RuleIDs {
			total += p.cfg.CostRanks[rule]
		}
		costPenalty = float64(total) / float64(len(plan.RuleIDs))
	}

	// Revert penalty: the learner remembers recent reverts per file.
	revertPenalty := 0.0
	if p.cfg.Learner != nil {
	outer:
		for _, rule := range plan.RuleIDs {
			for _, file := range plan.Files() {
				if p.cfg.Learner.HighRevertFile(rule, file) {
					revertPenalty = 20.0
					break outer
				}
			}
		}
	}

	// Context boost: repomap density and recency over affected files.
	contextBoost := 0.0
	if p.cfg.Ranker != nil {
		contextBoost = 5.0 * p.cfg.Ranker.ContextBoost(plan.Files())
	}

	// Success bonus: decayed per-rule success rates.
	successBonus := 0.0
	if p.cfg.Learner != nil {
		successBonus = 10.0 * p.cfg.Learner.SuccessRateAvg(plan.RuleIDs)
	}

	priority := base + cohesionBonus - costPenalty - revertPenalty + contextBoost + successBonus

	var tags []string
	switch {
	case rstar >= 0.8:
		tags = append(tags, fmt.Sprintf("high-risk (R★=%.2f)", rstar))
	case rstar >= 0.6:
		tags = append(tags, fmt.Sprintf("medium-risk (R★=%.2f)", rstar))
	default:
		tags = append(tags, fmt.Sprintf("low-risk (R★=%.2f)", rstar))
	}
	if cohesionBonus > 0 {
		tags = append(tags, "cohesive changes")
	}
	if revertPenalty > 0 {
		tags = append(tags, "recently reverted")
	}
	if successBonus > 5 {
		tags = append(tags, "high success rate")
	}
	if contextBoost > 2 {
		tags = append(tags, "important context")
	}

	rationale := fmt.Sprintf(
		"%s; contributions: base %+.1f, cohesion %+.1f, cost %+.1f, revert %+.1f, context %+.1f, success %+.1f",
		strings.Join(tags, "; "),
		base, cohesionBonus, -costPenalty, -revertPenalty, contextBoost, successBonus)

	return priority, rationale
}
