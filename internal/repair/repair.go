// Package repair salvages the largest passing subset of a failing edit
// bundle by binary search, bounded well below the 2^N subsets a naive
// search would visit.
package repair

import (
	"context"
	"sort"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/guard"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// Report lists what repair tried and how each edit fared. The learner
// consumes it to record per-edit outcomes.
type Report struct {
	Attempted []types.Edit `json:"attempted"`
	Applied   []types.Edit `json:"applied"`
	Failed    []types.Edit `json:"failed"`

	// GuardCalls counts verification invocations, for the complexity
	// bound (≤ 2·N·log N in the worst case).
	GuardCalls int `json:"guard_calls"`
}

// Runner holds the fixed inputs of one repair session.
type Runner struct {
	guard   *guard.Guard
	file    string
	effects types.RuleEffects
	mode    guard.Mode
	calls   int
}

// Run bisects a failing bundle against before. The returned bytes are the
// salvaged file state and are guaranteed to pass the guard end-to-end
// against before; when nothing survives, before is returned unchanged.
func Run(ctx context.Context, g *guard.Guard, file string, before []byte, edits []types.Edit, effects types.RuleEffects, mode guard.Mode) ([]byte, Report) {
	r := &Runner{guard: g, file: file, effects: effects, mode: mode}

	report := Report{Attempted: append([]types.Edit(nil), edits...)}
	if len(edits) == 0 {
		return before, report
	}

	// Order by descending start line: the first half touches the highest
	// lines, so committing it never shifts the line numbers the second
	// half refers to.
	ordered := append([]types.Edit(nil), edits...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].StartLine > ordered[j].StartLine })

	// The caller already saw the full bundle fail, so start bisecting.
	var applied, failed []types.Edit
	state := before
	if len(ordered) == 1 {
		failed = ordered
	} else {
		mid := len(ordered) / 2
		state, applied, failed = r.bisect(ctx, before, ordered[:mid])
		stateB, appliedB, failedB := r.bisect(ctx, state, ordered[mid:])
		state = stateB
		applied = append(applied, appliedB...)
		failed = append(failed, failedB...)
	}

	// The salvaged result must hold up as a whole, not just piecewise.
	if len(applied) > 0 {
		res := r.check(ctx, before, state)
		if !res.Passed {
			failed = append(failed, applied...)
			applied = nil
			state = before
		}
	}

	report.Applied = applied
	report.Failed = failed
	report.GuardCalls = r.calls
	return state, report
}

// bisect tries the whole subset against state; on failure it recurses on
// halves, threading the evolving state so later halves see earlier
// commits.
func (r *Runner) bisect(ctx context.Context, state []byte, subset []types.Edit) ([]byte, []types.Edit, []types.Edit) {
	if len(subset) == 0 {
		return state, nil, nil
	}

	candidate, err := types.ApplyEdits(string(state), subset)
	if err == nil {
		if res := r.check(ctx, state, []byte(candidate)); res.Passed {
			// Copies, not subset itself: subset shares its backing array
			// with the sibling half, and callers append to the result.
			return []byte(candidate), append([]types.Edit(nil), subset...), nil
		}
	}

	if len(subset) == 1 {
		return state, nil, append([]types.Edit(nil), subset...)
	}

	mid := len(subset) / 2
	stateA, appliedA, failedA := r.bisect(ctx, state, subset[:mid])
	stateB, appliedB, failedB := r.bisect(ctx, stateA, subset[mid:])
	return stateB, append(appliedA, appliedB...), append(failedA, failedB...)
}

func (r *Runner) check(ctx context.Context, before, after []byte) guard.Result {
	r.calls++
	return r.guard.Check(ctx, guard.Request{
		File:    r.file,
		Before:  before,
		After:   after,
		Effects: r.effects,
		Mode:    r.mode,
	})
}
