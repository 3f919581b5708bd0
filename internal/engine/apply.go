package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/codemods"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/guard"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/journal"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/learn"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/repair"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/store"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// PlanOutcome is the per-plan line of the run summary.
type PlanOutcome struct {
	PlanID   string
	File     string
	Outcome  types.Outcome
	Reason   string
	Repaired int // edits salvaged by repair, when > 0
}

// ApplyResult summarizes one apply pass.
type ApplyResult struct {
	RunID    string
	Outcomes []PlanOutcome
	Applied  int
	Reverted int
	Skipped  int
	Deferred int
}

// Apply executes the AUTO actions (and, when applySuggested is set, the
// SUGGEST ones) in priority order. Plans on the same file are serialized
// and ordered bottom-up so an earlier apply never shifts the lines a later
// plan refers to.
func (e *Engine) Apply(ctx context.Context, actions []types.Action, applySuggested bool) (*ApplyResult, error) {
	runID := e.NewRunID()
	w, err := journal.NewWriter(e.JournalDir(), runID)
	if err != nil {
		return nil, err
	}
	defer w.Close()
	w.SetClock(e.clock)

	result := &ApplyResult{RunID: runID}

	var runnable []types.Action
	for _, a := range actions {
		switch a.Decision {
		case types.DecisionAuto:
			runnable = append(runnable, a)
		case types.DecisionSuggest:
			if applySuggested {
				runnable = append(runnable, a)
				continue
			}
			e.recordOutcomes(&a.Plan, firstFile(a.Plan), learn.OutcomeSuggested)
			result.Outcomes = append(result.Outcomes, PlanOutcome{
				PlanID: a.Plan.ID, File: firstFile(a.Plan),
				Outcome: types.OutcomeSkipped, Reason: "suggest-only",
			})
			result.Skipped++
		default:
			result.Outcomes = append(result.Outcomes, PlanOutcome{
				PlanID: a.Plan.ID, File: firstFile(a.Plan),
				Outcome: types.OutcomeSkipped, Reason: "below suggest threshold",
			})
			result.Skipped++
		}
	}

	// Within one file, plans apply bottom-up so an earlier apply never
	// shifts the lines a later plan refers to. Cross-file priority order
	// is untouched: each file's plans are reordered in place across the
	// slots they already occupy.
	slotsByFile := make(map[string][]int)
	for i, a := range runnable {
		f := firstFile(a.Plan)
		slotsByFile[f] = append(slotsByFile[f], i)
	}
	for _, slots := range slotsByFile {
		if len(slots) < 2 {
			continue
		}
		group := make([]types.Action, 0, len(slots))
		for _, idx := range slots {
			group = append(group, runnable[idx])
		}
		sort.SliceStable(group, func(i, j int) bool {
			return minStartLine(group[i].Plan) > minStartLine(group[j].Plan)
		})
		for k, idx := range slots {
			runnable[idx] = group[k]
		}
	}

	filesEdited := make(map[string]struct{})
	linesEdited := 0
	budget := e.Policy.Budget

	for _, action := range runnable {
		if ctx.Err() != nil {
			break
		}

		// Budget caps defer remaining plans rather than failing them.
		overFiles := budget.MaxFiles > 0 && len(filesEdited) >= budget.MaxFiles && !editsKnownFiles(action.Plan, filesEdited)
		overLines := budget.MaxLines > 0 && linesEdited >= budget.MaxLines
		if overFiles || overLines {
			result.Outcomes = append(result.Outcomes, PlanOutcome{
				PlanID: action.Plan.ID, File: firstFile(action.Plan),
				Outcome: types.OutcomeDeferred, Reason: "run budget reached",
			})
			result.Deferred++
			continue
		}

		outcome := e.applyPlan(ctx, w, &action.Plan)
		result.Outcomes = append(result.Outcomes, outcome)
		switch outcome.Outcome {
		case types.OutcomeApplied:
			result.Applied++
			for _, f := range action.Plan.Files() {
				filesEdited[f] = struct{}{}
			}
			linesEdited += planLineSpan(action.Plan)
		case types.OutcomeReverted:
			result.Reverted++
		case types.OutcomeSkipped:
			result.Skipped++
		}
	}
	return result, nil
}

// applyPlan runs the full journal discipline for one plan against one
// file: intent, guard, atomic write, receipt, success — or revert.
func (e *Engine) applyPlan(ctx context.Context, w *journal.Writer, plan *types.EditPlan) PlanOutcome {
	files := plan.Files()
	if len(files) != 1 {
		// Plan synthesis keys packs on a single file context, so a
		// multi-file plan is a bug upstream; refuse rather than guess.
		return PlanOutcome{PlanID: plan.ID, File: strings.Join(files, ","),
			Outcome: types.OutcomeSkipped, Reason: "plan spans multiple files"}
	}
	file := files[0]
	abs := filepath.Join(e.opts.Root, filepath.FromSlash(file))

	if err := plan.Validate(); err != nil {
		return PlanOutcome{PlanID: plan.ID, File: file, Outcome: types.OutcomeSkipped, Reason: err.Error()}
	}

	before, err := os.ReadFile(abs)
	if err != nil {
		return PlanOutcome{PlanID: plan.ID, File: file, Outcome: types.OutcomeSkipped,
			Reason: fmt.Sprintf("unreadable: %v", err)}
	}
	beforeSHA := store.SHA256Hex(before)

	if err := w.Intent(file, before, plan.RuleIDs, plan.ID); err != nil {
		return PlanOutcome{PlanID: plan.ID, File: file, Outcome: types.OutcomeSkipped, Reason: err.Error()}
	}

	afterStr, err := types.ApplyEdits(string(before), plan.Edits)
	if err != nil {
		_ = w.Revert(file, beforeSHA, beforeSHA, "edit-apply: "+err.Error(), plan.ID)
		e.recordOutcomes(plan, file, learn.OutcomeReverted)
		return PlanOutcome{PlanID: plan.ID, File: file, Outcome: types.OutcomeReverted, Reason: err.Error()}
	}
	after := []byte(afterStr)

	effects := e.effectsFor(plan, file, before)
	res := e.Guard.Check(ctx, guard.Request{
		File: file, Before: before, After: after, Effects: effects, Mode: e.opts.GuardMode,
	})

	if res.Skip {
		_ = w.Revert(file, beforeSHA, beforeSHA, string(res.FailedLayer), plan.ID)
		return PlanOutcome{PlanID: plan.ID, File: file, Outcome: types.OutcomeSkipped,
			Reason: "file does not parse before edit"}
	}

	if !res.Passed {
		// Multi-edit plans get a repair pass before giving up.
		if len(plan.Edits) > 1 {
			salvaged, report := repair.Run(ctx, e.Guard, file, before, plan.Edits, effects, e.opts.GuardMode)
			if len(report.Applied) > 0 {
				return e.commit(w, plan, file, abs, before, salvaged,
					fmt.Sprintf("repaired: %d/%d edits kept", len(report.Applied), len(report.Attempted)),
					len(report.Applied))
			}
		}
		_ = w.Revert(file, beforeSHA, beforeSHA, string(res.FailedLayer), plan.ID)
		e.recordOutcomes(plan, file, learn.OutcomeReverted)
		return PlanOutcome{PlanID: plan.ID, File: file, Outcome: types.OutcomeReverted,
			Reason: string(res.FailedLayer)}
	}

	return e.commit(w, plan, file, abs, before, after, "", 0)
}

// commit performs the write/receipt/success tail of an apply.
func (e *Engine) commit(w *journal.Writer, plan *types.EditPlan, file, abs string, before, after []byte, note string, repaired int) PlanOutcome {
	if err := store.AtomicWrite(abs, after); err != nil {
		_ = w.Revert(file, store.SHA256Hex(before), store.SHA256Hex(before), "io: "+err.Error(), plan.ID)
		e.recordOutcomes(plan, file, learn.OutcomeReverted)
		return PlanOutcome{PlanID: plan.ID, File: file, Outcome: types.OutcomeReverted, Reason: err.Error()}
	}

	receipt := types.Receipt{
		PlanID:        plan.ID,
		File:          file,
		BeforeSHA:     store.SHA256Hex(before),
		AfterSHA:      store.SHA256Hex(after),
		ParseValid:    true,
		InvariantsMet: true,
		PolicyHash:    e.Policy.Hash,
		Timestamp:     e.Now().UTC().Format(time.RFC3339),
	}
	receiptPath := filepath.Join(e.StateDir(), "receipts", plan.ID+".json")
	if err := store.SaveJSON(receiptPath, receipt); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write receipt for %s: %v\n", plan.ID, err)
	}

	if err := w.Success(file, after, plan.ID, plan.ID); err != nil {
		return PlanOutcome{PlanID: plan.ID, File: file, Outcome: types.OutcomeReverted, Reason: err.Error()}
	}
	e.recordOutcomes(plan, file, learn.OutcomeApplied)
	return PlanOutcome{PlanID: plan.ID, File: file, Outcome: types.OutcomeApplied, Reason: note, Repaired: repaired}
}

// effectsFor merges the manifest effects of the plan's rules, refining the
// dead-import remover's removable list against the actual file.
func (e *Engine) effectsFor(plan *types.EditPlan, file string, src []byte) types.RuleEffects {
	effects := e.Codemods.EffectsFor(plan.RuleIDs)
	for _, rule := range plan.RuleIDs {
		if refiner, ok := e.Codemods.For(rule).(*codemods.DeadImportRemover); ok && refiner != nil {
			effects = effects.Merge(refiner.EffectsForFile(file, src))
		}
	}
	return effects
}

// recordOutcomes feeds the learner one outcome per rule of the plan.
func (e *Engine) recordOutcomes(plan *types.EditPlan, file string, outcome learn.Outcome) {
	for _, rule := range plan.RuleIDs {
		crossed := e.Learner.RecordOutcome(rule, file, outcome)
		if crossed {
			e.addToSkiplist(rule, file)
		}
	}
}

// addToSkiplist persists a (rule, file, content-hash) learned suppression.
func (e *Engine) addToSkiplist(rule, file string) {
	src, err := e.readSource(file)
	if err != nil {
		return
	}
	if err := e.Skiplist.Add(rule, file, store.SHA256Hex(src), "reverted"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to persist skiplist entry: %v\n", err)
	}
}

// RevertRun undoes a run by id and feeds the learner and skiplist, so a
// user revert teaches the engine what not to suggest again.
func (e *Engine) RevertRun(runID string) ([]journal.RevertOutcome, error) {
	w, err := journal.NewWriter(e.JournalDir(), runID)
	if err != nil {
		return nil, err
	}
	defer w.Close()
	w.SetClock(e.clock)

	entries, err := journal.Read(filepath.Join(e.JournalDir(), runID+".jsonl"))
	if err != nil {
		return nil, err
	}
	targets := journal.BuildRevertPlan(entries)

	outcomes, err := journal.RevertRun(e.opts.Root, e.JournalDir(), runID, w)
	if err != nil {
		return nil, err
	}

	reverted := make(map[string]bool)
	for _, o := range outcomes {
		reverted[o.File] = o.Reverted
	}
	for _, t := range targets {
		if !reverted[t.File] {
			continue
		}
		for _, rule := range t.RuleIDs {
			if crossed := e.Learner.RecordOutcome(rule, t.File, learn.OutcomeReverted); crossed {
				e.addToSkiplist(rule, t.File)
			}
		}
	}
	return outcomes, nil
}

// Recover resolves crash orphans in every journal under the state dir.
func (e *Engine) Recover() ([]journal.RevertOutcome, error) {
	runs, err := journal.ListRuns(e.JournalDir())
	if err != nil {
		return nil, err
	}
	var all []journal.RevertOutcome
	for _, runID := range runs {
		w, err := journal.NewWriter(e.JournalDir(), runID)
		if err != nil {
			continue
		}
		w.SetClock(e.clock)
		outcomes, err := journal.Recover(e.opts.Root, e.JournalDir(), runID, w)
		_ = w.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: recovery failed for %s: %v\n", runID, err)
			continue
		}
		for _, o := range outcomes {
			if o.Reverted {
				all = append(all, o)
			}
		}
	}
	return all, nil
}

func firstFile(plan types.EditPlan) string {
	files := plan.Files()
	if len(files) == 0 {
		if len(plan.SourceFindings) > 0 {
			return plan.SourceFindings[0].File
		}
		return ""
	}
	return files[0]
}

func minStartLine(plan types.EditPlan) int {
	min := 1 << 30
	for _, e := range plan.Edits {
		if e.StartLine < min {
			min = e.StartLine
		}
	}
	return min
}

func editsKnownFiles(plan types.EditPlan, known map[string]struct{}) bool {
	for _, f := range plan.Files() {
		if _, ok := known[f]; !ok {
			return false
		}
	}
	return true
}

func planLineSpan(plan types.EditPlan) int {
	total := 0
	for _, e := range plan.Edits {
		total += e.EndLine - e.StartLine + 1
	}
	return total
}
