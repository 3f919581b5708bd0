package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/codemods"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/lang"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/packs"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/planner"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/repomap"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/suppress"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/telemetry"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/walker"
)

// Analysis is the detection result after every filter has run.
type Analysis struct {
	Findings   []types.Finding
	Partial    bool
	Files      []walker.FileInfo
	FileHashes map[string]string
	Suppressed int
	SkipListed int
}

// Analyze walks the tree, runs the kernel, then applies in-source
// suppressions and the learned skiplist.
func (e *Engine) Analyze(ctx context.Context) (*Analysis, error) {
	opts := walker.DefaultOptions()
	files, err := walker.Walk(e.opts.Root, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to walk project: %w", err)
	}

	k, err := e.newKernel()
	if err != nil {
		return nil, err
	}
	res, err := k.Run(ctx, files)
	if err != nil {
		return nil, err
	}

	findings, suppressed := suppress.Filter(res.Findings, res.Suppressions)

	// Learned skips filter matching findings before plan synthesis.
	skipped := 0
	kept := findings[:0]
	for _, f := range findings {
		if e.Skiplist.Matches(f.RuleID, f.File, res.FileHashes[f.File]) {
			skipped++
			continue
		}
		kept = append(kept, f)
	}
	findings = kept

	// Run ids are reassigned after filtering so they stay dense.
	for i := range findings {
		findings[i].RunID = i
	}

	e.Index.Update(files, res.FileHashes)

	return &Analysis{
		Findings:   findings,
		Partial:    res.Partial,
		Files:      files,
		FileHashes: res.FileHashes,
		Suppressed: suppressed,
		SkipListed: skipped,
	}, nil
}

// readSource reads a project-relative file.
func (e *Engine) readSource(rel string) ([]byte, error) {
	return os.ReadFile(filepath.Join(e.opts.Root, filepath.FromSlash(rel)))
}

// BuildPlans produces singleton plans for every auto-fixable finding and,
// when pack synthesis is enabled, folds related findings into pack plans.
// Findings whose rule has no codemod yield no plan (detect-only surface).
func (e *Engine) BuildPlans(ctx context.Context, analysis *Analysis) ([]types.EditPlan, error) {
	srcCache := make(map[string][]byte)
	source := func(file string) []byte {
		if src, ok := srcCache[file]; ok {
			return src
		}
		src, err := e.readSource(file)
		if err != nil {
			src = nil
		}
		srcCache[file] = src
		return src
	}

	// Whole-file codemod plans, memoized per (rule, file).
	type planKey struct{ rule, file string }
	filePlans := make(map[planKey][]types.Edit)
	planFor := func(rule, file string) []types.Edit {
		key := planKey{rule, file}
		if edits, ok := filePlans[key]; ok {
			return edits
		}
		var edits []types.Edit
		if cm := e.Codemods.For(rule); cm != nil {
			if src := source(file); src != nil {
				if planned, err := cm.Plan(file, src); err == nil {
					edits = planned
				}
			}
		}
		filePlans[key] = edits
		return edits
	}

	// Singleton plans plus the per-finding edit map pack synthesis needs.
	editsByFinding := make(map[string][]types.Edit)
	singletons := make(map[string]types.EditPlan) // finding stable id -> plan
	for _, f := range analysis.Findings {
		edits := codemods.EditsForRange(planFor(f.RuleID, f.File), f.StartLine, f.EndLine)
		if len(edits) == 0 {
			continue
		}
		editsByFinding[f.StableID()] = edits
		plan := types.EditPlan{
			ID:             types.SingletonPlanID(edits),
			Findings:       []string{f.StableID()},
			Edits:          edits,
			RuleIDs:        []string{f.RuleID},
			Kind:           types.KindSingleton,
			SourceFindings: []types.Finding{f},
		}
		singletons[f.StableID()] = plan
	}

	var out []types.EditPlan
	consumed := make(map[string]struct{})

	if e.Policy.Packs.Enabled && e.Policy.Packs.PreferPacks {
		recipes, err := packs.LoadRecipes(filepath.Join(e.StateDir(), "recipes.yaml"))
		if err != nil {
			return nil, err
		}
		resolver := e.contextResolver(source)
		found := packs.Find(analysis.Findings, recipes, e.Policy.Packs.MinFindings, resolver)
		for _, p := range found {
			// A pack only makes sense when at least two members have edits.
			withEdits := 0
			for _, f := range p.Findings {
				if len(editsByFinding[f.StableID()]) > 0 {
					withEdits++
				}
			}
			if withEdits < e.Policy.Packs.MinFindings {
				continue
			}
			plan, ok := packs.BuildPlan(p, editsByFinding)
			if !ok {
				continue // overlap: singletons stay
			}
			out = append(out, plan)
			// A pack always claims its findings; emitting the singletons
			// too would apply the same edits twice.
			for _, f := range p.Findings {
				consumed[f.StableID()] = struct{}{}
			}
		}
	}

	for _, f := range analysis.Findings {
		plan, ok := singletons[f.StableID()]
		if !ok {
			continue
		}
		if _, folded := consumed[f.StableID()]; folded {
			continue
		}
		out = append(out, plan)
	}
	return out, nil
}

// contextResolver keys pack contexts off parse-tree symbols, falling back
// to line buckets for files that do not parse.
func (e *Engine) contextResolver(source func(string) []byte) packs.ContextResolver {
	trees := make(map[string]*lang.Tree)

	return func(file string, line int, ctxLevel string) string {
		if ctxLevel == "file" {
			return file
		}
		parser := e.Langs.ForPath(file)
		if parser == nil {
			return packs.LineBucketResolver(file, line, ctxLevel)
		}
		tree, ok := trees[file]
		if !ok {
			if src := source(file); src != nil {
				if parsed, err := parser.Parse(context.Background(), src); err == nil {
					tree = parsed
				}
			}
			trees[file] = tree
		}
		if tree == nil {
			return packs.LineBucketResolver(file, line, ctxLevel)
		}

		kind := lang.SymbolFunction
		if ctxLevel == "class" {
			kind = lang.SymbolClass
		}
		symbol := parser.EnclosingSymbol(tree, line, kind)
		if symbol == "" {
			return packs.LineBucketResolver(file, line, ctxLevel)
		}
		return file + "::" + symbol
	}
}

// PlanActions orders the plans with the full signal set: learner stats,
// telemetry cost ranks and repomap context scores.
func (e *Engine) PlanActions(plans []types.EditPlan) ([]types.Action, error) {
	var costRanks map[string]int
	if samples, err := e.Telemetry.Load(); err == nil && len(samples) > 0 {
		costRanks = telemetry.CostRank(samples, e.Rules.EnabledRuleIDs())
	}

	var ranker *repomap.Ranker
	if e.RepoMap != nil {
		ranker = repomap.NewRanker(e.RepoMap, e.Now())
	}

	p, err := planner.New(planner.Config{
		Policy:    e.Policy,
		Learner:   e.Learner,
		Ranker:    ranker,
		CostRanks: costRanks,
	})
	if err != nil {
		return nil, err
	}
	return p.Plan(plans), nil
}
