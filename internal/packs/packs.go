// Package packs groups related findings into cohesive recipes and
// synthesizes pack plans, falling back to singletons whenever merged edits
// would overlap.
package packs

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/rules"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// Recipe declares a set of related rules fixed together within a context.
type Recipe struct {
	ID          string   `yaml:"id"`
	Rules       []string `yaml:"rules"`
	Context     string   `yaml:"context"` // "file", "function" or "class"
	Description string   `yaml:"description"`
}

// BuiltinRecipes are the standard groupings.
func BuiltinRecipes() []Recipe {
	return []Recipe{
		{
			ID:          "PY_HTTP_SAFETY",
			Rules:       []string{rules.RuleUnsafeHTTP, rules.RuleSubprocessCheck, rules.RuleDeadImport},
			Context:     "function",
			Description: "HTTP safety and subprocess security fixes",
		},
		{
			ID:          "PY_EXCEPTION_HANDLING",
			Rules:       []string{rules.RuleBroadExcept},
			Context:     "function",
			Description: "Exception handling improvements",
		},
		{
			ID:          "PY_CODE_QUALITY",
			Rules:       []string{rules.RuleAssertNonTest, rules.RulePrintInSrc, rules.RuleEvalExec},
			Context:     "function",
			Description: "Code quality improvements",
		},
		{
			ID:          "PY_STYLE",
			Rules:       []string{rules.RuleTrailingWS, rules.RuleEOFNewline, rules.RuleBlankLines},
			Context:     "file",
			Description: "Code style and formatting",
		},
	}
}

// recipeFile is the schema of a user-supplied recipes.yaml.
type recipeFile struct {
	Recipes []Recipe `yaml:"recipes"`
}

// LoadRecipes merges user recipes from path over the built-ins. A user
// recipe with a built-in's id replaces it; a missing file returns just the
// built-ins.
func LoadRecipes(path string) ([]Recipe, error) {
	builtin := BuiltinRecipes()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return builtin, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read recipes: %w", err)
	}

	var file recipeFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse recipes: %w", err)
	}

	merged := make([]Recipe, 0, len(builtin)+len(file.Recipes))
	overridden := make(map[string]struct{})
	for _, r := range file.Recipes {
		if err := validateRecipe(r); err != nil {
			return nil, err
		}
		overridden[r.ID] = struct{}{}
	}
	for _, r := range builtin {
		if _, replaced := overridden[r.ID]; replaced {
			continue
		}
		merged = append(merged, r)
	}
	merged = append(merged, file.Recipes...)
	return merged, nil
}

func validateRecipe(r Recipe) error {
	if r.ID == "" {
		return fmt.Errorf("recipe missing id")
	}
	if len(r.Rules) == 0 {
		return fmt.Errorf("recipe %s has no rules", r.ID)
	}
	switch r.Context {
	case "file", "function", "class":
	default:
		return fmt.Errorf("recipe %s has unknown context %q", r.ID, r.Context)
	}
	return nil
}

// ContextResolver maps a finding to its grouping key for a context level.
// The engine wires a parse-tree-backed resolver; the line-bucket fallback
// is only an approximation for files that no longer parse.
type ContextResolver func(file string, line int, context string) string

// LineBucketResolver is the fallback resolver: 50-line buckets for
// functions, 100-line buckets for classes.
func LineBucketResolver(file string, line int, context string) string {
	switch context {
	case "function":
		bucket := (line / 50) * 50
		return fmt.Sprintf("%s::L%d-%d", file, bucket, bucket+50)
	case "class":
		bucket := (line / 100) * 100
		return fmt.Sprintf("%s::L%d-%d", file, bucket, bucket+100)
	default:
		return file
	}
}

// Pack is one synthesized group of findings.
type Pack struct {
	ID         string
	Recipe     Recipe
	ContextKey string
	Findings   []types.Finding
	Cohesion   float64 // |rules present| / |recipe rules|, in (0,1]
}

// Find groups findings by (recipe, context key) and emits candidate packs
// with at least minFindings members. Each finding joins at most one pack;
// recipes claim findings in declaration order. Output order is
// deterministic: cohesion descending, then context key.
func Find(findings []types.Finding, recipes []Recipe, minFindings int, resolve ContextResolver) []Pack {
	if resolve == nil {
		resolve = LineBucketResolver
	}
	if minFindings < 1 {
		minFindings = 2
	}

	used := make(map[string]struct{})
	var packs []Pack

	for _, recipe := range recipes {
		ruleSet := make(map[string]struct{}, len(recipe.Rules))
		for _, r := range recipe.Rules {
			ruleSet[r] = struct{}{}
		}

		groups := make(map[string][]types.Finding)
		var keys []string
		for _, f := range findings {
			if _, claimed := used[f.StableID()]; claimed {
				continue
			}
			if _, match := ruleSet[f.RuleID]; !match {
				continue
			}
			key := resolve(f.File, f.StartLine, recipe.Context)
			if _, seen := groups[key]; !seen {
				keys = append(keys, key)
			}
			groups[key] = append(groups[key], f)
		}

		sort.Strings(keys)
		for _, key := range keys {
			group := groups[key]
			if len(group) < minFindings {
				continue
			}
			distinct := make(map[string]struct{})
			var ids []string
			for _, f := range group {
				distinct[f.RuleID] = struct{}{}
				ids = append(ids, f.StableID())
			}
			cohesion := float64(len(distinct)) / float64(len(recipe.Rules))
			if cohesion > 1 {
				cohesion = 1
			}

			packs = append(packs, Pack{
				ID:         types.PackPlanID(key, ids),
				Recipe:     recipe,
				ContextKey: key,
				Findings:   group,
				Cohesion:   cohesion,
			})
			for _, f := range group {
				used[f.StableID()] = struct{}{}
			}
		}
	}

	sort.Slice(packs, func(i, j int) bool {
		if packs[i].Cohesion != packs[j].Cohesion {
			return packs[i].Cohesion > packs[j].Cohesion
		}
		return packs[i].ContextKey < packs[j].ContextKey
	})
	return packs
}

// BuildPlan merges the member findings' edits into one pack plan. When any
// pair of merged edits overlaps, the pack is discarded (ok=false) and the
// caller keeps the singletons; an overlap graph is never constructed.
func BuildPlan(p Pack, editsByFinding map[string][]types.Edit) (types.EditPlan, bool) {
	var merged []types.Edit
	var stableIDs []string
	for _, f := range p.Findings {
		stableIDs = append(stableIDs, f.StableID())
		merged = append(merged, editsByFinding[f.StableID()]...)
	}

	for i := range merged {
		for j := i + 1; j < len(merged); j++ {
			if merged[i].Overlaps(merged[j]) {
				return types.EditPlan{}, false
			}
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].File != merged[j].File {
			return merged[i].File < merged[j].File
		}
		return merged[i].StartLine < merged[j].StartLine
	})
	sort.Strings(stableIDs)

	plan := types.EditPlan{
		ID:             p.ID,
		Findings:       stableIDs,
		Edits:          merged,
		RuleIDs:        types.RuleIDUnion(p.Findings),
		Kind:           types.KindPack,
		Cohesion:       p.Cohesion,
		SourceFindings: p.Findings,
	}
	return plan, true
}
