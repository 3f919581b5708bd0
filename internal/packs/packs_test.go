package packs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/rules"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

func finding(rule, file string, line int) types.Finding {
	return types.Finding{
		RuleID: rule, File: file, StartLine: line, EndLine: line,
		Severity: 0.5, Complexity: 0.2,
		ContextHash: types.ComputeContextHash(rule, file, "slice", ""),
	}
}

func TestFindGroupsWithinContext(t *testing.T) {
	findings := []types.Finding{
		finding(rules.RuleUnsafeHTTP, "a.py", 10),
		finding(rules.RuleSubprocessCheck, "a.py", 15),
		finding(rules.RuleUnsafeHTTP, "b.py", 10), // alone in its file
	}
	packs := Find(findings, BuiltinRecipes(), 2, nil)

	require.Len(t, packs, 1)
	assert.Equal(t, "PY_HTTP_SAFETY", packs[0].Recipe.ID)
	assert.Len(t, packs[0].Findings, 2)
	// two of the recipe's three rules present
	assert.InDelta(t, 2.0/3.0, packs[0].Cohesion, 0.001)
}

func TestFindRespectsMinFindings(t *testing.T) {
	findings := []types.Finding{finding(rules.RuleUnsafeHTTP, "a.py", 10)}
	assert.Empty(t, Find(findings, BuiltinRecipes(), 2, nil))
}

func TestPackIDStableUnderReordering(t *testing.T) {
	a := finding(rules.RuleUnsafeHTTP, "a.py", 10)
	b := finding(rules.RuleSubprocessCheck, "a.py", 15)

	p1 := Find([]types.Finding{a, b}, BuiltinRecipes(), 2, nil)
	p2 := Find([]types.Finding{b, a}, BuiltinRecipes(), 2, nil)
	require.Len(t, p1, 1)
	require.Len(t, p2, 1)
	assert.Equal(t, p1[0].ID, p2[0].ID)
}

func TestFindingClaimedByOneRecipeOnly(t *testing.T) {
	f := finding(rules.RuleUnsafeHTTP, "a.py", 10)
	g := finding(rules.RuleDeadImport, "a.py", 1)
	// RuleDeadImport is in PY_HTTP_SAFETY; both findings land there and
	// cannot be re-claimed by a later recipe.
	packs := Find([]types.Finding{f, g}, BuiltinRecipes(), 2, func(file string, line int, ctx string) string {
		return file // single context so they group
	})
	require.Len(t, packs, 1)
	total := 0
	for _, p := range packs {
		total += len(p.Findings)
	}
	assert.Equal(t, 2, total)
}

func TestCustomResolverSplitsContexts(t *testing.T) {
	findings := []types.Finding{
		finding(rules.RuleUnsafeHTTP, "a.py", 10),
		finding(rules.RuleSubprocessCheck, "a.py", 300),
	}
	// Parse-tree resolver puts them in different functions
	resolver := func(file string, line int, ctx string) string {
		if line < 100 {
			return file + "::fetch"
		}
		return file + "::run"
	}
	assert.Empty(t, Find(findings, BuiltinRecipes(), 2, resolver),
		"split contexts leave no group at min_findings")
}

func TestBuildPlanMergesEdits(t *testing.T) {
	a := finding(rules.RuleUnsafeHTTP, "a.py", 10)
	b := finding(rules.RuleSubprocessCheck, "a.py", 15)
	packsFound := Find([]types.Finding{a, b}, BuiltinRecipes(), 2, nil)
	require.Len(t, packsFound, 1)

	edits := map[string][]types.Edit{
		a.StableID(): {{File: "a.py", StartLine: 10, EndLine: 10, Op: types.OpReplace, Payload: "x"}},
		b.StableID(): {{File: "a.py", StartLine: 15, EndLine: 15, Op: types.OpReplace, Payload: "y"}},
	}
	plan, ok := BuildPlan(packsFound[0], edits)
	require.True(t, ok)
	assert.Equal(t, types.KindPack, plan.Kind)
	assert.Len(t, plan.Edits, 2)
	assert.NoError(t, plan.Validate())
	assert.Contains(t, plan.ID, "pack-")
}

func TestBuildPlanDiscardsOverlappingPack(t *testing.T) {
	a := finding(rules.RuleUnsafeHTTP, "a.py", 10)
	b := finding(rules.RuleSubprocessCheck, "a.py", 15)
	packsFound := Find([]types.Finding{a, b}, BuiltinRecipes(), 2, nil)
	require.Len(t, packsFound, 1)

	edits := map[string][]types.Edit{
		a.StableID(): {{File: "a.py", StartLine: 10, EndLine: 15, Op: types.OpReplace, Payload: "x"}},
		b.StableID(): {{File: "a.py", StartLine: 12, EndLine: 18, Op: types.OpReplace, Payload: "y"}},
	}
	_, ok := BuildPlan(packsFound[0], edits)
	assert.False(t, ok, "overlapping edits force the fallback to singletons")
}

func TestLoadRecipesMissingFileReturnsBuiltins(t *testing.T) {
	recipes, err := LoadRecipes(filepath.Join(t.TempDir(), "recipes.yaml"))
	require.NoError(t, err)
	assert.Equal(t, BuiltinRecipes(), recipes)
}

func TestLoadRecipesMergesAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
recipes:
  - id: TEAM_SECURITY
    rules: ["PY-S101-UNSAFE-HTTP", "PY-Q203-EVAL-EXEC"]
    context: file
    description: team security sweep
  - id: PY_STYLE
    rules: ["PY-S310-TRAILING-WS"]
    context: file
    description: trailing whitespace only
`), 0o644))

	recipes, err := LoadRecipes(path)
	require.NoError(t, err)

	byID := make(map[string]Recipe)
	for _, r := range recipes {
		byID[r.ID] = r
	}
	assert.Contains(t, byID, "TEAM_SECURITY")
	assert.Contains(t, byID, "PY_HTTP_SAFETY", "untouched built-ins survive")
	require.Contains(t, byID, "PY_STYLE")
	assert.Equal(t, []string{"PY-S310-TRAILING-WS"}, byID["PY_STYLE"].Rules,
		"a user recipe with a built-in id replaces it")
	assert.Len(t, recipes, len(BuiltinRecipes())+1)
}

func TestLoadRecipesRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "bad-context.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
recipes:
  - id: BROKEN
    rules: ["R1"]
    context: module
`), 0o644))
	_, err := LoadRecipes(path)
	assert.Error(t, err)

	path = filepath.Join(dir, "no-rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
recipes:
  - id: EMPTY
    context: file
`), 0o644))
	_, err = LoadRecipes(path)
	assert.Error(t, err)

	path = filepath.Join(dir, "not-yaml.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{nope"), 0o644))
	_, err = LoadRecipes(path)
	assert.Error(t, err)
}

func TestLineBucketResolver(t *testing.T) {
	assert.Equal(t, "a.py", LineBucketResolver("a.py", 10, "file"))
	assert.Equal(t, "a.py::L0-50", LineBucketResolver("a.py", 10, "function"))
	assert.Equal(t, "a.py::L50-100", LineBucketResolver("a.py", 60, "function"))
	assert.Equal(t, "a.py::L0-100", LineBucketResolver("a.py", 60, "class"))
}
