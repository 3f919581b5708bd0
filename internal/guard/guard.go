// Package guard verifies candidate edits with layered pre/post checks.
// The guard is stateless and idempotent: it sees only before and after
// bytes plus the declared effects of the rules involved, and never touches
// disk.
package guard

import (
	"context"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/lang"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// Layer names the verification stages in execution order.
type Layer string

const (
	LayerParse      Layer = "parse"
	LayerStructure  Layer = "structure"
	LayerSymbols    Layer = "symbol_counts"
	LayerASTHash    Layer = "ast_hash"
	LayerRoundtrip  Layer = "roundtrip"
	LayerImports    Layer = "import_preservation"
)

// Mode selects how strictly layer failures are treated.
type Mode string

const (
	// ModeStrict fails the edit on any layer failure.
	ModeStrict Mode = "strict"
	// ModeLenient downgrades the structural layers (structure, symbol
	// counts, ast hash, imports) to warnings; parse and roundtrip still
	// gate.
	ModeLenient Mode = "lenient"
)

// Result reports the verification outcome.
type Result struct {
	Passed      bool
	Skip        bool // before-bytes unparseable: do not apply, not a failure
	FailedLayer Layer
	Evidence    []string
	Warnings    []string
}

// Request is one verification job.
type Request struct {
	File    string
	Before  []byte
	After   []byte
	Effects types.RuleEffects
	Mode    Mode
}

// Guard runs the layered checks with a language registry.
type Guard struct {
	registry *lang.Registry
}

// New creates a guard over the given language registry.
func New(registry *lang.Registry) *Guard {
	return &Guard{registry: registry}
}

// Check executes the layers in order and stops at the first enforced
// failure.
func (g *Guard) Check(ctx context.Context, req Request) Result {
	if req.Mode == "" {
		req.Mode = ModeStrict
	}

	parser := g.registry.ForPath(req.File)
	if parser == nil {
		// Languages without a parser pass through: only byte-level layers
		// would apply and none of them exist yet.
		return Result{Passed: true}
	}

	// Layer 1: parse. An unparseable before means the file was already
	// broken; skip rather than fail. An unparseable after is a hard fail
	// in every mode.
	beforeTree, err := parser.Parse(ctx, req.Before)
	if err != nil {
		return Result{
			Skip:        true,
			FailedLayer: LayerParse,
			Evidence:    []string{fmt.Sprintf("before does not parse: %v", err)},
		}
	}
	afterTree, err := parser.Parse(ctx, req.After)
	if err != nil {
		return g.fail(req, LayerParse, fmt.Sprintf("after does not parse: %v", err), nil)
	}

	res := Result{Passed: true}

	// Layer 2: structural equivalence, only when the rule claims to be
	// structure-preserving.
	if req.Effects.StructurePreserving {
		if parser.CanonicalHash(beforeTree) != parser.CanonicalHash(afterTree) {
			if !g.enforce(req.Mode, LayerStructure) {
				res.Warnings = append(res.Warnings, "structure changed under a structure-preserving rule")
			} else {
				return g.fail(req, LayerStructure, "canonical trees differ under a structure-preserving rule", nil)
			}
		}
	}

	// Layer 3: symbol counts.
	beforeCounts := parser.CountSymbols(beforeTree)
	afterCounts := parser.CountSymbols(afterTree)
	if beforeCounts != afterCounts && !req.Effects.MayChangeSymbolCounts {
		detail := fmt.Sprintf("symbol counts changed: before %+v after %+v", beforeCounts, afterCounts)
		if !g.enforce(req.Mode, LayerSymbols) {
			res.Warnings = append(res.Warnings, detail)
		} else {
			return g.fail(req, LayerSymbols, detail, nil)
		}
	}

	// Layer 4: canonical tree hash. Catches meaning changes that survive
	// the superficial checks; a mismatch must be declared in the effect
	// manifest.
	if parser.CanonicalHash(beforeTree) != parser.CanonicalHash(afterTree) && !req.Effects.MayChangeAST {
		detail := "canonical tree hash changed without a declared effect"
		if !g.enforce(req.Mode, LayerASTHash) {
			res.Warnings = append(res.Warnings, detail)
		} else {
			return g.fail(req, LayerASTHash, detail, unifiedDiff(req))
		}
	}

	// Layer 5: roundtrip. After-bytes must survive parse -> emit ->
	// re-parse with a stable tree. The re-parse runs for byte-identical
	// emitters too: equality of the bytes alone would be vacuous for a
	// lossless CST, while a fresh parse of the emitted bytes still
	// catches parser nondeterminism.
	emitted := parser.Reemit(afterTree)
	if parser.ByteIdenticalReemit() && string(emitted) != string(req.After) {
		return g.fail(req, LayerRoundtrip, "re-emission is not byte-identical", nil)
	}
	reTree, err := parser.Parse(ctx, emitted)
	if err != nil {
		return g.fail(req, LayerRoundtrip, fmt.Sprintf("re-emitted source does not parse: %v", err), nil)
	}
	if parser.CanonicalHash(reTree) != parser.CanonicalHash(afterTree) {
		return g.fail(req, LayerRoundtrip, "re-emitted source does not reparse to the same tree", nil)
	}

	// Layer 6: import preservation.
	afterImports := make(map[string]struct{})
	for _, imp := range parser.Imports(afterTree) {
		afterImports[imp] = struct{}{}
	}
	for _, imp := range parser.Imports(beforeTree) {
		if _, kept := afterImports[imp]; kept {
			continue
		}
		if req.Effects.CanRemoveImport(imp) {
			continue
		}
		detail := fmt.Sprintf("import %q vanished without a declared removal", imp)
		if !g.enforce(req.Mode, LayerImports) {
			res.Warnings = append(res.Warnings, detail)
		} else {
			return g.fail(req, LayerImports, detail, nil)
		}
	}

	return res
}

// enforce reports whether a layer failure is fatal under the mode.
func (g *Guard) enforce(mode Mode, layer Layer) bool {
	if mode == ModeStrict {
		return true
	}
	switch layer {
	case LayerStructure, LayerSymbols, LayerASTHash, LayerImports:
		return false
	}
	return true
}

func (g *Guard) fail(req Request, layer Layer, detail string, extra []string) Result {
	evidence := append([]string{detail}, extra...)
	return Result{Passed: false, FailedLayer: layer, Evidence: evidence}
}

// unifiedDiff renders the before/after delta for failure evidence.
func unifiedDiff(req Request) []string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(req.Before)),
		B:        difflib.SplitLines(string(req.After)),
		FromFile: req.File + " (before)",
		ToFile:   req.File + " (after)",
		Context:  2,
	})
	if err != nil || diff == "" {
		return nil
	}
	return []string{diff}
}
