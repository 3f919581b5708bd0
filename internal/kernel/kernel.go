// Package kernel drives detectors over a file set with deterministic
// parallel execution. Workers consume one file at a time; collected
// findings are sorted and assigned dense run ids, so the output is
// byte-identical regardless of worker count.
package kernel

import (
	"context"
	"errors"
	"os"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/cache"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/policy"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/rules"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/store"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/suppress"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/walker"
)

// EngineVersion participates in cache keys and ruleset hashes; bump it
// when detector semantics change.
const EngineVersion = "1.2.0"

// Config holds kernel configuration.
type Config struct {
	// Jobs is the worker count; 0 means GOMAXPROCS.
	Jobs int

	// FileTimeout is the per-file soft timeout. A file whose detectors run
	// longer is dropped from the run with a timeout event; the run itself
	// continues. Zero disables the check.
	FileTimeout time.Duration

	// Registry supplies the detectors. Required.
	Registry *rules.Registry

	// Policy supplies path suppressions. Required.
	Policy *policy.Policy

	// Cache memoizes per-file results. Optional.
	Cache *cache.Cache

	// RecordTiming receives (ruleID, elapsed) per detector run for
	// telemetry. Optional.
	RecordTiming func(ruleID string, elapsed time.Duration)
}

// Result is the outcome of one detection pass.
type Result struct {
	Findings     []types.Finding
	Partial      bool     // true when the run was cancelled
	FilesScanned int
	Timeouts     []string // files dropped by the soft timeout, sorted

	// FileHashes maps relative path to content SHA-256 for every scanned
	// file; downstream consumers (skiplist, index) key on it.
	FileHashes map[string]string

	// Suppressions holds the parsed in-source suppression set per file.
	Suppressions map[string]*suppress.Set
}

// Kernel orchestrates detection. A Kernel is single-use per run.
type Kernel struct {
	cfg       Config
	cancelled atomic.Bool
}

// New validates the configuration and returns a kernel.
func New(cfg Config) (*Kernel, error) {
	if cfg.Registry == nil {
		return nil, errMissing("registry")
	}
	if cfg.Policy == nil {
		return nil, errMissing("policy")
	}
	if cfg.Jobs <= 0 {
		cfg.Jobs = runtime.GOMAXPROCS(0)
	}
	return &Kernel{cfg: cfg}, nil
}

func errMissing(what string) error {
	return &configError{what}
}

type configError struct{ what string }

func (e *configError) Error() string { return e.what + " is required" }

// Cancel requests cooperative cancellation. Workers check the flag between
// files, never mid-parse; the run returns with Partial=true.
func (k *Kernel) Cancel() { k.cancelled.Store(true) }

// fileOutcome carries one worker's result for one file.
type fileOutcome struct {
	file     walker.FileInfo
	findings []types.Finding
	sha      string
	supp     *suppress.Set
	timedOut bool
}

// Run executes detection over files and returns the deterministic result.
func (k *Kernel) Run(ctx context.Context, files []walker.FileInfo) (*Result, error) {
	rulesetSHA := k.cfg.Registry.RulesetHash(EngineVersion)

	// Path-level suppressions skip files before any detector runs.
	var eligible []walker.FileInfo
	for _, f := range files {
		if k.cfg.Policy.IsPathFullySuppressed(f.RelPath) {
			continue
		}
		eligible = append(eligible, f)
	}

	outcomes := make(chan fileOutcome, k.cfg.Jobs*2)

	var wg sync.WaitGroup
	wg.Add(1)
	result := &Result{
		FileHashes:   make(map[string]string),
		Suppressions: make(map[string]*suppress.Set),
	}
	go func() {
		defer wg.Done()
		for out := range outcomes {
			result.FilesScanned++
			if out.timedOut {
				result.Timeouts = append(result.Timeouts, out.file.RelPath)
				continue
			}
			result.FileHashes[out.file.RelPath] = out.sha
			if out.supp != nil {
				result.Suppressions[out.file.RelPath] = out.supp
			}
			result.Findings = append(result.Findings, out.findings...)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(k.cfg.Jobs)
	for _, file := range eligible {
		if k.cancelled.Load() || ctx.Err() != nil {
			result.Partial = true
			break
		}
		file := file
		g.Go(func() error {
			out := k.scanFile(ctx, file, rulesetSHA)
			outcomes <- out
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)
	wg.Wait()

	if ctx.Err() != nil {
		result.Partial = true
	}

	// Deterministic merge: sort, dedupe, assign dense run ids.
	result.Findings = finalize(result.Findings)
	sort.Strings(result.Timeouts)
	return result, nil
}

// scanFile runs every applicable detector over one file.
func (k *Kernel) scanFile(ctx context.Context, file walker.FileInfo, rulesetSHA string) fileOutcome {
	out := fileOutcome{file: file}

	src, err := os.ReadFile(file.AbsPath)
	if err != nil {
		// Unreadable files drop out silently; the walker already vetted
		// them once, so this is a race with external modification.
		return out
	}
	out.sha = store.SHA256Hex(src)
	out.supp = suppress.Parse(string(src))
	if out.supp.FileFullySuppressed() {
		return out
	}

	// The cache stores raw detector output; rule and path filters run
	// after retrieval so policy edits take effect on warm caches too.
	if k.cfg.Cache != nil {
		if cached, ok, err := k.cfg.Cache.Get(file.RelPath, out.sha, rulesetSHA, EngineVersion); err == nil && ok {
			out.findings = k.filterFindings(file.RelPath, cached)
			return out
		}
	}

	start := time.Now()
	var detected []types.Finding
	for _, det := range k.cfg.Registry.Detectors() {
		if !detectorApplies(det, file) {
			continue
		}
		found, err := det.Analyze(file.RelPath, src)
		if err != nil {
			if isParseErr(err) {
				detected = append(detected, rules.ParseFailureFinding(file.RelPath, src, err.Error()))
			}
			continue
		}
		detected = append(detected, found...)
	}
	elapsed := time.Since(start)

	if k.cfg.FileTimeout > 0 && elapsed > k.cfg.FileTimeout {
		out.timedOut = true
		return out
	}

	if k.cfg.RecordTiming != nil {
		for _, det := range k.cfg.Registry.Detectors() {
			if !detectorApplies(det, file) {
				continue
			}
			for _, info := range det.Manifest() {
				k.cfg.RecordTiming(info.ID, elapsed)
			}
		}
	}

	if k.cfg.Cache != nil {
		_ = k.cfg.Cache.Put(file.RelPath, out.sha, rulesetSHA, EngineVersion, detected)
	}
	out.findings = k.filterFindings(file.RelPath, detected)
	return out
}

// filterFindings applies rule enablement and policy path suppressions.
func (k *Kernel) filterFindings(relPath string, findings []types.Finding) []types.Finding {
	var kept []types.Finding
	for _, f := range findings {
		if !k.cfg.Registry.Enabled(f.RuleID) {
			continue
		}
		if k.cfg.Policy.IsPathSuppressed(relPath, f.RuleID) {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func detectorApplies(det rules.Detector, file walker.FileInfo) bool {
	exts := det.Extensions()
	if len(exts) == 0 {
		return true
	}
	for _, e := range exts {
		if e == file.Ext {
			return true
		}
	}
	return false
}

func isParseErr(err error) bool {
	return errors.Is(err, types.ErrParse)
}

// finalize sorts, dedupes and assigns run ids. The kernel never interprets
// a finding's meaning.
func finalize(findings []types.Finding) []types.Finding {
	types.SortFindings(findings)
	findings = types.DedupeFindings(findings)
	for i := range findings {
		findings[i].RunID = i
	}
	return findings
}
