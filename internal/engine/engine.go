// Package engine wires the subsystems into the top-level run pipeline:
// detect, synthesize, prioritize, apply under guard, journal, learn. All
// shared state lives in an explicit Engine value threaded through the
// pipeline; there is no hidden process-wide mutable state.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/cache"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/codemods"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/guard"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/index"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/kernel"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/lang"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/learn"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/policy"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/repomap"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/rules"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/telemetry"
)

// StateDirName is the hidden per-project state directory.
const StateDirName = ".ace"

// Options configures an engine.
type Options struct {
	Root        string // project root; required
	Jobs        int    // detection worker count; 0 = GOMAXPROCS
	UseCache    bool
	GuardMode   guard.Mode
	PolicyPath  string // defaults to <root>/.ace/policy.toml
	FileTimeout time.Duration

	// Clock is injectable so decay, ranking and timestamps are
	// deterministic under test. Nil means time.Now.
	Clock func() time.Time
}

// Engine is the explicit context for one run.
type Engine struct {
	opts Options

	Policy    *policy.Policy
	Rules     *rules.Registry
	Codemods  *codemods.Registry
	Langs     *lang.Registry
	Guard     *guard.Guard
	Cache     *cache.Cache
	Learner   *learn.Learner
	Skiplist  *learn.Skiplist
	Telemetry *telemetry.Telemetry
	Index     *index.Index
	RepoMap   *repomap.Map

	clock func() time.Time
}

// New loads persistent state and builds the engine. Policy, repomap and
// baseline are read-only after this point.
func New(opts Options) (*Engine, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root is required")
	}
	if opts.GuardMode == "" {
		opts.GuardMode = guard.ModeStrict
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	stateDir := filepath.Join(opts.Root, StateDirName)

	policyPath := opts.PolicyPath
	if policyPath == "" {
		policyPath = filepath.Join(stateDir, "policy.toml")
	}
	pol, err := policy.Load(policyPath)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:      opts,
		Policy:    pol,
		Rules:     rules.DefaultRegistry(),
		Codemods:  codemods.DefaultRegistry(),
		Langs:     lang.DefaultRegistry(),
		Learner:   learn.New(filepath.Join(stateDir, "learn.json")),
		Skiplist:  learn.NewSkiplist(filepath.Join(stateDir, "skiplist.json")),
		Telemetry: telemetry.New(filepath.Join(stateDir, "telemetry.jsonl")),
		clock:     clock,
	}
	e.Guard = guard.New(e.Langs)
	e.Learner.SetClock(clock)
	e.Skiplist.SetClock(clock)
	e.Telemetry.SetClock(clock)

	if err := e.Learner.Load(); err != nil {
		return nil, fmt.Errorf("failed to load learner state: %w", err)
	}
	if err := e.Skiplist.Load(); err != nil {
		return nil, fmt.Errorf("failed to load skiplist: %w", err)
	}

	e.Index, err = index.Load(filepath.Join(stateDir, "index.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to load content index: %w", err)
	}

	if opts.UseCache {
		e.Cache, err = cache.Open(filepath.Join(stateDir, "cache.db"))
		if err != nil {
			return nil, err
		}
		e.Cache.SetClock(clock)
	}
	return e, nil
}

// StateDir returns the engine's hidden state directory.
func (e *Engine) StateDir() string {
	return filepath.Join(e.opts.Root, StateDirName)
}

// JournalDir returns the journal directory.
func (e *Engine) JournalDir() string {
	return filepath.Join(e.StateDir(), "journals")
}

// Now returns the engine's (possibly injected) current time.
func (e *Engine) Now() time.Time { return e.clock() }

// NewRunID mints the identifier for a run's journal. The UTC start time
// leads the id so journal names sort chronologically.
func (e *Engine) NewRunID() string {
	return "run-" + e.clock().UTC().Format("20060102T150405.000000000") + "-" + uuid.NewString()
}

// BuildRepoMap builds and persists symbols.json. The serialized form is a
// pure function of the source bytes: no build timestamp is ever embedded.
func (e *Engine) BuildRepoMap(ctx context.Context) (*repomap.Map, error) {
	m, err := repomap.Build(ctx, e.opts.Root, e.Langs)
	if err != nil {
		return nil, err
	}
	if err := m.Save(filepath.Join(e.StateDir(), "symbols.json")); err != nil {
		return nil, err
	}
	e.RepoMap = m
	return m, nil
}

// LoadRepoMap loads a previously built symbols.json.
func (e *Engine) LoadRepoMap() (*repomap.Map, error) {
	m, err := repomap.Load(filepath.Join(e.StateDir(), "symbols.json"))
	if err != nil {
		return nil, err
	}
	e.RepoMap = m
	return m, nil
}

// Close flushes mutable state (learner, skiplist, index) and releases the
// cache handle.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.Learner.Save(); err != nil {
		firstErr = err
	}
	if err := e.Skiplist.Save(); err != nil && firstErr == nil {
		firstErr = err
	}
	if e.Index != nil {
		if err := e.Index.Save(filepath.Join(e.StateDir(), "index.json")); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.Cache != nil {
		if err := e.Cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// newKernel builds the detection kernel for this engine.
func (e *Engine) newKernel() (*kernel.Kernel, error) {
	return kernel.New(kernel.Config{
		Jobs:        e.opts.Jobs,
		FileTimeout: e.opts.FileTimeout,
		Registry:    e.Rules,
		Policy:      e.Policy,
		Cache:       e.Cache,
		RecordTiming: func(ruleID string, elapsed time.Duration) {
			_ = e.Telemetry.Record(ruleID, elapsed)
		},
	})
}
