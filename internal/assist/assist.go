// Package assist provides the optional language-model explanation
// provider. The core has no network egress of its own; the provider lives
// behind a strict budget (at most 4 calls per run, 100 tokens each,
// cached on content fingerprint) and its absence degrades to heuristic
// text without error.
package assist

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/store"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// Budget limits, fixed by contract rather than policy.
const (
	maxCallsPerRun = 4
	maxTokens      = 100

	defaultModel = "claude-sonnet-4-5"
)

// Provider produces a short natural-language explanation for a plan.
type Provider interface {
	Explain(ctx context.Context, action *types.Action) (string, error)
}

// Heuristic is the no-network fallback: it rephrases the rationale the
// planner already computed.
type Heuristic struct{}

// Explain implements Provider without any external call.
func (Heuristic) Explain(_ context.Context, action *types.Action) (string, error) {
	kind := "fix"
	if action.Plan.Kind == types.KindPack {
		kind = "grouped fix"
	}
	return fmt.Sprintf("%s touching %s (%s): %s",
		kind,
		strings.Join(action.Plan.Files(), ", "),
		strings.Join(action.Plan.RuleIDs, ", "),
		action.Rationale), nil
}

// Anthropic is the API-backed provider.
type Anthropic struct {
	client  *anthropic.Client
	model   string
	limiter *rate.Limiter

	mu    sync.Mutex
	calls int
	memo  map[string]string // content fingerprint -> explanation
}

// NewAnthropic builds the provider from the environment; a missing API
// key returns nil so callers fall back to Heuristic.
func NewAnthropic(model string) *Anthropic {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = defaultModel
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Anthropic{
		client:  &client,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		memo:    make(map[string]string),
	}
}

// fingerprint keys the memo on the plan's content, so identical plans seen
// again by the same assistant reuse the cached text without a call. The
// memo lives in memory only and does not carry over between processes.
func fingerprint(action *types.Action) string {
	return store.SHA256Hex([]byte(action.Plan.ID + "|" + action.Rationale))[:16]
}

// Explain asks the model for a one-sentence explanation. Over-budget
// calls return the heuristic text instead of an error.
func (a *Anthropic) Explain(ctx context.Context, action *types.Action) (string, error) {
	key := fingerprint(action)

	a.mu.Lock()
	if text, hit := a.memo[key]; hit {
		a.mu.Unlock()
		return text, nil
	}
	if a.calls >= maxCallsPerRun {
		a.mu.Unlock()
		return Heuristic{}.Explain(ctx, action)
	}
	a.calls++
	a.mu.Unlock()

	if err := a.limiter.Wait(ctx); err != nil {
		return Heuristic{}.Explain(ctx, action)
	}

	prompt := fmt.Sprintf(
		"In one sentence, explain this automated refactoring to a developer.\nRules: %s\nFiles: %s\nScoring: %s",
		strings.Join(action.Plan.RuleIDs, ", "),
		strings.Join(action.Plan.Files(), ", "),
		action.Rationale)

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		// The assist layer never fails a run.
		return Heuristic{}.Explain(ctx, action)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(text.String())
	if out == "" {
		return Heuristic{}.Explain(ctx, action)
	}

	a.mu.Lock()
	a.memo[key] = out
	a.mu.Unlock()
	return out, nil
}

// Default returns the Anthropic provider when configured, else Heuristic.
func Default() Provider {
	if a := NewAnthropic(""); a != nil {
		return a
	}
	return Heuristic{}
}
