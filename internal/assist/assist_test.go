package assist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

func TestHeuristicExplain(t *testing.T) {
	action := &types.Action{
		Plan: types.EditPlan{
			ID:      "plan-abc",
			Kind:    types.KindSingleton,
			RuleIDs: []string{"PY-S101-UNSAFE-HTTP"},
			Edits:   []types.Edit{{File: "client.py", StartLine: 3, EndLine: 3, Op: types.OpReplace}},
		},
		Rationale: "medium-risk (R★=0.62)",
	}

	text, err := Heuristic{}.Explain(context.Background(), action)
	require.NoError(t, err)
	assert.Contains(t, text, "client.py")
	assert.Contains(t, text, "PY-S101-UNSAFE-HTTP")
	assert.Contains(t, text, "medium-risk")
}

func TestNewAnthropicWithoutKeyIsNil(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	assert.Nil(t, NewAnthropic(""))
}

func TestDefaultFallsBackToHeuristic(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, isHeuristic := Default().(Heuristic)
	assert.True(t, isHeuristic)
}
