package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePolicy = `
[meta]
version = "2"
description = "test policy"

[scoring]
alpha = 0.7
beta = 0.3
gamma = 0.2
auto_threshold = 0.60
suggest_threshold = 0.50

[limits]
warn_at = 10
fail_at = 50
fail_on_critical = true

[modes]
"PY-Q203-EVAL-EXEC" = "detect-only"

[risk_classes]
security = ["PY-S101-UNSAFE-HTTP", "PY-Q203-EVAL-EXEC"]

[suppressions]
paths = ["vendor/**", "*_generated.py"]

[suppressions.rules]
"PY-Q202-PRINT-IN-SRC" = ["scripts/**"]

[packs]
enabled = true
min_findings = 2
prefer_packs = true
`

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "policy.toml"))
	require.NoError(t, err)
	assert.Equal(t, 0.7, p.Scoring.Alpha)
	assert.Equal(t, 0.70, p.Scoring.AutoThreshold)
	assert.NotEmpty(t, p.Hash)
}

func TestLoadParsesAllSections(t *testing.T) {
	p, err := Load(writePolicy(t, samplePolicy))
	require.NoError(t, err)

	assert.Equal(t, "2", p.Meta.Version)
	assert.Equal(t, 0.60, p.Scoring.AutoThreshold)
	assert.True(t, p.Limits.FailOnCritical)
	assert.True(t, p.IsDetectOnly("PY-Q203-EVAL-EXEC"))
	assert.False(t, p.IsDetectOnly("PY-S101-UNSAFE-HTTP"))
	assert.Equal(t, "security", p.RiskClass("PY-S101-UNSAFE-HTTP"))
	assert.Equal(t, "", p.RiskClass("PY-E201-BROAD-EXCEPT"))
	assert.Len(t, p.Hash, 64)
}

func TestLoadRejectsInvalidThresholds(t *testing.T) {
	_, err := Load(writePolicy(t, `
[scoring]
alpha = 0.7
beta = 0.3
gamma = 0.2
auto_threshold = 0.40
suggest_threshold = 0.50
`))
	assert.Error(t, err, "auto_threshold below suggest_threshold must fail")

	_, err = Load(writePolicy(t, `
[scoring]
alpha = 1.5
beta = 0.3
gamma = 0.2
auto_threshold = 0.7
suggest_threshold = 0.5
`))
	assert.Error(t, err, "weights outside [0,1] must fail")
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	_, err := Load(writePolicy(t, `
[modes]
"PY-X" = "yolo"
`))
	assert.Error(t, err)
}

func TestPathSuppression(t *testing.T) {
	p, err := Load(writePolicy(t, samplePolicy))
	require.NoError(t, err)

	assert.True(t, p.IsPathSuppressed("vendor/lib/a.py", "PY-S101-UNSAFE-HTTP"))
	assert.True(t, p.IsPathSuppressed("models_generated.py", "PY-S101-UNSAFE-HTTP"))
	assert.True(t, p.IsPathSuppressed("scripts/run.py", "PY-Q202-PRINT-IN-SRC"))
	assert.False(t, p.IsPathSuppressed("scripts/run.py", "PY-S101-UNSAFE-HTTP"),
		"per-rule glob only suppresses its own rule")
	assert.False(t, p.IsPathSuppressed("src/app.py", "PY-S101-UNSAFE-HTTP"))

	assert.True(t, p.IsPathFullySuppressed("vendor/lib/a.py"))
	assert.False(t, p.IsPathFullySuppressed("scripts/run.py"))
}

func TestGateCounts(t *testing.T) {
	p := Default()
	p.Limits = Limits{WarnAt: 2, FailAt: 4}

	warn, fail := p.GateCounts([]float64{0.5}, []string{"R1"})
	assert.False(t, warn)
	assert.False(t, fail)

	warn, fail = p.GateCounts([]float64{0.5, 0.5, 0.5}, []string{"R1", "R1", "R1"})
	assert.True(t, warn)
	assert.False(t, fail)

	warn, fail = p.GateCounts([]float64{0.5, 0.5, 0.5, 0.5}, []string{"R1", "R1", "R1", "R1"})
	assert.True(t, warn)
	assert.True(t, fail)
}

func TestGateCountsFailOnCritical(t *testing.T) {
	p := Default()
	p.Limits = Limits{FailOnCritical: true}
	p.RiskClasses = map[string][]string{"critical": {"R-SEC"}}

	_, fail := p.GateCounts([]float64{0.95}, []string{"R1"})
	assert.True(t, fail, "severity at or above 0.9 is critical")

	_, fail = p.GateCounts([]float64{0.3}, []string{"R-SEC"})
	assert.True(t, fail, "membership in the critical risk class fails the gate")

	_, fail = p.GateCounts([]float64{0.3}, []string{"R1"})
	assert.False(t, fail)
}

func TestPolicyHashStableAcrossLoads(t *testing.T) {
	path := writePolicy(t, samplePolicy)
	p1, err := Load(path)
	require.NoError(t, err)
	p2, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, p1.Hash, p2.Hash)
}
