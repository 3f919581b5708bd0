package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

func ruleIDs(findings []types.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.RuleID
	}
	return out
}

func TestPythonDetectorUnsafeHTTP(t *testing.T) {
	d := NewPythonDetector()
	src := []byte("import requests\n\nresp = requests.get(url)\nok = requests.post(url, timeout=5)\n")

	findings, err := d.Analyze("src/client.py", src)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, RuleUnsafeHTTP, findings[0].RuleID)
	assert.Equal(t, 3, findings[0].StartLine)
	assert.Equal(t, 0.7, findings[0].Severity)
	assert.Len(t, findings[0].ContextHash, 16)
}

func TestPythonDetectorSubprocess(t *testing.T) {
	d := NewPythonDetector()
	src := []byte("import subprocess\n\nsubprocess.run(cmd)\nsubprocess.run(cmd, check=True)\n")

	findings, err := d.Analyze("src/run.py", src)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, RuleSubprocessCheck, findings[0].RuleID)
}

func TestPythonDetectorBroadExcept(t *testing.T) {
	d := NewPythonDetector()
	src := []byte(`try:
    work()
except:
    pass

try:
    work()
except Exception:
    pass

try:
    work()
except ValueError:
    pass
`)
	findings, err := d.Analyze("src/app.py", src)
	require.NoError(t, err)
	require.Len(t, findings, 2, "bare and Exception handlers flagged, ValueError not")
	assert.Equal(t, RuleBroadExcept, findings[0].RuleID)
	assert.Equal(t, 3, findings[0].StartLine)
	assert.Equal(t, 8, findings[1].StartLine)
}

func TestPythonDetectorSkipsTestsForAssertAndPrint(t *testing.T) {
	d := NewPythonDetector()
	src := []byte("def check(x):\n    assert x > 0\n    print(x)\n")

	findings, err := d.Analyze("src/app.py", src)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{RuleAssertNonTest, RulePrintInSrc}, ruleIDs(findings))

	findings, err = d.Analyze("tests/test_app.py", src)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestPythonDetectorEvalExec(t *testing.T) {
	d := NewPythonDetector()
	findings, err := d.Analyze("src/app.py", []byte("eval(data)\nexec(code)\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{RuleEvalExec, RuleEvalExec}, ruleIDs(findings))
	assert.Equal(t, 0.9, findings[0].Severity)
}

func TestPythonDetectorParseError(t *testing.T) {
	d := NewPythonDetector()
	_, err := d.Analyze("src/bad.py", []byte("def broken(:\n"))
	assert.ErrorIs(t, err, types.ErrParse)
}

func TestPythonDetectorDeterministicHashes(t *testing.T) {
	d := NewPythonDetector()
	src := []byte("resp = requests.get(url)\n")
	a, err := d.Analyze("f.py", src)
	require.NoError(t, err)
	b, err := d.Analyze("f.py", src)
	require.NoError(t, err)
	require.Len(t, a, 1)
	assert.Equal(t, a[0].StableID(), b[0].StableID())
}

func TestStyleDetector(t *testing.T) {
	d := NewStyleDetector()
	src := []byte("x = 1   \n\n\n\ny = 2")

	findings, err := d.Analyze("src/app.py", src)
	require.NoError(t, err)
	got := ruleIDs(findings)
	assert.Contains(t, got, RuleTrailingWS)
	assert.Contains(t, got, RuleBlankLines)
	assert.Contains(t, got, RuleEOFNewline)
}

func TestStyleDetectorCleanFile(t *testing.T) {
	d := NewStyleDetector()
	findings, err := d.Analyze("src/app.py", []byte("x = 1\n"))
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestGoModDetector(t *testing.T) {
	d := NewGoModDetector()
	src := []byte("module example.com/m\n\nrequire (\n\texample.com/a v1.0.0\n\texample.com/a v1.1.0\n)\n")

	findings, err := d.Analyze("go.mod", src)
	require.NoError(t, err)
	got := ruleIDs(findings)
	assert.Len(t, got, 2, "missing go directive + duplicate require")
}

func TestGoModDetectorClean(t *testing.T) {
	d := NewGoModDetector()
	findings, err := d.Analyze("go.mod", []byte("module example.com/m\n\ngo 1.22\n"))
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestRegistryRulesetHash(t *testing.T) {
	r := DefaultRegistry()
	h1 := r.RulesetHash("1.0.0")
	h2 := r.RulesetHash("1.0.0")
	assert.Equal(t, h1, h2)

	assert.NotEqual(t, h1, r.RulesetHash("1.0.1"), "engine version is part of the hash")

	r.Disable(RuleEvalExec)
	assert.NotEqual(t, h1, r.RulesetHash("1.0.0"), "disabling a rule changes the hash")
	assert.False(t, r.Enabled(RuleEvalExec))
}

func TestParseFailureFinding(t *testing.T) {
	f := ParseFailureFinding("bad.py", []byte("def broken(:\n"), "syntax error at line 1")
	assert.Equal(t, RuleParseFailure, f.RuleID)
	assert.Equal(t, 0.1, f.Severity)
	assert.NoError(t, f.Validate())
}
