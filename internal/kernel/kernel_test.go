package kernel

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/cache"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/policy"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/rules"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/walker"
)

func fixtureTree(t *testing.T) (string, []walker.FileInfo) {
	t.Helper()
	dir := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("src/client.py", "import requests\n\nresp = requests.get(url)\n")
	write("src/danger.py", "eval(payload)\n")
	write("src/broken.py", "def broken(:\n")
	write("vendor/gen.py", "eval(x)\n")

	files, err := walker.Walk(dir, walker.DefaultOptions())
	require.NoError(t, err)
	return dir, files
}

func testConfig(t *testing.T) Config {
	t.Helper()
	p := policy.Default()
	p.Suppress.Paths = []string{"vendor/**"}
	return Config{
		Jobs:     4,
		Registry: rules.DefaultRegistry(),
		Policy:   p,
	}
}

func runKernel(t *testing.T, cfg Config, files []walker.FileInfo) *Result {
	t.Helper()
	k, err := New(cfg)
	require.NoError(t, err)
	res, err := k.Run(context.Background(), files)
	require.NoError(t, err)
	return res
}

func serialize(t *testing.T, res *Result) string {
	t.Helper()
	data, err := json.Marshal(res.Findings)
	require.NoError(t, err)
	return string(data)
}

func TestRunFindsAndSorts(t *testing.T) {
	_, files := fixtureTree(t)
	res := runKernel(t, testConfig(t), files)

	require.NotEmpty(t, res.Findings)
	for i := 1; i < len(res.Findings); i++ {
		prev, cur := res.Findings[i-1], res.Findings[i]
		assert.LessOrEqual(t, prev.File, cur.File)
	}
	for i, f := range res.Findings {
		assert.Equal(t, i, f.RunID, "run ids are dense in sorted order")
	}
}

func TestRunPathSuppressionSkipsFile(t *testing.T) {
	_, files := fixtureTree(t)
	res := runKernel(t, testConfig(t), files)
	for _, f := range res.Findings {
		assert.NotContains(t, f.File, "vendor/")
	}
}

func TestRunEmitsParseFailureFinding(t *testing.T) {
	_, files := fixtureTree(t)
	res := runKernel(t, testConfig(t), files)

	found := false
	for _, f := range res.Findings {
		if f.RuleID == rules.RuleParseFailure && f.File == "src/broken.py" {
			found = true
			assert.Equal(t, 0.1, f.Severity)
		}
	}
	assert.True(t, found, "syntactically invalid file yields an internal.parse finding")
}

func TestJobsOneEqualsJobsN(t *testing.T) {
	_, files := fixtureTree(t)

	cfg1 := testConfig(t)
	cfg1.Jobs = 1
	cfgN := testConfig(t)
	cfgN.Jobs = 8

	out1 := serialize(t, runKernel(t, cfg1, files))
	outN := serialize(t, runKernel(t, cfgN, files))
	assert.Equal(t, out1, outN, "worker count must not affect serialized findings")
}

func TestCacheTransparency(t *testing.T) {
	dir, files := fixtureTree(t)

	c, err := cache.Open(filepath.Join(dir, ".ace", "cache.db"))
	require.NoError(t, err)
	defer c.Close()

	plain := testConfig(t)
	cold := testConfig(t)
	cold.Cache = c
	warm := testConfig(t)
	warm.Cache = c

	offOut := serialize(t, runKernel(t, plain, files))
	coldOut := serialize(t, runKernel(t, cold, files))
	warmOut := serialize(t, runKernel(t, warm, files))

	assert.Equal(t, offOut, coldOut, "cold cache must be transparent")
	assert.Equal(t, offOut, warmOut, "warm cache must be transparent")

	n, err := c.Stats()
	require.NoError(t, err)
	assert.Greater(t, n, 0, "warm run populated the cache")
}

func TestCancelReturnsPartial(t *testing.T) {
	_, files := fixtureTree(t)
	cfg := testConfig(t)
	k, err := New(cfg)
	require.NoError(t, err)

	k.Cancel()
	res, err := k.Run(context.Background(), files)
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Empty(t, res.Findings, "cancellation before the first file yields no findings")
}

func TestFileHashesRecorded(t *testing.T) {
	_, files := fixtureTree(t)
	res := runKernel(t, testConfig(t), files)
	assert.Contains(t, res.FileHashes, "src/client.py")
	assert.Len(t, res.FileHashes["src/client.py"], 64)
}

func TestInSourceFileSuppressionShortCircuits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("# ace:file-disable-all\neval(x)\n"), 0o644))
	files, err := walker.Walk(dir, walker.DefaultOptions())
	require.NoError(t, err)

	res := runKernel(t, testConfig(t), files)
	assert.Empty(t, res.Findings)
}
