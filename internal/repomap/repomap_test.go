package repomap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/lang"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/store"
)

func buildFixture(t *testing.T) (string, *Map) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "util.py"),
		[]byte("import os\n\n\ndef helper():\n    return os.getcwd()\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"),
		[]byte("import util\n\n\nclass App:\n    def run(self):\n        return util.helper()\n"), 0o644))

	m, err := Build(context.Background(), dir, lang.DefaultRegistry())
	require.NoError(t, err)
	return dir, m
}

func TestBuildExtractsSymbols(t *testing.T) {
	_, m := buildFixture(t)

	names := make(map[string]string)
	for _, e := range m.Entries {
		names[e.Name] = e.Kind
	}
	assert.Equal(t, "module", names["app"])
	assert.Equal(t, "module", names["util"])
	assert.Equal(t, "class", names["App"])
	assert.Equal(t, "function", names["App.run"])
	assert.Equal(t, "function", names["helper"])
}

func TestSerializationIsDeterministic(t *testing.T) {
	dir, m := buildFixture(t)

	p1 := filepath.Join(dir, "symbols1.json")
	p2 := filepath.Join(dir, "symbols2.json")
	require.NoError(t, m.Save(p1))

	// Rebuild from the same bytes and save again
	m2, err := Build(context.Background(), dir, lang.DefaultRegistry())
	require.NoError(t, err)
	// the index files themselves must not be picked up by the rebuild
	for _, e := range m2.Entries {
		assert.NotContains(t, e.File, "symbols")
	}
	require.NoError(t, m2.Save(p2))

	h1, err := store.HashFile(p1)
	require.NoError(t, err)
	h2, err := store.HashFile(p2)
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "identical source must produce byte-identical symbols.json")
}

func TestLoadRoundTrip(t *testing.T) {
	dir, m := buildFixture(t)
	path := filepath.Join(dir, ".ace", "symbols.json")
	require.NoError(t, m.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Entries, loaded.Entries)
	assert.NotEmpty(t, loaded.FileSymbols("app.py"))
}

func TestDependents(t *testing.T) {
	_, m := buildFixture(t)
	assert.Equal(t, []string{"app.py"}, m.Dependents("util.py"))
	assert.Empty(t, m.Dependents("app.py"))
}

func TestRankerDeterministicUnderFixedTime(t *testing.T) {
	_, m := buildFixture(t)
	now := time.Unix(1700000000, 0)

	a := NewRanker(m, now).ContextBoost([]string{"app.py"})
	b := NewRanker(m, now).ContextBoost([]string{"app.py"})
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, 0.0)
	assert.LessOrEqual(t, a, 1.0)
}

func TestRankerUnknownFileScoresZero(t *testing.T) {
	_, m := buildFixture(t)
	r := NewRanker(m, time.Unix(1700000000, 0))
	assert.Nil(t, r.ScoreFile("missing.py"))
	assert.Equal(t, 0.0, r.ContextBoost([]string{"missing.py"}))
}

func TestHotFilesOrdering(t *testing.T) {
	_, m := buildFixture(t)
	r := NewRanker(m, time.Unix(1700000000, 0))
	hot := r.HotFiles(10)
	require.NotEmpty(t, hot)
	for i := 1; i < len(hot); i++ {
		assert.GreaterOrEqual(t, hot[i-1].Score, hot[i].Score)
	}
}
