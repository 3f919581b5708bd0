package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

func openTest(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), ".ace", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleFindings() []types.Finding {
	return []types.Finding{{
		RuleID: "PY-S101-UNSAFE-HTTP", File: "a.py", StartLine: 3, EndLine: 3,
		Severity: 0.7, Complexity: 0.2, Message: "m", ContextHash: "aabbccdd00112233",
	}}
}

func TestGetMissOnEmpty(t *testing.T) {
	c := openTest(t)
	_, ok, err := c.Get("a.py", "sha", "rs", "1.0.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutGetRoundTrip(t *testing.T) {
	c := openTest(t)
	in := sampleFindings()
	require.NoError(t, c.Put("a.py", "sha", "rs", "1.0.0", in))

	out, ok, err := c.Get("a.py", "sha", "rs", "1.0.0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestKeyMismatchIsMiss(t *testing.T) {
	c := openTest(t)
	require.NoError(t, c.Put("a.py", "sha", "rs", "1.0.0", sampleFindings()))

	for _, key := range [][4]string{
		{"a.py", "other", "rs", "1.0.0"},  // file hash changed
		{"a.py", "sha", "other", "1.0.0"}, // ruleset changed
		{"a.py", "sha", "rs", "2.0.0"},    // engine version changed
		{"b.py", "sha", "rs", "1.0.0"},    // different path
	} {
		_, ok, err := c.Get(key[0], key[1], key[2], key[3])
		require.NoError(t, err)
		assert.False(t, ok, "key %v must miss", key)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := openTest(t)
	base := time.Unix(1700000000, 0)
	c.SetClock(func() time.Time { return base })
	c.SetTTL(time.Hour)

	require.NoError(t, c.Put("a.py", "sha", "rs", "1.0.0", sampleFindings()))

	_, ok, err := c.Get("a.py", "sha", "rs", "1.0.0")
	require.NoError(t, err)
	assert.True(t, ok, "fresh entry hits")

	c.SetClock(func() time.Time { return base.Add(2 * time.Hour) })
	_, ok, err = c.Get("a.py", "sha", "rs", "1.0.0")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry misses")
}

func TestPurge(t *testing.T) {
	c := openTest(t)
	base := time.Unix(1700000000, 0)
	c.SetClock(func() time.Time { return base })

	require.NoError(t, c.Put("a.py", "sha", "rs-old", "1.0.0", sampleFindings()))
	require.NoError(t, c.Put("b.py", "sha", "rs-new", "1.0.0", sampleFindings()))

	removed, err := c.Purge("rs-new", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "stale ruleset rows purged")

	n, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEmptyFindingsCached(t *testing.T) {
	c := openTest(t)
	require.NoError(t, c.Put("clean.py", "sha", "rs", "1.0.0", nil))

	out, ok, err := c.Get("clean.py", "sha", "rs", "1.0.0")
	require.NoError(t, err)
	assert.True(t, ok, "a clean result is still a hit")
	assert.Empty(t, out)
}
