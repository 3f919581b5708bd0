package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	require.NoError(t, AtomicWrite(path, []byte("hello")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestAtomicWriteReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	require.NoError(t, AtomicWrite(path, []byte("old")))
	require.NoError(t, AtomicWrite(path, []byte("new")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AtomicWrite(filepath.Join(dir, "a"), []byte("x")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Name())
}

func TestSHA256Hex(t *testing.T) {
	// Known vector for the empty input
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		SHA256Hex(nil))
	assert.Len(t, SHA256Hex([]byte("abc")), 64)
}

func TestMarshalCanonicalIsDeterministic(t *testing.T) {
	type sample struct {
		Zebra int      `json:"zebra"`
		Alpha string   `json:"alpha"`
		List  []string `json:"list"`
	}
	v := sample{Zebra: 1, Alpha: "x", List: []string{"c", "a", "b"}}

	a, err := MarshalCanonical(v)
	require.NoError(t, err)
	b, err := MarshalCanonical(v)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Keys come out in codepoint order, arrays keep caller order
	s := string(a)
	assert.Less(t, indexOf(s, `"alpha"`), indexOf(s, `"zebra"`))
	assert.Less(t, indexOf(s, `"c"`), indexOf(s, `"a"`))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestSaveLoadJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	in := map[string]int{"a": 1, "b": 2}
	require.NoError(t, SaveJSON(path, in))

	var out map[string]int
	ok, err := LoadJSON(path, &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, in, out)
}

func TestLoadJSONMissingFile(t *testing.T) {
	var out map[string]int
	ok, err := LoadJSON(filepath.Join(t.TempDir(), "nope.json"), &out)
	require.NoError(t, err)
	assert.False(t, ok)
}
