package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/walker"
)

func walkFixture(t *testing.T, files map[string]string) (string, []walker.FileInfo) {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644))
	}
	walked, err := walker.Walk(root, walker.DefaultOptions())
	require.NoError(t, err)
	return root, walked
}

func TestUpdateAndSaveRoundTrip(t *testing.T) {
	root, files := walkFixture(t, map[string]string{"a.py": "x = 1\n", "b.py": "y = 2\n"})

	idx, err := Load(filepath.Join(root, "index.json"))
	require.NoError(t, err)
	idx.Update(files, nil)
	require.Len(t, idx.Files, 2)

	// Update hashes every walked file when no hash map is supplied.
	for _, f := range idx.Files {
		assert.Len(t, f.SHA, 64)
	}

	path := filepath.Join(root, ".ace", "index.json")
	require.NoError(t, idx.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, idx.Files, loaded.Files)
}

func TestHasChangedDetectsModification(t *testing.T) {
	root, files := walkFixture(t, map[string]string{"a.py": "x = 1\n"})

	idx, err := Load(filepath.Join(root, "none.json"))
	require.NoError(t, err)
	idx.Update(files, nil)

	assert.False(t, idx.HasChanged(files[0]))

	// A size change is detected without hashing.
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 1234\n"), 0o644))
	rewalked, err := walker.Walk(root, walker.DefaultOptions())
	require.NoError(t, err)
	assert.True(t, idx.HasChanged(rewalked[0]))
	assert.Len(t, idx.ChangedFiles(rewalked), 1)
}

func TestUnknownFileIsChanged(t *testing.T) {
	idx, err := Load(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.True(t, idx.HasChanged(walker.FileInfo{RelPath: "new.py"}))
}
