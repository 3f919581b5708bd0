// Package index maintains the content index (index.json): per-file size,
// mtime and content hash, used for cheap change detection between runs.
package index

import (
	"os"
	"sort"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/store"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/walker"
)

// FileEntry records one file's identity at index time.
type FileEntry struct {
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	MTime int64  `json:"mtime"`
	SHA   string `json:"sha"`
}

// Index is the persisted content index.
type Index struct {
	Files []FileEntry `json:"files"`

	byPath map[string]FileEntry
}

// Load reads index.json; a missing file yields an empty index.
func Load(path string) (*Index, error) {
	idx := &Index{}
	if _, err := store.LoadJSON(path, idx); err != nil {
		return nil, err
	}
	idx.rebuild()
	return idx, nil
}

func (idx *Index) rebuild() {
	idx.byPath = make(map[string]FileEntry, len(idx.Files))
	for _, f := range idx.Files {
		idx.byPath[f.Path] = f
	}
}

// Update refreshes the index from walked files and their content hashes.
func (idx *Index) Update(files []walker.FileInfo, hashes map[string]string) {
	idx.Files = idx.Files[:0]
	for _, f := range files {
		sha, ok := hashes[f.RelPath]
		if !ok {
			data, err := os.ReadFile(f.AbsPath)
			if err != nil {
				continue
			}
			sha = store.SHA256Hex(data)
		}
		idx.Files = append(idx.Files, FileEntry{
			Path:  f.RelPath,
			Size:  f.Size,
			MTime: f.MTime.Unix(),
			SHA:   sha,
		})
	}
	sort.Slice(idx.Files, func(i, j int) bool { return idx.Files[i].Path < idx.Files[j].Path })
	idx.rebuild()
}

// Save writes the index atomically.
func (idx *Index) Save(path string) error {
	return store.SaveJSON(path, idx)
}

// HasChanged reports whether a file differs from its indexed state, judged
// by size and mtime alone; the recorded hash is not consulted, so a rewrite
// that keeps both size and mtime reads as unchanged.
func (idx *Index) HasChanged(f walker.FileInfo) bool {
	prev, known := idx.byPath[f.RelPath]
	if !known {
		return true
	}
	if prev.Size != f.Size || prev.MTime != f.MTime.Unix() {
		return true
	}
	return false
}

// SHA returns the recorded hash for path, or "".
func (idx *Index) SHA(path string) string {
	return idx.byPath[path].SHA
}

// ChangedFiles filters files down to those new or modified since the last
// index update.
func (idx *Index) ChangedFiles(files []walker.FileInfo) []walker.FileInfo {
	var changed []walker.FileInfo
	for _, f := range files {
		if idx.HasChanged(f) {
			changed = append(changed, f)
		}
	}
	return changed
}
