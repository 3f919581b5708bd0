// Package repomap builds and queries the deterministic symbol and
// import-dependency index persisted as symbols.json.
package repomap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/lang"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/store"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/walker"
)

// Entry is one declared symbol or top-level module. The serialized form
// contains no wall-clock timestamp: two builds over identical bytes produce
// byte-identical files.
type Entry struct {
	Name  string   `json:"name"`
	Kind  string   `json:"kind"` // function, class, module
	File  string   `json:"file"`
	Line  int      `json:"line"`
	Deps  []string `json:"deps"` // sorted imports
	MTime int64    `json:"mtime"`
	Size  int64    `json:"size"`
}

// Map is the in-memory index, read-only after load.
type Map struct {
	Entries []Entry `json:"entries"`

	byFile map[string][]Entry
}

// Build walks root and parses every supported source file into symbol
// entries. Unparseable files are skipped; the repomap is a best-effort
// index, not a gate.
func Build(ctx context.Context, root string, registry *lang.Registry) (*Map, error) {
	opts := walker.DefaultOptions()
	files, err := walker.Walk(root, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	m := &Map{}
	for _, fi := range files {
		parser := registry.ForPath(fi.RelPath)
		if parser == nil {
			continue
		}
		src, err := os.ReadFile(fi.AbsPath)
		if err != nil {
			continue
		}
		tree, err := parser.Parse(ctx, src)
		if err != nil {
			continue
		}

		deps := parser.Imports(tree)
		if deps == nil {
			deps = []string{}
		}
		m.Entries = append(m.Entries, Entry{
			Name:  moduleName(fi.RelPath),
			Kind:  string(lang.SymbolModule),
			File:  fi.RelPath,
			Line:  1,
			Deps:  deps,
			MTime: fi.MTime.Unix(),
			Size:  fi.Size,
		})
		for _, sym := range parser.Symbols(tree) {
			m.Entries = append(m.Entries, Entry{
				Name:  sym.Qualified,
				Kind:  string(sym.Kind),
				File:  fi.RelPath,
				Line:  sym.Line,
				Deps:  []string{},
				MTime: fi.MTime.Unix(),
				Size:  fi.Size,
			})
		}
	}

	m.sortEntries()
	m.rebuildIndex()
	return m, nil
}

// moduleName converts a relative path to a dotted module name.
func moduleName(rel string) string {
	trimmed := strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.ReplaceAll(trimmed, "/", ".")
}

func (m *Map) sortEntries() {
	sort.Slice(m.Entries, func(i, j int) bool {
		a, b := m.Entries[i], m.Entries[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Name < b.Name
	})
}

func (m *Map) rebuildIndex() {
	m.byFile = make(map[string][]Entry)
	for _, e := range m.Entries {
		m.byFile[e.File] = append(m.byFile[e.File], e)
	}
}

// Save writes the index deterministically; the output is a pure function
// of the entries.
func (m *Map) Save(path string) error {
	return store.SaveJSON(path, m)
}

// Load reads a previously saved index. A missing file yields an empty map.
func Load(path string) (*Map, error) {
	m := &Map{}
	if _, err := store.LoadJSON(path, m); err != nil {
		return nil, err
	}
	m.rebuildIndex()
	return m, nil
}

// FileSymbols returns the entries recorded for one file.
func (m *Map) FileSymbols(file string) []Entry {
	return m.byFile[file]
}

// Files returns the sorted list of indexed files.
func (m *Map) Files() []string {
	files := make([]string, 0, len(m.byFile))
	for f := range m.byFile {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Dependents returns the files whose module entry imports the module
// declared by file, sorted.
func (m *Map) Dependents(file string) []string {
	target := moduleName(file)
	var out []string
	for _, e := range m.Entries {
		if e.Kind != string(lang.SymbolModule) || e.File == file {
			continue
		}
		for _, dep := range e.Deps {
			if dep == target {
				out = append(out, e.File)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
