// Package walker provides a deterministic, ignore-honoring filesystem
// walker used to enumerate the file set for detection and indexing.
package walker

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ignoreFileName is the project-local ignore file, gitignore syntax.
const ignoreFileName = ".aceignore"

// FileInfo is a minimal deterministic descriptor of a walked file.
type FileInfo struct {
	RelPath string // project-relative path with forward slashes
	AbsPath string // absolute filesystem path
	Size    int64
	MTime   time.Time
	Ext     string // lowercase extension including dot
}

// Options configures a walk.
type Options struct {
	// Exts restricts results to these lowercase extensions; empty means all.
	Exts map[string]struct{}
	// ExcludeDirs are directory basenames skipped outright (e.g. ".git").
	ExcludeDirs map[string]struct{}
	// MaxFileBytes drops files larger than this; 0 means unlimited.
	MaxFileBytes int64
}

// DefaultOptions returns walk options suitable for source analysis.
func DefaultOptions() Options {
	return Options{
		ExcludeDirs: map[string]struct{}{
			".git":          {},
			".ace":          {},
			".hg":           {},
			"node_modules":  {},
			"__pycache__":   {},
			".venv":         {},
			"venv":          {},
			".tox":          {},
			".mypy_cache":   {},
			".pytest_cache": {},
		},
	}
}

// Walk enumerates regular files under root, honoring the project ignore
// file (gitignore syntax, read from .aceignore then .gitignore) and the
// exclude set. Results are sorted by RelPath so output order never depends
// on directory iteration order.
func Walk(root string, opts Options) ([]FileInfo, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	patterns := loadIgnorePatterns(rootAbs)

	var files []FileInfo
	err = filepath.WalkDir(rootAbs, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		rel, relErr := filepath.Rel(rootAbs, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		base := filepath.Base(rel)
		if d.IsDir() {
			if _, skip := opts.ExcludeDirs[base]; skip {
				return filepath.SkipDir
			}
			if matchIgnore(patterns, rel, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if matchIgnore(patterns, rel, false) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil || !info.Mode().IsRegular() {
			return nil
		}
		if opts.MaxFileBytes > 0 && info.Size() > opts.MaxFileBytes {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(opts.Exts) > 0 {
			if _, ok := opts.Exts[ext]; !ok {
				return nil
			}
		}

		files = append(files, FileInfo{
			RelPath: rel,
			AbsPath: path,
			Size:    info.Size(),
			MTime:   info.ModTime(),
			Ext:     ext,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// loadIgnorePatterns reads .aceignore (preferred) or .gitignore from root.
// A missing or unreadable ignore file simply yields no patterns.
func loadIgnorePatterns(root string) []ignorePattern {
	for _, name := range []string{ignoreFileName, ".gitignore"} {
		pats, err := parseIgnoreFile(filepath.Join(root, name))
		if err == nil && pats != nil {
			return pats
		}
	}
	return nil
}

// ignorePattern is one compiled gitignore line.
type ignorePattern struct {
	neg     bool // pattern starts with '!'
	dirOnly bool // pattern ends with '/'
	rx      *regexp.Regexp
}

// parseIgnoreFile compiles gitignore-syntax patterns:
//   - '#' comments and blank lines ignored
//   - '!' negation
//   - leading '/' anchors to the project root
//   - trailing '/' restricts to directories
//   - '**' crosses directories; '*' and '?' do not
func parseIgnoreFile(path string) ([]ignorePattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pats []ignorePattern
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		neg := false
		if strings.HasPrefix(line, "!") {
			neg = true
			line = strings.TrimSpace(line[1:])
			if line == "" {
				continue
			}
		}
		dirOnly := strings.HasSuffix(line, "/")
		line = strings.TrimSuffix(line, "/")
		anchored := strings.HasPrefix(line, "/")
		line = strings.TrimPrefix(line, "/")

		pats = append(pats, ignorePattern{
			neg:     neg,
			dirOnly: dirOnly,
			rx:      compileGlob(line, anchored),
		})
	}
	if len(pats) == 0 {
		return []ignorePattern{}, nil
	}
	return pats, nil
}

// compileGlob translates one gitignore glob into a regexp over slashed
// relative paths.
func compileGlob(glob string, anchored bool) *regexp.Regexp {
	esc := regexp.QuoteMeta(glob)
	esc = strings.ReplaceAll(esc, `\*\*`, "__DS__")
	esc = strings.ReplaceAll(esc, `\*`, "[^/]*")
	esc = strings.ReplaceAll(esc, `\?`, "[^/]")
	esc = strings.ReplaceAll(esc, "__DS__", ".*")

	var pattern string
	if anchored {
		pattern = "^" + esc + "(/.*)?$"
	} else {
		pattern = "(^|.*/)" + esc + "(/.*)?$"
	}
	return regexp.MustCompile(pattern)
}

// matchIgnore applies patterns in order; the last match wins, so a later
// negation can re-include an earlier exclusion.
func matchIgnore(pats []ignorePattern, rel string, isDir bool) bool {
	ignored := false
	for _, p := range pats {
		if p.dirOnly && !isDir {
			// Directory-only patterns still cover files beneath the
			// directory: a/ ignores a/b.py via the (/.*)? suffix.
			if !strings.Contains(rel, "/") {
				continue
			}
		}
		if p.rx.MatchString(rel) {
			ignored = !p.neg
		}
	}
	return ignored
}
