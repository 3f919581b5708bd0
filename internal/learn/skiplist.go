package learn

import (
	"sync"
	"time"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/store"
)

// SkipEntry is one learned suppression: a (rule, file) pair rejected often
// enough that its findings are filtered before plan synthesis. The content
// hash pins the entry to the file's bytes; when the file changes, the
// entry no longer matches and expires.
type SkipEntry struct {
	RuleID      string `json:"rule_id"`
	File        string `json:"file"`
	ContentHash string `json:"content_hash"`
	AddedAt     int64  `json:"added_at"` // epoch seconds
	Reason      string `json:"reason"`
}

// key identifies an entry by rule and file; the content hash is checked at
// match time so stale entries self-clean.
func (e SkipEntry) key() string { return e.RuleID + "|" + e.File }

// Skiplist is the persistent learned-suppression store.
type Skiplist struct {
	mu      sync.Mutex
	path    string
	entries map[string]SkipEntry
	now     func() time.Time
}

// NewSkiplist creates a skiplist persisting at path.
func NewSkiplist(path string) *Skiplist {
	return &Skiplist{path: path, entries: make(map[string]SkipEntry), now: time.Now}
}

// SetClock injects the time source.
func (s *Skiplist) SetClock(now func() time.Time) { s.now = now }

// Load reads persisted entries; a missing file starts empty.
func (s *Skiplist) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make(map[string]SkipEntry)
	if _, err := store.LoadJSON(s.path, &entries); err != nil {
		return err
	}
	s.entries = entries
	return nil
}

// Save persists entries with an atomic write. Additions also save
// opportunistically so a crash cannot lose a learned skip.
func (s *Skiplist) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Skiplist) saveLocked() error {
	return store.SaveJSON(s.path, s.entries)
}

// Add records a (rule, file, content-hash) triple and persists
// immediately.
func (s *Skiplist) Add(ruleID, file, contentHash, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := SkipEntry{
		RuleID:      ruleID,
		File:        file,
		ContentHash: contentHash,
		AddedAt:     s.now().Unix(),
		Reason:      reason,
	}
	s.entries[e.key()] = e
	return s.saveLocked()
}

// Matches reports whether findings of ruleID on file should be filtered.
// A stored entry whose content hash no longer equals the file's current
// hash is dropped: the file changed, so the learned rejection is stale.
func (s *Skiplist) Matches(ruleID, file, currentContentHash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[ruleID+"|"+file]
	if !ok {
		return false
	}
	if e.ContentHash != currentContentHash {
		delete(s.entries, e.key())
		_ = s.saveLocked()
		return false
	}
	return true
}

// Len returns the entry count.
func (s *Skiplist) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
