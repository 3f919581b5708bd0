// Package journal provides the append-only, fsync-ordered edit log that
// powers exact revert. One JSONL file per run; entries are immutable once
// fsynced.
package journal

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/store"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// Entry types in the wire format.
const (
	TypeIntent  = "intent"
	TypeSuccess = "success"
	TypeRevert  = "revert"
)

// inlinePreImageLimit caps the pre-image bytes stored inline in the intent
// entry. The full original always goes to the content-addressed blob side
// store, so files of any size restore exactly.
const inlinePreImageLimit = 4096

// Entry is one journal line. Unknown fields in stored journals are
// ignored on read; missing required fields reject the line and mark the
// run non-recoverable.
type Entry struct {
	Type      string   `json:"type"`
	Timestamp string   `json:"timestamp"` // ISO-8601 UTC
	File      string   `json:"file"`

	// intent fields
	BeforeSHA  string   `json:"before_sha,omitempty"`
	BeforeSize int64    `json:"before_size,omitempty"`
	RuleIDs    []string `json:"rule_ids,omitempty"`
	PlanID     string   `json:"plan_id,omitempty"`
	PreImage   string   `json:"pre_image,omitempty"`      // base64, first 4 KiB
	PreImageBlob string `json:"pre_image_blob,omitempty"` // blob file name under blobs/

	// success fields
	AfterSHA  string `json:"after_sha,omitempty"`
	AfterSize int64  `json:"after_size,omitempty"`
	ReceiptID string `json:"receipt_id,omitempty"`

	// revert fields
	FromSHA string `json:"from_sha,omitempty"`
	ToSHA   string `json:"to_sha,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Writer appends entries to one run's journal. All appends go through a
// single mutex and each line is fsynced before the append returns, so the
// stream order on disk is the order callers observed.
type Writer struct {
	mu      sync.Mutex
	runID   string
	dir     string
	file    *os.File
	now     func() time.Time
}

// NewWriter opens (creating if needed) the journal for runID under dir.
func NewWriter(dir, runID string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Join(dir, "blobs"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	path := filepath.Join(dir, runID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// The journal file's creation must itself be durable before the first
	// intent claims anything.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return &Writer{runID: runID, dir: dir, file: f, now: time.Now}, nil
}

// SetClock injects the timestamp source.
func (w *Writer) SetClock(now func() time.Time) { w.now = now }

// RunID returns the journal's run identifier.
func (w *Writer) RunID() string { return w.runID }

// Path returns the journal file location.
func (w *Writer) Path() string { return filepath.Join(w.dir, w.runID+".jsonl") }

// append serializes the entry as one line and fsyncs. A failed fsync is
// fatal for the whole run: the journal can no longer be trusted.
func (w *Writer) append(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e.Timestamp = w.now().UTC().Format(time.RFC3339Nano)
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to serialize journal entry: %w", err)
	}
	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: journal write failed: %v", types.ErrNonRecoverable, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("%w: journal fsync failed: %v", types.ErrNonRecoverable, err)
	}
	return nil
}

// Intent records the intention to modify file. The full original bytes go
// to the content-addressed blob store first, so the intent never refers to
// a pre-image that might not survive a crash.
func (w *Writer) Intent(file string, before []byte, ruleIDs []string, planID string) error {
	beforeSHA := store.SHA256Hex(before)
	blobName := beforeSHA + ".bin"
	if err := store.AtomicWrite(filepath.Join(w.dir, "blobs", blobName), before); err != nil {
		return fmt.Errorf("failed to store pre-image blob: %w", err)
	}

	inline := before
	if len(inline) > inlinePreImageLimit {
		inline = inline[:inlinePreImageLimit]
	}
	ids := append([]string(nil), ruleIDs...)
	sort.Strings(ids)

	return w.append(Entry{
		Type:         TypeIntent,
		File:         file,
		BeforeSHA:    beforeSHA,
		BeforeSize:   int64(len(before)),
		RuleIDs:      ids,
		PlanID:       planID,
		PreImage:     base64.StdEncoding.EncodeToString(inline),
		PreImageBlob: blobName,
	})
}

// Success records a completed modification.
func (w *Writer) Success(file string, after []byte, receiptID, planID string) error {
	return w.append(Entry{
		Type:      TypeSuccess,
		File:      file,
		AfterSHA:  store.SHA256Hex(after),
		AfterSize: int64(len(after)),
		ReceiptID: receiptID,
		PlanID:    planID,
	})
}

// Revert records an undo or an aborted apply.
func (w *Writer) Revert(file, fromSHA, toSHA, reason, planID string) error {
	return w.append(Entry{
		Type:    TypeRevert,
		File:    file,
		FromSHA: fromSHA,
		ToSHA:   toSHA,
		Reason:  reason,
		PlanID:  planID,
	})
}

// Close releases the journal file handle.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Read parses a journal file. Lines missing required fields reject the
// whole journal as non-recoverable; unknown fields are ignored for forward
// compatibility.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("%w: journal line %d unparseable: %v", types.ErrNonRecoverable, lineNo, err)
		}
		if err := validateEntry(e); err != nil {
			return nil, fmt.Errorf("%w: journal line %d: %v", types.ErrNonRecoverable, lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func validateEntry(e Entry) error {
	if e.Timestamp == "" || e.File == "" {
		return fmt.Errorf("missing timestamp or file")
	}
	switch e.Type {
	case TypeIntent:
		if e.BeforeSHA == "" || e.PlanID == "" {
			return fmt.Errorf("intent missing before_sha or plan_id")
		}
	case TypeSuccess:
		if e.AfterSHA == "" {
			return fmt.Errorf("success missing after_sha")
		}
	case TypeRevert:
		if e.Reason == "" {
			return fmt.Errorf("revert missing reason")
		}
	default:
		return fmt.Errorf("unknown entry type %q", e.Type)
	}
	return nil
}

// ListRuns returns the run ids present under dir, most recent name last.
func ListRuns(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var runs []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		runs = append(runs, strings.TrimSuffix(e.Name(), ".jsonl"))
	}
	sort.Strings(runs)
	return runs, nil
}
