package journal

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/store"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// RevertTarget is one file restoration derived from a completed
// intent/success pair, ordered most recent first in a revert plan.
type RevertTarget struct {
	File        string
	ExpectedSHA string // hash the file must have now (the recorded after_sha)
	OriginalSHA string // hash the restore must reproduce (the recorded before_sha)
	BlobName    string
	InlineImage []byte
	PlanID      string
	RuleIDs     []string
}

// RevertOutcome summarizes one revert attempt.
type RevertOutcome struct {
	File     string
	Reverted bool
	Skipped  bool
	Reason   string
}

// BuildRevertPlan pairs intents with successes and returns the targets in
// reverse temporal order. Aborted plans (intent followed by revert) do not
// appear: there is nothing on disk to undo.
func BuildRevertPlan(entries []Entry) []RevertTarget {
	type pending struct {
		intent  *Entry
		success *Entry
	}
	byFile := make(map[string]*pending)
	var order []string

	for i := range entries {
		e := entries[i]
		switch e.Type {
		case TypeIntent:
			if _, seen := byFile[e.File]; !seen {
				order = append(order, e.File)
			}
			byFile[e.File] = &pending{intent: &entries[i]}
		case TypeSuccess:
			if p, ok := byFile[e.File]; ok && p.intent != nil {
				p.success = &entries[i]
			}
		case TypeRevert:
			// A revert entry after an intent clears the pair: either the
			// apply aborted or a prior revert already restored the file.
			if p, ok := byFile[e.File]; ok {
				p.intent = nil
				p.success = nil
			}
		}
	}

	var plan []RevertTarget
	for i := len(order) - 1; i >= 0; i-- {
		p := byFile[order[i]]
		if p == nil || p.intent == nil || p.success == nil {
			continue
		}
		inline, _ := base64.StdEncoding.DecodeString(p.intent.PreImage)
		plan = append(plan, RevertTarget{
			File:        order[i],
			ExpectedSHA: p.success.AfterSHA,
			OriginalSHA: p.intent.BeforeSHA,
			BlobName:    p.intent.PreImageBlob,
			InlineImage: inline,
			PlanID:      p.intent.PlanID,
			RuleIDs:     p.intent.RuleIDs,
		})
	}
	return plan
}

// originalBytes recovers the full pre-image for a target: the blob store
// first, the inline image only when it covers the whole file.
func originalBytes(journalDir string, t RevertTarget) ([]byte, error) {
	if t.BlobName != "" {
		data, err := os.ReadFile(filepath.Join(journalDir, "blobs", t.BlobName))
		if err == nil && store.SHA256Hex(data) == t.OriginalSHA {
			return data, nil
		}
	}
	if store.SHA256Hex(t.InlineImage) == t.OriginalSHA {
		return t.InlineImage, nil
	}
	return nil, fmt.Errorf("%w: no pre-image reproduces %s for %s", types.ErrIntegrity, t.OriginalSHA, t.File)
}

// RevertRun undoes every completed modification of a run. Each target's
// current content must hash to the recorded after_sha; mismatches are
// skipped with a warning, never overwritten. A successful restore is
// verified against before_sha and recorded in the same journal.
func RevertRun(root, journalDir, runID string, w *Writer) ([]RevertOutcome, error) {
	entries, err := Read(filepath.Join(journalDir, runID+".jsonl"))
	if err != nil {
		return nil, err
	}
	plan := BuildRevertPlan(entries)

	var outcomes []RevertOutcome
	for _, target := range plan {
		outcome := revertOne(root, journalDir, target, w)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func revertOne(root, journalDir string, t RevertTarget, w *Writer) RevertOutcome {
	abs := filepath.Join(root, filepath.FromSlash(t.File))

	current, err := os.ReadFile(abs)
	if err != nil {
		return RevertOutcome{File: t.File, Skipped: true, Reason: fmt.Sprintf("unreadable: %v", err)}
	}
	currentSHA := store.SHA256Hex(current)
	if currentSHA != t.ExpectedSHA {
		return RevertOutcome{File: t.File, Skipped: true,
			Reason: "file changed since apply; refusing to overwrite"}
	}

	original, err := originalBytes(journalDir, t)
	if err != nil {
		return RevertOutcome{File: t.File, Skipped: true, Reason: err.Error()}
	}

	if err := store.AtomicWrite(abs, original); err != nil {
		return RevertOutcome{File: t.File, Skipped: true, Reason: fmt.Sprintf("restore failed: %v", err)}
	}
	restoredSHA, err := store.HashFile(abs)
	if err != nil || restoredSHA != t.OriginalSHA {
		return RevertOutcome{File: t.File, Skipped: true,
			Reason: "restored content does not match original hash"}
	}

	if w != nil {
		_ = w.Revert(t.File, currentSHA, restoredSHA, "manual", t.PlanID)
	}
	return RevertOutcome{File: t.File, Reverted: true}
}

// Recover scans a journal for a trailing intent with no matching success
// or revert: the signature of a crash mid-apply. When the file on disk
// still hashes to before_sha nothing happened; otherwise the pre-image is
// restored and a crash-orphan revert is appended.
func Recover(root, journalDir, runID string, w *Writer) ([]RevertOutcome, error) {
	entries, err := Read(filepath.Join(journalDir, runID+".jsonl"))
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]bool)
	intents := make(map[string]*Entry)
	for i := range entries {
		e := entries[i]
		switch e.Type {
		case TypeIntent:
			intents[e.File] = &entries[i]
			resolved[e.File] = false
		case TypeSuccess, TypeRevert:
			resolved[e.File] = true
		}
	}

	var outcomes []RevertOutcome
	for file, done := range resolved {
		if done {
			continue
		}
		intent := intents[file]
		abs := filepath.Join(root, filepath.FromSlash(file))
		current, err := os.ReadFile(abs)
		if err != nil {
			outcomes = append(outcomes, RevertOutcome{File: file, Skipped: true,
				Reason: fmt.Sprintf("unreadable during recovery: %v", err)})
			continue
		}
		if store.SHA256Hex(current) == intent.BeforeSHA {
			// Crash happened before the write; nothing to do.
			outcomes = append(outcomes, RevertOutcome{File: file, Skipped: true, Reason: "unchanged"})
			continue
		}

		inline, _ := base64.StdEncoding.DecodeString(intent.PreImage)
		original, err := originalBytes(journalDir, RevertTarget{
			File: file, OriginalSHA: intent.BeforeSHA, BlobName: intent.PreImageBlob, InlineImage: inline,
		})
		if err != nil {
			outcomes = append(outcomes, RevertOutcome{File: file, Skipped: true, Reason: err.Error()})
			continue
		}
		if err := store.AtomicWrite(abs, original); err != nil {
			outcomes = append(outcomes, RevertOutcome{File: file, Skipped: true,
				Reason: fmt.Sprintf("restore failed: %v", err)})
			continue
		}
		if w != nil {
			_ = w.Revert(file, store.SHA256Hex(current), intent.BeforeSHA, "crash-orphan", intent.PlanID)
		}
		outcomes = append(outcomes, RevertOutcome{File: file, Reverted: true, Reason: "crash-orphan"})
	}
	return outcomes, nil
}
