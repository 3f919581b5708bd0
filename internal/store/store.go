// Package store provides the durable file primitives every persistent
// component builds on: atomic writes with fsync ordering, content hashing,
// and deterministic JSON serialization.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

// AtomicWrite writes data to path via sibling temp file + fsync + rename,
// then fsyncs the parent directory so the rename itself is durable. A crash
// at any point leaves the target either fully old or fully new, never
// truncated or partial.
//
// Errors after the rename has been attempted are wrapped as ErrDurability;
// earlier failures surface the raw I/O error.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: rename %s: %v", types.ErrDurability, path, err)
	}
	ok = true

	if err := syncDir(dir); err != nil {
		return fmt.Errorf("%w: fsync %s: %v", types.ErrDurability, dir, err)
	}
	return nil
}

// syncDir fsyncs a directory so a completed rename survives power loss.
// Windows does not support opening directories for sync; the rename is
// already as durable as the platform allows there.
func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// SHA256Hex returns the lowercase hex digest of data. Content fingerprints
// are always computed on raw bytes with no newline or encoding
// normalization.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile returns the SHA-256 of a file's raw bytes.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return SHA256Hex(data), nil
}

// MarshalCanonical serializes v as deterministic JSON: UTF-8, object keys
// in codepoint order, arrays in caller order, 2-space indent. Two calls
// over equal values produce byte-identical output, which lets persisted
// state be compared by content hash.
func MarshalCanonical(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	// encoding/json sorts map keys on marshal, so the round-trip through
	// interface{} canonicalizes struct field order into key order.
	out, err := json.MarshalIndent(sortValue(generic), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// sortValue normalizes nested values; maps marshal with sorted keys
// already, so this is a recursive pass-through that exists to keep array
// element handling explicit.
func sortValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(val))
		for _, k := range keys {
			out[k] = sortValue(val[k])
		}
		return out
	case []interface{}:
		for i := range val {
			val[i] = sortValue(val[i])
		}
		return val
	default:
		return v
	}
}

// SaveJSON canonically serializes v and writes it atomically.
func SaveJSON(path string, v interface{}) error {
	data, err := MarshalCanonical(v)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", path, err)
	}
	return AtomicWrite(path, data)
}

// LoadJSON reads path into v. A missing file is not an error; the out
// value is left untouched and ok is false.
func LoadJSON(path string, v interface{}) (ok bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return true, nil
}
