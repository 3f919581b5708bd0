// Package cache memoizes detector results in a sqlite database keyed by
// (path, file hash, ruleset hash, engine version). The cache is a pure
// memoizer: for a fixed source tree and policy, findings with the cache
// enabled are byte-for-byte identical to findings with it disabled.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS detector_results (
	path           TEXT NOT NULL,
	file_sha       TEXT NOT NULL,
	ruleset_sha    TEXT NOT NULL,
	engine_version TEXT NOT NULL,
	findings_json  TEXT NOT NULL,
	inserted_at    INTEGER NOT NULL,
	PRIMARY KEY (path, file_sha, ruleset_sha, engine_version)
);
`

// DefaultTTL bounds how long an entry stays valid even when its keys still
// match.
const DefaultTTL = 14 * 24 * time.Hour

// Cache is the sqlite-backed detector result store. sqlite serializes
// concurrent access; callers share one Cache across workers.
type Cache struct {
	db  *sql.DB
	ttl time.Duration

	// now is injectable so TTL expiry is deterministic under test.
	now func() time.Time
}

// Open creates or opens the cache database at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return &Cache{db: db, ttl: DefaultTTL, now: time.Now}, nil
}

// SetTTL overrides the entry lifetime.
func (c *Cache) SetTTL(ttl time.Duration) { c.ttl = ttl }

// SetClock injects the time source used for insertion and expiry.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

// Get returns the cached findings for the key, or ok=false on miss. A hit
// whose TTL has lapsed is a miss; invalidation is purely functional, the
// row is left for the next Purge.
func (c *Cache) Get(path, fileSHA, rulesetSHA, engineVersion string) ([]types.Finding, bool, error) {
	var payload string
	var insertedAt int64
	err := c.db.QueryRow(`
		SELECT findings_json, inserted_at FROM detector_results
		WHERE path = ? AND file_sha = ? AND ruleset_sha = ? AND engine_version = ?`,
		path, fileSHA, rulesetSHA, engineVersion,
	).Scan(&payload, &insertedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache read failed: %w", err)
	}

	if c.ttl > 0 && c.now().Unix()-insertedAt > int64(c.ttl.Seconds()) {
		return nil, false, nil
	}

	var findings []types.Finding
	if err := json.Unmarshal([]byte(payload), &findings); err != nil {
		// A corrupt row is a miss, not a failure; it will be overwritten.
		return nil, false, nil
	}
	return findings, true, nil
}

// Put stores the findings for the key, replacing any prior entry.
func (c *Cache) Put(path, fileSHA, rulesetSHA, engineVersion string, findings []types.Finding) error {
	if findings == nil {
		findings = []types.Finding{}
	}
	payload, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("cache serialize failed: %w", err)
	}
	_, err = c.db.Exec(`
		INSERT OR REPLACE INTO detector_results
		(path, file_sha, ruleset_sha, engine_version, findings_json, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		path, fileSHA, rulesetSHA, engineVersion, string(payload), c.now().Unix())
	if err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// Purge deletes rows older than the TTL and rows from other engine
// versions or rulesets, returning the number removed.
func (c *Cache) Purge(rulesetSHA, engineVersion string) (int, error) {
	cutoff := c.now().Add(-c.ttl).Unix()
	res, err := c.db.Exec(`
		DELETE FROM detector_results
		WHERE inserted_at < ? OR ruleset_sha != ? OR engine_version != ?`,
		cutoff, rulesetSHA, engineVersion)
	if err != nil {
		return 0, fmt.Errorf("cache purge failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Stats returns the entry count.
func (c *Cache) Stats() (int, error) {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM detector_results`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}
