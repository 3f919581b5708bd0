package repomap

import (
	"sort"
	"time"
)

// FileScore is the ranker's per-file result.
type FileScore struct {
	File          string  `json:"file"`
	Score         float64 `json:"score"`
	SymbolDensity float64 `json:"symbol_density"` // 0..1
	RecencyBoost  float64 `json:"recency_boost"`  // 1.0..1.5
	SymbolCount   int     `json:"symbol_count"`
}

// Ranker scores files by symbol density and modification recency. The
// current time is injected so ranking is deterministic under test.
type Ranker struct {
	m   *Map
	now time.Time
}

// NewRanker builds a ranker over an index with a fixed current time.
func NewRanker(m *Map, now time.Time) *Ranker {
	return &Ranker{m: m, now: now}
}

// ScoreFile computes the combined score for one file, or nil when the file
// is not indexed.
func (r *Ranker) ScoreFile(file string) *FileScore {
	entries := r.m.FileSymbols(file)
	if len(entries) == 0 {
		return nil
	}

	symbolCount := 0
	var size, maxMTime int64
	for _, e := range entries {
		if e.Kind == "function" || e.Kind == "class" {
			symbolCount++
		}
		size = e.Size
		if e.MTime > maxMTime {
			maxMTime = e.MTime
		}
	}

	density := symbolDensity(symbolCount, size)
	recency := r.recencyBoost(maxMTime)

	return &FileScore{
		File:          file,
		Score:         density + recency,
		SymbolDensity: density,
		RecencyBoost:  recency,
		SymbolCount:   symbolCount,
	}
}

// symbolDensity normalizes functions+classes per estimated KLOC into 0..1,
// capping at 100 symbols per KLOC. LOC is estimated from file size at ~50
// bytes per line.
func symbolDensity(symbolCount int, size int64) float64 {
	if symbolCount == 0 {
		return 0
	}
	kloc := float64(size) / 50.0 / 1000.0
	if kloc <= 0 {
		kloc = 0.001
	}
	density := float64(symbolCount) / kloc / 100.0
	if density > 1 {
		density = 1
	}
	return density
}

// recencyBoost maps days-since-modification into 1.0..1.5.
func (r *Ranker) recencyBoost(mtime int64) float64 {
	secondsSince := r.now.Unix() - mtime
	if secondsSince < 1 {
		secondsSince = 1
	}
	daysSince := float64(secondsSince) / 86400.0
	boost := 7.0 / daysSince
	if boost > 0.5 {
		boost = 0.5
	}
	return 1.0 + boost
}

// ContextBoost returns the planner's normalized context signal for a set of
// affected files: the mean of each file's symbol density and scaled
// recency, in [0,1]. Unindexed files contribute zero.
func (r *Ranker) ContextBoost(files []string) float64 {
	if len(files) == 0 {
		return 0
	}
	total := 0.0
	for _, f := range files {
		if score := r.ScoreFile(f); score != nil {
			recencyNorm := (score.RecencyBoost - 1.0) * 2.0 // 1.0..1.5 -> 0..1
			total += (score.SymbolDensity + recencyNorm) / 2.0
		}
	}
	return total / float64(len(files))
}

// HotFiles returns the top files by combined score, ties broken by path so
// the ordering is a pure function of the index and the injected time.
func (r *Ranker) HotFiles(limit int) []FileScore {
	var scores []FileScore
	for _, f := range r.m.Files() {
		if s := r.ScoreFile(f); s != nil {
			scores = append(scores, *s)
		}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].File < scores[j].File
	})
	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores
}
