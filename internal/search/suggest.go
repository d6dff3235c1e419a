package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTrendingWindow is the rolling window for trending queries when
// not configured.
const DefaultTrendingWindow = 24 * time.Hour

// SuggestionRecord tracks how often a normalized query has been searched.
type SuggestionRecord struct {
	Query      string    `json:"query"`
	UsageCount int64     `json:"usage_count"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// TrendingQuery is one entry of the trending list: a query and its count
// within the rolling window.
type TrendingQuery struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// logEntry is one raw query occurrence feeding the trending window.
type logEntry struct {
	query string
	at    time.Time
}

// Aggregator maintains suggestion counters and a rolling query log for
// trending computation. It exclusively owns this state; increments are
// safe under concurrent use. The trending list is derived on read, never
// persisted.
type Aggregator struct {
	mu      sync.Mutex
	records map[string]*SuggestionRecord
	log     []logEntry
}

// NewAggregator creates an empty suggestion/trending aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{records: make(map[string]*SuggestionRecord)}
}

// Record increments (or creates) the suggestion counter for a query and
// appends it to the rolling log. The query is normalized: trimmed and
// case-folded. Blank queries are ignored.
func (a *Aggregator) Record(query string) {
	a.recordAt(query, time.Now())
}

func (a *Aggregator) recordAt(query string, at time.Time) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.records[normalized]
	if !ok {
		rec = &SuggestionRecord{Query: normalized}
		a.records[normalized] = rec
	}
	rec.UsageCount++
	if at.After(rec.LastUsedAt) {
		rec.LastUsedAt = at
	}

	a.log = append(a.log, logEntry{query: normalized, at: at})
}

// Suggestions returns records whose query starts with the given prefix,
// ordered by usage count descending, then most recent use. The prefix is
// normalized the same way recorded queries are.
func (a *Aggregator) Suggestions(prefix string, limit int) []SuggestionRecord {
	normalized := strings.ToLower(strings.TrimSpace(prefix))
	if limit <= 0 {
		limit = DefaultLimit
	}

	a.mu.Lock()
	var out []SuggestionRecord
	for _, rec := range a.records {
		if normalized != "" && !strings.HasPrefix(rec.Query, normalized) {
			continue
		}
		out = append(out, *rec)
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		if !out[i].LastUsedAt.Equal(out[j].LastUsedAt) {
			return out[i].LastUsedAt.After(out[j].LastUsedAt)
		}
		return out[i].Query < out[j].Query
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Trending computes the most frequent queries within the rolling window,
// ordered by in-window count descending. Recomputed on every read.
func (a *Aggregator) Trending(window time.Duration, limit int) []TrendingQuery {
	if window <= 0 {
		window = DefaultTrendingWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	cutoff := time.Now().Add(-window)

	a.mu.Lock()
	counts := make(map[string]int)
	for _, entry := range a.log {
		if entry.at.After(cutoff) {
			counts[entry.query]++
		}
	}
	a.mu.Unlock()

	out := make([]TrendingQuery, 0, len(counts))
	for q, n := range counts {
		out = append(out, TrendingQuery{Query: q, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// PruneLog drops log entries older than the retention window and returns
// how many were removed. Suggestion counters are retained; only the raw
// log feeding trending computation is bounded.
func (a *Aggregator) PruneLog(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.log[:0]
	removed := 0
	for _, entry := range a.log {
		if entry.at.After(cutoff) {
			kept = append(kept, entry)
		} else {
			removed++
		}
	}
	a.log = kept
	return removed
}

// RunPeriodicPrune prunes the query log at the given interval until the
// context is cancelled, keeping entries within the retention window.
// Blocks; typically run in a goroutine alongside the service.
func (a *Aggregator) RunPeriodicPrune(ctx context.Context, interval, retention time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := a.PruneLog(retention); removed > 0 {
				logger.Info("pruned aged query log entries", "removed", removed)
			}
		case <-ctx.Done():
			logger.Info("stopping query log prune")
			return
		}
	}
}
