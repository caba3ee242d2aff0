package memory

import (
	"log/slog"
	"strings"
	"time"
)

// MinConfidence is the floor below which an answer is neither served from
// memory nor promoted into it.
const MinConfidence = 0.9

// webPromoteConfidence is the stricter floor for promoting web-sourced
// answers, which go stale and hallucinate more easily.
const webPromoteConfidence = 0.95

// minAnswerLength filters out stub answers and bare error strings.
const minAnswerLength = 20

// freshnessKeywords mark queries that demand current information. A cached
// answer older than an hour never satisfies such a query.
var freshnessKeywords = []string{"current", "latest", "now", "today", "updated", "recent", "new"}

// errorIndicators disqualify an answer from promotion regardless of the
// confidence the perception agent assigned it.
var errorIndicators = []string{"error", "failed", "not found", "could not", "unable to"}

// CacheRecord is the metadata stored alongside a promoted answer.
type CacheRecord struct {
	Query      string
	Answer     string
	Confidence float64
	Source     string
	Timestamp  time.Time
	TTLHours   int
}

// AgeHours returns the record's age relative to now.
func (r *CacheRecord) AgeHours(now time.Time) float64 {
	if r.Timestamp.IsZero() {
		// Unparseable or missing timestamps are treated as ancient.
		return 1e9
	}
	return now.Sub(r.Timestamp).Hours()
}

// IsValid reports whether a cached record may be served for query. It checks
// confidence, TTL expiry, the tighter web staleness bound, and the freshness
// keyword rule.
func (r *CacheRecord) IsValid(query string, now time.Time) bool {
	if r.Confidence < MinConfidence {
		slog.Debug("Memory rejected: low confidence", "confidence", r.Confidence)
		return false
	}
	if r.Timestamp.IsZero() {
		slog.Debug("Memory rejected: no timestamp")
		return false
	}

	ageHours := r.AgeHours(now)
	// A record without a TTL falls into the default source class (24h),
	// not the long-lived document class.
	ttl := r.TTLHours
	if ttl == 0 {
		ttl = 24
	}
	if ageHours > float64(ttl) {
		slog.Debug("Memory rejected: expired", "age_hours", ageHours, "ttl_hours", ttl)
		return false
	}

	if strings.Contains(strings.ToLower(r.Source), "web") && ageHours > 24 {
		slog.Debug("Memory rejected: web result too old", "age_hours", ageHours)
		return false
	}

	probe := strings.ToLower(query)
	if probe == "" {
		probe = strings.ToLower(r.Query)
	}
	for _, keyword := range freshnessKeywords {
		if strings.Contains(probe, keyword) {
			if ageHours > 1 {
				slog.Debug("Memory rejected: freshness keyword, data too old", "keyword", keyword, "age_hours", ageHours)
				return false
			}
			break
		}
	}

	return true
}

// ShouldPromote decides whether a finished answer earns a place in the
// cross-session cache. Failures never qualify; neither do short answers or
// ones carrying error phrasing, whatever their confidence.
func ShouldPromote(confidence float64, source, answer string, goalAchieved bool) bool {
	if !goalAchieved {
		return false
	}
	if confidence < MinConfidence {
		return false
	}
	if len(answer) < minAnswerLength {
		return false
	}

	lower := strings.ToLower(answer)
	for _, indicator := range errorIndicators {
		if strings.Contains(lower, indicator) {
			return false
		}
	}

	sourceLower := strings.ToLower(source)
	if strings.Contains(sourceLower, "documents") || strings.Contains(sourceLower, "rag") || strings.Contains(sourceLower, "local") {
		return true
	}
	if strings.Contains(sourceLower, "web") {
		return confidence >= webPromoteConfidence
	}
	return true
}

// TTLHoursFor returns the cache lifetime for an answer by source class.
func TTLHoursFor(source string) int {
	sourceLower := strings.ToLower(source)
	switch {
	case strings.Contains(sourceLower, "web"):
		return 6
	case strings.Contains(sourceLower, "documents"), strings.Contains(sourceLower, "rag"), strings.Contains(sourceLower, "local"):
		return 168
	default:
		return 24
	}
}
