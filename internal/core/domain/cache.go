package domain

import "time"

// StaleAfter is the freshness threshold for cached provider data. An entry
// exactly StaleAfter old is still fresh.
const StaleAfter = 7 * 24 * time.Hour

type CacheOutcome string

const (
	CacheFresh CacheOutcome = "fresh"
	CacheStale CacheOutcome = "stale"
	CacheMiss  CacheOutcome = "miss"
)

// SerpLookup is the result of a conditional cache read.
type SerpLookup struct {
	Outcome  CacheOutcome
	Document *SerpDocument
	// Partial is set when optional nested fields were dropped to recover the document.
	Partial bool
	Age     time.Duration
}

// Freshness classifies an entry of the given age.
func Freshness(age, threshold time.Duration) CacheOutcome {
	if threshold <= 0 {
		threshold = StaleAfter
	}
	if age > threshold {
		return CacheStale
	}
	return CacheFresh
}
