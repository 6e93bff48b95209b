package domain

import (
	"testing"
	"time"
)

func TestFreshnessBoundary(t *testing.T) {
	cases := []struct {
		age  time.Duration
		want CacheOutcome
	}{
		{age: StaleAfter - time.Second, want: CacheFresh},
		{age: StaleAfter, want: CacheFresh},
		{age: StaleAfter + time.Second, want: CacheStale},
		{age: 0, want: CacheFresh},
	}
	for _, tc := range cases {
		if got := Freshness(tc.age, StaleAfter); got != tc.want {
			t.Fatalf("Freshness(%s) = %s, want %s", tc.age, got, tc.want)
		}
	}
}

func TestFreshnessDefaultsThreshold(t *testing.T) {
	if got := Freshness(StaleAfter+time.Minute, 0); got != CacheStale {
		t.Fatalf("expected stale with default threshold, got %s", got)
	}
}
