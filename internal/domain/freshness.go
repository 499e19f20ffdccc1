package domain

import (
	"fmt"
	"time"
)

// Freshness is the age class of a stored observation relative to now.
type Freshness string

const (
	FreshnessLive      Freshness = "live"      // < 1 hour
	FreshnessRecent    Freshness = "recent"    // < 24 hours
	FreshnessCached    Freshness = "cached"    // < 7 days
	FreshnessEstimated Freshness = "estimated" // older, or no observation
)

// FreshnessOf classifies the age of an observation. A zero timestamp maps
// to estimated.
func FreshnessOf(observedAt, now time.Time) Freshness {
	if observedAt.IsZero() {
		return FreshnessEstimated
	}
	age := now.Sub(observedAt)
	switch {
	case age < time.Hour:
		return FreshnessLive
	case age < 24*time.Hour:
		return FreshnessRecent
	case age < 7*24*time.Hour:
		return FreshnessCached
	default:
		return FreshnessEstimated
	}
}

// Confidence maps a freshness label to a data confidence score.
func (f Freshness) Confidence() float64 {
	switch f {
	case FreshnessLive:
		return 0.95
	case FreshnessRecent:
		return 0.85
	case FreshnessCached:
		return 0.60
	case FreshnessEstimated:
		return 0.35
	default:
		return 0.20
	}
}

// Live reports whether the label counts as live-enough for simulation
// validation purposes.
func (f Freshness) Live() bool {
	return f == FreshnessLive || f == FreshnessRecent
}

// AgeString renders a human-readable relative age. Very old or missing
// observations render as "Estimated" rather than exposing a stale count.
func AgeString(observedAt, now time.Time) string {
	if observedAt.IsZero() {
		return "Estimated"
	}
	age := now.Sub(observedAt)
	switch {
	case age < time.Minute:
		return "Just now"
	case age < time.Hour:
		return fmt.Sprintf("%d min ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(age.Hours()))
	case age < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(age.Hours()/24))
	default:
		return "Estimated"
	}
}
