package model

import "time"

// Severity tiers an emerging pattern by how many distinct users it affects.
type Severity string

// Severity constants.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// BucketStat aggregates sanitized reports for one bucket within a domain key.
type BucketStat struct {
	Bucket      string  `json:"bucket"`
	Share       float64 `json:"share"`
	AnomalyRate float64 `json:"anomaly_rate"`
	UserCount   int     `json:"user_count"`
	SampleCount int     `json:"sample_count"`
}

// Percentiles holds threshold values derived from bucket midpoints.
type Percentiles struct {
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P99 float64 `json:"p99"`
}

// EmergingPattern flags a bucket whose recent share grew past the configured
// multiplier relative to the baseline window.
type EmergingPattern struct {
	DomainKey    string   `json:"domain_key"`
	Bucket       string   `json:"bucket"`
	Severity     Severity `json:"severity"`
	GrowthFactor float64  `json:"growth_factor"`
	RecentShare  float64  `json:"recent_share"`
	UserCount    int      `json:"user_count"`
}

// GlobalInsight is the aggregated, k-anonymity-filtered view over many users'
// sanitized patterns. It is regenerated on demand and cached with a fixed TTL;
// it is never ground truth, always re-derivable from the pattern stream.
type GlobalInsight struct {
	GeneratedAt time.Time               `json:"generated_at"`
	ExpiresAt   time.Time               `json:"expires_at"`
	ModuleID    string                  `json:"module_id"`
	Buckets     map[string][]BucketStat `json:"buckets"`
	Percentiles map[string]Percentiles  `json:"percentiles"`
	Emerging    []EmergingPattern       `json:"emerging"`
	TotalUsers  int                     `json:"total_users"`
}

// Expired reports whether the insight's TTL has lapsed at the given time.
func (g *GlobalInsight) Expired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}

// MajorityLabel returns the most common label for a domain key across buckets,
// or "" when the key is unknown. Used by the cascade's collaborative stage.
func (g *GlobalInsight) MajorityLabel(domainKey string) (string, float64) {
	stats, ok := g.Buckets[domainKey]
	if !ok || len(stats) == 0 {
		return "", 0
	}
	best := stats[0]
	for _, s := range stats[1:] {
		if s.Share > best.Share {
			best = s
		}
	}
	return best.Bucket, best.Share
}
