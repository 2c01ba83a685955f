package collab

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fintuitive/fintuitive/internal/common"
	"github.com/fintuitive/fintuitive/internal/config"
	"github.com/fintuitive/fintuitive/internal/model"
	"github.com/fintuitive/fintuitive/internal/sanitize"
	"github.com/fintuitive/fintuitive/internal/service"
)

// anomalyLabel marks patterns counted into per-bucket anomaly rates.
const anomalyLabel = "anomaly"

// Aggregator computes GlobalInsight from the sanitized pattern stream.
// Insights are regenerated lazily on cache expiry and served stale when the
// transport is unreachable; fetching never propagates errors to prediction.
type Aggregator struct {
	transport service.CollaborativeTransport
	clock     service.Clock
	cache     map[string]*model.GlobalInsight
	params    config.Params
	mu        sync.Mutex
}

// NewAggregator creates an aggregator over the given transport.
func NewAggregator(transport service.CollaborativeTransport, clock service.Clock, params config.Params) *Aggregator {
	if clock == nil {
		clock = service.SystemClock{}
	}
	return &Aggregator{
		transport: transport,
		clock:     clock,
		cache:     make(map[string]*model.GlobalInsight),
		params:    params,
	}
}

// GetInsight returns the cached insight for a module, regenerating it when
// the TTL has lapsed. On transport failure a stale insight is served when one
// exists; otherwise the error surfaces so callers can skip the stage.
func (a *Aggregator) GetInsight(ctx context.Context, moduleID string) (*model.GlobalInsight, error) {
	a.mu.Lock()
	cached, ok := a.cache[moduleID]
	a.mu.Unlock()

	now := a.clock.Now()
	if ok && !cached.Expired(now) {
		return cached, nil
	}

	fresh, err := a.regenerate(ctx, moduleID)
	if err != nil {
		if ok {
			slog.Warn("Serving stale insight, refresh failed",
				"module", moduleID, "error", err)
			return cached, nil
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInsightUnavailable, err)
	}
	return fresh, nil
}

// Refresh forces regeneration regardless of cache state.
func (a *Aggregator) Refresh(ctx context.Context, moduleID string) (*model.GlobalInsight, error) {
	return a.regenerate(ctx, moduleID)
}

func (a *Aggregator) regenerate(ctx context.Context, moduleID string) (*model.GlobalInsight, error) {
	patterns, err := a.transport.GetAllPatterns(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransportUnavailable, err)
	}

	insight := a.generate(moduleID, patterns)

	a.mu.Lock()
	a.cache[moduleID] = insight
	a.mu.Unlock()
	return insight, nil
}

// generate builds the insight: groups below the k-anonymity floor are
// silently dropped, never exposed individually.
func (a *Aggregator) generate(moduleID string, patterns []model.SanitizedPattern) *model.GlobalInsight {
	now := a.clock.Now()
	insight := &model.GlobalInsight{
		GeneratedAt: now,
		ExpiresAt:   now.Add(a.params.InsightTTL),
		ModuleID:    moduleID,
		Buckets:     make(map[string][]model.BucketStat),
		Percentiles: make(map[string]model.Percentiles),
	}

	byKey := make(map[string][]model.SanitizedPattern)
	allUsers := make(map[string]bool)
	for _, p := range patterns {
		byKey[p.DomainKey] = append(byKey[p.DomainKey], p)
		allUsers[p.UserHash] = true
	}
	insight.TotalUsers = len(allUsers)

	for key, group := range byKey {
		users := make(map[string]bool)
		for _, p := range group {
			users[p.UserHash] = true
		}
		if len(users) < a.params.KAnonymity {
			continue
		}

		insight.Buckets[key] = bucketStats(group)
		if pct, ok := percentiles(group); ok {
			insight.Percentiles[key] = pct
		}
	}

	insight.Emerging = a.emergingPatterns(byKey, now)
	return insight
}

// patternValue is the per-pattern aggregation unit: the label when present,
// otherwise the amount bucket.
func patternValue(p model.SanitizedPattern) string {
	if p.Label != "" {
		return p.Label
	}
	return p.Bucket
}

func bucketStats(group []model.SanitizedPattern) []model.BucketStat {
	counts := make(map[string]int)
	anomalies := make(map[string]int)
	users := make(map[string]map[string]bool)

	for _, p := range group {
		value := patternValue(p)
		if value == "" {
			continue
		}
		counts[value]++
		if p.Label == anomalyLabel {
			anomalies[value]++
		}
		if users[value] == nil {
			users[value] = make(map[string]bool)
		}
		users[value][p.UserHash] = true
	}

	stats := make([]model.BucketStat, 0, len(counts))
	total := len(group)
	for value, count := range counts {
		stats = append(stats, model.BucketStat{
			Bucket:      value,
			Share:       float64(count) / float64(total),
			AnomalyRate: float64(anomalies[value]) / float64(count),
			UserCount:   len(users[value]),
			SampleCount: count,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Share != stats[j].Share {
			return stats[i].Share > stats[j].Share
		}
		return stats[i].Bucket < stats[j].Bucket
	})
	return stats
}

// percentiles estimates p50/p90/p99 from amount-bucket midpoints. Groups
// without amount buckets report none.
func percentiles(group []model.SanitizedPattern) (model.Percentiles, bool) {
	var values []float64
	for _, p := range group {
		if mid, ok := sanitize.BucketMidpoint(p.Bucket); ok {
			values = append(values, mid)
		}
	}
	if len(values) == 0 {
		return model.Percentiles{}, false
	}
	sort.Float64s(values)

	at := func(q float64) float64 {
		idx := int(q * float64(len(values)-1))
		return values[idx]
	}
	return model.Percentiles{P50: at(0.50), P90: at(0.90), P99: at(0.99)}, true
}

// severityFor tiers an emerging pattern by distinct affected users.
func severityFor(userCount int) model.Severity {
	switch {
	case userCount >= 200:
		return model.SeverityCritical
	case userCount >= 50:
		return model.SeverityHigh
	case userCount >= 10:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// emergingPatterns compares the recent window against the older baseline and
// flags buckets whose share grew past the configured multiplier.
func (a *Aggregator) emergingPatterns(byKey map[string][]model.SanitizedPattern, now time.Time) []model.EmergingPattern {
	recentStart := now.Add(-a.params.EmergingRecentWindow)
	baselineStart := now.Add(-a.params.EmergingBaselineWindow)

	type window struct {
		counts map[string]int
		users  map[string]map[string]bool
		total  int
	}
	newWindow := func() *window {
		return &window{
			counts: make(map[string]int),
			users:  make(map[string]map[string]bool),
		}
	}

	var out []model.EmergingPattern
	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		group := byKey[key]

		users := make(map[string]bool)
		for _, p := range group {
			users[p.UserHash] = true
		}
		if len(users) < a.params.KAnonymity {
			continue
		}

		recent, baseline := newWindow(), newWindow()
		for _, p := range group {
			value := patternValue(p)
			if value == "" {
				continue
			}
			var w *window
			switch {
			case !p.ReportedAt.Before(recentStart):
				w = recent
			case !p.ReportedAt.Before(baselineStart):
				w = baseline
			default:
				continue
			}
			w.counts[value]++
			w.total++
			if w.users[value] == nil {
				w.users[value] = make(map[string]bool)
			}
			w.users[value][p.UserHash] = true
		}
		if recent.total == 0 || baseline.total == 0 {
			continue
		}

		values := make([]string, 0, len(recent.counts))
		for value := range recent.counts {
			values = append(values, value)
		}
		sort.Strings(values)

		for _, value := range values {
			recentShare := float64(recent.counts[value]) / float64(recent.total)
			baselineShare := float64(baseline.counts[value]) / float64(baseline.total)
			if baselineShare == 0 {
				continue
			}
			growth := recentShare / baselineShare
			if growth < a.params.EmergingMultiplier {
				continue
			}
			userCount := len(recent.users[value])
			out = append(out, model.EmergingPattern{
				DomainKey:    key,
				Bucket:       value,
				Severity:     severityFor(userCount),
				GrowthFactor: growth,
				RecentShare:  recentShare,
				UserCount:    userCount,
			})
		}
	}
	return out
}
