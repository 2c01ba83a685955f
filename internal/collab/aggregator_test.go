package collab

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintuitive/fintuitive/internal/common"
	"github.com/fintuitive/fintuitive/internal/config"
	"github.com/fintuitive/fintuitive/internal/model"
	"github.com/fintuitive/fintuitive/internal/sanitize"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

type failingTransport struct{ err error }

func (t *failingTransport) Report(context.Context, []model.SanitizedPattern) error { return t.err }
func (t *failingTransport) GetAllPatterns(context.Context, string) ([]model.SanitizedPattern, error) {
	return nil, t.err
}

func reportedPattern(user, key, label string, at time.Time) model.SanitizedPattern {
	return model.SanitizedPattern{
		ReportedAt: at,
		UserHash:   sanitize.HashUser(user),
		ModuleID:   "category",
		DomainKey:  key,
		Label:      label,
	}
}

func seedPatterns(t *testing.T, transport *MemoryTransport, patterns []model.SanitizedPattern) {
	t.Helper()
	require.NoError(t, transport.Report(context.Background(), patterns))
}

func TestInsightEnforcesKAnonymity(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	transport := NewMemoryTransport()

	var patterns []model.SanitizedPattern
	// "blue bottle" has 3 distinct reporters, "rare shop" only 2.
	for i := 0; i < 3; i++ {
		patterns = append(patterns, reportedPattern(fmt.Sprintf("user-%d", i), "blue bottle", "Coffee Shops", now.Add(-time.Hour)))
	}
	for i := 0; i < 2; i++ {
		patterns = append(patterns, reportedPattern(fmt.Sprintf("user-%d", i), "rare shop", "Hobbies", now.Add(-time.Hour)))
	}
	seedPatterns(t, transport, patterns)

	params := config.DefaultParams()
	params.KAnonymity = 3

	a := NewAggregator(transport, &fakeClock{now: now}, params)
	insight, err := a.GetInsight(context.Background(), "category")
	require.NoError(t, err)

	assert.Contains(t, insight.Buckets, "blue bottle")
	assert.NotContains(t, insight.Buckets, "rare shop",
		"groups under the k-anonymity floor are never published")
	assert.Equal(t, 3, insight.TotalUsers)

	label, share := insight.MajorityLabel("blue bottle")
	assert.Equal(t, "Coffee Shops", label)
	assert.InDelta(t, 1.0, share, 1e-9)
}

func TestInsightMajorityAndShares(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	transport := NewMemoryTransport()

	var patterns []model.SanitizedPattern
	for i := 0; i < 8; i++ {
		patterns = append(patterns, reportedPattern(fmt.Sprintf("user-%d", i), "blue bottle", "Coffee Shops", now.Add(-time.Hour)))
	}
	for i := 8; i < 10; i++ {
		patterns = append(patterns, reportedPattern(fmt.Sprintf("user-%d", i), "blue bottle", "Restaurants", now.Add(-time.Hour)))
	}
	seedPatterns(t, transport, patterns)

	a := NewAggregator(transport, &fakeClock{now: now}, config.DefaultParams())
	insight, err := a.GetInsight(context.Background(), "category")
	require.NoError(t, err)

	stats := insight.Buckets["blue bottle"]
	require.Len(t, stats, 2)
	assert.Equal(t, "Coffee Shops", stats[0].Bucket, "stats sorted by share descending")
	assert.InDelta(t, 0.8, stats[0].Share, 1e-9)
	assert.Equal(t, 8, stats[0].UserCount)
	assert.InDelta(t, 0.2, stats[1].Share, 1e-9)
}

func TestInsightPercentilesFromBuckets(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	transport := NewMemoryTransport()

	var patterns []model.SanitizedPattern
	buckets := []string{"10-50", "10-50", "50-100", "100-500"}
	for i, bucket := range buckets {
		p := reportedPattern(fmt.Sprintf("user-%d", i), "groceries", "", now.Add(-time.Hour))
		p.Bucket = bucket
		patterns = append(patterns, p)
	}
	seedPatterns(t, transport, patterns)

	params := config.DefaultParams()
	params.KAnonymity = 3
	a := NewAggregator(transport, &fakeClock{now: now}, params)

	insight, err := a.GetInsight(context.Background(), "category")
	require.NoError(t, err)

	pct, ok := insight.Percentiles["groceries"]
	require.True(t, ok)
	assert.InDelta(t, 30.0, pct.P50, 1e-9, "midpoint of the 10-50 bucket")
	assert.InDelta(t, 75.0, pct.P90, 1e-9, "midpoint of the 50-100 bucket")
	assert.LessOrEqual(t, pct.P50, pct.P90)
	assert.LessOrEqual(t, pct.P90, pct.P99)
}

func TestInsightTTLCaching(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: now}
	transport := NewMemoryTransport()

	var patterns []model.SanitizedPattern
	for i := 0; i < 3; i++ {
		patterns = append(patterns, reportedPattern(fmt.Sprintf("user-%d", i), "blue bottle", "Coffee Shops", now.Add(-time.Hour)))
	}
	seedPatterns(t, transport, patterns)

	params := config.DefaultParams()
	params.InsightTTL = 12 * time.Hour

	a := NewAggregator(transport, clock, params)
	ctx := context.Background()

	first, err := a.GetInsight(ctx, "category")
	require.NoError(t, err)

	// New data arriving within the TTL is not visible.
	seedPatterns(t, transport, []model.SanitizedPattern{
		reportedPattern("user-9", "blue bottle", "Restaurants", now),
	})
	cached, err := a.GetInsight(ctx, "category")
	require.NoError(t, err)
	assert.Same(t, first, cached)

	// Past the TTL the insight regenerates.
	clock.now = now.Add(13 * time.Hour)
	fresh, err := a.GetInsight(ctx, "category")
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	assert.Len(t, fresh.Buckets["blue bottle"], 2)
}

func TestInsightServedStaleOnTransportFailure(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: now}
	transport := NewMemoryTransport()

	var patterns []model.SanitizedPattern
	for i := 0; i < 3; i++ {
		patterns = append(patterns, reportedPattern(fmt.Sprintf("user-%d", i), "blue bottle", "Coffee Shops", now.Add(-time.Hour)))
	}
	seedPatterns(t, transport, patterns)

	a := NewAggregator(transport, clock, config.DefaultParams())
	ctx := context.Background()

	first, err := a.GetInsight(ctx, "category")
	require.NoError(t, err)

	// Swap in a failing transport and expire the cache: the stale copy serves.
	a.transport = &failingTransport{err: errors.New("offline")}
	clock.now = now.Add(24 * time.Hour)

	stale, err := a.GetInsight(ctx, "category")
	require.NoError(t, err)
	assert.Same(t, first, stale)
}

func TestInsightUnavailableWithoutCache(t *testing.T) {
	a := NewAggregator(&failingTransport{err: errors.New("offline")}, nil, config.DefaultParams())

	_, err := a.GetInsight(context.Background(), "category")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInsightUnavailable)
}

func TestRefreshClassifiesTransportFailure(t *testing.T) {
	a := NewAggregator(&failingTransport{err: errors.New("offline")}, nil, config.DefaultParams())

	_, err := a.Refresh(context.Background(), "category")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTransportUnavailable)
	assert.True(t, common.IsRetryable(err), "transport failures are worth retrying")
}

func TestEmergingPatterns(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	transport := NewMemoryTransport()

	var patterns []model.SanitizedPattern
	// Baseline (older than 7d, within 30d): "streaming" is 10% of reports.
	baselineAt := now.Add(-14 * 24 * time.Hour)
	for i := 0; i < 18; i++ {
		patterns = append(patterns, reportedPattern(fmt.Sprintf("user-%d", i), "subscriptions", "software", baselineAt))
	}
	for i := 0; i < 2; i++ {
		patterns = append(patterns, reportedPattern(fmt.Sprintf("user-%d", i), "subscriptions", "streaming", baselineAt))
	}
	// Recent window: "streaming" jumps to 60%.
	recentAt := now.Add(-24 * time.Hour)
	for i := 0; i < 12; i++ {
		patterns = append(patterns, reportedPattern(fmt.Sprintf("user-%d", i), "subscriptions", "streaming", recentAt))
	}
	for i := 12; i < 20; i++ {
		patterns = append(patterns, reportedPattern(fmt.Sprintf("user-%d", i), "subscriptions", "software", recentAt))
	}
	seedPatterns(t, transport, patterns)

	a := NewAggregator(transport, &fakeClock{now: now}, config.DefaultParams())
	insight, err := a.GetInsight(context.Background(), "category")
	require.NoError(t, err)

	require.Len(t, insight.Emerging, 1)
	emerging := insight.Emerging[0]
	assert.Equal(t, "subscriptions", emerging.DomainKey)
	assert.Equal(t, "streaming", emerging.Bucket)
	assert.InDelta(t, 6.0, emerging.GrowthFactor, 1e-9)
	assert.InDelta(t, 0.6, emerging.RecentShare, 1e-9)
	assert.Equal(t, 12, emerging.UserCount)
	assert.Equal(t, model.SeverityMedium, emerging.Severity)
}
