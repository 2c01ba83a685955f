// Package profile derives per-user statistics from samples: category
// mean/deviation and time-of-day activity distributions. Profiles are a cache,
// never ground truth; they are invalidated whenever new samples are learned
// and re-derived on demand.
package profile

import (
	"math"
	"sync"
	"time"

	"github.com/fintuitive/fintuitive/internal/model"
)

// CategoryStats holds the numeric distribution for one category.
type CategoryStats struct {
	Mean   float64
	StdDev float64
	Count  int
}

// Profile is one user's derived statistics snapshot.
type Profile struct {
	builtAt     time.Time
	categories  map[string]CategoryStats
	hourDist    [24]int
	weekdayDist [7]int
	userID      string
	sampleCount int
}

// UserID returns the owning user.
func (p *Profile) UserID() string { return p.userID }

// SampleCount returns how many samples produced this profile.
func (p *Profile) SampleCount() int { return p.sampleCount }

// CategoryStats returns the distribution for a category and whether it exists.
func (p *Profile) CategoryStats(category string) (CategoryStats, bool) {
	stats, ok := p.categories[category]
	return stats, ok
}

// ZScore returns how many standard deviations the value sits from the
// category mean. The boolean is false when the category is unknown or has no
// spread to measure against.
func (p *Profile) ZScore(category string, value float64) (float64, bool) {
	stats, ok := p.categories[category]
	if !ok || stats.Count < 2 || stats.StdDev == 0 {
		return 0, false
	}
	return (value - stats.Mean) / stats.StdDev, true
}

// TimeScore returns the share of the user's activity falling in the given
// hour and weekday slot, averaged across both distributions.
func (p *Profile) TimeScore(hour int, weekday time.Weekday) float64 {
	if p.sampleCount == 0 || hour < 0 || hour > 23 {
		return 0
	}
	hourShare := float64(p.hourDist[hour]) / float64(p.sampleCount)
	dayShare := float64(p.weekdayDist[weekday]) / float64(p.sampleCount)
	return (hourShare + dayShare) / 2
}

// Config names the sample features the builder reads.
type Config struct {
	// AmountFeature is the numeric feature aggregated per category.
	AmountFeature string
	// CategoryFeature is the string feature that buckets amounts.
	CategoryFeature string
}

// DefaultConfig uses the conventional feature names.
func DefaultConfig() Config {
	return Config{AmountFeature: "amount", CategoryFeature: "category"}
}

// Build derives a profile from a user's samples.
func Build(userID string, samples []model.Sample, cfg Config) *Profile {
	p := &Profile{
		builtAt:    time.Now(),
		categories: make(map[string]CategoryStats),
		userID:     userID,
	}

	sums := make(map[string]float64)
	sumSquares := make(map[string]float64)
	counts := make(map[string]int)

	for _, sample := range samples {
		p.sampleCount++
		p.hourDist[sample.Timestamp.Hour()]++
		p.weekdayDist[sample.Timestamp.Weekday()]++

		category := sample.Features.String(cfg.CategoryFeature)
		if category == "" {
			category = sample.Label
		}
		amount, ok := sample.Features.Number(cfg.AmountFeature)
		if category == "" || !ok {
			continue
		}
		sums[category] += amount
		sumSquares[category] += amount * amount
		counts[category]++
	}

	for category, n := range counts {
		mean := sums[category] / float64(n)
		variance := sumSquares[category]/float64(n) - mean*mean
		if variance < 0 {
			variance = 0
		}
		p.categories[category] = CategoryStats{
			Mean:   mean,
			StdDev: math.Sqrt(variance),
			Count:  n,
		}
	}

	return p
}

// Cache holds built profiles keyed by user and drops them on invalidation.
type Cache struct {
	profiles map[string]*Profile
	cfg      Config
	mu       sync.RWMutex
}

// NewCache creates an empty profile cache.
func NewCache(cfg Config) *Cache {
	if cfg.AmountFeature == "" {
		cfg = DefaultConfig()
	}
	return &Cache{
		profiles: make(map[string]*Profile),
		cfg:      cfg,
	}
}

// Get returns the cached profile for a user, or nil when absent.
func (c *Cache) Get(userID string) *Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profiles[userID]
}

// Rebuild derives and caches a fresh profile from the given samples.
func (c *Cache) Rebuild(userID string, samples []model.Sample) *Profile {
	p := Build(userID, samples, c.cfg)
	c.mu.Lock()
	c.profiles[userID] = p
	c.mu.Unlock()
	return p
}

// Invalidate drops the cached profile for a user.
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.profiles, userID)
	c.mu.Unlock()
}
