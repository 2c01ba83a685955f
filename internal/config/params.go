// Package config holds engine configuration and tunable parameters.
package config

import (
	"fmt"
	"time"
)

// Params collects every hand-tuned threshold in the engine. The defaults come
// from production experience; hosts may override any of them, so no behavior
// is hard-coded to a magic number.
type Params struct {
	// RetentionWindow is how long samples are kept before expiry eviction.
	RetentionWindow time.Duration
	// ReportFlushInterval caps how long a queued sanitized pattern waits.
	ReportFlushInterval time.Duration
	// InsightTTL is the cache lifetime of a generated GlobalInsight.
	InsightTTL time.Duration
	// EmergingRecentWindow is the recent window for emerging-pattern detection.
	EmergingRecentWindow time.Duration
	// EmergingBaselineWindow is the older comparison window.
	EmergingBaselineWindow time.Duration

	// MaxSamples caps stored samples per module.
	MaxSamples int
	// MaxRules caps stored rules per module.
	MaxRules int
	// ReportBatchSize flushes the report queue once this many patterns queue up.
	ReportBatchSize int
	// KAnonymity is the minimum distinct-user count before a group may
	// contribute to a published insight.
	KAnonymity int
	// FeedbackWindow is the rolling window size for accuracy metrics.
	FeedbackWindow int

	// CleanupTarget is the fraction of MaxSamples cleanup evicts down to.
	CleanupTarget float64
	// MinConfidence is the mining cutoff below which no rule is emitted.
	MinConfidence float64
	// DecayFactor multiplies a rule's confidence on negative feedback.
	DecayFactor float64
	// BoostFactor multiplies a rule's confidence on positive feedback.
	BoostFactor float64
	// CollabDiscount multiplies collaborative rule confidence in the cascade.
	CollabDiscount float64
	// PublishThreshold is the minimum local confidence before sanitization.
	PublishThreshold float64
	// ColdStartDiscount multiplies imported rule confidence.
	ColdStartDiscount float64
	// ZThreshold is the profile-inference anomaly cutoff.
	ZThreshold float64
	// EmergingMultiplier is the minimum share growth to flag a pattern.
	EmergingMultiplier float64
	// LowBatteryLevel suppresses learning and reporting below this charge.
	LowBatteryLevel float64
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		RetentionWindow:        90 * 24 * time.Hour,
		ReportFlushInterval:    5 * time.Minute,
		InsightTTL:             12 * time.Hour,
		EmergingRecentWindow:   7 * 24 * time.Hour,
		EmergingBaselineWindow: 30 * 24 * time.Hour,
		MaxSamples:             1000,
		MaxRules:               100,
		ReportBatchSize:        10,
		KAnonymity:             3,
		FeedbackWindow:         100,
		CleanupTarget:          0.8,
		MinConfidence:          0.65,
		DecayFactor:            0.92,
		BoostFactor:            1.05,
		CollabDiscount:         0.8,
		PublishThreshold:       0.8,
		ColdStartDiscount:      0.7,
		ZThreshold:             2.5,
		EmergingMultiplier:     1.5,
		LowBatteryLevel:        0.2,
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.MaxSamples <= 0 {
		return fmt.Errorf("max samples must be positive, got %d", p.MaxSamples)
	}
	if p.MaxRules <= 0 {
		return fmt.Errorf("max rules must be positive, got %d", p.MaxRules)
	}
	if p.KAnonymity < 1 {
		return fmt.Errorf("k-anonymity must be at least 1, got %d", p.KAnonymity)
	}
	if p.CleanupTarget <= 0 || p.CleanupTarget > 1 {
		return fmt.Errorf("cleanup target %f outside (0,1]", p.CleanupTarget)
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return fmt.Errorf("min confidence %f outside [0,1]", p.MinConfidence)
	}
	if p.DecayFactor <= 0 || p.DecayFactor >= 1 {
		return fmt.Errorf("decay factor %f outside (0,1)", p.DecayFactor)
	}
	if p.BoostFactor < 1 {
		return fmt.Errorf("boost factor %f below 1", p.BoostFactor)
	}
	if p.CollabDiscount <= 0 || p.CollabDiscount > 1 {
		return fmt.Errorf("collaborative discount %f outside (0,1]", p.CollabDiscount)
	}
	if p.PublishThreshold < 0 || p.PublishThreshold > 1 {
		return fmt.Errorf("publish threshold %f outside [0,1]", p.PublishThreshold)
	}
	if p.EmergingMultiplier <= 1 {
		return fmt.Errorf("emerging multiplier %f must exceed 1", p.EmergingMultiplier)
	}
	if p.ReportBatchSize <= 0 {
		return fmt.Errorf("report batch size must be positive, got %d", p.ReportBatchSize)
	}
	return nil
}
