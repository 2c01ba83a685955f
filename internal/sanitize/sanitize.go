// Package sanitize strips identifying detail from samples and rules before
// they may leave the device. Every transformation is one-way: amounts become
// named range buckets, merchants become bounded prefixes, user identity
// becomes a truncated SHA-256 hash, and timestamps keep only hour and weekday.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/fintuitive/fintuitive/internal/model"
)

// userHashLength bounds the hex-encoded user hash.
const userHashLength = 16

// maxKeyPrefix bounds free-text domain keys after suffix stripping.
const maxKeyPrefix = 12

// commonSuffixes are corporate noise stripped before prefix truncation.
var commonSuffixes = []string{
	" inc", " llc", " ltd", " corp", " co", " company", " store", " shop",
}

// amountBucket defines one named amount range. Midpoints feed percentile
// estimation on the aggregation side.
type amountBucket struct {
	name     string
	min      float64
	max      float64
	midpoint float64
}

var amountBuckets = []amountBucket{
	{name: "0-10", min: 0, max: 10, midpoint: 5},
	{name: "10-50", min: 10, max: 50, midpoint: 30},
	{name: "50-100", min: 50, max: 100, midpoint: 75},
	{name: "100-500", min: 100, max: 500, midpoint: 300},
	{name: "500-1000", min: 500, max: 1000, midpoint: 750},
	{name: "1000+", min: 1000, max: -1, midpoint: 2000},
}

// HashUser replaces a user ID with a truncated one-way hash.
func HashUser(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])[:userHashLength]
}

// AmountBucket maps a value to its named range. Negative values share the
// lowest bucket of their magnitude.
func AmountBucket(value float64) string {
	if value < 0 {
		value = -value
	}
	for _, b := range amountBuckets {
		if b.max < 0 || value < b.max {
			return b.name
		}
	}
	return amountBuckets[len(amountBuckets)-1].name
}

// BucketMidpoint returns the representative value for a named range, or
// (0,false) for unknown buckets.
func BucketMidpoint(bucket string) (float64, bool) {
	for _, b := range amountBuckets {
		if b.name == bucket {
			return b.midpoint, true
		}
	}
	return 0, false
}

// ConfidenceBand maps a confidence score to a coarse band.
func ConfidenceBand(confidence float64) string {
	switch {
	case confidence >= 0.95:
		return "very_high"
	case confidence >= 0.8:
		return "high"
	case confidence >= 0.6:
		return "medium"
	default:
		return "low"
	}
}

// TruncateKey normalizes a free-text key: lowercase, common corporate
// suffixes stripped, then cut to a bounded prefix.
func TruncateKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, suffix := range commonSuffixes {
		key = strings.TrimSuffix(key, suffix)
	}
	key = strings.TrimSpace(key)
	if len(key) > maxKeyPrefix {
		key = key[:maxKeyPrefix]
	}
	return key
}

// Sanitizer gates and transforms local data for collaborative reporting.
type Sanitizer struct {
	// PublishThreshold is the minimum local confidence before a sample or
	// rule qualifies for reporting.
	PublishThreshold float64
}

// New creates a sanitizer with the given publish threshold.
func New(publishThreshold float64) *Sanitizer {
	return &Sanitizer{PublishThreshold: publishThreshold}
}

// SanitizeSample projects a sample into its privacy-safe pattern. The second
// return is false when the sample does not qualify for publication.
func (s *Sanitizer) SanitizeSample(sample *model.Sample, domainKey string, confidence float64) (model.SanitizedPattern, bool) {
	if confidence < s.PublishThreshold {
		return model.SanitizedPattern{}, false
	}

	pattern := model.SanitizedPattern{
		ReportedAt:     sample.Timestamp,
		UserHash:       HashUser(sample.UserID),
		ModuleID:       sample.ModuleID,
		DomainKey:      TruncateKey(domainKey),
		Label:          sample.Label,
		ConfidenceBand: ConfidenceBand(confidence),
		Weekday:        sample.Timestamp.Weekday(),
		HourOfDay:      sample.Timestamp.Hour(),
	}
	if amount, ok := sample.Features.Number("amount"); ok {
		pattern.Bucket = AmountBucket(amount)
	}
	return pattern, true
}

// SanitizeRule projects a mined rule into its privacy-safe pattern, keyed by
// the rule's owning user. The second return is false when the rule's
// confidence is below the publish threshold.
func (s *Sanitizer) SanitizeRule(rule *model.Rule, userID string) (model.SanitizedPattern, bool) {
	if rule.Confidence < s.PublishThreshold {
		return model.SanitizedPattern{}, false
	}

	pattern := model.SanitizedPattern{
		ReportedAt:     rule.CreatedAt,
		UserHash:       HashUser(userID),
		ModuleID:       rule.ModuleID,
		DomainKey:      TruncateKey(rule.Key),
		Label:          rule.Payload.Result(),
		ConfidenceBand: ConfidenceBand(rule.Confidence),
		Weekday:        rule.CreatedAt.Weekday(),
		HourOfDay:      rule.CreatedAt.Hour(),
	}
	if threshold, ok := rule.Payload.(model.ThresholdPayload); ok {
		pattern.Bucket = AmountBucket(threshold.Mean)
	}
	return pattern, true
}
