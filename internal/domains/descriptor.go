// Package domains declares the learning-domain instantiations of the engine:
// category classification, amount anomaly detection, intent understanding,
// habit coaching, and money-age coaching. Each descriptor supplies the
// feature-key extractors and thresholds that specialize the shared
// module/miner/cascade machinery.
package domains

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fintuitive/fintuitive/internal/cascade"
	"github.com/fintuitive/fintuitive/internal/miner"
	"github.com/fintuitive/fintuitive/internal/model"
	"github.com/fintuitive/fintuitive/internal/profile"
)

// Module IDs.
const (
	ModuleCategory = "category"
	ModuleAnomaly  = "anomaly"
	ModuleIntent   = "intent"
	ModuleHabit    = "habit"
	ModuleMoneyAge = "money_age"
)

// Descriptor specializes the generic learning module for one domain.
type Descriptor struct {
	// KeyFn extracts the mining/grouping key from a sample.
	KeyFn miner.KeyFunc
	// PayloadFn builds the rule payload for a mined categorical group.
	// Unused for numeric domains.
	PayloadFn miner.PayloadFunc
	// Infer is the domain's profile-inference cascade stage, or nil.
	Infer cascade.ProfileInferenceFunc
	// InsightKey maps a prediction input to its community-insight key.
	InsightKey cascade.InsightKeyFunc

	ModuleID       string
	Name           string
	FallbackResult string
	// NumericFeature names the value feature for threshold mining.
	NumericFeature string
	// NumericAnswer is the result a fired threshold rule reports.
	NumericAnswer string

	// MinSamples is M1: the sample count that moves the module out of
	// cold start. Activation requires 2×M1 plus at least one rule.
	MinSamples   int
	MinGroupSize int
	RulePriority int

	// NumericK is the σ multiplier for threshold mining.
	NumericK float64

	// Numeric selects mean/σ threshold mining over majority-label mining.
	Numeric bool
}

// All returns the five production domain descriptors.
func All() []Descriptor {
	return []Descriptor{
		Category(),
		Anomaly(),
		Intent(),
		Habit(),
		MoneyAge(),
	}
}

// ByID looks up a descriptor by module ID.
func ByID(moduleID string) (Descriptor, bool) {
	for _, d := range All() {
		if d.ModuleID == moduleID {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Category classifies transactions into spending categories by merchant.
func Category() Descriptor {
	return Descriptor{
		ModuleID:       ModuleCategory,
		Name:           "Category Classification",
		FallbackResult: "Other",
		MinSamples:     10,
		MinGroupSize:   3,
		RulePriority:   10,
		KeyFn: func(s model.Sample) string {
			return normalizeMerchant(s.Features.String(cascade.FeatureMerchant))
		},
		PayloadFn: func(key, label string, _ []model.Sample) model.RulePayload {
			return model.CategoryPayload{Merchant: key, Category: label}
		},
		InsightKey: func(input model.PredictionInput) string {
			return normalizeMerchant(input.Features.String(cascade.FeatureMerchant))
		},
	}
}

// Anomaly flags transaction amounts far outside a category's usual range.
func Anomaly() Descriptor {
	return Descriptor{
		ModuleID:       ModuleAnomaly,
		Name:           "Amount Anomaly Detection",
		FallbackResult: "normal",
		Numeric:        true,
		NumericFeature: cascade.FeatureAmount,
		NumericAnswer:  "anomaly",
		NumericK:       2.0,
		MinSamples:     20,
		MinGroupSize:   5,
		RulePriority:   10,
		KeyFn: func(s model.Sample) string {
			return strings.ToLower(strings.TrimSpace(s.Features.String(cascade.FeatureCategory)))
		},
		Infer:      AnomalyInference(2.5),
		InsightKey: categoryInsightKey,
	}
}

// Intent maps voice/search queries to intents by keyword set.
func Intent() Descriptor {
	return Descriptor{
		ModuleID:       ModuleIntent,
		Name:           "Intent Understanding",
		FallbackResult: "unknown_intent",
		MinSamples:     15,
		MinGroupSize:   3,
		RulePriority:   10,
		KeyFn:          keywordKey,
		PayloadFn: func(key, label string, _ []model.Sample) model.RulePayload {
			return model.KeywordPayload{Keywords: strings.Split(key, "+"), Answer: label}
		},
		InsightKey: func(input model.PredictionInput) string {
			words := input.Features.KeywordList("keywords")
			if len(words) == 0 {
				return ""
			}
			return strings.ToLower(words[0])
		},
	}
}

// Habit learns completion time slots for recurring habits.
func Habit() Descriptor {
	return Descriptor{
		ModuleID:       ModuleHabit,
		Name:           "Habit Coaching",
		FallbackResult: "no_habit",
		MinSamples:     10,
		MinGroupSize:   3,
		RulePriority:   10,
		KeyFn:          timeSlotKey,
		PayloadFn:      timeWindowPayload,
		InsightKey: func(input model.PredictionInput) string {
			return timeSlot(input.Timestamp)
		},
	}
}

// MoneyAge coaches on how long money sits before being spent.
func MoneyAge() Descriptor {
	return Descriptor{
		ModuleID:       ModuleMoneyAge,
		Name:           "Money Age Coaching",
		FallbackResult: "on_track",
		Numeric:        true,
		NumericFeature: "money_age_days",
		NumericAnswer:  "aging_fast",
		NumericK:       1.5,
		MinSamples:     20,
		MinGroupSize:   5,
		RulePriority:   10,
		KeyFn: func(s model.Sample) string {
			return strings.ToLower(strings.TrimSpace(s.Features.String(cascade.FeatureCategory)))
		},
		InsightKey: categoryInsightKey,
	}
}

// AnomalyInference builds the profile stage that flags amounts whose z-score
// against the user's category distribution crosses the given threshold. The
// engine rebinds it with the configured threshold at construction.
func AnomalyInference(zThreshold float64) cascade.ProfileInferenceFunc {
	return func(input model.PredictionInput, prof *profile.Profile) (string, float64, bool) {
		amount, ok := input.Features.Number(cascade.FeatureAmount)
		if !ok {
			return "", 0, false
		}
		category := input.Features.String(cascade.FeatureCategory)
		if category == "" {
			return "", 0, false
		}
		z, ok := prof.ZScore(category, amount)
		if !ok || math.Abs(z) <= zThreshold {
			return "", 0, false
		}
		confidence := 0.5 + 0.1*math.Abs(z)
		if confidence > 0.95 {
			confidence = 0.95
		}
		return "anomaly", confidence, true
	}
}

func categoryInsightKey(input model.PredictionInput) string {
	return strings.ToLower(strings.TrimSpace(input.Features.String(cascade.FeatureCategory)))
}

// normalizeMerchant lowercases and trims a merchant name for keying.
func normalizeMerchant(merchant string) string {
	return strings.ToLower(strings.TrimSpace(merchant))
}

// keywordKey joins a sample's sorted keywords into a stable grouping key.
func keywordKey(s model.Sample) string {
	words := s.Features.KeywordList("keywords")
	if len(words) == 0 {
		return ""
	}
	normalized := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			normalized = append(normalized, w)
		}
	}
	if len(normalized) == 0 {
		return ""
	}
	sort.Strings(normalized)
	return strings.Join(normalized, "+")
}

// timeSlot buckets a timestamp into a day-class plus hour-band key.
func timeSlot(t time.Time) string {
	dayClass := "weekday"
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		dayClass = "weekend"
	}

	var band string
	switch hour := t.Hour(); {
	case hour < 6:
		band = "night"
	case hour < 12:
		band = "morning"
	case hour < 18:
		band = "afternoon"
	default:
		band = "evening"
	}
	return dayClass + "-" + band
}

func timeSlotKey(s model.Sample) string {
	return timeSlot(s.Timestamp)
}

// timeWindowPayload derives the hour window and weekday set actually observed
// in the mined group. Community-seeded rules arrive without samples; their
// window comes from the slot key instead.
func timeWindowPayload(key, label string, samples []model.Sample) model.RulePayload {
	if len(samples) == 0 {
		return slotWindowPayload(key, label)
	}

	start, end := 23, 0
	seen := make(map[time.Weekday]bool)
	for _, s := range samples {
		hour := s.Timestamp.Hour()
		if hour < start {
			start = hour
		}
		if hour > end {
			end = hour
		}
		seen[s.Timestamp.Weekday()] = true
	}

	weekdays := make([]time.Weekday, 0, len(seen))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if seen[d] {
			weekdays = append(weekdays, d)
		}
	}
	return model.TimeWindowPayload{
		Answer:    label,
		Weekdays:  weekdays,
		StartHour: start,
		EndHour:   end,
	}
}

// slotWindowPayload reconstructs a window from a slot key like
// "weekday-morning". The hour bands mirror timeSlot.
func slotWindowPayload(key, label string) model.RulePayload {
	dayClass, band, found := strings.Cut(key, "-")
	if !found {
		return nil
	}

	var start, end int
	switch band {
	case "night":
		start, end = 0, 5
	case "morning":
		start, end = 6, 11
	case "afternoon":
		start, end = 12, 17
	case "evening":
		start, end = 18, 23
	default:
		return nil
	}

	var weekdays []time.Weekday
	switch dayClass {
	case "weekday":
		weekdays = []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		}
	case "weekend":
		weekdays = []time.Weekday{time.Saturday, time.Sunday}
	default:
		return nil
	}

	return model.TimeWindowPayload{
		Answer:    label,
		Weekdays:  weekdays,
		StartHour: start,
		EndHour:   end,
	}
}
