package miner

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintuitive/fintuitive/internal/model"
)

func merchantKey(s model.Sample) string {
	return s.Features.String("merchant")
}

func categoryPayload(key, label string, _ []model.Sample) model.RulePayload {
	return model.CategoryPayload{Merchant: key, Category: label}
}

func makeSample(merchant, label string, at time.Time) model.Sample {
	return model.Sample{
		ID:        fmt.Sprintf("%s-%s-%d", merchant, label, at.UnixNano()),
		UserID:    "user-1",
		ModuleID:  "category",
		Timestamp: at,
		Label:     label,
		Source:    model.SourceExplicitFeedback,
		Features:  model.Features{"merchant": model.StringFeature(merchant)},
	}
}

func TestMineMajorityConfidence(t *testing.T) {
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	// 16 of 20 corrections agree, so the mined confidence is 0.8.
	var samples []model.Sample
	for i := 0; i < 16; i++ {
		samples = append(samples, makeSample("blue bottle", "Coffee Shops", base.Add(time.Duration(i)*time.Hour)))
	}
	for i := 16; i < 20; i++ {
		samples = append(samples, makeSample("blue bottle", "Restaurants", base.Add(time.Duration(i)*time.Hour)))
	}

	m := New(Config{MinGroupSize: 5, MinConfidence: 0.65, RulePriority: 10})
	rules := m.Mine("category", samples, merchantKey, categoryPayload)

	require.Len(t, rules, 1)
	rule := rules[0]
	assert.Equal(t, "blue bottle", rule.Key)
	assert.Equal(t, model.RuleSourceUserLearned, rule.Source)
	assert.InDelta(t, 0.8, rule.Confidence, 1e-9)
	assert.Equal(t, 20, rule.SampleCount)
	assert.Equal(t, 10, rule.Priority)
	assert.Equal(t, "Coffee Shops", rule.Payload.Result())
}

func TestMineThresholds(t *testing.T) {
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		samples []model.Sample
		cfg     Config
		want    int
	}{
		{
			name: "group below min size is dropped",
			samples: []model.Sample{
				makeSample("tiny shop", "Other", base),
				makeSample("tiny shop", "Other", base.Add(time.Hour)),
			},
			cfg:  Config{MinGroupSize: 3, MinConfidence: 0.5},
			want: 0,
		},
		{
			name: "split labels below confidence cutoff",
			samples: []model.Sample{
				makeSample("split", "A", base),
				makeSample("split", "B", base.Add(time.Hour)),
				makeSample("split", "A", base.Add(2 * time.Hour)),
				makeSample("split", "B", base.Add(3 * time.Hour)),
			},
			cfg:  Config{MinGroupSize: 3, MinConfidence: 0.75},
			want: 0,
		},
		{
			name: "keyless samples are ineligible",
			samples: []model.Sample{
				{ID: "x1", Timestamp: base, Label: "A", Features: model.Features{}},
				{ID: "x2", Timestamp: base, Label: "A", Features: model.Features{}},
				{ID: "x3", Timestamp: base, Label: "A", Features: model.Features{}},
			},
			cfg:  Config{MinGroupSize: 3, MinConfidence: 0.5},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := New(tt.cfg).Mine("category", tt.samples, merchantKey, categoryPayload)
			assert.Len(t, rules, tt.want)
		})
	}
}

func TestMineTieGoesToEarliestLabel(t *testing.T) {
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	samples := []model.Sample{
		makeSample("corner store", "Groceries", base),
		makeSample("corner store", "Convenience", base.Add(time.Hour)),
		makeSample("corner store", "Groceries", base.Add(2*time.Hour)),
		makeSample("corner store", "Convenience", base.Add(3*time.Hour)),
	}

	rules := New(Config{MinGroupSize: 3, MinConfidence: 0.5}).
		Mine("category", samples, merchantKey, categoryPayload)

	require.Len(t, rules, 1)
	assert.Equal(t, "Groceries", rules[0].Payload.Result())
}

func TestMineNumeric(t *testing.T) {
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	amounts := []float64{40, 45, 50, 55, 60, 50, 45, 55, 50, 50}

	var samples []model.Sample
	for i, amount := range amounts {
		samples = append(samples, model.Sample{
			ID:        fmt.Sprintf("n-%d", i),
			UserID:    "user-1",
			ModuleID:  "anomaly",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Source:    model.SourceImplicitBehavior,
			Features: model.Features{
				"category": model.StringFeature("groceries"),
				"amount":   model.NumberFeature(amount),
			},
		})
	}

	keyFn := func(s model.Sample) string { return s.Features.String("category") }
	rules := New(Config{MinGroupSize: 5, MinConfidence: 0.65}).
		MineNumeric("anomaly", samples, keyFn, "amount", 2.0, "anomaly")

	require.Len(t, rules, 1)
	rule := rules[0]
	payload, ok := rule.Payload.(model.ThresholdPayload)
	require.True(t, ok)

	assert.Equal(t, "groceries", payload.GroupKey)
	assert.Equal(t, "anomaly", payload.Answer)
	assert.InDelta(t, 50.0, payload.Mean, 1e-9)
	// Population σ of the series above.
	assert.InDelta(t, 5.477, payload.StdDev, 0.01)
	assert.InDelta(t, 2.0, payload.K, 1e-9)
	// Confidence grows with group size as n/(n+3).
	assert.InDelta(t, 10.0/13.0, rule.Confidence, 1e-9)
	assert.Greater(t, payload.Threshold(), payload.Mean)
}

func TestMineNumericSkipsSparseGroups(t *testing.T) {
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	keyFn := func(s model.Sample) string { return s.Features.String("category") }

	// Only two samples carry the numeric feature, under the group minimum.
	samples := []model.Sample{
		{ID: "a", Timestamp: base, Features: model.Features{
			"category": model.StringFeature("fuel"),
			"amount":   model.NumberFeature(30),
		}},
		{ID: "b", Timestamp: base, Features: model.Features{
			"category": model.StringFeature("fuel"),
			"amount":   model.NumberFeature(35),
		}},
		{ID: "c", Timestamp: base, Features: model.Features{
			"category": model.StringFeature("fuel"),
		}},
	}

	rules := New(Config{MinGroupSize: 3, MinConfidence: 0.1}).
		MineNumeric("anomaly", samples, keyFn, "amount", 2.0, "anomaly")
	assert.Empty(t, rules)
}
