// Package cascade ranks candidate answers through an ordered strategy chain:
// personal learned rules, statistical profile inference, collaborative rules,
// then a guaranteed fallback. The first qualifying stage short-circuits the
// rest; scores are never blended across stages.
package cascade

import (
	"strings"

	"github.com/fintuitive/fintuitive/internal/model"
)

// Feature names the matcher reads from prediction inputs.
const (
	FeatureMerchant = "merchant"
	FeatureAmount   = "amount"
	FeatureCategory = "category"
	FeatureQuery    = "query"
)

// Matches evaluates a rule's structural condition against an input: merchant
// containment, keyword containment, threshold comparison, or time-window
// membership depending on the payload variant.
func Matches(input model.PredictionInput, rule model.Rule) bool {
	switch payload := rule.Payload.(type) {
	case model.CategoryPayload:
		return matchesMerchant(input, payload.Merchant)
	case model.ThresholdPayload:
		return matchesThreshold(input, payload)
	case model.KeywordPayload:
		return matchesKeywords(input, payload.Keywords)
	case model.TimeWindowPayload:
		return payload.Contains(input.Timestamp.Hour(), input.Timestamp.Weekday())
	}
	return false
}

// matchesMerchant checks the input merchant against a rule pattern,
// case-insensitively, accepting exact or containment matches.
func matchesMerchant(input model.PredictionInput, pattern string) bool {
	if pattern == "" {
		return false
	}
	merchant := strings.ToLower(strings.TrimSpace(input.Features.String(FeatureMerchant)))
	if merchant == "" {
		return false
	}
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	return merchant == pattern || strings.Contains(merchant, pattern)
}

// matchesThreshold fires when the input's numeric value exceeds mean + k·σ
// for the rule's group.
func matchesThreshold(input model.PredictionInput, payload model.ThresholdPayload) bool {
	value, ok := input.Features.Number(FeatureAmount)
	if !ok {
		return false
	}
	if payload.GroupKey != "" {
		category := input.Features.String(FeatureCategory)
		if !strings.EqualFold(category, payload.GroupKey) {
			return false
		}
	}
	return value > payload.Threshold()
}

// matchesKeywords requires every rule keyword to appear in the input query or
// keyword set.
func matchesKeywords(input model.PredictionInput, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}

	haystack := strings.ToLower(input.Features.String(FeatureQuery))
	inputWords := input.Features.KeywordList("keywords")
	wordSet := make(map[string]bool, len(inputWords))
	for _, w := range inputWords {
		wordSet[strings.ToLower(w)] = true
	}

	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if wordSet[kw] {
			continue
		}
		if haystack != "" && strings.Contains(haystack, kw) {
			continue
		}
		return false
	}
	return true
}
