package cascade

import (
	"github.com/fintuitive/fintuitive/internal/model"
	"github.com/fintuitive/fintuitive/internal/profile"
)

// ProfileInferenceFunc is the domain-specific statistical inference stage. It
// returns a result and confidence when the profile signal crosses the domain
// threshold; ok=false means the stage does not qualify.
type ProfileInferenceFunc func(input model.PredictionInput, prof *profile.Profile) (result string, confidence float64, ok bool)

// InsightKeyFunc maps an input to the domain key used to look up community
// statistics. Returning "" skips the insight lookup.
type InsightKeyFunc func(input model.PredictionInput) string

// Config tunes the cascade for one domain.
type Config struct {
	// Infer is the optional profile-inference stage.
	Infer ProfileInferenceFunc
	// InsightKey is the optional community-insight lookup key.
	InsightKey InsightKeyFunc
	// FallbackResult is the fixed default answer of the final stage.
	FallbackResult string
	// FallbackConfidence is the confidence reported by the fallback stage.
	FallbackConfidence float64
	// CollabDiscount multiplies collaborative rule confidence relative to
	// personal rules, reflecting lower trust.
	CollabDiscount float64
	// MinInsightShare is the minimum community majority share before the
	// insight lookup may answer.
	MinInsightShare float64
}

// Cascade evaluates the four prediction stages in order.
type Cascade struct {
	cfg Config
}

// New creates a cascade with the given configuration.
func New(cfg Config) *Cascade {
	if cfg.FallbackConfidence <= 0 {
		cfg.FallbackConfidence = 0.5
	}
	if cfg.CollabDiscount <= 0 {
		cfg.CollabDiscount = 0.8
	}
	if cfg.MinInsightShare <= 0 {
		cfg.MinInsightShare = 0.5
	}
	return &Cascade{cfg: cfg}
}

// Predict runs the cascade. Rules must arrive ordered by priority then
// confidence, both descending (the stores guarantee this). The returned rule
// pointer identifies the matched rule for hit bookkeeping, nil when no rule
// stage produced the answer. Predict never fails: the fallback stage
// guarantees a result.
func (c *Cascade) Predict(input model.PredictionInput, rules []model.Rule, prof *profile.Profile, insight *model.GlobalInsight) (model.Prediction, *model.Rule) {
	// Stage 1: personal learned rules.
	for i := range rules {
		rule := &rules[i]
		if rule.Source != model.RuleSourceUserLearned {
			continue
		}
		if Matches(input, *rule) {
			return model.Prediction{
				Result:     rule.Payload.Result(),
				Source:     model.PredictionFromLearnedRule,
				RuleID:     rule.ID,
				Confidence: rule.Confidence,
				Matched:    true,
			}, rule
		}
	}

	// Stage 2: statistical profile inference.
	if c.cfg.Infer != nil && prof != nil {
		if result, confidence, ok := c.cfg.Infer(input, prof); ok {
			return model.Prediction{
				Result:     result,
				Source:     model.PredictionFromProfile,
				Confidence: clamp(confidence),
				Matched:    true,
			}, nil
		}
	}

	// Stage 3: collaborative and default rules, confidence discounted.
	for i := range rules {
		rule := &rules[i]
		if rule.Source == model.RuleSourceUserLearned {
			continue
		}
		if Matches(input, *rule) {
			return model.Prediction{
				Result:     rule.Payload.Result(),
				Source:     model.PredictionFromCollaborative,
				RuleID:     rule.ID,
				Confidence: clamp(rule.Confidence * c.cfg.CollabDiscount),
				Matched:    true,
			}, rule
		}
	}
	if c.cfg.InsightKey != nil && insight != nil {
		if key := c.cfg.InsightKey(input); key != "" {
			if label, share := insight.MajorityLabel(key); label != "" && share >= c.cfg.MinInsightShare {
				return model.Prediction{
					Result:     label,
					Source:     model.PredictionFromCollaborative,
					Confidence: clamp(share * c.cfg.CollabDiscount),
					Matched:    true,
				}, nil
			}
		}
	}

	// Stage 4: fixed fallback, never absent.
	return model.Prediction{
		Result:     c.cfg.FallbackResult,
		Source:     model.PredictionFromFallback,
		Confidence: c.cfg.FallbackConfidence,
		Matched:    false,
	}, nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
