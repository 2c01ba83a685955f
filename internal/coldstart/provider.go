package coldstart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fintuitive/fintuitive/internal/common"
	"github.com/fintuitive/fintuitive/internal/domains"
	"github.com/fintuitive/fintuitive/internal/model"
)

// InsightSource serves global insights; satisfied by the collaborative
// aggregator.
type InsightSource interface {
	GetInsight(ctx context.Context, moduleID string) (*model.GlobalInsight, error)
}

// minCommunityShare filters weak community majorities out of seed sets.
const minCommunityShare = 0.6

// InsightRuleProvider derives a community rule set from aggregated global
// insights: each domain key's majority bucket above the share floor becomes
// one rule. Traits do not change the derivation today; the aggregation layer
// already k-anonymizes per key, and trait-scoped insight feeds are a backend
// concern, not a device one.
type InsightRuleProvider struct {
	insights InsightSource
}

// NewInsightRuleProvider creates a provider over an insight source.
func NewInsightRuleProvider(insights InsightSource) *InsightRuleProvider {
	return &InsightRuleProvider{insights: insights}
}

// GetRuleSet implements RuleSetProvider.
func (p *InsightRuleProvider) GetRuleSet(ctx context.Context, moduleID string, _ UserTraits) ([]model.Rule, error) {
	insight, err := p.insights.GetInsight(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrColdStartUnavailable, err)
	}

	descriptor, ok := domains.ByID(moduleID)
	if !ok {
		return nil, fmt.Errorf("unknown module %q", moduleID)
	}
	if descriptor.Numeric || descriptor.PayloadFn == nil {
		// Threshold rules need per-user statistics; community means would
		// mislead more than help.
		return nil, nil
	}

	var rules []model.Rule
	for key := range insight.Buckets {
		label, share := insight.MajorityLabel(key)
		if label == "" || share < minCommunityShare {
			continue
		}
		payload := descriptor.PayloadFn(key, label, nil)
		if payload == nil {
			continue
		}
		rules = append(rules, model.Rule{
			ID:          uuid.NewString(),
			ModuleID:    moduleID,
			Key:         key,
			Source:      model.RuleSourceCollaborative,
			Payload:     payload,
			Confidence:  share,
			Priority:    descriptor.RulePriority / 2,
			SampleCount: sampleCountFor(insight, key),
			CreatedAt:   time.Now(),
		})
	}
	return rules, nil
}

func sampleCountFor(insight *model.GlobalInsight, key string) int {
	total := 0
	for _, stat := range insight.Buckets[key] {
		total += stat.SampleCount
	}
	return total
}
