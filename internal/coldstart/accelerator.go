// Package coldstart seeds new users' learning modules with community or
// built-in default rule sets before any local data exists. Seeding is strictly
// best-effort: every failure falls back and is logged, never propagated, since
// cold start must never block core app usage.
package coldstart

import (
	"context"

	"github.com/google/uuid"

	"github.com/fintuitive/fintuitive/internal/common"
	"github.com/fintuitive/fintuitive/internal/domains"
	"github.com/fintuitive/fintuitive/internal/learning"
	"github.com/fintuitive/fintuitive/internal/model"
	"github.com/fintuitive/fintuitive/internal/service"
)

// UserTraits are the coarse profile features available before local learning:
// spend tier, life stage, region.
type UserTraits struct {
	SpendTier string
	LifeStage string
	Region    string
}

// RuleSetProvider resolves a community rule set for a module and trait tuple.
type RuleSetProvider interface {
	GetRuleSet(ctx context.Context, moduleID string, traits UserTraits) ([]model.Rule, error)
}

// SeedSource identifies where a seeded rule set came from.
type SeedSource string

// Seed source constants.
const (
	SeedFromCommunity SeedSource = "community"
	SeedFromBuiltin   SeedSource = "builtin"
	SeedSkipped       SeedSource = "skipped"
)

// SeedResult reports the outcome of seeding one module.
type SeedResult struct {
	ModuleID string     `json:"module_id"`
	Source   SeedSource `json:"source"`
	Imported int        `json:"imported"`
}

// Accelerator imports default rule sets into learning modules via their
// ImportModel operation, discounting imported confidence relative to locally
// learned rules.
type Accelerator struct {
	provider RuleSetProvider
	clock    service.Clock
	discount float64
}

// New creates an accelerator. Provider may be nil, in which case only the
// built-in defaults are used.
func New(provider RuleSetProvider, clock service.Clock, discount float64) *Accelerator {
	if clock == nil {
		clock = service.SystemClock{}
	}
	if discount <= 0 || discount > 1 {
		discount = 0.7
	}
	return &Accelerator{
		provider: provider,
		clock:    clock,
		discount: discount,
	}
}

// Seed imports a default rule set into one module. Modules that already left
// cold start are skipped: they have local data worth more than defaults.
func (a *Accelerator) Seed(ctx context.Context, module *learning.Module, traits UserTraits) SeedResult {
	result := SeedResult{ModuleID: module.ID(), Source: SeedSkipped}
	if module.Stage() != model.StageColdStart {
		return result
	}

	rules, source := a.resolveRules(ctx, module.ID(), traits)
	if len(rules) == 0 {
		return result
	}

	export := &model.ModelExport{
		ExportedAt: a.clock.Now(),
		ModuleID:   module.ID(),
		Version:    model.ExportVersion,
		Rules:      rules,
		Metadata:   map[string]string{"seed_source": string(source)},
	}

	imported, err := module.ImportModel(ctx, export)
	if err != nil {
		common.LogError(err, "cold start import failed, continuing without seed",
			common.Fields{"module": module.ID()})
		return result
	}

	result.Source = source
	result.Imported = imported
	return result
}

// SeedAll seeds every given module.
func (a *Accelerator) SeedAll(ctx context.Context, modules []*learning.Module, traits UserTraits) []SeedResult {
	results := make([]SeedResult, 0, len(modules))
	for _, module := range modules {
		results = append(results, a.Seed(ctx, module, traits))
	}
	return results
}

// resolveRules asks the community provider first and falls back to the
// shipped defaults on failure or an empty answer.
func (a *Accelerator) resolveRules(ctx context.Context, moduleID string, traits UserTraits) ([]model.Rule, SeedSource) {
	if a.provider != nil {
		rules, err := a.provider.GetRuleSet(ctx, moduleID, traits)
		if err != nil {
			common.LogError(err, "community rule set unavailable, using builtin defaults",
				common.Fields{"module": moduleID})
		} else if len(rules) > 0 {
			return a.prepare(rules, model.RuleSourceCollaborative), SeedFromCommunity
		}
	}

	builtin := domains.BuiltinRules(moduleID)
	if len(builtin) == 0 {
		return nil, SeedSkipped
	}
	return a.prepare(builtin, model.RuleSourceSystemDefault), SeedFromBuiltin
}

// prepare discounts confidence and normalizes provenance on imported rules.
func (a *Accelerator) prepare(rules []model.Rule, source model.RuleSource) []model.Rule {
	now := a.clock.Now()
	out := make([]model.Rule, 0, len(rules))
	for _, rule := range rules {
		rule.Source = source
		rule.Confidence *= a.discount
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		if rule.CreatedAt.IsZero() {
			rule.CreatedAt = now
		}
		out = append(out, rule)
	}
	return out
}
