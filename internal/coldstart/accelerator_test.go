package coldstart

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintuitive/fintuitive/internal/config"
	"github.com/fintuitive/fintuitive/internal/domains"
	"github.com/fintuitive/fintuitive/internal/governor"
	"github.com/fintuitive/fintuitive/internal/learning"
	"github.com/fintuitive/fintuitive/internal/model"
	"github.com/fintuitive/fintuitive/internal/profile"
	"github.com/fintuitive/fintuitive/internal/storage"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

type fakeProvider struct {
	rules []model.Rule
	err   error
	calls int
}

func (p *fakeProvider) GetRuleSet(_ context.Context, moduleID string, _ UserTraits) ([]model.Rule, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := make([]model.Rule, len(p.rules))
	copy(out, p.rules)
	for i := range out {
		out[i].ModuleID = moduleID
	}
	return out, nil
}

func newTestModule(t *testing.T, descriptor domains.Descriptor) (*learning.Module, *storage.MemoryStore, *fakeClock) {
	t.Helper()
	store := storage.NewMemoryStore()
	clock := &fakeClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	params := config.DefaultParams()
	deps := learning.Deps{
		Store:    store,
		Governor: governor.New(store, nil, clock, params),
		Profiles: profile.NewCache(profile.DefaultConfig()),
		Clock:    clock,
	}
	return learning.NewModule("user-1", descriptor, params, deps), store, clock
}

func communityRule(key, category string, confidence float64) model.Rule {
	return model.Rule{
		ID:         "community-" + key,
		Key:        key,
		Source:     model.RuleSourceCollaborative,
		Payload:    model.CategoryPayload{Merchant: key, Category: category},
		Confidence: confidence,
		Priority:   5,
		CreatedAt:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSeedFromCommunityDiscountsConfidence(t *testing.T) {
	module, store, clock := newTestModule(t, domains.Category())
	provider := &fakeProvider{rules: []model.Rule{
		communityRule("blue bottle", "Coffee Shops", 0.9),
		communityRule("trader joes", "Groceries", 0.8),
	}}

	a := New(provider, clock, 0.7)
	result := a.Seed(context.Background(), module, UserTraits{SpendTier: "medium"})

	assert.Equal(t, SeedFromCommunity, result.Source)
	assert.Equal(t, 2, result.Imported)

	rules, err := store.GetRules(context.Background(), "category", "user-1")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	for _, rule := range rules {
		assert.Equal(t, model.RuleSourceCollaborative, rule.Source)
		assert.LessOrEqual(t, rule.Confidence, 0.7*0.9+1e-9,
			"imported confidence is discounted below locally learned rules")
	}
}

func TestSeedFallsBackToBuiltins(t *testing.T) {
	tests := []struct {
		name     string
		provider RuleSetProvider
	}{
		{"provider error", &fakeProvider{err: errors.New("backend offline")}},
		{"provider empty", &fakeProvider{}},
		{"no provider", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			module, store, clock := newTestModule(t, domains.Category())

			a := New(tt.provider, clock, 0.7)
			result := a.Seed(context.Background(), module, UserTraits{})

			assert.Equal(t, SeedFromBuiltin, result.Source)
			assert.Positive(t, result.Imported)

			rules, err := store.GetRules(context.Background(), "category", "user-1")
			require.NoError(t, err)
			require.NotEmpty(t, rules)
			for _, rule := range rules {
				assert.Equal(t, model.RuleSourceSystemDefault, rule.Source)
			}
		})
	}
}

func TestSeedSkipsWarmModules(t *testing.T) {
	module, _, clock := newTestModule(t, domains.Category())
	ctx := context.Background()

	// Give the module enough local data to leave cold start.
	for i := 0; i < 10; i++ {
		clock.now = clock.now.Add(time.Minute)
		require.NoError(t, module.CollectSample(ctx, &model.Sample{
			ID:        fmt.Sprintf("s-%d", i),
			UserID:    "user-1",
			Timestamp: clock.now,
			Label:     "Coffee Shops",
			Source:    model.SourceExplicitFeedback,
			Features:  model.Features{"merchant": model.StringFeature("blue bottle")},
		}))
	}
	require.Equal(t, model.StageCollecting, module.Stage())

	provider := &fakeProvider{rules: []model.Rule{communityRule("blue bottle", "Coffee Shops", 0.9)}}
	a := New(provider, clock, 0.7)

	result := a.Seed(ctx, module, UserTraits{})
	assert.Equal(t, SeedSkipped, result.Source)
	assert.Zero(t, result.Imported)
	assert.Zero(t, provider.calls, "warm modules never consult the provider")
}

func TestSeedAllCoversEveryModule(t *testing.T) {
	var modules []*learning.Module
	for _, descriptor := range domains.All() {
		module, _, _ := newTestModule(t, descriptor)
		modules = append(modules, module)
	}

	a := New(nil, nil, 0.7)
	results := a.SeedAll(context.Background(), modules, UserTraits{})

	require.Len(t, results, len(modules))
	seen := make(map[string]bool)
	for _, result := range results {
		seen[result.ModuleID] = true
	}
	assert.Len(t, seen, len(modules))
}
