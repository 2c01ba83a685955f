package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintuitive/fintuitive/internal/coldstart"
	"github.com/fintuitive/fintuitive/internal/collab"
	"github.com/fintuitive/fintuitive/internal/common"
	"github.com/fintuitive/fintuitive/internal/config"
	"github.com/fintuitive/fintuitive/internal/domains"
	"github.com/fintuitive/fintuitive/internal/model"
	"github.com/fintuitive/fintuitive/internal/storage"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func newTestEngine(t *testing.T) (*Engine, *collab.MemoryTransport, *fakeClock) {
	t.Helper()
	transport := collab.NewMemoryTransport()
	clock := &fakeClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}

	params := config.DefaultParams()
	// Keep the report queue from flushing on its own so tests control delivery.
	params.ReportBatchSize = 1000
	params.ReportFlushInterval = time.Hour

	eng, err := New(Options{
		Store:     storage.NewMemoryStore(),
		Transport: transport,
		Clock:     clock,
		Params:    params,
		UserID:    "user-1",
	})
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return eng, transport, clock
}

func TestNewValidatesOptions(t *testing.T) {
	valid := Options{
		Store:  storage.NewMemoryStore(),
		Params: config.DefaultParams(),
		UserID: "user-1",
	}

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"missing store", func(o *Options) { o.Store = nil }},
		{"missing user", func(o *Options) { o.UserID = "" }},
		{"invalid params", func(o *Options) { o.Params.MaxSamples = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)
			_, err := New(opts)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}

	eng, err := New(valid)
	require.NoError(t, err)
	defer eng.Close()
	assert.Equal(t, "user-1", eng.UserID())
}

func TestModuleLookup(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	module, err := eng.Module(domains.ModuleCategory)
	require.NoError(t, err)
	assert.Equal(t, domains.ModuleCategory, module.ID())

	_, err = eng.Module("astrology")
	assert.ErrorIs(t, err, common.ErrUnknownModule)

	_, err = eng.Insight(context.Background(), "astrology")
	assert.ErrorIs(t, err, common.ErrUnknownModule)
}

func TestModulesPreserveDeclarationOrder(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	modules := eng.Modules()
	descriptors := domains.All()
	require.Len(t, modules, len(descriptors))
	for i, d := range descriptors {
		assert.Equal(t, d.ModuleID, modules[i].ID())
	}
}

func TestCollectTrainPredict(t *testing.T) {
	eng, transport, clock := newTestEngine(t)
	ctx := context.Background()

	module, err := eng.Module(domains.ModuleCategory)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		clock.now = clock.now.Add(time.Minute)
		require.NoError(t, module.CollectSample(ctx, &model.Sample{
			ID:           fmt.Sprintf("s-%d", i),
			UserID:       "user-1",
			Timestamp:    clock.now,
			Label:        "Coffee Shops",
			Source:       model.SourceExplicitFeedback,
			QualityScore: 0.95,
			Features:     model.Features{"merchant": model.StringFeature("blue bottle")},
		}))
	}
	require.Equal(t, model.StageCollecting, module.Stage())

	// High-quality explicit samples queue for collaborative reporting.
	assert.Equal(t, 20, eng.PendingReports())
	eng.FlushReports()
	assert.Zero(t, eng.PendingReports())
	assert.Equal(t, 20, transport.Len(domains.ModuleCategory))

	result := module.Train(ctx, false)
	require.True(t, result.Success, "train error: %s", result.Error)
	assert.Equal(t, 20, result.SamplesUsed)
	assert.Positive(t, result.RulesGenerated)
	assert.Equal(t, model.StageActive, module.Stage())

	prediction := module.Predict(ctx, model.PredictionInput{
		Timestamp: clock.now,
		UserID:    "user-1",
		Features:  model.Features{"merchant": model.StringFeature("Blue Bottle Coffee")},
	})
	assert.True(t, prediction.Matched)
	assert.Equal(t, "Coffee Shops", prediction.Result)
	assert.Equal(t, model.PredictionFromLearnedRule, prediction.Source)
	assert.InDelta(t, 1.0, prediction.Confidence, 1e-9)
}

func TestColdStartSeedsFromBuiltins(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	results := eng.ColdStart(ctx, coldstart.UserTraits{SpendTier: "medium"})
	require.Len(t, results, len(domains.All()))

	bySource := make(map[string]coldstart.SeedResult)
	for _, result := range results {
		bySource[result.ModuleID] = result
	}

	// Categorical modules ship default rule sets; the numeric ones cannot,
	// since thresholds only make sense against per-user statistics.
	assert.Equal(t, coldstart.SeedFromBuiltin, bySource[domains.ModuleCategory].Source)
	assert.Positive(t, bySource[domains.ModuleCategory].Imported)
	assert.Equal(t, coldstart.SeedSkipped, bySource[domains.ModuleAnomaly].Source)
	assert.Equal(t, coldstart.SeedSkipped, bySource[domains.ModuleMoneyAge].Source)

	module, err := eng.Module(domains.ModuleCategory)
	require.NoError(t, err)
	metrics := module.GetMetrics(ctx)
	assert.Positive(t, metrics.RuleCount)
}

func TestCleanupCoversEveryModule(t *testing.T) {
	eng, _, clock := newTestEngine(t)
	ctx := context.Background()

	module, err := eng.Module(domains.ModuleCategory)
	require.NoError(t, err)

	stale := clock.now.Add(-120 * 24 * time.Hour)
	require.NoError(t, module.CollectSample(ctx, &model.Sample{
		ID:        "old",
		UserID:    "user-1",
		Timestamp: stale,
		Label:     "Coffee Shops",
		Source:    model.SourceImplicitBehavior,
		Features:  model.Features{"merchant": model.StringFeature("blue bottle")},
	}))

	results, err := eng.Cleanup(ctx)
	require.NoError(t, err)
	require.Len(t, results, len(domains.All()))
	assert.Equal(t, 1, results[domains.ModuleCategory].ExpiredEvicted)
	assert.Zero(t, results[domains.ModuleCategory].Remaining)
}
