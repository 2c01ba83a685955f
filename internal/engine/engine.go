// Package engine wires the personalization components into one explicitly
// constructed service object: governor, sanitizer, aggregator, cold-start
// accelerator, and one learning module per domain. There are no package-level
// singletons; the engine is created at startup and torn down at shutdown.
package engine

import (
	"context"
	"fmt"

	"github.com/fintuitive/fintuitive/internal/coldstart"
	"github.com/fintuitive/fintuitive/internal/collab"
	"github.com/fintuitive/fintuitive/internal/common"
	"github.com/fintuitive/fintuitive/internal/config"
	"github.com/fintuitive/fintuitive/internal/domains"
	"github.com/fintuitive/fintuitive/internal/governor"
	"github.com/fintuitive/fintuitive/internal/learning"
	"github.com/fintuitive/fintuitive/internal/model"
	"github.com/fintuitive/fintuitive/internal/profile"
	"github.com/fintuitive/fintuitive/internal/sanitize"
	"github.com/fintuitive/fintuitive/internal/service"
)

// Options configures engine construction. Transport and Signals may be nil:
// without a transport the collaborative layer runs in-memory, and without
// signals all resource gates stay open.
type Options struct {
	Store     service.Store
	Transport service.CollaborativeTransport
	Signals   service.ResourceSignals
	Clock     service.Clock
	Params    config.Params
	UserID    string
}

// Engine is the per-user personalization facade.
type Engine struct {
	store       service.Store
	governor    *governor.Governor
	queue       *governor.ReportQueue
	aggregator  *collab.Aggregator
	accelerator *coldstart.Accelerator
	modules     map[string]*learning.Module
	order       []string
	params      config.Params
	userID      string
}

// New constructs an engine for one user with explicit dependency injection.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: store is required", common.ErrInvalidConfig)
	}
	if opts.UserID == "" {
		return nil, fmt.Errorf("%w: user ID is required", common.ErrInvalidConfig)
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}
	if opts.Clock == nil {
		opts.Clock = service.SystemClock{}
	}
	if opts.Transport == nil {
		opts.Transport = collab.NewMemoryTransport()
	}

	gov := governor.New(opts.Store, opts.Signals, opts.Clock, opts.Params)
	aggregator := collab.NewAggregator(opts.Transport, opts.Clock, opts.Params)
	sanitizer := sanitize.New(opts.Params.PublishThreshold)

	queue := governor.NewReportQueue(
		opts.Params.ReportBatchSize,
		opts.Params.ReportFlushInterval,
		func(ctx context.Context, patterns []model.SanitizedPattern) error {
			return common.WithRetry(ctx, func() error {
				err := opts.Transport.Report(ctx, patterns)
				if err == nil {
					return nil
				}
				err = fmt.Errorf("%w: %v", common.ErrTransportUnavailable, err)
				return &common.RetryableError{Err: err, Retryable: common.IsRetryable(err)}
			}, service.RetryOptions{MaxAttempts: 3})
		},
	)

	accelerator := coldstart.New(
		coldstart.NewInsightRuleProvider(aggregator),
		opts.Clock,
		opts.Params.ColdStartDiscount,
	)

	e := &Engine{
		store:       opts.Store,
		governor:    gov,
		queue:       queue,
		aggregator:  aggregator,
		accelerator: accelerator,
		modules:     make(map[string]*learning.Module),
		params:      opts.Params,
		userID:      opts.UserID,
	}

	for _, descriptor := range domains.All() {
		// Each module gets its own profile cache: profiles derive from a
		// single domain's sample stream and must not cross-contaminate.
		deps := learning.Deps{
			Store:     opts.Store,
			Governor:  gov,
			Profiles:  profile.NewCache(profile.DefaultConfig()),
			Sanitizer: sanitizer,
			Queue:     queue,
			Insights:  aggregator,
			Clock:     opts.Clock,
		}
		module := learning.NewModule(opts.UserID, descriptor, opts.Params, deps)
		e.modules[descriptor.ModuleID] = module
		e.order = append(e.order, descriptor.ModuleID)
	}

	return e, nil
}

// UserID returns the user this engine was built for.
func (e *Engine) UserID() string { return e.userID }

// Module returns the learning module for a domain.
func (e *Engine) Module(moduleID string) (*learning.Module, error) {
	module, ok := e.modules[moduleID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownModule, moduleID)
	}
	return module, nil
}

// Modules returns every module in declaration order.
func (e *Engine) Modules() []*learning.Module {
	out := make([]*learning.Module, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.modules[id])
	}
	return out
}

// ColdStart seeds every cold module from community or built-in defaults.
func (e *Engine) ColdStart(ctx context.Context, traits coldstart.UserTraits) []coldstart.SeedResult {
	return e.accelerator.SeedAll(ctx, e.Modules(), traits)
}

// Insight returns the (possibly cached) global insight for a module.
func (e *Engine) Insight(ctx context.Context, moduleID string) (*model.GlobalInsight, error) {
	if _, err := e.Module(moduleID); err != nil {
		return nil, err
	}
	return e.aggregator.GetInsight(ctx, moduleID)
}

// RefreshInsight forces insight regeneration for a module.
func (e *Engine) RefreshInsight(ctx context.Context, moduleID string) (*model.GlobalInsight, error) {
	if _, err := e.Module(moduleID); err != nil {
		return nil, err
	}
	return e.aggregator.Refresh(ctx, moduleID)
}

// Cleanup runs governor eviction for every module.
func (e *Engine) Cleanup(ctx context.Context) (map[string]governor.CleanupResult, error) {
	results := make(map[string]governor.CleanupResult, len(e.order))
	for _, id := range e.order {
		result, err := e.governor.Cleanup(ctx, id)
		if err != nil {
			return results, fmt.Errorf("cleanup failed for module %q: %w", id, err)
		}
		results[id] = result
	}
	return results, nil
}

// FlushReports forces delivery of queued sanitized patterns.
func (e *Engine) FlushReports() {
	e.queue.Flush()
}

// PendingReports returns how many sanitized patterns await delivery.
func (e *Engine) PendingReports() int {
	return e.queue.Pending()
}

// Close flushes the report queue. The store's lifecycle belongs to the host
// that opened it.
func (e *Engine) Close() {
	e.queue.Close()
}
