// Package governor enforces the engine's resource bounds: sample and rule
// caps, retention cleanup with hysteresis, and suppression of training and
// collaborative reporting under low-power or background conditions.
package governor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fintuitive/fintuitive/internal/config"
	"github.com/fintuitive/fintuitive/internal/service"
)

// CleanupResult reports what one cleanup pass evicted.
type CleanupResult struct {
	ExpiredEvicted  int `json:"expired_evicted"`
	OverflowEvicted int `json:"overflow_evicted"`
	Remaining       int `json:"remaining"`
}

// Governor owns admission and scheduling decisions for one engine instance.
type Governor struct {
	store   service.SampleStore
	signals service.ResourceSignals
	clock   service.Clock
	params  config.Params
}

// New creates a governor. Signals may be nil for hosts without device
// resource reporting; all operations are then permitted.
func New(store service.SampleStore, signals service.ResourceSignals, clock service.Clock, params config.Params) *Governor {
	if clock == nil {
		clock = service.SystemClock{}
	}
	return &Governor{
		store:   store,
		signals: signals,
		clock:   clock,
		params:  params,
	}
}

// CanAddSample reports whether a module may admit another sample. Denial is
// an admission error in the taxonomy: non-fatal, the caller logs and drops
// the sample after triggering cleanup.
func (g *Governor) CanAddSample(ctx context.Context, moduleID string) (bool, error) {
	count, err := g.store.CountSamples(ctx, moduleID, "")
	if err != nil {
		return false, fmt.Errorf("failed to check sample capacity: %w", err)
	}
	return count < g.params.MaxSamples, nil
}

// CanAddRule reports whether a module is under its rule cap.
func (g *Governor) CanAddRule(ruleCount int) bool {
	return ruleCount < g.params.MaxRules
}

// Cleanup evicts samples for a module: first everything past the retention
// window, then, if still at or over cap, the oldest remainder down to the
// cleanup target fraction of capacity. The hysteresis gap avoids thrashing at
// the cap.
func (g *Governor) Cleanup(ctx context.Context, moduleID string) (CleanupResult, error) {
	var result CleanupResult

	cutoff := g.clock.Now().Add(-g.params.RetentionWindow)
	expired, err := g.store.DeleteSamplesBefore(ctx, moduleID, cutoff)
	if err != nil {
		return result, fmt.Errorf("retention cleanup failed: %w", err)
	}
	result.ExpiredEvicted = expired

	count, err := g.store.CountSamples(ctx, moduleID, "")
	if err != nil {
		return result, fmt.Errorf("failed to count samples after retention cleanup: %w", err)
	}

	if count >= g.params.MaxSamples {
		target := int(float64(g.params.MaxSamples) * g.params.CleanupTarget)
		overflow, err := g.store.DeleteOldestSamples(ctx, moduleID, count-target)
		if err != nil {
			return result, fmt.Errorf("overflow cleanup failed: %w", err)
		}
		result.OverflowEvicted = overflow
		count -= overflow
	}
	result.Remaining = count

	if result.ExpiredEvicted > 0 || result.OverflowEvicted > 0 {
		slog.Debug("Cleanup evicted samples",
			"module", moduleID,
			"expired", result.ExpiredEvicted,
			"overflow", result.OverflowEvicted,
			"remaining", result.Remaining)
	}
	return result, nil
}

// ShouldPerformLearning reports whether training may run now. Low battery
// suppresses it entirely; background mode defers it while sample collection
// continues.
func (g *Governor) ShouldPerformLearning() bool {
	if g.signals == nil {
		return true
	}
	if g.signals.BatteryLevel() <= g.params.LowBatteryLevel {
		return false
	}
	return !g.signals.IsBackground()
}

// ShouldReport reports whether collaborative reporting may run now. Only the
// low-power signal suppresses it; background reporting is allowed since it
// rides the batch timer anyway.
func (g *Governor) ShouldReport() bool {
	if g.signals == nil {
		return true
	}
	return g.signals.BatteryLevel() > g.params.LowBatteryLevel
}
