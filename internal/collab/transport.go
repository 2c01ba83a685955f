// Package collab combines many users' sanitized patterns into global
// distributions, percentile thresholds, and emerging-pattern alerts, with a
// k-anonymity floor on everything published.
package collab

import (
	"context"
	"sync"

	"github.com/fintuitive/fintuitive/internal/model"
	"github.com/fintuitive/fintuitive/internal/service"
)

// Ensure MemoryTransport satisfies the transport contract.
var _ service.CollaborativeTransport = (*MemoryTransport)(nil)

// MemoryTransport is an in-process CollaborativeTransport used in tests and
// single-device deployments without a sync backend.
type MemoryTransport struct {
	patterns map[string][]model.SanitizedPattern
	mu       sync.RWMutex
}

// NewMemoryTransport creates an empty transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		patterns: make(map[string][]model.SanitizedPattern),
	}
}

// Report stores a batch of patterns.
func (t *MemoryTransport) Report(ctx context.Context, patterns []model.SanitizedPattern) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range patterns {
		t.patterns[p.ModuleID] = append(t.patterns[p.ModuleID], p)
	}
	return nil
}

// GetAllPatterns returns every stored pattern for a module.
func (t *MemoryTransport) GetAllPatterns(ctx context.Context, moduleID string) ([]model.SanitizedPattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]model.SanitizedPattern(nil), t.patterns[moduleID]...), nil
}

// Len reports the stored pattern count for a module.
func (t *MemoryTransport) Len(moduleID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.patterns[moduleID])
}
