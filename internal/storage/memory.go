package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fintuitive/fintuitive/internal/model"
	"github.com/fintuitive/fintuitive/internal/service"
)

// Ensure MemoryStore satisfies the combined contract.
var _ service.Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store for tests and embedded hosts.
type MemoryStore struct {
	samples map[string][]model.Sample // keyed by module ID, oldest first
	rules   map[string][]model.Rule   // keyed by module ID
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		samples: make(map[string][]model.Sample),
		rules:   make(map[string][]model.Rule),
	}
}

// Migrate is a no-op for the in-memory store.
func (s *MemoryStore) Migrate(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// SaveSample persists a sample, superseding any sample with the same natural key.
func (s *MemoryStore) SaveSample(ctx context.Context, sample *model.Sample) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateSample(sample); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.samples[sample.ModuleID]
	if sample.NaturalKey != "" {
		filtered := existing[:0]
		for _, old := range existing {
			if old.NaturalKey != sample.NaturalKey {
				filtered = append(filtered, old)
			}
		}
		existing = filtered
	}

	existing = append(existing, *sample)
	sort.Slice(existing, func(i, j int) bool {
		return existing[i].Timestamp.Before(existing[j].Timestamp)
	})
	s.samples[sample.ModuleID] = existing
	return nil
}

// GetUserSamples returns a user's samples for a module, newest first.
func (s *MemoryStore) GetUserSamples(ctx context.Context, moduleID, userID string, months int) ([]model.Sample, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	var cutoff time.Time
	if months > 0 {
		cutoff = time.Now().AddDate(0, -months, 0)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Sample
	for _, sample := range s.samples[moduleID] {
		if sample.UserID != userID {
			continue
		}
		if months > 0 && sample.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, sample)
	}
	// Stored oldest first; callers expect newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// GetRecentSamples returns the most recent samples for a module across users.
func (s *MemoryStore) GetRecentSamples(ctx context.Context, moduleID string, limit int) ([]model.Sample, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.samples[moduleID]
	var out []model.Sample
	for i := len(stored) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}

// CountSamples returns the stored sample count for a module.
func (s *MemoryStore) CountSamples(ctx context.Context, moduleID, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if userID == "" {
		return len(s.samples[moduleID]), nil
	}
	count := 0
	for _, sample := range s.samples[moduleID] {
		if sample.UserID == userID {
			count++
		}
	}
	return count, nil
}

// DeleteSamplesBefore removes samples older than the cutoff.
func (s *MemoryStore) DeleteSamplesBefore(ctx context.Context, moduleID string, cutoff time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.samples[moduleID]
	kept := stored[:0]
	deleted := 0
	for _, sample := range stored {
		if sample.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, sample)
	}
	s.samples[moduleID] = kept
	return deleted, nil
}

// DeleteOldestSamples removes the n oldest samples for a module.
func (s *MemoryStore) DeleteOldestSamples(ctx context.Context, moduleID string, n int) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.samples[moduleID]
	if n > len(stored) {
		n = len(stored)
	}
	s.samples[moduleID] = append([]model.Sample(nil), stored[n:]...)
	return n, nil
}

// DeleteUserSamples removes every sample one user stored for a module.
func (s *MemoryStore) DeleteUserSamples(ctx context.Context, moduleID, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.samples[moduleID]
	kept := stored[:0]
	deleted := 0
	for _, sample := range stored {
		if sample.UserID == userID {
			deleted++
			continue
		}
		kept = append(kept, sample)
	}
	s.samples[moduleID] = kept
	return deleted, nil
}

// UpsertRule inserts the rule, or replaces a same-(user, key) rule only on
// strictly higher confidence.
func (s *MemoryStore) UpsertRule(ctx context.Context, rule *model.Rule) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateRule(rule); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.rules[rule.ModuleID]
	for i, existing := range stored {
		if existing.Key != rule.Key || existing.UserID != rule.UserID {
			continue
		}
		if rule.Confidence <= existing.Confidence {
			return false, nil
		}
		stored[i] = *rule
		s.rules[rule.ModuleID] = stored
		return true, nil
	}
	s.rules[rule.ModuleID] = append(stored, *rule)
	return true, nil
}

// SaveRule writes the rule unconditionally, replacing any rule with the same ID.
func (s *MemoryStore) SaveRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.rules[rule.ModuleID]
	for i, existing := range stored {
		if existing.ID == rule.ID {
			stored[i] = *rule
			return nil
		}
	}
	s.rules[rule.ModuleID] = append(stored, *rule)
	return nil
}

// GetRules returns a user's rules for a module ordered by priority then confidence descending.
func (s *MemoryStore) GetRules(ctx context.Context, moduleID, userID string) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Rule
	for _, rule := range s.rules[moduleID] {
		if rule.UserID == userID {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out, nil
}

// CountRules returns a user's stored rule count for a module.
func (s *MemoryStore) CountRules(ctx context.Context, moduleID, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rule := range s.rules[moduleID] {
		if rule.UserID == userID {
			count++
		}
	}
	return count, nil
}

// DeleteRules removes a user's rules for a module.
func (s *MemoryStore) DeleteRules(ctx context.Context, moduleID, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.rules[moduleID]
	kept := stored[:0]
	deleted := 0
	for _, rule := range stored {
		if rule.UserID == userID {
			deleted++
			continue
		}
		kept = append(kept, rule)
	}
	s.rules[moduleID] = kept
	return deleted, nil
}
