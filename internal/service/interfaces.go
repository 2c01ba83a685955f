// Package service defines the interfaces between the engine and its host.
package service

import (
	"context"
	"time"

	"github.com/fintuitive/fintuitive/internal/model"
)

// SampleStore defines the persistence contract for samples. The engine only
// requires these operations plus eventual consistency: a save is visible to
// subsequent queries. Production uses SQLite; tests use the in-memory store.
type SampleStore interface {
	// SaveSample persists a sample. A sample sharing a natural key with an
	// existing one supersedes it.
	SaveSample(ctx context.Context, sample *model.Sample) error
	// GetUserSamples returns a user's samples for a module, newest first,
	// optionally restricted to the trailing number of months (0 = all).
	GetUserSamples(ctx context.Context, moduleID, userID string, months int) ([]model.Sample, error)
	// GetRecentSamples returns the most recent samples for a module across users.
	GetRecentSamples(ctx context.Context, moduleID string, limit int) ([]model.Sample, error)
	// CountSamples returns the stored sample count for a module, optionally
	// restricted to one user ("" = all users).
	CountSamples(ctx context.Context, moduleID, userID string) (int, error)
	// DeleteSamplesBefore removes samples older than the cutoff and returns
	// how many were removed. Consumed only by the resource governor.
	DeleteSamplesBefore(ctx context.Context, moduleID string, cutoff time.Time) (int, error)
	// DeleteOldestSamples removes the n oldest samples for a module and
	// returns how many were removed. Consumed only by the resource governor.
	DeleteOldestSamples(ctx context.Context, moduleID string, n int) (int, error)
	// DeleteUserSamples removes every sample one user stored for a module
	// and returns how many. Other users' samples are untouched.
	DeleteUserSamples(ctx context.Context, moduleID, userID string) (int, error)
}

// RuleStore defines the persistence contract for mined rules. Rules are owned
// per user; stores never let one user's learning read or overwrite another's.
type RuleStore interface {
	// UpsertRule inserts the rule or, when one with the same
	// (module, user, key) exists, replaces it only if the new confidence is
	// strictly higher. It returns true when the rule was written.
	UpsertRule(ctx context.Context, rule *model.Rule) (bool, error)
	// SaveRule writes the rule unconditionally, overwriting any existing
	// rule with the same ID. Used for feedback bookkeeping updates.
	SaveRule(ctx context.Context, rule *model.Rule) error
	// GetRules returns a user's rules for a module ordered by priority then
	// confidence, both descending.
	GetRules(ctx context.Context, moduleID, userID string) ([]model.Rule, error)
	// CountRules returns a user's stored rule count for a module.
	CountRules(ctx context.Context, moduleID, userID string) (int, error)
	// DeleteRules removes a user's rules for a module and returns how many.
	DeleteRules(ctx context.Context, moduleID, userID string) (int, error)
}

// Store combines the persistence contracts plus lifecycle management.
type Store interface {
	SampleStore
	RuleStore
	Migrate(ctx context.Context) error
	Close() error
}

// CollaborativeTransport abstracts delivery of sanitized patterns to the
// aggregation layer. Implementations may be network-backed or in-memory; the
// engine never assumes synchronous delivery.
type CollaborativeTransport interface {
	Report(ctx context.Context, patterns []model.SanitizedPattern) error
	GetAllPatterns(ctx context.Context, moduleID string) ([]model.SanitizedPattern, error)
}

// ResourceSignals exposes device conditions pushed by the host. The governor
// pulls them before deciding whether to train or report.
type ResourceSignals interface {
	// BatteryLevel is in [0,1]; hosts without battery report 1.
	BatteryLevel() float64
	// IsBackground reports whether the app is backgrounded.
	IsBackground() bool
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock implementation of Clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// RetryOptions configures retry behavior for transport operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
