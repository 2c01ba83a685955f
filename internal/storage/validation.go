package storage

import (
	"context"
	"fmt"

	"github.com/fintuitive/fintuitive/internal/common"
	"github.com/fintuitive/fintuitive/internal/model"
)

// validateContext ensures the context is usable.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("%w: context is nil", common.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return nil
}

// validateString ensures a required string argument is non-empty.
func validateString(value, name string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", common.ErrInvalidInput, name)
	}
	return nil
}

// validateRule ensures a rule is persistable. Stores additionally require an
// owning user; the model leaves that open for unbound seed rule sets.
func validateRule(rule *model.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is nil", common.ErrInvalidInput)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	return validateString(rule.UserID, "rule userID")
}

// validateSample ensures a sample is persistable.
func validateSample(sample *model.Sample) error {
	if sample == nil {
		return fmt.Errorf("%w: sample is nil", common.ErrInvalidInput)
	}
	if err := sample.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	return nil
}
