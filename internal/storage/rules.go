package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fintuitive/fintuitive/internal/model"
)

// UpsertRule inserts the rule, or replaces an existing rule with the same
// (module, user, key) only when the new confidence is strictly higher.
// Returns true when the rule was written.
func (s *SQLiteStore) UpsertRule(ctx context.Context, rule *model.Rule) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateRule(rule); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingID string
	var existingConfidence float64
	err = tx.QueryRowContext(ctx,
		"SELECT id, confidence FROM rules WHERE module_id = ? AND user_id = ? AND rule_key = ?",
		rule.ModuleID, rule.UserID, rule.Key).Scan(&existingID, &existingConfidence)
	switch {
	case err == sql.ErrNoRows:
		// New key, insert below.
	case err != nil:
		return false, fmt.Errorf("failed to look up rule: %w", err)
	case rule.Confidence <= existingConfidence:
		// Existing rule wins ties; keep the earliest-created rule.
		return false, nil
	default:
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM rules WHERE id = ?", existingID); err != nil {
			return false, fmt.Errorf("failed to replace rule: %w", err)
		}
	}

	if err := insertRule(ctx, tx, rule); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit rule: %w", err)
	}
	return true, nil
}

// SaveRule writes the rule unconditionally, overwriting any rule with the same ID.
func (s *SQLiteStore) SaveRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM rules WHERE id = ?", rule.ID); err != nil {
		return fmt.Errorf("failed to replace rule: %w", err)
	}
	if err := insertRule(ctx, tx, rule); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rule: %w", err)
	}
	return nil
}

func insertRule(ctx context.Context, tx *sql.Tx, rule *model.Rule) error {
	payload, err := json.Marshal(rule.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode rule payload: %w", err)
	}

	var lastUsed any
	if rule.LastUsedAt != nil {
		lastUsed = rule.LastUsedAt.UTC()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rules
			(id, module_id, user_id, rule_key, source, confidence, priority,
			 sample_count, hit_count, false_positives,
			 payload_kind, payload, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.ModuleID, rule.UserID, rule.Key, rule.Source, rule.Confidence, rule.Priority,
		rule.SampleCount, rule.HitCount, rule.FalsePositives,
		rule.Payload.Kind(), string(payload), rule.CreatedAt.UTC(), lastUsed); err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// GetRules returns a user's rules for a module ordered by priority then confidence descending.
func (s *SQLiteStore) GetRules(ctx context.Context, moduleID, userID string) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, module_id, user_id, rule_key, source, confidence, priority,
			sample_count, hit_count, false_positives,
			payload_kind, payload, created_at, last_used_at
		FROM rules
		WHERE module_id = ? AND user_id = ?
		ORDER BY priority DESC, confidence DESC`, moduleID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		var rule model.Rule
		var kind model.PayloadKind
		var payload string
		var lastUsed sql.NullTime
		if err := rows.Scan(
			&rule.ID, &rule.ModuleID, &rule.UserID, &rule.Key, &rule.Source, &rule.Confidence, &rule.Priority,
			&rule.SampleCount, &rule.HitCount, &rule.FalsePositives,
			&kind, &payload, &rule.CreatedAt, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		decoded, err := model.DecodePayload(kind, []byte(payload))
		if err != nil {
			return nil, err
		}
		rule.Payload = decoded
		if lastUsed.Valid {
			t := lastUsed.Time
			rule.LastUsedAt = &t
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return rules, nil
}

// CountRules returns a user's stored rule count for a module.
func (s *SQLiteStore) CountRules(ctx context.Context, moduleID, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM rules WHERE module_id = ? AND user_id = ?",
		moduleID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return count, nil
}

// DeleteRules removes a user's rules for a module.
func (s *SQLiteStore) DeleteRules(ctx context.Context, moduleID, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM rules WHERE module_id = ? AND user_id = ?", moduleID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rules: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted rules: %w", err)
	}
	return int(n), nil
}
