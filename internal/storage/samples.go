package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/fintuitive/fintuitive/internal/model"
)

// SaveSample persists a sample. A sample sharing a non-empty natural key with
// an existing one supersedes it: the old row is removed first.
func (s *SQLiteStore) SaveSample(ctx context.Context, sample *model.Sample) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateSample(sample); err != nil {
		return err
	}

	features, err := sample.EncodeFeatures()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if sample.NaturalKey != "" {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM samples WHERE module_id = ? AND natural_key = ?",
			sample.ModuleID, sample.NaturalKey); err != nil {
			return fmt.Errorf("failed to supersede sample: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO samples
			(id, module_id, user_id, natural_key, timestamp, label, source, quality_score, features)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.ID, sample.ModuleID, sample.UserID, sample.NaturalKey,
		sample.Timestamp.UTC(), sample.Label, sample.Source, sample.QualityScore,
		string(features)); err != nil {
		return fmt.Errorf("failed to save sample: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sample: %w", err)
	}
	return nil
}

// GetUserSamples returns a user's samples for a module, newest first.
func (s *SQLiteStore) GetUserSamples(ctx context.Context, moduleID, userID string, months int) ([]model.Sample, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, module_id, user_id, natural_key, timestamp, label, source, quality_score, features
		FROM samples
		WHERE module_id = ? AND user_id = ?`
	args := []any{moduleID, userID}

	if months > 0 {
		query += " AND timestamp >= ?"
		args = append(args, time.Now().UTC().AddDate(0, -months, 0))
	}
	query += " ORDER BY timestamp DESC"

	return s.querySamples(ctx, query, args...)
}

// GetRecentSamples returns the most recent samples for a module across users.
func (s *SQLiteStore) GetRecentSamples(ctx context.Context, moduleID string, limit int) ([]model.Sample, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	return s.querySamples(ctx, `
		SELECT id, module_id, user_id, natural_key, timestamp, label, source, quality_score, features
		FROM samples
		WHERE module_id = ?
		ORDER BY timestamp DESC
		LIMIT ?`, moduleID, limit)
}

// CountSamples returns the stored sample count for a module.
func (s *SQLiteStore) CountSamples(ctx context.Context, moduleID, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return 0, err
	}

	var count int
	var err error
	if userID == "" {
		err = s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM samples WHERE module_id = ?", moduleID).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM samples WHERE module_id = ? AND user_id = ?",
			moduleID, userID).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return count, nil
}

// DeleteSamplesBefore removes samples older than the cutoff.
func (s *SQLiteStore) DeleteSamplesBefore(ctx context.Context, moduleID string, cutoff time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM samples WHERE module_id = ? AND timestamp < ?",
		moduleID, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired samples: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted samples: %w", err)
	}
	return int(n), nil
}

// DeleteOldestSamples removes the n oldest samples for a module.
func (s *SQLiteStore) DeleteOldestSamples(ctx context.Context, moduleID string, n int) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(moduleID, "moduleID"); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, nil
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM samples WHERE id IN (
			SELECT id FROM samples WHERE module_id = ?
			ORDER BY timestamp ASC LIMIT ?
		)`, moduleID, n)
	if err != nil {
		return 0, fmt.Errorf("failed to delete oldest samples: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted samples: %w", err)
	}
	return int(deleted), nil
}

// DeleteUserSamples removes every sample one user stored for a module.
func (s *SQLiteStore) DeleteUserSamples(ctx context.Context, moduleID, userID string) (int, error) {
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
		"DELETE FROM samples WHERE module_id = ? AND user_id = ?", moduleID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user samples: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted samples: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) querySamples(ctx context.Context, query string, args ...any) ([]model.Sample, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var samples []model.Sample
	for rows.Next() {
		var sample model.Sample
		var features string
		if err := rows.Scan(
			&sample.ID, &sample.ModuleID, &sample.UserID, &sample.NaturalKey,
			&sample.Timestamp, &sample.Label, &sample.Source, &sample.QualityScore,
			&features); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if err := sample.DecodeFeatures([]byte(features)); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate samples: %w", err)
	}
	return samples, nil
}
