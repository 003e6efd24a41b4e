// Package store provides the data access layer for delivery rules.
// It handles all direct interactions with the PostgreSQL database using the pgx driver.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estimatrack/estimatrack/internal/rules"
	"github.com/estimatrack/estimatrack/internal/validation"
)

// ErrRuleNotFound is returned when a rule id does not exist for the shop.
var ErrRuleNotFound = errors.New("delivery rule not found")

// Compile-time check to verify that PostgresStore implements RuleRepository.
var _ RuleRepository = (*PostgresStore)(nil)

// RuleRepository defines the persistence operations for delivery rules.
// Using an interface allows for dependency injection and mocking in tests.
type RuleRepository interface {
	// ListEnabledRules retrieves a shop's enabled rules in deterministic
	// match order: priority ascending, newest update first, id as the
	// final tie-break.
	ListEnabledRules(ctx context.Context, shop string) ([]rules.Rule, error)

	// GetDefaultRule retrieves the shop's fallback rule. When a shop carries
	// several default rules, the one with the latest updated_at wins.
	GetDefaultRule(ctx context.Context, shop string) (rules.Rule, bool, error)

	// CreateRule inserts a new rule and populates ID and timestamps in the
	// struct. Creating a default rule demotes any existing defaults for the
	// shop in the same transaction.
	CreateRule(ctx context.Context, r *rules.Rule) error

	// GetRule fetches one rule by id, scoped to the shop.
	GetRule(ctx context.Context, shop, id string) (rules.Rule, error)

	// ListRules retrieves a paginated list of the shop's rules (enabled or
	// not) and the total record count.
	ListRules(ctx context.Context, shop string, limit, offset int) ([]rules.Rule, int64, error)

	// UpdateRule overwrites a rule's mutable fields and refreshes
	// updated_at. Same default-demotion semantics as CreateRule.
	UpdateRule(ctx context.Context, r *rules.Rule) error

	// DeleteRule removes a rule by id, scoped to the shop.
	DeleteRule(ctx context.Context, shop, id string) error
}

// PostgresStore is the implementation of RuleRepository backed by PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new repository instance with the given connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	validation.AssertNotNil(db, "database pool")
	return &PostgresStore{db: db}
}

// ruleColumns is the canonical select list, kept in one place so every
// query scans identically.
const ruleColumns = `id, shop, target_type, target_value, country_codes,
	estimated_min_days, estimated_max_days, custom_message,
	enabled, is_default, priority, created_at, updated_at`

// scanRule maps one row onto a rules.Rule.
func scanRule(row pgx.Row) (rules.Rule, error) {
	var r rules.Rule
	err := row.Scan(
		&r.ID,
		&r.Shop,
		&r.TargetType,
		&r.TargetValue,
		&r.CountryCodes,
		&r.EstimatedMinDays,
		&r.EstimatedMaxDays,
		&r.CustomMessage,
		&r.Enabled,
		&r.IsDefault,
		&r.Priority,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

// ListEnabledRules implements RuleRepository.
func (s *PostgresStore) ListEnabledRules(ctx context.Context, shop string) ([]rules.Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM delivery_rules
		WHERE shop = $1 AND enabled = TRUE
		ORDER BY priority ASC, updated_at DESC, id ASC
	`

	rows, err := s.db.Query(ctx, query, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled rules: %w", err)
	}
	defer rows.Close()

	var result []rules.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		result = append(result, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// GetDefaultRule implements RuleRepository.
func (s *PostgresStore) GetDefaultRule(ctx context.Context, shop string) (rules.Rule, bool, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM delivery_rules
		WHERE shop = $1 AND enabled = TRUE AND is_default = TRUE
		ORDER BY updated_at DESC
		LIMIT 1
	`

	r, err := scanRule(s.db.QueryRow(ctx, query, shop))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rules.Rule{}, false, nil
		}
		return rules.Rule{}, false, fmt.Errorf("failed to fetch default rule: %w", err)
	}

	return r, true, nil
}

// CreateRule implements RuleRepository.
func (s *PostgresStore) CreateRule(ctx context.Context, r *rules.Rule) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// A shop has at most one effective default: promoting this rule demotes
	// the others atomically.
	if r.IsDefault {
		if _, err := tx.Exec(ctx,
			`UPDATE delivery_rules SET is_default = FALSE WHERE shop = $1 AND is_default = TRUE`,
			r.Shop,
		); err != nil {
			return fmt.Errorf("failed to demote existing default rules: %w", err)
		}
	}

	query := `
		INSERT INTO delivery_rules
			(shop, target_type, target_value, country_codes,
			 estimated_min_days, estimated_max_days, custom_message,
			 enabled, is_default, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRow(ctx, query,
		r.Shop,
		r.TargetType,
		r.TargetValue,
		r.CountryCodes,
		r.EstimatedMinDays,
		r.EstimatedMaxDays,
		r.CustomMessage,
		r.Enabled,
		r.IsDefault,
		r.Priority,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return tx.Commit(ctx)
}

// GetRule implements RuleRepository.
func (s *PostgresStore) GetRule(ctx context.Context, shop, id string) (rules.Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM delivery_rules
		WHERE shop = $1 AND id = $2
	`

	r, err := scanRule(s.db.QueryRow(ctx, query, shop, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rules.Rule{}, ErrRuleNotFound
		}
		return rules.Rule{}, fmt.Errorf("failed to fetch rule %s: %w", id, err)
	}

	return r, nil
}

// ListRules implements RuleRepository.
func (s *PostgresStore) ListRules(ctx context.Context, shop string, limit, offset int) ([]rules.Rule, int64, error) {
	var total int64
	if err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM delivery_rules WHERE shop = $1`, shop,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count rules: %w", err)
	}

	if total == 0 {
		return []rules.Rule{}, 0, nil
	}

	query := `
		SELECT ` + ruleColumns + `
		FROM delivery_rules
		WHERE shop = $1
		ORDER BY priority ASC, updated_at DESC, id ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, shop, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	result := make([]rules.Rule, 0, limit)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan rule row: %w", err)
		}
		result = append(result, r)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, total, nil
}

// UpdateRule implements RuleRepository.
func (s *PostgresStore) UpdateRule(ctx context.Context, r *rules.Rule) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if r.IsDefault {
		if _, err := tx.Exec(ctx,
			`UPDATE delivery_rules SET is_default = FALSE WHERE shop = $1 AND is_default = TRUE AND id <> $2`,
			r.Shop, r.ID,
		); err != nil {
			return fmt.Errorf("failed to demote existing default rules: %w", err)
		}
	}

	query := `
		UPDATE delivery_rules
		SET target_type = $3,
			target_value = $4,
			country_codes = $5,
			estimated_min_days = $6,
			estimated_max_days = $7,
			custom_message = $8,
			enabled = $9,
			is_default = $10,
			priority = $11,
			updated_at = now()
		WHERE shop = $1 AND id = $2
		RETURNING created_at, updated_at
	`

	err = tx.QueryRow(ctx, query,
		r.Shop,
		r.ID,
		r.TargetType,
		r.TargetValue,
		r.CountryCodes,
		r.EstimatedMinDays,
		r.EstimatedMaxDays,
		r.CustomMessage,
		r.Enabled,
		r.IsDefault,
		r.Priority,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRuleNotFound
		}
		return fmt.Errorf("failed to update rule %s: %w", r.ID, err)
	}

	return tx.Commit(ctx)
}

// DeleteRule implements RuleRepository.
func (s *PostgresStore) DeleteRule(ctx context.Context, shop, id string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM delivery_rules WHERE shop = $1 AND id = $2`, shop, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}

	return nil
}
