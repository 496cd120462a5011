package pricing

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-sdeal/internal/db"
)

// ErrRuleNotFound is returned when deleting a rule that does not exist.
var ErrRuleNotFound = errors.New("pricing: rule not found")

// Store persists price overrides in the pricing_rules table.
type Store struct {
	db db.DBTX
	sb sq.StatementBuilderType
}

// NewStore constructs a Store over a pool or transaction.
func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// ListRules returns every stored rule ordered by key.
func (s *Store) ListRules(ctx context.Context) ([]Rule, error) {
	sqlStr, args, err := s.sb.
		Select("key", "value::text").
		From("pricing_rules").
		OrderBy("key").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list pricing rules: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var (
			key string
			raw string
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan pricing rule: %w", err)
		}
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("pricing rule %s: %w", key, err)
		}
		out = append(out, Rule{Key: key, Value: value})
	}
	return out, rows.Err()
}

// UpsertRule inserts or replaces a single rule.
func (s *Store) UpsertRule(ctx context.Context, rule Rule) error {
	sqlStr, args, err := s.sb.
		Insert("pricing_rules").
		Columns("key", "value").
		Values(rule.Key, rule.Value.String()).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upsert pricing rule %s: %w", rule.Key, err)
	}
	return nil
}

// DeleteRule removes a rule so the default applies again.
func (s *Store) DeleteRule(ctx context.Context, key string) error {
	sqlStr, args, err := s.sb.
		Delete("pricing_rules").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete pricing rule %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}
