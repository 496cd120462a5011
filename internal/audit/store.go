package audit

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/noah-isme/backend-sdeal/internal/db"
)

var entryColumns = []string{
	"id", "actor", "action", "resource_type", "resource_id", "method", "path", "route",
	"status", "ip", "user_agent", "request_id", "metadata", "created_at",
}

// PGStore persists audit entries in the admin_audit_log table.
type PGStore struct {
	db db.DBTX
	sb sq.StatementBuilderType
}

// NewStore constructs a PGStore over a pool or transaction.
func NewStore(conn db.DBTX) *PGStore {
	return &PGStore{db: conn, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// InsertEntry appends an entry to the log.
func (s *PGStore) InsertEntry(ctx context.Context, e Entry) error {
	sqlStr, args, err := s.sb.
		Insert("admin_audit_log").
		Columns("actor", "action", "resource_type", "resource_id", "method", "path", "route",
			"status", "ip", "user_agent", "request_id", "metadata").
		Values(e.Actor, e.Action, e.ResourceType, e.ResourceID, e.Method, e.Path, e.Route,
			e.Status, e.IP, e.UserAgent, e.RequestID, []byte(e.Metadata)).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListEntries returns one page of entries, newest first, plus the total count.
func (s *PGStore) ListEntries(ctx context.Context, limit, offset int) ([]Entry, int64, error) {
	var total int64
	countSQL, countArgs, err := s.sb.Select("COUNT(*)").From("admin_audit_log").ToSql()
	if err != nil {
		return nil, 0, err
	}
	if err := s.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	sqlStr, args, err := s.sb.
		Select(entryColumns...).
		From("admin_audit_log").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e        Entry
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.ResourceType, &e.ResourceID, &e.Method,
			&e.Path, &e.Route, &e.Status, &e.IP, &e.UserAgent, &e.RequestID, &metadata, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Metadata = metadata
		out = append(out, e)
	}
	return out, total, rows.Err()
}
