package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hakonix/hakonix/internal/hakonix/lifecycle"
)

// OperationRecord is one persisted lifecycle operation.
type OperationRecord struct {
	ID        int64
	Timestamp time.Time
	TraceID   string
	Owner     string
	Action    string
	Container string
	Success   bool
	Detail    string
}

// RecordOperation writes one lifecycle operation. Implements
// lifecycle.Auditor.
func (s *Store) RecordOperation(ctx context.Context, op lifecycle.Operation) error {
	var owner sql.NullString
	if op.Owner != "" {
		owner = sql.NullString{String: op.Owner, Valid: true}
	}
	var detail sql.NullString
	if op.Detail != "" {
		detail = sql.NullString{String: op.Detail, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations_log (ts, trace_id, owner, action, container, success, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, time.Now(), op.TraceID, owner, op.Action, op.Container, op.Success, detail)
	if err != nil {
		return fmt.Errorf("write operation record: %w", err)
	}
	return nil
}

// RecentOperations returns the newest records first, up to limit (default
// 100 when limit is non-positive).
func (s *Store) RecentOperations(ctx context.Context, limit int) ([]*OperationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryOperations(ctx, `
		SELECT id, ts, trace_id, owner, action, container, success, detail
		FROM operations_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
}

// ContainerOperations returns every record for one container, oldest first.
func (s *Store) ContainerOperations(ctx context.Context, container string) ([]*OperationRecord, error) {
	return s.queryOperations(ctx, `
		SELECT id, ts, trace_id, owner, action, container, success, detail
		FROM operations_log
		WHERE container = ?
		ORDER BY id ASC
	`, container)
}

func (s *Store) queryOperations(ctx context.Context, query string, args ...any) ([]*OperationRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query operations log: %w", err)
	}
	defer rows.Close()

	var records []*OperationRecord
	for rows.Next() {
		rec := &OperationRecord{}
		var owner, detail sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.TraceID, &owner,
			&rec.Action, &rec.Container, &rec.Success, &detail); err != nil {
			return nil, fmt.Errorf("scan operation record: %w", err)
		}
		rec.Owner = owner.String
		rec.Detail = detail.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations log: %w", err)
	}
	return records, nil
}
