package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/code-sandbox/internal/apperror"
	"github.com/sakif/code-sandbox/internal/model"
	"github.com/sakif/code-sandbox/internal/repository"
)

var _ repository.ExecutionRepository = (*DB)(nil)

// Create inserts a new execution record, filling in ID and CreatedAt.
//
// xid IDs are 20 URL-safe characters and sort by creation time, which keeps
// the newest-first listing stable even when two runs finish in the same instant.
func (db *DB) Create(ctx context.Context, rec *model.ExecutionRecord) error {
	rec.ID = xid.New().String()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO executions (id, language, succeeded, kind, duration_ms, output_bytes, request_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		string(rec.Language),
		rec.Succeeded,
		string(rec.Kind),
		rec.DurationMs,
		rec.OutputBytes,
		rec.RequestID,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating execution: %w", err)
	}
	return nil
}

// GetByID retrieves a single execution record.
func (db *DB) GetByID(ctx context.Context, id string) (*model.ExecutionRecord, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, language, succeeded, kind, duration_ms, output_bytes, request_id, created_at
		 FROM executions
		 WHERE id = ?`,
		id,
	)

	rec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("execution", id)
		}
		return nil, fmt.Errorf("sqlite: getting execution %s: %w", id, err)
	}
	return rec, nil
}

// List returns execution records newest first.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.ExecutionRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, language, succeeded, kind, duration_ms, output_bytes, request_id, created_at
		 FROM executions
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing executions: %w", err)
	}
	defer rows.Close()

	records := make([]model.ExecutionRecord, 0, limit)
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning execution row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating executions: %w", err)
	}

	return records, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(s scanner) (*model.ExecutionRecord, error) {
	var (
		rec      model.ExecutionRecord
		language string
		kind     string
	)
	if err := s.Scan(
		&rec.ID,
		&language,
		&rec.Succeeded,
		&kind,
		&rec.DurationMs,
		&rec.OutputBytes,
		&rec.RequestID,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.Language = model.Language(language)
	rec.Kind = model.FailureKind(kind)
	return &rec, nil
}
