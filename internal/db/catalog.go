package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"rentl/internal/model"
)

// Catalog answers run listing queries from the sqlite index.
type Catalog struct {
	db *sql.DB
}

// NewCatalog creates a catalog over an open database.
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

// Upsert records or refreshes one run row.
func (c *Catalog) Upsert(ctx context.Context, summary model.RunSummary) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO runs(run_id, created_at, updated_at, status, phases, languages)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET updated_at=excluded.updated_at, status=excluded.status,
			phases=excluded.phases, languages=excluded.languages`,
		summary.RunID,
		summary.CreatedAt.UTC().Format(time.RFC3339),
		summary.UpdatedAt.UTC().Format(time.RFC3339),
		summary.Status,
		summary.Phases,
		strings.Join(summary.Languages, ","),
	)
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", summary.RunID, err)
	}
	return nil
}

// List returns runs newest first, optionally filtered by status.
func (c *Catalog) List(ctx context.Context, status string, limit int) ([]model.RunSummary, error) {
	query := `SELECT run_id, created_at, updated_at, status, phases, languages FROM runs`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY run_id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.RunSummary
	for rows.Next() {
		var summary model.RunSummary
		var createdAt, updatedAt, languages string
		if err := rows.Scan(&summary.RunID, &createdAt, &updatedAt, &summary.Status, &summary.Phases, &languages); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		summary.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		summary.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		if languages != "" {
			summary.Languages = strings.Split(languages, ",")
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return out, nil
}

// Delete removes a run row, for prune-style maintenance.
func (c *Catalog) Delete(ctx context.Context, runID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id=?`, runID); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}
