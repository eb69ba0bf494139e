package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/ports"
	"github.com/google/uuid"
)

// CrashReportRepository implements ports.CrashReportRepository using SQLite.
type CrashReportRepository struct {
	db *DB
}

// NewCrashReportRepository creates a new crash report repository.
func NewCrashReportRepository(db *DB) *CrashReportRepository {
	return &CrashReportRepository{db: db}
}

// Save persists a new report.
func (r *CrashReportRepository) Save(ctx context.Context, report *domain.CrashReport) error {
	crumbsJSON, err := json.Marshal(report.Breadcrumbs)
	if err != nil {
		return fmt.Errorf("failed to marshal breadcrumbs: %w", err)
	}
	keysJSON, err := json.Marshal(report.CustomKeys)
	if err != nil {
		return fmt.Errorf("failed to marshal custom keys: %w", err)
	}
	idBytes, _ := report.ID.MarshalBinary()

	var sentAt *int64
	if report.SentAt != nil {
		v := report.SentAt.UnixMilli()
		sentAt = &v
	}

	_, err = r.db.conn.ExecContext(ctx, `
		INSERT INTO crash_reports (id, message, breadcrumbs, custom_keys, user_id, created_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, idBytes, report.Message, crumbsJSON, keysJSON, report.UserID, report.CreatedAt.UnixMilli(), sentAt)
	if err != nil {
		return fmt.Errorf("failed to insert crash report: %w", err)
	}
	return nil
}

// ListUnsent returns reports that were never uploaded, oldest first.
func (r *CrashReportRepository) ListUnsent(ctx context.Context, limit int) ([]*domain.CrashReport, error) {
	query := `
		SELECT id, message, breadcrumbs, custom_keys, user_id, created_at, sent_at
		FROM crash_reports WHERE sent_at IS NULL ORDER BY created_at ASC, id ASC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return r.query(ctx, query)
}

// List returns all reports, newest first.
func (r *CrashReportRepository) List(ctx context.Context, limit int) ([]*domain.CrashReport, error) {
	query := `
		SELECT id, message, breadcrumbs, custom_keys, user_id, created_at, sent_at
		FROM crash_reports ORDER BY created_at DESC, id DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return r.query(ctx, query)
}

// MarkSent records a successful upload.
func (r *CrashReportRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	idBytes, _ := id.MarshalBinary()
	res, err := r.db.conn.ExecContext(ctx, "UPDATE crash_reports SET sent_at = ? WHERE id = ?", at.UnixMilli(), idBytes)
	if err != nil {
		return fmt.Errorf("failed to mark report sent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("crash report not found: %s", id)
	}
	return nil
}

func (r *CrashReportRepository) query(ctx context.Context, query string, args ...interface{}) ([]*domain.CrashReport, error) {
	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query crash reports: %w", err)
	}
	defer rows.Close()

	var reports []*domain.CrashReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func scanReport(rows *sql.Rows) (*domain.CrashReport, error) {
	var (
		idBytes    []byte
		crumbsJSON []byte
		keysJSON   []byte
		userID     sql.NullString
		createdAt  int64
		sentAt     sql.NullInt64
		report     domain.CrashReport
	)
	if err := rows.Scan(&idBytes, &report.Message, &crumbsJSON, &keysJSON, &userID, &createdAt, &sentAt); err != nil {
		return nil, fmt.Errorf("failed to scan crash report: %w", err)
	}

	report.ID, _ = uuid.FromBytes(idBytes)
	if err := json.Unmarshal(crumbsJSON, &report.Breadcrumbs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal breadcrumbs: %w", err)
	}
	if err := json.Unmarshal(keysJSON, &report.CustomKeys); err != nil {
		return nil, fmt.Errorf("failed to unmarshal custom keys: %w", err)
	}
	report.UserID = userID.String
	report.CreatedAt = time.UnixMilli(createdAt)
	if sentAt.Valid {
		t := time.UnixMilli(sentAt.Int64)
		report.SentAt = &t
	}
	return &report, nil
}

var _ ports.CrashReportRepository = (*CrashReportRepository)(nil)
