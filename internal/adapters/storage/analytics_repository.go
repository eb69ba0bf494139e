package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/ports"
	"github.com/google/uuid"
)

// AnalyticsRepository implements ports.AnalyticsRepository using SQLite.
type AnalyticsRepository struct {
	db *DB
}

// NewAnalyticsRepository creates a new analytics repository.
func NewAnalyticsRepository(db *DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// LogEvent persists an event.
func (r *AnalyticsRepository) LogEvent(ctx context.Context, event *domain.AnalyticsEvent) error {
	paramsJSON, err := json.Marshal(event.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	idBytes, _ := event.ID.MarshalBinary()

	_, err = r.db.conn.ExecContext(ctx, `
		INSERT INTO analytics_events (id, name, params, user_id, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, idBytes, event.Name, paramsJSON, event.UserID, event.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// SetUserProperty inserts or replaces a user property.
func (r *AnalyticsRepository) SetUserProperty(ctx context.Context, prop domain.UserProperty) error {
	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO user_properties (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, prop.Name, prop.Value, prop.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set user property: %w", err)
	}
	return nil
}

// ListEvents retrieves events, newest first.
func (r *AnalyticsRepository) ListEvents(ctx context.Context, filter ports.EventFilter) ([]*domain.AnalyticsEvent, error) {
	var conds []string
	var args []interface{}

	if filter.Name != "" {
		conds = append(conds, "name = ?")
		args = append(args, filter.Name)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, filter.Since.UnixMilli())
	}

	query := "SELECT id, name, params, user_id, timestamp FROM analytics_events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*domain.AnalyticsEvent
	for rows.Next() {
		var (
			idBytes    []byte
			paramsJSON []byte
			userID     *string
			ts         int64
			event      domain.AnalyticsEvent
		)
		if err := rows.Scan(&idBytes, &event.Name, &paramsJSON, &userID, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.ID, _ = uuid.FromBytes(idBytes)
		if err := json.Unmarshal(paramsJSON, &event.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
		if userID != nil {
			event.UserID = *userID
		}
		event.Timestamp = time.UnixMilli(ts)
		events = append(events, &event)
	}
	return events, rows.Err()
}

// UserProperties returns all stored user properties ordered by name.
func (r *AnalyticsRepository) UserProperties(ctx context.Context) ([]domain.UserProperty, error) {
	rows, err := r.db.conn.QueryContext(ctx, "SELECT name, value, updated_at FROM user_properties ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query user properties: %w", err)
	}
	defer rows.Close()

	var props []domain.UserProperty
	for rows.Next() {
		var p domain.UserProperty
		var updated int64
		if err := rows.Scan(&p.Name, &p.Value, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan user property: %w", err)
		}
		p.UpdatedAt = time.UnixMilli(updated)
		props = append(props, p)
	}
	return props, rows.Err()
}

var _ ports.AnalyticsRepository = (*AnalyticsRepository)(nil)
