// Package ports defines the interfaces (ports) for the hexagonal architecture.
// These interfaces decouple the domain from infrastructure implementations.
package ports

import (
	"context"
	"time"

	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/google/uuid"
)

// AnalyticsRepository persists analytics events and user properties.
type AnalyticsRepository interface {
	AnalyticsSink

	// ListEvents retrieves events, newest first.
	ListEvents(ctx context.Context, filter EventFilter) ([]*domain.AnalyticsEvent, error)

	// UserProperties returns all stored user properties.
	UserProperties(ctx context.Context) ([]domain.UserProperty, error)
}

// EventFilter defines filtering options for event queries.
type EventFilter struct {
	Name  string
	Since time.Time
	Limit int
}

// CrashReportRepository persists crash reports.
type CrashReportRepository interface {
	// Save persists a new report.
	Save(ctx context.Context, report *domain.CrashReport) error

	// ListUnsent returns reports that were never uploaded, oldest first.
	ListUnsent(ctx context.Context, limit int) ([]*domain.CrashReport, error)

	// List returns all reports, newest first.
	List(ctx context.Context, limit int) ([]*domain.CrashReport, error)

	// MarkSent records a successful upload.
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
}
