package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/ports"
)

const defaultMaxBreadcrumbs = 64

// CrashService records non-fatal exceptions together with recent log
// lines and custom keys, and uploads them on request.
type CrashService struct {
	repo     ports.CrashReportRepository
	uploader ports.ReportUploader
	logger   ports.Logger

	mu             sync.Mutex
	breadcrumbs    []string
	maxBreadcrumbs int
	keys           map[string]string
	userID         string
}

// NewCrashService creates a crash service. Without a repository reports
// are only logged; without an uploader they stay unsent.
func NewCrashService(repo ports.CrashReportRepository, uploader ports.ReportUploader, maxBreadcrumbs int, logger ports.Logger) *CrashService {
	if maxBreadcrumbs <= 0 {
		maxBreadcrumbs = defaultMaxBreadcrumbs
	}
	return &CrashService{
		repo:           repo,
		uploader:       uploader,
		logger:         logger.With("component", "crash"),
		maxBreadcrumbs: maxBreadcrumbs,
		keys:           make(map[string]string),
	}
}

// Log appends a breadcrumb, dropping the oldest beyond the limit.
func (s *CrashService) Log(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.breadcrumbs = append(s.breadcrumbs, msg)
	if len(s.breadcrumbs) > s.maxBreadcrumbs {
		s.breadcrumbs = s.breadcrumbs[len(s.breadcrumbs)-s.maxBreadcrumbs:]
	}
}

// SetCustomKey sets a key attached to subsequent reports.
func (s *CrashService) SetCustomKey(key, value string) {
	s.mu.Lock()
	s.keys[key] = value
	s.mu.Unlock()
}

// SetUserID sets the user id attached to subsequent reports.
func (s *CrashService) SetUserID(id string) {
	s.mu.Lock()
	s.userID = id
	s.mu.Unlock()
}

// Breadcrumbs returns a copy of the retained log lines.
func (s *CrashService) Breadcrumbs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.breadcrumbs))
	copy(out, s.breadcrumbs)
	return out
}

// RecordException persists a report for message.
func (s *CrashService) RecordException(ctx context.Context, message string) error {
	s.mu.Lock()
	report := domain.NewCrashReport(message, s.breadcrumbs, s.keys, s.userID)
	s.mu.Unlock()

	s.logger.Info("Exception recorded", "report", report.ID, "message", message)
	if s.repo == nil {
		return nil
	}
	if err := s.repo.Save(ctx, report); err != nil {
		return fmt.Errorf("failed to save crash report: %w", err)
	}
	return nil
}

// SendUnsentReports uploads every unsent report and marks it sent.
// It stops at the first upload failure and returns the number sent.
func (s *CrashService) SendUnsentReports(ctx context.Context) (int, error) {
	if s.repo == nil || s.uploader == nil {
		return 0, nil
	}

	reports, err := s.repo.ListUnsent(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list unsent reports: %w", err)
	}

	sent := 0
	for _, r := range reports {
		if err := s.uploader.Upload(ctx, r); err != nil {
			return sent, fmt.Errorf("failed to upload report %s: %w", r.ID, err)
		}
		if err := s.repo.MarkSent(ctx, r.ID, time.Now()); err != nil {
			return sent, fmt.Errorf("failed to mark report %s sent: %w", r.ID, err)
		}
		sent++
	}

	if sent > 0 {
		s.logger.Info("Crash reports sent", "count", sent)
	}
	return sent, nil
}

// Reports lists stored reports, newest first.
func (s *CrashService) Reports(ctx context.Context, limit int) ([]*domain.CrashReport, error) {
	if s.repo == nil {
		return nil, ErrProviderUnavailable
	}
	return s.repo.List(ctx, limit)
}

var _ ports.CrashReporter = (*CrashService)(nil)
