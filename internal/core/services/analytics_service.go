package services

import (
	"context"
	"sync"
	"time"

	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/handle"
	"github.com/forge-platform/firebridge/internal/core/ports"
)

// AnalyticsService logs analytics events and owns the parameter bundles
// the host builds them from.
type AnalyticsService struct {
	bundles *handle.Registry[*domain.Bundle]
	sink    ports.AnalyticsSink
	runner  ports.Runner
	logger  ports.Logger

	mu     sync.RWMutex
	userID string
}

// NewAnalyticsService creates an analytics service. A nil sink drops events.
func NewAnalyticsService(sink ports.AnalyticsSink, runner ports.Runner, logger ports.Logger) *AnalyticsService {
	return &AnalyticsService{
		bundles: handle.New[*domain.Bundle](),
		sink:    sink,
		runner:  runner,
		logger:  logger.With("component", "analytics"),
	}
}

// Bundles exposes the bundle registry.
func (s *AnalyticsService) Bundles() *handle.Registry[*domain.Bundle] {
	return s.bundles
}

// SetUserID sets the user id attached to subsequent events.
func (s *AnalyticsService) SetUserID(id string) {
	s.mu.Lock()
	s.userID = id
	s.mu.Unlock()
}

// UserID returns the current analytics user id.
func (s *AnalyticsService) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// SetUserProperty records a user property.
func (s *AnalyticsService) SetUserProperty(ctx context.Context, name, value string) {
	if s.sink == nil {
		return
	}
	prop := domain.UserProperty{Name: name, Value: value, UpdatedAt: time.Now()}
	ctx = context.WithoutCancel(ctx)
	s.runner.Do(func() {
		if err := s.sink.SetUserProperty(ctx, prop); err != nil {
			s.logger.Warn("Failed to set user property", "name", name, "error", err)
		}
	})
}

// LogEvent logs an event from parallel key and value slices.
// Mismatched lengths drop the event.
func (s *AnalyticsService) LogEvent(ctx context.Context, name string, keys, values []string) {
	params := domain.BundleFromStrings(keys, values)
	if params == nil {
		s.logger.Warn("Dropping event with mismatched parameters", "event", name, "keys", len(keys), "values", len(values))
		return
	}
	s.log(ctx, name, params)
}

// NewBundle allocates an empty bundle.
func (s *AnalyticsService) NewBundle() handle.ID {
	return s.bundles.Allocate(domain.NewBundle())
}

// PutString sets a string value. Absent handles are ignored.
func (s *AnalyticsService) PutString(h handle.ID, key, value string) {
	s.bundles.With(h, func(b *domain.Bundle) { b.PutString(key, value) })
}

// PutInt sets an integer value. Absent handles are ignored.
func (s *AnalyticsService) PutInt(h handle.ID, key string, value int64) {
	s.bundles.With(h, func(b *domain.Bundle) { b.PutInt(key, value) })
}

// PutFloat sets a float value. Absent handles are ignored.
func (s *AnalyticsService) PutFloat(h handle.ID, key string, value float64) {
	s.bundles.With(h, func(b *domain.Bundle) { b.PutFloat(key, value) })
}

// PutBundleArray embeds the bundles behind nested into h under key.
// The nested handles are consumed. Absent handles and h itself are skipped.
func (s *AnalyticsService) PutBundleArray(h handle.ID, key string, nested []handle.ID) {
	if _, ok := s.bundles.Get(h); !ok {
		return
	}
	items := make([]*domain.Bundle, 0, len(nested))
	for _, id := range nested {
		if id == h {
			continue
		}
		if b, ok := s.bundles.Release(id); ok {
			items = append(items, b)
		}
	}
	s.bundles.With(h, func(b *domain.Bundle) { b.PutBundles(key, items) })
}

// LogEventBundle logs an event with the bundle behind h and releases h.
// An absent handle is ignored.
func (s *AnalyticsService) LogEventBundle(ctx context.Context, name string, h handle.ID) {
	params, ok := s.bundles.Release(h)
	if !ok {
		s.logger.Debug("Ignoring event for released bundle", "event", name, "bundle", h)
		return
	}
	s.log(ctx, name, params)
}

// ReleaseBundle discards the bundle behind h.
func (s *AnalyticsService) ReleaseBundle(h handle.ID) {
	s.bundles.Release(h)
}

func (s *AnalyticsService) log(ctx context.Context, name string, params *domain.Bundle) {
	event := domain.NewAnalyticsEvent(name, params)
	event.UserID = s.UserID()
	s.logger.Debug("Logging event", "event", name, "params", params.Len())

	if s.sink == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.runner.Do(func() {
		if err := s.sink.LogEvent(ctx, event); err != nil {
			s.logger.Warn("Failed to log event", "event", name, "error", err)
		}
	})
}
