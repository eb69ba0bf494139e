package domain

import (
	"time"

	"github.com/google/uuid"
)

// AnalyticsEvent is one logged analytics event.
type AnalyticsEvent struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Params    map[string]any `json:"params"`
	UserID    string         `json:"user_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewAnalyticsEvent creates an event from a bundle. A nil bundle yields no params.
func NewAnalyticsEvent(name string, params *Bundle) *AnalyticsEvent {
	p := map[string]any{}
	if params != nil {
		p = params.Map()
	}
	return &AnalyticsEvent{
		ID:        NewUUIDv7(),
		Name:      name,
		Params:    p,
		Timestamp: time.Now(),
	}
}

// UserProperty is a named analytics user property.
type UserProperty struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
