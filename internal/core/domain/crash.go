package domain

import (
	"time"

	"github.com/google/uuid"
)

// CrashReport is a recorded non-fatal exception with its diagnostic context.
type CrashReport struct {
	ID          uuid.UUID         `json:"id"`
	Message     string            `json:"message"`
	Breadcrumbs []string          `json:"breadcrumbs"`
	CustomKeys  map[string]string `json:"custom_keys"`
	UserID      string            `json:"user_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	SentAt      *time.Time        `json:"sent_at,omitempty"`
}

// NewCrashReport snapshots the given breadcrumbs and keys into a new report.
func NewCrashReport(message string, breadcrumbs []string, keys map[string]string, userID string) *CrashReport {
	crumbs := make([]string, len(breadcrumbs))
	copy(crumbs, breadcrumbs)
	ck := make(map[string]string, len(keys))
	for k, v := range keys {
		ck[k] = v
	}
	return &CrashReport{
		ID:          NewUUIDv7(),
		Message:     message,
		Breadcrumbs: crumbs,
		CustomKeys:  ck,
		UserID:      userID,
		CreatedAt:   time.Now(),
	}
}

// Sent reports whether the report has been uploaded.
func (r *CrashReport) Sent() bool {
	return r.SentAt != nil
}

// MarkSent records the upload time.
func (r *CrashReport) MarkSent(at time.Time) {
	r.SentAt = &at
}

// ObjectName returns the storage object name for the report.
func (r *CrashReport) ObjectName(prefix string) string {
	return prefix + r.CreatedAt.UTC().Format("2006/01/02/") + r.ID.String() + ".json"
}
