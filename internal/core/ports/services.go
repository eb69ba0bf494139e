package ports

import (
	"context"

	"github.com/forge-platform/firebridge/internal/core/domain"
)

// Host is the single-threaded scripting host that receives signals.
type Host interface {
	// Post schedules fn on the host context. Safe from any goroutine.
	Post(fn func())

	// Emit delivers a signal. Must only be called on the host context.
	Emit(sig domain.Signal)
}

// Runner executes background work.
type Runner interface {
	Do(fn func())
}

// IdentityProvider exchanges credentials and owns the signed-in identity.
type IdentityProvider interface {
	// CurrentUser returns the signed-in identity, if any. Implementations
	// must not hand out stale copies; callers re-read on every access.
	CurrentUser() (*domain.Identity, bool)

	// SignInWithCredential exchanges a provider credential for an identity.
	SignInWithCredential(ctx context.Context, cred domain.Credential) (*domain.Identity, error)

	// IDToken returns an ID token for the current identity.
	IDToken(ctx context.Context, forceRefresh bool) (string, error)

	// SignOut forgets the current identity.
	SignOut()
}

// FlowResultHandler receives the result of an external flow by correlation code.
type FlowResultHandler func(code int, result domain.FlowResult)

// FlowLauncher starts external sign-in flows and reports their results.
type FlowLauncher interface {
	// Launch starts the flow. The result arrives later through the handler
	// registered with OnResult, keyed by req.Code.
	Launch(ctx context.Context, req domain.FlowRequest) error

	// OnResult registers the handler for finished flows.
	OnResult(handler FlowResultHandler)
}

// AnalyticsSink receives analytics events and user attributes.
type AnalyticsSink interface {
	LogEvent(ctx context.Context, event *domain.AnalyticsEvent) error
	SetUserProperty(ctx context.Context, prop domain.UserProperty) error
}

// CrashReporter collects breadcrumbs and non-fatal exceptions.
type CrashReporter interface {
	Log(msg string)
	SetCustomKey(key, value string)
	SetUserID(id string)
	RecordException(ctx context.Context, message string) error
	SendUnsentReports(ctx context.Context) (int, error)
}

// ReportUploader ships crash reports off the device.
type ReportUploader interface {
	Upload(ctx context.Context, report *domain.CrashReport) error
}

// PerformanceSink receives finished performance resources.
type PerformanceSink interface {
	RecordHTTPMetric(ctx context.Context, m *domain.HTTPMetric) error
	RecordTrace(ctx context.Context, t *domain.Trace) error
}

// Logger defines the interface for structured logging.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	With(args ...interface{}) Logger
}
