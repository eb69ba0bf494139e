package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/forge-platform/firebridge/internal/bg"
	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/ports"
	"github.com/google/uuid"
)

// fakeHost queues posted functions until drain is called. With inline set
// they run as soon as they are posted.
type fakeHost struct {
	mu      sync.Mutex
	queue   []func()
	signals []domain.Signal
	inline  bool
	onEmit  func(domain.Signal)
}

func (h *fakeHost) Post(fn func()) {
	if h.inline {
		fn()
		return
	}
	h.mu.Lock()
	h.queue = append(h.queue, fn)
	h.mu.Unlock()
}

func (h *fakeHost) Emit(sig domain.Signal) {
	h.mu.Lock()
	h.signals = append(h.signals, sig)
	h.mu.Unlock()
	if h.onEmit != nil {
		h.onEmit(sig)
	}
}

func (h *fakeHost) drain() {
	for {
		h.mu.Lock()
		if len(h.queue) == 0 {
			h.mu.Unlock()
			return
		}
		fn := h.queue[0]
		h.queue = h.queue[1:]
		h.mu.Unlock()
		fn()
	}
}

func (h *fakeHost) emitted() []domain.Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.Signal, len(h.signals))
	copy(out, h.signals)
	return out
}

func newTestBridge() (*Bridge, *fakeHost) {
	host := &fakeHost{}
	return NewBridge(host, bg.Sync{}, &NopLogger{}), host
}

type fakeIdentity struct {
	mu        sync.Mutex
	user      *domain.Identity
	token     string
	tokenErr  error
	signInErr error
	creds     []domain.Credential
	forced    []bool
	tokenHits int
}

func (f *fakeIdentity) CurrentUser() (*domain.Identity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil {
		return nil, false
	}
	u := *f.user
	return &u, true
}

func (f *fakeIdentity) SignInWithCredential(ctx context.Context, cred domain.Credential) (*domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds = append(f.creds, cred)
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	f.user = &domain.Identity{UID: "uid-1", DisplayName: "Ada", Email: "ada@example.com", ProviderID: cred.ProviderID}
	return f.user, nil
}

func (f *fakeIdentity) IDToken(ctx context.Context, forceRefresh bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenHits++
	f.forced = append(f.forced, forceRefresh)
	return f.token, f.tokenErr
}

func (f *fakeIdentity) SignOut() {
	f.mu.Lock()
	f.user = nil
	f.mu.Unlock()
}

type fakeLauncher struct {
	mu       sync.Mutex
	requests []domain.FlowRequest
	err      error
	handler  ports.FlowResultHandler
}

func (f *fakeLauncher) Launch(ctx context.Context, req domain.FlowRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.err
}

func (f *fakeLauncher) OnResult(handler ports.FlowResultHandler) {
	f.handler = handler
}

func (f *fakeLauncher) deliver(code int, result domain.FlowResult) {
	f.handler(code, result)
}

func (f *fakeLauncher) launches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeAnalyticsSink struct {
	mu     sync.Mutex
	events []*domain.AnalyticsEvent
	props  []domain.UserProperty
}

func (f *fakeAnalyticsSink) LogEvent(ctx context.Context, event *domain.AnalyticsEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAnalyticsSink) SetUserProperty(ctx context.Context, prop domain.UserProperty) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props = append(f.props, prop)
	return nil
}

type fakeCrash struct {
	mu       sync.Mutex
	userID   string
	logs     []string
	keys     map[string]string
	messages []string
	sends    int
}

func (f *fakeCrash) Log(msg string) {
	f.mu.Lock()
	f.logs = append(f.logs, msg)
	f.mu.Unlock()
}

func (f *fakeCrash) SetCustomKey(key, value string) {
	f.mu.Lock()
	if f.keys == nil {
		f.keys = map[string]string{}
	}
	f.keys[key] = value
	f.mu.Unlock()
}

func (f *fakeCrash) SetUserID(id string) {
	f.mu.Lock()
	f.userID = id
	f.mu.Unlock()
}

func (f *fakeCrash) RecordException(ctx context.Context, message string) error {
	f.mu.Lock()
	f.messages = append(f.messages, message)
	f.mu.Unlock()
	return nil
}

func (f *fakeCrash) SendUnsentReports(ctx context.Context) (int, error) {
	f.mu.Lock()
	f.sends++
	f.mu.Unlock()
	return 0, nil
}

type fakePerfSink struct {
	mu      sync.Mutex
	metrics []*domain.HTTPMetric
	traces  []*domain.Trace
}

func (f *fakePerfSink) RecordHTTPMetric(ctx context.Context, m *domain.HTTPMetric) error {
	f.mu.Lock()
	f.metrics = append(f.metrics, m)
	f.mu.Unlock()
	return nil
}

func (f *fakePerfSink) RecordTrace(ctx context.Context, t *domain.Trace) error {
	f.mu.Lock()
	f.traces = append(f.traces, t)
	f.mu.Unlock()
	return nil
}

type fakeReportRepo struct {
	mu      sync.Mutex
	reports []*domain.CrashReport
}

func (f *fakeReportRepo) Save(ctx context.Context, r *domain.CrashReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeReportRepo) ListUnsent(ctx context.Context, limit int) ([]*domain.CrashReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.CrashReport
	for _, r := range f.reports {
		if !r.Sent() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReportRepo) List(ctx context.Context, limit int) ([]*domain.CrashReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.CrashReport(nil), f.reports...), nil
}

func (f *fakeReportRepo) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reports {
		if r.ID == id {
			r.MarkSent(at)
			return nil
		}
	}
	return errors.New("report not found")
}

type fakeUploader struct {
	mu       sync.Mutex
	uploaded []*domain.CrashReport
	failOn   int
}

func (f *fakeUploader) Upload(ctx context.Context, r *domain.CrashReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn > 0 && len(f.uploaded)+1 == f.failOn {
		return errors.New("bucket unavailable")
	}
	f.uploaded = append(f.uploaded, r)
	return nil
}
