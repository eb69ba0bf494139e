package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/forge-platform/firebridge/internal/bg"
	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/handle"
	"github.com/forge-platform/firebridge/internal/core/ports"
)

// Dependencies bundles every collaborator the plugin needs. Optional
// collaborators may be nil; the calls that need them become inert.
type Dependencies struct {
	Host   ports.Host
	Runner ports.Runner
	Logger ports.Logger

	Identity    ports.IdentityProvider
	Launcher    ports.FlowLauncher
	Analytics   ports.AnalyticsSink
	Crash       ports.CrashReporter
	Performance ports.PerformanceSink

	HTTPClient   *http.Client
	MaxBodyBytes int64
}

// MethodSpec describes one host-callable method.
type MethodSpec struct {
	Name    string   `json:"name"`
	Args    []string `json:"args"`
	Returns string   `json:"returns,omitempty"`
}

type methodFunc func(ctx context.Context, a Args) (any, error)

type method struct {
	spec MethodSpec
	call methodFunc
}

// Plugin is the call-in surface exposed to the host.
type Plugin struct {
	bridge      *Bridge
	identity    *IdentityService
	signIn      *SignInService
	analytics   *AnalyticsService
	crash       ports.CrashReporter
	performance *PerformanceService
	dispatcher  *RequestDispatcher
	runner      ports.Runner
	logger      ports.Logger

	methods map[string]method
	order   []string
}

// NewPlugin wires the services together.
func NewPlugin(deps Dependencies) (*Plugin, error) {
	if deps.Host == nil {
		return nil, errors.New("host is required")
	}
	if deps.Logger == nil {
		deps.Logger = &NopLogger{}
	}
	if deps.Runner == nil {
		deps.Runner = bg.NewAsync()
	}

	bridge := NewBridge(deps.Host, deps.Runner, deps.Logger.With("component", "bridge"))
	analytics := NewAnalyticsService(deps.Analytics, deps.Runner, deps.Logger)

	p := &Plugin{
		bridge:      bridge,
		identity:    NewIdentityService(deps.Identity, bridge, deps.Logger),
		signIn:      NewSignInService(deps.Launcher, deps.Identity, deps.Crash, analytics, bridge, deps.Logger),
		analytics:   analytics,
		crash:       deps.Crash,
		performance: NewPerformanceService(deps.Performance, deps.Runner, deps.Logger),
		dispatcher:  NewRequestDispatcher(deps.HTTPClient, bridge, deps.MaxBodyBytes, deps.Logger),
		runner:      deps.Runner,
		logger:      deps.Logger.With("component", "plugin"),
		methods:     make(map[string]method),
	}
	p.registerMethods()
	return p, nil
}

// Bridge returns the completion bridge.
func (p *Plugin) Bridge() *Bridge { return p.bridge }

// Identity returns the identity service.
func (p *Plugin) Identity() *IdentityService { return p.identity }

// SignIn returns the sign-in service.
func (p *Plugin) SignIn() *SignInService { return p.signIn }

// Analytics returns the analytics service.
func (p *Plugin) Analytics() *AnalyticsService { return p.analytics }

// Performance returns the performance service.
func (p *Plugin) Performance() *PerformanceService { return p.performance }

// Dispatcher returns the request dispatcher.
func (p *Plugin) Dispatcher() *RequestDispatcher { return p.dispatcher }

// Methods returns the host method table in registration order.
func (p *Plugin) Methods() []MethodSpec {
	out := make([]MethodSpec, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.methods[name].spec)
	}
	return out
}

// Invoke calls the named host method.
func (p *Plugin) Invoke(ctx context.Context, name string, args Args) (any, error) {
	m, ok := p.methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}
	result, err := m.call(ctx, args)
	if err != nil {
		p.logger.Debug("Method failed", "method", name, "error", err)
		return nil, err
	}
	return result, nil
}

// Close discards live handles.
func (p *Plugin) Close() {
	p.performance.Close()
	p.analytics.Bundles().Close()
}

func (p *Plugin) register(name string, args []string, returns string, fn methodFunc) {
	if args == nil {
		args = []string{}
	}
	p.methods[name] = method{
		spec: MethodSpec{Name: name, Args: args, Returns: returns},
		call: fn,
	}
	p.order = append(p.order, name)
}

// void adapts a method with no result.
func void(fn func(ctx context.Context, a Args) error) methodFunc {
	return func(ctx context.Context, a Args) (any, error) {
		return nil, fn(ctx, a)
	}
}

func (p *Plugin) crashLog(msg string) {
	if p.crash != nil {
		p.crash.Log(msg)
	}
}

func (p *Plugin) registerMethods() {
	p.registerIdentity()
	p.registerAnalytics()
	p.registerBundles()
	p.registerHTTPMetrics()
	p.registerTraces()

	p.register("http_request", []string{"url", "headers", "method", "body"}, "", void(func(ctx context.Context, a Args) error {
		url, err := a.String(0)
		if err != nil {
			return err
		}
		headers, err := a.Strings(1)
		if err != nil {
			return err
		}
		verb, err := a.String(2)
		if err != nil {
			return err
		}
		body, err := a.String(3)
		if err != nil {
			return err
		}
		p.dispatcher.Dispatch(ctx, url, headers, verb, body)
		return nil
	}))

	p.register("get_plugin_methods", nil, "string[]", func(ctx context.Context, a Args) (any, error) {
		names := make([]string, len(p.order))
		copy(names, p.order)
		return names, nil
	})
	p.register("get_plugin_signals", nil, "signal[]", func(ctx context.Context, a Args) (any, error) {
		return domain.Signals(), nil
	})
}

func (p *Plugin) registerIdentity() {
	login := func(kind domain.FlowKind) methodFunc {
		return void(func(ctx context.Context, a Args) error {
			clientID, err := a.String(0)
			if err != nil {
				return err
			}
			p.signIn.Login(ctx, kind, clientID)
			return nil
		})
	}

	p.register("login", []string{"flow_kind", "client_id"}, "", void(func(ctx context.Context, a Args) error {
		name, err := a.String(0)
		if err != nil {
			return err
		}
		clientID, err := a.String(1)
		if err != nil {
			return err
		}
		kind, err := domain.ParseFlowKind(name)
		if err != nil {
			// Reported to the host as login_failed like any other launch failure.
			kind = domain.FlowKind(name)
		}
		p.signIn.Login(ctx, kind, clientID)
		return nil
	}))
	p.register("login_with_play_games", []string{"client_id"}, "", login(domain.FlowPlayGames))
	p.register("login_with_google", []string{"client_id"}, "", login(domain.FlowGoogle))

	p.register("is_signed_in", nil, "bool", func(ctx context.Context, a Args) (any, error) {
		return p.identity.IsSignedIn(), nil
	})

	accessor := func(get func() (string, error)) methodFunc {
		return func(ctx context.Context, a Args) (any, error) {
			return get()
		}
	}
	p.register("get_user_name", nil, "string", accessor(p.identity.UserName))
	p.register("get_email", nil, "string", accessor(p.identity.Email))
	p.register("get_uid", nil, "string", accessor(p.identity.UID))
	p.register("get_photo_url", nil, "string", accessor(p.identity.PhotoURL))

	p.register("get_id_token", []string{"force_refresh"}, "", void(func(ctx context.Context, a Args) error {
		force := false
		if len(a) > 0 {
			var err error
			if force, err = a.Bool(0); err != nil {
				return err
			}
		}
		p.identity.FetchIDToken(ctx, force)
		return nil
	}))
	p.register("sign_out", nil, "", void(func(ctx context.Context, a Args) error {
		p.identity.SignOut()
		return nil
	}))
	p.register("sign_in_state", []string{"flow_kind"}, "string", func(ctx context.Context, a Args) (any, error) {
		name, err := a.String(0)
		if err != nil {
			return nil, err
		}
		kind, err := domain.ParseFlowKind(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownFlow, err)
		}
		return string(p.signIn.State(kind)), nil
	})
}

func (p *Plugin) registerAnalytics() {
	p.register("log_event", []string{"name", "keys", "values"}, "", void(func(ctx context.Context, a Args) error {
		name, err := a.String(0)
		if err != nil {
			return err
		}
		keys, err := a.Strings(1)
		if err != nil {
			return err
		}
		values, err := a.Strings(2)
		if err != nil {
			return err
		}
		p.analytics.LogEvent(ctx, name, keys, values)
		return nil
	}))

	p.register("record_exception", []string{"message"}, "", void(func(ctx context.Context, a Args) error {
		msg, err := a.String(0)
		if err != nil {
			return err
		}
		if p.crash == nil {
			return nil
		}
		ctx = context.WithoutCancel(ctx)
		p.runner.Do(func() {
			if err := p.crash.RecordException(ctx, msg); err != nil {
				p.logger.Warn("Failed to record exception", "error", err)
			}
		})
		return nil
	}))

	p.register("log", []string{"message"}, "", void(func(ctx context.Context, a Args) error {
		msg, err := a.String(0)
		if err != nil {
			return err
		}
		p.crashLog(msg)
		return nil
	}))

	p.register("log_set_custom_key", []string{"key", "value"}, "", void(func(ctx context.Context, a Args) error {
		key, err := a.String(0)
		if err != nil {
			return err
		}
		value, err := a.String(1)
		if err != nil {
			return err
		}
		if p.crash != nil {
			p.crash.SetCustomKey(key, value)
		}
		return nil
	}))

	p.register("set_analytics_user_id", []string{"id"}, "", void(func(ctx context.Context, a Args) error {
		id, err := a.String(0)
		if err != nil {
			return err
		}
		p.analytics.SetUserID(id)
		return nil
	}))

	p.register("set_analytics_user_property", []string{"name", "value"}, "", void(func(ctx context.Context, a Args) error {
		name, err := a.String(0)
		if err != nil {
			return err
		}
		value, err := a.String(1)
		if err != nil {
			return err
		}
		p.analytics.SetUserProperty(ctx, name, value)
		return nil
	}))
}

// handleArg reads a handle argument.
func handleArg(a Args, i int) (handle.ID, error) {
	n, err := a.Int(i)
	if err != nil {
		return handle.Invalid, err
	}
	return handle.ID(n), nil
}

func (p *Plugin) registerBundles() {
	p.register("new_bundle", nil, "int", func(ctx context.Context, a Args) (any, error) {
		return p.analytics.NewBundle(), nil
	})

	p.register("put_bundle_string", []string{"bundle", "key", "value"}, "", void(func(ctx context.Context, a Args) error {
		h, key, err := handleKey(a)
		if err != nil {
			return err
		}
		value, err := a.String(2)
		if err != nil {
			return err
		}
		p.analytics.PutString(h, key, value)
		return nil
	}))

	p.register("put_bundle_int", []string{"bundle", "key", "value"}, "", void(func(ctx context.Context, a Args) error {
		h, key, err := handleKey(a)
		if err != nil {
			return err
		}
		value, err := a.Int(2)
		if err != nil {
			return err
		}
		p.analytics.PutInt(h, key, value)
		return nil
	}))

	p.register("put_bundle_float", []string{"bundle", "key", "value"}, "", void(func(ctx context.Context, a Args) error {
		h, key, err := handleKey(a)
		if err != nil {
			return err
		}
		value, err := a.Float(2)
		if err != nil {
			return err
		}
		p.analytics.PutFloat(h, key, value)
		return nil
	}))

	p.register("put_bundle_array", []string{"bundle", "key", "bundles"}, "", void(func(ctx context.Context, a Args) error {
		h, key, err := handleKey(a)
		if err != nil {
			return err
		}
		nested, err := a.Ints(2)
		if err != nil {
			return err
		}
		p.analytics.PutBundleArray(h, key, nested)
		return nil
	}))

	p.register("log_event_bundle", []string{"event", "bundle"}, "", void(func(ctx context.Context, a Args) error {
		name, err := a.String(0)
		if err != nil {
			return err
		}
		h, err := handleArg(a, 1)
		if err != nil {
			return err
		}
		p.analytics.LogEventBundle(ctx, name, h)
		return nil
	}))

	p.register("release_bundle", []string{"bundle"}, "", void(func(ctx context.Context, a Args) error {
		h, err := handleArg(a, 0)
		if err != nil {
			return err
		}
		p.analytics.ReleaseBundle(h)
		return nil
	}))
}

func handleKey(a Args) (handle.ID, string, error) {
	h, err := handleArg(a, 0)
	if err != nil {
		return handle.Invalid, "", err
	}
	key, err := a.String(1)
	if err != nil {
		return handle.Invalid, "", err
	}
	return h, key, nil
}

// onHandle adapts a method that only takes a handle.
func onHandle(fn func(h handle.ID)) methodFunc {
	return void(func(ctx context.Context, a Args) error {
		h, err := handleArg(a, 0)
		if err != nil {
			return err
		}
		fn(h)
		return nil
	})
}

// onHandleInt adapts a method taking a handle and an integer.
func onHandleInt(fn func(h handle.ID, n int64)) methodFunc {
	return void(func(ctx context.Context, a Args) error {
		h, err := handleArg(a, 0)
		if err != nil {
			return err
		}
		n, err := a.Int(1)
		if err != nil {
			return err
		}
		fn(h, n)
		return nil
	})
}

// onHandleStrings adapts a method taking a handle and n strings.
func onHandleStrings(n int, fn func(h handle.ID, s []string) any) methodFunc {
	return func(ctx context.Context, a Args) (any, error) {
		h, err := handleArg(a, 0)
		if err != nil {
			return nil, err
		}
		s := make([]string, n)
		for i := range s {
			if s[i], err = a.String(i + 1); err != nil {
				return nil, err
			}
		}
		return fn(h, s), nil
	}
}

func (p *Plugin) registerHTTPMetrics() {
	perf := p.performance

	p.register("new_http_metric", []string{"url", "method"}, "int", func(ctx context.Context, a Args) (any, error) {
		url, err := a.String(0)
		if err != nil {
			return nil, err
		}
		verb, err := a.String(1)
		if err != nil {
			return nil, err
		}
		return perf.NewHTTPMetric(url, verb), nil
	})
	p.register("http_metric_start", []string{"metric"}, "", onHandle(perf.StartHTTPMetric))
	p.register("http_metric_stop", []string{"metric"}, "", void(func(ctx context.Context, a Args) error {
		h, err := handleArg(a, 0)
		if err != nil {
			return err
		}
		perf.StopHTTPMetric(ctx, h)
		return nil
	}))
	p.register("http_metric_set_http_response_code", []string{"metric", "code"}, "", onHandleInt(func(h handle.ID, n int64) {
		perf.SetHTTPResponseCode(h, int(n))
	}))
	p.register("http_metric_set_request_payload_size", []string{"metric", "bytes"}, "", onHandleInt(perf.SetRequestPayloadSize))
	p.register("http_metric_set_response_payload_size", []string{"metric", "bytes"}, "", onHandleInt(perf.SetResponsePayloadSize))
	p.register("http_metric_set_response_content_type", []string{"metric", "content_type"}, "", onHandleStrings(1, func(h handle.ID, s []string) any {
		perf.SetResponseContentType(h, s[0])
		return nil
	}))
	p.register("http_metric_mark_request_complete", []string{"metric"}, "", onHandle(perf.MarkRequestComplete))
	p.register("http_metric_mark_response_start", []string{"metric"}, "", onHandle(perf.MarkResponseStart))
	p.register("http_metric_get_attribute", []string{"metric", "attribute"}, "string", onHandleStrings(1, func(h handle.ID, s []string) any {
		return perf.HTTPMetricAttribute(h, s[0])
	}))
	p.register("http_metric_put_attribute", []string{"metric", "attribute", "value"}, "", onHandleStrings(2, func(h handle.ID, s []string) any {
		perf.PutHTTPMetricAttribute(h, s[0], s[1])
		return nil
	}))
	p.register("http_metric_remove_attribute", []string{"metric", "attribute"}, "", onHandleStrings(1, func(h handle.ID, s []string) any {
		perf.RemoveHTTPMetricAttribute(h, s[0])
		return nil
	}))
}

func (p *Plugin) registerTraces() {
	perf := p.performance

	p.register("new_trace", []string{"name"}, "int", func(ctx context.Context, a Args) (any, error) {
		name, err := a.String(0)
		if err != nil {
			return nil, err
		}
		return perf.NewTrace(name), nil
	})
	p.register("trace_start", []string{"trace"}, "", onHandle(perf.StartTrace))
	p.register("trace_stop", []string{"trace"}, "", void(func(ctx context.Context, a Args) error {
		h, err := handleArg(a, 0)
		if err != nil {
			return err
		}
		perf.StopTrace(ctx, h)
		return nil
	}))
	p.register("trace_get_attribute", []string{"trace", "attribute"}, "string", onHandleStrings(1, func(h handle.ID, s []string) any {
		return perf.TraceAttribute(h, s[0])
	}))
	p.register("trace_put_attribute", []string{"trace", "attribute", "value"}, "", onHandleStrings(2, func(h handle.ID, s []string) any {
		perf.PutTraceAttribute(h, s[0], s[1])
		return nil
	}))
	p.register("trace_remove_attribute", []string{"trace", "attribute"}, "", onHandleStrings(1, func(h handle.ID, s []string) any {
		perf.RemoveTraceAttribute(h, s[0])
		return nil
	}))
	p.register("trace_increment_metric", []string{"trace", "metric", "increment"}, "", traceCounter(perf.IncrementTraceMetric))
	p.register("trace_get_long_metric", []string{"trace", "metric"}, "int", onHandleStrings(1, func(h handle.ID, s []string) any {
		return perf.TraceLongMetric(h, s[0])
	}))
	p.register("trace_put_metric", []string{"trace", "metric", "value"}, "", traceCounter(perf.PutTraceMetric))
}

func traceCounter(fn func(h handle.ID, name string, n int64)) methodFunc {
	return void(func(ctx context.Context, a Args) error {
		h, err := handleArg(a, 0)
		if err != nil {
			return err
		}
		name, err := a.String(1)
		if err != nil {
			return err
		}
		n, err := a.Int(2)
		if err != nil {
			return err
		}
		fn(h, name, n)
		return nil
	})
}
