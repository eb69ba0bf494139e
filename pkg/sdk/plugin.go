// Package sdk is the guest-side SDK for firebridge WebAssembly guests.
// It is designed to be compiled with TinyGo to WebAssembly.
//
// # Quick Start
//
// Call host methods and react to their signals:
//
//	func main() {
//	    sdk.OnSignal("login_success", func(sdk.Signal) {
//	        name, _ := sdk.UserName()
//	        sdk.Info("signed in as " + name)
//	    })
//	    sdk.OnSignal("login_failed", func(s sdk.Signal) {
//	        sdk.Warn("sign-in failed: " + s.String(0))
//	    })
//	    _ = sdk.LoginWithGoogle("")
//	}
//
// Build with TinyGo:
//
//	tinygo build -o guest.wasm -target=wasi main.go
package sdk

import (
	"encoding/json"
	"fmt"
	"sort"
)

// LogLevel represents the severity of a log message.
type LogLevel int32

const (
	LogDebug LogLevel = 0
	LogInfo  LogLevel = 1
	LogWarn  LogLevel = 2
	LogError LogLevel = 3
)

// Result codes of firebase_call.
const (
	CallOK            int32 = 0
	CallBadMemory     int32 = -1
	CallBadJSON       int32 = -2
	CallUnknownMethod int32 = -3
	CallFailed        int32 = -4
)

// Host function imports live in wasm_imports.go (TinyGo builds) and
// wasm_stubs.go (everything else):
//   - hostCall(method, argsJSON) -> (resultJSON, code)
//   - hostLog(level, message)

// ========================================
// Logging Functions
// ========================================

// Log writes a log message at the specified level.
func Log(level LogLevel, message string) {
	hostLog(int32(level), message)
}

// Debug writes a debug log message.
func Debug(message string) {
	Log(LogDebug, message)
}

// Info writes an info log message.
func Info(message string) {
	Log(LogInfo, message)
}

// Warn writes a warning log message.
func Warn(message string) {
	Log(LogWarn, message)
}

// Error writes an error log message.
func Error(message string) {
	Log(LogError, message)
}

// ========================================
// Host Calls
// ========================================

// HostError is a failed host call.
type HostError struct {
	Method  string
	Code    int32
	Message string
}

func (e *HostError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed with code %d", e.Method, e.Code)
	}
	return e.Method + ": " + e.Message
}

// Call invokes a host method. The result is decoded into out unless out
// is nil.
func Call(method string, out any, args ...any) error {
	if args == nil {
		args = []any{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}

	result, code := hostCall(method, payload)
	if code != CallOK {
		herr := &HostError{Method: method, Code: code}
		if len(result) > 0 {
			_ = json.Unmarshal(result, &herr.Message)
		}
		return herr
	}
	if out == nil || len(result) == 0 {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func callString(method string, args ...any) (string, error) {
	var s string
	err := Call(method, &s, args...)
	return s, err
}

func callInt(method string, args ...any) (int, error) {
	var n int
	err := Call(method, &n, args...)
	return n, err
}

// ========================================
// Identity
// ========================================

// Login starts the external sign-in flow of the given kind
// ("play_games" or "google"). The outcome arrives as login_success or
// login_failed. An empty client id uses the host default.
func Login(kind, clientID string) error {
	return Call("login", nil, kind, clientID)
}

// LoginWithPlayGames starts the Play Games sign-in flow.
func LoginWithPlayGames(clientID string) error {
	return Call("login_with_play_games", nil, clientID)
}

// LoginWithGoogle starts the Google sign-in flow.
func LoginWithGoogle(clientID string) error {
	return Call("login_with_google", nil, clientID)
}

// IsSignedIn reports whether a user is signed in.
func IsSignedIn() (bool, error) {
	var ok bool
	err := Call("is_signed_in", &ok)
	return ok, err
}

// UserName returns the display name of the signed-in user.
func UserName() (string, error) { return callString("get_user_name") }

// Email returns the email of the signed-in user.
func Email() (string, error) { return callString("get_email") }

// UID returns the uid of the signed-in user.
func UID() (string, error) { return callString("get_uid") }

// PhotoURL returns the photo URL of the signed-in user.
func PhotoURL() (string, error) { return callString("get_photo_url") }

// RequestIDToken asks for an ID token, delivered as id_token_loaded or
// id_token_failed.
func RequestIDToken(forceRefresh bool) error {
	return Call("get_id_token", nil, forceRefresh)
}

// SignOut signs the current user out.
func SignOut() error {
	return Call("sign_out", nil)
}

// ========================================
// Analytics and Crash Reporting
// ========================================

// LogEvent logs an analytics event with string parameters.
func LogEvent(name string, params map[string]string) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = params[k]
	}
	return Call("log_event", nil, name, keys, values)
}

// SetUserID sets the analytics user id.
func SetUserID(id string) error {
	return Call("set_analytics_user_id", nil, id)
}

// SetUserProperty sets an analytics user property.
func SetUserProperty(name, value string) error {
	return Call("set_analytics_user_property", nil, name, value)
}

// CrashLog adds a breadcrumb to future crash reports.
func CrashLog(message string) error {
	return Call("log", nil, message)
}

// SetCustomKey attaches a key to future crash reports.
func SetCustomKey(key, value string) error {
	return Call("log_set_custom_key", nil, key, value)
}

// RecordException records a non-fatal exception.
func RecordException(message string) error {
	return Call("record_exception", nil, message)
}

// Bundle is a host-side parameter bundle.
type Bundle int

// NewBundle allocates an empty bundle.
func NewBundle() (Bundle, error) {
	n, err := callInt("new_bundle")
	return Bundle(n), err
}

// PutString sets a string value.
func (b Bundle) PutString(key, value string) error {
	return Call("put_bundle_string", nil, int(b), key, value)
}

// PutInt sets an integer value.
func (b Bundle) PutInt(key string, value int64) error {
	return Call("put_bundle_int", nil, int(b), key, value)
}

// PutFloat sets a float value.
func (b Bundle) PutFloat(key string, value float64) error {
	return Call("put_bundle_float", nil, int(b), key, value)
}

// PutBundles embeds nested bundles under key. The nested bundles are
// consumed.
func (b Bundle) PutBundles(key string, nested ...Bundle) error {
	ids := make([]int, len(nested))
	for i, n := range nested {
		ids[i] = int(n)
	}
	return Call("put_bundle_array", nil, int(b), key, ids)
}

// LogEvent logs an event with the bundle as parameters and releases it.
func (b Bundle) LogEvent(name string) error {
	return Call("log_event_bundle", nil, name, int(b))
}

// Release discards the bundle.
func (b Bundle) Release() error {
	return Call("release_bundle", nil, int(b))
}

// ========================================
// HTTP
// ========================================

// HTTPRequest issues a request on the host. The outcome arrives as
// request_completed(status_code, body_or_error). Headers are "Name: value"
// strings.
func HTTPRequest(url string, headers []string, method, body string) error {
	if headers == nil {
		headers = []string{}
	}
	return Call("http_request", nil, url, headers, method, body)
}

// ========================================
// Performance
// ========================================

// Trace is a host-side custom trace.
type Trace int

// NewTrace creates a trace.
func NewTrace(name string) (Trace, error) {
	n, err := callInt("new_trace", name)
	return Trace(n), err
}

// Start starts the trace.
func (t Trace) Start() error { return Call("trace_start", nil, int(t)) }

// Stop stops the trace and releases it.
func (t Trace) Stop() error { return Call("trace_stop", nil, int(t)) }

// PutAttribute sets a custom attribute.
func (t Trace) PutAttribute(name, value string) error {
	return Call("trace_put_attribute", nil, int(t), name, value)
}

// IncrementMetric adds n to a counter.
func (t Trace) IncrementMetric(name string, n int64) error {
	return Call("trace_increment_metric", nil, int(t), name, n)
}

// Metric returns a counter value.
func (t Trace) Metric(name string) (int64, error) {
	var n int64
	err := Call("trace_get_long_metric", &n, int(t), name)
	return n, err
}

// HTTPMetric is a host-side network request metric.
type HTTPMetric int

// NewHTTPMetric creates a metric for url and method.
func NewHTTPMetric(url, method string) (HTTPMetric, error) {
	n, err := callInt("new_http_metric", url, method)
	return HTTPMetric(n), err
}

// Start starts the metric.
func (m HTTPMetric) Start() error { return Call("http_metric_start", nil, int(m)) }

// Stop stops the metric and releases it.
func (m HTTPMetric) Stop() error { return Call("http_metric_stop", nil, int(m)) }

// SetResponseCode records the HTTP response code.
func (m HTTPMetric) SetResponseCode(code int) error {
	return Call("http_metric_set_http_response_code", nil, int(m), code)
}

// ========================================
// Signals
// ========================================

// Signal is one signal delivered by the host.
type Signal struct {
	Name string `json:"name"`
	Args []any  `json:"args"`
}

// String returns argument i as a string, or "" when absent.
func (s Signal) String(i int) string {
	if i < 0 || i >= len(s.Args) {
		return ""
	}
	str, _ := s.Args[i].(string)
	return str
}

// Int returns argument i as an integer, or 0 when absent.
func (s Signal) Int(i int) int {
	if i < 0 || i >= len(s.Args) {
		return 0
	}
	f, _ := s.Args[i].(float64)
	return int(f)
}

var handlers = map[string][]func(Signal){}

// OnSignal registers fn for signals named name. Guests are single
// threaded; handlers run on the host loop.
func OnSignal(name string, fn func(Signal)) {
	handlers[name] = append(handlers[name], fn)
}

// dispatchSignal decodes a signal and runs its handlers.
func dispatchSignal(data []byte) error {
	var sig Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return err
	}
	for _, fn := range handlers[sig.Name] {
		fn(sig)
	}
	return nil
}
