package sdk

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	method string
	args   []any
}

// fakeHost answers every call with the canned result for its method.
func fakeHost(t *testing.T, results map[string]string) *[]recordedCall {
	t.Helper()
	var calls []recordedCall
	TestHost = func(method string, args []byte) ([]byte, int32) {
		var decoded []any
		require.NoError(t, json.Unmarshal(args, &decoded), "args for %s are not a JSON array", method)
		calls = append(calls, recordedCall{method: method, args: decoded})
		if res, ok := results[method]; ok {
			return []byte(res), CallOK
		}
		return nil, CallOK
	}
	t.Cleanup(func() { TestHost = nil })
	return &calls
}

func TestLogLevel_Constants(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected int32
	}{
		{LogDebug, 0},
		{LogInfo, 1},
		{LogWarn, 2},
		{LogError, 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, int32(tt.level))
	}
}

func TestLog_Levels(t *testing.T) {
	var got []int32
	TestLog = func(level int32, message string) { got = append(got, level) }
	defer func() { TestLog = nil }()

	Debug("d")
	Info("i")
	Warn("w")
	Error("e")

	assert.Equal(t, []int32{0, 1, 2, 3}, got)
}

func TestCall_WithoutHost(t *testing.T) {
	err := Call("is_signed_in", nil)

	var herr *HostError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, CallFailed, herr.Code)
	assert.Equal(t, "no host outside WebAssembly", herr.Message)
}

func TestCall_DecodesResult(t *testing.T) {
	calls := fakeHost(t, map[string]string{"get_user_name": `"Ada"`, "is_signed_in": "true"})

	name, err := UserName()
	require.NoError(t, err)
	assert.Equal(t, "Ada", name)

	ok, err := IsSignedIn()
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, *calls, 2)
	assert.Empty(t, (*calls)[0].args)
}

func TestCall_HostError(t *testing.T) {
	TestHost = func(method string, args []byte) ([]byte, int32) {
		return []byte(`"unknown method: nope"`), CallUnknownMethod
	}
	defer func() { TestHost = nil }()

	err := Call("nope", nil)
	var herr *HostError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, CallUnknownMethod, herr.Code)
	assert.EqualError(t, err, "nope: unknown method: nope")

	empty := &HostError{Method: "x", Code: CallBadMemory}
	assert.Equal(t, "x failed with code -1", empty.Error())
}

func TestLogEvent_SortsParameters(t *testing.T) {
	calls := fakeHost(t, nil)

	require.NoError(t, LogEvent("level_up", map[string]string{"level": "3", "character": "mage"}))

	require.Len(t, *calls, 1)
	got := (*calls)[0]
	assert.Equal(t, "log_event", got.method)
	assert.Equal(t, []any{"level_up", []any{"character", "level"}, []any{"mage", "3"}}, got.args)
}

func TestBundle(t *testing.T) {
	calls := fakeHost(t, map[string]string{"new_bundle": "4"})

	b, err := NewBundle()
	require.NoError(t, err)
	require.EqualValues(t, 4, b)
	_ = b.PutString("item", "sword")
	_ = b.PutInt("count", 2)
	_ = b.PutBundles("extras", 5, 6)
	_ = b.LogEvent("purchase")

	methods := make([]string, len(*calls))
	for i, c := range *calls {
		methods[i] = c.method
	}
	assert.Equal(t, []string{"new_bundle", "put_bundle_string", "put_bundle_int", "put_bundle_array", "log_event_bundle"}, methods)
	assert.Equal(t, []any{float64(4), "extras", []any{float64(5), float64(6)}}, (*calls)[3].args)
}

func TestHTTPRequest_NilHeaders(t *testing.T) {
	calls := fakeHost(t, nil)

	require.NoError(t, HTTPRequest("https://example.com", nil, "GET", ""))
	assert.Equal(t, []any{"https://example.com", []any{}, "GET", ""}, (*calls)[0].args)
}

func TestTrace(t *testing.T) {
	calls := fakeHost(t, map[string]string{"new_trace": "1", "trace_get_long_metric": "7"})

	tr, err := NewTrace("load_level")
	require.NoError(t, err)
	_ = tr.Start()
	_ = tr.IncrementMetric("enemies", 7)
	n, err := tr.Metric("enemies")
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	_ = tr.Stop()

	assert.Len(t, *calls, 5)
}

func TestSignalDispatch(t *testing.T) {
	handlers = map[string][]func(Signal){}
	defer func() { handlers = map[string][]func(Signal){} }()

	var got []Signal
	OnSignal("request_completed", func(s Signal) { got = append(got, s) })
	OnSignal("login_success", func(s Signal) { t.Error("unexpected login_success") })

	require.NoError(t, DeliverSignal([]byte(`{"name":"request_completed","args":[200,"ok"]}`)))
	require.NoError(t, DeliverSignal([]byte(`{"name":"id_token_loaded","args":["tok"]}`)))
	assert.Error(t, DeliverSignal([]byte(`not json`)))

	require.Len(t, got, 1)
	assert.Equal(t, 200, got[0].Int(0))
	assert.Equal(t, "ok", got[0].String(1))
	assert.Empty(t, got[0].String(5), "out of range args are zero values")
	assert.Zero(t, got[0].Int(-1))
}
