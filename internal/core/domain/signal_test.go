package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalString(t *testing.T) {
	assert.Equal(t, `request_completed(201, "ok")`, NewSignal(SignalRequestCompleted, 201, "ok").String())
	assert.Equal(t, "login_success()", NewSignal(SignalLoginSuccess).String())
}

func TestSignalJSON(t *testing.T) {
	data, err := json.Marshal(NewSignal(SignalLoginSuccess))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"login_success","args":[]}`, string(data))
}

func TestSignalArg(t *testing.T) {
	sig := NewSignal(SignalLoginFailed, "boom")
	assert.Equal(t, "boom", sig.Arg(0))
	assert.Nil(t, sig.Arg(1))
	assert.Nil(t, sig.Arg(-1))
}

func TestSignalsSurface(t *testing.T) {
	specs := Signals()
	require.Len(t, specs, 5)
	assert.Equal(t, SignalRequestCompleted, specs[4].Name)
	assert.Len(t, specs[4].Args, 2)
}
