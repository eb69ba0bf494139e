// Package domain contains the core entities shared by the firebridge services.
package domain

import (
	"fmt"
	"strings"
)

// SignalName identifies a signal delivered to the host.
type SignalName string

const (
	SignalLoginSuccess     SignalName = "login_success"
	SignalLoginFailed      SignalName = "login_failed"
	SignalIDTokenLoaded    SignalName = "id_token_loaded"
	SignalIDTokenFailed    SignalName = "id_token_failed"
	SignalRequestCompleted SignalName = "request_completed"
)

// SignalSpec describes the fixed, ordered payload of a signal.
type SignalSpec struct {
	Name SignalName `json:"name"`
	Args []string   `json:"args"`
}

// Signals returns the signal surface in declaration order.
func Signals() []SignalSpec {
	return []SignalSpec{
		{Name: SignalLoginSuccess, Args: []string{}},
		{Name: SignalLoginFailed, Args: []string{"message"}},
		{Name: SignalIDTokenLoaded, Args: []string{"token"}},
		{Name: SignalIDTokenFailed, Args: []string{"message"}},
		{Name: SignalRequestCompleted, Args: []string{"status_code", "body_or_error"}},
	}
}

// Signal is one named event with its payload.
type Signal struct {
	Name SignalName `json:"name"`
	Args []any      `json:"args"`
}

// NewSignal creates a signal. A nil payload is normalised to an empty one.
func NewSignal(name SignalName, args ...any) Signal {
	if args == nil {
		args = []any{}
	}
	return Signal{Name: name, Args: args}
}

// Arg returns the i-th payload value, or nil when out of range.
func (s Signal) Arg(i int) any {
	if i < 0 || i >= len(s.Args) {
		return nil
	}
	return s.Args[i]
}

// String renders the signal as name(arg, ...).
func (s Signal) String() string {
	parts := make([]string, len(s.Args))
	for i, a := range s.Args {
		if str, ok := a.(string); ok {
			parts[i] = fmt.Sprintf("%q", str)
			continue
		}
		parts[i] = fmt.Sprintf("%v", a)
	}
	return fmt.Sprintf("%s(%s)", s.Name, strings.Join(parts, ", "))
}
