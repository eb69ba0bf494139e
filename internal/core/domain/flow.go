package domain

import (
	"fmt"
	"strings"
)

// FlowKind identifies an external sign-in flow.
type FlowKind string

const (
	FlowPlayGames FlowKind = "play_games"
	FlowGoogle    FlowKind = "google"
	FlowUnrelated FlowKind = ""
)

// Correlation codes handed to the flow launcher.
const (
	CodePlayGames = 9001
	CodeGoogle    = 9002
)

var flowsByCode = map[int]FlowKind{
	CodePlayGames: FlowPlayGames,
	CodeGoogle:    FlowGoogle,
}

// ResolveFlow maps a correlation code to its flow kind.
// Codes outside the table resolve to FlowUnrelated.
func ResolveFlow(code int) FlowKind {
	if kind, ok := flowsByCode[code]; ok {
		return kind
	}
	return FlowUnrelated
}

// Code returns the correlation code for the kind, or 0 for FlowUnrelated.
func (k FlowKind) Code() int {
	for code, kind := range flowsByCode {
		if kind == k {
			return code
		}
	}
	return 0
}

// Valid reports whether the kind is a known flow.
func (k FlowKind) Valid() bool {
	return k.Code() != 0
}

// ParseFlowKind accepts the host spellings of a flow kind.
func ParseFlowKind(s string) (FlowKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "play_games", "playgames", "games", "play":
		return FlowPlayGames, nil
	case "google", "google_sign_in":
		return FlowGoogle, nil
	default:
		return FlowUnrelated, fmt.Errorf("unknown flow kind %q", s)
	}
}

// FlowKinds returns the known flow kinds ordered by correlation code.
func FlowKinds() []FlowKind {
	return []FlowKind{FlowPlayGames, FlowGoogle}
}

// FlowState is the lifecycle position of one flow kind.
type FlowState string

const (
	FlowIdle           FlowState = "idle"
	FlowPending        FlowState = "pending"
	FlowAuthenticating FlowState = "authenticating"
)

// Status codes reported by external flows.
const (
	StatusSuccess   = 0
	StatusError     = 13
	StatusCancelled = 12501
)

// FlowRequest is what the launcher needs to start an external flow.
type FlowRequest struct {
	Kind     FlowKind `json:"kind"`
	Code     int      `json:"code"`
	ClientID string   `json:"client_id"`
}

// FlowResult is the payload delivered with a correlation code once an
// external flow finishes.
type FlowResult struct {
	Success        bool   `json:"success"`
	StatusCode     int    `json:"status_code"`
	StatusMessage  string `json:"status_message,omitempty"`
	ServerAuthCode string `json:"server_auth_code,omitempty"`
	IDToken        string `json:"id_token,omitempty"`
	AccountID      string `json:"account_id,omitempty"`
}

// Status renders the external status as "<code>: <message>".
func (r FlowResult) Status() string {
	return fmt.Sprintf("%d: %s", r.StatusCode, r.StatusMessage)
}

// CancelledFlow returns the result of a flow the user backed out of.
func CancelledFlow() FlowResult {
	return FlowResult{StatusCode: StatusCancelled, StatusMessage: "SIGN_IN_CANCELLED"}
}
