package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/forge-platform/firebridge/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Scenario is a scripted host session replayed against the plugin.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// Identity scripts the identity provider. Without it sign-in is
	// unavailable.
	Identity *IdentityStub `yaml:"identity,omitempty"`

	Steps []Step `yaml:"steps"`
}

// IdentityStub is the identity a scripted sign-in produces.
type IdentityStub struct {
	UID         string `yaml:"uid"`
	DisplayName string `yaml:"name,omitempty"`
	Email       string `yaml:"email,omitempty"`
	PhotoURL    string `yaml:"photo_url,omitempty"`
	Token       string `yaml:"token,omitempty"`
	// Fail makes every credential exchange fail with this message.
	Fail string `yaml:"fail,omitempty"`
}

// Step is exactly one of a method call, a flow result or a signal expectation.
type Step struct {
	Call         string      `yaml:"call,omitempty"`
	Args         []any       `yaml:"args,omitempty"`
	ExpectResult any         `yaml:"expect_result,omitempty"`
	ExpectError  string      `yaml:"expect_error,omitempty"`
	FlowResult   *FlowStep   `yaml:"flow_result,omitempty"`
	ExpectSignal *SignalStep `yaml:"expect_signal,omitempty"`
}

// FlowStep delivers an external flow result for a correlation code.
type FlowStep struct {
	Code           int    `yaml:"code"`
	Success        bool   `yaml:"success"`
	StatusCode     int    `yaml:"status_code,omitempty"`
	StatusMessage  string `yaml:"status_message,omitempty"`
	ServerAuthCode string `yaml:"server_auth_code,omitempty"`
	IDToken        string `yaml:"id_token,omitempty"`
}

// Result converts the step into the launcher's payload.
func (f FlowStep) Result() domain.FlowResult {
	return domain.FlowResult{
		Success:        f.Success,
		StatusCode:     f.StatusCode,
		StatusMessage:  f.StatusMessage,
		ServerAuthCode: f.ServerAuthCode,
		IDToken:        f.IDToken,
	}
}

// SignalStep expects a signal. Args, when given, must match exactly.
type SignalStep struct {
	Name string `yaml:"name"`
	Args []any  `yaml:"args,omitempty"`
}

// Describe renders the step for reports.
func (s Step) Describe() string {
	switch {
	case s.Call != "":
		return fmt.Sprintf("call %s%v", s.Call, s.Args)
	case s.FlowResult != nil:
		return fmt.Sprintf("flow result %d (success=%t)", s.FlowResult.Code, s.FlowResult.Success)
	case s.ExpectSignal != nil:
		if s.ExpectSignal.Args != nil {
			return fmt.Sprintf("expect %s%v", s.ExpectSignal.Name, s.ExpectSignal.Args)
		}
		return "expect " + s.ExpectSignal.Name
	default:
		return "empty step"
	}
}

// LoadScenario reads a scenario file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

func validateScenario(sc *Scenario) error {
	if sc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(sc.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, s := range sc.Steps {
		kinds := 0
		if s.Call != "" {
			kinds++
		}
		if s.FlowResult != nil {
			kinds++
		}
		if s.ExpectSignal != nil {
			kinds++
			if s.ExpectSignal.Name == "" {
				return fmt.Errorf("step %d: expect_signal needs a name", i+1)
			}
		}
		if kinds != 1 {
			return fmt.Errorf("step %d: exactly one of call, flow_result or expect_signal is required", i+1)
		}
		if s.Call == "" && (s.Args != nil || s.ExpectResult != nil || s.ExpectError != "") {
			return fmt.Errorf("step %d: args and expectations belong to a call", i+1)
		}
	}
	return nil
}
