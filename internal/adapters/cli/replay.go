package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/forge-platform/firebridge/internal/bg"
	"github.com/forge-platform/firebridge/internal/config"
	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/ports"
	"github.com/forge-platform/firebridge/internal/core/services"
	"github.com/spf13/cobra"
)

var replayShowSignals bool

var replayCmd = &cobra.Command{
	Use:   "replay <scenario.yaml>...",
	Short: "Replay scripted host sessions against the plugin",
	Long: `Replay one or more YAML scenarios. Each scenario runs against a fresh
plugin with a scripted identity provider and sign-in flow, an empty
temporary database and a synchronous runner, so every signal a step
causes has been emitted before the next step starts.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		failed := 0
		for _, path := range args {
			sc, err := LoadScenario(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			report, err := Replay(cmd.Context(), sc, cfg, logger)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			report.Render(out, replayShowSignals)
			if !report.Passed() {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d scenarios failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayShowSignals, "signals", false, "print every emitted signal")
}

// StepOutcome is the result of one replayed step.
type StepOutcome struct {
	Index       int
	Description string
	OK          bool
	Detail      string
}

// ReplayReport collects the outcome of a scenario.
type ReplayReport struct {
	Scenario string
	Steps    []StepOutcome
	Signals  []domain.Signal
}

// Passed reports whether every step succeeded.
func (r *ReplayReport) Passed() bool {
	for _, s := range r.Steps {
		if !s.OK {
			return false
		}
	}
	return true
}

// Render writes the report.
func (r *ReplayReport) Render(w io.Writer, showSignals bool) {
	fmt.Fprintln(w, titleStyle.Render("Scenario: "+r.Scenario))
	passed := 0
	for _, s := range r.Steps {
		if s.OK {
			passed++
		}
		fmt.Fprintf(w, "  %s %2d  %s\n", mark(s.OK), s.Index, s.Description)
		if s.Detail != "" {
			fmt.Fprintf(w, "        %s\n", mutedStyle.Render(s.Detail))
		}
	}
	if showSignals {
		fmt.Fprintln(w, headerStyle.Render("  Signals"))
		for _, sig := range r.Signals {
			fmt.Fprintf(w, "    %s\n", sig)
		}
	}
	summary := fmt.Sprintf("%d/%d steps passed", passed, len(r.Steps))
	if r.Passed() {
		fmt.Fprintln(w, boxStyle.Render(okStyle.Render(summary)))
	} else {
		fmt.Fprintln(w, boxStyle.Render(failStyle.Render(summary)))
	}
}

// Replay runs sc against a freshly wired plugin. Only scenario-level
// setup failures are returned as errors; step failures are reported.
func Replay(ctx context.Context, sc *Scenario, base *config.Config, logger ports.Logger) (*ReplayReport, error) {
	dir, err := os.MkdirTemp("", "firebridge-replay-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create replay directory: %w", err)
	}
	defer os.RemoveAll(dir)

	c := *base
	c.Core.DataDir = dir
	// Scenarios never reach the real identity toolkit.
	c.Auth.APIKey = ""

	launcher := &scriptedLauncher{}
	opts := stackOptions{runner: bg.Sync{}, launcher: launcher}
	if sc.Identity != nil {
		opts.identity = &scriptedIdentity{stub: *sc.Identity}
	}
	st, err := buildStack(ctx, &c, logger, opts)
	if err != nil {
		return nil, err
	}
	defer st.Close(ctx)

	r := &replayer{plugin: st.plugin, launcher: launcher}
	st.loop.Subscribe(func(sig domain.Signal) {
		r.emitted = append(r.emitted, sig)
		r.consumed = append(r.consumed, false)
	})

	report := &ReplayReport{Scenario: sc.Name}
	for i, step := range sc.Steps {
		outcome := StepOutcome{Index: i + 1, Description: step.Describe()}
		outcome.OK, outcome.Detail = r.step(ctx, step)
		st.loop.Drain()
		report.Steps = append(report.Steps, outcome)
	}
	report.Signals = r.emitted
	return report, nil
}

type replayer struct {
	plugin   *services.Plugin
	launcher *scriptedLauncher

	emitted  []domain.Signal
	consumed []bool
}

func (r *replayer) step(ctx context.Context, s Step) (bool, string) {
	switch {
	case s.Call != "":
		return r.call(ctx, s)
	case s.FlowResult != nil:
		if !r.launcher.deliver(s.FlowResult.Code, s.FlowResult.Result()) {
			return false, "no flow result handler registered"
		}
		return true, ""
	default:
		return r.expectSignal(*s.ExpectSignal)
	}
}

func (r *replayer) call(ctx context.Context, s Step) (bool, string) {
	result, err := r.plugin.Invoke(ctx, s.Call, services.Args(s.Args))
	if s.ExpectError != "" {
		if err == nil {
			return false, fmt.Sprintf("expected error containing %q, got none", s.ExpectError)
		}
		if !strings.Contains(err.Error(), s.ExpectError) {
			return false, fmt.Sprintf("expected error containing %q, got %q", s.ExpectError, err)
		}
		return true, ""
	}
	if err != nil {
		return false, err.Error()
	}
	if s.ExpectResult == nil {
		return true, ""
	}
	if !sameValue(result, s.ExpectResult) {
		return false, fmt.Sprintf("expected result %v, got %v", s.ExpectResult, result)
	}
	return true, ""
}

// expectSignal consumes the earliest unconsumed signal matching want.
func (r *replayer) expectSignal(want SignalStep) (bool, string) {
	for i, sig := range r.emitted {
		if r.consumed[i] || string(sig.Name) != want.Name {
			continue
		}
		if want.Args != nil && !sameValue(sig.Args, want.Args) {
			continue
		}
		r.consumed[i] = true
		return true, ""
	}
	var seen []string
	for i, sig := range r.emitted {
		if !r.consumed[i] {
			seen = append(seen, sig.String())
		}
	}
	if len(seen) == 0 {
		return false, "no pending signals"
	}
	return false, "pending signals: " + strings.Join(seen, ", ")
}

// sameValue compares values through their JSON form, so YAML integers
// match int64 results and string lists match []any.
func sameValue(got, want any) bool {
	g, err := jsonValue(got)
	if err != nil {
		return false
	}
	w, err := jsonValue(want)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(g, w)
}

func jsonValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// scriptedLauncher records launches; results are delivered by flow_result steps.
type scriptedLauncher struct {
	mu       sync.Mutex
	handler  ports.FlowResultHandler
	launched []domain.FlowRequest
}

func (l *scriptedLauncher) Launch(_ context.Context, req domain.FlowRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, req)
	return nil
}

func (l *scriptedLauncher) OnResult(handler ports.FlowResultHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = handler
}

func (l *scriptedLauncher) deliver(code int, result domain.FlowResult) bool {
	l.mu.Lock()
	handler := l.handler
	l.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(code, result)
	return true
}

var errNoUser = errors.New("no signed-in user")

// scriptedIdentity signs every credential in as the scenario's identity.
type scriptedIdentity struct {
	stub IdentityStub

	mu   sync.Mutex
	user *domain.Identity
}

func (s *scriptedIdentity) CurrentUser() (*domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil, false
	}
	u := *s.user
	return &u, true
}

func (s *scriptedIdentity) SignInWithCredential(_ context.Context, cred domain.Credential) (*domain.Identity, error) {
	if s.stub.Fail != "" {
		return nil, errors.New(s.stub.Fail)
	}
	u := &domain.Identity{
		UID:         s.stub.UID,
		DisplayName: s.stub.DisplayName,
		Email:       s.stub.Email,
		PhotoURL:    s.stub.PhotoURL,
		ProviderID:  cred.ProviderID,
	}
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	out := *u
	return &out, nil
}

func (s *scriptedIdentity) IDToken(_ context.Context, _ bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return "", errNoUser
	}
	return s.stub.Token, nil
}

func (s *scriptedIdentity) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
}
