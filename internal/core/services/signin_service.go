package services

import (
	"context"
	"sync"

	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/ports"
)

var loginEvents = Events{
	Success: domain.SignalLoginSuccess,
	Failure: domain.SignalLoginFailed,
}

type flowSlot struct {
	state domain.FlowState
	gen   uint64
}

// SignInService correlates external flow results with the flows that were
// launched and drives the shared credential exchange.
//
// Launching a flow of a kind that is already pending relaunches it; the
// flow stays pending and the next result for its code resolves it.
type SignInService struct {
	mu    sync.Mutex
	flows map[domain.FlowKind]*flowSlot

	launcher  ports.FlowLauncher
	identity  ports.IdentityProvider
	crash     ports.CrashReporter
	analytics *AnalyticsService
	bridge    *Bridge
	logger    ports.Logger
}

// NewSignInService creates the sign-in service and registers it as the
// launcher's result handler.
func NewSignInService(
	launcher ports.FlowLauncher,
	identity ports.IdentityProvider,
	crash ports.CrashReporter,
	analytics *AnalyticsService,
	bridge *Bridge,
	logger ports.Logger,
) *SignInService {
	s := &SignInService{
		flows:     make(map[domain.FlowKind]*flowSlot),
		launcher:  launcher,
		identity:  identity,
		crash:     crash,
		analytics: analytics,
		bridge:    bridge,
		logger:    logger.With("component", "signin"),
	}
	for _, kind := range domain.FlowKinds() {
		s.flows[kind] = &flowSlot{state: domain.FlowIdle}
	}
	if launcher != nil {
		launcher.OnResult(s.HandleFlowResult)
	}
	return s
}

// Login launches the external flow for kind.
// Failures to launch are reported as login_failed.
func (s *SignInService) Login(ctx context.Context, kind domain.FlowKind, clientID string) {
	if !kind.Valid() {
		s.fail("login", ErrUnknownFlow.Error()+": "+string(kind))
		return
	}
	if s.identity == nil {
		s.fail("login", "identity provider unavailable")
		return
	}
	if s.launcher == nil {
		s.fail("login", "sign-in flow unavailable")
		return
	}

	s.mu.Lock()
	slot := s.flows[kind]
	if slot.state == domain.FlowPending {
		s.logger.Debug("Relaunching pending flow", "flow", kind)
	}
	slot.state = domain.FlowPending
	slot.gen++
	gen := slot.gen
	s.mu.Unlock()

	req := domain.FlowRequest{Kind: kind, Code: kind.Code(), ClientID: clientID}
	if err := s.launcher.Launch(ctx, req); err != nil {
		s.logger.Warn("Failed to launch sign-in flow", "flow", kind, "error", err)
		s.settle(kind, gen)
		s.fail("login", err.Error())
		return
	}
	s.logger.Info("Sign-in flow launched", "flow", kind, "code", req.Code)
}

// HandleFlowResult resolves the flow identified by code.
// Codes outside the correlation table and results for flows that are not
// pending are ignored.
func (s *SignInService) HandleFlowResult(code int, result domain.FlowResult) {
	kind := domain.ResolveFlow(code)
	if kind == domain.FlowUnrelated {
		s.logger.Debug("Ignoring unrelated flow result", "code", code)
		return
	}

	s.mu.Lock()
	slot := s.flows[kind]
	if slot.state != domain.FlowPending {
		s.mu.Unlock()
		s.logger.Warn("Ignoring flow result without pending flow", "flow", kind, "state", slot.state)
		return
	}
	gen := slot.gen

	if !result.Success {
		slot.state = domain.FlowIdle
		s.mu.Unlock()
		s.logger.Info("Sign-in flow failed", "flow", kind, "status", result.Status())
		s.fail("flow_result", result.Status())
		return
	}

	cred, err := domain.CredentialFor(kind, result)
	if err != nil {
		slot.state = domain.FlowIdle
		s.mu.Unlock()
		s.fail("flow_result", err.Error())
		return
	}
	slot.state = domain.FlowAuthenticating
	s.mu.Unlock()

	s.authenticate(context.Background(), kind, gen, cred)
}

// authenticate exchanges cred for an identity on the completion bridge.
func (s *SignInService) authenticate(ctx context.Context, kind domain.FlowKind, gen uint64, cred domain.Credential) *Completion {
	return s.bridge.Go(ctx, "sign_in_with_credential", loginEvents, func(ctx context.Context, c *Completion) {
		if s.identity == nil {
			s.settle(kind, gen)
			c.Fail("identity provider unavailable")
			return
		}
		user, err := s.identity.SignInWithCredential(ctx, cred)
		if err != nil {
			s.logger.Warn("Credential sign-in failed", "flow", kind, "error", err)
			s.settle(kind, gen)
			c.Fail(err.Error())
			return
		}

		s.logger.Info("Signed in", "flow", kind, "uid", user.UID)
		if s.crash != nil {
			s.crash.SetUserID(user.UID)
		}
		if s.analytics != nil {
			s.analytics.SetUserID(user.UID)
		}
		if s.crash != nil {
			if n, err := s.crash.SendUnsentReports(ctx); err != nil {
				s.logger.Warn("Failed to send unsent crash reports", "error", err)
			} else if n > 0 {
				s.logger.Debug("Sent unsent crash reports", "count", n)
			}
		}
		s.settle(kind, gen)
		c.Succeed()
	})
}

// settle returns kind to idle unless it was relaunched since gen.
func (s *SignInService) settle(kind domain.FlowKind, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot := s.flows[kind]; slot.gen == gen {
		slot.state = domain.FlowIdle
	}
}

func (s *SignInService) fail(op, msg string) {
	s.bridge.Begin(op, loginEvents).Fail(msg)
}

// State reports the current state of kind. Unknown kinds are always idle.
func (s *SignInService) State(kind domain.FlowKind) domain.FlowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot, ok := s.flows[kind]; ok {
		return slot.state
	}
	return domain.FlowIdle
}
