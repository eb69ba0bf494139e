package services

import (
	"context"
	"errors"
	"testing"

	"github.com/forge-platform/firebridge/internal/bg"
	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signInFixture struct {
	svc       *SignInService
	host      *fakeHost
	launcher  *fakeLauncher
	identity  *fakeIdentity
	crash     *fakeCrash
	analytics *AnalyticsService
}

func newSignInFixture() *signInFixture {
	bridge, host := newTestBridge()
	f := &signInFixture{
		host:      host,
		launcher:  &fakeLauncher{},
		identity:  &fakeIdentity{},
		crash:     &fakeCrash{},
		analytics: NewAnalyticsService(nil, bg.Sync{}, &NopLogger{}),
	}
	f.svc = NewSignInService(f.launcher, f.identity, f.crash, f.analytics, bridge, &NopLogger{})
	return f
}

func TestSignInLaunchesWithCorrelationCode(t *testing.T) {
	f := newSignInFixture()

	f.svc.Login(context.Background(), domain.FlowPlayGames, "client123")

	require.Equal(t, 1, f.launcher.launches())
	assert.Equal(t, domain.FlowRequest{Kind: domain.FlowPlayGames, Code: 9001, ClientID: "client123"}, f.launcher.requests[0])
	assert.Equal(t, domain.FlowPending, f.svc.State(domain.FlowPlayGames))
	assert.Equal(t, domain.FlowIdle, f.svc.State(domain.FlowGoogle))
	f.host.drain()
	assert.Empty(t, f.host.emitted())
}

func TestSignInUnknownCodeIgnored(t *testing.T) {
	f := newSignInFixture()
	f.svc.Login(context.Background(), domain.FlowGoogle, "client")

	f.launcher.deliver(1234, domain.FlowResult{Success: true, IDToken: "tok"})
	f.host.drain()

	assert.Empty(t, f.host.emitted())
	assert.Equal(t, domain.FlowPending, f.svc.State(domain.FlowGoogle))
	assert.Equal(t, domain.FlowIdle, f.svc.State(domain.FlowPlayGames))
	assert.Empty(t, f.identity.creds)
}

func TestSignInCancelledFlow(t *testing.T) {
	f := newSignInFixture()
	f.svc.Login(context.Background(), domain.FlowPlayGames, "client123")

	f.launcher.deliver(domain.CodePlayGames, domain.CancelledFlow())
	f.host.drain()

	require.Len(t, f.host.emitted(), 1)
	assert.Equal(t, domain.NewSignal(domain.SignalLoginFailed, "12501: SIGN_IN_CANCELLED"), f.host.emitted()[0])
	assert.Equal(t, domain.FlowIdle, f.svc.State(domain.FlowPlayGames))

	f.svc.Login(context.Background(), domain.FlowPlayGames, "client123")
	assert.Equal(t, 2, f.launcher.launches())
	assert.Equal(t, domain.FlowPending, f.svc.State(domain.FlowPlayGames))
}

func TestSignInGoogleSuccess(t *testing.T) {
	f := newSignInFixture()
	f.svc.Login(context.Background(), domain.FlowGoogle, "client")

	f.launcher.deliver(domain.CodeGoogle, domain.FlowResult{Success: true, IDToken: "google-id-token"})
	f.host.drain()

	require.Len(t, f.host.emitted(), 1)
	assert.Equal(t, domain.SignalLoginSuccess, f.host.emitted()[0].Name)
	assert.Equal(t, []domain.Credential{{ProviderID: domain.ProviderGoogle, Token: "google-id-token"}}, f.identity.creds)
	assert.Equal(t, "uid-1", f.crash.userID)
	assert.Equal(t, "uid-1", f.analytics.UserID())
	assert.Equal(t, 1, f.crash.sends)
	assert.Equal(t, domain.FlowIdle, f.svc.State(domain.FlowGoogle))
}

func TestSignInPlayGamesUsesServerAuthCode(t *testing.T) {
	f := newSignInFixture()
	f.svc.Login(context.Background(), domain.FlowPlayGames, "client")

	f.launcher.deliver(domain.CodePlayGames, domain.FlowResult{Success: true, ServerAuthCode: "auth-code", IDToken: "ignored"})
	f.host.drain()

	require.Len(t, f.identity.creds, 1)
	assert.Equal(t, domain.Credential{ProviderID: domain.ProviderPlayGames, Token: "auth-code"}, f.identity.creds[0])
	assert.Equal(t, domain.SignalLoginSuccess, f.host.emitted()[0].Name)
}

func TestSignInMissingCredential(t *testing.T) {
	f := newSignInFixture()
	f.svc.Login(context.Background(), domain.FlowPlayGames, "client")

	f.launcher.deliver(domain.CodePlayGames, domain.FlowResult{Success: true})
	f.host.drain()

	require.Len(t, f.host.emitted(), 1)
	sig := f.host.emitted()[0]
	assert.Equal(t, domain.SignalLoginFailed, sig.Name)
	assert.Contains(t, sig.Arg(0), "server auth code")
	assert.Empty(t, f.identity.creds)
	assert.Equal(t, domain.FlowIdle, f.svc.State(domain.FlowPlayGames))
}

func TestSignInCredentialRejected(t *testing.T) {
	f := newSignInFixture()
	f.identity.signInErr = errors.New("INVALID_IDP_RESPONSE")
	f.svc.Login(context.Background(), domain.FlowGoogle, "client")

	f.launcher.deliver(domain.CodeGoogle, domain.FlowResult{Success: true, IDToken: "tok"})
	f.host.drain()

	require.Len(t, f.host.emitted(), 1)
	assert.Equal(t, domain.NewSignal(domain.SignalLoginFailed, "INVALID_IDP_RESPONSE"), f.host.emitted()[0])
	assert.Empty(t, f.crash.userID)
	assert.Equal(t, 0, f.crash.sends)
	assert.Equal(t, domain.FlowIdle, f.svc.State(domain.FlowGoogle))
}

func TestSignInLaunchFailure(t *testing.T) {
	f := newSignInFixture()
	f.launcher.err = errors.New("no browser")

	f.svc.Login(context.Background(), domain.FlowGoogle, "client")
	f.host.drain()

	require.Len(t, f.host.emitted(), 1)
	assert.Equal(t, domain.NewSignal(domain.SignalLoginFailed, "no browser"), f.host.emitted()[0])
	assert.Equal(t, domain.FlowIdle, f.svc.State(domain.FlowGoogle))
}

func TestSignInUnknownKind(t *testing.T) {
	f := newSignInFixture()

	f.svc.Login(context.Background(), domain.FlowKind("facebook"), "client")
	f.host.drain()

	require.Len(t, f.host.emitted(), 1)
	assert.Equal(t, domain.SignalLoginFailed, f.host.emitted()[0].Name)
	assert.Equal(t, 0, f.launcher.launches())
}

func TestSignInWithoutIdentityProvider(t *testing.T) {
	bridge, host := newTestBridge()
	launcher := &fakeLauncher{}
	svc := NewSignInService(launcher, nil, nil, nil, bridge, &NopLogger{})

	svc.Login(context.Background(), domain.FlowGoogle, "client")
	host.drain()

	require.Len(t, host.emitted(), 1)
	assert.Equal(t, domain.NewSignal(domain.SignalLoginFailed, "identity provider unavailable"), host.emitted()[0])
	assert.Equal(t, 0, launcher.launches())
}

func TestSignInRelaunchSupersedes(t *testing.T) {
	f := newSignInFixture()
	f.svc.Login(context.Background(), domain.FlowGoogle, "client")
	f.svc.Login(context.Background(), domain.FlowGoogle, "client")

	assert.Equal(t, 2, f.launcher.launches())
	assert.Equal(t, domain.FlowPending, f.svc.State(domain.FlowGoogle))

	f.launcher.deliver(domain.CodeGoogle, domain.FlowResult{Success: true, IDToken: "tok"})
	f.host.drain()

	assert.Len(t, f.host.emitted(), 1)
	assert.Equal(t, domain.FlowIdle, f.svc.State(domain.FlowGoogle))
}

func TestSignInFlowsAreIndependent(t *testing.T) {
	f := newSignInFixture()
	f.svc.Login(context.Background(), domain.FlowGoogle, "client")
	f.svc.Login(context.Background(), domain.FlowPlayGames, "client")

	f.launcher.deliver(domain.CodeGoogle, domain.CancelledFlow())
	f.host.drain()

	assert.Equal(t, domain.FlowIdle, f.svc.State(domain.FlowGoogle))
	assert.Equal(t, domain.FlowPending, f.svc.State(domain.FlowPlayGames))
}

func TestSignInDuplicateResultIgnored(t *testing.T) {
	f := newSignInFixture()
	f.svc.Login(context.Background(), domain.FlowGoogle, "client")

	f.launcher.deliver(domain.CodeGoogle, domain.FlowResult{Success: true, IDToken: "tok"})
	f.launcher.deliver(domain.CodeGoogle, domain.FlowResult{Success: true, IDToken: "tok"})
	f.host.drain()

	require.Len(t, f.host.emitted(), 1)
	assert.Equal(t, domain.SignalLoginSuccess, f.host.emitted()[0].Name)
	assert.Len(t, f.identity.creds, 1)
	assert.Equal(t, domain.FlowIdle, f.svc.State(domain.FlowGoogle))
}

func TestSignInResultWithoutLoginIgnored(t *testing.T) {
	f := newSignInFixture()

	f.launcher.deliver(domain.CodePlayGames, domain.CancelledFlow())
	f.host.drain()

	assert.Empty(t, f.host.emitted())
	assert.Empty(t, f.identity.creds)
	assert.Equal(t, domain.FlowIdle, f.svc.State(domain.FlowPlayGames))
}

func TestSignInIdleBeforeSuccessSignal(t *testing.T) {
	f := newSignInFixture()
	var states []domain.FlowState
	f.host.inline = true
	f.host.onEmit = func(domain.Signal) { states = append(states, f.svc.State(domain.FlowGoogle)) }
	f.svc.Login(context.Background(), domain.FlowGoogle, "client")

	f.launcher.deliver(domain.CodeGoogle, domain.FlowResult{Success: true, IDToken: "tok"})
	f.host.drain()

	assert.Equal(t, []domain.FlowState{domain.FlowIdle}, states)
}
