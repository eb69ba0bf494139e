package services

import (
	"context"
	"errors"

	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/ports"
)

var idTokenEvents = Events{
	Success: domain.SignalIDTokenLoaded,
	Failure: domain.SignalIDTokenFailed,
}

// IdentityService exposes the signed-in identity. It never caches the
// identity; every accessor asks the provider.
type IdentityService struct {
	provider ports.IdentityProvider
	bridge   *Bridge
	logger   ports.Logger
}

// NewIdentityService creates an identity service. A nil provider behaves
// as permanently signed out.
func NewIdentityService(provider ports.IdentityProvider, bridge *Bridge, logger ports.Logger) *IdentityService {
	return &IdentityService{
		provider: provider,
		bridge:   bridge,
		logger:   logger.With("component", "identity"),
	}
}

func (s *IdentityService) current() (*domain.Identity, error) {
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}
	user, ok := s.provider.CurrentUser()
	if !ok || user == nil {
		return nil, ErrNotSignedIn
	}
	return user, nil
}

// IsSignedIn reports whether a user is signed in.
func (s *IdentityService) IsSignedIn() bool {
	_, err := s.current()
	return err == nil
}

// Current returns the signed-in identity.
func (s *IdentityService) Current() (*domain.Identity, error) {
	return s.current()
}

// UserName returns the display name of the signed-in user.
func (s *IdentityService) UserName() (string, error) {
	user, err := s.current()
	if err != nil {
		return "", err
	}
	return user.DisplayName, nil
}

// Email returns the email of the signed-in user.
func (s *IdentityService) Email() (string, error) {
	user, err := s.current()
	if err != nil {
		return "", err
	}
	return user.Email, nil
}

// UID returns the uid of the signed-in user.
func (s *IdentityService) UID() (string, error) {
	user, err := s.current()
	if err != nil {
		return "", err
	}
	return user.UID, nil
}

// PhotoURL returns the photo URL of the signed-in user.
func (s *IdentityService) PhotoURL() (string, error) {
	user, err := s.current()
	if err != nil {
		return "", err
	}
	return user.PhotoURL, nil
}

// FetchIDToken resolves with id_token_loaded(token) or id_token_failed(message).
// Without a signed-in user no provider call is made.
func (s *IdentityService) FetchIDToken(ctx context.Context, forceRefresh bool) *Completion {
	if _, err := s.current(); err != nil {
		msg := "User not loaded"
		if errors.Is(err, ErrProviderUnavailable) {
			msg = "identity provider unavailable"
		}
		c := s.bridge.Begin("get_id_token", idTokenEvents)
		c.Fail(msg)
		return c
	}

	return s.bridge.Go(ctx, "get_id_token", idTokenEvents, func(ctx context.Context, c *Completion) {
		token, err := s.provider.IDToken(ctx, forceRefresh)
		switch {
		case err != nil:
			s.logger.Warn("ID token fetch failed", "error", err)
			c.Fail(err.Error())
		case token == "":
			c.Fail("Token Unavailable")
		default:
			c.Succeed(token)
		}
	})
}

// SignOut signs the current user out. It is a no-op without a provider.
func (s *IdentityService) SignOut() {
	if s.provider == nil {
		return
	}
	s.provider.SignOut()
	s.logger.Info("Signed out")
}
