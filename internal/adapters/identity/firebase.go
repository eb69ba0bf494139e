// Package identity exchanges provider credentials for Firebase identities
// over the Identity Toolkit REST API.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/ports"
	"golang.org/x/oauth2"
)

const (
	DefaultIdentityEndpoint = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenEndpoint    = "https://securetoken.googleapis.com/v1/token"
)

// ErrNoSession is returned when an ID token is requested without a signed-in user.
var ErrNoSession = errors.New("no signed-in user")

// Config holds the Firebase project settings used by FirebaseAuth.
type Config struct {
	APIKey           string
	IdentityEndpoint string
	TokenEndpoint    string
	RequestURI       string
}

// FirebaseAuth implements ports.IdentityProvider.
type FirebaseAuth struct {
	cfg    Config
	client *http.Client
	logger ports.Logger

	mu    sync.RWMutex
	user  *domain.Identity
	token *oauth2.Token
}

// NewFirebaseAuth creates an identity provider for the configured project.
func NewFirebaseAuth(cfg Config, client *http.Client, logger ports.Logger) (*FirebaseAuth, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.IdentityEndpoint == "" {
		cfg.IdentityEndpoint = DefaultIdentityEndpoint
	}
	if cfg.TokenEndpoint == "" {
		cfg.TokenEndpoint = DefaultTokenEndpoint
	}
	if cfg.RequestURI == "" {
		cfg.RequestURI = "http://localhost"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &FirebaseAuth{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "firebase_auth"),
	}, nil
}

// CurrentUser returns a copy of the signed-in identity.
func (a *FirebaseAuth) CurrentUser() (*domain.Identity, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.user == nil {
		return nil, false
	}
	u := *a.user
	return &u, true
}

type signInRequest struct {
	PostBody            string `json:"postBody"`
	RequestURI          string `json:"requestUri"`
	ReturnIdpCredential bool   `json:"returnIdpCredential"`
	ReturnSecureToken   bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	PhotoURL     string `json:"photoUrl"`
	ProviderID   string `json:"providerId"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// postBody renders the credential in the form signInWithIdp expects.
func postBody(cred domain.Credential) (string, error) {
	v := url.Values{}
	switch cred.ProviderID {
	case domain.ProviderGoogle:
		v.Set("id_token", cred.Token)
	case domain.ProviderPlayGames:
		v.Set("serverAuthCode", cred.Token)
	default:
		return "", fmt.Errorf("unsupported provider %q", cred.ProviderID)
	}
	v.Set("providerId", cred.ProviderID)
	return v.Encode(), nil
}

// SignInWithCredential exchanges cred for a Firebase identity and keeps the
// returned session.
func (a *FirebaseAuth) SignInWithCredential(ctx context.Context, cred domain.Credential) (*domain.Identity, error) {
	body, err := postBody(cred)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(signInRequest{
		PostBody:            body,
		RequestURI:          a.cfg.RequestURI,
		ReturnIdpCredential: true,
		ReturnSecureToken:   true,
	})
	if err != nil {
		return nil, err
	}

	endpoint := a.cfg.IdentityEndpoint + "/accounts:signInWithIdp?key=" + url.QueryEscape(a.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sign-in request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read sign-in response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp.StatusCode, data)
	}

	var out signInResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode sign-in response: %w", err)
	}
	if out.LocalID == "" || out.IDToken == "" {
		return nil, fmt.Errorf("sign-in response missing user or token")
	}

	providerID := out.ProviderID
	if providerID == "" {
		providerID = cred.ProviderID
	}
	user := &domain.Identity{
		UID:         out.LocalID,
		DisplayName: out.DisplayName,
		Email:       out.Email,
		PhotoURL:    out.PhotoURL,
		ProviderID:  providerID,
	}
	token := &oauth2.Token{
		AccessToken:  out.IDToken,
		RefreshToken: out.RefreshToken,
		Expiry:       expiry(out.ExpiresIn),
	}

	a.mu.Lock()
	a.user = user
	a.token = token
	a.mu.Unlock()

	a.logger.Info("Firebase sign-in succeeded", "uid", user.UID, "provider", providerID)
	u := *user
	return &u, nil
}

// IDToken returns the session's ID token, refreshing it through the secure
// token endpoint when it expired or forceRefresh is set.
func (a *FirebaseAuth) IDToken(ctx context.Context, forceRefresh bool) (string, error) {
	a.mu.RLock()
	token := a.token
	a.mu.RUnlock()
	if token == nil {
		return "", ErrNoSession
	}
	if !forceRefresh && token.Valid() {
		return idTokenOf(token), nil
	}
	if token.RefreshToken == "" {
		return "", fmt.Errorf("session has no refresh token")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	src := a.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return "", decodeAPIError(re.Response.StatusCode, re.Body)
		}
		return "", fmt.Errorf("token refresh failed: %w", err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = token.RefreshToken
	}

	a.mu.Lock()
	// A sign-out during the refresh wins.
	if a.token == token {
		a.token = fresh
	}
	a.mu.Unlock()

	a.logger.Debug("ID token refreshed", "expiry", fresh.Expiry)
	return idTokenOf(fresh), nil
}

// SignOut forgets the session.
func (a *FirebaseAuth) SignOut() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user != nil {
		a.logger.Info("Signed out", "uid", a.user.UID)
	}
	a.user = nil
	a.token = nil
}

func (a *FirebaseAuth) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  a.cfg.TokenEndpoint + "?key=" + url.QueryEscape(a.cfg.APIKey),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// idTokenOf prefers the id_token field of a refresh response.
func idTokenOf(t *oauth2.Token) string {
	if id, ok := t.Extra("id_token").(string); ok && id != "" {
		return id
	}
	return t.AccessToken
}

func expiry(expiresIn string) time.Time {
	secs, err := strconv.Atoi(strings.TrimSpace(expiresIn))
	if err != nil || secs <= 0 {
		secs = 3600
	}
	return time.Now().Add(time.Duration(secs) * time.Second)
}

func decodeAPIError(status int, body []byte) error {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return fmt.Errorf("identity toolkit: %s", e.Error.Message)
	}
	return fmt.Errorf("identity toolkit: unexpected status %d", status)
}
