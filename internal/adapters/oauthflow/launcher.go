// Package oauthflow runs the external Google sign-in flows in the user's
// browser and receives their results on a loopback callback server.
package oauthflow

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const callbackPath = "/callback"

var scopes = map[domain.FlowKind][]string{
	domain.FlowPlayGames: {"https://www.googleapis.com/auth/games_lite"},
	domain.FlowGoogle:    {"openid", "email", "profile"},
}

// Config configures the loopback flow launcher.
type Config struct {
	// DefaultClientID is used when a request carries no client id.
	DefaultClientID string
	ClientSecret    string
	// RedirectPort is the loopback port; 0 picks a free one.
	RedirectPort int
	// Endpoint defaults to Google's OAuth endpoint.
	Endpoint oauth2.Endpoint
	// Open presents the consent URL to the user. By default the URL is logged.
	Open func(authURL string) error
	// HTTPClient is used for the code exchange.
	HTTPClient *http.Client
}

type pendingFlow struct {
	req      domain.FlowRequest
	conf     *oauth2.Config
	verifier string
}

// Launcher implements ports.FlowLauncher with the OAuth 2.0 authorization
// code flow for installed apps.
type Launcher struct {
	cfg    Config
	logger ports.Logger

	mu       sync.Mutex
	handler  ports.FlowResultHandler
	pending  map[string]pendingFlow
	byCode   map[int]string
	listener net.Listener
	server   *http.Server
}

// NewLauncher creates a launcher. The callback server starts on first use.
func NewLauncher(cfg Config, logger ports.Logger) *Launcher {
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = google.Endpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	l := &Launcher{
		cfg:     cfg,
		logger:  logger.With("component", "oauthflow"),
		pending: make(map[string]pendingFlow),
		byCode:  make(map[int]string),
	}
	if l.cfg.Open == nil {
		l.cfg.Open = func(authURL string) error {
			l.logger.Info("Open this URL to sign in", "url", authURL)
			return nil
		}
	}
	return l
}

// OnResult registers the handler for finished flows.
func (l *Launcher) OnResult(handler ports.FlowResultHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = handler
}

// Launch starts the consent flow for req. Launching a code that is still
// pending abandons the earlier attempt.
func (l *Launcher) Launch(ctx context.Context, req domain.FlowRequest) error {
	if req.ClientID == "" {
		req.ClientID = l.cfg.DefaultClientID
	}
	if req.ClientID == "" {
		return fmt.Errorf("client id is required")
	}
	if !req.Kind.Valid() {
		return fmt.Errorf("unsupported flow kind %q", req.Kind)
	}
	if err := l.Listen(); err != nil {
		return err
	}

	conf := &oauth2.Config{
		ClientID:     req.ClientID,
		ClientSecret: l.cfg.ClientSecret,
		Endpoint:     l.cfg.Endpoint,
		RedirectURL:  l.RedirectURL(),
		Scopes:       scopes[req.Kind],
	}
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	l.mu.Lock()
	if prev, ok := l.byCode[req.Code]; ok {
		delete(l.pending, prev)
	}
	l.pending[state] = pendingFlow{req: req, conf: conf, verifier: verifier}
	l.byCode[req.Code] = state
	l.mu.Unlock()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	if err := l.cfg.Open(authURL); err != nil {
		l.forget(state)
		return fmt.Errorf("failed to open consent page: %w", err)
	}
	l.logger.Debug("Consent flow started", "flow", req.Kind, "code", req.Code)
	return nil
}

func (l *Launcher) forget(state string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.pending[state]; ok {
		delete(l.pending, state)
		if l.byCode[p.req.Code] == state {
			delete(l.byCode, p.req.Code)
		}
	}
}

// Pending returns the number of flows awaiting a callback.
func (l *Launcher) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Listen starts the loopback callback server if it is not running.
func (l *Launcher) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(l.cfg.RedirectPort)))
	if err != nil {
		return fmt.Errorf("failed to listen for sign-in callback: %w", err)
	}
	l.listener = ln
	l.server = &http.Server{
		Handler:           l.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("Callback server stopped", "error", err)
		}
	}(l.server)

	l.logger.Info("Sign-in callback server listening", "addr", ln.Addr().String())
	return nil
}

// RedirectURL returns the callback URL, or "" before Listen.
func (l *Launcher) RedirectURL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return ""
	}
	return "http://" + l.listener.Addr().String() + callbackPath
}

// Run serves callbacks until ctx is done.
func (l *Launcher) Run(ctx context.Context) error {
	if err := l.Listen(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return l.Close(shutdownCtx)
}

// Close stops the callback server.
func (l *Launcher) Close(ctx context.Context) error {
	l.mu.Lock()
	srv := l.server
	l.server = nil
	l.listener = nil
	l.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (l *Launcher) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(callbackPath, l.handleCallback)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

var resultPage = template.Must(template.New("result").Parse(
	`<!doctype html><html><body><p>{{.}}</p><p>You can close this window.</p></body></html>`))

func (l *Launcher) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")

	l.mu.Lock()
	p, ok := l.pending[state]
	if ok {
		delete(l.pending, state)
		if l.byCode[p.req.Code] == state {
			delete(l.byCode, p.req.Code)
		}
	}
	handler := l.handler
	l.mu.Unlock()

	if !ok {
		l.logger.Warn("Callback with unknown state")
		http.Error(w, "unknown or expired sign-in state", http.StatusBadRequest)
		return
	}

	result := l.resolve(r.Context(), p, q.Get("code"), q.Get("error"))
	if handler != nil {
		handler(p.req.Code, result)
	}

	msg := "Sign-in complete."
	if !result.Success {
		msg = "Sign-in failed: " + result.Status()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = resultPage.Execute(w, msg)
}

// resolve turns the callback parameters into a flow result. Play Games
// flows hand the authorization code on as the server auth code; Google
// flows exchange it for an ID token.
func (l *Launcher) resolve(ctx context.Context, p pendingFlow, code, errParam string) domain.FlowResult {
	switch {
	case errParam == "access_denied":
		return domain.CancelledFlow()
	case errParam != "":
		return domain.FlowResult{StatusCode: domain.StatusError, StatusMessage: errParam}
	case code == "":
		return domain.FlowResult{StatusCode: domain.StatusError, StatusMessage: "missing authorization code"}
	}

	if p.req.Kind == domain.FlowPlayGames {
		return domain.FlowResult{Success: true, StatusCode: domain.StatusSuccess, ServerAuthCode: code}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, l.cfg.HTTPClient)
	tok, err := p.conf.Exchange(ctx, code, oauth2.VerifierOption(p.verifier))
	if err != nil {
		l.logger.Warn("Authorization code exchange failed", "flow", p.req.Kind, "error", err)
		return domain.FlowResult{StatusCode: domain.StatusError, StatusMessage: err.Error()}
	}
	idToken, _ := tok.Extra("id_token").(string)
	return domain.FlowResult{Success: true, StatusCode: domain.StatusSuccess, IDToken: idToken}
}
