package services

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/ports"
)

const (
	defaultContentType    = "application/json"
	defaultConnectTimeout = 15 * time.Second
	defaultMaxBodyBytes   = 10 * 1024 * 1024
)

// requestEvents shares one signal for responses and transport failures.
// Status 0 marks a transport failure with the message as payload.
var requestEvents = Events{
	Success: domain.SignalRequestCompleted,
	Failure: domain.SignalRequestCompleted,
	FailurePayload: func(msg string) []any {
		return []any{0, msg}
	},
}

// NewHTTPClient creates the transport used for host requests.
func NewHTTPClient(connectTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	return &http.Client{Transport: transport}
}

// RequestDispatcher issues host network requests.
type RequestDispatcher struct {
	client       *http.Client
	bridge       *Bridge
	maxBodyBytes int64
	logger       ports.Logger
}

// NewRequestDispatcher creates a dispatcher. A nil client gets the default
// transport with a 15s connect timeout.
func NewRequestDispatcher(client *http.Client, bridge *Bridge, maxBodyBytes int64, logger ports.Logger) *RequestDispatcher {
	if client == nil {
		client = NewHTTPClient(defaultConnectTimeout)
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &RequestDispatcher{
		client:       client,
		bridge:       bridge,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.With("component", "http"),
	}
}

// Dispatch issues the request in the background and resolves with
// request_completed(status, body) or request_completed(0, error).
func (d *RequestDispatcher) Dispatch(ctx context.Context, url string, headers []string, method, body string) *Completion {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	parsed := d.parseHeaders(headers)

	return d.bridge.Go(ctx, "http_request", requestEvents, func(ctx context.Context, c *Completion) {
		req, err := d.newRequest(ctx, url, parsed, method, body)
		if err != nil {
			c.Fail(err.Error())
			return
		}

		resp, err := d.client.Do(req)
		if err != nil {
			d.logger.Debug("Request failed", "method", method, "url", url, "error", err)
			c.Fail(err.Error())
			return
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBodyBytes+1))
		if err != nil {
			c.Fail(fmt.Sprintf("failed to read response: %v", err))
			return
		}
		if int64(len(data)) > d.maxBodyBytes {
			data = data[:d.maxBodyBytes]
			d.logger.Warn("Response body truncated", "method", method, "url", url, "limit", d.maxBodyBytes)
		}

		d.logger.Debug("Request completed", "method", method, "url", url, "status", resp.StatusCode, "bytes", len(data))
		c.Succeed(resp.StatusCode, string(data))
	})
}

type header struct {
	name, value string
}

// parseHeaders splits "Name: Value" entries on the first ": ".
func (d *RequestDispatcher) parseHeaders(headers []string) []header {
	out := make([]header, 0, len(headers))
	for _, h := range headers {
		name, value, ok := strings.Cut(h, ": ")
		if !ok || name == "" {
			d.logger.Warn("Skipping malformed header", "header", h)
			continue
		}
		out = append(out, header{name: name, value: value})
	}
	return out
}

func (d *RequestDispatcher) newRequest(ctx context.Context, url string, headers []header, method, body string) (*http.Request, error) {
	contentType := defaultContentType
	for _, h := range headers {
		if strings.EqualFold(h.name, "content-type") {
			contentType = h.value
		}
	}

	var reader io.Reader
	if method == http.MethodPost {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for _, h := range headers {
		req.Header.Add(h.name, h.value)
	}
	if reader != nil {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}
