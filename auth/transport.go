package auth

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	ierrors "github.com/jrsteele09/go-highlevel-auth/internal/errors"
	"github.com/jrsteele09/go-highlevel-auth/resource"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const authorizationHeader = "Authorization"

// TokenResolver returns the Authorization value for an outbound request.
type TokenResolver interface {
	Resolve(ctx context.Context, requirements []string, headers http.Header, query url.Values, body map[string]any) (string, error)
}

// UnauthorizedRefresher refreshes the stored session of a resource after a 401.
// It returns "" when there is nothing to retry with.
type UnauthorizedRefresher interface {
	RefreshOnUnauthorized(ctx context.Context, resourceID string) (string, error)
}

type securityKey struct{}

// WithSecurity attaches the security requirements declared by an API operation to ctx.
func WithSecurity(ctx context.Context, requirements ...string) context.Context {
	return context.WithValue(ctx, securityKey{}, requirements)
}

// SecurityFromContext returns the requirements set by WithSecurity, or nil.
func SecurityFromContext(ctx context.Context) []string {
	reqs, _ := ctx.Value(securityKey{}).([]string)
	return reqs
}

// Transport is an http.RoundTripper that authorises requests to the HighLevel API.
//
// Each request is sent at most twice. A 401 answer triggers one refresh of the stored
// session of the request's resource and, when that yields a token, one resend. A second
// 401 is returned as is. Requests whose caller already set Authorization are sent untouched
// and never retried.
type Transport struct {
	base      http.RoundTripper
	resolver  TokenResolver
	refresher UnauthorizedRefresher
	logger    zerolog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

type Option func(*Transport)

// WithBase sets the RoundTripper requests are sent with. Defaults to http.DefaultTransport.
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		t.base = base
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

func NewTransport(resolver TokenResolver, refresher UnauthorizedRefresher, options ...Option) *Transport {
	t := &Transport{
		base:      http.DefaultTransport,
		resolver:  resolver,
		refresher: refresher,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	raw, err := drainBody(req)
	if err != nil {
		return nil, ierrors.Wrapf(err, "auth.RoundTrip read body")
	}

	first := cloneRequest(req, raw)
	if first.Header.Get(authorizationHeader) != "" {
		return t.base.RoundTrip(first)
	}

	headers, query, body, err := resource.FromRequest(first)
	if err != nil {
		return nil, ierrors.Wrapf(err, "auth.RoundTrip")
	}

	value, err := t.resolver.Resolve(ctx, SecurityFromContext(ctx), headers, query, body)
	if err != nil {
		return nil, err
	}
	if value != "" {
		first.Header.Set(authorizationHeader, value)
	}

	resp, err := t.base.RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	resourceID, ok := resource.ExtractID(headers, query, body)
	if !ok {
		return resp, nil
	}

	token, err := t.refresher.RefreshOnUnauthorized(ctx, resourceID)
	if err != nil {
		t.logger.Warn().Err(err).Str("resource_id", resourceID).Msg("refresh after 401 failed")
		return resp, nil
	}
	if token == "" {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	t.logger.Debug().Str("resource_id", resourceID).Str("url", req.URL.Redacted()).Msg("retrying request with refreshed token")
	retry := cloneRequest(req, raw)
	retry.Header.Set(authorizationHeader, "Bearer "+token)
	return t.base.RoundTrip(retry)
}

// CloseIdleConnections forwards to the base transport when it supports it.
func (t *Transport) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if ci, ok := t.base.(closeIdler); ok {
		ci.CloseIdleConnections()
	}
}

func drainBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

// cloneRequest returns a deep copy of req carrying its own reader over raw, so every
// attempt sends identical bytes.
func cloneRequest(req *http.Request, raw []byte) *http.Request {
	out := req.Clone(req.Context())
	if raw == nil {
		return out
	}
	out.Body = io.NopCloser(bytes.NewReader(raw))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
	out.ContentLength = int64(len(raw))
	return out
}
