package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	ierrors "github.com/jrsteele09/go-highlevel-auth/internal/errors"
	"github.com/jrsteele09/go-highlevel-auth/internal/utils"
	"github.com/jrsteele09/go-highlevel-auth/oauthmodel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	xoauth2 "golang.org/x/oauth2"
)

const (
	DefaultBaseURL     = "https://services.leadconnectorhq.com"
	APIVersion         = "2021-07-28"
	DefaultHTTPTimeout = 30 * time.Second

	tokenPath         = "/oauth/token"
	locationTokenPath = "/oauth/locationToken"
)

// Exchanger performs the remote OAuth operations against HighLevel.
type Exchanger interface {
	Refresh(ctx context.Context, req RefreshRequest) (*TokenResponse, error)
	ExchangeCode(ctx context.Context, req CodeRequest) (*TokenResponse, error)
	LocationToken(ctx context.Context, req LocationTokenRequest) (*TokenResponse, error)
}

var _ Exchanger = (*Client)(nil)

// Client talks to the HighLevel OAuth endpoints over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(options ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Refresh runs the refresh_token grant. Any non-2xx answer is an error.
func (c *Client) Refresh(ctx context.Context, req RefreshRequest) (*TokenResponse, error) {
	if req.ClientID == "" || req.ClientSecret == "" {
		return nil, ierrors.Wrapf(ierrors.ErrMissingClientCredentials, "oauth2.Refresh")
	}
	if req.RefreshToken == "" {
		return nil, ierrors.Wrapf(ierrors.ErrMissingRefreshToken, "oauth2.Refresh")
	}
	userType := req.UserType
	if userType == "" {
		userType = oauthmodel.DefaultUserType
	}

	form := url.Values{
		"client_id":     {req.ClientID},
		"client_secret": {req.ClientSecret},
		"grant_type":    {string(RefreshTokenCodeGrant)},
		"refresh_token": {req.RefreshToken},
		"user_type":     {string(userType)},
	}
	return c.postForm(ctx, "oauth2.Refresh", tokenPath, form, "")
}

// ExchangeCode runs the authorization_code grant for a marketplace installation.
func (c *Client) ExchangeCode(ctx context.Context, req CodeRequest) (*TokenResponse, error) {
	if req.ClientID == "" || req.ClientSecret == "" {
		return nil, ierrors.Wrapf(ierrors.ErrMissingClientCredentials, "oauth2.ExchangeCode")
	}
	userType := req.UserType
	if userType == "" {
		userType = oauthmodel.DefaultUserType
	}

	cfg := &xoauth2.Config{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		RedirectURL:  req.RedirectURI,
		Endpoint: xoauth2.Endpoint{
			TokenURL:  c.baseURL + tokenPath,
			AuthStyle: xoauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, xoauth2.HTTPClient, c.httpClient)
	tok, err := cfg.Exchange(ctx, req.Code, xoauth2.SetAuthURLParam("user_type", string(userType)))
	if err != nil {
		var rerr *xoauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			return nil, fmt.Errorf("oauth2.ExchangeCode: %w: status %d: %s", ierrors.ErrUnexpectedStatus, rerr.Response.StatusCode, rerr.Body)
		}
		return nil, ierrors.Wrapf(err, "oauth2.ExchangeCode")
	}
	return fromOAuth2Token(tok), nil
}

// LocationToken mints a location token from an agency token.
func (c *Client) LocationToken(ctx context.Context, req LocationTokenRequest) (*TokenResponse, error) {
	if req.CompanyAccessToken == "" {
		return nil, ierrors.Wrapf(ierrors.ErrMissingAccessToken, "oauth2.LocationToken")
	}
	form := url.Values{
		"companyId":  {req.CompanyID},
		"locationId": {req.LocationID},
	}
	return c.postForm(ctx, "oauth2.LocationToken", locationTokenPath, form, req.CompanyAccessToken)
}

func (c *Client) postForm(ctx context.Context, op, path string, form url.Values, bearer string) (*TokenResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, ierrors.Wrapf(err, "%s new request", op)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Version", APIVersion)
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, ierrors.Wrapf(err, "%s", op)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, ierrors.Wrapf(err, "%s read body", op)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug().Str("op", op).Int("status", resp.StatusCode).Msg("token endpoint rejected request")
		return nil, fmt.Errorf("%s: %w: status %d: %s", op, ierrors.ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, ierrors.Wrapf(err, "%s decode", op)
	}
	if tr.AccessToken == "" {
		return nil, ierrors.Wrapf(ierrors.ErrMissingAccessToken, "%s", op)
	}
	return &tr, nil
}

func fromOAuth2Token(tok *xoauth2.Token) *TokenResponse {
	tr := &TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
	}
	if tr.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		tr.ExpiresIn = int64(time.Until(tok.Expiry).Seconds())
	}

	str := func(key string) string {
		s, _ := tok.Extra(key).(string)
		return s
	}
	tr.Scope = str("scope")
	tr.UserType = oauthmodel.UserType(str("userType"))
	tr.CompanyID = str("companyId")
	tr.LocationID = str("locationId")
	tr.UserID = str("userId")

	for _, key := range []string{"planId", "refreshTokenId", "isBulkInstallation", "traceId"} {
		if v := tok.Extra(key); v != nil {
			if tr.Extra == nil {
				tr.Extra = make(map[string]any)
			}
			tr.Extra[key] = v
		}
	}
	if raw, ok := tok.Extra("approvedLocations").([]any); ok {
		if tr.Extra == nil {
			tr.Extra = make(map[string]any)
		}
		tr.Extra["approvedLocations"] = utils.ToStringSlice(raw)
	}
	return tr
}
