package client

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jrsteele09/go-highlevel-auth/auth"
	"github.com/jrsteele09/go-highlevel-auth/credentials"
	ierrors "github.com/jrsteele09/go-highlevel-auth/internal/errors"
	"github.com/jrsteele09/go-highlevel-auth/oauth2"
	"github.com/jrsteele09/go-highlevel-auth/oauthmodel"
	"github.com/jrsteele09/go-highlevel-auth/sessions"
	"github.com/jrsteele09/go-highlevel-auth/sessions/inmemory"
	"github.com/jrsteele09/go-highlevel-auth/token"
	"github.com/jrsteele09/go-highlevel-auth/token/refresh"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Client wires credential configuration, session storage, refresh and request signing
// into one value an API client can be built on.
type Client struct {
	creds       *credentials.Holder
	exchanger   oauth2.Exchanger
	coordinator *refresh.Coordinator
	resolver    *token.Resolver
	httpClient  *http.Client

	// construction settings
	store        sessions.Store
	base         http.RoundTripper
	registerer   prometheus.Registerer
	singleFlight bool
	nowFunc      func() time.Time
	logger       zerolog.Logger

	swapMu sync.Mutex
}

type Option func(*Client)

// WithSessionStore sets the store sessions are kept in. Defaults to an in-memory store.
func WithSessionStore(store sessions.Store) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithExchanger replaces the HTTP client used for the OAuth grants.
func WithExchanger(exchanger oauth2.Exchanger) Option {
	return func(c *Client) {
		c.exchanger = exchanger
	}
}

// WithBaseTransport sets the RoundTripper API requests are finally sent with.
func WithBaseTransport(base http.RoundTripper) Option {
	return func(c *Client) {
		c.base = base
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics registers the refresh metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.registerer = reg
	}
}

// WithSingleFlight shares one refresh between concurrent requests for the same resource.
func WithSingleFlight() Option {
	return func(c *Client) {
		c.singleFlight = true
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Client) {
		c.nowFunc = now
	}
}

// New builds a Client from cfg, binds the session store to the configured client id and
// initialises it.
func New(ctx context.Context, cfg credentials.Config, options ...Option) (*Client, error) {
	c := &Client{
		creds:   credentials.NewHolder(cfg),
		base:    http.DefaultTransport,
		nowFunc: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}

	if c.store == nil {
		c.logger.Warn().Msg("no session store configured, using in-memory storage; sessions will not survive a restart")
		c.store = inmemory.New(inmemory.WithNowFunc(c.nowFunc))
	}
	if c.exchanger == nil {
		c.exchanger = oauth2.NewClient(oauth2.WithLogger(c.logger))
	}

	c.store.SetClientID(cfg.ClientID)
	if err := c.store.Init(ctx); err != nil {
		return nil, ierrors.Wrapf(err, "client.New init session store")
	}

	coordinatorOptions := []refresh.Option{
		refresh.WithNowFunc(c.nowFunc),
		refresh.WithLogger(c.logger),
	}
	if c.singleFlight {
		coordinatorOptions = append(coordinatorOptions, refresh.WithSingleFlight())
	}
	if c.registerer != nil {
		coordinatorOptions = append(coordinatorOptions, refresh.WithMetrics(refresh.NewMetrics(c.registerer)))
	}
	c.coordinator = refresh.NewCoordinator(c.store, c.creds, c.exchanger, coordinatorOptions...)
	c.resolver = token.NewResolver(c.creds, c.coordinator, token.WithLogger(c.logger))
	c.httpClient = &http.Client{
		Transport: auth.NewTransport(c.resolver, c.coordinator, auth.WithBase(c.base), auth.WithLogger(c.logger)),
	}

	c.creds.Subscribe(func(previous, current credentials.Config) {
		if previous.ClientID != current.ClientID {
			c.coordinator.Store().SetClientID(current.ClientID)
		}
	})
	return c, nil
}

// HTTPClient returns an *http.Client that authorises every request it sends.
// Use auth.WithSecurity on the request context to declare the operation's requirements.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

func (c *Client) Resolve(ctx context.Context, requirements []string, headers http.Header, query url.Values, body map[string]any) (string, error) {
	return c.resolver.Resolve(ctx, requirements, headers, query, body)
}

func (c *Client) GetAuthToken(ctx context.Context, resourceID string) (string, error) {
	return c.resolver.GetAuthToken(ctx, resourceID)
}

// Sessions returns the session store currently in use.
func (c *Client) Sessions() sessions.Store {
	return c.coordinator.Store()
}

func (c *Client) Coordinator() *refresh.Coordinator {
	return c.coordinator
}

// Config returns a snapshot of the current credentials.
func (c *Client) Config() credentials.Config {
	return c.creds.Get()
}

// UpdateConfig atomically replaces the credentials. A changed client id is re-bound on the
// session store.
func (c *Client) UpdateConfig(fn func(*credentials.Config)) credentials.Config {
	return c.creds.Update(fn)
}

// SetSessionStore binds and initialises store, switches to it and disconnects the previous one.
func (c *Client) SetSessionStore(ctx context.Context, store sessions.Store) error {
	c.swapMu.Lock()
	defer c.swapMu.Unlock()

	store.SetClientID(c.creds.Get().ClientID)
	if err := store.Init(ctx); err != nil {
		return ierrors.Wrapf(err, "client.SetSessionStore init")
	}

	previous := c.coordinator.Store()
	c.coordinator.SetStore(store)
	if previous == nil || previous == store {
		return nil
	}
	if err := previous.Disconnect(ctx); err != nil {
		return ierrors.Wrapf(err, "client.SetSessionStore disconnect previous")
	}
	return nil
}

// Close disconnects the session store.
func (c *Client) Close(ctx context.Context) error {
	return c.coordinator.Store().Disconnect(ctx)
}

// ExchangeCode completes a marketplace installation: the authorization code is exchanged
// and the resulting session stored under the installing company or location.
func (c *Client) ExchangeCode(ctx context.Context, code string, userType oauthmodel.UserType) (*sessions.Record, error) {
	cfg := c.creds.Get()
	resp, err := c.exchanger.ExchangeCode(ctx, oauth2.CodeRequest{
		Code:         code,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		UserType:     userType,
	})
	if err != nil {
		return nil, err
	}
	if resp.UserType == "" {
		resp.UserType = userType
	}
	return c.storeResponse(ctx, "client.ExchangeCode", resp.ResourceID(), resp)
}

// ExchangeLocationToken mints a location session from the company session stored under
// companyID, or from the configured agency token when no such session exists.
func (c *Client) ExchangeLocationToken(ctx context.Context, companyID, locationID string) (*sessions.Record, error) {
	companyToken, err := c.companyToken(ctx, companyID)
	if err != nil {
		return nil, err
	}

	resp, err := c.exchanger.LocationToken(ctx, oauth2.LocationTokenRequest{
		CompanyAccessToken: companyToken,
		CompanyID:          companyID,
		LocationID:         locationID,
	})
	if err != nil {
		return nil, err
	}
	if resp.UserType == "" {
		resp.UserType = oauthmodel.UserTypeLocation
	}
	resourceID := resp.LocationID
	if resourceID == "" {
		resourceID = locationID
	}
	return c.storeResponse(ctx, "client.ExchangeLocationToken", resourceID, resp)
}

func (c *Client) companyToken(ctx context.Context, companyID string) (string, error) {
	record, err := c.Sessions().GetSession(ctx, companyID)
	if err != nil {
		return "", err
	}
	if record != nil {
		accessToken, err := c.coordinator.EnsureFresh(ctx, companyID, record)
		if err != nil {
			return "", err
		}
		if accessToken != "" {
			return accessToken, nil
		}
	}
	if agency := c.creds.Get().AgencyAccessToken; agency != "" {
		return agency, nil
	}
	return "", oauthmodel.NewAuthenticationError(oauthmodel.AgencyTier)
}

func (c *Client) storeResponse(ctx context.Context, op, resourceID string, resp *oauth2.TokenResponse) (*sessions.Record, error) {
	if resourceID == "" {
		return nil, ierrors.Wrapf(ierrors.ErrMissingResourceID, "%s", op)
	}
	store := c.Sessions()
	if err := store.SetSession(ctx, resourceID, recordFromResponse(resp)); err != nil {
		return nil, err
	}
	c.logger.Info().Str("resource_id", resourceID).Str("user_type", string(resp.UserType)).Msg("session stored")
	return store.GetSession(ctx, resourceID)
}

func recordFromResponse(resp *oauth2.TokenResponse) sessions.Record {
	return sessions.Record{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
		UserType:     resp.UserType,
		TokenType:    resp.TokenType,
		Scope:        resp.Scope,
		CompanyID:    resp.CompanyID,
		LocationID:   resp.LocationID,
		UserID:       resp.UserID,
		Extra:        resp.Extra,
	}
}
