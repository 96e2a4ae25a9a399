package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-highlevel-auth/credentials"
	"github.com/jrsteele09/go-highlevel-auth/oauth2"
	"github.com/jrsteele09/go-highlevel-auth/oauthmodel"
	"github.com/jrsteele09/go-highlevel-auth/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ExpiryBuffer is how long before ExpireAt a stored token is treated as expired.
const ExpiryBuffer = 30 * time.Second

// SharedRefreshTimeout bounds a refresh shared by WithSingleFlight callers.
const SharedRefreshTimeout = 30 * time.Second

// Trigger names what started a refresh.
type Trigger string

const (
	Proactive Trigger = "proactive"
	Reactive  Trigger = "reactive"
	Forced    Trigger = "forced"
)

// TokenRefresher is the remote refresh_token grant.
type TokenRefresher interface {
	Refresh(ctx context.Context, req oauth2.RefreshRequest) (*oauth2.TokenResponse, error)
}

// Coordinator decides when stored access tokens need refreshing, runs the refresh grant
// and writes the merged result back to the session store.
type Coordinator struct {
	creds     *credentials.Holder
	refresher TokenRefresher

	storeMu sync.RWMutex
	store   sessions.Store

	dedupe  bool
	group   singleflight.Group
	metrics *Metrics
	nowFunc func() time.Time
	logger  zerolog.Logger
}

type Option func(*Coordinator)

func WithNowFunc(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithSingleFlight makes concurrent refreshes of the same resource share one exchange.
// Without it every caller that finds a stale token runs its own refresh grant. The shared
// exchange ignores the first caller's cancellation and is bounded by SharedRefreshTimeout.
func WithSingleFlight() Option {
	return func(c *Coordinator) {
		c.dedupe = true
	}
}

func NewCoordinator(store sessions.Store, creds *credentials.Holder, refresher TokenRefresher, options ...Option) *Coordinator {
	c := &Coordinator{
		creds:     creds,
		refresher: refresher,
		store:     store,
		nowFunc:   time.Now,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Store returns the session store currently in use.
func (c *Coordinator) Store() sessions.Store {
	c.storeMu.RLock()
	defer c.storeMu.RUnlock()
	return c.store
}

// SetStore swaps the session store used by subsequent calls.
func (c *Coordinator) SetStore(store sessions.Store) {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	c.store = store
}

// NeedsRefresh reports whether now+ExpiryBuffer has reached the record's expiry.
// A record without a known expiry never needs a refresh.
func (c *Coordinator) NeedsRefresh(record *sessions.Record) bool {
	if record == nil || record.ExpireAt.IsZero() {
		return false
	}
	return !c.nowFunc().Add(ExpiryBuffer).Before(record.ExpireAt)
}

// EnsureFresh returns a usable access token for a stored session, refreshing it first
// when it is about to expire. It returns "" with a nil error when the token is stale and
// cannot be refreshed for lack of a refresh token or client credentials.
func (c *Coordinator) EnsureFresh(ctx context.Context, resourceID string, record *sessions.Record) (string, error) {
	if record == nil {
		return "", nil
	}
	if !c.NeedsRefresh(record) {
		return record.AccessToken, nil
	}
	return c.refresh(ctx, Proactive, resourceID, record)
}

// RefreshOnUnauthorized is called after a request was rejected with 401. It refreshes
// only when a session is stored for resourceID and that session is stale.
func (c *Coordinator) RefreshOnUnauthorized(ctx context.Context, resourceID string) (string, error) {
	if resourceID == "" || c.creds.Get().ClientID == "" {
		return "", nil
	}
	record, err := c.Store().GetSession(ctx, resourceID)
	if err != nil {
		return "", err
	}
	if record == nil || !c.NeedsRefresh(record) {
		return "", nil
	}
	return c.refresh(ctx, Reactive, resourceID, record)
}

// Refresh refreshes the stored session for resourceID regardless of its expiry.
func (c *Coordinator) Refresh(ctx context.Context, resourceID string) (string, error) {
	record, err := c.Store().GetSession(ctx, resourceID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", nil
	}
	return c.refresh(ctx, Forced, resourceID, record)
}

func (c *Coordinator) refresh(ctx context.Context, trigger Trigger, resourceID string, record *sessions.Record) (string, error) {
	cfg := c.creds.Get()
	if record.RefreshToken == "" || !cfg.HasClientCredentials() {
		c.logger.Warn().
			Str("resource_id", resourceID).
			Str("trigger", string(trigger)).
			Bool("has_refresh_token", record.RefreshToken != "").
			Bool("has_client_credentials", cfg.HasClientCredentials()).
			Msg("stored token expired and cannot be refreshed")
		return "", nil
	}

	if !c.dedupe {
		return c.exchange(ctx, trigger, cfg, resourceID, record)
	}

	v, err, shared := c.group.Do(resourceID, func() (any, error) {
		// Joined callers must not fail because the first caller went away.
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SharedRefreshTimeout)
		defer cancel()
		return c.exchange(sharedCtx, trigger, cfg, resourceID, record)
	})
	if shared {
		c.logger.Debug().Str("resource_id", resourceID).Msg("joined in-flight token refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Coordinator) exchange(ctx context.Context, trigger Trigger, cfg credentials.Config, resourceID string, record *sessions.Record) (string, error) {
	start := c.nowFunc()
	resp, err := c.refresher.Refresh(ctx, oauth2.RefreshRequest{
		RefreshToken: record.RefreshToken,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		UserType:     record.EffectiveUserType(),
	})
	c.metrics.observe(trigger, err, c.nowFunc().Sub(start))
	if err != nil {
		c.logger.Error().Err(err).Str("resource_id", resourceID).Str("trigger", string(trigger)).Msg("token refresh failed")
		return "", &oauthmodel.RefreshError{ResourceID: resourceID, Err: err}
	}

	merged := Merge(*record, resp)
	if err := c.Store().SetSession(ctx, resourceID, merged); err != nil {
		return "", err
	}

	c.logger.Debug().Str("resource_id", resourceID).Str("trigger", string(trigger)).Int64("expires_in", merged.ExpiresIn).Msg("token refreshed")
	return merged.AccessToken, nil
}

// Merge overlays a token response onto the stored record. Fields the response omits
// keep their stored values, so an unrotated refresh token survives.
func Merge(record sessions.Record, resp *oauth2.TokenResponse) sessions.Record {
	merged := record.Clone()
	merged.AccessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		merged.RefreshToken = resp.RefreshToken
	}
	if resp.ExpiresIn > 0 {
		merged.ExpiresIn = resp.ExpiresIn
	}
	if resp.UserType != "" {
		merged.UserType = resp.UserType
	}
	if resp.TokenType != "" {
		merged.TokenType = resp.TokenType
	}
	if resp.Scope != "" {
		merged.Scope = resp.Scope
	}
	if resp.CompanyID != "" {
		merged.CompanyID = resp.CompanyID
	}
	if resp.LocationID != "" {
		merged.LocationID = resp.LocationID
	}
	if resp.UserID != "" {
		merged.UserID = resp.UserID
	}
	for k, v := range resp.Extra {
		if merged.Extra == nil {
			merged.Extra = make(map[string]any, len(resp.Extra))
		}
		merged.Extra[k] = v
	}
	return merged
}
