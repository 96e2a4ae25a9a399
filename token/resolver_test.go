package token_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-highlevel-auth/credentials"
	"github.com/jrsteele09/go-highlevel-auth/oauth2"
	"github.com/jrsteele09/go-highlevel-auth/oauthmodel"
	"github.com/jrsteele09/go-highlevel-auth/sessions"
	"github.com/jrsteele09/go-highlevel-auth/sessions/inmemory"
	"github.com/jrsteele09/go-highlevel-auth/token"
	"github.com/jrsteele09/go-highlevel-auth/token/refresh"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testClientID = "app123-suffix"

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (c *countingRefresher) Refresh(context.Context, oauth2.RefreshRequest) (*oauth2.TokenResponse, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &oauth2.TokenResponse{AccessToken: "at-refreshed", ExpiresIn: 86399}, nil
}

// failingStore fails every read to show storage errors are not masked.
type failingStore struct {
	*inmemory.Store
	err error
}

func (f *failingStore) GetSession(context.Context, string) (*sessions.Record, error) {
	return nil, f.err
}

type resolverFixture struct {
	creds     *credentials.Holder
	store     *inmemory.Store
	refresher *countingRefresher
	resolver  *token.Resolver
}

func newResolverFixture(t *testing.T, cfg credentials.Config) *resolverFixture {
	t.Helper()
	now := func() time.Time { return baseTime }
	if cfg.ClientID == "" {
		cfg.ClientID = testClientID
		cfg.ClientSecret = "secret"
	}
	f := &resolverFixture{
		creds:     credentials.NewHolder(cfg),
		store:     inmemory.New(inmemory.WithNowFunc(now)),
		refresher: &countingRefresher{},
	}
	f.store.SetClientID(cfg.ClientID)
	coordinator := refresh.NewCoordinator(f.store, f.creds, f.refresher, refresh.WithNowFunc(now), refresh.WithLogger(zerolog.Nop()))
	f.resolver = token.NewResolver(f.creds, coordinator, token.WithLogger(zerolog.Nop()))
	return f
}

func (f *resolverFixture) seed(t *testing.T, resourceID, accessToken string, expiresIn time.Duration) {
	t.Helper()
	require.NoError(t, f.store.SetSession(context.Background(), resourceID, sessions.Record{
		AccessToken:  accessToken,
		RefreshToken: "rt-" + resourceID,
		ExpiresIn:    int64(expiresIn / time.Second),
	}))
}

func locationHeader(id string) http.Header {
	h := http.Header{}
	h.Set("x-location-id", id)
	return h
}

func TestResolver_PrivateIntegrationTokenWins(t *testing.T) {
	f := newResolverFixture(t, credentials.Config{
		PrivateIntegrationToken: "pit-1",
		AgencyAccessToken:       "agency-1",
		LocationAccessToken:     "location-1",
	})
	f.seed(t, "loc-1", "stored-1", time.Hour)

	for _, reqs := range [][]string{
		nil,
		{"bearer"},
		{"Agency-Access-Only"},
		{"Location-Access-Only"},
		{"Agency-Access", "Location-Access"},
	} {
		got, err := f.resolver.Resolve(context.Background(), reqs, locationHeader("loc-1"), nil, nil)
		require.NoError(t, err)
		require.Equal(t, "Bearer pit-1", got)
	}
}

func TestResolver_AccessOnly(t *testing.T) {
	ctx := context.Background()

	t.Run("agency token", func(t *testing.T) {
		f := newResolverFixture(t, credentials.Config{AgencyAccessToken: "agency-1", LocationAccessToken: "location-1"})
		got, err := f.resolver.Resolve(ctx, []string{"Agency-Access-Only"}, nil, nil, nil)
		require.NoError(t, err)
		require.Equal(t, "Bearer agency-1", got)
	})

	t.Run("location token", func(t *testing.T) {
		f := newResolverFixture(t, credentials.Config{AgencyAccessToken: "agency-1", LocationAccessToken: "location-1"})
		got, err := f.resolver.Resolve(ctx, []string{"Location-Access-Only"}, nil, nil, nil)
		require.NoError(t, err)
		require.Equal(t, "Bearer location-1", got)
	})

	t.Run("stored session satisfies location only", func(t *testing.T) {
		f := newResolverFixture(t, credentials.Config{AgencyAccessToken: "agency-1"})
		f.seed(t, "loc-1", "stored-1", 10*time.Minute)

		got, err := f.resolver.Resolve(ctx, []string{"Location-Access-Only"}, nil, url.Values{"locationId": {"loc-1"}}, nil)
		require.NoError(t, err)
		require.Equal(t, "Bearer stored-1", got)
		require.Zero(t, f.refresher.calls.Load())
	})

	t.Run("location only without any source", func(t *testing.T) {
		f := newResolverFixture(t, credentials.Config{})
		_, err := f.resolver.Resolve(ctx, []string{"Location-Access-Only"}, nil, nil, nil)
		require.ErrorIs(t, err, oauthmodel.ErrUnauthenticated)
		require.EqualError(t, err, "Location Access Token required but not available")

		var aerr *oauthmodel.AuthenticationError
		require.ErrorAs(t, err, &aerr)
		require.Equal(t, oauthmodel.LocationTier, aerr.Tier)
	})

	t.Run("agency only without any source", func(t *testing.T) {
		f := newResolverFixture(t, credentials.Config{LocationAccessToken: "location-1"})
		_, err := f.resolver.Resolve(ctx, []string{"Agency-Access-Only"}, nil, nil, nil)
		require.EqualError(t, err, "Agency Access Token required but not available")
	})
}

func TestResolver_Flexible(t *testing.T) {
	ctx := context.Background()

	t.Run("agency before location", func(t *testing.T) {
		f := newResolverFixture(t, credentials.Config{AgencyAccessToken: "agency-1", LocationAccessToken: "location-1"})
		got, err := f.resolver.Resolve(ctx, []string{"Location-Access"}, nil, nil, nil)
		require.NoError(t, err)
		require.Equal(t, "Bearer agency-1", got)
	})

	t.Run("location when no agency token", func(t *testing.T) {
		f := newResolverFixture(t, credentials.Config{LocationAccessToken: "location-1"})
		got, err := f.resolver.Resolve(ctx, []string{"Agency-Access"}, nil, nil, nil)
		require.NoError(t, err)
		require.Equal(t, "Bearer location-1", got)
	})

	t.Run("bearer with a fresh stored session", func(t *testing.T) {
		f := newResolverFixture(t, credentials.Config{})
		f.seed(t, "loc-1", "stored-1", 10*time.Minute)

		got, err := f.resolver.Resolve(ctx, []string{"bearer"}, locationHeader("loc-1"), nil, nil)
		require.NoError(t, err)
		require.Equal(t, "Bearer stored-1", got)
		require.Zero(t, f.refresher.calls.Load())
	})

	t.Run("bearer with a stale stored session refreshes first", func(t *testing.T) {
		f := newResolverFixture(t, credentials.Config{})
		f.seed(t, "loc-1", "stored-1", 10*time.Second)

		got, err := f.resolver.Resolve(ctx, []string{"bearer"}, nil, nil, map[string]any{"locationId": "loc-1"})
		require.NoError(t, err)
		require.Equal(t, "Bearer at-refreshed", got)
		require.EqualValues(t, 1, f.refresher.calls.Load())
	})

	t.Run("failed refresh degrades to the generic error", func(t *testing.T) {
		f := newResolverFixture(t, credentials.Config{})
		f.refresher.err = errors.New("invalid_grant")
		f.seed(t, "loc-1", "stored-1", 10*time.Second)

		_, err := f.resolver.Resolve(ctx, []string{"bearer"}, locationHeader("loc-1"), nil, nil)
		var aerr *oauthmodel.AuthenticationError
		require.ErrorAs(t, err, &aerr)
		require.Equal(t, oauthmodel.GenericTier, aerr.Tier)
		require.NotErrorIs(t, err, oauthmodel.ErrRefreshFailed)
	})

	t.Run("no source", func(t *testing.T) {
		f := newResolverFixture(t, credentials.Config{})
		_, err := f.resolver.Resolve(ctx, []string{"bearer"}, locationHeader("unknown"), nil, nil)
		require.ErrorIs(t, err, oauthmodel.ErrUnauthenticated)
	})
}

func TestResolver_NoRequirements(t *testing.T) {
	ctx := context.Background()

	t.Run("stored session", func(t *testing.T) {
		f := newResolverFixture(t, credentials.Config{AgencyAccessToken: "agency-1"})
		f.seed(t, "co-1", "stored-co", time.Hour)

		h := http.Header{}
		h.Set("X-Company-Id", "co-1")
		got, err := f.resolver.Resolve(ctx, nil, h, nil, nil)
		require.NoError(t, err)
		require.Equal(t, "Bearer stored-co", got)
	})

	t.Run("nothing available is not an error", func(t *testing.T) {
		f := newResolverFixture(t, credentials.Config{AgencyAccessToken: "agency-1"})
		got, err := f.resolver.Resolve(ctx, []string{}, nil, nil, nil)
		require.NoError(t, err)
		require.Empty(t, got)
	})
}

func TestResolver_StorageErrorsPropagate(t *testing.T) {
	f := newResolverFixture(t, credentials.Config{})
	storeErr := errors.New("connection refused")
	broken := &failingStore{Store: f.store, err: storeErr}
	coordinator := refresh.NewCoordinator(broken, f.creds, f.refresher, refresh.WithLogger(zerolog.Nop()))
	resolver := token.NewResolver(f.creds, coordinator, token.WithLogger(zerolog.Nop()))

	_, err := resolver.Resolve(context.Background(), []string{"bearer"}, locationHeader("loc-1"), nil, nil)
	require.ErrorIs(t, err, storeErr)
	require.NotErrorIs(t, err, oauthmodel.ErrUnauthenticated)

	_, err = resolver.GetAuthToken(context.Background(), "loc-1")
	require.ErrorIs(t, err, storeErr)
}

func TestResolver_GetAuthToken(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  credentials.Config
		want string
	}{
		{"private integration token", credentials.Config{PrivateIntegrationToken: "pit", AgencyAccessToken: "agency"}, "Bearer pit"},
		{"agency token", credentials.Config{AgencyAccessToken: "agency", LocationAccessToken: "location"}, "Bearer agency"},
		{"location token", credentials.Config{LocationAccessToken: "location"}, "Bearer location"},
		{"stored session", credentials.Config{}, "Bearer stored-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newResolverFixture(t, tt.cfg)
			f.seed(t, "loc-1", "stored-1", time.Hour)
			got, err := f.resolver.GetAuthToken(ctx, "loc-1")
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	t.Run("nothing available", func(t *testing.T) {
		f := newResolverFixture(t, credentials.Config{})
		got, err := f.resolver.GetAuthToken(ctx, "loc-1")
		require.NoError(t, err)
		require.Empty(t, got)

		got, err = f.resolver.GetAuthToken(ctx, "")
		require.NoError(t, err)
		require.Empty(t, got)
	})
}

func TestResolver_WithoutClientID(t *testing.T) {
	ctx := context.Background()
	newResolver := func(cfg credentials.Config) (*token.Resolver, *countingRefresher) {
		creds := credentials.NewHolder(cfg)
		store := inmemory.New()
		store.SetClientID(cfg.ClientID)
		refresher := &countingRefresher{}
		coordinator := refresh.NewCoordinator(store, creds, refresher, refresh.WithLogger(zerolog.Nop()))
		return token.NewResolver(creds, coordinator, token.WithLogger(zerolog.Nop())), refresher
	}
	query := url.Values{"locationId": {"L1"}}

	t.Run("no requirements yields no credential", func(t *testing.T) {
		resolver, _ := newResolver(credentials.Config{LocationAccessToken: "loc"})
		got, err := resolver.Resolve(ctx, nil, nil, query, nil)
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("missing tier reports the tier", func(t *testing.T) {
		resolver, _ := newResolver(credentials.Config{LocationAccessToken: "loc"})
		_, err := resolver.Resolve(ctx, []string{"Agency-Access-Only"}, nil, query, nil)
		require.EqualError(t, err, "Agency Access Token required but not available")
		require.NotErrorIs(t, err, oauthmodel.ErrNotConfigured)
	})

	t.Run("configured token still used", func(t *testing.T) {
		resolver, _ := newResolver(credentials.Config{LocationAccessToken: "loc"})
		got, err := resolver.Resolve(ctx, []string{"Location-Access-Only"}, nil, query, nil)
		require.NoError(t, err)
		require.Equal(t, "Bearer loc", got)
	})

	t.Run("flexible without any source", func(t *testing.T) {
		resolver, refresher := newResolver(credentials.Config{})
		_, err := resolver.Resolve(ctx, []string{"bearer"}, locationHeader("L1"), nil, nil)
		var aerr *oauthmodel.AuthenticationError
		require.ErrorAs(t, err, &aerr)
		require.Equal(t, oauthmodel.GenericTier, aerr.Tier)
		require.Zero(t, refresher.calls.Load())
	})

	t.Run("get auth token", func(t *testing.T) {
		resolver, _ := newResolver(credentials.Config{})
		got, err := resolver.GetAuthToken(ctx, "L1")
		require.NoError(t, err)
		require.Empty(t, got)
	})
}
