package token

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-highlevel-auth/credentials"
	ierrors "github.com/jrsteele09/go-highlevel-auth/internal/errors"
	"github.com/jrsteele09/go-highlevel-auth/oauthmodel"
	"github.com/jrsteele09/go-highlevel-auth/resource"
	"github.com/jrsteele09/go-highlevel-auth/token/refresh"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const bearerPrefix = "Bearer "

// Resolver picks the credential for an outbound request from the configured tokens and
// the stored sessions, by the security requirements the operation declares.
type Resolver struct {
	creds       *credentials.Holder
	coordinator *refresh.Coordinator
	logger      zerolog.Logger
}

type ResolverOption func(*Resolver)

func WithLogger(logger zerolog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func NewResolver(creds *credentials.Holder, coordinator *refresh.Coordinator, options ...ResolverOption) *Resolver {
	r := &Resolver{
		creds:       creds,
		coordinator: coordinator,
		logger:      log.Logger,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Resolve returns the Authorization value for a request, or "" when no credential applies
// and none is required.
//
// A configured private integration token always wins. An operation requiring only one tier
// gets that tier's configured token or a stored session, and an AuthenticationError naming
// the tier otherwise. Flexible requirements try the agency token, the location token and
// then the stored session. With no requirements only the stored session is consulted.
func (r *Resolver) Resolve(ctx context.Context, requirements []string, headers http.Header, query url.Values, body map[string]any) (string, error) {
	cfg := r.creds.Get()
	if cfg.PrivateIntegrationToken != "" {
		return bearer(cfg.PrivateIntegrationToken), nil
	}

	reqs := oauthmodel.ParseSecurityRequirements(requirements)
	stored := func() (string, error) {
		return r.fromStorage(ctx, headers, query, body)
	}

	switch {
	case reqs.Has(oauthmodel.AgencyAccessOnly):
		return r.firstOf(oauthmodel.AgencyTier, stored, cfg.AgencyAccessToken)
	case reqs.Has(oauthmodel.LocationAccessOnly):
		return r.firstOf(oauthmodel.LocationTier, stored, cfg.LocationAccessToken)
	case reqs.Flexible():
		return r.firstOf(oauthmodel.GenericTier, stored, cfg.AgencyAccessToken, cfg.LocationAccessToken)
	}

	token, err := stored()
	if err != nil || token == "" {
		return "", err
	}
	return bearer(token), nil
}

// firstOf returns the first non-empty configured token, else the stored one, else an
// AuthenticationError for tier.
func (r *Resolver) firstOf(tier oauthmodel.AccessTier, stored func() (string, error), configured ...string) (string, error) {
	for _, token := range configured {
		if token != "" {
			return bearer(token), nil
		}
	}
	token, err := stored()
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", oauthmodel.NewAuthenticationError(tier)
	}
	return bearer(token), nil
}

// fromStorage resolves the resource id of the request and returns the stored session's
// access token, refreshing it first when it is about to expire.
func (r *Resolver) fromStorage(ctx context.Context, headers http.Header, query url.Values, body map[string]any) (string, error) {
	resourceID, ok := resource.ExtractID(headers, query, body)
	if !ok {
		return "", nil
	}
	return r.storedToken(ctx, resourceID)
}

// storedToken returns "" when no client id is bound, since sessions are partitioned by it.
func (r *Resolver) storedToken(ctx context.Context, resourceID string) (string, error) {
	if r.creds.Get().ClientID == "" {
		return "", nil
	}
	record, err := r.coordinator.Store().GetSession(ctx, resourceID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", nil
	}

	token, err := r.coordinator.EnsureFresh(ctx, resourceID, record)
	if ierrors.Is(err, oauthmodel.ErrRefreshFailed) {
		r.logger.Warn().Err(err).Str("resource_id", resourceID).Msg("stored session unavailable after failed refresh")
		return "", nil
	}
	return token, err
}

// GetAuthToken returns the Authorization value for resourceID when an operation declares
// no security metadata: private integration token, agency token, location token, then the
// stored session. It returns "" when none is available.
func (r *Resolver) GetAuthToken(ctx context.Context, resourceID string) (string, error) {
	cfg := r.creds.Get()
	for _, token := range []string{cfg.PrivateIntegrationToken, cfg.AgencyAccessToken, cfg.LocationAccessToken} {
		if token != "" {
			return bearer(token), nil
		}
	}
	if resourceID == "" {
		return "", nil
	}

	token, err := r.storedToken(ctx, resourceID)
	if err != nil || token == "" {
		return "", err
	}
	return bearer(token), nil
}

func bearer(token string) string {
	return bearerPrefix + token
}
