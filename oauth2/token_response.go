package oauth2

import (
	"encoding/json"

	"github.com/jrsteele09/go-highlevel-auth/oauthmodel"
)

// TokenResponse is the body returned by the HighLevel token endpoints.
type TokenResponse struct {
	// AccessToken is the bearer credential for API calls.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	// Lifespan: about one day
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Example: 86399
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// RefreshToken mints the next access token. It may be omitted when not rotated,
	// in which case the previous refresh token stays valid.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the space separated list of granted scopes.
	Scope string `json:"scope,omitempty"`

	// UserType is "Company" for agency tokens and "Location" for sub-account tokens.
	UserType oauthmodel.UserType `json:"userType,omitempty"`

	CompanyID  string `json:"companyId,omitempty"`
	LocationID string `json:"locationId,omitempty"`
	UserID     string `json:"userId,omitempty"`

	// Extra holds every other field of the response (planId, isBulkInstallation,
	// approvedLocations, ...).
	Extra map[string]any `json:"-"`
}

var knownFields = map[string]struct{}{
	"access_token":  {},
	"token_type":    {},
	"expires_in":    {},
	"refresh_token": {},
	"scope":         {},
	"userType":      {},
	"companyId":     {},
	"locationId":    {},
	"userId":        {},
}

func (t *TokenResponse) UnmarshalJSON(data []byte) error {
	type plain TokenResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k, v := range all {
		if _, known := knownFields[k]; known {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]any)
		}
		p.Extra[k] = v
	}

	*t = TokenResponse(p)
	return nil
}

// ResourceID returns the id a session minted from this response is stored under:
// the location for Location tokens, the company otherwise.
func (t *TokenResponse) ResourceID() string {
	if t.UserType == oauthmodel.UserTypeLocation && t.LocationID != "" {
		return t.LocationID
	}
	if t.CompanyID != "" {
		return t.CompanyID
	}
	return t.LocationID
}
