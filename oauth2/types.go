package oauth2

import "github.com/jrsteele09/go-highlevel-auth/oauthmodel"

// GrantType represents the OAuth 2.0 grant type sent to the HighLevel token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges the code received on the marketplace install redirect.
	// Token request includes: client_id, client_secret, code, user_type, redirect_uri
	// Returns: access_token, refresh_token, expires_in and the installing company/location
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenCodeGrant exchanges a refresh token for a new access token.
	// Token request includes: client_id, client_secret, refresh_token, user_type
	// Returns: new access_token and usually a rotated refresh_token
	RefreshTokenCodeGrant GrantType = "refresh_token"
)

// RefreshRequest carries the inputs of a refresh_token grant.
type RefreshRequest struct {
	RefreshToken string
	ClientID     string
	ClientSecret string

	// UserType selects whether a Company or a Location token is minted.
	UserType oauthmodel.UserType
}

// CodeRequest carries the inputs of an authorization_code grant.
type CodeRequest struct {
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	UserType     oauthmodel.UserType
}

// LocationTokenRequest asks for a location token on behalf of an agency installation.
type LocationTokenRequest struct {
	// CompanyAccessToken is the agency (Company user type) access token.
	CompanyAccessToken string
	CompanyID          string
	LocationID         string
}
