package sessions

import (
	"time"

	"github.com/jrsteele09/go-highlevel-auth/oauthmodel"
)

// Record is the session stored for one (application, resource) pair. A resource is a
// HighLevel company (agency) or location (sub-account).
//
// Store bookkeeping such as created/updated timestamps is kept by the store and never
// returned on a Record.
type Record struct {
	ApplicationID string              `json:"applicationId"`       // Partition key derived from the OAuth client id
	ResourceID    string              `json:"resourceId"`          // Company id or location id
	AccessToken   string              `json:"access_token"`        // Bearer credential, opaque
	RefreshToken  string              `json:"refresh_token"`       // Used to mint a new access token
	ExpiresIn     int64               `json:"expires_in"`          // Seconds, as returned by the token exchange
	ExpireAt      time.Time           `json:"expire_at"`           // Computed by the store at write time
	UserType      oauthmodel.UserType `json:"userType,omitempty"`  // Selects the refresh grant's user_type
	TokenType     string              `json:"token_type,omitempty"`
	Scope         string              `json:"scope,omitempty"`
	CompanyID     string              `json:"companyId,omitempty"`
	LocationID    string              `json:"locationId,omitempty"`
	UserID        string              `json:"userId,omitempty"`
	Extra         map[string]any      `json:"extra,omitempty"`
}

// Clone returns a deep copy so callers never share Extra with a store.
func (r Record) Clone() Record {
	if r.Extra != nil {
		extra := make(map[string]any, len(r.Extra))
		for k, v := range r.Extra {
			extra[k] = v
		}
		r.Extra = extra
	}
	return r
}

// EffectiveUserType returns the stored user type or DefaultUserType when absent.
func (r Record) EffectiveUserType() oauthmodel.UserType {
	if r.UserType == "" {
		return oauthmodel.DefaultUserType
	}
	return r.UserType
}
