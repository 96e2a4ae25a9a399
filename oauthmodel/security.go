package oauthmodel

// SecurityRequirement is the tag a generated API operation declares to say which
// credential tier may authorise it.
type SecurityRequirement string

const (
	// BearerSecurity accepts any available credential.
	BearerSecurity SecurityRequirement = "bearer"

	// AgencyAccess accepts an agency token, falling back to a location token or a stored session.
	AgencyAccess SecurityRequirement = "Agency-Access"

	// LocationAccess accepts a location token, falling back to an agency token or a stored session.
	LocationAccess SecurityRequirement = "Location-Access"

	// AgencyAccessOnly must be satisfied by the agency token or an agency session.
	AgencyAccessOnly SecurityRequirement = "Agency-Access-Only"

	// LocationAccessOnly must be satisfied by the location token or a location session.
	LocationAccessOnly SecurityRequirement = "Location-Access-Only"
)

// AccessTier identifies which credential tier a failed resolution required.
type AccessTier string

const (
	AgencyTier   AccessTier = "agency"
	LocationTier AccessTier = "location"
	GenericTier  AccessTier = "generic"
)

// UserType is the HighLevel principal a session belongs to. It selects the
// user_type sent with a refresh grant.
type UserType string

const (
	UserTypeLocation UserType = "Location"
	UserTypeCompany  UserType = "Company"
)

// DefaultUserType is used when a stored session carries no user type.
// It mirrors the behaviour of the HighLevel SDKs and is not inferred from the token.
const DefaultUserType = UserTypeLocation

// SecurityRequirements is the set of tags declared by one API operation.
type SecurityRequirements []SecurityRequirement

// ParseSecurityRequirements converts raw tags to requirements, dropping empty entries.
func ParseSecurityRequirements(raw []string) SecurityRequirements {
	reqs := make(SecurityRequirements, 0, len(raw))
	for _, r := range raw {
		if r == "" {
			continue
		}
		reqs = append(reqs, SecurityRequirement(r))
	}
	return reqs
}

func (s SecurityRequirements) Has(req SecurityRequirement) bool {
	for _, r := range s {
		if r == req {
			return true
		}
	}
	return false
}

// Flexible reports whether any requirement can be met by more than one tier.
func (s SecurityRequirements) Flexible() bool {
	return s.Has(BearerSecurity) || s.Has(AgencyAccess) || s.Has(LocationAccess)
}
