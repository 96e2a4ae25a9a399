package oauthmodel

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured   = errors.New("not configured")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrRefreshFailed   = errors.New("token refresh failed")
)

// ConfigurationError is returned when the subsystem is used before its required setup,
// for example a resource-scoped session store call before a client id was bound.
// It is fatal and never retried.
type ConfigurationError struct {
	Op  string
	Msg string
}

func (e *ConfigurationError) Error() string {
	if e.Op == "" {
		return "configuration error: " + e.Msg
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Op, e.Msg)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrNotConfigured
}

// AuthenticationError reports that no credential satisfied the declared security requirements.
type AuthenticationError struct {
	Tier AccessTier
	Msg  string
}

func (e *AuthenticationError) Error() string {
	return e.Msg
}

func (e *AuthenticationError) Is(target error) bool {
	return target == ErrUnauthenticated
}

// RefreshError wraps a failed OAuth refresh grant for a stored session.
type RefreshError struct {
	ResourceID string
	Err        error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh token for resource %q: %v", e.ResourceID, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

func (e *RefreshError) Is(target error) bool {
	return target == ErrRefreshFailed
}

// NewAuthenticationError builds the descriptive error for an unsatisfied access tier.
func NewAuthenticationError(tier AccessTier) *AuthenticationError {
	switch tier {
	case AgencyTier:
		return &AuthenticationError{Tier: tier, Msg: "Agency Access Token required but not available"}
	case LocationTier:
		return &AuthenticationError{Tier: tier, Msg: "Location Access Token required but not available"}
	default:
		return &AuthenticationError{Tier: GenericTier, Msg: "No authentication token available for the required security (bearer, Agency-Access or Location-Access)"}
	}
}
