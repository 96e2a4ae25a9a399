package sessions

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpireAt computes the absolute expiry of record as seen at now.
//
// ExpiresIn wins when positive. Otherwise the exp claim of a JWT access token is used,
// parsed without verification since only the issuer can verify it. A zero time means
// the expiry is unknown.
func ExpireAt(now time.Time, record Record) time.Time {
	if record.ExpiresIn > 0 {
		return now.Add(time.Duration(record.ExpiresIn) * time.Second)
	}
	return jwtExpiry(record.AccessToken)
}

func jwtExpiry(accessToken string) time.Time {
	if accessToken == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Prepare returns the record a store writes for resourceID: a deep copy with the
// partition keys set and ExpireAt derived at now.
func Prepare(now time.Time, applicationID, resourceID string, record Record) Record {
	rec := record.Clone()
	rec.ApplicationID = applicationID
	rec.ResourceID = resourceID
	rec.ExpireAt = ExpireAt(now, rec)
	return rec
}
