package config

import "github.com/jrsteele09/go-highlevel-auth/credentials"

const (
	clientIDEnvVar     = "HL_CLIENT_ID"
	clientSecretEnvVar = "HL_CLIENT_SECRET"
	apiBaseURLEnvVar   = "HL_API_BASE_URL"

	defaultAPIBaseURL = "https://services.leadconnectorhq.com"
)

type OAuthConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetAPIBaseURL() string
}

type OAuth struct {
	src *source
}

var _ OAuthConfig = OAuth{}

func (o OAuth) GetClientID() string {
	return o.src.get(clientIDEnvVar, "")
}

func (o OAuth) GetClientSecret() string {
	return o.src.get(clientSecretEnvVar, "")
}

// GetAPIBaseURL returns the HighLevel API root the token endpoints live under.
func (o OAuth) GetAPIBaseURL() string {
	return o.src.get(apiBaseURLEnvVar, defaultAPIBaseURL)
}

// Credentials collects the credential settings of cfg.
func Credentials(cfg Config) credentials.Config {
	return credentials.Config{
		PrivateIntegrationToken: cfg.GetPrivateIntegrationToken(),
		AgencyAccessToken:       cfg.GetAgencyAccessToken(),
		LocationAccessToken:     cfg.GetLocationAccessToken(),
		ClientID:                cfg.GetClientID(),
		ClientSecret:            cfg.GetClientSecret(),
	}
}
