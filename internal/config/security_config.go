package config

const (
	privateIntegrationTokenEnvVar = "HL_PRIVATE_INTEGRATION_TOKEN"
	agencyAccessTokenEnvVar       = "HL_AGENCY_ACCESS_TOKEN"
	locationAccessTokenEnvVar     = "HL_LOCATION_ACCESS_TOKEN"
	sealKeyEnvVar                 = "HL_SEAL_KEY"
)

// SecurityConfig exposes the secrets of the deployment.
type SecurityConfig interface {
	GetPrivateIntegrationToken() string
	GetAgencyAccessToken() string
	GetLocationAccessToken() string

	// GetSealKey returns the base64 key used to encrypt stored tokens, "" to store them in
	// plaintext.
	GetSealKey() string
}

type Security struct {
	src *source
}

var _ SecurityConfig = Security{}

func (s Security) GetPrivateIntegrationToken() string {
	return s.src.get(privateIntegrationTokenEnvVar, "")
}

func (s Security) GetAgencyAccessToken() string {
	return s.src.get(agencyAccessTokenEnvVar, "")
}

func (s Security) GetLocationAccessToken() string {
	return s.src.get(locationAccessTokenEnvVar, "")
}

func (s Security) GetSealKey() string {
	return s.src.get(sealKeyEnvVar, "")
}
