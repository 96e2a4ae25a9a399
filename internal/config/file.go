package config

import (
	"os"
	"strconv"

	ierrors "github.com/jrsteele09/go-highlevel-auth/internal/errors"
	"gopkg.in/yaml.v3"
)

// File is the YAML form of the configuration.
//
//	client_id: app123-xyz
//	client_secret: s3cret
//	sessions:
//	  store: redis
//	  redis:
//	    addr: localhost:6379
//	    db: 2
type File struct {
	PrivateIntegrationToken string       `yaml:"private_integration_token"`
	AgencyAccessToken       string       `yaml:"agency_access_token"`
	LocationAccessToken     string       `yaml:"location_access_token"`
	ClientID                string       `yaml:"client_id"`
	ClientSecret            string       `yaml:"client_secret"`
	APIBaseURL              string       `yaml:"api_base_url"`
	LogLevel                string       `yaml:"log_level"`
	Port                    string       `yaml:"port"`
	Sessions                SessionsFile `yaml:"sessions"`
}

type SessionsFile struct {
	Store    string `yaml:"store"`
	SealKey  string `yaml:"seal_key"`
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
	Redis struct {
		Addr   string `yaml:"addr"`
		DB     int    `yaml:"db"`
		Prefix string `yaml:"prefix"`
	} `yaml:"redis"`
}

// ReadFile parses the YAML configuration file at path.
func ReadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ierrors.Wrapf(err, "config.ReadFile")
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, ierrors.Wrapf(err, "config.ReadFile %s", path)
	}
	return &f, nil
}

// values keys the file settings by the environment variable they stand in for.
func (f *File) values() map[string]string {
	v := map[string]string{
		privateIntegrationTokenEnvVar: f.PrivateIntegrationToken,
		agencyAccessTokenEnvVar:       f.AgencyAccessToken,
		locationAccessTokenEnvVar:     f.LocationAccessToken,
		clientIDEnvVar:                f.ClientID,
		clientSecretEnvVar:            f.ClientSecret,
		apiBaseURLEnvVar:              f.APIBaseURL,
		logLevelEnvVar:                f.LogLevel,
		portEnvVar:                    f.Port,
		sessionStoreEnvVar:            f.Sessions.Store,
		sealKeyEnvVar:                 f.Sessions.SealKey,
		postgresDSNEnvVar:             f.Sessions.Postgres.DSN,
		redisAddrEnvVar:               f.Sessions.Redis.Addr,
		redisPrefixEnvVar:             f.Sessions.Redis.Prefix,
	}
	if f.Sessions.Redis.DB != 0 {
		v[redisDBEnvVar] = strconv.Itoa(f.Sessions.Redis.DB)
	}
	return v
}
