package config

import (
	"os"

	ierrors "github.com/jrsteele09/go-highlevel-auth/internal/errors"
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	OAuthConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetSessionStore() StoreKind
	GetPostgresDSN() string
	GetRedisAddr() string
	GetRedisDB() int
	GetRedisPrefix() string
	GetLogLevel() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	OAuth
	Security
}

// New returns a Config backed by the process environment only.
func New() Config {
	return newConfig(nil)
}

// Load returns a Config backed by the process environment and, when path is not empty,
// the YAML file at path. Environment variables win over the file.
func Load(path string) (Config, error) {
	if path == "" {
		return New(), nil
	}
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return newConfig(f.values()), nil
}

func newConfig(fileValues map[string]string) Config {
	src := &source{file: fileValues}
	return mainConfig{
		EnvVars:  EnvVars{src: src},
		OAuth:    OAuth{src: src},
		Security: Security{src: src},
	}
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment without overriding
// variables that are already set. A missing file is ignored unless required is true.
func LoadEnvFile(path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return ierrors.Wrapf(err, "config.LoadEnvFile")
	}
	return ierrors.Wrapf(godotenv.Load(path), "config.LoadEnvFile")
}

// source resolves a setting from the environment, then the config file.
type source struct {
	file map[string]string
}

func (s *source) get(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	if s != nil {
		if value := s.file[envVar]; value != "" {
			return value
		}
	}
	return defaultValue
}
