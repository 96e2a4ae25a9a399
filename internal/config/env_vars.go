package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	portEnvVar         = "PORT"
	sessionStoreEnvVar = "HL_SESSION_STORE"
	postgresDSNEnvVar  = "HL_POSTGRES_DSN"
	redisAddrEnvVar    = "HL_REDIS_ADDR"
	redisDBEnvVar      = "HL_REDIS_DB"
	redisPrefixEnvVar  = "HL_REDIS_PREFIX"
	logLevelEnvVar     = "LOG_LEVEL"
)

// StoreKind selects the session store backend.
type StoreKind string

const (
	MemoryStore   StoreKind = "memory"
	PostgresStore StoreKind = "postgres"
	RedisStore    StoreKind = "redis"
)

type EnvVars struct {
	src *source
}

var _ EnvConfig = EnvVars{}

// GetPort returns the listen address of the install callback server, e.g. ":8080".
func (e EnvVars) GetPort() string {
	port := e.src.get(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (e EnvVars) GetSessionStore() StoreKind {
	return StoreKind(e.src.get(sessionStoreEnvVar, string(MemoryStore)))
}

func (e EnvVars) GetPostgresDSN() string {
	return e.src.get(postgresDSNEnvVar, "")
}

func (e EnvVars) GetRedisAddr() string {
	return e.src.get(redisAddrEnvVar, "localhost:6379")
}

// GetRedisDB returns the redis database number, 0 when unset or not a number.
func (e EnvVars) GetRedisDB() int {
	db, err := strconv.Atoi(e.src.get(redisDBEnvVar, "0"))
	if err != nil || db < 0 {
		return 0
	}
	return db
}

func (e EnvVars) GetRedisPrefix() string {
	return e.src.get(redisPrefixEnvVar, "hlauth")
}

func (e EnvVars) GetLogLevel() string {
	return e.src.get(logLevelEnvVar, "info")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
