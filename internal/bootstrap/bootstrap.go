package bootstrap

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-highlevel-auth/client"
	"github.com/jrsteele09/go-highlevel-auth/internal/config"
	"github.com/jrsteele09/go-highlevel-auth/oauth2"
	"github.com/jrsteele09/go-highlevel-auth/sessions"
	"github.com/jrsteele09/go-highlevel-auth/sessions/postgres"
	"github.com/jrsteele09/go-highlevel-auth/sessions/redis"
	"github.com/jrsteele09/go-highlevel-auth/sessions/seal"
	rdb "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// OpenStore returns the configured durable session store, or nil for the in-memory default.
// The store is not connected; client.New initialises it.
func OpenStore(cfg config.Config, logger zerolog.Logger) (sessions.Store, error) {
	sealer, err := Sealer(cfg)
	if err != nil {
		return nil, err
	}

	switch kind := cfg.GetSessionStore(); kind {
	case config.MemoryStore, "":
		return nil, nil
	case config.PostgresStore:
		return postgres.New(cfg.GetPostgresDSN(),
			postgres.WithSealer(sealer),
			postgres.WithLogger(logger),
		), nil
	case config.RedisStore:
		return redis.New(&rdb.Options{Addr: cfg.GetRedisAddr(), DB: cfg.GetRedisDB()},
			redis.WithPrefix(cfg.GetRedisPrefix()),
			redis.WithSealer(sealer),
			redis.WithLogger(logger),
		), nil
	default:
		return nil, fmt.Errorf("unknown session store %q (want memory, postgres or redis)", kind)
	}
}

// Sealer returns the secretbox sealer for the configured key, or the plaintext sealer when
// no key is set.
func Sealer(cfg config.Config) (seal.Sealer, error) {
	key := cfg.GetSealKey()
	if key == "" {
		return seal.Plain{}, nil
	}
	return seal.NewSecretBoxFromBase64(key)
}

// NewClient builds a client from cfg over the configured session store and the HighLevel
// OAuth endpoints under cfg.GetAPIBaseURL. The caller closes it.
func NewClient(ctx context.Context, cfg config.Config, logger zerolog.Logger, options ...client.Option) (*client.Client, error) {
	store, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	exchanger := oauth2.NewClient(
		oauth2.WithBaseURL(cfg.GetAPIBaseURL()),
		oauth2.WithLogger(logger),
	)

	base := []client.Option{
		client.WithExchanger(exchanger),
		client.WithLogger(logger),
	}
	if store != nil {
		base = append(base, client.WithSessionStore(store))
	}
	return client.New(ctx, config.Credentials(cfg), append(base, options...)...)
}
