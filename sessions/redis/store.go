// Package redis stores sessions as Redis hashes, one per (application id, resource id),
// with a per-application set indexing the stored resource ids.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	ierrors "github.com/jrsteele09/go-highlevel-auth/internal/errors"
	"github.com/jrsteele09/go-highlevel-auth/oauthmodel"
	"github.com/jrsteele09/go-highlevel-auth/sessions"
	"github.com/jrsteele09/go-highlevel-auth/sessions/seal"
	rdb "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultPrefix = "hlauth"

const (
	fieldAccessToken  = "access_token"
	fieldRefreshToken = "refresh_token"
	fieldExpiresIn    = "expires_in"
	fieldExpireAt     = "expire_at"
	fieldUserType     = "user_type"
	fieldTokenType    = "token_type"
	fieldScope        = "scope"
	fieldCompanyID    = "company_id"
	fieldLocationID   = "location_id"
	fieldUserID       = "user_id"
	fieldExtra        = "extra"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
)

var _ sessions.Store = (*Store)(nil)

type Store struct {
	sessions.Partition

	opts    *rdb.Options
	client  *rdb.Client
	ownsCli bool
	mu      sync.RWMutex
	prefix  string
	sealer  seal.Sealer
	nowFunc func() time.Time
	logger  zerolog.Logger
}

type Option func(*Store)

// WithClient adopts an existing client; Disconnect leaves it open.
func WithClient(client *rdb.Client) Option {
	return func(s *Store) {
		s.client = client
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

func WithSealer(sealer seal.Sealer) Option {
	return func(s *Store) {
		s.sealer = sealer
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func New(opts *rdb.Options, options ...Option) *Store {
	s := &Store{
		opts:    opts,
		prefix:  DefaultPrefix,
		sealer:  seal.Plain{},
		nowFunc: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		if s.opts == nil {
			return ierrors.Wrapf(ierrors.ErrMissingDSN, "redis.Init")
		}
		s.client = rdb.NewClient(s.opts)
		s.ownsCli = true
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		if s.ownsCli {
			_ = s.client.Close()
			s.client = nil
			s.ownsCli = false
		}
		return ierrors.Wrapf(err, "redis.Init ping")
	}
	s.logger.Debug().Str("prefix", s.prefix).Msg("redis session store ready")
	return nil
}

func (s *Store) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil || !s.ownsCli {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.ownsCli = false
	if err != nil {
		return ierrors.Wrapf(err, "redis.Disconnect")
	}
	return nil
}

func (s *Store) recordKey(appID, resourceID string) string {
	return s.prefix + ":session:" + appID + ":" + resourceID
}

func (s *Store) indexKey(appID string) string {
	return s.prefix + ":sessions:" + appID
}

func (s *Store) conn(op string) (*rdb.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, ierrors.Wrapf(ierrors.ErrStoreNotConnected, "redis.%s", op)
	}
	return s.client, nil
}

func (s *Store) scope(op, resourceID string) (*rdb.Client, string, error) {
	appID, err := s.ApplicationID(op)
	if err != nil {
		return nil, "", err
	}
	if resourceID == "" {
		return nil, "", ierrors.Wrapf(ierrors.ErrMissingResourceID, "redis.%s", op)
	}
	c, err := s.conn(op)
	if err != nil {
		return nil, "", err
	}
	return c, appID, nil
}

func (s *Store) SetSession(ctx context.Context, resourceID string, record sessions.Record) error {
	c, appID, err := s.scope("SetSession", resourceID)
	if err != nil {
		return err
	}

	now := s.nowFunc()
	rec := sessions.Prepare(now, appID, resourceID, record)
	key := s.recordKey(appID, resourceID)

	createdAt := now
	if existing, err := c.HGet(ctx, key, fieldCreatedAt).Result(); err == nil {
		if t, perr := time.Parse(time.RFC3339Nano, existing); perr == nil {
			createdAt = t
		}
	} else if !errors.Is(err, rdb.Nil) {
		return ierrors.Wrapf(err, "redis.SetSession")
	}

	fields, err := s.encode(rec, createdAt, now)
	if err != nil {
		return ierrors.Wrapf(err, "redis.SetSession encode")
	}

	if _, err := c.TxPipelined(ctx, func(pipe rdb.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		pipe.SAdd(ctx, s.indexKey(appID), resourceID)
		return nil
	}); err != nil {
		return ierrors.Wrapf(err, "redis.SetSession")
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, resourceID string) (*sessions.Record, error) {
	c, appID, err := s.scope("GetSession", resourceID)
	if err != nil {
		return nil, err
	}
	fields, err := c.HGetAll(ctx, s.recordKey(appID, resourceID)).Result()
	if err != nil {
		return nil, ierrors.Wrapf(err, "redis.GetSession")
	}
	if len(fields) == 0 {
		return nil, nil
	}
	rec, err := s.decode(appID, resourceID, fields)
	if err != nil {
		return nil, ierrors.Wrapf(err, "redis.GetSession decode")
	}
	return rec, nil
}

func (s *Store) DeleteSession(ctx context.Context, resourceID string) error {
	c, appID, err := s.scope("DeleteSession", resourceID)
	if err != nil {
		return err
	}
	if _, err := c.TxPipelined(ctx, func(pipe rdb.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(appID, resourceID))
		pipe.SRem(ctx, s.indexKey(appID), resourceID)
		return nil
	}); err != nil {
		return ierrors.Wrapf(err, "redis.DeleteSession")
	}
	return nil
}

func (s *Store) GetAccessToken(ctx context.Context, resourceID string) (string, bool, error) {
	return s.projectToken(ctx, "GetAccessToken", fieldAccessToken, resourceID)
}

func (s *Store) GetRefreshToken(ctx context.Context, resourceID string) (string, bool, error) {
	return s.projectToken(ctx, "GetRefreshToken", fieldRefreshToken, resourceID)
}

func (s *Store) projectToken(ctx context.Context, op, field, resourceID string) (string, bool, error) {
	c, appID, err := s.scope(op, resourceID)
	if err != nil {
		return "", false, err
	}
	sealed, err := c.HGet(ctx, s.recordKey(appID, resourceID), field).Result()
	if errors.Is(err, rdb.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ierrors.Wrapf(err, "redis.%s", op)
	}
	token, err := s.sealer.Open(sealed)
	if err != nil {
		return "", false, ierrors.Wrapf(err, "redis.%s", op)
	}
	return token, token != "", nil
}

func (s *Store) GetSessionsByApplication(ctx context.Context) ([]sessions.Record, error) {
	appID, err := s.ApplicationID("GetSessionsByApplication")
	if err != nil {
		return nil, err
	}
	c, err := s.conn("GetSessionsByApplication")
	if err != nil {
		return nil, err
	}

	ids, err := c.SMembers(ctx, s.indexKey(appID)).Result()
	if err != nil {
		return nil, ierrors.Wrapf(err, "redis.GetSessionsByApplication")
	}

	cmds := make([]*rdb.MapStringStringCmd, len(ids))
	if _, err := c.Pipelined(ctx, func(pipe rdb.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.recordKey(appID, id))
		}
		return nil
	}); err != nil {
		return nil, ierrors.Wrapf(err, "redis.GetSessionsByApplication")
	}

	type listed struct {
		createdAt time.Time
		record    sessions.Record
	}
	items := make([]listed, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := s.decode(appID, ids[i], fields)
		if err != nil {
			return nil, ierrors.Wrapf(err, "redis.GetSessionsByApplication decode %s", ids[i])
		}
		createdAt, _ := time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])
		items = append(items, listed{createdAt: createdAt, record: *rec})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].createdAt.Equal(items[j].createdAt) {
			return items[i].record.ResourceID < items[j].record.ResourceID
		}
		return items[i].createdAt.Before(items[j].createdAt)
	})

	records := make([]sessions.Record, 0, len(items))
	for _, it := range items {
		records = append(records, it.record)
	}
	return records, nil
}

func (s *Store) encode(rec sessions.Record, createdAt, updatedAt time.Time) (map[string]any, error) {
	accessToken, err := s.sealer.Seal(rec.AccessToken)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.sealer.Seal(rec.RefreshToken)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		fieldAccessToken:  accessToken,
		fieldRefreshToken: refreshToken,
		fieldExpiresIn:    strconv.FormatInt(rec.ExpiresIn, 10),
		fieldUserType:     string(rec.UserType),
		fieldTokenType:    rec.TokenType,
		fieldScope:        rec.Scope,
		fieldCompanyID:    rec.CompanyID,
		fieldLocationID:   rec.LocationID,
		fieldUserID:       rec.UserID,
		fieldCreatedAt:    createdAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt:    updatedAt.UTC().Format(time.RFC3339Nano),
	}
	if !rec.ExpireAt.IsZero() {
		fields[fieldExpireAt] = rec.ExpireAt.UTC().Format(time.RFC3339Nano)
	}
	if len(rec.Extra) > 0 {
		extra, err := json.Marshal(rec.Extra)
		if err != nil {
			return nil, err
		}
		fields[fieldExtra] = string(extra)
	}
	return fields, nil
}

func (s *Store) decode(appID, resourceID string, fields map[string]string) (*sessions.Record, error) {
	rec := sessions.Record{
		ApplicationID: appID,
		ResourceID:    resourceID,
		UserType:      oauthmodel.UserType(fields[fieldUserType]),
		TokenType:     fields[fieldTokenType],
		Scope:         fields[fieldScope],
		CompanyID:     fields[fieldCompanyID],
		LocationID:    fields[fieldLocationID],
		UserID:        fields[fieldUserID],
	}

	var err error
	if rec.AccessToken, err = s.sealer.Open(fields[fieldAccessToken]); err != nil {
		return nil, err
	}
	if rec.RefreshToken, err = s.sealer.Open(fields[fieldRefreshToken]); err != nil {
		return nil, err
	}
	if v := fields[fieldExpiresIn]; v != "" {
		if rec.ExpiresIn, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, err
		}
	}
	if v := fields[fieldExpireAt]; v != "" {
		if rec.ExpireAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, err
		}
	}
	if v := fields[fieldExtra]; v != "" {
		if err := json.Unmarshal([]byte(v), &rec.Extra); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}
