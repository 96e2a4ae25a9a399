// Package postgres is the durable session store. Records live in one table with a unique
// (application_id, resource_id) index so that concurrent upserts from several processes
// resolve to the last writer instead of a duplicate row or a constraint violation.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	ierrors "github.com/jrsteele09/go-highlevel-auth/internal/errors"
	"github.com/jrsteele09/go-highlevel-auth/oauthmodel"
	"github.com/jrsteele09/go-highlevel-auth/sessions"
	"github.com/jrsteele09/go-highlevel-auth/sessions/seal"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const Schema = `CREATE TABLE IF NOT EXISTS hl_sessions (
	id             UUID PRIMARY KEY,
	application_id TEXT NOT NULL,
	resource_id    TEXT NOT NULL,
	access_token   TEXT NOT NULL,
	refresh_token  TEXT NOT NULL DEFAULT '',
	expires_in     BIGINT NOT NULL DEFAULT 0,
	expire_at      TIMESTAMPTZ NULL,
	user_type      TEXT NOT NULL DEFAULT '',
	token_type     TEXT NOT NULL DEFAULT '',
	scope          TEXT NOT NULL DEFAULT '',
	company_id     TEXT NOT NULL DEFAULT '',
	location_id    TEXT NOT NULL DEFAULT '',
	user_id        TEXT NOT NULL DEFAULT '',
	extra          JSONB NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT hl_sessions_application_resource_key UNIQUE (application_id, resource_id)
)`

const recordColumns = `application_id, resource_id, access_token, refresh_token, expires_in, expire_at,
	user_type, token_type, scope, company_id, location_id, user_id, extra`

const upsertSQL = `INSERT INTO hl_sessions (id, application_id, resource_id, access_token, refresh_token,
	expires_in, expire_at, user_type, token_type, scope, company_id, location_id, user_id, extra,
	created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
ON CONFLICT (application_id, resource_id) DO UPDATE SET
	access_token  = EXCLUDED.access_token,
	refresh_token = EXCLUDED.refresh_token,
	expires_in    = EXCLUDED.expires_in,
	expire_at     = EXCLUDED.expire_at,
	user_type     = EXCLUDED.user_type,
	token_type    = EXCLUDED.token_type,
	scope         = EXCLUDED.scope,
	company_id    = EXCLUDED.company_id,
	location_id   = EXCLUDED.location_id,
	user_id       = EXCLUDED.user_id,
	extra         = EXCLUDED.extra,
	updated_at    = EXCLUDED.updated_at`

var _ sessions.Store = (*Store)(nil)

// Store persists sessions in PostgreSQL through the pgx database/sql driver.
type Store struct {
	sessions.Partition

	dsn     string
	db      *sql.DB
	ownsDB  bool
	ready   bool
	mu      sync.RWMutex
	sealer  seal.Sealer
	nowFunc func() time.Time
	logger  zerolog.Logger
}

type Option func(*Store)

// WithDB adopts an existing pool instead of opening one from the DSN.
func WithDB(db *sql.DB) Option {
	return func(s *Store) {
		s.db = db
	}
}

// WithSealer encrypts access and refresh tokens at rest.
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

func New(dsn string, options ...Option) *Store {
	s := &Store{
		dsn:     dsn,
		sealer:  seal.Plain{},
		nowFunc: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Init opens the pool when needed, checks connectivity and ensures the schema exists.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}

	if s.db == nil {
		if s.dsn == "" {
			return ierrors.Wrapf(ierrors.ErrMissingDSN, "postgres.Init")
		}
		db, err := sql.Open("pgx", s.dsn)
		if err != nil {
			return ierrors.Wrapf(err, "postgres.Init sql.Open")
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(15 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)
		s.db = db
		s.ownsDB = true
	}

	if err := s.db.PingContext(ctx); err != nil {
		return ierrors.Wrapf(err, "postgres.Init ping")
	}
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return ierrors.Wrapf(err, "postgres.Init schema")
	}

	s.ready = true
	s.logger.Debug().Msg("postgres session store ready")
	return nil
}

// Disconnect closes a pool opened by Init. An adopted pool is left to its owner.
func (s *Store) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	s.ready = false
	if !s.ownsDB {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.ownsDB = false
	if err != nil {
		return ierrors.Wrapf(err, "postgres.Disconnect")
	}
	return nil
}

func (s *Store) conn(op string) (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready || s.db == nil {
		return nil, ierrors.Wrapf(ierrors.ErrStoreNotConnected, "postgres.%s", op)
	}
	return s.db, nil
}

func (s *Store) scope(op, resourceID string) (*sql.DB, string, error) {
	appID, err := s.ApplicationID(op)
	if err != nil {
		return nil, "", err
	}
	if resourceID == "" {
		return nil, "", ierrors.Wrapf(ierrors.ErrMissingResourceID, "postgres.%s", op)
	}
	db, err := s.conn(op)
	if err != nil {
		return nil, "", err
	}
	return db, appID, nil
}

func (s *Store) SetSession(ctx context.Context, resourceID string, record sessions.Record) error {
	db, appID, err := s.scope("SetSession", resourceID)
	if err != nil {
		return err
	}

	now := s.nowFunc()
	rec := sessions.Prepare(now, appID, resourceID, record)

	accessToken, err := s.sealer.Seal(rec.AccessToken)
	if err != nil {
		return ierrors.Wrapf(err, "postgres.SetSession seal access token")
	}
	refreshToken, err := s.sealer.Seal(rec.RefreshToken)
	if err != nil {
		return ierrors.Wrapf(err, "postgres.SetSession seal refresh token")
	}

	var extra []byte
	if len(rec.Extra) > 0 {
		if extra, err = json.Marshal(rec.Extra); err != nil {
			return ierrors.Wrapf(err, "postgres.SetSession marshal extra")
		}
	}

	expireAt := sql.NullTime{Time: rec.ExpireAt, Valid: !rec.ExpireAt.IsZero()}

	if _, err := db.ExecContext(ctx, upsertSQL,
		uuid.NewString(),
		rec.ApplicationID,
		rec.ResourceID,
		accessToken,
		refreshToken,
		rec.ExpiresIn,
		expireAt,
		string(rec.UserType),
		rec.TokenType,
		rec.Scope,
		rec.CompanyID,
		rec.LocationID,
		rec.UserID,
		extra,
		now,
	); err != nil {
		return ierrors.Wrapf(err, "postgres.SetSession upsert")
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, resourceID string) (*sessions.Record, error) {
	db, appID, err := s.scope("GetSession", resourceID)
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM hl_sessions WHERE application_id = $1 AND resource_id = $2`,
		appID, resourceID)
	rec, err := s.scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ierrors.Wrapf(err, "postgres.GetSession")
	}
	return rec, nil
}

func (s *Store) DeleteSession(ctx context.Context, resourceID string) error {
	db, appID, err := s.scope("DeleteSession", resourceID)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx,
		`DELETE FROM hl_sessions WHERE application_id = $1 AND resource_id = $2`,
		appID, resourceID); err != nil {
		return ierrors.Wrapf(err, "postgres.DeleteSession")
	}
	return nil
}

func (s *Store) GetAccessToken(ctx context.Context, resourceID string) (string, bool, error) {
	return s.projectToken(ctx, "GetAccessToken", "access_token", resourceID)
}

func (s *Store) GetRefreshToken(ctx context.Context, resourceID string) (string, bool, error) {
	return s.projectToken(ctx, "GetRefreshToken", "refresh_token", resourceID)
}

// projectToken reads a single token column. column is one of two constants, never caller input.
func (s *Store) projectToken(ctx context.Context, op, column, resourceID string) (string, bool, error) {
	db, appID, err := s.scope(op, resourceID)
	if err != nil {
		return "", false, err
	}

	var sealed string
	err = db.QueryRowContext(ctx,
		`SELECT `+column+` FROM hl_sessions WHERE application_id = $1 AND resource_id = $2`,
		appID, resourceID).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ierrors.Wrapf(err, "postgres.%s", op)
	}

	token, err := s.sealer.Open(sealed)
	if err != nil {
		return "", false, ierrors.Wrapf(err, "postgres.%s", op)
	}
	if token == "" {
		return "", false, nil
	}
	return token, true, nil
}

func (s *Store) GetSessionsByApplication(ctx context.Context) ([]sessions.Record, error) {
	appID, err := s.ApplicationID("GetSessionsByApplication")
	if err != nil {
		return nil, err
	}
	db, err := s.conn("GetSessionsByApplication")
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM hl_sessions WHERE application_id = $1 ORDER BY created_at, resource_id`,
		appID)
	if err != nil {
		return nil, ierrors.Wrapf(err, "postgres.GetSessionsByApplication")
	}
	defer rows.Close()

	records := make([]sessions.Record, 0)
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, ierrors.Wrapf(err, "postgres.GetSessionsByApplication scan")
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, ierrors.Wrapf(err, "postgres.GetSessionsByApplication rows")
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanRecord(row scanner) (*sessions.Record, error) {
	var (
		rec          sessions.Record
		accessToken  string
		refreshToken string
		userType     string
		expireAt     sql.NullTime
		extra        []byte
	)
	if err := row.Scan(
		&rec.ApplicationID,
		&rec.ResourceID,
		&accessToken,
		&refreshToken,
		&rec.ExpiresIn,
		&expireAt,
		&userType,
		&rec.TokenType,
		&rec.Scope,
		&rec.CompanyID,
		&rec.LocationID,
		&rec.UserID,
		&extra,
	); err != nil {
		return nil, err
	}

	var err error
	if rec.AccessToken, err = s.sealer.Open(accessToken); err != nil {
		return nil, err
	}
	if rec.RefreshToken, err = s.sealer.Open(refreshToken); err != nil {
		return nil, err
	}
	if expireAt.Valid {
		rec.ExpireAt = expireAt.Time
	}
	rec.UserType = oauthmodel.UserType(userType)
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &rec.Extra); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}
