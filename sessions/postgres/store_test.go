package postgres_test

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	ierrors "github.com/jrsteele09/go-highlevel-auth/internal/errors"
	"github.com/jrsteele09/go-highlevel-auth/oauthmodel"
	"github.com/jrsteele09/go-highlevel-auth/sessions"
	"github.com/jrsteele09/go-highlevel-auth/sessions/postgres"
	"github.com/jrsteele09/go-highlevel-auth/sessions/seal"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "65a1b2c3d4-lq9abc"
	testAppID    = "65a1b2c3d4"
)

var recordColumns = []string{
	"application_id", "resource_id", "access_token", "refresh_token", "expires_in", "expire_at",
	"user_type", "token_type", "scope", "company_id", "location_id", "user_id", "extra",
}

type storeFixture struct {
	store *postgres.Store
	mock  sqlmock.Sqlmock
	db    *sql.DB
	now   time.Time
}

func setupStore(t *testing.T, options ...postgres.Option) *storeFixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	options = append([]postgres.Option{
		postgres.WithDB(db),
		postgres.WithNowFunc(func() time.Time { return now }),
		postgres.WithLogger(zerolog.Nop()),
	}, options...)
	s := postgres.New("", options...)
	s.SetClientID(testClientID)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS hl_sessions")).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, s.Init(context.Background()))

	return &storeFixture{store: s, mock: mock, db: db, now: now}
}

func (f *storeFixture) verify(t *testing.T) {
	t.Helper()
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStore_InitIsIdempotent(t *testing.T) {
	f := setupStore(t)
	require.NoError(t, f.store.Init(context.Background()))
	f.verify(t)
}

func TestStore_InitWithoutDSN(t *testing.T) {
	s := postgres.New("", postgres.WithLogger(zerolog.Nop()))
	err := s.Init(context.Background())
	require.ErrorIs(t, err, ierrors.ErrMissingDSN)
	require.NoError(t, s.Disconnect(context.Background()))
}

func TestStore_RequiresClientID(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := postgres.New("", postgres.WithDB(db))
	_, err = s.GetSession(context.Background(), "loc-1")
	require.ErrorIs(t, err, oauthmodel.ErrNotConfigured)
}

func TestStore_NotConnected(t *testing.T) {
	s := postgres.New("")
	s.SetClientID(testClientID)
	_, err := s.GetSession(context.Background(), "loc-1")
	require.ErrorIs(t, err, ierrors.ErrStoreNotConnected)
}

func TestStore_SetSessionUpserts(t *testing.T) {
	f := setupStore(t)

	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO hl_sessions") + "(?s).*" + regexp.QuoteMeta("ON CONFLICT (application_id, resource_id) DO UPDATE SET")).
		WithArgs(
			sqlmock.AnyArg(), // id
			testAppID,
			"loc-1",
			"at-1",
			"rt-1",
			int64(86399),
			f.now.Add(86399*time.Second),
			"Location",
			"Bearer",
			"",
			"co-1",
			"loc-1",
			"",
			[]byte(`{"planId":"p1"}`),
			f.now,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := f.store.SetSession(context.Background(), "loc-1", sessions.Record{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresIn:    86399,
		ExpireAt:     f.now.Add(-time.Hour),
		UserType:     oauthmodel.UserTypeLocation,
		TokenType:    "Bearer",
		CompanyID:    "co-1",
		LocationID:   "loc-1",
		Extra:        map[string]any{"planId": "p1"},
	})
	require.NoError(t, err)
	f.verify(t)
}

func TestStore_GetSession(t *testing.T) {
	f := setupStore(t)
	expireAt := f.now.Add(time.Hour)

	f.mock.ExpectQuery(regexp.QuoteMeta("FROM hl_sessions WHERE application_id = $1 AND resource_id = $2")).
		WithArgs(testAppID, "loc-1").
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(
			testAppID, "loc-1", "at-1", "rt-1", int64(3600), expireAt,
			"Company", "Bearer", "locations.readonly", "co-1", "", "u-1", []byte(`{"planId":"p1"}`),
		))

	rec, err := f.store.GetSession(context.Background(), "loc-1")
	require.NoError(t, err)
	require.Equal(t, &sessions.Record{
		ApplicationID: testAppID,
		ResourceID:    "loc-1",
		AccessToken:   "at-1",
		RefreshToken:  "rt-1",
		ExpiresIn:     3600,
		ExpireAt:      expireAt,
		UserType:      oauthmodel.UserTypeCompany,
		TokenType:     "Bearer",
		Scope:         "locations.readonly",
		CompanyID:     "co-1",
		UserID:        "u-1",
		Extra:         map[string]any{"planId": "p1"},
	}, rec)
	f.verify(t)
}

func TestStore_GetSessionNotFound(t *testing.T) {
	f := setupStore(t)

	f.mock.ExpectQuery(regexp.QuoteMeta("FROM hl_sessions WHERE application_id = $1")).
		WithArgs(testAppID, "missing").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	rec, err := f.store.GetSession(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, rec)
	f.verify(t)
}

func TestStore_StorageErrorsPropagate(t *testing.T) {
	f := setupStore(t)
	connErr := errors.New("connection reset by peer")

	f.mock.ExpectQuery(regexp.QuoteMeta("FROM hl_sessions")).WillReturnError(connErr)

	_, err := f.store.GetSession(context.Background(), "loc-1")
	require.ErrorIs(t, err, connErr)
	require.NotErrorIs(t, err, oauthmodel.ErrUnauthenticated)
	f.verify(t)
}

func TestStore_TokenProjections(t *testing.T) {
	f := setupStore(t)

	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT access_token FROM hl_sessions")).
		WithArgs(testAppID, "loc-1").
		WillReturnRows(sqlmock.NewRows([]string{"access_token"}).AddRow("at-1"))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT refresh_token FROM hl_sessions")).
		WithArgs(testAppID, "loc-1").
		WillReturnRows(sqlmock.NewRows([]string{"refresh_token"}).AddRow(""))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT access_token FROM hl_sessions")).
		WithArgs(testAppID, "missing").
		WillReturnRows(sqlmock.NewRows([]string{"access_token"}))

	at, found, err := f.store.GetAccessToken(context.Background(), "loc-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "at-1", at)

	_, found, err = f.store.GetRefreshToken(context.Background(), "loc-1")
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = f.store.GetAccessToken(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, found)
	f.verify(t)
}

func TestStore_DeleteSession(t *testing.T) {
	f := setupStore(t)

	f.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM hl_sessions WHERE application_id = $1 AND resource_id = $2")).
		WithArgs(testAppID, "loc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, f.store.DeleteSession(context.Background(), "loc-1"))
	f.verify(t)
}

func TestStore_GetSessionsByApplication(t *testing.T) {
	f := setupStore(t)

	f.mock.ExpectQuery(regexp.QuoteMeta("WHERE application_id = $1 ORDER BY created_at, resource_id")).
		WithArgs(testAppID).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow(testAppID, "co-1", "a1", "r1", int64(0), nil, "Company", "", "", "co-1", "", "", nil).
			AddRow(testAppID, "loc-1", "a2", "r2", int64(0), nil, "Location", "", "", "", "loc-1", "", nil))

	all, err := f.store.GetSessionsByApplication(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "co-1", all[0].ResourceID)
	require.True(t, all[0].ExpireAt.IsZero())
	require.Nil(t, all[0].Extra)
	require.Equal(t, oauthmodel.UserTypeLocation, all[1].UserType)
	f.verify(t)
}

type sealedArg struct{ plain string }

func (a sealedArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, "sb1:") && !strings.Contains(s, a.plain)
}

func TestStore_SealsTokensAtRest(t *testing.T) {
	sb, err := seal.NewSecretBox(bytes.Repeat([]byte{1}, seal.KeySize))
	require.NoError(t, err)
	f := setupStore(t, postgres.WithSealer(sb))

	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO hl_sessions")).
		WithArgs(sqlmock.AnyArg(), testAppID, "loc-1", sealedArg{"at-plain"}, sealedArg{"rt-plain"},
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, f.store.SetSession(context.Background(), "loc-1", sessions.Record{AccessToken: "at-plain", RefreshToken: "rt-plain"}))

	sealedAT, err := sb.Seal("at-plain")
	require.NoError(t, err)
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT access_token FROM hl_sessions")).
		WillReturnRows(sqlmock.NewRows([]string{"access_token"}).AddRow(sealedAT))

	at, found, err := f.store.GetAccessToken(context.Background(), "loc-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "at-plain", at)
	f.verify(t)
}

func TestStore_DisconnectLeavesAdoptedPoolOpen(t *testing.T) {
	f := setupStore(t)
	require.NoError(t, f.store.Disconnect(context.Background()))
	require.NoError(t, f.store.Disconnect(context.Background()))

	_, err := f.store.GetSession(context.Background(), "loc-1")
	require.ErrorIs(t, err, ierrors.ErrStoreNotConnected)

	f.mock.ExpectClose()
	require.NoError(t, f.db.Close())
	f.verify(t)
}
