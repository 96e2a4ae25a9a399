package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	ierrors "github.com/jrsteele09/go-highlevel-auth/internal/errors"
	"github.com/jrsteele09/go-highlevel-auth/sessions"
)

var _ sessions.Store = (*Store)(nil)

type key struct {
	applicationID string
	resourceID    string
}

type entry struct {
	record    sessions.Record
	createdAt time.Time
	updatedAt time.Time
}

// Store keeps sessions in process memory. Nothing survives a restart.
type Store struct {
	sessions.Partition

	entries map[key]*entry
	lock    sync.RWMutex
	nowFunc func() time.Time
}

type Option func(*Store)

func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func New(options ...Option) *Store {
	s := &Store{
		entries: make(map[key]*entry),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) Init(context.Context) error {
	return nil
}

func (s *Store) Disconnect(context.Context) error {
	return nil
}

func (s *Store) key(op, resourceID string) (key, error) {
	appID, err := s.ApplicationID(op)
	if err != nil {
		return key{}, err
	}
	if resourceID == "" {
		return key{}, ierrors.Wrapf(ierrors.ErrMissingResourceID, "inmemory.%s", op)
	}
	return key{applicationID: appID, resourceID: resourceID}, nil
}

func (s *Store) SetSession(_ context.Context, resourceID string, record sessions.Record) error {
	k, err := s.key("SetSession", resourceID)
	if err != nil {
		return err
	}

	now := s.nowFunc()
	rec := sessions.Prepare(now, k.applicationID, k.resourceID, record)

	s.lock.Lock()
	defer s.lock.Unlock()

	if existing, ok := s.entries[k]; ok {
		existing.record = rec
		existing.updatedAt = now
		return nil
	}
	s.entries[k] = &entry{
		record:    rec,
		createdAt: now,
		updatedAt: now,
	}
	return nil
}

func (s *Store) GetSession(_ context.Context, resourceID string) (*sessions.Record, error) {
	k, err := s.key("GetSession", resourceID)
	if err != nil {
		return nil, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	e, ok := s.entries[k]
	if !ok {
		return nil, nil
	}
	rec := e.record.Clone()
	return &rec, nil
}

func (s *Store) DeleteSession(_ context.Context, resourceID string) error {
	k, err := s.key("DeleteSession", resourceID)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.entries, k)
	return nil
}

func (s *Store) GetAccessToken(_ context.Context, resourceID string) (string, bool, error) {
	k, err := s.key("GetAccessToken", resourceID)
	if err != nil {
		return "", false, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	e, ok := s.entries[k]
	if !ok || e.record.AccessToken == "" {
		return "", false, nil
	}
	return e.record.AccessToken, true, nil
}

func (s *Store) GetRefreshToken(_ context.Context, resourceID string) (string, bool, error) {
	k, err := s.key("GetRefreshToken", resourceID)
	if err != nil {
		return "", false, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	e, ok := s.entries[k]
	if !ok || e.record.RefreshToken == "" {
		return "", false, nil
	}
	return e.record.RefreshToken, true, nil
}

// GetSessionsByApplication returns the bound application's records, oldest first.
func (s *Store) GetSessionsByApplication(context.Context) ([]sessions.Record, error) {
	appID, err := s.ApplicationID("GetSessionsByApplication")
	if err != nil {
		return nil, err
	}

	type snapshot struct {
		createdAt time.Time
		record    sessions.Record
	}

	s.lock.RLock()
	matched := make([]snapshot, 0)
	for k, e := range s.entries {
		if k.applicationID == appID {
			matched = append(matched, snapshot{createdAt: e.createdAt, record: e.record.Clone()})
		}
	}
	s.lock.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].createdAt.Equal(matched[j].createdAt) {
			return matched[i].record.ResourceID < matched[j].record.ResourceID
		}
		return matched[i].createdAt.Before(matched[j].createdAt)
	})

	records := make([]sessions.Record, 0, len(matched))
	for _, m := range matched {
		records = append(records, m.record)
	}
	return records, nil
}
