package sessions

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-highlevel-auth/credentials"
	"github.com/jrsteele09/go-highlevel-auth/oauthmodel"
)

// Store persists one session Record per (application id, resource id).
//
// A resource-scoped call made before SetClientID bound a non-empty client id fails with
// *oauthmodel.ConfigurationError. A missing record is not an error: GetSession returns
// nil, nil and the token projections return found=false.
type Store interface {
	// Init acquires the underlying connection. It is idempotent and must succeed before
	// any other call.
	Init(ctx context.Context) error

	// SetClientID derives and caches the application id used to partition records.
	SetClientID(clientID string)

	// SetSession upserts the record for resourceID, replacing any existing one.
	// ExpireAt is always recomputed from ExpiresIn.
	SetSession(ctx context.Context, resourceID string, record Record) error

	// GetSession returns the record for resourceID or nil when none is stored.
	GetSession(ctx context.Context, resourceID string) (*Record, error)

	// DeleteSession removes the record; deleting a missing record is a no-op.
	DeleteSession(ctx context.Context, resourceID string) error

	GetAccessToken(ctx context.Context, resourceID string) (string, bool, error)
	GetRefreshToken(ctx context.Context, resourceID string) (string, bool, error)

	// GetSessionsByApplication lists every record of the bound application.
	GetSessionsByApplication(ctx context.Context) ([]Record, error)

	// Disconnect releases the underlying connection. Safe when not connected.
	Disconnect(ctx context.Context) error
}

// Partition holds the application id bound to a store. Stores embed it.
type Partition struct {
	mu            sync.RWMutex
	applicationID string
}

// SetClientID derives and caches the application id.
func (p *Partition) SetClientID(clientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applicationID = credentials.ApplicationID(clientID)
}

// ApplicationID returns the bound application id or a ConfigurationError naming op.
func (p *Partition) ApplicationID(op string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.applicationID == "" {
		return "", &oauthmodel.ConfigurationError{
			Op:  op,
			Msg: "application id not set; call SetClientID with the OAuth client id first",
		}
	}
	return p.applicationID, nil
}
