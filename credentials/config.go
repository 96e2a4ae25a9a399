package credentials

import (
	"strings"
	"sync"
)

// Config holds the statically configured credentials of one client instance.
// Every field is optional.
type Config struct {
	// PrivateIntegrationToken is a long-lived integration token. When set it outranks
	// every other credential source.
	PrivateIntegrationToken string

	// AgencyAccessToken is a company level access token supplied by the caller.
	AgencyAccessToken string

	// LocationAccessToken is a sub-account level access token supplied by the caller.
	LocationAccessToken string

	// ClientID and ClientSecret identify the installed marketplace application.
	// Both are required to refresh stored sessions.
	ClientID     string
	ClientSecret string
}

// ApplicationID returns the session partition key derived from the client id.
func (c Config) ApplicationID() string {
	return ApplicationID(c.ClientID)
}

// HasClientCredentials reports whether refresh grants can be requested.
func (c Config) HasClientCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// ApplicationID derives the application id from an OAuth client id: the part before the
// first '-', or the whole id when it has none.
func ApplicationID(clientID string) string {
	appID, _, _ := strings.Cut(clientID, "-")
	return appID
}

// ChangeFunc is notified after the configuration was replaced.
type ChangeFunc func(previous, current Config)

// Holder shares one Config between the components of a client. Reads see a consistent
// snapshot; Update replaces the whole value and then notifies subscribers.
type Holder struct {
	mu          sync.RWMutex
	cfg         Config
	subscribers []ChangeFunc
}

func NewHolder(cfg Config) *Holder {
	return &Holder{cfg: cfg}
}

// Get returns a snapshot of the current configuration.
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Subscribe registers fn to run after every Update.
func (h *Holder) Subscribe(fn ChangeFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, fn)
}

// Update applies fn to a copy of the configuration and swaps it in atomically.
// Subscribers run after the swap, outside the lock.
func (h *Holder) Update(fn func(*Config)) Config {
	h.mu.Lock()
	previous := h.cfg
	next := previous
	fn(&next)
	h.cfg = next
	subscribers := append([]ChangeFunc(nil), h.subscribers...)
	h.mu.Unlock()

	for _, sub := range subscribers {
		sub(previous, next)
	}
	return next
}
