package youtube

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/clipcast/backend/internal/logging"
	"github.com/clipcast/backend/internal/models"
)

// CredentialStore persists OAuth credentials issued by Google. Writes append;
// Latest returns the newest record with ok=false when the store is empty.
type CredentialStore interface {
	Insert(ctx context.Context, cred models.Credential) error
	Latest(ctx context.Context) (models.Credential, bool, error)
}

// TokenManager owns the in-memory OAuth credential and keeps it usable:
// it adopts the most recent stored credential, refreshes it through the token
// endpoint when expired, and appends every refreshed credential back to the
// store. The mutex also serialises refreshes, so a refresh triggered by one
// operation is awaited, not repeated, by concurrent callers.
type TokenManager struct {
	conf  *oauth2.Config
	store CredentialStore

	mu      sync.Mutex
	current *oauth2.Token
}

// NewTokenManager constructs a TokenManager. The credential starts empty until
// Initialize or Adopt installs one.
func NewTokenManager(conf *oauth2.Config, store CredentialStore) *TokenManager {
	if conf == nil {
		panic("youtube: oauth config must not be nil")
	}
	if store == nil {
		panic("youtube: credential store must not be nil")
	}
	return &TokenManager{conf: conf, store: store}
}

// Initialize adopts the most recently persisted credential, if any. An empty
// store is not an error; privileged calls will fail with
// ErrAuthenticationRequired until the consent flow runs.
func (m *TokenManager) Initialize(ctx context.Context) error {
	cred, ok, err := m.store.Latest(ctx)
	if err != nil {
		return fmt.Errorf("load latest credential: %w", err)
	}
	if !ok {
		return nil
	}

	token, err := cred.DecodeToken()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.current = token
	m.mu.Unlock()
	return nil
}

// HasCredential reports whether a credential is currently installed.
func (m *TokenManager) HasCredential() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Adopt installs a freshly exchanged credential and appends it to the store.
// Used by the OAuth callback after a successful code exchange.
func (m *TokenManager) Adopt(ctx context.Context, token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidInput)
	}

	cred, err := models.NewCredential(token, "")
	if err != nil {
		return err
	}
	if err := m.store.Insert(ctx, cred); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	m.mu.Lock()
	m.current = token
	m.mu.Unlock()
	return nil
}

// EnsureValid returns a token that is valid right now, refreshing and
// persisting it first when necessary. Every privileged operation must call
// this before touching the API.
func (m *TokenManager) EnsureValid(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, ErrAuthenticationRequired
	}
	if m.current.Valid() {
		return copyToken(m.current), nil
	}
	if m.current.RefreshToken == "" {
		return nil, ErrRefreshTokenUnavailable
	}

	ctx, span := logging.StartSpan(ctx, "token.refresh")
	defer span.End()

	// One refresh request, no automatic retries: a transport failure leaves
	// the current credential untouched so the next call can try again.
	refreshed, err := m.conf.TokenSource(ctx, m.current).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRefreshFailed, err)
	}

	cred, err := models.NewCredential(refreshed, "")
	if err != nil {
		return nil, err
	}
	if err := m.store.Insert(ctx, cred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	m.current = refreshed
	logging.FromContext(ctx).Info("access token refreshed", "expiry", refreshed.Expiry)
	return copyToken(m.current), nil
}

func copyToken(t *oauth2.Token) *oauth2.Token {
	dup := *t
	return &dup
}
