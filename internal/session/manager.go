package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/sessions"

	"voterlist-backend/internal/accounts"
	"voterlist-backend/internal/shared/telemetry"
)

const (
	CookieName     = "voter_session"
	cookieIDField  = "sid"
	defaultTTL     = 12 * time.Hour
	sessionIDBytes = 32
)

// Authenticator verifies login credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, secret string) (accounts.Account, error)
}

// AccountGetter reloads an account so blocked users lose live sessions.
type AccountGetter interface {
	Get(ctx context.Context, username string) (accounts.Account, error)
}

// Session is an authenticated login.
type Session struct {
	ID        string        `json:"-"`
	Username  string        `json:"username"`
	Role      accounts.Role `json:"role"`
	CreatedAt time.Time     `json:"createdAt"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// Manager owns server-side sessions. The session id travels either as a
// bearer token or inside a signed cookie.
type Manager struct {
	Auth     Authenticator
	Accounts AccountGetter
	TTL      time.Duration
	Now      func() time.Time

	cookies *sessions.CookieStore

	mu       sync.RWMutex
	sessions map[string]Session
}

// NewManager constructs a Manager. hashKey signs the session cookie.
func NewManager(auth Authenticator, accts AccountGetter, hashKey []byte, ttl time.Duration, secureCookie bool) *Manager {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	store := sessions.NewCookieStore(hashKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{
		Auth:     auth,
		Accounts: accts,
		TTL:      ttl,
		cookies:  store,
		sessions: make(map[string]Session),
	}
}

// Login authenticates and opens a session. Errors are the accounts
// sentinels, unchanged.
func (m *Manager) Login(ctx context.Context, username, secret string) (Session, error) {
	acct, err := m.Auth.Authenticate(ctx, username, secret)
	if err != nil {
		return Session{}, err
	}
	id, err := newSessionID()
	if err != nil {
		return Session{}, err
	}
	now := m.now()
	s := Session{
		ID:        id,
		Username:  acct.Username,
		Role:      acct.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(m.TTL),
	}

	m.mu.Lock()
	m.sweepLocked(now)
	m.sessions[id] = s
	m.mu.Unlock()

	telemetry.Info("session.login", map[string]any{
		"user_id":   s.Username,
		"user_role": string(s.Role),
	})
	return s, nil
}

// Logout drops the session. Unknown ids are ignored.
func (m *Manager) Logout(id string) {
	if id == "" {
		return
	}
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		telemetry.Info("session.logout", map[string]any{"user_id": s.Username})
	}
}

// Lookup returns a live session. Expired sessions and sessions of accounts
// that were blocked or removed are dropped.
func (m *Manager) Lookup(ctx context.Context, id string) (Session, bool) {
	if id == "" {
		return Session{}, false
	}
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	if !m.now().Before(s.ExpiresAt) {
		m.Logout(id)
		return Session{}, false
	}
	if m.Accounts != nil {
		acct, err := m.Accounts.Get(ctx, s.Username)
		if err != nil {
			if errors.Is(err, accounts.ErrNotFound) {
				m.Logout(id)
			}
			return Session{}, false
		}
		if acct.IsBlocked {
			m.Logout(id)
			return Session{}, false
		}
		s.Role = acct.Role
	}
	return s, true
}

// Count returns the number of stored sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ResolveRequest maps a request to its session owner.
func (m *Manager) ResolveRequest(r *http.Request) (string, string, bool) {
	s, ok := m.Lookup(r.Context(), m.TokenFromRequest(r))
	if !ok {
		return "", "", false
	}
	return s.Username, string(s.Role), true
}

// TokenFromRequest reads the session id from the Authorization header, then
// from the session cookie.
func (m *Manager) TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	cs, err := m.cookies.Get(r, CookieName)
	if err != nil {
		return ""
	}
	id, _ := cs.Values[cookieIDField].(string)
	return id
}

// WriteCookie stores the session id in the signed cookie.
func (m *Manager) WriteCookie(w http.ResponseWriter, r *http.Request, s Session) error {
	cs, _ := m.cookies.New(r, CookieName)
	cs.Values[cookieIDField] = s.ID
	if err := cs.Save(r, w); err != nil {
		return fmt.Errorf("save session cookie: %w", err)
	}
	return nil
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter, r *http.Request) error {
	cs, _ := m.cookies.New(r, CookieName)
	cs.Options.MaxAge = -1
	if err := cs.Save(r, w); err != nil {
		return fmt.Errorf("clear session cookie: %w", err)
	}
	return nil
}

func (m *Manager) sweepLocked(now time.Time) {
	for id, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
		}
	}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
