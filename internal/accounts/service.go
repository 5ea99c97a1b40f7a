package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"voterlist-backend/internal/credentials"
	"voterlist-backend/internal/shared/metrics"
	"voterlist-backend/internal/shared/telemetry"
)

type Service struct {
	Repo          Repo
	Hasher        credentials.Hasher
	AdminUsername string

	ready atomic.Bool
}

func NewService(repo Repo, hasher credentials.Hasher, adminUsername string) *Service {
	return &Service{Repo: repo, Hasher: hasher, AdminUsername: adminUsername}
}

// Initialize upserts the admin account with a fresh digest of adminSecret.
// An existing admin record keeps its position; role and block flag are reset.
func (s *Service) Initialize(ctx context.Context, adminSecret string) error {
	if s == nil || s.Repo == nil || s.Hasher == nil {
		return errors.New("accounts service not configured")
	}
	if strings.TrimSpace(s.AdminUsername) == "" || adminSecret == "" {
		return fmt.Errorf("%w: admin username and secret are required", ErrInvalidInput)
	}
	hash, err := s.Hasher.Digest(adminSecret)
	if err != nil {
		return fmt.Errorf("digest admin secret: %w", err)
	}
	if err := s.Repo.Upsert(ctx, Account{
		Username:     s.AdminUsername,
		PasswordHash: hash,
		Role:         RoleAdmin,
		IsBlocked:    false,
	}); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	s.ready.Store(true)
	telemetry.Info("accounts.admin_seeded", map[string]any{
		"username": s.AdminUsername,
		"hasher":   s.Hasher.Name(),
	})
	return nil
}

// Authenticate checks a login attempt. Unknown usernames and wrong secrets
// both report ErrInvalidCredentials; blocked accounts report
// ErrAccountBlocked whatever the secret.
func (s *Service) Authenticate(ctx context.Context, username, secret string) (Account, error) {
	if !s.ready.Load() {
		return Account{}, ErrNotInitialized
	}
	account, err := s.Repo.Get(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.IncLoginFailed()
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}
	if account.IsBlocked {
		metrics.IncLoginFailed()
		return Account{}, ErrAccountBlocked
	}
	if !s.Hasher.Verify(secret, account.PasswordHash) {
		metrics.IncLoginFailed()
		return Account{}, ErrInvalidCredentials
	}
	metrics.IncLoginSucceeded()
	return account, nil
}

// CreateAccount appends a new unblocked account. Surrounding whitespace is
// stripped from username.
func (s *Service) CreateAccount(ctx context.Context, username, secret string, role Role) (Account, error) {
	if !s.ready.Load() {
		return Account{}, ErrNotInitialized
	}
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(secret) == "" {
		return Account{}, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	if role != RoleAdmin && role != RoleUser {
		return Account{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	hash, err := s.Hasher.Digest(secret)
	if err != nil {
		return Account{}, fmt.Errorf("digest secret: %w", err)
	}
	account := Account{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsBlocked:    false,
	}
	if err := s.Repo.Create(ctx, account); err != nil {
		return Account{}, err
	}
	telemetry.Info("accounts.created", map[string]any{
		"username": username,
		"role":     string(role),
	})
	return account, nil
}

// ToggleBlock flips the blocked flag. The admin account is never changed.
func (s *Service) ToggleBlock(ctx context.Context, username string) (Account, error) {
	if !s.ready.Load() {
		return Account{}, ErrNotInitialized
	}
	if s.IsAdmin(username) {
		return Account{}, ErrProtectedAccount
	}
	account, err := s.Repo.ToggleBlocked(ctx, username)
	if err != nil {
		return Account{}, err
	}
	telemetry.Info("accounts.block_toggled", map[string]any{
		"username":   username,
		"is_blocked": account.IsBlocked,
	})
	return account, nil
}

// List returns every account in insertion order.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.Repo.List(ctx)
}

// IsAdmin reports whether username is the seeded admin identifier.
func (s *Service) IsAdmin(username string) bool {
	return username == s.AdminUsername
}
