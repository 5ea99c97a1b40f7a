package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voterlist-backend/internal/credentials"
)

const testAdmin = "01737654555"

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(NewMemoryRepo(), credentials.SHA256{}, testAdmin)
	require.NoError(t, svc.Initialize(context.Background(), "admin-secret"))
	return svc
}

func TestInitializeSeedsAdminOnEmptyStore(t *testing.T) {
	svc := newTestService(t)

	items, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, testAdmin, items[0].Username)
	assert.Equal(t, RoleAdmin, items[0].Role)
	assert.False(t, items[0].IsBlocked)
}

func TestInitializeRepairsTamperedAdminInPlace(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	require.NoError(t, repo.Create(ctx, Account{Username: "u1", PasswordHash: "x", Role: RoleUser}))
	require.NoError(t, repo.Create(ctx, Account{Username: testAdmin, PasswordHash: "stale", Role: RoleUser, IsBlocked: true}))
	require.NoError(t, repo.Create(ctx, Account{Username: "u2", PasswordHash: "y", Role: RoleUser}))

	svc := NewService(repo, credentials.SHA256{}, testAdmin)
	require.NoError(t, svc.Initialize(ctx, "new-secret"))
	require.NoError(t, svc.Initialize(ctx, "new-secret"))

	items, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"u1", testAdmin, "u2"}, usernames(items))
	admin := items[1]
	assert.Equal(t, RoleAdmin, admin.Role)
	assert.False(t, admin.IsBlocked)

	_, err = svc.Authenticate(ctx, testAdmin, "new-secret")
	assert.NoError(t, err)
}

func TestAuthenticateBeforeInitialize(t *testing.T) {
	svc := NewService(NewMemoryRepo(), credentials.SHA256{}, testAdmin)
	_, err := svc.Authenticate(context.Background(), testAdmin, "x")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, err := svc.CreateAccount(ctx, "u1", "pw1", RoleUser)
	require.NoError(t, err)
	_, err = svc.CreateAccount(ctx, "blocked", "pw2", RoleUser)
	require.NoError(t, err)
	_, err = svc.ToggleBlock(ctx, "blocked")
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		secret   string
		wantErr  error
	}{
		{name: "valid", username: "u1", secret: "pw1"},
		{name: "unknown user", username: "nobody", secret: "pw1", wantErr: ErrInvalidCredentials},
		{name: "wrong secret", username: "u1", secret: "nope", wantErr: ErrInvalidCredentials},
		{name: "case sensitive", username: "U1", secret: "pw1", wantErr: ErrInvalidCredentials},
		{name: "blocked with right secret", username: "blocked", secret: "pw2", wantErr: ErrAccountBlocked},
		{name: "blocked with wrong secret", username: "blocked", secret: "anything", wantErr: ErrAccountBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account, err := svc.Authenticate(ctx, tt.username, tt.secret)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.username, account.Username)
		})
	}
}

func TestCreateAccountDuplicateLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	first, err := svc.CreateAccount(ctx, "u1", "pw1", RoleUser)
	require.NoError(t, err)

	_, err = svc.CreateAccount(ctx, "u1", "other", RoleAdmin)
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	items, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, first, items[1])
}

func TestCreateAccountTrimsUsername(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	created, err := svc.CreateAccount(ctx, "  u1 ", "pw1", RoleUser)
	require.NoError(t, err)
	assert.Equal(t, "u1", created.Username)

	stored, err := svc.Repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.Username)

	_, err = svc.Authenticate(ctx, "u1", "pw1")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, " u1\t", "pw1")
	require.NoError(t, err)

	_, err = svc.CreateAccount(ctx, "u1 ", "pw2", RoleUser)
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestCreateAccountValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.CreateAccount(ctx, "  ", "pw", RoleUser)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.CreateAccount(ctx, "u1", "", RoleUser)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.CreateAccount(ctx, "u1", "pw", Role("ROOT"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	account, err := svc.CreateAccount(ctx, "u1", "pw", RoleAdmin)
	require.NoError(t, err)
	assert.False(t, account.IsBlocked)
	assert.Equal(t, RoleAdmin, account.Role)
}

func TestToggleBlockAlternatesAndProtectsAdmin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, err := svc.CreateAccount(ctx, "u1", "pw1", RoleUser)
	require.NoError(t, err)

	a, err := svc.ToggleBlock(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, a.IsBlocked)
	a, err = svc.ToggleBlock(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, a.IsBlocked)

	_, err = svc.ToggleBlock(ctx, testAdmin)
	assert.ErrorIs(t, err, ErrProtectedAccount)
	admin, err := svc.Repo.Get(ctx, testAdmin)
	require.NoError(t, err)
	assert.False(t, admin.IsBlocked)

	_, err = svc.ToggleBlock(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("admin")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, role)

	role, ok = ParseRole("")
	assert.True(t, ok)
	assert.Equal(t, RoleUser, role)

	_, ok = ParseRole("owner")
	assert.False(t, ok)
}

func usernames(items []Account) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.Username)
	}
	return out
}
