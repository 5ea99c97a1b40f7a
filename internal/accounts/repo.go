package accounts

import "context"

// Repo stores accounts in insertion order.
type Repo interface {
	List(ctx context.Context) ([]Account, error)
	Get(ctx context.Context, username string) (Account, error)
	// Create appends a new account or fails with ErrDuplicateUsername.
	Create(ctx context.Context, account Account) error
	// Upsert inserts, or overwrites an existing account in place.
	Upsert(ctx context.Context, account Account) error
	// ToggleBlocked flips IsBlocked and returns the updated account.
	ToggleBlocked(ctx context.Context, username string) (Account, error)
}
