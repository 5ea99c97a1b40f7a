package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"voterlist-backend/internal/shared/storage/kv"
	"voterlist-backend/internal/shared/telemetry"
)

// StateKey is the KV key holding the JSON account list.
const StateKey = "voter_app_users"

// MemoryRepo keeps accounts in memory, optionally mirrored to a KV store.
// Every mutation writes the full list before it becomes visible.
type MemoryRepo struct {
	mu       sync.RWMutex
	accounts []Account
	kv       kv.Store
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

// NewKVRepo loads the account list from store. Unparseable state is copied
// aside, logged and replaced by an empty list.
func NewKVRepo(ctx context.Context, store kv.Store) (*MemoryRepo, error) {
	r := &MemoryRepo{kv: store}
	raw, ok, err := store.Get(ctx, StateKey)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	if !ok {
		return r, nil
	}
	var loaded []Account
	if err := json.Unmarshal(raw, &loaded); err != nil {
		backup, perr := kv.Preserve(ctx, store, StateKey, raw, time.Now())
		if perr != nil {
			return nil, perr
		}
		telemetry.Error("accounts.state_corrupt", map[string]any{
			"key":    StateKey,
			"backup": backup,
			"error":  err.Error(),
		})
		return r, nil
	}
	r.accounts = dedupe(loaded)
	return r, nil
}

func (r *MemoryRepo) List(ctx context.Context) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Account(nil), r.accounts...), nil
}

func (r *MemoryRepo) Get(ctx context.Context, username string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexLocked(username); i >= 0 {
		return r.accounts[i], nil
	}
	return Account{}, ErrNotFound
}

func (r *MemoryRepo) Create(ctx context.Context, account Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(account.Username) >= 0 {
		return ErrDuplicateUsername
	}
	return r.commitLocked(ctx, append(r.snapshotLocked(), account))
}

func (r *MemoryRepo) Upsert(ctx context.Context, account Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.snapshotLocked()
	if i := r.indexLocked(account.Username); i >= 0 {
		next[i] = account
	} else {
		next = append(next, account)
	}
	return r.commitLocked(ctx, next)
}

func (r *MemoryRepo) ToggleBlocked(ctx context.Context, username string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(username)
	if i < 0 {
		return Account{}, ErrNotFound
	}
	next := r.snapshotLocked()
	next[i].IsBlocked = !next[i].IsBlocked
	if err := r.commitLocked(ctx, next); err != nil {
		return Account{}, err
	}
	return next[i], nil
}

func (r *MemoryRepo) indexLocked(username string) int {
	for i, a := range r.accounts {
		if a.Username == username {
			return i
		}
	}
	return -1
}

func (r *MemoryRepo) snapshotLocked() []Account {
	return append([]Account(nil), r.accounts...)
}

// commitLocked persists next and only then swaps it in, so a failed write
// leaves the previous list untouched.
func (r *MemoryRepo) commitLocked(ctx context.Context, next []Account) error {
	if r.kv != nil {
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode accounts: %w", err)
		}
		if err := r.kv.Put(ctx, StateKey, payload); err != nil {
			return fmt.Errorf("persist accounts: %w", err)
		}
	}
	r.accounts = next
	return nil
}

// dedupe keeps the first record per username.
func dedupe(in []Account) []Account {
	seen := make(map[string]struct{}, len(in))
	out := make([]Account, 0, len(in))
	for _, a := range in {
		if _, ok := seen[a.Username]; ok {
			continue
		}
		seen[a.Username] = struct{}{}
		out = append(out, a)
	}
	return out
}

var _ Repo = (*MemoryRepo)(nil)
