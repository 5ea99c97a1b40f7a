package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"voterlist-backend/internal/shared/storage/kv"
	"voterlist-backend/internal/shared/telemetry"
)

// StateKey is the KV key holding the JSON document list.
const StateKey = "voter_app_files"

// MemoryRepo keeps documents in memory, optionally mirrored to a KV store.
type MemoryRepo struct {
	mu   sync.RWMutex
	docs []Document
	kv   kv.Store
}

// NewMemoryRepo constructs a MemoryRepo without persistence.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

// NewKVRepo loads the document list from store. Unparseable state is copied
// aside, logged and replaced by an empty list.
func NewKVRepo(ctx context.Context, store kv.Store) (*MemoryRepo, error) {
	r := &MemoryRepo{kv: store}
	raw, ok, err := store.Get(ctx, StateKey)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	if !ok {
		return r, nil
	}
	var loaded []Document
	if err := json.Unmarshal(raw, &loaded); err != nil {
		backup, perr := kv.Preserve(ctx, store, StateKey, raw, time.Now())
		if perr != nil {
			return nil, perr
		}
		telemetry.Error("documents.state_corrupt", map[string]any{
			"key":    StateKey,
			"backup": backup,
			"error":  err.Error(),
		})
		return r, nil
	}
	r.docs = loaded
	return r, nil
}

// CreateBatch appends docs in order.
func (r *MemoryRepo) CreateBatch(ctx context.Context, docs []Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := append(r.snapshotLocked(), docs...)
	return r.commitLocked(ctx, next)
}

// List returns every document in upload order.
func (r *MemoryRepo) List(ctx context.Context) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(), nil
}

// GetByID returns a document by ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexLocked(id); i >= 0 {
		return r.docs[i], nil
	}
	return Document{}, ErrNotFound
}

// ListDue returns documents due at or before now, earliest first.
func (r *MemoryRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var due []Document
	for _, d := range r.docs {
		if d.NextTransitionAt != nil && !d.NextTransitionAt.After(now) {
			due = append(due, d)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].NextTransitionAt.Before(*due[j].NextTransitionAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// AdvanceStatus applies a compare-and-set status change.
func (r *MemoryRepo) AdvanceStatus(ctx context.Context, adv Advance) (Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(adv.ID)
	if i < 0 || r.docs[i].Status != adv.From {
		return Document{}, false, nil
	}
	next := r.snapshotLocked()
	next[i].Status = adv.To
	next[i].StatusChangedAt = adv.At
	next[i].NextTransitionAt = adv.NextAt
	if err := r.commitLocked(ctx, next); err != nil {
		return Document{}, false, err
	}
	return next[i], true, nil
}

func (r *MemoryRepo) indexLocked(id string) int {
	for i := range r.docs {
		if r.docs[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *MemoryRepo) snapshotLocked() []Document {
	return append([]Document(nil), r.docs...)
}

func (r *MemoryRepo) commitLocked(ctx context.Context, next []Document) error {
	if r.kv != nil {
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode documents: %w", err)
		}
		if err := r.kv.Put(ctx, StateKey, payload); err != nil {
			return fmt.Errorf("persist documents: %w", err)
		}
	}
	r.docs = next
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
