package documents

import (
	"context"
	"time"
)

// Repo persists documents in upload order.
type Repo interface {
	// CreateBatch stores all docs or none.
	CreateBatch(ctx context.Context, docs []Document) error
	List(ctx context.Context) ([]Document, error)
	GetByID(ctx context.Context, id string) (Document, error)
	// ListDue returns documents whose next transition is due at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Document, error)
	// AdvanceStatus applies adv if the stored status equals adv.From.
	// applied is false for unknown ids and stale From values.
	AdvanceStatus(ctx context.Context, adv Advance) (doc Document, applied bool, err error)
}
