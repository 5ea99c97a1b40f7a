package extraction

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"voterlist-backend/internal/documents"
	"voterlist-backend/internal/events"
	"voterlist-backend/internal/shared/metrics"
	"voterlist-backend/internal/shared/telemetry"
)

const (
	defaultInitialDelay  = 1500 * time.Millisecond
	defaultMinProcessing = 3 * time.Second
	defaultMaxProcessing = 5 * time.Second
	defaultTick          = 250 * time.Millisecond
	defaultBatchSize     = 100
	defaultConcurrency   = 4
)

// Config controls the simulated extraction pipeline.
type Config struct {
	InitialDelay  time.Duration
	MinProcessing time.Duration
	MaxProcessing time.Duration
	Tick          time.Duration
	PendingStage  bool
	PendingDelay  time.Duration
	BatchSize     int
	Concurrency   int
}

// Store is the subset of the document repository the scheduler drives.
type Store interface {
	List(ctx context.Context) ([]documents.Document, error)
	GetByID(ctx context.Context, id string) (documents.Document, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]documents.Document, error)
	AdvanceStatus(ctx context.Context, adv documents.Advance) (documents.Document, bool, error)
}

// Scheduler advances documents through the simulated OCR pipeline. The next
// due time of every document is stored with the document, so a restarted
// scheduler picks up where the previous one stopped.
type Scheduler struct {
	Store  Store
	Events events.Publisher
	Now    func() time.Time
	// Jitter returns a value in [0, n). Defaults to math/rand/v2.
	Jitter func(n int64) int64

	cfg Config
}

// New returns a scheduler with zero config fields replaced by defaults.
func New(store Store, publisher events.Publisher, cfg Config) *Scheduler {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	if cfg.MinProcessing <= 0 {
		cfg.MinProcessing = defaultMinProcessing
	}
	if cfg.MaxProcessing < cfg.MinProcessing {
		cfg.MaxProcessing = max(defaultMaxProcessing, cfg.MinProcessing)
	}
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	if cfg.PendingDelay < 0 {
		cfg.PendingDelay = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Scheduler{Store: store, Events: publisher, cfg: cfg}
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Schedule sets the first due transition of a new document.
func (s *Scheduler) Schedule(doc *documents.Document, now time.Time) {
	doc.NextTransitionAt = s.dueAfter(doc.Status, now)
}

// Run ticks until ctx is cancelled. Documents left without a due time by an
// older deployment are rescheduled first.
func (s *Scheduler) Run(ctx context.Context) error {
	if n, err := s.Recover(ctx); err != nil {
		telemetry.Error("extraction.recover_failed", map[string]any{"error": err.Error()})
	} else if n > 0 {
		telemetry.Info("extraction.recovered", map[string]any{"count": n})
	}

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				metrics.IncSchedulerTickFailures()
				telemetry.Error("extraction.tick_failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// Tick advances every due document by exactly one step and returns how many
// advances were applied.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.Store.ListDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due: %w", err)
	}

	var applied atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, doc := range due {
		doc := doc
		g.Go(func() error {
			ok, err := s.advance(gctx, doc, now)
			if ok {
				applied.Add(1)
			}
			return err
		})
	}
	err = g.Wait()
	return int(applied.Load()), err
}

// EnsureScheduled gives a non-terminal document without a due time one,
// counted from when it entered its current status.
func (s *Scheduler) EnsureScheduled(ctx context.Context, id string) error {
	doc, err := s.Store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.reschedule(ctx, doc)
	return err
}

// Recover reschedules every stranded document and returns how many were fixed.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	docs, err := s.Store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}
	fixed := 0
	for _, doc := range docs {
		ok, err := s.reschedule(ctx, doc)
		if err != nil {
			return fixed, err
		}
		if ok {
			fixed++
		}
	}
	return fixed, nil
}

func (s *Scheduler) reschedule(ctx context.Context, doc documents.Document) (bool, error) {
	if doc.Status.Terminal() || doc.NextTransitionAt != nil {
		return false, nil
	}
	since := doc.StatusChangedAt
	if since.IsZero() {
		since = doc.UploadDate
	}
	_, applied, err := s.Store.AdvanceStatus(ctx, documents.Advance{
		ID:     doc.ID,
		From:   doc.Status,
		To:     doc.Status,
		At:     since,
		NextAt: s.dueAfter(doc.Status, since),
	})
	return applied, err
}

func (s *Scheduler) advance(ctx context.Context, doc documents.Document, now time.Time) (bool, error) {
	to, ok := s.next(doc.Status)
	if !ok {
		return false, nil
	}
	updated, applied, err := s.Store.AdvanceStatus(ctx, documents.Advance{
		ID:     doc.ID,
		From:   doc.Status,
		To:     to,
		At:     now,
		NextAt: s.dueAfter(to, now),
	})
	if err != nil {
		return false, fmt.Errorf("advance %s: %w", doc.ID, err)
	}
	if !applied {
		return false, nil
	}

	metrics.IncStatusTransition(string(to))
	fields := map[string]any{
		"document_id": doc.ID,
		"from":        string(doc.Status),
		"to":          string(to),
	}
	if to.Terminal() && !doc.UploadDate.IsZero() {
		elapsed := now.Sub(doc.UploadDate)
		metrics.ObserveExtractionDurationMs(float64(elapsed.Milliseconds()))
		fields["duration_ms"] = elapsed.Milliseconds()
	}
	telemetry.Info("extraction.advanced", fields)
	if s.Events != nil {
		s.Events.Publish(events.Event{
			Type:       events.TypeStatusChanged,
			DocumentID: updated.ID,
			Name:       updated.Name,
			Status:     string(to),
			Previous:   string(doc.Status),
			At:         now,
		})
	}
	return true, nil
}

func (s *Scheduler) next(from documents.Status) (documents.Status, bool) {
	switch from {
	case documents.StatusUploading:
		if s.cfg.PendingStage {
			return documents.StatusPendingOCR, true
		}
		return documents.StatusProcessing, true
	case documents.StatusPendingOCR:
		return documents.StatusProcessing, true
	case documents.StatusProcessing:
		return documents.StatusOCRComplete, true
	default:
		return "", false
	}
}

// dueAfter returns when a document that entered status at since leaves it,
// or nil when status is terminal.
func (s *Scheduler) dueAfter(status documents.Status, since time.Time) *time.Time {
	var delay time.Duration
	switch status {
	case documents.StatusUploading:
		delay = s.cfg.InitialDelay
	case documents.StatusPendingOCR:
		delay = s.cfg.PendingDelay
	case documents.StatusProcessing:
		delay = s.processingDelay()
	default:
		return nil
	}
	due := since.Add(delay)
	return &due
}

// processingDelay is uniform in [MinProcessing, MaxProcessing).
func (s *Scheduler) processingDelay() time.Duration {
	span := int64(s.cfg.MaxProcessing - s.cfg.MinProcessing)
	if span <= 0 {
		return s.cfg.MinProcessing
	}
	jitter := s.Jitter
	if jitter == nil {
		jitter = rand.Int64N
	}
	return s.cfg.MinProcessing + time.Duration(jitter(span))
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ documents.Scheduler = (*Scheduler)(nil)
