package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"voterlist-backend/internal/events"
	"voterlist-backend/internal/queue"
	"voterlist-backend/internal/shared/metrics"
	"voterlist-backend/internal/shared/storage/object"
	"voterlist-backend/internal/shared/telemetry"
)

const defaultUploadConcurrency = 4

// Scheduler sets the first due transition of a freshly uploaded document.
type Scheduler interface {
	Schedule(doc *Document, now time.Time)
}

// Service contains business logic for documents.
type Service struct {
	Store             object.ObjectStore
	Repo              Repo
	Scheduler         Scheduler
	Queue             queue.Client
	Events            events.Publisher
	UploadConcurrency int
	Now               func() time.Time
}

// Upload stores every file of batch and records one UPLOADING document per
// file, named after metadata and the file's category.
func (s *Service) Upload(ctx context.Context, uploader string, meta Metadata, batch Batch, requestID string) ([]Document, error) {
	if strings.TrimSpace(uploader) == "" {
		return nil, ErrUnauthenticated
	}
	if batch.Empty() {
		return nil, ErrEmptyUploadBatch
	}
	meta = meta.trimmed()
	if field := meta.missingField(); field != "" {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}

	files := batch.label()
	stored := make([]Document, len(files))

	g, gctx := errgroup.WithContext(ctx)
	limit := s.UploadConcurrency
	if limit <= 0 {
		limit = defaultUploadConcurrency
	}
	g.SetLimit(limit)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			key, size, mimeType, err := s.Store.Save(gctx, uploader, f.File.FileName, bytes.NewReader(f.File.Content))
			if err != nil {
				return fmt.Errorf("store %s: %w", f.Type, err)
			}
			stored[i] = Document{
				StorageKey: key,
				FileName:   f.File.FileName,
				MimeType:   mimeType,
				SizeBytes:  size,
				PageCount:  pageCount(f.File.Content),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.discard(ctx, stored)
		return nil, err
	}

	now := s.now()
	docs := make([]Document, len(files))
	for i, f := range files {
		docMeta := meta
		docMeta.Type = f.Type
		doc := stored[i]
		doc.ID = uuid.NewString()
		doc.Name = BuildName(docMeta)
		doc.UploadDate = now
		doc.UploadedBy = uploader
		doc.Status = StatusUploading
		doc.Metadata = docMeta
		doc.StatusChangedAt = now
		if s.Scheduler != nil {
			s.Scheduler.Schedule(&doc, now)
		}
		docs[i] = doc
	}

	if err := s.Repo.CreateBatch(ctx, docs); err != nil {
		s.discard(ctx, stored)
		return nil, err
	}
	metrics.AddDocumentsUploaded(len(docs))

	for _, doc := range docs {
		telemetry.Info("documents.uploaded", map[string]any{
			"document_id": doc.ID,
			"name":        doc.Name,
			"uploaded_by": uploader,
			"size_bytes":  doc.SizeBytes,
			"page_count":  doc.PageCount,
			"request_id":  requestID,
		})
		if s.Events != nil {
			s.Events.Publish(events.Event{
				Type:       events.TypeUploaded,
				DocumentID: doc.ID,
				Name:       doc.Name,
				Status:     string(doc.Status),
				At:         now,
			})
		}
		s.notify(ctx, doc, requestID, now)
	}

	return docs, nil
}

// List returns every document, including ones still being processed.
func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.Repo.List(ctx)
}

// Get returns a document by ID.
func (s *Service) Get(ctx context.Context, id string) (Document, error) {
	if strings.TrimSpace(id) == "" {
		return Document{}, ErrNotFound
	}
	return s.Repo.GetByID(ctx, id)
}

// OpenFile opens the stored bytes of a document. Missing bytes report
// ErrFileUnavailable so callers can show a placeholder.
func (s *Service) OpenFile(ctx context.Context, id string) (Document, io.ReadCloser, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return Document{}, nil, err
	}
	if doc.StorageKey == "" || s.Store == nil {
		return doc, nil, ErrFileUnavailable
	}
	rc, err := s.Store.Open(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return doc, nil, ErrFileUnavailable
		}
		return doc, nil, err
	}
	return doc, rc, nil
}

// discard removes files already saved for a batch that will not be recorded.
func (s *Service) discard(ctx context.Context, stored []Document) {
	ctx = context.WithoutCancel(ctx)
	for _, d := range stored {
		if d.StorageKey == "" {
			continue
		}
		if err := s.Store.Delete(ctx, d.StorageKey); err != nil {
			telemetry.Error("documents.discard_failed", map[string]any{
				"storage_key": d.StorageKey,
				"error":       err.Error(),
			})
		}
	}
}

func (s *Service) notify(ctx context.Context, doc Document, requestID string, now time.Time) {
	if s.Queue == nil {
		return
	}
	err := s.Queue.Send(ctx, queue.Message{
		DocumentID: doc.ID,
		Name:       doc.Name,
		UploadedBy: doc.UploadedBy,
		RequestID:  requestID,
		EnqueuedAt: now.UTC().Format(time.RFC3339),
		Version:    queue.MessageVersion,
	})
	if err != nil {
		telemetry.Error("documents.notify_failed", map[string]any{
			"document_id": doc.ID,
			"request_id":  requestID,
			"error":       err.Error(),
		})
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
