package documents

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voterlist-backend/internal/events"
	"voterlist-backend/internal/queue"
	"voterlist-backend/internal/shared/storage/kv"
	"voterlist-backend/internal/shared/storage/object/local"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

var testMeta = Metadata{
	District:     "রংপুর",
	Upazila:      "বদরগঞ্জ",
	Union:        "বদরগঞ্জ পৌরসভা",
	Ward:         "১",
	Neighborhood: "কলেজপাড়া",
}

type fixedScheduler struct {
	delay time.Duration
}

func (s fixedScheduler) Schedule(doc *Document, now time.Time) {
	due := now.Add(s.delay)
	doc.NextTransitionAt = &due
}

type recordingQueue struct {
	mu   sync.Mutex
	msgs []queue.Message
	err  error
}

func (q *recordingQueue) Send(_ context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return q.err
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) {
	p.events = append(p.events, e)
}

func newTestService(t *testing.T, repo Repo) *Service {
	t.Helper()
	return &Service{
		Store:     local.New(t.TempDir()),
		Repo:      repo,
		Scheduler: fixedScheduler{delay: 1500 * time.Millisecond},
		Now:       func() time.Time { return fixedNow },
	}
}

func TestUploadNamesAndOrdersDocuments(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	svc := newTestService(t, repo)
	pub := &recordingPublisher{}
	q := &recordingQueue{}
	svc.Events = pub
	svc.Queue = q

	batch := Batch{
		Male:   &File{FileName: "male.pdf", Content: []byte("%PDF-1.4 male")},
		Female: &File{FileName: "female.pdf", Content: []byte("%PDF-1.4 female")},
		Others: []*File{{FileName: "extra.pdf", Content: []byte("%PDF-1.4 other")}},
	}
	docs, err := svc.Upload(ctx, "u1", testMeta, batch, "req-1")
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "#রংপুর:বদরগঞ্জ:বদরগঞ্জ-পৌরসভা:ওয়ার্ড-১:কলেজপাড়া/পুরুষ", docs[0].Name)
	assert.Equal(t, "#রংপুর:বদরগঞ্জ:বদরগঞ্জ-পৌরসভা:ওয়ার্ড-১:কলেজপাড়া/মহিলা", docs[1].Name)
	assert.Equal(t, "#রংপুর:বদরগঞ্জ:বদরগঞ্জ-পৌরসভা:ওয়ার্ড-১:কলেজপাড়া/অন্যান্য-1", docs[2].Name)

	for _, d := range docs {
		assert.Equal(t, StatusUploading, d.Status)
		assert.Equal(t, "u1", d.UploadedBy)
		assert.Equal(t, fixedNow, d.UploadDate)
		assert.NotEmpty(t, d.ID)
		assert.NotEmpty(t, d.StorageKey)
		require.NotNil(t, d.NextTransitionAt)
		assert.Equal(t, fixedNow.Add(1500*time.Millisecond), *d.NextTransitionAt)
	}

	listed, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, docs[0].ID, listed[0].ID)
	assert.Equal(t, docs[2].ID, listed[2].ID)

	require.Len(t, pub.events, 3)
	assert.Equal(t, events.TypeUploaded, pub.events[0].Type)
	require.Len(t, q.msgs, 3)
	assert.Equal(t, "req-1", q.msgs[0].RequestID)
	assert.Equal(t, queue.MessageVersion, q.msgs[0].Version)
}

func TestUploadEmptyBatchIsNoOp(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(t, repo)

	_, err := svc.Upload(context.Background(), "u1", testMeta, Batch{}, "")
	assert.ErrorIs(t, err, ErrEmptyUploadBatch)

	docs, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestUploadRequiresUploader(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(t, repo)
	batch := Batch{Male: &File{FileName: "a.pdf", Content: []byte("x")}}

	_, err := svc.Upload(context.Background(), "  ", testMeta, batch, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	docs, _ := repo.List(context.Background())
	assert.Empty(t, docs)
}

func TestUploadValidatesMetadata(t *testing.T) {
	svc := newTestService(t, NewMemoryRepo())
	batch := Batch{Male: &File{FileName: "a.pdf", Content: []byte("x")}}

	meta := testMeta
	meta.Ward = " "
	_, err := svc.Upload(context.Background(), "u1", meta, batch, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "ward")

	_, err = svc.Upload(context.Background(), "u1", testMeta, Batch{Others: []*File{nil}}, "")
	assert.ErrorIs(t, err, ErrEmptyUploadBatch)
}

func TestUploadAcceptsZeroByteFile(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	svc := newTestService(t, repo)

	docs, err := svc.Upload(ctx, "u1", testMeta, Batch{Male: &File{FileName: "blank.pdf"}}, "")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(0), docs[0].SizeBytes)
	assert.Equal(t, 0, docs[0].PageCount)
	assert.Equal(t, StatusUploading, docs[0].Status)

	stored, err := repo.GetByID(ctx, docs[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.StorageKey)
}

func TestUploadNotifyFailureDoesNotFailUpload(t *testing.T) {
	svc := newTestService(t, NewMemoryRepo())
	svc.Queue = &recordingQueue{err: errors.New("queue down")}
	batch := Batch{Female: &File{FileName: "a.pdf", Content: []byte("x")}}

	docs, err := svc.Upload(context.Background(), "u1", testMeta, batch, "")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestPersistedStateHoldsNoFileBytes(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	repo, err := NewKVRepo(ctx, store)
	require.NoError(t, err)
	svc := newTestService(t, repo)

	secret := "VOTER-BYTES-MARKER"
	batch := Batch{Male: &File{FileName: "a.pdf", Content: []byte(secret)}}
	_, err = svc.Upload(ctx, "u1", testMeta, batch, "")
	require.NoError(t, err)

	raw, ok, err := store.Get(ctx, StateKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, string(raw), secret)

	var persisted []Document
	require.NoError(t, json.Unmarshal(raw, &persisted))
	require.Len(t, persisted, 1)
	assert.NotEmpty(t, persisted[0].StorageKey)
}

func TestOpenFileReturnsStoredBytes(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewMemoryRepo())
	batch := Batch{Male: &File{FileName: "a.pdf", Content: []byte("hello voters")}}
	docs, err := svc.Upload(ctx, "u1", testMeta, batch, "")
	require.NoError(t, err)

	_, rc, err := svc.OpenFile(ctx, docs[0].ID)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello voters", string(body))
}

func TestOpenFileMissingBytes(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	require.NoError(t, repo.CreateBatch(ctx, []Document{{ID: "legacy", Name: "n", Status: StatusOCRComplete}}))
	svc := newTestService(t, repo)

	doc, _, err := svc.OpenFile(ctx, "legacy")
	assert.ErrorIs(t, err, ErrFileUnavailable)
	assert.Equal(t, "n", doc.Name)

	_, _, err = svc.OpenFile(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadDiscardsFilesWhenRecordFails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, err := NewKVRepo(ctx, failingStore{Store: kv.NewMemoryStore()})
	require.NoError(t, err)
	svc := newTestService(t, repo)
	svc.Store = local.New(dir)

	batch := Batch{
		Male:   &File{FileName: "m.pdf", Content: []byte("m")},
		Female: &File{FileName: "f.pdf", Content: []byte("f")},
	}
	_, err = svc.Upload(ctx, "u1", testMeta, batch, "")
	require.Error(t, err)

	var files []string
	require.NoError(t, filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return err
	}))
	assert.Empty(t, files)
}
