package documents

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"voterlist-backend/internal/events"
	"voterlist-backend/internal/shared/server/middleware"
	"voterlist-backend/internal/shared/server/respond"
)

const (
	defaultMaxUploadBytes = 50 << 20
	emptyBatchMessage     = "অন্তত একটি ফাইল আপলোড করুন"
	fileMissingMessage    = "ফাইল পাওয়া যায়নি"
	maxOtherSlots         = 20
)

var otherSlotField = regexp.MustCompile(`^other\[(\d+)\]$`)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc            *Service
	Events         *events.Broker
	MaxUploadBytes int64
	upgrader       *websocket.Upgrader
}

// NewHandler constructs a Handler. allowedOrigins gates the event stream
// handshake.
func NewHandler(svc *Service, broker *events.Broker, maxUploadBytes int64, allowedOrigins []string) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{
		Svc:            svc,
		Events:         broker,
		MaxUploadBytes: maxUploadBytes,
		upgrader:       newUpgrader(allowedOrigins),
	}
}

// RegisterRoutes attaches document routes. The caller mounts rg behind
// middleware.RequireUser.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/documents", h.list)
	rg.POST("/documents", h.upload)
	rg.GET("/documents/events", h.stream)
	rg.GET("/documents/:id", h.get)
	rg.GET("/documents/:id/file", h.file)
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large", "upload exceeds size limit", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "multipart form required", nil)
		return
	}

	meta := Metadata{
		District:     firstValue(form, "district"),
		Upazila:      firstValue(form, "upazila"),
		Union:        firstValue(form, "union"),
		Ward:         firstValue(form, "ward"),
		Neighborhood: firstValue(form, "neighborhood"),
	}

	batch, err := readBatch(form)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	docs, err := h.Svc.Upload(c.Request.Context(), middleware.UserIDFromContext(c), meta, batch, middleware.RequestIDFromContext(c))
	if err != nil {
		switch {
		case errors.Is(err, ErrUnauthenticated):
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
		case errors.Is(err, ErrEmptyUploadBatch):
			respond.Error(c, http.StatusBadRequest, "empty_upload_batch", emptyBatchMessage, nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to upload documents", nil)
		}
		return
	}

	c.Set(middleware.LogUploadCountKey, len(docs))
	if len(docs) == 1 {
		c.Set(middleware.LogDocumentIDKey, docs[0].ID)
	}
	respond.Created(c, gin.H{"items": toResponses(docs)})
}

func (h *Handler) list(c *gin.Context) {
	docs, err := h.Svc.List(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list documents", nil)
		return
	}
	respond.OK(c, gin.H{"items": toResponses(docs)})
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.LogDocumentIDKey, id)
	doc, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch document", nil)
		return
	}
	respond.OK(c, toResponse(doc))
}

func (h *Handler) file(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.LogDocumentIDKey, id)
	doc, rc, err := h.Svc.OpenFile(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.Is(err, ErrFileUnavailable):
			respond.Error(c, http.StatusNotFound, "file_not_found", fileMissingMessage, gin.H{"name": doc.Name})
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to open document file", nil)
		}
		return
	}
	defer rc.Close()

	contentType := doc.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename*=UTF-8''%s", url.PathEscape(doc.FileName)))
	c.DataFromReader(http.StatusOK, doc.SizeBytes, contentType, rc, nil)
}

func (h *Handler) stream(c *gin.Context) {
	if h.Events == nil {
		respond.Error(c, http.StatusServiceUnavailable, "unavailable", "event stream disabled", nil)
		return
	}
	up := h.upgrader
	if up == nil {
		up = newUpgrader(nil)
	}
	serveEvents(c, up, h.Events, 30*time.Second)
}

func readBatch(form *multipart.Form) (Batch, error) {
	var batch Batch
	if fh := firstFile(form, "male"); fh != nil {
		f, err := readFile(fh)
		if err != nil {
			return Batch{}, err
		}
		batch.Male = &f
	}
	if fh := firstFile(form, "female"); fh != nil {
		f, err := readFile(fh)
		if err != nil {
			return Batch{}, err
		}
		batch.Female = &f
	}
	slots, err := otherSlots(form)
	if err != nil {
		return Batch{}, err
	}
	for i, fh := range slots {
		if fh == nil {
			continue
		}
		f, err := readFile(fh)
		if err != nil {
			return Batch{}, err
		}
		if batch.Others == nil {
			batch.Others = make([]*File, len(slots))
		}
		batch.Others[i] = &f
	}
	return batch, nil
}

// otherSlots orders the "other" files by form slot. Fields named "other[N]"
// fill slot N (1-based); plain "other" files take the slots after them.
func otherSlots(form *multipart.Form) ([]*multipart.FileHeader, error) {
	var slots []*multipart.FileHeader
	for key, files := range form.File {
		m := otherSlotField.FindStringSubmatch(key)
		if m == nil || len(files) == 0 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > maxOtherSlots {
			return nil, fmt.Errorf("invalid file slot %q", key)
		}
		for len(slots) < n {
			slots = append(slots, nil)
		}
		if slots[n-1] != nil {
			return nil, fmt.Errorf("file slot %d given twice", n)
		}
		slots[n-1] = files[0]
	}
	slots = append(slots, form.File["other"]...)
	if len(slots) > maxOtherSlots {
		return nil, fmt.Errorf("at most %d other files are allowed", maxOtherSlots)
	}
	return slots, nil
}

func readFile(fh *multipart.FileHeader) (File, error) {
	src, err := fh.Open()
	if err != nil {
		return File{}, fmt.Errorf("unable to read file %q", fh.Filename)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return File{}, fmt.Errorf("unable to read file %q", fh.Filename)
	}
	return File{FileName: fh.Filename, Content: data}, nil
}

func firstValue(form *multipart.Form, key string) string {
	if vals := form.Value[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func firstFile(form *multipart.Form, key string) *multipart.FileHeader {
	if files := form.File[key]; len(files) > 0 {
		return files[0]
	}
	return nil
}
