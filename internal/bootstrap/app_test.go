package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"voterlist-backend/internal/documents"
	"voterlist-backend/internal/shared/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Env:                    "dev",
		StateDir:               t.TempDir(),
		LocalStoreDir:          t.TempDir(),
		ObjectStoreType:        "local",
		AdminUsername:          "01737654555",
		AdminPassword:          "admin-secret",
		PasswordHasher:         "sha256",
		SessionSecret:          "test-session-secret-test-session",
		SessionTTL:             time.Hour,
		MaxUploadBytes:         1 << 20,
		ExtractionInitialDelay: time.Millisecond,
		ExtractionMinDelay:     time.Millisecond,
		ExtractionMaxDelay:     2 * time.Millisecond,
	}
}

func login(t *testing.T, r *gin.Engine, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", username, resp.Code, resp.Body.String())
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return payload.Token
}

func do(r *gin.Engine, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestBuildServesFullFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app, err := Build(testConfig(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	adminToken := login(t, app.Router, "01737654555", "admin-secret")

	create := bytes.NewBufferString(`{"username":"u1","password":"pw1","role":"USER"}`)
	if resp := do(app.Router, http.MethodPost, "/api/v1/admin/accounts", adminToken, create, "application/json"); resp.Code != http.StatusCreated {
		t.Fatalf("create account: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	userToken := login(t, app.Router, "u1", "pw1")
	if resp := do(app.Router, http.MethodGet, "/api/v1/admin/accounts", userToken, nil, ""); resp.Code != http.StatusForbidden {
		t.Fatalf("user on admin route: expected 403, got %d", resp.Code)
	}

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range map[string]string{"district": "রংপুর", "upazila": "বদরগঞ্জ", "union": "বদরগঞ্জ পৌরসভা", "ward": "১", "neighborhood": "কলেজপাড়া"} {
		_ = w.WriteField(k, v)
	}
	part, _ := w.CreateFormFile("male", "male.pdf")
	_, _ = part.Write([]byte("%PDF-1.4 test"))
	_ = w.Close()

	resp := do(app.Router, http.MethodPost, "/api/v1/documents", userToken, body, w.FormDataContentType())
	if resp.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var uploaded struct {
		Items []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	if len(uploaded.Items) != 1 || uploaded.Items[0].Status != "UPLOADING" {
		t.Fatalf("unexpected upload response %+v", uploaded)
	}
	id := uploaded.Items[0].ID

	search := bytes.NewBufferString(`{"query":"রহিম"}`)
	if resp := do(app.Router, http.MethodPost, "/api/v1/documents/"+id+"/search", userToken, search, "application/json"); resp.Code != http.StatusConflict {
		t.Fatalf("search before OCR: expected 409, got %d", resp.Code)
	}

	ctx := context.Background()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := app.Scheduler.Tick(ctx); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		doc, err := app.DocumentsService.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if doc.Status == documents.StatusOCRComplete {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("document stuck at %s", doc.Status)
		}
		time.Sleep(2 * time.Millisecond)
	}

	search = bytes.NewBufferString(`{"query":"রহিম"}`)
	if resp := do(app.Router, http.MethodPost, "/api/v1/documents/"+id+"/search", userToken, search, "application/json"); resp.Code != http.StatusOK {
		t.Fatalf("search after OCR: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestBuildRequiresAdminPasswordOutsideDev(t *testing.T) {
	cfg := testConfig(t)
	cfg.Env = "production"
	cfg.AdminPassword = ""
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected error without ADMIN_PASSWORD in production")
	}
}

func TestStatePersistsAcrossBuilds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)

	first, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	token := login(t, first.Router, "01737654555", "admin-secret")
	create := bytes.NewBufferString(`{"username":"u2","password":"pw2"}`)
	if resp := do(first.Router, http.MethodPost, "/api/v1/admin/accounts", token, create, "application/json"); resp.Code != http.StatusCreated {
		t.Fatalf("create account: expected 201, got %d", resp.Code)
	}
	_ = first.Close()

	second, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build again: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	login(t, second.Router, "u2", "pw2")
}
