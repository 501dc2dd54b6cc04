package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"docuexplore/internal/apperr"
	"docuexplore/internal/auth"
	"docuexplore/internal/models"
	"docuexplore/internal/session"
)

type mockWorkers struct {
	mu       sync.Mutex
	views    map[string]models.SessionView
	uploads  []session.UploadRequest
	asks     []string
	askErr   error
	resets   int
	ended    []string
	uploadFn func() error
}

func newMockWorkers() *mockWorkers {
	return &mockWorkers{views: make(map[string]models.SessionView)}
}

func (m *mockWorkers) Upload(_ context.Context, id string, req session.UploadRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadFn != nil {
		if err := m.uploadFn(); err != nil {
			return err
		}
	}
	m.uploads = append(m.uploads, req)
	m.views[id] = models.SessionView{ID: id, Phase: models.PhaseUploading, Pending: true}
	return nil
}

func (m *mockWorkers) Ask(_ context.Context, id, question string) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asks = append(m.asks, question)
	if m.askErr != nil {
		return models.Message{}, m.askErr
	}
	return models.Message{Role: models.RoleAssistant, Content: "It covers 2023.", CreatedAt: time.Now()}, nil
}

func (m *mockWorkers) Reset(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	delete(m.views, id)
	return nil
}

func (m *mockWorkers) Snapshot(_ context.Context, id string) models.SessionView {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.views[id]; ok {
		return v
	}
	return models.SessionView{ID: id, Phase: models.PhaseNoDocument}
}

func (m *mockWorkers) End(_ context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = append(m.ended, id)
	delete(m.views, id)
}

type testClient struct {
	router  *gin.Engine
	cookies []*http.Cookie
	session string
	csrf    string
}

func newTestServer(t *testing.T, health func(context.Context) error) (*testClient, *mockWorkers, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	workers := newMockWorkers()
	authSvc := auth.NewService(time.Hour)
	handler := NewHandler(workers, authSvc, 1<<20, health, nil)
	handler.inspect = func(data []byte) (int, error) {
		if !bytes.HasPrefix(data, []byte("%PDF")) {
			return 0, apperr.New(apperr.KindValidation, "only PDF files are accepted", nil)
		}
		return 4, nil
	}
	router := gin.New()
	handler.RegisterRoutes(router)

	client := &testClient{router: router}
	rec := client.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assertStatus(t, rec, http.StatusOK)
	client.cookies = rec.Result().Cookies()
	for _, ck := range client.cookies {
		switch ck.Name {
		case authSvc.SessionCookieName():
			client.session = ck.Value
		case authSvc.CSRFCookieName():
			client.csrf = ck.Value
		}
	}
	if client.session == "" || client.csrf == "" {
		t.Fatalf("expected session and csrf cookies")
	}
	return client, workers, handler
}

func (tc *testClient) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	for _, ck := range tc.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	tc.router.ServeHTTP(rec, req)
	return rec
}

func (tc *testClient) postForm(t *testing.T, path string, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return tc.do(t, req)
}

func (tc *testClient) uploadFile(t *testing.T, name string, data []byte, csrf string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if csrf != "" {
		if err := w.WriteField("csrf_token", csrf); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(data)
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return tc.do(t, req)
}

func TestIndexShowsNeutralPrompt(t *testing.T) {
	client, _, _ := newTestServer(t, nil)
	rec := client.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assertStatus(t, rec, http.StatusOK)
	body := rec.Body.String()
	if !strings.Contains(body, "Upload a PDF") || strings.Contains(body, `http-equiv="refresh"`) {
		t.Fatalf("unexpected landing page: %s", body)
	}
	if !strings.Contains(body, client.csrf) {
		t.Fatalf("expected csrf token embedded in forms")
	}
}

func TestUploadAcceptsPDF(t *testing.T) {
	client, workers, _ := newTestServer(t, nil)

	rec := client.uploadFile(t, "energy.pdf", []byte("%PDF-1.4 body"), client.csrf)
	assertStatus(t, rec, http.StatusSeeOther)
	if len(workers.uploads) != 1 {
		t.Fatalf("expected one upload, got %d", len(workers.uploads))
	}
	got := workers.uploads[0]
	if got.FileName != "energy.pdf" || got.Pages != 4 || string(got.Data) != "%PDF-1.4 body" {
		t.Fatalf("unexpected upload request %+v", got)
	}

	page := client.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(page.Body.String(), `http-equiv="refresh"`) || !strings.Contains(page.Body.String(), "Uploading PDF") {
		t.Fatalf("expected progress page with auto refresh, got %s", page.Body.String())
	}
}

func TestUploadRejectsInvalidFiles(t *testing.T) {
	client, workers, _ := newTestServer(t, nil)

	rec := client.uploadFile(t, "notes.txt", []byte("%PDF-1.4"), client.csrf)
	assertStatus(t, rec, http.StatusBadRequest)
	if !strings.Contains(rec.Body.String(), "only PDF files are accepted") {
		t.Fatalf("expected error banner, got %s", rec.Body.String())
	}

	rec = client.uploadFile(t, "fake.pdf", []byte("hello"), client.csrf)
	assertStatus(t, rec, http.StatusBadRequest)

	rec = client.uploadFile(t, "big.pdf", append([]byte("%PDF"), make([]byte, 1<<20)...), client.csrf)
	assertStatus(t, rec, http.StatusBadRequest)
	if !strings.Contains(rec.Body.String(), "file too large") {
		t.Fatalf("expected size error, got %s", rec.Body.String())
	}

	rec = client.uploadFile(t, "energy.pdf", []byte("%PDF-1.4"), "")
	assertStatus(t, rec, http.StatusForbidden)

	if len(workers.uploads) != 0 {
		t.Fatalf("invalid uploads must not reach the workers")
	}
}

func TestUploadWhileBusy(t *testing.T) {
	client, workers, _ := newTestServer(t, nil)
	workers.uploadFn = func() error {
		return apperr.New(apperr.KindBusy, "the previous request is still being processed", nil)
	}
	rec := client.uploadFile(t, "energy.pdf", []byte("%PDF-1.4"), client.csrf)
	assertStatus(t, rec, http.StatusTooManyRequests)
}

func TestReadyPageRendersResults(t *testing.T) {
	client, workers, _ := newTestServer(t, nil)
	workers.views[client.session] = models.SessionView{
		ID:       client.session,
		Phase:    models.PhaseReady,
		Document: &models.Document{FileName: "energy.pdf", Pages: 4, State: models.DocumentActive},
		Summary:  "A report on renewable energy",
		Title:    "Renewable Energy Report",
		Search: &models.SearchResultSet{
			Answer:  "Renewables are growing.",
			Results: []models.SearchResult{{Title: "Solar outlook", URL: "https://a.example"}},
		},
		History: []models.Message{
			{Role: models.RoleUser, Content: "What year is this?"},
			{Role: models.RoleAssistant, Content: "It covers 2023."},
		},
	}

	rec := client.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assertStatus(t, rec, http.StatusOK)
	body := rec.Body.String()
	for _, want := range []string{"A report on renewable energy", "Renewable Energy Report", "https://a.example", "Renewables are growing.", "It covers 2023."} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in page", want)
		}
	}
	if strings.Contains(body, `http-equiv="refresh"`) {
		t.Fatalf("ready page must not auto refresh")
	}

	v := workers.views[client.session]
	v.Search = nil
	v.SearchWarning = session.SearchWarning
	workers.views[client.session] = v
	rec = client.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rec.Body.String(), "Unable to fetch related articles") {
		t.Fatalf("expected search warning")
	}
}

func TestFailedPageShowsError(t *testing.T) {
	client, workers, _ := newTestServer(t, nil)
	workers.views[client.session] = models.SessionView{ID: client.session, Phase: models.PhaseFailed, Error: "File energy.pdf failed to process"}
	rec := client.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rec.Body.String(), "File energy.pdf failed to process") {
		t.Fatalf("expected error banner")
	}
}

func TestAskForm(t *testing.T) {
	client, workers, _ := newTestServer(t, nil)
	rec := client.postForm(t, "/ask", url.Values{"question": {"What year is this?"}, "csrf_token": {client.csrf}})
	assertStatus(t, rec, http.StatusSeeOther)
	if len(workers.asks) != 1 || workers.asks[0] != "What year is this?" {
		t.Fatalf("unexpected asks %v", workers.asks)
	}

	workers.askErr = apperr.New(apperr.KindChatTurn, "the document model did not answer", nil)
	rec = client.postForm(t, "/ask", url.Values{"question": {"again"}, "csrf_token": {client.csrf}})
	assertStatus(t, rec, http.StatusSeeOther)

	workers.askErr = apperr.New(apperr.KindNotReady, "upload a document before asking questions", nil)
	rec = client.postForm(t, "/ask", url.Values{"question": {"early"}, "csrf_token": {client.csrf}})
	assertStatus(t, rec, http.StatusConflict)
}

func TestAskJSON(t *testing.T) {
	client, workers, _ := newTestServer(t, nil)
	doAsk := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question":"What year is this?"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-CSRF-Token", client.csrf)
		return client.do(t, req)
	}

	rec := doAsk()
	assertStatus(t, rec, http.StatusOK)
	var body struct {
		Message models.Message `json:"message"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Message.Content != "It covers 2023." {
		t.Fatalf("unexpected message %+v", body.Message)
	}

	workers.askErr = apperr.New(apperr.KindBusy, "the previous request is still being processed", nil)
	rec = doAsk()
	assertStatus(t, rec, http.StatusTooManyRequests)
}

func TestSessionStateJSON(t *testing.T) {
	client, workers, _ := newTestServer(t, nil)
	workers.views[client.session] = models.SessionView{ID: client.session, Phase: models.PhaseSummarizing, Pending: true}
	rec := client.do(t, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	assertStatus(t, rec, http.StatusOK)
	var v models.SessionView
	decodeJSON(t, rec.Body.Bytes(), &v)
	if v.Phase != models.PhaseSummarizing || !v.Pending || v.ID != client.session {
		t.Fatalf("unexpected session view %+v", v)
	}
}

func TestResetAndEnd(t *testing.T) {
	client, workers, _ := newTestServer(t, nil)
	rec := client.postForm(t, "/reset", url.Values{"csrf_token": {client.csrf}})
	assertStatus(t, rec, http.StatusSeeOther)
	if workers.resets != 1 {
		t.Fatalf("expected reset, got %d", workers.resets)
	}

	rec = client.postForm(t, "/end", url.Values{"csrf_token": {client.csrf}})
	assertStatus(t, rec, http.StatusSeeOther)
	if len(workers.ended) != 1 || workers.ended[0] != client.session {
		t.Fatalf("expected session %s ended, got %v", client.session, workers.ended)
	}
	cleared := false
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "docuexplore_session" && ck.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected session cookie cleared")
	}
}

func TestHealthz(t *testing.T) {
	client, _, _ := newTestServer(t, nil)
	rec := client.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assertStatus(t, rec, http.StatusOK)

	down, _, _ := newTestServer(t, func(context.Context) error { return errors.New("redis down") })
	rec = down.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assertStatus(t, rec, http.StatusServiceUnavailable)
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}
