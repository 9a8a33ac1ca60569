package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-alerts/api/handlers"
	"github.com/feichai0017/document-alerts/api/middleware"
	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/internal/service/document"
	"github.com/feichai0017/document-alerts/internal/store"
	"github.com/feichai0017/document-alerts/internal/utils/validator"
	"github.com/feichai0017/document-alerts/pkg/logger"
	"github.com/feichai0017/document-alerts/pkg/queue"
	"github.com/feichai0017/document-alerts/pkg/storage/memory"
)

var png = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type analyzeFunc func(ctx context.Context, id string) (*models.AnalysisResult, error)

func (f analyzeFunc) Analyze(ctx context.Context, id string) (*models.AnalysisResult, error) {
	return f(ctx, id)
}

type fakeQueue struct {
	mu     sync.Mutex
	queued map[string]bool
	err    error
}

func (q *fakeQueue) EnqueueAnalysis(ctx context.Context, documentID string, priority int) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	if q.queued[documentID] {
		return "", fmt.Errorf("%w: %s", queue.ErrAlreadyQueued, documentID)
	}
	q.queued[documentID] = true
	return documentID, nil
}

func (q *fakeQueue) CancelTask(ctx context.Context, taskID string) error { return nil }
func (q *fakeQueue) Close() error                                       { return nil }

type fakeStatuses struct {
	mu       sync.Mutex
	statuses map[string]queue.AnalysisStatus
}

func (s *fakeStatuses) SaveStatus(ctx context.Context, st *queue.AnalysisStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[st.DocumentID] = *st
	return nil
}

func (s *fakeStatuses) GetStatus(ctx context.Context, id string) (*queue.AnalysisStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[id]
	if !ok {
		return nil, queue.ErrStatusNotFound
	}
	return &st, nil
}

type brokenAlerts struct{}

func (brokenAlerts) FindByStatus(ctx context.Context, status models.AlertStatus) ([]models.Alert, error) {
	return nil, models.StoreError("find by status", errors.New("dial tcp 10.1.2.3:5432: connection refused"))
}

type testServer struct {
	router   *gin.Engine
	docs     *document.DocumentService
	alerts   *store.MemoryStore
	statuses *fakeStatuses
	queue    *fakeQueue
}

func newTestServer(t *testing.T, analyzer handlers.Analyzer, alerts handlers.AlertReader) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	docs := document.NewService(memory.New(), validator.NewDocumentValidator(logger.NewNop(), nil), logger.NewNop())
	mem := store.NewMemoryStore()
	if alerts == nil {
		alerts = mem
	}
	statuses := &fakeStatuses{statuses: make(map[string]queue.AnalysisStatus)}
	q := &fakeQueue{queued: make(map[string]bool)}

	r := gin.New()
	SetupRoutes(r, handlers.NewHandlers(handlers.Deps{
		Documents: docs,
		Analyzer:  analyzer,
		Alerts:    alerts,
		Queue:     q,
		Statuses:  statuses,
	}, logger.NewNop()), logger.NewNop())

	return &testServer{router: r, docs: docs, alerts: mem, statuses: statuses, queue: q}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, filename string, content []byte, query string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents"+query, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadAndEnqueue(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := s.do(uploadRequest(t, "scan.png", png, "?enqueue=true"))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var resp handlers.UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Document == nil || resp.Document.ID == "" || resp.TaskID != resp.Document.ID {
		t.Fatalf("response = %+v", resp)
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Fatal("missing request id header")
	}

	w = s.do(httptest.NewRequest(http.MethodPost, "/api/v1/documents/"+resp.Document.ID+"/enqueue", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("second enqueue status = %d, want 409", w.Code)
	}

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+resp.Document.ID, nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"pending"`) {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
}

func TestUploadKeepsDocumentWhenEnqueueFails(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.queue.err = errors.New("dial tcp: connection refused")

	w := s.do(uploadRequest(t, "scan.png", png, "?enqueue=true"))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var resp handlers.UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Document == nil || resp.Document.ID == "" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.TaskID != "" || resp.EnqueueError != "analysis not queued" {
		t.Fatalf("task = %q, enqueue error = %q", resp.TaskID, resp.EnqueueError)
	}
	if strings.Contains(w.Body.String(), "connection refused") {
		t.Fatalf("internal error leaked: %s", w.Body)
	}

	// the stored document can be queued once the queue is back
	s.queue.mu.Lock()
	s.queue.err = nil
	s.queue.mu.Unlock()
	w = s.do(httptest.NewRequest(http.MethodPost, "/api/v1/documents/"+resp.Document.ID+"/enqueue", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("enqueue status = %d, body = %s", w.Code, w.Body)
	}
}

func TestUploadRejectsInvalidFile(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := s.do(uploadRequest(t, "notes.txt", []byte("hello"), ""))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp handlers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Details == nil {
		t.Fatalf("response = %+v, want validation details", resp)
	}
}

func TestEnqueueUnknownDocument(t *testing.T) {
	s := newTestServer(t, nil, nil)
	w := s.do(httptest.NewRequest(http.MethodPost, "/api/v1/documents/missing/enqueue", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestAnalyzeMapsErrors(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("fetch: %w", models.ErrDocumentNotFound), http.StatusNotFound},
		{models.NewDecodeError("D", 1, errors.New("bad stream")), http.StatusUnprocessableEntity},
		{models.NewTruncatedError("D", 2, errors.New("eof")), http.StatusUnprocessableEntity},
		{fmt.Errorf("extract: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{models.StoreError("save", errors.New("secret backend detail")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			s := newTestServer(t, analyzeFunc(func(ctx context.Context, id string) (*models.AnalysisResult, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return &models.AnalysisResult{DocumentID: id, Matches: []models.RuleMatch{{RuleID: "r"}}}, nil
			}), nil)

			w := s.do(httptest.NewRequest(http.MethodPost, "/api/v1/documents/D/analyze", nil))
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.code, w.Body)
			}
			if strings.Contains(w.Body.String(), "secret backend detail") {
				t.Fatalf("backend detail leaked: %s", w.Body)
			}

			st, err := s.statuses.GetStatus(context.Background(), "D")
			if err != nil {
				t.Fatal(err)
			}
			want := models.StatusCompleted
			if tt.err != nil {
				want = models.StatusFailed
			}
			if st.Status != want {
				t.Fatalf("recorded status = %s, want %s", st.Status, want)
			}
		})
	}
}

func TestListAlerts(t *testing.T) {
	s := newTestServer(t, nil, nil)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, a := range []models.Alert{
		{ID: "a1", DocumentID: "D1", RuleID: "r", Status: models.AlertActive, TriggeredAt: base},
		{ID: "a2", DocumentID: "D2", RuleID: "r", Status: models.AlertActive, TriggeredAt: base.Add(5 * time.Minute)},
		{ID: "a3", DocumentID: "D3", RuleID: "r", Status: models.AlertResolved, TriggeredAt: base.Add(-10 * time.Minute)},
	} {
		if _, err := s.alerts.Save(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var views []handlers.AlertView
	if err := json.Unmarshal(w.Body.Bytes(), &views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 2 || views[0].ID != "a2" || views[1].ID != "a1" {
		t.Fatalf("views = %+v", views)
	}

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/alerts?status=resolved", nil))
	if err := json.Unmarshal(w.Body.Bytes(), &views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].ID != "a3" {
		t.Fatalf("resolved views = %+v", views)
	}

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/alerts?status=bogus", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestListAlertsEmptyIsArray(t *testing.T) {
	s := newTestServer(t, nil, nil)
	w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("body = %s, want []", w.Body)
	}
}

func TestListAlertsStoreFailureIsGeneric(t *testing.T) {
	s := newTestServer(t, nil, brokenAlerts{})
	w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != `{"error":"internal error"}` {
		t.Fatalf("body = %s", w.Body)
	}
}

func TestExportAlerts(t *testing.T) {
	s := newTestServer(t, nil, nil)
	w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/alerts/export", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment; filename=alerts_active_") {
		t.Fatalf("disposition = %s", w.Header().Get("Content-Disposition"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Fatal("export is not a zip container")
	}
}

func TestReportNotFound(t *testing.T) {
	s := newTestServer(t, nil, nil)
	w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/documents/D/report", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil, nil)
	if w := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
