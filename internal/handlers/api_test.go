package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rumor-ml/commons.systems/ofximport/internal/config"
	"github.com/rumor-ml/commons.systems/ofximport/internal/domain"
	"github.com/rumor-ml/commons.systems/ofximport/internal/middleware"
)

// fakeService records calls and returns canned results.
type fakeService struct {
	lastTenant string
	lastFile   string
	lastKeys   []string

	importResult *domain.ImportBatchResult
	listResult   *domain.ReviewPage
	err          error
}

func (f *fakeService) ImportFile(_ context.Context, tenantID string, _ []byte, fileName string) (*domain.ImportBatchResult, error) {
	f.lastTenant, f.lastFile = tenantID, fileName
	return f.importResult, f.err
}

func (f *fakeService) ListPending(_ context.Context, tenantID string, _, _ int) (*domain.ReviewPage, error) {
	f.lastTenant = tenantID
	return f.listResult, f.err
}

func (f *fakeService) CompleteReview(_ context.Context, tenantID string, acceptedKeys []string) (*domain.CompleteReviewResult, error) {
	f.lastTenant, f.lastKeys = tenantID, acceptedKeys
	if f.err != nil {
		return nil, f.err
	}
	return &domain.CompleteReviewResult{AcceptedCount: len(acceptedKeys)}, nil
}

func (f *fakeService) DeleteAllPending(_ context.Context, tenantID string) (int, error) {
	f.lastTenant = tenantID
	return 3, f.err
}

func newHandler(svc ImportService) http.Handler {
	h := New(svc, config.Default())
	tenant := middleware.NewTenantMiddleware(nil)

	mux := http.NewServeMux()
	mux.Handle("POST /api/import", tenant.RequireTenant(http.HandlerFunc(h.Upload)))
	mux.Handle("GET /api/review", tenant.RequireTenant(http.HandlerFunc(h.GetPending)))
	mux.Handle("POST /api/review/complete", tenant.RequireTenant(http.HandlerFunc(h.CompleteReview)))
	mux.Handle("DELETE /api/review", tenant.RequireTenant(http.HandlerFunc(h.DeleteAllPending)))
	return mux
}

func multipartBody(t *testing.T, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	fmt.Fprint(part, content)
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestUpload(t *testing.T) {
	svc := &fakeService{importResult: &domain.ImportBatchResult{
		ImportedCount: 2,
		NewCount:      2,
		Errors:        []domain.ParseError{},
	}}
	handler := newHandler(svc)

	body, contentType := multipartBody(t, "statement.ofx", "OFXHEADER:100\n")
	req := httptest.NewRequest(http.MethodPost, "/api/import", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(middleware.TenantHeader, "tenant1")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if svc.lastTenant != "tenant1" {
		t.Errorf("tenant = %q, want %q", svc.lastTenant, "tenant1")
	}
	if svc.lastFile != "statement.ofx" {
		t.Errorf("file = %q, want %q", svc.lastFile, "statement.ofx")
	}

	var result domain.ImportBatchResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.ImportedCount != 2 || result.NewCount != 2 {
		t.Errorf("result = %+v", result)
	}
}

func TestUpload_MissingTenant(t *testing.T) {
	handler := newHandler(&fakeService{})

	body, contentType := multipartBody(t, "statement.ofx", "OFXHEADER:100\n")
	req := httptest.NewRequest(http.MethodPost, "/api/import", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestUpload_DisallowedExtension(t *testing.T) {
	handler := newHandler(&fakeService{})

	body, contentType := multipartBody(t, "statement.csv", "Date,Amount\n")
	req := httptest.NewRequest(http.MethodPost, "/api/import", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(middleware.TenantHeader, "tenant1")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpload_NoFileField(t *testing.T) {
	handler := newHandler(&fakeService{})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("other", "value")
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/import", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set(middleware.TenantHeader, "tenant1")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpload_ServiceError(t *testing.T) {
	svc := &fakeService{err: fmt.Errorf("store unavailable")}
	handler := newHandler(svc)

	body, contentType := multipartBody(t, "statement.ofx", "OFXHEADER:100\n")
	req := httptest.NewRequest(http.MethodPost, "/api/import", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(middleware.TenantHeader, "tenant1")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestGetPending(t *testing.T) {
	svc := &fakeService{listResult: &domain.ReviewPage{
		Rows:       []domain.ReviewRow{},
		PageNumber: 2,
		PageSize:   10,
		TotalCount: 15,
	}}
	handler := newHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/review?page=2&pageSize=10", nil)
	req.Header.Set(middleware.TenantHeader, "tenant1")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	var page domain.ReviewPage
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if page.PageNumber != 2 || page.TotalCount != 15 {
		t.Errorf("page = %+v", page)
	}
}

func TestCompleteReview(t *testing.T) {
	svc := &fakeService{}
	handler := newHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/review/complete",
		strings.NewReader(`{"acceptedKeys":["k1","k2"]}`))
	req.Header.Set(middleware.TenantHeader, "tenant1")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if len(svc.lastKeys) != 2 || svc.lastKeys[0] != "k1" {
		t.Errorf("keys = %v, want [k1 k2]", svc.lastKeys)
	}
}

func TestCompleteReview_EmptyKeyRejected(t *testing.T) {
	handler := newHandler(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/api/review/complete",
		strings.NewReader(`{"acceptedKeys":["k1",""]}`))
	req.Header.Set(middleware.TenantHeader, "tenant1")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp struct {
		Errors []struct {
			Index   int    `json:"index"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Index != 1 {
		t.Errorf("errors = %+v, want one error at index 1", resp.Errors)
	}
}

func TestCompleteReview_InvalidBody(t *testing.T) {
	handler := newHandler(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/api/review/complete",
		strings.NewReader(`{not json`))
	req.Header.Set(middleware.TenantHeader, "tenant1")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteAllPending(t *testing.T) {
	svc := &fakeService{}
	handler := newHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/review", nil)
	req.Header.Set(middleware.TenantHeader, "tenant1")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["deletedCount"] != 3 {
		t.Errorf("deletedCount = %d, want 3", resp["deletedCount"])
	}
}

func TestHealthCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	HealthCheck(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/review?page=7&bad=abc", nil)
	if got := queryInt(req, "page", 1); got != 7 {
		t.Errorf("queryInt(page) = %d, want 7", got)
	}
	if got := queryInt(req, "missing", 42); got != 42 {
		t.Errorf("queryInt(missing) = %d, want fallback 42", got)
	}
	if got := queryInt(req, "bad", 42); got != 42 {
		t.Errorf("queryInt(bad) = %d, want fallback 42", got)
	}
}
