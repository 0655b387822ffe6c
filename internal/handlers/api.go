// Package handlers exposes the import and review workflow over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rumor-ml/commons.systems/ofximport/internal/config"
	"github.com/rumor-ml/commons.systems/ofximport/internal/domain"
	"github.com/rumor-ml/commons.systems/ofximport/internal/middleware"
	"github.com/rumor-ml/commons.systems/ofximport/internal/validate"
)

// ImportService is the workflow surface consumed by the HTTP layer.
// Implemented by review.Service.
type ImportService interface {
	ImportFile(ctx context.Context, tenantID string, data []byte, fileName string) (*domain.ImportBatchResult, error)
	ListPending(ctx context.Context, tenantID string, pageNumber, pageSize int) (*domain.ReviewPage, error)
	CompleteReview(ctx context.Context, tenantID string, acceptedKeys []string) (*domain.CompleteReviewResult, error)
	DeleteAllPending(ctx context.Context, tenantID string) (int, error)
}

// Handlers serves the import and review endpoints.
type Handlers struct {
	svc ImportService
	cfg config.Config
}

// New creates the handler set.
func New(svc ImportService, cfg config.Config) *Handlers {
	return &Handlers{svc: svc, cfg: cfg}
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// Upload handles POST /api/import. The request carries one statement file in
// the "file" multipart field. The response is always a 200-level
// ImportBatchResult, even when every transaction failed to parse.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenant(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		http.Error(w, "Failed to parse form (file may exceed the upload limit)", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !h.extensionAllowed(header.Filename) {
		http.Error(w, fmt.Sprintf("File extension not allowed (expected one of %s)",
			strings.Join(h.cfg.AllowedExtensions, ", ")), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read uploaded file", http.StatusBadRequest)
		return
	}

	result, err := h.svc.ImportFile(r.Context(), tenantID, data, header.Filename)
	if err != nil {
		log.Printf("ERROR: Failed to import file %s for tenant %s: %v", header.Filename, tenantID, err)
		http.Error(w, "Failed to import file", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetPending handles GET /api/review?page=&pageSize=
func (h *Handlers) GetPending(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenant(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "pageSize", 0)

	result, err := h.svc.ListPending(r.Context(), tenantID, page, pageSize)
	if err != nil {
		log.Printf("ERROR: Failed to list pending review for tenant %s: %v", tenantID, err)
		http.Error(w, "Failed to list pending review", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// completeReviewRequest is the body of POST /api/review/complete.
type completeReviewRequest struct {
	AcceptedKeys []string `json:"acceptedKeys"`
}

// CompleteReview handles POST /api/review/complete
func (h *Handlers) CompleteReview(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenant(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req completeReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if errs := validate.Each(req.AcceptedKeys, validate.NonEmptyString("accepted key")); errs != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
		return
	}

	result, err := h.svc.CompleteReview(r.Context(), tenantID, req.AcceptedKeys)
	if err != nil {
		log.Printf("ERROR: Failed to complete review for tenant %s: %v", tenantID, err)
		http.Error(w, "Failed to complete review", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// DeleteAllPending handles DELETE /api/review
func (h *Handlers) DeleteAllPending(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := middleware.GetTenant(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	count, err := h.svc.DeleteAllPending(r.Context(), tenantID)
	if err != nil {
		log.Printf("ERROR: Failed to delete pending review for tenant %s: %v", tenantID, err)
		http.Error(w, "Failed to delete pending review", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"deletedCount": count})
}

func (h *Handlers) extensionAllowed(fileName string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, allowed := range h.cfg.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}
