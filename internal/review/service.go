// Package review implements the import and review workflow: parse a file,
// classify it against the tenant's history, stage the rows, and resolve them
// as accept-or-reject.
package review

import (
	"context"
	"fmt"

	"github.com/rumor-ml/commons.systems/ofximport/internal/classify"
	"github.com/rumor-ml/commons.systems/ofximport/internal/decoder"
	"github.com/rumor-ml/commons.systems/ofximport/internal/domain"
	"github.com/rumor-ml/commons.systems/ofximport/internal/importer"
	"github.com/rumor-ml/commons.systems/ofximport/internal/store"
)

const (
	// DefaultPageSize is used when the caller does not specify one.
	DefaultPageSize = 50
	// MaxPageSize bounds response size for review listings.
	MaxPageSize = 1000
)

// Service exposes the import and review operations. All operations are
// request-scoped and take an explicit tenant identifier.
type Service struct {
	parser     *importer.Parser
	classifier *classify.Classifier
	store      store.Store
}

// NewService creates the workflow service on the given store. With no
// decoders the built-in OFX/QFX decoder is used.
func NewService(st store.Store, decoders ...decoder.Decoder) *Service {
	return &Service{
		parser:     importer.New(decoders...),
		classifier: classify.New(st),
		store:      st,
	}
}

// ImportFile parses the uploaded file, classifies every parsed transaction
// against the tenant's history, and stages the resulting review rows.
// Parse failures are reported in the result, never as a returned error;
// the returned error covers storage failures and cancellation only.
func (s *Service) ImportFile(ctx context.Context, tenantID string, data []byte, fileName string) (*domain.ImportBatchResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant ID cannot be empty")
	}

	parsed, err := s.parser.Parse(ctx, data, fileName)
	if err != nil {
		return nil, err
	}

	rows, err := s.classifier.Classify(ctx, tenantID, parsed.Transactions)
	if err != nil {
		return nil, err
	}

	if len(rows) > 0 {
		if err := s.store.StageRows(ctx, tenantID, rows); err != nil {
			return nil, fmt.Errorf("failed to stage review rows: %w", err)
		}
	}

	result := &domain.ImportBatchResult{
		ImportedCount: len(rows),
		Errors:        parsed.Errors,
	}
	for _, row := range rows {
		switch row.Classification {
		case domain.ClassificationExactDuplicate:
			result.ExactDuplicateCount++
		case domain.ClassificationPotentialDuplicate:
			result.PotentialDuplicateCount++
		default:
			result.NewCount++
		}
	}
	return result, nil
}

// ListPending returns one page of staged rows in staging order. Page numbers
// are 1-based; pageSize is clamped to MaxPageSize.
func (s *Service) ListPending(ctx context.Context, tenantID string, pageNumber, pageSize int) (*domain.ReviewPage, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant ID cannot be empty")
	}

	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	rows, total, err := s.store.ListStaged(ctx, tenantID, (pageNumber-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list staged rows: %w", err)
	}

	return &domain.ReviewPage{
		Rows:       rows,
		PageNumber: pageNumber,
		PageSize:   pageSize,
		TotalCount: total,
	}, nil
}

// CompleteReview resolves every currently staged row: rows whose key appears
// in acceptedKeys move to the permanent ledger, all others are discarded.
// Keys that do not match a staged row are ignored; the accepted set is a
// subset selection, not an existence assertion per key.
func (s *Service) CompleteReview(ctx context.Context, tenantID string, acceptedKeys []string) (*domain.CompleteReviewResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant ID cannot be empty")
	}

	keySet := make(map[string]struct{}, len(acceptedKeys))
	for _, key := range acceptedKeys {
		keySet[key] = struct{}{}
	}

	accepted, rejected, err := s.store.CompleteReview(ctx, tenantID, keySet)
	if err != nil {
		return nil, fmt.Errorf("failed to complete review: %w", err)
	}

	return &domain.CompleteReviewResult{
		AcceptedCount: accepted,
		RejectedCount: rejected,
	}, nil
}

// DeleteAllPending discards every staged row for the tenant and returns the
// number discarded; used for abandoning a review session outright.
func (s *Service) DeleteAllPending(ctx context.Context, tenantID string) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenant ID cannot be empty")
	}

	count, err := s.store.DeleteStaged(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete staged rows: %w", err)
	}
	return count, nil
}
