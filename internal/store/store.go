// Package store provides tenant-scoped persistence for imported transactions
// and the review staging area.
package store

import (
	"context"

	"github.com/rumor-ml/commons.systems/ofximport/internal/domain"
)

// Store is the tenant-scoped storage interface consumed by the import and
// review workflow. Every operation takes an explicit tenant identifier; no
// cross-tenant access is possible through this interface.
type Store interface {
	// ExistingExternalIDs reports which of the given external IDs already
	// exist in the tenant's permanent ledger.
	ExistingExternalIDs(ctx context.Context, tenantID string, externalIDs []string) (map[string]struct{}, error)

	// ExistingFingerprints reports which of the given (date, amount, payee)
	// fingerprints match a permanent transaction.
	ExistingFingerprints(ctx context.Context, tenantID string, fingerprints []string) (map[string]struct{}, error)

	// StagedExternalIDs returns the external IDs of all staged review rows.
	StagedExternalIDs(ctx context.Context, tenantID string) (map[string]struct{}, error)

	// StageRows inserts review rows into the staging area in order.
	StageRows(ctx context.Context, tenantID string, rows []domain.ReviewRow) error

	// ListStaged returns one page of staged rows in staging order plus the
	// total staged count.
	ListStaged(ctx context.Context, tenantID string, offset, limit int) ([]domain.ReviewRow, int, error)

	// CompleteReview resolves every currently staged row: rows whose key is
	// in acceptedKeys are copied to the permanent ledger (with a default
	// single category-less split), all others are discarded. Keys that do
	// not match a staged row are ignored. No row remains staged afterward.
	CompleteReview(ctx context.Context, tenantID string, acceptedKeys map[string]struct{}) (accepted, rejected int, err error)

	// DeleteStaged discards every staged row for the tenant and returns the
	// number discarded.
	DeleteStaged(ctx context.Context, tenantID string) (int, error)
}
