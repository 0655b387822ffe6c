// Package classify labels freshly parsed transactions against the tenant's
// transaction history via external-ID and fingerprint matching.
package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/ofximport/internal/domain"
)

// Fingerprint creates a SHA256 hash of date, amount, and payee.
// Format: SHA256("{date}|{amount}|{normalizedPayee}")
// Amount is formatted with 2 decimal places for consistency.
// Payee is normalized: lowercase and trimmed.
func Fingerprint(date string, amount decimal.Decimal, payeeName string) string {
	normalized := strings.ToLower(strings.TrimSpace(payeeName))
	input := fmt.Sprintf("%s|%s|%s", date, amount.StringFixed(2), normalized)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// History is the read-only view of a tenant's transaction history consulted
// during classification. Implemented by the store backends.
type History interface {
	// ExistingExternalIDs reports which of the given external IDs already
	// exist in the tenant's permanent ledger.
	ExistingExternalIDs(ctx context.Context, tenantID string, externalIDs []string) (map[string]struct{}, error)

	// ExistingFingerprints reports which of the given fingerprints match a
	// permanent transaction on (date, amount, payee).
	ExistingFingerprints(ctx context.Context, tenantID string, fingerprints []string) (map[string]struct{}, error)

	// StagedExternalIDs returns the external IDs of all not-yet-resolved
	// review rows for the tenant.
	StagedExternalIDs(ctx context.Context, tenantID string) (map[string]struct{}, error)
}

// Classifier labels incoming transactions. It never deletes or mutates
// existing data.
type Classifier struct {
	history History
}

// New creates a classifier reading from the given history.
func New(history History) *Classifier {
	return &Classifier{history: history}
}

// Classify builds one review row per transaction, labeled New,
// ExactDuplicate, or PotentialDuplicate.
//
// Exact duplicates are matched on external ID against the permanent ledger,
// previously staged rows, and earlier rows of this batch, so uploading the
// same file twice marks the second upload's rows exact-duplicate rather than
// new. Potential duplicates are matched on (date, amount, payee) against the
// permanent ledger only.
func (c *Classifier) Classify(ctx context.Context, tenantID string, batch []domain.ImportedTransaction) ([]domain.ReviewRow, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant ID cannot be empty")
	}
	if len(batch) == 0 {
		return []domain.ReviewRow{}, nil
	}

	externalIDs := make([]string, 0, len(batch))
	fingerprints := make([]string, 0, len(batch))
	for _, txn := range batch {
		externalIDs = append(externalIDs, txn.ExternalID)
		fingerprints = append(fingerprints, Fingerprint(txn.Date, txn.Amount, txn.Payee))
	}

	permanentIDs, err := c.history.ExistingExternalIDs(ctx, tenantID, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing external IDs: %w", err)
	}

	permanentFingerprints, err := c.history.ExistingFingerprints(ctx, tenantID, fingerprints)
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing fingerprints: %w", err)
	}

	stagedIDs, err := c.history.StagedExternalIDs(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up staged external IDs: %w", err)
	}

	rows := make([]domain.ReviewRow, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))

	for i, txn := range batch {
		classification := domain.ClassificationNew

		_, inPermanent := permanentIDs[txn.ExternalID]
		_, inStaged := stagedIDs[txn.ExternalID]
		_, inBatch := seen[txn.ExternalID]

		switch {
		case inPermanent || inStaged || inBatch:
			classification = domain.ClassificationExactDuplicate
		default:
			if _, ok := permanentFingerprints[fingerprints[i]]; ok {
				classification = domain.ClassificationPotentialDuplicate
			}
		}
		seen[txn.ExternalID] = struct{}{}

		row, err := domain.NewReviewRow(txn, classification)
		if err != nil {
			return nil, fmt.Errorf("failed to create review row: %w", err)
		}
		rows = append(rows, *row)
	}

	return rows, nil
}
