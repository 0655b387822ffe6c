// Package domain defines the core types of the statement import pipeline.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Classification labels a staged transaction relative to the tenant's history.
// Use ValidateClassification to ensure validity before use.
type Classification string

const (
	// ClassificationNew marks a transaction with no match in the tenant's history.
	ClassificationNew Classification = "new"
	// ClassificationExactDuplicate marks a transaction whose external ID already
	// exists in the tenant's permanent ledger or staging area.
	ClassificationExactDuplicate Classification = "exact-duplicate"
	// ClassificationPotentialDuplicate marks a transaction with no external ID
	// match but an existing transaction matching on date, amount and payee.
	ClassificationPotentialDuplicate Classification = "potential-duplicate"
)

var validClassifications = map[Classification]struct{}{
	ClassificationNew: {}, ClassificationExactDuplicate: {}, ClassificationPotentialDuplicate: {},
}

// ValidateClassification checks if classification is valid
func ValidateClassification(c Classification) bool {
	_, ok := validClassifications[c]
	return ok
}

// DateFormat is the calendar-date layout used throughout the pipeline.
// Time-of-day is discarded at mapping time.
const DateFormat = "2006-01-02"

// ImportedTransaction is one parsed bank-statement line after normalization.
type ImportedTransaction struct {
	// ExternalID is the file's native transaction identifier when present,
	// otherwise a content-derived hash. Stable across re-imports of
	// overlapping statement periods within a tenant.
	ExternalID string `json:"externalId"`
	Date       string `json:"date"` // YYYY-MM-DD
	// Amount is signed: negative = debit, positive = credit. Sign is
	// preserved from the source file, never inverted.
	Amount decimal.Decimal `json:"amount"`
	Payee  string          `json:"payee"`
	Memo   string          `json:"memo,omitempty"`
	// Source combines institution name and account label, empty if neither
	// is available.
	Source string `json:"source"`
}

// NewImportedTransaction creates a validated imported transaction.
// Memo and Source are optional and set after construction.
func NewImportedTransaction(externalID, date string, amount decimal.Decimal, payee string) (*ImportedTransaction, error) {
	if externalID == "" {
		return nil, fmt.Errorf("external ID cannot be empty")
	}
	if _, err := time.Parse(DateFormat, date); err != nil {
		return nil, fmt.Errorf("invalid date format: %w", err)
	}
	if payee == "" {
		return nil, fmt.Errorf("payee cannot be empty")
	}

	return &ImportedTransaction{
		ExternalID: externalID,
		Date:       date,
		Amount:     amount,
		Payee:      payee,
	}, nil
}

// ParseError describes a document-level or per-transaction import failure.
// Parse errors are data, not exceptions: they never halt sibling transactions.
type ParseError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error codes attached to ParseError.Code.
const (
	ErrCodeDecodeFailed = "decode-failed"
	ErrCodeNoPayee      = "no-payee"
	ErrCodeNoDate       = "no-date"
)

func (e ParseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// ImportBatchResult aggregates a single upload.
// Invariant: NewCount + ExactDuplicateCount + PotentialDuplicateCount == ImportedCount.
type ImportBatchResult struct {
	ImportedCount           int          `json:"importedCount"`
	NewCount                int          `json:"newCount"`
	ExactDuplicateCount     int          `json:"exactDuplicateCount"`
	PotentialDuplicateCount int          `json:"potentialDuplicateCount"`
	Errors                  []ParseError `json:"errors"`
}

// ReviewRow is a staged ImportedTransaction plus its duplicate classification.
// Keyed by an opaque per-row key rather than the external ID, so repeated
// uploads can stage multiple rows referencing the same external transaction.
type ReviewRow struct {
	Key            string              `json:"key"`
	Transaction    ImportedTransaction `json:"transaction"`
	Classification Classification      `json:"classification"`
	StagedAt       time.Time           `json:"stagedAt"`
}

// NewReviewRow creates a staged review row with a fresh opaque key.
func NewReviewRow(txn ImportedTransaction, classification Classification) (*ReviewRow, error) {
	if !ValidateClassification(classification) {
		return nil, fmt.Errorf("invalid classification: %s", classification)
	}

	return &ReviewRow{
		Key:            uuid.NewString(),
		Transaction:    txn,
		Classification: classification,
		StagedAt:       time.Now().UTC(),
	}, nil
}

// ReviewPage is one page of staged rows in staging order.
type ReviewPage struct {
	Rows       []ReviewRow `json:"rows"`
	PageNumber int         `json:"pageNumber"`
	PageSize   int         `json:"pageSize"`
	TotalCount int         `json:"totalCount"`
}

// CompleteReviewResult reports how a review session was resolved.
// AcceptedCount + RejectedCount equals the number of rows staged at the
// moment the review was completed; no row is left staged afterward.
type CompleteReviewResult struct {
	AcceptedCount int `json:"acceptedCount"`
	RejectedCount int `json:"rejectedCount"`
}
