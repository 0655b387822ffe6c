// Package mapper converts raw decoded transactions into canonical imported
// transactions.
package mapper

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rumor-ml/commons.systems/ofximport/internal/decoder"
	"github.com/rumor-ml/commons.systems/ofximport/internal/domain"
	"github.com/rumor-ml/commons.systems/ofximport/internal/payee"
)

var titleCaser = cases.Title(language.English)

// SourceLabel builds the source string for a statement by joining the
// institution name and account label with " - ". The account label is
// "{TitleCasedAccountType} ({accountID})" when an account ID exists, else
// just the title-cased type. Returns "" when nothing is available.
func SourceLabel(institution, accountType, accountID string) string {
	var accountLabel string
	switch {
	case accountType != "" && accountID != "":
		accountLabel = fmt.Sprintf("%s (%s)", titleCaser.String(accountType), accountID)
	case accountType != "":
		accountLabel = titleCaser.String(accountType)
	case accountID != "":
		accountLabel = accountID
	}

	var parts []string
	if institution != "" {
		parts = append(parts, institution)
	}
	if accountLabel != "" {
		parts = append(parts, accountLabel)
	}
	return strings.Join(parts, " - ")
}

// Map converts one raw transaction into an ImportedTransaction. A mapping
// failure is returned as a ParseError for that transaction only; siblings in
// the batch are unaffected.
func Map(source string, raw decoder.Transaction) (*domain.ImportedTransaction, *domain.ParseError) {
	if raw.Posted.IsZero() {
		return nil, &domain.ParseError{
			Message: fmt.Sprintf("transaction %s has no posting date", describeTxn(raw)),
			Code:    domain.ErrCodeNoDate,
		}
	}
	date := raw.Posted.Format(domain.DateFormat)

	name, memo := payee.Normalize(raw.Name, raw.Memo)
	if name == "" {
		return nil, &domain.ParseError{
			Message: fmt.Sprintf("transaction on %s has no payee name", date),
			Code:    domain.ErrCodeNoPayee,
		}
	}

	// The OFX decoder guarantees a non-empty native ID in practice, but
	// that is an upstream contract this layer does not rely on: derive a
	// stable content hash when the ID is absent.
	externalID := raw.ID
	if externalID == "" {
		externalID = ContentID(date, raw.Amount.String(), name, memo, source)
	}

	txn, err := domain.NewImportedTransaction(externalID, date, raw.Amount, name)
	if err != nil {
		return nil, &domain.ParseError{
			Message: fmt.Sprintf("transaction on %s is invalid: %v", date, err),
		}
	}
	txn.Memo = memo
	txn.Source = source

	return txn, nil
}

// ContentID derives a stable transaction identifier from transaction content.
// Format: SHA256("{date}|{amount}|{payee}|{memo}|{source}") hex-encoded.
func ContentID(date, amount, payeeName, memo, source string) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s", date, amount, payeeName, memo, source)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// describeTxn identifies a transaction in an error message when no date is
// available.
func describeTxn(raw decoder.Transaction) string {
	if raw.ID != "" {
		return raw.ID
	}
	if raw.Name != "" {
		return fmt.Sprintf("%q", raw.Name)
	}
	return "(unidentified)"
}
