package decoder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

// OFXDecoder decodes OFX/QFX statement files with a stateless design.
// The struct has no fields because OFX decoding requires no configuration
// state, making the decoder safe for concurrent use without locking.
type OFXDecoder struct{}

var ofxInstance = &OFXDecoder{}

// NewOFXDecoder returns the shared OFX decoder instance.
// Safe for concurrent use due to stateless design.
func NewOFXDecoder() *OFXDecoder {
	return ofxInstance
}

// Name returns the decoder identifier
func (d *OFXDecoder) Name() string {
	return "ofx"
}

// CanDecode checks extension and header markers (both v1 SGML and v2 XML formats)
func (d *OFXDecoder) CanDecode(fileName string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext != ".ofx" && ext != ".qfx" {
		return false
	}

	headerUpper := strings.ToUpper(string(header))
	return strings.Contains(headerUpper, "OFXHEADER") ||
		strings.Contains(headerUpper, "<?OFX") ||
		strings.Contains(headerUpper, "<OFX>")
}

// Decode extracts every statement from an OFX/QFX stream.
func (d *OFXDecoder) Decode(ctx context.Context, r io.Reader) (*Document, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX content: %w", err)
	}

	// ofxgo.ParseResponse does not support context cancellation, so this
	// check only catches cancellation between read and parse.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	response, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file (%d bytes): %w", len(content), err)
	}

	institution := response.Signon.Org.String()

	doc := &Document{}

	for i, msg := range response.Bank {
		bankStmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			return nil, fmt.Errorf("failed to type assert bank statement %d: expected *ofxgo.StatementResponse, got %T", i, msg)
		}
		stmt := Statement{
			Institution: institution,
			AccountID:   bankStmt.BankAcctFrom.AcctID.String(),
			AccountType: mapBankAccountType(bankStmt.BankAcctFrom),
		}
		if bankStmt.BankTranList != nil {
			stmt.Transactions = extractTransactions(bankStmt.BankTranList.Transactions)
		}
		doc.Statements = append(doc.Statements, stmt)
	}

	for i, msg := range response.CreditCard {
		ccStmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			return nil, fmt.Errorf("failed to type assert credit card statement %d: expected *ofxgo.CCStatementResponse, got %T", i, msg)
		}
		stmt := Statement{
			Institution: institution,
			AccountID:   ccStmt.CCAcctFrom.AcctID.String(),
			AccountType: "credit",
		}
		if ccStmt.BankTranList != nil {
			stmt.Transactions = extractTransactions(ccStmt.BankTranList.Transactions)
		}
		doc.Statements = append(doc.Statements, stmt)
	}

	for i, msg := range response.InvStmt {
		invStmt, ok := msg.(*ofxgo.InvStatementResponse)
		if !ok {
			return nil, fmt.Errorf("failed to type assert investment statement %d: expected *ofxgo.InvStatementResponse, got %T", i, msg)
		}
		stmt := Statement{
			Institution: institution,
			AccountID:   invStmt.InvAcctFrom.AcctID.String(),
			AccountType: "investment",
		}
		if invStmt.InvTranList != nil {
			// Only cash movements (dividends, interest, fees) carry
			// bank-style records; security transactions are skipped.
			for _, invBankTxn := range invStmt.InvTranList.BankTransactions {
				stmt.Transactions = append(stmt.Transactions, extractTransactions(invBankTxn.Transactions)...)
			}
		}
		doc.Statements = append(doc.Statements, stmt)
	}

	if len(doc.Statements) == 0 {
		return nil, fmt.Errorf("no supported statement type found in OFX file. Expected at least one of: bank (BANKMSGSRSV1), credit card (CREDITCARDMSGSRSV1), or investment (INVSTMTMSGSRSV1) statement")
	}

	return doc, nil
}

// extractTransactions converts OFX transactions to raw transaction records.
// Records are passed through as-is; field-level problems (missing payee,
// missing date) are the mapper's concern, not a decode failure.
func extractTransactions(txns []ofxgo.Transaction) []Transaction {
	out := make([]Transaction, 0, len(txns))
	for _, txn := range txns {
		date := txn.DtPosted.Time
		if date.IsZero() {
			date = txn.DtUser.Time
		}

		out = append(out, Transaction{
			ID:     txn.FiTID.String(),
			Posted: date,
			Amount: extractAmount(txn.TrnAmt),
			Name:   txn.Name.String(),
			Memo:   txn.Memo.String(),
		})
	}
	return out
}

// extractAmount converts an OFX rational amount to an exact decimal.
func extractAmount(amt ofxgo.Amount) decimal.Decimal {
	d, err := decimal.NewFromString(amt.String())
	if err != nil {
		// Amount.String always renders a plain decimal for well-formed
		// files; fall back to the float approximation otherwise.
		f, _ := amt.Float64()
		return decimal.NewFromFloat(f)
	}
	return d
}

// mapBankAccountType maps the OFX account type to a lowercase label.
func mapBankAccountType(acct ofxgo.BankAcct) string {
	switch acct.AcctType {
	case ofxgo.AcctTypeChecking:
		return "checking"
	case ofxgo.AcctTypeSavings:
		return "savings"
	default:
		return strings.ToLower(fmt.Sprintf("%v", acct.AcctType))
	}
}
