package review

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/ofximport/internal/decoder"
	"github.com/rumor-ml/commons.systems/ofximport/internal/domain"
	"github.com/rumor-ml/commons.systems/ofximport/internal/store"
)

// fakeDecoder serves a canned document for any input, so workflow tests can
// construct precise batches without real OFX content.
type fakeDecoder struct {
	doc *decoder.Document
}

func (f *fakeDecoder) Name() string { return "fake" }

func (f *fakeDecoder) CanDecode(string, []byte) bool { return true }

func (f *fakeDecoder) Decode(context.Context, io.Reader) (*decoder.Document, error) {
	return f.doc, nil
}

func statementOf(txns ...decoder.Transaction) *decoder.Document {
	return &decoder.Document{Statements: []decoder.Statement{{
		Institution:  "TESTBANK",
		AccountID:    "111",
		AccountType:  "checking",
		Transactions: txns,
	}}}
}

func rawTxn(id string, day int, amount, name string) decoder.Transaction {
	return decoder.Transaction{
		ID:     id,
		Posted: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Amount: decimal.RequireFromString(amount),
		Name:   name,
	}
}

func TestImportFile_CountsAddUp(t *testing.T) {
	doc := statementOf(
		rawTxn("A", 5, "-50.00", "Coffee Shop"),
		rawTxn("B", 15, "1000.00", "Paycheck"),
		rawTxn("A", 5, "-50.00", "Coffee Shop"), // in-batch repeat
	)
	svc := NewService(store.NewMemory(), &fakeDecoder{doc: doc})

	result, err := svc.ImportFile(context.Background(), "tenant1", []byte("content"), "file.ofx")
	if err != nil {
		t.Fatalf("ImportFile() error = %v", err)
	}

	if result.ImportedCount != 3 {
		t.Errorf("ImportedCount = %d, want 3", result.ImportedCount)
	}
	if sum := result.NewCount + result.ExactDuplicateCount + result.PotentialDuplicateCount; sum != result.ImportedCount {
		t.Errorf("classification counts sum to %d, want ImportedCount %d", sum, result.ImportedCount)
	}
	if result.NewCount != 2 || result.ExactDuplicateCount != 1 {
		t.Errorf("counts = %d new %d exact, want 2 and 1",
			result.NewCount, result.ExactDuplicateCount)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v, want none", result.Errors)
	}
}

func TestImportFile_EmptyUploadIsNoOp(t *testing.T) {
	svc := NewService(store.NewMemory())

	result, err := svc.ImportFile(context.Background(), "tenant1", []byte("   "), "empty.ofx")
	if err != nil {
		t.Fatalf("ImportFile() error = %v", err)
	}
	if result.ImportedCount != 0 || len(result.Errors) != 0 {
		t.Errorf("result = %+v, want empty no-op", result)
	}

	page, err := svc.ListPending(context.Background(), "tenant1", 1, 10)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if page.TotalCount != 0 {
		t.Errorf("TotalCount = %d, want 0 staged rows", page.TotalCount)
	}
}

func TestImportFile_DecodeFailureReportedAsData(t *testing.T) {
	svc := NewService(store.NewMemory()) // built-in OFX decoder

	result, err := svc.ImportFile(context.Background(), "tenant1", []byte("OFXHEADER:100\ngarbage"), "bad.ofx")
	if err != nil {
		t.Fatalf("ImportFile() error = %v, want failure reported in result", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(result.Errors))
	}
	if result.Errors[0].Code != domain.ErrCodeDecodeFailed {
		t.Errorf("Code = %q, want %q", result.Errors[0].Code, domain.ErrCodeDecodeFailed)
	}
	if result.ImportedCount != 0 {
		t.Errorf("ImportedCount = %d, want 0", result.ImportedCount)
	}
}

func TestImportFile_ReimportMarksExactDuplicates(t *testing.T) {
	doc := statementOf(
		rawTxn("A", 5, "-50.00", "Coffee Shop"),
		rawTxn("B", 15, "1000.00", "Paycheck"),
	)
	svc := NewService(store.NewMemory(), &fakeDecoder{doc: doc})
	ctx := context.Background()

	first, err := svc.ImportFile(ctx, "tenant1", []byte("content"), "file.ofx")
	if err != nil {
		t.Fatalf("first ImportFile() error = %v", err)
	}
	if first.NewCount != 2 {
		t.Fatalf("first NewCount = %d, want 2", first.NewCount)
	}

	// Same file again while the first batch is still staged.
	second, err := svc.ImportFile(ctx, "tenant1", []byte("content"), "file.ofx")
	if err != nil {
		t.Fatalf("second ImportFile() error = %v", err)
	}
	if second.ExactDuplicateCount != 2 || second.NewCount != 0 {
		t.Errorf("second import = %d exact %d new, want 2 and 0",
			second.ExactDuplicateCount, second.NewCount)
	}

	page, err := svc.ListPending(ctx, "tenant1", 1, 10)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if page.TotalCount != 4 {
		t.Errorf("TotalCount = %d, want 4 staged rows across both uploads", page.TotalCount)
	}
}

func TestImportFile_PotentialDuplicateAfterAccept(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	// First upload, accept everything.
	svc := NewService(st, &fakeDecoder{doc: statementOf(rawTxn("A", 5, "-50.00", "Coffee Shop"))})
	if _, err := svc.ImportFile(ctx, "tenant1", []byte("content"), "file.ofx"); err != nil {
		t.Fatalf("ImportFile() error = %v", err)
	}
	page, err := svc.ListPending(ctx, "tenant1", 1, 10)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if _, err := svc.CompleteReview(ctx, "tenant1", []string{page.Rows[0].Key}); err != nil {
		t.Fatalf("CompleteReview() error = %v", err)
	}

	// Second upload: same date, amount, payee under a different external ID.
	svc2 := NewService(st, &fakeDecoder{doc: statementOf(rawTxn("OTHER", 5, "-50.00", "Coffee Shop"))})
	result, err := svc2.ImportFile(ctx, "tenant1", []byte("content"), "file.ofx")
	if err != nil {
		t.Fatalf("second ImportFile() error = %v", err)
	}
	if result.PotentialDuplicateCount != 1 {
		t.Errorf("PotentialDuplicateCount = %d, want 1", result.PotentialDuplicateCount)
	}
}

func TestListPending_PagingClamps(t *testing.T) {
	var txns []decoder.Transaction
	for _, id := range []string{"A", "B", "C"} {
		txns = append(txns, rawTxn(id, 5, "-10.00", "Payee "+id))
	}
	svc := NewService(store.NewMemory(), &fakeDecoder{doc: statementOf(txns...)})
	ctx := context.Background()

	if _, err := svc.ImportFile(ctx, "tenant1", []byte("content"), "file.ofx"); err != nil {
		t.Fatalf("ImportFile() error = %v", err)
	}

	// Page and size below 1 fall back to defaults.
	page, err := svc.ListPending(ctx, "tenant1", 0, -5)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if page.PageNumber != 1 || page.PageSize != DefaultPageSize {
		t.Errorf("page = %d size %d, want 1 and %d", page.PageNumber, page.PageSize, DefaultPageSize)
	}
	if len(page.Rows) != 3 || page.TotalCount != 3 {
		t.Errorf("rows = %d total %d, want 3 and 3", len(page.Rows), page.TotalCount)
	}

	// Oversized page size is clamped.
	page, err = svc.ListPending(ctx, "tenant1", 1, MaxPageSize*10)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if page.PageSize != MaxPageSize {
		t.Errorf("PageSize = %d, want clamped to %d", page.PageSize, MaxPageSize)
	}

	// Past-the-end page is empty but reports the true total.
	page, err = svc.ListPending(ctx, "tenant1", 99, 2)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(page.Rows) != 0 || page.TotalCount != 3 {
		t.Errorf("rows = %d total %d, want 0 and 3", len(page.Rows), page.TotalCount)
	}

	// Staging order is preserved across pages.
	page, err = svc.ListPending(ctx, "tenant1", 2, 2)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(page.Rows) != 1 || page.Rows[0].Transaction.ExternalID != "C" {
		t.Errorf("page 2 rows = %v, want just C", page.Rows)
	}
}

func TestCompleteReview_SubsetAndUnknownKeys(t *testing.T) {
	doc := statementOf(
		rawTxn("A", 5, "-50.00", "Coffee Shop"),
		rawTxn("B", 15, "1000.00", "Paycheck"),
		rawTxn("C", 20, "-20.00", "Groceries"),
	)
	st := store.NewMemory()
	svc := NewService(st, &fakeDecoder{doc: doc})
	ctx := context.Background()

	if _, err := svc.ImportFile(ctx, "tenant1", []byte("content"), "file.ofx"); err != nil {
		t.Fatalf("ImportFile() error = %v", err)
	}
	page, err := svc.ListPending(ctx, "tenant1", 1, 10)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}

	// Accept the first and third rows plus a key that matches nothing.
	result, err := svc.CompleteReview(ctx, "tenant1", []string{
		page.Rows[0].Key, page.Rows[2].Key, "no-such-key",
	})
	if err != nil {
		t.Fatalf("CompleteReview() error = %v", err)
	}
	if result.AcceptedCount != 2 || result.RejectedCount != 1 {
		t.Errorf("result = %d accepted %d rejected, want 2 and 1",
			result.AcceptedCount, result.RejectedCount)
	}

	// The staging area is empty afterward regardless of acceptance.
	page, err = svc.ListPending(ctx, "tenant1", 1, 10)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if page.TotalCount != 0 {
		t.Errorf("TotalCount = %d, want 0 after completion", page.TotalCount)
	}

	// Only accepted transactions reached the permanent ledger.
	txns := st.Transactions("tenant1")
	if len(txns) != 2 {
		t.Fatalf("permanent ledger has %d transactions, want 2", len(txns))
	}
	if txns[0].ExternalID != "A" || txns[1].ExternalID != "C" {
		t.Errorf("ledger = %q, %q, want A then C", txns[0].ExternalID, txns[1].ExternalID)
	}
}

func TestDeleteAllPending(t *testing.T) {
	doc := statementOf(
		rawTxn("A", 5, "-50.00", "Coffee Shop"),
		rawTxn("B", 15, "1000.00", "Paycheck"),
	)
	st := store.NewMemory()
	svc := NewService(st, &fakeDecoder{doc: doc})
	ctx := context.Background()

	if _, err := svc.ImportFile(ctx, "tenant1", []byte("content"), "file.ofx"); err != nil {
		t.Fatalf("ImportFile() error = %v", err)
	}

	count, err := svc.DeleteAllPending(ctx, "tenant1")
	if err != nil {
		t.Fatalf("DeleteAllPending() error = %v", err)
	}
	if count != 2 {
		t.Errorf("DeleteAllPending() = %d, want 2", count)
	}

	// Nothing reached the permanent ledger.
	if txns := st.Transactions("tenant1"); len(txns) != 0 {
		t.Errorf("permanent ledger has %d transactions, want 0", len(txns))
	}

	// A re-import of the same file is new again, not duplicate.
	result, err := svc.ImportFile(ctx, "tenant1", []byte("content"), "file.ofx")
	if err != nil {
		t.Fatalf("ImportFile() error = %v", err)
	}
	if result.NewCount != 2 {
		t.Errorf("NewCount after abandon = %d, want 2", result.NewCount)
	}
}

func TestOperations_RequireTenant(t *testing.T) {
	svc := NewService(store.NewMemory())
	ctx := context.Background()

	if _, err := svc.ImportFile(ctx, "", []byte("x"), "f.ofx"); err == nil {
		t.Error("ImportFile() accepted empty tenant")
	}
	if _, err := svc.ListPending(ctx, "", 1, 10); err == nil {
		t.Error("ListPending() accepted empty tenant")
	}
	if _, err := svc.CompleteReview(ctx, "", nil); err == nil {
		t.Error("CompleteReview() accepted empty tenant")
	}
	if _, err := svc.DeleteAllPending(ctx, ""); err == nil {
		t.Error("DeleteAllPending() accepted empty tenant")
	}
}
