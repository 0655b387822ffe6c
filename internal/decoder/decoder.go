// Package decoder defines the boundary between raw statement files and the
// import pipeline, plus the OFX/QFX implementation.
package decoder

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// Decoder is the strategy interface for statement file decoders
type Decoder interface {
	// Name returns decoder identifier (e.g., "ofx")
	Name() string

	// CanDecode checks if this decoder can handle the file based on its
	// name and leading bytes
	CanDecode(fileName string, header []byte) bool

	// Decode extracts a structured document from the file. A decode
	// failure is returned as an error; callers convert it to a parse
	// error rather than propagating it.
	Decode(ctx context.Context, r io.Reader) (*Document, error)
}

// Document is the decoded representation of a statement file.
type Document struct {
	Statements []Statement
}

// Statement is one account statement within a document.
type Statement struct {
	Institution  string // institution name from the file, may be empty
	AccountID    string
	AccountType  string // "checking", "savings", "credit", "investment", ...
	Transactions []Transaction
}

// Transaction is a raw transaction record before normalization.
type Transaction struct {
	// ID is the file's native transaction identifier. May be empty for
	// decoders that cannot guarantee one; the mapper derives a stable
	// content hash in that case.
	ID     string
	Posted time.Time
	Amount decimal.Decimal
	Name   string
	Memo   string
}
