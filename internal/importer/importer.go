// Package importer orchestrates decode, normalize, and map for a whole
// statement file, collecting per-transaction errors without aborting the
// batch.
package importer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rumor-ml/commons.systems/ofximport/internal/decoder"
	"github.com/rumor-ml/commons.systems/ofximport/internal/domain"
	"github.com/rumor-ml/commons.systems/ofximport/internal/mapper"
)

// headerSize is how many leading bytes decoders inspect for format detection.
// Sufficient to detect the OFX v1 SGML header block and v2 XML declaration.
const headerSize = 512

// Result is the outcome of parsing one file. Parsing always produces a
// Result; expected failures land in Errors rather than propagating.
type Result struct {
	Transactions []domain.ImportedTransaction
	Errors       []domain.ParseError
}

// Parser parses statement files into imported transactions.
type Parser struct {
	decoders []decoder.Decoder
}

// New creates a parser with the given decoders. With no arguments the
// built-in OFX/QFX decoder is used.
func New(decoders ...decoder.Decoder) *Parser {
	if len(decoders) == 0 {
		decoders = []decoder.Decoder{decoder.NewOFXDecoder()}
	}
	return &Parser{decoders: decoders}
}

// Parse decodes the file and maps every transaction independently, in
// document order. Empty input is a valid no-op upload. A document-level
// decode failure yields zero transactions and a single decode error. The
// returned error is non-nil only for truly exceptional conditions
// (context cancellation).
func (p *Parser) Parse(ctx context.Context, data []byte, fileName string) (*Result, error) {
	result := &Result{
		Transactions: []domain.ImportedTransaction{},
		Errors:       []domain.ParseError{},
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return result, nil
	}

	header := data
	if len(header) > headerSize {
		header = header[:headerSize]
	}

	var selected decoder.Decoder
	for _, d := range p.decoders {
		if d.CanDecode(fileName, header) {
			selected = d
			break
		}
	}
	if selected == nil {
		result.Errors = append(result.Errors, domain.ParseError{
			Message: fmt.Sprintf("no decoder recognizes file %s", fileName),
			Code:    domain.ErrCodeDecodeFailed,
		})
		return result, nil
	}

	doc, err := selected.Decode(ctx, bytes.NewReader(data))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result.Errors = append(result.Errors, domain.ParseError{
			Message: fmt.Sprintf("failed to decode %s: %v", fileName, err),
			Code:    domain.ErrCodeDecodeFailed,
		})
		return result, nil
	}

	for _, stmt := range doc.Statements {
		source := mapper.SourceLabel(stmt.Institution, stmt.AccountType, stmt.AccountID)
		for _, raw := range stmt.Transactions {
			txn, perr := mapper.Map(source, raw)
			if perr != nil {
				result.Errors = append(result.Errors, *perr)
				continue
			}
			result.Transactions = append(result.Transactions, *txn)
		}
	}

	return result, nil
}
