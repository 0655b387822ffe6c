package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/rumor-ml/commons.systems/ofximport/internal/classify"
	"github.com/rumor-ml/commons.systems/ofximport/internal/domain"
)

// SQLiteStore is the transactional reference Store implementation.
// CompleteReview applies all of its per-row transitions inside a single SQL
// transaction, so a failed or cancelled completion leaves every row staged.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS transactions (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	external_id TEXT NOT NULL,
	date        TEXT NOT NULL,
	amount      TEXT NOT NULL,
	payee       TEXT NOT NULL,
	memo        TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_tenant_external
	ON transactions(tenant_id, external_id);
CREATE INDEX IF NOT EXISTS idx_transactions_tenant_fingerprint
	ON transactions(tenant_id, fingerprint);

CREATE TABLE IF NOT EXISTS splits (
	id             TEXT PRIMARY KEY,
	transaction_id TEXT NOT NULL REFERENCES transactions(id),
	category_id    TEXT,
	amount         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS review_rows (
	key            TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	external_id    TEXT NOT NULL,
	date           TEXT NOT NULL,
	amount         TEXT NOT NULL,
	payee          TEXT NOT NULL,
	memo           TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL DEFAULT '',
	classification TEXT NOT NULL,
	staged_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_review_rows_tenant ON review_rows(tenant_id);
`

// NewSQLite opens (creating if necessary) a SQLite-backed store at path.
// Use ":memory:" for an ephemeral database.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}

	// Imports are a low-concurrency, single-user-per-tenant-session path;
	// a single connection also keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ExistingExternalIDs reports permanent-ledger external ID matches.
func (s *SQLiteStore) ExistingExternalIDs(ctx context.Context, tenantID string, externalIDs []string) (map[string]struct{}, error) {
	return s.lookupColumn(ctx, "external_id", tenantID, externalIDs)
}

// ExistingFingerprints reports permanent-ledger fingerprint matches.
func (s *SQLiteStore) ExistingFingerprints(ctx context.Context, tenantID string, fingerprints []string) (map[string]struct{}, error) {
	return s.lookupColumn(ctx, "fingerprint", tenantID, fingerprints)
}

func (s *SQLiteStore) lookupColumn(ctx context.Context, column, tenantID string, values []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(values) == 0 {
		return found, nil
	}

	placeholders := strings.Repeat("?,", len(values))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(
		"SELECT DISTINCT %s FROM transactions WHERE tenant_id = ? AND %s IN (%s)",
		column, column, placeholders)

	args := make([]any, 0, len(values)+1)
	args = append(args, tenantID)
	for _, v := range values {
		args = append(args, v)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s matches: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", column, err)
		}
		found[v] = struct{}{}
	}
	return found, rows.Err()
}

// StagedExternalIDs returns external IDs of all staged rows.
func (s *SQLiteStore) StagedExternalIDs(ctx context.Context, tenantID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT external_id FROM review_rows WHERE tenant_id = ?", tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged external IDs: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan external ID: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// StageRows inserts review rows in order; rowid preserves staging order.
func (s *SQLiteStore) StageRows(ctx context.Context, tenantID string, reviewRows []domain.ReviewRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, row := range reviewRows {
		txn := row.Transaction
		_, err := tx.ExecContext(ctx, `
			INSERT INTO review_rows
				(key, tenant_id, external_id, date, amount, payee, memo, source, classification, staged_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.Key, tenantID, txn.ExternalID, txn.Date, txn.Amount.String(),
			txn.Payee, txn.Memo, txn.Source, string(row.Classification),
			row.StagedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to stage review row %s: %w", row.Key, err)
		}
	}

	return tx.Commit()
}

// ListStaged returns one page of staged rows in staging order.
func (s *SQLiteStore) ListStaged(ctx context.Context, tenantID string, offset, limit int) ([]domain.ReviewRow, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM review_rows WHERE tenant_id = ?", tenantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count staged rows: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, external_id, date, amount, payee, memo, source, classification, staged_at
		FROM review_rows WHERE tenant_id = ?
		ORDER BY rowid LIMIT ? OFFSET ?`, tenantID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query staged rows: %w", err)
	}
	defer rows.Close()

	page := []domain.ReviewRow{}
	for rows.Next() {
		row, err := scanReviewRow(rows)
		if err != nil {
			return nil, 0, err
		}
		page = append(page, *row)
	}
	return page, total, rows.Err()
}

// CompleteReview resolves all staged rows inside a single SQL transaction.
func (s *SQLiteStore) CompleteReview(ctx context.Context, tenantID string, acceptedKeys map[string]struct{}) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT key, external_id, date, amount, payee, memo, source, classification, staged_at
		FROM review_rows WHERE tenant_id = ? ORDER BY rowid`, tenantID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query staged rows: %w", err)
	}

	var staged []domain.ReviewRow
	for rows.Next() {
		row, err := scanReviewRow(rows)
		if err != nil {
			rows.Close()
			return 0, 0, err
		}
		staged = append(staged, *row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, 0, err
	}
	rows.Close()

	var accepted, rejected int
	for _, row := range staged {
		if _, ok := acceptedKeys[row.Key]; !ok {
			rejected++
			continue
		}

		txn := row.Transaction
		txnID := uuid.NewString()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions
				(id, tenant_id, external_id, date, amount, payee, memo, source, fingerprint, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			txnID, tenantID, txn.ExternalID, txn.Date, txn.Amount.String(),
			txn.Payee, txn.Memo, txn.Source,
			classify.Fingerprint(txn.Date, txn.Amount, txn.Payee),
			time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return 0, 0, fmt.Errorf("failed to insert transaction for row %s: %w", row.Key, err)
		}

		// Default single category-less split.
		_, err = tx.ExecContext(ctx,
			"INSERT INTO splits (id, transaction_id, category_id, amount) VALUES (?, ?, NULL, ?)",
			uuid.NewString(), txnID, txn.Amount.String())
		if err != nil {
			return 0, 0, fmt.Errorf("failed to insert split for row %s: %w", row.Key, err)
		}
		accepted++
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM review_rows WHERE tenant_id = ?", tenantID); err != nil {
		return 0, 0, fmt.Errorf("failed to clear staging area: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit review completion: %w", err)
	}
	return accepted, rejected, nil
}

// DeleteStaged discards every staged row for the tenant.
func (s *SQLiteStore) DeleteStaged(ctx context.Context, tenantID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM review_rows WHERE tenant_id = ?", tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete staged rows: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(count), nil
}

func scanReviewRow(rows *sql.Rows) (*domain.ReviewRow, error) {
	var (
		row            domain.ReviewRow
		amountStr      string
		classification string
		stagedAt       string
	)
	if err := rows.Scan(&row.Key, &row.Transaction.ExternalID, &row.Transaction.Date,
		&amountStr, &row.Transaction.Payee, &row.Transaction.Memo,
		&row.Transaction.Source, &classification, &stagedAt); err != nil {
		return nil, fmt.Errorf("failed to scan review row: %w", err)
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored amount %q: %w", amountStr, err)
	}
	row.Transaction.Amount = amount
	row.Classification = domain.Classification(classification)

	t, err := time.Parse(time.RFC3339Nano, stagedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse staged_at %q: %w", stagedAt, err)
	}
	row.StagedAt = t

	return &row, nil
}
