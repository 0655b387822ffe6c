package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/rumor-ml/commons.systems/ofximport/internal/classify"
	"github.com/rumor-ml/commons.systems/ofximport/internal/domain"
)

const (
	transactionsCollection = "import-transactions"
	reviewRowsCollection   = "import-review-rows"

	// Firestore caps "in" disjunctions; chunk lookups accordingly.
	inQueryChunkSize = 10
)

// FirestoreStore is a Firestore-backed Store. CompleteReview runs inside a
// Firestore transaction (bounded by Firestore's per-transaction write limit),
// the SQLite store is the transactional reference implementation for large
// review sessions.
type FirestoreStore struct {
	fs   *firestore.Client
	Auth *auth.Client
}

// transactionDoc is a permanent ledger entry in Firestore.
type transactionDoc struct {
	ID          string    `firestore:"id"`
	TenantID    string    `firestore:"tenantId"`
	ExternalID  string    `firestore:"externalId"`
	Date        string    `firestore:"date"`
	Amount      string    `firestore:"amount"`
	Payee       string    `firestore:"payee"`
	Memo        string    `firestore:"memo"`
	Source      string    `firestore:"source"`
	Fingerprint string    `firestore:"fingerprint"`
	CategoryID  *string   `firestore:"categoryId"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

// reviewRowDoc is a staged review row in Firestore. Position preserves
// staging order across documents.
type reviewRowDoc struct {
	Key            string    `firestore:"key"`
	TenantID       string    `firestore:"tenantId"`
	Position       int64     `firestore:"position"`
	ExternalID     string    `firestore:"externalId"`
	Date           string    `firestore:"date"`
	Amount         string    `firestore:"amount"`
	Payee          string    `firestore:"payee"`
	Memo           string    `firestore:"memo"`
	Source         string    `firestore:"source"`
	Classification string    `firestore:"classification"`
	StagedAt       time.Time `firestore:"stagedAt"`
}

// NewFirestore creates a Firestore-backed store for the given project.
func NewFirestore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	conf := &firebase.Config{ProjectID: projectID}
	app, err := firebase.NewApp(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		fsClient.Close()
		return nil, fmt.Errorf("failed to create Auth client: %w", err)
	}

	return &FirestoreStore{fs: fsClient, Auth: authClient}, nil
}

// Close closes the Firestore client.
func (s *FirestoreStore) Close() error {
	return s.fs.Close()
}

// ExistingExternalIDs reports permanent-ledger external ID matches.
func (s *FirestoreStore) ExistingExternalIDs(ctx context.Context, tenantID string, externalIDs []string) (map[string]struct{}, error) {
	return s.lookupField(ctx, tenantID, "externalId", externalIDs)
}

// ExistingFingerprints reports permanent-ledger fingerprint matches.
func (s *FirestoreStore) ExistingFingerprints(ctx context.Context, tenantID string, fingerprints []string) (map[string]struct{}, error) {
	return s.lookupField(ctx, tenantID, "fingerprint", fingerprints)
}

func (s *FirestoreStore) lookupField(ctx context.Context, tenantID, field string, values []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})

	for start := 0; start < len(values); start += inQueryChunkSize {
		end := start + inQueryChunkSize
		if end > len(values) {
			end = len(values)
		}

		iter := s.fs.Collection(transactionsCollection).
			Where("tenantId", "==", tenantID).
			Where(field, "in", values[start:end]).
			Documents(ctx)

		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to query %s matches for tenant %s: %w", field, tenantID, err)
			}

			var txn transactionDoc
			if err := doc.DataTo(&txn); err != nil {
				return nil, fmt.Errorf("failed to parse transaction: %w", err)
			}
			switch field {
			case "externalId":
				found[txn.ExternalID] = struct{}{}
			case "fingerprint":
				found[txn.Fingerprint] = struct{}{}
			}
		}
	}

	return found, nil
}

// StagedExternalIDs returns external IDs of all staged rows.
func (s *FirestoreStore) StagedExternalIDs(ctx context.Context, tenantID string) (map[string]struct{}, error) {
	iter := s.fs.Collection(reviewRowsCollection).
		Where("tenantId", "==", tenantID).
		Documents(ctx)

	ids := make(map[string]struct{})
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate staged rows for tenant %s: %w", tenantID, err)
		}

		var row reviewRowDoc
		if err := doc.DataTo(&row); err != nil {
			return nil, fmt.Errorf("failed to parse review row: %w", err)
		}
		ids[row.ExternalID] = struct{}{}
	}
	return ids, nil
}

// StageRows inserts review rows with monotonic positions.
func (s *FirestoreStore) StageRows(ctx context.Context, tenantID string, rows []domain.ReviewRow) error {
	base := time.Now().UnixNano()
	for i, row := range rows {
		doc := toReviewRowDoc(tenantID, base+int64(i), row)
		if _, err := s.fs.Collection(reviewRowsCollection).Doc(row.Key).Set(ctx, doc); err != nil {
			return fmt.Errorf("failed to stage review row %s: %w", row.Key, err)
		}
	}
	return nil
}

// ListStaged returns one page of staged rows ordered by staging position.
func (s *FirestoreStore) ListStaged(ctx context.Context, tenantID string, offset, limit int) ([]domain.ReviewRow, int, error) {
	all, err := s.stagedRows(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}

	total := len(all)
	if offset >= total {
		return []domain.ReviewRow{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *FirestoreStore) stagedRows(ctx context.Context, tenantID string) ([]domain.ReviewRow, error) {
	iter := s.fs.Collection(reviewRowsCollection).
		Where("tenantId", "==", tenantID).
		OrderBy("position", firestore.Asc).
		Documents(ctx)

	var rows []domain.ReviewRow
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate staged rows for tenant %s: %w", tenantID, err)
		}

		var rowDoc reviewRowDoc
		if err := doc.DataTo(&rowDoc); err != nil {
			return nil, fmt.Errorf("failed to parse review row: %w", err)
		}
		row, err := fromReviewRowDoc(rowDoc)
		if err != nil {
			return nil, err
		}
		rows = append(rows, *row)
	}
	return rows, nil
}

// CompleteReview resolves all staged rows inside a Firestore transaction.
func (s *FirestoreStore) CompleteReview(ctx context.Context, tenantID string, acceptedKeys map[string]struct{}) (int, int, error) {
	var accepted, rejected int

	err := s.fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		accepted, rejected = 0, 0

		query := s.fs.Collection(reviewRowsCollection).
			Where("tenantId", "==", tenantID)
		iter := tx.Documents(query)

		var docs []*firestore.DocumentSnapshot
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to read staged rows: %w", err)
			}
			docs = append(docs, doc)
		}

		for _, doc := range docs {
			var rowDoc reviewRowDoc
			if err := doc.DataTo(&rowDoc); err != nil {
				return fmt.Errorf("failed to parse review row: %w", err)
			}

			if _, ok := acceptedKeys[rowDoc.Key]; ok {
				txnID := uuid.NewString()
				txnRef := s.fs.Collection(transactionsCollection).Doc(txnID)
				if err := tx.Create(txnRef, toTransactionDoc(txnID, tenantID, rowDoc)); err != nil {
					return fmt.Errorf("failed to create transaction for row %s: %w", rowDoc.Key, err)
				}
				accepted++
			} else {
				rejected++
			}

			if err := tx.Delete(doc.Ref); err != nil {
				return fmt.Errorf("failed to delete review row %s: %w", rowDoc.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return accepted, rejected, nil
}

// DeleteStaged discards every staged row for the tenant.
func (s *FirestoreStore) DeleteStaged(ctx context.Context, tenantID string) (int, error) {
	iter := s.fs.Collection(reviewRowsCollection).
		Where("tenantId", "==", tenantID).
		Documents(ctx)

	count := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate staged rows for tenant %s: %w", tenantID, err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return count, fmt.Errorf("failed to delete review row: %w", err)
		}
		count++
	}
	return count, nil
}

func toReviewRowDoc(tenantID string, position int64, row domain.ReviewRow) reviewRowDoc {
	txn := row.Transaction
	return reviewRowDoc{
		Key:            row.Key,
		TenantID:       tenantID,
		Position:       position,
		ExternalID:     txn.ExternalID,
		Date:           txn.Date,
		Amount:         txn.Amount.String(),
		Payee:          txn.Payee,
		Memo:           txn.Memo,
		Source:         txn.Source,
		Classification: string(row.Classification),
		StagedAt:       row.StagedAt,
	}
}

func fromReviewRowDoc(doc reviewRowDoc) (*domain.ReviewRow, error) {
	amount, err := decimal.NewFromString(doc.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored amount %q: %w", doc.Amount, err)
	}

	return &domain.ReviewRow{
		Key: doc.Key,
		Transaction: domain.ImportedTransaction{
			ExternalID: doc.ExternalID,
			Date:       doc.Date,
			Amount:     amount,
			Payee:      doc.Payee,
			Memo:       doc.Memo,
			Source:     doc.Source,
		},
		Classification: domain.Classification(doc.Classification),
		StagedAt:       doc.StagedAt,
	}, nil
}

func toTransactionDoc(id, tenantID string, row reviewRowDoc) transactionDoc {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		amount = decimal.Zero
	}

	return transactionDoc{
		ID:          id,
		TenantID:    tenantID,
		ExternalID:  row.ExternalID,
		Date:        row.Date,
		Amount:      row.Amount,
		Payee:       row.Payee,
		Memo:        row.Memo,
		Source:      row.Source,
		Fingerprint: classify.Fingerprint(row.Date, amount, row.Payee),
		CategoryID:  nil,
		CreatedAt:   time.Now().UTC(),
	}
}
