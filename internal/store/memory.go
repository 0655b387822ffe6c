package store

import (
	"context"
	"sync"

	"github.com/rumor-ml/commons.systems/ofximport/internal/classify"
	"github.com/rumor-ml/commons.systems/ofximport/internal/domain"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs. Data does
// not survive process restart.
type MemoryStore struct {
	mu      sync.Mutex
	tenants map[string]*tenantState
}

type tenantState struct {
	// permanent ledger
	externalIDs  map[string]struct{}
	fingerprints map[string]struct{}
	transactions []domain.ImportedTransaction

	// staging area, in staging order
	staged []domain.ReviewRow
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]*tenantState)}
}

func (m *MemoryStore) tenant(tenantID string) *tenantState {
	t, ok := m.tenants[tenantID]
	if !ok {
		t = &tenantState{
			externalIDs:  make(map[string]struct{}),
			fingerprints: make(map[string]struct{}),
		}
		m.tenants[tenantID] = t
	}
	return t
}

// ExistingExternalIDs reports permanent-ledger external ID matches.
func (m *MemoryStore) ExistingExternalIDs(_ context.Context, tenantID string, externalIDs []string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tenant(tenantID)
	found := make(map[string]struct{})
	for _, id := range externalIDs {
		if _, ok := t.externalIDs[id]; ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

// ExistingFingerprints reports permanent-ledger fingerprint matches.
func (m *MemoryStore) ExistingFingerprints(_ context.Context, tenantID string, fingerprints []string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tenant(tenantID)
	found := make(map[string]struct{})
	for _, fp := range fingerprints {
		if _, ok := t.fingerprints[fp]; ok {
			found[fp] = struct{}{}
		}
	}
	return found, nil
}

// StagedExternalIDs returns external IDs of all staged rows.
func (m *MemoryStore) StagedExternalIDs(_ context.Context, tenantID string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tenant(tenantID)
	ids := make(map[string]struct{}, len(t.staged))
	for _, row := range t.staged {
		ids[row.Transaction.ExternalID] = struct{}{}
	}
	return ids, nil
}

// StageRows appends rows to the staging area.
func (m *MemoryStore) StageRows(_ context.Context, tenantID string, rows []domain.ReviewRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tenant(tenantID)
	t.staged = append(t.staged, rows...)
	return nil
}

// ListStaged returns one page of staged rows in staging order.
func (m *MemoryStore) ListStaged(_ context.Context, tenantID string, offset, limit int) ([]domain.ReviewRow, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tenant(tenantID)
	total := len(t.staged)

	if offset >= total {
		return []domain.ReviewRow{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := make([]domain.ReviewRow, end-offset)
	copy(page, t.staged[offset:end])
	return page, total, nil
}

// CompleteReview resolves all staged rows as accept-or-reject.
func (m *MemoryStore) CompleteReview(_ context.Context, tenantID string, acceptedKeys map[string]struct{}) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tenant(tenantID)
	var accepted, rejected int
	for _, row := range t.staged {
		if _, ok := acceptedKeys[row.Key]; ok {
			txn := row.Transaction
			t.transactions = append(t.transactions, txn)
			t.externalIDs[txn.ExternalID] = struct{}{}
			t.fingerprints[classify.Fingerprint(txn.Date, txn.Amount, txn.Payee)] = struct{}{}
			accepted++
		} else {
			rejected++
		}
	}
	t.staged = nil
	return accepted, rejected, nil
}

// DeleteStaged discards all staged rows.
func (m *MemoryStore) DeleteStaged(_ context.Context, tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tenant(tenantID)
	count := len(t.staged)
	t.staged = nil
	return count, nil
}

// Transactions returns a defensive copy of the tenant's permanent ledger.
func (m *MemoryStore) Transactions(tenantID string) []domain.ImportedTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tenant(tenantID)
	return append([]domain.ImportedTransaction(nil), t.transactions...)
}
