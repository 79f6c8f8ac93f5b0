package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store provides the financial data a rule executes against and accepts
// the mutations the batch processor produces. Implementations must
// treat the balance write as single-writer per run: the engine never
// issues concurrent mutations for the same account, and implementations
// are not required to make concurrent runs safe.
type Store interface {
	// Snapshot returns a read view of the current financial data.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// AppendTransactions appends simulated transactions to the log.
	AppendTransactions(ctx context.Context, txs []Transaction) error

	// RemoveTransactions deletes previously appended transactions by id.
	// Used only by best-effort rollback.
	RemoveTransactions(ctx context.Context, ids []string) error

	// SetBalance writes the account's new balance. Called at most once
	// per account per run.
	SetBalance(ctx context.Context, accountID string, balance float64) error
}

// MemoryStore is an in-memory Store backed by a Snapshot. It is the
// default for tests and for previews against injected data.
type MemoryStore struct {
	mu   sync.Mutex
	data *Snapshot
}

// NewMemoryStore wraps data in a MemoryStore. The store takes ownership
// of the snapshot; callers wanting isolation should pass data.Clone().
func NewMemoryStore(data *Snapshot) *MemoryStore {
	return &MemoryStore{data: data}
}

func (m *MemoryStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.Clone(), nil
}

func (m *MemoryStore) AppendTransactions(ctx context.Context, txs []Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Transactions = append(m.data.Transactions, txs...)
	return nil
}

func (m *MemoryStore) RemoveTransactions(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	kept := m.data.Transactions[:0]
	for _, tx := range m.data.Transactions {
		if !drop[tx.ID] {
			kept = append(kept, tx)
		}
	}
	m.data.Transactions = kept
	return nil
}

func (m *MemoryStore) SetBalance(ctx context.Context, accountID string, balance float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct := m.data.AccountByID(accountID)
	if acct == nil {
		return fmt.Errorf("account %s not found", accountID)
	}
	acct.Balance = balance
	acct.UpdatedAt = time.Now().UTC()
	return nil
}
