// Package executor simulates batch payment processing against a
// snapshot store. It is the only component that mutates the store, and
// it writes the source balance exactly once per run.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/treasury-engine/internal/resolver"
	"github.com/example/treasury-engine/internal/snapshot"
)

// ItemOutcome is the per-payment result of a batch run.
type ItemOutcome struct {
	BeneficiaryID   string  `json:"beneficiary_id"`
	BeneficiaryName string  `json:"beneficiary_name"`
	Amount          float64 `json:"amount"`
	Success         bool    `json:"success"`
	TransactionID   string  `json:"transaction_id,omitempty"`
	TransactionHash string  `json:"transaction_hash,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// BalanceChange summarizes the single balance mutation of a run.
type BalanceChange struct {
	AccountID string  `json:"account_id"`
	Before    float64 `json:"before"`
	After     float64 `json:"after"`
	Deducted  float64 `json:"deducted"`
}

// Result is the outcome of executing (or dry-running) a batch. Success
// requires zero failed items; partial batches report the items that did
// go through and the amount actually deducted.
type Result struct {
	Success        bool           `json:"success"`
	BatchID        string         `json:"batch_id"`
	ChatID         string         `json:"chat_id,omitempty"`
	DryRun         bool           `json:"dry_run"`
	Items          []ItemOutcome  `json:"items"`
	ProcessedCount int            `json:"processed_count"`
	FailedCount    int            `json:"failed_count"`
	TotalProcessed float64        `json:"total_processed"`
	Balance        *BalanceChange `json:"balance,omitempty"`
	ExecutedAt     time.Time      `json:"executed_at"`
}

// Executor runs validated payment batches against a Store.
type Executor struct {
	store  snapshot.Store
	logger *slog.Logger

	// now is injectable for deterministic tests.
	now func() time.Time

	// process lets tests inject per-item failures. A nil process means
	// every item succeeds, which is the production simulation behavior.
	process func(item resolver.PaymentItem) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock overrides the executor's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithProcessor overrides per-item processing, typically to inject
// failures in tests.
func WithProcessor(fn func(item resolver.PaymentItem) error) Option {
	return func(e *Executor) { e.process = fn }
}

// New builds an Executor over store.
func New(store snapshot.Store, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute processes items in list order against the source account.
// Each successful item appends one synthetic transaction; after the
// loop the total successfully processed amount is deducted from the
// source balance in a single write. Item failures are isolated: they
// mark the batch failed but do not undo sibling items.
func (e *Executor) Execute(ctx context.Context, chatID string, items []resolver.PaymentItem, sourceAccountID string) (*Result, error) {
	return e.run(ctx, chatID, items, sourceAccountID, false)
}

// DryRun computes the same result shape as Execute without touching
// the store.
func (e *Executor) DryRun(ctx context.Context, chatID string, items []resolver.PaymentItem, sourceAccountID string) (*Result, error) {
	return e.run(ctx, chatID, items, sourceAccountID, true)
}

func (e *Executor) run(ctx context.Context, chatID string, items []resolver.PaymentItem, sourceAccountID string, dryRun bool) (*Result, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	acct := snap.AccountByRef(sourceAccountID)
	if acct == nil {
		return nil, fmt.Errorf("source account %q not found", sourceAccountID)
	}

	now := e.now()
	res := &Result{
		BatchID:    uuid.NewString(),
		ChatID:     chatID,
		DryRun:     dryRun,
		ExecutedAt: now,
	}

	var txs []snapshot.Transaction
	processed := decimal.Zero

	for i, item := range items {
		outcome := ItemOutcome{
			BeneficiaryID:   item.BeneficiaryID,
			BeneficiaryName: item.BeneficiaryName,
			Amount:          item.Amount,
		}

		if e.process != nil {
			if perr := e.process(item); perr != nil {
				outcome.Error = perr.Error()
				res.FailedCount++
				res.Items = append(res.Items, outcome)
				e.logger.Warn("payment item failed",
					"batch_id", res.BatchID,
					"beneficiary_id", item.BeneficiaryID,
					"error", perr.Error())
				continue
			}
		}

		tx := e.synthesize(res.BatchID, i, acct.ID, item, now)
		txs = append(txs, tx)
		processed = processed.Add(decimal.NewFromFloat(item.Amount))

		outcome.Success = true
		outcome.TransactionID = tx.ID
		outcome.TransactionHash = tx.Hash
		res.ProcessedCount++
		res.Items = append(res.Items, outcome)
	}

	res.TotalProcessed = processed.InexactFloat64()
	res.Success = res.FailedCount == 0

	after := decimal.NewFromFloat(acct.Balance).Sub(processed).InexactFloat64()
	res.Balance = &BalanceChange{
		AccountID: acct.ID,
		Before:    acct.Balance,
		After:     after,
		Deducted:  res.TotalProcessed,
	}

	if dryRun || res.ProcessedCount == 0 {
		return res, nil
	}

	if err := e.store.AppendTransactions(ctx, txs); err != nil {
		return nil, fmt.Errorf("appending transactions: %w", err)
	}
	if err := e.store.SetBalance(ctx, acct.ID, after); err != nil {
		// Transactions are already in the log; surface the mismatch
		// instead of pretending the run completed.
		return nil, fmt.Errorf("writing balance for %s: %w", acct.ID, err)
	}

	e.logger.Info("batch executed",
		"batch_id", res.BatchID,
		"account_id", acct.ID,
		"processed", res.ProcessedCount,
		"failed", res.FailedCount,
		"total", res.TotalProcessed)
	return res, nil
}

// Rollback removes a result's appended transactions and restores the
// recorded pre-run balance. It is best effort and not a substitute for
// an atomic commit.
func (e *Executor) Rollback(ctx context.Context, res *Result) error {
	if res == nil || res.DryRun {
		return nil
	}

	var ids []string
	for _, item := range res.Items {
		if item.TransactionID != "" {
			ids = append(ids, item.TransactionID)
		}
	}
	if len(ids) > 0 {
		if err := e.store.RemoveTransactions(ctx, ids); err != nil {
			return fmt.Errorf("removing transactions: %w", err)
		}
	}
	if res.Balance != nil && res.ProcessedCount > 0 {
		if err := e.store.SetBalance(ctx, res.Balance.AccountID, res.Balance.Before); err != nil {
			return fmt.Errorf("restoring balance for %s: %w", res.Balance.AccountID, err)
		}
	}

	e.logger.Info("batch rolled back", "batch_id", res.BatchID, "transactions", len(ids))
	return nil
}

// synthesize builds the simulated on-chain transaction for one item.
// Hash, block number and gas are derived deterministically from the
// batch id and index; they look plausible but carry no cryptographic
// meaning.
func (e *Executor) synthesize(batchID string, index int, accountID string, item resolver.PaymentItem, now time.Time) snapshot.Transaction {
	seed := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s:%.2f", batchID, index, item.BeneficiaryID, item.Amount)))
	digest := hex.EncodeToString(seed[:])

	block := int64(0)
	for _, b := range seed[:6] {
		block = block<<8 | int64(b)
	}

	return snapshot.Transaction{
		ID:          uuid.NewString(),
		Type:        snapshot.TxOutgoing,
		Amount:      item.Amount,
		Currency:    item.Currency,
		From:        accountID,
		To:          item.BeneficiaryAddress,
		Description: item.Context.Description,
		Category:    "rule-payment",
		Timestamp:   now,
		Hash:        "0x" + digest,
		BlockNumber: 18_000_000 + block%1_000_000,
		GasUsed:     float64(21000 + int(seed[7])%40000),
		Status:      "confirmed",
	}
}
