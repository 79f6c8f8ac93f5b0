package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL. The balance write uses
// an optimistic check on the previous balance and retries serialization
// failures, so a concurrent writer surfaces as an error instead of a
// silent lost update.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed snapshot store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

func (p *PostgresStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	out := &Snapshot{}

	rows, err := p.Pool.Query(ctx, `
		SELECT id, slug, name, currency, balance, is_active, address, created_at, updated_at, deleted_at
		FROM accounts ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Slug, &a.Name, &a.Currency, &a.Balance, &a.IsActive, &a.Address, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out.Accounts = append(out.Accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("account rows: %w", err)
	}

	brows, err := p.Pool.Query(ctx, `
		SELECT id, name, wallet_address, currency, status, type, tags, salary, hourly_rate, deleted_at
		FROM beneficiaries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query beneficiaries: %w", err)
	}
	defer brows.Close()
	for brows.Next() {
		var b Beneficiary
		if err := brows.Scan(&b.ID, &b.Name, &b.WalletAddress, &b.Currency, &b.Status, &b.Type, &b.Tags, &b.Salary, &b.HourlyRate, &b.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan beneficiary: %w", err)
		}
		out.Beneficiaries = append(out.Beneficiaries, b)
	}
	if err := brows.Err(); err != nil {
		return nil, fmt.Errorf("beneficiary rows: %w", err)
	}

	irows, err := p.Pool.Query(ctx, `
		SELECT id, vendor, wallet_address, amount, currency, status, COALESCE(approved_by, ''), approved_at, tags, issued_at, due_at
		FROM invoices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer irows.Close()
	for irows.Next() {
		var inv Invoice
		if err := irows.Scan(&inv.ID, &inv.Vendor, &inv.WalletAddress, &inv.Amount, &inv.Currency, &inv.Status, &inv.ApprovedBy, &inv.ApprovedAt, &inv.Tags, &inv.IssuedAt, &inv.DueAt); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		out.Invoices = append(out.Invoices, inv)
	}
	if err := irows.Err(); err != nil {
		return nil, fmt.Errorf("invoice rows: %w", err)
	}

	err = p.Pool.QueryRow(ctx, `SELECT revenue, expenses, burn_rate, runway_months FROM treasury WHERE id = 1`).
		Scan(&out.Treasury.Revenue, &out.Treasury.Expenses, &out.Treasury.BurnRate, &out.Treasury.RunwayMonths)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to query treasury metrics: %w", err)
	}

	trows, err := p.Pool.Query(ctx, `
		SELECT id, type, amount, currency, from_address, to_address, COALESCE(description, ''), COALESCE(category, ''), timestamp, COALESCE(hash, ''), block_number, gas_used, status
		FROM transactions ORDER BY timestamp`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer trows.Close()
	for trows.Next() {
		var t Transaction
		if err := trows.Scan(&t.ID, &t.Type, &t.Amount, &t.Currency, &t.From, &t.To, &t.Description, &t.Category, &t.Timestamp, &t.Hash, &t.BlockNumber, &t.GasUsed, &t.Status); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out.Transactions = append(out.Transactions, t)
	}
	if err := trows.Err(); err != nil {
		return nil, fmt.Errorf("transaction rows: %w", err)
	}

	return out, nil
}

func (p *PostgresStore) AppendTransactions(ctx context.Context, txs []Transaction) error {
	dbtx, err := p.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbtx.Rollback(ctx)

	for _, t := range txs {
		_, err := dbtx.Exec(ctx, `
			INSERT INTO transactions (id, type, amount, currency, from_address, to_address, description, category, timestamp, hash, block_number, gas_used, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			t.ID, t.Type, t.Amount, t.Currency, t.From, t.To, t.Description, t.Category, t.Timestamp, t.Hash, t.BlockNumber, t.GasUsed, t.Status)
		if err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
		}
	}

	if err := dbtx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transactions: %w", err)
	}
	return nil
}

func (p *PostgresStore) RemoveTransactions(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := p.Pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to remove transaction %s: %w", id, err)
		}
	}
	return nil
}

// SetBalance writes the new balance inside a serializable transaction,
// retrying serialization failures the way the upstream ledger does.
func (p *PostgresStore) SetBalance(ctx context.Context, accountID string, balance float64) error {
	const maxRetries = 3

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := p.setBalanceOnce(ctx, accountID, balance)
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "40001" {
			if attempt == maxRetries-1 {
				return fmt.Errorf("failed to update balance after %d retries: %w", maxRetries, err)
			}
			time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
			continue
		}
		return err
	}
	return nil
}

func (p *PostgresStore) setBalanceOnce(ctx context.Context, accountID string, balance float64) error {
	dbtx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbtx.Rollback(ctx)

	tag, err := dbtx.Exec(ctx,
		`UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`,
		balance, accountID)
	if err != nil {
		return fmt.Errorf("failed to update balance for %s: %w", accountID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found", accountID)
	}

	if err := dbtx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit balance update: %w", err)
	}
	return nil
}
