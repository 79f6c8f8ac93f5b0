package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteStore is a Store backed by a SQLite database, used to run the
// engine against persisted mock financial data.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an opened SQLite database. The caller owns the
// connection and is responsible for registering the sqlite3 driver.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Migrate creates the snapshot tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		currency TEXT NOT NULL,
		balance REAL NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		address TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		deleted_at TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS beneficiaries (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		wallet_address TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		type TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		salary REAL NOT NULL DEFAULT 0,
		hourly_rate REAL NOT NULL DEFAULT 0,
		deleted_at TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		vendor TEXT NOT NULL,
		wallet_address TEXT NOT NULL,
		amount REAL NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		approved_by TEXT,
		approved_at TIMESTAMP,
		tags TEXT NOT NULL DEFAULT '[]',
		issued_at TIMESTAMP NOT NULL,
		due_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS treasury (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		revenue REAL NOT NULL,
		expenses REAL NOT NULL,
		burn_rate REAL NOT NULL,
		runway_months REAL NOT NULL
	);
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		amount REAL NOT NULL,
		currency TEXT NOT NULL,
		from_address TEXT NOT NULL,
		to_address TEXT NOT NULL,
		description TEXT,
		category TEXT,
		timestamp TIMESTAMP NOT NULL,
		hash TEXT,
		block_number INTEGER NOT NULL DEFAULT 0,
		gas_used REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL
	);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create snapshot schema: %w", err)
	}
	return nil
}

// Seed replaces the stored snapshot with data.
func (s *SQLiteStore) Seed(ctx context.Context, data *Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"accounts", "beneficiaries", "invoices", "treasury", "transactions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, a := range data.Accounts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (id, slug, name, currency, balance, is_active, address, created_at, updated_at, deleted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Slug, a.Name, a.Currency, a.Balance, a.IsActive, a.Address, a.CreatedAt, a.UpdatedAt, a.DeletedAt)
		if err != nil {
			return fmt.Errorf("failed to insert account %s: %w", a.ID, err)
		}
	}

	for _, b := range data.Beneficiaries {
		tags, err := json.Marshal(b.Tags)
		if err != nil {
			return fmt.Errorf("failed to encode tags for %s: %w", b.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO beneficiaries (id, name, wallet_address, currency, status, type, tags, salary, hourly_rate, deleted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.Name, b.WalletAddress, b.Currency, b.Status, b.Type, string(tags), b.Salary, b.HourlyRate, b.DeletedAt)
		if err != nil {
			return fmt.Errorf("failed to insert beneficiary %s: %w", b.ID, err)
		}
	}

	for _, inv := range data.Invoices {
		tags, err := json.Marshal(inv.Tags)
		if err != nil {
			return fmt.Errorf("failed to encode tags for %s: %w", inv.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invoices (id, vendor, wallet_address, amount, currency, status, approved_by, approved_at, tags, issued_at, due_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, inv.Vendor, inv.WalletAddress, inv.Amount, inv.Currency, inv.Status, inv.ApprovedBy, inv.ApprovedAt, string(tags), inv.IssuedAt, inv.DueAt)
		if err != nil {
			return fmt.Errorf("failed to insert invoice %s: %w", inv.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO treasury (id, revenue, expenses, burn_rate, runway_months)
		VALUES (1, ?, ?, ?, ?)`,
		data.Treasury.Revenue, data.Treasury.Expenses, data.Treasury.BurnRate, data.Treasury.RunwayMonths)
	if err != nil {
		return fmt.Errorf("failed to insert treasury metrics: %w", err)
	}

	for _, t := range data.Transactions {
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	out := &Snapshot{}

	rows, err := s.db.QueryContext(ctx, `
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

	brows, err := s.db.QueryContext(ctx, `
		SELECT id, name, wallet_address, currency, status, type, tags, salary, hourly_rate, deleted_at
		FROM beneficiaries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query beneficiaries: %w", err)
	}
	defer brows.Close()
	for brows.Next() {
		var b Beneficiary
		var tags string
		if err := brows.Scan(&b.ID, &b.Name, &b.WalletAddress, &b.Currency, &b.Status, &b.Type, &tags, &b.Salary, &b.HourlyRate, &b.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan beneficiary: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &b.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags for %s: %w", b.ID, err)
		}
		out.Beneficiaries = append(out.Beneficiaries, b)
	}
	if err := brows.Err(); err != nil {
		return nil, fmt.Errorf("beneficiary rows: %w", err)
	}

	irows, err := s.db.QueryContext(ctx, `
		SELECT id, vendor, wallet_address, amount, currency, status, approved_by, approved_at, tags, issued_at, due_at
		FROM invoices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer irows.Close()
	for irows.Next() {
		var inv Invoice
		var tags string
		var approvedBy sql.NullString
		if err := irows.Scan(&inv.ID, &inv.Vendor, &inv.WalletAddress, &inv.Amount, &inv.Currency, &inv.Status, &approvedBy, &inv.ApprovedAt, &tags, &inv.IssuedAt, &inv.DueAt); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		inv.ApprovedBy = approvedBy.String
		if err := json.Unmarshal([]byte(tags), &inv.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags for %s: %w", inv.ID, err)
		}
		out.Invoices = append(out.Invoices, inv)
	}
	if err := irows.Err(); err != nil {
		return nil, fmt.Errorf("invoice rows: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT revenue, expenses, burn_rate, runway_months FROM treasury WHERE id = 1`).
		Scan(&out.Treasury.Revenue, &out.Treasury.Expenses, &out.Treasury.BurnRate, &out.Treasury.RunwayMonths)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query treasury metrics: %w", err)
	}

	trows, err := s.db.QueryContext(ctx, `
		SELECT id, type, amount, currency, from_address, to_address, description, category, timestamp, hash, block_number, gas_used, status
		FROM transactions ORDER BY timestamp`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer trows.Close()
	for trows.Next() {
		var t Transaction
		var desc, category, hash sql.NullString
		if err := trows.Scan(&t.ID, &t.Type, &t.Amount, &t.Currency, &t.From, &t.To, &desc, &category, &t.Timestamp, &hash, &t.BlockNumber, &t.GasUsed, &t.Status); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Description = desc.String
		t.Category = category.String
		t.Hash = hash.String
		out.Transactions = append(out.Transactions, t)
	}
	if err := trows.Err(); err != nil {
		return nil, fmt.Errorf("transaction rows: %w", err)
	}

	return out, nil
}

func (s *SQLiteStore) AppendTransactions(ctx context.Context, txs []Transaction) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbtx.Rollback()

	for _, t := range txs {
		if err := insertTransaction(ctx, dbtx, t); err != nil {
			return err
		}
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transactions: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RemoveTransactions(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to remove transaction %s: %w", id, err)
		}
	}
	return nil
}

func (s *SQLiteStore) SetBalance(ctx context.Context, accountID string, balance float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET balance = ?, updated_at = ? WHERE id = ?`,
		balance, time.Now().UTC(), accountID)
	if err != nil {
		return fmt.Errorf("failed to update balance for %s: %w", accountID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check balance update for %s: %w", accountID, err)
	}
	if affected == 0 {
		return fmt.Errorf("account %s not found", accountID)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTransaction(ctx context.Context, db execer, t Transaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions (id, type, amount, currency, from_address, to_address, description, category, timestamp, hash, block_number, gas_used, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Type, t.Amount, t.Currency, t.From, t.To, t.Description, t.Category, t.Timestamp, t.Hash, t.BlockNumber, t.GasUsed, t.Status)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
	}
	return nil
}
