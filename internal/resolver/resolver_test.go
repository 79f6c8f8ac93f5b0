package resolver

import (
	"time"

	"github.com/example/treasury-engine/internal/snapshot"
)

// testSnapshot builds the fixture shared by the resolver tests: one
// operating account, three employees (two tagged founder), one inactive
// contractor, and two approved invoices.
func testSnapshot() *snapshot.Snapshot {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	deleted := now.AddDate(0, -1, 0)

	return &snapshot.Snapshot{
		Accounts: []snapshot.Account{
			{
				ID: "acct-op", Slug: "operating-account", Name: "Operating",
				Currency: "USDC", Balance: 100000, IsActive: true,
				Address:   "0xAAA0000000000000000000000000000000000001",
				CreatedAt: now.AddDate(-1, 0, 0), UpdatedAt: now,
			},
			{
				ID: "acct-frozen", Slug: "frozen-account", Name: "Frozen",
				Currency: "USDC", Balance: 9999, IsActive: false,
				Address:   "0xAAA0000000000000000000000000000000000002",
				CreatedAt: now.AddDate(-1, 0, 0), UpdatedAt: now,
			},
		},
		Beneficiaries: []snapshot.Beneficiary{
			{
				ID: "emp-alice", Name: "Alice", Type: snapshot.TypeEmployee,
				Status: snapshot.StatusActive, Currency: "USDC", Salary: 8000,
				WalletAddress: "0x1110000000000000000000000000000000000001",
				Tags:          []string{"founder"},
			},
			{
				ID: "emp-bob", Name: "Bob", Type: snapshot.TypeEmployee,
				Status: snapshot.StatusActive, Currency: "USDC", Salary: 6000,
				WalletAddress: "0x1110000000000000000000000000000000000002",
				Tags:          []string{"founder"},
			},
			{
				ID: "emp-carol", Name: "Carol", Type: snapshot.TypeEmployee,
				Status: snapshot.StatusActive, Currency: "USDC", Salary: 5000,
				WalletAddress: "0x1110000000000000000000000000000000000003",
				Tags:          []string{"engineering"},
			},
			{
				ID: "ctr-dan", Name: "Dan", Type: snapshot.TypeContractor,
				Status: snapshot.StatusInactive, Currency: "USDC", HourlyRate: 90,
				WalletAddress: "0x1110000000000000000000000000000000000004",
			},
			{
				ID: "ctr-gone", Name: "Ghost", Type: snapshot.TypeContractor,
				Status: snapshot.StatusActive, Currency: "USDC",
				WalletAddress: "0x1110000000000000000000000000000000000005",
				DeletedAt:     &deleted,
			},
		},
		Invoices: []snapshot.Invoice{
			{
				ID: "inv-1", Vendor: "CloudHost", Amount: 1800, Currency: "USDC",
				Status:        snapshot.InvoiceApproved,
				WalletAddress: "0x2220000000000000000000000000000000000001",
				Tags:          []string{"infrastructure"},
				IssuedAt:      now.AddDate(0, 0, -20), DueAt: now.AddDate(0, 0, 10),
			},
			{
				ID: "inv-2", Vendor: "LegalWorks", Amount: 4200, Currency: "USDC",
				Status:        snapshot.InvoiceApproved,
				WalletAddress: "0x2220000000000000000000000000000000000002",
				Tags:          []string{"legal"},
				IssuedAt:      now.AddDate(0, 0, -15), DueAt: now.AddDate(0, 0, 15),
			},
			{
				ID: "inv-3", Vendor: "CloudHost", Amount: 950, Currency: "USDC",
				Status:        snapshot.InvoicePending,
				WalletAddress: "0x2220000000000000000000000000000000000001",
				Tags:          []string{"infrastructure"},
				IssuedAt:      now.AddDate(0, 0, -5), DueAt: now.AddDate(0, 0, 25),
			},
		},
		Treasury: snapshot.Treasury{
			Revenue: 120000, Expenses: 80000, BurnRate: 40000, RunwayMonths: 9,
		},
	}
}
