package snapshot

import "time"

// Demo returns a small mock dataset for local runs when no database is
// configured.
func Demo(now time.Time) *Snapshot {
	created := now.AddDate(0, -6, 0)
	approved := now.AddDate(0, 0, -7)

	return &Snapshot{
		Accounts: []Account{
			{
				ID: "acct-operating", Slug: "operating-account", Name: "Operating Account",
				Currency: "USDC", Balance: 250000, IsActive: true,
				Address: "0xA0e31f4bD7c9c25681bA3cEF0e4f892B0F860923",
				CreatedAt: created, UpdatedAt: now,
			},
			{
				ID: "acct-payroll", Slug: "payroll-account", Name: "Payroll Account",
				Currency: "USDC", Balance: 120000, IsActive: true,
				Address: "0xB12d9Aa84f0C5E11e65D2a9c11CD0E4a81b04417",
				CreatedAt: created, UpdatedAt: now,
			},
		},
		Beneficiaries: []Beneficiary{
			{
				ID: "emp-alice", Name: "Alice Nguyen", Type: TypeEmployee, Status: StatusActive,
				WalletAddress: "0x1111111111111111111111111111111111111111",
				Currency:      "USDC", Salary: 8500, Tags: []string{"founder", "engineering"},
			},
			{
				ID: "emp-bob", Name: "Bob Castillo", Type: TypeEmployee, Status: StatusActive,
				WalletAddress: "0x2222222222222222222222222222222222222222",
				Currency:      "USDC", Salary: 7000, Tags: []string{"founder"},
			},
			{
				ID: "emp-carol", Name: "Carol Mensah", Type: TypeEmployee, Status: StatusActive,
				WalletAddress: "0x3333333333333333333333333333333333333333",
				Currency:      "USDC", Salary: 6200, Tags: []string{"engineering"},
			},
			{
				ID: "ctr-dave", Name: "Dave Okafor", Type: TypeContractor, Status: StatusActive,
				WalletAddress: "0x4444444444444444444444444444444444444444",
				Currency:      "USDC", HourlyRate: 95, Tags: []string{"design"},
			},
		},
		Invoices: []Invoice{
			{
				ID: "inv-001", Vendor: "CloudHost Inc", Amount: 1800, Currency: "USDC",
				Status:        InvoiceApproved,
				WalletAddress: "0x5555555555555555555555555555555555555555",
				ApprovedBy:    "cfo", ApprovedAt: &approved,
				Tags:     []string{"infrastructure"},
				IssuedAt: approved.AddDate(0, 0, -14), DueAt: now.AddDate(0, 0, 7),
			},
			{
				ID: "inv-002", Vendor: "LegalWorks LLP", Amount: 4200, Currency: "USDC",
				Status:        InvoiceApproved,
				WalletAddress: "0x6666666666666666666666666666666666666666",
				ApprovedBy:    "cfo", ApprovedAt: &approved,
				Tags:     []string{"legal"},
				IssuedAt: approved.AddDate(0, 0, -10), DueAt: now.AddDate(0, 0, 14),
			},
		},
		Treasury: Treasury{
			Revenue:      120000,
			Expenses:     80000,
			BurnRate:     40000,
			RunwayMonths: 9.25,
		},
		Transactions: []Transaction{
			{
				ID: "tx-seed-1", Type: TxIncoming, Amount: 50000, Currency: "USDC",
				From: "0x9999999999999999999999999999999999999999",
				To:   "0xA0e31f4bD7c9c25681bA3cEF0e4f892B0F860923",
				Description: "Customer payment", Category: "revenue",
				Timestamp: now.AddDate(0, 0, -3), Status: "confirmed",
			},
		},
	}
}
