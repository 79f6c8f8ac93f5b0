package snapshot

import "time"

// Beneficiary status values.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusPending  = "pending"
)

// Beneficiary types.
const (
	TypeEmployee   = "employee"
	TypeContractor = "contractor"
	TypeIndividual = "individual"
	TypeBusiness   = "business"
)

// Invoice status values.
const (
	InvoiceApproved = "approved"
	InvoicePending  = "pending"
	InvoicePaid     = "paid"
	InvoiceRejected = "rejected"
)

// Transaction directions.
const (
	TxIncoming = "incoming"
	TxOutgoing = "outgoing"
)

// Account is a treasury account holding a spendable balance.
type Account struct {
	ID        string     `json:"id"`
	Slug      string     `json:"slug"`
	Name      string     `json:"name"`
	Currency  string     `json:"currency"`
	Balance   float64    `json:"balance"`
	IsActive  bool       `json:"is_active"`
	Address   string     `json:"address"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Beneficiary is a payable party: employee, contractor, individual or
// business. Type-specific fields are zero for the other types.
type Beneficiary struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	WalletAddress string     `json:"wallet_address"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	Type          string     `json:"type"`
	Tags          []string   `json:"tags,omitempty"`
	Salary        float64    `json:"salary,omitempty"`
	HourlyRate    float64    `json:"hourly_rate,omitempty"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// Invoice is a payable vendor invoice.
type Invoice struct {
	ID            string     `json:"id"`
	Vendor        string     `json:"vendor"`
	WalletAddress string     `json:"wallet_address"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	ApprovedBy    string     `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	IssuedAt      time.Time  `json:"issued_at"`
	DueAt         time.Time  `json:"due_at"`
}

// Treasury holds aggregate financial metrics for the organization.
type Treasury struct {
	Revenue      float64 `json:"revenue"`
	Expenses     float64 `json:"expenses"`
	BurnRate     float64 `json:"burn_rate"`
	RunwayMonths float64 `json:"runway_months"`
}

// Transaction is one entry in the append-only transaction log. Hash,
// BlockNumber and GasUsed are simulated chain metadata, not real
// settlement data.
type Transaction struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Timestamp   time.Time `json:"timestamp"`
	Hash        string    `json:"hash"`
	BlockNumber int64     `json:"block_number"`
	GasUsed     float64   `json:"gas_used"`
	Status      string    `json:"status"`
}

// Snapshot is a point-in-time view of the mock financial data a rule
// executes against. Accounts and Transactions are the only parts the
// engine ever mutates, and only through a Store.
type Snapshot struct {
	Accounts      []Account     `json:"accounts"`
	Beneficiaries []Beneficiary `json:"beneficiaries"`
	Invoices      []Invoice     `json:"invoices"`
	Treasury      Treasury      `json:"treasury"`
	Transactions  []Transaction `json:"transactions"`
}

// Active reports whether the beneficiary can receive payments.
func (b *Beneficiary) Active() bool {
	return b.Status == StatusActive && b.DeletedAt == nil
}

// HasTag reports whether the beneficiary carries the given tag.
func (b *Beneficiary) HasTag(tag string) bool {
	for _, t := range b.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the beneficiary's tag set intersects tags.
// An empty filter matches everything.
func (b *Beneficiary) HasAnyTag(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if b.HasTag(t) {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the invoice's tag set intersects tags.
// An empty filter matches everything.
func (inv *Invoice) HasAnyTag(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		for _, have := range inv.Tags {
			if have == t {
				return true
			}
		}
	}
	return false
}

// Usable reports whether the account can be used as a payment source.
func (a *Account) Usable() bool {
	return a.IsActive && a.DeletedAt == nil
}

// AccountByID returns the account with the given id, or nil.
func (s *Snapshot) AccountByID(id string) *Account {
	for i := range s.Accounts {
		if s.Accounts[i].ID == id {
			return &s.Accounts[i]
		}
	}
	return nil
}

// AccountByRef returns the account matching id or slug, or nil.
func (s *Snapshot) AccountByRef(ref string) *Account {
	for i := range s.Accounts {
		if s.Accounts[i].ID == ref || s.Accounts[i].Slug == ref {
			return &s.Accounts[i]
		}
	}
	return nil
}

// BeneficiaryByID returns the beneficiary with the given id, or nil.
func (s *Snapshot) BeneficiaryByID(id string) *Beneficiary {
	for i := range s.Beneficiaries {
		if s.Beneficiaries[i].ID == id {
			return &s.Beneficiaries[i]
		}
	}
	return nil
}

// OutgoingSince sums confirmed outgoing transactions with a timestamp
// at or after cutoff.
func (s *Snapshot) OutgoingSince(cutoff time.Time) float64 {
	var total float64
	for i := range s.Transactions {
		tx := &s.Transactions[i]
		if tx.Type != TxOutgoing || tx.Status == "failed" {
			continue
		}
		if tx.Timestamp.Before(cutoff) {
			continue
		}
		total += tx.Amount
	}
	return total
}

// Clone returns a deep copy of the snapshot so callers can simulate
// without touching the original.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Accounts:      make([]Account, len(s.Accounts)),
		Beneficiaries: make([]Beneficiary, len(s.Beneficiaries)),
		Invoices:      make([]Invoice, len(s.Invoices)),
		Treasury:      s.Treasury,
		Transactions:  make([]Transaction, len(s.Transactions)),
	}
	copy(out.Accounts, s.Accounts)
	copy(out.Beneficiaries, s.Beneficiaries)
	copy(out.Invoices, s.Invoices)
	copy(out.Transactions, s.Transactions)
	for i := range out.Beneficiaries {
		out.Beneficiaries[i].Tags = append([]string(nil), s.Beneficiaries[i].Tags...)
	}
	for i := range out.Invoices {
		out.Invoices[i].Tags = append([]string(nil), s.Invoices[i].Tags...)
	}
	return out
}
