package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/example/treasury-engine/internal/snapshot"
)

// Record carries the single concrete record a singular source path
// (e.g. "invoice.amount") resolves against. It is supplied by the
// payment resolver when iterating per-record payments.
type Record struct {
	Account     *snapshot.Account
	Beneficiary *snapshot.Beneficiary
	Invoice     *snapshot.Invoice
}

// Collection heads addressable by source paths.
var collectionHeads = map[string]bool{
	"accounts":     true,
	"employees":    true,
	"contractors":  true,
	"individuals":  true,
	"businesses":   true,
	"invoices":     true,
	"treasury":     true,
	"transactions": true,
}

// Singular heads resolved against the Record context.
var singularHeads = map[string]bool{
	"account":     true,
	"beneficiary": true,
	"employee":    true,
	"contractor":  true,
	"invoice":     true,
}

// ValidateSource checks structural well-formedness only: a known head
// plus at least one further segment. It does not guarantee the path
// resolves, since resolution can depend on run-time context.
func ValidateSource(path string) bool {
	parts := strings.Split(path, ".")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return collectionHeads[parts[0]] || singularHeads[parts[0]]
}

// ResolveSource maps a dotted source path to a numeric value from the
// snapshot. The boolean is false when the path cannot be resolved;
// callers must treat that as "cannot compute amount", never as zero.
func ResolveSource(path string, snap *snapshot.Snapshot, rctx *Record) (float64, bool) {
	parts := strings.Split(path, ".")
	if len(parts) < 2 || snap == nil {
		return 0, false
	}

	head, rest := parts[0], parts[1:]
	switch head {
	case "treasury":
		return resolveTreasury(rest, snap)
	case "accounts":
		return resolveAccounts(rest, snap)
	case "employees":
		return resolveBeneficiaries(rest, snap, snapshot.TypeEmployee)
	case "contractors":
		return resolveBeneficiaries(rest, snap, snapshot.TypeContractor)
	case "individuals":
		return resolveBeneficiaries(rest, snap, snapshot.TypeIndividual)
	case "businesses":
		return resolveBeneficiaries(rest, snap, snapshot.TypeBusiness)
	case "invoices":
		return resolveInvoices(rest, snap)
	case "transactions":
		return resolveTransactions(rest, snap)
	}

	if singularHeads[head] {
		return resolveSingular(head, rest, rctx)
	}
	return 0, false
}

func resolveTreasury(rest []string, snap *snapshot.Snapshot) (float64, bool) {
	if len(rest) != 1 {
		return 0, false
	}
	switch rest[0] {
	case "revenue":
		return snap.Treasury.Revenue, true
	case "expenses":
		return snap.Treasury.Expenses, true
	case "burn-rate":
		return snap.Treasury.BurnRate, true
	case "runway":
		return snap.Treasury.RunwayMonths, true
	}
	return 0, false
}

func resolveAccounts(rest []string, snap *snapshot.Snapshot) (float64, bool) {
	switch strings.Join(rest, ".") {
	case "total-balance":
		var sum float64
		for i := range snap.Accounts {
			if snap.Accounts[i].DeletedAt == nil {
				sum += snap.Accounts[i].Balance
			}
		}
		return sum, true
	case "active.total-balance":
		var sum float64
		for i := range snap.Accounts {
			if snap.Accounts[i].Usable() {
				sum += snap.Accounts[i].Balance
			}
		}
		return sum, true
	case "count":
		return float64(len(snap.Accounts)), true
	}

	// accounts.<slug-or-id>.balance
	if len(rest) == 2 && rest[1] == "balance" {
		if acct := snap.AccountByRef(rest[0]); acct != nil {
			return acct.Balance, true
		}
	}
	return 0, false
}

func resolveBeneficiaries(rest []string, snap *snapshot.Snapshot, benType string) (float64, bool) {
	var members []*snapshot.Beneficiary
	for i := range snap.Beneficiaries {
		if snap.Beneficiaries[i].Type == benType {
			members = append(members, &snap.Beneficiaries[i])
		}
	}

	switch strings.Join(rest, ".") {
	case "count":
		return float64(len(members)), true
	case "active.count":
		var n int
		for _, b := range members {
			if b.Active() {
				n++
			}
		}
		return float64(n), true
	case "total-salary":
		var sum float64
		for _, b := range members {
			sum += b.Salary
		}
		return sum, true
	case "active.total-salary":
		var sum float64
		for _, b := range members {
			if b.Active() {
				sum += b.Salary
			}
		}
		return sum, true
	}
	return 0, false
}

func resolveInvoices(rest []string, snap *snapshot.Snapshot) (float64, bool) {
	sumWhere := func(status string) float64 {
		var sum float64
		for i := range snap.Invoices {
			if status == "" || snap.Invoices[i].Status == status {
				sum += snap.Invoices[i].Amount
			}
		}
		return sum
	}
	countWhere := func(status string) float64 {
		var n float64
		for i := range snap.Invoices {
			if status == "" || snap.Invoices[i].Status == status {
				n++
			}
		}
		return n
	}

	switch strings.Join(rest, ".") {
	case "total-amount":
		return sumWhere(""), true
	case "count":
		return countWhere(""), true
	case "approved.total-amount":
		return sumWhere(snapshot.InvoiceApproved), true
	case "approved.count":
		return countWhere(snapshot.InvoiceApproved), true
	case "pending.total-amount":
		return sumWhere(snapshot.InvoicePending), true
	case "pending.count":
		return countWhere(snapshot.InvoicePending), true
	}
	return 0, false
}

func resolveTransactions(rest []string, snap *snapshot.Snapshot) (float64, bool) {
	switch strings.Join(rest, ".") {
	case "count":
		return float64(len(snap.Transactions)), true
	case "outgoing.total-amount":
		var sum float64
		for i := range snap.Transactions {
			if snap.Transactions[i].Type == snapshot.TxOutgoing {
				sum += snap.Transactions[i].Amount
			}
		}
		return sum, true
	case "incoming.total-amount":
		var sum float64
		for i := range snap.Transactions {
			if snap.Transactions[i].Type == snapshot.TxIncoming {
				sum += snap.Transactions[i].Amount
			}
		}
		return sum, true
	}
	return 0, false
}

func resolveSingular(head string, rest []string, rctx *Record) (float64, bool) {
	if rctx == nil || len(rest) != 1 {
		return 0, false
	}

	switch head {
	case "account":
		if rctx.Account != nil && rest[0] == "balance" {
			return rctx.Account.Balance, true
		}
	case "invoice":
		if rctx.Invoice != nil && rest[0] == "amount" {
			return rctx.Invoice.Amount, true
		}
	case "employee", "contractor", "beneficiary":
		if rctx.Beneficiary == nil {
			return 0, false
		}
		switch rest[0] {
		case "salary":
			return rctx.Beneficiary.Salary, true
		case "hourly-rate":
			return rctx.Beneficiary.HourlyRate, true
		}
	}
	return 0, false
}

// ValidSources enumerates the source paths resolvable against snap,
// for validation feedback and autocomplete.
func ValidSources(snap *snapshot.Snapshot) []string {
	paths := []string{
		"treasury.revenue",
		"treasury.expenses",
		"treasury.burn-rate",
		"treasury.runway",
		"accounts.total-balance",
		"accounts.active.total-balance",
		"accounts.count",
		"invoices.total-amount",
		"invoices.count",
		"invoices.approved.total-amount",
		"invoices.approved.count",
		"invoices.pending.total-amount",
		"invoices.pending.count",
		"transactions.count",
		"transactions.outgoing.total-amount",
		"transactions.incoming.total-amount",
		"invoice.amount",
		"employee.salary",
		"contractor.hourly-rate",
		"account.balance",
	}

	for _, head := range []string{"employees", "contractors", "individuals", "businesses"} {
		paths = append(paths,
			head+".count",
			head+".active.count",
			head+".total-salary",
			head+".active.total-salary",
		)
	}

	if snap != nil {
		for i := range snap.Accounts {
			paths = append(paths, fmt.Sprintf("accounts.%s.balance", snap.Accounts[i].Slug))
		}
	}

	sort.Strings(paths)
	return paths
}
