package resolver

import (
	"fmt"
	"regexp"

	"github.com/example/treasury-engine/internal/snapshot"
)

// Beneficiary item kinds, recorded so downstream stages know where an
// item came from.
const (
	KindDirect     = "direct"
	KindCollection = "collection"
	KindInvoice    = "invoice"
	KindWallet     = "wallet"
	KindUnknown    = "unknown"
)

var walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{6,}$`)

// Item is one resolved beneficiary entry, possibly carrying a base
// amount (an invoice's amount, an employee's salary) for payment
// actions that derive per-record amounts.
type Item struct {
	BeneficiaryID string
	Name          string
	Address       string
	BaseAmount    *float64
	Kind          string
	ReferenceID   string
	Missing       bool
}

// CollectionResult is the outcome of expanding beneficiary references.
// Warnings are non-fatal; Errors abort resolution.
type CollectionResult struct {
	Items    []Item
	Warnings []string
	Errors   []string
}

// ResolveCollections expands each beneficiary reference into concrete
// records. Precedence per reference: exact beneficiary id, collection
// keyword, literal wallet address, then a not-found warning item.
// Inactive and soft-deleted records are dropped with a warning, never
// silently. tags filters collection expansions by tag intersection.
func ResolveCollections(refs []string, snap *snapshot.Snapshot, tags []string) CollectionResult {
	var res CollectionResult

	for _, ref := range refs {
		if ben := snap.BeneficiaryByID(ref); ben != nil {
			if !ben.Active() {
				res.Warnings = append(res.Warnings, fmt.Sprintf("beneficiary %s (%s) is not active and was skipped", ben.ID, ben.Name))
				continue
			}
			res.Items = append(res.Items, Item{
				BeneficiaryID: ben.ID,
				Name:          ben.Name,
				Address:       ben.WalletAddress,
				Kind:          KindDirect,
			})
			continue
		}

		if items, warnings, ok := expandCollection(ref, snap, tags); ok {
			res.Items = append(res.Items, items...)
			res.Warnings = append(res.Warnings, warnings...)
			continue
		}

		if walletPattern.MatchString(ref) {
			res.Items = append(res.Items, Item{
				BeneficiaryID: ref,
				Name:          "External wallet",
				Address:       ref,
				Kind:          KindWallet,
			})
			continue
		}

		res.Warnings = append(res.Warnings, fmt.Sprintf("beneficiary reference %q not found", ref))
		res.Items = append(res.Items, Item{
			BeneficiaryID: ref,
			Kind:          KindUnknown,
			Missing:       true,
		})
	}

	return res
}

// expandCollection expands a named collection keyword. The boolean is
// false when ref is not a known collection.
func expandCollection(ref string, snap *snapshot.Snapshot, tags []string) ([]Item, []string, bool) {
	switch ref {
	case "employees":
		return expandBeneficiaries(snap, tags, withSalary, snapshot.TypeEmployee)
	case "contractors", "active-contractors":
		return expandBeneficiaries(snap, tags, noBase, snapshot.TypeContractor)
	case "individuals":
		return expandBeneficiaries(snap, tags, noBase, snapshot.TypeIndividual)
	case "businesses":
		return expandBeneficiaries(snap, tags, noBase, snapshot.TypeBusiness)
	case "team":
		return expandBeneficiaries(snap, tags, withSalary, snapshot.TypeEmployee, snapshot.TypeContractor)
	case "founders":
		items, warnings, _ := expandBeneficiaries(snap, tags, withSalary, snapshot.TypeEmployee, snapshot.TypeContractor)
		var founders []Item
		for _, item := range items {
			if ben := snap.BeneficiaryByID(item.BeneficiaryID); ben != nil && ben.HasTag("founder") {
				founders = append(founders, item)
			}
		}
		return founders, warnings, true
	case "approved-invoices":
		return expandInvoices(snap, tags, snapshot.InvoiceApproved), nil, true
	case "pending-invoices":
		return expandInvoices(snap, tags, snapshot.InvoicePending), nil, true
	case "all-invoices":
		return expandInvoices(snap, tags, ""), nil, true
	}
	return nil, nil, false
}

type baseAmountFn func(*snapshot.Beneficiary) *float64

func withSalary(b *snapshot.Beneficiary) *float64 {
	if b.Salary > 0 {
		salary := b.Salary
		return &salary
	}
	return nil
}

func noBase(*snapshot.Beneficiary) *float64 { return nil }

func expandBeneficiaries(snap *snapshot.Snapshot, tags []string, base baseAmountFn, types ...string) ([]Item, []string, bool) {
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	var items []Item
	var warnings []string
	for i := range snap.Beneficiaries {
		ben := &snap.Beneficiaries[i]
		if !typeSet[ben.Type] {
			continue
		}
		if !ben.HasAnyTag(tags) {
			continue
		}
		if !ben.Active() {
			warnings = append(warnings, fmt.Sprintf("beneficiary %s (%s) is not active and was skipped", ben.ID, ben.Name))
			continue
		}
		items = append(items, Item{
			BeneficiaryID: ben.ID,
			Name:          ben.Name,
			Address:       ben.WalletAddress,
			BaseAmount:    base(ben),
			Kind:          KindCollection,
		})
	}
	return items, warnings, true
}

func expandInvoices(snap *snapshot.Snapshot, tags []string, status string) []Item {
	var items []Item
	for i := range snap.Invoices {
		inv := &snap.Invoices[i]
		if status != "" && inv.Status != status {
			continue
		}
		if !inv.HasAnyTag(tags) {
			continue
		}
		amount := inv.Amount
		items = append(items, Item{
			BeneficiaryID: inv.ID,
			Name:          inv.Vendor,
			Address:       inv.WalletAddress,
			BaseAmount:    &amount,
			Kind:          KindInvoice,
			ReferenceID:   inv.ID,
		})
	}
	return items
}
