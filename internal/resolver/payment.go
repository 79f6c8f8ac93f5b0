package resolver

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/example/treasury-engine/internal/formula"
	"github.com/example/treasury-engine/internal/rule"
	"github.com/example/treasury-engine/internal/snapshot"
)

// PaymentContext records where a payment item's amount came from.
type PaymentContext struct {
	Source         string   `json:"source"`
	ReferenceID    string   `json:"reference_id,omitempty"`
	Description    string   `json:"description"`
	OriginalAmount *float64 `json:"original_amount,omitempty"`
	Percentage     *float64 `json:"percentage,omitempty"`
}

// PaymentItem is one concrete payment instruction. It is immutable
// once produced; the policy pipeline and executor only read it.
type PaymentItem struct {
	BeneficiaryID      string         `json:"beneficiary_id"`
	BeneficiaryName    string         `json:"beneficiary_name"`
	BeneficiaryAddress string         `json:"beneficiary_address"`
	Amount             float64        `json:"amount"`
	Currency           string         `json:"currency"`
	Context            PaymentContext `json:"context"`
}

// Resolution is the full outcome of turning a rule document into
// payment instructions.
type Resolution struct {
	Success     bool          `json:"success"`
	Items       []PaymentItem `json:"payment_items"`
	TotalAmount float64       `json:"total_amount"`
	Errors      []string      `json:"errors,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
	Steps       []string      `json:"steps,omitempty"`
}

// ReserveConfig controls the minimum balance kept back by leftover
// payments. Accounts maps account id or slug to an absolute reserve;
// Ratio applies when an account has no entry (0 means the 10% default).
type ReserveConfig struct {
	Ratio    float64
	Accounts map[string]float64
}

const defaultReserveRatio = 0.10

// ReserveFor returns the minimum reserve for the account.
func (rc ReserveConfig) ReserveFor(acct *snapshot.Account) float64 {
	if amount, ok := rc.Accounts[acct.ID]; ok {
		return amount
	}
	if amount, ok := rc.Accounts[acct.Slug]; ok {
		return amount
	}
	ratio := rc.Ratio
	if ratio == 0 {
		ratio = defaultReserveRatio
	}
	return round2(acct.Balance * ratio)
}

// PaymentResolver turns rule documents into itemized payment
// instructions against a snapshot. It holds no mutable state and is
// safe to reuse across runs.
type PaymentResolver struct {
	Reserves ReserveConfig
	// Evaluate applies a formula to a base value. Defaults to the
	// formula package's evaluator; injectable for tests.
	Evaluate func(formula string, base float64) (float64, error)
}

// Resolve produces the payment instruction set for doc. It never
// mutates snap. A failed resolution carries errors and no items are to
// be executed; collection warnings alone are non-fatal.
func (r *PaymentResolver) Resolve(doc *rule.Document, snap *snapshot.Snapshot) *Resolution {
	res := &Resolution{}

	acct := snap.AccountByRef(doc.Payment.Source)
	if acct == nil {
		return res.fail(fmt.Sprintf("source account %q not found", doc.Payment.Source))
	}
	if !acct.Usable() {
		return res.fail(fmt.Sprintf("source account %q is not active", doc.Payment.Source))
	}
	res.step("resolved source account %s (balance %.2f %s)", acct.Slug, acct.Balance, acct.Currency)

	currency := doc.Payment.Currency
	if currency == "" {
		currency = acct.Currency
	}

	var collected CollectionResult
	if doc.Payment.Action == rule.ActionBatch {
		if len(doc.Payment.Tags) == 0 {
			return res.fail("batch payment requires tags; there is no default all-invoices behavior")
		}
		collected = ResolveCollections([]string{"approved-invoices"}, snap, doc.Payment.Tags)
	} else {
		collected = ResolveCollections(doc.Payment.Beneficiaries, snap, doc.Payment.Tags)
	}
	res.Warnings = append(res.Warnings, collected.Warnings...)
	res.Errors = append(res.Errors, collected.Errors...)

	for _, item := range collected.Items {
		if item.Missing {
			res.Errors = append(res.Errors, fmt.Sprintf("beneficiary %q could not be resolved", item.BeneficiaryID))
		}
	}
	if len(res.Errors) > 0 {
		res.Success = false
		return res
	}
	res.step("resolved %d beneficiary record(s)", len(collected.Items))

	var err error
	switch doc.Payment.Action {
	case rule.ActionSimple:
		err = r.resolveSimple(res, doc, snap, collected.Items, currency)
	case rule.ActionSplit:
		err = r.resolveSplit(res, doc, snap, collected.Items, currency)
	case rule.ActionCalculation:
		err = r.resolveCalculation(res, doc, collected.Items, currency)
	case rule.ActionLeftover:
		err = r.resolveLeftover(res, acct, collected.Items, currency)
	case rule.ActionBatch:
		err = r.resolveBatch(res, doc, collected.Items, currency)
	default:
		err = fmt.Errorf("unknown payment action %q", doc.Payment.Action)
	}
	if err != nil {
		return res.fail(err.Error())
	}

	total := decimal.Zero
	for i := range res.Items {
		if res.Items[i].Amount <= 0 || math.IsInf(res.Items[i].Amount, 0) || math.IsNaN(res.Items[i].Amount) {
			return res.fail(fmt.Sprintf("computed amount for %s is not a positive finite number", res.Items[i].BeneficiaryID))
		}
		total = total.Add(decimal.NewFromFloat(res.Items[i].Amount))
	}
	res.TotalAmount = total.InexactFloat64()
	if res.TotalAmount <= 0 {
		return res.fail("total payment amount must be greater than zero")
	}

	res.Success = true
	res.step("computed %d payment item(s) totaling %.2f %s", len(res.Items), res.TotalAmount, currency)
	return res
}

func (r *PaymentResolver) resolveSimple(res *Resolution, doc *rule.Document, snap *snapshot.Snapshot, items []Item, currency string) error {
	if len(items) != 1 {
		return fmt.Errorf("simple payment requires exactly one beneficiary, resolved %d", len(items))
	}
	item := items[0]

	amount, desc, err := r.itemAmount(doc, snap, item)
	if err != nil {
		return err
	}

	res.Items = append(res.Items, PaymentItem{
		BeneficiaryID:      item.BeneficiaryID,
		BeneficiaryName:    item.Name,
		BeneficiaryAddress: item.Address,
		Amount:             round2(amount),
		Currency:           currency,
		Context: PaymentContext{
			Source:      item.Kind,
			ReferenceID: item.ReferenceID,
			Description: desc,
		},
	})
	return nil
}

func (r *PaymentResolver) resolveSplit(res *Resolution, doc *rule.Document, snap *snapshot.Snapshot, items []Item, currency string) error {
	if len(doc.Payment.Percentages) != len(items) {
		return fmt.Errorf("split payment has %d percentages for %d resolved beneficiaries", len(doc.Payment.Percentages), len(items))
	}

	total, err := r.ruleAmount(doc, snap, nil)
	if err != nil {
		return err
	}

	totalDec := decimal.NewFromFloat(total)
	for i, item := range items {
		pct := doc.Payment.Percentages[i]
		amount := totalDec.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100)).Round(2)
		pctCopy := pct
		origCopy := total
		res.Items = append(res.Items, PaymentItem{
			BeneficiaryID:      item.BeneficiaryID,
			BeneficiaryName:    item.Name,
			BeneficiaryAddress: item.Address,
			Amount:             amount.InexactFloat64(),
			Currency:           currency,
			Context: PaymentContext{
				Source:         item.Kind,
				ReferenceID:    item.ReferenceID,
				Description:    fmt.Sprintf("%.2f%% of %.2f", pct, total),
				OriginalAmount: &origCopy,
				Percentage:     &pctCopy,
			},
		})
	}
	return nil
}

func (r *PaymentResolver) resolveCalculation(res *Resolution, doc *rule.Document, items []Item, currency string) error {
	for _, item := range items {
		if item.BaseAmount == nil {
			return fmt.Errorf("beneficiary %s has no base amount for calculation payment", item.BeneficiaryID)
		}
		amount := *item.BaseAmount
		desc := "base amount"
		if doc.Payment.Amount.Formula != "" {
			derived, err := r.evaluate(doc.Payment.Amount.Formula, amount)
			if err != nil {
				return err
			}
			desc = fmt.Sprintf("formula %q applied to %.2f", doc.Payment.Amount.Formula, amount)
			amount = derived
		}
		base := *item.BaseAmount
		res.Items = append(res.Items, PaymentItem{
			BeneficiaryID:      item.BeneficiaryID,
			BeneficiaryName:    item.Name,
			BeneficiaryAddress: item.Address,
			Amount:             round2(amount),
			Currency:           currency,
			Context: PaymentContext{
				Source:         item.Kind,
				ReferenceID:    item.ReferenceID,
				Description:    desc,
				OriginalAmount: &base,
			},
		})
	}
	return nil
}

func (r *PaymentResolver) resolveLeftover(res *Resolution, acct *snapshot.Account, items []Item, currency string) error {
	if len(items) == 0 {
		return fmt.Errorf("leftover payment resolved zero beneficiaries")
	}

	reserve := r.Reserves.ReserveFor(acct)
	available := decimal.NewFromFloat(acct.Balance).Sub(decimal.NewFromFloat(reserve))
	if available.Sign() <= 0 {
		return fmt.Errorf("account %s has no funds above its %.2f reserve", acct.Slug, reserve)
	}
	res.step("leftover pool %.2f after %.2f reserve on %s", available.InexactFloat64(), reserve, acct.Slug)

	n := len(items)
	share := available.Div(decimal.NewFromInt(int64(n))).Round(2)
	for i, item := range items {
		amount := share
		if i == n-1 {
			// The last share absorbs rounding so the pool is paid out exactly.
			amount = available.Sub(share.Mul(decimal.NewFromInt(int64(n - 1))))
		}
		res.Items = append(res.Items, PaymentItem{
			BeneficiaryID:      item.BeneficiaryID,
			BeneficiaryName:    item.Name,
			BeneficiaryAddress: item.Address,
			Amount:             amount.InexactFloat64(),
			Currency:           currency,
			Context: PaymentContext{
				Source:      item.Kind,
				ReferenceID: item.ReferenceID,
				Description: fmt.Sprintf("equal share of leftover above %.2f reserve", reserve),
			},
		})
	}
	return nil
}

func (r *PaymentResolver) resolveBatch(res *Resolution, doc *rule.Document, items []Item, currency string) error {
	if len(items) == 0 {
		return fmt.Errorf("no approved invoices match tags %v", doc.Payment.Tags)
	}

	for _, item := range items {
		if item.BaseAmount == nil {
			return fmt.Errorf("invoice %s has no amount", item.ReferenceID)
		}
		amount := *item.BaseAmount
		desc := fmt.Sprintf("invoice %s from %s", item.ReferenceID, item.Name)
		if doc.Payment.Amount.Formula != "" {
			derived, err := r.evaluate(doc.Payment.Amount.Formula, amount)
			if err != nil {
				return err
			}
			desc = fmt.Sprintf("formula %q applied to invoice %s amount %.2f", doc.Payment.Amount.Formula, item.ReferenceID, amount)
			amount = derived
		}
		base := *item.BaseAmount
		res.Items = append(res.Items, PaymentItem{
			BeneficiaryID:      item.BeneficiaryID,
			BeneficiaryName:    item.Name,
			BeneficiaryAddress: item.Address,
			Amount:             round2(amount),
			Currency:           currency,
			Context: PaymentContext{
				Source:         KindInvoice,
				ReferenceID:    item.ReferenceID,
				Description:    desc,
				OriginalAmount: &base,
			},
		})
	}
	return nil
}

// itemAmount picks the amount for a single item: an attached base
// amount wins, otherwise the rule's literal or derived amount is used.
func (r *PaymentResolver) itemAmount(doc *rule.Document, snap *snapshot.Snapshot, item Item) (float64, string, error) {
	if item.BaseAmount != nil && doc.Payment.Amount.IsZero() {
		return *item.BaseAmount, "base amount from resolution", nil
	}
	if item.BaseAmount != nil && item.Kind == KindInvoice {
		return *item.BaseAmount, fmt.Sprintf("invoice %s amount", item.ReferenceID), nil
	}
	amount, err := r.ruleAmount(doc, snap, &item)
	if err != nil {
		return 0, "", err
	}
	return amount, "rule amount", nil
}

// ruleAmount computes the document's amount: a parsed literal, or a
// source path resolved against the snapshot with an optional formula
// applied. An unresolvable source aborts with a descriptive error; it
// is never silently treated as zero.
func (r *PaymentResolver) ruleAmount(doc *rule.Document, snap *snapshot.Snapshot, item *Item) (float64, error) {
	spec := doc.Payment.Amount

	if spec.Literal != "" {
		val, err := strconv.ParseFloat(spec.Literal, 64)
		if err != nil {
			return 0, fmt.Errorf("amount %q is not a number", spec.Literal)
		}
		return val, nil
	}

	if spec.Source == "" {
		return 0, fmt.Errorf("payment has no amount and resolution attached no base amount")
	}

	var rctx *Record
	if item != nil {
		rctx = recordFor(snap, *item)
	}
	base, ok := ResolveSource(spec.Source, snap, rctx)
	if !ok {
		return 0, fmt.Errorf("cannot compute amount: source path %q did not resolve", spec.Source)
	}

	if spec.Formula == "" {
		return base, nil
	}
	return r.evaluate(spec.Formula, base)
}

func (r *PaymentResolver) evaluate(expr string, base float64) (float64, error) {
	if r.Evaluate != nil {
		return r.Evaluate(expr, base)
	}
	return formula.Evaluate(expr, base)
}

func recordFor(snap *snapshot.Snapshot, item Item) *Record {
	rec := &Record{}
	switch item.Kind {
	case KindInvoice:
		for i := range snap.Invoices {
			if snap.Invoices[i].ID == item.ReferenceID {
				rec.Invoice = &snap.Invoices[i]
			}
		}
	default:
		rec.Beneficiary = snap.BeneficiaryByID(item.BeneficiaryID)
	}
	return rec
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func (res *Resolution) fail(msg string) *Resolution {
	res.Success = false
	res.Errors = append(res.Errors, msg)
	return res
}

func (res *Resolution) step(format string, args ...any) {
	res.Steps = append(res.Steps, fmt.Sprintf(format, args...))
}
