package policy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/treasury-engine/internal/resolver"
	"github.com/example/treasury-engine/internal/rule"
	"github.com/example/treasury-engine/internal/snapshot"
)

// Validator runs the four-layer policy pipeline over a resolved batch.
// It is a pure function of its inputs; it never mutates the snapshot.
type Validator struct {
	Limits Limits
}

// NewValidator creates a validator with the given limits. Zero-value
// limits fields fall back to DefaultLimits.
func NewValidator(limits Limits) *Validator {
	def := DefaultLimits()
	if limits.SinglePaymentCeiling == 0 {
		limits.SinglePaymentCeiling = def.SinglePaymentCeiling
	}
	if limits.BatchTotalCeiling == 0 {
		limits.BatchTotalCeiling = def.BatchTotalCeiling
	}
	if limits.DailySpendingLimit == 0 {
		limits.DailySpendingLimit = def.DailySpendingLimit
	}
	if limits.ReserveRatio == 0 {
		limits.ReserveRatio = def.ReserveRatio
	}
	return &Validator{Limits: limits}
}

// ValidateBatch evaluates every payment item against all four policy
// layers. Per item, checks run Global → Account → Transaction → Rule
// and stop at the first failure; the batch never stops early, so every
// item gets a verdict. now anchors the trailing 24-hour window.
func (v *Validator) ValidateBatch(doc *rule.Document, items []resolver.PaymentItem, snap *snapshot.Snapshot, now time.Time) *BatchResult {
	res := &BatchResult{EvaluatedAt: now}

	total := decimal.Zero
	for i := range items {
		total = total.Add(decimal.NewFromFloat(items[i].Amount))
	}
	res.TotalAmount = total.InexactFloat64()

	acct := snap.AccountByRef(doc.Payment.Source)
	spent24h := snap.OutgoingSince(now.Add(-24 * time.Hour))

	for _, item := range items {
		ir := v.validateItem(doc, item, acct, snap, res.TotalAmount, spent24h)
		if !ir.Passed {
			res.Violations = append(res.Violations, fmt.Sprintf("%s: %s", item.BeneficiaryID, ir.FirstFailure))
		}
		res.ItemResults = append(res.ItemResults, ir)
	}

	res.Success = len(res.Violations) == 0
	res.Daily = DailyImpact{
		SpentLast24h: spent24h,
		BatchTotal:   res.TotalAmount,
		Limit:        v.Limits.DailySpendingLimit,
	}
	if acct != nil {
		reserve := v.reserveFor(acct)
		res.Account = AccountImpact{
			AccountID:     acct.ID,
			BalanceBefore: acct.Balance,
			BalanceAfter:  decimal.NewFromFloat(acct.Balance).Sub(total).InexactFloat64(),
			Reserve:       reserve,
		}
	}

	v.assessRisk(res)
	res.Steps = append(res.Steps,
		fmt.Sprintf("validated %d payment item(s) against %d policy layers", len(items), len(CheckOrder)),
		fmt.Sprintf("batch total %.2f, trailing 24h spending %.2f", res.TotalAmount, spent24h),
		fmt.Sprintf("risk narration: %s", res.RiskLabel),
	)
	return res
}

// validateItem runs the ordered checks for one item, short-circuiting
// at the first failure.
func (v *Validator) validateItem(doc *rule.Document, item resolver.PaymentItem, acct *snapshot.Account, snap *snapshot.Snapshot, batchTotal, spent24h float64) ItemResult {
	ir := ItemResult{
		BeneficiaryID: item.BeneficiaryID,
		Amount:        item.Amount,
		Passed:        true,
	}

	checks := []func() Result{
		func() Result { return v.checkGlobal(item, batchTotal) },
		func() Result { return v.checkAccount(item, acct) },
		func() Result { return v.checkTransaction(item, spent24h) },
		func() Result { return v.checkRule(doc, item, acct, snap) },
	}

	failed := false
	for i, run := range checks {
		if failed {
			ir.Checks = append(ir.Checks, Result{
				Check:   CheckOrder[i],
				Status:  StatusNotEvaluated,
				Message: "not evaluated: an earlier check failed",
			})
			continue
		}
		result := run()
		ir.Checks = append(ir.Checks, result)
		if !result.Success {
			failed = true
			ir.Passed = false
			ir.FirstFailure = result.Message
		}
	}

	return ir
}

// checkGlobal enforces the single-payment and batch-total ceilings.
// Violations here are fatal and non-overridable.
func (v *Validator) checkGlobal(item resolver.PaymentItem, batchTotal float64) Result {
	details := map[string]any{
		"amount":                 item.Amount,
		"single_payment_ceiling": v.Limits.SinglePaymentCeiling,
		"batch_total":            batchTotal,
		"batch_total_ceiling":    v.Limits.BatchTotalCeiling,
	}

	if item.Amount > v.Limits.SinglePaymentCeiling {
		return failResult(CheckGlobal, details,
			"payment of %.2f exceeds the single-payment ceiling of %.2f", item.Amount, v.Limits.SinglePaymentCeiling)
	}
	if batchTotal > v.Limits.BatchTotalCeiling {
		return failResult(CheckGlobal, details,
			"batch total %.2f exceeds the batch ceiling of %.2f", batchTotal, v.Limits.BatchTotalCeiling)
	}
	return passResult(CheckGlobal, details, "within global payment ceilings")
}

// checkAccount requires a usable source account whose post-payment
// balance stays at or above its minimum reserve.
func (v *Validator) checkAccount(item resolver.PaymentItem, acct *snapshot.Account) Result {
	if acct == nil {
		return failResult(CheckAccount, nil, "source account not found")
	}

	reserve := v.reserveFor(acct)
	after := decimal.NewFromFloat(acct.Balance).Sub(decimal.NewFromFloat(item.Amount)).InexactFloat64()
	details := map[string]any{
		"account_id":    acct.ID,
		"balance":       acct.Balance,
		"balance_after": after,
		"reserve":       reserve,
	}

	if !acct.Usable() {
		return failResult(CheckAccount, details, "source account %s is inactive or deleted", acct.Slug)
	}
	if after < reserve {
		return failResult(CheckAccount, details,
			"payment of %.2f would leave %.2f, below the %.2f minimum reserve", item.Amount, after, reserve)
	}
	return passResult(CheckAccount, details, "source account is active with sufficient balance")
}

// checkTransaction enforces the trailing 24-hour spending cap.
func (v *Validator) checkTransaction(item resolver.PaymentItem, spent24h float64) Result {
	projected := decimal.NewFromFloat(spent24h).Add(decimal.NewFromFloat(item.Amount)).InexactFloat64()
	details := map[string]any{
		"spent_last_24h": spent24h,
		"projected":      projected,
		"daily_limit":    v.Limits.DailySpendingLimit,
	}

	if projected > v.Limits.DailySpendingLimit {
		return failResult(CheckTransaction, details,
			"daily spending would reach %.2f, exceeding the %.2f limit", projected, v.Limits.DailySpendingLimit)
	}
	return passResult(CheckTransaction, details, "within the daily spending limit")
}

// checkRule re-validates beneficiary integrity, payment structure and
// currency match. It overlaps with the payment resolver on purpose:
// defense in depth against items injected from elsewhere.
func (v *Validator) checkRule(doc *rule.Document, item resolver.PaymentItem, acct *snapshot.Account, snap *snapshot.Snapshot) Result {
	details := map[string]any{"beneficiary_id": item.BeneficiaryID}

	// Wallet-literal and invoice beneficiaries carry no snapshot record.
	if item.Context.Source == resolver.KindDirect || item.Context.Source == resolver.KindCollection {
		ben := snap.BeneficiaryByID(item.BeneficiaryID)
		if ben == nil {
			return failResult(CheckRule, details, "beneficiary %s does not exist", item.BeneficiaryID)
		}
		if !ben.Active() {
			return failResult(CheckRule, details, "beneficiary %s is not active", item.BeneficiaryID)
		}
	}

	if item.BeneficiaryAddress == "" {
		return failResult(CheckRule, details, "beneficiary %s has no wallet address", item.BeneficiaryID)
	}

	switch doc.Payment.Action {
	case rule.ActionSimple, rule.ActionSplit, rule.ActionCalculation, rule.ActionLeftover, rule.ActionBatch:
	default:
		return failResult(CheckRule, details, "unknown payment action %q", doc.Payment.Action)
	}
	if doc.Payment.Action == rule.ActionSplit && len(doc.Payment.Percentages) == 0 {
		return failResult(CheckRule, details, "split payment is missing percentages")
	}
	if doc.Payment.Action == rule.ActionBatch && len(doc.Payment.Tags) == 0 {
		return failResult(CheckRule, details, "batch payment is missing tags")
	}

	if acct != nil && item.Currency != "" && acct.Currency != "" && item.Currency != acct.Currency {
		details["item_currency"] = item.Currency
		details["account_currency"] = acct.Currency
		return failResult(CheckRule, details,
			"payment currency %s does not match source account currency %s", item.Currency, acct.Currency)
	}

	return passResult(CheckRule, details, "beneficiary and payment structure are valid")
}

// assessRisk derives the coarse risk narration. It reads the already
// computed aggregates and never changes Success.
func (v *Validator) assessRisk(res *BatchResult) {
	if res.Account.AccountID != "" && res.Account.BalanceBefore > 0 {
		if res.TotalAmount > res.Account.BalanceBefore*0.5 {
			res.RiskFactors = append(res.RiskFactors, "batch exceeds half the source account balance")
		}
		if res.Account.BalanceAfter < res.Account.Reserve {
			res.RiskFactors = append(res.RiskFactors, "cumulative batch impact breaches the account reserve")
		}
	}
	if res.Daily.SpentLast24h+res.Daily.BatchTotal > v.Limits.DailySpendingLimit*0.8 {
		res.RiskFactors = append(res.RiskFactors, "daily spending above 80% of the limit")
	}
	if len(res.ItemResults) > 20 {
		res.RiskFactors = append(res.RiskFactors, "large batch size")
	}

	if len(res.RiskFactors) == 0 {
		res.RiskLabel = RiskLow
	} else {
		res.RiskLabel = RiskElevated
	}
}

func (v *Validator) reserveFor(acct *snapshot.Account) float64 {
	if amount, ok := v.Limits.AccountReserves[acct.ID]; ok {
		return amount
	}
	if amount, ok := v.Limits.AccountReserves[acct.Slug]; ok {
		return amount
	}
	return decimal.NewFromFloat(acct.Balance * v.Limits.ReserveRatio).Round(2).InexactFloat64()
}

func passResult(check string, details map[string]any, format string, args ...any) Result {
	return Result{
		Check:   check,
		Status:  StatusPassed,
		Success: true,
		Message: fmt.Sprintf(format, args...),
		Details: details,
	}
}

func failResult(check string, details map[string]any, format string, args ...any) Result {
	return Result{
		Check:   check,
		Status:  StatusFailed,
		Message: fmt.Sprintf(format, args...),
		Details: details,
	}
}
