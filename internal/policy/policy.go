package policy

import "time"

// Check names, in pipeline order.
const (
	CheckGlobal      = "global"
	CheckAccount     = "account"
	CheckTransaction = "transaction"
	CheckRule        = "rule"
)

// CheckOrder is the fixed evaluation order of the four policy layers.
var CheckOrder = [4]string{CheckGlobal, CheckAccount, CheckTransaction, CheckRule}

// Per-check outcome states.
const (
	StatusPassed       = "passed"
	StatusFailed       = "failed"
	StatusNotEvaluated = "not_evaluated"
)

// Risk labels for batch narration. They never gate success.
const (
	RiskLow      = "LOW_RISK"
	RiskElevated = "ELEVATED_RISK"
)

// Limits holds the governance constants the pipeline checks against.
type Limits struct {
	// SinglePaymentCeiling is the hard cap for one payment item.
	SinglePaymentCeiling float64
	// BatchTotalCeiling is the hard cap for a whole batch.
	BatchTotalCeiling float64
	// DailySpendingLimit caps outgoing volume over a trailing 24 hours.
	DailySpendingLimit float64
	// ReserveRatio derives an account's minimum reserve when it has no
	// explicit entry in AccountReserves. Zero means the 10% default.
	ReserveRatio float64
	// AccountReserves maps account id or slug to an absolute minimum
	// reserve.
	AccountReserves map[string]float64
}

// DefaultLimits returns the stock governance constants.
func DefaultLimits() Limits {
	return Limits{
		SinglePaymentCeiling: 50000,
		BatchTotalCeiling:    250000,
		DailySpendingLimit:   100000,
		ReserveRatio:         0.10,
	}
}

// Result is the outcome of one policy check for one payment item.
type Result struct {
	Check    string         `json:"check"`
	Status   string         `json:"status"`
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Warnings []string       `json:"warnings,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// ItemResult aggregates the four checks for one payment item. The
// pipeline short-circuits at the first failing check; later checks
// report not_evaluated rather than passed.
type ItemResult struct {
	BeneficiaryID string   `json:"beneficiary_id"`
	Amount        float64  `json:"amount"`
	Passed        bool     `json:"passed"`
	FirstFailure  string   `json:"first_failure,omitempty"`
	Checks        []Result `json:"checks"`
}

// AccountImpact is the cumulative effect of the whole batch on the
// source account.
type AccountImpact struct {
	AccountID     string  `json:"account_id"`
	BalanceBefore float64 `json:"balance_before"`
	BalanceAfter  float64 `json:"balance_after"`
	Reserve       float64 `json:"reserve"`
}

// DailyImpact is the cumulative effect of the batch on the trailing
// 24-hour spending window.
type DailyImpact struct {
	SpentLast24h float64 `json:"spent_last_24h"`
	BatchTotal   float64 `json:"batch_total"`
	Limit        float64 `json:"limit"`
}

// BatchResult is the whole-batch verdict: per-item results plus
// aggregate impact and audit narration. Deterministic for identical
// snapshot, items and reference time.
type BatchResult struct {
	Success     bool          `json:"success"`
	ItemResults []ItemResult  `json:"item_results"`
	Violations  []string      `json:"violations,omitempty"`
	TotalAmount float64       `json:"total_amount"`
	Account     AccountImpact `json:"account_impact"`
	Daily       DailyImpact   `json:"daily_impact"`
	RiskLabel   string        `json:"risk_label"`
	RiskFactors []string      `json:"risk_factors,omitempty"`
	Steps       []string      `json:"steps,omitempty"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
}
