package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/treasury-engine/internal/resolver"
	"github.com/example/treasury-engine/internal/rule"
	"github.com/example/treasury-engine/internal/snapshot"
)

var policyNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func policySnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Accounts: []snapshot.Account{
			{
				ID: "acct-op", Slug: "operating-account", Name: "Operating",
				Currency: "USDC", Balance: 100000, IsActive: true,
				Address: "0xAAA0000000000000000000000000000000000001",
			},
		},
		Beneficiaries: []snapshot.Beneficiary{
			{
				ID: "emp-alice", Name: "Alice", Type: snapshot.TypeEmployee,
				Status: snapshot.StatusActive, Currency: "USDC", Salary: 8000,
				WalletAddress: "0x1110000000000000000000000000000000000001",
			},
			{
				ID: "ctr-dan", Name: "Dan", Type: snapshot.TypeContractor,
				Status:        snapshot.StatusInactive,
				WalletAddress: "0x1110000000000000000000000000000000000004",
			},
		},
		Transactions: []snapshot.Transaction{
			{ID: "t1", Type: snapshot.TxOutgoing, Amount: 30000, Status: "confirmed", Timestamp: policyNow.Add(-3 * time.Hour)},
			{ID: "t2", Type: snapshot.TxOutgoing, Amount: 10000, Status: "confirmed", Timestamp: policyNow.Add(-48 * time.Hour)},
		},
	}
}

func paymentDoc() *rule.Document {
	return &rule.Document{
		Payment: rule.Payment{
			Action:        rule.ActionSimple,
			Source:        "operating-account",
			Beneficiaries: []string{"emp-alice"},
			Amount:        rule.Amount{Literal: "1000"},
			Currency:      "USDC",
		},
	}
}

func item(id, addr string, amount float64) resolver.PaymentItem {
	return resolver.PaymentItem{
		BeneficiaryID:      id,
		BeneficiaryName:    id,
		BeneficiaryAddress: addr,
		Amount:             amount,
		Currency:           "USDC",
		Context:            resolver.PaymentContext{Source: resolver.KindDirect},
	}
}

func TestValidateBatch_AllPass(t *testing.T) {
	v := NewValidator(Limits{})
	items := []resolver.PaymentItem{item("emp-alice", "0x1110000000000000000000000000000000000001", 1000)}

	res := v.ValidateBatch(paymentDoc(), items, policySnapshot(), policyNow)

	require.True(t, res.Success)
	require.Len(t, res.ItemResults, 1)
	assert.True(t, res.ItemResults[0].Passed)
	for _, check := range res.ItemResults[0].Checks {
		assert.Equal(t, StatusPassed, check.Status)
	}
	assert.Equal(t, RiskLow, res.RiskLabel)
	assert.Equal(t, float64(100000), res.Account.BalanceBefore)
	assert.Equal(t, float64(99000), res.Account.BalanceAfter)
	assert.Equal(t, float64(30000), res.Daily.SpentLast24h)
}

func TestValidateBatch_GlobalShortCircuits(t *testing.T) {
	v := NewValidator(Limits{})
	items := []resolver.PaymentItem{item("emp-alice", "0x1110000000000000000000000000000000000001", 75000)}

	res := v.ValidateBatch(paymentDoc(), items, policySnapshot(), policyNow)

	require.False(t, res.Success)
	ir := res.ItemResults[0]
	require.False(t, ir.Passed)

	require.Len(t, ir.Checks, 4)
	assert.Equal(t, StatusFailed, ir.Checks[0].Status)
	assert.Equal(t, CheckGlobal, ir.Checks[0].Check)
	for _, check := range ir.Checks[1:] {
		assert.Equal(t, StatusNotEvaluated, check.Status)
	}
	assert.Equal(t, ir.Checks[0].Message, ir.FirstFailure)
	assert.Contains(t, ir.FirstFailure, "single-payment ceiling")
}

func TestValidateBatch_BatchCeiling(t *testing.T) {
	v := NewValidator(Limits{SinglePaymentCeiling: 50000, BatchTotalCeiling: 60000, DailySpendingLimit: 500000})

	items := []resolver.PaymentItem{
		item("emp-alice", "0x1110000000000000000000000000000000000001", 40000),
		item("emp-alice", "0x1110000000000000000000000000000000000001", 30000),
	}
	res := v.ValidateBatch(paymentDoc(), items, policySnapshot(), policyNow)

	require.False(t, res.Success)
	// Both items fail the global layer on the aggregate ceiling.
	for _, ir := range res.ItemResults {
		assert.False(t, ir.Passed)
		assert.Contains(t, ir.FirstFailure, "batch ceiling")
	}
}

func TestValidateBatch_AccountReserve(t *testing.T) {
	v := NewValidator(Limits{})

	// Balance 100000, 10% reserve: 91000 would leave 9000.
	items := []resolver.PaymentItem{item("emp-alice", "0x1110000000000000000000000000000000000001", 45000)}
	doc := paymentDoc()

	res := v.ValidateBatch(doc, items, policySnapshot(), policyNow)
	require.True(t, res.Success, "45000 leaves balance above reserve")

	// An explicit per-account reserve overrides the ratio.
	v = NewValidator(Limits{AccountReserves: map[string]float64{"operating-account": 80000}})
	res = v.ValidateBatch(doc, items, policySnapshot(), policyNow)
	require.False(t, res.Success)
	ir := res.ItemResults[0]
	assert.Equal(t, StatusPassed, ir.Checks[0].Status)
	assert.Equal(t, StatusFailed, ir.Checks[1].Status)
	assert.Contains(t, ir.FirstFailure, "minimum reserve")
	assert.Equal(t, StatusNotEvaluated, ir.Checks[2].Status)
}

func TestValidateBatch_DailySpendingCap(t *testing.T) {
	v := NewValidator(Limits{DailySpendingLimit: 35000})

	// 30000 already spent in the trailing 24h; 6000 more breaks the cap.
	// The 48h-old transaction is outside the window.
	items := []resolver.PaymentItem{item("emp-alice", "0x1110000000000000000000000000000000000001", 6000)}
	res := v.ValidateBatch(paymentDoc(), items, policySnapshot(), policyNow)

	require.False(t, res.Success)
	ir := res.ItemResults[0]
	assert.Equal(t, StatusPassed, ir.Checks[0].Status)
	assert.Equal(t, StatusPassed, ir.Checks[1].Status)
	assert.Equal(t, StatusFailed, ir.Checks[2].Status)
	assert.Contains(t, ir.FirstFailure, "daily spending")
}

func TestValidateBatch_RuleLayer(t *testing.T) {
	v := NewValidator(Limits{})

	// Inactive beneficiary.
	items := []resolver.PaymentItem{item("ctr-dan", "0x1110000000000000000000000000000000000004", 100)}
	res := v.ValidateBatch(paymentDoc(), items, policySnapshot(), policyNow)
	require.False(t, res.Success)
	assert.Contains(t, res.ItemResults[0].FirstFailure, "not active")

	// Unknown beneficiary.
	items = []resolver.PaymentItem{item("ghost", "0xdead000000000000000000000000000000000000", 100)}
	res = v.ValidateBatch(paymentDoc(), items, policySnapshot(), policyNow)
	require.False(t, res.Success)
	assert.Contains(t, res.ItemResults[0].FirstFailure, "does not exist")

	// Currency mismatch.
	bad := item("emp-alice", "0x1110000000000000000000000000000000000001", 100)
	bad.Currency = "EURC"
	res = v.ValidateBatch(paymentDoc(), []resolver.PaymentItem{bad}, policySnapshot(), policyNow)
	require.False(t, res.Success)
	assert.Contains(t, res.ItemResults[0].FirstFailure, "does not match source account currency")
}

func TestValidateBatch_EvaluatesAllItems(t *testing.T) {
	v := NewValidator(Limits{})

	items := []resolver.PaymentItem{
		item("emp-alice", "0x1110000000000000000000000000000000000001", 75000), // fails global
		item("emp-alice", "0x1110000000000000000000000000000000000001", 1000),  // passes
	}
	res := v.ValidateBatch(paymentDoc(), items, policySnapshot(), policyNow)

	require.False(t, res.Success)
	require.Len(t, res.ItemResults, 2)
	assert.False(t, res.ItemResults[0].Passed)
	assert.True(t, res.ItemResults[1].Passed)
	require.Len(t, res.Violations, 1)
}

func TestValidateBatch_Deterministic(t *testing.T) {
	v := NewValidator(Limits{})
	items := []resolver.PaymentItem{item("emp-alice", "0x1110000000000000000000000000000000000001", 1000)}

	first := v.ValidateBatch(paymentDoc(), items, policySnapshot(), policyNow)
	second := v.ValidateBatch(paymentDoc(), items, policySnapshot(), policyNow)

	assert.Equal(t, first, second)
}

func TestValidateBatch_RiskNarrationDoesNotGate(t *testing.T) {
	v := NewValidator(Limits{DailySpendingLimit: 500000})

	// 60000 is over half the balance but under every hard limit.
	items := []resolver.PaymentItem{
		item("emp-alice", "0x1110000000000000000000000000000000000001", 30000),
		item("emp-alice", "0x1110000000000000000000000000000000000001", 30000),
	}
	res := v.ValidateBatch(paymentDoc(), items, policySnapshot(), policyNow)

	assert.True(t, res.Success)
	assert.Equal(t, RiskElevated, res.RiskLabel)
	assert.NotEmpty(t, res.RiskFactors)
}