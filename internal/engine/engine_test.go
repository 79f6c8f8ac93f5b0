package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/treasury-engine/internal/rule"
	"github.com/example/treasury-engine/internal/snapshot"
	"github.com/example/treasury-engine/pkg/audit"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testSnapshot(balance float64) *snapshot.Snapshot {
	created := testNow.Add(-90 * 24 * time.Hour)
	return &snapshot.Snapshot{
		Accounts: []snapshot.Account{
			{
				ID:        "acct-1",
				Slug:      "operating-account",
				Name:      "Operating Account",
				Currency:  "USDC",
				Balance:   balance,
				IsActive:  true,
				Address:   "0xAAA0000000000000000000000000000000000001",
				CreatedAt: created,
				UpdatedAt: created,
			},
		},
		Beneficiaries: []snapshot.Beneficiary{
			{
				ID:            "emp-alice",
				Name:          "Alice",
				WalletAddress: "0xABC0000000000000000000000000000000000001",
				Currency:      "USDC",
				Status:        snapshot.StatusActive,
				Type:          snapshot.TypeEmployee,
				Tags:          []string{"founder"},
				Salary:        8000,
			},
			{
				ID:            "emp-bob",
				Name:          "Bob",
				WalletAddress: "0xABC0000000000000000000000000000000000002",
				Currency:      "USDC",
				Status:        snapshot.StatusActive,
				Type:          snapshot.TypeEmployee,
				Tags:          []string{"founder"},
				Salary:        6000,
			},
			{
				ID:            "emp-carol",
				Name:          "Carol",
				WalletAddress: "0xABC0000000000000000000000000000000000003",
				Currency:      "USDC",
				Status:        snapshot.StatusActive,
				Type:          snapshot.TypeEmployee,
				Salary:        5000,
			},
		},
		Treasury: snapshot.Treasury{Revenue: 10000, Expenses: 4000, BurnRate: 4000, RunwayMonths: 24},
	}
}

func testEngine(balance float64) (*Engine, *snapshot.MemoryStore) {
	store := snapshot.NewMemoryStore(testSnapshot(balance))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := New(store, logger, WithClock(func() time.Time { return testNow }))
	return eng, store
}

func hookDoc(payment rule.Payment) *rule.Document {
	return &rule.Document{
		Execution: rule.Execution{Kind: rule.TimingHook, Triggers: []string{"month-end"}},
		Payment:   payment,
		Original:  "test rule",
	}
}

func balanceOf(t *testing.T, store *snapshot.MemoryStore, id string) float64 {
	t.Helper()
	snap, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	acct := snap.AccountByID(id)
	require.NotNil(t, acct)
	return acct.Balance
}

func TestRun_SimpleWalletPayment(t *testing.T) {
	eng, store := testEngine(5000)

	doc := hookDoc(rule.Payment{
		Action:        rule.ActionSimple,
		Source:        "operating-account",
		Beneficiaries: []string{"0xDEF0000000000000000000000000000000000009"},
		Amount:        rule.Amount{Literal: "1000"},
	})

	res, err := eng.Run(context.Background(), "chat-1", doc)
	require.NoError(t, err)

	assert.Equal(t, StatusExecuted, res.Status)
	require.NotNil(t, res.Resolution)
	require.Len(t, res.Resolution.Items, 1)
	assert.Equal(t, 1000.0, res.Resolution.Items[0].Amount)

	require.NotNil(t, res.Policy)
	assert.True(t, res.Policy.Success)
	for _, item := range res.Policy.ItemResults {
		assert.True(t, item.Passed)
	}

	require.NotNil(t, res.Execution)
	assert.True(t, res.Execution.Success)
	assert.Equal(t, 4000.0, balanceOf(t, store, "acct-1"))

	assert.True(t, audit.VerifyChain(res.Audit))
	require.NotEmpty(t, res.Audit)
	assert.Equal(t, "validation", res.Audit[0].Stage)
	assert.Equal(t, "execution", res.Audit[len(res.Audit)-1].Stage)
}

func TestRun_SplitAmongFounders(t *testing.T) {
	eng, store := testEngine(100000)

	doc := hookDoc(rule.Payment{
		Action:        rule.ActionSplit,
		Source:        "operating-account",
		Beneficiaries: []string{"employees"},
		Tags:          []string{"founder"},
		Percentages:   []float64{60, 40},
		Amount:        rule.Amount{Source: "treasury.revenue"},
	})

	res, err := eng.Run(context.Background(), "chat-1", doc)
	require.NoError(t, err)

	require.Equal(t, StatusExecuted, res.Status)
	require.Len(t, res.Resolution.Items, 2)
	assert.Equal(t, 6000.0, res.Resolution.Items[0].Amount)
	assert.Equal(t, 4000.0, res.Resolution.Items[1].Amount)
	assert.Equal(t, 10000.0, res.Resolution.TotalAmount)
	assert.Equal(t, 90000.0, balanceOf(t, store, "acct-1"))
}

func TestRun_SplitCountMismatch(t *testing.T) {
	eng, store := testEngine(100000)

	// Three percentages against two tagged employees.
	doc := hookDoc(rule.Payment{
		Action:        rule.ActionSplit,
		Source:        "operating-account",
		Beneficiaries: []string{"employees"},
		Tags:          []string{"founder"},
		Percentages:   []float64{50, 30, 20},
		Amount:        rule.Amount{Source: "treasury.revenue"},
	})

	res, err := eng.Run(context.Background(), "chat-1", doc)
	require.NoError(t, err)

	assert.Equal(t, StatusResolutionFailed, res.Status)
	assert.Nil(t, res.Policy)
	assert.Nil(t, res.Execution)
	assert.Equal(t, 100000.0, balanceOf(t, store, "acct-1"))
}

func TestRun_LeftoverDefaultReserve(t *testing.T) {
	eng, store := testEngine(100000)

	doc := hookDoc(rule.Payment{
		Action:        rule.ActionLeftover,
		Source:        "operating-account",
		Beneficiaries: []string{"employees"},
	})

	res, err := eng.Run(context.Background(), "chat-1", doc)
	require.NoError(t, err)

	require.Equal(t, StatusExecuted, res.Status)
	require.Len(t, res.Resolution.Items, 3)
	assert.Equal(t, 90000.0, res.Resolution.TotalAmount)
	for _, item := range res.Resolution.Items {
		assert.Equal(t, 30000.0, item.Amount)
	}
	assert.Equal(t, 10000.0, balanceOf(t, store, "acct-1"))
}

func TestRun_GlobalCeilingBlocksMutation(t *testing.T) {
	eng, store := testEngine(200000)

	doc := hookDoc(rule.Payment{
		Action:        rule.ActionSimple,
		Source:        "operating-account",
		Beneficiaries: []string{"0xDEF0000000000000000000000000000000000009"},
		Amount:        rule.Amount{Literal: "60000"},
	})

	res, err := eng.Run(context.Background(), "chat-1", doc)
	require.NoError(t, err)

	assert.Equal(t, StatusPolicyFailed, res.Status)
	require.NotNil(t, res.Policy)
	assert.False(t, res.Policy.Success)

	require.Len(t, res.Policy.ItemResults, 1)
	item := res.Policy.ItemResults[0]
	assert.False(t, item.Passed)
	assert.Equal(t, "global", item.Checks[0].Check)
	assert.Equal(t, "failed", item.Checks[0].Status)
	assert.Equal(t, item.Checks[0].Message, item.FirstFailure)

	assert.Nil(t, res.Execution)
	snap, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200000.0, snap.AccountByID("acct-1").Balance)
	assert.Empty(t, snap.Transactions)
}

func TestRun_InvalidDocument(t *testing.T) {
	eng, _ := testEngine(5000)

	doc := &rule.Document{
		Execution: rule.Execution{Kind: rule.TimingSchedule, Cron: "not a cron"},
		Payment: rule.Payment{
			Action:        rule.ActionSimple,
			Source:        "operating-account",
			Beneficiaries: []string{"emp-alice", "emp-bob"},
			Amount:        rule.Amount{Literal: "100"},
		},
	}

	res, err := eng.Run(context.Background(), "chat-1", doc)
	require.NoError(t, err)

	assert.Equal(t, StatusInvalid, res.Status)
	assert.NotEmpty(t, res.ValidationErrors)
	assert.Nil(t, res.Resolution)
}

func TestRun_BeforeConditionSkips(t *testing.T) {
	eng, store := testEngine(5000)

	doc := hookDoc(rule.Payment{
		Action:        rule.ActionSimple,
		Source:        "operating-account",
		Beneficiaries: []string{"emp-alice"},
		Amount:        rule.Amount{Literal: "1000"},
	})
	doc.Conditions = []rule.Condition{
		{Source: "accounts", Field: "operating-account.balance", Operator: rule.OpGreaterThan, Value: 50000, When: "before"},
	}

	res, err := eng.Run(context.Background(), "chat-1", doc)
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, res.Status)
	require.Len(t, res.BeforeConditions, 1)
	assert.True(t, res.BeforeConditions[0].Resolved)
	assert.Equal(t, 5000.0, res.BeforeConditions[0].Actual)
	assert.False(t, res.BeforeConditions[0].Held)
	assert.Equal(t, 5000.0, balanceOf(t, store, "acct-1"))
}

func TestRun_AfterConditionRecorded(t *testing.T) {
	eng, _ := testEngine(5000)

	doc := hookDoc(rule.Payment{
		Action:        rule.ActionSimple,
		Source:        "operating-account",
		Beneficiaries: []string{"emp-alice"},
		Amount:        rule.Amount{Literal: "1000"},
	})
	doc.Conditions = []rule.Condition{
		{Source: "accounts", Field: "operating-account.balance", Operator: rule.OpGreaterEqual, Value: 4000, When: "after"},
	}

	res, err := eng.Run(context.Background(), "chat-1", doc)
	require.NoError(t, err)

	assert.Equal(t, StatusExecuted, res.Status)
	require.Len(t, res.AfterConditions, 1)
	assert.True(t, res.AfterConditions[0].Held)
	assert.Equal(t, 4000.0, res.AfterConditions[0].Actual)
}

func TestPreview_NoMutation(t *testing.T) {
	eng, store := testEngine(5000)

	doc := hookDoc(rule.Payment{
		Action:        rule.ActionSimple,
		Source:        "operating-account",
		Beneficiaries: []string{"emp-alice"},
		Amount:        rule.Amount{Literal: "1000"},
	})

	res, err := eng.Preview(context.Background(), "chat-1", doc)
	require.NoError(t, err)

	assert.Equal(t, StatusPreviewed, res.Status)
	require.NotNil(t, res.Execution)
	assert.True(t, res.Execution.DryRun)
	assert.Equal(t, 4000.0, res.Execution.Balance.After)
	assert.Equal(t, 5000.0, balanceOf(t, store, "acct-1"))
}

func TestRun_ResolutionIdempotentAcrossPreview(t *testing.T) {
	eng, _ := testEngine(100000)

	doc := hookDoc(rule.Payment{
		Action:        rule.ActionSplit,
		Source:        "operating-account",
		Beneficiaries: []string{"employees"},
		Tags:          []string{"founder"},
		Percentages:   []float64{60, 40},
		Amount:        rule.Amount{Source: "treasury.revenue"},
	})

	first, err := eng.Preview(context.Background(), "chat-1", doc)
	require.NoError(t, err)
	second, err := eng.Preview(context.Background(), "chat-1", doc)
	require.NoError(t, err)

	assert.Equal(t, first.Resolution.Items, second.Resolution.Items)
	assert.Equal(t, first.Resolution.TotalAmount, second.Resolution.TotalAmount)
}

func TestValidateRule(t *testing.T) {
	eng, _ := testEngine(5000)

	errs := eng.ValidateRule(hookDoc(rule.Payment{
		Action:        rule.ActionSimple,
		Source:        "operating-account",
		Beneficiaries: []string{"emp-alice"},
		Amount:        rule.Amount{Literal: "1000"},
	}))
	assert.Empty(t, errs)

	errs = eng.ValidateRule(hookDoc(rule.Payment{
		Action:        rule.ActionSplit,
		Source:        "operating-account",
		Beneficiaries: []string{"employees"},
		Percentages:   []float64{60, 50},
		Amount:        rule.Amount{Literal: "1000"},
	}))
	assert.NotEmpty(t, errs)
}

func TestSources(t *testing.T) {
	eng, _ := testEngine(5000)

	sources, err := eng.Sources(context.Background())
	require.NoError(t, err)
	assert.Contains(t, sources, "treasury.revenue")
	assert.Contains(t, sources, "accounts.operating-account.balance")
}

func TestRegisterAndRunRule(t *testing.T) {
	eng, store := testEngine(5000)

	id := eng.Register(hookDoc(rule.Payment{
		Action:        rule.ActionSimple,
		Source:        "operating-account",
		Beneficiaries: []string{"emp-alice"},
		Amount:        rule.Amount{Literal: "1000"},
	}))

	require.NoError(t, eng.RunRule(id))
	assert.Equal(t, 4000.0, balanceOf(t, store, "acct-1"))

	err := eng.RunRule("no-such-rule")
	require.Error(t, err)
}
