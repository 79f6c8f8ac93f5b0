package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/treasury-engine/internal/rule"
)

func TestComputeNext_Once(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	at := now.Add(48 * time.Hour)

	next, err := ComputeNext(rule.Execution{Kind: rule.TimingOnce, At: &at}, now)
	require.NoError(t, err)
	assert.Equal(t, at, next)

	past := now.Add(-time.Hour)
	_, err = ComputeNext(rule.Execution{Kind: rule.TimingOnce, At: &past}, now)
	assert.ErrorIs(t, err, ErrExpired)

	_, err = ComputeNext(rule.Execution{Kind: rule.TimingOnce}, now)
	require.Error(t, err)
}

func TestComputeNext_Schedule(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)

	// First of every month at 09:00.
	next, err := ComputeNext(rule.Execution{Kind: rule.TimingSchedule, Cron: "0 9 1 * *"}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC), next)

	_, err = ComputeNext(rule.Execution{Kind: rule.TimingSchedule, Cron: "not a cron"}, now)
	require.Error(t, err)
}

func TestComputeNext_Hook(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := ComputeNext(rule.Execution{Kind: rule.TimingHook, Triggers: []string{"invoice-approved"}}, now)
	assert.ErrorIs(t, err, ErrNotTimed)
}

type recordingRunner struct {
	ran  []string
	fail string
}

func (r *recordingRunner) RunRule(ruleID string) error {
	if ruleID == r.fail {
		return errors.New("boom")
	}
	r.ran = append(r.ran, ruleID)
	return nil
}

func TestTriggerRegistry(t *testing.T) {
	reg := NewTriggerRegistry()
	reg.Register("rule-1", rule.Execution{Kind: rule.TimingHook, Triggers: []string{"invoice-approved"}})
	reg.Register("rule-2", rule.Execution{Kind: rule.TimingHook, Triggers: []string{"invoice-approved", "balance-low"}})
	reg.Register("rule-3", rule.Execution{Kind: rule.TimingSchedule, Cron: "0 9 * * *"})

	assert.Equal(t, []string{"rule-1", "rule-2"}, reg.Registered("invoice-approved"))
	assert.Empty(t, reg.Registered("month-end"))

	runner := &recordingRunner{}
	require.NoError(t, reg.Fire("invoice-approved", runner))
	assert.Equal(t, []string{"rule-1", "rule-2"}, runner.ran)

	reg.Unregister("rule-1")
	assert.Equal(t, []string{"rule-2"}, reg.Registered("invoice-approved"))
	assert.Equal(t, []string{"rule-2"}, reg.Registered("balance-low"))
}

func TestTriggerRegistry_FireError(t *testing.T) {
	reg := NewTriggerRegistry()
	reg.Register("rule-1", rule.Execution{Kind: rule.TimingHook, Triggers: []string{"balance-low"}})
	reg.Register("rule-2", rule.Execution{Kind: rule.TimingHook, Triggers: []string{"balance-low"}})

	runner := &recordingRunner{fail: "rule-1"}
	err := reg.Fire("balance-low", runner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule-1")
	assert.Empty(t, runner.ran)
}
