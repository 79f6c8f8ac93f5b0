// Package scheduler computes when a rule is next due and tracks hook
// trigger registrations. It owns no timers or goroutines; a host wires
// its own clock around ComputeNext.
package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/treasury-engine/internal/cron"
	"github.com/example/treasury-engine/internal/rule"
)

// ErrNotTimed is returned for hook-timed rules, which fire on events
// rather than at a clock time.
var ErrNotTimed = errors.New("hook rules have no scheduled time")

// ErrExpired is returned for once rules whose time has already passed.
var ErrExpired = errors.New("one-shot time is in the past")

// ComputeNext returns the next time a rule with the given execution
// timing should fire, strictly after now.
func ComputeNext(exec rule.Execution, now time.Time) (time.Time, error) {
	switch exec.Kind {
	case rule.TimingOnce:
		if exec.At == nil {
			return time.Time{}, errors.New("once rule has no time")
		}
		if !exec.At.After(now) {
			return time.Time{}, ErrExpired
		}
		return exec.At.UTC(), nil

	case rule.TimingSchedule:
		sched, err := cron.Parse(exec.Cron)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing cron %q: %w", exec.Cron, err)
		}
		return sched.Next(now)

	case rule.TimingHook:
		return time.Time{}, ErrNotTimed

	default:
		return time.Time{}, fmt.Errorf("unknown timing kind %q", exec.Kind)
	}
}

// Runner executes a rule when its trigger fires. Implemented by the
// engine facade.
type Runner interface {
	RunRule(ruleID string) error
}

// TriggerRegistry maps hook trigger names to the rules listening on
// them. Fire is called by the host when an event occurs.
type TriggerRegistry struct {
	mu    sync.Mutex
	rules map[string][]string
}

// NewTriggerRegistry returns an empty registry.
func NewTriggerRegistry() *TriggerRegistry {
	return &TriggerRegistry{rules: make(map[string][]string)}
}

// Register subscribes ruleID to each of the rule's hook triggers.
// Non-hook rules are ignored.
func (t *TriggerRegistry) Register(ruleID string, exec rule.Execution) {
	if exec.Kind != rule.TimingHook {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, trigger := range exec.Triggers {
		t.rules[trigger] = append(t.rules[trigger], ruleID)
	}
}

// Unregister removes ruleID from every trigger.
func (t *TriggerRegistry) Unregister(ruleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for trigger, ids := range t.rules {
		kept := ids[:0]
		for _, id := range ids {
			if id != ruleID {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(t.rules, trigger)
		} else {
			t.rules[trigger] = kept
		}
	}
}

// Fire runs every rule registered on trigger, in registration order.
// The first run error stops the sweep and is returned.
func (t *TriggerRegistry) Fire(trigger string, runner Runner) error {
	t.mu.Lock()
	ids := append([]string(nil), t.rules[trigger]...)
	t.mu.Unlock()

	for _, id := range ids {
		if err := runner.RunRule(id); err != nil {
			return fmt.Errorf("running rule %s on trigger %s: %w", id, trigger, err)
		}
	}
	return nil
}

// Registered returns the rule ids listening on trigger.
func (t *TriggerRegistry) Registered(trigger string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.rules[trigger]...)
}
