// Package engine is the facade over the rule pipeline: schema
// validation, payment resolution, policy validation and batch
// execution, with a hash-chained audit trail per run.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/treasury-engine/internal/executor"
	"github.com/example/treasury-engine/internal/policy"
	"github.com/example/treasury-engine/internal/resolver"
	"github.com/example/treasury-engine/internal/rule"
	"github.com/example/treasury-engine/internal/snapshot"
	"github.com/example/treasury-engine/pkg/audit"
)

// Run statuses.
const (
	StatusInvalid          = "invalid"
	StatusSkipped          = "skipped"
	StatusResolutionFailed = "resolution_failed"
	StatusPolicyFailed     = "policy_failed"
	StatusExecutionFailed  = "execution_failed"
	StatusExecuted         = "executed"
	StatusPreviewed        = "previewed"
)

// ConditionCheck records the evaluation of one rule condition.
type ConditionCheck struct {
	Path     string  `json:"path"`
	Operator string  `json:"operator"`
	Value    float64 `json:"value"`
	Actual   float64 `json:"actual"`
	Resolved bool    `json:"resolved"`
	Held     bool    `json:"held"`
}

// RunResult is the full outcome of one rule run. Every stage's output
// is independently inspectable; later stages are nil when an earlier
// stage stopped the run.
type RunResult struct {
	RunID            string               `json:"run_id"`
	Status           string               `json:"status"`
	ValidationErrors []string             `json:"validation_errors,omitempty"`
	SkipReason       string               `json:"skip_reason,omitempty"`
	BeforeConditions []ConditionCheck     `json:"before_conditions,omitempty"`
	AfterConditions  []ConditionCheck     `json:"after_conditions,omitempty"`
	Resolution       *resolver.Resolution `json:"resolution,omitempty"`
	Policy           *policy.BatchResult  `json:"policy,omitempty"`
	Execution        *executor.Result     `json:"execution,omitempty"`
	Audit            []*audit.Entry       `json:"audit"`
}

// Engine coordinates one rule run at a time. Stages before the
// executor are pure; only the executor mutates the store, and the
// engine serializes runs so the single-writer contract holds.
type Engine struct {
	store    snapshot.Store
	resolver *resolver.PaymentResolver
	policy   *policy.Validator
	exec     *executor.Executor
	logger   *slog.Logger
	now      func() time.Time

	runMu sync.Mutex

	rulesMu sync.Mutex
	rules   map[string]*rule.Document
}

// Option configures an Engine.
type Option func(*cfg)

type cfg struct {
	limits   policy.Limits
	reserves resolver.ReserveConfig
	now      func() time.Time
}

// WithLimits overrides the policy governance constants.
func WithLimits(limits policy.Limits) Option {
	return func(c *cfg) { c.limits = limits }
}

// WithReserves overrides the leftover reserve configuration.
func WithReserves(reserves resolver.ReserveConfig) Option {
	return func(c *cfg) { c.reserves = reserves }
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(c *cfg) { c.now = now }
}

// New builds an Engine over store.
func New(store snapshot.Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	c := &cfg{
		limits: policy.DefaultLimits(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reserves.Ratio == 0 {
		c.reserves.Ratio = c.limits.ReserveRatio
	}
	if c.reserves.Accounts == nil {
		c.reserves.Accounts = c.limits.AccountReserves
	}

	return &Engine{
		store:    store,
		resolver: &resolver.PaymentResolver{Reserves: c.reserves},
		policy:   policy.NewValidator(c.limits),
		exec:     executor.New(store, logger, executor.WithClock(c.now)),
		logger:   logger,
		now:      c.now,
	}
}

// ValidateRule checks doc's structure and returns path-prefixed error
// messages, empty when the document is well formed.
func (e *Engine) ValidateRule(doc *rule.Document) []string {
	v := &rule.Validator{ValidSource: resolver.ValidateSource}
	return v.Validate(doc, e.now())
}

// Sources enumerates the context paths resolvable against the current
// snapshot, for caller-side autocomplete.
func (e *Engine) Sources(ctx context.Context) ([]string, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return resolver.ValidSources(snap), nil
}

// Preview runs the full pipeline without mutating the store.
func (e *Engine) Preview(ctx context.Context, chatID string, doc *rule.Document) (*RunResult, error) {
	return e.run(ctx, chatID, doc, true)
}

// Run validates, resolves, policy-checks and executes doc. The store
// is mutated only when every earlier stage passed, and only by the
// executor.
func (e *Engine) Run(ctx context.Context, chatID string, doc *rule.Document) (*RunResult, error) {
	return e.run(ctx, chatID, doc, false)
}

func (e *Engine) run(ctx context.Context, chatID string, doc *rule.Document, dryRun bool) (*RunResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	trail := audit.NewTrail()
	res := &RunResult{RunID: uuid.NewString()}
	finish := func(status string) *RunResult {
		res.Status = status
		res.Audit = trail.Entries()
		return res
	}

	if errs := e.ValidateRule(doc); len(errs) > 0 {
		res.ValidationErrors = errs
		trail.Append("validation", "rejected with %d schema error(s)", len(errs))
		return finish(StatusInvalid), nil
	}
	trail.Append("validation", "document accepted, action %s", doc.Payment.Action)

	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	held, checks := evaluateConditions(doc.Conditions, "before", snap)
	res.BeforeConditions = checks
	if len(checks) > 0 {
		trail.Append("conditions", "%d before condition(s), held=%t", len(checks), held)
	}
	if !held {
		res.SkipReason = "before conditions not met"
		return finish(StatusSkipped), nil
	}

	res.Resolution = e.resolver.Resolve(doc, snap)
	trail.Append("resolution", "success=%t, %d item(s), total %.2f",
		res.Resolution.Success, len(res.Resolution.Items), res.Resolution.TotalAmount)
	if !res.Resolution.Success {
		return finish(StatusResolutionFailed), nil
	}

	res.Policy = e.policy.ValidateBatch(doc, res.Resolution.Items, snap, e.now())
	trail.Append("policy", "success=%t, %d violation(s), risk %s",
		res.Policy.Success, len(res.Policy.Violations), res.Policy.RiskLabel)
	if !res.Policy.Success {
		return finish(StatusPolicyFailed), nil
	}

	if dryRun {
		res.Execution, err = e.exec.DryRun(ctx, chatID, res.Resolution.Items, doc.Payment.Source)
	} else {
		res.Execution, err = e.exec.Execute(ctx, chatID, res.Resolution.Items, doc.Payment.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("executing batch: %w", err)
	}
	trail.Append("execution", "success=%t, processed %d, failed %d, deducted %.2f",
		res.Execution.Success, res.Execution.ProcessedCount, res.Execution.FailedCount, res.Execution.TotalProcessed)

	e.recordAfterConditions(ctx, doc, res, trail, dryRun)

	if !res.Execution.Success {
		return finish(StatusExecutionFailed), nil
	}
	if dryRun {
		return finish(StatusPreviewed), nil
	}
	return finish(StatusExecuted), nil
}

// recordAfterConditions evaluates "after" conditions against the
// post-run snapshot and records them in the audit trail. They never
// change the run outcome.
func (e *Engine) recordAfterConditions(ctx context.Context, doc *rule.Document, res *RunResult, trail *audit.Trail, dryRun bool) {
	var after []rule.Condition
	for _, c := range doc.Conditions {
		if c.When == "after" {
			after = append(after, c)
		}
	}
	if len(after) == 0 {
		return
	}

	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		trail.Append("conditions", "after conditions unverifiable: %v", err)
		return
	}
	if dryRun {
		// The store was not mutated; verify against the projected balance.
		if acct := snap.AccountByRef(doc.Payment.Source); acct != nil && res.Execution != nil && res.Execution.Balance != nil {
			acct.Balance = res.Execution.Balance.After
		}
	}

	held, checks := evaluateConditions(after, "after", snap)
	res.AfterConditions = checks
	trail.Append("conditions", "%d after condition(s), held=%t", len(checks), held)
}

// evaluateConditions checks the conditions whose When matches phase.
// Each condition's Logic ("and", default, or "or") combines it with the
// running verdict. An unresolvable path fails the condition rather than
// passing silently.
func evaluateConditions(conds []rule.Condition, phase string, snap *snapshot.Snapshot) (bool, []ConditionCheck) {
	held := true
	first := true
	var checks []ConditionCheck

	for _, c := range conds {
		when := c.When
		if when == "" {
			when = "before"
		}
		if when != phase {
			continue
		}

		check := ConditionCheck{Path: c.Path(), Operator: c.Operator, Value: c.Value}
		actual, ok := resolver.ResolveSource(c.Path(), snap, nil)
		if ok {
			check.Resolved = true
			check.Actual = actual
			check.Held = compare(actual, c.Operator, c.Value)
		}
		checks = append(checks, check)

		if first {
			held = check.Held
			first = false
		} else if c.Logic == "or" {
			held = held || check.Held
		} else {
			held = held && check.Held
		}
	}
	return held, checks
}

func compare(actual float64, operator string, value float64) bool {
	switch operator {
	case rule.OpGreaterThan:
		return actual > value
	case rule.OpGreaterEqual:
		return actual >= value
	case rule.OpLessThan:
		return actual < value
	case rule.OpLessEqual:
		return actual <= value
	case rule.OpEqual:
		return math.Abs(actual-value) < 1e-9
	case rule.OpNotEqual:
		return math.Abs(actual-value) >= 1e-9
	default:
		return false
	}
}

// Register stores doc under a fresh id for trigger-driven runs and
// returns the id.
func (e *Engine) Register(doc *rule.Document) string {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	if e.rules == nil {
		e.rules = make(map[string]*rule.Document)
	}
	id := uuid.NewString()
	e.rules[id] = doc
	return id
}

// RunRule executes a previously registered rule. It satisfies the
// scheduler's Runner interface.
func (e *Engine) RunRule(ruleID string) error {
	e.rulesMu.Lock()
	doc := e.rules[ruleID]
	e.rulesMu.Unlock()
	if doc == nil {
		return fmt.Errorf("rule %s not registered", ruleID)
	}

	res, err := e.Run(context.Background(), "", doc)
	if err != nil {
		return err
	}
	if res.Status != StatusExecuted && res.Status != StatusSkipped {
		return fmt.Errorf("rule %s run ended with status %s", ruleID, res.Status)
	}
	return nil
}
