package rule

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/example/treasury-engine/internal/cron"
	"github.com/example/treasury-engine/internal/formula"
)

// Hook triggers a rule can subscribe to.
var knownTriggers = map[string]bool{
	"invoice-approved": true,
	"invoice-received": true,
	"balance-low":      true,
	"revenue-received": true,
	"month-end":        true,
}

var knownOperators = map[string]bool{
	OpGreaterThan:  true,
	OpGreaterEqual: true,
	OpLessThan:     true,
	OpLessEqual:    true,
	OpEqual:        true,
	OpNotEqual:     true,
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3,6}$`)

// Validator performs schema-level validation of rule documents before
// any resolution is attempted. ValidSource is injected by the caller
// (it comes from the context resolver) so this package stays free of
// snapshot knowledge; when nil, source paths are not checked.
type Validator struct {
	ValidSource func(path string) bool
}

// Validate returns all schema errors found in doc, each formatted as
// "path: message". An empty slice means the document is well-formed.
// now anchors the "timestamp is in the past" check.
func (v *Validator) Validate(doc *Document, now time.Time) []string {
	var errs []string

	errs = append(errs, v.validateExecution(&doc.Execution, now)...)
	errs = append(errs, v.validatePayment(&doc.Payment)...)

	for i, cond := range doc.Conditions {
		errs = append(errs, v.validateCondition(i, cond)...)
	}

	return errs
}

func (v *Validator) validateExecution(ex *Execution, now time.Time) []string {
	var errs []string

	switch ex.Kind {
	case TimingOnce:
		if ex.At == nil {
			errs = append(errs, "execution.at: timestamp is required for once execution")
		} else if !ex.At.After(now) {
			errs = append(errs, "execution.at: timestamp is in the past")
		}
	case TimingSchedule:
		if ex.Cron == "" {
			errs = append(errs, "execution.cron: cron expression is required for schedule execution")
		} else if !cron.Validate(ex.Cron) {
			errs = append(errs, fmt.Sprintf("execution.cron: invalid cron expression %q", ex.Cron))
		}
	case TimingHook:
		if len(ex.Triggers) == 0 {
			errs = append(errs, "execution.triggers: at least one trigger is required for hook execution")
		}
		for _, trig := range ex.Triggers {
			if !knownTriggers[trig] {
				errs = append(errs, fmt.Sprintf("execution.triggers: unknown trigger %q", trig))
			}
		}
	case "":
		errs = append(errs, "execution.kind: execution timing is required")
	default:
		errs = append(errs, fmt.Sprintf("execution.kind: unknown timing %q", ex.Kind))
	}

	return errs
}

func (v *Validator) validatePayment(p *Payment) []string {
	var errs []string

	switch p.Action {
	case ActionSimple:
		if len(p.Beneficiaries) != 1 {
			errs = append(errs, fmt.Sprintf("payment.beneficiaries: simple payment requires exactly one beneficiary, got %d", len(p.Beneficiaries)))
		}
	case ActionSplit:
		if len(p.Beneficiaries) == 0 {
			errs = append(errs, "payment.beneficiaries: split payment requires at least one beneficiary")
		}
		if len(p.Percentages) == 0 {
			errs = append(errs, "payment.percentages: split payment requires percentages")
		} else {
			var sum float64
			for i, pct := range p.Percentages {
				if pct <= 0 {
					errs = append(errs, fmt.Sprintf("payment.percentages[%d]: percentage must be positive", i))
				}
				sum += pct
			}
			if math.Abs(sum-100) > 0.01 {
				errs = append(errs, fmt.Sprintf("payment.percentages: percentages sum to %.2f, expected 100", sum))
			}
		}
		if p.Amount.IsZero() {
			errs = append(errs, "payment.amount: split payment requires a total amount")
		}
	case ActionCalculation, ActionLeftover:
		if len(p.Beneficiaries) == 0 {
			errs = append(errs, fmt.Sprintf("payment.beneficiaries: %s payment requires at least one beneficiary", p.Action))
		}
	case ActionBatch:
		// Beneficiaries come from invoice expansion; there is no default
		// "all invoices" behavior, so tags are mandatory.
		if len(p.Tags) == 0 {
			errs = append(errs, "payment.tags: batch payment requires at least one tag")
		}
	case "":
		errs = append(errs, "payment.action: payment action is required")
	default:
		errs = append(errs, fmt.Sprintf("payment.action: unknown action %q", p.Action))
	}

	if p.Source == "" {
		errs = append(errs, "payment.source: source account is required")
	}
	if p.Currency != "" && !currencyPattern.MatchString(p.Currency) {
		errs = append(errs, fmt.Sprintf("payment.currency: invalid currency code %q", p.Currency))
	}

	errs = append(errs, v.validateAmount(p.Action, p.Amount)...)

	return errs
}

func (v *Validator) validateAmount(action ActionKind, a Amount) []string {
	var errs []string

	if a.Literal != "" && a.Source != "" {
		errs = append(errs, "payment.amount: literal and source are mutually exclusive")
	}
	if a.Literal != "" {
		val, err := strconv.ParseFloat(a.Literal, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("payment.amount.literal: %q is not a number", a.Literal))
		} else if val <= 0 || math.IsInf(val, 0) || math.IsNaN(val) {
			errs = append(errs, fmt.Sprintf("payment.amount.literal: amount must be a positive finite number, got %q", a.Literal))
		}
	}
	if a.Source != "" && v.ValidSource != nil && !v.ValidSource(a.Source) {
		errs = append(errs, fmt.Sprintf("payment.amount.source: unknown source path %q", a.Source))
	}
	if a.Formula != "" {
		// Batch and calculation payments apply the formula to each
		// record's own base amount, so a source path is optional there.
		if a.Source == "" && action != ActionBatch && action != ActionCalculation {
			errs = append(errs, "payment.amount.formula: formula requires a source path to derive from")
		}
		if !formula.Validate(a.Formula) {
			errs = append(errs, fmt.Sprintf("payment.amount.formula: invalid formula %q", a.Formula))
		}
	}

	return errs
}

func (v *Validator) validateCondition(i int, c Condition) []string {
	var errs []string
	prefix := fmt.Sprintf("conditions[%d]", i)

	if c.Source == "" {
		errs = append(errs, prefix+".source: source is required")
	} else if v.ValidSource != nil && !v.ValidSource(c.Path()) {
		errs = append(errs, fmt.Sprintf("%s.source: unknown source path %q", prefix, c.Path()))
	}
	if !knownOperators[c.Operator] {
		errs = append(errs, fmt.Sprintf("%s.operator: unknown operator %q", prefix, c.Operator))
	}
	if c.When != "before" && c.When != "after" {
		errs = append(errs, fmt.Sprintf("%s.when: must be \"before\" or \"after\", got %q", prefix, c.When))
	}
	if c.Logic != "" && c.Logic != "and" && c.Logic != "or" {
		errs = append(errs, fmt.Sprintf("%s.logic: must be \"and\" or \"or\", got %q", prefix, c.Logic))
	}

	return errs
}
