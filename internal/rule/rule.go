package rule

import "time"

// TimingKind is the closed set of execution timing variants.
type TimingKind string

const (
	TimingOnce     TimingKind = "once"
	TimingSchedule TimingKind = "schedule"
	TimingHook     TimingKind = "hook"
)

// ActionKind is the closed set of payment actions.
type ActionKind string

const (
	ActionSimple      ActionKind = "simple"
	ActionSplit       ActionKind = "split"
	ActionCalculation ActionKind = "calculation"
	ActionLeftover    ActionKind = "leftover"
	ActionBatch       ActionKind = "batch"
)

// Condition comparison operators.
const (
	OpGreaterThan  = "gt"
	OpGreaterEqual = "gte"
	OpLessThan     = "lt"
	OpLessEqual    = "lte"
	OpEqual        = "eq"
	OpNotEqual     = "neq"
)

// Execution describes when a rule runs. Exactly one variant's fields
// are set, selected by Kind.
type Execution struct {
	Kind     TimingKind `json:"kind"`
	At       *time.Time `json:"at,omitempty"`
	Cron     string     `json:"cron,omitempty"`
	Triggers []string   `json:"triggers,omitempty"`
}

// Amount is either a literal numeric string or a source path into the
// financial snapshot, optionally transformed by a formula.
type Amount struct {
	Literal string `json:"literal,omitempty"`
	Source  string `json:"source,omitempty"`
	Formula string `json:"formula,omitempty"`
}

// IsZero reports whether no amount was specified at all.
func (a Amount) IsZero() bool {
	return a.Literal == "" && a.Source == "" && a.Formula == ""
}

// Payment describes who gets paid and how much.
type Payment struct {
	Action        ActionKind `json:"action"`
	Source        string     `json:"source"`
	Beneficiaries []string   `json:"beneficiaries"`
	Amount        Amount     `json:"amount"`
	Currency      string     `json:"currency"`
	Percentages   []float64  `json:"percentages,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
}

// Condition gates rule execution on a snapshot value. When is "before"
// (checked prior to resolution) or "after" (recorded for post-run
// verification).
type Condition struct {
	Source   string  `json:"source"`
	Field    string  `json:"field"`
	Operator string  `json:"operator"`
	Value    float64 `json:"value"`
	When     string  `json:"when"`
	Logic    string  `json:"logic,omitempty"`
}

// Path returns the condition's dotted source path.
func (c Condition) Path() string {
	if c.Field == "" {
		return c.Source
	}
	return c.Source + "." + c.Field
}

// Document is a structured treasury payment rule. It is created by the
// calling layer (typically from LLM output) and consumed read-only by
// the engine.
type Document struct {
	Execution  Execution   `json:"execution"`
	Payment    Payment     `json:"payment"`
	Conditions []Condition `json:"conditions,omitempty"`
	Original   string      `json:"original"`
	Memo       string      `json:"memo,omitempty"`
}
