package formula

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// EvaluationError represents a formula that failed to evaluate.
type EvaluationError struct {
	Formula string
	Reason  string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("cannot evaluate formula %q: %s", e.Formula, e.Reason)
}

// Functions supported inside a formula. Arguments are either empty
// (substitute the base value), a literal number, or a simple operation
// applied to the base value.
var allowedFunctions = map[string]bool{
	"MIN":   true,
	"MAX":   true,
	"ROUND": true,
	"CEIL":  true,
	"FLOOR": true,
	"ABS":   true,
}

// Substrings that indicate an attempt to smuggle host-language constructs
// into a formula. Any match fails validation outright.
var forbiddenTokens = []string{
	"function", "return", "eval", "exec", "import", "require",
	"process", "global", "window", "this", "new ", "=>",
	";", "{", "}", "[", "]", "`", "'", "\"", "=", "&", "|", "<", ">", "!",
}

var (
	identifierPattern = regexp.MustCompile(`[A-Za-z]+`)
	operationPattern  = regexp.MustCompile(`^\s*([+\-*/%])\s*(\d+(?:\.\d+)?)\s*`)
	numberPattern     = regexp.MustCompile(`^\s*\d+(?:\.\d+)?\s*$`)
	functionPattern   = regexp.MustCompile(`^\s*([A-Z]+)\s*\((.*)\)\s*$`)
)

// Validate reports whether formula is a member of the safe grammar:
// a chain of operator-number pairs, or a single call to one of the
// allowed functions. It never evaluates anything.
func Validate(formula string) bool {
	trimmed := strings.TrimSpace(formula)
	if trimmed == "" {
		return false
	}

	lower := strings.ToLower(trimmed)
	for _, tok := range forbiddenTokens {
		if strings.Contains(lower, tok) {
			return false
		}
	}

	if !balancedParens(trimmed) {
		return false
	}

	// Every alphabetic run must be one of the fixed function names;
	// anything else is an identifier we refuse to interpret.
	for _, ident := range identifierPattern.FindAllString(trimmed, -1) {
		if !allowedFunctions[ident] {
			return false
		}
	}

	for _, r := range trimmed {
		if !isAllowedRune(r) {
			return false
		}
	}

	if m := functionPattern.FindStringSubmatch(trimmed); m != nil {
		if !allowedFunctions[m[1]] {
			return false
		}
		for _, arg := range splitArgs(m[2]) {
			if !validArg(arg) {
				return false
			}
		}
		return true
	}

	return validOperationChain(trimmed)
}

// Evaluate applies formula to baseValue and returns the derived amount.
// The formula must pass Validate; anything else returns an EvaluationError.
func Evaluate(formula string, baseValue float64) (float64, error) {
	trimmed := strings.TrimSpace(formula)
	if !Validate(trimmed) {
		return 0, &EvaluationError{Formula: formula, Reason: "formula is not part of the safe grammar"}
	}

	if m := functionPattern.FindStringSubmatch(trimmed); m != nil {
		return evaluateFunction(trimmed, m[1], m[2], baseValue)
	}

	return evaluateChain(trimmed, baseValue)
}

func evaluateChain(formula string, baseValue float64) (float64, error) {
	acc := baseValue
	rest := formula
	for rest != "" {
		m := operationPattern.FindStringSubmatch(rest)
		if m == nil {
			return 0, &EvaluationError{Formula: formula, Reason: fmt.Sprintf("unexpected input near %q", rest)}
		}
		operand, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return 0, &EvaluationError{Formula: formula, Reason: fmt.Sprintf("invalid number %q", m[2])}
		}
		acc, err = applyOperator(m[1], acc, operand)
		if err != nil {
			return 0, &EvaluationError{Formula: formula, Reason: err.Error()}
		}
		rest = rest[len(m[0]):]
	}
	return acc, nil
}

func evaluateFunction(formula, name, rawArgs string, baseValue float64) (float64, error) {
	args := splitArgs(rawArgs)
	values := make([]float64, 0, len(args))
	for _, arg := range args {
		v, err := evaluateArg(arg, baseValue)
		if err != nil {
			return 0, &EvaluationError{Formula: formula, Reason: err.Error()}
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		values = append(values, baseValue)
	}

	switch name {
	case "MIN":
		out := values[0]
		for _, v := range values[1:] {
			out = math.Min(out, v)
		}
		return out, nil
	case "MAX":
		out := values[0]
		for _, v := range values[1:] {
			out = math.Max(out, v)
		}
		return out, nil
	case "ROUND":
		return math.Round(values[0]), nil
	case "CEIL":
		return math.Ceil(values[0]), nil
	case "FLOOR":
		return math.Floor(values[0]), nil
	case "ABS":
		return math.Abs(values[0]), nil
	}
	return 0, &EvaluationError{Formula: formula, Reason: fmt.Sprintf("unknown function %s", name)}
}

// evaluateArg resolves a single function argument: empty means the base
// value, a bare number means itself, and a simple operation is applied
// to the base value.
func evaluateArg(arg string, baseValue float64) (float64, error) {
	trimmed := strings.TrimSpace(arg)
	if trimmed == "" {
		return baseValue, nil
	}
	if numberPattern.MatchString(trimmed) {
		return strconv.ParseFloat(trimmed, 64)
	}
	return evaluateChain(trimmed, baseValue)
}

func applyOperator(op string, left, right float64) (float64, error) {
	switch op {
	case "+":
		return left + right, nil
	case "-":
		return left - right, nil
	case "*":
		return left * right, nil
	case "/":
		if right == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return left / right, nil
	case "%":
		if right == 0 {
			return 0, fmt.Errorf("modulo by zero")
		}
		return math.Mod(left, right), nil
	}
	return 0, fmt.Errorf("unknown operator %q", op)
}

func validArg(arg string) bool {
	trimmed := strings.TrimSpace(arg)
	if trimmed == "" {
		return true
	}
	if numberPattern.MatchString(trimmed) {
		return true
	}
	return validOperationChain(trimmed)
}

func validOperationChain(s string) bool {
	rest := s
	for rest != "" {
		m := operationPattern.FindStringSubmatch(rest)
		if m == nil {
			return false
		}
		rest = rest[len(m[0]):]
	}
	return true
}

func splitArgs(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	var args []string
	depth := 0
	start := 0
	for i, r := range trimmed {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, trimmed[start:i])
				start = i + 1
			}
		}
	}
	args = append(args, trimmed[start:])
	return args
}

func balancedParens(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func isAllowedRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r == '+' || r == '-' || r == '*' || r == '/' || r == '%':
		return true
	case r == '(' || r == ')' || r == '.' || r == ',':
		return true
	case r == ' ' || r == '\t':
		return true
	}
	return false
}
