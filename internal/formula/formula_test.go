package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_SimpleOperations(t *testing.T) {
	cases := []struct {
		formula string
		base    float64
		want    float64
	}{
		{"* 0.1", 120000, 12000},
		{"+ 100", 50, 150},
		{"- 50", 200, 150},
		{"/ 12", 120000, 10000},
		{"% 7", 10, 3},
		{"* 2 + 10", 5, 20},
		{"* 0.5 * 0.5", 100, 25},
	}

	for _, tc := range cases {
		got, err := Evaluate(tc.formula, tc.base)
		require.NoError(t, err, "formula %q", tc.formula)
		assert.InDelta(t, tc.want, got, 1e-9, "formula %q", tc.formula)
	}
}

func TestEvaluate_Functions(t *testing.T) {
	cases := []struct {
		formula string
		base    float64
		want    float64
	}{
		{"MIN(* 0.1, 5000)", 120000, 5000},
		{"MIN(* 0.1, 5000)", 20000, 2000},
		{"MAX(, 1000)", 400, 1000},
		{"MAX(, 1000)", 4000, 4000},
		{"ROUND()", 10.6, 11},
		{"ROUND(* 0.333)", 100, 33},
		{"CEIL(/ 3)", 10, 4},
		{"FLOOR(/ 3)", 10, 3},
		{"ABS(- 500)", 100, 400},
		{"MIN(1, 2, 3)", 0, 1},
	}

	for _, tc := range cases {
		got, err := Evaluate(tc.formula, tc.base)
		require.NoError(t, err, "formula %q", tc.formula)
		assert.InDelta(t, tc.want, got, 1e-9, "formula %q", tc.formula)
	}
}

func TestValidate_RejectsHostLanguageTokens(t *testing.T) {
	bad := []string{
		"function() {}",
		"require('fs')",
		"process.exit()",
		"* 2; DROP TABLE accounts",
		"eval(1)",
		"x => x * 2",
		"[1,2,3]",
		"`${base}`",
		"a = 5",
		"import os",
		"balance",
		"min(1, 2)",
	}
	for _, f := range bad {
		assert.False(t, Validate(f), "formula %q should be rejected", f)

		_, err := Evaluate(f, 100)
		assert.Error(t, err, "formula %q should not evaluate", f)
	}
}

func TestValidate_RejectsMalformedInput(t *testing.T) {
	bad := []string{
		"",
		"   ",
		"MIN(1, 2",
		"* 0.1)",
		"((",
		"POW(2, 3)",
		"1000",
		"* * 2",
		"+ ",
	}
	for _, f := range bad {
		assert.False(t, Validate(f), "formula %q should be rejected", f)
	}
}

func TestValidate_AcceptsSafeGrammar(t *testing.T) {
	good := []string{
		"* 0.1",
		"+ 100",
		"/ 12",
		"% 7",
		"* 2 + 10 - 5",
		"MIN(* 0.1, 5000)",
		"MAX(, 1000)",
		"ROUND()",
		"ABS(- 500)",
	}
	for _, f := range good {
		assert.True(t, Validate(f), "formula %q should be accepted", f)
	}
}

func TestEvaluate_DivisionByZero(t *testing.T) {
	_, err := Evaluate("/ 0", 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")

	_, err = Evaluate("% 0", 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "modulo by zero")
}

func TestEvaluate_ErrorType(t *testing.T) {
	_, err := Evaluate("not a formula", 1)
	require.Error(t, err)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "not a formula", evalErr.Formula)
}
