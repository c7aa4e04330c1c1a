package condition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	inputs := map[string]string{
		"run_lint": "true",
		"run_test": "false",
		"env":      "prod",
	}

	cases := []struct {
		name string
		expr string
		want bool
	}{
		{"bare truthy input", "run_lint", true},
		{"bare falsy input", "run_test", false},
		{"literal true", "true", true},
		{"literal false", "false", false},
		{"equality with string literal", "env == 'prod'", true},
		{"inequality with string literal", "env != 'prod'", false},
		{"equality with bool literal", "run_lint == true", true},
		{"inequality with bool literal", "run_test != true", true},
		{"negation", "!run_test", true},
		{"double negation", "!!run_lint", true},
		{"and", "run_lint && env == 'prod'", true},
		{"and short false", "run_test && run_lint", false},
		{"or", "run_test || run_lint", true},
		{"grouping", "!(run_lint && run_test)", true},
		{"precedence and over or", "run_test && run_test || run_lint", true},
		{"string against string", "'a' == 'b'", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expr, err := Parse(tc.expr)
			require.NoError(t, err)

			got, err := expr.Eval(inputs)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateIsPure(t *testing.T) {
	expr, err := Parse("run_lint && env == 'prod'")
	require.NoError(t, err)

	inputs := map[string]string{"run_lint": "true", "env": "prod"}
	for i := 0; i < 5; i++ {
		got, err := expr.Eval(inputs)
		require.NoError(t, err)
		assert.True(t, got)
	}
}

func TestUnresolvedInput(t *testing.T) {
	expr, err := Parse("missing == 'x'")
	require.NoError(t, err)

	got, err := expr.Eval(map[string]string{})
	assert.False(t, got, "evaluation must fail closed")
	require.Error(t, err)

	var unresolved *UnresolvedInputError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "missing", unresolved.Name)
}

func TestShortCircuit(t *testing.T) {
	inputs := map[string]string{"yes": "true", "no": "false"}

	// The right side references an unknown input but must never be reached.
	expr, err := Parse("yes || missing")
	require.NoError(t, err)
	got, err := expr.Eval(inputs)
	require.NoError(t, err)
	assert.True(t, got)

	expr, err = Parse("no && missing")
	require.NoError(t, err)
	got, err = expr.Eval(inputs)
	require.NoError(t, err)
	assert.False(t, got)

	// Reversed order does reach the unknown input.
	expr, err = Parse("missing || yes")
	require.NoError(t, err)
	_, err = expr.Eval(inputs)
	require.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"dangling and", "a &&"},
		{"dangling comparison", "a =="},
		{"single ampersand", "a & b"},
		{"single pipe", "a | b"},
		{"single equals", "a = b"},
		{"unclosed paren", "(a"},
		{"unterminated string", "'abc"},
		{"trailing input", "a b"},
		{"bad character", "a == $x"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.expr)
			require.Error(t, err)

			var parseErr *ParseError
			assert.True(t, errors.As(err, &parseErr))
		})
	}
}
