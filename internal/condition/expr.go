// Package condition implements the boolean gate expressions that decide
// whether stages and steps run. Expressions are parsed once at load time
// into a combinator tree and evaluated as a pure function over the run's
// input map.
package condition

import "fmt"

// Expr is a parsed gate expression.
type Expr interface {
	// Eval evaluates the expression against the input map. Evaluation has
	// no side effects: the same expression and inputs always yield the
	// same result. A reference to an input that is not present fails with
	// UnresolvedInputError.
	Eval(inputs map[string]string) (bool, error)
	fmt.Stringer
}

// UnresolvedInputError reports a reference to an input name that is absent
// from the run's input map. Evaluation fails closed; the caller decides how
// to surface it.
type UnresolvedInputError struct {
	Name string
}

func (e *UnresolvedInputError) Error() string {
	return fmt.Sprintf("unresolved input %q", e.Name)
}

// ParseError reports a malformed expression.
type ParseError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid condition %q at offset %d: %s", e.Expr, e.Pos, e.Msg)
}

// operand is a value-producing leaf: an input reference or a literal.
type operand interface {
	value(inputs map[string]string) (string, error)
	fmt.Stringer
}

type identOperand struct {
	name string
}

func (o identOperand) value(inputs map[string]string) (string, error) {
	v, ok := inputs[o.name]
	if !ok {
		return "", &UnresolvedInputError{Name: o.name}
	}
	return v, nil
}

func (o identOperand) String() string { return o.name }

type literalOperand struct {
	val string
}

func (o literalOperand) value(map[string]string) (string, error) { return o.val, nil }

func (o literalOperand) String() string { return fmt.Sprintf("'%s'", o.val) }

// truthyExpr treats a bare operand as a boolean: true iff its value is the
// string "true".
type truthyExpr struct {
	op operand
}

func (e truthyExpr) Eval(inputs map[string]string) (bool, error) {
	v, err := e.op.value(inputs)
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

func (e truthyExpr) String() string { return e.op.String() }

type equalExpr struct {
	left, right operand
	negate      bool
}

func (e equalExpr) Eval(inputs map[string]string) (bool, error) {
	l, err := e.left.value(inputs)
	if err != nil {
		return false, err
	}
	r, err := e.right.value(inputs)
	if err != nil {
		return false, err
	}
	if e.negate {
		return l != r, nil
	}
	return l == r, nil
}

func (e equalExpr) String() string {
	op := "=="
	if e.negate {
		op = "!="
	}
	return fmt.Sprintf("%s %s %s", e.left, op, e.right)
}

type notExpr struct {
	inner Expr
}

func (e notExpr) Eval(inputs map[string]string) (bool, error) {
	v, err := e.inner.Eval(inputs)
	if err != nil {
		return false, err
	}
	return !v, nil
}

func (e notExpr) String() string { return "!" + e.inner.String() }

// andExpr short-circuits left to right: the right side is not evaluated
// when the left side is false.
type andExpr struct {
	left, right Expr
}

func (e andExpr) Eval(inputs map[string]string) (bool, error) {
	l, err := e.left.Eval(inputs)
	if err != nil || !l {
		return false, err
	}
	return e.right.Eval(inputs)
}

func (e andExpr) String() string { return fmt.Sprintf("(%s && %s)", e.left, e.right) }

// orExpr short-circuits left to right: the right side is not evaluated
// when the left side is true.
type orExpr struct {
	left, right Expr
}

func (e orExpr) Eval(inputs map[string]string) (bool, error) {
	l, err := e.left.Eval(inputs)
	if err != nil || l {
		return l, err
	}
	return e.right.Eval(inputs)
}

func (e orExpr) String() string { return fmt.Sprintf("(%s || %s)", e.left, e.right) }
