package autosplit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoEvaluator = errors.New("autosplit: evaluator not configured")
	// ErrNotBoolean is wrapped when a condition yields a non boolean value.
	ErrNotBoolean = errors.New("autosplit: condition did not return a boolean")
)

// EvaluationError captures evaluator metadata alongside the originating error.
type EvaluationError struct {
	Engine string
	Expr   string
	Split  string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("autosplit: %s evaluator %s split=%s: %v", e.Engine, describeExpression(e.Expr), e.Split, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "autosplit:") {
		return err
	}
	return fmt.Errorf("autosplit: %s evaluator: %w", engine, err)
}

func wrapEvaluationError(engine, expr, split string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Split == "" {
			evalErr.Split = split
		}
		return evalErr
	}

	return &EvaluationError{
		Engine: engine,
		Expr:   expr,
		Split:  split,
		Err:    err,
	}
}
