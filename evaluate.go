package autosplit

import (
	"fmt"
	"strings"
	"time"
)

// Engine names accepted by NewEvaluator.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

// NewEvaluator builds the evaluator for engine sharing cache and registry.
// The JS engine needs the js_eval build tag.
func NewEvaluator(engine string, cache ProgramCache, registry *FunctionRegistry) (Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineExpr:
		return NewExprEvaluator(ExprWithProgramCache(cache), ExprWithFunctionRegistry(registry)), nil
	case EngineCEL:
		return NewCELEvaluator(CELWithProgramCache(cache), CELWithFunctionRegistry(registry)), nil
	case EngineJS:
		if !jsEvaluatorAvailable() {
			return nil, fmt.Errorf("%w: js engine requires the js_eval build tag", ErrNoEvaluator)
		}
		return NewJSEvaluator(JSWithProgramCache(cache), JSWithFunctionRegistry(registry)), nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrNoEvaluator, engine)
	}
}

// condition is a compiled route condition.
type condition struct {
	name   string
	expr   string
	engine string
	rule   CompiledRule
}

func compileCondition(evaluator Evaluator, name, expr string, fields []string) (*condition, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	rule, err := evaluator.Compile(expr, WithFieldNames(fields...))
	if err != nil {
		return nil, wrapEvaluationError(evaluatorEngineName(evaluator), expr, name, err)
	}
	return &condition{name: name, expr: expr, engine: evaluatorEngineName(evaluator), rule: rule}, nil
}

// holds runs the condition against env. Failures and non boolean results
// count as false and are reported to logger.
func (c *condition) holds(env Env, logger EvaluatorLogger) bool {
	if c == nil {
		return false
	}
	env.Split = c.name
	start := time.Now()
	value, err := c.rule.Evaluate(env)
	duration := time.Since(start)

	result, ok := value.(bool)
	if err == nil && !ok {
		err = fmt.Errorf("%w: got %T", ErrNotBoolean, value)
	}
	err = wrapEvaluationError(c.engine, c.expr, c.name, err)
	logger.LogEvaluation(EvaluatorLogEvent{
		Engine:   c.engine,
		Expr:     c.expr,
		Split:    c.name,
		Duration: duration,
		Result:   result && err == nil,
		Err:      err,
	})
	return err == nil && result
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	if named, ok := e.(interface{ Engine() string }); ok {
		return named.Engine()
	}
	return "custom"
}
