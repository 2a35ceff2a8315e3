// Package expressions provides authoring-time linting of the expressions a
// workflow carries: conditional step conditions (CEL or Expr dialects) and
// {{outputKey.path}} template references. Nothing here evaluates anything —
// execution belongs to the engine; loom only rejects expressions that could
// never compile.
package expressions

import "github.com/loomworks/loom/pkg/schema"

// Engine compile-checks condition expressions in one dialect.
type Engine interface {
	Name() string
	Check(expression string) error
}

// Dialect names accepted in workflow metadata.
const (
	DialectExpr = "expr"
	DialectCEL  = "cel"
)

// ForDialect returns the engine for a condition dialect. The empty dialect
// defaults to Expr.
func ForDialect(dialect string) (Engine, error) {
	switch dialect {
	case "", DialectExpr:
		return NewExprEngine(), nil
	case DialectCEL:
		return NewCELEngine()
	}
	return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown condition dialect %q", dialect)
}

// ConditionChecker adapts an Engine to the validator's hook.
type ConditionChecker struct {
	engine Engine
}

// NewConditionChecker wraps an engine for use by the validator.
func NewConditionChecker(engine Engine) *ConditionChecker {
	return &ConditionChecker{engine: engine}
}

// CheckCondition compile-checks one expression.
func (c *ConditionChecker) CheckCondition(expression string) error {
	return c.engine.Check(expression)
}
