package expressions

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/loomworks/loom/pkg/schema"
)

// CELEngine compile-checks expressions in Google's Common Expression
// Language. Thread-safe: compiled ASTs are cached and reused.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]*cel.Ast
}

// NewCELEngine creates a CEL engine with a sandboxed environment exposing
// the variables a condition may reference at run time:
//   - outputs:  map(string, dyn) — step results keyed by output key
//   - inputs:   map(string, dyn) — workflow input parameters
//   - workflow: map(string, dyn) — workflow metadata
func NewCELEngine() (*CELEngine, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)

	env, err := cel.NewEnv(
		cel.Variable("outputs", mapType),
		cel.Variable("inputs", mapType),
		cel.Variable("workflow", mapType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		env:   env,
		cache: make(map[string]*cel.Ast),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return DialectCEL
}

// Check compiles the expression against the sandboxed environment without
// evaluating it.
func (e *CELEngine) Check(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}

	e.mu.RLock()
	_, cached := e.cache[expression]
	e.mu.RUnlock()
	if cached {
		return nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return schema.NewErrorf(schema.ErrCodeMalformedPayload,
			"CEL compile failed for %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err())
	}

	e.mu.Lock()
	e.cache[expression] = ast
	e.mu.Unlock()
	return nil
}
