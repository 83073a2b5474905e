package pricing

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// ConditionEvaluator evaluates optional CEL expressions attached to rules.
// Programs are compiled once per distinct expression and cached.
//
// Exposed variables:
//
//	qty        double  line quantity
//	unit_kind  string  "PACK" or "RETAIL"
//	base_price double  line base unit price
type ConditionEvaluator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewConditionEvaluator builds the CEL environment for rule conditions.
func NewConditionEvaluator() (*ConditionEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("qty", cel.DoubleType),
		cel.Variable("unit_kind", cel.StringType),
		cel.Variable("base_price", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("build cel env: %w", err)
	}
	return &ConditionEvaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Eval evaluates expr against the line variables. A non-boolean result is
// an error; callers treat any error as "rule not applicable".
func (e *ConditionEvaluator) Eval(expr string, line CartLine) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}

	basePrice, _ := line.BaseUnitPrice.Float64()
	out, _, err := prg.Eval(map[string]any{
		"qty":        float64(line.Qty),
		"unit_kind":  string(line.UnitKind),
		"base_price": basePrice,
	})
	if err != nil {
		return false, fmt.Errorf("eval condition: %w", err)
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition %q is not boolean", expr)
	}
	return b, nil
}

func (e *ConditionEvaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := e.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile condition: %w", iss.Err())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build program: %w", err)
	}

	e.mu.Lock()
	e.programs[expr] = prg
	e.mu.Unlock()

	return prg, nil
}
