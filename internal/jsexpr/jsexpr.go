// Package jsexpr evaluates sandboxed JavaScript expressions for the
// `{{$js:expr}}` interpolation form, skip-condition evaluation, scenario
// branch conditions, and pre/post request scripts (spec §4.4, §4.3.1,
// §4.3.4). It is adopted directly from the ecosystem (goja, a pure-Go ES5.1+
// interpreter) because the specification requires a JS expression bridge
// and nothing in the retrieval pack provides one; see DESIGN.md.
package jsexpr

import (
	"github.com/dop251/goja"

	flowtesterrors "github.com/alexisbeaulieu97/flowtest/pkg/errors"
)

// Context is the bound set of names available inside a sandboxed script:
// variables, response, captured, request, per spec §4.4. Extra binds
// additional top-level names directly (used by the assertion engine's
// custom JS checks, which bind status_code/headers/body/response_time
// directly rather than nested under "response"). Any field may be nil.
type Context struct {
	Variables map[string]interface{}
	Response  interface{}
	Captured  map[string]interface{}
	Request   interface{}
	Extra     map[string]interface{}
}

// Eval runs expr as a JavaScript expression (or a statement block, for
// pre/post request scripts) in a fresh sandbox and returns its exported
// value, converted to a plain Go type.
func Eval(expr string, ctx Context) (interface{}, error) {
	vm := goja.New()

	bind := func(name string, value interface{}) error {
		if value == nil {
			return nil
		}
		return vm.Set(name, value)
	}

	if err := bind("variables", ctx.Variables); err != nil {
		return nil, flowtesterrors.NewJsEvalError(expr, err)
	}
	if err := bind("response", ctx.Response); err != nil {
		return nil, flowtesterrors.NewJsEvalError(expr, err)
	}
	if err := bind("captured", ctx.Captured); err != nil {
		return nil, flowtesterrors.NewJsEvalError(expr, err)
	}
	if err := bind("request", ctx.Request); err != nil {
		return nil, flowtesterrors.NewJsEvalError(expr, err)
	}
	for name, value := range ctx.Extra {
		if err := bind(name, value); err != nil {
			return nil, flowtesterrors.NewJsEvalError(expr, err)
		}
	}

	value, err := vm.RunString(expr)
	if err != nil {
		return nil, flowtesterrors.NewJsEvalError(expr, err)
	}

	return value.Export(), nil
}

// EvalBool runs expr and coerces its result to a boolean using JS
// truthiness rules, per the skip/scenario-condition evaluators.
func EvalBool(expr string, ctx Context) (bool, error) {
	v, err := Eval(expr, ctx)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}

// MutateScript runs a statement-form script (pre/post request scripts) that
// mutates the bound request object in place; it returns only an error, and
// the caller reads the mutated target back. target must be a pointer-free
// map/slice so goja's reflection-based binding observes in-place mutation.
func MutateScript(script string, target map[string]interface{}, ctx Context) error {
	vm := goja.New()

	if err := vm.Set("request", target); err != nil {
		return flowtesterrors.NewJsEvalError(script, err)
	}
	if err := vm.Set("variables", ctx.Variables); err != nil {
		return flowtesterrors.NewJsEvalError(script, err)
	}
	if err := vm.Set("response", ctx.Response); err != nil {
		return flowtesterrors.NewJsEvalError(script, err)
	}

	if _, err := vm.RunString(script); err != nil {
		return flowtesterrors.NewJsEvalError(script, err)
	}
	return nil
}

// IsLikelyJS reports whether expr contains operators that only make sense
// as JavaScript, per the skip-evaluator's dispatch rule (spec §4.4): any of
// ===, !==, &&, ||, or a leading !.
func IsLikelyJS(expr string) bool {
	operators := []string{"===", "!==", "&&", "||"}
	for _, op := range operators {
		if contains(expr, op) {
			return true
		}
	}
	return len(expr) > 0 && expr[0] == '!'
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}
