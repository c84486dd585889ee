package variables

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/alexisbeaulieu97/flowtest/internal/jsexpr"
	flowtesterrors "github.com/alexisbeaulieu97/flowtest/pkg/errors"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// ScriptContext supplies the extra bindings (response, captured, request)
// available to `$js:` expressions evaluated during interpolation. Variables
// are always drawn from the Context itself.
type ScriptContext struct {
	Response interface{}
	Captured map[string]interface{}
	Request  interface{}
}

// Interpolate substitutes every `{{...}}` placeholder in template. When the
// template is exactly one placeholder with no surrounding characters, the
// raw typed value is returned; otherwise every placeholder is coerced to
// its string form and substituted in place (spec §4.4).
func (c *Context) Interpolate(template string, script ScriptContext) (interface{}, error) {
	if m := placeholderPattern.FindStringSubmatch(template); m != nil && m[0] == template {
		value, err := c.resolvePlaceholder(m[1], script)
		if err != nil {
			return template, err
		}
		return value, nil
	}

	var firstErr error
	result := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		inner := placeholderPattern.FindStringSubmatch(match)[1]
		value, err := c.resolvePlaceholder(inner, script)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return stringify(value)
	})
	return result, firstErr
}

// InterpolateStructured recurses through maps/slices, interpolating every
// string leaf while preserving structure and non-string leaves (spec §4.4
// "Structured interpolation").
func (c *Context) InterpolateStructured(value interface{}, script ScriptContext) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return c.Interpolate(v, script)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, elem := range v {
			resolved, err := c.InterpolateStructured(elem, script)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			resolved, err := c.InterpolateStructured(elem, script)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

func (c *Context) resolvePlaceholder(expr string, script ScriptContext) (interface{}, error) {
	switch {
	case strings.HasPrefix(expr, "$js:"):
		return c.evalJS(strings.TrimPrefix(expr, "$js:"), script)
	case strings.HasPrefix(expr, "faker."):
		return evalFaker(expr)
	default:
		v, ok := c.Get(expr)
		if !ok {
			return nil, flowtesterrors.NewInterpolationError(expr, expr)
		}
		return v, nil
	}
}

func (c *Context) evalJS(expr string, script ScriptContext) (interface{}, error) {
	return jsexpr.Eval(expr, jsexpr.Context{
		Variables: c.AllForInterpolation(),
		Response:  script.Response,
		Captured:  script.Captured,
		Request:   script.Request,
	})
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
