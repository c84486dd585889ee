package variables

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/alexisbeaulieu97/flowtest/internal/jmes"
	"github.com/alexisbeaulieu97/flowtest/internal/jsexpr"
)

var (
	jmesComparisonQuote = regexp.MustCompile(`==\s*'([^']*)'`)
	jmesBareLiteral     = regexp.MustCompile(`==\s*(true|false|null|-?\d+(?:\.\d+)?)\b`)
)

// EvaluateSkip implements the pre_execution/post_capture skip evaluator
// (spec §4.4 "Skip evaluation"). mergedContext is the JMESPath context
// object (status_code, headers, body, variables, captured, ...) used when
// the expression falls through to JMESPath evaluation.
func (c *Context) EvaluateSkip(expression string, script ScriptContext, mergedContext map[string]interface{}) bool {
	trimmed := strings.TrimSpace(expression)
	switch trimmed {
	case "true":
		return true
	case "false":
		return false
	}

	interpolated, err := c.Interpolate(expression, script)
	if err != nil {
		return false
	}
	asString := stringify(interpolated)
	trimmedInterpolated := strings.TrimSpace(asString)

	switch trimmedInterpolated {
	case "true":
		return true
	case "false":
		return false
	}

	if jsexpr.IsLikelyJS(trimmedInterpolated) {
		ok, err := jsexpr.EvalBool(trimmedInterpolated, jsexpr.Context{
			Variables: c.AllForInterpolation(),
			Response:  script.Response,
			Captured:  script.Captured,
			Request:   script.Request,
		})
		if err != nil {
			return false
		}
		return ok
	}

	jmesExpr := jmesSugar(trimmedInterpolated)
	// JMESPath number literals decode as float64; a JSON round trip gives Go
	// ints in the context (status_code) the same type so == can match.
	var searchCtx interface{} = mergedContext
	if raw, err := json.Marshal(mergedContext); err == nil {
		var normalized interface{}
		if json.Unmarshal(raw, &normalized) == nil {
			searchCtx = normalized
		}
	}
	result, err := jmes.Search(jmesExpr, searchCtx)
	if err != nil {
		return false
	}
	b, ok := result.(bool)
	return ok && b
}

// jmesSugar rewrites a small set of ergonomic shorthands into valid JMESPath
// syntax: single-quoted strings in a `==` comparison become backtick JSON
// string literals, and unquoted numeric/boolean/null comparisons are
// likewise wrapped in backticks (spec §4.4).
func jmesSugar(expr string) string {
	expr = jmesComparisonQuote.ReplaceAllString(expr, "== `\"$1\"`")
	expr = jmesBareLiteral.ReplaceAllString(expr, "== `$1`")
	return expr
}
