// Package assertion implements flowtest's assertion engine (spec §4.5):
// normalising flat and structured assertion declarations into per-field
// checks, evaluating them against an HTTP response, and producing
// AssertionResults.
package assertion

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/alexisbeaulieu97/flowtest/internal/jmes"
	"github.com/alexisbeaulieu97/flowtest/internal/jsexpr"
	"github.com/alexisbeaulieu97/flowtest/internal/model"
)

// ResponseContext is the normalised view of an HTTP response assertions run
// against.
type ResponseContext struct {
	StatusCode      int
	Headers         map[string]string
	Body            interface{}
	ResponseTimeMs  int64
}

// jmesLiteralDisallowed matches characters JMESPath requires quoting for in
// a raw field literal (spec §4.5 normalisation).
var jmesLiteralDisallowed = regexp.MustCompile(`[^A-Za-z0-9_.]`)

// Evaluate normalises raw (the step's `assertions` map) and evaluates every
// field's checks against resp, returning one AssertionResult per check.
func Evaluate(raw map[string]interface{}, resp ResponseContext) []model.AssertionResult {
	var results []model.AssertionResult

	for field, spec := range raw {
		switch field {
		case "status_code":
			results = append(results, evalField("status_code", spec, resp.StatusCode)...)
		case "response_time_ms":
			results = append(results, evalField("response_time_ms", spec, resp.ResponseTimeMs)...)
		case "headers":
			results = append(results, evalHeaders(spec, resp.Headers)...)
		case "body":
			results = append(results, evalBody(spec, resp.Body)...)
		case "custom":
			results = append(results, evalCustom(spec, resp)...)
		default:
			// Flat syntax: "body.some.path" or "headers.X-Name" as a top-level key.
			results = append(results, evalFlatKey(field, spec, resp)...)
		}
	}

	return results
}

func evalFlatKey(field string, spec interface{}, resp ResponseContext) []model.AssertionResult {
	switch {
	case strings.HasPrefix(field, "body."):
		path := quoteJMESSegments(strings.TrimPrefix(field, "body."))
		actual, _ := jmes.Search(path, map[string]interface{}{"body": resp.Body})
		return []model.AssertionResult{runCheck(field, map[string]interface{}{"equals": spec}, actual)}
	case strings.HasPrefix(field, "headers."):
		name := strings.TrimPrefix(field, "headers.")
		actual := lookupHeader(resp.Headers, name)
		return []model.AssertionResult{runCheck(field, map[string]interface{}{"equals": spec}, actual)}
	default:
		return nil
	}
}

func evalField(name string, spec interface{}, actual interface{}) []model.AssertionResult {
	if checks, ok := spec.(map[string]interface{}); ok {
		return runChecks(name, checks, actual)
	}
	return []model.AssertionResult{runCheck(name, map[string]interface{}{"equals": spec}, actual)}
}

func evalHeaders(spec interface{}, headers map[string]string) []model.AssertionResult {
	checksByName, ok := spec.(map[string]interface{})
	if !ok {
		return nil
	}
	var results []model.AssertionResult
	for name, checkSpec := range checksByName {
		actual := lookupHeader(headers, name)
		results = append(results, evalField("headers."+name, checkSpec, actual)...)
	}
	return results
}

func evalBody(spec interface{}, body interface{}) []model.AssertionResult {
	checks, ok := spec.(map[string]interface{})
	if !ok {
		return nil
	}
	var results []model.AssertionResult
	for path, checkSpec := range flattenBodyChecks(checks, "") {
		jmesPath := "body." + quoteJMESSegments(path)
		actual, _ := jmes.Search(jmesPath, map[string]interface{}{"body": body})
		results = append(results, evalField("body."+path, checkSpec, actual)...)
	}
	return results
}

// flattenBodyChecks descends nested map specs until it hits a map that looks
// like a check set (contains a recognised check key), treating that as the
// leaf. This lets callers write either `body: {token: {exists: true}}` or
// `body: {user: {name: {equals: "a"}}}`.
func flattenBodyChecks(spec map[string]interface{}, prefix string) map[string]interface{} {
	out := make(map[string]interface{})
	for key, value := range spec {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok && !looksLikeCheckSet(nested) {
			for k, v := range flattenBodyChecks(nested, path) {
				out[k] = v
			}
			continue
		}
		out[path] = value
	}
	return out
}

var checkKeys = map[string]bool{
	"equals": true, "not_equals": true, "contains": true, "greater_than": true,
	"less_than": true, "regex": true, "pattern": true, "exists": true, "not_null": true,
	"type": true, "length": true, "minLength": true, "notEmpty": true,
}

func looksLikeCheckSet(m map[string]interface{}) bool {
	for key := range m {
		if checkKeys[key] {
			return true
		}
	}
	return false
}

func evalCustom(spec interface{}, resp ResponseContext) []model.AssertionResult {
	list, ok := spec.([]interface{})
	if !ok {
		return nil
	}

	var results []model.AssertionResult
	for _, item := range list {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		condition, _ := entry["condition"].(string)
		message, _ := entry["message"].(string)

		condition = strings.TrimPrefix(strings.TrimPrefix(condition, "$js:"), "js:")

		ok, err := jsexpr.EvalBool(condition, jsexpr.Context{
			Extra: map[string]interface{}{
				"status_code":   resp.StatusCode,
				"headers":       resp.Headers,
				"body":          resp.Body,
				"response_time": resp.ResponseTimeMs,
			},
		})

		result := model.AssertionResult{Field: fieldOrDefault(name, "custom"), Expected: true, Actual: ok, Passed: ok}
		if err != nil {
			result.Passed = false
			result.Message = fmt.Sprintf("%s: %v", message, err)
		} else if !ok && message != "" {
			result.Message = message
		}
		results = append(results, result)
	}
	return results
}

func fieldOrDefault(name, def string) string {
	if name == "" {
		return def
	}
	return name
}

func runChecks(field string, checks map[string]interface{}, actual interface{}) []model.AssertionResult {
	var results []model.AssertionResult
	for check, expected := range checks {
		results = append(results, runCheck(field, map[string]interface{}{check: expected}, actual))
	}
	return results
}

func runCheck(field string, checkSet map[string]interface{}, actual interface{}) model.AssertionResult {
	for check, expected := range checkSet {
		switch check {
		case "equals":
			return result(field, expected, actual, deepEqualTolerant(expected, actual))
		case "not_equals":
			return result(field, expected, actual, !deepEqualTolerant(expected, actual))
		case "contains":
			return result(field, expected, actual, containsValue(actual, expected))
		case "greater_than":
			return result(field, expected, actual, compareNumeric(actual, expected) > 0)
		case "less_than":
			return result(field, expected, actual, compareNumeric(actual, expected) < 0)
		case "regex", "pattern":
			return result(field, expected, actual, regexMatch(actual, expected))
		case "exists", "not_null":
			return result(field, expected, actual, actual != nil)
		case "type":
			return result(field, expected, actual, typeLabel(actual) == expected)
		case "length":
			return evalLength(field, expected, actual)
		case "minLength":
			return result(field, expected, actual, lengthOf(actual) >= toFloat(expected))
		case "notEmpty":
			return result(field, expected, actual, lengthOf(actual) > 0)
		}
	}
	return model.AssertionResult{Field: field, Passed: false, Message: "no recognised check"}
}

func evalLength(field string, expected interface{}, actual interface{}) model.AssertionResult {
	length := lengthOf(actual)
	if sub, ok := expected.(map[string]interface{}); ok {
		passed := true
		for k, v := range sub {
			switch k {
			case "greater_than":
				passed = passed && float64(length) > toFloat(v)
			case "less_than":
				passed = passed && float64(length) < toFloat(v)
			case "equals":
				passed = passed && float64(length) == toFloat(v)
			}
		}
		return result(field+".length", expected, length, passed)
	}
	return result(field+".length", expected, length, float64(length) == toFloat(expected))
}

func result(field string, expected, actual interface{}, passed bool) model.AssertionResult {
	msg := ""
	if !passed {
		msg = fmt.Sprintf("expected %v, got %v", expected, actual)
	}
	return model.AssertionResult{Field: field, Expected: expected, Actual: actual, Passed: passed, Message: msg}
}

func lookupHeader(headers map[string]string, name string) interface{} {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

// quoteJMESSegments quotes any dotted-path segment containing characters
// outside [A-Za-z0-9_.] per JMESPath literal rules (spec §4.5).
func quoteJMESSegments(path string) string {
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		if jmesLiteralDisallowed.MatchString(seg) {
			segments[i] = strconv.Quote(seg)
		}
	}
	return strings.Join(segments, ".")
}

func deepEqualTolerant(expected, actual interface{}) bool {
	if reflect.DeepEqual(expected, actual) {
		return true
	}
	// type-tolerant: coerce number<->string and bool<->string at the primitive level.
	if es, ok := asString(expected); ok {
		if as, ok := asString(actual); ok {
			return es == as
		}
	}
	return false
}

func asString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	default:
		return "", false
	}
}

func containsValue(actual, expected interface{}) bool {
	switch a := actual.(type) {
	case string:
		es, _ := asString(expected)
		return strings.Contains(a, es)
	case []interface{}:
		for _, elem := range a {
			if deepEqualTolerant(expected, elem) {
				return true
			}
		}
		return false
	case map[string]interface{}:
		es, _ := asString(expected)
		_, ok := a[es]
		return ok
	default:
		return false
	}
}

func compareNumeric(actual, expected interface{}) int {
	a, b := toFloat(actual), toFloat(expected)
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

func regexMatch(actual, pattern interface{}) bool {
	s, ok := actual.(string)
	if !ok {
		return false
	}
	p, ok := pattern.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func typeLabel(v interface{}) interface{} {
	switch v.(type) {
	case nil:
		return "null"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int, int64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func lengthOf(v interface{}) int {
	switch val := v.(type) {
	case string:
		return len(val)
	case []interface{}:
		return len(val)
	default:
		return 0
	}
}
