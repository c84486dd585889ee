package assertion

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateStatusCodeShorthand(t *testing.T) {
	t.Parallel()

	resp := ResponseContext{StatusCode: 200}
	results := Evaluate(map[string]interface{}{"status_code": 200}, resp)
	require.Len(t, results, 1)
	require.True(t, results[0].Passed)
}

func TestEvaluateBodyFlatKey(t *testing.T) {
	t.Parallel()

	resp := ResponseContext{Body: map[string]interface{}{"token": "abc123"}}
	results := Evaluate(map[string]interface{}{"body.token": "abc123"}, resp)
	require.Len(t, results, 1)
	require.True(t, results[0].Passed)
}

func TestEvaluateBodyStructuredNested(t *testing.T) {
	t.Parallel()

	resp := ResponseContext{Body: map[string]interface{}{"user": map[string]interface{}{"name": "alice"}}}
	results := Evaluate(map[string]interface{}{
		"body": map[string]interface{}{
			"user": map[string]interface{}{
				"name": map[string]interface{}{"equals": "alice"},
			},
		},
	}, resp)
	require.Len(t, results, 1)
	require.True(t, results[0].Passed)
}

func TestEvaluateHeadersCaseInsensitive(t *testing.T) {
	t.Parallel()

	resp := ResponseContext{Headers: map[string]string{"Content-Type": "application/json"}}
	results := Evaluate(map[string]interface{}{
		"headers": map[string]interface{}{
			"content-type": map[string]interface{}{"equals": "application/json"},
		},
	}, resp)
	require.Len(t, results, 1)
	require.True(t, results[0].Passed)
}

func TestEvaluateContainsArray(t *testing.T) {
	t.Parallel()

	resp := ResponseContext{Body: map[string]interface{}{"tags": []interface{}{"a", "b", "c"}}}
	results := Evaluate(map[string]interface{}{
		"body": map[string]interface{}{
			"tags": map[string]interface{}{"contains": "b"},
		},
	}, resp)
	require.Len(t, results, 1)
	require.True(t, results[0].Passed)
}

func TestEvaluateTypeToleranceEquals(t *testing.T) {
	t.Parallel()

	resp := ResponseContext{Body: map[string]interface{}{"count": "5"}}
	results := Evaluate(map[string]interface{}{
		"body": map[string]interface{}{
			"count": map[string]interface{}{"equals": float64(5)},
		},
	}, resp)
	require.Len(t, results, 1)
	require.True(t, results[0].Passed)
}

func TestEvaluateLengthStructured(t *testing.T) {
	t.Parallel()

	resp := ResponseContext{Body: map[string]interface{}{"items": []interface{}{"a", "b", "c"}}}
	results := Evaluate(map[string]interface{}{
		"body": map[string]interface{}{
			"items": map[string]interface{}{"length": map[string]interface{}{"greater_than": float64(2)}},
		},
	}, resp)
	require.Len(t, results, 1)
	require.True(t, results[0].Passed)
}

func TestEvaluateResponseTime(t *testing.T) {
	t.Parallel()

	resp := ResponseContext{ResponseTimeMs: 120}
	results := Evaluate(map[string]interface{}{
		"response_time_ms": map[string]interface{}{"less_than": float64(500)},
	}, resp)
	require.Len(t, results, 1)
	require.True(t, results[0].Passed)
}

func TestEvaluateCustomAssertion(t *testing.T) {
	t.Parallel()

	resp := ResponseContext{StatusCode: 201}
	results := Evaluate(map[string]interface{}{
		"custom": []interface{}{
			map[string]interface{}{"name": "created", "condition": "$js:status_code === 201"},
		},
	}, resp)
	require.Len(t, results, 1)
}
