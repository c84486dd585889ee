package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/flowtest/internal/config"
	"github.com/alexisbeaulieu97/flowtest/internal/registry"
	"github.com/alexisbeaulieu97/flowtest/internal/variables"
)

type recordingLogger struct {
	entries []string
}

func (l *recordingLogger) Log(level, message string, fields map[string]interface{}) {
	l.entries = append(l.entries, level+":"+message)
}

type recordingMetrics struct {
	names  []string
	values []interface{}
}

func (m *recordingMetrics) Record(name string, value interface{}, tags map[string]string, timestamp string) {
	m.names = append(m.names, name)
	m.values = append(m.values, value)
}

func TestRunComputeAssignsRuntimeVariable(t *testing.T) {
	t.Parallel()

	vars := variables.New(registry.New())
	vars.Runtime["base"] = "hello"

	r := &Runner{}
	results := r.Run(context.Background(), []config.Hook{
		{Compute: map[string]string{"greeting": "{{base}} world"}},
	}, vars, variables.ScriptContext{}, "step")

	require.Len(t, results, 1)
	require.True(t, results[0].Success)
	require.Equal(t, "hello world", vars.Runtime["greeting"])
}

func TestRunValidateRecordsFailureButHookSucceeds(t *testing.T) {
	t.Parallel()

	vars := variables.New(registry.New())
	r := &Runner{}
	results := r.Run(context.Background(), []config.Hook{
		{Validate: []config.HookValidation{{Expression: "1 === 2", Message: "nope"}}},
	}, vars, variables.ScriptContext{}, "step")

	require.Len(t, results, 1)
	require.True(t, results[0].Success)
	require.False(t, results[0].Validations.Passed)
	require.Len(t, results[0].Validations.Failures, 1)
}

func TestRunScriptErrorFailsHookAndStopsSubsequent(t *testing.T) {
	t.Parallel()

	vars := variables.New(registry.New())
	r := &Runner{}
	logger := &recordingLogger{}
	r.Logger = logger

	results := r.Run(context.Background(), []config.Hook{
		{Script: "throw new Error('boom')"},
		{Log: &config.HookLog{Message: "should not run"}},
	}, vars, variables.ScriptContext{}, "step")

	require.Len(t, results, 1)
	require.False(t, results[0].Success)
	require.Error(t, results[0].Error)
}

func TestRunExportsWritesToGlobalRegistry(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	vars := variables.New(reg)
	vars.Runtime["token"] = "abc123"

	r := &Runner{}
	results := r.Run(context.Background(), []config.Hook{
		{Exports: []string{"token"}},
	}, vars, variables.ScriptContext{}, "Login Step")

	require.Len(t, results, 1)
	require.True(t, results[0].Success)

	v, ok := reg.Get("hook_login-step", "token")
	require.True(t, ok)
	require.Equal(t, "abc123", v)
}

func TestRunMetricRecordsThroughSink(t *testing.T) {
	t.Parallel()

	vars := variables.New(registry.New())
	metrics := &recordingMetrics{}
	r := &Runner{Metrics: metrics}

	results := r.Run(context.Background(), []config.Hook{
		{Metric: &config.HookMetric{Name: "latency", Value: float64(120)}},
	}, vars, variables.ScriptContext{}, "step")

	require.Len(t, results, 1)
	require.Equal(t, []string{"latency"}, metrics.names)
	require.Equal(t, float64(120), metrics.values[0])
}
