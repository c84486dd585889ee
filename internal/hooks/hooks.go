// Package hooks implements the hook executor (spec §4.6): for each hook
// attached to a step's before/after list, it runs the present action keys
// in fixed order (compute, capture, validate, log, metric, script, call,
// wait, exports), aggregating a HookResult per hook. The first hook whose
// success=false stops further hooks for that step.
package hooks

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alexisbeaulieu97/flowtest/internal/config"
	"github.com/alexisbeaulieu97/flowtest/internal/jsexpr"
	"github.com/alexisbeaulieu97/flowtest/internal/model"
	"github.com/alexisbeaulieu97/flowtest/internal/variables"
)

// Caller invokes the call strategy on behalf of a hook's `call` action. It
// is the seam to internal/call; internal/dispatch closes it over the call
// stack active on the dispatching context (see dispatch.New). vars and
// script are the same ones the enclosing step is running under.
type Caller func(ctx context.Context, spec *config.CallSpec, vars *variables.Context, script variables.ScriptContext) (*model.CallResult, error)

// Logger is the minimal logging seam a hook's `log` action writes through.
type Logger interface {
	Log(level, message string, fields map[string]interface{})
}

// MetricsSink is the minimal seam a hook's `metric` action writes through.
type MetricsSink interface {
	Record(name string, value interface{}, tags map[string]string, timestamp string)
}

// Runner executes a step's hook list against a variable Context.
type Runner struct {
	Caller  Caller
	Logger  Logger
	Metrics MetricsSink
}

// Run executes hooks in list order, stopping at the first hook whose
// success is false. script supplies the response/captured/request bindings
// available to compute/capture/validate/script actions.
func (r *Runner) Run(ctx context.Context, hooksList []config.Hook, vars *variables.Context, script variables.ScriptContext, stepName string) []model.HookResult {
	var results []model.HookResult
	for _, hook := range hooksList {
		result := r.runOne(ctx, hook, vars, script, stepName)
		results = append(results, result)
		if !result.Success {
			break
		}
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, hook config.Hook, vars *variables.Context, script variables.ScriptContext, stepName string) model.HookResult {
	result := model.HookResult{Success: true}

	if len(hook.Compute) > 0 {
		r.runCompute(hook.Compute, vars, script)
	}

	if len(hook.Capture) > 0 {
		ctxObject := captureContext(vars, script)
		vars.Capture(hook.Capture, ctxObject)
	}

	if len(hook.Validate) > 0 {
		result.Validations = r.runValidate(hook.Validate, vars, script)
	}

	if hook.Log != nil {
		r.runLog(hook.Log, vars, script)
	}

	if hook.Metric != nil {
		r.runMetric(hook.Metric, vars, script)
	}

	if hook.Script != "" {
		if _, err := jsexpr.Eval(hook.Script, jsexpr.Context{
			Variables: vars.AllForInterpolation(),
			Response:  script.Response,
			Captured:  script.Captured,
			Request:   script.Request,
		}); err != nil {
			result.Success = false
			result.Error = err
			return result
		}
	}

	if hook.Call != nil {
		if r.Caller == nil {
			result.Success = false
			result.Error = fmt.Errorf("hook declares call but no call service is attached")
			return result
		}
		if _, err := r.Caller(ctx, hook.Call, vars, script); err != nil {
			result.Success = false
			result.Error = err
			return result
		}
	}

	if hook.WaitMs > 0 {
		select {
		case <-time.After(time.Duration(hook.WaitMs) * time.Millisecond):
		case <-ctx.Done():
		}
	}

	if len(hook.Exports) > 0 {
		nodeID := "hook_" + model.NormalizeStepID(stepName)
		for _, name := range hook.Exports {
			if v, ok := vars.Get(name); ok {
				vars.Registry.SetExported(nodeID, name, v)
			}
		}
	}

	return result
}

func (r *Runner) runCompute(compute map[string]string, vars *variables.Context, script variables.ScriptContext) {
	for name, template := range compute {
		value, err := vars.Interpolate(template, script)
		if err != nil {
			r.log("warn", fmt.Sprintf("compute %s failed: %v", name, err), nil)
			continue
		}
		vars.Set(name, value)
	}
}

func (r *Runner) runValidate(validations []config.HookValidation, vars *variables.Context, script variables.ScriptContext) model.ValidationOutcome {
	outcome := model.ValidationOutcome{Passed: true}
	for _, v := range validations {
		severity := v.Severity
		if severity == "" {
			severity = "error"
		}
		ok, err := jsexpr.EvalBool(v.Expression, jsexpr.Context{
			Variables: vars.AllForInterpolation(),
			Response:  script.Response,
			Captured:  script.Captured,
			Request:   script.Request,
		})
		if err != nil || !ok {
			outcome.Passed = false
			outcome.Failures = append(outcome.Failures, model.ValidationFailure{
				Expression: v.Expression,
				Message:    v.Message,
				Severity:   severity,
			})
		}
	}
	return outcome
}

func (r *Runner) runLog(logSpec *config.HookLog, vars *variables.Context, script variables.ScriptContext) {
	level := logSpec.Level
	if level == "" {
		level = "info"
	}
	message, err := vars.Interpolate(logSpec.Message, script)
	if err != nil {
		message = logSpec.Message
	}
	fields := make(map[string]interface{}, len(logSpec.Metadata))
	for k, v := range logSpec.Metadata {
		resolved, err := vars.InterpolateStructured(v, script)
		if err != nil {
			resolved = v
		}
		fields[k] = resolved
	}
	r.log(level, fmt.Sprintf("%v", message), fields)
}

func (r *Runner) runMetric(metricSpec *config.HookMetric, vars *variables.Context, script variables.ScriptContext) {
	name, err := vars.Interpolate(metricSpec.Name, script)
	if err != nil {
		name = metricSpec.Name
	}

	value, err := vars.InterpolateStructured(metricSpec.Value, script)
	if err != nil {
		value = metricSpec.Value
	}
	if _, wasNumeric := toNumeric(metricSpec.Value); wasNumeric {
		if s, ok := value.(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				value = f
			}
		}
	}

	tags := make(map[string]string, len(metricSpec.Tags))
	for k, v := range metricSpec.Tags {
		resolved, err := vars.Interpolate(v, script)
		if err != nil {
			tags[k] = v
			continue
		}
		tags[k] = fmt.Sprintf("%v", resolved)
	}

	if r.Metrics != nil {
		r.Metrics.Record(fmt.Sprintf("%v", name), value, tags, metricSpec.Timestamp)
	}
}

func toNumeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func (r *Runner) log(level, message string, fields map[string]interface{}) {
	if r.Logger == nil {
		return
	}
	r.Logger.Log(level, message, fields)
}

func captureContext(vars *variables.Context, script variables.ScriptContext) map[string]interface{} {
	return map[string]interface{}{
		"variables": vars.AllForInterpolation(),
		"response":  script.Response,
		"captured":  script.Captured,
	}
}
