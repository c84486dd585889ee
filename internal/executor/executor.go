// Package executor implements the suite executor (spec §4.2): the
// per-suite protocol that runs one suite's steps against a fresh variable
// context, applies runtime step filters, and aggregates a SuiteResult. It
// is the SuiteRunner the scheduler (internal/scheduler) drives.
package executor

import (
	"context"
	"time"

	"github.com/alexisbeaulieu97/flowtest/internal/call"
	"github.com/alexisbeaulieu97/flowtest/internal/config"
	"github.com/alexisbeaulieu97/flowtest/internal/dispatch"
	"github.com/alexisbeaulieu97/flowtest/internal/httpclient"
	"github.com/alexisbeaulieu97/flowtest/internal/model"
	"github.com/alexisbeaulieu97/flowtest/internal/ports"
	"github.com/alexisbeaulieu97/flowtest/internal/registry"
	"github.com/alexisbeaulieu97/flowtest/internal/variables"
)

// Filters is the runtime step-selection config (spec §6). Priority and
// suite_name filters operate at suite-selection time, before a suite ever
// reaches the executor (see cmd/flowtest's catalog filtering); only
// step_ids applies within a running suite.
type Filters struct {
	StepIDs []string // plain or "suite::step"/"suite:step"
}

// alwaysIncludeKeys are always present in a step's available-variable
// projection regardless of relevance filtering (spec §4.2).
var alwaysIncludeKeys = []string{"base_url", "suite_name", "node_id"}

// alwaysExcludeKeys are redacted from the available-variable projection to
// avoid leaking the process environment into suite results.
var alwaysExcludeKeys = map[string]bool{"PATH": true, "HOME": true, "USER": true, "SHELL": true}

// Executor runs one suite at a time.
type Executor struct {
	Dispatcher *dispatch.Dispatcher
	HTTPClient httpclient.Client
	Registry   *registry.Registry
	Logger     ports.Logger
	Publisher  ports.EventPublisher
	Filters    Filters
}

// Run executes suite's steps end to end and returns its SuiteResult. ctx
// carries a fresh call.Stack (dispatch.WithStack) scoped to this suite.
func (e *Executor) Run(ctx context.Context, suite *config.Suite) model.SuiteResult {
	start := time.Now()
	ctx = dispatch.WithStack(ctx, call.NewStack(0))
	e.publish(ctx, ports.EventSuiteStart, map[string]interface{}{"suite_id": suite.NodeID, "suite_name": suite.Name})

	vars := variables.New(e.Registry)
	e.Registry.RegisterExports(suite.NodeID, suite.Name, suite.Exports, suite.ExportsOptional)

	vars.ResetScopes()
	installSuiteVariables(vars, suite.Variables)

	baseURL := suite.BaseURL
	if baseURL != "" {
		resolved, err := vars.Interpolate(baseURL, variables.ScriptContext{})
		if err == nil {
			baseURL = toString(resolved)
		}
		vars.Set("base_url", baseURL)
		if e.HTTPClient != nil {
			e.HTTPClient.SetBaseURL(baseURL)
		}
	}
	vars.Set("suite_name", suite.Name)
	vars.Set("node_id", suite.NodeID)

	simple, qualified := e.filterSets()

	stepResults := make([]model.StepResult, 0, len(suite.Steps))
	failed := false

	for i, step := range suite.Steps {
		identifier := model.NewStepIdentifier(suite.NodeID, step.StepID, i)
		step.StepID = identifier.StepID

		if !stepMatchesFilter(identifier, simple, qualified) {
			continue
		}

		e.publish(ctx, ports.EventStepStart, map[string]interface{}{"suite_id": suite.NodeID, "step_id": identifier.StepID})

		if step.Skip != nil && step.Skip.When == "pre_execution" {
			if vars.EvaluateSkip(step.Skip.Condition, variables.ScriptContext{}, baseSkipContext(vars)) {
				result := model.StepResult{StepID: identifier.StepID, Identifier: identifier, Status: model.StepStatusSkipped, Timestamp: time.Now()}
				stepResults = append(stepResults, result)
				e.publish(ctx, ports.EventStepEnd, map[string]interface{}{"suite_id": suite.NodeID, "step_id": identifier.StepID, "status": string(result.Status)})
				continue
			}
		}

		result, err := e.Dispatcher.Dispatch(ctx, suite, step, vars, baseURL, 0)
		if err != nil {
			result = &model.StepResult{StepID: identifier.StepID, Identifier: identifier, Status: model.StepStatusFailure, Error: err, Message: err.Error(), Timestamp: time.Now()}
		}
		result.Identifier = identifier

		if step.Skip != nil && step.Skip.When == "post_capture" {
			postCtx := postCaptureContext(vars, result)
			if vars.EvaluateSkip(step.Skip.Condition, variables.ScriptContext{Response: result.ResponseBody, Captured: result.CapturedVariables}, postCtx) {
				result.Status = model.StepStatusSkipped
			}
		}

		result.AvailableVariables = projectVariables(vars, step)

		stepResults = append(stepResults, *result)
		e.publish(ctx, ports.EventStepEnd, map[string]interface{}{"suite_id": suite.NodeID, "step_id": identifier.StepID, "status": string(result.Status)})

		if result.Status == model.StepStatusFailure {
			failed = true
			if !step.ContinueOnFailure && !suite.ContinueOnError {
				break
			}
		}
	}

	missing := resolveExports(e.Registry, suite, vars)
	if len(missing) > 0 && e.Logger != nil {
		e.Logger.Warn(ctx, "declared required export(s) not published", "suite_id", suite.NodeID, "names", joinStrings(missing))
	}

	status := model.SuiteStatusResolved
	errMessage := ""
	if failed {
		status = model.SuiteStatusFailed
		errMessage = "one or more steps failed"
	}

	result := model.SuiteResult{
		NodeID:       suite.NodeID,
		Name:         suite.Name,
		Status:       status,
		ErrorMessage: errMessage,
		Duration:     time.Since(start),
		DurationMs:   time.Since(start).Milliseconds(),
		StepResults:  stepResults,
	}

	e.publish(ctx, ports.EventSuiteEnd, map[string]interface{}{"suite_id": suite.NodeID, "status": string(status)})

	return result
}

func (e *Executor) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if e.Publisher == nil {
		return
	}
	_ = e.Publisher.Publish(ctx, simpleEvent{eventType: eventType, data: data})
}

type simpleEvent struct {
	eventType string
	data      map[string]interface{}
}

func (s simpleEvent) EventType() string    { return s.eventType }
func (s simpleEvent) Payload() interface{} { return s.data }

func installSuiteVariables(vars *variables.Context, raw map[string]interface{}) {
	for name, value := range raw {
		resolved, err := vars.InterpolateStructured(value, variables.ScriptContext{})
		if err != nil {
			resolved = value
		}
		vars.Suite[name] = resolved
	}
}

func (e *Executor) filterSets() (map[string]bool, map[string]bool) {
	simple := make(map[string]bool)
	qualified := make(map[string]bool)
	for _, raw := range e.Filters.StepIDs {
		if i := indexOfString(raw, ":"); i >= 0 && indexOfString(raw, "::") < 0 {
			raw = raw[:i] + "::" + raw[i+1:]
		}
		normalized := model.NormalizeStepID(raw)
		if containsAny(raw, "::", ":") {
			qualified[normalized] = true
			continue
		}
		simple[normalized] = true
	}
	return simple, qualified
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(sub) > 0 && indexOfString(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOfString(s, sub string) int {
	n, m := len(s), len(sub)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}

func stepMatchesFilter(identifier model.StepIdentifier, simple, qualified map[string]bool) bool {
	if len(simple) == 0 && len(qualified) == 0 {
		return true
	}
	if simple[model.NormalizeStepID(identifier.StepID)] {
		return true
	}
	if qualified[identifier.NormalizedQualifiedStepID] {
		return true
	}
	return false
}

func baseSkipContext(vars *variables.Context) map[string]interface{} {
	return map[string]interface{}{"variables": vars.AllForInterpolation()}
}

func postCaptureContext(vars *variables.Context, result *model.StepResult) map[string]interface{} {
	return map[string]interface{}{
		"status_code": result.StatusCode,
		"headers":     result.ResponseHeaders,
		"body":        result.ResponseBody,
		"variables":   vars.AllForInterpolation(),
		"captured":    result.CapturedVariables,
	}
}

func projectVariables(vars *variables.Context, step config.Step) map[string]interface{} {
	all := vars.AllForInterpolation()
	projected := make(map[string]interface{}, len(alwaysIncludeKeys)+len(step.Capture))
	for _, key := range alwaysIncludeKeys {
		if v, ok := all[key]; ok {
			projected[key] = v
		}
	}
	for name := range step.Capture {
		if v, ok := all[name]; ok {
			projected[name] = v
		}
	}
	for key, value := range all {
		if alwaysExcludeKeys[key] {
			continue
		}
		if _, exists := projected[key]; !exists {
			if isRecentCaptureCandidate(key) {
				projected[key] = value
			}
		}
	}
	return projected
}

func isRecentCaptureCandidate(key string) bool {
	return len(key) > 0 && key[0] != '_'
}

func resolveExports(reg *registry.Registry, suite *config.Suite, vars *variables.Context) []string {
	for _, name := range append(append([]string{}, suite.Exports...), suite.ExportsOptional...) {
		if v, ok := vars.Get(name); ok {
			reg.SetExported(suite.NodeID, name, v)
		}
	}
	return reg.MissingRequired(suite.NodeID)
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func joinStrings(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}
