// Package dispatch implements the step dispatcher (spec §4.3): strategy
// selection by priority (iterate > call > scenarios > input > request) and
// the five strategies themselves. It owns the concrete wiring that closes
// the hooks.Caller and call.StepDispatcher injection seams defined by
// internal/hooks and internal/call.
package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/flowtest/internal/assertion"
	"github.com/alexisbeaulieu97/flowtest/internal/call"
	"github.com/alexisbeaulieu97/flowtest/internal/config"
	"github.com/alexisbeaulieu97/flowtest/internal/hooks"
	"github.com/alexisbeaulieu97/flowtest/internal/httpclient"
	"github.com/alexisbeaulieu97/flowtest/internal/jsexpr"
	"github.com/alexisbeaulieu97/flowtest/internal/model"
	"github.com/alexisbeaulieu97/flowtest/internal/prompt"
	"github.com/alexisbeaulieu97/flowtest/internal/variables"
	flowtesterrors "github.com/alexisbeaulieu97/flowtest/pkg/errors"
)

type stackContextKey struct{}

// WithStack attaches a call stack to ctx, scoped to one suite execution
// (spec §4.3.3, §5: the stack is not shared across suites).
func WithStack(ctx context.Context, stack *call.Stack) context.Context {
	return context.WithValue(ctx, stackContextKey{}, stack)
}

func stackFromContext(ctx context.Context) *call.Stack {
	if s, ok := ctx.Value(stackContextKey{}).(*call.Stack); ok {
		return s
	}
	return call.NewStack(0)
}

// Dispatcher selects and runs one of the five step strategies.
type Dispatcher struct {
	HTTPClient  httpclient.Client
	Hooks       *hooks.Runner
	CallService *call.Service
	Prompter    prompt.Prompter
}

// New wires a Dispatcher from its collaborators: the call service's
// StepDispatcher seam is closed back onto the dispatcher itself, and the
// hooks runner's Caller seam is closed onto the call service, threading
// whatever call stack is active on the dispatching context (spec §4.3.3).
func New(client httpclient.Client, callService *call.Service, prompter prompt.Prompter) *Dispatcher {
	d := &Dispatcher{HTTPClient: client, CallService: callService, Prompter: prompter}
	callService.Dispatch = d.Dispatch
	d.Hooks = &hooks.Runner{
		Caller: func(ctx context.Context, spec *config.CallSpec, vars *variables.Context, script variables.ScriptContext) (*model.CallResult, error) {
			stack := stackFromContext(ctx)
			return d.CallService.Execute(ctx, spec, "", vars, script, stack)
		},
	}
	return d
}

// Dispatch selects a strategy for step and executes it. It also serves as
// the call.StepDispatcher closure for nested single-step dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, suite *config.Suite, step config.Step, vars *variables.Context, baseURL string, timeoutMs int) (*model.StepResult, error) {
	identifier := model.NewStepIdentifier(suite.NodeID, step.StepID, 0)

	switch {
	case step.Iterate != nil:
		return d.dispatchIterate(ctx, suite, step, identifier, vars, baseURL, timeoutMs)
	case step.Call != nil:
		return d.dispatchCall(ctx, suite, step, identifier, vars)
	case step.Scenarios != nil:
		return d.dispatchScenario(ctx, suite, step, identifier, vars, baseURL, timeoutMs)
	case step.Input != nil:
		return d.dispatchInput(ctx, step, identifier, vars)
	default:
		return d.dispatchRequest(ctx, suite, step, identifier, vars, baseURL, timeoutMs)
	}
}

func scriptContext(vars *variables.Context, resp interface{}, captured map[string]interface{}, req interface{}) variables.ScriptContext {
	return variables.ScriptContext{Response: resp, Captured: captured, Request: req}
}

// --- Request strategy (spec §4.3.1) ---

func (d *Dispatcher) dispatchRequest(ctx context.Context, suite *config.Suite, step config.Step, identifier model.StepIdentifier, vars *variables.Context, baseURL string, timeoutMs int) (*model.StepResult, error) {
	result := &model.StepResult{StepID: identifier.StepID, Identifier: identifier, Timestamp: time.Now()}
	start := time.Now()

	script := scriptContext(vars, nil, nil, step.Request)
	result.BeforeHooks = d.Hooks.Run(ctx, step.Before, vars, script, step.Name)
	if hookFailed(result.BeforeHooks) {
		result.Status = model.StepStatusFailure
		result.Message = "before hook failed"
		result.Duration = time.Since(start)
		return result, nil
	}

	if step.Request == nil {
		result.Status = model.StepStatusSuccess
		result.Duration = time.Since(start)
		return result, nil
	}

	reqSpec := *step.Request

	if reqSpec.PreRequestScript != "" {
		if err := mutateRequest(&reqSpec, vars, script); err != nil {
			return failResult(result, start, err)
		}
	}

	interpolated, rawURL, err := interpolateRequest(&reqSpec, vars, script, baseURL)
	if err != nil {
		return failResult(result, start, err)
	}
	result.RawURL = rawURL

	cert := interpolated.Certificate
	if cert == "" {
		cert = suite.Certificate
	}
	interpolated.Certificate = cert

	if timeoutMs > 0 && interpolated.TimeoutMs == 0 {
		interpolated.TimeoutMs = timeoutMs
	}

	resp, err := d.HTTPClient.Execute(ctx, interpolated)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = model.StepStatusFailure
		result.Error = err
		result.Message = err.Error()
		return result, nil
	}

	result.StatusCode = resp.StatusCode
	result.ResponseHeaders = resp.Headers
	result.ResponseBody = resp.Body
	result.SizeBytes = resp.SizeBytes

	if reqSpec.PostRequestScript != "" {
		if _, err := jsexpr.Eval(reqSpec.PostRequestScript, jsexpr.Context{
			Variables: vars.AllForInterpolation(),
			Response:  resp.Body,
			Request:   interpolated,
		}); err != nil {
			return failResult(result, start, err)
		}
	}

	respCtx := assertion.ResponseContext{
		StatusCode:     resp.StatusCode,
		Headers:        resp.Headers,
		Body:           resp.Body,
		ResponseTimeMs: result.Duration.Milliseconds(),
	}
	result.AssertionResults = assertion.Evaluate(step.Assertions, respCtx)

	captureCtx := map[string]interface{}{
		"status_code": resp.StatusCode,
		"headers":     resp.Headers,
		"body":        resp.Body,
		"duration_ms": result.Duration.Milliseconds(),
		"size_bytes":  resp.SizeBytes,
		"variables":   vars.AllForInterpolation(),
	}
	captured, _ := vars.Capture(step.Capture, captureCtx)
	result.CapturedVariables = captured

	afterScript := scriptContext(vars, resp.Body, captured, interpolated)
	result.AfterHooks = d.Hooks.Run(ctx, step.After, vars, afterScript, step.Name)

	result.Status = stepStatus(result.AssertionResults, result.BeforeHooks, result.AfterHooks)
	if result.Status == model.StepStatusFailure {
		result.Message = "assertion or hook failure"
	}

	applyDelay(ctx, step.Delay, vars, afterScript)

	return result, nil
}

// mutateRequest runs a step's pre_request_script against a plain map view
// of reqSpec (spec §4.3.1 step 2): goja binds Go maps by reference, so
// in-place JS mutation of request.* is observed here without a return value.
func mutateRequest(reqSpec *config.RequestSpec, vars *variables.Context, script variables.ScriptContext) error {
	headers := make(map[string]interface{}, len(reqSpec.Headers))
	for k, v := range reqSpec.Headers {
		headers[k] = v
	}
	query := make(map[string]interface{}, len(reqSpec.Query))
	for k, v := range reqSpec.Query {
		query[k] = v
	}

	target := map[string]interface{}{
		"method":  reqSpec.Method,
		"url":     reqSpec.URL,
		"headers": headers,
		"query":   query,
		"body":    reqSpec.Body,
	}

	if err := jsexpr.MutateScript(reqSpec.PreRequestScript, target, jsexpr.Context{
		Variables: vars.AllForInterpolation(),
	}); err != nil {
		return err
	}

	if v, ok := target["method"].(string); ok {
		reqSpec.Method = v
	}
	if v, ok := target["url"].(string); ok {
		reqSpec.URL = v
	}
	if v, ok := target["body"]; ok {
		reqSpec.Body = v
	}
	if h, ok := target["headers"].(map[string]interface{}); ok {
		reqSpec.Headers = stringifyMap(h)
	}
	if q, ok := target["query"].(map[string]interface{}); ok {
		reqSpec.Query = stringifyMap(q)
	}
	return nil
}

func stringifyMap(m map[string]interface{}) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

func interpolateRequest(reqSpec *config.RequestSpec, vars *variables.Context, script variables.ScriptContext, baseURL string) (httpclient.Request, string, error) {
	rawURL := reqSpec.URL

	url := reqSpec.URL
	if baseURL != "" && !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") && !strings.Contains(url, "{{base_url}}") {
		url = "{{base_url}}/" + strings.TrimPrefix(url, "/")
	}

	if baseURL != "" {
		vars.Set("base_url", baseURL)
	}

	interpolatedURL, err := vars.Interpolate(url, script)
	if err != nil {
		return httpclient.Request{}, rawURL, err
	}

	headers := make(map[string]string, len(reqSpec.Headers))
	for k, v := range reqSpec.Headers {
		resolved, err := vars.Interpolate(v, script)
		if err != nil {
			return httpclient.Request{}, rawURL, err
		}
		headers[k] = fmt.Sprintf("%v", resolved)
	}

	query := make(map[string]string, len(reqSpec.Query))
	for k, v := range reqSpec.Query {
		resolved, err := vars.Interpolate(v, script)
		if err != nil {
			return httpclient.Request{}, rawURL, err
		}
		query[k] = fmt.Sprintf("%v", resolved)
	}

	body, err := vars.InterpolateStructured(reqSpec.Body, script)
	if err != nil {
		return httpclient.Request{}, rawURL, err
	}

	return httpclient.Request{
		Method:      reqSpec.Method,
		URL:         fmt.Sprintf("%v", interpolatedURL),
		Headers:     headers,
		Query:       query,
		Body:        body,
		TimeoutMs:   reqSpec.TimeoutMs,
		Certificate: reqSpec.Certificate,
	}, rawURL, nil
}

func applyDelay(ctx context.Context, delay *config.Delay, vars *variables.Context, script variables.ScriptContext) {
	if delay == nil {
		return
	}
	var ms int
	switch {
	case delay.Fixed != nil:
		ms = *delay.Fixed
	case delay.Template != "":
		resolved, err := vars.Interpolate(delay.Template, script)
		if err == nil {
			if n, err := strconv.Atoi(fmt.Sprintf("%v", resolved)); err == nil {
				ms = n
			}
		}
	case delay.IsRange:
		if delay.Max > delay.Min {
			ms = delay.Min + rand.Intn(delay.Max-delay.Min+1)
		} else {
			ms = delay.Min
		}
	}
	if ms <= 0 {
		return
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-ctx.Done():
	}
}

func hookFailed(results []model.HookResult) bool {
	for _, r := range results {
		if !r.Success {
			return true
		}
	}
	return false
}

func stepStatus(assertions []model.AssertionResult, before, after []model.HookResult) model.StepStatus {
	if hookFailed(before) || hookFailed(after) {
		return model.StepStatusFailure
	}
	for _, a := range assertions {
		if !a.Passed {
			return model.StepStatusFailure
		}
	}
	return model.StepStatusSuccess
}

func failResult(result *model.StepResult, start time.Time, err error) (*model.StepResult, error) {
	result.Status = model.StepStatusFailure
	result.Error = err
	result.Message = err.Error()
	result.Duration = time.Since(start)
	return result, nil
}

// --- Input strategy (spec §4.3.2) ---

func (d *Dispatcher) dispatchInput(ctx context.Context, step config.Step, identifier model.StepIdentifier, vars *variables.Context) (*model.StepResult, error) {
	result := &model.StepResult{StepID: identifier.StepID, Identifier: identifier, Timestamp: time.Now()}
	start := time.Now()

	values, err := d.Prompter.Prompt(ctx, step.Input.Prompts)
	if err != nil {
		return failResult(result, start, flowtesterrors.NewExecutionError(identifier.StepID, err))
	}

	for name, v := range values {
		vars.Set(name, v)
	}
	result.CapturedVariables = values
	result.Status = model.StepStatusSuccess
	result.Duration = time.Since(start)
	return result, nil
}

// --- Call strategy (spec §4.3.3) ---

func (d *Dispatcher) dispatchCall(ctx context.Context, suite *config.Suite, step config.Step, identifier model.StepIdentifier, vars *variables.Context) (*model.StepResult, error) {
	result := &model.StepResult{StepID: identifier.StepID, Identifier: identifier, Timestamp: time.Now()}
	start := time.Now()

	script := scriptContext(vars, nil, nil, nil)
	result.BeforeHooks = d.Hooks.Run(ctx, step.Before, vars, script, step.Name)
	if hookFailed(result.BeforeHooks) {
		return failResult(result, start, fmt.Errorf("before hook failed"))
	}

	stack := stackFromContext(ctx)
	callResult, err := d.CallService.Execute(ctx, step.Call, suite.NodeID, vars, script, stack)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = model.StepStatusFailure
		result.Error = err
		result.Message = err.Error()
		return result, nil
	}

	result.CallResult = callResult
	result.CapturedVariables = callResult.PropagatedVariables
	result.AfterHooks = d.Hooks.Run(ctx, step.After, vars, script, step.Name)
	result.Status = stepStatus(nil, result.BeforeHooks, result.AfterHooks)
	return result, nil
}

// --- Scenario strategy (spec §4.3.4) ---

func (d *Dispatcher) dispatchScenario(ctx context.Context, suite *config.Suite, step config.Step, identifier model.StepIdentifier, vars *variables.Context, baseURL string, timeoutMs int) (*model.StepResult, error) {
	result := &model.StepResult{StepID: identifier.StepID, Identifier: identifier, Timestamp: time.Now()}
	start := time.Now()

	var (
		respBody interface{}
		respCtx  assertion.ResponseContext
	)

	if step.Scenarios.Request != nil {
		requestStep := step
		requestStep.Scenarios = nil
		requestStep.Request = step.Scenarios.Request
		reqResult, err := d.dispatchRequest(ctx, suite, requestStep, identifier, vars, baseURL, timeoutMs)
		if err != nil {
			return failResult(result, start, err)
		}
		result.BeforeHooks = reqResult.BeforeHooks
		result.AfterHooks = reqResult.AfterHooks
		result.StatusCode = reqResult.StatusCode
		result.ResponseHeaders = reqResult.ResponseHeaders
		result.ResponseBody = reqResult.ResponseBody
		result.RawURL = reqResult.RawURL
		respBody = reqResult.ResponseBody
		respCtx = assertion.ResponseContext{StatusCode: reqResult.StatusCode, Headers: reqResult.ResponseHeaders, Body: reqResult.ResponseBody}
		if reqResult.Status == model.StepStatusFailure && !step.ContinueOnFailure {
			result.Status = model.StepStatusFailure
			result.Message = reqResult.Message
			result.Duration = time.Since(start)
			return result, nil
		}
	}

	script := scriptContext(vars, respBody, nil, nil)
	mergedCtx := map[string]interface{}{
		"status_code": respCtx.StatusCode,
		"headers":     respCtx.Headers,
		"body":        respCtx.Body,
		"variables":   vars.AllForInterpolation(),
	}

	var selected *config.ScenarioBranch
	branchName := ""
	for i := range step.Scenarios.Branches {
		branch := step.Scenarios.Branches[i]
		if vars.EvaluateSkip(branch.Condition, script, mergedCtx) {
			selected = &branch
			branchName = branch.Name
			break
		}
	}
	if selected == nil && step.Scenarios.Default != nil {
		selected = step.Scenarios.Default
		branchName = selected.Name
	}

	result.ScenarioMeta = &model.ScenarioMeta{SelectedBranch: branchName, Matched: selected != nil}

	if selected == nil || selected.Then == nil {
		result.Status = model.StepStatusSuccess
		result.Duration = time.Since(start)
		return result, nil
	}

	then := selected.Then
	for name, value := range then.Set {
		resolved, err := vars.InterpolateStructured(value, script)
		if err != nil {
			resolved = value
		}
		vars.Set(name, resolved)
	}

	assertions := assertion.Evaluate(then.Assertions, respCtx)
	result.AssertionResults = assertions

	captureCtx := map[string]interface{}{
		"status_code": respCtx.StatusCode,
		"headers":     respCtx.Headers,
		"body":        respCtx.Body,
		"variables":   vars.AllForInterpolation(),
	}
	captured, _ := vars.Capture(then.Capture, captureCtx)
	result.CapturedVariables = captured

	if then.Call != nil {
		stack := stackFromContext(ctx)
		callResult, err := d.CallService.Execute(ctx, then.Call, suite.NodeID, vars, script, stack)
		if err != nil {
			return failResult(result, start, err)
		}
		result.CallResult = callResult
	}

	result.Duration = time.Since(start)
	result.Status = stepStatus(assertions, nil, nil)
	return result, nil
}

// --- Iterated strategy (spec §4.3.5) ---

func (d *Dispatcher) dispatchIterate(ctx context.Context, suite *config.Suite, step config.Step, identifier model.StepIdentifier, vars *variables.Context, baseURL string, timeoutMs int) (*model.StepResult, error) {
	result := &model.StepResult{StepID: identifier.StepID, Identifier: identifier, Timestamp: time.Now()}
	start := time.Now()

	items, err := resolveIterationItems(step.Iterate, vars, scriptContext(vars, nil, nil, nil))
	if err != nil {
		return failResult(result, start, err)
	}

	childStep := step
	childStep.Iterate = nil

	iterResult := model.IterationResult{Success: true}
	for i, item := range items {
		vars.Set(step.Iterate.As, item)
		vars.Set(step.Iterate.As+"_meta", map[string]interface{}{
			"index":   i,
			"isFirst": i == 0,
			"isLast":  i == len(items)-1,
		})

		childResult, err := d.Dispatch(ctx, suite, childStep, vars, baseURL, timeoutMs)
		if err != nil {
			return failResult(result, start, err)
		}
		iterResult.Children = append(iterResult.Children, *childResult)
		if childResult.Status == model.StepStatusFailure {
			iterResult.Success = false
			if !step.ContinueOnFailure {
				break
			}
		}
	}

	result.Iteration = &iterResult
	result.Duration = time.Since(start)
	if iterResult.Success {
		result.Status = model.StepStatusSuccess
	} else {
		result.Status = model.StepStatusFailure
		result.Message = "one or more iterations failed"
	}
	return result, nil
}

func resolveIterationItems(spec *config.IterateSpec, vars *variables.Context, script variables.ScriptContext) ([]interface{}, error) {
	if spec.Range != "" {
		parts := strings.SplitN(spec.Range, "..", 2)
		if len(parts) != 2 {
			return nil, flowtesterrors.NewIterationError(spec.As, fmt.Sprintf("invalid range %q", spec.Range))
		}
		a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
		b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errA != nil || errB != nil || a > b {
			return nil, flowtesterrors.NewIterationError(spec.As, fmt.Sprintf("invalid range %q", spec.Range))
		}
		items := make([]interface{}, 0, b-a+1)
		for n := a; n <= b; n++ {
			items = append(items, n)
		}
		return items, nil
	}

	resolved, err := vars.Interpolate(spec.Over, script)
	if err != nil {
		return nil, flowtesterrors.NewIterationError(spec.As, err.Error())
	}
	arr, ok := resolved.([]interface{})
	if !ok {
		return nil, flowtesterrors.NewIterationError(spec.As, fmt.Sprintf("%q did not resolve to an array", spec.Over))
	}
	return arr, nil
}
