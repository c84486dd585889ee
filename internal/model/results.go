package model

import "time"

// AssertionResult is the outcome of one normalised assertion check.
type AssertionResult struct {
	Field    string
	Expected interface{}
	Actual   interface{}
	Passed   bool
	Message  string
}

// ScenarioMeta records which scenario branch a scenario step selected.
type ScenarioMeta struct {
	SelectedBranch string
	Matched        bool
}

// IterationResult aggregates the child StepResults of an iterated step.
type IterationResult struct {
	Children []StepResult
	Success  bool
}

// HookResult is the outcome of executing one hook's action set.
type HookResult struct {
	Success     bool
	Error       error
	Validations ValidationOutcome
}

// ValidationOutcome aggregates the results of a hook's validate action.
type ValidationOutcome struct {
	Passed   bool
	Failures []ValidationFailure
}

// ValidationFailure is one failed validate expression within a hook.
type ValidationFailure struct {
	Expression string
	Message    string
	Severity   string
}

// CallResult is returned by the call strategy alongside the nested StepResult.
type CallResult struct {
	Nested               *StepResult
	PropagatedVariables  map[string]interface{}
}

// StepResult captures the outcome of dispatching a single step.
type StepResult struct {
	StepID             string
	Identifier         StepIdentifier
	Status             StepStatus
	Message            string
	Error              error
	Duration           time.Duration
	Timestamp          time.Time
	RawURL             string
	StatusCode         int
	ResponseHeaders    map[string]string
	ResponseBody       interface{}
	SizeBytes          int
	AssertionResults   []AssertionResult
	CapturedVariables  map[string]interface{}
	AvailableVariables map[string]interface{}
	ScenarioMeta       *ScenarioMeta
	Iteration          *IterationResult
	CallResult         *CallResult
	BeforeHooks        []HookResult
	AfterHooks         []HookResult
}

// DependencyResult records the resolution state of one of a suite's declared dependencies.
type DependencyResult struct {
	NodeID string
	Status SuiteStatus
}

// SuiteResult aggregates the outcome of executing one suite.
type SuiteResult struct {
	NodeID       string
	Name         string
	Status       SuiteStatus
	ErrorMessage string
	Cached       bool
	Duration     time.Duration
	DurationMs   int64
	StepResults  []StepResult
	Dependencies []DependencyResult
	SkipReason   string
}

// DiscoveredSuite is the descriptor produced by the (out-of-scope) discovery
// collaborator: enough metadata to schedule a suite without parsing it.
type DiscoveredSuite struct {
	NodeID             string
	Name               string
	Path               string
	Depends            []string
	Priority           Priority
	DiscoveryIndex     int
	EstimatedDuration  time.Duration
	ContentHash        string
}
