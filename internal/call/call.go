// Package call implements the cross-suite call service (spec §4.3.3): suite
// and step resolution, the call stack's cycle/depth guard, and variable
// context isolation/propagation around a nested single-step dispatch.
package call

import (
	"context"
	"fmt"
	"sync"

	"github.com/alexisbeaulieu97/flowtest/internal/config"
	"github.com/alexisbeaulieu97/flowtest/internal/model"
	"github.com/alexisbeaulieu97/flowtest/internal/variables"
	flowtesterrors "github.com/alexisbeaulieu97/flowtest/pkg/errors"
)

// DefaultMaxDepth is the call stack's default depth guard (spec §4.3.3).
const DefaultMaxDepth = 16

// SuiteLoader resolves and parses a suite by path, the discovery
// collaborator's responsibility per spec §1.
type SuiteLoader func(path string) (*config.Suite, error)

// StepDispatcher dispatches exactly one step through the same strategy
// selection the top-level executor uses (spec §4.3). It is injected to
// avoid an import cycle: internal/dispatch's call strategy depends on this
// package, so this package cannot import internal/dispatch back.
type StepDispatcher func(ctx context.Context, suite *config.Suite, step config.Step, vars *variables.Context, baseURL string, timeoutMs int) (*model.StepResult, error)

// Stack is a per-invocation call stack guarding against cycles and runaway
// recursion depth. It is not shared across suites (spec §5).
type Stack struct {
	mu      sync.Mutex
	entries []string
	maxDepth int
}

// NewStack creates an empty call stack with the given depth guard (0 uses
// DefaultMaxDepth).
func NewStack(maxDepth int) *Stack {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Stack{maxDepth: maxDepth}
}

func (s *Stack) push(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.entries {
		if existing == frame {
			return flowtesterrors.NewCallError(flowtesterrors.CallErrorCycle, frame, fmt.Errorf("call cycle: %v", append(append([]string(nil), s.entries...), frame)))
		}
	}
	if len(s.entries) >= s.maxDepth {
		return flowtesterrors.NewCallError(flowtesterrors.CallErrorDepthExceeded, frame, fmt.Errorf("call depth exceeded %d", s.maxDepth))
	}
	s.entries = append(s.entries, frame)
	return nil
}

func (s *Stack) pop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) > 0 {
		s.entries = s.entries[:len(s.entries)-1]
	}
}

// Service resolves and invokes calls.
type Service struct {
	Loader   SuiteLoader
	Dispatch StepDispatcher
}

// Execute runs the call strategy's protocol (spec §4.3.3) for one CallSpec
// issued from callerSuitePath, using the given stack and caller variable
// context.
func (s *Service) Execute(ctx context.Context, spec *config.CallSpec, callerSuitePath string, vars *variables.Context, script variables.ScriptContext, stack *Stack) (*model.CallResult, error) {
	targetSuite, err := s.Loader(spec.Test)
	if err != nil {
		return nil, flowtesterrors.NewCallError(flowtesterrors.CallErrorResolution, spec.Test, err)
	}

	step, ok := resolveStep(targetSuite, spec.Step)
	if !ok {
		return nil, flowtesterrors.NewCallError(flowtesterrors.CallErrorResolution, spec.Test+"::"+spec.Step, fmt.Errorf("step %q not found", spec.Step))
	}

	frame := spec.Test + "::" + step.StepID
	if err := stack.push(frame); err != nil {
		return nil, err
	}
	defer stack.pop()

	isolate := spec.Isolate()

	var snapshot variables.Snapshot
	if isolate {
		snapshot = vars.Snapshot()
		vars.ResetScopes()
		installVariables(vars, targetSuite.Variables, script)
	} else {
		installMissingVariables(vars, targetSuite.Variables, script)
	}

	overlay, err := interpolateVariables(vars, spec.Variables, script)
	if err != nil {
		return nil, err
	}
	for name, value := range overlay {
		vars.Set(name, value)
	}

	nested, err := s.Dispatch(ctx, targetSuite, step, vars, targetSuite.BaseURL, spec.TimeoutMs)
	if err != nil {
		if isolate {
			vars.Restore(snapshot)
		}
		return nil, err
	}

	prefix := spec.Alias
	if prefix == "" {
		prefix = targetSuite.NodeID
	}

	propagated := make(map[string]interface{}, len(nested.CapturedVariables))
	for name, value := range nested.CapturedVariables {
		propagated[prefix+"."+name] = value
		if !isolate {
			vars.Set(name, value)
		}
	}

	if isolate {
		vars.Restore(snapshot)
	}

	return &model.CallResult{Nested: nested, PropagatedVariables: propagated}, nil
}

func resolveStep(suite *config.Suite, stepRef string) (config.Step, bool) {
	for _, step := range suite.Steps {
		if step.StepID == stepRef {
			return step, true
		}
	}
	normalizedRef := model.NormalizeStepID(stepRef)
	for _, step := range suite.Steps {
		if model.NormalizeStepID(step.Name) == normalizedRef {
			return step, true
		}
	}
	return config.Step{}, false
}

func installVariables(vars *variables.Context, raw map[string]interface{}, script variables.ScriptContext) {
	for name, value := range raw {
		resolved, err := vars.InterpolateStructured(value, script)
		if err != nil {
			resolved = value
		}
		vars.Suite[name] = resolved
	}
}

func installMissingVariables(vars *variables.Context, raw map[string]interface{}, script variables.ScriptContext) {
	for name, value := range raw {
		if _, exists := vars.Get(name); exists {
			continue
		}
		resolved, err := vars.InterpolateStructured(value, script)
		if err != nil {
			resolved = value
		}
		vars.Suite[name] = resolved
	}
}

func interpolateVariables(vars *variables.Context, raw map[string]interface{}, script variables.ScriptContext) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(raw))
	for name, value := range raw {
		resolved, err := vars.InterpolateStructured(value, script)
		if err != nil {
			return nil, err
		}
		out[name] = resolved
	}
	return out, nil
}
