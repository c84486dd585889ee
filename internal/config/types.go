package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/alexisbeaulieu97/flowtest/internal/model"
)

// Suite is the parsed form of one YAML suite document (spec §3, §6).
type Suite struct {
	NodeID          string                 `yaml:"node_id" validate:"required,step_id"`
	Name            string                 `yaml:"suite_name" validate:"required,min=1,max=200"`
	BaseURL         string                 `yaml:"base_url,omitempty"`
	Variables       map[string]interface{} `yaml:"variables,omitempty"`
	Exports         []string               `yaml:"exports,omitempty"`
	ExportsOptional []string               `yaml:"exports_optional,omitempty"`
	Depends         []string               `yaml:"depends,omitempty"`
	Metadata        Metadata               `yaml:"metadata,omitempty"`
	Certificate     string                 `yaml:"certificate,omitempty"`
	ContinueOnError bool                   `yaml:"continue_on_error,omitempty"`
	Steps           []Step                 `yaml:"steps" validate:"required,min=1,dive"`
}

// Metadata carries suite-level scheduling hints.
type Metadata struct {
	Priority model.Priority `yaml:"priority,omitempty"`
}

// Skip describes a pre- or post-execution skip condition (spec §4.4).
type Skip struct {
	When      string `yaml:"when,omitempty"` // pre_execution (default) | post_capture
	Condition string `yaml:"condition"`
}

// UnmarshalYAML accepts either a bare string (treated as pre_execution) or the
// structured {when, condition} form.
func (s *Skip) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		s.When = "pre_execution"
		s.Condition = value.Value
		return nil
	}
	type rawSkip Skip
	var raw rawSkip
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*s = Skip(raw)
	if s.When == "" {
		s.When = "pre_execution"
	}
	return nil
}

// Delay describes a fixed, templated, or ranged post-step pause.
type Delay struct {
	Fixed    *int   // number of milliseconds
	Template string // templated string, interpolated then parsed as a number
	Min, Max int    // random range in milliseconds
	IsRange  bool
}

// UnmarshalYAML accepts a bare number, a templated string, or a {min,max} map.
func (d *Delay) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var n int
		if err := value.Decode(&n); err == nil {
			d.Fixed = &n
			return nil
		}
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		d.Template = s
		return nil
	case yaml.MappingNode:
		var rng struct {
			Min int `yaml:"min"`
			Max int `yaml:"max"`
		}
		if err := value.Decode(&rng); err != nil {
			return err
		}
		d.Min, d.Max, d.IsRange = rng.Min, rng.Max, true
		return nil
	default:
		return fmt.Errorf("delay: unsupported YAML node kind %d", value.Kind)
	}
}

// Step is one unit of work in a suite. The dispatcher (§4.3) selects a
// strategy by checking, in priority order, Iterate/Call/Scenarios/Input/Request.
// Unlike the teacher's Step (which dispatches same-shaped variants off a
// shared "type" discriminator), flowtest's five step kinds each carry a
// distinctly-named key, so plain struct decoding already picks the right
// pointer(s); no custom UnmarshalYAML is needed here.
type Step struct {
	Name              string                 `yaml:"name"`
	StepID            string                 `yaml:"step_id,omitempty"`
	Skip              *Skip                  `yaml:"skip,omitempty"`
	ContinueOnFailure bool                   `yaml:"continue_on_failure,omitempty"`
	Before            []Hook                 `yaml:"before,omitempty"`
	After             []Hook                 `yaml:"after,omitempty"`
	Iterate           *IterateSpec           `yaml:"iterate,omitempty"`
	Scenarios         *ScenarioSpec          `yaml:"scenarios,omitempty"`
	Input             *InputSpec             `yaml:"input,omitempty"`
	Call              *CallSpec              `yaml:"call,omitempty"`
	Request           *RequestSpec           `yaml:"request,omitempty"`
	Assertions        map[string]interface{} `yaml:"assertions,omitempty"`
	Capture           map[string]string      `yaml:"capture,omitempty"`
	Delay             *Delay                 `yaml:"delay,omitempty"`
}

// RequestSpec is the templated HTTP request attached to a request or scenario step.
type RequestSpec struct {
	Method            string            `yaml:"method" validate:"required"`
	URL               string            `yaml:"url" validate:"required"`
	Headers           map[string]string `yaml:"headers,omitempty"`
	Query             map[string]string `yaml:"query,omitempty"`
	Body              interface{}       `yaml:"body,omitempty"`
	Certificate       string            `yaml:"certificate,omitempty"`
	TimeoutMs         int               `yaml:"timeout,omitempty"`
	PreRequestScript  string            `yaml:"pre_script,omitempty"`
	PostRequestScript string            `yaml:"post_script,omitempty"`
}

// InputSpec prompts for one or more variables via the InputPrompter collaborator.
type InputSpec struct {
	Prompts []InputPrompt `yaml:"prompts"`
}

// UnmarshalYAML accepts either a single prompt map or a list of prompts.
func (i *InputSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		return value.Decode(&i.Prompts)
	}
	var single InputPrompt
	if err := value.Decode(&single); err != nil {
		return err
	}
	i.Prompts = []InputPrompt{single}
	return nil
}

// InputPrompt describes one interactive prompt (spec §4.3.2).
type InputPrompt struct {
	Name      string      `yaml:"name" validate:"required"`
	Type      string      `yaml:"type,omitempty"` // text,email,url,password,number,select,confirm,multiline
	Message   string      `yaml:"message,omitempty"`
	Default   interface{} `yaml:"default,omitempty"`
	CIDefault interface{} `yaml:"ci_default,omitempty"`
	Options   []string    `yaml:"options,omitempty"`
	Required  bool        `yaml:"required,omitempty"`
}

// CallSpec invokes a step in another suite (spec §4.3.3).
type CallSpec struct {
	Test           string                 `yaml:"test" validate:"required"`
	Step           string                 `yaml:"step" validate:"required"`
	Variables      map[string]interface{} `yaml:"variables,omitempty"`
	Alias          string                 `yaml:"alias,omitempty"`
	TimeoutMs      int                    `yaml:"timeout,omitempty"`
	IsolateContext *bool                  `yaml:"isolate_context,omitempty"`
}

// Isolate reports the effective isolate_context value; defaults to true.
func (c *CallSpec) Isolate() bool {
	if c.IsolateContext == nil {
		return true
	}
	return *c.IsolateContext
}

// ScenarioSpec runs an optional request then selects exactly one branch.
type ScenarioSpec struct {
	Request  *RequestSpec     `yaml:"request,omitempty"`
	Branches []ScenarioBranch `yaml:"branches"`
	Default  *ScenarioBranch  `yaml:"default,omitempty"`
}

// ScenarioBranch is one candidate branch of a scenario step.
type ScenarioBranch struct {
	Name      string `yaml:"name,omitempty"`
	Condition string `yaml:"condition,omitempty"`
	Then      *Then  `yaml:"then,omitempty"`
}

// Then is the set of actions a selected scenario branch applies.
type Then struct {
	Assertions map[string]interface{} `yaml:"assertions,omitempty"`
	Capture    map[string]string      `yaml:"capture,omitempty"`
	Set        map[string]interface{} `yaml:"set,omitempty"`
	Call       *CallSpec               `yaml:"call,omitempty"`
}

// IterateSpec expands a step into a sequence of iterations (spec §4.3.5).
type IterateSpec struct {
	Over  string `yaml:"over,omitempty"`
	Range string `yaml:"range,omitempty"`
	As    string `yaml:"as" validate:"required"`
}

// Hook is one lifecycle action block attached to a step's before/after list
// (spec §4.6). Action keys execute in fixed order regardless of YAML order.
type Hook struct {
	Compute  map[string]string `yaml:"compute,omitempty"`
	Capture  map[string]string `yaml:"capture,omitempty"`
	Validate []HookValidation  `yaml:"validate,omitempty"`
	Log      *HookLog          `yaml:"log,omitempty"`
	Metric   *HookMetric       `yaml:"metric,omitempty"`
	Script   string            `yaml:"script,omitempty"`
	Call     *CallSpec         `yaml:"call,omitempty"`
	WaitMs   int               `yaml:"wait,omitempty"`
	Exports  []string          `yaml:"exports,omitempty"`
}

// HookValidation is one expression checked by a hook's validate action.
type HookValidation struct {
	Expression string `yaml:"expression" validate:"required"`
	Message    string `yaml:"message,omitempty"`
	Severity   string `yaml:"severity,omitempty"` // error (default) | warning | info
}

// HookLog is a hook's log action.
type HookLog struct {
	Level    string                 `yaml:"level,omitempty"`
	Message  string                 `yaml:"message" validate:"required"`
	Metadata map[string]interface{} `yaml:"metadata,omitempty"`
}

// HookMetric is a hook's metric action.
type HookMetric struct {
	Name      string            `yaml:"name" validate:"required"`
	Value     interface{}       `yaml:"value" validate:"required"`
	Tags      map[string]string `yaml:"tags,omitempty"`
	Timestamp string            `yaml:"timestamp,omitempty"`
}
