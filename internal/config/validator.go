package config

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	flowtesterrors "github.com/alexisbeaulieu97/flowtest/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	stepIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("step_id", func(fl validator.FieldLevel) bool {
			return stepIDPattern.MatchString(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// ValidateSuite performs schema and cross-field validation on a parsed suite.
// It checks struct tags, then the cross-field rules spec.md §3/§4.1 require:
// no duplicate step_ids, no dangling skip/scenario JS misuse, and so on.
// Dependency-cycle detection across *suites* is the scheduler's job (§4.1);
// this function only validates one suite in isolation.
func ValidateSuite(suite *Suite) error {
	if suite == nil {
		return flowtesterrors.NewValidationError("suite", "suite is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(suite); err != nil {
		return convertValidationError(err)
	}

	if suite.Metadata.Priority != "" && !suite.Metadata.Priority.Valid() {
		return flowtesterrors.NewValidationError("metadata.priority", fmt.Sprintf("unknown priority %q", suite.Metadata.Priority), nil)
	}

	stepIDs := make(map[string]int, len(suite.Steps))
	for i, step := range suite.Steps {
		if step.StepID == "" {
			continue
		}
		if prev, exists := stepIDs[step.StepID]; exists {
			return flowtesterrors.NewValidationError(fieldForStep(i, "step_id"), fmt.Sprintf("duplicate step_id %q (first seen at steps[%d])", step.StepID, prev), nil)
		}
		stepIDs[step.StepID] = i
	}

	for i, step := range suite.Steps {
		if err := validateStepShape(step, i); err != nil {
			return err
		}
	}

	exported := make(map[string]struct{}, len(suite.Exports)+len(suite.ExportsOptional))
	for _, name := range suite.Exports {
		if _, dup := exported[name]; dup {
			return flowtesterrors.NewValidationError("exports", fmt.Sprintf("duplicate export name %q", name), nil)
		}
		exported[name] = struct{}{}
	}

	return nil
}

// validateStepShape ensures exactly the variant fields required by the
// dispatcher's strategy priority (iterate > call > scenarios > input >
// request) are internally consistent.
func validateStepShape(step Step, index int) error {
	v := validatorInstance()
	if err := v.Struct(step); err != nil {
		return convertValidationError(err)
	}

	hasVariant := step.Iterate != nil || step.Call != nil || step.Scenarios != nil || step.Input != nil || step.Request != nil
	if !hasVariant {
		return flowtesterrors.NewValidationError(fieldForStep(index, "request"), "step must declare one of iterate, call, scenarios, input, or request", nil)
	}

	if step.Iterate != nil {
		if step.Iterate.Over == "" && step.Iterate.Range == "" {
			return flowtesterrors.NewValidationError(fieldForStep(index, "iterate"), "iterate requires one of over or range", nil)
		}
		if step.Iterate.Over != "" && step.Iterate.Range != "" {
			return flowtesterrors.NewValidationError(fieldForStep(index, "iterate"), "iterate must declare only one of over or range", nil)
		}
	}

	if step.Scenarios != nil && len(step.Scenarios.Branches) == 0 && step.Scenarios.Default == nil {
		return flowtesterrors.NewValidationError(fieldForStep(index, "scenarios"), "scenarios requires at least one branch or a default", nil)
	}

	if step.Input != nil {
		for _, p := range step.Input.Prompts {
			if err := v.Struct(p); err != nil {
				return convertValidationError(err)
			}
		}
	}

	if step.Skip != nil && step.Skip.When != "" && step.Skip.When != "pre_execution" && step.Skip.When != "post_capture" {
		return flowtesterrors.NewValidationError(fieldForStep(index, "skip.when"), fmt.Sprintf("unknown skip.when %q", step.Skip.When), nil)
	}

	for _, h := range append(append([]Hook{}, step.Before...), step.After...) {
		for _, val := range h.Validate {
			if val.Severity != "" && val.Severity != "error" && val.Severity != "warning" && val.Severity != "info" {
				return flowtesterrors.NewValidationError(fieldForStep(index, "validate.severity"), fmt.Sprintf("unknown severity %q", val.Severity), nil)
			}
		}
	}

	return nil
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return flowtesterrors.NewValidationError(field, msg, err)
	}

	return flowtesterrors.NewValidationError("suite", err.Error(), err)
}

func yamlishFieldName(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	parts := strings.Split(ns, ".")
	lowered := make([]string, 0, len(parts))
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}

func fieldForStep(index int, field string) string {
	return fmt.Sprintf("steps[%d].%s", index, field)
}
