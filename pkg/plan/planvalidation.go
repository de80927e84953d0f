package plan

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate

	knownKinds = map[Kind]bool{
		KindSendRaw:         true,
		KindEnterConfigMode: true,
		KindPushLines:       true,
		KindCommit:          true,
		KindExitConfigMode:  true,
		KindCapture:         true,
	}
)

// Validator returns the validator shared by plan and config validation,
// with the plan-specific tags registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("stepKind", validateStepKind)
		_ = validate.RegisterValidation("regexp", validateRegexp)
	})
	return validate
}

func validateStepKind(fl validator.FieldLevel) bool {
	return knownKinds[Kind(fl.Field().String())]
}

func validateRegexp(fl validator.FieldLevel) bool {
	_, err := regexp.Compile(fl.Field().String())
	return err == nil
}

func ValidateDialect(d Dialect) error {
	return Validator().Struct(d)
}

// Validate checks field constraints and the ordering rules between steps.
func Validate(p *Plan) error {
	if p == nil {
		return fmt.Errorf("plan cannot be nil")
	}
	if err := Validator().Struct(p); err != nil {
		return fmt.Errorf("plan %q: %w", p.Name, err)
	}

	inConfig := false
	for i, step := range p.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("plan %q step %d %s: %w", p.Name, i, step.Kind, err)
		}
		switch step.Kind {
		case KindEnterConfigMode:
			inConfig = true
		case KindExitConfigMode:
			inConfig = false
		case KindPushLines, KindCommit:
			if !inConfig {
				return fmt.Errorf("plan %q step %d %s: requires configuration mode", p.Name, i, step.Kind)
			}
		}
	}
	return nil
}

func validateStep(s Step) error {
	switch s.Kind {
	case KindPushLines:
		if len(s.Lines) == 0 {
			return fmt.Errorf("no lines to push")
		}
	case KindCapture:
		if strings.TrimSpace(s.Command) == "" {
			return fmt.Errorf("command is required")
		}
		hasTarget := strings.TrimSpace(s.Target) != ""
		hasExpect := len(s.Expect) > 0
		if hasTarget == hasExpect {
			return fmt.Errorf("exactly one of target or expect is required")
		}
	default:
		if strings.TrimSpace(s.Command) == "" {
			return fmt.Errorf("command is required")
		}
	}
	return nil
}
