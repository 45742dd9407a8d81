package services

import (
	"errors"
	"fmt"

	"github.com/donabox/api/internal/repositories"
	"github.com/donabox/api/internal/rules"
)

var (
	// ErrOrderInvalidInput signals a structurally invalid field.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderRuleViolation signals a quantity or availability rule rejection.
	ErrOrderRuleViolation = errors.New("order: rule violation")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates a duplicate id or a write conflict that outlived retries.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the order store could not be reached.
	ErrOrderUnavailable = errors.New("order: store unavailable")

	// ErrConfigInvalidInput signals a malformed configuration update.
	ErrConfigInvalidInput = errors.New("config: invalid input")
	// ErrConfigUnavailable indicates the configuration store could not be reached.
	ErrConfigUnavailable = errors.New("config: store unavailable")

	// ErrUnauthenticated is returned when a staff operation has no signed-in caller.
	ErrUnauthenticated = errors.New("caller is not authenticated")
	// ErrUnauthorized is returned when the caller is not on the staff allowlist.
	ErrUnauthorized = errors.New("caller is not authorized")
)

// RuleViolationError carries every broken rule in precedence order. Its message is
// the first violation's; errors.Is matches ErrOrderRuleViolation.
type RuleViolationError struct {
	Violations []*rules.Violation
}

func newRuleViolationError(violations ...*rules.Violation) *RuleViolationError {
	return &RuleViolationError{Violations: violations}
}

func (e *RuleViolationError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return ErrOrderRuleViolation.Error()
	}
	return e.Violations[0].Message
}

// Is makes errors.Is(err, ErrOrderRuleViolation) hold.
func (e *RuleViolationError) Is(target error) bool {
	return target == ErrOrderRuleViolation
}

// Unwrap exposes the first violation to errors.As.
func (e *RuleViolationError) Unwrap() error {
	if e == nil || len(e.Violations) == 0 {
		return nil
	}
	return e.Violations[0]
}

func invalidOrder(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrOrderInvalidInput, fmt.Sprintf(format, args...))
}

func invalidConfig(message string) error {
	return fmt.Errorf("%w: %s", ErrConfigInvalidInput, message)
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

func mapConfigRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
	}
	return err
}
