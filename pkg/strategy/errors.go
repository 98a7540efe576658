package strategy

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStrategy is returned when an identifier has no registered implementation.
	ErrUnknownStrategy = errors.New("strategy: unknown strategy")
	// ErrInvalidStrategy is returned when a registered factory does not produce a Strategy.
	ErrInvalidStrategy = errors.New("strategy: invalid strategy")
	// ErrMissingOption matches every *MissingOptionError.
	ErrMissingOption = errors.New("strategy: missing option")
)

// MissingOptionError reports a required option that is absent or unusable.
type MissingOptionError struct {
	Strategy string
	Option   string
}

func (e *MissingOptionError) Error() string {
	return fmt.Sprintf("strategy: %s requires the %q option", e.Strategy, e.Option)
}

func (e *MissingOptionError) Is(target error) bool {
	return target == ErrMissingOption
}

func missing(strategy, option string) error {
	return &MissingOptionError{Strategy: strategy, Option: option}
}
