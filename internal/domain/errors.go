package domain

import "errors"

var (
	// ErrDefinitionNotFound indicates no configuration exists for the quiz name.
	ErrDefinitionNotFound = errors.New("quiz definition not found")
	// ErrDefinitionInvalid indicates the configuration failed validation.
	ErrDefinitionInvalid = errors.New("quiz definition invalid")
	// ErrOverrideInvalid indicates an override patch has a malformed shape.
	// Callers degrade to the base definition rather than failing the load.
	ErrOverrideInvalid = errors.New("quiz override invalid")
	// ErrSessionNotFound is returned when a transition arrives without a
	// live session for the user.
	ErrSessionNotFound = errors.New("quiz session not found")
)
