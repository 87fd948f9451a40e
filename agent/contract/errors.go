package contract

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrModelInvoke       = errors.New("model invoke failed")
	ErrSchemaViolation   = errors.New("model response violates schema")
	ErrNotUnderstood     = errors.New("could not understand the request")
	ErrSynthesisFailed   = errors.New("narrative synthesis unavailable")
	ErrSessionLimit      = errors.New("active session limit reached")
	ErrUnknownCapability = errors.New("unknown capability")
)
