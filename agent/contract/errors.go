package contract

import "errors"

var (
	ErrModelInvoke       = errors.New("model invoke failed")
	ErrSchemaViolation   = errors.New("model response violates schema")
	ErrValidation        = errors.New("validation failed")
	ErrDependencyMissing = errors.New("dependent intent prerequisite missing")
	ErrAgentTimeout      = errors.New("agent execution timed out")
	ErrNoAgent           = errors.New("no agent registered for intent")
)
