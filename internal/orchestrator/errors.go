package orchestrator

import (
	"errors"
	"fmt"
)

// ErrInputRequired marks client faults: a missing table, question or SQL.
var ErrInputRequired = errors.New("input required")

var (
	ErrTableRequired    = fmt.Errorf("%w: table has no columns", ErrInputRequired)
	ErrQuestionRequired = fmt.Errorf("%w: question is required", ErrInputRequired)
	ErrSQLRequired      = fmt.Errorf("%w: sql is required", ErrInputRequired)
)

// ExecutionError wraps a failure of the execution engine. The SQL is never
// validated beforehand, so malformed generated or user SQL ends up here.
type ExecutionError struct {
	SQL    string
	Source Source
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s sql: %v", e.Source, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
