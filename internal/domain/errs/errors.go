// Package errs holds the error taxonomy shared by the graph validator, the
// parameter resolver, the trigger manager and the execution engine.
package errs

import (
	"errors"
	"fmt"
)

// Structural and validation errors. These are rejected before any state is mutated.
var (
	ErrInvalidGraph            = errors.New("invalid graph")
	ErrInvalidReference        = errors.New("invalid reference")
	ErrInvalidParameter        = errors.New("invalid parameter")
	ErrDuplicateName           = errors.New("duplicate name")
	ErrTriggerLimitViolation   = errors.New("trigger limit violation")
	ErrDefaultTriggerProtected = errors.New("default trigger is protected")
	ErrEmptyWorkflow           = errors.New("workflow has no nodes")
	ErrInvalidTransition       = errors.New("invalid state transition")
	ErrWorkflowArchived        = errors.New("workflow is archived")
)

// Raised while resolving a node's inputs. The node fails without retries.
var ErrMissingRequiredParameter = errors.New("missing required parameter")

// Run-time errors. These are retried per node policy.
var (
	ErrUnresolvedReference = errors.New("unresolved reference")
	ErrNodeExecutionFailed = errors.New("node execution failed")
	ErrNodeTimeout         = errors.New("node timeout")
)

// Codes used in API responses and persisted execution results.
const (
	CodeInvalidGraph        = "INVALID_GRAPH"
	CodeInvalidReference    = "INVALID_REFERENCE"
	CodeInvalidParameter    = "INVALID_PARAMETER"
	CodeDuplicateName       = "DUPLICATE_NAME"
	CodeMissingParameter    = "MISSING_REQUIRED_PARAMETER"
	CodeUnresolvedReference = "UNRESOLVED_REFERENCE"
	CodeTriggerLimit        = "TRIGGER_LIMIT_VIOLATION"
	CodeDefaultTrigger      = "DEFAULT_TRIGGER_PROTECTED"
	CodeEmptyWorkflow       = "EMPTY_WORKFLOW"
	CodeNodeExecutionFailed = "NODE_EXECUTION_FAILED"
	CodeNodeTimeout         = "NODE_TIMEOUT"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeWorkflowArchived    = "WORKFLOW_ARCHIVED"
	CodeInternal            = "INTERNAL_ERROR"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidGraph, CodeInvalidGraph},
	{ErrInvalidReference, CodeInvalidReference},
	{ErrInvalidParameter, CodeInvalidParameter},
	{ErrDuplicateName, CodeDuplicateName},
	{ErrMissingRequiredParameter, CodeMissingParameter},
	{ErrUnresolvedReference, CodeUnresolvedReference},
	{ErrTriggerLimitViolation, CodeTriggerLimit},
	{ErrDefaultTriggerProtected, CodeDefaultTrigger},
	{ErrEmptyWorkflow, CodeEmptyWorkflow},
	{ErrNodeTimeout, CodeNodeTimeout},
	{ErrNodeExecutionFailed, CodeNodeExecutionFailed},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrWorkflowArchived, CodeWorkflowArchived},
}

// Error wraps a taxonomy error with the operation and a human-readable message.
type Error struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error for sentinel with a formatted message.
func New(op string, sentinel error, format string, args ...interface{}) *Error {
	return &Error{
		Op:      op,
		Code:    CodeOf(sentinel),
		Message: fmt.Sprintf(format, args...),
		Err:     sentinel,
	}
}

// CodeOf returns the taxonomy code for err, or CodeInternal.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// IsValidation reports whether err must be rejected synchronously (4xx).
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidGraph) ||
		errors.Is(err, ErrInvalidReference) ||
		errors.Is(err, ErrInvalidParameter) ||
		errors.Is(err, ErrDuplicateName) ||
		errors.Is(err, ErrEmptyWorkflow) ||
		errors.Is(err, ErrMissingRequiredParameter)
}

// IsConflict reports whether err is a state conflict (409).
func IsConflict(err error) bool {
	return errors.Is(err, ErrTriggerLimitViolation) ||
		errors.Is(err, ErrDefaultTriggerProtected) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrWorkflowArchived)
}

// IsRetryable reports whether a node attempt that failed with err may be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNodeExecutionFailed) ||
		errors.Is(err, ErrNodeTimeout) ||
		errors.Is(err, ErrUnresolvedReference)
}
