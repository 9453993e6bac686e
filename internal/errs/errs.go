// Package errs defines the structured error kinds shared across Overstory's
// core packages. Every durable-state mutation that can fail returns one of
// these so callers can switch on Code rather than parse error strings.
package errs

import "fmt"

// Code is a stable machine-readable error identifier.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeConfig             Code = "CONFIG_ERROR"
	CodeHierarchyViolation Code = "HIERARCHY_VIOLATION"
	CodeAgent              Code = "AGENT_ERROR"
	CodeWorktree           Code = "WORKTREE_ERROR"
	CodeMail               Code = "MAIL_ERROR"
	CodeMerge              Code = "MERGE_ERROR"
	CodeLifecycle          Code = "LIFECYCLE_ERROR"
	CodeGroup              Code = "GROUP_ERROR"
)

// Error is the common shape for every structured error in this module: a
// stable code, a human message, optional context fields, and an optional
// remedial hint surfaced to the end user.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]any
	Hint    string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Code, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

func newErr(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Fields: map[string]any{}}
}

// WithField attaches a context field and returns the same error for chaining.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	e.Fields[key] = value
	return e
}

// WithHint attaches a remedial hint and returns the same error for chaining.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithWrapped attaches an underlying cause and returns the same error for chaining.
func (e *Error) WithWrapped(err error) *Error {
	e.Wrapped = err
	return e
}

// Validation builds a ValidationError for bad CLI/config input.
func Validation(field string, value any, msg string) *Error {
	return newErr(CodeValidation, msg).WithField("field", field).WithField("value", value)
}

// Config builds a ConfigError for a missing/unreadable/invalid config.
func Config(msg string, cause error) *Error {
	return newErr(CodeConfig, msg).WithWrapped(cause)
}

// Hierarchy builds a HierarchyError per spec.md §4.7 step 1.
func Hierarchy(msg string) *Error {
	return newErr(CodeHierarchyViolation, msg)
}

// Agent builds an AgentError for agent-lifecycle failures.
func Agent(msg string, cause error) *Error {
	return newErr(CodeAgent, msg).WithWrapped(cause)
}

// Worktree builds a WorktreeError for VCS operation failures.
func Worktree(msg string, cause error) *Error {
	return newErr(CodeWorktree, msg).WithWrapped(cause)
}

// Mail builds a MailError for store/protocol failures.
func Mail(msg string, cause error) *Error {
	return newErr(CodeMail, msg).WithWrapped(cause)
}

// Merge builds a MergeError, optionally carrying the branch and conflict files.
func Merge(msg string, branch string, conflictFiles []string, cause error) *Error {
	e := newErr(CodeMerge, msg).WithField("branch", branch).WithWrapped(cause)
	if len(conflictFiles) > 0 {
		e.WithField("conflictFiles", conflictFiles)
	}
	return e
}

// Lifecycle builds a LifecycleError for checkpoint/handoff failures.
func Lifecycle(msg string, cause error) *Error {
	return newErr(CodeLifecycle, msg).WithWrapped(cause)
}

// Group builds a GroupError for an invalid or unknown mail address group.
func Group(msg string) *Error {
	return newErr(CodeGroup, msg)
}

// Is reports whether err is an *Error with the given code, unwrapping as needed.
func Is(err error, code Code) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
