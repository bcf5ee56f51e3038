// Package apperrors carries the error taxonomy the handlers translate to
// HTTP status codes. All core mutations are all-or-nothing: any of these
// surfacing from a service means no partial write happened.
package apperrors

import (
	"fmt"
	"strings"
)

// ValidationError is a malformed request: bad row set, missing import
// columns, unknown stage id, bad field values.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Fields, ", "))
	}
	return e.Message
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ConflictError is a true conflict surfaced to the caller, e.g. a duplicate
// stage code or removing the last active super admin. Resolvable conflicts
// (assignee email collisions during provisioning) are handled internally and
// never reach this type.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// Conflictf builds a ConflictError from a format string.
func Conflictf(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ForbiddenError is an authenticated caller acting outside their role's
// allow-list or on a record they do not own.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

// Forbiddenf builds a ForbiddenError from a format string.
func Forbiddenf(format string, args ...interface{}) *ForbiddenError {
	return &ForbiddenError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError is a referenced record/stage/user that does not exist or is
// soft-deleted.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// NotFound builds a NotFoundError for the named resource.
func NotFound(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}
