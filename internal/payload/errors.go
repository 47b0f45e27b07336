package payload

import (
	"fmt"

	"github.com/yourorg/ramldoc/pkg/types"
)

// MissingFieldError reports a required descriptor whose path is absent.
type MissingFieldError struct {
	Operation string
	Path      string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("operation %s: documented field %q not found in payload", e.Operation, e.Path)
}

// UndocumentedFieldError reports a payload path no descriptor covers.
type UndocumentedFieldError struct {
	Operation string
	Path      string
}

func (e *UndocumentedFieldError) Error() string {
	return fmt.Sprintf("operation %s: payload field %q is not documented", e.Operation, e.Path)
}

// TypeMismatchError reports a declared type contradicted by a non-null value.
type TypeMismatchError struct {
	Operation string
	Path      string
	Declared  types.RAMLType
	Inferred  types.RAMLType
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("operation %s: field %q declared as %s but payload holds %s", e.Operation, e.Path, e.Declared, e.Inferred)
}

// DuplicateDescriptorError reports two descriptors with the same identity.
type DuplicateDescriptorError struct {
	Operation string
	Name      string
}

func (e *DuplicateDescriptorError) Error() string {
	return fmt.Sprintf("operation %s: %q is described more than once", e.Operation, e.Name)
}

// InvalidBodyError reports a body that cannot be inspected as JSON.
type InvalidBodyError struct {
	Operation string
	Direction string
	Err       error
}

func (e *InvalidBodyError) Error() string {
	return fmt.Sprintf("operation %s: %s body is not valid json: %v", e.Operation, e.Direction, e.Err)
}

func (e *InvalidBodyError) Unwrap() error { return e.Err }

// PathSyntaxError reports a malformed descriptor path.
type PathSyntaxError struct {
	Operation string
	Path      string
	Reason    string
}

func (e *PathSyntaxError) Error() string {
	return fmt.Sprintf("operation %s: invalid field path %q: %s", e.Operation, e.Path, e.Reason)
}
