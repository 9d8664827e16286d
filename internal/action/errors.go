package action

import "fmt"

// MalformedActionError reports a payload that names a known action type but
// fails field validation. Field names the offending field.
type MalformedActionError struct {
	Field  string
	Reason string
}

func (e *MalformedActionError) Error() string {
	return fmt.Sprintf("malformed action: field %q %s", e.Field, e.Reason)
}

// UnrecognizedTypeError reports a discriminant outside the known set.
type UnrecognizedTypeError struct {
	Type string
}

func (e *UnrecognizedTypeError) Error() string {
	return fmt.Sprintf("unrecognized action type %q", e.Type)
}
