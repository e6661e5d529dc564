// Where: cli/internal/store/errors.go
// What: Classified store errors.
// Why: The provisioner branches on "already exists" without inspecting status codes.
package store

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a store failure.
type Kind string

const (
	KindConflict    Kind = "conflict"
	KindNotFound    Kind = "not_found"
	KindValidation  Kind = "validation"
	KindPermission  Kind = "permission"
	KindTransport   Kind = "transport"
	KindUnsupported Kind = "unsupported"
)

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrConflict    = &Error{Kind: KindConflict}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrValidation  = &Error{Kind: KindValidation}
	ErrPermission  = &Error{Kind: KindPermission}
	ErrTransport   = &Error{Kind: KindTransport}
	ErrUnsupported = &Error{Kind: KindUnsupported}
)

// Error is the structured error returned by every backend.
type Error struct {
	Kind     Kind
	Op       string // e.g. "create collection"
	Resource string // e.g. "orders"
	Status   int    // remote status code when there is one
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op
		if e.Resource != "" {
			msg += " " + e.Resource
		}
		msg += ": " + string(e.Kind)
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (%d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors that carry only a kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Resource != "" || t.Status != 0 || t.Message != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// New builds an error without a cause.
func New(kind Kind, op, resource, message string) *Error {
	return &Error{Kind: kind, Op: op, Resource: resource, Message: message}
}

// Wrap builds an error around cause.
func Wrap(kind Kind, op, resource string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Resource: resource, Err: cause}
}

// Conflict reports that op targets an object that already exists.
func Conflict(op, resource string) *Error {
	return New(KindConflict, op, resource, "already exists")
}

// NotFound reports a missing object.
func NotFound(op, resource string) *Error {
	return New(KindNotFound, op, resource, "not found")
}

// Unsupported reports a capability the backend does not offer.
func Unsupported(capability string) *Error {
	return New(KindUnsupported, "use", capability, "backend does not support "+capability)
}

// KindOf returns the kind of err, KindTransport for unclassified errors and
// "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransport
}

// IsConflict reports whether err means "already exists".
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// KindFromStatus maps an HTTP status code to a kind.
func KindFromStatus(status int) Kind {
	switch {
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindPermission
	case status == http.StatusNotImplemented:
		return KindUnsupported
	default:
		return KindTransport
	}
}
