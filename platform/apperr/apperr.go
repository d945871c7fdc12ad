// Package apperr defines the error kinds services return and the HTTP status
// each kind maps to. Handlers hand these errors to httpkit, which renders them.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for logging and HTTP mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	// KindConflict is returned while a sync run is already in progress or queued.
	KindConflict
	KindBadRequest
	KindInternal
	// KindUpstreamRead marks a failed read against the profile store.
	KindUpstreamRead
	// KindUpstreamWrite marks a failed write against the CRM or the event collector.
	KindUpstreamWrite
)

var kindNames = map[Kind]string{
	KindNotFound:      "not_found",
	KindValidation:    "validation",
	KindConflict:      "conflict",
	KindBadRequest:    "bad_request",
	KindInternal:      "internal",
	KindUpstreamRead:  "upstream_read",
	KindUpstreamWrite: "upstream_write",
}

var kindStatus = map[Kind]int{
	KindNotFound:      http.StatusNotFound,
	KindValidation:    http.StatusBadRequest,
	KindBadRequest:    http.StatusBadRequest,
	KindConflict:      http.StatusConflict,
	KindUpstreamRead:  http.StatusBadGateway,
	KindUpstreamWrite: http.StatusBadGateway,
}

// String returns the label used in logs and run reports.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is a classified error. Op names the failing operation, Err the cause.
type Error struct {
	Kind    Kind
	Message string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the kind to a response status; unmapped kinds are 500.
func (e *Error) HTTPStatus() int {
	if status, ok := kindStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WithOp sets the operation and returns the same error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error   { return New(KindNotFound, message) }
func Validation(message string) *Error { return New(KindValidation, message) }
func Conflict(message string) *Error   { return New(KindConflict, message) }
func BadRequest(message string) *Error { return New(KindBadRequest, message) }

// UpstreamRead wraps a failed profile store read.
func UpstreamRead(message string, err error) *Error {
	return Wrap(KindUpstreamRead, message, err)
}

// UpstreamWrite wraps a failed CRM or event collector write.
func UpstreamWrite(message string, err error) *Error {
	return Wrap(KindUpstreamWrite, message, err)
}

// GetKind returns the kind of the first *Error in err's chain, or KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err's chain carries an *Error of kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
