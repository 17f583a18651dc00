// Package apperr defines the typed error kinds shared by the directory adapters,
// the stores and the group sync engine.
//
// Errors carry a Kind instead of a numeric code. Callers match them with
// errors.Is against the package sentinels:
//
//	if errors.Is(err, apperr.ErrNotFound) { ... }
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

// Kind classifies an application error.
type Kind uint8

const (
	// KindUnknown is used for errors that were not produced by this package.
	KindUnknown Kind = iota
	// KindNotFound means the directory entity or local record does not exist.
	KindNotFound
	// KindWrongEntityKind means an identifier resolved to the wrong kind of entity,
	// e.g. a user id where a group id was expected.
	KindWrongEntityKind
	// KindTransport is an adapter level I/O failure.
	KindTransport
	// KindValidation means a record or request is malformed.
	KindValidation
	// KindAlreadyStrongerRole is a no-op signal from a role grant.
	KindAlreadyStrongerRole
	// KindConcurrencyConflict means another sync holds the (site, group) lease.
	KindConcurrencyConflict
)

var kindNames = map[Kind]string{ //nolint:gochecknoglobals
	KindUnknown:             "unknown",
	KindNotFound:            "not_found",
	KindWrongEntityKind:     "wrong_entity_kind",
	KindTransport:           "transport",
	KindValidation:          "validation",
	KindAlreadyStrongerRole: "already_stronger_role",
	KindConcurrencyConflict: "concurrency_conflict",
}

// String returns the snake case name of the kind.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}

	return kindNames[KindUnknown]
}

// HTTPStatus maps the kind to a response status for the admin API.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindWrongEntityKind, KindValidation:
		return http.StatusBadRequest
	case KindConcurrencyConflict:
		return http.StatusConflict
	case KindTransport:
		return http.StatusBadGateway
	case KindAlreadyStrongerRole:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Error is an error with a kind, the operation that failed and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrWrongEntityKind     = &Error{Kind: KindWrongEntityKind}
	ErrTransport           = &Error{Kind: KindTransport}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrAlreadyStrongerRole = &Error{Kind: KindAlreadyStrongerRole}
	ErrConcurrencyConflict = &Error{Kind: KindConcurrencyConflict}
)

// New returns an error of the given kind.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap returns an error of the given kind with err as its cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	parts := make([]string, 0, 3) //nolint:mnd

	if e.Op != "" {
		parts = append(parts, e.Op)
	}

	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}

	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if len(parts) == 0 {
		return e.Kind.String()
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	if t.Op != "" || t.Msg != "" || t.Err != nil {
		return e == t
	}

	return e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

// IsNotFound is a shorthand for errors.Is(err, ErrNotFound).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
