package response

import (
	"errors"
	"strings"
)

// Error is an error that carries its HTTP status and a machine readable slug.
type Error struct {
	Code int
	Slug string
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Err.Error() == t.Err.Error()
}

func NewError(code int, err string) error {
	return &Error{Code: code, Slug: slugify(err), Err: errors.New(err)}
}

// Body is the JSON shape every failed request is answered with.
type Body struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

func slugify(msg string) string {
	return strings.ToUpper(strings.Join(strings.Fields(msg), "_"))
}
