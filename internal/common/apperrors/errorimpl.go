package apperrors

import (
	"errors"
	"strings"
)

type appError struct {
	msg        string
	base       error
	wrapped    []error
	statuscode int
	detail     string
}

// Error returns the message, followed by the detail text on its own line when present.
func (e *appError) Error() string {
	if e.detail != "" {
		return e.msg + "\n" + e.detail
	}
	return e.msg
}

// ErrorAll returns the message followed by the messages of all wrapped errors.
func (e *appError) ErrorAll() string {
	var b strings.Builder
	b.WriteString(e.msg)
	for _, err := range e.wrapped {
		if err == e.base {
			continue
		}
		b.WriteString(": ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *appError) Unwrap() error {
	return e.base
}

func (e *appError) UnwrapAll() []error {
	return e.wrapped
}

func (e *appError) New(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		statuscode: e.statuscode,
	}
}

func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		wrapped:    append([]error{e}, e.wrapped...),
		statuscode: e.statuscode,
		detail:     e.detail,
	}
}

func (e *appError) MsgErr(msg string, errs ...error) Error {
	return &appError{
		msg:        msg,
		base:       e,
		wrapped:    append([]error{e}, nonNil(errs)...),
		statuscode: e.statuscode,
		detail:     e.detail,
	}
}

func (e *appError) Err(errs ...error) Error {
	return &appError{
		msg:        e.msg,
		base:       e,
		wrapped:    append([]error{e}, nonNil(errs)...),
		statuscode: e.statuscode,
		detail:     e.detail,
	}
}

func (e *appError) WithStatusCode(code int) Error {
	cp := *e
	cp.statuscode = code
	return &cp
}

func (e *appError) StatusCode() int {
	return e.statuscode
}

func (e *appError) WithDetail(detail string) Error {
	cp := *e
	cp.detail = detail
	return &cp
}

func (e *appError) Detail() string {
	return e.detail
}

// Is reports whether target is the base error or any of the wrapped errors.
func (e *appError) Is(target error) bool {
	if target == nil {
		return false
	}
	if errors.Is(e.base, target) {
		return true
	}
	for _, err := range e.wrapped {
		if err == error(e) {
			continue
		}
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// As finds the first wrapped error that matches target.
func (e *appError) As(target any) bool {
	for _, err := range e.wrapped {
		if err == error(e) {
			continue
		}
		if errors.As(err, target) {
			return true
		}
	}
	return false
}

// New creates a root error kind.
func New(msg string) Error {
	return &appError{msg: msg}
}

func nonNil(errs []error) []error {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
