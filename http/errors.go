package http

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedRequestLine = errors.New("http: malformed request line")
	ErrMalformedHeader      = errors.New("http: malformed header")
	ErrTruncatedBody        = errors.New("http: truncated body")

	ErrInvalidRoute  = errors.New("http: invalid route")
	ErrBind          = errors.New("http: bind failed")
	ErrServerStarted = errors.New("http: server already started")
	ErrServerClosed  = errors.New("http: server closed")
	ErrPoolClosed    = errors.New("http: worker pool closed")
)

// BindError is returned by Start when the listening socket cannot be set up.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("http: bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() []error {
	return []error{ErrBind, e.Err}
}

// HandlerError describes a handler that failed or panicked.
type HandlerError struct {
	Prefix string
	Err    error
	Panic  any
	Stack  string
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("http: handler %q panicked: %v", e.Prefix, e.Panic)
	}
	return fmt.Sprintf("http: handler %q: %v", e.Prefix, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
