package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failure so that callers can decide whether to fail over,
// retry or give up.
type Kind string

const (
	NavigationTimeout  Kind = "NavigationTimeout"
	SelectorTimeout    Kind = "SelectorTimeout"
	SourceError        Kind = "SourceError"
	EmptyResult        Kind = "EmptyResultError"
	ExtractionInternal Kind = "ExtractionInternalError"
	UnknownJobType     Kind = "UnknownJobType"
	DeliveryError      Kind = "DeliveryError"
	InvalidJob         Kind = "InvalidJob"
)

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to err, a nil err stays nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the outermost kind in err's chain. Unclassified deadline
// and timeout errors are NavigationTimeout, anything else is SourceError.
func KindOf(err error) Kind {
	var ferr *Error
	if errors.As(err, &ferr) {
		return ferr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NavigationTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NavigationTimeout
	}
	return SourceError
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the error text without the kind prefix.
func Message(err error) string {
	var ferr *Error
	if errors.As(err, &ferr) && ferr.Err != nil && ferr == err {
		return ferr.Err.Error()
	}
	return err.Error()
}
