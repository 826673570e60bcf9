package engine

import (
	"errors"
	"time"
)

// ErrorKind classifies a domain error so the HTTP boundary can map it to
// a status code without parsing messages.
type ErrorKind int

const (
	KindBadRequest ErrorKind = iota
	KindNotFound
	KindConflict
	KindUnauthenticated
	KindUnauthorized
	KindUnavailable
	KindInternal
)

// Error is the typed error surfaced by the match engine and registry.
// RetryAt is set on time-gate failures; Error() then appends the
// "Try again at <RFC3339>" sentence clients parse to schedule retries.
type Error struct {
	Kind    ErrorKind
	Message string
	RetryAt time.Time
}

func (e *Error) Error() string {
	if !e.RetryAt.IsZero() {
		return e.Message + " Try again at " + e.RetryAt.UTC().Format(time.RFC3339)
	}
	return e.Message
}

// ErrNoMoreQuestions signals an empty unused queue. Verify treats it as
// "end the match"; other callers surface it as a bad request.
var ErrNoMoreQuestions = &Error{Kind: KindBadRequest, Message: "No more questions available"}

func badRequest(msg string) *Error {
	return &Error{Kind: KindBadRequest, Message: msg}
}

func notFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func internalErr(msg string) *Error {
	return &Error{Kind: KindInternal, Message: msg}
}

func retryAt(msg string, at time.Time) *Error {
	return &Error{Kind: KindBadRequest, Message: msg, RetryAt: at}
}

// KindOf extracts the error kind, defaulting to KindInternal for
// unexpected errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
