package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can tell "try again" apart from
// "fix your input" and "the service returned unusable data".
type Kind string

const (
	// KindUpstream means the extraction service was unreachable or returned an error.
	KindUpstream Kind = "upstream"
	// KindMalformedResponse means the reply was not valid JSON or lacked the expected shape.
	KindMalformedResponse Kind = "malformed_response"
	// KindValidation means an extracted item failed schema or range checks.
	KindValidation Kind = "validation"
	// KindInput means the request itself was malformed.
	KindInput Kind = "input"
	// KindInternal covers everything else.
	KindInternal Kind = "internal"
)

// Error is the error type returned by the extraction pipeline.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "ExtractJSON"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorBody is the wire form of an Error.
type ErrorBody struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"error"`
}

// Upstream wraps err as an UpstreamError.
func Upstream(op string, err error) error {
	return &Error{Kind: KindUpstream, Op: op, Err: err}
}

// Malformed builds a MalformedResponseError.
func Malformed(op, msg string, err error) error {
	return &Error{Kind: KindMalformedResponse, Op: op, Msg: msg, Err: err}
}

// Validation builds a ValidationError.
func Validation(op, msg string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg, Err: err}
}

// Input builds an InputError.
func Input(op, msg string, err error) error {
	return &Error{Kind: KindInput, Op: op, Msg: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// BodyOf converts err into its wire form.
func BodyOf(err error) *ErrorBody {
	if err == nil {
		return nil
	}
	return &ErrorBody{Kind: KindOf(err), Message: err.Error()}
}
