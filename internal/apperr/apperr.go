// Package apperr defines the error taxonomy shared by the relay, the indexer
// and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller should react to it.
type Kind string

const (
	KindInputValidation Kind = "invalid_input"
	KindExpired         Kind = "expired"
	KindBadSignature    Kind = "bad_signature"
	KindRelayerMismatch Kind = "relayer_mismatch"
	KindTransient       Kind = "transient"
	KindReverted        Kind = "reverted"
	KindRateLimited     Kind = "rate_limited"
	KindAlreadyRunning  Kind = "already_running"
)

// Error carries a Kind, the operation that failed and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error from a message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Wrap builds an Error around err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
