// Package mwerr defines the error kinds shared by the master-worker packages.
//
// Every failure surfaced by the stream codec, the transports and the control
// loops is an *Error carrying one of three kinds:
//
//   - [KindProtocol]: unknown type name, version mismatch, malformed record
//   - [KindTransport]: connection refused/reset, accept failure, unreachable rank
//   - [KindUsage]: caller bugs such as reading without a matching write
//
// Callers branch on the kind with errors.Is against the sentinels:
//
//	if errors.Is(err, mwerr.ErrTransport) {
//	    // treat the connection as dead
//	}
package mwerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	KindProtocol Kind = iota + 1
	KindTransport
	KindUsage
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindTransport:
		return "transport"
	case KindUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching on the kind alone.
var (
	ErrProtocol  = &Error{Kind: KindProtocol}
	ErrTransport = &Error{Kind: KindTransport}
	ErrUsage     = &Error{Kind: KindUsage}
)

// Error is the error type returned by the mwdispatch packages.
type Error struct {
	Kind Kind
	// Op names the failing operation (e.g. "read", "decode").
	Op string
	// Peer identifies the remote end: host:port, rank/tag or a memory id.
	Peer string
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := e.Kind.String() + " error"
	if e.Op != "" {
		s += ": " + e.Op
	}
	if e.Peer != "" {
		s += " [" + e.Peer + "]"
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind.
// Only sentinels (no Op, Peer, Msg or Err) match by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Peer != "" || t.Msg != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// Protocol creates a protocol error.
func Protocol(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindProtocol, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Transport wraps a transport failure for the given peer.
func Transport(op, peer string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Peer: peer, Err: err}
}

// Usage creates a usage error.
func Usage(op, peer, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUsage, Op: op, Peer: peer, Msg: fmt.Sprintf(format, args...)}
}

// WrapProtocol wraps err as a protocol error unless it already carries a kind.
func WrapProtocol(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindProtocol, Op: op, Err: err}
}

// KindOf returns the kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsProtocol reports whether err is a protocol error.
func IsProtocol(err error) bool { return errors.Is(err, ErrProtocol) }

// IsTransport reports whether err is a transport error.
func IsTransport(err error) bool { return errors.Is(err, ErrTransport) }

// IsUsage reports whether err is a usage error.
func IsUsage(err error) bool { return errors.Is(err, ErrUsage) }
