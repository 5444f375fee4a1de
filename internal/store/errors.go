package store

import (
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Kind classifies a store failure. The classification is decided once,
// here, where SQLite's native error is translated — callers branch on
// the kind, never on error text.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransient
	KindConstraint
	KindNotFound
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindConstraint:
		return "constraint"
	case KindNotFound:
		return "not found"
	case KindInvalidInput:
		return "invalid input"
	}
	return "unknown"
}

// Error is a store-layer error tagged with a Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrInvalidIdentifier is returned when an operation receives an id that
// is not a well-formed UUID. No store call is made in that case.
var ErrInvalidIdentifier = &Error{Kind: KindInvalidInput, Op: "validate id", Err: errors.New("identifier is not a valid UUID")}

// transientMarkers are backend failure messages safe to retry.
var transientMarkers = []string{
	"deadlock",
	"service unavailable",
	"session expired",
	"transient",
	"database is locked",
}

// classify wraps err with the Kind decided from SQLite result codes,
// falling back to the fixed transient keyword set.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return &Error{Kind: KindTransient, Op: op, Err: err}
		case sqlite3.SQLITE_CONSTRAINT:
			return &Error{Kind: KindConstraint, Op: op, Err: err}
		}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return &Error{Kind: KindTransient, Op: op, Err: err}
		}
	}
	return &Error{Kind: KindUnknown, Op: op, Err: err}
}

// KindOf returns the Kind of err, or KindUnknown for untagged errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err is safe to retry.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }
