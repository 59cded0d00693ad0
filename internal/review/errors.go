package review

import (
	"errors"
	"fmt"
)

// ErrorKind distinguishes the failure classes a Store operation can report.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindInvalidTransition ErrorKind = "INVALID_TRANSITION"
)

var (
	// ErrNotFound matches any Error whose Kind is KindNotFound.
	ErrNotFound = errors.New("review: summary not found")
	// ErrInvalidTransition matches any Error whose Kind is KindInvalidTransition.
	ErrInvalidTransition = errors.New("review: invalid status transition")
)

// Error describes a rejected Store operation. The Store is left untouched
// whenever one is returned.
type Error struct {
	Kind ErrorKind
	Op   string
	ID   string
	From Status
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("review: %s %q: summary not found", e.Op, e.ID)
	case KindInvalidTransition:
		return fmt.Sprintf("review: %s %q: not allowed from status %s", e.Op, e.ID, e.From)
	}
	return fmt.Sprintf("review: %s %q failed", e.Op, e.ID)
}

// Is lets errors.Is match the package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrInvalidTransition:
		return e.Kind == KindInvalidTransition
	}
	return false
}

func notFound(op, id string) error {
	return &Error{Kind: KindNotFound, Op: op, ID: id}
}

func invalidTransition(op, id string, from Status) error {
	return &Error{Kind: KindInvalidTransition, Op: op, ID: id, From: from}
}
