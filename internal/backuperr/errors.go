// Package backuperr defines the error kinds shared by the backup and restore
// pipelines. Every error produced by the engines can be classified with
// errors.Is against one of the sentinel kinds below.
package backuperr

import (
	"errors"
	"fmt"
	"os"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrPermission        = errors.New("permission denied")
	ErrInsufficientSpace = errors.New("insufficient space")
	ErrCrypto            = errors.New("crypto failure")
	ErrIntegrity         = errors.New("integrity violation")
	ErrIO                = errors.New("i/o failure")
)

// Error is a classified failure. Kind is one of the sentinel errors above.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", msg, e.Kind)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func New(kind error, op, path string, err error) error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func NotFound(op, path string, err error) error   { return New(ErrNotFound, op, path, err) }
func Permission(op, path string, err error) error { return New(ErrPermission, op, path, err) }
func Crypto(op string, err error) error           { return New(ErrCrypto, op, "", err) }
func Integrity(path string, err error) error      { return New(ErrIntegrity, "verify", path, err) }
func IO(op, path string, err error) error         { return New(ErrIO, op, path, err) }

// FromOS classifies an error returned by the os package.
func FromOS(op, path string, err error) error {
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return NotFound(op, path, err)
	case os.IsPermission(err):
		return Permission(op, path, err)
	default:
		return IO(op, path, err)
	}
}

// InsufficientSpaceError reports an admission veto with the figures that led to it.
type InsufficientSpaceError struct {
	Path       string
	Required   uint64
	WithMargin uint64
	Available  uint64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient space on volume of %s: need %d bytes (%d with margin), %d available",
		e.Path, e.Required, e.WithMargin, e.Available)
}

func (e *InsufficientSpaceError) Is(target error) bool {
	return target == ErrInsufficientSpace
}

// FileFailure records a per-file error that did not stop the run.
type FileFailure struct {
	Path string
	Err  error
}

func (f FileFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

func (f FileFailure) Unwrap() error { return f.Err }

// KindOf returns a short label for the kind of err, for summaries and audit records.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrCrypto):
		return "crypto"
	case errors.Is(err, ErrInsufficientSpace):
		return "space"
	case errors.Is(err, ErrPermission):
		return "permission"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "io"
	}
}
