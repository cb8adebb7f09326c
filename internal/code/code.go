// Package code classifies the error taxonomy the core surfaces to its
// callers and maps each kind to the POSIX errno the filesystem adapter
// returns to the FUSE runtime.
package code

import (
	"errors"
	"syscall"
)

// Kind names one of the error categories the core can produce. It is not
// a Go error type itself — packages keep their own sentinel errors and
// classify them in their own errors.go — but it gives every layer above a single,
// stable vocabulary to branch on.
type Kind int

const (
	// Unknown is the zero value; treated as IoError at the boundary.
	Unknown Kind = iota
	InvalidPath
	NotFound
	IsDirectory
	AlreadyExists
	QuotaExceeded
	IntegrityFailure
	IoError
	OutOfMemory
	InvalidState
	PermissionDenied
)

// String renders the kind's stable, PascalCase name.
func (k Kind) String() string {
	switch k {
	case InvalidPath:
		return "InvalidPath"
	case NotFound:
		return "NotFound"
	case IsDirectory:
		return "IsDirectory"
	case AlreadyExists:
		return "AlreadyExists"
	case QuotaExceeded:
		return "QuotaExceeded"
	case IntegrityFailure:
		return "IntegrityFailure"
	case IoError:
		return "IoError"
	case OutOfMemory:
		return "OutOfMemory"
	case InvalidState:
		return "InvalidState"
	case PermissionDenied:
		return "PermissionDenied"
	default:
		return "Unknown"
	}
}

// Errno returns the POSIX errno a host filesystem runtime should report
// for this kind.
func (k Kind) Errno() syscall.Errno {
	switch k {
	case InvalidPath:
		return syscall.EINVAL
	case NotFound:
		return syscall.ENOENT
	case IsDirectory:
		return syscall.EISDIR
	case AlreadyExists:
		return syscall.EEXIST
	case QuotaExceeded:
		return syscall.ENOSPC
	case IntegrityFailure:
		return syscall.EIO
	case IoError:
		return syscall.EIO
	case OutOfMemory:
		return syscall.ENOMEM
	case InvalidState:
		return syscall.EPERM
	case PermissionDenied:
		return syscall.EACCES
	default:
		return syscall.EIO
	}
}

// Classifier maps an error to its Kind. Nothing registers or calls
// Classifier values: each package classifies its own sentinels and
// attaches the result with Wrap, so a caller several layers up can
// still recover the Kind with KindOf.
type Classifier func(err error) (Kind, bool)

// Coded pairs an error with the Kind it should be reported as. Adapter
// code at the outermost boundary type-asserts for *Coded instead of
// re-deriving the classification from each package's sentinels.
type Coded struct {
	Kind Kind
	Err  error
}

func (c *Coded) Error() string { return c.Err.Error() }

func (c *Coded) Unwrap() error { return c.Err }

// Wrap annotates err with kind, unless err is nil or already a *Coded
// (in which case the existing classification wins).
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var existing *Coded
	if errors.As(err, &existing) {
		return err
	}
	return &Coded{Kind: kind, Err: err}
}

// KindOf returns the Kind carried by err, or IoError if err was never
// classified (an unclassified error reaching the adapter is treated as
// an opaque I/O failure rather than panicking).
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var c *Coded
	if errors.As(err, &c) {
		return c.Kind
	}
	return IoError
}
