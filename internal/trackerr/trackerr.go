// Package trackerr declares the error kinds shared by the tracker core.
package trackerr

import "errors"

// Kind classifies a tracker error so callers can branch with errors.Is.
type Kind int

const (
	InvalidArgument Kind = iota
	SizeMismatch
	IndexNotReady
	IoError
	BadFormat
	Cancelled
	Timeout
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case SizeMismatch:
		return "size mismatch"
	case IndexNotReady:
		return "index not ready"
	case IoError:
		return "io error"
	case BadFormat:
		return "bad format"
	case Cancelled:
		return "cancelled"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error pairs a Kind with a contextual message. It unwraps to the sentinel
// of its Kind (ErrTimeout for Timeout, and so on), so errors.Is(err, trackerr.ErrTimeout) works
// regardless of how much context was attached.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Msg }

func (e *Error) Unwrap() error { return sentinels[e.Kind] }

// New builds an *Error carrying the given kind and message.
func New(k Kind, msg string) error { return &Error{Kind: k, Msg: msg} }

// Sentinel errors for use with errors.Is against a bare Kind, independent
// of any attached context.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrSizeMismatch    = errors.New("size mismatch")
	ErrIndexNotReady   = errors.New("index not ready")
	ErrIoError         = errors.New("io error")
	ErrBadFormat       = errors.New("bad format")
	ErrCancelled       = errors.New("cancelled")
	ErrTimeout         = errors.New("timeout")
)

var sentinels = map[Kind]error{
	InvalidArgument: ErrInvalidArgument,
	SizeMismatch:    ErrSizeMismatch,
	IndexNotReady:   ErrIndexNotReady,
	IoError:         ErrIoError,
	BadFormat:       ErrBadFormat,
	Cancelled:       ErrCancelled,
	Timeout:         ErrTimeout,
}

// Is reports whether err was produced with the given kind.
func Is(err error, k Kind) bool { return errors.Is(err, sentinels[k]) }
