package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/studio1767/ctrmgr/internal/platform"
)

// ErrCancelled reports that a cancel or quit signal stopped the work.
type ErrCancelled struct{}

func (e *ErrCancelled) Error() string {
	return "operation cancelled"
}

// ErrBadData reports an unrecognised or truncated container.
type ErrBadData struct {
	msg string
}

func NewBadData(format string, args ...interface{}) *ErrBadData {
	return &ErrBadData{msg: fmt.Sprintf(format, args...)}
}

func (e *ErrBadData) Error() string {
	return "bad data: " + e.msg
}

// ErrResource reports that a job could not get what it needs to run.
type ErrResource struct {
	msg string
}

func (e *ErrResource) Error() string {
	return "out of resources: " + e.msg
}

// transportError is implemented by the URL transport errors.
type transportError interface {
	error
	TransportStatus() int
}

// FailureKind tags where a per-item failure came from.
type FailureKind int

const (
	KindOther FailureKind = iota
	KindPlatform
	KindTransport
	KindErrno
	KindBadData
	KindCancelled
	KindResource
)

func (k FailureKind) String() string {
	switch k {
	case KindPlatform:
		return "platform"
	case KindTransport:
		return "transport"
	case KindErrno:
		return "io"
	case KindBadData:
		return "bad data"
	case KindCancelled:
		return "cancelled"
	case KindResource:
		return "resource"
	}
	return "other"
}

// Failure is a tagged per-item failure. Only the field matching Kind is set.
type Failure struct {
	Kind   FailureKind
	Index  int
	Result platform.Result
	Errno  syscall.Errno
	Status int
	Err    error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindPlatform:
		return fmt.Sprintf("item %d: %s", f.Index, f.Result.Error())
	case KindErrno:
		return fmt.Sprintf("item %d: i/o error %d: %s", f.Index, int(f.Errno), f.Err)
	case KindTransport:
		return fmt.Sprintf("item %d: transport error (status %d): %s", f.Index, f.Status, f.Err)
	}
	return fmt.Sprintf("item %d: %s", f.Index, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Classify tags err for item index.
func Classify(index int, err error) *Failure {
	var failure *Failure
	if errors.As(err, &failure) {
		f := *failure
		f.Index = index
		return &f
	}

	f := &Failure{Kind: KindOther, Index: index, Err: err}

	var cancelled *ErrCancelled
	var baddata *ErrBadData
	var resource *ErrResource
	var result platform.Result
	var transport transportError
	var errno syscall.Errno

	switch {
	case errors.As(err, &cancelled), errors.Is(err, context.Canceled):
		f.Kind = KindCancelled
	case errors.As(err, &baddata), errors.Is(err, io.ErrUnexpectedEOF):
		f.Kind = KindBadData
	case errors.As(err, &resource):
		f.Kind = KindResource
	case errors.As(err, &result):
		f.Kind = KindPlatform
		f.Result = result
	case errors.As(err, &transport):
		f.Kind = KindTransport
		f.Status = transport.TransportStatus()
	case errors.As(err, &errno):
		f.Kind = KindErrno
		f.Errno = errno
	}

	return f
}
