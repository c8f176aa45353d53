package install

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/studio1767/ctrmgr/internal/cia"
	"github.com/studio1767/ctrmgr/internal/platform"
	"github.com/studio1767/ctrmgr/internal/task"
)

// Status is the terminal state of one install item.
type Status int

const (
	// NotStarted items were never reached because the job stopped early.
	NotStarted Status = iota
	Finished
	Failed
	Cancelled
	IOError
	WrongSystem
	ResultCode
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case IOError:
		return "i/o error"
	case WrongSystem:
		return "wrong system"
	case ResultCode:
		return "platform error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Outcome is set once per item by the worker. Errno is only meaningful for
// IOError and Result only for ResultCode.
type Outcome struct {
	Status  Status
	Result  platform.Result
	Errno   syscall.Errno
	Err     error
	Source  string
	Type    cia.ContainerType
	TitleID uint64
	Media   platform.MediaType
	Size    uint64
	// Target is where an executable was written.
	Target string
}

func (o Outcome) Succeeded() bool {
	return o.Status == Finished
}

// Message is the human readable terminal message for the item.
func (o Outcome) Message() string {
	switch o.Status {
	case Finished:
		switch o.Type {
		case cia.Executable:
			return fmt.Sprintf("installed %s", o.Target)
		case cia.Ticket:
			return fmt.Sprintf("installed ticket %s", cia.FormatID(o.TitleID))
		}
		return fmt.Sprintf("installed %s to %s", cia.FormatID(o.TitleID), o.Media)
	case Cancelled:
		return "install cancelled"
	case WrongSystem:
		return fmt.Sprintf("%s requires the newer console", cia.FormatID(o.TitleID))
	case ResultCode:
		return "install failed: " + o.Result.Error()
	case IOError:
		return fmt.Sprintf("install failed: i/o error %d (%s)", int(o.Errno), o.Errno.Error())
	case NotStarted:
		return "not installed"
	}
	if o.Err != nil {
		return "install failed: " + o.Err.Error()
	}
	return "install failed"
}

// ErrWrongSystem reports a title declined because it targets the newer
// console revision.
type ErrWrongSystem struct {
	TitleID uint64
}

func (e *ErrWrongSystem) Error() string {
	return fmt.Sprintf("title %s is for the newer console", cia.FormatID(e.TitleID))
}

// apply folds a classified failure into the outcome.
func (o *Outcome) apply(f *task.Failure) {
	o.Err = f.Err

	var wrong *ErrWrongSystem
	switch {
	case errors.As(f.Err, &wrong):
		o.Status = WrongSystem
	case f.Kind == task.KindCancelled:
		o.Status = Cancelled
	case f.Kind == task.KindPlatform:
		o.Status = ResultCode
		o.Result = f.Result
	case f.Kind == task.KindErrno:
		o.Status = IOError
		o.Errno = f.Errno
	default:
		o.Status = Failed
	}
}
