package loader

import "github.com/slok/assetpipe/internal/model"

// Step is a state of the loading pipeline. Steps only move forward.
type Step int

const (
	StepInit Step = iota
	StepDownload
	StepCheckDownload
	StepUnpack
	StepCheckUnpack
	StepLoadFile
	StepCheckLoadFile
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepInit:
		return "init"
	case StepDownload:
		return "download"
	case StepCheckDownload:
		return "check-download"
	case StepUnpack:
		return "unpack"
	case StepCheckUnpack:
		return "check-unpack"
	case StepLoadFile:
		return "load-file"
	case StepCheckLoadFile:
		return "check-load-file"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

// Status is the result status of a task.
type Status int

const (
	StatusPending Status = iota
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// WaitResult is the outcome of a forced synchronous completion.
type WaitResult int

const (
	// WaitCompleted means the task reached its terminal step.
	WaitCompleted WaitResult = iota
	// WaitTimedOut means the iteration budget was exhausted before the task finished.
	WaitTimedOut
	// WaitCanceled means the context was done before the task finished.
	WaitCanceled
)

func (w WaitResult) String() string {
	switch w {
	case WaitCompleted:
		return "completed"
	case WaitTimedOut:
		return "timed-out"
	case WaitCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Fault is the error of a failed task. The message is kept verbatim and the fault
// unwraps to its kind: model.ErrConfigurationFault, model.ErrTransferFault or
// model.ErrInstantiationFault.
type Fault struct {
	Kind    error
	Message string
}

func (f *Fault) Error() string { return f.Message }

func (f *Fault) Unwrap() error { return f.Kind }

func configurationFault(msg string) *Fault {
	return &Fault{Kind: model.ErrConfigurationFault, Message: msg}
}

func transferFault(msg string) *Fault {
	return &Fault{Kind: model.ErrTransferFault, Message: msg}
}

func instantiationFault(msg string) *Fault {
	return &Fault{Kind: model.ErrInstantiationFault, Message: msg}
}
