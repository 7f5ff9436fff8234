package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
)

// Bundle load fault kinds. A failed load task error always unwraps to one of these.
var (
	// ErrConfigurationFault is a deployment or programming error (unknown load mode or
	// method, missing decryption services). Never retried.
	ErrConfigurationFault = errors.New("configuration fault")
	// ErrTransferFault is a download or unpack failure. A new task may retry it.
	ErrTransferFault = errors.New("transfer fault")
	// ErrInstantiationFault means the engine could not create a bundle from local bytes.
	ErrInstantiationFault = errors.New("instantiation fault")
)
