package supervisor

import (
	"errors"
	"strconv"
)

var (
	// ErrProcessLaunch matches every failure to bring the node up.
	ErrProcessLaunch = errors.New("process launch failed")
	// ErrSignalDelivery matches a stop whose termination signal was not delivered.
	ErrSignalDelivery = errors.New("signal delivery failed")
)

// LaunchError is returned by Start when the child could not be spawned or
// exited inside the start window.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return "launch " + strconv.Quote(e.Command) + ": " + e.Err.Error()
}

func (e *LaunchError) Unwrap() []error { return []error{ErrProcessLaunch, e.Err} }

// SignalError is returned by Stop when SIGTERM could not be delivered to PID.
type SignalError struct {
	PID int
	Err error
}

func (e *SignalError) Error() string {
	return "signal pid " + strconv.Itoa(e.PID) + ": " + e.Err.Error()
}

func (e *SignalError) Unwrap() []error { return []error{ErrSignalDelivery, e.Err} }
