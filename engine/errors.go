package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrStoppedExternally is generated when the trigger status shows the
	// instrument halted acquisition while the engine expected it running
	ErrStoppedExternally = errors.New("instrument was stopped externally")

	// ErrStillStopped is generated when the instrument does not resume
	// acquisition after a read
	ErrStillStopped = errors.New("instrument still stopped")

	// ErrRecallWhileRunning is generated when a setup recall is requested
	// while the engine is running
	ErrRecallWhileRunning = errors.New("set server to Stop before recalling a setup")
)

// FatalError is an error after which the engine cannot continue; the
// process should exit
type FatalError struct {
	Op  string
	Cmd string
	Err error
}

func (e *FatalError) Error() string {
	if e.Cmd == "" {
		return fmt.Sprintf("fatal error in %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("fatal error in %s, command %q: %v", e.Op, e.Cmd, e.Err)
}

// Unwrap returns the cause
func (e *FatalError) Unwrap() error { return e.Err }

// ChannelError is a failure acquiring or converting one channel's waveform
type ChannelError struct {
	Channel int
	Op      string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s of channel %d: %v", e.Op, e.Channel, e.Err)
}

// Unwrap returns the cause
func (e *ChannelError) Unwrap() error { return e.Err }
