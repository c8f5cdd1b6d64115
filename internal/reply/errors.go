// Package reply composes echo replies for normalized updates and delivers
// them through a bounded queue and a fixed worker pool.
package reply

import "errors"

// Sentinel errors for dispatcher operations.
var (
	// ErrInboxFull indicates the dispatcher queue is at capacity and the
	// update was dropped.
	ErrInboxFull = errors.New("reply: inbox full, update dropped")

	// ErrDispatcherStopped indicates the dispatcher has been shut down and
	// no longer accepts updates.
	ErrDispatcherStopped = errors.New("reply: dispatcher stopped")

	// ErrNoSender indicates no Sender has been configured.
	ErrNoSender = errors.New("reply: no sender configured")
)
