package hcsr04

import "github.com/pkg/errors"

var (
	// ErrEchoStartTimeout means the sensor never raised the echo pin after a
	// trigger pulse. Recoverable; the next cycle may simply try again.
	ErrEchoStartTimeout = errors.New("timed out waiting for echo pulse to start")

	// ErrEchoEndTimeout means the echo pulse never ended within the timeout.
	ErrEchoEndTimeout = errors.New("timed out waiting for echo pulse to end")

	// ErrEchoGlitch means the echo pin was already high going into a cycle,
	// i.e. stale state from a previous pulse. Reported as its own condition
	// rather than silently misread.
	ErrEchoGlitch = errors.New("echo pin high before trigger; stale echo from a previous cycle")

	// ErrOutOfRange means the computed distance is physically implausible for
	// the configured sensor range. Recoverable.
	ErrOutOfRange = errors.New("computed distance outside configured sensor range")

	// ErrAlreadyMonitoring and ErrNotMonitoring flag monitoring state-machine
	// misuse by the caller.
	ErrAlreadyMonitoring = errors.New("monitoring already running")
	ErrNotMonitoring     = errors.New("monitoring not running")
)
