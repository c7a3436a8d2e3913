// Package gpio defines the pin-driving capability the HC-SR04 driver needs
// from a platform: claim a trigger/echo pin pair, drive and read digital
// levels, and block until a level transition occurs. Concrete backends live
// in the chardev, sysfs, and fake subpackages.
package gpio

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Kind identifies a concrete pulse-timing mechanism.
type Kind string

const (
	// KindCharDev uses the Linux GPIO character device (ioctl) interface.
	KindCharDev = Kind("chardev")
	// KindSysfs uses the legacy sysfs GPIO interface by way of periph.io.
	KindSysfs = Kind("sysfs")
	// KindFake synthesizes echo timings in software; always available.
	KindFake = Kind("fake")
)

var (
	// ErrPinUnavailable is returned by Acquire when either pin of the pair is
	// already claimed, by this process or by the OS.
	ErrPinUnavailable = errors.New("pin already claimed")

	// ErrBackendIO tags a driver-level fault. Callers should surface it; the
	// driver does not retry these automatically.
	ErrBackendIO = errors.New("gpio backend i/o failure")

	// ErrWaitTimeout is returned by WaitForLevel when the target level was not
	// observed within the timeout.
	ErrWaitTimeout = errors.New("timed out waiting for pin level")

	// ErrNoEdgeSupport is returned by WaitForLevel on backends that cannot
	// detect level transitions. Callers fall back to polling Level.
	ErrNoEdgeSupport = errors.New("backend cannot wait for level transitions")
)

// Backend opens trigger/echo pin pairs using one concrete mechanism.
type Backend interface {
	// Kind reports which mechanism this backend uses.
	Kind() Kind

	// Acquire claims exclusive ownership of the given trigger and echo pins
	// and returns a handle bound to them. It fails with ErrPinUnavailable if
	// either pin is already claimed.
	Acquire(trigPin, echoPin int) (Handle, error)
}

// Handle owns a claimed trigger/echo pin pair for the lifetime of a sensor.
// A handle is not safe for concurrent measurement use; the owning sensor
// serializes access. Close is safe to call from any goroutine.
type Handle interface {
	// SetLevel drives an output pin high (true) or low (false).
	SetLevel(ctx context.Context, pin int, high bool) error

	// Level reads the current digital level of a pin.
	Level(ctx context.Context, pin int) (bool, error)

	// WaitForLevel blocks until the pin's digital level equals high, or the
	// timeout elapses (ErrWaitTimeout). On success it returns the timestamp
	// of the observed transition; timestamps from consecutive calls on the
	// same handle come from the same clock, so their difference is a valid
	// pulse width. Timeout bookkeeping uses a monotonic clock.
	WaitForLevel(ctx context.Context, pin int, high bool, timeout time.Duration) (time.Time, error)

	// Close releases the pin pair for reacquisition. It is idempotent and
	// always succeeds on repeated calls.
	Close() error
}

// IOError wraps a driver-level fault so callers can distinguish it from
// timeouts and contention with errors.Is(err, ErrBackendIO).
func IOError(err error, op string, pin int) error {
	return errors.Wrapf(ErrBackendIO, "%s (pin %d): %v", op, pin, err)
}
