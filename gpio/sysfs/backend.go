// Package sysfs implements the gpio backend on top of the legacy sysfs GPIO
// interface by way of periph.io. It is the fallback for kernels or
// permission setups where the GPIO character device is unavailable. Echo
// transitions are timestamped in user space after WaitForEdge wakes, so
// readings are noisier than chardev's kernel-stamped events.
package sysfs

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	periphgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"go.viam.com/hcsr04/gpio"
)

// Backend opens pin pairs through the periph.io global pin registry.
type Backend struct {
	logger golog.Logger

	mu      sync.Mutex
	claimed map[int]bool
}

// NewBackend initializes the periph.io host drivers and returns a sysfs
// backend. It fails when no periph driver loads on this platform.
func NewBackend(logger golog.Logger) (*Backend, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "error initializing periph host drivers")
	}
	return &Backend{logger: logger, claimed: map[int]bool{}}, nil
}

// Kind implements gpio.Backend.
func (b *Backend) Kind() gpio.Kind {
	return gpio.KindSysfs
}

// Acquire implements gpio.Backend.
func (b *Backend) Acquire(trigPin, echoPin int) (gpio.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, pin := range []int{trigPin, echoPin} {
		if b.claimed[pin] {
			return nil, errors.Wrapf(gpio.ErrPinUnavailable, "pin %d", pin)
		}
	}

	trig := gpioreg.ByName(strconv.Itoa(trigPin))
	if trig == nil {
		return nil, errors.Wrapf(gpio.ErrPinUnavailable, "no sysfs pin found for %d", trigPin)
	}
	echo := gpioreg.ByName(strconv.Itoa(echoPin))
	if echo == nil {
		return nil, errors.Wrapf(gpio.ErrPinUnavailable, "no sysfs pin found for %d", echoPin)
	}

	if err := trig.Out(periphgpio.Low); err != nil {
		return nil, gpio.IOError(err, "configure trigger output", trigPin)
	}

	// Prefer edge detection; some pins (or older kernels) only support plain
	// reads, in which case the measurement engine busy-polls instead.
	edges := true
	if err := echo.In(periphgpio.PullDown, periphgpio.BothEdges); err != nil {
		b.logger.Debugw("edge detection unavailable; falling back to polling",
			"pin", echoPin, "error", err)
		edges = false
		if err := echo.In(periphgpio.PullDown, periphgpio.NoEdge); err != nil {
			return nil, gpio.IOError(err, "configure echo input", echoPin)
		}
	}

	b.claimed[trigPin] = true
	b.claimed[echoPin] = true
	return &handle{
		backend: b,
		trigPin: trigPin,
		echoPin: echoPin,
		trig:    trig,
		echo:    echo,
		edges:   edges,
	}, nil
}

type handle struct {
	backend *Backend
	trigPin int
	echoPin int
	trig    periphgpio.PinIO
	echo    periphgpio.PinIO
	edges   bool

	mu     sync.Mutex
	closed bool
}

func (h *handle) SetLevel(ctx context.Context, pin int, high bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("handle is closed")
	}
	if pin != h.trigPin {
		return errors.Errorf("pin %d is not the output pin of this handle", pin)
	}

	l := periphgpio.Low
	if high {
		l = periphgpio.High
	}
	if err := h.trig.Out(l); err != nil {
		return gpio.IOError(err, "set level", pin)
	}
	return nil
}

func (h *handle) Level(ctx context.Context, pin int) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false, errors.New("handle is closed")
	}

	switch pin {
	case h.trigPin:
		return h.trig.Read() == periphgpio.High, nil
	case h.echoPin:
		return h.echo.Read() == periphgpio.High, nil
	default:
		return false, errors.Errorf("pin %d is not part of this handle", pin)
	}
}

func (h *handle) WaitForLevel(
	ctx context.Context, pin int, high bool, timeout time.Duration,
) (time.Time, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return time.Time{}, errors.New("handle is closed")
	}
	if pin != h.echoPin {
		h.mu.Unlock()
		return time.Time{}, errors.Errorf("pin %d has no edge support on this handle", pin)
	}
	echo, edges := h.echo, h.edges
	h.mu.Unlock()

	if !edges {
		return time.Time{}, errors.Wrapf(gpio.ErrNoEdgeSupport, "pin %d", pin)
	}

	target := periphgpio.Low
	if high {
		target = periphgpio.High
	}
	if echo.Read() == target {
		return time.Now(), nil
	}
	// time.Now carries a monotonic reading, so both the deadline arithmetic
	// and the returned timestamps are immune to wall-clock adjustments.
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return time.Time{}, errors.Wrapf(gpio.ErrWaitTimeout,
				"pin %d did not reach %v within %s", pin, target, timeout)
		}
		if !echo.WaitForEdge(remaining) {
			return time.Time{}, errors.Wrapf(gpio.ErrWaitTimeout,
				"pin %d did not reach %v within %s", pin, target, timeout)
		}
		if echo.Read() == target {
			return time.Now(), nil
		}
	}
}

// Close implements gpio.Handle; it is idempotent and frees the pin pair.
func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	err := multierr.Combine(h.trig.Halt(), h.echo.Halt())

	h.backend.mu.Lock()
	delete(h.backend.claimed, h.trigPin)
	delete(h.backend.claimed, h.echoPin)
	h.backend.mu.Unlock()
	return err
}
