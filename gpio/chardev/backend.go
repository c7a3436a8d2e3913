//go:build linux

// Package chardev implements the gpio backend on top of the Linux GPIO
// character device (ioctl) interface, indirectly by way of mkch's gpio
// package. This is the preferred mechanism on modern kernels: echo
// transitions arrive as kernel-timestamped line events, so pulse widths do
// not depend on user-space scheduling.
package chardev

import (
	"context"
	"sync"
	"time"

	mkchgpio "github.com/mkch/gpio"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/hcsr04/gpio"
)

// DefaultDevicePath is the GPIO chip character device used when the
// configuration does not name one.
const DefaultDevicePath = "/dev/gpiochip0"

// Backend opens pin pairs on a single GPIO chip device.
type Backend struct {
	devicePath string

	mu      sync.Mutex
	claimed map[int]bool
}

// NewBackend returns a chardev backend for the given chip device path,
// verifying the device can be opened. An empty path means DefaultDevicePath.
func NewBackend(devicePath string) (*Backend, error) {
	if devicePath == "" {
		devicePath = DefaultDevicePath
	}
	chip, err := mkchgpio.OpenChip(devicePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open GPIO chip %q", devicePath)
	}
	utils.UncheckedErrorFunc(chip.Close)
	return &Backend{devicePath: devicePath, claimed: map[int]bool{}}, nil
}

// Kind implements gpio.Backend.
func (b *Backend) Kind() gpio.Kind {
	return gpio.KindCharDev
}

// Acquire implements gpio.Backend. The kernel enforces exclusive line
// ownership across processes; the claimed map enforces it within this one.
func (b *Backend) Acquire(trigPin, echoPin int) (gpio.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, pin := range []int{trigPin, echoPin} {
		if b.claimed[pin] {
			return nil, errors.Wrapf(gpio.ErrPinUnavailable, "pin %d", pin)
		}
	}

	chip, err := mkchgpio.OpenChip(b.devicePath)
	if err != nil {
		return nil, gpio.IOError(err, "open GPIO chip", trigPin)
	}
	defer utils.UncheckedErrorFunc(chip.Close)

	// The 0 means the trigger idles low; a measurement cycle drives the
	// 10us pulse explicitly.
	trigLine, err := chip.OpenLine(uint32(trigPin), 0, mkchgpio.Output, "hcsr04-trigger")
	if err != nil {
		return nil, errors.Wrapf(gpio.ErrPinUnavailable, "trigger pin %d: %v", trigPin, err)
	}
	echoLine, err := chip.OpenLineWithEvents(
		uint32(echoPin), mkchgpio.Input, mkchgpio.BothEdges, "hcsr04-echo")
	if err != nil {
		return nil, multierr.Combine(
			errors.Wrapf(gpio.ErrPinUnavailable, "echo pin %d: %v", echoPin, err),
			trigLine.Close(),
		)
	}

	b.claimed[trigPin] = true
	b.claimed[echoPin] = true
	return &handle{
		backend:  b,
		trigPin:  trigPin,
		echoPin:  echoPin,
		trigLine: trigLine,
		echoLine: echoLine,
	}, nil
}

type handle struct {
	backend *Backend
	trigPin int
	echoPin int

	mu       sync.Mutex
	closed   bool
	trigLine *mkchgpio.Line
	echoLine *mkchgpio.LineWithEvent
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

	var value byte
	if high {
		value = 1
	}
	if err := h.trigLine.SetValue(value); err != nil {
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

	var value byte
	var err error
	switch pin {
	case h.trigPin:
		value, err = h.trigLine.Value()
	case h.echoPin:
		value, err = h.echoLine.Value()
	default:
		return false, errors.Errorf("pin %d is not part of this handle", pin)
	}
	if err != nil {
		return false, gpio.IOError(err, "read level", pin)
	}
	// Any non-zero value should be considered high.
	return value != 0, nil
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
		return time.Time{}, errors.Errorf("pin %d has no event support on this handle", pin)
	}
	events := h.echoLine.Events()
	h.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		case <-timer.C:
			return time.Time{}, errors.Wrapf(gpio.ErrWaitTimeout,
				"pin %d did not go %s within %s", pin, levelName(high), timeout)
		case event, ok := <-events:
			if !ok {
				return time.Time{}, gpio.IOError(errors.New("event stream closed"), "wait for level", pin)
			}
			if event.RisingEdge == high {
				// Kernel event timestamps share a clock across events on this
				// line, so differences between them are valid pulse widths.
				return event.Time, nil
			}
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

	err := multierr.Combine(h.trigLine.Close(), h.echoLine.Close())
	h.trigLine = nil
	h.echoLine = nil

	h.backend.mu.Lock()
	delete(h.backend.claimed, h.trigPin)
	delete(h.backend.claimed, h.echoPin)
	h.backend.mu.Unlock()
	return err
}

func levelName(high bool) string {
	if high {
		return "high"
	}
	return "low"
}
