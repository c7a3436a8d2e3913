//go:build !linux

// Package chardev implements the gpio backend on top of the Linux GPIO
// character device (ioctl) interface. On non-Linux platforms construction
// fails and the capability probe moves on to the next backend.
package chardev

import (
	"github.com/pkg/errors"

	"go.viam.com/hcsr04/gpio"
)

// DefaultDevicePath is the GPIO chip character device used when the
// configuration does not name one.
const DefaultDevicePath = "/dev/gpiochip0"

// Backend is implemented in the Linux version. The dummy struct here just
// gets things to compile on non-Linux environments.
type Backend struct{}

// NewBackend always fails on non-Linux platforms.
func NewBackend(devicePath string) (*Backend, error) {
	return nil, errors.New("GPIO character device only supported on Linux")
}

// Kind implements gpio.Backend.
func (b *Backend) Kind() gpio.Kind {
	return gpio.KindCharDev
}

// Acquire implements gpio.Backend.
func (b *Backend) Acquire(trigPin, echoPin int) (gpio.Handle, error) {
	return nil, errors.New("GPIO character device only supported on Linux")
}
