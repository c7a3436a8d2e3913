// Package inject provides dependency-injected gpio doubles for testing. Any
// function field left nil falls through to the embedded implementation.
package inject

import (
	"context"
	"time"

	"go.viam.com/hcsr04/gpio"
)

// Backend is an injected gpio.Backend.
type Backend struct {
	gpio.Backend
	KindFunc    func() gpio.Kind
	AcquireFunc func(trigPin, echoPin int) (gpio.Handle, error)
}

// Kind calls KindFunc or the embedded Backend.
func (b *Backend) Kind() gpio.Kind {
	if b.KindFunc == nil {
		return b.Backend.Kind()
	}
	return b.KindFunc()
}

// Acquire calls AcquireFunc or the embedded Backend.
func (b *Backend) Acquire(trigPin, echoPin int) (gpio.Handle, error) {
	if b.AcquireFunc == nil {
		return b.Backend.Acquire(trigPin, echoPin)
	}
	return b.AcquireFunc(trigPin, echoPin)
}

// Handle is an injected gpio.Handle.
type Handle struct {
	gpio.Handle
	SetLevelFunc     func(ctx context.Context, pin int, high bool) error
	LevelFunc        func(ctx context.Context, pin int) (bool, error)
	WaitForLevelFunc func(ctx context.Context, pin int, high bool, timeout time.Duration) (time.Time, error)
	CloseFunc        func() error
}

// SetLevel calls SetLevelFunc or the embedded Handle.
func (h *Handle) SetLevel(ctx context.Context, pin int, high bool) error {
	if h.SetLevelFunc == nil {
		return h.Handle.SetLevel(ctx, pin, high)
	}
	return h.SetLevelFunc(ctx, pin, high)
}

// Level calls LevelFunc or the embedded Handle.
func (h *Handle) Level(ctx context.Context, pin int) (bool, error) {
	if h.LevelFunc == nil {
		return h.Handle.Level(ctx, pin)
	}
	return h.LevelFunc(ctx, pin)
}

// WaitForLevel calls WaitForLevelFunc or the embedded Handle.
func (h *Handle) WaitForLevel(
	ctx context.Context, pin int, high bool, timeout time.Duration,
) (time.Time, error) {
	if h.WaitForLevelFunc == nil {
		return h.Handle.WaitForLevel(ctx, pin, high, timeout)
	}
	return h.WaitForLevelFunc(ctx, pin, high, timeout)
}

// Close calls CloseFunc or the embedded Handle; a double with neither simply
// reports success.
func (h *Handle) Close() error {
	if h.CloseFunc == nil {
		if h.Handle == nil {
			return nil
		}
		return h.Handle.Close()
	}
	return h.CloseFunc()
}
