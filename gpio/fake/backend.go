// Package fake implements a simulated gpio backend. It never touches
// hardware: a completed trigger pulse samples a distance from a plausible
// range and synthesizes the echo pulse width with the same speed-of-sound
// constant the driver's converter inverts, so simulated readings round-trip
// exactly. It is the guaranteed fallback when no hardware backend probes
// successfully, and the workhorse for tests.
package fake

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/hcsr04/gpio"
)

// Defaults for zero-valued Config fields. The distance range intentionally
// sits inside the sensor's rated range so simulated readings validate.
const (
	DefaultMinDistanceCM      = 10.0
	DefaultMaxDistanceCM      = 200.0
	DefaultSpeedOfSoundCMPerS = 34300.0
	DefaultRoundTripDivisor   = 2.0
)

// Config describes the behavior of a fake backend.
type Config struct {
	// Seed makes the sampled distance sequence repeatable. Zero seeds from
	// the current time.
	Seed int64

	// MinDistanceCM and MaxDistanceCM bound the sampled distances.
	MinDistanceCM float64
	MaxDistanceCM float64

	// SpeedOfSoundCMPerS and RoundTripDivisor must match the converter's
	// constants for round-trip consistency.
	SpeedOfSoundCMPerS float64
	RoundTripDivisor   float64

	// StuckEchoHigh makes the echo pin read high at all times, simulating a
	// stale echo from a previous cycle.
	StuckEchoHigh bool

	// DropEcho suppresses echo pulses entirely, so every level wait times out.
	DropEcho bool
}

// Backend simulates a GPIO chip driving an HC-SR04.
type Backend struct {
	conf Config

	mu      sync.Mutex
	rnd     *rand.Rand
	claimed map[int]bool
}

// NewBackend returns a fake backend. Construction never fails; the fake is
// always the last entry of the detected backend order.
func NewBackend(conf Config) *Backend {
	if conf.MinDistanceCM == 0 {
		conf.MinDistanceCM = DefaultMinDistanceCM
	}
	if conf.MaxDistanceCM == 0 {
		conf.MaxDistanceCM = DefaultMaxDistanceCM
	}
	if conf.SpeedOfSoundCMPerS == 0 {
		conf.SpeedOfSoundCMPerS = DefaultSpeedOfSoundCMPerS
	}
	if conf.RoundTripDivisor == 0 {
		conf.RoundTripDivisor = DefaultRoundTripDivisor
	}
	seed := conf.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Backend{
		conf:    conf,
		rnd:     rand.New(rand.NewSource(seed)),
		claimed: map[int]bool{},
	}
}

// Kind implements gpio.Backend.
func (b *Backend) Kind() gpio.Kind {
	return gpio.KindFake
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
	b.claimed[trigPin] = true
	b.claimed[echoPin] = true
	return &handle{backend: b, trigPin: trigPin, echoPin: echoPin}, nil
}

// samplePulseWidth converts a uniformly sampled distance back into the echo
// pulse width the real sensor would produce for it.
func (b *Backend) samplePulseWidth() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	span := b.conf.MaxDistanceCM - b.conf.MinDistanceCM
	distance := b.conf.MinDistanceCM + b.rnd.Float64()*span
	seconds := distance * b.conf.RoundTripDivisor / b.conf.SpeedOfSoundCMPerS
	return time.Duration(seconds * float64(time.Second))
}

type handle struct {
	backend *Backend
	trigPin int
	echoPin int

	mu           sync.Mutex
	closed       bool
	trigHigh     bool
	pulsePending bool
	echoStart    time.Time
	echoWidth    time.Duration
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

	// A high->low transition completes a trigger pulse and schedules an echo.
	if h.trigHigh && !high && !h.backend.conf.DropEcho {
		h.pulsePending = true
		h.echoStart = time.Now()
		h.echoWidth = h.backend.samplePulseWidth()
	}
	h.trigHigh = high
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
		return h.trigHigh, nil
	case h.echoPin:
		return h.backend.conf.StuckEchoHigh, nil
	default:
		return false, errors.Errorf("pin %d is not part of this handle", pin)
	}
}

func (h *handle) WaitForLevel(
	ctx context.Context, pin int, high bool, timeout time.Duration,
) (time.Time, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return time.Time{}, errors.New("handle is closed")
	}
	if pin != h.echoPin {
		return time.Time{}, errors.Errorf("pin %d has no edge support on this handle", pin)
	}

	if !h.pulsePending {
		// No echo is coming; honor the timeout contract.
		h.mu.Unlock()
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		var err error
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-timer.C:
			err = errors.Wrapf(gpio.ErrWaitTimeout,
				"pin %d did not go %v within %s", pin, high, timeout)
		}
		h.mu.Lock()
		return time.Time{}, err
	}

	if high {
		return h.echoStart, nil
	}
	h.pulsePending = false
	return h.echoStart.Add(h.echoWidth), nil
}

// Close implements gpio.Handle; it is idempotent and frees the pin pair.
func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	h.backend.mu.Lock()
	delete(h.backend.claimed, h.trigPin)
	delete(h.backend.claimed, h.echoPin)
	h.backend.mu.Unlock()
	return nil
}
