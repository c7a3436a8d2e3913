// Package hcsr04 implements a driver for the HC-SR04 ultrasonic
// time-of-flight rangefinder. It emits a trigger pulse, times the echo pulse
// width over one of several GPIO backends (character device, sysfs, or a
// simulated fallback), converts the elapsed time into a validated distance,
// and can monitor continuously while tracking running statistics.
package hcsr04

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/hcsr04/gpio"
	"go.viam.com/hcsr04/stats"
)

// Sensor owns one trigger/echo pin pair for its lifetime. Measurement cycles
// are serialized internally; Close is safe from any goroutine and is
// idempotent.
type Sensor struct {
	conf        Config
	logger      golog.Logger
	clock       clock.Clock
	handle      gpio.Handle
	backendKind gpio.Kind
	tracker     *stats.Tracker

	measureMu sync.Mutex

	monitorMu sync.Mutex
	session   *monitorSession
}

// NewSensor validates the config, detects the available backends, and binds
// the first one whose pins can be acquired. Pin contention
// (gpio.ErrPinUnavailable) is fatal rather than a reason to fall through:
// every backend drives the same physical pins.
func NewSensor(conf Config, logger golog.Logger) (*Sensor, error) {
	if err := conf.Validate(""); err != nil {
		return nil, err
	}
	conf = conf.withDefaults()

	for _, backend := range DetectBackends(conf, logger) {
		if conf.Backend != "" && backend.Kind() != conf.Backend {
			continue
		}
		handle, err := backend.Acquire(conf.TriggerPin, conf.EchoPin)
		if err != nil {
			if errors.Is(err, gpio.ErrPinUnavailable) {
				return nil, err
			}
			logger.Debugw("cannot acquire pins on backend",
				"backend", backend.Kind(), "error", err)
			continue
		}
		return newSensor(conf, backend.Kind(), handle, logger)
	}
	return nil, errors.Errorf("no usable GPIO backend for pins %d/%d",
		conf.TriggerPin, conf.EchoPin)
}

// NewSensorFromBackend binds the sensor to a caller-supplied backend,
// bypassing detection.
func NewSensorFromBackend(conf Config, backend gpio.Backend, logger golog.Logger) (*Sensor, error) {
	if err := conf.Validate(""); err != nil {
		return nil, err
	}
	conf = conf.withDefaults()

	handle, err := backend.Acquire(conf.TriggerPin, conf.EchoPin)
	if err != nil {
		return nil, err
	}
	return newSensor(conf, backend.Kind(), handle, logger)
}

func newSensor(conf Config, kind gpio.Kind, handle gpio.Handle, logger golog.Logger) (*Sensor, error) {
	s := &Sensor{
		conf:        conf,
		logger:      logger,
		clock:       clock.New(),
		handle:      handle,
		backendKind: kind,
		tracker:     stats.NewTracker(conf.HistorySize),
	}
	// Park the trigger low so the first cycle starts from a known state.
	if err := handle.SetLevel(context.Background(), conf.TriggerPin, false); err != nil {
		return nil, multierr.Combine(
			errors.Wrap(err, "cannot set trigger pin low"), handle.Close())
	}
	logger.Infow("hc-sr04 sensor ready",
		"backend", kind, "trigger_pin", conf.TriggerPin, "echo_pin", conf.EchoPin)
	return s, nil
}

// BackendKind reports which backend the sensor bound at construction.
func (s *Sensor) BackendKind() gpio.Kind {
	return s.backendKind
}

// Statistics returns an immutable snapshot of the readings recorded so far.
func (s *Sensor) Statistics() stats.Snapshot {
	return s.tracker.Snapshot()
}

// ResetStatistics clears the running aggregate.
func (s *Sensor) ResetStatistics() {
	s.tracker.Reset()
}

// MeasureDistance runs one trigger/echo cycle and returns the validated
// distance. Sensor-side failures (timeouts, glitches, out-of-range readings)
// come back as typed errors, never panics; the caller may simply try again.
// Successful readings are folded into the statistics tracker.
func (s *Sensor) MeasureDistance(ctx context.Context) (Distance, error) {
	s.measureMu.Lock()
	defer s.measureMu.Unlock()

	width, err := s.echoPulseWidth(ctx)
	if err != nil {
		return Distance{}, err
	}
	distance, err := ConvertEchoPulse(width, s.conf)
	if err != nil {
		return Distance{}, err
	}
	s.tracker.Record(distance.Centimeters)
	return distance, nil
}

// echoPulseWidth performs the timed trigger/echo exchange and returns the raw
// echo pulse width. Callers must hold measureMu.
func (s *Sensor) echoPulseWidth(ctx context.Context) (time.Duration, error) {
	conf := s.conf

	// Drive the trigger low and let any prior echo activity settle.
	if err := s.handle.SetLevel(ctx, conf.TriggerPin, false); err != nil {
		return 0, err
	}
	if !goutils.SelectContextOrWait(ctx, conf.SettleTime) {
		return 0, ctx.Err()
	}

	high, err := s.handle.Level(ctx, conf.EchoPin)
	if err != nil {
		return 0, err
	}
	if high {
		return 0, ErrEchoGlitch
	}

	// The 10us high pulse tells the sensor to emit its ultrasonic burst.
	if err := s.handle.SetLevel(ctx, conf.TriggerPin, true); err != nil {
		return 0, err
	}
	if !goutils.SelectContextOrWait(ctx, conf.PulseDuration) {
		return 0, ctx.Err()
	}
	if err := s.handle.SetLevel(ctx, conf.TriggerPin, false); err != nil {
		return 0, err
	}

	start, err := s.handle.WaitForLevel(ctx, conf.EchoPin, true, conf.EchoTimeout)
	switch {
	case err == nil:
	case errors.Is(err, gpio.ErrNoEdgeSupport):
		return s.pollEchoPulse(ctx)
	case errors.Is(err, gpio.ErrWaitTimeout):
		return 0, errors.Wrapf(ErrEchoStartTimeout, "after %s", conf.EchoTimeout)
	default:
		return 0, err
	}

	end, err := s.handle.WaitForLevel(ctx, conf.EchoPin, false, conf.EchoTimeout)
	if err != nil {
		if errors.Is(err, gpio.ErrWaitTimeout) {
			return 0, errors.Wrapf(ErrEchoEndTimeout, "after %s", conf.EchoTimeout)
		}
		return 0, err
	}

	width := end.Sub(start)
	if width <= 0 {
		return 0, errors.Wrap(ErrEchoGlitch, "non-positive echo pulse width")
	}
	return width, nil
}

// pollEchoPulse is the degraded path for backends without edge detection: it
// busy-polls the echo level, recording the first and last observed high
// reading, with each phase bounded by the echo timeout.
func (s *Sensor) pollEchoPulse(ctx context.Context) (time.Duration, error) {
	conf := s.conf

	var start time.Time
	deadline := time.Now().Add(conf.EchoTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		high, err := s.handle.Level(ctx, conf.EchoPin)
		if err != nil {
			return 0, err
		}
		if high {
			start = time.Now()
			break
		}
		if time.Now().After(deadline) {
			return 0, errors.Wrapf(ErrEchoStartTimeout, "after %s of polling", conf.EchoTimeout)
		}
	}

	end := start
	deadline = time.Now().Add(conf.EchoTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		high, err := s.handle.Level(ctx, conf.EchoPin)
		if err != nil {
			return 0, err
		}
		if !high {
			break
		}
		end = time.Now()
		if time.Now().After(deadline) {
			return 0, errors.Wrapf(ErrEchoEndTimeout, "after %s of polling", conf.EchoTimeout)
		}
	}
	return end.Sub(start), nil
}

// Close stops monitoring, if running, and releases the pin pair. It is
// idempotent and safe to call from a different goroutine than the one that
// constructed the sensor, including a shutdown path racing a signal handler.
func (s *Sensor) Close() error {
	if err := s.StopMonitoring(); err != nil && !errors.Is(err, ErrNotMonitoring) {
		return multierr.Combine(err, s.handle.Close())
	}
	return s.handle.Close()
}
