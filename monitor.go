package hcsr04

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/hcsr04/stats"
)

// Reading is one monitoring-loop delivery: a validated distance or the error
// that cycle produced, plus a statistics snapshot taken at delivery time.
type Reading struct {
	Distance Distance
	Err      error
	Stats    stats.Snapshot
}

type monitorSession struct {
	cancel  func()
	workers sync.WaitGroup
}

// StartMonitoring begins measuring at the configured update interval,
// delivering every cycle's outcome to callback in tick order. A failed cycle
// is reported and the loop keeps going; only StopMonitoring or Close ends it.
// It fails with ErrAlreadyMonitoring if a session is active.
//
// The callback runs on a dispatcher goroutine decoupled from the sensor's
// timing; it must not call StopMonitoring or Close, which wait for the
// dispatcher to drain.
func (s *Sensor) StartMonitoring(callback func(Reading)) error {
	if callback == nil {
		return errors.New("callback must not be nil")
	}

	s.monitorMu.Lock()
	defer s.monitorMu.Unlock()
	if s.session != nil {
		return ErrAlreadyMonitoring
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	session := &monitorSession{cancel: cancel}
	readings := make(chan Reading, 8)

	session.workers.Add(1)
	goutils.ManagedGo(func() {
		for reading := range readings {
			callback(reading)
		}
	}, session.workers.Done)

	session.workers.Add(1)
	goutils.ManagedGo(func() {
		defer close(readings)
		for {
			if cancelCtx.Err() != nil {
				return
			}
			distance, err := s.MeasureDistance(cancelCtx)
			if cancelCtx.Err() != nil {
				// The cycle was cut short by cancellation; don't report it.
				return
			}
			if err != nil {
				s.logger.Debugw("measurement cycle failed; continuing", "error", err)
			}
			reading := Reading{Distance: distance, Err: err, Stats: s.tracker.Snapshot()}
			select {
			case readings <- reading:
			case <-cancelCtx.Done():
				return
			}
			if !s.waitInterval(cancelCtx) {
				return
			}
		}
	}, session.workers.Done)

	s.session = session
	return nil
}

// waitInterval pauses one update interval, returning false when cancelled
// first. It goes through the sensor's clock so tests can drive ticks.
func (s *Sensor) waitInterval(ctx context.Context) bool {
	timer := s.clock.Timer(s.conf.UpdateInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// StopMonitoring requests cancellation and waits for the loop to wind down.
// No new cycle starts after it is called; an in-flight cycle may run to
// completion (bounded by the echo timeout) but its reading is discarded. Once
// StopMonitoring returns the callback will not fire again. Fails with
// ErrNotMonitoring when idle.
func (s *Sensor) StopMonitoring() error {
	s.monitorMu.Lock()
	defer s.monitorMu.Unlock()
	if s.session == nil {
		return ErrNotMonitoring
	}
	s.session.cancel()
	s.session.workers.Wait()
	s.session = nil
	return nil
}
