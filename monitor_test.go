package hcsr04

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/hcsr04/gpio/fake"
)

type readingRecorder struct {
	mu       sync.Mutex
	readings []Reading
}

func (r *readingRecorder) record(reading Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings = append(r.readings, reading)
}

func (r *readingRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.readings)
}

func (r *readingRecorder) at(i int) Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readings[i]
}

func TestMonitoringDelivers(t *testing.T) {
	logger := golog.NewTestLogger(t)
	backend := fake.NewBackend(fake.Config{Seed: 42})

	s, err := NewSensorFromBackend(fastConfig(), backend, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, s.Close(), test.ShouldBeNil)
	}()

	recorder := &readingRecorder{}
	test.That(t, s.StartMonitoring(recorder.record), test.ShouldBeNil)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, recorder.len(), test.ShouldBeGreaterThanOrEqualTo, 3)
	})

	test.That(t, s.StopMonitoring(), test.ShouldBeNil)

	// Nothing fires once StopMonitoring has returned.
	delivered := recorder.len()
	time.Sleep(30 * time.Millisecond)
	test.That(t, recorder.len(), test.ShouldEqual, delivered)

	// Deliveries preserve per-tick order: every successful cycle bumps the
	// statistics count by exactly one.
	for i := 0; i < delivered; i++ {
		reading := recorder.at(i)
		test.That(t, reading.Err, test.ShouldBeNil)
		test.That(t, reading.Stats.Count, test.ShouldEqual, i+1)
	}
}

func TestMonitoringStateMachine(t *testing.T) {
	logger := golog.NewTestLogger(t)
	backend := fake.NewBackend(fake.Config{Seed: 1})

	s, err := NewSensorFromBackend(fastConfig(), backend, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, s.Close(), test.ShouldBeNil)
	}()

	test.That(t, s.StopMonitoring(), test.ShouldEqual, ErrNotMonitoring)

	recorder := &readingRecorder{}
	test.That(t, s.StartMonitoring(recorder.record), test.ShouldBeNil)
	test.That(t, s.StartMonitoring(recorder.record), test.ShouldEqual, ErrAlreadyMonitoring)
	test.That(t, s.StopMonitoring(), test.ShouldBeNil)
	test.That(t, s.StopMonitoring(), test.ShouldEqual, ErrNotMonitoring)

	// The session is reusable after a stop.
	test.That(t, s.StartMonitoring(recorder.record), test.ShouldBeNil)
	test.That(t, s.StopMonitoring(), test.ShouldBeNil)
}

func TestMonitoringSurvivesFailedCycles(t *testing.T) {
	logger := golog.NewTestLogger(t)
	backend := fake.NewBackend(fake.Config{Seed: 1, DropEcho: true})

	conf := fastConfig()
	conf.EchoTimeout = 2 * time.Millisecond
	s, err := NewSensorFromBackend(conf, backend, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, s.Close(), test.ShouldBeNil)
	}()

	recorder := &readingRecorder{}
	test.That(t, s.StartMonitoring(recorder.record), test.ShouldBeNil)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, recorder.len(), test.ShouldBeGreaterThanOrEqualTo, 2)
	})
	test.That(t, s.StopMonitoring(), test.ShouldBeNil)

	// Every cycle failed, was reported, and the loop kept going.
	test.That(t, errors.Is(recorder.at(0).Err, ErrEchoStartTimeout), test.ShouldBeTrue)
	test.That(t, errors.Is(recorder.at(1).Err, ErrEchoStartTimeout), test.ShouldBeTrue)
	test.That(t, s.Statistics().Count, test.ShouldEqual, 0)
}

func TestMonitoringCadence(t *testing.T) {
	logger := golog.NewTestLogger(t)
	backend := fake.NewBackend(fake.Config{Seed: 42})

	conf := fastConfig()
	conf.UpdateInterval = time.Hour
	s, err := NewSensorFromBackend(conf, backend, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, s.Close(), test.ShouldBeNil)
	}()

	mock := clock.NewMock()
	s.clock = mock

	recorder := &readingRecorder{}
	test.That(t, s.StartMonitoring(recorder.record), test.ShouldBeNil)

	// The first cycle runs immediately; the next waits a full interval.
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, recorder.len(), test.ShouldEqual, 1)
	})
	time.Sleep(10 * time.Millisecond)
	test.That(t, recorder.len(), test.ShouldEqual, 1)

	mock.Add(conf.UpdateInterval)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, recorder.len(), test.ShouldEqual, 2)
	})

	// Stop returns promptly even with a full interval pending.
	begin := time.Now()
	test.That(t, s.StopMonitoring(), test.ShouldBeNil)
	test.That(t, time.Since(begin), test.ShouldBeLessThan, time.Second)
}

func TestCloseStopsMonitoring(t *testing.T) {
	logger := golog.NewTestLogger(t)
	backend := fake.NewBackend(fake.Config{Seed: 42})

	s, err := NewSensorFromBackend(fastConfig(), backend, logger)
	test.That(t, err, test.ShouldBeNil)

	recorder := &readingRecorder{}
	test.That(t, s.StartMonitoring(recorder.record), test.ShouldBeNil)
	test.That(t, s.Close(), test.ShouldBeNil)

	delivered := recorder.len()
	time.Sleep(20 * time.Millisecond)
	test.That(t, recorder.len(), test.ShouldEqual, delivered)
}
