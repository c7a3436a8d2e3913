package fake

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/hcsr04/gpio"
)

const (
	trigPin = 23
	echoPin = 24
)

// pulseOnce drives a full trigger pulse and reads back the synthesized echo
// width the way the measurement engine would.
func pulseOnce(t *testing.T, h gpio.Handle) time.Duration {
	t.Helper()
	ctx := context.Background()

	test.That(t, h.SetLevel(ctx, trigPin, true), test.ShouldBeNil)
	test.That(t, h.SetLevel(ctx, trigPin, false), test.ShouldBeNil)

	start, err := h.WaitForLevel(ctx, echoPin, true, time.Second)
	test.That(t, err, test.ShouldBeNil)
	end, err := h.WaitForLevel(ctx, echoPin, false, time.Second)
	test.That(t, err, test.ShouldBeNil)
	return end.Sub(start)
}

func TestAcquireExclusivity(t *testing.T) {
	b := NewBackend(Config{Seed: 1})

	h, err := b.Acquire(trigPin, echoPin)
	test.That(t, err, test.ShouldBeNil)

	_, err = b.Acquire(trigPin, echoPin)
	test.That(t, errors.Is(err, gpio.ErrPinUnavailable), test.ShouldBeTrue)
	// Overlap on a single pin is still contention.
	_, err = b.Acquire(echoPin, 25)
	test.That(t, errors.Is(err, gpio.ErrPinUnavailable), test.ShouldBeTrue)

	test.That(t, h.Close(), test.ShouldBeNil)
	// Close is idempotent and frees the pair for reacquisition.
	test.That(t, h.Close(), test.ShouldBeNil)
	h2, err := b.Acquire(trigPin, echoPin)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, h2.Close(), test.ShouldBeNil)
}

func TestSeededDeterminism(t *testing.T) {
	widthsA := make([]time.Duration, 0, 5)
	widthsB := make([]time.Duration, 0, 5)

	for _, widths := range []*[]time.Duration{&widthsA, &widthsB} {
		b := NewBackend(Config{Seed: 42})
		h, err := b.Acquire(trigPin, echoPin)
		test.That(t, err, test.ShouldBeNil)
		for i := 0; i < 5; i++ {
			*widths = append(*widths, pulseOnce(t, h))
		}
		test.That(t, h.Close(), test.ShouldBeNil)
	}

	test.That(t, widthsA, test.ShouldResemble, widthsB)
}

func TestSynthesizedWidthsRoundTrip(t *testing.T) {
	conf := Config{
		Seed:               7,
		MinDistanceCM:      10,
		MaxDistanceCM:      200,
		SpeedOfSoundCMPerS: 34300,
		RoundTripDivisor:   2,
	}
	b := NewBackend(conf)
	h, err := b.Acquire(trigPin, echoPin)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, h.Close(), test.ShouldBeNil)
	}()

	for i := 0; i < 20; i++ {
		width := pulseOnce(t, h)
		// Inverting the synthesis formula must land inside the sampled range.
		distance := width.Seconds() * conf.SpeedOfSoundCMPerS / conf.RoundTripDivisor
		test.That(t, distance, test.ShouldBeGreaterThanOrEqualTo, conf.MinDistanceCM)
		test.That(t, distance, test.ShouldBeLessThanOrEqualTo, conf.MaxDistanceCM)
	}
}

func TestDroppedEchoTimesOut(t *testing.T) {
	b := NewBackend(Config{Seed: 1, DropEcho: true})
	h, err := b.Acquire(trigPin, echoPin)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, h.Close(), test.ShouldBeNil)
	}()

	ctx := context.Background()
	test.That(t, h.SetLevel(ctx, trigPin, true), test.ShouldBeNil)
	test.That(t, h.SetLevel(ctx, trigPin, false), test.ShouldBeNil)

	const timeout = 10 * time.Millisecond
	begin := time.Now()
	_, err = h.WaitForLevel(ctx, echoPin, true, timeout)
	elapsed := time.Since(begin)

	test.That(t, errors.Is(err, gpio.ErrWaitTimeout), test.ShouldBeTrue)
	test.That(t, elapsed, test.ShouldBeGreaterThanOrEqualTo, timeout)
	test.That(t, elapsed, test.ShouldBeLessThan, timeout+100*time.Millisecond)
}

func TestStuckEchoReadsHigh(t *testing.T) {
	b := NewBackend(Config{Seed: 1, StuckEchoHigh: true})
	h, err := b.Acquire(trigPin, echoPin)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, h.Close(), test.ShouldBeNil)
	}()

	high, err := h.Level(context.Background(), echoPin)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, high, test.ShouldBeTrue)
}

func TestWaitCancellation(t *testing.T) {
	b := NewBackend(Config{Seed: 1, DropEcho: true})
	h, err := b.Acquire(trigPin, echoPin)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, h.Close(), test.ShouldBeNil)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.WaitForLevel(ctx, echoPin, true, time.Minute)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}
