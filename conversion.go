package hcsr04

import (
	"time"

	"github.com/pkg/errors"
)

// Distance is a validated reading in centimeters, tagged with the range
// bounds that were in effect when it was validated.
type Distance struct {
	Centimeters float64
	MinCM       float64
	MaxCM       float64
}

// ConvertEchoPulse converts an echo pulse width into a distance using the
// configured speed of sound and round-trip divisor, then validates it against
// the configured sensor range. Implausible readings come back as
// ErrOutOfRange; the caller decides whether to retry.
func ConvertEchoPulse(pulseWidth time.Duration, conf Config) (Distance, error) {
	conf = conf.withDefaults()
	cm := pulseWidth.Seconds() * conf.SpeedOfSoundCMPerS / conf.RoundTripDivisor
	if cm < conf.MinDistanceCM || cm > conf.MaxDistanceCM {
		return Distance{}, errors.Wrapf(ErrOutOfRange, "%.4f cm outside [%.1f, %.1f]",
			cm, conf.MinDistanceCM, conf.MaxDistanceCM)
	}
	return Distance{Centimeters: cm, MinCM: conf.MinDistanceCM, MaxCM: conf.MaxDistanceCM}, nil
}

// Band is a coarse proximity classification of a reading.
type Band string

// Proximity bands, nearest first.
const (
	BandVeryClose = Band("very close")
	BandClose     = Band("close")
	BandMedium    = Band("medium")
	BandFar       = Band("far")
	BandVeryFar   = Band("very far")
)

// BandThresholds holds the upper bound, in centimeters, of each band except
// the last.
type BandThresholds struct {
	VeryCloseCM float64
	CloseCM     float64
	MediumCM    float64
	FarCM       float64
}

// DefaultBandThresholds returns the conventional thresholds.
func DefaultBandThresholds() BandThresholds {
	return BandThresholds{VeryCloseCM: 5, CloseCM: 30, MediumCM: 100, FarCM: 200}
}

// Band classifies the distance. A zero-valued thresholds argument means
// DefaultBandThresholds.
func (d Distance) Band(t BandThresholds) Band {
	if t == (BandThresholds{}) {
		t = DefaultBandThresholds()
	}
	switch {
	case d.Centimeters < t.VeryCloseCM:
		return BandVeryClose
	case d.Centimeters < t.CloseCM:
		return BandClose
	case d.Centimeters < t.MediumCM:
		return BandMedium
	case d.Centimeters < t.FarCM:
		return BandFar
	default:
		return BandVeryFar
	}
}
