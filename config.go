package hcsr04

import (
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/hcsr04/gpio"
)

// Defaults for zero-valued Config fields. Timing values follow the HC-SR04
// datasheet; the rated range is 0.5cm to 400cm.
const (
	DefaultTriggerPin         = 23
	DefaultEchoPin            = 24
	DefaultSettleTime         = 100 * time.Millisecond
	DefaultPulseDuration      = 10 * time.Microsecond
	DefaultEchoTimeout        = 100 * time.Millisecond
	DefaultUpdateInterval     = time.Second
	DefaultSpeedOfSoundCMPerS = 34300.0 // cm/s in air at 20C
	DefaultRoundTripDivisor   = 2.0     // the pulse travels out and back
	DefaultMinDistanceCM      = 0.5
	DefaultMaxDistanceCM      = 400.0
	DefaultHistorySize        = 100
)

// Config describes one HC-SR04 sensor. Callers are expected to hand the core
// a fully populated value; parsing it from files or flags is their concern.
type Config struct {
	TriggerPin int `json:"trigger_pin"`
	EchoPin    int `json:"echo_pin"`

	// SettleTime is the pre-trigger pause letting prior echo activity clear.
	SettleTime time.Duration `json:"settle_time,omitempty"`
	// PulseDuration is the trigger pulse width; the datasheet contract is 10us.
	PulseDuration time.Duration `json:"pulse_duration,omitempty"`
	// EchoTimeout bounds each wait for an echo transition. It also bounds the
	// monitoring loop's worst-case stop latency.
	EchoTimeout time.Duration `json:"echo_timeout,omitempty"`
	// UpdateInterval is the monitoring loop cadence.
	UpdateInterval time.Duration `json:"update_interval,omitempty"`

	SpeedOfSoundCMPerS float64 `json:"speed_of_sound_cm_per_s,omitempty"`
	RoundTripDivisor   float64 `json:"round_trip_divisor,omitempty"`
	MinDistanceCM      float64 `json:"min_distance_cm,omitempty"`
	MaxDistanceCM      float64 `json:"max_distance_cm,omitempty"`

	// HistorySize bounds the recent-reading window kept by the statistics
	// tracker.
	HistorySize int `json:"history_size,omitempty"`

	// Backend forces a specific backend kind. Empty means auto-detect, best
	// available first.
	Backend gpio.Kind `json:"backend,omitempty"`
	// GPIOChipDev overrides the GPIO chip character device path (chardev
	// backend only).
	GPIOChipDev string `json:"gpio_chip_dev,omitempty"`
}

// DefaultConfig returns the configuration of a conventionally wired sensor
// (trigger on BCM 23, echo on BCM 24).
func DefaultConfig() Config {
	conf := Config{TriggerPin: DefaultTriggerPin, EchoPin: DefaultEchoPin}
	return conf.withDefaults()
}

// withDefaults fills zero-valued tunables. Pins are left alone: 0 is a real
// GPIO offset, and an all-zero pin pair is caught by Validate instead.
func (conf Config) withDefaults() Config {
	if conf.SettleTime == 0 {
		conf.SettleTime = DefaultSettleTime
	}
	if conf.PulseDuration == 0 {
		conf.PulseDuration = DefaultPulseDuration
	}
	if conf.EchoTimeout == 0 {
		conf.EchoTimeout = DefaultEchoTimeout
	}
	if conf.UpdateInterval == 0 {
		conf.UpdateInterval = DefaultUpdateInterval
	}
	if conf.SpeedOfSoundCMPerS == 0 {
		conf.SpeedOfSoundCMPerS = DefaultSpeedOfSoundCMPerS
	}
	if conf.RoundTripDivisor == 0 {
		conf.RoundTripDivisor = DefaultRoundTripDivisor
	}
	if conf.MinDistanceCM == 0 {
		conf.MinDistanceCM = DefaultMinDistanceCM
	}
	if conf.MaxDistanceCM == 0 {
		conf.MaxDistanceCM = DefaultMaxDistanceCM
	}
	if conf.HistorySize == 0 {
		conf.HistorySize = DefaultHistorySize
	}
	return conf
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.TriggerPin < 0 {
		return goutils.NewConfigValidationError(path, errors.New("trigger_pin must be nonnegative"))
	}
	if conf.EchoPin < 0 {
		return goutils.NewConfigValidationError(path, errors.New("echo_pin must be nonnegative"))
	}
	if conf.TriggerPin == conf.EchoPin {
		return goutils.NewConfigValidationError(path, errors.New("trigger_pin and echo_pin must differ"))
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"settle_time", conf.SettleTime},
		{"pulse_duration", conf.PulseDuration},
		{"echo_timeout", conf.EchoTimeout},
		{"update_interval", conf.UpdateInterval},
	} {
		if d.value < 0 {
			return goutils.NewConfigValidationError(path, errors.Errorf("%s must be positive", d.name))
		}
	}
	if conf.SpeedOfSoundCMPerS < 0 || conf.RoundTripDivisor < 0 {
		return goutils.NewConfigValidationError(path,
			errors.New("speed_of_sound_cm_per_s and round_trip_divisor must be positive"))
	}
	if conf.MinDistanceCM < 0 {
		return goutils.NewConfigValidationError(path, errors.New("min_distance_cm must be nonnegative"))
	}
	filled := conf.withDefaults()
	if filled.MinDistanceCM >= filled.MaxDistanceCM {
		return goutils.NewConfigValidationError(path,
			errors.New("min_distance_cm must be less than max_distance_cm"))
	}
	switch conf.Backend {
	case "", gpio.KindCharDev, gpio.KindSysfs, gpio.KindFake:
	default:
		return goutils.NewConfigValidationError(path, errors.Errorf("unknown backend %q", conf.Backend))
	}
	return nil
}
