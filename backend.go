package hcsr04

import (
	"github.com/edaniels/golog"

	"go.viam.com/hcsr04/gpio"
	"go.viam.com/hcsr04/gpio/chardev"
	"go.viam.com/hcsr04/gpio/fake"
	"go.viam.com/hcsr04/gpio/sysfs"
)

// DetectBackends probes the pulse-timing mechanisms available on this
// platform and returns them ranked best-first: the GPIO character device,
// then legacy sysfs, then the fake backend, which is appended unconditionally
// so the result is never empty. Probe failures are logged at debug level and
// otherwise swallowed.
func DetectBackends(conf Config, logger golog.Logger) []gpio.Backend {
	conf = conf.withDefaults()

	var backends []gpio.Backend
	if b, err := chardev.NewBackend(conf.GPIOChipDev); err == nil {
		backends = append(backends, b)
	} else {
		logger.Debugw("GPIO character device backend unavailable", "error", err)
	}
	if b, err := sysfs.NewBackend(logger); err == nil {
		backends = append(backends, b)
	} else {
		logger.Debugw("sysfs GPIO backend unavailable", "error", err)
	}

	// The fake samples from the sensor's configured range with the same
	// physics constants the converter uses, so simulated readings validate.
	backends = append(backends, fake.NewBackend(fake.Config{
		MinDistanceCM:      conf.MinDistanceCM,
		MaxDistanceCM:      conf.MaxDistanceCM,
		SpeedOfSoundCMPerS: conf.SpeedOfSoundCMPerS,
		RoundTripDivisor:   conf.RoundTripDivisor,
	}))
	return backends
}
