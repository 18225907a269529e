package core

// CompareDriver is the part of the PWM peripheral the applier loop uses.
type CompareDriver interface {
	// SetCompareValue loads the comparator threshold for a phase channel (0..2).
	// value is already clamped to [0, carrierPeriod/2].
	SetCompareValue(channel int, value int) error
}

// InverterDriver is the abstract three-phase PWM peripheral that core code uses.
// Platform-specific implementations handle timers, operators, generators and pins.
type InverterDriver interface {
	CompareDriver

	// ConfigureCarrier sets up an up/down counting carrier of periodTicks
	// at the given tick resolution, shared by all three phases
	ConfigureCarrier(periodTicks uint32, resolutionHz uint32) error

	// SetDeadTime inserts a fixed delay between one gate of a complementary
	// pair turning off and the other turning on
	SetDeadTime(ticks uint32) error

	// Start enables the carrier and the gate outputs
	Start() error
}

// Global singleton used by core code.
var inverterDriver InverterDriver

// SetInverterDriver is called by target-specific code to register its driver.
func SetInverterDriver(d InverterDriver) {
	inverterDriver = d
}

// MustInverter returns the configured driver or panics if missing.
func MustInverter() InverterDriver {
	if inverterDriver == nil {
		panic("inverter driver not configured")
	}
	return inverterDriver
}
