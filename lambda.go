package fusion

// State is the phase of the gain ramp.
type State int

const (
	// StateInitializing is the fast-convergence phase after construction.
	StateInitializing State = iota
	// StateSteady is normal operation. It is never left once entered.
	StateSteady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateSteady:
		return "steady"
	default:
		return "unknown"
	}
}

// State returns the current phase of the filter.
func (a *AHRS) State() State {
	return a.state
}

// Lambda returns the current ramp parameter in [0,1]: 0 means the feedback
// runs at InitialGain, 1 means it runs at the steady gains.
func (a *AHRS) Lambda() float64 {
	return a.lambda
}

// Elapsed returns the total update time seen by the filter, in seconds.
func (a *AHRS) Elapsed() float64 {
	return a.elapsed
}

// advanceLambda moves the ramp forward by dt. Lambda advances at a rate such
// that the ramp fades over into steady operation in exactly InitializationPeriod seconds.
func (a *AHRS) advanceLambda(dt float64) {
	a.elapsed += dt

	if a.lambda < 1 {
		if a.settings.InitializationPeriod > 0 {
			a.lambda += dt / a.settings.InitializationPeriod
		} else {
			a.lambda = 1
		}
		if a.lambda <= 0 {
			a.lambda = 0
		}
		if a.lambda >= 1 {
			a.lambda = 1
		}
	}

	if a.lambda >= 1 {
		a.state = StateSteady
		a.angularRateRecovery = false
	}
}

// gains returns the accelerometer and magnetometer feedback gains for this update.
func (a *AHRS) gains() (accGain, magGain float64) {
	accGain = a.lambda*a.settings.Gain + (1-a.lambda)*a.settings.InitialGain
	magGain = a.lambda*a.settings.MagnetometerGain + (1-a.lambda)*a.settings.InitialGain
	return accGain, magGain
}

// rampActive reports whether the gain ramp is running, either because the
// filter is still initializing or because it is recovering from gyroscope saturation.
func (a *AHRS) rampActive() bool {
	return a.lambda < 1
}
