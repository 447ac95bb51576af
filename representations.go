package fusion

import "math"

// Flags summarises the filter's current mode of operation.
type Flags struct {
	Initializing         bool `json:"initializing"`
	AngularRateRecovery  bool `json:"angular_rate_recovery"`
	AccelerationRecovery bool `json:"acceleration_recovery"`
	MagneticRecovery     bool `json:"magnetic_recovery"`
}

// InternalStates exposes the feedback bookkeeping of the last update. Errors
// are angles in radians; triggers are the fraction of the recovery period used.
type InternalStates struct {
	AccelerationError           float64 `json:"acceleration_error"`
	AccelerometerIgnored        bool    `json:"accelerometer_ignored"`
	AccelerationRecoveryTrigger float64 `json:"acceleration_recovery_trigger"`
	MagneticError               float64 `json:"magnetic_error"`
	MagnetometerIgnored         bool    `json:"magnetometer_ignored"`
	MagneticRecoveryTrigger     float64 `json:"magnetic_recovery_trigger"`
}

// halfGravity returns half of the direction the accelerometer reads at rest,
// in the sensor frame, as predicted by the current estimate.
func (a *AHRS) halfGravity() Vector {
	q := a.quaternion
	up := Vector{
		X: q.Imag*q.Kmag - q.Real*q.Jmag,
		Y: q.Jmag*q.Kmag + q.Real*q.Imag,
		Z: q.Real*q.Real - 0.5 + q.Kmag*q.Kmag,
	}
	if a.settings.Convention == ConventionNED {
		return up.Scale(-1)
	}
	return up
}

// Gravity returns the accelerometer reading (g) expected at rest for the
// current orientation estimate, in the sensor frame.
func (a *AHRS) Gravity() Vector {
	return a.halfGravity().Scale(2)
}

// LinearAcceleration returns the most recent accelerometer reading with
// gravity removed, in the sensor frame (g).
func (a *AHRS) LinearAcceleration() Vector {
	return a.accelerometer.Sub(a.Gravity())
}

// EarthAcceleration returns the most recent accelerometer reading rotated into
// the earth frame, with gravity removed (g).
func (a *AHRS) EarthAcceleration() Vector {
	e := a.quaternion.Rotate(a.accelerometer)
	if a.settings.Convention == ConventionNED {
		e.Z++
	} else {
		e.Z--
	}
	return e
}

// Accelerometer returns the most recent accelerometer reading (g).
func (a *AHRS) Accelerometer() Vector {
	return a.accelerometer
}

// Flags returns the filter's current mode flags.
func (a *AHRS) Flags() Flags {
	return Flags{
		Initializing:         a.state == StateInitializing,
		AngularRateRecovery:  a.angularRateRecovery,
		AccelerationRecovery: a.accelerationRecoveryTrigger > a.accelerationRecoveryTimeout,
		MagneticRecovery:     a.magneticRecoveryTrigger > a.magneticRecoveryTimeout,
	}
}

// InternalStates returns the feedback bookkeeping of the last update.
func (a *AHRS) InternalStates() InternalStates {
	period := a.settings.RecoveryTriggerPeriod
	ratio := func(trigger float64) float64 {
		if period == 0 {
			return 0
		}
		return trigger / period
	}
	return InternalStates{
		AccelerationError:           feedbackAngle(a.halfAccelerometerFeedback),
		AccelerometerIgnored:        a.accelerometerIgnored,
		AccelerationRecoveryTrigger: ratio(a.accelerationRecoveryTrigger),
		MagneticError:               feedbackAngle(a.halfMagnetometerFeedback),
		MagnetometerIgnored:         a.magnetometerIgnored,
		MagneticRecoveryTrigger:     ratio(a.magneticRecoveryTrigger),
	}
}

// feedbackAngle recovers the error angle from a half feedback vector of norm 0.5*sin(angle).
func feedbackAngle(halfFeedback Vector) float64 {
	return math.Asin(clamp(2*halfFeedback.Norm(), 0, 1))
}
