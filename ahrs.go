// Package fusion estimates the orientation of a rigid body from gyroscope,
// accelerometer and (optionally) magnetometer readings.
//
// AHRS is the filter itself: a complementary filter that integrates the
// offset-corrected angular rate and feeds back the error between measured and
// predicted gravity and magnetic field directions. It is single-threaded and
// never blocks. Fusion wraps one AHRS for concurrent use and does the unit
// conversions expected by robotics call sites.
package fusion

import "math"

const (
	// If a vector has norm-squared less than this, then it is considered to be zero and is not normalised.
	VectorNormToleranceSquared = 1e-12 * 1e-12

	// If a supposedly near-unit quaternion has norm-squared less than this during normalisation, then the identity is used instead.
	QhatNormToleranceSquared = 1e-12 * 1e-12

	// Raw gyro readings above this fraction of the configured range are treated as saturated.
	gyroscopeRangeMargin = 0.98

	// Accepted samples drain the recovery trigger this many times faster than rejected ones fill it.
	recoveryDrainFactor = 9
)

// AHRS is the orientation filter. The zero value is not usable, use NewAHRS.
//
// Preconditions: every Update must be given a finite, non-negative dt and
// finite sensor readings. These are not checked on the per-sample path; use
// Fusion for a checked boundary.
type AHRS struct {
	settings Settings
	offset   *Offset

	// Values derived from the settings at construction
	accelerationRejection float64 // Largest accepted |half feedback|^2, +Inf when rejection is disabled
	magneticRejection     float64
	gyroscopeRange        float64 // +Inf when the range check is disabled

	// Gain ramp
	state               State
	lambda              float64 // 0 => initial gain, 1 => steady gains, in-between => linearly faded gains
	elapsed             float64 // Total update time since construction (s)
	angularRateRecovery bool

	// Estimate
	quaternion    Quaternion // Must *always* be a unit quaternion (or within a few eps of it)
	accelerometer Vector     // Most recent accelerometer reading (g)

	// Feedback bookkeeping
	halfAccelerometerFeedback   Vector
	halfMagnetometerFeedback    Vector
	accelerometerIgnored        bool
	magnetometerIgnored         bool
	accelerationRecoveryTrigger float64
	accelerationRecoveryTimeout float64
	magneticRecoveryTrigger     float64
	magneticRecoveryTimeout     float64
}

// NewAHRS validates settings and returns a filter at the identity orientation,
// in the Initializing state.
func NewAHRS(settings Settings) (*AHRS, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	a := &AHRS{
		settings:                    settings,
		offset:                      NewOffset(settings.Offset),
		accelerationRejection:       rejectionThreshold(settings.AccelerationRejection, settings.RecoveryTriggerPeriod),
		magneticRejection:           rejectionThreshold(settings.MagneticRejection, settings.RecoveryTriggerPeriod),
		gyroscopeRange:              math.Inf(1),
		quaternion:                  IdentityQuaternion(),
		accelerationRecoveryTimeout: settings.RecoveryTriggerPeriod,
		magneticRecoveryTimeout:     settings.RecoveryTriggerPeriod,
		magnetometerIgnored:         true,
	}
	if settings.GyroscopeRange > 0 {
		a.gyroscopeRange = gyroscopeRangeMargin * settings.GyroscopeRange
	}
	if settings.InitializationPeriod > 0 {
		a.state = StateInitializing
	} else {
		a.state = StateSteady
		a.lambda = 1
	}
	return a, nil
}

// rejectionThreshold converts a rejection angle into a bound on the squared
// norm of the half feedback vector (0.5*sin(angle))^2.
func rejectionThreshold(angle, recoveryPeriod float64) float64 {
	if angle == 0 || recoveryPeriod == 0 {
		return math.Inf(1)
	}
	h := 0.5 * math.Sin(angle)
	return h * h
}

// Settings returns the settings the filter was constructed with.
func (a *AHRS) Settings() Settings {
	return a.settings
}

// Update advances the orientation estimate by dt seconds.
//
// - gyro: gyroscope reading (rad/s)
//
// - accel: accelerometer reading (g). A zero vector means no reading.
//
// - mag: magnetometer reading in any self-consistent units, or nil for
// gyroscope and accelerometer only operation
//
// Readings that fall outside their configured tolerances do not contribute
// any feedback for this step. This is not an error: the filter simply carries
// on integrating the gyroscope for the affected axes. InternalStates reports
// which readings were ignored.
func (a *AHRS) Update(dt float64, gyro, accel Vector, mag *Vector) {
	a.update(dt, gyro, accel, mag, true)
}

// UpdateNoMagnetometer is Update without a magnetometer. While Initializing,
// the heading is held at zero so that the estimate starts from a known yaw.
func (a *AHRS) UpdateNoMagnetometer(dt float64, gyro, accel Vector) {
	a.update(dt, gyro, accel, nil, true)

	if a.state == StateInitializing {
		a.SetHeading(0)
	}
}

// UpdateExternalHeading is Update with the yaw taken from an external heading
// source (radians, e.g. a GPS course) instead of a magnetometer.
func (a *AHRS) UpdateExternalHeading(dt float64, gyro, accel Vector, heading float64) {
	q := a.quaternion
	roll := math.Atan2(q.Real*q.Imag+q.Jmag*q.Kmag, 0.5-q.Jmag*q.Jmag-q.Imag*q.Imag)
	sinHeading := math.Sin(heading)
	mag := Vector{
		X: math.Cos(heading),
		Y: -math.Cos(roll) * sinHeading,
		Z: sinHeading * math.Sin(roll),
	}
	a.update(dt, gyro, accel, &mag, false)
}

func (a *AHRS) update(dt float64, gyro, accel Vector, mag *Vector, checkField bool) {
	a.accelerometer = accel

	// Restart the gain ramp if the gyroscope saturated, the integration cannot be trusted any more
	if gyro.maxAbs() > a.gyroscopeRange {
		a.lambda = 0
		a.angularRateRecovery = true
	}

	// Fade the gains from the initial gain towards the steady gains
	a.advanceLambda(dt)
	accGain, magGain := a.gains()

	// Remove the gyroscope offset
	gyro = a.offset.Correct(gyro, dt)

	// Calculate the direction of gravity indicated by the current estimate
	halfGravity := a.halfGravity()

	// Calculate the accelerometer feedback
	var halfAccelerometerFeedback Vector
	a.accelerometerIgnored = true
	if !accel.IsZero() {
		// Calculate the accelerometer feedback scaled by 0.5
		a.halfAccelerometerFeedback = feedback(accel.Unit(), halfGravity)

		if a.accelerationMagnitudeAccepted(accel) {
			accepted := a.rampActive() || a.halfAccelerometerFeedback.NormSquared() <= a.accelerationRejection
			a.accelerometerIgnored = a.recovery(accepted, dt, &a.accelerationRecoveryTrigger, &a.accelerationRecoveryTimeout)
		}
		if !a.accelerometerIgnored {
			halfAccelerometerFeedback = a.halfAccelerometerFeedback
		}
	}

	// Calculate the magnetometer feedback
	var halfMagnetometerFeedback Vector
	a.magnetometerIgnored = true
	if mag != nil && !mag.IsZero() {
		// The measured west direction is perpendicular to the predicted gravity, so the feedback
		// lies along the gravity axis and only ever corrects yaw
		a.halfMagnetometerFeedback = feedback(halfGravity.Cross(*mag).Unit(), a.halfMagnetic())

		if !checkField || a.magneticFieldAccepted(*mag) {
			accepted := a.rampActive() || a.halfMagnetometerFeedback.NormSquared() <= a.magneticRejection
			a.magnetometerIgnored = a.recovery(accepted, dt, &a.magneticRecoveryTrigger, &a.magneticRecoveryTimeout)
		}
		if !a.magnetometerIgnored {
			halfMagnetometerFeedback = a.halfMagnetometerFeedback
		}
	}

	// Apply the feedback to the gyroscope (everything here is scaled by 0.5)
	halfOmega := gyro.Scale(0.5).
		Add(halfAccelerometerFeedback.Scale(accGain)).
		Add(halfMagnetometerFeedback.Scale(magGain))

	// Integrate the rate of change of the quaternion (first order)
	q := a.quaternion.MulVector(halfOmega.Scale(dt))
	a.quaternion = Quaternion{
		Real: a.quaternion.Real + q.Real,
		Imag: a.quaternion.Imag + q.Imag,
		Jmag: a.quaternion.Jmag + q.Jmag,
		Kmag: a.quaternion.Kmag + q.Kmag,
	}

	// Renormalise the current attitude estimate
	a.quaternion = a.quaternion.Normalize()
}

// feedback returns the rotation error between a measured unit direction and a
// predicted half-length direction. Errors beyond 90 degrees are normalised so
// the filter is still pushed at full strength.
func feedback(sensor, reference Vector) Vector {
	if sensor.Dot(reference) < 0 {
		return sensor.Cross(reference).Unit()
	}
	return sensor.Cross(reference)
}

func (a *AHRS) accelerationMagnitudeAccepted(accel Vector) bool {
	if a.settings.AccelerationTolerance == 0 {
		return true
	}
	return math.Abs(accel.Norm()-1) <= a.settings.AccelerationTolerance
}

func (a *AHRS) magneticFieldAccepted(mag Vector) bool {
	if a.settings.MagneticFieldMin == 0 && a.settings.MagneticFieldMax == 0 {
		return true
	}
	n := mag.Norm()
	return n >= a.settings.MagneticFieldMin && n <= a.settings.MagneticFieldMax
}

// recovery runs the rejection recovery logic and returns whether the reading is ignored.
// Rejections fill the trigger and acceptances drain it. Once rejections have
// persisted for the recovery period, feedback is forced back on until the
// trigger has drained, so a wrong estimate cannot lock itself out.
func (a *AHRS) recovery(accepted bool, dt float64, trigger, timeout *float64) bool {
	ignored := !accepted
	if accepted {
		*trigger -= recoveryDrainFactor * dt
	} else {
		*trigger += dt
	}

	if *trigger > *timeout {
		*timeout = 0
		ignored = false
	} else {
		*timeout = a.settings.RecoveryTriggerPeriod
	}
	*trigger = clamp(*trigger, 0, a.settings.RecoveryTriggerPeriod)

	return ignored
}

// SetHeading rotates the estimate about the earth vertical so that its ZYX yaw equals heading (radians).
func (a *AHRS) SetHeading(heading float64) {
	q := a.quaternion
	yaw := math.Atan2(q.Real*q.Kmag+q.Imag*q.Jmag, 0.5-q.Jmag*q.Jmag-q.Kmag*q.Kmag)
	half := 0.5 * (yaw - heading)
	rotation := Quaternion{Real: math.Cos(half), Kmag: -math.Sin(half)}
	a.quaternion = rotation.Mul(a.quaternion).Normalize()
}
