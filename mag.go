package fusion

import "math"

// halfMagnetic returns half of the earth frame west axis
// expressed in the sensor frame, i.e. the direction the magnetometer feedback
// is compared against.
func (a *AHRS) halfMagnetic() Vector {
	q := a.quaternion
	switch a.settings.Convention {
	case ConventionENU:
		return Vector{
			X: 0.5 - q.Real*q.Real - q.Imag*q.Imag,
			Y: q.Real*q.Kmag - q.Imag*q.Jmag,
			Z: -(q.Imag*q.Kmag + q.Real*q.Jmag),
		}
	case ConventionNED:
		return Vector{
			X: -(q.Imag*q.Jmag + q.Real*q.Kmag),
			Y: 0.5 - q.Real*q.Real - q.Jmag*q.Jmag,
			Z: q.Real*q.Imag - q.Jmag*q.Kmag,
		}
	default:
		return Vector{
			X: q.Imag*q.Jmag + q.Real*q.Kmag,
			Y: q.Real*q.Real - 0.5 + q.Jmag*q.Jmag,
			Z: q.Jmag*q.Kmag - q.Real*q.Imag,
		}
	}
}

// CompassHeading returns the tilt-compensated magnetic heading in radians for
// an accelerometer and magnetometer reading given in the sensor frame. The
// result is the yaw an AHRS using the same convention would converge to. The
// magnetometer must already be calibrated.
func CompassHeading(convention Convention, accel, mag Vector) float64 {
	switch convention {
	case ConventionENU:
		west := accel.Cross(mag).Unit()
		north := west.Cross(accel).Unit()
		east := west.Scale(-1)
		return math.Atan2(north.X, east.X)
	case ConventionNED:
		down := accel.Scale(-1)
		east := down.Cross(mag).Unit()
		north := east.Cross(down).Unit()
		return math.Atan2(east.X, north.X)
	default:
		west := accel.Cross(mag).Unit()
		north := west.Cross(accel).Unit()
		return math.Atan2(west.X, north.X)
	}
}
