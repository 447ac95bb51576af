package fusion

import "math"

// EulerAngles are ZYX Euler angles in radians.
//
// The output ranges are:
//
//	Yaw:    psi   in (-pi,pi]
//	Pitch:  theta in [-pi/2,pi/2]
//	Roll:   phi   in (-pi,pi]
type EulerAngles struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// FusedAngles are the fused yaw, pitch and roll in radians, plus the
// hemisphere of the rotation (true means the positive z hemisphere).
//
// The output ranges are:
//
//	Fused yaw:    psi   in (-pi,pi]
//	Fused pitch:  theta in [-pi/2,pi/2]
//	Fused roll:   phi   in [-pi/2,pi/2]
type FusedAngles struct {
	Yaw        float64 `json:"yaw"`
	Pitch      float64 `json:"pitch"`
	Roll       float64 `json:"roll"`
	Hemisphere bool    `json:"hemisphere"`
}

// Quaternion returns the current orientation estimate.
func (a *AHRS) Quaternion() Quaternion {
	return a.quaternion
}

// Orientation returns the current orientation estimate as (w,x,y,z).
func (a *AHRS) Orientation() [4]float64 {
	return a.quaternion.Array()
}

// Euler returns the ZYX Euler angles of the current orientation estimate.
func (a *AHRS) Euler() EulerAngles {
	return a.quaternion.Euler()
}

// Fused returns the fused angles of the current orientation estimate.
func (a *AHRS) Fused() FusedAngles {
	return a.quaternion.Fused()
}

// Euler converts q to ZYX Euler angles. q must be a unit quaternion.
func (q Quaternion) Euler() EulerAngles {
	// Calculate pitch
	stheta := 2.0 * (q.Real*q.Jmag - q.Kmag*q.Imag)

	// Coerce stheta to [-1,1]
	if stheta >= 1 {
		stheta = 1
	} else if stheta <= -1 {
		stheta = -1
	}

	// Calculate yaw and roll
	ysq := q.Jmag * q.Jmag
	return EulerAngles{
		Yaw:   math.Atan2(q.Real*q.Kmag+q.Imag*q.Jmag, 0.5-(ysq+q.Kmag*q.Kmag)),
		Pitch: math.Asin(stheta),
		Roll:  math.Atan2(q.Real*q.Imag+q.Jmag*q.Kmag, 0.5-(ysq+q.Imag*q.Imag)),
	}
}

// Fused converts q to fused angles. q must be a unit quaternion.
func (q Quaternion) Fused() FusedAngles {
	var f FusedAngles

	// Calculate and wrap the fused yaw
	f.Yaw = 2 * math.Atan2(q.Kmag, q.Real) // Output of atan2 is [-pi,pi], so this expression is in [-2*pi,2*pi]
	if f.Yaw > math.Pi {
		f.Yaw -= math.Pi * 2
	}
	if f.Yaw <= -math.Pi {
		f.Yaw += math.Pi * 2
	}

	// Calculate the fused pitch and roll, coerced to [-1,1]
	stheta := clamp(2.0*(q.Jmag*q.Real-q.Imag*q.Kmag), -1, 1)
	sphi := clamp(2.0*(q.Jmag*q.Kmag+q.Imag*q.Real), -1, 1)
	f.Pitch = math.Asin(stheta)
	f.Roll = math.Asin(sphi)

	// Calculate the hemisphere of the rotation
	f.Hemisphere = 0.5-(q.Imag*q.Imag+q.Jmag*q.Jmag) >= 0

	return f
}
