package fusion

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Quaternion is an orientation quaternion. Format is (q0,qvec) = (w,x,y,z),
// stored as Real, Imag, Jmag and Kmag respectively. It rotates sensor frame
// vectors into the earth frame.
type Quaternion quat.Number

// IdentityQuaternion returns the quaternion of no rotation.
func IdentityQuaternion() Quaternion {
	return Quaternion{Real: 1}
}

// QuaternionFromArray builds a Quaternion from a (w,x,y,z) array.
func QuaternionFromArray(a [4]float64) Quaternion {
	return Quaternion{Real: a[0], Imag: a[1], Jmag: a[2], Kmag: a[3]}
}

// QuaternionFromAxisAngle returns the rotation of angle radians about axis.
// A zero axis gives the identity.
func QuaternionFromAxisAngle(axis Vector, angle float64) Quaternion {
	if axis.NormSquared() < VectorNormToleranceSquared {
		return IdentityQuaternion()
	}
	u := axis.Unit()
	s := math.Sin(0.5 * angle)
	return Quaternion{Real: math.Cos(0.5 * angle), Imag: s * u.X, Jmag: s * u.Y, Kmag: s * u.Z}
}

// QuaternionFromEuler returns the quaternion for a set of ZYX Euler angles.
func QuaternionFromEuler(yaw, pitch, roll float64) Quaternion {
	// halve the yaw, pitch and roll values (for calculation purposes only)
	yaw *= 0.5
	pitch *= 0.5
	roll *= 0.5

	var (
		cpsi = math.Cos(yaw)
		spsi = math.Sin(yaw)
		cth  = math.Cos(pitch)
		sth  = math.Sin(pitch)
		cphi = math.Cos(roll)
		sphi = math.Sin(roll)
	)

	return Quaternion{
		Real: cpsi*cth*cphi + spsi*sth*sphi,
		Imag: cpsi*cth*sphi - spsi*sth*cphi,
		Jmag: cpsi*sth*cphi + spsi*cth*sphi,
		Kmag: spsi*cth*cphi - cpsi*sth*sphi,
	}
}

// Array returns the quaternion as a (w,x,y,z) array.
func (q Quaternion) Array() [4]float64 {
	return [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag}
}

// Vector returns the vector part (x,y,z).
func (q Quaternion) Vector() Vector {
	return Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
}

// Mul returns the Hamilton product q ⊗ p.
func (q Quaternion) Mul(p Quaternion) Quaternion {
	return Quaternion(quat.Mul(quat.Number(q), quat.Number(p)))
}

// Conj returns the conjugate of q, which is its inverse for unit quaternions.
func (q Quaternion) Conj() Quaternion {
	return Quaternion(quat.Conj(quat.Number(q)))
}

// Norm returns the quaternion norm.
func (q Quaternion) Norm() float64 {
	return quat.Abs(quat.Number(q))
}

func (q Quaternion) normSquared() float64 {
	return q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag
}

// Normalize returns q scaled to unit norm. If the norm is so close to zero
// that the division would be meaningless, the identity is returned instead.
func (q Quaternion) Normalize() Quaternion {
	qscale := q.normSquared()
	if qscale < QhatNormToleranceSquared {
		return IdentityQuaternion()
	}
	return Quaternion(quat.Scale(1/math.Sqrt(qscale), quat.Number(q)))
}

// MulVector returns q ⊗ (0,v).
func (q Quaternion) MulVector(v Vector) Quaternion {
	return Quaternion{
		Real: -q.Imag*v.X - q.Jmag*v.Y - q.Kmag*v.Z,
		Imag: q.Real*v.X + q.Jmag*v.Z - q.Kmag*v.Y,
		Jmag: q.Real*v.Y - q.Imag*v.Z + q.Kmag*v.X,
		Kmag: q.Real*v.Z + q.Imag*v.Y - q.Jmag*v.X,
	}
}

// Rotate rotates v by q (q v q*), taking a sensor frame vector into the earth frame.
func (q Quaternion) Rotate(v Vector) Vector {
	return q.MulVector(v).Mul(q.Conj()).Vector()
}

// InverseRotate rotates v by q* (q* v q), taking an earth frame vector into the sensor frame.
func (q Quaternion) InverseRotate(v Vector) Vector {
	return q.Conj().MulVector(v).Mul(q).Vector()
}

// AngleBetween returns the angle in [0,pi] of the smallest rotation taking a to b.
// q and -q describe the same orientation and give an angle of zero.
func AngleBetween(a, b Quaternion) float64 {
	a = a.Normalize()
	b = b.Normalize()
	dot := math.Abs(a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag)
	if dot >= 1 {
		return 0
	}
	return 2 * math.Acos(dot)
}

// Above this dot product two quaternions are close enough for Slerp to blend them linearly.
const slerpLinearThreshold = 0.9995

// Slerp spherically interpolates between a (t = 0) and b (t = 1) along the
// shortest path. Nearly parallel inputs fall back to a normalised linear blend.
// The filter itself never interpolates; Slerp is provided for callers that
// resample estimates between updates.
func Slerp(a, b Quaternion, t float64) Quaternion {
	a = a.Normalize()
	b = b.Normalize()

	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	if dot < 0 {
		b = Quaternion(quat.Scale(-1, quat.Number(b)))
		dot = -dot
	}

	var sa, sb float64
	if dot > slerpLinearThreshold {
		sa = 1 - t
		sb = t
	} else {
		theta := math.Acos(dot)
		sinTheta := math.Sin(theta)
		sa = math.Sin((1-t)*theta) / sinTheta
		sb = math.Sin(t*theta) / sinTheta
	}

	return Quaternion(quat.Add(quat.Scale(sa, quat.Number(a)), quat.Scale(sb, quat.Number(b)))).Normalize()
}
