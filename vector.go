package fusion

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vector is a 3D vector in the sensor or earth frame. Format is (x,y,z).
type Vector r3.Vec

// VectorFrom builds a Vector from an (x,y,z) array.
func VectorFrom(a [3]float64) Vector {
	return Vector{X: a[0], Y: a[1], Z: a[2]}
}

// Array returns the vector as an (x,y,z) array.
func (v Vector) Array() [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// Add returns v+u.
func (v Vector) Add(u Vector) Vector {
	return Vector(r3.Add(r3.Vec(v), r3.Vec(u)))
}

// Sub returns v-u.
func (v Vector) Sub(u Vector) Vector {
	return Vector(r3.Sub(r3.Vec(v), r3.Vec(u)))
}

// Scale returns f*v.
func (v Vector) Scale(f float64) Vector {
	return Vector(r3.Scale(f, r3.Vec(v)))
}

// Dot returns the dot product v·u.
func (v Vector) Dot(u Vector) float64 {
	return r3.Dot(r3.Vec(v), r3.Vec(u))
}

// Cross returns the cross product v×u.
func (v Vector) Cross(u Vector) Vector {
	return Vector(r3.Cross(r3.Vec(v), r3.Vec(u)))
}

// Norm returns the Euclidean norm of v.
func (v Vector) Norm() float64 {
	return r3.Norm(r3.Vec(v))
}

// NormSquared returns the squared Euclidean norm of v.
func (v Vector) NormSquared() float64 {
	return r3.Norm2(r3.Vec(v))
}

// IsZero reports whether all three components are exactly zero.
func (v Vector) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Unit returns v scaled to unit length. Vectors with a norm too small to
// divide by are returned unchanged, so a zero vector stays zero.
func (v Vector) Unit() Vector {
	n := v.NormSquared()
	if n < VectorNormToleranceSquared {
		return v
	}
	return v.Scale(1 / math.Sqrt(n))
}

// abs returns the vector of per-axis absolute values.
func (v Vector) abs() Vector {
	return Vector{X: math.Abs(v.X), Y: math.Abs(v.Y), Z: math.Abs(v.Z)}
}

// maxAbs returns the largest absolute component.
func (v Vector) maxAbs() float64 {
	a := v.abs()
	return math.Max(a.X, math.Max(a.Y, a.Z))
}
